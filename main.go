package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/halver/herald/service"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	heraldCfg := service.HeraldConfig{
		Markets:          cfg.Markets,
		DBHost:           cfg.DBHost,
		DBPort:           cfg.DBPort,
		DBName:           cfg.DBName,
		DBUser:           cfg.DBUser,
		DBPass:           cfg.DBPass,
		CandleAPIBaseURL: cfg.CandleAPIBaseURL,
		TelegramBotToken: cfg.TelegramBotToken,
		TelegramChatID:   cfg.TelegramChatID,
		Cancel:           cancel,
	}
	herald, err := service.NewHerald(ctx, &heraldCfg)
	if err != nil {
		log.Printf("creating herald service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	herald.Run(ctx)
}
