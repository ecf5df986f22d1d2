package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/halver/herald/fetch"
	"github.com/halver/herald/ledger"
	"github.com/halver/herald/monitor"
	"github.com/halver/herald/notify"
	"github.com/halver/herald/rules"
	"github.com/halver/herald/shared"
	"github.com/halver/herald/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// patternInterval is the cadence of the candle pattern pass.
	patternInterval = time.Second * 60
	// priceInterval is the cadence of the price level pass.
	priceInterval = time.Second * 300
	// closeGrace is the window after a candle close in which pattern rules
	// are evaluated.
	closeGrace = time.Second * 60
	// refreshRetryDelay is the wait before refetching after a refresh.
	refreshRetryDelay = time.Second * 5
	// marketDelay is the wait between markets within a pass.
	marketDelay = time.Second * 2
	// timeframeDelay is the wait between timeframes within a market.
	timeframeDelay = time.Second
	// pivotProximityThreshold is the maximum relative distance to a pivot level.
	pivotProximityThreshold = 0.02
	// emaProximityTolerance is the maximum relative distance to an ema value.
	emaProximityTolerance = 0.01
)

// HeraldConfig represents the configuration struct for the herald service.
type HeraldConfig struct {
	// Markets represents the tracked markets.
	Markets []string
	// DBHost is the indicator database host.
	DBHost string
	// DBPort is the indicator database port.
	DBPort string
	// DBName is the indicator database name.
	DBName string
	// DBUser is the indicator database user.
	DBUser string
	// DBPass is the indicator database user pass.
	DBPass string
	// CandleAPIBaseURL is the candle service's HTTP API base url.
	CandleAPIBaseURL string
	// TelegramBotToken is the telegram bot API token.
	TelegramBotToken string
	// TelegramChatID is the telegram target chat id.
	TelegramChatID string
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *HeraldConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for herald service"))
	}
	if cfg.DBHost == "" {
		errs = errors.Join(errs, fmt.Errorf("database host cannot be an empty string"))
	}
	if cfg.DBName == "" {
		errs = errors.Join(errs, fmt.Errorf("database name cannot be an empty string"))
	}
	if cfg.CandleAPIBaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("candle api base url cannot be an empty string"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Herald represents a market alert notification service.
type Herald struct {
	cfg            *HeraldConfig
	monitorManager *monitor.Manager
	candleStore    *store.PostgresStore
	jobScheduler   *gocron.Scheduler
	logger         *zerolog.Logger
	wg             sync.WaitGroup
}

// NewHerald initializes a new herald service.
func NewHerald(ctx context.Context, cfg *HeraldConfig) (*Herald, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating herald config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "herald").Logger()

	now := func() time.Time { return time.Now().UTC() }
	jobScheduler := gocron.NewScheduler(time.UTC)

	refresher := store.NewRefreshClient(&store.RefreshConfig{
		BaseURL: strings.TrimSuffix(cfg.CandleAPIBaseURL, "/"),
	})

	storeLogger := logger.With().Str("component", "candlestore").Logger()
	candleStore, err := store.NewPostgresStore(ctx, &store.PostgresConfig{
		Host:      cfg.DBHost,
		Port:      cfg.DBPort,
		Name:      cfg.DBName,
		User:      cfg.DBUser,
		Pass:      cfg.DBPass,
		Refresher: refresher,
		Logger:    &storeLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating candle store: %w", err)
	}

	binanceClient := fetch.NewBinanceClient(&fetch.BinanceConfig{})

	notifierLogger := logger.With().Str("component", "notifier").Logger()
	notifier, err := notify.NewTelegramNotifier(&notify.TelegramConfig{
		BotToken: cfg.TelegramBotToken,
		ChatID:   cfg.TelegramChatID,
		Now:      now,
		Logger:   &notifierLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram notifier: %w", err)
	}

	rulesLogger := logger.With().Str("component", "rules").Logger()
	ruleSet, err := rules.NewSet(&rules.SetConfig{
		PivotThreshold: pivotProximityThreshold,
		EMATolerance:   emaProximityTolerance,
		CloseGrace:     closeGrace,
		Now:            now,
		Logger:         &rulesLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rule set: %w", err)
	}

	monitorLogger := logger.With().Str("component", "monitor").Logger()
	monitorMgr, err := monitor.NewManager(&monitor.ManagerConfig{
		Markets:           cfg.Markets,
		Timeframes:        shared.Timeframes,
		PriceTimeframe:    shared.OneHour,
		Rules:             ruleSet,
		Ledger:            ledger.NewLedger(),
		Fetcher:           binanceClient,
		Store:             candleStore,
		Notifier:          notifier,
		PatternInterval:   patternInterval,
		PriceInterval:     priceInterval,
		CloseGrace:        closeGrace,
		RefreshRetryDelay: refreshRetryDelay,
		MarketDelay:       marketDelay,
		TimeframeDelay:    timeframeDelay,
		JobScheduler:      jobScheduler,
		Now:               now,
		Logger:            &monitorLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating monitor manager: %w", err)
	}

	service := &Herald{
		cfg:            cfg,
		monitorManager: monitorMgr,
		candleStore:    candleStore,
		jobScheduler:   jobScheduler,
		logger:         &logger,
	}

	logger.Info().Msgf("monitoring %d markets across %d timeframes, pattern pass every %s, price pass every %s",
		len(cfg.Markets), len(shared.Timeframes), patternInterval, priceInterval)

	return service, nil
}

// Run handles the lifecycle processes of the herald service.
func (h *Herald) Run(ctx context.Context) {
	h.wg.Add(1)

	go func() {
		h.monitorManager.Run(ctx)
		h.wg.Done()
	}()

	h.jobScheduler.StartAsync()

	<-ctx.Done()
	h.jobScheduler.Stop()
	h.wg.Wait()

	err := h.candleStore.Close()
	if err != nil {
		h.logger.Error().Msgf("closing candle store: %v", err)
	}
}
