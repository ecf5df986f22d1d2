package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// defaultMarkets is the market set tracked when none is configured.
var defaultMarkets = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "DOGEUSDT", "ADAUSDT", "LINKUSDT"}

// Config is the configuration struct for the service.
type Config struct {
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

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for herald service"))
	}
	if cfg.DBHost == "" {
		errs = errors.Join(errs, fmt.Errorf("database host cannot be an empty string"))
	}
	if cfg.DBPort == "" {
		errs = errors.Join(errs, fmt.Errorf("database port cannot be an empty string"))
	}
	if cfg.DBName == "" {
		errs = errors.Join(errs, fmt.Errorf("database name cannot be an empty string"))
	}
	if cfg.DBUser == "" {
		errs = errors.Join(errs, fmt.Errorf("database user cannot be an empty string"))
	}
	if cfg.CandleAPIBaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("candle api base url cannot be an empty string"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("markets", &cfg.Markets, "the tracked markets")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbhost", &cfg.DBHost, "the indicator database host")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbport", &cfg.DBPort, "the indicator database port")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbname", &cfg.DBName, "the indicator database name")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbuser", &cfg.DBUser, "the indicator database user")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("dbpass", &cfg.DBPass, "the indicator database user pass")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("candleapibaseurl", &cfg.CandleAPIBaseURL, "the candle service api base url")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("telegrambottoken", &cfg.TelegramBotToken, "the telegram bot api token")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("telegramchatid", &cfg.TelegramChatID, "the telegram chat id")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	// Apply defaults for optional values.
	if len(cfg.Markets) == 0 {
		cfg.Markets = defaultMarkets
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "5432"
	}
	if cfg.DBUser == "" {
		cfg.DBUser = "postgres"
	}

	return cfg.Validate()
}
