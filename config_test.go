package main

import (
	"flag"
	"os"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{
			name: "valid config",
			cfg: Config{
				Markets:          []string{"BTCUSDT", "ETHUSDT"},
				DBHost:           "localhost",
				DBPort:           "5432",
				DBName:           "ohlc",
				DBUser:           "postgres",
				CandleAPIBaseURL: "http://localhost:8000",
			},
			wantErr: nil,
		},
		{
			name: "missing markets",
			cfg: Config{
				DBHost:           "localhost",
				DBPort:           "5432",
				DBName:           "ohlc",
				DBUser:           "postgres",
				CandleAPIBaseURL: "http://localhost:8000",
			},
			wantErr: []string{"no markets provided for herald service"},
		},
		{
			name: "missing database settings",
			cfg: Config{
				Markets:          []string{"BTCUSDT"},
				CandleAPIBaseURL: "http://localhost:8000",
			},
			wantErr: []string{
				"database host cannot be an empty string",
				"database port cannot be an empty string",
				"database name cannot be an empty string",
				"database user cannot be an empty string",
			},
		},
		{
			name: "missing candle api base url",
			cfg: Config{
				Markets: []string{"BTCUSDT"},
				DBHost:  "localhost",
				DBPort:  "5432",
				DBName:  "ohlc",
				DBUser:  "postgres",
			},
			wantErr: []string{"candle api base url cannot be an empty string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("expected error(s) %v, got none", tt.wantErr)
					return
				}
				for _, want := range tt.wantErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args and environment
	origArgs := os.Args
	origEnv := os.Environ()
	defer func() {
		os.Args = origArgs
		for _, kv := range origEnv {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				os.Setenv(parts[0], parts[1])
			}
		}
	}()

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		expectCfg   Config
	}{
		{
			name: "all from env",
			env: map[string]string{
				"markets":          "BTCUSDT,ETHUSDT",
				"dbhost":           "localhost",
				"dbname":           "ohlc",
				"candleapibaseurl": "http://localhost:8000",
			},
			args:      []string{"cmd"},
			expectErr: false,
			expectCfg: Config{
				Markets:          []string{"BTCUSDT", "ETHUSDT"},
				DBHost:           "localhost",
				DBName:           "ohlc",
				CandleAPIBaseURL: "http://localhost:8000",
			},
		},
		{
			name:      "all from flags",
			env:       map[string]string{},
			args:      []string{"cmd", "-markets=BTCUSDT,ETHUSDT", "-dbhost=localhost", "-dbname=ohlc", "-candleapibaseurl=http://localhost:8000"},
			expectErr: false,
			expectCfg: Config{
				Markets:          []string{"BTCUSDT", "ETHUSDT"},
				DBHost:           "localhost",
				DBName:           "ohlc",
				CandleAPIBaseURL: "http://localhost:8000",
			},
		},
		{
			name: "defaults applied for markets, port and user",
			env: map[string]string{
				"dbhost":           "localhost",
				"dbname":           "ohlc",
				"candleapibaseurl": "http://localhost:8000",
			},
			args:      []string{"cmd"},
			expectErr: false,
			expectCfg: Config{
				Markets:          defaultMarkets,
				DBHost:           "localhost",
				DBName:           "ohlc",
				CandleAPIBaseURL: "http://localhost:8000",
			},
		},
		{
			name:        "missing database host and candle api",
			env:         map[string]string{},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"database host cannot be an empty string", "candle api base url cannot be an empty string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			// Set environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Set command-line arguments
			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, "") // don't load .env file

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			} else {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				// Only check fields that are set in expectCfg
				if len(tt.expectCfg.Markets) != len(cfg.Markets) {
					t.Errorf("Markets: got %v, want %v", cfg.Markets, tt.expectCfg.Markets)
				}
				if tt.expectCfg.DBHost != "" && cfg.DBHost != tt.expectCfg.DBHost {
					t.Errorf("DBHost: got %v, want %v", cfg.DBHost, tt.expectCfg.DBHost)
				}
				if tt.expectCfg.DBName != "" && cfg.DBName != tt.expectCfg.DBName {
					t.Errorf("DBName: got %v, want %v", cfg.DBName, tt.expectCfg.DBName)
				}
				if tt.expectCfg.CandleAPIBaseURL != "" && cfg.CandleAPIBaseURL != tt.expectCfg.CandleAPIBaseURL {
					t.Errorf("CandleAPIBaseURL: got %v, want %v", cfg.CandleAPIBaseURL, tt.expectCfg.CandleAPIBaseURL)
				}
			}

			// Clean up env
			for k := range tt.env {
				os.Unsetenv(k)
			}
		})
	}
}
