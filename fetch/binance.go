package fetch

import (
	"context"
	"fmt"
	"strconv"

	binance "github.com/adshao/go-binance/v2"
	"github.com/halver/herald/shared"
)

const (
	// klineLimit is the number of klines fetched per request. The most
	// recent kline is the forming interval, its close is the live price.
	klineLimit = 2
)

// BinanceConfig represents the configuration for the binance client.
type BinanceConfig struct {
	// APIKey is the binance API key. Kline data is public, the key is
	// optional.
	APIKey string
	// SecretKey is the binance API secret.
	SecretKey string
}

// BinanceClient fetches live market snapshots from the binance kline API.
type BinanceClient struct {
	cfg    *BinanceConfig
	client *binance.Client
}

// Ensure the binance client implements the PriceFetcher interface.
var _ shared.PriceFetcher = (*BinanceClient)(nil)

// NewBinanceClient instantiates a new binance client.
func NewBinanceClient(cfg *BinanceConfig) *BinanceClient {
	return &BinanceClient{
		cfg:    cfg,
		client: binance.NewClient(cfg.APIKey, cfg.SecretKey),
	}
}

// parseSnapshot parses a live snapshot from the provided kline. Binance
// serializes kline prices and volumes as strings.
func parseSnapshot(kline *binance.Kline) (*shared.LiveSnapshot, error) {
	open, err := strconv.ParseFloat(kline.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing kline open: %w", err)
	}

	high, err := strconv.ParseFloat(kline.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing kline high: %w", err)
	}

	low, err := strconv.ParseFloat(kline.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing kline low: %w", err)
	}

	clos, err := strconv.ParseFloat(kline.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing kline close: %w", err)
	}

	volume, err := strconv.ParseFloat(kline.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing kline volume: %w", err)
	}

	return &shared.LiveSnapshot{
		Open:   open,
		High:   high,
		Low:    low,
		Close:  clos,
		Volume: volume,
	}, nil
}

// FetchLive fetches the live snapshot for the market and timeframe. The
// timeframe's string form is a valid binance kline interval.
func (c *BinanceClient) FetchLive(ctx context.Context, market string, timeframe shared.Timeframe) (*shared.LiveSnapshot, error) {
	klines, err := c.client.NewKlinesService().
		Symbol(market).
		Interval(timeframe.String()).
		Limit(klineLimit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching klines for %s %s: %w", market, timeframe.String(), err)
	}

	if len(klines) == 0 {
		return nil, fmt.Errorf("no klines returned for %s %s", market, timeframe.String())
	}

	return parseSnapshot(klines[len(klines)-1])
}
