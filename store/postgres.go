package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/halver/herald/shared"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	// pivotTier is the timeframe tier pivot levels are computed on. Every
	// evaluated timeframe reads pivots from this tier at or before the
	// candle's close.
	pivotTier = "1M"

	// Connection pool settings.
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = time.Minute * 30

	// SQL statements.
	fetchLatestCandleSQL = "SELECT ticker, timeframe, timestamp, open, high, low, close, volume, candle_pattern " +
		"FROM ohlc_data WHERE ticker = $1 AND timeframe = $2 ORDER BY timestamp DESC LIMIT 1"
	fetchEMASQL   = "SELECT period, value FROM ema_data WHERE ticker = $1 AND timeframe = $2 AND timestamp = $3"
	fetchRSISQL   = "SELECT value FROM rsi_data WHERE ticker = $1 AND timeframe = $2 AND timestamp = $3 LIMIT 1"
	fetchOBVSQL   = "SELECT obv, ma_value, upper_band, lower_band FROM obv_data WHERE ticker = $1 AND timeframe = $2 AND timestamp = $3 LIMIT 1"
	fetchCESQL    = "SELECT atr_value, long_stop, short_stop, direction, buy_signal, sell_signal FROM ce_data WHERE ticker = $1 AND timeframe = $2 AND timestamp = $3 LIMIT 1"
	fetchPivotSQL = "SELECT pp, r1, r2, r3, r4, r5, s1, s2, s3, s4, s5 FROM pivot_data " +
		"WHERE ticker = $1 AND timeframe = '" + pivotTier + "' AND timestamp <= $2 ORDER BY timestamp DESC LIMIT 1"
)

// PostgresConfig represents the configuration for the postgres indicator store.
type PostgresConfig struct {
	// Host is the database host.
	Host string
	// Port is the database port.
	Port string
	// Name is the database name.
	Name string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Refresher requests indicator recomputation from the candle service.
	Refresher *RefreshClient
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *PostgresConfig) Validate() error {
	var errs error

	if cfg.Host == "" {
		errs = errors.Join(errs, fmt.Errorf("database host cannot be empty"))
	}
	if cfg.Port == "" {
		errs = errors.Join(errs, fmt.Errorf("database port cannot be empty"))
	}
	if cfg.Name == "" {
		errs = errors.Join(errs, fmt.Errorf("database name cannot be empty"))
	}
	if cfg.User == "" {
		errs = errors.Join(errs, fmt.Errorf("database user cannot be empty"))
	}
	if cfg.Refresher == nil {
		errs = errors.Join(errs, fmt.Errorf("refresh client cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// DSN returns the postgres connection string for the config.
func (cfg *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.Name)
}

// PostgresStore reads closed candles and their precomputed indicators from the
// candle service's postgres database. The store is read-only, indicator
// recomputation is requested over the candle service's HTTP API.
type PostgresStore struct {
	cfg *PostgresConfig
	db  *sqlx.DB
}

// Ensure the postgres store implements the CandleStore interface.
var _ shared.CandleStore = (*PostgresStore)(nil)

// NewPostgresStore initializes a new postgres indicator store.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating postgres store config: %w", err)
	}

	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	err = db.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{
		cfg: cfg,
		db:  db,
	}, nil
}

// candleRow is the database shape of a closed candle.
type candleRow struct {
	Ticker    string          `db:"ticker"`
	Timeframe string          `db:"timeframe"`
	Timestamp time.Time       `db:"timestamp"`
	Open      float64         `db:"open"`
	High      float64         `db:"high"`
	Low       float64         `db:"low"`
	Close     float64         `db:"close"`
	Volume    sql.NullFloat64 `db:"volume"`
	Pattern   sql.NullString  `db:"candle_pattern"`
}

// emaRow is the database shape of one ema period value.
type emaRow struct {
	Period int     `db:"period"`
	Value  float64 `db:"value"`
}

// obvRow is the database shape of the on-balance volume payload.
type obvRow struct {
	OBV       sql.NullFloat64 `db:"obv"`
	MAValue   sql.NullFloat64 `db:"ma_value"`
	UpperBand sql.NullFloat64 `db:"upper_band"`
	LowerBand sql.NullFloat64 `db:"lower_band"`
}

// ceRow is the database shape of the chandelier exit payload.
type ceRow struct {
	ATR        sql.NullFloat64 `db:"atr_value"`
	LongStop   sql.NullFloat64 `db:"long_stop"`
	ShortStop  sql.NullFloat64 `db:"short_stop"`
	Direction  sql.NullString  `db:"direction"`
	BuySignal  sql.NullBool    `db:"buy_signal"`
	SellSignal sql.NullBool    `db:"sell_signal"`
}

// pivotRow is the database shape of a pivot level tier.
type pivotRow struct {
	PP sql.NullFloat64 `db:"pp"`
	R1 sql.NullFloat64 `db:"r1"`
	R2 sql.NullFloat64 `db:"r2"`
	R3 sql.NullFloat64 `db:"r3"`
	R4 sql.NullFloat64 `db:"r4"`
	R5 sql.NullFloat64 `db:"r5"`
	S1 sql.NullFloat64 `db:"s1"`
	S2 sql.NullFloat64 `db:"s2"`
	S3 sql.NullFloat64 `db:"s3"`
	S4 sql.NullFloat64 `db:"s4"`
	S5 sql.NullFloat64 `db:"s5"`
}

// pivotMap flattens a pivot row into a named level map, skipping null levels.
func pivotMap(row *pivotRow) map[string]float64 {
	values := []sql.NullFloat64{row.PP, row.R1, row.R2, row.R3, row.R4, row.R5,
		row.S1, row.S2, row.S3, row.S4, row.S5}

	pivot := make(map[string]float64, len(values))
	for idx, name := range shared.PivotLevelNames {
		if values[idx].Valid {
			pivot[name] = values[idx].Float64
		}
	}

	return pivot
}

// newClosedCandle converts a candle row into the domain representation.
func newClosedCandle(row *candleRow) (*shared.ClosedCandle, error) {
	timeframe, err := shared.ParseTimeframe(row.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("parsing candle timeframe: %w", err)
	}

	candle := &shared.ClosedCandle{
		Market:    row.Ticker,
		Timeframe: timeframe,
		Timestamp: row.Timestamp.UTC(),
		Open:      row.Open,
		High:      row.High,
		Low:       row.Low,
		Close:     row.Close,
	}
	if row.Volume.Valid {
		candle.Volume = row.Volume.Float64
	}
	if row.Pattern.Valid {
		candle.Pattern = row.Pattern.String
	}

	return candle, nil
}

// attachIndicators loads the requested indicator kinds for the candle. Absent
// indicator rows leave their bundle entries nil rather than erroring.
func (s *PostgresStore) attachIndicators(ctx context.Context, candle *shared.ClosedCandle, kinds shared.IndicatorKindSet) error {
	market := candle.Market
	timeframe := candle.Timeframe.String()
	timestamp := candle.Timestamp

	if kinds.Has(shared.IndicatorEMA) {
		var rows []emaRow
		err := s.db.SelectContext(ctx, &rows, fetchEMASQL, market, timeframe, timestamp)
		if err != nil {
			return fmt.Errorf("fetching ema values: %w", err)
		}

		if len(rows) > 0 {
			ema := make(map[int]float64, len(rows))
			for idx := range rows {
				ema[rows[idx].Period] = rows[idx].Value
			}
			candle.Indicators.EMA = ema
		}
	}

	if kinds.Has(shared.IndicatorRSI) {
		var value float64
		err := s.db.GetContext(ctx, &value, fetchRSISQL, market, timeframe, timestamp)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// do nothing.
		case err != nil:
			return fmt.Errorf("fetching rsi value: %w", err)
		default:
			candle.Indicators.RSI = &value
		}
	}

	if kinds.Has(shared.IndicatorOBV) {
		var row obvRow
		err := s.db.GetContext(ctx, &row, fetchOBVSQL, market, timeframe, timestamp)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// do nothing.
		case err != nil:
			return fmt.Errorf("fetching obv values: %w", err)
		default:
			candle.Indicators.OBV = &shared.OBVIndicator{
				OBV:       row.OBV.Float64,
				MAValue:   row.MAValue.Float64,
				UpperBand: row.UpperBand.Float64,
				LowerBand: row.LowerBand.Float64,
			}
		}
	}

	if kinds.Has(shared.IndicatorChandelierExit) {
		var row ceRow
		err := s.db.GetContext(ctx, &row, fetchCESQL, market, timeframe, timestamp)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// do nothing.
		case err != nil:
			return fmt.Errorf("fetching chandelier exit values: %w", err)
		default:
			candle.Indicators.CE = &shared.ChandelierExit{
				ATR:        row.ATR.Float64,
				LongStop:   row.LongStop.Float64,
				ShortStop:  row.ShortStop.Float64,
				Direction:  row.Direction.String,
				BuySignal:  row.BuySignal.Bool,
				SellSignal: row.SellSignal.Bool,
			}
		}
	}

	if kinds.Has(shared.IndicatorPivot) {
		var row pivotRow
		err := s.db.GetContext(ctx, &row, fetchPivotSQL, market, timestamp)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// do nothing.
		case err != nil:
			return fmt.Errorf("fetching pivot levels: %w", err)
		default:
			candle.Indicators.Pivot = pivotMap(&row)
		}
	}

	return nil
}

// FetchClosed fetches the latest closed candle for the market and timeframe
// with the requested indicator kinds attached. A nil candle with a nil error
// means no closed candle exists yet.
func (s *PostgresStore) FetchClosed(ctx context.Context, market string, timeframe shared.Timeframe, kinds shared.IndicatorKindSet) (*shared.ClosedCandle, error) {
	var row candleRow
	err := s.db.GetContext(ctx, &row, fetchLatestCandleSQL, market, timeframe.String())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("fetching latest candle for %s %s: %w", market, timeframe.String(), err)
	}

	candle, err := newClosedCandle(&row)
	if err != nil {
		return nil, err
	}

	err = s.attachIndicators(ctx, candle, kinds)
	if err != nil {
		return nil, err
	}

	return candle, nil
}

// RequestRefresh asks the candle service to recompute the market and
// timeframe, reporting whether the request was accepted.
func (s *PostgresStore) RequestRefresh(ctx context.Context, market string, timeframe shared.Timeframe) bool {
	err := s.cfg.Refresher.RefreshMarket(ctx, market, timeframe)
	if err != nil {
		s.cfg.Logger.Error().Msgf("requesting refresh for %s %s: %v", market, timeframe.String(), err)
		return false
	}

	return true
}

// Close releases the store's database connections.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
