package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/halver/herald/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// telegramAPIURL is the telegram bot API message endpoint format.
	telegramAPIURL = "https://api.telegram.org/bot%s/sendMessage"
	// displayTimeLayout is the timestamp layout in delivered messages.
	displayTimeLayout = "2006-01-02 15:04 GMT-3"
	// divider separates the finding list from the message header and footer.
	divider = "━━━━━━━━━━━━━━━━━━━━"
)

// displayZone is the fixed offset zone timestamps are rendered in.
var displayZone = time.FixedZone("GMT-3", -3*60*60)

// TelegramConfig represents the configuration for the telegram notifier.
type TelegramConfig struct {
	// BotToken is the telegram bot API token. When the token or chat id is
	// empty the notifier logs deliveries instead of sending them.
	BotToken string
	// ChatID is the target chat id.
	ChatID string
	// Now returns the current time, in utc.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *TelegramConfig) Validate() error {
	var errs error

	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// TelegramNotifier delivers consolidated findings over the telegram bot API.
// Without credentials it degrades to logging deliveries, keeping the rest of
// the service functional.
type TelegramNotifier struct {
	cfg   *TelegramConfig
	httpc http.Client
}

// Ensure the telegram notifier implements the Notifier interface.
var _ shared.Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier initializes a new telegram notifier.
func NewTelegramNotifier(cfg *TelegramConfig) (*TelegramNotifier, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating telegram config: %w", err)
	}

	notifier := &TelegramNotifier{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 10},
	}

	if !notifier.configured() {
		cfg.Logger.Warn().Msg("telegram credentials not set, deliveries will be logged only")
	}

	return notifier, nil
}

// configured reports whether the notifier has credentials to deliver with.
func (n *TelegramNotifier) configured() bool {
	return n.cfg.BotToken != "" && n.cfg.ChatID != ""
}

// formatConsolidated renders one consolidated message for a market's findings.
func (n *TelegramNotifier) formatConsolidated(market string, findings []string, currentPrice float64) string {
	price := "N/A"
	if currentPrice > 0 {
		price = "$" + humanize.FormatFloat("#,###.##", currentPrice)
	}

	displayTime := n.cfg.Now().In(displayZone).Format(displayTimeLayout)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n📊 %s @ %s\n", market, price))
	b.WriteString(fmt.Sprintf("🕐 %s\n", displayTime))
	b.WriteString(divider)
	b.WriteString("\n")
	for _, finding := range findings {
		b.WriteString(fmt.Sprintf("• %s\n", finding))
	}
	b.WriteString(divider)

	return b.String()
}

// send delivers the message over the telegram bot API.
func (n *TelegramNotifier) send(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": n.cfg.ChatID,
		"text":    message,
	})
	if err != nil {
		return fmt.Errorf("marshalling telegram payload: %w", err)
	}

	url := fmt.Sprintf(telegramAPIURL, n.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading telegram response body: %w", err)
	}

	if !gjson.GetBytes(body, "ok").Bool() {
		description := gjson.GetBytes(body, "description").String()
		return fmt.Errorf("telegram rejected message (status %d): %s", resp.StatusCode, description)
	}

	return nil
}

// SendConsolidated delivers all of a market's findings as one message.
func (n *TelegramNotifier) SendConsolidated(ctx context.Context, market string, findings []string, currentPrice float64) error {
	if len(findings) == 0 {
		return nil
	}

	message := n.formatConsolidated(market, findings, currentPrice)

	if !n.configured() {
		n.cfg.Logger.Info().Msgf("telegram not configured, logging delivery instead:%s", message)
		return nil
	}

	err := n.send(ctx, message)
	if err != nil {
		return err
	}

	n.cfg.Logger.Info().Msgf("delivered %d finding(s) for %s", len(findings), market)

	return nil
}
