package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/halver/herald/shared"
	"github.com/tidwall/gjson"
)

// RefreshConfig represents the configuration for the refresh client.
type RefreshConfig struct {
	// BaseURL is the candle service's HTTP API base url.
	BaseURL string
}

// RefreshClient triggers candle and indicator recomputation on the candle
// service over its HTTP API. Recomputation is asynchronous, an accepted
// request does not mean fresh data is available yet.
type RefreshClient struct {
	cfg   *RefreshConfig
	httpc http.Client
	buf   *bytes.Buffer
}

// NewRefreshClient instantiates a new refresh client.
func NewRefreshClient(cfg *RefreshConfig) *RefreshClient {
	return &RefreshClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 120},
		buf:   bytes.NewBuffer(make([]byte, 0, 512)),
	}
}

// formURL creates full urls for the candle service api.
func (c *RefreshClient) formURL(parts ...string) string {
	c.buf.WriteString(c.cfg.BaseURL)
	for _, part := range parts {
		c.buf.WriteString("/")
		c.buf.WriteString(part)
	}
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// post issues a post request with no body and asserts the candle service
// acknowledged it.
func (c *RefreshClient) post(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("creating refresh request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("issuing refresh request: %w", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading refresh response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := gjson.GetBytes(body, "detail").String()
		if detail == "" {
			detail = string(body)
		}
		return fmt.Errorf("refresh request returned status %d: %s", resp.StatusCode, detail)
	}

	return nil
}

// RefreshMarket requests recomputation for one market and timeframe.
func (c *RefreshClient) RefreshMarket(ctx context.Context, market string, timeframe shared.Timeframe) error {
	return c.post(ctx, c.formURL("update", market, timeframe.String()))
}

// RefreshTimeframe requests recomputation of all markets on one timeframe.
func (c *RefreshClient) RefreshTimeframe(ctx context.Context, timeframe shared.Timeframe) error {
	return c.post(ctx, c.formURL("timeframe", timeframe.String(), "update"))
}
