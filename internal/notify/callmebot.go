package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type CallMeBotConfig struct {
	APIURL string
	APIKey string
	Phone  string
}

// CallMeBotClient can only message the phone registered with its API key, so
// the number passed to SendText is ignored.
type CallMeBotClient struct {
	cfg        CallMeBotConfig
	httpClient *http.Client
}

func NewCallMeBotClient(cfg CallMeBotConfig, httpClient *http.Client) (*CallMeBotClient, error) {
	if cfg.APIURL == "" || cfg.APIKey == "" || cfg.Phone == "" {
		return nil, errors.New("callmebot: api url, api key and phone are required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CallMeBotClient{cfg: cfg, httpClient: httpClient}, nil
}

func (c *CallMeBotClient) SendText(ctx context.Context, _ string, text string) error {
	u, err := url.Parse(c.cfg.APIURL)
	if err != nil {
		return fmt.Errorf("callmebot: invalid api url: %w", err)
	}
	q := u.Query()
	q.Set("phone", c.cfg.Phone)
	q.Set("apikey", c.cfg.APIKey)
	q.Set("text", text)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callmebot send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("callmebot send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// RecipientFixed reports that every message goes to the configured phone.
func (c *CallMeBotClient) RecipientFixed() bool { return true }
