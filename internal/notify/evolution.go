package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type EvolutionConfig struct {
	BaseURL  string
	APIKey   string
	Instance string
}

// EvolutionClient sends WhatsApp messages through an Evolution API instance.
type EvolutionClient struct {
	cfg        EvolutionConfig
	httpClient *http.Client
}

func NewEvolutionClient(cfg EvolutionConfig, httpClient *http.Client) (*EvolutionClient, error) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" || cfg.Instance == "" {
		return nil, errors.New("evolution: base URL and instance are required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &EvolutionClient{cfg: cfg, httpClient: httpClient}, nil
}

type evolutionTextMessage struct {
	Number  string `json:"number"`
	Options struct {
		Delay int `json:"delay"`
	} `json:"options"`
	TextMessage struct {
		Text string `json:"text"`
	} `json:"textMessage"`
}

// SendText succeeds only when the API acknowledges the message with a key id.
func (c *EvolutionClient) SendText(ctx context.Context, number, text string) error {
	var payload evolutionTextMessage
	payload.Number = number
	payload.TextMessage.Text = text

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/message/sendText/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Instance))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("evolution send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("evolution send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ack struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	}
	if err := json.Unmarshal(body, &ack); err != nil || ack.Key.ID == "" {
		return fmt.Errorf("evolution send: message not acknowledged: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// ConnectionState reports the instance state: "open", "close" or "connecting".
func (c *EvolutionClient) ConnectionState(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/instance/connectionState/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Instance))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("evolution connection state: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("evolution connection state: status %d", resp.StatusCode)
	}

	var state struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return "", fmt.Errorf("evolution connection state: %w", err)
	}

	switch state.Instance.State {
	case "open", "close":
		return state.Instance.State, nil
	default:
		return "connecting", nil
	}
}
