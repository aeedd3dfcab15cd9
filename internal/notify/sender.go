package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	ProviderEvolution = "evolution"
	ProviderCallMeBot = "callmebot"
	ProviderNone      = "none"
)

type Sender interface {
	SendText(ctx context.Context, number, text string) error
}

// NewSender builds the client for provider. ProviderNone yields a nil Sender.
func NewSender(provider string, evolution EvolutionConfig, callmebot CallMeBotConfig, httpClient *http.Client) (Sender, error) {
	switch provider {
	case ProviderEvolution:
		c, err := NewEvolutionClient(evolution, httpClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderCallMeBot:
		c, err := NewCallMeBotClient(callmebot, httpClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown notification provider %q", provider)
	}
}

// NewHTTPClient returns the instrumented client senders share. Zero timeout
// leaves each delivery bounded only by the dispatcher's context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
