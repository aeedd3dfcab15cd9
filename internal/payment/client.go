// Package payment is a client for the Mercado Pago payments API built on the
// official SDK, with request validation and error vocabularies on top.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	mppayment "github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultBaseURL   = "https://api.mercadopago.com"
	pixExpiration    = 30 * time.Minute
	idempotencyKey   = "X-Idempotency-Key"
	maxResponseBytes = 1 << 20
)

// Config holds everything the client needs; nothing is read from the
// environment.
type Config struct {
	AccessToken string
	// BaseURL replaces the SDK's API host, for sandboxes and tests.
	BaseURL         string
	NotificationURL string
	// ApplicationURL is the public storefront URL used for preference back URLs.
	ApplicationURL string
	Location       *time.Location
}

type Client struct {
	cfg         Config
	requester   *requester
	payments    mppayment.Client
	preferences preference.Client
	now         func() time.Time
}

type Option func(*Client)

// WithClock overrides time.Now, used for expiration dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg Config, httpClient *http.Client, opts ...Option) (*Client, error) {
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.NotificationURL = strings.TrimSpace(cfg.NotificationURL)
	cfg.ApplicationURL = strings.TrimRight(strings.TrimSpace(cfg.ApplicationURL), "/")

	if cfg.AccessToken == "" {
		return nil, errors.New("payment: access token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("payment: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	req := &requester{client: httpClient, base: base}
	sdkCfg, err := config.New(cfg.AccessToken, config.WithHTTPClient(req))
	if err != nil {
		return nil, fmt.Errorf("payment: configure sdk: %w", err)
	}

	c := &Client{
		cfg:         cfg,
		requester:   req,
		payments:    mppayment.NewClient(sdkCfg),
		preferences: preference.NewClient(sdkCfg),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// requester points SDK calls at the configured host and guarantees an
// idempotency key on every POST.
type requester struct {
	client *http.Client
	base   *url.URL
}

func (r *requester) Do(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = r.base.Scheme
	req.URL.Host = r.base.Host
	req.Host = r.base.Host
	if req.Method == http.MethodPost && req.Header.Get(idempotencyKey) == "" {
		req.Header.Set(idempotencyKey, uuid.NewString())
	}
	return r.client.Do(req)
}

type Charge struct {
	ID                ResourceID
	Status            string
	StatusDetail      string
	ExternalReference string
	TicketURL         string
}

// ChargePix creates a PIX charge that expires 30 minutes from now.
func (c *Client) ChargePix(ctx context.Context, req PixRequest) (*Charge, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	expires := c.expiration(pixExpiration)
	return c.createPayment(ctx, "charge pix", mppayment.Request{
		PaymentMethodID:   "pix",
		TransactionAmount: amountValue(req.Amount),
		Description:       strings.TrimSpace(req.Description),
		DateOfExpiration:  &expires,
		Payer: &mppayment.PayerRequest{
			Email:          strings.TrimSpace(req.PayerEmail),
			Identification: cpf(req.PayerTaxID),
		},
		ExternalReference: "ID-PIX-" + uuid.NewString(),
	})
}

func (c *Client) ChargeBoleto(ctx context.Context, req BoletoRequest) (*Charge, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	streetNumber := strings.TrimSpace(req.Address.StreetNumber)
	if streetNumber == "" {
		streetNumber = "S/N"
	}

	expires := c.expiration(time.Duration(req.DaysToExpire) * 24 * time.Hour)
	return c.createPayment(ctx, "charge boleto", mppayment.Request{
		PaymentMethodID:   "bolbradesco",
		TransactionAmount: amountValue(req.Amount),
		Description:       strings.TrimSpace(req.Description),
		DateOfExpiration:  &expires,
		Payer: &mppayment.PayerRequest{
			Email:          strings.TrimSpace(req.PayerEmail),
			FirstName:      strings.TrimSpace(req.PayerFirstName),
			LastName:       strings.TrimSpace(req.PayerLastName),
			Identification: cpf(req.PayerTaxID),
			Address: &mppayment.AddressRequest{
				ZipCode:      strings.TrimSpace(req.Address.ZipCode),
				StreetName:   strings.TrimSpace(req.Address.StreetName),
				StreetNumber: streetNumber,
				Neighborhood: strings.TrimSpace(req.Address.Neighborhood),
				City:         strings.TrimSpace(req.Address.City),
				FederalUnit:  strings.ToUpper(strings.TrimSpace(req.Address.FederalUnit)),
			},
		},
		ExternalReference: "ID-BOLETO-" + uuid.NewString(),
	})
}

// ChargeCard tokenizes the card and charges the resulting one-time token.
func (c *Client) ChargeCard(ctx context.Context, req CardRequest) (*Charge, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	token, err := c.createCardToken(ctx, req.Card)
	if err != nil {
		return nil, err
	}

	return c.createPayment(ctx, "charge card", mppayment.Request{
		TransactionAmount: amountValue(req.Amount),
		Token:             token,
		Installments:      req.Installments,
		Description:       strings.TrimSpace(req.Description),
		Payer: &mppayment.PayerRequest{
			Email:          strings.TrimSpace(req.PayerEmail),
			Identification: cpf(req.PayerTaxID),
		},
		ExternalReference:   "ID-CARTAO-" + uuid.NewString(),
		StatementDescriptor: "Compra Online",
	})
}

type Preference struct {
	ID               string
	InitPoint        string
	SandboxInitPoint string
}

// CreateCardPreference creates a hosted checkout for a deferred card payment.
// orderRef is echoed back as the payment's external_reference.
func (c *Client) CreateCardPreference(ctx context.Context, items []PreferenceItem, orderRef string) (*Preference, error) {
	if err := validatePreferenceItems(items); err != nil {
		return nil, err
	}

	ref := orderRef
	if ref == "" {
		ref = "1"
	}

	request := preference.Request{
		BackURLs: &preference.BackURLsRequest{
			Success: fmt.Sprintf("%s/checkout/pagamento-realizado/%s/", c.cfg.ApplicationURL, ref),
			Failure: fmt.Sprintf("%s/checkout/erro-pagamento/%s/", c.cfg.ApplicationURL, ref),
			Pending: fmt.Sprintf("%s/checkout/aguardando-pagamento/%s/", c.cfg.ApplicationURL, ref),
		},
		AutoReturn:        "approved",
		NotificationURL:   c.cfg.NotificationURL,
		ExternalReference: orderRef,
	}
	for _, item := range items {
		request.Items = append(request.Items, preference.ItemRequest{
			ID:         item.ID,
			Title:      item.Title,
			Quantity:   item.Quantity,
			CurrencyID: item.CurrencyID,
			UnitPrice:  amountValue(item.UnitPrice),
		})
	}

	resp, err := c.preferences.Create(ctx, request)
	if err != nil {
		return nil, apiError("create preference", err)
	}
	return &Preference{
		ID:               resp.ID,
		InitPoint:        resp.InitPoint,
		SandboxInitPoint: resp.SandboxInitPoint,
	}, nil
}

type PaymentInfo struct {
	ID                ResourceID
	Status            string
	StatusDetail      string
	ExternalReference string
	DateApproved      *time.Time
}

// GetPaymentInfo fetches the gateway's current view of a payment. A missing
// payment matches ErrPaymentNotFound.
func (c *Client) GetPaymentInfo(ctx context.Context, id string) (*PaymentInfo, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid("payment_id", "must not be empty")
	}
	numericID, err := strconv.Atoi(id)
	if err != nil {
		return nil, invalid("payment_id", "%q is not a numeric payment id", id)
	}

	resp, err := c.payments.Get(ctx, numericID)
	if err != nil {
		return nil, apiError("get payment", err)
	}

	info := &PaymentInfo{
		ID:                ResourceID(strconv.Itoa(resp.ID)),
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
	}
	if !resp.DateApproved.IsZero() {
		approved := resp.DateApproved
		info.DateApproved = &approved
	}
	return info, nil
}

func (c *Client) createPayment(ctx context.Context, op string, request mppayment.Request) (*Charge, error) {
	if c.cfg.NotificationURL != "" {
		request.NotificationURL = c.cfg.NotificationURL
	}

	resp, err := c.payments.Create(ctx, request)
	if err != nil {
		return nil, apiError(op, err)
	}
	if resp.ID == 0 {
		return nil, &APIError{Op: op, Err: errors.New("gateway returned an empty payment")}
	}

	charge := &Charge{
		ID:                ResourceID(strconv.Itoa(resp.ID)),
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
		TicketURL:         resp.PointOfInteraction.TransactionData.TicketURL,
	}
	if charge.TicketURL == "" {
		charge.TicketURL = resp.TransactionDetails.ExternalResourceURL
	}
	return charge, nil
}

// createCardToken posts to the card token endpoint directly: the SDK stamps
// every POST with an idempotency key and tokens must be created without one.
func (c *Client) createCardToken(ctx context.Context, card CardData) (string, error) {
	const op = "card token"

	data, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", op, err)
	}

	endpoint := c.requester.base.JoinPath("/v1/card_tokens")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.requester.client.Do(req)
	if err != nil {
		return "", &APIError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &APIError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newAPIError(op, resp.StatusCode, body)
	}

	var token struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	if token.ID == "" {
		return "", &APIError{Op: op, Err: errors.New("gateway returned no card token")}
	}
	return token.ID, nil
}

// apiError converts SDK failures into *APIError so the vocabularies and
// ErrPaymentNotFound apply.
func apiError(op string, err error) *APIError {
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		return newAPIError(op, respErr.StatusCode, []byte(respErr.Message))
	}
	return &APIError{Op: op, Err: err}
}

func (c *Client) expiration(d time.Duration) time.Time {
	return c.now().In(c.cfg.Location).Add(d).Truncate(time.Millisecond)
}

func cpf(taxID string) *mppayment.IdentificationRequest {
	return &mppayment.IdentificationRequest{Type: "CPF", Number: normalizeTaxID(taxID)}
}

func amountValue(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
