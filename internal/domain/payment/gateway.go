package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
)

// ErrUpstream is returned when the payment gateway rejects or fails a
// session creation request.
var ErrUpstream = errors.New("payment gateway unavailable")

var _ order.GatewayClient = (*Client)(nil)

// ClientConfig holds gateway credentials and endpoint configuration.
// Credentials are passed through configuration; nothing in this package
// reads the environment.
type ClientConfig struct {
	BaseURL  string
	KeyID    string
	Secret   string
	Currency string
	Timeout  time.Duration
}

// Client creates payment sessions at the external gateway over HTTP.
type Client struct {
	http     *http.Client
	baseURL  string
	keyID    string
	secret   string
	currency string
}

// NewClient constructs a gateway Client from configuration.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		baseURL:  cfg.BaseURL,
		keyID:    cfg.KeyID,
		secret:   cfg.Secret,
		currency: cfg.Currency,
	}
}

type sessionRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type sessionResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateSession opens a payment session for the given receipt (our order ID)
// and amount in minor currency units, which is what the gateway expects.
func (c *Client) CreateSession(ctx context.Context, receipt string, amount int64) (*order.GatewaySession, error) {
	body, err := json.Marshal(sessionRequest{
		Amount:   amount,
		Currency: c.currency,
		Receipt:  receipt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal session request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build session request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrUpstream, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded amount for the error message.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Wrapf(ErrUpstream, "gateway returned %d: %s", resp.StatusCode, msg)
	}

	var sr sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, errors.Wrap(ErrUpstream, "decode session response")
	}

	return &order.GatewaySession{
		ID:       sr.ID,
		Amount:   sr.Amount,
		Currency: sr.Currency,
	}, nil
}
