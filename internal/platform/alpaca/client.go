// Package alpaca implements domain.Broker against the Alpaca paper trading
// and market data REST APIs.
package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

const (
	DefaultBaseURL = "https://paper-api.alpaca.markets"
	DefaultDataURL = "https://data.alpaca.markets"

	lookupTimeout = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	DataURL   string
	// Timeout bounds a single HTTP attempt. Callers still pass deadlines
	// through ctx.
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// Client is the REST client for Alpaca. It satisfies domain.Broker.
type Client struct {
	trading *resty.Client
	data    *resty.Client
}

var _ domain.Broker = (*Client)(nil)

// NewClient creates a new Alpaca client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = 10 * time.Second
	}

	return &Client{
		trading: newResty(cfg, cfg.BaseURL),
		data:    newResty(cfg, cfg.DataURL),
	}
}

func newResty(cfg Config, base string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("APCA-API-KEY-ID", cfg.APIKey).
		SetHeader("APCA-API-SECRET-KEY", cfg.APISecret).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(shouldRetry).
		SetRetryAfter(retryAfter)
}

// shouldRetry retries 429 on every method. Transport errors and 5xx are
// retried on reads and cancels only: a POST may have been accepted before the
// failure, and PlaceOrder resolves that case by client order id instead.
func shouldRetry(resp *resty.Response, err error) bool {
	if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	if isPost(resp) {
		return false
	}
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode() >= 500
}

func isPost(resp *resty.Response) bool {
	return resp != nil && resp.Request != nil && resp.Request.Method == http.MethodPost
}

// retryAfter honours the Retry-After header on 429 responses.
func retryAfter(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil || resp.StatusCode() != http.StatusTooManyRequests {
		return 0, nil
	}
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, nil
		}
	}
	return 10 * time.Second, nil
}

// GetQuote returns the latest bid price for pair.
func (c *Client) GetQuote(ctx context.Context, pair string) (decimal.Decimal, error) {
	symbol := NormalizePair(pair)

	var out latestQuotes
	resp, err := c.data.R().
		SetContext(ctx).
		SetQueryParam("symbols", symbol).
		SetResult(&out).
		Get("/v1beta3/crypto/us/latest/quotes")
	if err := check(resp, err); err != nil {
		return decimal.Zero, fmt.Errorf("alpaca: get quote %s: %w", symbol, err)
	}

	q, ok := out.Quotes[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("alpaca: get quote %s: %w", symbol, domain.ErrNotFound)
	}
	if !q.BidPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("alpaca: get quote %s: bid %s: %w", symbol, q.BidPrice, domain.ErrInvalidPrice)
	}
	return q.BidPrice, nil
}

// GetBalance returns the account's cash balance.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var out account
	resp, err := c.trading.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v2/account")
	if err := check(resp, err); err != nil {
		return decimal.Zero, fmt.Errorf("alpaca: get account: %w", err)
	}

	cash, err := parseDecimal("cash", out.Cash)
	if err != nil {
		return decimal.Zero, err
	}
	return cash, nil
}

// PlaceOrder submits a good-til-cancelled limit order. A client order id is
// generated when req does not carry one.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.BrokerOrder, error) {
	if !req.Side.Valid() || !req.Quantity.IsPositive() || !req.LimitPrice.IsPositive() {
		return domain.BrokerOrder{}, fmt.Errorf("alpaca: place order %s %s @ %s: %w",
			req.Side, req.Quantity, req.LimitPrice, domain.ErrInvalidOrder)
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	body := orderRequest{
		Symbol:        NormalizePair(req.Pair),
		Qty:           req.Quantity.String(),
		Side:          string(req.Side),
		Type:          "limit",
		LimitPrice:    req.LimitPrice.String(),
		TimeInForce:   "gtc",
		ClientOrderID: clientID,
	}

	var out Order
	resp, err := c.trading.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("/v2/orders")
	if cerr := check(resp, err); cerr != nil {
		// The order may be live even though the response was lost.
		if err != nil || resp.StatusCode() >= 500 {
			if bo, lerr := c.orderByClientID(ctx, clientID); lerr == nil {
				return bo, nil
			}
		}
		return domain.BrokerOrder{}, fmt.Errorf("alpaca: place %s order: %w", req.Side, cerr)
	}
	return out.ToDomain()
}

// orderByClientID looks an order up by the client order id it was submitted
// with. It runs detached from ctx's cancellation since ctx has often just
// expired when this is needed.
func (c *Client) orderByClientID(ctx context.Context, clientID string) (domain.BrokerOrder, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
	defer cancel()

	var out Order
	resp, err := c.trading.R().
		SetContext(ctx).
		SetQueryParam("client_order_id", clientID).
		SetResult(&out).
		Get("/v2/orders:by_client_order_id")
	if err := check(resp, err); err != nil {
		return domain.BrokerOrder{}, fmt.Errorf("alpaca: get order by client id %s: %w", clientID, err)
	}
	return out.ToDomain()
}

// GetOrder returns a single order by its broker id.
func (c *Client) GetOrder(ctx context.Context, id string) (domain.BrokerOrder, error) {
	var out Order
	resp, err := c.trading.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v2/orders/" + url.PathEscape(id))
	if err := check(resp, err); err != nil {
		return domain.BrokerOrder{}, fmt.Errorf("alpaca: get order %s: %w", id, err)
	}
	return out.ToDomain()
}

// ListOrders returns orders filtered by status ("open", "closed" or "all").
func (c *Client) ListOrders(ctx context.Context, status string, limit int) ([]domain.BrokerOrder, error) {
	r := c.trading.R().SetContext(ctx)
	if status != "" {
		r.SetQueryParam("status", status)
	}
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}

	var out []Order
	resp, err := r.SetResult(&out).Get("/v2/orders")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("alpaca: list orders: %w", err)
	}

	orders := make([]domain.BrokerOrder, 0, len(out))
	for _, o := range out {
		bo, err := o.ToDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, bo)
	}
	return orders, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	resp, err := c.trading.R().
		SetContext(ctx).
		Delete("/v2/orders/" + url.PathEscape(id))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("alpaca: cancel order %s: %w", id, err)
	}
	return nil
}

// CancelAllOrders cancels every open order on the account.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	resp, err := c.trading.R().
		SetContext(ctx).
		Delete("/v2/orders")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("alpaca: cancel all orders: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	return checkHTTPStatus(resp.StatusCode(), resp.Body())
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := strings.TrimSpace(string(body))
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrBrokerUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
