package trade

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Klingon-tech/klingpay/internal/log"
	"github.com/Klingon-tech/klingpay/internal/upstream"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Token   string // Bearer token, optional.
	Timeout time.Duration
}

// Client talks to the remote trade API. Reads that fail for transport
// reasons fall back to the mirror when one is attached.
type Client struct {
	base    string
	token   string
	timeout time.Duration
	http    *upstream.Client
	mirror  *Mirror
}

// NewClient creates a Client. mirror may be nil.
func NewClient(cfg ClientConfig, httpClient *upstream.Client, mirror *Mirror) *Client {
	if httpClient == nil {
		httpClient = upstream.NewClient(nil)
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http:    httpClient,
		mirror:  mirror,
	}
}

// Configured reports whether a remote API URL is set.
func (c *Client) Configured() bool {
	return c.base != ""
}

// OrderPage is the result of ListOrders. Offline is set when the orders
// come from the local mirror because the API was unreachable.
type OrderPage struct {
	Orders  []Order `json:"orders"`
	Offline bool    `json:"offline,omitempty"`
}

// ListOrders returns orders matching f.
func (c *Client) ListOrders(ctx context.Context, f OrderFilter) (*OrderPage, error) {
	q := url.Values{}
	setIf(q, "side", string(f.Side))
	setIf(q, "asset", f.Asset)
	setIf(q, "fiat", f.Fiat)
	setIf(q, "status", string(f.Status))
	setIf(q, "maker", f.Maker)

	var orders []Order
	err := c.get(ctx, "/orders", q, &orders)
	if err != nil {
		if c.mirror != nil && offline(err) {
			log.Trade.Warn().Err(err).Msg("Trade API unreachable, listing mirrored orders")
			cached, merr := c.mirror.Orders(f)
			if merr != nil {
				return nil, merr
			}
			return &OrderPage{Orders: cached, Offline: true}, nil
		}
		return nil, err
	}
	if orders == nil {
		orders = []Order{}
	}
	c.mirrorOrders(orders...)
	return &OrderPage{Orders: orders}, nil
}

// GetOrder returns one order.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	if err := requireID("order", id); err != nil {
		return nil, err
	}
	var o Order
	if err := c.get(ctx, "/orders/"+url.PathEscape(id), nil, &o); err != nil {
		if c.mirror != nil && offline(err) {
			return c.mirror.Order(id)
		}
		return nil, err
	}
	c.mirrorOrders(o)
	return &o, nil
}

// CreateOrder publishes a new order.
func (c *Client) CreateOrder(ctx context.Context, n NewOrder) (*Order, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	var o Order
	if err := c.post(ctx, "/orders", n, &o); err != nil {
		return nil, err
	}
	log.Trade.Info().Str("order", o.ID).Str("side", string(o.Side)).Str("asset", o.Asset).Msg("Order created")
	c.mirrorOrders(o)
	return &o, nil
}

// CancelOrder withdraws an order.
func (c *Client) CancelOrder(ctx context.Context, id string) (*Order, error) {
	if err := requireID("order", id); err != nil {
		return nil, err
	}
	var o Order
	if err := c.post(ctx, "/orders/"+url.PathEscape(id)+"/cancel", struct{}{}, &o); err != nil {
		return nil, err
	}
	log.Trade.Info().Str("order", id).Msg("Order cancelled")
	c.mirrorOrders(o)
	return &o, nil
}

// OpenEscrow takes an order and opens its escrow.
func (c *Client) OpenEscrow(ctx context.Context, orderID string, req EscrowRequest) (*Escrow, error) {
	if err := requireID("order", orderID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var e Escrow
	if err := c.post(ctx, "/orders/"+url.PathEscape(orderID)+"/escrow", req, &e); err != nil {
		return nil, err
	}
	log.Trade.Info().Str("order", orderID).Str("escrow", e.ID).Msg("Escrow opened")
	c.mirrorEscrow(&e)
	return &e, nil
}

// GetEscrow returns one escrow.
func (c *Client) GetEscrow(ctx context.Context, id string) (*Escrow, error) {
	if err := requireID("escrow", id); err != nil {
		return nil, err
	}
	var e Escrow
	if err := c.get(ctx, "/escrows/"+url.PathEscape(id), nil, &e); err != nil {
		if c.mirror != nil && offline(err) {
			return c.mirror.Escrow(id)
		}
		return nil, err
	}
	c.mirrorEscrow(&e)
	return &e, nil
}

// ReleaseEscrow asks the API to release escrowed funds to the buyer.
// txSignature is the seller's release transaction, if already sent.
func (c *Client) ReleaseEscrow(ctx context.Context, id, txSignature string) (*Escrow, error) {
	if err := requireID("escrow", id); err != nil {
		return nil, err
	}
	body := struct {
		TxSignature string `json:"tx_signature,omitempty"`
	}{txSignature}
	var e Escrow
	if err := c.post(ctx, "/escrows/"+url.PathEscape(id)+"/release", body, &e); err != nil {
		return nil, err
	}
	log.Trade.Info().Str("escrow", id).Msg("Escrow released")
	c.mirrorEscrow(&e)
	return &e, nil
}

// OpenDispute raises a dispute on an escrow.
func (c *Client) OpenDispute(ctx context.Context, escrowID string, req DisputeRequest) (*Dispute, error) {
	if err := requireID("escrow", escrowID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var d Dispute
	if err := c.post(ctx, "/escrows/"+url.PathEscape(escrowID)+"/disputes", req, &d); err != nil {
		return nil, err
	}
	log.Trade.Info().Str("escrow", escrowID).Str("dispute", d.ID).Msg("Dispute opened")
	c.mirrorDispute(&d)
	return &d, nil
}

// GetDispute returns one dispute.
func (c *Client) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	if err := requireID("dispute", id); err != nil {
		return nil, err
	}
	var d Dispute
	if err := c.get(ctx, "/disputes/"+url.PathEscape(id), nil, &d); err != nil {
		if c.mirror != nil && offline(err) {
			return c.mirror.Dispute(id)
		}
		return nil, err
	}
	c.mirrorDispute(&d)
	return &d, nil
}

// ListMessages returns an order's chat. A non-zero since only returns
// newer messages.
func (c *Client) ListMessages(ctx context.Context, orderID string, since time.Time) ([]ChatMessage, error) {
	if err := requireID("order", orderID); err != nil {
		return nil, err
	}
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	var msgs []ChatMessage
	if err := c.get(ctx, "/orders/"+url.PathEscape(orderID)+"/messages", q, &msgs); err != nil {
		if c.mirror != nil && offline(err) {
			cached, merr := c.mirror.Messages(orderID)
			if merr != nil {
				return nil, merr
			}
			return filterSince(cached, since), nil
		}
		return nil, err
	}
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	if c.mirror != nil {
		if err := c.mirror.PutMessages(msgs...); err != nil {
			log.Trade.Warn().Err(err).Msg("Failed to mirror messages")
		}
	}
	return msgs, nil
}

// SendMessage posts a chat message to an order's room.
func (c *Client) SendMessage(ctx context.Context, orderID string, req MessageRequest) (*ChatMessage, error) {
	if err := requireID("order", orderID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var msg ChatMessage
	if err := c.post(ctx, "/orders/"+url.PathEscape(orderID)+"/messages", req, &msg); err != nil {
		return nil, err
	}
	if c.mirror != nil {
		if err := c.mirror.PutMessages(msg); err != nil {
			log.Trade.Warn().Err(err).Msg("Failed to mirror message")
		}
	}
	return &msg, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return mapError(c.http.GetJSON(ctx, u, c.header(), out))
}

// post is never retried; the remote API may have applied the write.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return mapError(c.http.PostJSON(ctx, c.base+path, c.header(), in, out))
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *Client) mirrorOrders(orders ...Order) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.PutOrders(orders...); err != nil {
		log.Trade.Warn().Err(err).Msg("Failed to mirror orders")
	}
}

func (c *Client) mirrorEscrow(e *Escrow) {
	if c.mirror == nil || e.ID == "" {
		return
	}
	if err := c.mirror.PutEscrow(e); err != nil {
		log.Trade.Warn().Err(err).Msg("Failed to mirror escrow")
	}
}

func (c *Client) mirrorDispute(d *Dispute) {
	if c.mirror == nil || d.ID == "" {
		return
	}
	if err := c.mirror.PutDispute(d); err != nil {
		log.Trade.Warn().Err(err).Msg("Failed to mirror dispute")
	}
}

// mapError turns HTTP status errors into package errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *upstream.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, se.URL)
		case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrInvalidRecord, se.Body)
		}
	}
	return err
}

// offline reports whether err means the API could not be reached, as
// opposed to the API answering with an error.
func offline(err error) bool {
	if errors.Is(err, ErrNotConfigured) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *upstream.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidRecord)
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s id is required", ErrInvalidRecord, kind)
	}
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func filterSince(msgs []ChatMessage, since time.Time) []ChatMessage {
	if since.IsZero() {
		return msgs
	}
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.SentAt.After(since) {
			out = append(out, m)
		}
	}
	return out
}
