// Package trade is the client side of the P2P fiat-for-crypto market.
// Orders, escrows, disputes and chat live on the remote trade API; this
// package carries them, checks required fields and mirrors what it sees
// into local storage for offline browsing.
package trade

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when the remote API or the mirror has no
	// record with the requested id.
	ErrNotFound = errors.New("trade record not found")

	// ErrInvalidRecord is returned when a request misses required fields.
	ErrInvalidRecord = errors.New("invalid trade record")

	// ErrNotConfigured is returned when no trade API URL is set.
	ErrNotConfigured = errors.New("trade api not configured")
)

// MaxMessageLength is the longest chat message body accepted, in runes.
const MaxMessageLength = 2000

// Side is the maker's side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus values are assigned by the remote API.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderMatched   OrderStatus = "matched"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderDisputed  OrderStatus = "disputed"
)

// EscrowStatus values are assigned by the remote API.
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowFunded   EscrowStatus = "funded"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
	EscrowDisputed EscrowStatus = "disputed"
)

// DisputeStatus values are assigned by the remote API.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
	DisputeRejected DisputeStatus = "rejected"
)

// Order is a maker's offer to buy or sell a crypto asset for fiat.
// Amounts and prices are decimal strings.
type Order struct {
	ID             string      `json:"id"`
	Side           Side        `json:"side"`
	Asset          string      `json:"asset"` // Mint address or symbol.
	Fiat           string      `json:"fiat"`  // ISO 4217 code.
	Price          string      `json:"price"`
	Amount         string      `json:"amount"`
	MinLimit       string      `json:"min_limit,omitempty"`
	MaxLimit       string      `json:"max_limit,omitempty"`
	PaymentMethods []string    `json:"payment_methods"`
	Status         OrderStatus `json:"status"`
	Maker          string      `json:"maker"` // Maker's wallet address.
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Escrow locks the crypto side of a matched order.
type Escrow struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"order_id"`
	Buyer       string       `json:"buyer"`
	Seller      string       `json:"seller"`
	Amount      string       `json:"amount"`
	Status      EscrowStatus `json:"status"`
	TxSignature string       `json:"tx_signature,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Dispute is raised on an escrow when the parties disagree.
type Dispute struct {
	ID         string        `json:"id"`
	EscrowID   string        `json:"escrow_id"`
	Opener     string        `json:"opener"`
	Reason     string        `json:"reason"`
	Status     DisputeStatus `json:"status"`
	Resolution string        `json:"resolution,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ChatMessage is one message in an order's chat room.
type ChatMessage struct {
	ID      string    `json:"id"`
	OrderID string    `json:"order_id"`
	Sender  string    `json:"sender"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// OrderFilter narrows ListOrders. Zero fields match everything.
type OrderFilter struct {
	Side   Side        `json:"side,omitempty"`
	Asset  string      `json:"asset,omitempty"`
	Fiat   string      `json:"fiat,omitempty"`
	Status OrderStatus `json:"status,omitempty"`
	Maker  string      `json:"maker,omitempty"`
}

// Match reports whether o passes the filter.
func (f OrderFilter) Match(o Order) bool {
	return (f.Side == "" || o.Side == f.Side) &&
		(f.Asset == "" || o.Asset == f.Asset) &&
		(f.Fiat == "" || strings.EqualFold(o.Fiat, f.Fiat)) &&
		(f.Status == "" || o.Status == f.Status) &&
		(f.Maker == "" || o.Maker == f.Maker)
}

// NewOrder is the body of CreateOrder.
type NewOrder struct {
	Side           Side     `json:"side"`
	Asset          string   `json:"asset"`
	Fiat           string   `json:"fiat"`
	Price          string   `json:"price"`
	Amount         string   `json:"amount"`
	MinLimit       string   `json:"min_limit,omitempty"`
	MaxLimit       string   `json:"max_limit,omitempty"`
	PaymentMethods []string `json:"payment_methods"`
	Maker          string   `json:"maker"`
}

// Validate checks required fields. Business rules are enforced remotely.
func (n NewOrder) Validate() error {
	if n.Side != SideBuy && n.Side != SideSell {
		return invalid("side must be %q or %q", SideBuy, SideSell)
	}
	if n.Asset == "" || n.Maker == "" {
		return invalid("asset and maker are required")
	}
	if len(n.Fiat) != 3 {
		return invalid("fiat must be a 3-letter currency code")
	}
	if err := positiveDecimal("price", n.Price); err != nil {
		return err
	}
	if err := positiveDecimal("amount", n.Amount); err != nil {
		return err
	}
	for name, v := range map[string]string{"min_limit": n.MinLimit, "max_limit": n.MaxLimit} {
		if v == "" {
			continue
		}
		if err := positiveDecimal(name, v); err != nil {
			return err
		}
	}
	if len(n.PaymentMethods) == 0 {
		return invalid("at least one payment method is required")
	}
	return nil
}

// EscrowRequest is the body of OpenEscrow.
type EscrowRequest struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
}

// Validate checks required fields.
func (r EscrowRequest) Validate() error {
	if r.Buyer == "" {
		return invalid("buyer is required")
	}
	return positiveDecimal("amount", r.Amount)
}

// DisputeRequest is the body of OpenDispute.
type DisputeRequest struct {
	Opener string `json:"opener"`
	Reason string `json:"reason"`
}

// Validate checks required fields.
func (r DisputeRequest) Validate() error {
	if r.Opener == "" || strings.TrimSpace(r.Reason) == "" {
		return invalid("opener and reason are required")
	}
	return nil
}

// MessageRequest is the body of SendMessage.
type MessageRequest struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

// Validate checks required fields and the body length.
func (r MessageRequest) Validate() error {
	if r.Sender == "" {
		return invalid("sender is required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return invalid("message body is empty")
	}
	if n := utf8.RuneCountInString(r.Body); n > MaxMessageLength {
		return invalid("message body is %d characters, max %d", n, MaxMessageLength)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}

var decimalRe = regexp.MustCompile(`^[0-9]{1,30}(\.[0-9]{1,18})?$`)

func positiveDecimal(field, v string) error {
	if !decimalRe.MatchString(v) || strings.Trim(v, "0.") == "" {
		return invalid("%s must be a positive decimal, got %q", field, v)
	}
	return nil
}
