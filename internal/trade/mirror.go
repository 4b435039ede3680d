package trade

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/Klingon-tech/klingpay/internal/storage"
)

// DefaultMirrorTTL is how long a mirrored record survives without being
// refreshed by a remote read.
const DefaultMirrorTTL = 7 * 24 * time.Hour

// Mirror keeps the last seen copy of trade records in a key-value store so
// the wallet can show them offline. It is never authoritative.
type Mirror struct {
	ttl      time.Duration
	orders   *storage.Bucket
	escrows  *storage.Bucket
	disputes *storage.Bucket
	messages *storage.Bucket
}

// NewMirror creates a mirror over db. Records expire ttl after their last
// write; zero keeps them forever.
func NewMirror(db storage.DB, ttl time.Duration) *Mirror {
	return &Mirror{
		ttl:      ttl,
		orders:   storage.NewBucket(db, "trade/o"),
		escrows:  storage.NewBucket(db, "trade/e"),
		disputes: storage.NewBucket(db, "trade/d"),
		messages: storage.NewBucket(db, "trade/m"),
	}
}

// PutOrders stores orders in one batch.
func (m *Mirror) PutOrders(orders ...Order) error {
	b := m.orders.NewBatch()
	defer b.Cancel()
	for _, o := range orders {
		if o.ID == "" {
			continue
		}
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}
		if err := b.Put([]byte(o.ID), data, m.ttl); err != nil {
			return err
		}
	}
	return b.Commit()
}

// Order returns a mirrored order.
func (m *Mirror) Order(id string) (*Order, error) {
	var o Order
	if err := get(m.orders, id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Orders returns mirrored orders that pass f, newest first.
func (m *Mirror) Orders(f OrderFilter) ([]Order, error) {
	out := make([]Order, 0)
	err := m.orders.ForEach(nil, func(_, value []byte) error {
		var o Order
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("decode mirrored order: %w", err)
		}
		if f.Match(o) {
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// PutEscrow stores an escrow.
func (m *Mirror) PutEscrow(e *Escrow) error {
	return m.put(m.escrows, e.ID, e)
}

// Escrow returns a mirrored escrow.
func (m *Mirror) Escrow(id string) (*Escrow, error) {
	var e Escrow
	if err := get(m.escrows, id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PutDispute stores a dispute.
func (m *Mirror) PutDispute(d *Dispute) error {
	return m.put(m.disputes, d.ID, d)
}

// Dispute returns a mirrored dispute.
func (m *Mirror) Dispute(id string) (*Dispute, error) {
	var d Dispute
	if err := get(m.disputes, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PutMessages stores chat messages in one batch. Messages are keyed by
// order, send time and id, so iteration yields them in send order.
func (m *Mirror) PutMessages(msgs ...ChatMessage) error {
	b := m.messages.NewBatch()
	defer b.Cancel()
	for _, msg := range msgs {
		if msg.ID == "" || msg.OrderID == "" {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if err := b.Put(messageKey(msg), data, m.ttl); err != nil {
			return err
		}
	}
	return b.Commit()
}

// Messages returns the mirrored chat of an order in send order.
func (m *Mirror) Messages(orderID string) ([]ChatMessage, error) {
	out := make([]ChatMessage, 0)
	err := m.messages.ForEach(messagePrefix(orderID), func(_, value []byte) error {
		var msg ChatMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			return fmt.Errorf("decode mirrored message: %w", err)
		}
		out = append(out, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear drops every mirrored record.
func (m *Mirror) Clear() error {
	for _, b := range m.buckets() {
		if err := b.Clear(); err != nil {
			return fmt.Errorf("clear %s: %w", b.Name(), err)
		}
	}
	return nil
}

// Stats returns the number of mirrored records per kind.
func (m *Mirror) Stats() (map[string]int, error) {
	names := []string{"orders", "escrows", "disputes", "messages"}
	out := make(map[string]int, len(names))
	for i, b := range m.buckets() {
		n, err := b.Count()
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", b.Name(), err)
		}
		out[names[i]] = n
	}
	return out, nil
}

func (m *Mirror) buckets() []*storage.Bucket {
	return []*storage.Bucket{m.orders, m.escrows, m.disputes, m.messages}
}

// messagePrefix escapes the order id so that an id containing "/" cannot
// extend another order's prefix.
func messagePrefix(orderID string) []byte {
	return []byte(url.PathEscape(orderID) + "/")
}

func messageKey(msg ChatMessage) []byte {
	return fmt.Appendf(messagePrefix(msg.OrderID), "%020d/%s", msg.SentAt.UnixNano(), msg.ID)
}

func (m *Mirror) put(b *storage.Bucket, id string, v any) error {
	if id == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	return storage.PutJSON(b, []byte(id), v, m.ttl)
}

func get(b *storage.Bucket, id string, v any) error {
	err := storage.GetJSON(b, []byte(id), v)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
