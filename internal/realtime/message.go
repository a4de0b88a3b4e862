// Package realtime pushes cart and inventory changes to live browser
// connections and, optionally, to other instances through a relay.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/youngleee/thesis/internal/domain/cart"
)

// Kind names a realtime message type.
type Kind string

const (
	KindCartUpdate      Kind = "cart_update"
	KindInventoryUpdate Kind = "inventory_update"
	KindError           Kind = "error"

	// KindRefreshCart is the only message clients send.
	KindRefreshCart Kind = "refresh_cart"
)

var ErrUnknownKind = errors.New("unknown message kind")

// Message is the envelope written to connections and relayed between
// instances. Owner is set only for cart updates.
type Message struct {
	Kind    Kind            `json:"kind"`
	Owner   string          `json:"owner,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// InventoryPayload carries only the changed flag.
type InventoryPayload struct {
	ProductID int64 `json:"product_id"`
	InStock   bool  `json:"in_stock"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newMessage(kind Kind, ownerKey, origin string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Message{
		Kind:    kind,
		Owner:   ownerKey,
		Payload: raw,
		Origin:  origin,
		SentAt:  time.Now().UTC(),
	}, nil
}

// NewCartUpdate wraps the full committed cart of one owner.
func NewCartUpdate(c *cart.Cart, origin string) (Message, error) {
	return newMessage(KindCartUpdate, c.Owner, origin, c)
}

func NewInventoryUpdate(productID int64, inStock bool, origin string) (Message, error) {
	return newMessage(KindInventoryUpdate, "", origin, InventoryPayload{ProductID: productID, InStock: inStock})
}

func NewError(text string) Message {
	m, _ := newMessage(KindError, "", "", ErrorPayload{Message: text})
	return m
}

// Decode parses an envelope and rejects kinds this package does not know.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch m.Kind {
	case KindCartUpdate, KindInventoryUpdate, KindError, KindRefreshCart:
		return m, nil
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
}
