package cart

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/youngleee/thesis/internal/apperr"
)

// MaxQuantity is the largest quantity a single line can hold. It matches the
// INTEGER quantity column.
const MaxQuantity = math.MaxInt32

var (
	ErrInvalidQuantity  = apperr.New("quantity must be at least 1", apperr.ErrInvalidInput)
	ErrQuantityTooLarge = apperr.New("quantity exceeds the maximum per item", apperr.ErrInvalidInput, ErrInvalidQuantity)
	ErrInvalidProduct   = apperr.New("product id is required", apperr.ErrInvalidInput)
	ErrUnknownProduct   = apperr.New("product not found", apperr.ErrInvalidInput, apperr.ErrNotFound)
	ErrLineNotFound     = apperr.New("item not found in cart", apperr.ErrNotFound)
)

// Line is a persisted cart row.
type Line struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"date_added"`
}

// Item is a Line joined with the product's current catalog data.
type Item struct {
	Line
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Image   string          `json:"image"`
	InStock bool            `json:"in_stock"`
}

// Subtotal is price times quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the derived view of one owner's lines, in insertion order.
type Cart struct {
	Owner string          `json:"owner"`
	Items []Item          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

func newCart(ownerKey string, items []Item) *Cart {
	if items == nil {
		items = []Item{}
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return &Cart{Owner: ownerKey, Items: items, Total: total}
}

// Find returns the item for productID, if present.
func (c *Cart) Find(productID int64) (Item, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return Item{}, false
}

// Store persists cart lines keyed by owner key. Implementations must make
// AddQuantity a single atomic increment-or-insert on (owner, product).
type Store interface {
	Items(ctx context.Context, ownerKey string) ([]Item, error)
	AddQuantity(ctx context.Context, ownerKey string, productID int64, quantity int) (Line, error)
	SetQuantity(ctx context.Context, ownerKey string, lineID int64, quantity int) (bool, error)
	DeleteLine(ctx context.Context, ownerKey string, lineID int64) (bool, error)
	DeleteAll(ctx context.Context, ownerKey string) (int64, error)
	Count(ctx context.Context, ownerKey string) (int, error)
}

// Notifier receives committed cart states. Implementations must not block.
type Notifier interface {
	CartChanged(ctx context.Context, c *Cart)
}

type nopNotifier struct{}

func (nopNotifier) CartChanged(context.Context, *Cart) {}
