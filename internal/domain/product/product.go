package product

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/youngleee/thesis/internal/apperr"
)

var (
	ErrProductNotFound = apperr.New("product not found", apperr.ErrNotFound)
	ErrInvalidID       = apperr.New("product id must be positive", apperr.ErrInvalidInput)
)

// Product is a catalog record. Details is opaque to the cart and inventory
// services and is passed through untouched.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	InStock     bool            `json:"in_stock"`
	Details     string          `json:"details,omitempty"`
}

// Catalog is the durable product store.
type Catalog interface {
	// Get returns ErrProductNotFound for unknown ids.
	Get(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	// SetInStock returns ErrProductNotFound for unknown ids.
	SetInStock(ctx context.Context, id int64, inStock bool) (*Product, error)
}

// Seed is the sample catalog loaded into an empty store.
func Seed() []Product {
	return []Product{
		{
			Name:        "Premium Headphones",
			Description: "Noise-cancelling wireless headphones with superior sound quality",
			Price:       decimal.RequireFromString("199.99"),
			Image:       "https://via.placeholder.com/300?text=Headphones",
			InStock:     true,
			Details:     "Features include 30-hour battery life, Bluetooth 5.0, and comfortable over-ear design.",
		},
		{
			Name:        "Smartphone",
			Description: "Latest model with high-resolution camera and fast processor",
			Price:       decimal.RequireFromString("699.99"),
			Image:       "https://via.placeholder.com/300?text=Smartphone",
			InStock:     true,
			Details:     "6.7-inch OLED display, 5G capable, 128GB storage, water resistant.",
		},
		{
			Name:        "Coffee Maker",
			Description: "Programmable coffee machine with built-in grinder",
			Price:       decimal.RequireFromString("149.99"),
			Image:       "https://via.placeholder.com/300?text=CoffeeMaker",
			InStock:     true,
			Details:     "Customizable brew strength, timer function, keeps coffee hot for 2 hours.",
		},
		{
			Name:        "Fitness Tracker",
			Description: "Monitors heart rate, steps, and sleep patterns",
			Price:       decimal.RequireFromString("89.99"),
			Image:       "https://via.placeholder.com/300?text=FitnessTracker",
			InStock:     true,
			Details:     "Waterproof up to 50m, 7-day battery life, smartphone notifications.",
		},
		{
			Name:        "Wireless Earbuds",
			Description: "Truly wireless earbuds with charging case",
			Price:       decimal.RequireFromString("129.99"),
			Image:       "https://via.placeholder.com/300?text=Earbuds",
			InStock:     true,
			Details:     "Active noise cancellation, touch controls, 24-hour total battery life.",
		},
		{
			Name:        "Smart Watch",
			Description: "Health monitoring and notifications on your wrist",
			Price:       decimal.RequireFromString("249.99"),
			Image:       "https://via.placeholder.com/300?text=SmartWatch",
			InStock:     true,
			Details:     "Heart rate monitor, GPS, 50+ workout modes, sapphire crystal display.",
		},
	}
}
