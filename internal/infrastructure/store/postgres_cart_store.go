package store

import (
	"context"
	"database/sql"

	"github.com/youngleee/thesis/internal/apperr"
	"github.com/youngleee/thesis/internal/domain/cart"
	"github.com/youngleee/thesis/internal/domain/product"
)

// PostgresCartStore implements cart.Store on the cart_items table. The
// unique index on (owner_key, product_id) backs the atomic upsert in
// AddQuantity.
type PostgresCartStore struct {
	db *sql.DB
}

func NewPostgresCartStore(db *sql.DB) *PostgresCartStore {
	return &PostgresCartStore{db: db}
}

func (s *PostgresCartStore) Items(ctx context.Context, ownerKey string) ([]cart.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.id, ci.product_id, ci.quantity, ci.date_added, p.name, p.price, p.image, p.in_stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.owner_key = $1
		ORDER BY ci.id`, ownerKey)
	if err != nil {
		return nil, apperr.Unavailable("list cart items", err)
	}
	defer rows.Close()

	items := []cart.Item{}
	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.AddedAt, &it.Name, &it.Price, &it.Image, &it.InStock); err != nil {
			return nil, apperr.Unavailable("scan cart item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("list cart items", err)
	}
	return items, nil
}

// AddQuantity increments the owner's line for productID or inserts it, as one
// statement. A sum that overflows the quantity column is reported as
// cart.ErrQuantityTooLarge.
func (s *PostgresCartStore) AddQuantity(ctx context.Context, ownerKey string, productID int64, quantity int) (cart.Line, error) {
	var l cart.Line
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (owner_key, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_key, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, product_id, quantity, date_added`,
		ownerKey, productID, quantity,
	).Scan(&l.ID, &l.ProductID, &l.Quantity, &l.AddedAt)
	if err != nil {
		switch pqCode(err) {
		case pqForeignKeyViolation:
			return cart.Line{}, product.ErrProductNotFound
		case pqNumericOutOfRange:
			// the merged quantity no longer fits the column
			return cart.Line{}, cart.ErrQuantityTooLarge
		}
		return cart.Line{}, apperr.Unavailable("upsert cart item", err)
	}
	return l, nil
}

func (s *PostgresCartStore) SetQuantity(ctx context.Context, ownerKey string, lineID int64, quantity int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $3 WHERE owner_key = $1 AND id = $2`,
		ownerKey, lineID, quantity)
	if err != nil {
		if pqCode(err) == pqNumericOutOfRange {
			return false, cart.ErrQuantityTooLarge
		}
		return false, apperr.Unavailable("update cart item", err)
	}
	return affected(res)
}

func (s *PostgresCartStore) DeleteLine(ctx context.Context, ownerKey string, lineID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE owner_key = $1 AND id = $2`, ownerKey, lineID)
	if err != nil {
		return false, apperr.Unavailable("delete cart item", err)
	}
	return affected(res)
}

func (s *PostgresCartStore) DeleteAll(ctx context.Context, ownerKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE owner_key = $1`, ownerKey)
	if err != nil {
		return 0, apperr.Unavailable("clear cart", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Unavailable("clear cart", err)
	}
	return n, nil
}

func (s *PostgresCartStore) Count(ctx context.Context, ownerKey string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cart_items WHERE owner_key = $1`, ownerKey).Scan(&n); err != nil {
		return 0, apperr.Unavailable("count cart items", err)
	}
	return n, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Unavailable("rows affected", err)
	}
	return n > 0, nil
}
