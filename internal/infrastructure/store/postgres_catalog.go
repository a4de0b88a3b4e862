package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/youngleee/thesis/internal/apperr"
	"github.com/youngleee/thesis/internal/domain/product"
)

const productColumns = `id, name, description, price, image, in_stock, details`

// PostgresCatalog implements product.Catalog on the products table.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*product.Product, error) {
	var p product.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.InStock, &p.Details); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *PostgresCatalog) Get(ctx context.Context, id int64) (*product.Product, error) {
	p, err := scanProduct(c.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, apperr.Unavailable("get product", err)
	}
	return p, nil
}

func (c *PostgresCatalog) List(ctx context.Context) ([]*product.Product, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, apperr.Unavailable("list products", err)
	}
	defer rows.Close()

	products := []*product.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperr.Unavailable("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("list products", err)
	}
	return products, nil
}

func (c *PostgresCatalog) SetInStock(ctx context.Context, id int64, inStock bool) (*product.Product, error) {
	p, err := scanProduct(c.db.QueryRowContext(ctx,
		`UPDATE products SET in_stock = $2 WHERE id = $1 RETURNING `+productColumns, id, inStock))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, apperr.Unavailable("set product stock", err)
	}
	return p, nil
}
