package store

import (
	"context"
	"sync"
	"time"

	"github.com/youngleee/thesis/internal/domain/cart"
	"github.com/youngleee/thesis/internal/domain/product"
	"github.com/youngleee/thesis/internal/domain/user"
)

// MemoryCatalog is an in-process product.Catalog used when no database is
// configured and in tests.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[int64]*product.Product
	nextID   int64
}

func NewMemoryCatalog(seed ...product.Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[int64]*product.Product)}
	for _, p := range seed {
		c.Add(p)
	}
	return c
}

// Add stores p, assigning the next id when p.ID is zero.
func (c *MemoryCatalog) Add(p product.Product) *product.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.ID == 0 {
		c.nextID++
		p.ID = c.nextID
	} else if p.ID > c.nextID {
		c.nextID = p.ID
	}
	c.products[p.ID] = &p
	clone := p
	return &clone
}

// Delete removes a product and, like the foreign key in Postgres, makes it
// unavailable to carts.
func (c *MemoryCatalog) Delete(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

func (c *MemoryCatalog) Get(ctx context.Context, id int64) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	clone := *p
	return &clone, nil
}

func (c *MemoryCatalog) List(ctx context.Context) ([]*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*product.Product, 0, len(c.products))
	for id := int64(1); id <= c.nextID; id++ {
		if p, ok := c.products[id]; ok {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (c *MemoryCatalog) SetInStock(ctx context.Context, id int64, inStock bool) (*product.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	p.InStock = inStock
	clone := *p
	return &clone, nil
}

// MemoryCartStore is an in-process cart.Store. A single mutex makes
// AddQuantity atomic; items are joined against the catalog on read.
type MemoryCartStore struct {
	mu      sync.Mutex
	catalog product.Catalog
	lines   map[string][]cart.Line // owner key -> lines in insertion order
	nextID  int64
}

func NewMemoryCartStore(catalog product.Catalog) *MemoryCartStore {
	return &MemoryCartStore{
		catalog: catalog,
		lines:   make(map[string][]cart.Line),
	}
}

func (s *MemoryCartStore) Items(ctx context.Context, ownerKey string) ([]cart.Item, error) {
	s.mu.Lock()
	lines := append([]cart.Line(nil), s.lines[ownerKey]...)
	s.mu.Unlock()

	items := make([]cart.Item, 0, len(lines))
	for _, l := range lines {
		p, err := s.catalog.Get(ctx, l.ProductID)
		if err != nil {
			// inner join semantics: lines whose product vanished are skipped
			continue
		}
		items = append(items, cart.Item{
			Line:    l,
			Name:    p.Name,
			Price:   p.Price,
			Image:   p.Image,
			InStock: p.InStock,
		})
	}
	return items, nil
}

func (s *MemoryCartStore) AddQuantity(ctx context.Context, ownerKey string, productID int64, quantity int) (cart.Line, error) {
	if _, err := s.catalog.Get(ctx, productID); err != nil {
		return cart.Line{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.lines[ownerKey]
	for i := range lines {
		if lines[i].ProductID == productID {
			if lines[i].Quantity > cart.MaxQuantity-quantity {
				return cart.Line{}, cart.ErrQuantityTooLarge
			}
			lines[i].Quantity += quantity
			return lines[i], nil
		}
	}

	s.nextID++
	l := cart.Line{
		ID:        s.nextID,
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   time.Now().UTC(),
	}
	s.lines[ownerKey] = append(lines, l)
	return l, nil
}

func (s *MemoryCartStore) SetQuantity(ctx context.Context, ownerKey string, lineID int64, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.lines[ownerKey]
	for i := range lines {
		if lines[i].ID == lineID {
			lines[i].Quantity = quantity
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryCartStore) DeleteLine(ctx context.Context, ownerKey string, lineID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.lines[ownerKey]
	for i := range lines {
		if lines[i].ID == lineID {
			s.lines[ownerKey] = append(lines[:i:i], lines[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryCartStore) DeleteAll(ctx context.Context, ownerKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.lines[ownerKey]))
	delete(s.lines, ownerKey)
	return n, nil
}

func (s *MemoryCartStore) Count(ctx context.Context, ownerKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines[ownerKey]), nil
}

// MemoryUserStore is an in-process user.Store.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byEmail map[string]*user.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{byEmail: make(map[string]*user.User)}
}

func (s *MemoryUserStore) Create(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return user.ErrEmailTaken
	}
	clone := *u
	s.byEmail[u.Email] = &clone
	return nil
}

func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[email]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}
