package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/youngleee/thesis/internal/domain/owner"
	"github.com/youngleee/thesis/internal/domain/product"
	"github.com/youngleee/thesis/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/youngleee/thesis/internal/domain/cart"

// Service is the only writer of cart lines. Every mutation for an owner runs
// under that owner's lock, so reads that follow a write inside the same call
// observe it and notifications for one owner are published in commit order.
type Service struct {
	store    Store
	catalog  product.Catalog
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	locks sync.Map // owner key -> *sync.Mutex
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, catalog product.Catalog, opts ...Option) *Service {
	s := &Service{
		store:    store,
		catalog:  catalog,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "cart"))
	return s
}

// lockOwner serializes mutations for one owner. Owners never share a mutex.
func (s *Service) lockOwner(key string) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) start(ctx context.Context, op string, o owner.Owner, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("cart.owner", o.Key()))
	return s.tracer.Start(ctx, "cart."+op, trace.WithAttributes(attrs...))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.CartOperation(op, outcome)
	span.End()
}

func (s *Service) load(ctx context.Context, o owner.Owner) (*Cart, error) {
	items, err := s.store.Items(ctx, o.Key())
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", o.Key(), err)
	}
	return newCart(o.Key(), items), nil
}

// GetCart returns the owner's lines joined with current product data. An
// owner without lines gets an empty cart.
func (s *Service) GetCart(ctx context.Context, o owner.Owner) (c *Cart, err error) {
	ctx, span := s.start(ctx, "get", o)
	defer func() { s.finish(span, "get", err) }()

	return s.load(ctx, o)
}

// AddItem adds quantity units of productID, merging into an existing line.
func (s *Service) AddItem(ctx context.Context, o owner.Owner, productID int64, quantity int) (c *Cart, err error) {
	ctx, span := s.start(ctx, "add", o,
		attribute.Int64("product.id", productID),
		attribute.Int("cart.quantity", quantity),
	)
	defer func() { s.finish(span, "add", err) }()

	if productID <= 0 {
		return nil, ErrInvalidProduct
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if quantity > MaxQuantity {
		return nil, ErrQuantityTooLarge
	}
	if _, err := s.catalog.Get(ctx, productID); err != nil {
		if errors.Is(err, product.ErrProductNotFound) {
			return nil, ErrUnknownProduct
		}
		return nil, fmt.Errorf("look up product %d: %w", productID, err)
	}

	unlock := s.lockOwner(o.Key())
	defer unlock()

	line, err := s.store.AddQuantity(ctx, o.Key(), productID, quantity)
	if err != nil {
		if errors.Is(err, product.ErrProductNotFound) {
			return nil, ErrUnknownProduct
		}
		return nil, fmt.Errorf("add product %d: %w", productID, err)
	}

	c, err = s.load(ctx, o)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("cart_item_added",
		zap.String("owner", o.Key()),
		zap.Int64("line_id", line.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", line.Quantity),
	)
	s.notifier.CartChanged(ctx, c)
	return c, nil
}

// UpdateItem sets the quantity of one of the owner's lines. A quantity of
// zero or less removes the line.
func (s *Service) UpdateItem(ctx context.Context, o owner.Owner, lineID int64, quantity int) (c *Cart, err error) {
	ctx, span := s.start(ctx, "update", o,
		attribute.Int64("cart.line_id", lineID),
		attribute.Int("cart.quantity", quantity),
	)
	defer func() { s.finish(span, "update", err) }()

	if lineID <= 0 {
		return nil, ErrLineNotFound
	}
	if quantity > MaxQuantity {
		return nil, ErrQuantityTooLarge
	}

	unlock := s.lockOwner(o.Key())
	defer unlock()

	var found bool
	if quantity <= 0 {
		found, err = s.store.DeleteLine(ctx, o.Key(), lineID)
	} else {
		found, err = s.store.SetQuantity(ctx, o.Key(), lineID, quantity)
	}
	if err != nil {
		return nil, fmt.Errorf("update line %d: %w", lineID, err)
	}
	if !found {
		return nil, ErrLineNotFound
	}

	c, err = s.load(ctx, o)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("cart_item_updated",
		zap.String("owner", o.Key()),
		zap.Int64("line_id", lineID),
		zap.Int("quantity", quantity),
	)
	s.notifier.CartChanged(ctx, c)
	return c, nil
}

// RemoveItem deletes one of the owner's lines. Removing an absent line is not
// an error: the unchanged cart is returned with removed set to false.
func (s *Service) RemoveItem(ctx context.Context, o owner.Owner, lineID int64) (c *Cart, removed bool, err error) {
	ctx, span := s.start(ctx, "remove", o, attribute.Int64("cart.line_id", lineID))
	defer func() { s.finish(span, "remove", err) }()

	unlock := s.lockOwner(o.Key())
	defer unlock()

	if lineID > 0 {
		removed, err = s.store.DeleteLine(ctx, o.Key(), lineID)
		if err != nil {
			return nil, false, fmt.Errorf("remove line %d: %w", lineID, err)
		}
	}

	c, err = s.load(ctx, o)
	if err != nil {
		return nil, false, err
	}

	if removed {
		s.logger.Debug("cart_item_removed",
			zap.String("owner", o.Key()),
			zap.Int64("line_id", lineID),
		)
		s.notifier.CartChanged(ctx, c)
	}
	return c, removed, nil
}

// ClearCart deletes every line the owner has.
func (s *Service) ClearCart(ctx context.Context, o owner.Owner) (err error) {
	ctx, span := s.start(ctx, "clear", o)
	defer func() { s.finish(span, "clear", err) }()

	unlock := s.lockOwner(o.Key())
	defer unlock()

	n, err := s.store.DeleteAll(ctx, o.Key())
	if err != nil {
		return fmt.Errorf("clear cart %s: %w", o.Key(), err)
	}

	s.logger.Debug("cart_cleared",
		zap.String("owner", o.Key()),
		zap.Int64("lines", n),
	)
	s.notifier.CartChanged(ctx, newCart(o.Key(), nil))
	return nil
}

// ItemCount returns the number of lines in the owner's cart.
func (s *Service) ItemCount(ctx context.Context, o owner.Owner) (int, error) {
	n, err := s.store.Count(ctx, o.Key())
	if err != nil {
		return 0, fmt.Errorf("count cart %s: %w", o.Key(), err)
	}
	return n, nil
}
