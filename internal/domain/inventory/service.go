package inventory

import (
	"context"
	"fmt"

	"github.com/youngleee/thesis/internal/domain/product"
	"github.com/youngleee/thesis/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/youngleee/thesis/internal/domain/inventory"

// Notifier receives availability changes. Implementations must not block.
type Notifier interface {
	AvailabilityChanged(ctx context.Context, productID int64, inStock bool)
}

type nopNotifier struct{}

func (nopNotifier) AvailabilityChanged(context.Context, int64, bool) {}

// Service owns product reads and the availability flag.
type Service struct {
	catalog  product.Catalog
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
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

func NewService(catalog product.Catalog, opts ...Option) *Service {
	s := &Service{
		catalog:  catalog,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "inventory"))
	return s
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.InventoryOperation(op, outcome)
	span.End()
}

// SetAvailability updates a product's in-stock flag and publishes the change.
func (s *Service) SetAvailability(ctx context.Context, productID int64, inStock bool) (p *product.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.set_availability", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Bool("product.in_stock", inStock),
	))
	defer func() { s.finish(span, "set_availability", err) }()

	if productID <= 0 {
		return nil, product.ErrInvalidID
	}

	p, err = s.catalog.SetInStock(ctx, productID, inStock)
	if err != nil {
		return nil, fmt.Errorf("set availability of product %d: %w", productID, err)
	}

	s.logger.Info("availability_changed",
		zap.Int64("product_id", productID),
		zap.Bool("in_stock", inStock),
	)
	s.notifier.AvailabilityChanged(ctx, productID, inStock)
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (p *product.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.get_product", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer func() { s.finish(span, "get_product", err) }()

	if id <= 0 {
		return nil, product.ErrInvalidID
	}
	p, err = s.catalog.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context) (ps []*product.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.list_products")
	defer func() { s.finish(span, "list_products", err) }()

	ps, err = s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return ps, nil
}
