package realtime

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/youngleee/thesis/internal/domain/cart"
	"github.com/youngleee/thesis/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 1024
	forwardTimeout   = 5 * time.Second
)

// Forwarder relays dispatched messages beyond this instance.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, msg Message) error
}

// Dispatcher decouples committed state changes from delivery. Publish only
// enqueues; a single goroutine delivers to the hub in queue order. Each
// forwarder has its own queue and goroutine, so a slow relay never holds up
// local delivery.
type Dispatcher struct {
	hub        *Hub
	forwarders []Forwarder
	relays     []*relay
	origin     string
	queue      chan item
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu        sync.RWMutex
	stopped   bool
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// item is one unit of work for the delivery goroutine: a broadcast, or a
// snapshot addressed to a single client.
type item struct {
	msg    Message
	target *Client
	load   SnapshotFunc
}

// SnapshotFunc builds the message sent to a single client. It runs on the
// delivery goroutine after everything queued before it.
type SnapshotFunc func(ctx context.Context) (Message, error)

type relay struct {
	forwarder Forwarder
	queue     chan Message
	done      chan struct{}
}

type DispatcherOption func(*Dispatcher)

func WithForwarders(fs ...Forwarder) DispatcherOption {
	return func(d *Dispatcher) { d.forwarders = append(d.forwarders, fs...) }
}

// WithQueueSize sets the capacity of the delivery queue and of each
// forwarder queue.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan item, n)
		}
	}
}

// WithOrigin sets the instance id stamped on outgoing messages.
func WithOrigin(origin string) DispatcherOption {
	return func(d *Dispatcher) {
		if origin != "" {
			d.origin = origin
		}
	}
}

func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(hub *Hub, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		hub:    hub,
		origin: uuid.NewString(),
		queue:  make(chan item, defaultQueueSize),
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, f := range d.forwarders {
		d.relays = append(d.relays, &relay{
			forwarder: f,
			queue:     make(chan Message, cap(d.queue)),
			done:      make(chan struct{}),
		})
	}
	d.logger = d.logger.With(zap.String("component", "dispatcher"))
	return d
}

// Hub returns the hub this dispatcher delivers to.
func (d *Dispatcher) Hub() *Hub {
	return d.hub
}

// Origin is the instance id stamped on messages published here.
func (d *Dispatcher) Origin() string {
	return d.origin
}

// Start launches the delivery and forwarding goroutines. Later calls are
// no-ops.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for _, r := range d.relays {
			go d.runRelay(r)
		}
		go d.loop()
		d.logger.Info("dispatcher_started",
			zap.Int("queue_size", cap(d.queue)),
			zap.Int("forwarders", len(d.relays)),
		)
	})
}

// Stop rejects further messages, delivers what is already queued and waits
// for the goroutines to exit or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
	})
	// a dispatcher that was never started has nothing to drain
	d.startOnce.Do(func() { close(d.done) })

	select {
	case <-d.done:
		d.logger.Info("dispatcher_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish enqueues msg without blocking. When the queue is full or the
// dispatcher is stopped the message is dropped and logged.
func (d *Dispatcher) Publish(msg Message) {
	if msg.Origin == "" {
		msg.Origin = d.origin
	}
	if !d.enqueue(item{msg: msg}) {
		d.drop(msg, d.dropReason())
	}
}

// SendSnapshot queues load for c behind every message already published, so
// a snapshot can never overwrite a newer update on that client. It reports
// false, without blocking, when the request could not be queued.
func (d *Dispatcher) SendSnapshot(c *Client, load SnapshotFunc) bool {
	if d.enqueue(item{target: c, load: load}) {
		return true
	}
	d.logger.Warn("snapshot_dropped",
		zap.String("client_id", c.ID()),
		zap.String("owner", c.Owner().Key()),
		zap.String("reason", d.dropReason()),
	)
	return false
}

func (d *Dispatcher) enqueue(it item) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return false
	}
	select {
	case d.queue <- it:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) dropReason() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return "stopped"
	}
	return "queue_full"
}

func (d *Dispatcher) drop(msg Message, reason string) {
	d.metrics.Dropped(string(msg.Kind), reason)
	d.logger.Warn("broadcast_dropped",
		zap.String("kind", string(msg.Kind)),
		zap.String("owner", msg.Owner),
		zap.String("reason", reason),
	)
}

// CartChanged publishes the owner's full cart.
func (d *Dispatcher) CartChanged(ctx context.Context, c *cart.Cart) {
	msg, err := NewCartUpdate(c, d.origin)
	if err != nil {
		d.logger.Error("broadcast_encode_failed", zap.String("owner", c.Owner), zap.Error(err))
		return
	}
	d.Publish(msg)
}

// AvailabilityChanged publishes an inventory delta to every client.
func (d *Dispatcher) AvailabilityChanged(ctx context.Context, productID int64, inStock bool) {
	msg, err := NewInventoryUpdate(productID, inStock, d.origin)
	if err != nil {
		d.logger.Error("broadcast_encode_failed", zap.Int64("product_id", productID), zap.Error(err))
		return
	}
	d.Publish(msg)
}

func (d *Dispatcher) loop() {
	for it := range d.queue {
		if it.load != nil {
			d.snapshot(it)
			continue
		}
		d.dispatch(it.msg)
	}

	for _, r := range d.relays {
		close(r.queue)
	}
	for _, r := range d.relays {
		<-r.done
	}
	close(d.done)
}

func (d *Dispatcher) dispatch(msg Message) {
	n := d.hub.Deliver(msg)
	d.logger.Debug("broadcast_delivered",
		zap.String("kind", string(msg.Kind)),
		zap.String("owner", msg.Owner),
		zap.Int("clients", n),
	)

	for _, r := range d.relays {
		select {
		case r.queue <- msg:
		default:
			d.metrics.Dropped(string(msg.Kind), "forward_queue_full")
			d.logger.Warn("forward_dropped",
				zap.String("forwarder", r.forwarder.Name()),
				zap.String("kind", string(msg.Kind)),
			)
		}
	}
}

func (d *Dispatcher) snapshot(it item) {
	if it.target.State() == StateClosed {
		return
	}

	msg, err := it.load(context.Background())
	if err != nil {
		d.logger.Error("cart_snapshot_failed",
			zap.String("client_id", it.target.ID()),
			zap.String("owner", it.target.Owner().Key()),
			zap.Error(err),
		)
		d.hub.SendTo(it.target, NewError("could not load cart"))
		return
	}
	d.hub.SendTo(it.target, msg)
}

func (d *Dispatcher) runRelay(r *relay) {
	defer close(r.done)
	for msg := range r.queue {
		d.forward(r.forwarder, msg)
	}
}

func (d *Dispatcher) forward(f Forwarder, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.ForwardFailed(f.Name())
			d.logger.Error("forwarder_panic",
				zap.String("forwarder", f.Name()),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()
	if err := f.Forward(ctx, msg); err != nil {
		d.metrics.ForwardFailed(f.Name())
		d.logger.Warn("forward_failed",
			zap.String("forwarder", f.Name()),
			zap.String("kind", string(msg.Kind)),
			zap.Error(err),
		)
	}
}
