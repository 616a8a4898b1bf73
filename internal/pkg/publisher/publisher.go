package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/anicoll/irrigation-controller/internal/pkg/metrics"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

var (
	errAlreadyRegistered = errors.New("publisher already registered")
	// ErrSink is returned when at least one publisher failed to take a batch.
	ErrSink = errors.New("telemetry sink write failed")
)

const (
	DefaultBufferSize     = 1000
	DefaultMaxElapsedTime = 10 * time.Second
)

type publisher interface {
	// Write stores or forwards one batch of points.
	Write(ctx context.Context, points []model.Point) error
	RegisterDevice(ctx context.Context, tags model.Tags, field string) error
}

type entry struct {
	name string
	p    publisher
	// mu serialises writes to one publisher.
	mu      sync.Mutex
	pending []model.Point
}

// Publisher fans batches out to every registered publisher. Failed batches are
// retried with exponential backoff and then kept in a bounded buffer that is
// flushed ahead of the next batch.
type Publisher struct {
	mu             sync.RWMutex
	entries        []*entry
	sensors        sync.Map
	bufferSize     int
	maxElapsedTime time.Duration
	logger         *zap.Logger
}

type Option func(*Publisher)

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithMaxElapsedTime(d time.Duration) Option {
	return func(p *Publisher) {
		p.maxElapsedTime = d
	}
}

func New(opts ...Option) *Publisher {
	p := &Publisher{
		bufferSize:     DefaultBufferSize,
		maxElapsedTime: DefaultMaxElapsedTime,
		logger:         zap.L(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Publisher) RegisterPublisher(name string, pub publisher) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.name == name {
			return errAlreadyRegistered
		}
	}
	p.entries = append(p.entries, &entry{name: name, p: pub})
	return nil
}

func (p *Publisher) Publishers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.name
	}
	return names
}

// WriteBatch implements the telemetry sink.
func (p *Publisher) WriteBatch(ctx context.Context, points []model.Point) error {
	if len(points) == 0 {
		return nil
	}
	p.registerNew(ctx, points)

	p.mu.RLock()
	entries := append([]*entry(nil), p.entries...)
	p.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if err := p.write(ctx, e, points); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrSink, errors.Join(errs...))
	}
	return nil
}

func (p *Publisher) write(ctx context.Context, e *entry, points []model.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := append(e.pending, points...)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = p.maxElapsedTime
	err := backoff.Retry(func() error {
		return e.p.Write(ctx, batch)
	}, backoff.WithContext(b, ctx))
	if err == nil {
		e.pending = nil
		metrics.PointsWritten.WithLabelValues(e.name).Add(float64(len(batch)))
		p.logger.Debug("published points", zap.Int("count", len(batch)), zap.String("publisher", e.name))
		return nil
	}

	metrics.SinkFailures.WithLabelValues(e.name).Inc()
	if over := len(batch) - p.bufferSize; over > 0 {
		metrics.PointsDropped.WithLabelValues(e.name).Add(float64(over))
		p.logger.Warn("retry buffer full, dropping oldest points", zap.Int("dropped", over), zap.String("publisher", e.name))
		batch = batch[over:]
	}
	e.pending = append([]model.Point(nil), batch...)
	p.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", e.name), zap.Int("buffered", len(e.pending)))
	return err
}

// Pending reports how many points wait for a retry on the named publisher.
func (p *Publisher) Pending(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if e.name == name {
			e.mu.Lock()
			defer e.mu.Unlock()
			return len(e.pending)
		}
	}
	return 0
}

// registerNew announces every (tag, field) pair until all publishers have
// accepted it. A failed registration is attempted again with the next batch.
func (p *Publisher) registerNew(ctx context.Context, points []model.Point) {
	for _, pt := range points {
		for field := range pt.Fields {
			key := fmt.Sprintf("%s_%s", pt.Tags.ID, field)
			if _, loaded := p.sensors.LoadOrStore(key, struct{}{}); loaded {
				continue
			}
			if err := p.RegisterDevice(ctx, pt.Tags, field); err != nil {
				p.sensors.Delete(key)
				continue
			}
			p.logger.Info("configured sensor", zap.Stringer("device", pt.Tags.ID), zap.String("name", pt.Tags.Name), zap.String("sensor", field))
		}
	}
}

// RegisterDevice registers the sensor with every publisher. The returned error
// joins the failures of individual publishers.
func (p *Publisher) RegisterDevice(ctx context.Context, tags model.Tags, field string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var errs []error
	for _, e := range p.entries {
		if err := e.p.RegisterDevice(ctx, tags, field); err != nil {
			p.logger.Error("failed to register device", zap.Error(err), zap.String("publisher", e.name))
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}
		p.logger.Debug("registered device", zap.Stringer("device", tags.ID), zap.String("publisher", e.name))
	}
	return errors.Join(errs...)
}
