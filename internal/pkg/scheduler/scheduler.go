// Package scheduler drives the polled readers on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/irrigation-controller/internal/pkg/metrics"
	"github.com/anicoll/irrigation-controller/internal/pkg/sensor"
)

var errReaderTimeout = errors.New("reader timed out")

const (
	DefaultInterval      = 5 * time.Second
	DefaultReaderTimeout = 4 * time.Second
)

type Config struct {
	Interval      time.Duration
	ReaderTimeout time.Duration
}

type slot struct {
	reader sensor.Reader
	// busy is set while a poll of reader is still running, including one
	// abandoned after its timeout.
	busy atomic.Bool
}

// Poller runs every reader in order, once per interval, on one goroutine.
type Poller struct {
	cfg    Config
	slots  []*slot
	sink   sensor.Sink
	state  sensor.State
	logger *zap.Logger
}

func New(cfg Config, sink sensor.Sink, state sensor.State, readers ...sensor.Reader) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ReaderTimeout <= 0 {
		cfg.ReaderTimeout = DefaultReaderTimeout
	}
	slots := make([]*slot, len(readers))
	for i, r := range readers {
		slots[i] = &slot{reader: r}
	}
	return &Poller{
		cfg:    cfg,
		slots:  slots,
		sink:   sink,
		state:  state,
		logger: zap.L(),
	}
}

// Run polls until ctx is done. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce runs each reader once. A failing reader is logged and skipped.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, s := range p.slots {
		if ctx.Err() != nil {
			return
		}
		name := s.reader.Name()
		start := time.Now()
		err := p.poll(ctx, s)
		metrics.PollDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PollFailures.WithLabelValues(name).Inc()
			p.logger.Warn("poll failed", zap.String("reader", name), zap.Error(err))
		}
	}
}

func (p *Poller) poll(ctx context.Context, s *slot) error {
	if !s.busy.CompareAndSwap(false, true) {
		return errors.New("previous poll still running")
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ReaderTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer s.busy.Store(false)
		done <- s.reader.Run(ctx, p.sink, p.state)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errReaderTimeout
		}
		return ctx.Err()
	}
}
