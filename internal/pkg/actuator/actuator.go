// Package actuator drives the pump and the valves of the rig.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
	"github.com/anicoll/irrigation-controller/internal/pkg/sensor"
)

var (
	ErrUnknownValve = errors.New("unknown valve")
	ErrValveBusy    = errors.New("valve already has a timed run")
)

const attachTimeout = 2 * time.Second

// Valve identifies one of the irrigation valves.
type Valve int

const (
	Valve1 Valve = iota
	Valve2
	NumValves int = iota
)

func (v Valve) Valid() bool {
	return v >= 0 && int(v) < NumValves
}

func (v Valve) String() string {
	return fmt.Sprintf("valve%d", int(v)+1)
}

// ParseValve accepts "1", "2", "valve1" or "valve2".
func ParseValve(s string) (Valve, error) {
	for v := Valve1; int(v) < NumValves; v++ {
		if s == v.String() || s == fmt.Sprintf("%d", int(v)+1) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownValve, s)
}

type Config struct {
	Pump   hardware.Channel
	Valves [NumValves]hardware.Channel
}

var DefaultConfig = Config{
	Pump: hardware.Channel{Serial: 369507, Channel: 1},
	Valves: [NumValves]hardware.Channel{
		{Serial: 369507, Channel: 2},
		{Serial: 369507, Channel: 3},
	},
}

type output struct {
	dev   hardware.DigitalOutput
	tag   model.Tag
	name  string
	field string
}

type timedRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

var _ sensor.Reader = (*Controller)(nil)

type Controller struct {
	mu     sync.Mutex
	pump   output
	valves [NumValves]output
	runs   [NumValves]*timedRun
	ctx    context.Context
	close  context.CancelFunc
	logger *zap.Logger
}

func New(board hardware.Board, registry sensor.Namer, cfg Config) (*Controller, error) {
	newOutput := func(ch hardware.Channel, field string) (output, error) {
		name, err := registry.NameOf(ch.Tag())
		if err != nil {
			return output{}, err
		}
		return output{dev: board.DigitalOutput(ch), tag: ch.Tag(), name: name, field: field}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{ctx: ctx, close: cancel, logger: zap.L()}
	var err error
	if c.pump, err = newOutput(cfg.Pump, "pump"); err != nil {
		cancel()
		return nil, err
	}
	devices := []hardware.Device{c.pump.dev}
	for i, ch := range cfg.Valves {
		if c.valves[i], err = newOutput(ch, "valve"); err != nil {
			cancel()
			return nil, err
		}
		devices = append(devices, c.valves[i].dev)
	}
	if err := hardware.OpenAll(attachTimeout, devices...); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

func set(o output, on bool) error {
	current, err := o.dev.State()
	if err != nil {
		return err
	}
	if current == on {
		return nil
	}
	return o.dev.SetState(on)
}

// Stop turns every valve and then the pump off and cancels timed runs. It is
// safe to call at any time and any number of times.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.runs {
		if r != nil {
			r.cancel()
			c.runs[i] = nil
		}
	}
	var errs []error
	for _, v := range c.valves {
		errs = append(errs, v.dev.SetState(false))
	}
	errs = append(errs, c.pump.dev.SetState(false))
	return errors.Join(errs...)
}

// Start opens valve and runs the pump. With a positive duration both are
// turned off again once the duration elapses, Stop is called or the
// controller is closed; Start itself does not block.
func (c *Controller) Start(valve Valve, duration time.Duration) error {
	if !valve.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownValve, int(valve))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if duration > 0 && c.runs[valve] != nil {
		return fmt.Errorf("%w: %s", ErrValveBusy, valve)
	}
	if err := set(c.pump, true); err != nil {
		return err
	}
	if err := set(c.valves[valve], true); err != nil {
		return err
	}
	c.logger.Info("valve opened", zap.Stringer("valve", valve), zap.Duration("duration", duration))
	if duration <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(c.ctx)
	r := &timedRun{cancel: cancel, done: make(chan struct{})}
	c.runs[valve] = r
	go c.finish(ctx, valve, r, duration)
	return nil
}

func (c *Controller) finish(ctx context.Context, valve Valve, r *timedRun, duration time.Duration) {
	defer close(r.done)
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	r.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs[valve] != r {
		// Stop already turned the outputs off.
		return
	}
	c.runs[valve] = nil
	if err := set(c.pump, false); err != nil {
		c.logger.Error("failed to stop pump", zap.Error(err))
	}
	if err := set(c.valves[valve], false); err != nil {
		c.logger.Error("failed to close valve", zap.Stringer("valve", valve), zap.Error(err))
	}
	c.logger.Info("valve closed", zap.Stringer("valve", valve))
}

// Wait blocks until the timed run of valve, if any, has finished.
func (c *Controller) Wait(ctx context.Context, valve Valve) error {
	if !valve.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownValve, int(valve))
	}
	c.mu.Lock()
	r := c.runs[valve]
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cuts every timed run short and turns everything off.
func (c *Controller) Close() error {
	c.close()
	return c.Stop()
}

func (c *Controller) Name() string {
	return "actuators"
}

func (c *Controller) Run(ctx context.Context, sink sensor.Sink, state sensor.State) error {
	return c.RecordState(ctx, sink, state)
}

// RecordState samples every output as 1/0 and reports it like a sensor.
func (c *Controller) RecordState(ctx context.Context, sink sensor.Sink, state sensor.State) error {
	outputs := append([]output{c.pump}, c.valves[:]...)
	values := make([]float64, len(outputs))
	c.mu.Lock()
	for i, o := range outputs {
		on, err := o.dev.State()
		if err != nil {
			c.mu.Unlock()
			return err
		}
		if on {
			values[i] = 1
		}
	}
	c.mu.Unlock()

	points := make([]model.Point, 0, len(outputs))
	for i, o := range outputs {
		fields := model.Fields{o.field: values[i]}
		points = append(points, model.NewPoint(model.Actuators.String(), o.tag, o.name, fields))
		state.Update(fields, &outputs[i].tag)
	}
	if err := sink.WriteBatch(ctx, points); err != nil {
		return fmt.Errorf("failed to write %d points: %w", len(points), err)
	}
	return nil
}

func (c *Controller) Tags() []model.Tag {
	tags := []model.Tag{c.pump.tag}
	for _, v := range c.valves {
		tags = append(tags, v.tag)
	}
	return tags
}

// ValveTags returns the tag and display name of valve.
func (c *Controller) ValveTags(valve Valve) (model.Tags, error) {
	if !valve.Valid() {
		return model.Tags{}, fmt.Errorf("%w: %d", ErrUnknownValve, int(valve))
	}
	v := c.valves[valve]
	return model.Tags{ID: v.tag, Name: v.name}, nil
}
