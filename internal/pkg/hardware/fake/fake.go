// Package fake implements in-memory hardware used for simulation runs and tests.
package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
)

var _ hardware.Board = (*Board)(nil)

// Board keeps every channel's value in memory. Values can be set and failures
// injected per channel.
type Board struct {
	mu           sync.Mutex
	voltages     map[hardware.Channel]float64
	temperatures map[hardware.Channel]float64
	outputs      map[hardware.Channel]bool
	failing      map[hardware.Channel]error
	unattached   map[hardware.Channel]bool
	writes       []Write
}

// Write records one SetState call.
type Write struct {
	Channel hardware.Channel
	On      bool
}

func NewBoard() *Board {
	return &Board{
		voltages:     make(map[hardware.Channel]float64),
		temperatures: make(map[hardware.Channel]float64),
		outputs:      make(map[hardware.Channel]bool),
		failing:      make(map[hardware.Channel]error),
		unattached:   make(map[hardware.Channel]bool),
	}
}

func (b *Board) SetVoltage(ch hardware.Channel, v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voltages[ch] = v
}

func (b *Board) SetTemperature(ch hardware.Channel, v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.temperatures[ch] = v
}

// Fail makes every subsequent read or write on ch return err. A nil err clears it.
func (b *Board) Fail(ch hardware.Channel, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failing, ch)
		return
	}
	b.failing[ch] = err
}

// Detach makes Open fail for ch.
func (b *Board) Detach(ch hardware.Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unattached[ch] = true
}

func (b *Board) Output(ch hardware.Channel) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs[ch]
}

func (b *Board) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Write(nil), b.writes...)
}

func (b *Board) ResetWrites() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = nil
}

func (b *Board) VoltageInput(ch hardware.Channel) hardware.VoltageInput {
	return &voltageInput{channel{board: b, ch: ch}}
}

func (b *Board) TemperatureInput(ch hardware.Channel) hardware.TemperatureInput {
	return &temperatureInput{channel{board: b, ch: ch}}
}

func (b *Board) DigitalOutput(ch hardware.Channel) hardware.DigitalOutput {
	return &digitalOutput{channel{board: b, ch: ch}}
}

type channel struct {
	board  *Board
	ch     hardware.Channel
	opened bool
}

func (c *channel) Open(timeout time.Duration) error {
	c.board.mu.Lock()
	defer c.board.mu.Unlock()
	if c.board.unattached[c.ch] {
		return fmt.Errorf("%w: %s after %s", hardware.ErrAttachment, c.ch, timeout)
	}
	c.opened = true
	return nil
}

func (c *channel) Close() error {
	c.opened = false
	return nil
}

// check must be called with the board lock held.
func (c *channel) check() error {
	if !c.opened {
		return fmt.Errorf("%w: %s not attached", hardware.ErrHardware, c.ch)
	}
	if err := c.board.failing[c.ch]; err != nil {
		return fmt.Errorf("%w: %s: %w", hardware.ErrHardware, c.ch, err)
	}
	return nil
}

type voltageInput struct{ channel }

func (v *voltageInput) Voltage() (float64, error) {
	v.board.mu.Lock()
	defer v.board.mu.Unlock()
	if err := v.check(); err != nil {
		return 0, err
	}
	return v.board.voltages[v.ch], nil
}

type temperatureInput struct{ channel }

func (t *temperatureInput) Temperature() (float64, error) {
	t.board.mu.Lock()
	defer t.board.mu.Unlock()
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.board.temperatures[t.ch], nil
}

type digitalOutput struct{ channel }

func (d *digitalOutput) State() (bool, error) {
	d.board.mu.Lock()
	defer d.board.mu.Unlock()
	if err := d.check(); err != nil {
		return false, err
	}
	return d.board.outputs[d.ch], nil
}

func (d *digitalOutput) SetState(on bool) error {
	d.board.mu.Lock()
	defer d.board.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	d.board.outputs[d.ch] = on
	d.board.writes = append(d.board.writes, Write{Channel: d.ch, On: on})
	return nil
}
