// Package hardware defines the narrow driver surface the controller needs
// from the I/O boards: voltage inputs, temperature inputs and digital outputs
// addressed by board serial number and channel index.
package hardware

import (
	"errors"
	"fmt"
	"time"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

var (
	// ErrAttachment is returned when a channel does not attach within its timeout.
	ErrAttachment = errors.New("device failed to attach")
	// ErrHardware is returned when a read or write fails on an attached channel.
	ErrHardware = errors.New("hardware error")
)

type Channel struct {
	Serial  int
	Channel int
}

func (c Channel) Tag() model.Tag {
	return model.Tag(fmt.Sprintf("%d//%d", c.Serial, c.Channel))
}

func (c Channel) String() string {
	return c.Tag().String()
}

type Device interface {
	Open(timeout time.Duration) error
	Close() error
}

type VoltageInput interface {
	Device
	Voltage() (float64, error)
}

type TemperatureInput interface {
	Device
	Temperature() (float64, error)
}

type DigitalOutput interface {
	Device
	State() (bool, error)
	SetState(on bool) error
}

// Board hands out channel handles. Handles are not opened.
type Board interface {
	VoltageInput(ch Channel) VoltageInput
	TemperatureInput(ch Channel) TemperatureInput
	DigitalOutput(ch Channel) DigitalOutput
}

// OpenAll opens every device, stopping at the first one that fails to attach.
func OpenAll(timeout time.Duration, devices ...Device) error {
	for _, d := range devices {
		if err := d.Open(timeout); err != nil {
			if errors.Is(err, ErrAttachment) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrAttachment, err)
		}
	}
	return nil
}
