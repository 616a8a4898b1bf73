package fake

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
)

func TestBoard_ReadsRequireOpen(t *testing.T) {
	b := NewBoard()
	ch := hardware.Channel{Serial: 1, Channel: 2}
	b.SetVoltage(ch, 3.3)

	in := b.VoltageInput(ch)
	_, err := in.Voltage()
	assert.ErrorIs(t, err, hardware.ErrHardware)

	require.NoError(t, in.Open(time.Second))
	v, err := in.Voltage()
	require.NoError(t, err)
	assert.Equal(t, 3.3, v)
}

func TestBoard_FailAndDetach(t *testing.T) {
	b := NewBoard()
	ch := hardware.Channel{Serial: 1, Channel: 0}

	out := b.DigitalOutput(ch)
	require.NoError(t, out.Open(time.Second))
	b.Fail(ch, errors.New("brownout"))
	assert.ErrorIs(t, out.SetState(true), hardware.ErrHardware)
	b.Fail(ch, nil)
	require.NoError(t, out.SetState(true))
	assert.True(t, b.Output(ch))
	assert.Equal(t, []Write{{Channel: ch, On: true}}, b.Writes())

	other := hardware.Channel{Serial: 9, Channel: 9}
	b.Detach(other)
	assert.ErrorIs(t, b.TemperatureInput(other).Open(time.Second), hardware.ErrAttachment)
}
