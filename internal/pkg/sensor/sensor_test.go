package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
	"github.com/anicoll/irrigation-controller/internal/pkg/hardware/fake"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
	"github.com/anicoll/irrigation-controller/internal/pkg/registry"
	"github.com/anicoll/irrigation-controller/internal/pkg/state"
)

type MockSink struct {
	mu      sync.Mutex
	batches [][]model.Point
	err     error
}

func (m *MockSink) WriteBatch(_ context.Context, points []model.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, points)
	return nil
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 1.0, Normalize(4.30, 4.30))
	assert.InDelta(t, 0.5, Normalize(2.15, 4.30), 1e-12)
	assert.Greater(t, Normalize(5.0, 4.30), 1.0, "values above vmax are not clamped")
}

func TestFlowRate(t *testing.T) {
	assert.InDelta(t, 28.89, FlowRate(9.0), 1e-9)
	assert.InDelta(t, 0, FlowRate(0.9), 1e-9)
}

func TestMoisture_Run(t *testing.T) {
	board := fake.NewBoard()
	for i, p := range DefaultMoistureProbes {
		board.SetVoltage(p.Channel, 4.30-float64(i))
	}
	m, err := NewMoisture(board, registry.Default(), DefaultMoistureProbes)
	require.NoError(t, err)

	sink := &MockSink{}
	st := state.New(nil)
	require.NoError(t, m.Run(context.Background(), sink, st))

	require.Len(t, sink.batches, 1, "all channels in one sink call")
	points := sink.batches[0]
	require.Len(t, points, 3)
	assert.Equal(t, "soil_moisture", points[0].Measurement)
	assert.Equal(t, model.Tag("107839//5"), points[0].Tags.ID)
	assert.Equal(t, "pot1_1", points[0].Tags.Name)
	assert.Equal(t, 1.0, points[0].Fields["normalized_voltage"])
	assert.Equal(t, 4.30, points[0].Fields["voltage"])
	assert.Equal(t, "pot2_1", points[2].Tags.Name)

	v, ok := st.Get(0, "voltage")
	require.True(t, ok)
	assert.InDelta(t, 2.30, v, 1e-9, "last channel wins in the shared partition")
}

func TestMoisture_HardwareErrorAbortsPoll(t *testing.T) {
	board := fake.NewBoard()
	m, err := NewMoisture(board, registry.Default(), DefaultMoistureProbes)
	require.NoError(t, err)
	board.Fail(DefaultMoistureProbes[1].Channel, errors.New("unplugged"))

	sink := &MockSink{}
	st := state.New(nil)
	err = m.Run(context.Background(), sink, st)
	assert.ErrorIs(t, err, hardware.ErrHardware)
	assert.Empty(t, sink.batches)
	assert.Empty(t, st.Snapshot()[0])
}

func TestNewMoisture_AttachmentError(t *testing.T) {
	board := fake.NewBoard()
	board.Detach(DefaultMoistureProbes[2].Channel)

	_, err := NewMoisture(board, registry.Default(), DefaultMoistureProbes)
	assert.ErrorIs(t, err, hardware.ErrAttachment)
}

func TestNewThermocouple_UnknownTag(t *testing.T) {
	_, err := NewThermocouple(fake.NewBoard(), registry.Default(), []hardware.Channel{{Serial: 1, Channel: 1}})
	assert.ErrorIs(t, err, registry.ErrUnknownTag)
}

func TestThermocouple_Run(t *testing.T) {
	board := fake.NewBoard()
	for i, ch := range DefaultThermocoupleChannels {
		board.SetTemperature(ch, 20+float64(i))
	}
	tc, err := NewThermocouple(board, registry.Default(), DefaultThermocoupleChannels)
	require.NoError(t, err)

	sink := &MockSink{}
	require.NoError(t, tc.Run(context.Background(), sink, state.New(nil)))
	require.Len(t, sink.batches, 1)
	points := sink.batches[0]
	require.Len(t, points, 4)
	assert.Equal(t, "thermocouples", points[3].Measurement)
	assert.Equal(t, "ambiant", points[3].Tags.Name)
	assert.Equal(t, 23.0, points[3].Fields["temperature"])
}

func TestFlow_RunRecordsHistory(t *testing.T) {
	board := fake.NewBoard()
	board.SetVoltage(DefaultFlowChannel, 9.0)
	f, err := NewFlow(board, registry.Default(), DefaultFlowChannel, DefaultHistoryCapacity)
	require.NoError(t, err)

	start := time.Unix(1_700_000_000, 0)
	tick := 0
	f.now = func() time.Time {
		tick++
		return start.Add(time.Duration(tick-1) * 10 * time.Second)
	}

	sink := &MockSink{}
	st := state.New(nil)
	require.NoError(t, f.Run(context.Background(), sink, st))
	assert.Equal(t, 0.0, f.Total())
	require.NoError(t, f.Run(context.Background(), sink, st))

	require.Len(t, sink.batches, 2)
	p := sink.batches[0][0]
	assert.Equal(t, "flow", p.Measurement)
	assert.Equal(t, "main_flow", p.Tags.Name)
	assert.InDelta(t, 28.89, p.Fields["flow"], 1e-9)
	assert.Equal(t, 9.0, p.Fields["flow_raw"])

	assert.InDelta(t, 288.9, f.Total(), 1e-9)
	assert.InDelta(t, 288.9/60, f.Volume(), 1e-9)

	f.ResetTotal()
	assert.Equal(t, 0.0, f.Total())
}

func TestFlow_SinkErrorIsReturned(t *testing.T) {
	board := fake.NewBoard()
	f, err := NewFlow(board, registry.Default(), DefaultFlowChannel, 10)
	require.NoError(t, err)

	sinkErr := errors.New("db down")
	err = f.Run(context.Background(), &MockSink{err: sinkErr}, state.New(nil))
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 1, f.history.Len(), "the sample is kept even when the write fails")
}
