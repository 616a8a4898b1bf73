package mote

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
	"github.com/anicoll/irrigation-controller/internal/pkg/registry"
	"github.com/anicoll/irrigation-controller/internal/pkg/state"
)

type MockSink struct {
	points []model.Point
	err    error
}

func (m *MockSink) WriteBatch(_ context.Context, points []model.Point) error {
	if m.err != nil {
		return m.err
	}
	m.points = append(m.points, points...)
	return nil
}

func newTestListener(t *testing.T) (*Listener, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewListener(registry.Default())
	l.logger = zap.New(core)
	return l, logs
}

func TestListen_SkipsBadLinesAndContinues(t *testing.T) {
	l, logs := newTestListener(t)
	input := strings.Join([]string{
		packetLine(26, 121<<8|167, 7, 10, 6460, 1000),
		"1 2 3",
		packetLine(26, 1, 1, 1, 1, 1) + " oops",
		packetLine(26, 174<<8|81, 0, 0, 4960, 30000),
	}, "\n") + "\n"

	sink := &MockSink{}
	st := state.New(nil)
	err := l.Listen(context.Background(), strings.NewReader(input), sink, st)
	require.NoError(t, err)

	require.Len(t, sink.points, 2)
	assert.Equal(t, "sky", sink.points[0].Measurement)
	assert.Equal(t, model.Tag("167.121"), sink.points[0].Tags.ID)
	assert.Equal(t, "pot1", sink.points[0].Tags.Name)
	assert.Equal(t, "pot2", sink.points[1].Tags.Name)
	assert.Equal(t, 100.0, sink.points[1].Fields["air_humidity"])

	v, ok := st.Get(0, "temperature")
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-9)

	assert.Equal(t, 1, logs.FilterMessage("failed to handle mote packet").Len())
	assert.Equal(t, 1, logs.FilterMessage("skipping partial mote packet").Len())
}

func TestListen_UnregisteredMoteUsesID(t *testing.T) {
	l, logs := newTestListener(t)
	sink := &MockSink{}
	input := packetLine(26, 0x0203, 0, 0, 0, 0) + "\n"

	require.NoError(t, l.Listen(context.Background(), strings.NewReader(input), sink, state.New(nil)))
	require.Len(t, sink.points, 1)
	assert.Equal(t, "3.2", sink.points[0].Tags.Name)
	assert.Equal(t, 1, logs.FilterMessage("unregistered mote").Len())
}

func TestListen_SinkErrorDoesNotStopLoop(t *testing.T) {
	l, logs := newTestListener(t)
	sink := &MockSink{err: errors.New("broker down")}
	input := packetLine(26, 1, 0, 0, 0, 0) + "\n" + packetLine(26, 1, 0, 0, 0, 0) + "\n"

	require.NoError(t, l.Listen(context.Background(), strings.NewReader(input), sink, state.New(nil)))
	assert.Equal(t, 2, logs.FilterMessage("failed to handle mote packet").Len())
}

func TestListen_StopsOnCancel(t *testing.T) {
	l, _ := newTestListener(t)
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Listen(ctx, r, &MockSink{}, state.New(nil))
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancellation")
	}
}

func TestListen_DropsOverlongLine(t *testing.T) {
	l, logs := newTestListener(t)
	sink := &MockSink{}
	input := strings.Repeat("9 ", 40*1024) + "\n" + packetLine(26, 121<<8|167, 7, 10, 6460, 1000) + "\n"

	require.NoError(t, l.Listen(context.Background(), strings.NewReader(input), sink, state.New(nil)))
	require.Len(t, sink.points, 1)
	assert.Equal(t, "pot1", sink.points[0].Tags.Name)
	assert.Equal(t, 1, logs.FilterMessage("dropping overlong mote line").Len())
}
