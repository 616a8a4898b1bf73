package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
	"github.com/anicoll/irrigation-controller/internal/pkg/sensor"
	"github.com/anicoll/irrigation-controller/internal/pkg/state"
)

type MockReader struct {
	name    string
	RunFunc func(ctx context.Context) error
	calls   *[]string
	mu      *sync.Mutex
}

func (m *MockReader) Name() string { return m.name }

func (m *MockReader) Run(ctx context.Context, _ sensor.Sink, _ sensor.State) error {
	m.mu.Lock()
	*m.calls = append(*m.calls, m.name)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

type nopSink struct{}

func (nopSink) WriteBatch(context.Context, []model.Point) error { return nil }

func newReaders(names ...string) ([]sensor.Reader, *[]string, *sync.Mutex) {
	calls := &[]string{}
	mu := &sync.Mutex{}
	readers := make([]sensor.Reader, len(names))
	for i, n := range names {
		readers[i] = &MockReader{name: n, calls: calls, mu: mu}
	}
	return readers, calls, mu
}

func newTestPoller(t *testing.T, cfg Config, readers ...sensor.Reader) *Poller {
	t.Helper()
	p := New(cfg, nopSink{}, state.New(nil), readers...)
	p.logger = zaptest.NewLogger(t)
	return p
}

func TestPollOnce_FixedOrder(t *testing.T) {
	readers, calls, _ := newReaders("flow", "moisture", "actuators", "thermocouple")
	p := newTestPoller(t, Config{}, readers...)

	p.PollOnce(context.Background())
	assert.Equal(t, []string{"flow", "moisture", "actuators", "thermocouple"}, *calls)
}

func TestPollOnce_FailureDoesNotStopOthers(t *testing.T) {
	readers, calls, _ := newReaders("flow", "moisture", "thermocouple")
	readers[1].(*MockReader).RunFunc = func(context.Context) error {
		return errors.New("device unattached")
	}
	p := newTestPoller(t, Config{}, readers...)

	p.PollOnce(context.Background())
	assert.Equal(t, []string{"flow", "moisture", "thermocouple"}, *calls)
}

func TestPollOnce_SlowReaderTimesOut(t *testing.T) {
	readers, calls, mu := newReaders("slow", "fast")
	release := make(chan struct{})
	readers[0].(*MockReader).RunFunc = func(context.Context) error {
		<-release
		return nil
	}
	p := newTestPoller(t, Config{ReaderTimeout: 20 * time.Millisecond}, readers...)

	start := time.Now()
	p.PollOnce(context.Background())
	assert.Less(t, time.Since(start), time.Second)

	// the abandoned poll is still running, so the slow reader is skipped
	p.PollOnce(context.Background())
	mu.Lock()
	assert.Equal(t, []string{"slow", "fast", "fast"}, *calls)
	mu.Unlock()

	close(release)
	assert.Eventually(t, func() bool {
		return !p.slots[0].busy.Load()
	}, time.Second, 5*time.Millisecond)
}

func TestRun_StopsOnCancel(t *testing.T) {
	readers, calls, mu := newReaders("flow")
	p := newTestPoller(t, Config{Interval: 10 * time.Millisecond}, readers...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*calls) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
