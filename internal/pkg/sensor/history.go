package sensor

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity holds one day of samples at a 5s poll interval.
const DefaultHistoryCapacity = 17280

type FlowSample struct {
	Rate float64
	Time time.Time
}

// FlowHistory is a bounded ring of flow samples. Samples pushed out of the
// ring are folded into a running integral so Total covers everything since
// the last Reset.
type FlowHistory struct {
	mu        sync.Mutex
	buf       []FlowSample
	start     int
	size      int
	compacted float64
}

func NewFlowHistory(capacity int) *FlowHistory {
	if capacity < 2 {
		capacity = 2
	}
	return &FlowHistory{buf: make([]FlowSample, capacity)}
}

func trapezoid(a, b FlowSample) float64 {
	return (a.Rate + b.Rate) / 2 * b.Time.Sub(a.Time).Seconds()
}

func (h *FlowHistory) at(i int) FlowSample {
	return h.buf[(h.start+i)%len(h.buf)]
}

func (h *FlowHistory) Append(s FlowSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.size == len(h.buf) {
		h.compacted += trapezoid(h.at(0), h.at(1))
		h.start = (h.start + 1) % len(h.buf)
		h.size--
	}
	h.buf[(h.start+h.size)%len(h.buf)] = s
	h.size++
}

// Total integrates the samples with the trapezoidal rule. Time is in seconds.
func (h *FlowHistory) Total() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.size < 2 {
		return h.compacted
	}
	total := h.compacted
	for i := 1; i < h.size; i++ {
		total += trapezoid(h.at(i-1), h.at(i))
	}
	return total
}

func (h *FlowHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

func (h *FlowHistory) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = 0
	h.size = 0
	h.compacted = 0
}
