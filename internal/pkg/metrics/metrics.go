package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "irrigation"

var (
	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_seconds",
		Help:      "Duration of one reader poll.",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2, 4},
	}, []string{"reader"})

	PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_failures_total",
		Help:      "Reader polls that were skipped because of an error.",
	}, []string{"reader"})

	PointsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_written_total",
		Help:      "Measurement points accepted by a publisher.",
	}, []string{"publisher"})

	SinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_failures_total",
		Help:      "Batches a publisher failed to write after retries.",
	}, []string{"publisher"})

	PointsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_dropped_total",
		Help:      "Points dropped because the retry buffer was full.",
	}, []string{"publisher"})

	MotePackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mote_packets_total",
		Help:      "Mote lines processed by result.",
	}, []string{"result"})

	FlowTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "flow_total_litres",
		Help:      "Volume through the main line since the last reset.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
