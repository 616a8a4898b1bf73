package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(PollFailures.WithLabelValues("test"))
	PollFailures.WithLabelValues("test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PollFailures.WithLabelValues("test")))
}

func TestHandler(t *testing.T) {
	MotePackets.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "irrigation_mote_packets_total")
}
