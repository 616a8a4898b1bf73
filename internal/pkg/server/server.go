package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/anicoll/irrigation-controller/internal/pkg/actuator"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

var errNoStore = errors.New("no point store configured")

type stateReader interface {
	Snapshot() []map[string]float64
}

type actuators interface {
	Stop() error
	Start(valve actuator.Valve, duration time.Duration) error
}

type flowMeter interface {
	Total() float64
	Volume() float64
	ResetTotal()
}

type pointStore interface {
	GetPoints(ctx context.Context, tag, field string, from, to *time.Time) (model.StoredPoints, error)
	GetLatestPoints(ctx context.Context) (model.StoredPoints, error)
}

type server struct {
	state     stateReader
	actuators actuators
	flow      flowMeter
	store     pointStore
	metrics   http.Handler
	live      http.Handler
	logger    *zap.Logger
}

type Option func(*server)

// WithStore enables the history endpoints.
func WithStore(store pointStore) Option {
	return func(s *server) {
		s.store = store
	}
}

func WithMetrics(h http.Handler) Option {
	return func(s *server) {
		s.metrics = h
	}
}

// WithLive serves the websocket stream of published points on /ws.
func WithLive(h http.Handler) Option {
	return func(s *server) {
		s.live = h
	}
}

func New(state stateReader, act actuators, flow flowMeter, opts ...Option) *server {
	s := &server{
		state:     state,
		actuators: act,
		flow:      flow,
		logger:    zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes the API. Requests that drive actuators or reset the flow
// total pass through the auth middleware.
func (s *server) Handler(tokenHash string) http.Handler {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)

	r.HandleFunc("/state", s.GetState).Methods(http.MethodGet)
	r.HandleFunc("/flow/total", s.GetFlowTotal).Methods(http.MethodGet)
	r.HandleFunc("/points", s.GetPoints).Methods(http.MethodGet)
	r.HandleFunc("/points/latest", s.GetLatestPoints).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	if s.live != nil {
		r.Handle("/ws", s.live).Methods(http.MethodGet)
	}

	protected := r.NewRoute().Subrouter()
	protected.Use(AuthMiddleware(tokenHash))
	protected.HandleFunc("/actuators/stop", s.PostStop).Methods(http.MethodPost)
	protected.HandleFunc("/actuators/valves/{valve}/start", s.PostStartValve).Methods(http.MethodPost)
	protected.HandleFunc("/flow/reset", s.PostFlowReset).Methods(http.MethodPost)
	return r
}

type flowTotalResponse struct {
	Total  float64 `json:"total"`
	Volume float64 `json:"volume"`
}

type stateResponse struct {
	Partitions []map[string]float64 `json:"partitions"`
}

func (s *server) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, stateResponse{Partitions: s.state.Snapshot()})
}

func (s *server) GetFlowTotal(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, flowTotalResponse{Total: s.flow.Total(), Volume: s.flow.Volume()})
}

func (s *server) PostFlowReset(w http.ResponseWriter, _ *http.Request) {
	s.flow.ResetTotal()
	s.logger.Info("flow total reset")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
}

func (s *server) PostStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.actuators.Stop(); err != nil {
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("actuators stopped")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
}

func (s *server) PostStartValve(w http.ResponseWriter, r *http.Request) {
	valve, err := actuator.ParseValve(mux.Vars(r)["valve"])
	if err != nil {
		handleError(w, http.StatusNotFound, err)
		return
	}
	// no duration leaves the valve open until stopped
	var duration time.Duration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		duration, err = time.ParseDuration(raw)
		if err != nil || duration < 0 {
			handleError(w, http.StatusBadRequest, fmt.Errorf("invalid duration %q", raw))
			return
		}
	}

	if err := s.actuators.Start(valve, duration); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, actuator.ErrValveBusy) {
			status = http.StatusConflict
		}
		handleError(w, status, err)
		return
	}
	s.logger.Info("valve started", zap.Stringer("valve", valve), zap.Duration("duration", duration))
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("success"))
}

func (s *server) GetPoints(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		handleError(w, http.StatusServiceUnavailable, errNoStore)
		return
	}
	q := r.URL.Query()
	tag, field := q.Get("tag"), q.Get("field")
	if tag == "" || field == "" {
		handleError(w, http.StatusBadRequest, errors.New("tag and field are required"))
		return
	}
	from, err := parseTime(q.Get("from"))
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}

	points, err := s.store.GetPoints(r.Context(), tag, field, from, to)
	if err != nil {
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, points)
}

func (s *server) GetLatestPoints(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		handleError(w, http.StatusServiceUnavailable, errNoStore)
		return
	}
	points, err := s.store.GetLatestPoints(r.Context())
	if err != nil {
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, points)
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", v, err)
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func handleError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}
