package cmd

import (
	"context"
	"io"
	"time"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

// Backend is a telemetry publisher registered with the fan-out sink.
type Backend interface {
	Write(ctx context.Context, points []model.Point) error
	RegisterDevice(ctx context.Context, tags model.Tags, field string) error
}

// Store is the time-series backend that also serves history and retention.
type Store interface {
	Backend
	GetPoints(ctx context.Context, tag, field string, from, to *time.Time) (model.StoredPoints, error)
	GetLatestPoints(ctx context.Context) (model.StoredPoints, error)
	Cleanup(ctx context.Context, retention time.Duration) error
}

// MoteSource is a running serialdump process.
type MoteSource interface {
	Stdout() io.Reader
	Stop() error
}
