// Package sensor contains the polled readers of the rig. Each reader owns its
// hardware channels, converts raw signals to engineering units, updates the
// shared state and forwards one batch of points per poll to the sink.
package sensor

import (
	"context"
	"fmt"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

// Sink accepts batches of measurement points.
type Sink interface {
	WriteBatch(ctx context.Context, points []model.Point) error
}

// State receives the latest field values of a device.
type State interface {
	Update(fields model.Fields, tag *model.Tag)
}

// Namer resolves display names for device tags.
type Namer interface {
	NameOf(tag model.Tag) (string, error)
}

// Reader is one polled source of measurement points.
type Reader interface {
	Name() string
	Run(ctx context.Context, sink Sink, state State) error
}

func names(r Namer, tags ...model.Tag) ([]string, error) {
	out := make([]string, len(tags))
	for i, tag := range tags {
		name, err := r.NameOf(tag)
		if err != nil {
			return nil, err
		}
		out[i] = name
	}
	return out, nil
}

func write(ctx context.Context, sink Sink, points []model.Point) error {
	if err := sink.WriteBatch(ctx, points); err != nil {
		return fmt.Errorf("failed to write %d points: %w", len(points), err)
	}
	return nil
}
