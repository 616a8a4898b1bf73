package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/irrigation-controller/internal/pkg/actuator"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

type valves interface {
	Start(valve actuator.Valve, duration time.Duration) error
	Wait(ctx context.Context, valve actuator.Valve) error
	Stop() error
	ValveTags(valve actuator.Valve) (model.Tags, error)
}

type flowMeter interface {
	Volume() float64
	ResetTotal()
}

type sink interface {
	WriteBatch(ctx context.Context, points []model.Point) error
}

type logic struct {
	valves   valves
	flow     flowMeter
	sink     sink
	duration time.Duration
	logger   *zap.Logger
}

func NewLogicSvc(v valves, flow flowMeter, s sink, duration time.Duration) *logic {
	return &logic{
		valves:   v,
		flow:     flow,
		sink:     s,
		duration: duration,
		logger:   zap.L(),
	}
}

// IrrigationCycle waters through every valve in turn for the configured
// duration and records the volume each one delivered. A valve that already
// has a timed run is skipped.
func (l *logic) IrrigationCycle(ctx context.Context) error {
	all := lo.Map(lo.Range(actuator.NumValves), func(i int, _ int) actuator.Valve {
		return actuator.Valve(i)
	})

	points := make([]model.Point, 0, len(all))
	for _, valve := range all {
		tags, err := l.valves.ValveTags(valve)
		if err != nil {
			return err
		}

		l.flow.ResetTotal()
		start := time.Now()
		if err := l.valves.Start(valve, l.duration); err != nil {
			if errors.Is(err, actuator.ErrValveBusy) {
				l.logger.Warn("skipping busy valve", zap.Stringer("valve", valve))
				continue
			}
			return err
		}
		if err := l.valves.Wait(ctx, valve); err != nil {
			if stopErr := l.valves.Stop(); stopErr != nil {
				l.logger.Error("failed to stop actuators", zap.Error(stopErr))
			}
			return err
		}

		volume := l.flow.Volume()
		elapsed := time.Since(start)
		l.logger.Info("valve watered",
			zap.Stringer("valve", valve),
			zap.Float64("volume", volume),
			zap.Duration("duration", elapsed),
		)
		points = append(points, model.NewPoint(model.Irrigation.String(), tags.ID, tags.Name, model.Fields{
			"volume":           volume,
			"duration_seconds": elapsed.Seconds(),
		}))
	}

	if len(points) == 0 {
		return nil
	}
	if err := l.sink.WriteBatch(ctx, points); err != nil {
		return fmt.Errorf("failed to record irrigation cycle: %w", err)
	}
	return nil
}
