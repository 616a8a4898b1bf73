package sensor

import (
	"context"

	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

var DefaultThermocoupleChannels = []hardware.Channel{
	{Serial: 285105, Channel: 0},
	{Serial: 285105, Channel: 1},
	{Serial: 285105, Channel: 2},
	{Serial: 285105, Channel: 4},
}

// Thermocouple reads temperatures already converted by the board.
type Thermocouple struct {
	inputs []hardware.TemperatureInput
	tags   []model.Tag
	names  []string
}

func NewThermocouple(board hardware.Board, registry Namer, channels []hardware.Channel) (*Thermocouple, error) {
	tc := &Thermocouple{}
	devices := make([]hardware.Device, 0, len(channels))
	for _, ch := range channels {
		in := board.TemperatureInput(ch)
		tc.inputs = append(tc.inputs, in)
		tc.tags = append(tc.tags, ch.Tag())
		devices = append(devices, in)
	}
	var err error
	if tc.names, err = names(registry, tc.tags...); err != nil {
		return nil, err
	}
	if err := hardware.OpenAll(attachTimeout, devices...); err != nil {
		return nil, err
	}
	return tc, nil
}

func (tc *Thermocouple) Name() string {
	return "thermocouple"
}

func (tc *Thermocouple) Run(ctx context.Context, sink Sink, state State) error {
	temps := make([]float64, len(tc.inputs))
	for i, in := range tc.inputs {
		t, err := in.Temperature()
		if err != nil {
			return err
		}
		temps[i] = t
	}
	points := make([]model.Point, 0, len(temps))
	for i, t := range temps {
		fields := model.Fields{"temperature": t}
		points = append(points, model.NewPoint(model.Thermocouples.String(), tc.tags[i], tc.names[i], fields))
		state.Update(fields, &tc.tags[i])
	}
	return write(ctx, sink, points)
}
