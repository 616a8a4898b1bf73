package sensor

import (
	"context"
	"time"

	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
	"github.com/anicoll/irrigation-controller/internal/pkg/metrics"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

// FlowCalibration converts the 4-20mA loop fraction into litres per minute.
const FlowCalibration = 12.84

var DefaultFlowChannel = hardware.Channel{Serial: 107839, Channel: 7}

// FlowRate converts the transmitter voltage into a flow rate. The voltage is
// first scaled to the loop current in mA.
func FlowRate(voltage float64) float64 {
	current := voltage * 40 / 9
	return ((current - 4) / 16) * FlowCalibration
}

type Flow struct {
	input   hardware.VoltageInput
	tag     model.Tag
	name    string
	history *FlowHistory
	now     func() time.Time
}

func NewFlow(board hardware.Board, registry Namer, ch hardware.Channel, historyCapacity int) (*Flow, error) {
	tag := ch.Tag()
	name, err := registry.NameOf(tag)
	if err != nil {
		return nil, err
	}
	input := board.VoltageInput(ch)
	if err := hardware.OpenAll(attachTimeout, input); err != nil {
		return nil, err
	}
	return &Flow{
		input:   input,
		tag:     tag,
		name:    name,
		history: NewFlowHistory(historyCapacity),
		now:     time.Now,
	}, nil
}

func (f *Flow) Name() string {
	return "flow"
}

// mainFlow samples the main line, records the sample and returns the rate and
// the raw voltage.
func (f *Flow) mainFlow() (float64, float64, error) {
	now := f.now()
	v, err := f.input.Voltage()
	if err != nil {
		return 0, 0, err
	}
	rate := FlowRate(v)
	f.history.Append(FlowSample{Rate: rate, Time: now})
	return rate, v, nil
}

func (f *Flow) Run(ctx context.Context, sink Sink, state State) error {
	rate, raw, err := f.mainFlow()
	if err != nil {
		return err
	}
	fields := model.Fields{
		"flow":     rate,
		"flow_raw": raw,
	}
	state.Update(fields, &f.tag)
	metrics.FlowTotal.Set(f.Volume())
	return write(ctx, sink, []model.Point{model.NewPoint(model.Flow.String(), f.tag, f.name, fields)})
}

// Total integrates the flow rate over time (seconds) since the last ResetTotal.
func (f *Flow) Total() float64 {
	return f.history.Total()
}

// Volume is Total expressed in litres.
func (f *Flow) Volume() float64 {
	return f.history.Total() / 60
}

func (f *Flow) ResetTotal() {
	f.history.Reset()
}
