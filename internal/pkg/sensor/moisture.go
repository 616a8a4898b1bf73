package sensor

import (
	"context"
	"time"

	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

const attachTimeout = 5 * time.Second

// MoistureProbe is a soil moisture probe wired to a voltage input.
type MoistureProbe struct {
	Channel hardware.Channel
	// VMax is the probe voltage in saturated soil.
	VMax float64
}

var DefaultMoistureProbes = []MoistureProbe{
	{Channel: hardware.Channel{Serial: 107839, Channel: 5}, VMax: 4.30},
	{Channel: hardware.Channel{Serial: 107839, Channel: 4}, VMax: 4.30},
	{Channel: hardware.Channel{Serial: 107839, Channel: 3}, VMax: 4.30},
}

// Normalize scales a raw voltage by the probe maximum. Values above 1 are kept.
func Normalize(raw, vmax float64) float64 {
	return raw / vmax
}

type Moisture struct {
	probes []MoistureProbe
	inputs []hardware.VoltageInput
	tags   []model.Tag
	names  []string
}

func NewMoisture(board hardware.Board, registry Namer, probes []MoistureProbe) (*Moisture, error) {
	m := &Moisture{probes: probes}
	devices := make([]hardware.Device, 0, len(probes))
	for _, p := range probes {
		in := board.VoltageInput(p.Channel)
		m.inputs = append(m.inputs, in)
		m.tags = append(m.tags, p.Channel.Tag())
		devices = append(devices, in)
	}
	var err error
	if m.names, err = names(registry, m.tags...); err != nil {
		return nil, err
	}
	if err := hardware.OpenAll(attachTimeout, devices...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Moisture) Name() string {
	return "moisture"
}

func (m *Moisture) rawValues() ([]float64, error) {
	out := make([]float64, len(m.inputs))
	for i, in := range m.inputs {
		v, err := in.Voltage()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *Moisture) Run(ctx context.Context, sink Sink, state State) error {
	raw, err := m.rawValues()
	if err != nil {
		return err
	}
	points := make([]model.Point, 0, len(raw))
	for i, v := range raw {
		fields := model.Fields{
			"voltage":            v,
			"normalized_voltage": Normalize(v, m.probes[i].VMax),
		}
		points = append(points, model.NewPoint(model.SoilMoisture.String(), m.tags[i], m.names[i], fields))
		state.Update(fields, &m.tags[i])
	}
	return write(ctx, sink, points)
}
