// Package mote decodes the telemetry packets that Sky/TelosB motes send
// through the serialdump gateway.
package mote

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

var (
	// ErrParse marks a line that cannot be decoded.
	ErrParse = errors.New("malformed mote packet")
	// ErrShortPacket marks a partial packet. It is skipped silently.
	ErrShortPacket = errors.New("short mote packet")
)

// MinValues is the smallest number of integers in a complete packet.
const MinValues = 25

const (
	nodeIDOffset      = 4
	lightOffset       = 22
	lightIROffset     = 23
	temperatureOffset = 24
	humidityOffset    = 25
)

type Packet struct {
	NodeID         model.Tag
	Temperature    float64
	AirHumidity    float64
	LightVisible   float64
	LightVisibleIR float64
}

func (p Packet) Fields() model.Fields {
	return model.Fields{
		"temperature":      p.Temperature,
		"air_humidity":     p.AirHumidity,
		"light_visible":    p.LightVisible,
		"light_visible_ir": p.LightVisibleIR,
	}
}

// NodeID renders the node word as "low.high".
func NodeID(word int) model.Tag {
	return model.Tag(fmt.Sprintf("%d.%d", word&0xff, (word>>8)&0xff))
}

func Temperature(raw int) float64 {
	return -39.6 + 0.01*float64(raw)
}

// Humidity is the relative humidity in percent, capped at 100.
func Humidity(raw int) float64 {
	return min(-4.0+405.0*float64(raw)/10000.0, 100)
}

func LightVisible(raw int) float64 {
	return 10.0 * float64(raw) / 7.0
}

func LightVisibleIR(raw int) float64 {
	return 46.0 * float64(raw) / 10.0
}

// ParseLine decodes one line of serialdump output.
func ParseLine(line []byte) (Packet, error) {
	line = bytes.ReplaceAll(line, []byte{0}, nil)
	tokens := bytes.Fields(line)
	values := make([]int, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.Atoi(string(tok))
		if err != nil {
			return Packet{}, fmt.Errorf("%w: token %d %q", ErrParse, i, tok)
		}
		values[i] = v
	}
	if len(values) < MinValues {
		return Packet{}, fmt.Errorf("%w: %d values", ErrShortPacket, len(values))
	}
	if len(values) <= humidityOffset {
		return Packet{}, fmt.Errorf("%w: missing humidity at offset %d", ErrParse, humidityOffset)
	}
	return Packet{
		NodeID:         NodeID(values[nodeIDOffset]),
		Temperature:    Temperature(values[temperatureOffset]),
		AirHumidity:    Humidity(values[humidityOffset]),
		LightVisible:   LightVisible(values[lightOffset]),
		LightVisibleIR: LightVisibleIR(values[lightIROffset]),
	}, nil
}
