package cmd

import (
	"fmt"

	"github.com/anicoll/irrigation-controller/internal/pkg/config"
	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
	"github.com/anicoll/irrigation-controller/internal/pkg/hardware/fake"
	"github.com/anicoll/irrigation-controller/internal/pkg/sensor"
)

// newBoard returns the interface-kit board. Only the in-memory board is
// available in this build.
func newBoard(cfg *config.Config) (hardware.Board, error) {
	if !cfg.Simulate {
		return nil, fmt.Errorf("%w: no interface kit driver available, run with --simulate", hardware.ErrAttachment)
	}
	return newSimulatedBoard(), nil
}

// newSimulatedBoard seeds the fake board with readings of a resting rig.
func newSimulatedBoard() *fake.Board {
	board := fake.NewBoard()
	for _, p := range sensor.DefaultMoistureProbes {
		board.SetVoltage(p.Channel, 2.1)
	}
	board.SetVoltage(sensor.DefaultFlowChannel, 0)
	for i, ch := range sensor.DefaultThermocoupleChannels {
		board.SetTemperature(ch, 18+float64(i))
	}
	return board
}
