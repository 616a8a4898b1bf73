package mote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/anicoll/irrigation-controller/internal/pkg/metrics"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
	"github.com/anicoll/irrigation-controller/internal/pkg/sensor"
)

const maxLineSize = 64 * 1024

var errLineTooLong = errors.New("mote line too long")

type Listener struct {
	registry sensor.Namer
	logger   *zap.Logger
}

func NewListener(registry sensor.Namer) *Listener {
	return &Listener{
		registry: registry,
		logger:   zap.L(),
	}
}

// Listen processes packets from r until it is exhausted or ctx is done.
// Undecodable lines are skipped. Listen returns nil on end of input.
func (l *Listener) Listen(ctx context.Context, r io.Reader, sink sensor.Sink, state sensor.State) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		reader := bufio.NewReaderSize(r, maxLineSize)
		for {
			line, err := readLine(reader)
			if errors.Is(err, errLineTooLong) {
				metrics.MotePackets.WithLabelValues("failed").Inc()
				l.logger.Warn("dropping overlong mote line", zap.Int("limit", maxLineSize))
				continue
			}
			if err != nil {
				scanErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				select {
				case err := <-scanErr:
					if err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, io.EOF) {
						return fmt.Errorf("failed to read mote stream: %w", err)
					}
				default:
				}
				l.logger.Info("mote stream closed")
				return nil
			}
			if err := l.handle(ctx, line, sink, state); err != nil {
				metrics.MotePackets.WithLabelValues("failed").Inc()
				l.logger.Warn("failed to handle mote packet", zap.Error(err))
			}
		}
	}
}

func (l *Listener) handle(ctx context.Context, line []byte, sink sensor.Sink, state sensor.State) error {
	packet, err := ParseLine(line)
	if errors.Is(err, ErrShortPacket) {
		metrics.MotePackets.WithLabelValues("skipped").Inc()
		l.logger.Debug("skipping partial mote packet", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	name, err := l.registry.NameOf(packet.NodeID)
	if err != nil {
		l.logger.Warn("unregistered mote", zap.Stringer("node_id", packet.NodeID))
		name = packet.NodeID.String()
	}
	fields := packet.Fields()
	point := model.NewPoint(model.Sky.String(), packet.NodeID, name, fields)
	state.Update(fields, &packet.NodeID)
	if err := sink.WriteBatch(ctx, []model.Point{point}); err != nil {
		return fmt.Errorf("failed to write mote point: %w", err)
	}
	metrics.MotePackets.WithLabelValues("ok").Inc()
	return nil
}

// readLine returns the next line without its terminator. A line that does not
// fit the reader's buffer is consumed up to its end and reported as
// errLineTooLong.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, isPrefix, err := r.ReadLine()
	if err != nil {
		return nil, err
	}
	if !isPrefix {
		return append([]byte(nil), line...), nil
	}
	for isPrefix {
		if _, isPrefix, err = r.ReadLine(); err != nil {
			return nil, err
		}
	}
	return nil, errLineTooLong
}
