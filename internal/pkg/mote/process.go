package mote

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.viam.com/utils/pexec"
)

const DefaultRestartDelay = 5 * time.Second

type ProcessConfig struct {
	Path   string
	Device string
	Baud   int
	// RestartDelay is the pause before serialdump is restarted after an
	// unexpected exit.
	RestartDelay time.Duration
}

// Process runs the serialdump utility under a process manager that restarts it
// when it exits. Its output is delivered through a pipe that outlives restarts.
type Process struct {
	manager pexec.ProcessManager
	reader  *io.PipeReader
	writer  *io.PipeWriter
	cancel  context.CancelFunc
	logger  *zap.Logger
}

func (c ProcessConfig) pexecConfig(ctx context.Context, w io.Writer, logger *zap.Logger) pexec.ProcessConfig {
	delay := c.RestartDelay
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	return pexec.ProcessConfig{
		ID:        "serialdump",
		Name:      c.Path,
		Args:      []string{"-b" + strconv.Itoa(c.Baud), c.Device},
		Log:       true,
		LogWriter: w,
		OneShot:   false,
		OnUnexpectedExit: func(_ context.Context, code int) bool {
			logger.Warn("serialdump exited", zap.Int("exit_code", code), zap.Duration("restart_in", delay))
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
				return true
			}
		},
	}
}

// StartProcess launches serialdump. It is stopped by Stop or when ctx is done.
func StartProcess(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	logger := zap.L().Named("serialdump")
	ctx, cancel := context.WithCancel(ctx)
	reader, writer := io.Pipe()
	p := &Process{
		// output lines are consumed by the listener, keep the manager quiet
		manager: pexec.NewProcessManager(logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)).Sugar()),
		reader:  reader,
		writer:  writer,
		cancel:  cancel,
		logger:  logger,
	}
	if _, err := p.manager.AddProcessFromConfig(ctx, cfg.pexecConfig(ctx, writer, logger)); err != nil {
		_ = p.Stop()
		return nil, fmt.Errorf("failed to configure %s: %w", cfg.Path, err)
	}
	if err := p.manager.Start(ctx); err != nil {
		_ = p.Stop()
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Path, err)
	}
	logger.Info("serialdump started", zap.String("device", cfg.Device), zap.Int("baud", cfg.Baud))
	return p, nil
}

func (p *Process) Stdout() io.Reader {
	return p.reader
}

// Stop kills serialdump and closes its output. Pending writes from the
// process are released first so a reader that stopped early cannot block it.
func (p *Process) Stop() error {
	p.cancel()
	_ = p.reader.CloseWithError(io.ErrClosedPipe)
	err := p.manager.Stop()
	_ = p.writer.Close()
	return err
}
