package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/irrigation-controller/internal/pkg/actuator"
	"github.com/anicoll/irrigation-controller/internal/pkg/config"
	"github.com/anicoll/irrigation-controller/internal/pkg/contxt"
	"github.com/anicoll/irrigation-controller/internal/pkg/database"
	"github.com/anicoll/irrigation-controller/internal/pkg/database/migration"
	"github.com/anicoll/irrigation-controller/internal/pkg/hardware"
	"github.com/anicoll/irrigation-controller/internal/pkg/kafka"
	"github.com/anicoll/irrigation-controller/internal/pkg/live"
	"github.com/anicoll/irrigation-controller/internal/pkg/logic"
	"github.com/anicoll/irrigation-controller/internal/pkg/metrics"
	"github.com/anicoll/irrigation-controller/internal/pkg/model"
	"github.com/anicoll/irrigation-controller/internal/pkg/mote"
	"github.com/anicoll/irrigation-controller/internal/pkg/mqtt"
	"github.com/anicoll/irrigation-controller/internal/pkg/publisher"
	"github.com/anicoll/irrigation-controller/internal/pkg/registry"
	"github.com/anicoll/irrigation-controller/internal/pkg/scheduler"
	"github.com/anicoll/irrigation-controller/internal/pkg/sensor"
	"github.com/anicoll/irrigation-controller/internal/pkg/server"
	"github.com/anicoll/irrigation-controller/internal/pkg/state"
	"github.com/anicoll/irrigation-controller/pkg/sockets"
)

var (
	errCron             = errors.New("cron error")
	errMoteStreamClosed = errors.New("mote stream closed")
)

const (
	moteRestartDelay = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// deps are the external collaborators of run. Nil members are disabled.
type deps struct {
	board     hardware.Board
	store     Store
	backends  map[string]Backend
	startMote func(ctx context.Context) (MoteSource, error)
	// moteRestartDelay overrides the pause before serialdump is restarted.
	moteRestartDelay time.Duration
}

func IrrigationCommand(ctx *cli.Context) error {
	cfg := &config.Config{
		PollInterval:     ctx.Duration("poll-interval"),
		ReaderTimeout:    ctx.Duration("reader-timeout"),
		DeviceConfig:     ctx.String("device-config"),
		CredentialsFile:  ctx.String("credentials-file"),
		DatabaseURL:      ctx.String("database-url"),
		MigrationsFolder: ctx.String("migrations-folder"),
		MqttCfg: &config.MqttConfig{
			Host:     ctx.String("mqtt-host"),
			Username: ctx.String("mqtt-user"),
			Password: ctx.String("mqtt-pass"),
		},
		KafkaCfg: &config.KafkaConfig{
			Brokers: ctx.StringSlice("kafka-brokers"),
			Topic:   ctx.String("kafka-topic"),
		},
		SerialCfg: &config.SerialConfig{
			SerialdumpPath: ctx.String("serialdump-path"),
			Device:         ctx.String("serial-device"),
			Baud:           ctx.Int("serial-baud"),
		},
		HTTPAddr:           ctx.String("http-addr"),
		APITokenHash:       ctx.String("api-token-hash"),
		IrrigationSchedule: ctx.String("irrigation-schedule"),
		IrrigationDuration: ctx.Duration("irrigation-duration"),
		Simulate:           ctx.Bool("simulate"),
		LogLevel:           ctx.String("log-level"),
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	envCfg, err := config.LoadEnv()
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return err
	}
	if err := cfg.Apply(creds); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, cleanup, err := newDeps(sigCtx, cfg, envCfg)
	defer cleanup()
	if err != nil {
		return err
	}

	errorChan := make(chan error, 1000)
	err = run(sigCtx, cfg, envCfg, d, errorChan, logger)
	if errors.Is(err, context.Canceled) && sigCtx.Err() != nil {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// newDeps connects the configured backends. The returned cleanup closes
// whatever was opened, also when an error is returned.
func newDeps(ctx context.Context, cfg *config.Config, envCfg *config.EnvConfig) (*deps, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	board, err := newBoard(cfg)
	if err != nil {
		return nil, cleanup, err
	}
	d := &deps{board: board, backends: map[string]Backend{}}

	if cfg.DatabaseURL != "" {
		if cfg.MigrationsFolder != "" {
			if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
				return nil, cleanup, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, db.Close)
		d.store = db
	}

	if cfg.MqttCfg != nil && cfg.MqttCfg.Host != "" {
		client := mqtt.NewClient(cfg.MqttCfg.Host, envCfg.MqttClientID, cfg.MqttCfg.Username, cfg.MqttCfg.Password)
		mqttSvc := mqtt.New(client)
		if err := mqttSvc.Connect(); err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to mqtt: %w", err)
		}
		closers = append(closers, func() error {
			client.Disconnect(250)
			return nil
		})
		d.backends["mqtt"] = mqttSvc
	}

	if cfg.KafkaCfg != nil && len(cfg.KafkaCfg.Brokers) > 0 {
		kafkaSvc := kafka.New(kafka.NewWriter(cfg.KafkaCfg.Brokers, cfg.KafkaCfg.Topic))
		closers = append(closers, kafkaSvc.Close)
		d.backends["kafka"] = kafkaSvc
	}

	if cfg.SerialCfg != nil && cfg.SerialCfg.SerialdumpPath != "" {
		processCfg := mote.ProcessConfig{
			Path:         cfg.SerialCfg.SerialdumpPath,
			Device:       cfg.SerialCfg.Device,
			Baud:         cfg.SerialCfg.Baud,
			RestartDelay: moteRestartDelay,
		}
		d.startMote = func(ctx context.Context) (MoteSource, error) {
			return mote.StartProcess(ctx, processCfg)
		}
	}
	return d, cleanup, nil
}

func run(ctx context.Context, cfg *config.Config, envCfg *config.EnvConfig, d *deps, errorChan chan error, logger *zap.Logger) error {
	eg, ctx := errgroup.WithContext(ctx)

	reg, err := registry.Load(cfg.DeviceConfig)
	if err != nil {
		return err
	}
	if err := reg.Validate(rigTags()...); err != nil {
		return err
	}
	st := state.New(state.ZeroPartition)

	pub := publisher.New(publisher.WithBufferSize(envCfg.SinkBufferSize))
	if d.store != nil {
		if err := pub.RegisterPublisher("postgres", d.store); err != nil {
			return err
		}
	}
	for name, b := range d.backends {
		if err := pub.RegisterPublisher(name, b); err != nil {
			return err
		}
	}

	flow, err := sensor.NewFlow(d.board, reg, sensor.DefaultFlowChannel, envCfg.HistoryCapacity)
	if err != nil {
		return err
	}
	moisture, err := sensor.NewMoisture(d.board, reg, sensor.DefaultMoistureProbes)
	if err != nil {
		return err
	}
	act, err := actuator.New(d.board, reg, actuator.DefaultConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := act.Close(); err != nil {
			logger.Error("failed to stop actuators", zap.Error(err))
		}
	}()
	thermocouple, err := sensor.NewThermocouple(d.board, reg, sensor.DefaultThermocoupleChannels)
	if err != nil {
		return err
	}
	if err := act.Stop(); err != nil {
		return err
	}
	var srv *http.Server
	if cfg.HTTPAddr != "" {
		hub := sockets.New(
			sockets.OnError(func(err error) {
				logger.Warn("websocket error", zap.Error(err))
			}),
			sockets.OnConnected(func(remote string) {
				logger.Info("websocket client connected", zap.String("remote", remote))
			}),
		)
		defer hub.Close()
		if err := pub.RegisterPublisher("live", live.New(hub)); err != nil {
			return err
		}
		opts := []server.Option{server.WithMetrics(metrics.Handler()), server.WithLive(hub)}
		if d.store != nil {
			opts = append(opts, server.WithStore(d.store))
		}
		srv = &http.Server{
			Handler:      server.New(st, act, flow, opts...).Handler(cfg.APITokenHash),
			Addr:         cfg.HTTPAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
	}

	c, err := newCron(ctx, cfg, envCfg, d.store, logic.NewLogicSvc(act, flow, pub, cfg.IrrigationDuration), errorChan)
	if err != nil {
		return err
	}
	logger.Info("hardware attached", zap.Strings("publishers", pub.Publishers()))

	poller := scheduler.New(scheduler.Config{
		Interval:      cfg.PollInterval,
		ReaderTimeout: cfg.ReaderTimeout,
	}, pub, st, flow, moisture, act, thermocouple)
	eg.Go(func() error {
		return poller.Run(ctx)
	})

	if d.startMote != nil {
		listener := mote.NewListener(reg)
		eg.Go(func() error {
			return listenMotes(ctx, d, listener, pub, st, logger)
		})
	}

	if srv != nil {
		eg.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := contxt.NewContext(shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	c.Start()
	eg.Go(func() error {
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	})

	eg.Go(func() error {
		// handle any async errors from service
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Warn("async error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

// rigTags lists every board channel the readers and the actuator controller use.
func rigTags() []model.Tag {
	channels := []hardware.Channel{sensor.DefaultFlowChannel, actuator.DefaultConfig.Pump}
	for _, p := range sensor.DefaultMoistureProbes {
		channels = append(channels, p.Channel)
	}
	channels = append(channels, sensor.DefaultThermocoupleChannels...)
	channels = append(channels, actuator.DefaultConfig.Valves[:]...)
	return lo.Map(channels, func(ch hardware.Channel, _ int) model.Tag {
		return ch.Tag()
	})
}

// listenMotes feeds serialdump's output to the listener. serialdump restarts
// itself after a crash; a failed start or a closed stream starts it over.
func listenMotes(ctx context.Context, d *deps, listener *mote.Listener, sink sensor.Sink, st sensor.State, logger *zap.Logger) error {
	delay := d.moteRestartDelay
	if delay <= 0 {
		delay = moteRestartDelay
	}
	operation := func() error {
		src, err := d.startMote(ctx)
		if err != nil {
			return fmt.Errorf("failed to start serialdump: %w", err)
		}
		defer func() {
			if err := src.Stop(); err != nil {
				logger.Warn("failed to stop serialdump", zap.Error(err))
			}
		}()
		if err := listener.Listen(ctx, src.Stdout(), sink, st); err != nil {
			return err
		}
		return errMoteStreamClosed
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("restarting mote listener", zap.Error(err), zap.Duration("in", next))
	}
	return backoff.RetryNotify(operation, backoff.WithContext(backoff.NewConstantBackOff(delay), ctx), notify)
}

type cycler interface {
	IrrigationCycle(ctx context.Context) error
}

func newCron(ctx context.Context, cfg *config.Config, envCfg *config.EnvConfig, store Store, irrigation cycler, errChan chan error) (*cron.Cron, error) {
	c := cron.New()
	logger := zap.L()

	if store != nil {
		if _, err := c.AddFunc(envCfg.Schedule(envCfg.CleanupSchedule), func() {
			if err := store.Cleanup(ctx, envCfg.Retention()); err != nil {
				logger.Error("error cleaning up database", zap.Error(err))
				errChan <- fmt.Errorf("%w: %w", errCron, err)
				return
			}
			logger.Info("database cleaned up", zap.Duration("retention", envCfg.Retention()))
		}); err != nil {
			return nil, err
		}
	}

	if cfg.IrrigationSchedule != "" {
		if _, err := c.AddFunc(envCfg.Schedule(cfg.IrrigationSchedule), func() {
			if err := irrigation.IrrigationCycle(ctx); err != nil && ctx.Err() == nil {
				logger.Error("irrigation cycle failed", zap.Error(err))
				errChan <- err
			}
		}); err != nil {
			return nil, err
		}
	}
	return c, nil
}
