package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/envsensor/internal/ambient"
	"github.com/banshee-data/envsensor/internal/api"
	"github.com/banshee-data/envsensor/internal/config"
	"github.com/banshee-data/envsensor/internal/datalog"
	"github.com/banshee-data/envsensor/internal/db"
	"github.com/banshee-data/envsensor/internal/discovery"
	"github.com/banshee-data/envsensor/internal/fsutil"
	"github.com/banshee-data/envsensor/internal/monitoring"
	"github.com/banshee-data/envsensor/internal/sensor"
	"github.com/banshee-data/envsensor/internal/serialmux"
	"github.com/banshee-data/envsensor/internal/supervisor"
	"github.com/banshee-data/envsensor/internal/sysexec"
	"github.com/banshee-data/envsensor/internal/telemetry"
	"github.com/banshee-data/envsensor/internal/timeutil"
)

type runOptions struct {
	// Dev swaps the serial device and camera for simulations and forces a
	// dry-run reboot.
	Dev bool
	// Lister enumerates serial ports for discovery; nil uses the system.
	Lister discovery.Lister
}

// run wires the agent together and blocks until ctx is cancelled or the
// supervisor requests a reboot.
func run(ctx context.Context, cfg *config.AgentConfig, o runOptions) error {
	logger := monitoring.Logger()
	fs := fsutil.OSFileSystem{}
	clock := timeutil.RealClock{}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	executor := sysexec.NewExecutor(cfg.GetDryRun() || o.Dev)
	executor.SetLogger(sysexec.SlogLogger{L: logger.With("component", "exec")})

	sensorSerial, err := openSerial(cfg, o)
	if err != nil {
		return err
	}
	defer sensorSerial.Close()

	var capturer ambient.Capturer
	if o.Dev {
		capturer = &ambient.SyntheticCapturer{FS: fs, Level: 128}
	} else {
		cc := ambient.NewCommandCapturer(executor)
		cc.Program, cc.Args, err = sysexec.SplitCommand(cfg.GetCameraCommand())
		if err != nil {
			return fmt.Errorf("camera command: %w", err)
		}
		capturer = cc
	}
	camera := ambient.NewMonitor(ambient.Config{
		Path:            cfg.GetCameraPath(),
		CaptureInterval: cfg.GetCaptureInterval(),
		MaxBackoff:      cfg.GetCaptureBackoff(),
		FreshnessBound:  cfg.GetFreshnessBound(),
	}, capturer, fs, clock)

	fatal, err := supervisor.NewRebootAction(executor, cfg.GetRebootCommand())
	if err != nil {
		return err
	}

	opts := supervisor.Options{
		Poller:  sensor.NewClient(sensorSerial, cfg.GetSerialTimeout()),
		Ambient: camera,
		Store:   sensor.NewStore(),
		Fatal:   fatal,
		Clock:   clock,
	}
	if path := cfg.GetLogFile(); path != "" {
		opts.Log = datalog.NewLogger(path, cfg.GetLogInterval(), fs, clock)
		logger.Info("reading log enabled", "path", path, "interval", cfg.GetLogInterval())
	}

	var history api.History
	var database *db.DB
	if path := cfg.GetDBPath(); path != "" {
		database, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		opts.Sinks = append(opts.Sinks, database)
		history = database
	}

	var wg sync.WaitGroup

	if broker := cfg.GetMQTTBroker(); broker != "" {
		pub := telemetry.NewPublisher(telemetry.Config{
			Broker:   broker,
			Username: cfg.GetMQTTUsername(),
			Password: cfg.GetMQTTPassword(),
			Station:  cfg.GetStation(),
		}, logger)
		defer pub.Disconnect()
		opts.Sinks = append(opts.Sinks, pub)

		// publishes fail fast until the first connection lands
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("mqtt connect failed", "error", err)
			}
		}()
	}

	sup := supervisor.New(supervisor.Config{
		FailureThreshold: cfg.GetFailureThreshold(),
		PollInterval:     cfg.GetPollInterval(),
	}, opts)

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sensorSerial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("serial monitor stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := camera.Run(ctx); err != nil {
			logger.Warn("camera loop stopped", "error", err)
		}
	}()

	mux := (&api.Server{
		Readings:   sup.Store(),
		Supervisor: sup,
		Ambient:    camera,
		History:    history,
		Station:    cfg.GetStation(),
	}).ServeMux()
	sensorSerial.AttachAdminRoutes(mux)
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			return fmt.Errorf("attach db admin routes: %w", err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		serveHTTP(ctx, cfg.GetListen(), api.LoggingMiddleware(mux))
	}()

	supErr := sup.Run(ctx)
	cancel()
	// close the port so a blocked read does not hold up shutdown
	sensorSerial.Close()
	wg.Wait()
	return supErr
}

func openSerial(cfg *config.AgentConfig, o runOptions) (serialmux.SerialMuxInterface, error) {
	if o.Dev {
		return serialmux.NewMockSerialMux(devResponder(time.Now)), nil
	}

	path := cfg.GetSerialPort()
	if path == "" {
		var err error
		path, err = discovery.Resolve(cfg.GetDeviceLabel(), cfg.DeviceRules, o.Lister)
		if err != nil {
			return nil, err
		}
	}
	monitoring.Logger().Info("opening sensor port", "path", path, "baud", cfg.GetBaudRate())

	mux, err := serialmux.NewRealSerialMux(path, serialmux.PortOptions{
		BaudRate: cfg.GetBaudRate(),
		DataBits: cfg.GetDataBits(),
		StopBits: cfg.GetStopBits(),
		Parity:   cfg.GetParity(),
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return mux, nil
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) {
	logger := monitoring.Logger()
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Warn("http server force close error", "error", err)
		}
	}
}
