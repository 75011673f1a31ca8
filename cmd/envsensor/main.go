// Command envsensor polls the environmental sensor over serial, attaches
// camera brightness, logs readings, and reboots the host when the device stops
// answering.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/banshee-data/envsensor/internal/config"
	"github.com/banshee-data/envsensor/internal/discovery"
	"github.com/banshee-data/envsensor/internal/monitoring"
	"github.com/banshee-data/envsensor/internal/supervisor"
	"github.com/banshee-data/envsensor/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON config file")
	devMode     = flag.Bool("dev", false, "Run against a simulated sensor and camera")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	port        = flag.String("port", "", "Serial port to use (empty discovers by label)")
	logFile     = flag.String("log-file", "", "TSV reading log path")
	dbPath      = flag.String("db", "", "SQLite history path")
	dryRun      = flag.Bool("dry-run", false, "Log the reboot command instead of running it")
	listPorts   = flag.Bool("list-ports", false, "Print discovered serial devices and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("envsensor %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	applyFlags(cfg)

	logger := monitoring.NewLogger("envsensor", monitoring.Options{
		Level:   cfg.GetLogLevel(),
		Dev:     *devMode || cfg.GetEnv() == "dev",
		Version: version.Version,
		Env:     cfg.GetEnv(),
	})
	monitoring.SetLogger(logger)

	if *listPorts {
		if err := printPorts(cfg); err != nil {
			logger.Error("port discovery failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, runOptions{Dev: *devMode})
	switch {
	case errors.Is(err, supervisor.ErrRebootTriggered):
		logger.Error("sensor unresponsive, reboot requested", "error", err)
		os.Exit(1)
	case err != nil:
		logger.Error("envsensor failed", "error", err)
		os.Exit(1)
	}
	logger.Info("graceful shutdown complete")
}

// loadConfig reads path if it exists and layers environment overrides on top.
func loadConfig(path string, lookup func(string) (string, bool)) (*config.AgentConfig, error) {
	cfg, err := config.LoadConfigIfExists(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides config values with flags given on the command line.
func applyFlags(cfg *config.AgentConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = stringPtr(*listen)
		case "port":
			cfg.SerialPort = stringPtr(*port)
		case "log-file":
			cfg.LogFile = stringPtr(*logFile)
		case "db":
			cfg.DBPath = stringPtr(*dbPath)
		case "dry-run":
			v := *dryRun
			cfg.DryRun = &v
		}
	})
}

func stringPtr(v string) *string { return &v }

func printPorts(cfg *config.AgentConfig) error {
	found, err := discovery.Report(cfg.DeviceRules, discovery.SystemLister)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s\t%s\n", found[name], name)
	}
	return nil
}
