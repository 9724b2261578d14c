// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package rfcore defines the "rfcore" command-line tool.
//
// rfcore records replays from a capture device, plays replays back to capture
// clients, converts and upgrades replay files, and keeps a searchable index of
// a replay directory.
package rfcore

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/reframedultimate/ReFramed-sub002/capture"
	"github.com/reframedultimate/ReFramed-sub002/replay"
	"github.com/reframedultimate/ReFramed-sub002/support/logging"
)

// app is the state shared by every command.
type app struct {
	cfg        Config
	configPath string
	envFile    string

	logger logging.L
}

// Main is the main entry point.
func Main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewCommand returns the root rfcore command.
func NewCommand() *cobra.Command {
	a := app{
		cfg:        DefaultConfig(),
		configPath: DefaultConfigPath(),
		envFile:    ".env",
	}

	root := &cobra.Command{
		Use:          "rfcore",
		Short:        "Record, play back and organize fighting game replays.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.resolve(cmd.Flags())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", a.configPath, "Path of the TOML config file.")
	pf.StringVar(&a.envFile, "env-file", a.envFile, "Path of a dotenv file to load, if it exists.")
	a.cfg.AddFlags(pf)

	root.AddCommand(
		a.inspectCommand(),
		a.convertCommand(),
		a.upgradeCommand(),
		a.parseNameCommand(),
		a.captureCommand(),
		a.serveCommand(),
		a.indexCommand(),
		a.listCommand(),
	)
	return root
}

// resolve layers the config file and environment under the flags in fs, and
// sets up logging.
func (a *app) resolve(fs *pflag.FlagSet) error {
	changed := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if err := LoadEnvFile(a.envFile); err != nil {
		return err
	}

	var file *Config
	switch fc, err := LoadFileConfig(a.configPath); {
	case err == nil:
		file = &fc
	case os.IsNotExist(errors.Cause(err)) && !changed["config"]:
		// The default config file is optional.
	default:
		return err
	}
	a.cfg.Apply(file, os.LookupEnv, changed)

	level, err := logging.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logging.NewZerologStderr(level)
	return nil
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serveMetrics serves Prometheus metrics on the configured address until ctx
// is cancelled. It does nothing if no address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	capture.RegisterMonitoring(reg)
	replay.RegisterMonitoring(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		a.logger.Infof("Serving metrics on %q.", a.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Errorf("Metrics server failed: %s", err)
		}
	}()
}
