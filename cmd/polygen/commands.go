// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/polygen/pkg/logging"
	"github.com/AleutianAI/polygen/pkg/ux"
	"github.com/AleutianAI/polygen/services/polygen/config"
	pgbadger "github.com/AleutianAI/polygen/services/polygen/storage/badger"
	"github.com/AleutianAI/polygen/services/polygen/telemetry"
)

// errNoStore is returned by commands that read history without a store path.
var errNoStore = errors.New("no run store configured (set store.path, POLYGEN_STORE_PATH or --store)")

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	storePath  string
	logLevel   string
	logDir     string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "polygen",
		Short: "Search for XSS polyglots with MCTS, greedy or Q-learning strategies",
		Long: `polygen builds payloads from a token grammar and keeps the ones that
execute in the most injection contexts. Each try retires the contexts its
payload solved, so later tries look for payloads covering the rest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", os.Getenv("POLYGEN_CONFIG"), "YAML or JSON config file")
	pf.StringVar(&opts.storePath, "store", "", "BadgerDB directory for run history (default: in memory)")
	pf.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&opts.logDir, "log-dir", "", "also write JSON logs to this directory")
	pf.StringVar(&opts.output, "output", "", "styled or machine (default: styled on a terminal)")

	root.AddCommand(newRunCmd(opts), newGrammarCmd(opts), newRunsCmd(opts), newServeCmd(opts))
	return root
}

// loadConfig loads the config file and env, then applies persistent flags.
func (o *rootOptions) loadConfig() (config.RunConfig, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.storePath != "" {
		cfg.Store.Path = o.storePath
	}
	if o.logLevel != "" {
		cfg.Observability.LogLevel = o.logLevel
	}
	return cfg, nil
}

func (o *rootOptions) newLogger(cfg config.RunConfig, w io.Writer) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Observability.LogLevel)
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  o.logDir,
		Service: cfg.Observability.ServiceName,
		JSON:    cfg.Observability.LogFormat == "json",
		Output:  w,
	})
	if err != nil {
		logger.Slog().Warn("using info level", slog.String("error", err.Error()))
	}
	return logger
}

func (o *rootOptions) printer(w io.Writer) *ux.Printer {
	if o.output != "" {
		return ux.NewPrinter(w, ux.ParseMode(o.output))
	}
	if f, ok := w.(*os.File); ok {
		return ux.NewPrinter(w, ux.DetectMode(f))
	}
	return ux.NewPrinter(w, ux.ModeMachine)
}

// openStore opens the configured badger directory, or an in-memory
// database when required is false and no path is set.
func openStore(cfg config.RunConfig, logger *slog.Logger, required bool) (*pgbadger.DB, error) {
	if cfg.Store.Path == "" {
		if required {
			return nil, errNoStore
		}
		return pgbadger.OpenInMemory()
	}
	bcfg := pgbadger.DefaultConfig(cfg.Store.Path)
	bcfg.Logger = logger
	return pgbadger.Open(bcfg)
}

// initTelemetry installs otel providers when tracing or metrics are on.
// The returned shutdown is never nil.
func initTelemetry(ctx context.Context, cfg config.RunConfig, forceMetrics bool) (func(context.Context) error, error) {
	obs := cfg.Observability
	noop := func(context.Context) error { return nil }
	if !obs.TracingEnabled && !obs.MetricsEnabled && !forceMetrics {
		return noop, nil
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = obs.ServiceName
	switch {
	case !obs.TracingEnabled:
		tcfg.TraceExporter = telemetry.ExporterNone
	case tcfg.TraceExporter == telemetry.ExporterNone:
		tcfg.TraceExporter = telemetry.ExporterOTLP
	}
	if !obs.MetricsEnabled && !forceMetrics {
		tcfg.MetricExporter = telemetry.ExporterNone
	}

	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return noop, fmt.Errorf("init telemetry: %w", err)
	}
	return shutdown, nil
}
