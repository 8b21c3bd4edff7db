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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/polygen/pkg/ux"
	"github.com/AleutianAI/polygen/services/polygen/budget"
	"github.com/AleutianAI/polygen/services/polygen/config"
	"github.com/AleutianAI/polygen/services/polygen/mcts"
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/runner"
	"github.com/AleutianAI/polygen/services/polygen/store"
	"github.com/AleutianAI/polygen/services/polygen/strategy"
)

// runFlags override the loaded configuration when set on the command line.
type runFlags struct {
	strategy          string
	grammar           string
	terminal          string
	win               string
	maxTries          int
	maxRootDepth      int
	maxPayloadLength  int
	simulations       string
	callBudget        string
	exploration       float64
	rolloutCandidates int
	seed              int64
	oracleKind        string
	oracleURL         string
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the polyglot search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, opts, flags)
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

// register binds the run flags to f.
func (r *runFlags) register(f *pflag.FlagSet) {
	f.StringVarP(&r.strategy, "strategy", "s", "", "mcts, random, greedy or rl")
	f.StringVarP(&r.grammar, "grammar", "g", "", "built-in grammar (xss, xss-no-grammar) or grammar file")
	f.StringVar(&r.terminal, "terminal", "", "string_length or token_length")
	f.StringVar(&r.win, "win", "", "win_sum, win_dist_entropy or win_dist_cossim")
	f.IntVar(&r.maxTries, "max-generation-tries", 0, "strategy invocations per run")
	f.IntVar(&r.maxRootDepth, "max-root-depth", 0, "root advancements per MCTS try")
	f.IntVar(&r.maxPayloadLength, "max-payload-length", 0, "characters or tokens per payload")
	f.StringVar(&r.simulations, "simulations-per-action", "", "simulations per root, or infinite")
	f.StringVar(&r.callBudget, "call-budget", "", "oracle calls per try, or infinite")
	f.Float64Var(&r.exploration, "exploration", 0, "UCB1 exploration constant")
	f.IntVar(&r.rolloutCandidates, "rollout-candidates", 0, "random rollouts tried for a syntactically valid one")
	f.Int64Var(&r.seed, "seed", 0, "random seed (0 seeds from the clock)")
	f.StringVar(&r.oracleKind, "oracle", "", "local or remote")
	f.StringVar(&r.oracleURL, "oracle-url", "", "base URL of the remote test harness")
}

// apply copies every changed flag into cfg.
func (r *runFlags) apply(fs *pflag.FlagSet, cfg *config.RunConfig) error {
	setStr := func(name, v string, dst *string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	setInt := func(name string, v int, dst *int) {
		if fs.Changed(name) {
			*dst = v
		}
	}

	setStr("strategy", r.strategy, &cfg.Strategy)
	setStr("grammar", r.grammar, &cfg.Grammar)
	setStr("terminal", r.terminal, &cfg.Terminal)
	setStr("win", r.win, &cfg.Win)
	setInt("max-generation-tries", r.maxTries, &cfg.MaxGenerationTries)
	setInt("max-root-depth", r.maxRootDepth, &cfg.MaxRootDepth)
	setInt("max-payload-length", r.maxPayloadLength, &cfg.MaxPayloadLength)
	setInt("rollout-candidates", r.rolloutCandidates, &cfg.RolloutCandidates)
	setStr("oracle", r.oracleKind, &cfg.Oracle.Kind)
	setStr("oracle-url", r.oracleURL, &cfg.Oracle.BaseURL)
	if fs.Changed("exploration") {
		cfg.Exploration = r.exploration
	}
	if fs.Changed("seed") {
		cfg.Seed = r.seed
	}

	for name, l := range map[string]struct {
		value string
		dst   *budget.Limit
	}{
		"simulations-per-action": {r.simulations, &cfg.SimulationsPerAction},
		"call-budget":            {r.callBudget, &cfg.CallBudget},
	} {
		if !fs.Changed(name) {
			continue
		}
		parsed, err := budget.ParseLimit(l.value)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		*l.dst = parsed
	}
	return cfg.Validate()
}

func runSearch(cmd *cobra.Command, opts *rootOptions, flags *runFlags) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := flags.apply(cmd.Flags(), &cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	defer logger.Close()
	log := logger.Slog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := initTelemetry(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	grammar, err := cfg.CompileGrammar()
	if err != nil {
		return err
	}
	o, err := newOracle(ctx, cfg, log)
	if err != nil {
		return err
	}

	tracer := mcts.NewTracer(log, cfg.Observability.TracingEnabled)
	sc, err := cfg.StrategyConfig(grammar, log, tracer)
	if err != nil {
		return err
	}
	s, err := strategy.New(cfg.Strategy, sc)
	if err != nil {
		return err
	}

	db, err := openStore(cfg, log, false)
	if err != nil {
		return err
	}
	defer db.Close()
	runs := store.New(db, store.WithLogger(log))

	runID, err := runs.BeginRun(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("run started",
		slog.String("run_id", runID),
		slog.String("strategy", s.Name()),
		slog.String("grammar", grammar.Name),
		slog.Int("tokens", len(grammar.Tokens)),
		slog.String("call_budget", cfg.CallBudget.String()))

	c := runner.NewController(o, s,
		runner.WithRunID(runID),
		runner.WithRecorder(runs),
		runner.WithMaxTries(cfg.MaxGenerationTries),
		runner.WithLogger(log))
	report, runErr := c.Run(ctx)

	if err := runs.FinishRun(context.WithoutCancel(ctx), report, runErr); err != nil {
		log.Warn("storing run result", slog.String("run_id", runID), slog.String("error", err.Error()))
	}
	renderReport(opts.printer(cmd.OutOrStdout()), report, runErr)
	return runErr
}

func newOracle(ctx context.Context, cfg config.RunConfig, log *slog.Logger) (oracle.Oracle, error) {
	switch cfg.Oracle.Kind {
	case config.OracleRemote:
		r, err := oracle.NewRemote(ctx, cfg.Oracle.RemoteConfig(log))
		if err != nil {
			return nil, err
		}
		return oracle.NewInstrumented(r, config.OracleRemote), nil
	default:
		t, err := oracle.NewTable(oracle.ContextTests(), log)
		if err != nil {
			return nil, err
		}
		return oracle.NewInstrumented(t, config.OracleLocal), nil
	}
}

func renderReport(p *ux.Printer, report runner.Report, runErr error) {
	retired := make([]string, len(report.Retired))
	for i, id := range report.Retired {
		retired[i] = string(id)
	}

	p.Fields("Run "+report.RunID, []ux.Field{
		{Key: "strategy", Value: report.Strategy},
		{Key: "tries", Value: strconv.Itoa(report.Tries)},
		{Key: "oracle calls", Value: strconv.FormatInt(report.Calls, 10)},
		{Key: "duration", Value: report.Duration.Round(1e6).String()},
		{Key: "solved", Value: fmt.Sprintf("%d/%d", report.Available-report.Remaining, report.Available)},
		{Key: "retired", Value: strings.Join(retired, ", ")},
	})
	p.List("Polyglots", report.Payloads)

	switch {
	case runErr != nil:
		p.Error(runErr.Error())
	case report.Remaining == 0:
		p.Success("every context solved")
	case len(report.Payloads) == 0:
		p.Warning("no payload passed any test")
	default:
		p.Warning(fmt.Sprintf("%d contexts unsolved", report.Remaining))
	}
}
