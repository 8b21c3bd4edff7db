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
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/polygen/pkg/ux"
	"github.com/AleutianAI/polygen/services/polygen/store"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(runs *store.RunStore, p *ux.Printer) error {
				list, err := runs.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				if len(list) == 0 {
					p.Warning("no runs stored")
					return nil
				}
				lines := make([]string, len(list))
				for i, r := range list {
					lines[i] = fmt.Sprintf("%s  %-8s  %s  %s", r.ID, r.Status, r.Config.Strategy, r.StartedAt.Format(time.RFC3339))
				}
				p.List("Runs", lines)
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored run with its tries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(runs *store.RunStore, p *ux.Printer) error {
				return showRun(cmd, runs, p, args[0])
			})
		},
	})
	return cmd
}

func showRun(cmd *cobra.Command, runs *store.RunStore, p *ux.Printer, id string) error {
	ctx := cmd.Context()
	run, err := runs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	tries, err := runs.Tries(ctx, id)
	if err != nil {
		return err
	}
	polyglots, err := runs.Polyglots(ctx, id)
	if err != nil {
		return err
	}

	fields := []ux.Field{
		{Key: "status", Value: string(run.Status)},
		{Key: "strategy", Value: run.Config.Strategy},
		{Key: "grammar", Value: run.Config.Grammar},
		{Key: "started", Value: run.StartedAt.Format(time.RFC3339)},
		{Key: "tries", Value: strconv.Itoa(len(tries))},
	}
	if run.Report != nil {
		fields = append(fields,
			ux.Field{Key: "oracle calls", Value: strconv.FormatInt(run.Report.Calls, 10)},
			ux.Field{Key: "solved", Value: fmt.Sprintf("%d/%d", run.Report.Available-run.Report.Remaining, run.Report.Available)})
	}
	if run.Error != "" {
		fields = append(fields, ux.Field{Key: "error", Value: run.Error})
	}
	p.Fields("Run "+run.ID, fields)

	lines := make([]string, len(tries))
	for i, t := range tries {
		if t.Found {
			lines[i] = fmt.Sprintf("#%d solved %d, %d left: %s", t.Try, len(t.Solved), t.Remaining, t.Payload)
		} else {
			lines[i] = fmt.Sprintf("#%d nothing found", t.Try)
		}
	}
	p.List("Tries", lines)
	p.List("Polyglots", polyglots)
	return nil
}

// withStore opens the configured store for fn and closes it afterwards.
func withStore(cmd *cobra.Command, opts *rootOptions, fn func(*store.RunStore, *ux.Printer) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	defer logger.Close()

	db, err := openStore(cfg, logger.Slog(), true)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store.New(db, store.WithLogger(logger.Slog())), opts.printer(cmd.OutOrStdout()))
}
