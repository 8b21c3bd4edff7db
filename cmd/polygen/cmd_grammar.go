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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/polygen/pkg/ux"
	"github.com/AleutianAI/polygen/services/polygen/tokens"
)

func newGrammarCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grammar [name|file]",
		Short: "Compile a grammar and summarize its token sets",
		Long: `Compiles a built-in grammar (xss, xss-no-grammar) or a YAML/JSON grammar
file and prints each token set with the sets allowed to follow it. Without
an argument the configured grammar is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			} else {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				name = cfg.Grammar
			}

			g, err := tokens.Resolve(name)
			if err != nil {
				return err
			}
			compiled, err := tokens.Compile(g)
			if err != nil {
				return err
			}
			renderGrammar(opts.printer(cmd.OutOrStdout()), compiled)
			return nil
		},
	}
}

func renderGrammar(p *ux.Printer, g *tokens.Compiled) {
	sets := g.Describe()
	p.Fields("Grammar "+g.Name, []ux.Field{
		{Key: "name", Value: g.Name},
		{Key: "tokens", Value: strconv.Itoa(len(g.Tokens))},
		{Key: "sets", Value: strconv.Itoa(len(sets))},
	})

	lines := make([]string, 0, len(sets))
	for _, s := range sets {
		follows := "any"
		if len(s.Follows) > 0 {
			follows = strings.Join(s.Follows, ", ")
		}
		lines = append(lines, fmt.Sprintf("%s (%d tokens, %d successors) -> %s", s.Name, s.Tokens, s.Successors, follows))
	}
	p.List("Sets", lines)
}
