// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package payload

import (
	"context"
	"log/slog"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// SyntaxChecker reports whether a payload is syntactically valid.
type SyntaxChecker interface {
	Valid(ctx context.Context, payload string) bool
}

// JavaScriptChecker accepts payloads that parse as a JavaScript program
// without error nodes.
//
// Thread Safety: Safe for concurrent use. Parses are serialized.
type JavaScriptChecker struct {
	mu     sync.Mutex
	parser *sitter.Parser
	logger *slog.Logger
}

// NewJavaScriptChecker creates a checker backed by tree-sitter.
func NewJavaScriptChecker(logger *slog.Logger) *JavaScriptChecker {
	if logger == nil {
		logger = slog.Default()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	return &JavaScriptChecker{parser: parser, logger: logger}
}

// Valid implements SyntaxChecker. Parse failures count as invalid.
func (c *JavaScriptChecker) Valid(ctx context.Context, payload string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tree, err := c.parser.ParseCtx(ctx, nil, []byte(payload))
	if err != nil {
		c.logger.Debug("javascript parse failed", slog.String("error", err.Error()))
		return false
	}
	defer tree.Close()

	return !tree.RootNode().HasError()
}

// SyntaxFunc adapts a function to SyntaxChecker.
type SyntaxFunc func(payload string) bool

// Valid implements SyntaxChecker.
func (f SyntaxFunc) Valid(_ context.Context, payload string) bool {
	return f(payload)
}
