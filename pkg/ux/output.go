// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders CLI output: styled for terminals, plain for pipes.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles are the shared lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Code    lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Code:    lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Mode selects how output is rendered.
type Mode string

const (
	// ModeStyled uses colors, icons and boxes.
	ModeStyled Mode = "styled"

	// ModeMachine prints plain "KEY: value" lines for scripts.
	ModeMachine Mode = "machine"
)

// ParseMode maps "machine", "plain" and "quiet" to ModeMachine and anything
// else to ModeStyled.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "machine", "plain", "quiet":
		return ModeMachine
	default:
		return ModeStyled
	}
}

// DetectMode returns POLYGEN_OUTPUT when set, otherwise ModeStyled for a
// terminal and ModeMachine for anything else.
func DetectMode(f *os.File) Mode {
	if v := os.Getenv("POLYGEN_OUTPUT"); v != "" {
		return ParseMode(v)
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeStyled
	}
	return ModeMachine
}

// Printer writes rendered output.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter creates a printer writing to w in mode.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Stdout returns a printer for os.Stdout with the detected mode.
func Stdout() *Printer {
	return NewPrinter(os.Stdout, DetectMode(os.Stdout))
}

// Mode returns the render mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Title prints a heading. Machine mode skips it.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Success.Render(string(IconSuccess)), Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Warning.Render(string(IconWarning)), Styles.Warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Error.Render(string(IconError)), Styles.Error.Render(text))
}

// Field is one key/value row.
type Field struct {
	Key   string
	Value string
}

// Fields prints aligned key/value rows, boxed under title in styled mode.
func (p *Printer) Fields(title string, fields []Field) {
	if p.mode == ModeMachine {
		for _, f := range fields {
			fmt.Fprintf(p.w, "%s: %s\n", strings.ToUpper(strings.ReplaceAll(f.Key, " ", "_")), f.Value)
		}
		return
	}

	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Key))
	}
	lines := make([]string, 0, len(fields)+1)
	lines = append(lines, Styles.Title.Render(title))
	for _, f := range fields {
		key := Styles.Muted.Render(fmt.Sprintf("%-*s", width, f.Key))
		lines = append(lines, key+"  "+f.Value)
	}
	fmt.Fprintln(p.w, Styles.Box.Render(strings.Join(lines, "\n")))
}

// List prints bulleted items. Machine mode prints one raw item per line.
func (p *Printer) List(title string, items []string) {
	if p.mode == ModeMachine {
		for _, item := range items {
			fmt.Fprintln(p.w, item)
		}
		return
	}
	if title != "" {
		fmt.Fprintln(p.w, Styles.Bold.Render(title))
	}
	for _, item := range items {
		fmt.Fprintf(p.w, "  %s %s\n", Styles.Muted.Render(string(IconBullet)), Styles.Code.Render(item))
	}
}
