// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokens

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlGrammar = `
name: tiny
sets:
  zeta: ["z"]
  alpha: ["a", "aa"]
  mid: ["m"]
transitions:
  zeta: [alpha]
  alpha: [mid, zeta]
  mid: []
`

func TestParse_KeepsSetOrder(t *testing.T) {
	g, err := Parse([]byte(yamlGrammar))
	require.NoError(t, err)

	assert.Equal(t, "tiny", g.Name)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, g.SetNames())
	assert.Equal(t, []string{"mid", "zeta"}, g.Transitions["alpha"])

	c, err := Compile(g)
	require.NoError(t, err)
	assert.Equal(t, "z", c.Tokens[0].Value)
	assert.Equal(t, []int{2, 3}, ids(c.BySet["zeta"][0].Next()))
	assert.Equal(t, []int{4, 1}, ids(c.BySet["alpha"][0].Next()))
	assert.Equal(t, []int{1, 2, 3, 4}, ids(c.BySet["mid"][0].Next()))
}

func TestParse_AcceptsJSON(t *testing.T) {
	doc := `{"sets": {"b": ["x"], "a": ["y"]}, "transitions": {"b": ["a"], "a": null}}`

	g, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, g.SetNames())
	assert.Nil(t, g.Transitions["a"])
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing sets", `name: x`},
		{"empty sets", `sets: {}`},
		{"non string fragment", `sets: {a: [1, {b: c}]}`},
		{"unknown field", "sets: {a: [x]}\nweights: {a: 1}"},
		{"transition not a list", "sets: {a: [x]}\ntransitions: {a: b}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidGrammarDocument)
		})
	}
}

func TestLoadFile_DefaultsNameToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sets:\n  a: [\"<\"]\n"), 0o600))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", g.Name)

	resolved, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, g, resolved)
}

func TestResolve_Unknown(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrUnknownGrammar)
}
