// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/polygen/services/polygen/budget"
	"github.com/AleutianAI/polygen/services/polygen/score"
)

func containsTest(id, needle string) Test {
	return Test{ID: score.TestID(id), Pass: func(p string) bool {
		return strings.Contains(p, needle)
	}}
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable([]Test{
		containsTest("a", "a"),
		containsTest("b", "b"),
		containsTest("c", "c"),
	}, nil)
	require.NoError(t, err)
	return table
}

func TestNewTable_Errors(t *testing.T) {
	_, err := NewTable(nil, nil)
	assert.ErrorIs(t, err, ErrNoTests)

	_, err = NewTable([]Test{containsTest("a", "a"), containsTest("a", "b")}, nil)
	assert.ErrorIs(t, err, ErrDuplicateTest)
}

func TestTable_TestAll(t *testing.T) {
	table := newTestTable(t)
	ctx := context.Background()

	out := table.TestAll(ctx, "ab")
	assert.Equal(t, "[1,1,0]", out.String())
	assert.Equal(t, []score.TestID{"a", "b"}, out.SuccessfulTests())

	out = table.TestAll(ctx, "zzz")
	assert.Equal(t, 0, out.Successes())
	assert.Equal(t, 3, out.ActiveCount())
}

func TestTable_Retirement(t *testing.T) {
	table := newTestTable(t)
	ctx := context.Background()

	table.Retire([]score.TestID{"a", "unknown"})
	assert.Equal(t, 2, table.RemainingCount())
	assert.Equal(t, 3, table.AvailableCount())

	out := table.TestAll(ctx, "abc")
	assert.Equal(t, "[x,1,1]", out.String())
	assert.Equal(t, "[x,0,0]", table.EmptyOutcome().String())

	table.ResetRetirements()
	assert.Equal(t, 3, table.RemainingCount())
	assert.Equal(t, "[0,0,0]", table.EmptyOutcome().String())
}

func TestTable_PanickingPredicateFails(t *testing.T) {
	table, err := NewTable([]Test{
		{ID: "boom", Pass: func(string) bool { panic("predicate crashed") }},
		containsTest("ok", "x"),
	}, nil)
	require.NoError(t, err)

	var out score.Outcome
	assert.NotPanics(t, func() {
		out = table.TestAll(context.Background(), "x")
	})
	assert.Equal(t, "[0,1]", out.String())
}

func TestTable_SanityCheck(t *testing.T) {
	t.Run("reference payload passes", func(t *testing.T) {
		table, err := NewTable(ContextTests(), nil)
		require.NoError(t, err)
		assert.True(t, table.SanityCheck(context.Background()))
	})

	t.Run("retired tests still count", func(t *testing.T) {
		table, err := NewTable(ContextTests(), nil)
		require.NoError(t, err)
		table.Retire([]score.TestID{"html_body"})
		assert.True(t, table.SanityCheck(context.Background()))
	})

	t.Run("harness that never passes", func(t *testing.T) {
		table, err := NewTable([]Test{
			{ID: "never", Pass: func(string) bool { return false }},
		}, nil)
		require.NoError(t, err)
		assert.False(t, table.SanityCheck(context.Background()))
	})
}

func TestContextTests(t *testing.T) {
	table, err := NewTable(ContextTests(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
		passes  []score.TestID
	}{
		{"plain text", "hello", nil},
		{"script tag", "<script>x</script>", []score.TestID{"html_body"}},
		{"attribute breakout", `"><img src=x onerror=alert(1)>`, []score.TestID{"attribute_double_quoted"}},
		{"comment breakout", "--><script>x</script>", []score.TestID{"html_body", "html_comment"}},
		{"javascript url", "javascript:import('//x')", []score.TestID{"javascript_url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := table.TestAll(ctx, tt.payload)
			if tt.passes == nil {
				assert.Empty(t, out.SuccessfulTests())
				return
			}
			assert.Equal(t, tt.passes, out.SuccessfulTests())
		})
	}
}

func TestDecorators(t *testing.T) {
	ctx := context.Background()
	b := budget.NewCallBudget(budget.Of(2))
	var o Oracle = WithBudget(NewInstrumented(newTestTable(t), "local"), b)

	o.TestAll(ctx, "a")
	assert.False(t, b.Exhausted())
	out := o.TestAll(ctx, "abc")
	assert.Equal(t, 3, out.Successes())
	assert.True(t, b.Exhausted())
	assert.EqualValues(t, 2, b.Used())

	o.Retire([]score.TestID{"a"})
	assert.Equal(t, 2, o.RemainingCount())
	assert.NoError(t, o.Close())
}

func TestSanitizeKind(t *testing.T) {
	assert.Equal(t, "remote", sanitizeKind("remote"))
	assert.Equal(t, "unknown", sanitizeKind("something-else"))
}
