// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgMax_FirstMaximumWins(t *testing.T) {
	assert.Equal(t, -1, ArgMax(nil))
	assert.Equal(t, 0, ArgMax([]float64{3}))
	assert.Equal(t, 1, ArgMax([]float64{1, 5, 5, 2}))
	assert.Equal(t, 0, ArgMax([]float64{2, 2, 2}))
}

func TestEntropy(t *testing.T) {
	assert.InDelta(t, math.Log(2), Entropy([]float64{3, 3}), 1e-12)
	assert.InDelta(t, 0, Entropy([]float64{0, 4, 0}), 1e-12)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, 1, CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-12)
}

func TestAdd_LengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { Add([]float64{1}, []float64{1, 2}) })
}
