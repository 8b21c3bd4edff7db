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

import "math"

// Sum returns the sum of x.
func Sum(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}

// Add returns the element-wise sum of x and y.
//
// Panics if the lengths differ.
func Add(x, y []float64) []float64 {
	if len(x) != len(y) {
		panic("score: vector length mismatch")
	}
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + y[i]
	}
	return out
}

// Dot returns the dot product of x and y.
func Dot(x, y []float64) float64 {
	if len(x) != len(y) {
		panic("score: vector length mismatch")
	}
	var s float64
	for i := range x {
		s += x[i] * y[i]
	}
	return s
}

// L2 returns the Euclidean norm of x.
func L2(x []float64) float64 {
	return math.Sqrt(Dot(x, x))
}

// CosineSimilarity returns dot(x, y) / (|x| |y|).
func CosineSimilarity(x, y []float64) float64 {
	return Dot(x, y) / (L2(x) * L2(y))
}

// Normalize scales x so it sums to 1.
func Normalize(x []float64) []float64 {
	s := Sum(x)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v / s
	}
	return out
}

// Entropy returns the Shannon entropy, in nats, of x normalized by its sum.
// Zero entries contribute nothing.
func Entropy(x []float64) float64 {
	var h float64
	for _, p := range Normalize(x) {
		if p != 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// ArgMax returns the index of the first maximum of x, or -1 if x is empty.
func ArgMax(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
