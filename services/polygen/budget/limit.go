// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidLimit is returned when a limit cannot be parsed.
var ErrInvalidLimit = errors.New("invalid limit")

// Limit is a non-negative count or Unbounded.
//
// The zero value is a limit of 0.
type Limit struct {
	n         int
	unbounded bool
}

// Unbounded is the limit that never runs out.
var Unbounded = Limit{unbounded: true}

// Of returns a bounded limit. Negative n panics.
func Of(n int) Limit {
	if n < 0 {
		panic(fmt.Sprintf("budget: negative limit %d", n))
	}
	return Limit{n: n}
}

// ParseLimit parses an integer or one of "infinite", "unbounded", "inf".
func ParseLimit(s string) (Limit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "infinite", "unbounded", "inf":
		return Unbounded, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return Limit{}, fmt.Errorf("%w: %q", ErrInvalidLimit, s)
	}
	return Limit{n: n}, nil
}

// Unbounded reports whether the limit never runs out.
func (l Limit) Unbounded() bool {
	return l.unbounded
}

// Value returns the bound. It is meaningless for Unbounded.
func (l Limit) Value() int {
	return l.n
}

// Allows reports whether count is still below the limit.
func (l Limit) Allows(count int) bool {
	return l.unbounded || count < l.n
}

// String returns the integer or "infinite".
func (l Limit) String() string {
	if l.unbounded {
		return "infinite"
	}
	return strconv.Itoa(l.n)
}

// MarshalText implements encoding.TextMarshaler.
func (l Limit) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Limit) UnmarshalText(text []byte) error {
	parsed, err := ParseLimit(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalJSON encodes bounded limits as numbers and Unbounded as "infinite".
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unbounded {
		return json.Marshal("infinite")
	}
	return json.Marshal(l.n)
}

// UnmarshalJSON accepts a number or a string.
func (l *Limit) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidLimit, n)
		}
		*l = Limit{n: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidLimit, data)
	}
	return l.UnmarshalText([]byte(s))
}

// MarshalYAML implements yaml.Marshaler.
func (l Limit) MarshalYAML() (any, error) {
	if l.unbounded {
		return "infinite", nil
	}
	return l.n, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	return l.UnmarshalText([]byte(node.Value))
}
