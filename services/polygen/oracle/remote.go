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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/polygen/services/polygen/score"
)

// ErrHarnessUnavailable is returned when the test list cannot be fetched.
var ErrHarnessUnavailable = errors.New("test harness unavailable")

// RemoteConfig configures a Remote oracle.
type RemoteConfig struct {
	// BaseURL is the harness root. GET BaseURL lists one test path per line;
	// lines not starting with "/" are ignored.
	BaseURL string

	// Concurrency bounds in-flight test requests per TestAll (default: 4).
	Concurrency int

	// RatePerSecond paces requests across all calls. Zero disables pacing.
	RatePerSecond float64

	// Timeout bounds each test request (default: 10s).
	Timeout time.Duration

	// Client is the HTTP client (default: a new client).
	Client *http.Client

	// Logger for degraded results (default: slog.Default()).
	Logger *slog.Logger
}

// Remote evaluates payloads against an HTTP test harness.
//
// Each test is a path below BaseURL. A payload is evaluated by
// GET BaseURL+path?payload=<payload>, which must answer with
// {"success": true|false}. Any other response counts as a failed test.
//
// Thread Safety: Safe for concurrent use.
type Remote struct {
	registry
	base        string
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewRemote fetches the test list and returns a ready oracle.
//
// Inputs:
//
//	ctx - Context for the test list request.
//	cfg - Harness configuration.
//
// Outputs:
//
//	*Remote - The oracle.
//	error - ErrHarnessUnavailable or ErrNoTests on failure.
func NewRemote(ctx context.Context, cfg RemoteConfig) (*Remote, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Concurrency)
	}

	r := &Remote{
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		client:      cfg.Client,
		limiter:     limiter,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}

	tests, err := r.listTests(ctx)
	if err != nil {
		return nil, err
	}
	if len(tests) == 0 {
		return nil, ErrNoTests
	}
	r.registry = newRegistry(tests)
	return r, nil
}

// TestAll implements Oracle.
func (r *Remote) TestAll(ctx context.Context, payload string) score.Outcome {
	return r.run(ctx, payload, false)
}

// SanityCheck passes if the harness is reachable and the reference payload
// passes at least one test, retired ones included.
func (r *Remote) SanityCheck(ctx context.Context) bool {
	if _, err := r.listTests(ctx); err != nil {
		r.logger.Warn("harness unreachable", slog.String("error", err.Error()))
		return false
	}
	return r.run(ctx, ReferencePayload, true).Successes() > 0
}

// Close releases idle connections.
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *Remote) run(ctx context.Context, payload string, includeRetired bool) score.Outcome {
	results := make([]score.Score, len(r.order))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range r.order {
		if !includeRetired && r.isRetired(id) {
			results[i] = score.Untested()
			continue
		}
		g.Go(func() error {
			passed, err := r.check(ctx, string(id), payload)
			if err != nil {
				r.logger.Debug("test degraded to failure",
					slog.String("test", string(id)),
					slog.String("error", err.Error()))
			}
			results[i] = score.Tested(passed)
			return nil // failures are scores, never errors
		})
	}
	_ = g.Wait()

	scores := make(map[score.TestID]score.Score, len(r.order))
	for i, id := range r.order {
		scores[id] = results[i]
	}
	return score.NewOutcome(r.order, scores)
}

type checkResponse struct {
	Success bool `json:"success"`
}

func (r *Remote) check(ctx context.Context, test, payload string) (bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	target := r.base + test + "?payload=" + url.QueryEscape(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return out.Success, nil
}

func (r *Remote) listTests(ctx context.Context) ([]score.TestID, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHarnessUnavailable, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHarnessUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrHarnessUnavailable, resp.StatusCode)
	}

	var tests []score.TestID
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "/") {
			tests = append(tests, score.TestID(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read test list: %v", ErrHarnessUnavailable, err)
	}
	return tests, nil
}
