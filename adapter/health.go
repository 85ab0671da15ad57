/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package adapter connects a cosimulation session to external monitoring: health probes,
// Prometheus scraping and OpenTelemetry.
package adapter

import (
	"errors"
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/ffd-cosim/pkg/cosim"
)

// SessionStatus is the part of a session the probes read.
type SessionStatus interface {
	State() cosim.State
	SinceLastExchange() time.Duration
	Err() error
}

var _ SessionStatus = (*cosim.Session)(nil)

// HealthOptions tunes the probes.
type HealthOptions struct {
	// MaxIdle fails liveness when no exchange completed for that long. Zero disables it.
	MaxIdle time.Duration
	// MaxGoroutines fails liveness above that many goroutines. Zero disables it.
	MaxGoroutines int
}

var errNotReady = errors.New("session not ready")

// NewHealthHandler returns /live and /ready probes for sess. Readiness requires a
// negotiated session; liveness fails once the session failed or the peer went quiet.
func NewHealthHandler(sess SessionStatus, opts HealthOptions) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddReadinessCheck("session-ready", func() error {
		if st := sess.State(); st != cosim.Ready {
			return fmt.Errorf("%w: %s", errNotReady, st)
		}
		return nil
	})
	h.AddLivenessCheck("session-not-failed", func() error {
		if sess.State() == cosim.Failed {
			return fmt.Errorf("session failed: %w", sess.Err())
		}
		return nil
	})
	if opts.MaxIdle > 0 {
		h.AddLivenessCheck("exchange-age", func() error {
			if idle := sess.SinceLastExchange(); idle > opts.MaxIdle {
				return fmt.Errorf("no exchange for %s", idle.Round(time.Second))
			}
			return nil
		})
	}
	if opts.MaxGoroutines > 0 {
		h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))
	}
	return h
}
