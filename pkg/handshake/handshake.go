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

// Package handshake implements the one-directional ready-flag protocol on top of a shared
// memory channel.
//
// A Sender is the only party that sets a channel's flag and a Receiver the only party that
// clears it. Send waits while the previous record is unconsumed; Receive waits while no
// record is ready. Both poll at a fixed interval on the calling goroutine, stop after an
// optional timeout, honour context cancellation, and give up once transport failures
// exhaust the retry budget.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/logging"
	"github.com/srediag/ffd-cosim/pkg/shm"
)

const (
	// DefaultPollInterval is the wait between two flag checks.
	DefaultPollInterval = time.Second
	// DefaultMaxTransportRetries bounds the open/map failures counted per transfer.
	DefaultMaxTransportRetries = 10
)

var (
	// ErrProtocolTimeout is returned when the peer does not respond within Config.Timeout.
	ErrProtocolTimeout = errors.New("handshake: peer did not respond in time")
	// ErrRetryBudgetExhausted is matched by RetryBudgetError.
	ErrRetryBudgetExhausted = errors.New("handshake: transport retry budget exhausted")
)

// RetryBudgetError is fatal: the region stayed unreachable for the whole budget.
type RetryBudgetError struct {
	Direction Direction
	Channel   string
	Failures  uint64
	Last      error
}

func (e *RetryBudgetError) Error() string {
	return fmt.Sprintf("handshake %s on %s: %d transport failures: %v", e.Direction, e.Channel, e.Failures, e.Last)
}

func (e *RetryBudgetError) Unwrap() []error {
	return []error{ErrRetryBudgetExhausted, e.Last}
}

// Direction names a channel's data flow.
type Direction string

const (
	SolverToPeer Direction = "solver_to_peer"
	PeerToSolver Direction = "peer_to_solver"
)

// Config holds the waiting policy shared by senders and receivers.
type Config struct {
	PollInterval time.Duration
	// Timeout bounds a single Send or Receive. Zero waits for as long as ctx allows.
	Timeout time.Duration
	// MaxTransportRetries is the number of transport failures tolerated per transfer.
	MaxTransportRetries uint64
	Logger              api.Logger
	Metrics             *Metrics
}

// DefaultConfig polls once a second with no deadline.
func DefaultConfig() Config {
	return Config{
		PollInterval:        DefaultPollInterval,
		MaxTransportRetries: DefaultMaxTransportRetries,
	}
}

func (c Config) normalize() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	c.Logger = logging.OrNop(c.Logger)
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	return c
}

// Publisher is the producer half of a channel.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, body []byte) error
}

// Consumer is the consumer half of a channel.
type Consumer interface {
	Name() string
	Consume(ctx context.Context) ([]byte, error)
}

var (
	_ Publisher = (*shm.Channel)(nil)
	_ Consumer  = (*shm.Channel)(nil)
)

// Sender produces records on one channel.
type Sender struct {
	ch  Publisher
	dir Direction
	cfg Config
}

// NewSender returns the producer for ch.
func NewSender(ch Publisher, dir Direction, cfg Config) *Sender {
	return &Sender{ch: ch, dir: dir, cfg: cfg.normalize()}
}

// Send blocks until the previous record was consumed, then writes body and raises the flag.
func (s *Sender) Send(ctx context.Context, body []byte) error {
	w := s.waiter()
	err := w.run(ctx, func(ctx context.Context) error {
		return s.ch.Publish(ctx, body)
	}, shm.ErrBusy, "previous record not consumed yet")
	if err != nil {
		return fmt.Errorf("send on %s: %w", s.ch.Name(), err)
	}
	s.cfg.Metrics.transfers.WithLabelValues(string(s.dir)).Inc()
	return nil
}

// Receiver consumes records from one channel.
type Receiver struct {
	ch  Consumer
	dir Direction
	cfg Config
}

// NewReceiver returns the consumer for ch.
func NewReceiver(ch Consumer, dir Direction, cfg Config) *Receiver {
	return &Receiver{ch: ch, dir: dir, cfg: cfg.normalize()}
}

// Receive blocks until a record is ready, copies it out and clears the flag.
func (r *Receiver) Receive(ctx context.Context) ([]byte, error) {
	w := r.waiter()
	var body []byte
	err := w.run(ctx, func(ctx context.Context) error {
		b, err := r.ch.Consume(ctx)
		if err == nil {
			body = b
		}
		return err
	}, shm.ErrEmpty, "no record ready yet")
	if err != nil {
		return nil, fmt.Errorf("receive on %s: %w", r.ch.Name(), err)
	}
	r.cfg.Metrics.transfers.WithLabelValues(string(r.dir)).Inc()
	return body, nil
}

var (
	_ api.Sender   = (*Sender)(nil)
	_ api.Receiver = (*Receiver)(nil)
)

func (s *Sender) waiter() *waiter {
	return &waiter{channel: s.ch.Name(), dir: s.dir, cfg: s.cfg}
}

func (r *Receiver) waiter() *waiter {
	return &waiter{channel: r.ch.Name(), dir: r.dir, cfg: r.cfg}
}

// waiter runs one transfer attempt per poll until it succeeds or a stop condition hits.
type waiter struct {
	channel string
	dir     Direction
	cfg     Config
}

func (w *waiter) run(ctx context.Context, attempt func(context.Context) error, notYet error, what string) error {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, w.cfg.Timeout, ErrProtocolTimeout)
		defer cancel()
	}
	started := time.Now()
	var polls, failures uint64

	op := func() error {
		err := attempt(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, notYet):
			polls++
			w.cfg.Metrics.waitRetries.WithLabelValues(string(w.dir)).Inc()
			w.cfg.Logger.Logf(api.LevelWarning, "%s (%s): %s, retry %d in %s",
				w.channel, w.dir, what, polls, w.cfg.PollInterval)
			return err
		case shm.IsTransportError(err):
			failures++
			w.cfg.Metrics.transportErrors.WithLabelValues(string(w.dir)).Inc()
			w.cfg.Logger.Logf(api.LevelError, "%s (%s): transport failure %d of %d: %v",
				w.channel, w.dir, failures, w.cfg.MaxTransportRetries, err)
			if failures > w.cfg.MaxTransportRetries {
				return backoff.Permanent(&RetryBudgetError{Direction: w.dir, Channel: w.channel, Failures: failures, Last: err})
			}
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(w.cfg.PollInterval), ctx)
	err := backoff.Retry(op, b)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrProtocolTimeout) {
			w.cfg.Logger.Logf(api.LevelError, "%s (%s): gave up after %s and %d polls",
				w.channel, w.dir, time.Since(started).Round(time.Millisecond), polls)
			return fmt.Errorf("%w after %s", ErrProtocolTimeout, w.cfg.Timeout)
		}
		return ctx.Err()
	}
	return err
}
