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

package cosim

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/handshake"
	"github.com/srediag/ffd-cosim/pkg/logging"
	"github.com/srediag/ffd-cosim/pkg/shm"
)

// Channels is the pair of regions of one run.
type Channels struct {
	// SolverToPeer carries OutgoingRecords.
	SolverToPeer *shm.Channel
	// PeerToSolver carries IncomingRecords.
	PeerToSolver *shm.Channel
}

// Remove unlinks both regions.
func (c *Channels) Remove() error {
	return errors.Join(c.SolverToPeer.Remove(), c.PeerToSolver.Remove())
}

// CreateChannels creates both regions empty. The peer creates them before the solver starts.
func CreateChannels(ctx context.Context, cfg *Config) (*Channels, error) {
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	out, err := shm.Create(ctx, cfg.channelConfig(cfg.SolverChannel))
	if err != nil {
		return nil, fmt.Errorf("create solver channel: %w", err)
	}
	in, err := shm.Create(ctx, cfg.channelConfig(cfg.PeerChannel))
	if err != nil {
		_ = out.Remove()
		return nil, fmt.Errorf("create peer channel: %w", err)
	}
	return &Channels{SolverToPeer: out, PeerToSolver: in}, nil
}

// OpenChannels opens both regions, retrying up to cfg.OpenRetries times, one poll interval
// apart, while they are missing or not sized yet.
func OpenChannels(ctx context.Context, cfg *Config) (*Channels, error) {
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	log := logging.OrNop(cfg.Logger)
	open := func(name string) (*shm.Channel, error) {
		var ch *shm.Channel
		attempt := 0
		op := func() error {
			attempt++
			c, err := shm.Open(ctx, cfg.channelConfig(name))
			if err == nil {
				ch = c
				return nil
			}
			// a region being created may still be too small to map
			if !shm.IsTransportError(err) {
				return backoff.Permanent(err)
			}
			log.Logf(api.LevelWarning, "region %s not usable yet (attempt %d of %d): %v", name, attempt, cfg.OpenRetries+1, err)
			return err
		}
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.PollInterval), cfg.OpenRetries), ctx)
		if err := backoff.Retry(op, b); err != nil {
			log.Logf(api.LevelError, "cannot open region %s: %v", name, err)
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		return ch, nil
	}

	out, err := open(cfg.SolverChannel)
	if err != nil {
		return nil, err
	}
	in, err := open(cfg.PeerChannel)
	if err != nil {
		return nil, err
	}
	return &Channels{SolverToPeer: out, PeerToSolver: in}, nil
}

// NewSessionOn builds a session exchanging over chs.
func NewSessionOn(cfg *Config, solver api.Solver, chs *Channels) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	hm := handshake.NewMetrics(cfg.Registerer)
	hc := cfg.handshakeConfig(hm)
	return NewSession(cfg,
		solver,
		handshake.NewSender(chs.SolverToPeer, handshake.SolverToPeer, hc),
		handshake.NewReceiver(chs.PeerToSolver, handshake.PeerToSolver, hc),
	)
}

// Dial opens the regions the peer created and returns a session on them.
func Dial(ctx context.Context, cfg *Config, solver api.Solver) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	chs, err := OpenChannels(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSessionOn(cfg, solver, chs)
}
