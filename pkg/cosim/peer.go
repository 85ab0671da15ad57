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
	"fmt"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/handshake"
	"github.com/srediag/ffd-cosim/pkg/record"
)

// Peer is the mirror half of a session: it receives what the solver produces and sends what
// the solver consumes. It stands in for the building model in tools and tests.
type Peer struct {
	in  api.Receiver
	out api.Sender

	// Expect, when not nil, is checked against every record either way.
	Expect *record.Dims
}

// NewPeer returns a peer exchanging over chs.
func NewPeer(cfg *Config, chs *Channels) *Peer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	hc := cfg.handshakeConfig(handshake.NewMetrics(nil))
	return &Peer{
		in:  handshake.NewReceiver(chs.SolverToPeer, handshake.SolverToPeer, hc),
		out: handshake.NewSender(chs.PeerToSolver, handshake.PeerToSolver, hc),
	}
}

// ExpectParameters makes the peer check records against the dimensions p declares.
func (p *Peer) ExpectParameters(params *Parameters) {
	p.Expect = &record.Dims{
		Surfaces: params.NumSurfaces,
		Shades:   params.NumShades(),
		Ports:    params.NumPorts,
		Species:  params.NumSpecies,
		Trace:    params.NumTrace,
		Sensors:  params.NumSensors,
	}
}

// Receive waits for the solver's record of the current step.
func (p *Peer) Receive(ctx context.Context) (*record.OutgoingRecord, error) {
	body, err := p.in.Receive(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := record.DecodeOutgoing(body)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if p.Expect != nil {
		got, err := rec.Dims()
		if err != nil {
			return nil, err
		}
		if err := p.check(got, true); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Send answers the current step.
func (p *Peer) Send(ctx context.Context, rec *record.IncomingRecord) error {
	if p.Expect != nil {
		got, err := rec.Dims()
		if err != nil {
			return err
		}
		if err := p.check(got, false); err != nil {
			return err
		}
	}
	body, err := record.EncodeIncoming(rec)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return p.out.Send(ctx, body)
}

func (p *Peer) check(got record.Dims, sensors bool) error {
	want := *p.Expect
	if !sensors {
		want.Sensors = 0
	}
	if got.Ports == 0 {
		got.Species, got.Trace = want.Species, want.Trace
	}
	if got != want {
		return fmt.Errorf("%w: record has %+v, declared %+v", record.ErrDimensionCount, got, want)
	}
	return nil
}
