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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/handshake"
	"github.com/srediag/ffd-cosim/pkg/record"
)

const (
	opProduce = "produce"
	opConsume = "consume"
)

// Produce sends the finalized state of the current step to the peer. It must run exactly
// once per step, after the solver finished the step.
//
// A protocol timeout or a cancelled ctx leaves the session Ready and the step unsent; any
// other error fails the session.
func (s *Session) Produce(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	started := time.Now()
	ctx, span := s.startExchange(ctx, opProduce)
	defer span.End()

	snap := s.solver.Snapshot()
	rec, err := s.outgoing(&snap)
	if err != nil {
		return s.exchangeFailed(span, opProduce, err)
	}
	body, err := record.EncodeOutgoing(rec)
	if err != nil {
		return s.exchangeFailed(span, opProduce, fmt.Errorf("encode: %w", err))
	}
	if err := s.out.Send(ctx, body); err != nil {
		return s.exchangeFailed(span, opProduce, err)
	}
	s.finishExchange(ctx, span, opProduce, rec.Time, len(body), started)
	return nil
}

// Consume waits for the peer's answer to the current step, interprets it per surface kind
// and hands it to the solver. It completes the step.
//
// Error handling follows Produce.
func (s *Session) Consume(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}
	started := time.Now()
	ctx, span := s.startExchange(ctx, opConsume)
	defer span.End()

	body, err := s.in.Receive(ctx)
	if err != nil {
		return s.exchangeFailed(span, opConsume, err)
	}
	rec, err := record.DecodeIncoming(body)
	if err != nil {
		return s.exchangeFailed(span, opConsume, fmt.Errorf("decode: %w", err))
	}
	fb, err := s.feedback(rec)
	if err != nil {
		return s.exchangeFailed(span, opConsume, err)
	}
	if err := s.solver.Apply(fb); err != nil {
		return s.exchangeFailed(span, opConsume, fmt.Errorf("apply: %w", err))
	}
	s.finishExchange(ctx, span, opConsume, rec.Time, len(body), started)
	s.step++
	return nil
}

func (s *Session) startExchange(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "cosim."+op, trace.WithAttributes(
		attribute.String("cosim.session", s.id),
		attribute.Int64("cosim.step", int64(s.step)),
	))
}

func (s *Session) finishExchange(ctx context.Context, span trace.Span, op string, simTime float64, n int, started time.Time) {
	wait := time.Since(started)
	now := time.Now()
	s.lastExchange.Store(now.UnixNano())
	s.history.add(Exchange{Step: s.step, Op: op, SimTime: simTime, Bytes: n, Wait: wait, At: now})
	s.metrics.exchanges.WithLabelValues(op).Inc()
	s.metrics.simTime.Set(simTime)
	s.duration.Record(ctx, wait.Seconds(), metric.WithAttributes(attribute.String("op", op)))
	span.SetAttributes(attribute.Float64("cosim.sim_time", simTime), attribute.Int("cosim.bytes", n))
	s.log.Logf(api.LevelNormal, "%s step %d at t=%g (%d bytes, %s)",
		op, s.step, simTime, n, wait.Round(time.Millisecond))
}

// exchangeFailed records err on span and fails the session unless err is recoverable.
func (s *Session) exchangeFailed(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	err = fmt.Errorf("%s step %d: %w", op, s.step, err)
	if recoverable(err) {
		s.log.Logf(api.LevelWarning, "%v", err)
		return err
	}
	return s.fail(err)
}

func recoverable(err error) bool {
	return errors.Is(err, handshake.ErrProtocolTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// outgoing maps a solver snapshot onto the declared order of surfaces and ports.
func (s *Session) outgoing(snap *api.Snapshot) (*record.OutgoingRecord, error) {
	p := s.params
	rec := &record.OutgoingRecord{
		Time:            snap.Time,
		RoomTemperature: snap.RoomTemperature + KelvinOffset,
	}

	if len(snap.ShadeTemperatures) != p.NumShades() {
		return nil, fmt.Errorf("%w: snapshot has %d shade temperatures, %d declared",
			record.ErrDimensionCount, len(snap.ShadeTemperatures), p.NumShades())
	}
	if len(snap.SensorValues) != p.NumSensors {
		return nil, fmt.Errorf("%w: snapshot has %d sensor values, %d declared",
			record.ErrDimensionCount, len(snap.SensorValues), p.NumSensors)
	}
	rec.ShadeTemperatures = append([]float64(nil), snap.ShadeTemperatures...)
	rec.SensorValues = append([]float64(nil), snap.SensorValues...)

	rec.SurfaceValues = make([]float64, len(p.Surfaces))
	for i, d := range p.Surfaces {
		v, err := at(snap.BoundaryValues, d.ID, "boundary value", d.Name)
		if err != nil {
			return nil, err
		}
		rec.SurfaceValues[i] = v
	}

	rec.PortTemperatures = make([]float64, len(p.Ports))
	if p.NumSpecies > 0 {
		rec.PortSpecies = make([][]float64, len(p.Ports))
	}
	if p.NumTrace > 0 {
		rec.PortTrace = make([][]float64, len(p.Ports))
	}
	for j, d := range p.Ports {
		v, err := at(snap.PortTemperatures, d.ID, "port temperature", d.Name)
		if err != nil {
			return nil, err
		}
		rec.PortTemperatures[j] = v
		if p.NumSpecies > 0 {
			if rec.PortSpecies[j], err = row(snap.PortSpecies, d.ID, p.NumSpecies, "species", d.Name); err != nil {
				return nil, err
			}
		}
		if p.NumTrace > 0 {
			if rec.PortTrace[j], err = row(snap.PortTrace, d.ID, p.NumTrace, "trace", d.Name); err != nil {
				return nil, err
			}
		}
	}
	return rec, nil
}

func at(vs []float64, id int, what, name string) (float64, error) {
	if id < 0 || id >= len(vs) {
		return 0, fmt.Errorf("%w: snapshot has no %s for %q (boundary %d of %d)",
			record.ErrDimensionCount, what, name, id, len(vs))
	}
	return vs[id], nil
}

func row(m [][]float64, id, n int, what, name string) ([]float64, error) {
	if id < 0 || id >= len(m) || len(m[id]) != n {
		return nil, fmt.Errorf("%w: snapshot has no %d %s values for port %q",
			record.ErrDimensionCount, n, what, name)
	}
	return append([]float64(nil), m[id]...), nil
}

// expectedDims are the record dimensions the negotiation fixed.
func (s *Session) expectedDims() record.Dims {
	p := s.params
	return record.Dims{
		Surfaces: p.NumSurfaces,
		Shades:   p.NumShades(),
		Ports:    p.NumPorts,
		Species:  p.NumSpecies,
		Trace:    p.NumTrace,
		Sensors:  p.NumSensors,
	}
}

// feedback checks rec against the negotiated dimensions and maps it onto solver ids.
func (s *Session) feedback(rec *record.IncomingRecord) (*api.Feedback, error) {
	got, err := rec.Dims()
	if err != nil {
		return nil, err
	}
	want := s.expectedDims()
	got.Sensors = want.Sensors
	if got.Ports == 0 {
		// empty matrices carry no column count
		got.Species, got.Trace = want.Species, want.Trace
	}
	if got != want {
		return nil, fmt.Errorf("%w: peer sent %+v, negotiated %+v", record.ErrDimensionCount, got, want)
	}

	p := s.params
	fb := &api.Feedback{
		Time:          rec.Time,
		Surfaces:      make([]api.SurfaceFeedback, len(p.Surfaces)),
		Ports:         make([]api.PortFeedback, len(p.Ports)),
		ShadeControl:  rec.ShadeControl,
		ShadeAbsorbed: rec.ShadeAbsorbed,
	}
	for i, d := range p.Surfaces {
		v := rec.SurfaceValues[i]
		switch d.Kind {
		case api.KindFixedTemperature:
			s.log.Logf(api.LevelNormal, "surface %q (boundary %d) wall temperature %g K", d.Name, d.ID, v)
		case api.KindFixedHeatFlux:
			s.log.Logf(api.LevelNormal, "surface %q (boundary %d) heat flux %g W/m2", d.Name, d.ID, v)
		default:
			return nil, &UnrecognizedKindError{Name: d.Name, Kind: d.Kind}
		}
		fb.Surfaces[i] = api.SurfaceFeedback{ID: d.ID, Name: d.Name, Kind: d.Kind, Value: v}
	}
	for j, d := range p.Ports {
		pf := api.PortFeedback{
			ID:          d.ID,
			Name:        d.Name,
			MassFlow:    rec.PortMassFlows[j],
			Temperature: rec.PortTemperatures[j],
		}
		if len(rec.PortSpecies) > 0 {
			pf.Species = rec.PortSpecies[j]
		}
		if len(rec.PortTrace) > 0 {
			pf.Trace = rec.PortTrace[j]
		}
		fb.Ports[j] = pf
	}
	return fb, nil
}
