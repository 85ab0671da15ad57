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

// Package cosim runs the solver side of a cosimulation: the one-time negotiation that
// reconciles the peer's boundary declarations with the solver, followed by the lock-step
// produce/consume exchange.
package cosim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/logging"
	"github.com/srediag/ffd-cosim/pkg/matcher"
	"github.com/srediag/ffd-cosim/pkg/record"
	"github.com/srediag/ffd-cosim/pkg/shm"
)

const instrumentationName = "github.com/srediag/ffd-cosim/pkg/cosim"

// Session is the solver side of one cosimulation run. Negotiate, Produce and Consume must
// be called from a single goroutine; State and SinceLastExchange may be called from any.
type Session struct {
	id     string
	cfg    *Config
	solver api.Solver
	log    api.Logger
	out    api.Sender
	in     api.Receiver

	state        atomic.Int32
	lastExchange atomic.Int64
	failure      atomic.Pointer[error]

	params    *Parameters
	unclaimed []string
	step      uint64

	history  *history
	metrics  *Metrics
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// NewSession creates a session exchanging through out (solver to peer) and in (peer to
// solver). A nil cfg selects DefaultConfig.
func NewSession(cfg *Config, solver api.Solver, out api.Sender, in api.Receiver) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	if solver == nil || out == nil || in == nil {
		return nil, errors.New("cosim: solver, sender and receiver are required")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	meter := cfg.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	duration, err := meter.Float64Histogram("cosim.exchange.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a produce or consume call, peer wait included."))
	if err != nil {
		return nil, fmt.Errorf("cosim: create histogram: %w", err)
	}

	id := uuid.NewString()
	log := logging.OrNop(cfg.Logger)
	if l, ok := log.(*logging.Logger); ok && l != nil {
		log = l.WithField("session", id)
	}
	s := &Session{
		id:       id,
		cfg:      cfg,
		solver:   solver,
		log:      log,
		out:      out,
		in:       in,
		history:  newHistory(cfg.HistoryDepth),
		metrics:  NewMetrics(cfg.Registerer),
		tracer:   tracer,
		duration: duration,
	}
	s.metrics.state.Set(float64(Uninitialized))
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// State returns the current negotiation state.
func (s *Session) State() State { return State(s.state.Load()) }

// Err returns the error that failed the session, or nil.
func (s *Session) Err() error {
	if p := s.failure.Load(); p != nil {
		return *p
	}
	return nil
}

// Step returns the number of completed produce/consume cycles.
func (s *Session) Step() uint64 { return s.step }

// Parameters returns a copy of the negotiated parameters with their ids, or nil before
// names were matched.
func (s *Session) Parameters() *Parameters {
	if s.params == nil || s.State() < NamesMatched || s.State() == Failed {
		return nil
	}
	c := *s.params
	c.Surfaces = append([]BoundaryDescriptor(nil), s.params.Surfaces...)
	c.Ports = append([]PortDescriptor(nil), s.params.Ports...)
	c.Sensors = append([]SensorDescriptor(nil), s.params.Sensors...)
	return &c
}

// UnmatchedSolverBoundaries lists the solver boundaries outside the negotiated set, such as
// blocks. Walls and ports are always claimed once negotiation reaches Ready. The session
// never exchanges values for the listed boundaries.
func (s *Session) UnmatchedSolverBoundaries() []string {
	return append([]string(nil), s.unclaimed...)
}

// History returns the most recent exchanges, oldest first.
func (s *Session) History() []Exchange { return s.history.snapshot() }

// SinceLastExchange returns the time elapsed since the last completed exchange, or zero
// when none happened yet.
func (s *Session) SinceLastExchange() time.Duration {
	last := s.lastExchange.Load()
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.state.Set(float64(st))
	s.log.Logf(api.LevelNormal, "state %s", st)
}

func (s *Session) fail(err error) error {
	s.failure.Store(&err)
	s.setState(Failed)
	s.log.Logf(api.LevelError, "%v", err)
	return err
}

func (s *Session) usable() error {
	switch s.State() {
	case Ready:
		return nil
	case Failed:
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.Err())
	default:
		return fmt.Errorf("%w: state %s", ErrNotReady, s.State())
	}
}

// Negotiate ingests the declared parameters and reconciles them with the solver. On
// success the session is Ready; on any error it is Failed for good.
func (s *Session) Negotiate(ctx context.Context, params *Parameters) (err error) {
	switch st := s.State(); st {
	case Uninitialized:
	case Failed:
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.Err())
	default:
		return fmt.Errorf("%w: state %s", ErrAlreadyNegotiated, st)
	}
	if params == nil {
		return s.fail(errors.New("cosim: no parameters"))
	}

	_, span := s.tracer.Start(ctx, "cosim.negotiate", trace.WithAttributes(attribute.String("cosim.session", s.id)))
	defer func() {
		result := "ready"
		if err != nil {
			result = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.negotiations.WithLabelValues(result).Inc()
		span.End()
	}()

	s.log.Logf(api.LevelNew, "negotiating %d surfaces, %d ports, %d sensors, shade %t",
		params.NumSurfaces, params.NumPorts, params.NumSensors, params.HasShade)
	s.params = params.Clone()
	s.setState(ParametersReceived)

	walls, ports, counts := partition(s.solver.Boundaries())
	counts.DeclaredSurfaces = s.params.NumSurfaces
	counts.DeclaredPorts = s.params.NumPorts
	if err := checkCounts(s.params, counts); err != nil {
		return s.fail(err)
	}
	if err := checkCapacity(s.expectedDims(), s.cfg.RegionSize-shm.DataOffset); err != nil {
		return s.fail(err)
	}
	for _, d := range s.params.Surfaces {
		if !d.Kind.Valid() {
			return s.fail(&UnrecognizedKindError{Name: d.Name, Kind: d.Kind})
		}
	}

	if err := s.matchNames(walls, ports); err != nil {
		return s.fail(err)
	}
	s.setState(NamesMatched)

	if err := s.validateAreas(); err != nil {
		return s.fail(err)
	}
	s.setState(AreasValidated)

	s.setState(Ready)
	s.log.Logf(api.LevelNormal, "negotiation finished, %d solver boundaries left unmatched", len(s.unclaimed))
	return nil
}

// partition splits the solver boundary list into wall and port candidates.
func partition(boundaries []api.Boundary) (walls, ports []matcher.Candidate, c Counts) {
	for i, b := range boundaries {
		switch b.Type {
		case api.BoundaryWall:
			walls = append(walls, matcher.Candidate{Index: i, Name: b.Name})
			c.SolverWalls++
		case api.BoundaryInlet:
			ports = append(ports, matcher.Candidate{Index: i, Name: b.Name})
			c.SolverInlets++
		case api.BoundaryOutlet:
			ports = append(ports, matcher.Candidate{Index: i, Name: b.Name})
			c.SolverOutlets++
		}
	}
	return walls, ports, c
}

func checkCounts(p *Parameters, c Counts) error {
	mismatch := func(what string, declared, local int) error {
		return &SchemaMismatchError{What: what, Declared: declared, Local: local, Counts: c}
	}
	switch {
	case p.NumSurfaces != len(p.Surfaces):
		return mismatch("declared surface", p.NumSurfaces, len(p.Surfaces))
	case p.NumPorts != len(p.Ports):
		return mismatch("declared port", p.NumPorts, len(p.Ports))
	case p.NumSensors != len(p.Sensors):
		return mismatch("declared sensor", p.NumSensors, len(p.Sensors))
	case p.NumSurfaces != c.SolverWalls:
		return mismatch("surface", p.NumSurfaces, c.SolverWalls)
	case p.NumPorts != c.SolverInlets+c.SolverOutlets:
		return mismatch("port", p.NumPorts, c.SolverInlets+c.SolverOutlets)
	case p.NumConExtWin < 0 || p.NumSpecies < 0 || p.NumTrace < 0:
		return fmt.Errorf("%w: negative dimension (windows=%d species=%d trace=%d)",
			ErrSchemaMismatch, p.NumConExtWin, p.NumSpecies, p.NumTrace)
	}
	return nil
}

// checkCapacity rejects dimensions whose largest record does not fit a region body.
func checkCapacity(d record.Dims, capacity int) error {
	if n := record.OutgoingSize(d); n > capacity {
		return fmt.Errorf("%w: outgoing record needs %d bytes, region body holds %d", ErrSchemaMismatch, n, capacity)
	}
	if n := record.IncomingSize(d); n > capacity {
		return fmt.Errorf("%w: incoming record needs %d bytes, region body holds %d", ErrSchemaMismatch, n, capacity)
	}
	return nil
}

func (s *Session) matchNames(walls, ports []matcher.Candidate) error {
	boundaries := s.solver.Boundaries()

	res := matcher.MatchNames(s.params.surfaceNames(), walls)
	for _, d := range res.Diagnostics {
		s.log.Logf(api.LevelError, "surface %v", d)
	}
	if !res.OK() {
		return &NameResolutionError{What: "surface", Diagnostic: res.Diagnostics[0]}
	}
	for i, id := range res.IDs {
		s.params.Surfaces[i].ID = id
		s.log.Logf(api.LevelNormal, "surface %q matched solver boundary %d", s.params.Surfaces[i].Name, id)
	}
	for _, idx := range res.Unclaimed {
		s.unclaimed = append(s.unclaimed, boundaries[idx].Name)
	}

	res = matcher.MatchNames(s.params.portNames(), ports)
	for _, d := range res.Diagnostics {
		s.log.Logf(api.LevelError, "port %v", d)
	}
	if !res.OK() {
		return &NameResolutionError{What: "port", Diagnostic: res.Diagnostics[0]}
	}
	for i, id := range res.IDs {
		s.params.Ports[i].ID = id
		s.log.Logf(api.LevelNormal, "port %q matched solver boundary %d", s.params.Ports[i].Name, id)
	}
	for _, idx := range res.Unclaimed {
		s.unclaimed = append(s.unclaimed, boundaries[idx].Name)
	}
	for _, b := range boundaries {
		switch b.Type {
		case api.BoundaryWall, api.BoundaryInlet, api.BoundaryOutlet:
		default:
			s.unclaimed = append(s.unclaimed, b.Name)
		}
	}
	for _, name := range s.unclaimed {
		s.log.Logf(api.LevelWarning, "solver boundary %q has no declared counterpart", name)
	}
	return nil
}

func (s *Session) validateAreas() error {
	surfaces := make([]matcher.Pair, len(s.params.Surfaces))
	for i, d := range s.params.Surfaces {
		surfaces[i] = matcher.Pair{Name: d.Name, ID: d.ID, Declared: d.Area}
	}
	if err := matcher.ValidateAreas(surfaces, s.solver.AreaOf, s.cfg.AreaTolerance); err != nil {
		return geometryError("surface", err)
	}
	ports := make([]matcher.Pair, len(s.params.Ports))
	for i, p := range s.params.Ports {
		ports[i] = matcher.Pair{Name: p.Name, ID: p.ID, Declared: p.Area}
	}
	if err := matcher.ValidateAreas(ports, s.solver.AreaOf, s.cfg.AreaTolerance); err != nil {
		return geometryError("port", err)
	}
	return nil
}

func geometryError(what string, err error) error {
	var m *matcher.AreaMismatch
	if errors.As(err, &m) {
		return &GeometryMismatchError{What: what, Mismatch: m}
	}
	return err
}
