//go:build unix

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
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/handshake"
	"github.com/srediag/ffd-cosim/pkg/logging"
	"github.com/srediag/ffd-cosim/pkg/record"
	"github.com/srediag/ffd-cosim/pkg/shm"
)

type fakeSolver struct {
	boundaries []api.Boundary
	areas      []float64
	snap       api.Snapshot
	applied    []*api.Feedback
}

func (f *fakeSolver) Boundaries() []api.Boundary { return f.boundaries }
func (f *fakeSolver) AreaOf(i int) float64       { return f.areas[i] }
func (f *fakeSolver) Snapshot() api.Snapshot     { return f.snap }

func (f *fakeSolver) Apply(fb *api.Feedback) error {
	f.applied = append(f.applied, fb)
	return nil
}

// room returns a solver with walls North and South, one inlet, one outlet and a block.
func room() *fakeSolver {
	return &fakeSolver{
		boundaries: []api.Boundary{
			{Name: "North", Type: api.BoundaryWall},
			{Name: "South", Type: api.BoundaryWall},
			{Name: "Supply", Type: api.BoundaryInlet},
			{Name: "Exhaust", Type: api.BoundaryOutlet},
			{Name: "Desk", Type: api.BoundaryBlock},
		},
		areas: []float64{12, 10, 0.5, 0.25, 1},
		snap: api.Snapshot{
			Time:              60,
			RoomTemperature:   20,
			BoundaryValues:    []float64{21.5, 19.5, 0, 0, 0},
			ShadeTemperatures: []float64{25},
			PortTemperatures:  []float64{0, 0, 18, 22, 0},
			PortSpecies:       [][]float64{nil, nil, {0.008}, {0.009}, nil},
			SensorValues:      []float64{20.4},
		},
	}
}

func roomParameters() *Parameters {
	return &Parameters{
		NumSurfaces:  2,
		NumSensors:   1,
		NumConExtWin: 1,
		NumPorts:     2,
		NumSpecies:   1,
		HasShade:     true,
		Surfaces: []BoundaryDescriptor{
			{Name: "South", Kind: api.KindFixedTemperature, Area: 10, Tilt: 90},
			{Name: "North", Kind: api.KindFixedHeatFlux, Area: 12, Tilt: 90},
		},
		Ports: []PortDescriptor{
			{Name: "Supply", Area: 0.5},
			{Name: "Exhaust", Area: 0.25},
		},
		Sensors: []SensorDescriptor{{Name: "center", Index: [3]int{5, 5, 5}}},
	}
}

type SessionTestSuite struct {
	suite.Suite
	ctx    context.Context
	cfg    *Config
	chs    *Channels
	solver *fakeSolver
	params *Parameters
}

func (s *SessionTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.cfg = DefaultConfig()
	s.cfg.Dir = s.T().TempDir()
	s.cfg.PollInterval = 2 * time.Millisecond
	s.cfg.Registerer = prometheus.NewRegistry()
	chs, err := CreateChannels(s.ctx, s.cfg)
	s.Require().NoError(err)
	s.chs = chs
	s.solver = room()
	s.params = roomParameters()
}

func (s *SessionTestSuite) TearDownTest() {
	s.Require().NoError(s.chs.Remove())
}

func (s *SessionTestSuite) newSession() *Session {
	sess, err := NewSessionOn(s.cfg, s.solver, s.chs)
	s.Require().NoError(err)
	s.Require().Equal(Uninitialized, sess.State())
	s.Require().NotEmpty(sess.ID())
	return sess
}

func (s *SessionTestSuite) negotiated() *Session {
	sess := s.newSession()
	s.Require().NoError(sess.Negotiate(s.ctx, s.params))
	s.Require().Equal(Ready, sess.State())
	return sess
}

func (s *SessionTestSuite) requireFailed(sess *Session, err, target error, contains ...string) {
	s.Require().ErrorIs(err, target)
	s.Require().Equal(Failed, sess.State())
	s.Require().Equal(err, sess.Err())
	for _, c := range contains {
		s.Require().Contains(err.Error(), c)
	}
}

func (s *SessionTestSuite) TestNegotiateReady() {
	sess := s.negotiated()

	p := sess.Parameters()
	s.Require().NotNil(p)
	s.Require().Equal(1, p.Surfaces[0].ID, "South")
	s.Require().Equal(0, p.Surfaces[1].ID, "North")
	s.Require().Equal(2, p.Ports[0].ID)
	s.Require().Equal(3, p.Ports[1].ID)
	s.Require().Equal([]string{"Desk"}, sess.UnmatchedSolverBoundaries())
	s.Require().Zero(sess.SinceLastExchange())

	// the caller's parameters are left untouched
	s.Require().Equal(Unassigned, s.params.Surfaces[0].ID)
}

func (s *SessionTestSuite) TestNegotiateExtraBoundary() {
	s.solver.boundaries = append(s.solver.boundaries, api.Boundary{Name: "East", Type: api.BoundaryWall})
	s.solver.areas = append(s.solver.areas, 8)
	sess := s.newSession()

	err := sess.Negotiate(s.ctx, s.params)
	s.requireFailed(sess, err, ErrSchemaMismatch, "surface count mismatch: declared 2, local 3")
	var schema *SchemaMismatchError
	s.Require().True(errors.As(err, &schema))
	s.Require().Equal(3, schema.Counts.SolverWalls)
}

func (s *SessionTestSuite) TestNegotiatePortCount() {
	s.solver.boundaries = s.solver.boundaries[:3]
	s.solver.areas = s.solver.areas[:3]
	sess := s.newSession()

	err := sess.Negotiate(s.ctx, s.params)
	s.requireFailed(sess, err, ErrSchemaMismatch, "port count mismatch: declared 2, local 1", "inlets=1 outlets=0")
}

func (s *SessionTestSuite) TestNegotiateDeclaredCountDisagrees() {
	s.params.NumSensors = 3
	sess := s.newSession()

	err := sess.Negotiate(s.ctx, s.params)
	s.requireFailed(sess, err, ErrSchemaMismatch, "declared sensor")
}

func (s *SessionTestSuite) TestNegotiateDuplicateName() {
	s.params.Surfaces[1].Name = "South"
	sess := s.newSession()

	err := sess.Negotiate(s.ctx, s.params)
	s.requireFailed(sess, err, ErrNameResolution, `"South"`, "duplicates")
}

func (s *SessionTestSuite) TestNegotiateOrphanName() {
	s.params.Ports[1].Name = "Return"
	sess := s.newSession()

	err := sess.Negotiate(s.ctx, s.params)
	s.requireFailed(sess, err, ErrNameResolution, `port name "Return"`, "matches no solver boundary")
}

func (s *SessionTestSuite) TestNegotiateAreaMismatch() {
	s.params.Surfaces[1].Area = 12.0002
	sess := s.newSession()

	err := sess.Negotiate(s.ctx, s.params)
	s.requireFailed(sess, err, ErrGeometryMismatch, `"North"`, "12.0002", "solver computed 12")
	var geo *GeometryMismatchError
	s.Require().True(errors.As(err, &geo))
	s.Require().Equal(0, geo.Mismatch.ID)
}

func (s *SessionTestSuite) TestNegotiateAreaWithinTolerance() {
	s.params.Surfaces[0].Area = 10.000004
	s.negotiated()
}

func (s *SessionTestSuite) TestNegotiateUnknownKind() {
	s.params.Surfaces[0].Kind = api.BoundaryKind(7)
	sess := s.newSession()

	err := sess.Negotiate(s.ctx, s.params)
	s.requireFailed(sess, err, ErrUnrecognizedKind, `"South"`)
}

// walls returns a solver and parameters with n matching walls and nothing else.
func walls(n int) (*fakeSolver, *Parameters) {
	solver := &fakeSolver{}
	params := &Parameters{NumSurfaces: n}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("wall%03d", i)
		solver.boundaries = append(solver.boundaries, api.Boundary{Name: name, Type: api.BoundaryWall})
		solver.areas = append(solver.areas, 1)
		params.Surfaces = append(params.Surfaces, BoundaryDescriptor{Name: name, Kind: api.KindFixedTemperature, Area: 1})
	}
	return solver, params
}

func (s *SessionTestSuite) TestNegotiateRecordExceedsRegion() {
	s.solver, s.params = walls(400)
	sess := s.newSession()

	err := sess.Negotiate(s.ctx, s.params)
	s.requireFailed(sess, err, ErrSchemaMismatch, "outgoing record needs 3264 bytes", "holds 2552")
	s.Require().Nil(sess.Parameters())
}

func (s *SessionTestSuite) TestNegotiateRecordFitsRegion() {
	s.solver, s.params = walls(311)
	sess := s.negotiated()
	s.Require().Len(sess.Parameters().Surfaces, 311)
	s.Require().Empty(sess.UnmatchedSolverBoundaries())
}

func (s *SessionTestSuite) TestSessionLogField() {
	var buf bytes.Buffer
	log := logging.New(&buf)
	log.SetLogLevel(logrus.DebugLevel)
	s.cfg.Logger = log

	sess := s.negotiated()
	s.Require().Contains(buf.String(), "session="+sess.ID())
	s.Require().Contains(buf.String(), "state READY")
	s.Require().NotContains(buf.String(), "session "+sess.ID()+":")
}

func (s *SessionTestSuite) TestFailedIsTerminal() {
	s.params.Surfaces[0].Name = "West"
	sess := s.newSession()
	s.Require().Error(sess.Negotiate(s.ctx, s.params))

	s.Require().ErrorIs(sess.Negotiate(s.ctx, roomParameters()), ErrSessionFailed)
	s.Require().ErrorIs(sess.Produce(s.ctx), ErrSessionFailed)
	s.Require().ErrorIs(sess.Consume(s.ctx), ErrSessionFailed)
	s.Require().Nil(sess.Parameters())
	s.Require().Equal(Failed, sess.State())
}

func (s *SessionTestSuite) TestExchangeRequiresReady() {
	sess := s.newSession()
	s.Require().ErrorIs(sess.Produce(s.ctx), ErrNotReady)
	s.Require().ErrorIs(sess.Consume(s.ctx), ErrNotReady)
	s.Require().Equal(Uninitialized, sess.State())
}

func (s *SessionTestSuite) TestNegotiateTwice() {
	sess := s.negotiated()
	s.Require().ErrorIs(sess.Negotiate(s.ctx, s.params), ErrAlreadyNegotiated)
	s.Require().Equal(Ready, sess.State())
}

func (s *SessionTestSuite) TestRoundTrip() {
	sess := s.negotiated()
	peer := NewPeer(s.cfg, s.chs)
	peer.ExpectParameters(s.params)

	s.Require().NoError(sess.Produce(s.ctx))
	out, err := peer.Receive(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(float64(60), out.Time)
	s.Require().InDelta(293.15, out.RoomTemperature, 1e-9)
	s.Require().Equal([]float64{19.5, 21.5}, out.SurfaceValues)
	s.Require().Equal([]float64{25}, out.ShadeTemperatures)
	s.Require().Equal([]float64{18, 22}, out.PortTemperatures)
	s.Require().Equal([][]float64{{0.008}, {0.009}}, out.PortSpecies)
	s.Require().Nil(out.PortTrace)
	s.Require().Equal([]float64{20.4}, out.SensorValues)

	in := &record.IncomingRecord{
		Time:             60,
		SurfaceValues:    []float64{292.5, -15},
		ShadeControl:     []float64{0.5},
		ShadeAbsorbed:    []float64{120},
		PortMassFlows:    []float64{0.1, -0.1},
		PortTemperatures: []float64{291, 295},
		PortSpecies:      [][]float64{{0.007}, {0.009}},
	}
	s.Require().NoError(peer.Send(s.ctx, in))
	s.Require().NoError(sess.Consume(s.ctx))

	s.Require().Len(s.solver.applied, 1)
	fb := s.solver.applied[0]
	s.Require().Equal(api.SurfaceFeedback{ID: 1, Name: "South", Kind: api.KindFixedTemperature, Value: 292.5}, fb.Surfaces[0])
	s.Require().Equal(api.SurfaceFeedback{ID: 0, Name: "North", Kind: api.KindFixedHeatFlux, Value: -15}, fb.Surfaces[1])
	s.Require().Equal(2, fb.Ports[0].ID)
	s.Require().Equal(0.1, fb.Ports[0].MassFlow)
	s.Require().Equal([]float64{0.009}, fb.Ports[1].Species)
	s.Require().Equal([]float64{0.5}, fb.ShadeControl)

	s.Require().Equal(uint64(1), sess.Step())
	hist := sess.History()
	s.Require().Len(hist, 2)
	s.Require().Equal(opProduce, hist[0].Op)
	s.Require().Equal(opConsume, hist[1].Op)
	s.Require().Equal(uint64(0), hist[1].Step)
	s.Require().Positive(sess.SinceLastExchange())
}

func (s *SessionTestSuite) TestHistoryKeepsLatest() {
	s.cfg.HistoryDepth = 3
	sess := s.negotiated()
	peer := NewPeer(s.cfg, s.chs)
	in := &record.IncomingRecord{
		SurfaceValues:    []float64{293, 0},
		ShadeControl:     []float64{0},
		ShadeAbsorbed:    []float64{0},
		PortMassFlows:    []float64{0, 0},
		PortTemperatures: []float64{293, 293},
		PortSpecies:      [][]float64{{0}, {0}},
	}
	for i := 0; i < 3; i++ {
		s.Require().NoError(sess.Produce(s.ctx))
		_, err := peer.Receive(s.ctx)
		s.Require().NoError(err)
		s.Require().NoError(peer.Send(s.ctx, in))
		s.Require().NoError(sess.Consume(s.ctx))
	}
	hist := sess.History()
	s.Require().Len(hist, 3)
	s.Require().Equal(opConsume, hist[0].Op)
	s.Require().Equal(uint64(1), hist[0].Step)
	s.Require().Equal(uint64(2), hist[2].Step)
	s.Require().Equal(uint64(3), sess.Step())
}

func (s *SessionTestSuite) TestConsumeDimensionMismatchFails() {
	sess := s.negotiated()
	peer := NewPeer(s.cfg, s.chs)

	s.Require().NoError(peer.Send(s.ctx, &record.IncomingRecord{SurfaceValues: []float64{1, 2, 3}}))
	err := sess.Consume(s.ctx)
	s.requireFailed(sess, err, record.ErrDimensionCount)
	s.Require().Empty(s.solver.applied)
}

func (s *SessionTestSuite) TestConsumeTimeoutKeepsSession() {
	s.cfg.Timeout = 20 * time.Millisecond
	sess := s.negotiated()

	err := sess.Consume(s.ctx)
	s.Require().ErrorIs(err, handshake.ErrProtocolTimeout)
	s.Require().Equal(Ready, sess.State())
	s.Require().Equal(uint64(0), sess.Step())
}

func (s *SessionTestSuite) TestProduceWaitsForPeer() {
	s.cfg.Timeout = 20 * time.Millisecond
	sess := s.negotiated()

	s.Require().NoError(sess.Produce(s.ctx))
	// the peer never read the first record
	s.Require().ErrorIs(sess.Produce(s.ctx), handshake.ErrProtocolTimeout)
	s.Require().Equal(Ready, sess.State())
}

func (s *SessionTestSuite) TestProduceSnapshotMissingSensor() {
	sess := s.negotiated()
	s.solver.snap.SensorValues = nil

	err := sess.Produce(s.ctx)
	s.requireFailed(sess, err, record.ErrDimensionCount, "sensor")
}

func (s *SessionTestSuite) TestDial() {
	sess, err := Dial(s.ctx, s.cfg, s.solver)
	s.Require().NoError(err)
	s.Require().NoError(sess.Negotiate(s.ctx, s.params))
	s.Require().Equal(Ready, sess.State())
}

func (s *SessionTestSuite) TestOpenChannelsGivesUp() {
	cfg := *s.cfg
	cfg.Dir = s.T().TempDir()
	cfg.OpenRetries = 2
	_, err := OpenChannels(s.ctx, &cfg)
	s.Require().ErrorIs(err, shm.ErrNotFound)
	s.Require().Contains(err.Error(), DefaultSolverChannel)
}

func (s *SessionTestSuite) TestOpenChannelsWaitsForPeer() {
	cfg := *s.cfg
	cfg.Dir = s.T().TempDir()
	cfg.OpenRetries = 1000
	time.AfterFunc(10*time.Millisecond, func() {
		_, _ = CreateChannels(context.Background(), &cfg)
	})
	chs, err := OpenChannels(s.ctx, &cfg)
	s.Require().NoError(err)
	s.Require().Equal(DefaultPeerChannel, chs.PeerToSolver.Name())
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
