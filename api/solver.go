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

package api

// BoundaryType classifies a solver boundary.
type BoundaryType int

const (
	BoundaryWall BoundaryType = iota
	BoundaryInlet
	BoundaryOutlet
	BoundaryBlock
)

func (t BoundaryType) String() string {
	switch t {
	case BoundaryWall:
		return "wall"
	case BoundaryInlet:
		return "inlet"
	case BoundaryOutlet:
		return "outlet"
	case BoundaryBlock:
		return "block"
	default:
		return "unknown"
	}
}

// BoundaryKind is the thermal condition a declared surface imposes.
type BoundaryKind int

const (
	KindFixedTemperature BoundaryKind = iota
	KindFixedHeatFlux
)

func (k BoundaryKind) String() string {
	switch k {
	case KindFixedTemperature:
		return "fixed-temperature"
	case KindFixedHeatFlux:
		return "fixed-heat-flux"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the defined kinds.
func (k BoundaryKind) Valid() bool {
	return k == KindFixedTemperature || k == KindFixedHeatFlux
}

// Boundary is one entry of the solver boundary list. Its index in that list is the id the
// negotiation assigns to declared names.
type Boundary struct {
	Name string
	Type BoundaryType
}

// Snapshot is the solver state finalized for one step. Per-boundary slices are indexed by
// solver boundary index; entries of boundaries nobody declared are ignored.
type Snapshot struct {
	Time float64
	// RoomTemperature is the volume-averaged air temperature in degrees Celsius.
	RoomTemperature float64
	// BoundaryValues holds the thermal value of each boundary (temperature or heat flux).
	BoundaryValues []float64
	// ShadeTemperatures has one entry per exterior construction with windows when shading
	// is present.
	ShadeTemperatures []float64
	// PortTemperatures, PortSpecies and PortTrace are indexed by solver boundary index and
	// only read for inlets and outlets.
	PortTemperatures []float64
	PortSpecies      [][]float64
	PortTrace        [][]float64
	// SensorValues has one entry per declared sensor.
	SensorValues []float64
}

// SurfaceFeedback is the peer value for one matched surface.
type SurfaceFeedback struct {
	ID    int
	Name  string
	Kind  BoundaryKind
	Value float64
}

// PortFeedback is the peer state of the medium at one matched port.
type PortFeedback struct {
	ID          int
	Name        string
	MassFlow    float64
	Temperature float64
	Species     []float64
	Trace       []float64
}

// Feedback is what the peer returned for one step, already mapped onto solver ids.
type Feedback struct {
	Time          float64
	Surfaces      []SurfaceFeedback
	Ports         []PortFeedback
	ShadeControl  []float64
	ShadeAbsorbed []float64
}

// Solver is the fluid solver seen from the cosimulation core.
type Solver interface {
	// Boundaries lists every solver boundary in index order.
	Boundaries() []Boundary
	// AreaOf returns the area in square meters computed from the grid for a boundary index.
	AreaOf(index int) float64
	// Snapshot returns the finalized state of the current step.
	Snapshot() Snapshot
	// Apply folds peer results into the solver state for the next iteration.
	Apply(fb *Feedback) error
}
