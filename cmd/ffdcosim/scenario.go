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

package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/cosim"
	"github.com/srediag/ffd-cosim/pkg/record"
)

// Scenario describes a room for the demo solver and the peer stub.
type Scenario struct {
	Steps           int     `yaml:"steps"`
	TimeStep        float64 `yaml:"dt"`
	RoomTemperature float64 `yaml:"room_temperature"`
	Windows         int     `yaml:"windows"`
	Shade           bool    `yaml:"shade"`
	Species         int     `yaml:"species"`
	Trace           int     `yaml:"trace"`

	Surfaces []ScenarioSurface `yaml:"surfaces"`
	Ports    []ScenarioPort    `yaml:"ports"`
	Sensors  []ScenarioSensor  `yaml:"sensors"`
	// SolverOnly lists boundaries the solver has and the peer does not declare.
	SolverOnly []ScenarioBoundary `yaml:"solver_only"`
	// SolverOrder is the solver's boundary order by name; empty keeps declaration order.
	SolverOrder []string `yaml:"solver_order"`
}

// ScenarioSurface is a wall as both sides see it.
type ScenarioSurface struct {
	Name string  `yaml:"name"`
	Kind string  `yaml:"kind"` // temperature or heat-flux
	Area float64 `yaml:"area"`
	Tilt float64 `yaml:"tilt"`
	// SolverArea defaults to Area.
	SolverArea *float64 `yaml:"solver_area"`
	// Value is the solver's initial temperature (degC) or heat flux.
	Value float64 `yaml:"value"`
	// PeerValue is what the peer stub answers: K or W/m2 depending on Kind.
	PeerValue float64 `yaml:"peer_value"`
}

// ScenarioPort is an inlet or outlet.
type ScenarioPort struct {
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type"` // inlet or outlet
	Area        float64   `yaml:"area"`
	SolverArea  *float64  `yaml:"solver_area"`
	Temperature float64   `yaml:"temperature"`
	MassFlow    float64   `yaml:"mass_flow"`
	Species     []float64 `yaml:"species"`
	Trace       []float64 `yaml:"trace"`
}

// ScenarioSensor is a probe.
type ScenarioSensor struct {
	Name  string `yaml:"name"`
	Index [3]int `yaml:"index"`
}

// ScenarioBoundary is a solver boundary outside the declarations.
type ScenarioBoundary struct {
	Name string  `yaml:"name"`
	Type string  `yaml:"type"`
	Area float64 `yaml:"area"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(b)
}

// ParseScenario decodes and checks a YAML scenario.
func ParseScenario(b []byte) (*Scenario, error) {
	sc := &Scenario{Steps: 1, TimeStep: 1, RoomTemperature: 20}
	if err := yaml.Unmarshal(b, sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if len(sc.Surfaces) == 0 {
		return nil, errors.New("scenario: no surfaces")
	}
	for _, p := range sc.Ports {
		if len(p.Species) != sc.Species || len(p.Trace) != sc.Trace {
			return nil, fmt.Errorf("scenario: port %q needs %d species and %d trace values", p.Name, sc.Species, sc.Trace)
		}
	}
	return sc, nil
}

func parseKind(s string) api.BoundaryKind {
	switch s {
	case "temperature", "":
		return api.KindFixedTemperature
	case "heat-flux":
		return api.KindFixedHeatFlux
	default:
		return api.BoundaryKind(-1)
	}
}

func parseType(s string) (api.BoundaryType, error) {
	switch s {
	case "wall", "":
		return api.BoundaryWall, nil
	case "inlet":
		return api.BoundaryInlet, nil
	case "outlet":
		return api.BoundaryOutlet, nil
	case "block":
		return api.BoundaryBlock, nil
	default:
		return 0, fmt.Errorf("unknown boundary type %q", s)
	}
}

// Parameters returns what the peer declares.
func (sc *Scenario) Parameters() *cosim.Parameters {
	p := &cosim.Parameters{
		NumSurfaces:  len(sc.Surfaces),
		NumSensors:   len(sc.Sensors),
		NumConExtWin: sc.Windows,
		NumPorts:     len(sc.Ports),
		NumSpecies:   sc.Species,
		NumTrace:     sc.Trace,
		HasShade:     sc.Shade,
	}
	for _, s := range sc.Surfaces {
		p.Surfaces = append(p.Surfaces, cosim.BoundaryDescriptor{
			Name: s.Name, Kind: parseKind(s.Kind), Area: s.Area, Tilt: s.Tilt, ID: cosim.Unassigned,
		})
	}
	for _, port := range sc.Ports {
		p.Ports = append(p.Ports, cosim.PortDescriptor{Name: port.Name, Area: port.Area, ID: cosim.Unassigned})
	}
	for _, s := range sc.Sensors {
		p.Sensors = append(p.Sensors, cosim.SensorDescriptor{Name: s.Name, Index: s.Index})
	}
	return p
}

// Answer returns the peer stub's record for the step at time t, in declaration order.
func (sc *Scenario) Answer(t float64) *record.IncomingRecord {
	rec := &record.IncomingRecord{Time: t}
	for _, s := range sc.Surfaces {
		rec.SurfaceValues = append(rec.SurfaceValues, s.PeerValue)
	}
	if sc.Shade {
		rec.ShadeControl = make([]float64, sc.Windows)
		rec.ShadeAbsorbed = make([]float64, sc.Windows)
	}
	for _, p := range sc.Ports {
		rec.PortMassFlows = append(rec.PortMassFlows, p.MassFlow)
		rec.PortTemperatures = append(rec.PortTemperatures, p.Temperature+cosim.KelvinOffset)
		if sc.Species > 0 {
			rec.PortSpecies = append(rec.PortSpecies, p.Species)
		}
		if sc.Trace > 0 {
			rec.PortTrace = append(rec.PortTrace, p.Trace)
		}
	}
	return rec
}
