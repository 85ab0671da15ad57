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
	"fmt"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/cosim"
)

// roomSolver is a well-mixed room standing in for the fluid solver: the air relaxes toward
// the mean wall temperature and the supply air.
type roomSolver struct {
	boundaries []api.Boundary
	areas      []float64
	dt         float64

	time    float64
	room    float64
	values  []float64 // per boundary, degC or W/m2
	portT   []float64
	species [][]float64
	trace   [][]float64
	shades  []float64
	sensors int
}

func newRoomSolver(sc *Scenario) (*roomSolver, error) {
	type entry struct {
		b     api.Boundary
		area  float64
		value float64
		temp  float64
		sp    []float64
		tr    []float64
	}
	byName := make(map[string]entry)
	var order []string
	add := func(e entry) error {
		if _, dup := byName[e.b.Name]; dup {
			return fmt.Errorf("solver boundary %q listed twice", e.b.Name)
		}
		byName[e.b.Name] = e
		order = append(order, e.b.Name)
		return nil
	}
	for _, s := range sc.Surfaces {
		area := s.Area
		if s.SolverArea != nil {
			area = *s.SolverArea
		}
		if err := add(entry{b: api.Boundary{Name: s.Name, Type: api.BoundaryWall}, area: area, value: s.Value}); err != nil {
			return nil, err
		}
	}
	for _, p := range sc.Ports {
		typ, err := parseType(p.Type)
		if err != nil {
			return nil, err
		}
		area := p.Area
		if p.SolverArea != nil {
			area = *p.SolverArea
		}
		if err := add(entry{b: api.Boundary{Name: p.Name, Type: typ}, area: area, temp: p.Temperature, sp: p.Species, tr: p.Trace}); err != nil {
			return nil, err
		}
	}
	for _, b := range sc.SolverOnly {
		typ, err := parseType(b.Type)
		if err != nil {
			return nil, err
		}
		if err := add(entry{b: api.Boundary{Name: b.Name, Type: typ}, area: b.Area}); err != nil {
			return nil, err
		}
	}
	if len(sc.SolverOrder) > 0 {
		if len(sc.SolverOrder) != len(order) {
			return nil, fmt.Errorf("solver_order names %d boundaries, scenario has %d", len(sc.SolverOrder), len(order))
		}
		order = sc.SolverOrder
	}

	shades := 0
	if sc.Shade {
		shades = sc.Windows
	}
	r := &roomSolver{
		dt:      sc.TimeStep,
		room:    sc.RoomTemperature,
		shades:  make([]float64, shades),
		sensors: len(sc.Sensors),
	}
	for _, name := range order {
		e, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("solver_order: unknown boundary %q", name)
		}
		r.boundaries = append(r.boundaries, e.b)
		r.areas = append(r.areas, e.area)
		r.values = append(r.values, e.value)
		r.portT = append(r.portT, e.temp)
		r.species = append(r.species, e.sp)
		r.trace = append(r.trace, e.tr)
		delete(byName, name)
	}
	for i := range r.shades {
		r.shades[i] = sc.RoomTemperature
	}
	return r, nil
}

func (r *roomSolver) Boundaries() []api.Boundary { return r.boundaries }

func (r *roomSolver) AreaOf(i int) float64 { return r.areas[i] }

func (r *roomSolver) Snapshot() api.Snapshot {
	sensors := make([]float64, r.sensors)
	for i := range sensors {
		sensors[i] = r.room
	}
	return api.Snapshot{
		Time:              r.time,
		RoomTemperature:   r.room,
		BoundaryValues:    append([]float64(nil), r.values...),
		ShadeTemperatures: append([]float64(nil), r.shades...),
		PortTemperatures:  append([]float64(nil), r.portT...),
		PortSpecies:       r.species,
		PortTrace:         r.trace,
		SensorValues:      sensors,
	}
}

func (r *roomSolver) Apply(fb *api.Feedback) error {
	var wallSum float64
	var walls int
	for _, s := range fb.Surfaces {
		if s.Kind == api.KindFixedTemperature {
			r.values[s.ID] = s.Value - cosim.KelvinOffset
			wallSum += r.values[s.ID]
			walls++
		} else {
			r.values[s.ID] = s.Value
		}
	}
	var supplyFlow, supplyHeat float64
	for _, p := range fb.Ports {
		if p.MassFlow > 0 {
			supplyFlow += p.MassFlow
			supplyHeat += p.MassFlow * (p.Temperature - cosim.KelvinOffset)
		}
	}
	target, weight := 0.0, 0.0
	if walls > 0 {
		target += wallSum / float64(walls)
		weight++
	}
	if supplyFlow > 0 {
		target += supplyHeat / supplyFlow
		weight++
	}
	if weight > 0 {
		r.room += 0.1 * (target/weight - r.room)
	}
	r.time += r.dt
	return nil
}
