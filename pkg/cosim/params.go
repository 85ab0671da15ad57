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
	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/matcher"
)

// Unassigned is the id of a descriptor before negotiation matched it.
const Unassigned = matcher.Unmatched

// BoundaryDescriptor is a surface declared by the peer.
type BoundaryDescriptor struct {
	Name string
	Kind api.BoundaryKind
	Area float64 // m2
	Tilt float64 // deg
	ID   int     // solver boundary index, Unassigned until matched
}

// PortDescriptor is a fluid port (inlet or outlet) declared by the peer.
type PortDescriptor struct {
	Name string
	Area float64
	ID   int
}

// SensorDescriptor names a probe location in the grid.
type SensorDescriptor struct {
	Name  string
	Index [3]int // i, j, k
}

// Parameters is what the peer declares before stepping starts. It is filled by an
// external loader and only read by the session.
type Parameters struct {
	NumSurfaces  int
	NumSensors   int
	NumConExtWin int // exterior constructions with windows, one shade each
	NumPorts     int
	NumSpecies   int // species concentrations per port (Xi)
	NumTrace     int // trace substances per port (C)
	HasShade     bool

	Surfaces []BoundaryDescriptor
	Ports    []PortDescriptor
	Sensors  []SensorDescriptor
}

// NumShades is the length of the shading arrays in both records.
func (p *Parameters) NumShades() int {
	if !p.HasShade {
		return 0
	}
	return p.NumConExtWin
}

// Clone returns a deep copy with every id reset to Unassigned.
func (p *Parameters) Clone() *Parameters {
	c := *p
	c.Surfaces = make([]BoundaryDescriptor, len(p.Surfaces))
	for i, s := range p.Surfaces {
		s.ID = Unassigned
		c.Surfaces[i] = s
	}
	c.Ports = make([]PortDescriptor, len(p.Ports))
	for i, port := range p.Ports {
		port.ID = Unassigned
		c.Ports[i] = port
	}
	c.Sensors = append([]SensorDescriptor(nil), p.Sensors...)
	return &c
}

func (p *Parameters) surfaceNames() []string {
	names := make([]string, len(p.Surfaces))
	for i, s := range p.Surfaces {
		names[i] = s.Name
	}
	return names
}

func (p *Parameters) portNames() []string {
	names := make([]string, len(p.Ports))
	for i, port := range p.Ports {
		names[i] = port.Name
	}
	return names
}
