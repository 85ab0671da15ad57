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

// Package record defines the two fixed-schema records exchanged each step and their
// explicit little-endian wire layout.
//
// Body header (the region ready flag precedes it and is not part of the body):
//
//	0x00 magic    [8]byte "FFDCOSIM"
//	0x08 version  uint32
//	0x0C kind     uint32 (1 outgoing, 2 incoming)
//	0x10 length   uint32 payload bytes after the header
//	0x14 reserved uint32
//	0x18 payload
//
// Outgoing payload: time f64; counts u32 surfaces, shades, ports, species, trace, sensors;
// room temperature f64; surface values; shade temperatures; port temperatures; port species
// (row major); port trace (row major); sensor values.
//
// Incoming payload: time f64; counts u32 surfaces, shades, ports, species, trace; surface
// values; shade control; shade absorbed radiation; port mass flows; port temperatures;
// port species (row major); port trace (row major).
package record

import (
	"errors"
	"fmt"
)

const (
	// Version is bumped whenever the payload layout changes.
	Version uint32 = 1
	// HeaderSize is the size of the body header.
	HeaderSize = 24

	versionOffset = 8
	kindOffset    = 12
	lengthOffset  = 16
)

// Magic identifies a record body.
var Magic = [8]byte{'F', 'F', 'D', 'C', 'O', 'S', 'I', 'M'}

// Kind tells the two record shapes apart.
type Kind uint32

const (
	KindOutgoing Kind = 1
	KindIncoming Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindOutgoing:
		return "outgoing"
	case KindIncoming:
		return "incoming"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

var (
	ErrBadMagic       = errors.New("record: bad magic")
	ErrVersion        = errors.New("record: unsupported version")
	ErrKind           = errors.New("record: unexpected kind")
	ErrTruncated      = errors.New("record: truncated")
	ErrRaggedMatrix   = errors.New("record: rows of different length")
	ErrDimensionCount = errors.New("record: dimension mismatch")
)

// OutgoingRecord is sent by the solver to the peer.
type OutgoingRecord struct {
	Time          float64
	SurfaceValues []float64
	// RoomTemperature is in Kelvin.
	RoomTemperature   float64
	ShadeTemperatures []float64
	PortTemperatures  []float64
	PortSpecies       [][]float64
	PortTrace         [][]float64
	SensorValues      []float64
}

// IncomingRecord is sent by the peer to the solver.
type IncomingRecord struct {
	Time             float64
	SurfaceValues    []float64
	ShadeControl     []float64
	ShadeAbsorbed    []float64
	PortMassFlows    []float64
	PortTemperatures []float64
	PortSpecies      [][]float64
	PortTrace        [][]float64
}

// Header is the decoded body header.
type Header struct {
	Version uint32
	Kind    Kind
	Length  uint32
}

// Dims are the array dimensions carried by a record.
type Dims struct {
	Surfaces int
	Shades   int
	Ports    int
	Species  int
	Trace    int
	Sensors  int
}

// Dims returns the dimensions of r.
func (r *OutgoingRecord) Dims() (Dims, error) {
	species, err := columns(r.PortSpecies, len(r.PortTemperatures))
	if err != nil {
		return Dims{}, fmt.Errorf("port species: %w", err)
	}
	trace, err := columns(r.PortTrace, len(r.PortTemperatures))
	if err != nil {
		return Dims{}, fmt.Errorf("port trace: %w", err)
	}
	return Dims{
		Surfaces: len(r.SurfaceValues),
		Shades:   len(r.ShadeTemperatures),
		Ports:    len(r.PortTemperatures),
		Species:  species,
		Trace:    trace,
		Sensors:  len(r.SensorValues),
	}, nil
}

// Dims returns the dimensions of r.
func (r *IncomingRecord) Dims() (Dims, error) {
	if len(r.ShadeControl) != len(r.ShadeAbsorbed) {
		return Dims{}, fmt.Errorf("shade control %d vs absorbed %d: %w",
			len(r.ShadeControl), len(r.ShadeAbsorbed), ErrDimensionCount)
	}
	if len(r.PortMassFlows) != len(r.PortTemperatures) {
		return Dims{}, fmt.Errorf("port mass flows %d vs temperatures %d: %w",
			len(r.PortMassFlows), len(r.PortTemperatures), ErrDimensionCount)
	}
	species, err := columns(r.PortSpecies, len(r.PortTemperatures))
	if err != nil {
		return Dims{}, fmt.Errorf("port species: %w", err)
	}
	trace, err := columns(r.PortTrace, len(r.PortTemperatures))
	if err != nil {
		return Dims{}, fmt.Errorf("port trace: %w", err)
	}
	return Dims{
		Surfaces: len(r.SurfaceValues),
		Shades:   len(r.ShadeControl),
		Ports:    len(r.PortTemperatures),
		Species:  species,
		Trace:    trace,
	}, nil
}

// OutgoingSize is the body size of an OutgoingRecord with dimensions d.
func OutgoingSize(d Dims) int {
	floats := d.Surfaces + d.Shades + d.Ports + d.Ports*(d.Species+d.Trace) + d.Sensors
	return HeaderSize + 8 + 6*4 + 8 + 8*floats
}

// IncomingSize is the body size of an IncomingRecord with dimensions d.
func IncomingSize(d Dims) int {
	floats := d.Surfaces + 2*d.Shades + 2*d.Ports + d.Ports*(d.Species+d.Trace)
	return HeaderSize + 8 + 5*4 + 8*floats
}

// columns returns the common row length of m, which must be empty or have rows rows of at
// least one value. A matrix without columns is written as nil.
func columns(m [][]float64, rows int) (int, error) {
	if len(m) == 0 {
		return 0, nil
	}
	if len(m) != rows {
		return 0, fmt.Errorf("%d rows for %d ports: %w", len(m), rows, ErrDimensionCount)
	}
	n := len(m[0])
	if n == 0 {
		return 0, fmt.Errorf("%d rows without columns: %w", rows, ErrDimensionCount)
	}
	for _, row := range m[1:] {
		if len(row) != n {
			return 0, ErrRaggedMatrix
		}
	}
	return n, nil
}
