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

package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/valyala/bytebufferpool"
)

var le = binary.LittleEndian

// EncodeOutgoing returns the wire body of r.
func EncodeOutgoing(r *OutgoingRecord) ([]byte, error) {
	d, err := r.Dims()
	if err != nil {
		return nil, err
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	writeHeader(buf, KindOutgoing)
	putFloat(buf, r.Time)
	putCounts(buf, d.Surfaces, d.Shades, d.Ports, d.Species, d.Trace, d.Sensors)
	putFloat(buf, r.RoomTemperature)
	putFloats(buf, r.SurfaceValues)
	putFloats(buf, r.ShadeTemperatures)
	putFloats(buf, r.PortTemperatures)
	putMatrix(buf, r.PortSpecies)
	putMatrix(buf, r.PortTrace)
	putFloats(buf, r.SensorValues)
	return finish(buf), nil
}

// EncodeIncoming returns the wire body of r.
func EncodeIncoming(r *IncomingRecord) ([]byte, error) {
	d, err := r.Dims()
	if err != nil {
		return nil, err
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	writeHeader(buf, KindIncoming)
	putFloat(buf, r.Time)
	putCounts(buf, d.Surfaces, d.Shades, d.Ports, d.Species, d.Trace)
	putFloats(buf, r.SurfaceValues)
	putFloats(buf, r.ShadeControl)
	putFloats(buf, r.ShadeAbsorbed)
	putFloats(buf, r.PortMassFlows)
	putFloats(buf, r.PortTemperatures)
	putMatrix(buf, r.PortSpecies)
	putMatrix(buf, r.PortTrace)
	return finish(buf), nil
}

// DecodeHeader validates and returns the header of body.
func DecodeHeader(body []byte) (Header, error) {
	if len(body) < HeaderSize {
		return Header{}, fmt.Errorf("header needs %d bytes, have %d: %w", HeaderSize, len(body), ErrTruncated)
	}
	if [8]byte(body[:8]) != Magic {
		return Header{}, ErrBadMagic
	}
	h := Header{
		Version: le.Uint32(body[versionOffset:]),
		Kind:    Kind(le.Uint32(body[kindOffset:])),
		Length:  le.Uint32(body[lengthOffset:]),
	}
	if h.Version != Version {
		return h, fmt.Errorf("got %d, want %d: %w", h.Version, Version, ErrVersion)
	}
	if uint64(h.Length) > uint64(len(body)-HeaderSize) {
		return h, fmt.Errorf("payload of %d bytes, have %d: %w", h.Length, len(body)-HeaderSize, ErrTruncated)
	}
	return h, nil
}

// DecodeOutgoing parses a body produced by EncodeOutgoing. Trailing bytes after the
// declared payload are ignored.
func DecodeOutgoing(body []byte) (*OutgoingRecord, error) {
	d, err := payload(body, KindOutgoing)
	if err != nil {
		return nil, err
	}
	r := &OutgoingRecord{Time: d.float()}
	c := d.counts(6)
	r.RoomTemperature = d.float()
	r.SurfaceValues = d.floats(c[0])
	r.ShadeTemperatures = d.floats(c[1])
	r.PortTemperatures = d.floats(c[2])
	r.PortSpecies = d.matrix(c[2], c[3])
	r.PortTrace = d.matrix(c[2], c[4])
	r.SensorValues = d.floats(c[5])
	if d.err != nil {
		return nil, d.err
	}
	return r, nil
}

// DecodeIncoming parses a body produced by EncodeIncoming.
func DecodeIncoming(body []byte) (*IncomingRecord, error) {
	d, err := payload(body, KindIncoming)
	if err != nil {
		return nil, err
	}
	r := &IncomingRecord{Time: d.float()}
	c := d.counts(5)
	r.SurfaceValues = d.floats(c[0])
	r.ShadeControl = d.floats(c[1])
	r.ShadeAbsorbed = d.floats(c[1])
	r.PortMassFlows = d.floats(c[2])
	r.PortTemperatures = d.floats(c[2])
	r.PortSpecies = d.matrix(c[2], c[3])
	r.PortTrace = d.matrix(c[2], c[4])
	if d.err != nil {
		return nil, d.err
	}
	return r, nil
}

func writeHeader(buf *bytebufferpool.ByteBuffer, kind Kind) {
	buf.B = append(buf.B, Magic[:]...)
	buf.B = le.AppendUint32(buf.B, Version)
	buf.B = le.AppendUint32(buf.B, uint32(kind))
	buf.B = le.AppendUint32(buf.B, 0) // length, patched by finish
	buf.B = le.AppendUint32(buf.B, 0)
}

func finish(buf *bytebufferpool.ByteBuffer) []byte {
	le.PutUint32(buf.B[lengthOffset:], uint32(buf.Len()-HeaderSize))
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out
}

func putFloat(buf *bytebufferpool.ByteBuffer, v float64) {
	buf.B = le.AppendUint64(buf.B, math.Float64bits(v))
}

func putFloats(buf *bytebufferpool.ByteBuffer, vs []float64) {
	for _, v := range vs {
		putFloat(buf, v)
	}
}

func putMatrix(buf *bytebufferpool.ByteBuffer, m [][]float64) {
	for _, row := range m {
		putFloats(buf, row)
	}
}

func putCounts(buf *bytebufferpool.ByteBuffer, counts ...int) {
	for _, c := range counts {
		buf.B = le.AppendUint32(buf.B, uint32(c))
	}
}

// decoder reads the payload sequentially; the first short read sticks in err.
type decoder struct {
	b   []byte
	err error
}

func payload(body []byte, want Kind) (*decoder, error) {
	h, err := DecodeHeader(body)
	if err != nil {
		return nil, err
	}
	if h.Kind != want {
		return nil, fmt.Errorf("got %s, want %s: %w", h.Kind, want, ErrKind)
	}
	return &decoder{b: body[HeaderSize : HeaderSize+int(h.Length)]}, nil
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n > len(d.b) {
		d.err = fmt.Errorf("need %d more bytes, have %d: %w", n, len(d.b), ErrTruncated)
		return nil
	}
	p := d.b[:n]
	d.b = d.b[n:]
	return p
}

func (d *decoder) float() float64 {
	p := d.take(8)
	if p == nil {
		return 0
	}
	return math.Float64frombits(le.Uint64(p))
}

func (d *decoder) counts(n int) []int {
	out := make([]int, n)
	for i := range out {
		if p := d.take(4); p != nil {
			out[i] = int(le.Uint32(p))
		}
	}
	return out
}

func (d *decoder) floats(n int) []float64 {
	if n == 0 || d.err != nil {
		return nil
	}
	if n*8 > len(d.b) {
		d.err = fmt.Errorf("%d values need %d bytes, have %d: %w", n, n*8, len(d.b), ErrTruncated)
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.float()
	}
	return out
}

func (d *decoder) matrix(rows, cols int) [][]float64 {
	if rows == 0 || cols == 0 || d.err != nil {
		return nil
	}
	if uint64(rows)*uint64(cols) > uint64(len(d.b)/8) {
		d.err = fmt.Errorf("%dx%d matrix does not fit in %d bytes: %w", rows, cols, len(d.b), ErrTruncated)
		return nil
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = d.floats(cols)
	}
	return out
}
