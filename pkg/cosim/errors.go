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
	"errors"
	"fmt"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/matcher"
)

var (
	ErrSchemaMismatch   = errors.New("cosim: schema mismatch")
	ErrNameResolution   = errors.New("cosim: name resolution failed")
	ErrGeometryMismatch = errors.New("cosim: geometry mismatch")
	ErrUnrecognizedKind = errors.New("cosim: unrecognized boundary kind")

	// ErrSessionFailed is returned by every call on a session that already failed.
	ErrSessionFailed = errors.New("cosim: session failed")
	// ErrNotReady is returned by Produce and Consume before negotiation succeeded.
	ErrNotReady = errors.New("cosim: session not ready")
	// ErrAlreadyNegotiated is returned by a second Negotiate on a ready session.
	ErrAlreadyNegotiated = errors.New("cosim: session already negotiated")
)

// Counts gathers the sizes compared by the schema check.
type Counts struct {
	DeclaredSurfaces int
	DeclaredPorts    int
	SolverWalls      int
	SolverInlets     int
	SolverOutlets    int
}

// SchemaMismatchError reports declared counts that disagree with the solver or with the
// declared collections themselves.
type SchemaMismatchError struct {
	What     string
	Declared int
	Local    int
	Counts   Counts
}

func (e *SchemaMismatchError) Error() string {
	c := e.Counts
	return fmt.Sprintf("%s count mismatch: declared %d, local %d (declared surfaces=%d ports=%d; solver walls=%d inlets=%d outlets=%d)",
		e.What, e.Declared, e.Local, c.DeclaredSurfaces, c.DeclaredPorts, c.SolverWalls, c.SolverInlets, c.SolverOutlets)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// NameResolutionError reports a duplicate or orphan declared name.
type NameResolutionError struct {
	What       string // "surface" or "port"
	Diagnostic matcher.Diagnostic
}

func (e *NameResolutionError) Error() string {
	return fmt.Sprintf("%s %s", e.What, e.Diagnostic.Error())
}

func (e *NameResolutionError) Unwrap() error { return ErrNameResolution }

// GeometryMismatchError reports a declared area outside tolerance.
type GeometryMismatchError struct {
	What     string
	Mismatch *matcher.AreaMismatch
}

func (e *GeometryMismatchError) Error() string {
	return fmt.Sprintf("%s %s", e.What, e.Mismatch.Error())
}

func (e *GeometryMismatchError) Unwrap() []error {
	return []error{ErrGeometryMismatch, e.Mismatch}
}

// UnrecognizedKindError reports a surface whose kind is neither fixed temperature nor fixed
// heat flux.
type UnrecognizedKindError struct {
	Name string
	Kind api.BoundaryKind
}

func (e *UnrecognizedKindError) Error() string {
	return fmt.Sprintf("surface %q has unrecognized boundary kind %d", e.Name, int(e.Kind))
}

func (e *UnrecognizedKindError) Unwrap() error { return ErrUnrecognizedKind }
