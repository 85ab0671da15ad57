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

// Package matcher resolves names declared by the peer against the solver boundary list and
// checks the declared geometry against the solver's own.
//
// Both operations are pure: they return results and diagnostics and never mutate their
// inputs, so running them twice on the same inputs yields the same answer.
package matcher

import (
	"fmt"
	"math"
)

// DefaultAreaTolerance is the absolute tolerance, in square meters, between declared and
// computed areas.
const DefaultAreaTolerance = 1e-5

// Unmatched marks a declared name that resolved to no candidate.
const Unmatched = -1

// Candidate is a solver boundary eligible for matching.
type Candidate struct {
	Index int // position in the solver boundary list
	Name  string
}

// Problem classifies a diagnostic.
type Problem int

const (
	// Duplicate means the same name was declared more than once.
	Duplicate Problem = iota + 1
	// Orphan means no unmatched candidate carries the declared name.
	Orphan
)

func (p Problem) String() string {
	switch p {
	case Duplicate:
		return "duplicate"
	case Orphan:
		return "orphan"
	default:
		return "unknown"
	}
}

// Diagnostic describes one declared name that could not be resolved.
type Diagnostic struct {
	Problem  Problem
	Name     string
	Declared int // index into the declared names
	First    int // for duplicates, the index of the earlier declaration
}

func (d Diagnostic) Error() string {
	switch d.Problem {
	case Duplicate:
		return fmt.Sprintf("name %q declared at %d duplicates declaration %d", d.Name, d.Declared, d.First)
	case Orphan:
		return fmt.Sprintf("name %q declared at %d matches no solver boundary", d.Name, d.Declared)
	default:
		return fmt.Sprintf("name %q declared at %d: %s", d.Name, d.Declared, d.Problem)
	}
}

// Result is the outcome of MatchNames.
type Result struct {
	// IDs holds, for each declared name, the matched candidate index or Unmatched.
	IDs []int
	// Unclaimed lists candidate indexes no declared name matched. They are tolerated.
	Unclaimed []int
	// Diagnostics is empty when every declared name resolved.
	Diagnostics []Diagnostic
}

// OK reports whether every declared name resolved.
func (r *Result) OK() bool { return len(r.Diagnostics) == 0 }

// Mapping returns the resolved name to id pairs.
func (r *Result) Mapping(declared []string) map[string]int {
	m := make(map[string]int, len(declared))
	for i, name := range declared {
		if i < len(r.IDs) && r.IDs[i] != Unmatched {
			m[name] = r.IDs[i]
		}
	}
	return m
}

// MatchNames resolves each declared name by exact, case-sensitive comparison. Candidates
// are scanned in order and the first one not already claimed wins. A name declared twice
// is a Duplicate even when the solver offers two candidates for it.
func MatchNames(declared []string, candidates []Candidate) *Result {
	res := &Result{IDs: make([]int, len(declared))}
	claimed := make([]bool, len(candidates))
	seen := make(map[string]int, len(declared))

	for i, name := range declared {
		res.IDs[i] = Unmatched
		if first, ok := seen[name]; ok {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Problem: Duplicate, Name: name, Declared: i, First: first})
			continue
		}
		seen[name] = i

		for j, c := range candidates {
			if !claimed[j] && c.Name == name {
				claimed[j] = true
				res.IDs[i] = c.Index
				break
			}
		}
		if res.IDs[i] == Unmatched {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Problem: Orphan, Name: name, Declared: i, First: Unmatched})
		}
	}
	for j, c := range candidates {
		if !claimed[j] {
			res.Unclaimed = append(res.Unclaimed, c.Index)
		}
	}
	return res
}

// Pair is a matched declaration to validate.
type Pair struct {
	Name     string
	ID       int
	Declared float64
}

// AreaMismatch reports a declared area outside tolerance.
type AreaMismatch struct {
	Name      string
	ID        int
	Declared  float64
	Computed  float64
	Tolerance float64
}

func (e *AreaMismatch) Error() string {
	return fmt.Sprintf("area of %q (id %d): declared %g m2, solver computed %g m2, difference %g exceeds %g",
		e.Name, e.ID, e.Declared, e.Computed, math.Abs(e.Declared-e.Computed), e.Tolerance)
}

// ValidateAreas compares each declared area with areaOf(id). A difference of exactly tol is
// accepted. It stops at the first mismatch.
func ValidateAreas(pairs []Pair, areaOf func(int) float64, tol float64) error {
	for _, p := range pairs {
		computed := areaOf(p.ID)
		// written so that NaN on either side fails
		if !(math.Abs(computed-p.Declared) <= tol) {
			return &AreaMismatch{Name: p.Name, ID: p.ID, Declared: p.Declared, Computed: computed, Tolerance: tol}
		}
	}
	return nil
}
