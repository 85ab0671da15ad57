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

package matcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(names ...string) []Candidate {
	out := make([]Candidate, len(names))
	for i, n := range names {
		out[i] = Candidate{Index: i, Name: n}
	}
	return out
}

func TestMatchNamesReordered(t *testing.T) {
	res := MatchNames([]string{"South", "North"}, candidates("North", "South"))
	require.True(t, res.OK())
	assert.Equal(t, []int{1, 0}, res.IDs)
	assert.Equal(t, map[string]int{"South": 1, "North": 0}, res.Mapping([]string{"South", "North"}))
	assert.Empty(t, res.Unclaimed)
}

func TestMatchNamesUsesCandidateIndex(t *testing.T) {
	res := MatchNames([]string{"supply"}, []Candidate{{Index: 7, Name: "return"}, {Index: 4, Name: "supply"}})
	require.True(t, res.OK())
	assert.Equal(t, []int{4}, res.IDs)
	assert.Equal(t, []int{7}, res.Unclaimed)
}

func TestMatchNamesCaseSensitive(t *testing.T) {
	res := MatchNames([]string{"south"}, candidates("South"))
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, Orphan, res.Diagnostics[0].Problem)
	assert.Equal(t, []int{Unmatched}, res.IDs)
}

func TestMatchNamesDuplicate(t *testing.T) {
	res := MatchNames([]string{"South", "North", "South"}, candidates("South", "North", "South"))
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, Duplicate, d.Problem)
	assert.Equal(t, 2, d.Declared)
	assert.Equal(t, 0, d.First)
	assert.Contains(t, d.Error(), "South")
	assert.Equal(t, []int{0, 1, Unmatched}, res.IDs)
}

func TestMatchNamesOrphan(t *testing.T) {
	res := MatchNames([]string{"South", "Roof"}, candidates("South", "North"))
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, Orphan, res.Diagnostics[0].Problem)
	assert.Equal(t, "Roof", res.Diagnostics[0].Name)
	assert.Contains(t, res.Diagnostics[0].Error(), "Roof")
	assert.Equal(t, []int{1}, res.Unclaimed)
}

func TestMatchNamesToleratesExtraSolverBoundaries(t *testing.T) {
	res := MatchNames([]string{"North"}, candidates("Floor", "North", "Ceiling"))
	require.True(t, res.OK())
	assert.Equal(t, []int{1}, res.IDs)
	assert.Equal(t, []int{0, 2}, res.Unclaimed)
}

func TestMatchNamesIdempotent(t *testing.T) {
	declared := []string{"South", "North", "East"}
	cands := candidates("East", "North", "South", "West")
	first := MatchNames(declared, cands)
	second := MatchNames(declared, cands)
	assert.Equal(t, first, second)
	assert.True(t, second.OK())
	assert.Equal(t, []string{"South", "North", "East"}, declared)
}

func TestValidateAreas(t *testing.T) {
	areas := map[int]float64{0: 12.0, 1: 10.0}
	areaOf := func(i int) float64 { return areas[i] }

	err := ValidateAreas([]Pair{{Name: "South", ID: 1, Declared: 10.0}, {Name: "North", ID: 0, Declared: 12.0}}, areaOf, DefaultAreaTolerance)
	require.NoError(t, err)

	err = ValidateAreas([]Pair{{Name: "South", ID: 1, Declared: 10.5}, {Name: "North", ID: 0, Declared: 13}}, areaOf, DefaultAreaTolerance)
	var mismatch *AreaMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "South", mismatch.Name)
	assert.Equal(t, 10.5, mismatch.Declared)
	assert.Equal(t, 10.0, mismatch.Computed)
	assert.Contains(t, err.Error(), "10.5")
}

func TestValidateAreasToleranceEdge(t *testing.T) {
	zero := func(int) float64 { return 0 }

	assert.NoError(t, ValidateAreas([]Pair{{Name: "edge", Declared: DefaultAreaTolerance}}, zero, DefaultAreaTolerance))

	above := math.Nextafter(DefaultAreaTolerance, 1)
	assert.Error(t, ValidateAreas([]Pair{{Name: "edge", Declared: above}}, zero, DefaultAreaTolerance))
	assert.Error(t, ValidateAreas([]Pair{{Name: "edge", Declared: -above}}, zero, DefaultAreaTolerance))
}

func TestValidateAreasNaN(t *testing.T) {
	nan := func(int) float64 { return math.NaN() }
	assert.Error(t, ValidateAreas([]Pair{{Name: "x", Declared: 1}}, nan, DefaultAreaTolerance))
}
