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

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/cosim"
)

func demoConfig(t *testing.T) *cosim.Config {
	cfg := cosim.DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.PollInterval = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario("testdata/room.yaml")
	require.NoError(t, err)
	require.Equal(t, 3, sc.Steps)

	p := sc.Parameters()
	require.Equal(t, 2, p.NumSurfaces)
	require.Equal(t, 2, p.NumPorts)
	require.Equal(t, 1, p.NumShades())
	require.Equal(t, api.KindFixedHeatFlux, p.Surfaces[1].Kind)
	require.Equal(t, cosim.Unassigned, p.Surfaces[0].ID)

	solver, err := newRoomSolver(sc)
	require.NoError(t, err)
	require.Equal(t, "North", solver.Boundaries()[0].Name)
	require.Equal(t, api.BoundaryBlock, solver.Boundaries()[4].Type)
	require.Equal(t, float64(10), solver.AreaOf(1))

	ans := sc.Answer(30)
	require.Equal(t, []float64{292.15, -15}, ans.SurfaceValues)
	require.InDelta(t, 291.15, ans.PortTemperatures[0], 1e-9)
	require.Len(t, ans.ShadeControl, 1)
}

func TestParseScenarioRejects(t *testing.T) {
	_, err := ParseScenario([]byte("steps: 1\n"))
	require.ErrorContains(t, err, "no surfaces")

	_, err = ParseScenario([]byte("species: 2\nsurfaces: [{name: A}]\nports: [{name: P, species: [1]}]\n"))
	require.ErrorContains(t, err, "2 species")

	_, err = ParseScenario([]byte("steps: [\n"))
	require.Error(t, err)
}

func TestRunDemo(t *testing.T) {
	sc, err := LoadScenario("testdata/room.yaml")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runDemo(context.Background(), demoConfig(t), sc, "", &out))
	require.Contains(t, out.String(), "READY after 3 steps, t=90")
	require.Contains(t, out.String(), "step 2 consume")
	require.Contains(t, out.String(), "unmatched solver boundary Desk")
}

func TestRunDemoGeometryMismatch(t *testing.T) {
	sc, err := LoadScenario("testdata/room.yaml")
	require.NoError(t, err)
	off := 10.5
	sc.Surfaces[0].SolverArea = &off

	err = runDemo(context.Background(), demoConfig(t), sc, "", &bytes.Buffer{})
	require.ErrorIs(t, err, cosim.ErrGeometryMismatch)
	require.ErrorContains(t, err, "South")
}

func TestCreateInspectRemove(t *testing.T) {
	dir := t.TempDir()
	run := func(args ...string) string {
		var out bytes.Buffer
		cmd := newRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--dir", dir))
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		return out.String()
	}

	out := run("create")
	require.Contains(t, out, cosim.DefaultSolverChannel)
	require.Contains(t, out, cosim.DefaultPeerChannel)

	out = run("inspect")
	require.Contains(t, out, "flag=0 (empty)")
	require.Contains(t, out, "no record")

	run("remove")
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"inspect", "--dir", dir})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}
