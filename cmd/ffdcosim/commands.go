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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/srediag/ffd-cosim/adapter"
	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/cosim"
	"github.com/srediag/ffd-cosim/pkg/logging"
	"github.com/srediag/ffd-cosim/pkg/record"
	"github.com/srediag/ffd-cosim/pkg/shm"
)

func newCreateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create both regions empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			chs, err := cosim.CreateChannels(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), chs.SolverToPeer.Path())
			fmt.Fprintln(cmd.OutOrStdout(), chs.PeerToSolver.Path())
			return nil
		},
	}
}

func newRemoveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Unlink both regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			cfg.OpenRetries = 0
			chs, err := cosim.OpenChannels(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return chs.Remove()
		},
	}
}

func newInspectCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the flag and record header of both regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			cfg.OpenRetries = 0
			chs, err := cosim.OpenChannels(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return errors.Join(
				inspect(cmd.Context(), cmd.OutOrStdout(), chs.SolverToPeer),
				inspect(cmd.Context(), cmd.OutOrStdout(), chs.PeerToSolver),
			)
		},
	}
}

func inspect(ctx context.Context, w io.Writer, ch *shm.Channel) error {
	flag, body, err := ch.Peek(ctx)
	if err != nil {
		return err
	}
	state := "empty"
	if flag == shm.FlagReady {
		state = "ready"
	}
	fmt.Fprintf(w, "%s\t%s\tsize=%d\tflag=%d (%s)", ch.Name(), ch.Path(), ch.Size(), flag, state)
	h, err := record.DecodeHeader(body)
	if err != nil {
		fmt.Fprintf(w, "\tno record: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "\t%s v%d %d bytes", h.Kind, h.Version, h.Length)
	switch h.Kind {
	case record.KindOutgoing:
		if rec, err := record.DecodeOutgoing(body); err == nil {
			fmt.Fprintf(w, "\tt=%g room=%.2fK surfaces=%d", rec.Time, rec.RoomTemperature, len(rec.SurfaceValues))
		}
	case record.KindIncoming:
		if rec, err := record.DecodeIncoming(body); err == nil {
			fmt.Fprintf(w, "\tt=%g surfaces=%d ports=%d", rec.Time, len(rec.SurfaceValues), len(rec.PortTemperatures))
		}
	}
	fmt.Fprintln(w)
	return nil
}

func newPeerCommand(opts *options) *cobra.Command {
	var scenarioPath string
	var create bool
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Answer the solver with the fixed values of a scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			sc, err := LoadScenario(scenarioPath)
			if err != nil {
				return err
			}
			var chs *cosim.Channels
			if create {
				chs, err = cosim.CreateChannels(cmd.Context(), cfg)
				if err == nil {
					defer func() { _ = chs.Remove() }()
				}
			} else {
				chs, err = cosim.OpenChannels(cmd.Context(), cfg)
			}
			if err != nil {
				return err
			}
			return runPeer(cmd.Context(), cfg, chs, sc, log)
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario")
	cmd.Flags().BoolVar(&create, "create", true, "create the regions and remove them on exit")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

// runPeer answers sc.Steps solver records.
func runPeer(ctx context.Context, cfg *cosim.Config, chs *cosim.Channels, sc *Scenario, log api.Logger) error {
	peer := cosim.NewPeer(cfg, chs)
	peer.ExpectParameters(sc.Parameters())
	for step := 0; step < sc.Steps; step++ {
		out, err := peer.Receive(ctx)
		if err != nil {
			return fmt.Errorf("peer step %d: %w", step, err)
		}
		log.Logf(api.LevelNormal, "peer: step %d t=%g room %.3f K", step, out.Time, out.RoomTemperature)
		if err := peer.Send(ctx, sc.Answer(out.Time)); err != nil {
			return fmt.Errorf("peer step %d: %w", step, err)
		}
	}
	return nil
}

func newDemoCommand(opts *options) *cobra.Command {
	var scenarioPath, adminAddr string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the demo solver and the peer stub against each other",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			sc, err := LoadScenario(scenarioPath)
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), cfg, sc, adminAddr, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "serve /metrics, /live and /ready on this address")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

// runDemo negotiates and steps a roomSolver against the peer stub in one process.
func runDemo(ctx context.Context, cfg *cosim.Config, sc *Scenario, adminAddr string, w io.Writer) error {
	solver, err := newRoomSolver(sc)
	if err != nil {
		return err
	}
	chs, err := cosim.CreateChannels(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = chs.Remove() }()

	reg := prometheus.NewRegistry()
	cfg.Registerer = reg
	sess, err := cosim.NewSessionOn(cfg, solver, chs)
	if err != nil {
		return err
	}
	if adminAddr != "" {
		health := adapter.NewHealthHandler(sess, adapter.HealthOptions{MaxIdle: time.Minute, MaxGoroutines: 1000})
		srv, err := adapter.ListenAdmin(adminAddr, adapter.NewAdminMux(reg, health))
		if err != nil {
			return err
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
		fmt.Fprintf(w, "admin on %s\n", srv.Addr())
	}

	peerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	peerDone := make(chan error, 1)
	go func() { peerDone <- runPeer(peerCtx, cfg, chs, sc, logging.OrNop(cfg.Logger)) }()

	err = stepSession(ctx, sess, sc.Parameters(), sc.Steps)
	if err != nil {
		cancel()
		<-peerDone
		return err
	}
	if err := <-peerDone; err != nil {
		return err
	}

	fmt.Fprintf(w, "session %s: %s after %d steps, t=%g, room %.3f degC\n",
		sess.ID(), sess.State(), sess.Step(), solver.time, solver.room)
	for _, name := range sess.UnmatchedSolverBoundaries() {
		fmt.Fprintf(w, "unmatched solver boundary %s\n", name)
	}
	for _, e := range sess.History() {
		fmt.Fprintf(w, "step %d %s t=%g %d bytes in %s\n", e.Step, e.Op, e.SimTime, e.Bytes, e.Wait.Round(time.Microsecond))
	}
	return nil
}

func stepSession(ctx context.Context, sess *cosim.Session, params *cosim.Parameters, steps int) error {
	if err := sess.Negotiate(ctx, params); err != nil {
		return err
	}
	for i := 0; i < steps; i++ {
		if err := sess.Produce(ctx); err != nil {
			return err
		}
		if err := sess.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}
