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

// Command ffdcosim manages the shared memory regions of a cosimulation and runs a stand-in
// peer or a loopback demo against them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srediag/ffd-cosim/adapter"
	"github.com/srediag/ffd-cosim/pkg/cosim"
	"github.com/srediag/ffd-cosim/pkg/logging"
)

type options struct {
	configPath string
	dir        string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "ffdcosim",
		Short:        "Shared memory cosimulation between the FFD solver and a building model",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "INI configuration file")
	flags.StringVar(&opts.dir, "dir", "", "directory holding the regions (default /dev/shm)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newCreateCommand(opts),
		newRemoveCommand(opts),
		newInspectCommand(opts),
		newPeerCommand(opts),
		newDemoCommand(opts),
	)
	return root
}

// load builds the session config from the INI file, the environment and the flags.
func (o *options) load(cmd *cobra.Command) (*cosim.Config, *logging.Logger, error) {
	var cfg *cosim.Config
	if o.configPath != "" {
		c, err := cosim.LoadConfig(o.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = c
	} else {
		cfg = cosim.DefaultConfig()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, nil, err
		}
	}
	if o.dir != "" {
		cfg.Dir = o.dir
	}

	log := logging.New(cmd.ErrOrStderr())
	if o.logLevel != "" {
		lvl, err := logrus.ParseLevel(o.logLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("--log-level: %w", err)
		}
		log.SetLogLevel(lvl)
	}
	cfg.Logger = log
	adapter.WithTelemetry(cfg)
	return cfg, log, cosim.VerifyConfig(cfg)
}
