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
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/ini.v1"

	"github.com/srediag/ffd-cosim/api"
	"github.com/srediag/ffd-cosim/pkg/handshake"
	"github.com/srediag/ffd-cosim/pkg/matcher"
	"github.com/srediag/ffd-cosim/pkg/record"
	"github.com/srediag/ffd-cosim/pkg/shm"
)

const (
	// DefaultSolverChannel carries solver to peer records.
	DefaultSolverChannel = "FFDDataMappingObject"
	// DefaultPeerChannel carries peer to solver records.
	DefaultPeerChannel = "ModelicaDataMappingObject"
	// DefaultRegionSize matches the buffer both peers were built with.
	DefaultRegionSize = 2560
	// DefaultHistoryDepth is the number of exchanges kept for inspection.
	DefaultHistoryDepth = 16
	// KelvinOffset converts degrees Celsius to Kelvin.
	KelvinOffset = 273.15

	minRegionSize = shm.DataOffset + record.HeaderSize
)

// Environment overrides applied by ApplyEnv.
const (
	EnvDir          = "FFDCOSIM_DIR"
	EnvPollInterval = "FFDCOSIM_POLL_INTERVAL"
	EnvTimeout      = "FFDCOSIM_TIMEOUT"
	EnvRegionSize   = "FFDCOSIM_REGION_SIZE"
)

// Config is used to tune a cosimulation session.
type Config struct {
	// Dir holds both regions; empty selects /dev/shm.
	Dir string
	// SolverChannel and PeerChannel name the two regions.
	SolverChannel string
	PeerChannel   string
	// RegionSize is the size of each region, flag header included.
	RegionSize int

	// PollInterval is the wait between two flag checks.
	PollInterval time.Duration
	// Timeout bounds each Produce and Consume; zero waits indefinitely.
	Timeout time.Duration
	// MaxTransportRetries is the number of transport failures one transfer tolerates
	// before the session fails.
	MaxTransportRetries uint64
	// OpenRetries is the number of extra attempts Dial makes while the peer has not
	// created its regions yet.
	OpenRetries uint64

	// AreaTolerance is the absolute tolerance of the area validation, in m2.
	AreaTolerance float64

	// HistoryDepth is the number of exchanges History returns.
	HistoryDepth uint64

	Logger     api.Logger
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// DefaultConfig is used to get the default config.
func DefaultConfig() *Config {
	return &Config{
		SolverChannel:       DefaultSolverChannel,
		PeerChannel:         DefaultPeerChannel,
		RegionSize:          DefaultRegionSize,
		PollInterval:        handshake.DefaultPollInterval,
		MaxTransportRetries: handshake.DefaultMaxTransportRetries,
		OpenRetries:         30,
		AreaTolerance:       matcher.DefaultAreaTolerance,
		HistoryDepth:        DefaultHistoryDepth,
	}
}

// VerifyConfig is used to verify the sanity of configuration.
func VerifyConfig(c *Config) error {
	if c.SolverChannel == "" || c.PeerChannel == "" {
		return errors.New("both channel names must be set")
	}
	if c.SolverChannel == c.PeerChannel {
		return fmt.Errorf("solver and peer channels must differ, both are %q", c.SolverChannel)
	}
	if c.RegionSize < minRegionSize {
		return fmt.Errorf("region size %d is below the minimum %d", c.RegionSize, minRegionSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.AreaTolerance < 0 {
		return fmt.Errorf("area tolerance must not be negative, got %g", c.AreaTolerance)
	}
	if c.HistoryDepth == 0 {
		return errors.New("history depth must be at least 1")
	}
	return nil
}

// LoadConfig reads an INI file on top of DefaultConfig and then applies the environment.
//
//	[channel]
//	dir = /dev/shm
//	solver = FFDDataMappingObject
//	peer = ModelicaDataMappingObject
//	region_size = 2560
//
//	[exchange]
//	poll_interval = 1s
//	timeout = 0s
//	max_transport_retries = 10
//	open_retries = 30
//	history_depth = 16
//
//	[negotiation]
//	area_tolerance = 0.00001
func LoadConfig(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	c := DefaultConfig()
	ch := f.Section("channel")
	c.Dir = ch.Key("dir").MustString(c.Dir)
	c.SolverChannel = ch.Key("solver").MustString(c.SolverChannel)
	c.PeerChannel = ch.Key("peer").MustString(c.PeerChannel)
	c.RegionSize = ch.Key("region_size").MustInt(c.RegionSize)

	ex := f.Section("exchange")
	c.PollInterval = ex.Key("poll_interval").MustDuration(c.PollInterval)
	c.Timeout = ex.Key("timeout").MustDuration(c.Timeout)
	c.MaxTransportRetries = ex.Key("max_transport_retries").MustUint64(c.MaxTransportRetries)
	c.OpenRetries = ex.Key("open_retries").MustUint64(c.OpenRetries)
	c.HistoryDepth = ex.Key("history_depth").MustUint64(c.HistoryDepth)

	c.AreaTolerance = f.Section("negotiation").Key("area_tolerance").MustFloat64(c.AreaTolerance)

	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := VerifyConfig(c); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv overrides fields from FFDCOSIM_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDir); v != "" {
		c.Dir = v
	}
	if v := os.Getenv(EnvPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvRegionSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRegionSize, err)
		}
		c.RegionSize = n
	}
	return nil
}

func (c *Config) channelConfig(name string) shm.Config {
	return shm.Config{Name: name, Dir: c.Dir, Size: c.RegionSize, Tracer: c.Tracer}
}

func (c *Config) handshakeConfig(m *handshake.Metrics) handshake.Config {
	return handshake.Config{
		PollInterval:        c.PollInterval,
		Timeout:             c.Timeout,
		MaxTransportRetries: c.MaxTransportRetries,
		Logger:              c.Logger,
		Metrics:             m,
	}
}
