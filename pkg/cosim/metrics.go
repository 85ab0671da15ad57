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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/ffd-cosim/pkg/handshake"
)

// Metrics exposes session progress.
type Metrics struct {
	state        prometheus.Gauge
	negotiations *prometheus.CounterVec
	exchanges    *prometheus.CounterVec
	simTime      prometheus.Gauge
}

// NewMetrics creates the session metrics and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cosim_session_state",
			Help: "Negotiation state (0 uninitialized ... 4 ready, 5 failed).",
		}),
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cosim_negotiations_total",
			Help: "Finished negotiations by result.",
		}, []string{"result"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cosim_exchanges_total",
			Help: "Completed produce and consume calls.",
		}, []string{"op"}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cosim_simulation_time_seconds",
			Help: "Simulation time of the last exchanged record.",
		}),
	}
	if reg != nil {
		m.state = handshake.Register(reg, m.state)
		m.negotiations = handshake.Register(reg, m.negotiations)
		m.exchanges = handshake.Register(reg, m.exchanges)
		m.simTime = handshake.Register(reg, m.simTime)
	}
	return m
}
