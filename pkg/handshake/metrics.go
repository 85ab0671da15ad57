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

package handshake

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts handshake activity per direction.
type Metrics struct {
	waitRetries     *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	transfers       *prometheus.CounterVec
}

// NewMetrics creates the handshake counters and registers them on reg when it is not nil.
// Counters already registered by another session are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		waitRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cosim_handshake_wait_retries_total",
			Help: "Polls that found the peer not ready.",
		}, []string{"direction"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cosim_handshake_transport_errors_total",
			Help: "Failures to open or map a shared memory region.",
		}, []string{"direction"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cosim_handshake_transfers_total",
			Help: "Records delivered.",
		}, []string{"direction"}),
	}
	if reg != nil {
		m.waitRetries = Register(reg, m.waitRetries)
		m.transportErrors = Register(reg, m.transportErrors)
		m.transfers = Register(reg, m.transfers)
	}
	return m
}

// Register registers c on reg, returning the collector already registered under the same
// descriptor if there is one.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
