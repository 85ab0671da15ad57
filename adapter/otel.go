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

package adapter

import (
	"go.opentelemetry.io/otel"

	"github.com/srediag/ffd-cosim/pkg/cosim"
)

// InstrumentationName scopes the tracer and meter of the cosimulation.
const InstrumentationName = "github.com/srediag/ffd-cosim"

// WithTelemetry sets cfg's tracer and meter from the globally registered OpenTelemetry
// providers. They stay no-ops until the embedding program installs an SDK.
func WithTelemetry(cfg *cosim.Config) *cosim.Config {
	cfg.Tracer = otel.Tracer(InstrumentationName)
	cfg.Meter = otel.Meter(InstrumentationName)
	return cfg
}
