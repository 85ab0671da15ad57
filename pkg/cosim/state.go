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

// State is a step of the negotiation state machine.
type State int32

const (
	Uninitialized State = iota
	ParametersReceived
	NamesMatched
	AreasValidated
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case ParametersReceived:
		return "PARAMETERS_RECEIVED"
	case NamesMatched:
		return "NAMES_MATCHED"
	case AreasValidated:
		return "AREAS_VALIDATED"
	case Ready:
		return "READY"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
