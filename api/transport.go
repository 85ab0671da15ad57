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

// Package api defines the contracts between the cosimulation core and its collaborators.
package api

import "context"

// Sender delivers one record body to the peer, blocking until the previous one was consumed.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// Receiver blocks until the peer has delivered a record body and returns it.
type Receiver interface {
	Receive(ctx context.Context) ([]byte, error)
}
