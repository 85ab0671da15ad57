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

package shm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the named region does not exist yet, usually because the peer has
	// not created it.
	ErrNotFound = errors.New("shared memory region not found")
	// ErrMapFailed means the region exists but could not be mapped.
	ErrMapFailed = errors.New("shared memory map failed")
	// ErrBusy is returned by Publish while the previous record is still unconsumed.
	ErrBusy = errors.New("previous record not consumed")
	// ErrEmpty is returned by Consume while no record is ready.
	ErrEmpty = errors.New("no record ready")
	// ErrPayloadTooLarge means the body does not fit behind the region header.
	ErrPayloadTooLarge = errors.New("payload exceeds region capacity")
	// ErrFlagChanged means the ready flag was cleared by someone other than the consumer
	// while a record was being read.
	ErrFlagChanged = errors.New("ready flag changed during consume")
)

// TransportError reports a failure to reach the region. It is recoverable: retrying after
// the peer has created the region may succeed.
type TransportError struct {
	Op   string
	Name string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("shm %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err stems from opening or mapping a region.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
