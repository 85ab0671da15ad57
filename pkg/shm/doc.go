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

// Package shm provides a named, fixed-size shared memory channel for exchanging one record
// at a time between two processes on the same host.
//
// A region starts with a 4-byte ready flag followed by 4 reserved bytes; the record body
// begins at DataOffset. The flag is only touched with atomic operations:
//
//	0x00 flag     uint32 (0 empty, 1 ready)
//	0x04 reserved uint32
//	0x08 body     Size-8 bytes
//
// Every transfer maps the region, copies, and unmaps it again, so no mapping outlives a
// call and a restarted peer is always observed through a fresh view.
//
// Example usage:
//
//	ch, err := shm.Open(ctx, shm.Config{Name: "FFDDataMappingObject", Size: 2560})
//	// ...
//	err = ch.Publish(ctx, body)
package shm
