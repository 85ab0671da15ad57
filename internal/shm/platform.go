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

// Package shm contains platform-specific helpers for mapping named shared memory regions.
package shm

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultDir is where named regions live when no directory is configured.
const DefaultDir = "/dev/shm"

var (
	// ErrRegionTooSmall is returned when an existing region is smaller than the requested view.
	ErrRegionTooSmall = errors.New("region smaller than requested size")
	// ErrNoSpace is returned when the backing filesystem cannot hold a new region.
	ErrNoSpace = errors.New("not enough space left for region")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Path string
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Dir    string
	Name   string
	Size   int
	Create bool
}

// Path resolves the backing object of the region. An empty Dir selects /dev/shm
// when it exists and the temporary directory otherwise.
func (o MapOptions) Path() string {
	dir := o.Dir
	if dir == "" {
		dir = DefaultDir
		if info, err := os.Stat(DefaultDir); err != nil || !info.IsDir() {
			dir = os.TempDir()
		}
	}
	return filepath.Join(dir, o.Name)
}
