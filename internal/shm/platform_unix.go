//go:build unix

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
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region.
func MapRegion(_ context.Context, opts MapOptions) (*MappedRegion, error) {
	path := opts.Path()
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT
		if !CanCreate(uint64(opts.Size), path) {
			return nil, fmt.Errorf("create %s (%d bytes): %w", path, opts.Size, ErrNoSpace)
		}
	}
	fd, err := unix.Open(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// the mapping keeps the object alive once established
	defer func() { _ = unix.Close(fd) }()

	if opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			return nil, fmt.Errorf("ftruncate %s: %w", path, err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return nil, fmt.Errorf("fstat %s: %w", path, err)
		}
		if st.Size < int64(opts.Size) {
			return nil, fmt.Errorf("%s has %d bytes, want %d: %w", path, st.Size, opts.Size, ErrRegionTooSmall)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MappedRegion{Addr: addr, Path: path}, nil
}

// UnmapRegion unmaps the shared memory region.
func UnmapRegion(_ context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap %s: %w", region.Path, err)
	}
	region.Addr = nil
	return nil
}

// RemoveRegion unlinks the backing object. Existing mappings stay valid.
func RemoveRegion(opts MapOptions) error {
	path := opts.Path()
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}
