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
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRegionCreateAndReopen(t *testing.T) {
	ctx := context.Background()
	opts := MapOptions{Dir: t.TempDir(), Name: "region", Size: 64, Create: true}

	r, err := MapRegion(ctx, opts)
	require.NoError(t, err)
	require.Len(t, r.Addr, 64)
	copy(r.Addr, "hello")
	require.NoError(t, UnmapRegion(ctx, r))
	assert.Nil(t, r.Addr)

	opts.Create = false
	r, err = MapRegion(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(r.Addr[:5]))
	require.NoError(t, UnmapRegion(ctx, r))

	require.NoError(t, RemoveRegion(opts))
	_, err = MapRegion(ctx, opts)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMapRegionTooSmall(t *testing.T) {
	ctx := context.Background()
	opts := MapOptions{Dir: t.TempDir(), Name: "small", Size: 16, Create: true}
	r, err := MapRegion(ctx, opts)
	require.NoError(t, err)
	require.NoError(t, UnmapRegion(ctx, r))

	opts.Create = false
	opts.Size = 4096
	_, err = MapRegion(ctx, opts)
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}

func TestAtomicWordAcrossMappings(t *testing.T) {
	ctx := context.Background()
	opts := MapOptions{Dir: t.TempDir(), Name: "flag", Size: 8, Create: true}
	a, err := MapRegion(ctx, opts)
	require.NoError(t, err)
	defer func() { _ = UnmapRegion(ctx, a) }()
	opts.Create = false
	b, err := MapRegion(ctx, opts)
	require.NoError(t, err)
	defer func() { _ = UnmapRegion(ctx, b) }()

	AtomicStoreUint32(Word(a.Addr, 0), 1)
	assert.Equal(t, uint32(1), AtomicLoadUint32(Word(b.Addr, 0)))
	assert.False(t, AtomicCompareAndSwapUint32(Word(b.Addr, 0), 0, 2))
	assert.True(t, AtomicCompareAndSwapUint32(Word(b.Addr, 0), 1, 0))
	assert.Equal(t, uint32(0), AtomicLoadUint32(Word(a.Addr, 0)))
}

func TestPathDefaultsDir(t *testing.T) {
	p := MapOptions{Name: "x"}.Path()
	assert.Contains(t, p, "x")
	assert.Equal(t, "/tmp/y", MapOptions{Dir: "/tmp", Name: "y"}.Path())
}
