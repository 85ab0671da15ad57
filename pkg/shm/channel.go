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
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	internalshm "github.com/srediag/ffd-cosim/internal/shm"
)

const (
	// FlagOffset is the position of the ready flag inside a region.
	FlagOffset = 0
	// DataOffset is where the record body starts.
	DataOffset = 8

	// FlagEmpty marks a consumed region.
	FlagEmpty uint32 = 0
	// FlagReady marks a region holding an unconsumed record.
	FlagReady uint32 = 1
)

// Config holds channel parameters.
type Config struct {
	Name   string // region name, without directory
	Dir    string // backing directory; empty selects /dev/shm
	Size   int    // region size in bytes, header included
	Tracer trace.Tracer
}

// Channel is a handle on a named region. It holds no mapping between calls.
type Channel struct {
	opts   internalshm.MapOptions
	tracer trace.Tracer
}

func newChannel(cfg Config) (*Channel, error) {
	if cfg.Name == "" || strings.ContainsRune(cfg.Name, '/') {
		return nil, fmt.Errorf("invalid region name %q", cfg.Name)
	}
	if cfg.Size <= DataOffset {
		return nil, fmt.Errorf("invalid region size %d, must exceed %d", cfg.Size, DataOffset)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Channel{
		opts:   internalshm.MapOptions{Dir: cfg.Dir, Name: cfg.Name, Size: cfg.Size},
		tracer: tracer,
	}, nil
}

// Open returns a channel on an existing region. It fails with ErrNotFound when the peer
// has not created the region yet.
func Open(ctx context.Context, cfg Config) (*Channel, error) {
	c, err := newChannel(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.withRegion(ctx, "open", func([]byte) error { return nil }); err != nil {
		return nil, err
	}
	return c, nil
}

// Create creates (or truncates) the region, clears it and returns a channel on it.
func Create(ctx context.Context, cfg Config) (*Channel, error) {
	c, err := newChannel(cfg)
	if err != nil {
		return nil, err
	}
	opts := c.opts
	opts.Create = true
	region, err := internalshm.MapRegion(ctx, opts)
	if err != nil {
		return nil, c.transportError("create", err)
	}
	clear(region.Addr)
	if err := internalshm.UnmapRegion(ctx, region); err != nil {
		return nil, c.transportError("create", err)
	}
	return c, nil
}

// Name returns the region name.
func (c *Channel) Name() string { return c.opts.Name }

// Size returns the region size, header included.
func (c *Channel) Size() int { return c.opts.Size }

// Capacity returns the largest body Publish accepts.
func (c *Channel) Capacity() int { return c.opts.Size - DataOffset }

// Path returns the backing object path.
func (c *Channel) Path() string { return c.opts.Path() }

// Write copies b into the region starting at offset 0. The flag is not interpreted.
func (c *Channel) Write(ctx context.Context, b []byte) error {
	if len(b) > c.opts.Size {
		return fmt.Errorf("write %d bytes into %s: %w", len(b), c.opts.Name, ErrPayloadTooLarge)
	}
	return c.withRegion(ctx, "write", func(mem []byte) error {
		copy(mem, b)
		return nil
	})
}

// Read copies the region into b and returns the number of bytes copied.
func (c *Channel) Read(ctx context.Context, b []byte) (n int, err error) {
	err = c.withRegion(ctx, "read", func(mem []byte) error {
		n = copy(b, mem)
		return nil
	})
	return n, err
}

// Publish writes body behind the header and then sets the ready flag. It returns ErrBusy
// without touching the region while the previous record is unconsumed.
func (c *Channel) Publish(ctx context.Context, body []byte) error {
	if len(body) > c.Capacity() {
		return fmt.Errorf("publish %d bytes into %s: %w", len(body), c.opts.Name, ErrPayloadTooLarge)
	}
	return c.withRegion(ctx, "publish", func(mem []byte) error {
		flag := internalshm.Word(mem, FlagOffset)
		if internalshm.AtomicLoadUint32(flag) != FlagEmpty {
			return ErrBusy
		}
		copy(mem[DataOffset:], body)
		internalshm.AtomicStoreUint32(flag, FlagReady)
		return nil
	})
}

// Consume copies the body out of a ready region and then clears the flag. It returns
// ErrEmpty while no record is ready.
func (c *Channel) Consume(ctx context.Context) (body []byte, err error) {
	err = c.withRegion(ctx, "consume", func(mem []byte) error {
		flag := internalshm.Word(mem, FlagOffset)
		if internalshm.AtomicLoadUint32(flag) != FlagReady {
			return ErrEmpty
		}
		body = make([]byte, len(mem)-DataOffset)
		copy(body, mem[DataOffset:])
		if !internalshm.AtomicCompareAndSwapUint32(flag, FlagReady, FlagEmpty) {
			body = nil
			return ErrFlagChanged
		}
		return nil
	})
	return body, err
}

// Peek returns the flag and a copy of the body without consuming it.
func (c *Channel) Peek(ctx context.Context) (flag uint32, body []byte, err error) {
	err = c.withRegion(ctx, "peek", func(mem []byte) error {
		flag = internalshm.AtomicLoadUint32(internalshm.Word(mem, FlagOffset))
		body = make([]byte, len(mem)-DataOffset)
		copy(body, mem[DataOffset:])
		return nil
	})
	return flag, body, err
}

// Flag returns the current ready flag.
func (c *Channel) Flag(ctx context.Context) (flag uint32, err error) {
	err = c.withRegion(ctx, "flag", func(mem []byte) error {
		flag = internalshm.AtomicLoadUint32(internalshm.Word(mem, FlagOffset))
		return nil
	})
	return flag, err
}

// Remove unlinks the region. Only the creator should call it.
func (c *Channel) Remove() error {
	if err := internalshm.RemoveRegion(c.opts); err != nil {
		return c.transportError("remove", err)
	}
	return nil
}

func (c *Channel) withRegion(ctx context.Context, op string, fn func(mem []byte) error) (err error) {
	_, span := c.tracer.Start(ctx, "shm."+op, trace.WithAttributes(
		attribute.String("shm.name", c.opts.Name),
		attribute.Int("shm.size", c.opts.Size),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrBusy) && !errors.Is(err, ErrEmpty) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	region, err := internalshm.MapRegion(ctx, c.opts)
	if err != nil {
		return c.transportError(op, err)
	}
	defer func() {
		if uerr := internalshm.UnmapRegion(ctx, region); uerr != nil && err == nil {
			err = c.transportError(op, uerr)
		}
	}()
	return fn(region.Addr)
}

func (c *Channel) transportError(op string, err error) error {
	kind := ErrMapFailed
	if errors.Is(err, fs.ErrNotExist) {
		kind = ErrNotFound
	}
	return &TransportError{Op: op, Name: c.opts.Name, Err: fmt.Errorf("%w: %w", kind, err)}
}
