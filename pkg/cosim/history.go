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

import (
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// Exchange describes one completed transfer.
type Exchange struct {
	Step    uint64
	Op      string // "produce" or "consume"
	SimTime float64
	Bytes   int
	Wait    time.Duration
	At      time.Time
}

// history keeps the last depth exchanges, oldest first.
type history struct {
	mu    sync.Mutex
	rb    *queue.RingBuffer
	depth uint64
}

func newHistory(depth uint64) *history {
	return &history{rb: queue.NewRingBuffer(depth), depth: depth}
}

func (h *history) add(e Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rb.Len() >= h.depth {
		_, _ = h.rb.Get()
	}
	_ = h.rb.Put(e)
}

func (h *history) snapshot() []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.rb.Len()
	out := make([]Exchange, 0, n)
	for i := uint64(0); i < n; i++ {
		item, err := h.rb.Get()
		if err != nil {
			break
		}
		out = append(out, item.(Exchange))
	}
	for _, e := range out {
		_ = h.rb.Put(e)
	}
	return out
}
