/*
 * GPGPU - Interconnect between clusters and memory partitions.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package interconn

import (
	"sync"

	"github.com/rcornwell/GPGPU/sim/mem"
)

type packet struct {
	fetch   *mem.Fetch
	src     int
	readyAt uint64
}

// Interconnect routes fetches between device nodes through per
// destination FIFO queues. Packets between a (src, dst) pair are never
// reordered. Pushes may come from cores cycling in parallel, the queues
// are lock protected.
type Interconnect struct {
	mu       sync.Mutex
	numNodes int
	latency  uint64
	bufSize  int
	queues   [][]packet
	cycle    uint64
}

// New interconnect with per node queues of bufSize packets.
func New(numNodes, latency, bufSize int) *Interconnect {
	queues := make([][]packet, numNodes)
	return &Interconnect{
		numNodes: numNodes,
		latency:  uint64(latency),
		bufSize:  bufSize,
		queues:   queues,
	}
}

// HasBuffer reports whether a packet toward dst can be admitted.
func (i *Interconnect) HasBuffer(dst int, size uint32) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queues[dst]) < i.bufSize
}

// Push a fetch from src toward dst. The caller checked HasBuffer this
// cycle.
func (i *Interconnect) Push(src, dst int, fetch *mem.Fetch) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.queues[dst] = append(i.queues[dst], packet{
		fetch:   fetch,
		src:     src,
		readyAt: i.cycle + i.latency,
	})
}

// Pop the next in order packet destined to node, nil when none has
// propagated yet.
func (i *Interconnect) Pop(node int) *mem.Fetch {
	i.mu.Lock()
	defer i.mu.Unlock()
	queue := i.queues[node]
	if len(queue) == 0 || queue[0].readyAt > i.cycle {
		return nil
	}
	i.queues[node] = queue[1:]
	return queue[0].fetch
}

// Peek the next in order packet destined to node without removing it.
func (i *Interconnect) Peek(node int) *mem.Fetch {
	i.mu.Lock()
	defer i.mu.Unlock()
	queue := i.queues[node]
	if len(queue) == 0 || queue[0].readyAt > i.cycle {
		return nil
	}
	return queue[0].fetch
}

// Advance one propagation step.
func (i *Interconnect) Advance() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cycle++
}

// Busy when any packet is still in flight.
func (i *Interconnect) Busy() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, queue := range i.queues {
		if len(queue) > 0 {
			return true
		}
	}
	return false
}
