/*
 * GPGPU - Cache access events and port bandwidth accounting.
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

package cache

import (
	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/sim/tagarray"
)

// EventKind of the requests a cache sent downward while servicing an
// access. The issuing unit inspects these to account store completion
// and port bandwidth.
type EventKind int

const (
	WriteBackRequestSent EventKind = iota
	ReadRequestSent
	WriteRequestSent
	WriteAllocateSent
)

// Event describes one downward request. Evicted is only meaningful for
// WriteBackRequestSent.
type Event struct {
	Kind    EventKind
	Evicted tagarray.EvictedBlockInfo
}

// HasEvent of the given kind.
func HasEvent(events []Event, kind EventKind) bool {
	for _, ev := range events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

// MemPort is the outgoing connection to the next lower memory level.
type MemPort interface {
	CanFit(fetch *mem.Fetch) bool
	Push(fetch *mem.Fetch, cycle uint64)
}

// bandwidthManager models the data and fill port occupancy of a cache.
// A port busy from a previous access stalls this cycle's client.
type bandwidthManager struct {
	cfg *config.CacheConfig

	dataPortOccupied int
	fillPortOccupied int
}

// useDataPort charges the cycles an access holds the data port.
func (b *bandwidthManager) useDataPort(dataSize uint32, status mem.RequestStatus, events []Event) {
	portWidth := b.cfg.DataPortWidth
	switch status {
	case mem.Hit:
		b.dataPortOccupied += int((dataSize + portWidth - 1) / portWidth)
	case mem.HitReserved, mem.Miss:
		// Writeback data of the evicted block occupies the port.
		for _, ev := range events {
			if ev.Kind == WriteBackRequestSent {
				b.dataPortOccupied += int((ev.Evicted.ModifiedSize + portWidth - 1) / portWidth)
			}
		}
	}
}

// useFillPort charges a returning fill.
func (b *bandwidthManager) useFillPort(fetch *mem.Fetch) {
	fillCycles := (b.cfg.AtomSize + b.cfg.DataPortWidth - 1) / b.cfg.DataPortWidth
	b.fillPortOccupied += int(fillCycles)
}

// replenish frees one cycle of both ports.
func (b *bandwidthManager) replenish() {
	if b.dataPortOccupied > 0 {
		b.dataPortOccupied--
	}
	if b.fillPortOccupied > 0 {
		b.fillPortOccupied--
	}
}

func (b *bandwidthManager) dataPortFree() bool {
	return b.dataPortOccupied == 0
}

func (b *bandwidthManager) fillPortFree() bool {
	return b.fillPortOccupied == 0
}
