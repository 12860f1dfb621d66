/*
 * GPGPU - Base cache machinery shared by all cache levels.
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
	"github.com/rcornwell/GPGPU/sim/addrgen"
	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/sim/mshr"
	"github.com/rcornwell/GPGPU/sim/stats"
	"github.com/rcornwell/GPGPU/sim/tagarray"
)

// pendingRequest remembers the original shape of a fetch sent downward.
// Responses come back atom sized, the fill restores the request.
type pendingRequest struct {
	blockAddr  uint64
	mshrAddr   uint64
	addr       uint64
	dataSize   uint32
	cacheIndex int
}

// Base implements the machinery every cache level shares: tag array,
// MSHR merging, the bounded miss queue feeding the lower port, and port
// bandwidth modeling.
type Base struct {
	name      string
	cfg       *config.CacheConfig
	coreID    int
	clusterID int

	tags  *tagarray.TagArray
	mshrs *mshr.Table

	missQueue       []*mem.Fetch
	missQueueStatus mem.Status

	pending map[uint64]pendingRequest

	bandwidth bandwidthManager

	stats *stats.Cache
	port  MemPort
	dec   *addrgen.Decoder
}

func newBase(name string, cfg *config.CacheConfig, coreID, clusterID int,
	missQueueStatus mem.Status, port MemPort, dec *addrgen.Decoder) Base {
	return Base{
		name:            name,
		cfg:             cfg,
		coreID:          coreID,
		clusterID:       clusterID,
		tags:            tagarray.New(cfg),
		mshrs:           mshr.New(cfg.MSHREntries, cfg.MSHRMaxMerge),
		missQueueStatus: missQueueStatus,
		pending:         map[uint64]pendingRequest{},
		bandwidth:       bandwidthManager{cfg: cfg},
		stats:           &stats.Cache{},
		port:            port,
		dec:             dec,
	}
}

// Name of the cache for logging.
func (b *Base) Name() string {
	return b.name
}

// Stats of this cache.
func (b *Base) Stats() *stats.Cache {
	return b.stats
}

// Tags exposes the tag array, the monitor and tests inspect it.
func (b *Base) Tags() *tagarray.TagArray {
	return b.tags
}

// missQueueCanFit n more requests this access may generate.
func (b *Base) missQueueCanFit(n int) bool {
	return len(b.missQueue)+n <= b.cfg.MissQueueSize
}

// MissQueueFull for a single request.
func (b *Base) MissQueueFull() bool {
	return !b.missQueueCanFit(1)
}

// Cycle pops one miss queue entry into the lower port when it fits, then
// replenishes port bandwidth.
func (b *Base) Cycle(cycle uint64) {
	if len(b.missQueue) > 0 {
		fetch := b.missQueue[0]
		if b.port.CanFit(fetch) {
			b.missQueue = b.missQueue[1:]
			b.port.Push(fetch, cycle)
		}
	}
	b.bandwidth.replenish()
}

// WaitingForFill reports whether the fetch is a response this cache asked
// for.
func (b *Base) WaitingForFill(fetch *mem.Fetch) bool {
	_, ok := b.pending[fetch.ID]
	return ok
}

// HasPendingRequests while the miss queue holds fetches or fills are
// still outstanding.
func (b *Base) HasPendingRequests() bool {
	return len(b.missQueue) > 0 || len(b.pending) > 0
}

// HasReadyAccesses waiting to hand back to the upper level.
func (b *Base) HasReadyAccesses() bool {
	return b.mshrs.HasReady()
}

// NextAccess pops the next serviced fetch in fill order.
func (b *Base) NextAccess() *mem.Fetch {
	return b.mshrs.NextAccess()
}

// HasFreeDataPort this cycle.
func (b *Base) HasFreeDataPort() bool {
	return b.bandwidth.dataPortFree()
}

// HasFreeFillPort this cycle.
func (b *Base) HasFreeFillPort() bool {
	return b.bandwidth.fillPortFree()
}

// sendReadRequest merges the fetch into the MSHRs or pushes a new miss
// down. Returns doMiss true when the request was accepted, and the tag
// array outcome so the caller can emit a writeback for an evicted block.
// mergeFail distinguishes a full merge list from a full table.
func (b *Base) sendReadRequest(fetch *mem.Fetch, blockAddr uint64, cycle uint64,
	events *[]Event, isWriteAllocate bool) (doMiss, mergeFail bool, result tagarray.AccessStatus) {
	mshrAddr := b.cfg.MSHRAddr(fetch.Addr())
	mshrHit := b.mshrs.Probe(mshrAddr)
	mshrFull := b.mshrs.Full(mshrAddr)

	switch {
	case mshrHit && !mshrFull:
		// Merge with the in flight miss. The tag access keeps LRU and
		// reservation state coherent.
		result = b.tags.Access(blockAddr, &fetch.Access, cycle)
		b.mshrs.Add(mshrAddr, fetch)
		doMiss = true

	case !mshrHit && !mshrFull && b.missQueueCanFit(1):
		result = b.tags.Access(blockAddr, &fetch.Access, cycle)
		b.mshrs.Add(mshrAddr, fetch)
		b.pending[fetch.ID] = pendingRequest{
			blockAddr:  blockAddr,
			mshrAddr:   mshrAddr,
			addr:       fetch.Addr(),
			dataSize:   fetch.Access.Size,
			cacheIndex: result.Index,
		}
		// The lower level services atom sized requests.
		fetch.Access.Addr = mshrAddr
		fetch.Access.Size = b.cfg.AtomSize
		b.missQueue = append(b.missQueue, fetch)
		fetch.SetStatus(b.missQueueStatus, cycle)
		if !isWriteAllocate {
			*events = append(*events, Event{Kind: ReadRequestSent})
		}
		doMiss = true

	default:
		mergeFail = mshrHit && mshrFull
	}
	return doMiss, mergeFail, result
}

// Fill accepts a response from the lower level.
func (b *Base) Fill(fetch *mem.Fetch, cycle uint64) {
	pr, ok := b.pending[fetch.ID]
	if !ok {
		// Response to a writeback or write through, nothing to fill.
		return
	}
	delete(b.pending, fetch.ID)

	// Restore the original request the response answers.
	fetch.Access.Addr = pr.addr
	fetch.Access.Size = pr.dataSize

	switch b.cfg.Allocate {
	case config.OnMiss:
		b.tags.FillOnMiss(pr.cacheIndex, &fetch.Access, cycle)
	case config.OnFill:
		b.tags.FillOnFill(pr.blockAddr, &fetch.Access, cycle)
	}

	hasAtomic := b.mshrs.MarkReady(pr.mshrAddr)
	if hasAtomic && b.cfg.Allocate == config.OnMiss {
		// An atomic among the merged requests leaves the line dirty.
		b.tags.MarkModified(pr.cacheIndex, fetch.Access.SectorMask, fetch.Access.ByteMask)
	}
	b.bandwidth.useFillPort(fetch)
	fetch.SetStatus(mem.InShaderFetched, cycle)
}

// Invalidate drops all cached state.
func (b *Base) Invalidate() {
	b.tags.Invalidate()
}
