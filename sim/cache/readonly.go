/*
 * GPGPU - Read only cache, used for instruction fetch.
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
)

// ReadOnly is the instruction cache. Writes are a caller error.
type ReadOnly struct {
	Base
}

// NewReadOnly cache.
func NewReadOnly(name string, cfg *config.CacheConfig, coreID, clusterID int,
	port MemPort, dec *addrgen.Decoder) *ReadOnly {
	return &ReadOnly{
		Base: newBase(name, cfg, coreID, clusterID, mem.InL1IMissQueue, port, dec),
	}
}

// Access services one read. The write policy is fixed READ_ONLY, so no
// line is ever dirty and misses never write back.
func (r *ReadOnly) Access(fetch *mem.Fetch, cycle uint64, events *[]Event) mem.RequestStatus {
	if fetch.IsWrite() {
		// The fetch stage never issues writes.
		r.stats.RecordFailure(fetch.Access.Kind, mem.LineAllocFail)
		return mem.ReservationFail
	}

	blockAddr := r.cfg.BlockAddr(fetch.Addr())
	_, probeStatus := r.tags.Probe(blockAddr, &fetch.Access, false)

	var status mem.RequestStatus
	switch probeStatus {
	case mem.Hit:
		r.tags.Access(blockAddr, &fetch.Access, cycle)
		status = mem.Hit
	case mem.ReservationFail:
		r.stats.RecordFailure(fetch.Access.Kind, mem.LineAllocFail)
		return mem.ReservationFail
	default:
		if r.MissQueueFull() {
			r.stats.RecordFailure(fetch.Access.Kind, mem.MissQueueFull)
			return mem.ReservationFail
		}
		doMiss, mergeFail, _ := r.sendReadRequest(fetch, blockAddr, cycle, events, false)
		if !doMiss {
			if mergeFail {
				r.stats.RecordFailure(fetch.Access.Kind, mem.MSHRMergeEntryFail)
			} else {
				r.stats.RecordFailure(fetch.Access.Kind, mem.MSHREntryFail)
			}
			return mem.ReservationFail
		}
		status = mem.Miss
	}

	recorded := status
	if probeStatus == mem.HitReserved {
		recorded = mem.HitReserved
	}
	r.stats.Record(fetch.Access.Kind, recorded)
	r.bandwidth.useDataPort(fetch.Access.Size, status, *events)
	return status
}
