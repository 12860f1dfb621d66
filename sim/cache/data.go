/*
 * GPGPU - Data cache with the write policy matrix.
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
	"github.com/rcornwell/GPGPU/sim/tagarray"
	"github.com/rcornwell/GPGPU/util/bitset"
)

// Data is an L1 or L2 data cache. The two levels differ only in the
// access kinds their synthesized traffic carries.
type Data struct {
	Base

	wrAllocKind mem.AccessKind
	wrbkKind    mem.AccessKind
}

// NewL1Data cache for one core.
func NewL1Data(name string, cfg *config.CacheConfig, coreID, clusterID int,
	port MemPort, dec *addrgen.Decoder) *Data {
	return &Data{
		Base:        newBase(name, cfg, coreID, clusterID, mem.InL1DMissQueue, port, dec),
		wrAllocKind: mem.L1WrAllocR,
		wrbkKind:    mem.L1WrbkAcc,
	}
}

// NewL2Data cache for one memory sub partition.
func NewL2Data(name string, cfg *config.CacheConfig, subPartitionID int,
	port MemPort, dec *addrgen.Decoder) *Data {
	return &Data{
		Base:        newBase(name, cfg, -1, subPartitionID, mem.InPartitionL2MissQueue, port, dec),
		wrAllocKind: mem.L2WrAllocR,
		wrbkKind:    mem.L2WrbkAcc,
	}
}

// Access services one fetch against the cache, returning the request
// status. RESERVATION_FAIL results must be retried by the caller on a
// later cycle, all counters for them carry a fine grained reason.
func (d *Data) Access(fetch *mem.Fetch, cycle uint64, events *[]Event) mem.RequestStatus {
	addr := fetch.Addr()
	blockAddr := d.cfg.BlockAddr(addr)
	probeIndex, probeStatus := d.tags.Probe(blockAddr, &fetch.Access, fetch.IsWrite())

	var status mem.RequestStatus
	switch {
	case fetch.IsWrite() && probeStatus == mem.Hit:
		status = d.writeHit(probeIndex, fetch, cycle, events)
	case fetch.IsWrite() && probeStatus != mem.ReservationFail:
		status = d.writeMiss(fetch, cycle, events, probeStatus)
	case fetch.IsWrite():
		d.stats.RecordFailure(fetch.Access.Kind, mem.LineAllocFail)
		status = mem.ReservationFail
	case probeStatus == mem.Hit:
		status = d.readHit(probeIndex, fetch, cycle)
	case probeStatus != mem.ReservationFail:
		status = d.readMiss(fetch, blockAddr, cycle, events)
	default:
		d.stats.RecordFailure(fetch.Access.Kind, mem.LineAllocFail)
		status = mem.ReservationFail
	}

	if status != mem.ReservationFail {
		// A pending hit reports HIT_RESERVED, a sector miss that did
		// not escalate to a whole line miss reports SECTOR_MISS.
		recorded := status
		if probeStatus == mem.HitReserved {
			recorded = mem.HitReserved
		} else if probeStatus == mem.SectorMiss && status != mem.Miss {
			recorded = mem.SectorMiss
		}
		d.stats.Record(fetch.Access.Kind, recorded)
	}
	d.bandwidth.useDataPort(fetch.Access.Size, status, *events)
	return status
}

// readHit updates replacement state. Atomics leave the line dirty.
func (d *Data) readHit(index int, fetch *mem.Fetch, cycle uint64) mem.RequestStatus {
	blockAddr := d.cfg.BlockAddr(fetch.Addr())
	d.tags.Access(blockAddr, &fetch.Access, cycle)
	if fetch.IsAtomic {
		d.tags.MarkModified(index, fetch.Access.SectorMask, fetch.Access.ByteMask)
	}
	return mem.Hit
}

// readMiss reserves the line and queues an atom sized read downward.
func (d *Data) readMiss(fetch *mem.Fetch, blockAddr uint64, cycle uint64, events *[]Event) mem.RequestStatus {
	if !d.missQueueCanFit(1) {
		d.stats.RecordFailure(fetch.Access.Kind, mem.MissQueueFull)
		return mem.ReservationFail
	}
	doMiss, mergeFail, result := d.sendReadRequest(fetch, blockAddr, cycle, events, false)
	if !doMiss {
		if mergeFail {
			d.stats.RecordFailure(fetch.Access.Kind, mem.MSHRMergeEntryFail)
		} else {
			d.stats.RecordFailure(fetch.Access.Kind, mem.MSHREntryFail)
		}
		return mem.ReservationFail
	}
	if result.Writeback && d.cfg.Write != config.WriteThrough {
		d.sendWriteback(result.Evicted, fetch, cycle, events)
	}
	return mem.Miss
}

// writeHit dispatches on the write policy.
func (d *Data) writeHit(index int, fetch *mem.Fetch, cycle uint64, events *[]Event) mem.RequestStatus {
	policy := d.cfg.Write
	if policy == config.LocalWBGlobalWT {
		if fetch.Access.Kind == mem.LocalAccW {
			policy = config.WriteBack
		} else {
			policy = config.WriteThrough
		}
	}

	switch policy {
	case config.WriteBack:
		return d.writeHitWriteBack(index, fetch, cycle)
	case config.WriteThrough:
		return d.writeHitWriteThrough(index, fetch, cycle, events)
	case config.WriteEvict:
		return d.writeHitWriteEvict(index, fetch, cycle, events)
	default:
		return d.writeHitWriteBack(index, fetch, cycle)
	}
}

// writeHitWriteBack marks the written sectors dirty, no lower traffic.
func (d *Data) writeHitWriteBack(index int, fetch *mem.Fetch, cycle uint64) mem.RequestStatus {
	blockAddr := d.cfg.BlockAddr(fetch.Addr())
	d.tags.Access(blockAddr, &fetch.Access, cycle)
	d.tags.MarkModified(index, fetch.Access.SectorMask, fetch.Access.ByteMask)
	d.updateReadable(index, fetch)
	return mem.Hit
}

// writeHitWriteThrough also forwards the write downward.
func (d *Data) writeHitWriteThrough(index int, fetch *mem.Fetch, cycle uint64, events *[]Event) mem.RequestStatus {
	if !d.missQueueCanFit(1) {
		d.stats.RecordFailure(fetch.Access.Kind, mem.MissQueueFull)
		return mem.ReservationFail
	}
	blockAddr := d.cfg.BlockAddr(fetch.Addr())
	d.tags.Access(blockAddr, &fetch.Access, cycle)
	d.tags.MarkModified(index, fetch.Access.SectorMask, fetch.Access.ByteMask)
	d.updateReadable(index, fetch)
	d.sendWriteRequest(fetch, cycle, events, WriteRequestSent)
	return mem.Hit
}

// writeHitWriteEvict invalidates the line and forwards the write.
func (d *Data) writeHitWriteEvict(index int, fetch *mem.Fetch, cycle uint64, events *[]Event) mem.RequestStatus {
	if !d.missQueueCanFit(1) {
		d.stats.RecordFailure(fetch.Access.Kind, mem.MissQueueFull)
		return mem.ReservationFail
	}
	d.tags.InvalidateBlock(index)
	d.sendWriteRequest(fetch, cycle, events, WriteRequestSent)
	return mem.Hit
}

// writeMiss dispatches on the write allocate policy.
func (d *Data) writeMiss(fetch *mem.Fetch, cycle uint64, events *[]Event, probeStatus mem.RequestStatus) mem.RequestStatus {
	switch d.cfg.WriteAlloc {
	case config.WriteAllocate:
		return d.writeMissWriteAllocateNaive(fetch, cycle, events, probeStatus)
	default:
		return d.writeMissNoWriteAllocate(fetch, cycle, events)
	}
}

// writeMissNoWriteAllocate forwards the write downward without touching
// the tag array.
func (d *Data) writeMissNoWriteAllocate(fetch *mem.Fetch, cycle uint64, events *[]Event) mem.RequestStatus {
	if !d.missQueueCanFit(1) {
		d.stats.RecordFailure(fetch.Access.Kind, mem.MissQueueFull)
		return mem.ReservationFail
	}
	d.sendWriteRequest(fetch, cycle, events, WriteRequestSent)
	return mem.Miss
}

// writeMissWriteAllocateNaive forwards the write and synthesizes a read
// that allocates the line, so later writes to it hit.
func (d *Data) writeMissWriteAllocateNaive(fetch *mem.Fetch, cycle uint64, events *[]Event,
	probeStatus mem.RequestStatus) mem.RequestStatus {
	// Needs a slot for the write through and one for the allocate read.
	if !d.missQueueCanFit(2) {
		d.stats.RecordFailure(fetch.Access.Kind, mem.MissQueueFull)
		return mem.ReservationFail
	}
	mshrAddr := d.cfg.MSHRAddr(fetch.Addr())
	if d.mshrs.Full(mshrAddr) {
		if d.mshrs.Probe(mshrAddr) {
			d.stats.RecordFailure(fetch.Access.Kind, mem.MSHRMergeEntryFail)
		} else {
			d.stats.RecordFailure(fetch.Access.Kind, mem.MSHREntryFail)
		}
		return mem.ReservationFail
	}

	d.sendWriteRequest(fetch, cycle, events, WriteRequestSent)

	// Synthesized read for allocation, same line, atom sized.
	readAccess := mem.Access{
		Kind:       d.wrAllocKind,
		Addr:       fetch.Addr(),
		AllocID:    fetch.Access.AllocID,
		Size:       d.cfg.AtomSize,
		WarpMask:   fetch.Access.WarpMask,
		ByteMask:   fetch.Access.ByteMask,
		SectorMask: fetch.Access.SectorMask,
	}
	readFetch := mem.NewFetch(readAccess, mem.ReadRequest, fetch.WarpID, fetch.CoreID, fetch.ClusterID, d.dec)
	readFetch.Original = fetch

	blockAddr := d.cfg.BlockAddr(fetch.Addr())
	doMiss, _, result := d.sendReadRequest(readFetch, blockAddr, cycle, events, true)
	*events = append(*events, Event{Kind: WriteAllocateSent})
	if !doMiss {
		return mem.ReservationFail
	}
	if result.Writeback && d.cfg.Write != config.WriteThrough {
		d.sendWriteback(result.Evicted, fetch, cycle, events)
	}
	_ = probeStatus
	return mem.Miss
}

// sendWriteRequest pushes a write fetch into the miss queue.
func (d *Data) sendWriteRequest(fetch *mem.Fetch, cycle uint64, events *[]Event, kind EventKind) {
	*events = append(*events, Event{Kind: kind})
	d.missQueue = append(d.missQueue, fetch)
	fetch.SetStatus(d.missQueueStatus, cycle)
}

// sendWriteback synthesizes the write of an evicted MODIFIED block. The
// physical chip and sub partition of the triggering fetch are preserved
// so the writeback lands in the partition holding the line.
func (d *Data) sendWriteback(evicted tagarray.EvictedBlockInfo, trigger *mem.Fetch,
	cycle uint64, events *[]Event) {
	access := mem.Access{
		Kind:       d.wrbkKind,
		Addr:       evicted.BlockAddr,
		AllocID:    evicted.AllocID,
		Size:       evicted.ModifiedSize,
		IsWrite:    true,
		ByteMask:   evicted.DirtyByteMask,
		SectorMask: evicted.SectorMask,
	}
	wb := mem.NewFetch(access, mem.WriteRequest, trigger.WarpID, trigger.CoreID, trigger.ClusterID, d.dec)
	wb.PhysAddr.Chip = trigger.PhysAddr.Chip
	wb.PhysAddr.SubPartition = trigger.PhysAddr.SubPartition
	*events = append(*events, Event{Kind: WriteBackRequestSent, Evicted: evicted})
	d.missQueue = append(d.missQueue, wb)
	wb.SetStatus(d.missQueueStatus, cycle)
}

// updateReadable marks a written sector readable once every byte of it
// is dirty, partial writes leave it unreadable until the fill arrives.
func (d *Data) updateReadable(index int, fetch *mem.Fetch) {
	block := d.tags.BlockAt(index)
	for s := range config.SectorChunkSize {
		if !fetch.Access.SectorMask.Test(s) && d.cfg.Sectored() {
			continue
		}
		if block.Readable(s) {
			continue
		}
		if block.DirtyByteMask().CountSector(s) == config.SectorSize {
			var one bitset.SectorMask
			one.Set(s)
			block.SetReadable(one, true)
		}
	}
}

// FlushL1 invalidates the cache, the kernel boundary behavior of an L1.
func (d *Data) FlushL1() {
	d.tags.Invalidate()
}

// FlushL2 emits writebacks for all dirty lines into the miss queue.
func (d *Data) FlushL2(cycle uint64) int {
	evictions := d.tags.Flush()
	for _, evicted := range evictions {
		access := mem.Access{
			Kind:       d.wrbkKind,
			Addr:       evicted.BlockAddr,
			AllocID:    evicted.AllocID,
			Size:       evicted.ModifiedSize,
			IsWrite:    true,
			ByteMask:   evicted.DirtyByteMask,
			SectorMask: evicted.SectorMask,
		}
		wb := mem.NewFetch(access, mem.WriteRequest, -1, d.coreID, d.clusterID, d.dec)
		d.missQueue = append(d.missQueue, wb)
		wb.SetStatus(d.missQueueStatus, cycle)
	}
	return len(evictions)
}
