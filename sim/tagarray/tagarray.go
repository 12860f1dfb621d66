/*
 * GPGPU - Cache tag array.
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

package tagarray

import (
	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/util/bitset"
)

// EvictedBlockInfo describes a replaced line the cache may have to write
// back to the next level.
type EvictedBlockInfo struct {
	BlockAddr     uint64
	AllocID       int
	ModifiedSize  uint32
	DirtyByteMask bitset.ByteMask
	SectorMask    bitset.SectorMask
}

// AccessStatus is the outcome of a side effectful tag array access.
type AccessStatus struct {
	Index     int
	Status    mem.RequestStatus
	Writeback bool
	Evicted   EvictedBlockInfo
}

// TagArray holds the blocks of one cache and its replacement state.
type TagArray struct {
	cfg    *config.CacheConfig
	lines  []Block

	// Counters.
	NumAccess          uint64
	NumMiss            uint64
	NumPendingHit      uint64
	NumReservationFail uint64
	NumSectorMiss      uint64
	NumDirty           int
}

// New tag array for the cache geometry.
func New(cfg *config.CacheConfig) *TagArray {
	t := &TagArray{
		cfg:   cfg,
		lines: make([]Block, cfg.TotalLines()),
	}
	numSectors := 1
	if cfg.Sectored() {
		numSectors = cfg.NumSectors()
	}
	for i := range t.lines {
		t.lines[i] = newBlock(numSectors)
	}
	return t
}

// BlockAt returns the block at a cache index.
func (t *TagArray) BlockAt(index int) *Block {
	return &t.lines[index]
}

// requestSectorMask for an access, collapsing to sector 0 on line caches.
func (t *TagArray) requestSectorMask(access *mem.Access) bitset.SectorMask {
	if !t.cfg.Sectored() {
		return 1
	}
	if access.SectorMask.Any() {
		return access.SectorMask
	}
	var mask bitset.SectorMask
	mask.Set(t.cfg.SectorOf(access.Addr))
	return mask
}

// Probe looks for the block of an access without changing any state.
// Returns the way index the access resolves to and its status. The index
// is only meaningful for HIT, HIT_RESERVED, SECTOR_MISS and MISS.
func (t *TagArray) Probe(blockAddr uint64, access *mem.Access, isWrite bool) (int, mem.RequestStatus) {
	setIndex := t.cfg.SetIndex(blockAddr)
	tag := t.cfg.Tag(blockAddr)
	mask := t.requestSectorMask(access)

	invalidLine := -1
	validLine := -1
	var validTime uint64

	assoc := int(t.cfg.Associativity)
	base := int(setIndex) * assoc
	for way := range assoc {
		index := base + way
		line := &t.lines[index]
		if line.Tag == tag && !line.IsInvalidAll() {
			switch {
			case line.IsReservedAny(mask):
				return index, mem.HitReserved
			case line.IsValidAll(mask):
				if !isWrite && !line.IsReadableAll(mask) {
					// Data not yet filled for a partially
					// written sector.
					return index, mem.SectorMiss
				}
				return index, mem.Hit
			case line.IsInvalidAny(mask):
				if t.cfg.Sectored() {
					return index, mem.SectorMiss
				}
				return index, mem.Miss
			}
		}
		// Track replacement candidates.
		if line.hasReservation() {
			continue
		}
		if line.IsInvalidAll() {
			invalidLine = index
			continue
		}
		if line.IsModifiedAny() && !t.dirtyReplaceAllowed() {
			continue
		}
		switch t.cfg.Replacement {
		case config.LRU:
			if validLine == -1 || line.LastAccess < validTime {
				validLine = index
				validTime = line.LastAccess
			}
		case config.FIFO:
			if validLine == -1 || line.AllocTime < validTime {
				validLine = index
				validTime = line.AllocTime
			}
		}
	}

	if invalidLine != -1 {
		return invalidLine, mem.Miss
	}
	if validLine != -1 {
		return validLine, mem.Miss
	}
	return -1, mem.ReservationFail
}

// dirtyReplaceAllowed checks the dirty line budget.
func (t *TagArray) dirtyReplaceAllowed() bool {
	if t.cfg.DirtyLineThreshold >= 100 {
		return true
	}
	return t.NumDirty*100 <= t.cfg.DirtyLineThreshold*int(t.cfg.TotalLines())
}

// Access performs the side effectful variant of Probe: updates LRU and
// counters, and on a miss claims the victim way, evicting its previous
// contents. With the ON_MISS allocation policy the new block is reserved
// here; ON_FILL caches only claim the way at fill time.
func (t *TagArray) Access(blockAddr uint64, access *mem.Access, time uint64) AccessStatus {
	t.NumAccess++
	index, status := t.Probe(blockAddr, access, access.IsWrite)
	result := AccessStatus{Index: index, Status: status}
	mask := t.requestSectorMask(access)

	switch status {
	case mem.HitReserved:
		t.NumPendingHit++
		t.lines[index].LastAccess = time
	case mem.Hit:
		t.lines[index].LastAccess = time
	case mem.Miss:
		t.NumMiss++
		if t.cfg.Allocate == config.OnMiss {
			line := &t.lines[index]
			if line.IsModifiedAny() {
				result.Writeback = true
				result.Evicted = EvictedBlockInfo{
					BlockAddr:     line.BlockAddr,
					AllocID:       line.AllocID,
					ModifiedSize:  line.ModifiedSize(t.sectorBytes()),
					DirtyByteMask: line.DirtyByteMask(),
					SectorMask:    line.DirtySectorMask(),
				}
				t.NumDirty--
			}
			line.allocate(t.cfg.Tag(blockAddr), t.cfg.BlockAddr(blockAddr), access.AllocID, mask, time)
		}
	case mem.SectorMiss:
		t.NumSectorMiss++
		if t.cfg.Allocate == config.OnMiss {
			t.lines[index].reserveSectors(mask, time)
		}
	case mem.ReservationFail:
		t.NumReservationFail++
	}
	return result
}

func (t *TagArray) sectorBytes() uint32 {
	if t.cfg.Sectored() {
		return config.SectorSize
	}
	return t.cfg.LineSize
}

// FillOnMiss completes a miss that reserved its way at access time.
func (t *TagArray) FillOnMiss(index int, access *mem.Access, time uint64) {
	t.lines[index].fill(t.requestSectorMask(access), time)
}

// FillOnFill allocates and fills at response time for ON_FILL caches.
// The second probe can reservation fail, in which case the fill is lost
// and the status reported back.
func (t *TagArray) FillOnFill(blockAddr uint64, access *mem.Access, time uint64) mem.RequestStatus {
	index, status := t.Probe(blockAddr, access, access.IsWrite)
	mask := t.requestSectorMask(access)
	switch status {
	case mem.Miss:
		line := &t.lines[index]
		if line.IsModifiedAny() {
			t.NumDirty--
		}
		line.allocate(t.cfg.Tag(blockAddr), t.cfg.BlockAddr(blockAddr), access.AllocID, mask, time)
		line.fill(mask, time)
	case mem.SectorMiss, mem.Hit, mem.HitReserved:
		t.lines[index].fill(mask, time)
	}
	return status
}

// MarkModified sets the requested sectors of a block MODIFIED and merges
// the written bytes, keeping the dirty line count.
func (t *TagArray) MarkModified(index int, sectorMask bitset.SectorMask, byteMask bitset.ByteMask) {
	line := &t.lines[index]
	wasModified := line.IsModifiedAny()
	line.setModified(sectorMask)
	line.OrDirtyByteMask(byteMask)
	if !wasModified && line.IsModifiedAny() {
		t.NumDirty++
	}
}

// InvalidateBlock drops one block, keeping the dirty count.
func (t *TagArray) InvalidateBlock(index int) {
	line := &t.lines[index]
	if line.IsModifiedAny() {
		t.NumDirty--
	}
	line.invalidate()
}

// Invalidate drops every block without writing anything back.
func (t *TagArray) Invalidate() {
	for i := range t.lines {
		t.lines[i].invalidate()
	}
	t.NumDirty = 0
}

// Flush returns the writebacks for every MODIFIED block and marks them
// clean VALID.
func (t *TagArray) Flush() []EvictedBlockInfo {
	var evicted []EvictedBlockInfo
	for i := range t.lines {
		line := &t.lines[i]
		if !line.IsModifiedAny() {
			continue
		}
		evicted = append(evicted, EvictedBlockInfo{
			BlockAddr:     line.BlockAddr,
			AllocID:       line.AllocID,
			ModifiedSize:  line.ModifiedSize(t.sectorBytes()),
			DirtyByteMask: line.DirtyByteMask(),
			SectorMask:    line.DirtySectorMask(),
		})
		for s := range config.SectorChunkSize {
			if line.state[s] == Modified {
				line.state[s] = Valid
			}
		}
		line.dirtyBytes = bitset.ByteMask{}
		t.NumDirty--
	}
	return evicted
}
