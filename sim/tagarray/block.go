/*
 * GPGPU - Cache block state.
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
	"github.com/rcornwell/GPGPU/util/bitset"
)

// BlockState of one sector.
type BlockState int

const (
	Invalid BlockState = iota
	Reserved
	Valid
	Modified
)

// Block is one cache line. Line caches use a single sector covering the
// whole line, sector caches track four 32 byte sectors independently.
type Block struct {
	Tag        uint64
	BlockAddr  uint64
	AllocID    int
	numSectors int

	state      [config.SectorChunkSize]BlockState
	readable   [config.SectorChunkSize]bool
	dirtyBytes bitset.ByteMask

	LastAccess uint64
	AllocTime  uint64
	FillTime   uint64
}

func newBlock(numSectors int) Block {
	return Block{numSectors: numSectors}
}

func (b *Block) sectors(mask bitset.SectorMask) bitset.SectorMask {
	if b.numSectors == 1 {
		return 1
	}
	return mask
}

// State of one sector.
func (b *Block) State(sector int) BlockState {
	return b.state[sector]
}

// IsValidAll returns true when every requested sector is VALID or MODIFIED.
func (b *Block) IsValidAll(mask bitset.SectorMask) bool {
	for s := range b.numSectors {
		if b.sectors(mask).Test(s) && b.state[s] != Valid && b.state[s] != Modified {
			return false
		}
	}
	return true
}

// IsReservedAny returns true when any requested sector is RESERVED.
func (b *Block) IsReservedAny(mask bitset.SectorMask) bool {
	for s := range b.numSectors {
		if b.sectors(mask).Test(s) && b.state[s] == Reserved {
			return true
		}
	}
	return false
}

// IsInvalidAny returns true when any requested sector is INVALID.
func (b *Block) IsInvalidAny(mask bitset.SectorMask) bool {
	for s := range b.numSectors {
		if b.sectors(mask).Test(s) && b.state[s] == Invalid {
			return true
		}
	}
	return false
}

// IsInvalidAll returns true when no sector holds data or a reservation.
func (b *Block) IsInvalidAll() bool {
	for s := range b.numSectors {
		if b.state[s] != Invalid {
			return false
		}
	}
	return true
}

// hasReservation reports whether any sector is RESERVED.
func (b *Block) hasReservation() bool {
	for s := range b.numSectors {
		if b.state[s] == Reserved {
			return true
		}
	}
	return false
}

// IsModifiedAny sector.
func (b *Block) IsModifiedAny() bool {
	for s := range b.numSectors {
		if b.state[s] == Modified {
			return true
		}
	}
	return false
}

// IsReadableAll requested sectors.
func (b *Block) IsReadableAll(mask bitset.SectorMask) bool {
	for s := range b.numSectors {
		if b.sectors(mask).Test(s) && !b.readable[s] {
			return false
		}
	}
	return true
}

// SetReadable marks the requested sectors readable or not.
func (b *Block) SetReadable(mask bitset.SectorMask, readable bool) {
	for s := range b.numSectors {
		if b.sectors(mask).Test(s) {
			b.readable[s] = readable
		}
	}
}

// Readable state of one sector.
func (b *Block) Readable(sector int) bool {
	return b.readable[sector]
}

// DirtyByteMask of the block.
func (b *Block) DirtyByteMask() bitset.ByteMask {
	return b.dirtyBytes
}

// OrDirtyByteMask merges written bytes into the dirty mask.
func (b *Block) OrDirtyByteMask(mask bitset.ByteMask) {
	b.dirtyBytes.Or(mask)
}

// DirtySectorMask returns the sectors holding MODIFIED data.
func (b *Block) DirtySectorMask() bitset.SectorMask {
	var mask bitset.SectorMask
	for s := range b.numSectors {
		if b.state[s] == Modified {
			mask.Set(s)
		}
	}
	return mask
}

// ModifiedSize in bytes, the data a writeback has to move.
func (b *Block) ModifiedSize(sectorSize uint32) uint32 {
	return uint32(b.DirtySectorMask().Count()) * sectorSize
}

// allocate resets the block for a new tag, reserving the requested
// sectors. Other sector state is lost, the caller evicts first.
func (b *Block) allocate(tag, blockAddr uint64, allocID int, mask bitset.SectorMask, time uint64) {
	b.Tag = tag
	b.BlockAddr = blockAddr
	b.AllocID = allocID
	b.dirtyBytes = bitset.ByteMask{}
	for s := range b.numSectors {
		b.state[s] = Invalid
		b.readable[s] = false
	}
	b.reserveSectors(mask, time)
	b.AllocTime = time
	b.FillTime = 0
	b.LastAccess = time
}

// reserveSectors marks the requested sectors RESERVED.
func (b *Block) reserveSectors(mask bitset.SectorMask, time uint64) {
	for s := range b.numSectors {
		if b.sectors(mask).Test(s) {
			b.state[s] = Reserved
		}
	}
	b.LastAccess = time
}

// fill marks the requested sectors VALID and readable.
func (b *Block) fill(mask bitset.SectorMask, time uint64) {
	for s := range b.numSectors {
		if b.sectors(mask).Test(s) {
			if b.state[s] != Modified {
				b.state[s] = Valid
			}
			b.readable[s] = true
		}
	}
	b.FillTime = time
}

// invalidate the whole block.
func (b *Block) invalidate() {
	for s := range b.numSectors {
		b.state[s] = Invalid
		b.readable[s] = false
	}
	b.dirtyBytes = bitset.ByteMask{}
}

// setModified marks the requested sectors MODIFIED, returning the number
// of sectors that were not modified before. A caller tracks dirty counts
// from the first such transition of a block.
func (b *Block) setModified(mask bitset.SectorMask) int {
	changed := 0
	for s := range b.numSectors {
		if b.sectors(mask).Test(s) && b.state[s] != Modified {
			b.state[s] = Modified
			changed++
		}
	}
	return changed
}
