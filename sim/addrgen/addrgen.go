/*
 * GPGPU - Linear address to DRAM partition decoding.
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

package addrgen

// Memory partitions interleave on 256 byte chunks.
const chunkShift = 8

// PhysicalAddress locates one DRAM access.
type PhysicalAddress struct {
	Chip         uint64 // Memory controller.
	Bank         uint64
	Row          uint64
	Col          uint64
	SubPartition uint64
}

// Decoder maps linear device addresses onto memory partitions.
type Decoder struct {
	numChips   uint64
	subPerChip uint64
	numBanks   uint64
	rowSize    uint64
}

// NewDecoder for the given channel geometry.
func NewDecoder(numChannels, subPerChannel int) *Decoder {
	return &Decoder{
		numChips:   uint64(numChannels),
		subPerChip: uint64(subPerChannel),
		numBanks:   16,
		rowSize:    2048,
	}
}

// NumSubPartitions over the device.
func (d *Decoder) NumSubPartitions() int {
	return int(d.numChips * d.subPerChip)
}

// Decode a linear address. Consecutive 256 byte chunks walk the
// sub partitions round robin, keeping chip consistent with sub partition.
func (d *Decoder) Decode(addr uint64) PhysicalAddress {
	chunk := addr >> chunkShift
	numSub := d.numChips * d.subPerChip
	sub := chunk % numSub
	rest := chunk / numSub
	bank := rest % d.numBanks
	row := rest / d.numBanks % d.rowSize
	return PhysicalAddress{
		Chip:         sub / d.subPerChip,
		Bank:         bank,
		Row:          row,
		Col:          addr & (1<<chunkShift - 1),
		SubPartition: sub,
	}
}

// PartitionAddr removes the sub partition interleave bits so L2 slices
// index on a dense address space.
func (d *Decoder) PartitionAddr(addr uint64) uint64 {
	chunk := addr >> chunkShift
	numSub := d.numChips * d.subPerChip
	return (chunk/numSub)<<chunkShift | addr&(1<<chunkShift-1)
}
