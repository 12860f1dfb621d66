/*
 * GPGPU - Address decoder test cases.
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

import (
	"testing"
)

func TestDecodeRoundRobin(t *testing.T) {
	d := NewDecoder(8, 2)
	// Consecutive 256 byte chunks walk all 16 sub partitions.
	for i := range 16 {
		pa := d.Decode(uint64(i) * 256)
		if pa.SubPartition != uint64(i) {
			t.Errorf("Decode sub partition not correct got: %d expected: %d", pa.SubPartition, i)
		}
		if pa.Chip != uint64(i/2) {
			t.Errorf("Decode chip not correct got: %d expected: %d", pa.Chip, i/2)
		}
	}
	// Wrap around.
	pa := d.Decode(16 * 256)
	if pa.SubPartition != 0 {
		t.Errorf("Decode sub partition not correct got: %d expected: %d", pa.SubPartition, 0)
	}
}

func TestDecodeSameChunk(t *testing.T) {
	d := NewDecoder(8, 2)
	// All addresses inside one chunk map to the same sub partition.
	base := d.Decode(0x1000)
	for off := uint64(0); off < 256; off += 32 {
		pa := d.Decode(0x1000 + off)
		if pa.SubPartition != base.SubPartition {
			t.Errorf("Decode sub partition not stable got: %d expected: %d", pa.SubPartition, base.SubPartition)
		}
		if pa.Col != 0x1000%256+off {
			t.Errorf("Decode column not correct got: %d expected: %d", pa.Col, off)
		}
	}
}

func TestPartitionAddrDense(t *testing.T) {
	d := NewDecoder(2, 2)
	// Chunks landing in the same sub partition should be dense in the
	// partition address space.
	a0 := d.PartitionAddr(0 * 256)
	a1 := d.PartitionAddr(4 * 256)
	a2 := d.PartitionAddr(8 * 256)
	if a1-a0 != 256 || a2-a1 != 256 {
		t.Errorf("PartitionAddr not dense got: %d %d %d", a0, a1, a2)
	}
	// Offsets are preserved.
	if d.PartitionAddr(0x1234)&0xff != 0x34 {
		t.Errorf("PartitionAddr offset not correct got: %x expected: %x", d.PartitionAddr(0x1234)&0xff, 0x34)
	}
}
