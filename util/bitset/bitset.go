/*
 * GPGPU - Fixed width bit masks.
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

package bitset

import "math/bits"

// Mask32 holds one bit per thread of a warp. Bit 0 is lane 0.
type Mask32 uint32

// Set bit for lane.
func (m *Mask32) Set(lane int) {
	*m |= 1 << lane
}

// Clear bit for lane.
func (m *Mask32) Clear(lane int) {
	*m &^= 1 << lane
}

// Test bit for lane.
func (m Mask32) Test(lane int) bool {
	return m&(1<<lane) != 0
}

// Count of set lanes.
func (m Mask32) Count() int {
	return bits.OnesCount32(uint32(m))
}

// Any lane set.
func (m Mask32) Any() bool {
	return m != 0
}

// All lanes of a warp set.
func (m Mask32) Full() bool {
	return m == 0xffffffff
}

// SectorMask holds one bit per 32 byte sector of a 128 byte line.
type SectorMask uint8

func (m *SectorMask) Set(sector int) {
	*m |= 1 << sector
}

func (m *SectorMask) Clear(sector int) {
	*m &^= 1 << sector
}

func (m SectorMask) Test(sector int) bool {
	return m&(1<<sector) != 0
}

func (m SectorMask) Count() int {
	return bits.OnesCount8(uint8(m))
}

func (m SectorMask) Any() bool {
	return m != 0
}

// First set sector, -1 if none.
func (m SectorMask) First() int {
	if m == 0 {
		return -1
	}
	return bits.TrailingZeros8(uint8(m))
}

// ByteMask holds one bit per byte of a 128 byte line. Bit 0 is byte 0.
type ByteMask [2]uint64

func (m *ByteMask) Set(byteNum int) {
	m[byteNum>>6] |= 1 << (byteNum & 63)
}

func (m *ByteMask) Clear(byteNum int) {
	m[byteNum>>6] &^= 1 << (byteNum & 63)
}

func (m ByteMask) Test(byteNum int) bool {
	return m[byteNum>>6]&(1<<(byteNum&63)) != 0
}

func (m ByteMask) Count() int {
	return bits.OnesCount64(m[0]) + bits.OnesCount64(m[1])
}

func (m ByteMask) Any() bool {
	return m[0] != 0 || m[1] != 0
}

// Or merges other into m.
func (m *ByteMask) Or(other ByteMask) {
	m[0] |= other[0]
	m[1] |= other[1]
}

// ClearSector clears all byte bits covered by a 32 byte sector.
func (m *ByteMask) ClearSector(sector int) {
	for i := sector * 32; i < (sector+1)*32; i++ {
		m.Clear(i)
	}
}

// CountSector returns the number of dirty bytes inside one sector.
func (m ByteMask) CountSector(sector int) int {
	count := 0
	for i := sector * 32; i < (sector+1)*32; i++ {
		if m.Test(i) {
			count++
		}
	}
	return count
}

// Set64 is a small set of warp or barrier numbers.
type Set64 uint64

func (s *Set64) Set(n int) {
	*s |= 1 << n
}

func (s *Set64) Clear(n int) {
	*s &^= 1 << n
}

func (s Set64) Test(n int) bool {
	return s&(1<<n) != 0
}

func (s Set64) Count() int {
	return bits.OnesCount64(uint64(s))
}

func (s Set64) Any() bool {
	return s != 0
}
