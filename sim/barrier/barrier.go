/*
 * GPGPU - Per block barrier sets.
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

package barrier

import (
	"github.com/rcornwell/GPGPU/util/bitset"
)

// blockBarriers tracks the arrival state of one block's named barriers.
type blockBarriers struct {
	participating bitset.Set64 // Warps of the block.
	arrived       []bitset.Set64
}

// Set manages the barriers of all blocks resident on one core. Warps
// are identified by their hardware warp number on the core.
type Set struct {
	maxBarriers int
	blocks      map[int]*blockBarriers
	atBarrier   bitset.Set64 // Warps currently blocked on any barrier.
}

// New barrier set.
func New(maxBarriers int) *Set {
	return &Set{
		maxBarriers: maxBarriers,
		blocks:      map[int]*blockBarriers{},
	}
}

// AllocateBlock registers the warps participating in a block.
func (s *Set) AllocateBlock(blockHWID int, warps bitset.Set64) {
	bb := &blockBarriers{
		participating: warps,
		arrived:       make([]bitset.Set64, s.maxBarriers),
	}
	s.blocks[blockHWID] = bb
}

// DeallocateBlock drops a completed block's barrier state.
func (s *Set) DeallocateBlock(blockHWID int) {
	delete(s.blocks, blockHWID)
}

// HasBlock reports whether the block still owns barrier state.
func (s *Set) HasBlock(blockHWID int) bool {
	_, ok := s.blocks[blockHWID]
	return ok
}

// WarpArrived records the warp at a named barrier. When the block wide
// set completes, every participant is released in the same cycle.
func (s *Set) WarpArrived(blockHWID, warpID, barrierID int) {
	bb, ok := s.blocks[blockHWID]
	if !ok {
		return
	}
	bb.arrived[barrierID].Set(warpID)
	s.atBarrier.Set(warpID)
	if bb.arrived[barrierID] == bb.participating {
		for w := range 64 {
			if bb.participating.Test(w) {
				s.atBarrier.Clear(w)
			}
		}
		bb.arrived[barrierID] = 0
	}
}

// WarpExited removes a finished warp from its block's participation, so
// remaining warps are not stuck on barriers it can no longer reach.
func (s *Set) WarpExited(blockHWID, warpID int) {
	bb, ok := s.blocks[blockHWID]
	if !ok {
		return
	}
	bb.participating.Clear(warpID)
	s.atBarrier.Clear(warpID)
	for barrierID := range bb.arrived {
		bb.arrived[barrierID].Clear(warpID)
		if bb.arrived[barrierID] != 0 && bb.arrived[barrierID] == bb.participating {
			for w := range 64 {
				if bb.participating.Test(w) {
					s.atBarrier.Clear(w)
				}
			}
			bb.arrived[barrierID] = 0
		}
	}
}

// IsWaitingAtBarrier until the block wide set completes.
func (s *Set) IsWaitingAtBarrier(warpID int) bool {
	return s.atBarrier.Test(warpID)
}
