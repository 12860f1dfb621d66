/*
 * GPGPU - Barrier set test cases.
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
	"testing"

	"github.com/rcornwell/GPGPU/util/bitset"
)

func TestBarrierRelease(t *testing.T) {
	s := New(16)
	var warps bitset.Set64
	warps.Set(0)
	warps.Set(1)
	warps.Set(2)
	s.AllocateBlock(0, warps)

	s.WarpArrived(0, 0, 0)
	s.WarpArrived(0, 1, 0)
	if !s.IsWaitingAtBarrier(0) || !s.IsWaitingAtBarrier(1) {
		t.Error("Arrived warps should wait until the set completes")
	}
	if s.IsWaitingAtBarrier(2) {
		t.Error("Warp 2 has not arrived, should not wait")
	}

	s.WarpArrived(0, 2, 0)
	for w := range 3 {
		if s.IsWaitingAtBarrier(w) {
			t.Errorf("Warp %d should be released after block wide arrival", w)
		}
	}
}

func TestBarrierIndependentNames(t *testing.T) {
	s := New(16)
	var warps bitset.Set64
	warps.Set(0)
	warps.Set(1)
	s.AllocateBlock(0, warps)

	s.WarpArrived(0, 0, 0)
	s.WarpArrived(0, 1, 1)
	// Different barrier names never satisfy each other.
	if !s.IsWaitingAtBarrier(0) || !s.IsWaitingAtBarrier(1) {
		t.Error("Arrivals at distinct barriers should not release")
	}
}

func TestWarpExitReleasesBarrier(t *testing.T) {
	s := New(16)
	var warps bitset.Set64
	warps.Set(0)
	warps.Set(1)
	s.AllocateBlock(3, warps)

	s.WarpArrived(3, 0, 0)
	// Warp 1 exits without reaching the barrier.
	s.WarpExited(3, 1)
	if s.IsWaitingAtBarrier(0) {
		t.Error("Remaining warp should be released when peers exit")
	}
}

func TestDeallocateBlock(t *testing.T) {
	s := New(16)
	var warps bitset.Set64
	warps.Set(0)
	s.AllocateBlock(5, warps)
	if !s.HasBlock(5) {
		t.Error("Block 5 should be allocated")
	}
	s.DeallocateBlock(5)
	if s.HasBlock(5) {
		t.Error("Block 5 should be deallocated")
	}
}
