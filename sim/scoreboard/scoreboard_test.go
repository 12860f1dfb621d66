/*
 * GPGPU - Scoreboard test cases.
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

package scoreboard

import (
	"testing"

	"github.com/rcornwell/GPGPU/sim/instr"
)

func makeInstr(dest, src []int) *instr.WarpInstruction {
	return &instr.WarpInstruction{DestRegs: dest, SrcRegs: src}
}

func TestReserveReleaseCollision(t *testing.T) {
	s := New(4)
	load := makeInstr([]int{4}, []int{2})
	s.ReserveAll(0, load)
	if s.PendingWrites(0) != 1 {
		t.Errorf("Pending writes not correct got: %d expected: %d", s.PendingWrites(0), 1)
	}

	// RAW on r4.
	use := makeInstr([]int{5}, []int{4})
	if !s.HasCollision(0, use) {
		t.Error("RAW hazard not detected")
	}
	// WAW on r4.
	waw := makeInstr([]int{4}, []int{6})
	if !s.HasCollision(0, waw) {
		t.Error("WAW hazard not detected")
	}
	// Independent registers pass.
	free := makeInstr([]int{6}, []int{7})
	if s.HasCollision(0, free) {
		t.Error("Independent instruction should not collide")
	}
	// Other warps are unaffected.
	if s.HasCollision(1, use) {
		t.Error("Hazard leaked across warps")
	}

	s.ReleaseAll(0, load)
	if s.PendingWrites(0) != 0 {
		t.Errorf("Pending writes not correct got: %d expected: %d", s.PendingWrites(0), 0)
	}
	if s.HasCollision(0, use) {
		t.Error("Released register still collides")
	}
}
