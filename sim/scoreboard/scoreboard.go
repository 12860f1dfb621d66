/*
 * GPGPU - Per warp register scoreboard.
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
	"github.com/rcornwell/GPGPU/sim/instr"
)

// Scoreboard tracks the destination registers of in flight instructions
// per warp. Issue is blocked while an instruction's registers overlap a
// reservation of the same warp.
type Scoreboard struct {
	reserved []map[int]struct{}
}

// New scoreboard for numWarps warps.
func New(numWarps int) *Scoreboard {
	s := &Scoreboard{reserved: make([]map[int]struct{}, numWarps)}
	for i := range s.reserved {
		s.reserved[i] = map[int]struct{}{}
	}
	return s
}

// ReserveAll destination registers of the instruction.
func (s *Scoreboard) ReserveAll(warpID int, w *instr.WarpInstruction) {
	for _, reg := range w.Outputs() {
		s.reserved[warpID][reg] = struct{}{}
	}
}

// ReleaseAll destination registers at writeback.
func (s *Scoreboard) ReleaseAll(warpID int, w *instr.WarpInstruction) {
	for _, reg := range w.Outputs() {
		delete(s.reserved[warpID], reg)
	}
}

// HasCollision when any source or destination register of the
// instruction is still reserved for the warp.
func (s *Scoreboard) HasCollision(warpID int, w *instr.WarpInstruction) bool {
	for _, reg := range w.Outputs() {
		if _, ok := s.reserved[warpID][reg]; ok {
			return true
		}
	}
	for _, reg := range w.Inputs() {
		if _, ok := s.reserved[warpID][reg]; ok {
			return true
		}
	}
	return false
}

// PendingWrites of a warp.
func (s *Scoreboard) PendingWrites(warpID int) int {
	return len(s.reserved[warpID])
}
