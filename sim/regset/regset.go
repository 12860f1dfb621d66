/*
 * GPGPU - Pipeline register sets.
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

package regset

import (
	"github.com/rcornwell/GPGPU/sim/instr"
)

// RegisterSet is one pipeline stage of width N. A slot exclusively owns
// the instruction it holds until it is moved out.
type RegisterSet struct {
	name string
	regs []*instr.WarpInstruction
}

// New register set of the given width.
func New(name string, width int) *RegisterSet {
	return &RegisterSet{
		name: name,
		regs: make([]*instr.WarpInstruction, width),
	}
}

// Name of the stage.
func (r *RegisterSet) Name() string {
	return r.name
}

// Width of the stage.
func (r *RegisterSet) Width() int {
	return len(r.regs)
}

// HasFree slot.
func (r *RegisterSet) HasFree() bool {
	for _, reg := range r.regs {
		if reg == nil {
			return true
		}
	}
	return false
}

// HasFreeSub reports whether the scheduler's slot is free. Sub core
// issue pins each scheduler to the slot of its own index.
func (r *RegisterSet) HasFreeSub(schedulerID int) bool {
	return r.regs[schedulerID%len(r.regs)] == nil
}

// FreeSlot returns the index of a free slot, -1 when full.
func (r *RegisterSet) FreeSlot() int {
	for i, reg := range r.regs {
		if reg == nil {
			return i
		}
	}
	return -1
}

// Put moves an instruction into the given slot.
func (r *RegisterSet) Put(slot int, w *instr.WarpInstruction) {
	r.regs[slot] = w
}

// PutFree moves an instruction into a free slot. Returns false when the
// stage is full.
func (r *RegisterSet) PutFree(w *instr.WarpInstruction) bool {
	slot := r.FreeSlot()
	if slot == -1 {
		return false
	}
	r.regs[slot] = w
	return true
}

// PutSub moves an instruction into the scheduler's slot.
func (r *RegisterSet) PutSub(schedulerID int, w *instr.WarpInstruction) bool {
	slot := schedulerID % len(r.regs)
	if r.regs[slot] != nil {
		return false
	}
	r.regs[slot] = w
	return true
}

// HasReady instruction.
func (r *RegisterSet) HasReady() bool {
	for _, reg := range r.regs {
		if reg != nil {
			return true
		}
	}
	return false
}

// Ready returns the oldest occupied slot, -1 when empty. Oldest by
// issue cycle keeps writeback order stable.
func (r *RegisterSet) Ready() int {
	ready := -1
	for i, reg := range r.regs {
		if reg == nil {
			continue
		}
		if ready == -1 || reg.IssueCycle < r.regs[ready].IssueCycle {
			ready = i
		}
	}
	return ready
}

// Take removes and returns the instruction in the slot.
func (r *RegisterSet) Take(slot int) *instr.WarpInstruction {
	w := r.regs[slot]
	r.regs[slot] = nil
	return w
}

// TakeReady removes and returns the oldest instruction, nil when empty.
func (r *RegisterSet) TakeReady() *instr.WarpInstruction {
	slot := r.Ready()
	if slot == -1 {
		return nil
	}
	return r.Take(slot)
}

// Peek the instruction in a slot without removing it.
func (r *RegisterSet) Peek(slot int) *instr.WarpInstruction {
	return r.regs[slot]
}

// CountFor the number of slots holding instructions of one warp.
func (r *RegisterSet) CountFor(warpID int) int {
	count := 0
	for _, reg := range r.regs {
		if reg != nil && reg.WarpID == warpID {
			count++
		}
	}
	return count
}
