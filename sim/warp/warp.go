/*
 * GPGPU - Warp state.
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

package warp

import (
	"github.com/rcornwell/GPGPU/sim/instr"
	"github.com/rcornwell/GPGPU/util/bitset"
)

// IBufferSize instruction slots fed by decode.
const IBufferSize = 2

// Warp holds the hardware state of one resident warp.
type Warp struct {
	WarpID        int
	DynamicWarpID int
	BlockHWID     int
	KernelID      int

	ActiveMask bitset.Mask32

	// Decoded trace stream of this warp and the fetch cursor into it.
	Instructions []*instr.WarpInstruction
	TracePC      int

	ibuffer []*instr.WarpInstruction

	NumInstrInPipeline   int
	NumOutstandingStores int
	HasIMissPending      bool
	WaitingForMemBarrier bool
	DoneExit             bool
}

// New idle warp slot.
func New(warpID int) *Warp {
	return &Warp{WarpID: warpID, DynamicWarpID: -1, BlockHWID: -1}
}

// Init binds the warp slot to a block's trace slice.
func (w *Warp) Init(dynamicWarpID, blockHWID, kernelID int, active bitset.Mask32,
	instructions []*instr.WarpInstruction) {
	w.DynamicWarpID = dynamicWarpID
	w.BlockHWID = blockHWID
	w.KernelID = kernelID
	w.ActiveMask = active
	w.Instructions = instructions
	w.TracePC = 0
	w.ibuffer = nil
	w.NumInstrInPipeline = 0
	w.NumOutstandingStores = 0
	w.HasIMissPending = false
	w.WaitingForMemBarrier = false
	w.DoneExit = false
}

// Reset returns the slot to idle.
func (w *Warp) Reset() {
	w.DynamicWarpID = -1
	w.BlockHWID = -1
	w.ActiveMask = 0
	w.Instructions = nil
	w.TracePC = 0
	w.ibuffer = nil
	w.NumInstrInPipeline = 0
	w.NumOutstandingStores = 0
	w.HasIMissPending = false
	w.WaitingForMemBarrier = false
	w.DoneExit = false
}

// Active when bound to a block and not fully retired.
func (w *Warp) Active() bool {
	return w.DynamicWarpID != -1 && !w.DoneExit
}

// PC of the next trace instruction, false at end of stream.
func (w *Warp) PC() (uint64, bool) {
	if w.TracePC >= len(w.Instructions) {
		return 0, false
	}
	return w.Instructions[w.TracePC].PC, true
}

// FunctionalDone when the trace stream is exhausted.
func (w *Warp) FunctionalDone() bool {
	return w.DynamicWarpID != -1 && w.TracePC >= len(w.Instructions)
}

// HardwareDone when the trace is drained and nothing remains in flight.
func (w *Warp) HardwareDone() bool {
	return w.FunctionalDone() && w.NumInstrInPipeline == 0 && w.IBufferEmpty()
}

// StoresDone when every issued store was acknowledged.
func (w *Warp) StoresDone() bool {
	return w.NumOutstandingStores == 0
}

// NextTraceInstructions pops up to n instructions at the cursor.
func (w *Warp) NextTraceInstructions(n int) []*instr.WarpInstruction {
	end := min(w.TracePC+n, len(w.Instructions))
	out := w.Instructions[w.TracePC:end]
	w.TracePC = end
	return out
}

// IBufferEmpty slot check.
func (w *Warp) IBufferEmpty() bool {
	return len(w.ibuffer) == 0
}

// IBufferFull when decode cannot push more.
func (w *Warp) IBufferFull() bool {
	return len(w.ibuffer) >= IBufferSize
}

// IBufferFill appends a decoded instruction.
func (w *Warp) IBufferFill(instruction *instr.WarpInstruction) {
	w.ibuffer = append(w.ibuffer, instruction)
}

// IBufferPeek the oldest buffered instruction.
func (w *Warp) IBufferPeek() *instr.WarpInstruction {
	if len(w.ibuffer) == 0 {
		return nil
	}
	return w.ibuffer[0]
}

// IBufferPop removes the oldest buffered instruction.
func (w *Warp) IBufferPop() *instr.WarpInstruction {
	if len(w.ibuffer) == 0 {
		return nil
	}
	instruction := w.ibuffer[0]
	w.ibuffer = w.ibuffer[1:]
	return instruction
}

// IBufferFlush drops buffered instructions, returning how many were
// dropped so pipeline counts stay balanced.
func (w *Warp) IBufferFlush() int {
	n := len(w.ibuffer)
	w.ibuffer = nil
	return n
}
