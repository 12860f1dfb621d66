/*
 * GPGPU - Functional unit test cases.
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

package funcunit

import (
	"testing"

	"github.com/rcornwell/GPGPU/sim/instr"
	"github.com/rcornwell/GPGPU/sim/opcodes"
	"github.com/rcornwell/GPGPU/sim/regset"
)

func testUnit(kind Kind) (*Unit, *regset.RegisterSet, *regset.RegisterSet) {
	issue := regset.New("oc_ex", 2)
	result := regset.New("ex_wb", 2)
	return New("u0", kind, 64, issue, result), issue, result
}

func spInstr(latency, initInterval int) *instr.WarpInstruction {
	return &instr.WarpInstruction{
		Category:     opcodes.SPOp,
		Latency:      latency,
		InitInterval: initInterval,
	}
}

func TestLatencyDrain(t *testing.T) {
	u, _, result := testUnit(SP)
	w := spInstr(4, 1)
	if !u.CanIssue(w) {
		t.Fatal("Fresh unit should accept")
	}
	u.Issue(w)

	// The result appears after latency cycles.
	for i := range 4 {
		if result.HasReady() {
			t.Fatalf("Result appeared early at cycle %d", i)
		}
		u.Cycle()
	}
	if !result.HasReady() {
		t.Fatal("Result did not appear after latency")
	}
	if got := result.TakeReady(); got != w {
		t.Errorf("Result not correct got: %v expected: %v", got, w)
	}
	if u.Busy() {
		t.Error("Drained unit should not be busy")
	}
}

func TestInitiationInterval(t *testing.T) {
	u, _, _ := testUnit(SFU)
	w := &instr.WarpInstruction{Category: opcodes.SFUOp, Latency: 20, InitInterval: 8}
	u.Issue(w)
	next := &instr.WarpInstruction{Category: opcodes.SFUOp, Latency: 20, InitInterval: 8}
	if u.CanIssue(next) {
		t.Error("Issue inside the initiation interval should be refused")
	}
	for range 8 {
		u.Cycle()
	}
	if !u.CanIssue(next) {
		t.Error("Issue after the initiation interval should be accepted")
	}
}

func TestCategoryRouting(t *testing.T) {
	sp, _, _ := testUnit(SP)
	dp, _, _ := testUnit(DP)
	dpInstr := &instr.WarpInstruction{Category: opcodes.DPOp, Latency: 8, InitInterval: 8}
	if sp.CanIssue(dpInstr) {
		t.Error("SP unit should refuse DP work")
	}
	if !dp.CanIssue(dpInstr) {
		t.Error("DP unit should accept DP work")
	}
	// The SP pipe runs control flow.
	branch := &instr.WarpInstruction{Category: opcodes.BranchOp, Latency: 4, InitInterval: 1}
	if !sp.CanIssue(branch) {
		t.Error("SP unit should accept branches")
	}
}

func TestHeadStallHoldsPipeline(t *testing.T) {
	u, _, result := testUnit(SP)
	// Fill the writeback stage so the head cannot drain.
	result.PutFree(&instr.WarpInstruction{})
	result.PutFree(&instr.WarpInstruction{})

	w := spInstr(1, 1)
	u.Issue(w)
	for range 3 {
		u.Cycle()
	}
	if !u.Busy() {
		t.Error("Head should stall while writeback is full")
	}
	result.TakeReady()
	u.Cycle()
	if u.Busy() {
		t.Error("Head should drain once writeback has room")
	}
}
