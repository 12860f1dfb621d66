/*
 * GPGPU - Pipelined functional units.
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
	"github.com/rcornwell/GPGPU/sim/instr"
	"github.com/rcornwell/GPGPU/sim/opcodes"
	"github.com/rcornwell/GPGPU/sim/regset"
)

// Kind of execution unit. The LDST unit lives in the core, it issues
// into the memory system instead of a latency pipeline.
type Kind int

const (
	SP Kind = iota
	DP
	INT
	SFU
)

func (k Kind) String() string {
	switch k {
	case DP:
		return "dp"
	case INT:
		return "int"
	case SFU:
		return "sfu"
	default:
		return "sp"
	}
}

// Unit is one pipelined ALU. Instructions enter at depth latency and
// drain one stage per cycle into the result port.
type Unit struct {
	Name string
	Kind Kind

	pipeline   []*instr.WarpInstruction
	issuePort  *regset.RegisterSet // OC to EX stage feeding this unit.
	resultPort *regset.RegisterSet // EX to WB stage.

	cooldown int // Cycles until the next issue, the initiation interval.
}

// New unit with the given maximum latency.
func New(name string, kind Kind, maxLatency int, issuePort, resultPort *regset.RegisterSet) *Unit {
	if maxLatency < 1 {
		maxLatency = 1
	}
	return &Unit{
		Name:       name,
		Kind:       kind,
		pipeline:   make([]*instr.WarpInstruction, maxLatency),
		issuePort:  issuePort,
		resultPort: resultPort,
	}
}

// IssuePort feeding this unit.
func (u *Unit) IssuePort() *regset.RegisterSet {
	return u.issuePort
}

// accepts the instruction category.
func (u *Unit) accepts(category opcodes.Category) bool {
	switch u.Kind {
	case DP:
		return category == opcodes.DPOp
	case SFU:
		return category == opcodes.SFUOp
	case INT:
		return category == opcodes.IntOp
	default:
		// The SP pipe also runs branches, exits and everything a
		// dedicated unit is not configured for.
		switch category {
		case opcodes.DPOp, opcodes.SFUOp, opcodes.LoadOp, opcodes.StoreOp:
			return false
		default:
			return true
		}
	}
}

// CanIssue the instruction this cycle.
func (u *Unit) CanIssue(w *instr.WarpInstruction) bool {
	if !u.accepts(w.Category) {
		return false
	}
	if u.cooldown > 0 {
		return false
	}
	depth := min(w.Latency, len(u.pipeline)) - 1
	return u.pipeline[depth] == nil
}

// Stallable units wait for a result bus reservation before issuing.
func (u *Unit) Stallable() bool {
	return true
}

// IsIssuePartitioned units bind schedulers to issue slots.
func (u *Unit) IsIssuePartitioned() bool {
	return true
}

// Issue the instruction into the pipeline.
func (u *Unit) Issue(w *instr.WarpInstruction) {
	depth := min(w.Latency, len(u.pipeline)) - 1
	u.pipeline[depth] = w
	u.cooldown = w.InitInterval
}

// Cycle drains one stage. The head stalls when the writeback stage is
// full, holding everything behind it.
func (u *Unit) Cycle() {
	if u.cooldown > 0 {
		u.cooldown--
	}
	if u.pipeline[0] != nil {
		if !u.resultPort.PutFree(u.pipeline[0]) {
			return
		}
		u.pipeline[0] = nil
	}
	for i := 1; i < len(u.pipeline); i++ {
		if u.pipeline[i] != nil && u.pipeline[i-1] == nil {
			u.pipeline[i-1] = u.pipeline[i]
			u.pipeline[i] = nil
		}
	}
}

// Busy when instructions remain in flight.
func (u *Unit) Busy() bool {
	for _, w := range u.pipeline {
		if w != nil {
			return true
		}
	}
	return false
}
