/*
 * GPGPU - Operand collector and banked register file arbiter.
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

package opcollect

import (
	"github.com/rcornwell/GPGPU/sim/instr"
	"github.com/rcornwell/GPGPU/sim/regset"
	"github.com/rcornwell/GPGPU/util/bitset"
)

// Collector unit set names, keyed the way the configuration spells them.
const (
	SetGen = "gen"
	SetSP  = "sp"
	SetDP  = "dp"
	SetSFU = "sfu"
	SetInt = "int"
	SetMem = "mem"
)

// collectorUnit stages one instruction until all source operands are
// latched from the register file banks.
type collectorUnit struct {
	free     bool
	w        *instr.WarpInstruction
	output   *regset.RegisterSet
	notReady bitset.Set64
}

type readRequest struct {
	cu      *collectorUnit
	operand int
}

// port connects input pipeline stages to collector unit sets and names
// the output stage dispatched instructions land in.
type port struct {
	in       []*regset.RegisterSet
	out      *regset.RegisterSet
	setNames []string
}

// RegisterFileUnit owns the collector unit sets, the ports feeding them
// and the bank arbiter.
type RegisterFileUnit struct {
	numBanks int
	units    map[string][]*collectorUnit
	setOrder []string
	ports    []port

	// Per bank read queues, one grant per bank per cycle.
	bankQueues [][]readRequest

	// Write requests occupy a bank ahead of reads.
	bankWriting []bool
}

// New register file unit.
func New(numBanks int, unitCounts map[string]int) *RegisterFileUnit {
	r := &RegisterFileUnit{
		numBanks:    numBanks,
		units:       map[string][]*collectorUnit{},
		bankQueues:  make([][]readRequest, numBanks),
		bankWriting: make([]bool, numBanks),
	}
	for _, name := range []string{SetGen, SetSP, SetDP, SetSFU, SetInt, SetMem} {
		for range unitCounts[name] {
			r.units[name] = append(r.units[name], &collectorUnit{free: true})
		}
		r.setOrder = append(r.setOrder, name)
	}
	return r
}

// AddPort wires input stages to collector sets with an output stage.
func (r *RegisterFileUnit) AddPort(in []*regset.RegisterSet, out *regset.RegisterSet, setNames []string) {
	r.ports = append(r.ports, port{in: in, out: out, setNames: setNames})
}

// bankOf spreads registers over banks, offset by warp so neighboring
// warps hit different banks for the same register.
func (r *RegisterFileUnit) bankOf(reg, warpID int) int {
	return (reg + warpID) % r.numBanks
}

// Writeback latches a result into the register file. The written banks
// beat reads in the next arbitration round. Always succeeds.
func (r *RegisterFileUnit) Writeback(w *instr.WarpInstruction) bool {
	for _, reg := range w.Outputs() {
		r.bankWriting[r.bankOf(reg, w.WarpID)] = true
	}
	return true
}

// Step runs one operand collector cycle: dispatch ready units, allocate
// free units to waiting instructions, arbitrate the banks.
func (r *RegisterFileUnit) Step() {
	r.dispatchReady()
	r.allocateReads()
	r.processBanks()
}

// dispatchReady moves fully collected instructions to their output
// stage.
func (r *RegisterFileUnit) dispatchReady() {
	for _, name := range r.setOrder {
		for _, cu := range r.units[name] {
			if cu.free || cu.notReady.Any() {
				continue
			}
			if cu.output != nil && cu.output.PutFree(cu.w) {
				cu.w = nil
				cu.free = true
			}
		}
	}
}

// allocateReads claims a free collector for each instruction waiting in
// an input port and queues its source reads at the banks.
func (r *RegisterFileUnit) allocateReads() {
	for _, p := range r.ports {
		for _, in := range p.in {
			if !in.HasReady() {
				continue
			}
			cu := r.findFree(p.setNames)
			if cu == nil {
				continue
			}
			w := in.TakeReady()
			cu.free = false
			cu.w = w
			cu.output = p.out
			cu.notReady = 0
			for i, reg := range w.Inputs() {
				if reg < 0 {
					continue
				}
				cu.notReady.Set(i)
				bank := r.bankOf(reg, w.WarpID)
				r.bankQueues[bank] = append(r.bankQueues[bank], readRequest{cu: cu, operand: i})
			}
		}
	}
}

// findFree collector unit among the port's sets, in declared order.
func (r *RegisterFileUnit) findFree(setNames []string) *collectorUnit {
	for _, name := range setNames {
		for _, cu := range r.units[name] {
			if cu.free {
				return cu
			}
		}
	}
	return nil
}

// processBanks grants one read per bank per cycle. A bank written this
// cycle serves no read.
func (r *RegisterFileUnit) processBanks() {
	for bank := range r.numBanks {
		if r.bankWriting[bank] {
			r.bankWriting[bank] = false
			continue
		}
		queue := r.bankQueues[bank]
		if len(queue) == 0 {
			continue
		}
		grant := queue[0]
		r.bankQueues[bank] = queue[1:]
		grant.cu.notReady.Clear(grant.operand)
	}
}

// Busy when any collector holds an instruction.
func (r *RegisterFileUnit) Busy() bool {
	for _, name := range r.setOrder {
		for _, cu := range r.units[name] {
			if !cu.free {
				return true
			}
		}
	}
	return false
}
