/*
 * GPGPU - Warp instructions decoded from the trace.
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

package instr

import (
	"fmt"

	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/sim/opcodes"
	"github.com/rcornwell/GPGPU/sim/trace"
	"github.com/rcornwell/GPGPU/util/bitset"
)

// WarpInstruction is one decoded trace instruction of a warp moving
// through the pipeline.
type WarpInstruction struct {
	UID      uint64 // Assigned at issue.
	PC       uint64
	Opcode   string
	Op       opcodes.Op
	Category opcodes.Category

	ActiveMask bitset.Mask32
	Space      mem.Space
	IsLoad     bool
	IsStore    bool
	IsExtended bool
	IsAtomic   bool
	DataSize   uint32

	DestRegs []int
	SrcRegs  []int

	ThreadAddrs [config.WarpSize]uint64

	Latency      int
	InitInterval int

	WarpID        int
	SchedulerID   int
	IssueCycle    uint64
	DispatchDelay int

	Accesses []mem.Access
}

func decodeSpace(space string) (mem.Space, error) {
	switch space {
	case "", "None":
		return mem.SpaceNone, nil
	case "Local":
		return mem.SpaceLocal, nil
	case "Global":
		return mem.SpaceGlobal, nil
	case "Shared":
		return mem.SpaceShared, nil
	case "Constant":
		return mem.SpaceConstant, nil
	case "Texture":
		return mem.SpaceTexture, nil
	default:
		return mem.SpaceNone, fmt.Errorf("unknown memory space %q", space)
	}
}

// FromTrace decodes one trace entry into a warp instruction.
func FromTrace(entry *trace.Entry, cfg *config.GPUConfig) (*WarpInstruction, error) {
	op, category, err := opcodes.Lookup(entry.InstrOpcode)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", entry.LineNum, err)
	}
	space, err := decodeSpace(entry.InstrMemSpace)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", entry.LineNum, err)
	}

	w := &WarpInstruction{
		PC:         entry.InstrOffset,
		Opcode:     entry.InstrOpcode,
		Op:         op,
		Category:   category,
		ActiveMask: bitset.Mask32(entry.ActiveMask),
		Space:      space,
		IsLoad:     entry.InstrIsLoad,
		IsStore:    entry.InstrIsStore,
		IsExtended: entry.InstrIsExtended,
		IsAtomic:   op == opcodes.OpAtomic,
		DataSize:   entry.InstrDataWidth,
	}
	if w.DataSize == 0 {
		w.DataSize = 4
	}

	numDest := min(entry.NumDestRegs, len(entry.DestRegs))
	w.DestRegs = append(w.DestRegs, entry.DestRegs[:numDest]...)
	numSrc := min(entry.NumSrcRegs, len(entry.SrcRegs))
	w.SrcRegs = append(w.SrcRegs, entry.SrcRegs[:numSrc]...)

	switch category {
	case opcodes.DPOp:
		w.Latency, w.InitInterval = cfg.DPLatency.Latency, cfg.DPLatency.InitInt
	case opcodes.SFUOp:
		w.Latency, w.InitInterval = cfg.SFULatency.Latency, cfg.SFULatency.InitInt
	case opcodes.IntOp:
		w.Latency, w.InitInterval = cfg.IntLatency.Latency, cfg.IntLatency.InitInt
	default:
		w.Latency, w.InitInterval = cfg.SPLatency.Latency, cfg.SPLatency.InitInt
	}

	if entry.InstrIsMem {
		lane := 0
		for i := range config.WarpSize {
			if !w.ActiveMask.Test(i) {
				continue
			}
			if lane < len(entry.Addrs) {
				w.ThreadAddrs[i] = entry.Addrs[lane]
			}
			lane++
		}
	}
	return w, nil
}

// IsMem instruction touching a memory space.
func (w *WarpInstruction) IsMem() bool {
	return w.IsLoad || w.IsStore
}

// IsExit instruction.
func (w *WarpInstruction) IsExit() bool {
	return w.Op == opcodes.OpExit
}

// Outputs are the destination registers the scoreboard reserves.
func (w *WarpInstruction) Outputs() []int {
	return w.DestRegs
}

// Inputs are the source registers.
func (w *WarpInstruction) Inputs() []int {
	return w.SrcRegs
}

// AccessKindFor the instruction's space and direction.
func (w *WarpInstruction) AccessKindFor() (mem.AccessKind, bool) {
	switch w.Space {
	case mem.SpaceGlobal:
		if w.IsStore {
			return mem.GlobalAccW, true
		}
		return mem.GlobalAccR, true
	case mem.SpaceLocal:
		if w.IsStore {
			return mem.LocalAccW, true
		}
		return mem.LocalAccR, true
	case mem.SpaceConstant:
		return mem.ConstAccR, true
	case mem.SpaceTexture:
		return mem.TextureAccR, true
	default:
		// Shared memory never leaves the core.
		return 0, false
	}
}

// Scatter is one lane's contribution to coalescing: a byte range of the
// address space it reads or writes.
type Scatter struct {
	Lane int
	Addr uint64
	Size uint32
}

// GenerateMemAccesses coalesces the active lane addresses into cache
// line transactions. Lanes landing in the same line merge into one
// access carrying the union of their sector and byte masks. A lane
// request crossing a line boundary contributes to both lines.
func (w *WarpInstruction) GenerateMemAccesses(lineSize uint32, allocs *mem.Allocations) {
	kind, ok := w.AccessKindFor()
	if !ok || !w.IsMem() {
		return
	}
	var items []Scatter
	for lane := range config.WarpSize {
		if !w.ActiveMask.Test(lane) {
			continue
		}
		items = append(items, Scatter{Lane: lane, Addr: w.ThreadAddrs[lane], Size: w.DataSize})
	}
	w.CoalesceScatter(kind, items, lineSize, allocs)
}

// CoalesceScatter merges arbitrary per lane byte ranges into line sized
// accesses. Local memory translation feeds this directly with its
// strided word accesses.
func (w *WarpInstruction) CoalesceScatter(kind mem.AccessKind, items []Scatter,
	lineSize uint32, allocs *mem.Allocations) {
	type accumulator struct {
		warpMask   bitset.Mask32
		byteMask   bitset.ByteMask
		sectorMask bitset.SectorMask
	}
	lines := map[uint64]*accumulator{}
	var order []uint64

	for _, item := range items {
		for offset := uint64(0); offset < uint64(item.Size); offset++ {
			byteAddr := item.Addr + offset
			blockAddr := byteAddr &^ uint64(lineSize-1)
			acc, found := lines[blockAddr]
			if !found {
				acc = &accumulator{}
				lines[blockAddr] = acc
				order = append(order, blockAddr)
			}
			acc.warpMask.Set(item.Lane)
			inLine := int(byteAddr % uint64(lineSize))
			acc.byteMask.Set(inLine)
			acc.sectorMask.Set(inLine / config.SectorSize)
		}
	}

	w.Accesses = w.Accesses[:0]
	for _, blockAddr := range order {
		acc := lines[blockAddr]
		access := mem.Access{
			Kind:       kind,
			Addr:       blockAddr,
			Size:       uint32(acc.sectorMask.Count()) * config.SectorSize,
			IsWrite:    w.IsStore,
			WarpMask:   acc.warpMask,
			ByteMask:   acc.byteMask,
			SectorMask: acc.sectorMask,
		}
		if alloc := allocs.Find(blockAddr); alloc != nil {
			access.AllocID = alloc.ID
		}
		w.Accesses = append(w.Accesses, access)
	}
}

func (w *WarpInstruction) String() string {
	return fmt.Sprintf("instr{uid:%d warp:%d pc:%#x %s}", w.UID, w.WarpID, w.PC, w.Opcode)
}
