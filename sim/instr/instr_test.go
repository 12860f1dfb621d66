/*
 * GPGPU - Warp instruction test cases.
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
	"testing"

	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/sim/trace"
)

func loadEntry(opcode string, addrs []uint64, width uint32) *trace.Entry {
	return &trace.Entry{
		InstrOpcode:    opcode,
		InstrDataWidth: width,
		InstrMemSpace:  "Global",
		InstrIsMem:     true,
		InstrIsLoad:    true,
		NumDestRegs:    1,
		DestRegs:       []int{1},
		ActiveMask:     0xffffffff,
		Addrs:          addrs,
	}
}

func TestFromTraceDecode(t *testing.T) {
	cfg := config.Default()
	entry := loadEntry("LDG.E.SYS", []uint64{0x100}, 4)
	w, err := FromTrace(entry, cfg)
	if err != nil {
		t.Fatalf("FromTrace failed: %v", err)
	}
	if !w.IsLoad || w.IsStore {
		t.Error("LDG should decode as load")
	}
	if w.Space != mem.SpaceGlobal {
		t.Errorf("Space not correct got: %v expected: %v", w.Space, mem.SpaceGlobal)
	}
	if kind, ok := w.AccessKindFor(); !ok || kind != mem.GlobalAccR {
		t.Errorf("Access kind not correct got: %v expected: %v", kind, mem.GlobalAccR)
	}
}

func TestFromTraceUnknownOpcode(t *testing.T) {
	cfg := config.Default()
	entry := loadEntry("FROB", []uint64{0x100}, 4)
	if _, err := FromTrace(entry, cfg); err == nil {
		t.Error("Unknown opcode should be a trace error")
	}
}

func TestCoalesceSingleLine(t *testing.T) {
	cfg := config.Default()
	addrs := make([]uint64, 32)
	for i := range 32 {
		addrs[i] = uint64(i) * 4
	}
	w, err := FromTrace(loadEntry("LDG", addrs, 4), cfg)
	if err != nil {
		t.Fatalf("FromTrace failed: %v", err)
	}
	var allocs mem.Allocations
	w.GenerateMemAccesses(128, &allocs)
	if len(w.Accesses) != 1 {
		t.Fatalf("Access count not correct got: %d expected: %d", len(w.Accesses), 1)
	}
	access := w.Accesses[0]
	if access.Addr != 0 {
		t.Errorf("Access addr not correct got: %#x expected: %#x", access.Addr, 0)
	}
	if !access.WarpMask.Full() {
		t.Error("All lanes should participate")
	}
	if access.SectorMask.Count() != 4 {
		t.Errorf("Sector count not correct got: %d expected: %d", access.SectorMask.Count(), 4)
	}
	if access.ByteMask.Count() != 128 {
		t.Errorf("Byte count not correct got: %d expected: %d", access.ByteMask.Count(), 128)
	}
}

func TestCoalesceStrided(t *testing.T) {
	cfg := config.Default()
	// Stride of one line per lane touches 32 distinct lines.
	addrs := make([]uint64, 32)
	for i := range 32 {
		addrs[i] = uint64(i) * 128
	}
	w, err := FromTrace(loadEntry("LDG", addrs, 4), cfg)
	if err != nil {
		t.Fatalf("FromTrace failed: %v", err)
	}
	var allocs mem.Allocations
	w.GenerateMemAccesses(128, &allocs)
	if len(w.Accesses) != 32 {
		t.Errorf("Access count not correct got: %d expected: %d", len(w.Accesses), 32)
	}
	for i, access := range w.Accesses {
		if access.WarpMask.Count() != 1 {
			t.Errorf("Access %d lane count not correct got: %d expected: %d", i, access.WarpMask.Count(), 1)
		}
		if access.SectorMask.Count() != 1 {
			t.Errorf("Access %d sector count not correct got: %d expected: %d", i, access.SectorMask.Count(), 1)
		}
	}
}

func TestCoalesceLineCrossing(t *testing.T) {
	cfg := config.Default()
	// One lane, 8 bytes starting 4 bytes before a line boundary.
	entry := loadEntry("LDG.E.64", []uint64{124}, 8)
	entry.ActiveMask = 1
	w, err := FromTrace(entry, cfg)
	if err != nil {
		t.Fatalf("FromTrace failed: %v", err)
	}
	var allocs mem.Allocations
	w.GenerateMemAccesses(128, &allocs)
	if len(w.Accesses) != 2 {
		t.Fatalf("Access count not correct got: %d expected: %d", len(w.Accesses), 2)
	}
	if w.Accesses[0].Addr != 0 || w.Accesses[1].Addr != 128 {
		t.Errorf("Access addrs not correct got: %#x %#x expected: 0x0 0x80",
			w.Accesses[0].Addr, w.Accesses[1].Addr)
	}
	if w.Accesses[0].ByteMask.Count() != 4 || w.Accesses[1].ByteMask.Count() != 4 {
		t.Errorf("Byte counts not correct got: %d %d expected: 4 4",
			w.Accesses[0].ByteMask.Count(), w.Accesses[1].ByteMask.Count())
	}
}

func TestAllocationTagging(t *testing.T) {
	cfg := config.Default()
	var allocs mem.Allocations
	id := allocs.Insert(0, "input", 0x1000, 0x1000)
	addrs := make([]uint64, 32)
	for i := range 32 {
		addrs[i] = 0x1800 + uint64(i)*4
	}
	w, err := FromTrace(loadEntry("LDG", addrs, 4), cfg)
	if err != nil {
		t.Fatalf("FromTrace failed: %v", err)
	}
	w.GenerateMemAccesses(128, &allocs)
	if len(w.Accesses) != 1 {
		t.Fatalf("Access count not correct got: %d expected: %d", len(w.Accesses), 1)
	}
	if w.Accesses[0].AllocID != id {
		t.Errorf("Alloc id not correct got: %d expected: %d", w.Accesses[0].AllocID, id)
	}
}
