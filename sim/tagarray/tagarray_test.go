/*
 * GPGPU - Tag array test cases.
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

package tagarray

import (
	"testing"

	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/util/bitset"
)

func lineConfig() *config.CacheConfig {
	return &config.CacheConfig{
		NumSets:            16,
		Associativity:      4,
		LineSize:           128,
		AtomSize:           128,
		Replacement:        config.LRU,
		Write:              config.WriteBack,
		Allocate:           config.OnMiss,
		WriteAlloc:         config.WriteAllocate,
		MSHREntries:        8,
		MSHRMaxMerge:       4,
		MissQueueSize:      4,
		DataPortWidth:      32,
		DirtyLineThreshold: 100,
	}
}

func sectorConfig() *config.CacheConfig {
	cfg := lineConfig()
	cfg.AtomSize = 32
	return cfg
}

func readAccess(addr uint64) *mem.Access {
	return &mem.Access{Kind: mem.GlobalAccR, Addr: addr, Size: 32}
}

func TestProbeMissOnEmpty(t *testing.T) {
	ta := New(lineConfig())
	index, status := ta.Probe(0, readAccess(0), false)
	if status != mem.Miss {
		t.Errorf("Probe status not correct got: %v expected: %v", status, mem.Miss)
	}
	if index == -1 {
		t.Error("Probe should name a victim way")
	}
}

func TestAccessMissThenFillThenHit(t *testing.T) {
	ta := New(lineConfig())
	access := readAccess(0x80)

	result := ta.Access(0x80, access, 1)
	if result.Status != mem.Miss {
		t.Errorf("Access status not correct got: %v expected: %v", result.Status, mem.Miss)
	}
	if result.Writeback {
		t.Error("Clean miss should not produce writeback")
	}

	// Reserved until the fill arrives.
	_, status := ta.Probe(0x80, access, false)
	if status != mem.HitReserved {
		t.Errorf("Probe status not correct got: %v expected: %v", status, mem.HitReserved)
	}

	ta.FillOnMiss(result.Index, access, 5)
	_, status = ta.Probe(0x80, access, false)
	if status != mem.Hit {
		t.Errorf("Probe status not correct got: %v expected: %v", status, mem.Hit)
	}
}

func TestLRUReplacement(t *testing.T) {
	cfg := lineConfig()
	ta := New(cfg)
	// Fill all four ways of set 0 with distinct tags.
	setSpan := uint64(cfg.NumSets) * uint64(cfg.LineSize)
	for way := range 4 {
		addr := uint64(way) * setSpan
		access := readAccess(addr)
		result := ta.Access(addr, access, uint64(way+1))
		ta.FillOnMiss(result.Index, access, uint64(way+1))
	}
	// Touch way 0 so way 1 becomes the LRU victim.
	ta.Access(0, readAccess(0), 10)

	victim := readAccess(4 * setSpan)
	result := ta.Access(4*setSpan, victim, 11)
	if result.Status != mem.Miss {
		t.Errorf("Access status not correct got: %v expected: %v", result.Status, mem.Miss)
	}
	if got := ta.BlockAt(result.Index).BlockAddr; got != 4*setSpan {
		t.Errorf("Victim block addr not correct got: %#x expected: %#x", got, 4*setSpan)
	}
	// The replaced tag must be the oldest, set span 1.
	_, status := ta.Probe(setSpan, readAccess(setSpan), false)
	if status != mem.Miss {
		t.Errorf("Evicted line should miss got: %v", status)
	}
	// Way 0 is still resident.
	_, status = ta.Probe(0, readAccess(0), false)
	if status != mem.Hit {
		t.Errorf("Recently used line should hit got: %v", status)
	}
}

func TestReservationFailWhenAllReserved(t *testing.T) {
	cfg := lineConfig()
	ta := New(cfg)
	setSpan := uint64(cfg.NumSets) * uint64(cfg.LineSize)
	// Reserve every way of set 0, no fills.
	for way := range 4 {
		addr := uint64(way) * setSpan
		result := ta.Access(addr, readAccess(addr), uint64(way+1))
		if result.Status != mem.Miss {
			t.Errorf("Access status not correct got: %v expected: %v", result.Status, mem.Miss)
		}
	}
	result := ta.Access(4*setSpan, readAccess(4*setSpan), 9)
	if result.Status != mem.ReservationFail {
		t.Errorf("Access status not correct got: %v expected: %v", result.Status, mem.ReservationFail)
	}
	if ta.NumReservationFail != 1 {
		t.Errorf("Reservation fail count not correct got: %d expected: %d", ta.NumReservationFail, 1)
	}
}

func TestModifiedEviction(t *testing.T) {
	cfg := lineConfig()
	ta := New(cfg)
	setSpan := uint64(cfg.NumSets) * uint64(cfg.LineSize)

	// Fill all ways, dirty way holding tag 0.
	for way := range 4 {
		addr := uint64(way) * setSpan
		access := readAccess(addr)
		result := ta.Access(addr, access, uint64(way+1))
		ta.FillOnMiss(result.Index, access, uint64(way+1))
		if way == 0 {
			var bytes bitset.ByteMask
			for i := range 128 {
				bytes.Set(i)
			}
			ta.MarkModified(result.Index, 1, bytes)
		}
	}
	if ta.NumDirty != 1 {
		t.Errorf("Dirty count not correct got: %d expected: %d", ta.NumDirty, 1)
	}

	// Tag 0 is the LRU victim and is MODIFIED.
	result := ta.Access(4*setSpan, readAccess(4*setSpan), 20)
	if !result.Writeback {
		t.Error("Evicting modified line should produce writeback")
	}
	if result.Evicted.BlockAddr != 0 {
		t.Errorf("Evicted block addr not correct got: %#x expected: %#x", result.Evicted.BlockAddr, 0)
	}
	if result.Evicted.ModifiedSize != 128 {
		t.Errorf("Evicted modified size not correct got: %d expected: %d", result.Evicted.ModifiedSize, 128)
	}
	if ta.NumDirty != 0 {
		t.Errorf("Dirty count not correct got: %d expected: %d", ta.NumDirty, 0)
	}
}

func TestSectorMissReservesOneSector(t *testing.T) {
	cfg := sectorConfig()
	ta := New(cfg)

	// Miss on sector 0 of a line, fill it.
	a0 := readAccess(0)
	a0.SectorMask = 1
	result := ta.Access(0, a0, 1)
	if result.Status != mem.Miss {
		t.Errorf("Access status not correct got: %v expected: %v", result.Status, mem.Miss)
	}
	ta.FillOnMiss(result.Index, a0, 2)

	// Same line, sector 2: tag matches, sector invalid.
	a2 := readAccess(64)
	var m2 bitset.SectorMask
	m2.Set(2)
	a2.SectorMask = m2
	result2 := ta.Access(64, a2, 3)
	if result2.Status != mem.SectorMiss {
		t.Errorf("Access status not correct got: %v expected: %v", result2.Status, mem.SectorMiss)
	}
	if result2.Index != result.Index {
		t.Errorf("Sector miss should land on the same way got: %d expected: %d", result2.Index, result.Index)
	}
	block := ta.BlockAt(result2.Index)
	if block.State(2) != Reserved {
		t.Errorf("Sector 2 state not correct got: %v expected: %v", block.State(2), Reserved)
	}
	if block.State(0) != Valid {
		t.Errorf("Sector 0 state not correct got: %v expected: %v", block.State(0), Valid)
	}
	if block.State(1) != Invalid {
		t.Errorf("Sector 1 state not correct got: %v expected: %v", block.State(1), Invalid)
	}
	if ta.NumSectorMiss != 1 {
		t.Errorf("Sector miss count not correct got: %d expected: %d", ta.NumSectorMiss, 1)
	}
}

func TestFillOnFillAllocatesLate(t *testing.T) {
	cfg := lineConfig()
	cfg.Allocate = config.OnFill
	ta := New(cfg)

	access := readAccess(0x100)
	result := ta.Access(0x100, access, 1)
	if result.Status != mem.Miss {
		t.Errorf("Access status not correct got: %v expected: %v", result.Status, mem.Miss)
	}
	// ON_FILL does not reserve at access time.
	_, status := ta.Probe(0x100, access, false)
	if status != mem.Miss {
		t.Errorf("Probe status not correct got: %v expected: %v", status, mem.Miss)
	}

	ta.FillOnFill(0x100, access, 5)
	_, status = ta.Probe(0x100, access, false)
	if status != mem.Hit {
		t.Errorf("Probe status not correct got: %v expected: %v", status, mem.Hit)
	}
}

func TestFlushWritesBackDirty(t *testing.T) {
	cfg := lineConfig()
	ta := New(cfg)
	access := readAccess(0x200)
	result := ta.Access(0x200, access, 1)
	ta.FillOnMiss(result.Index, access, 1)
	var bytes bitset.ByteMask
	bytes.Set(0)
	ta.MarkModified(result.Index, 1, bytes)

	evicted := ta.Flush()
	if len(evicted) != 1 {
		t.Errorf("Flush count not correct got: %d expected: %d", len(evicted), 1)
	}
	if ta.NumDirty != 0 {
		t.Errorf("Dirty count not correct got: %d expected: %d", ta.NumDirty, 0)
	}
	// Line stays resident and clean.
	_, status := ta.Probe(0x200, access, false)
	if status != mem.Hit {
		t.Errorf("Probe status not correct got: %v expected: %v", status, mem.Hit)
	}
}
