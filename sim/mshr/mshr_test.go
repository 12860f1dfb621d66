/*
 * GPGPU - MSHR table test cases.
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

package mshr

import (
	"testing"

	"github.com/rcornwell/GPGPU/sim/mem"
)

func newFetch(addr uint64) *mem.Fetch {
	access := mem.Access{Kind: mem.GlobalAccR, Addr: addr, Size: 32}
	return mem.NewFetch(access, mem.ReadRequest, 0, 0, 0, nil)
}

func TestProbeAndMerge(t *testing.T) {
	table := New(4, 2)
	if table.Probe(0x80) {
		t.Error("Probe of empty table should miss")
	}
	f1 := newFetch(0x80)
	f2 := newFetch(0x80)
	table.Add(0x80, f1)
	if !table.Probe(0x80) {
		t.Error("Probe after add should hit")
	}
	if table.Full(0x80) {
		t.Error("Entry with one fetch should not be full")
	}
	table.Add(0x80, f2)
	if !table.Full(0x80) {
		t.Error("Entry at merge cap should be full")
	}
	if table.Len() != 1 {
		t.Errorf("Entry count not correct got: %d expected: %d", table.Len(), 1)
	}
}

func TestEntryCap(t *testing.T) {
	table := New(2, 4)
	table.Add(0x000, newFetch(0x000))
	table.Add(0x080, newFetch(0x080))
	if !table.Full(0x100) {
		t.Error("Table at entry cap should be full for new addresses")
	}
	if table.Full(0x080) {
		t.Error("Table at entry cap should still merge existing addresses")
	}
}

func TestReadyDrainFIFO(t *testing.T) {
	table := New(4, 4)
	f1 := newFetch(0x80)
	f2 := newFetch(0x80)
	f3 := newFetch(0x100)
	table.Add(0x80, f1)
	table.Add(0x80, f2)
	table.Add(0x100, f3)

	if table.HasReady() {
		t.Error("Nothing should be ready before MarkReady")
	}
	if table.NextAccess() != nil {
		t.Error("NextAccess should return nil before MarkReady")
	}

	table.MarkReady(0x80)
	table.MarkReady(0x100)

	// Merge list drains in add order, entries in fill order.
	for i, want := range []*mem.Fetch{f1, f2, f3} {
		got := table.NextAccess()
		if got != want {
			t.Errorf("NextAccess %d not correct got: %v expected: %v", i, got, want)
		}
	}
	if table.NextAccess() != nil {
		t.Error("Drained table should return nil")
	}
	if table.Len() != 0 {
		t.Errorf("Entry count not correct got: %d expected: %d", table.Len(), 0)
	}
}

func TestMarkReadyAtomic(t *testing.T) {
	table := New(4, 4)
	f := newFetch(0x80)
	f.IsAtomic = true
	table.Add(0x80, f)
	table.Add(0x80, newFetch(0x80))
	if !table.MarkReady(0x80) {
		t.Error("MarkReady should report merged atomic")
	}

	table.Add(0x100, newFetch(0x100))
	if table.MarkReady(0x100) {
		t.Error("MarkReady should not report atomic for plain reads")
	}
}
