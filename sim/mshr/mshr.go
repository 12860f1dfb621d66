/*
 * GPGPU - Miss status holding registers.
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
	"github.com/rcornwell/GPGPU/sim/mem"
)

type entry struct {
	fetches   []*mem.Fetch
	hasAtomic bool
}

// Table merges in flight misses by block address. At most numEntries
// distinct addresses are tracked, each merging up to maxMerge fetches.
type Table struct {
	numEntries int
	maxMerge   int
	entries    map[uint64]*entry

	// Addresses whose fill arrived, in fill order. Fetches drain FIFO
	// through NextAccess.
	ready []uint64
}

// New MSHR table.
func New(numEntries, maxMerge int) *Table {
	return &Table{
		numEntries: numEntries,
		maxMerge:   maxMerge,
		entries:    map[uint64]*entry{},
	}
}

// Probe for an in flight miss on the block address.
func (t *Table) Probe(blockAddr uint64) bool {
	_, ok := t.entries[blockAddr]
	return ok
}

// Full when a new fetch for the block address cannot be accepted.
func (t *Table) Full(blockAddr uint64) bool {
	if e, ok := t.entries[blockAddr]; ok {
		return len(e.fetches) >= t.maxMerge
	}
	return len(t.entries) >= t.numEntries
}

// Add a fetch to the merge list, creating the entry when absent. The
// caller checks Full first.
func (t *Table) Add(blockAddr uint64, fetch *mem.Fetch) {
	e, ok := t.entries[blockAddr]
	if !ok {
		e = &entry{}
		t.entries[blockAddr] = e
	}
	e.fetches = append(e.fetches, fetch)
	if fetch.IsAtomic {
		e.hasAtomic = true
	}
}

// MarkReady moves the entry's fetches to the ready queue. Returns true
// when any merged fetch was atomic, the caller then marks the filled
// line MODIFIED.
func (t *Table) MarkReady(blockAddr uint64) bool {
	e, ok := t.entries[blockAddr]
	if !ok {
		return false
	}
	t.ready = append(t.ready, blockAddr)
	return e.hasAtomic
}

// HasReady accesses waiting to drain.
func (t *Table) HasReady() bool {
	return len(t.ready) > 0
}

// NextAccess pops the oldest merged fetch of the oldest ready entry.
func (t *Table) NextAccess() *mem.Fetch {
	if len(t.ready) == 0 {
		return nil
	}
	blockAddr := t.ready[0]
	e := t.entries[blockAddr]
	fetch := e.fetches[0]
	e.fetches = e.fetches[1:]
	if len(e.fetches) == 0 {
		delete(t.entries, blockAddr)
		t.ready = t.ready[1:]
	}
	return fetch
}

// Len of distinct in flight addresses.
func (t *Table) Len() int {
	return len(t.entries)
}
