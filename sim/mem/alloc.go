/*
 * GPGPU - Device allocation registry.
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

package mem

import "sort"

// Allocation is one user visible device allocation, registered when the
// trace replays a MemcpyHtoD.
type Allocation struct {
	ID    int
	Name  string
	Start uint64
	End   uint64
}

// Contains the address.
func (a *Allocation) Contains(addr uint64) bool {
	return addr >= a.Start && addr < a.End
}

// Allocations is the address ordered allocation table.
type Allocations struct {
	list []Allocation
}

// Insert a new allocation. Returns the assigned id when the caller did
// not provide one.
func (t *Allocations) Insert(id int, name string, start, numBytes uint64) int {
	if id == 0 {
		id = len(t.list) + 1
	}
	t.list = append(t.list, Allocation{ID: id, Name: name, Start: start, End: start + numBytes})
	sort.Slice(t.list, func(i, j int) bool { return t.list[i].Start < t.list[j].Start })
	return id
}

// Find the allocation covering addr, nil if none.
func (t *Allocations) Find(addr uint64) *Allocation {
	n := sort.Search(len(t.list), func(i int) bool { return t.list[i].End > addr })
	if n < len(t.list) && t.list[n].Contains(addr) {
		return &t.list[n]
	}
	return nil
}

// Len of the table.
func (t *Allocations) Len() int {
	return len(t.list)
}
