/*
 * GPGPU - Simulation statistics.
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

package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/rcornwell/GPGPU/sim/mem"
)

// Cache holds per access kind status and failure counters of one cache.
type Cache struct {
	Accesses [mem.NumAccessKinds][mem.NumRequestStatus]uint64
	Failures [mem.NumAccessKinds][mem.NumReservationFailures]uint64
}

// Record one access outcome.
func (c *Cache) Record(kind mem.AccessKind, status mem.RequestStatus) {
	c.Accesses[kind][status]++
}

// RecordFailure with its fine grained reason.
func (c *Cache) RecordFailure(kind mem.AccessKind, failure mem.ReservationFailure) {
	c.Accesses[kind][mem.ReservationFail]++
	c.Failures[kind][failure]++
}

// Count of one (kind, status) cell.
func (c *Cache) Count(kind mem.AccessKind, status mem.RequestStatus) uint64 {
	return c.Accesses[kind][status]
}

// FailureCount of one (kind, failure) cell.
func (c *Cache) FailureCount(kind mem.AccessKind, failure mem.ReservationFailure) uint64 {
	return c.Failures[kind][failure]
}

// TotalOf one status over all access kinds.
func (c *Cache) TotalOf(status mem.RequestStatus) uint64 {
	var total uint64
	for kind := range c.Accesses {
		total += c.Accesses[kind][status]
	}
	return total
}

// Merge other into c.
func (c *Cache) Merge(other *Cache) {
	for kind := range c.Accesses {
		for status := range c.Accesses[kind] {
			c.Accesses[kind][status] += other.Accesses[kind][status]
		}
		for failure := range c.Failures[kind] {
			c.Failures[kind][failure] += other.Failures[kind][failure]
		}
	}
}

// Reset all counters.
func (c *Cache) Reset() {
	*c = Cache{}
}

// MarshalJSON flattens the tables to "KIND.STATUS" keys, zero cells
// omitted.
func (c *Cache) MarshalJSON() ([]byte, error) {
	out := map[string]uint64{}
	for kind := mem.AccessKind(0); kind < mem.NumAccessKinds; kind++ {
		for status := mem.RequestStatus(0); status < mem.NumRequestStatus; status++ {
			if n := c.Accesses[kind][status]; n != 0 {
				out[kind.String()+"."+status.String()] = n
			}
		}
		for failure := mem.ReservationFailure(1); failure < mem.NumReservationFailures; failure++ {
			if n := c.Failures[kind][failure]; n != 0 {
				out[kind.String()+"."+failure.String()] = n
			}
		}
	}
	return json.Marshal(out)
}

// Kernel holds the per kernel launch statistics.
type Kernel struct {
	KernelID     int    `json:"kernel_id"`
	KernelName   string `json:"kernel_name"`
	Cycles       uint64 `json:"cycles"`
	Instructions uint64 `json:"instructions"`
	WarpsLaunched uint64 `json:"warps_launched"`
	BlocksLaunched uint64 `json:"blocks_launched"`

	L1I *Cache `json:"l1i"`
	L1D *Cache `json:"l1d"`
	L2  *Cache `json:"l2"`

	DRAMReads  uint64 `json:"dram_reads"`
	DRAMWrites uint64 `json:"dram_writes"`

	SchedulerStalls  uint64 `json:"scheduler_stalls"`
	IssuedInstr      uint64 `json:"issued_instructions"`
	NumMemAccesses   uint64 `json:"mem_accesses"`
}

// NewKernel stats for one launch.
func NewKernel(id int, name string) *Kernel {
	return &Kernel{
		KernelID:   id,
		KernelName: name,
		L1I:        &Cache{},
		L1D:        &Cache{},
		L2:         &Cache{},
	}
}

// Sink aggregates kernel statistics under one lock, per the shared
// resource policy all counters funnel here at cycle end.
type Sink struct {
	mu      sync.Mutex
	kernels []*Kernel
}

// Add a completed kernel record.
func (s *Sink) Add(k *Kernel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kernels = append(s.kernels, k)
}

// Kernels returns the recorded kernels in completion order.
func (s *Sink) Kernels() []*Kernel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Kernel, len(s.kernels))
	copy(out, s.kernels)
	return out
}

// WriteJSON serializes all kernels.
func (s *Sink) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Kernels())
}

// WriteCSV serializes the headline counters, one row per kernel.
func (s *Sink) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"kernel_id", "kernel_name", "cycles", "instructions",
		"l1d_hits", "l1d_misses", "l1d_reservation_fails",
		"l2_hits", "l2_misses", "dram_reads", "dram_writes",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, k := range s.Kernels() {
		row := []string{
			strconv.Itoa(k.KernelID),
			k.KernelName,
			strconv.FormatUint(k.Cycles, 10),
			strconv.FormatUint(k.Instructions, 10),
			strconv.FormatUint(k.L1D.TotalOf(mem.Hit), 10),
			strconv.FormatUint(k.L1D.TotalOf(mem.Miss), 10),
			strconv.FormatUint(k.L1D.TotalOf(mem.ReservationFail), 10),
			strconv.FormatUint(k.L2.TotalOf(mem.Hit), 10),
			strconv.FormatUint(k.L2.TotalOf(mem.Miss), 10),
			strconv.FormatUint(k.DRAMReads, 10),
			strconv.FormatUint(k.DRAMWrites, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary line for the monitor and the log.
func (k *Kernel) Summary() string {
	return fmt.Sprintf("kernel %d %s: cycles=%d instructions=%d l1d hits=%d misses=%d l2 hits=%d misses=%d",
		k.KernelID, k.KernelName, k.Cycles, k.Instructions,
		k.L1D.TotalOf(mem.Hit), k.L1D.TotalOf(mem.Miss),
		k.L2.TotalOf(mem.Hit), k.L2.TotalOf(mem.Miss))
}
