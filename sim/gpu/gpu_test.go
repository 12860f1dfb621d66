/*
 * GPGPU - End to end simulator test cases.
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

package gpu

import (
	"context"
	"testing"

	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/sim/trace"
)

// smallConfig builds a one cluster, one core device with a short DRAM
// latency so tests converge quickly.
func smallConfig() *config.GPUConfig {
	cfg := config.Default()
	cfg.NumClusters = 1
	cfg.NumCoresPerCluster = 1
	cfg.NumMemoryControllers = 2
	cfg.NumSubPartitionPerChannel = 2
	cfg.DRAMLatency = 20
	cfg.CycleLimit = 20000
	return cfg
}

func exitEntry() *trace.Entry {
	return &trace.Entry{
		InstrOpcode: "EXIT",
		InstrOffset: 0x40,
		ActiveMask:  0xffffffff,
	}
}

func loadEntry(addrs []uint64) *trace.Entry {
	return &trace.Entry{
		InstrOpcode:    "LDG.E.SYS",
		InstrDataWidth: 4,
		InstrMemSpace:  "Global",
		InstrIsMem:     true,
		InstrIsLoad:    true,
		NumDestRegs:    1,
		DestRegs:       []int{4},
		NumSrcRegs:     1,
		SrcRegs:        []int{2},
		ActiveMask:     0xffffffff,
		Addrs:          addrs,
	}
}

func storeEntry(addrs []uint64) *trace.Entry {
	return &trace.Entry{
		InstrOpcode:    "STG.E.SYS",
		InstrDataWidth: 4,
		InstrMemSpace:  "Global",
		InstrIsMem:     true,
		InstrIsStore:   true,
		NumSrcRegs:     2,
		SrcRegs:        []int{2, 4},
		ActiveMask:     0xffffffff,
		Addrs:          addrs,
	}
}

func contiguousAddrs(base uint64) []uint64 {
	addrs := make([]uint64, 32)
	for i := range 32 {
		addrs[i] = base + uint64(i)*4
	}
	return addrs
}

func launch(threads uint32) *trace.KernelLaunch {
	return &trace.KernelLaunch{
		ID:            1,
		UnmangledName: "test_kernel",
		Grid:          trace.Dim{X: 1, Y: 1, Z: 1},
		Block:         trace.Dim{X: threads, Y: 1, Z: 1},
	}
}

func runKernel(t *testing.T, cfg *config.GPUConfig, kt *trace.KernelTrace) *Simulator {
	t.Helper()
	sim, err := New(cfg, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := sim.Launch(kt); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := sim.RunToCompletion(context.Background()); err != nil {
		t.Fatalf("RunToCompletion failed: %v", err)
	}
	if sim.LimitReached() {
		t.Fatalf("Simulation hit the cycle limit at %d", sim.Cycle())
	}
	if len(sim.Stats().Kernels()) != 1 {
		t.Fatalf("Kernel count not correct got: %d expected: %d", len(sim.Stats().Kernels()), 1)
	}
	return sim
}

// One warp running a single EXIT: the instruction fetch misses once and
// the warp completes promptly.
func TestSingleWarpExit(t *testing.T) {
	cfg := smallConfig()
	kt := &trace.KernelTrace{
		Launch: launch(32),
		Warps: map[trace.WarpKey][]*trace.Entry{
			{Block: 0, WarpIDInBlock: 0}: {exitEntry()},
		},
	}
	sim := runKernel(t, cfg, kt)
	k := sim.Stats().Kernels()[0]

	if k.L1I.Count(mem.InstAccR, mem.Miss) != 1 {
		t.Errorf("L1I miss count not correct got: %d expected: %d",
			k.L1I.Count(mem.InstAccR, mem.Miss), 1)
	}
	if k.Instructions != 32 {
		t.Errorf("Thread instructions not correct got: %d expected: %d", k.Instructions, 32)
	}
	if k.BlocksLaunched != 1 || k.WarpsLaunched != 1 {
		t.Errorf("Launch counts not correct got: %d blocks %d warps", k.BlocksLaunched, k.WarpsLaunched)
	}
}

// A coalesced load of one 128 byte line misses L1 and L2 once and the
// warp resumes after the fill unwinds.
func TestCoalescedLoadMiss(t *testing.T) {
	cfg := smallConfig()
	kt := &trace.KernelTrace{
		Launch: launch(32),
		Warps: map[trace.WarpKey][]*trace.Entry{
			{Block: 0, WarpIDInBlock: 0}: {loadEntry(contiguousAddrs(0)), exitEntry()},
		},
	}
	sim := runKernel(t, cfg, kt)
	k := sim.Stats().Kernels()[0]

	if k.L1D.Count(mem.GlobalAccR, mem.Miss) != 1 {
		t.Errorf("L1D miss count not correct got: %d expected: %d",
			k.L1D.Count(mem.GlobalAccR, mem.Miss), 1)
	}
	if k.L1D.Count(mem.GlobalAccR, mem.Hit) != 0 {
		t.Errorf("L1D hit count not correct got: %d expected: %d",
			k.L1D.Count(mem.GlobalAccR, mem.Hit), 0)
	}
	if k.L2.Count(mem.GlobalAccR, mem.Miss) != 1 {
		t.Errorf("L2 miss count not correct got: %d expected: %d",
			k.L2.Count(mem.GlobalAccR, mem.Miss), 1)
	}
	// 64 thread instructions: the load and the exit.
	if k.Instructions != 64 {
		t.Errorf("Thread instructions not correct got: %d expected: %d", k.Instructions, 64)
	}
	if k.NumMemAccesses != 1 {
		t.Errorf("Coalesced access count not correct got: %d expected: %d", k.NumMemAccesses, 1)
	}
}

// Two warps loading the same line merge in the MSHRs: one miss travels
// down, the second access records a pending hit, one DRAM read for the
// data.
func TestMSHRMergeAcrossWarps(t *testing.T) {
	cfg := smallConfig()
	kt := &trace.KernelTrace{
		Launch: launch(64),
		Warps: map[trace.WarpKey][]*trace.Entry{
			{Block: 0, WarpIDInBlock: 0}: {loadEntry(contiguousAddrs(0)), exitEntry()},
			{Block: 0, WarpIDInBlock: 1}: {loadEntry(contiguousAddrs(0)), exitEntry()},
		},
	}
	sim := runKernel(t, cfg, kt)
	k := sim.Stats().Kernels()[0]

	if k.L1D.Count(mem.GlobalAccR, mem.Miss) != 1 {
		t.Errorf("L1D miss count not correct got: %d expected: %d",
			k.L1D.Count(mem.GlobalAccR, mem.Miss), 1)
	}
	if k.L1D.Count(mem.GlobalAccR, mem.HitReserved) != 1 {
		t.Errorf("L1D pending hit count not correct got: %d expected: %d",
			k.L1D.Count(mem.GlobalAccR, mem.HitReserved), 1)
	}
	// One instruction line and one data line from DRAM.
	if k.DRAMReads != 2 {
		t.Errorf("DRAM read count not correct got: %d expected: %d", k.DRAMReads, 2)
	}
}

// A store miss sends a write through that the partition acknowledges,
// the warp cannot retire before the acknowledgement returns.
func TestStoreAcknowledged(t *testing.T) {
	cfg := smallConfig()
	kt := &trace.KernelTrace{
		Launch: launch(32),
		Warps: map[trace.WarpKey][]*trace.Entry{
			{Block: 0, WarpIDInBlock: 0}: {storeEntry(contiguousAddrs(0x1000)), exitEntry()},
		},
	}
	sim := runKernel(t, cfg, kt)
	k := sim.Stats().Kernels()[0]

	if k.L1D.Count(mem.GlobalAccW, mem.Miss) != 1 {
		t.Errorf("L1D write miss count not correct got: %d expected: %d",
			k.L1D.Count(mem.GlobalAccW, mem.Miss), 1)
	}
	// The store reaches the L2 and is acknowledged there.
	if k.L2.Count(mem.GlobalAccW, mem.Miss)+k.L2.Count(mem.GlobalAccW, mem.Hit) != 1 {
		t.Errorf("L2 store count not correct got: %d expected: %d",
			k.L2.Count(mem.GlobalAccW, mem.Miss)+k.L2.Count(mem.GlobalAccW, mem.Hit), 1)
	}
}

// A load following a store to the same line hits the written data under
// the write back policy.
func TestWriteThenReadHits(t *testing.T) {
	cfg := smallConfig()
	kt := &trace.KernelTrace{
		Launch: launch(32),
		Warps: map[trace.WarpKey][]*trace.Entry{
			{Block: 0, WarpIDInBlock: 0}: {
				storeEntry(contiguousAddrs(0x2000)),
				loadEntry(contiguousAddrs(0x2000)),
				exitEntry(),
			},
		},
	}
	sim := runKernel(t, cfg, kt)
	k := sim.Stats().Kernels()[0]

	hits := k.L1D.Count(mem.GlobalAccR, mem.Hit) + k.L1D.Count(mem.GlobalAccR, mem.HitReserved)
	if hits != 1 {
		t.Errorf("L1D read hit count not correct got: %d expected: %d", hits, 1)
	}
	if k.L1D.Count(mem.GlobalAccR, mem.Miss) != 0 {
		t.Errorf("L1D read miss count not correct got: %d expected: %d",
			k.L1D.Count(mem.GlobalAccR, mem.Miss), 0)
	}
}

// Allocations registered by memcpy tag the accesses that land in them.
func TestMemcpyRegistersAllocation(t *testing.T) {
	cfg := smallConfig()
	sim, err := New(cfg, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sim.Memcpy(&trace.MemcpyHtoD{Addr: 0x1000, NumBytes: 0x1000, Name: "input"})
	kt := &trace.KernelTrace{
		Launch: launch(32),
		Warps: map[trace.WarpKey][]*trace.Entry{
			{Block: 0, WarpIDInBlock: 0}: {loadEntry(contiguousAddrs(0x1800)), exitEntry()},
		},
	}
	if err := sim.Launch(kt); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := sim.RunToCompletion(context.Background()); err != nil {
		t.Fatalf("RunToCompletion failed: %v", err)
	}
	if alloc := sim.allocs.Find(0x1800); alloc == nil || alloc.Name != "input" {
		t.Error("Memcpy did not register an allocation covering the load")
	}
	k := sim.Stats().Kernels()[0]
	if k.L1D.Count(mem.GlobalAccR, mem.Miss) != 1 {
		t.Errorf("L1D miss count not correct got: %d expected: %d",
			k.L1D.Count(mem.GlobalAccR, mem.Miss), 1)
	}
}

// The parallel cluster cycle produces the same statistics as the serial
// one.
func TestParallelClustersMatch(t *testing.T) {
	run := func(parallel bool) *Simulator {
		cfg := smallConfig()
		cfg.NumClusters = 2
		kt := &trace.KernelTrace{
			Launch: &trace.KernelLaunch{
				ID:            1,
				UnmangledName: "grid",
				Grid:          trace.Dim{X: 4, Y: 1, Z: 1},
				Block:         trace.Dim{X: 32, Y: 1, Z: 1},
			},
			Warps: map[trace.WarpKey][]*trace.Entry{},
		}
		for b := range uint64(4) {
			kt.Warps[trace.WarpKey{Block: b, WarpIDInBlock: 0}] = []*trace.Entry{
				loadEntry(contiguousAddrs(b * 0x1000)), exitEntry(),
			}
		}
		sim, err := New(cfg, parallel)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := sim.Launch(kt); err != nil {
			t.Fatalf("Launch failed: %v", err)
		}
		if err := sim.RunToCompletion(context.Background()); err != nil {
			t.Fatalf("RunToCompletion failed: %v", err)
		}
		return sim
	}

	serial := run(false).Stats().Kernels()[0]
	parallel := run(true).Stats().Kernels()[0]
	if serial.Instructions != parallel.Instructions {
		t.Errorf("Instruction counts differ got: %d expected: %d",
			parallel.Instructions, serial.Instructions)
	}
	if serial.L1D.TotalOf(mem.Miss) != parallel.L1D.TotalOf(mem.Miss) {
		t.Errorf("L1D miss counts differ got: %d expected: %d",
			parallel.L1D.TotalOf(mem.Miss), serial.L1D.TotalOf(mem.Miss))
	}
}
