/*
 * GPGPU - Simulator configuration.
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

package config

import (
	"fmt"
	"math/bits"
)

// Device address map constants.
const (
	ProgramMemStart   uint64 = 0xF0000000 // Instruction fetch space.
	GlobalHeapStart   uint64 = 0xC0000000 // Device global heap.
	LocalGenericStart uint64 = 0x10000000 // Translated local memory.
	SharedGenericStart uint64 = 0x01000000

	WarpSize        = 32 // Threads per warp.
	SectorSize      = 32 // Bytes per sector.
	SectorChunkSize = 4  // Sectors per 128 byte line.

	MaxBarriersPerCTA = 16
	MaxWarpsPerCTA    = 64
)

// Cache replacement policies.
type ReplacementPolicy int

const (
	LRU ReplacementPolicy = iota
	FIFO
)

// Cache write policies.
type WritePolicy int

const (
	ReadOnly WritePolicy = iota
	WriteBack
	WriteThrough
	WriteEvict
	LocalWBGlobalWT
)

// Cache line allocation policies.
type AllocatePolicy int

const (
	OnMiss AllocatePolicy = iota
	OnFill
)

// Write allocate policies.
type WriteAllocatePolicy int

const (
	NoWriteAllocate WriteAllocatePolicy = iota
	WriteAllocate
	FetchOnWrite
	LazyFetchOnRead
)

// MSHR organizations.
type MSHRKind int

const (
	MSHRAssoc MSHRKind = iota
	MSHRSectorAssoc
)

// CacheConfig describes the geometry and policies of one cache level.
type CacheConfig struct {
	NumSets       uint32
	Associativity uint32
	LineSize      uint32
	AtomSize      uint32 // Unit exchanged with the next level, sector size for sector caches.

	Replacement ReplacementPolicy
	Write       WritePolicy
	Allocate    AllocatePolicy
	WriteAlloc  WriteAllocatePolicy

	MSHR         MSHRKind
	MSHREntries  int
	MSHRMaxMerge int

	MissQueueSize int
	DataPortWidth uint32

	// Percentage of lines allowed to sit MODIFIED before replacement of
	// dirty victims is refused. 100 never refuses.
	DirtyLineThreshold int
}

// Sectored returns true when the cache tracks per sector state.
func (c *CacheConfig) Sectored() bool {
	return c.AtomSize < c.LineSize
}

// NumSectors per line.
func (c *CacheConfig) NumSectors() int {
	return int(c.LineSize / SectorSize)
}

// BlockAddr strips the line offset.
func (c *CacheConfig) BlockAddr(addr uint64) uint64 {
	return addr &^ uint64(c.LineSize-1)
}

// MSHRAddr strips the atom offset. Misses merge at atom granularity.
func (c *CacheConfig) MSHRAddr(addr uint64) uint64 {
	return addr &^ uint64(c.AtomSize-1)
}

// SetIndex of an address.
func (c *CacheConfig) SetIndex(addr uint64) uint32 {
	return uint32(addr/uint64(c.LineSize)) % c.NumSets
}

// Tag of an address. Keeps the set bits, a tag compare is a block
// address compare.
func (c *CacheConfig) Tag(addr uint64) uint64 {
	return addr &^ uint64(c.LineSize-1)
}

// SectorOf returns the sector number an address falls in, 0 for line caches.
func (c *CacheConfig) SectorOf(addr uint64) int {
	if !c.Sectored() {
		return 0
	}
	return int((addr % uint64(c.LineSize)) / SectorSize)
}

// TotalLines in the array.
func (c *CacheConfig) TotalLines() uint32 {
	return c.NumSets * c.Associativity
}

// Validate the cache geometry and policy selection.
func (c *CacheConfig) Validate(name string) error {
	if c.NumSets == 0 || bits.OnesCount32(c.NumSets) != 1 {
		return fmt.Errorf("%s: num_sets %d must be a non zero power of two", name, c.NumSets)
	}
	if c.LineSize == 0 || bits.OnesCount32(c.LineSize) != 1 {
		return fmt.Errorf("%s: line_size %d must be a non zero power of two", name, c.LineSize)
	}
	if c.Associativity == 0 {
		return fmt.Errorf("%s: associativity must be non zero", name)
	}
	if c.AtomSize == 0 || c.AtomSize > c.LineSize {
		return fmt.Errorf("%s: atom_size %d must be between 1 and line_size %d", name, c.AtomSize, c.LineSize)
	}
	if c.Sectored() && c.AtomSize != SectorSize {
		return fmt.Errorf("%s: sector cache atom_size must be %d", name, SectorSize)
	}
	if c.MSHREntries <= 0 || c.MSHRMaxMerge <= 0 {
		return fmt.Errorf("%s: mshr_entries and mshr_max_merge must be positive", name)
	}
	if c.MissQueueSize <= 0 {
		return fmt.Errorf("%s: miss_queue_size must be positive", name)
	}
	if c.DataPortWidth == 0 {
		return fmt.Errorf("%s: data_port_width must be non zero", name)
	}
	if c.DirtyLineThreshold < 0 || c.DirtyLineThreshold > 100 {
		return fmt.Errorf("%s: dirty_line_threshold %d must be a percentage", name, c.DirtyLineThreshold)
	}
	switch c.WriteAlloc {
	case FetchOnWrite:
		return fmt.Errorf("%s: write allocate policy FETCH_ON_WRITE not implemented", name)
	case LazyFetchOnRead:
		return fmt.Errorf("%s: write allocate policy LAZY_FETCH_ON_READ not implemented", name)
	}
	return nil
}

// OpLatency holds issue latency and initiation interval of one unit class.
type OpLatency struct {
	Latency  int
	InitInt  int
}

// GPUConfig holds the whole device configuration.
type GPUConfig struct {
	NumClusters        int
	NumCoresPerCluster int

	MaxThreadsPerCore      int
	MaxWarpsPerCore        int
	WarpSize               int
	NumSchedulersPerCore   int
	SubCoreModel           bool
	ConcurrentKernelSM     bool
	MaxConcurrentBlocks    int
	MaxBarriersPerBlock    int
	RegFilePortThroughput  int
	InstFetchThroughput    int
	NumRegBanks            int
	LocalMemMap            bool
	PerfectInstConstCache  bool
	FlushL1Cache           bool

	NumSPUnits  int
	NumDPUnits  int
	NumIntUnits int
	NumSFUUnits int

	// Operand collector sets, counts per kind.
	OperandCollectorUnits    map[string]int // gen, sp, dp, sfu, int, mem
	OperandCollectorInPorts  map[string]int
	OperandCollectorOutPorts map[string]int

	SPLatency  OpLatency
	DPLatency  OpLatency
	IntLatency OpLatency
	SFULatency OpLatency

	L1ICache CacheConfig
	L1DCache CacheConfig
	L2Cache  CacheConfig

	NumMemoryControllers      int
	NumSubPartitionPerChannel int
	ClusterEjectionBufferSize int
	InterconnectLatency       int

	DRAMLatency int // Cycles spent in the DRAM latency queue.
	TRCD        int
	TCAS        int
	TRP         int
	TWR         int

	CycleLimit uint64 // 0 means unlimited.
}

// Default returns the configuration the simulator starts from before the
// option file is applied. Geometry follows a GTX style part.
func Default() *GPUConfig {
	return &GPUConfig{
		NumClusters:           20,
		NumCoresPerCluster:    1,
		MaxThreadsPerCore:     2048,
		MaxWarpsPerCore:       64,
		WarpSize:              WarpSize,
		NumSchedulersPerCore:  2,
		MaxConcurrentBlocks:   32,
		MaxBarriersPerBlock:   MaxBarriersPerCTA,
		RegFilePortThroughput: 2,
		InstFetchThroughput:   1,
		NumRegBanks:           16,
		NumSPUnits:            4,
		NumDPUnits:            1,
		NumIntUnits:           1,
		NumSFUUnits:           1,
		OperandCollectorUnits: map[string]int{
			"gen": 4, "sp": 4, "dp": 0, "sfu": 4, "int": 0, "mem": 2,
		},
		OperandCollectorInPorts: map[string]int{
			"gen": 1, "sp": 1, "dp": 0, "sfu": 1, "int": 0, "mem": 1,
		},
		OperandCollectorOutPorts: map[string]int{
			"gen": 1, "sp": 1, "dp": 0, "sfu": 1, "int": 0, "mem": 1,
		},
		SPLatency:  OpLatency{Latency: 4, InitInt: 1},
		DPLatency:  OpLatency{Latency: 8, InitInt: 8},
		IntLatency: OpLatency{Latency: 4, InitInt: 1},
		SFULatency: OpLatency{Latency: 20, InitInt: 8},
		L1ICache: CacheConfig{
			NumSets:       8,
			Associativity: 4,
			LineSize:      128,
			AtomSize:      128,
			Replacement:   LRU,
			Write:         ReadOnly,
			Allocate:      OnFill,
			WriteAlloc:    NoWriteAllocate,
			MSHR:          MSHRAssoc,
			MSHREntries:   8,
			MSHRMaxMerge:  4,
			MissQueueSize: 4,
			DataPortWidth: 128,
			DirtyLineThreshold: 100,
		},
		L1DCache: CacheConfig{
			NumSets:       16,
			Associativity: 4,
			LineSize:      128,
			AtomSize:      32,
			Replacement:   LRU,
			Write:         WriteBack,
			Allocate:      OnMiss,
			WriteAlloc:    WriteAllocate,
			MSHR:          MSHRAssoc,
			MSHREntries:   32,
			MSHRMaxMerge:  8,
			MissQueueSize: 4,
			DataPortWidth: 32,
			DirtyLineThreshold: 100,
		},
		L2Cache: CacheConfig{
			NumSets:       64,
			Associativity: 16,
			LineSize:      128,
			AtomSize:      32,
			Replacement:   LRU,
			Write:         WriteBack,
			Allocate:      OnMiss,
			WriteAlloc:    WriteAllocate,
			MSHR:          MSHRAssoc,
			MSHREntries:   64,
			MSHRMaxMerge:  16,
			MissQueueSize: 8,
			DataPortWidth: 32,
			DirtyLineThreshold: 75,
		},
		NumMemoryControllers:      8,
		NumSubPartitionPerChannel: 2,
		ClusterEjectionBufferSize: 8,
		InterconnectLatency:       1,
		DRAMLatency:               100,
		TRCD:                      12,
		TCAS:                      12,
		TRP:                       12,
		TWR:                       12,
	}
}

// NumCores over the whole device.
func (g *GPUConfig) NumCores() int {
	return g.NumClusters * g.NumCoresPerCluster
}

// NumSubPartitions over the whole device.
func (g *GPUConfig) NumSubPartitions() int {
	return g.NumMemoryControllers * g.NumSubPartitionPerChannel
}

// LatencyOf a unit kind name.
func (g *GPUConfig) LatencyOf(kind string) OpLatency {
	switch kind {
	case "dp":
		return g.DPLatency
	case "sfu":
		return g.SFULatency
	case "int":
		return g.IntLatency
	default:
		return g.SPLatency
	}
}

// Validate the full configuration.
func (g *GPUConfig) Validate() error {
	if g.NumClusters <= 0 || g.NumCoresPerCluster <= 0 {
		return fmt.Errorf("cluster geometry must be positive, got %d x %d", g.NumClusters, g.NumCoresPerCluster)
	}
	if g.WarpSize != WarpSize {
		return fmt.Errorf("warp_size %d not supported, only %d", g.WarpSize, WarpSize)
	}
	if g.MaxWarpsPerCore <= 0 || g.MaxWarpsPerCore > 64 {
		return fmt.Errorf("max_warps_per_core %d must be between 1 and 64", g.MaxWarpsPerCore)
	}
	if g.MaxThreadsPerCore != g.MaxWarpsPerCore*g.WarpSize {
		return fmt.Errorf("max_threads_per_core %d must equal max_warps_per_core*warp_size %d",
			g.MaxThreadsPerCore, g.MaxWarpsPerCore*g.WarpSize)
	}
	if g.NumSchedulersPerCore <= 0 {
		return fmt.Errorf("num_schedulers_per_core must be positive")
	}
	if g.MaxBarriersPerBlock <= 0 || g.MaxBarriersPerBlock > MaxBarriersPerCTA {
		return fmt.Errorf("max_barriers_per_block %d must be between 1 and %d", g.MaxBarriersPerBlock, MaxBarriersPerCTA)
	}
	if g.NumRegBanks <= 0 {
		return fmt.Errorf("num_reg_banks must be positive")
	}
	if g.NumMemoryControllers <= 0 || g.NumSubPartitionPerChannel <= 0 {
		return fmt.Errorf("memory partition geometry must be positive, got %d x %d",
			g.NumMemoryControllers, g.NumSubPartitionPerChannel)
	}
	if err := g.L1ICache.Validate("l1i"); err != nil {
		return err
	}
	if g.L1ICache.Write != ReadOnly {
		return fmt.Errorf("l1i: write policy must be READ_ONLY")
	}
	if err := g.L1DCache.Validate("l1d"); err != nil {
		return err
	}
	if err := g.L2Cache.Validate("l2"); err != nil {
		return err
	}
	return nil
}
