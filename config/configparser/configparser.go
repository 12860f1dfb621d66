/*
 * GPGPU - Configuration file parser
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

package configparser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rcornwell/GPGPU/sim/config"
)

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := '-' <option> <whitespace> <value>
 * <option> ::= <string>
 * <value> ::= <number> | <bool> | <cachegeometry>
 * <bool> ::= '0' | '1' | 'true' | 'false'
 * <cachegeometry> ::=
 *     <sets>:<line>:<assoc>:<atom>,
 *     <repl><write><alloc><walloc>,
 *     <mshr>:<entries>:<merge>,
 *     <missq>:<port>:<dirty>
 *   <repl>   ::= 'L' | 'F'            LRU, FIFO
 *   <write>  ::= 'R'|'B'|'T'|'E'|'G'  read only, back, through, evict,
 *                                     local back global through
 *   <alloc>  ::= 'm' | 'f'            on miss, on fill
 *   <walloc> ::= 'N'|'W'|'F'|'L'      none, naive, fetch on write,
 *                                     lazy fetch on read
 *   <mshr>   ::= 'A' | 'S'            assoc, sector assoc
 */

type option struct {
	name  string
	apply func(cfg *config.GPUConfig, value string) error
}

func intOption(set func(cfg *config.GPUConfig, v int)) func(*config.GPUConfig, string) error {
	return func(cfg *config.GPUConfig, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("expected number, got %q", value)
		}
		set(cfg, v)
		return nil
	}
}

func boolOption(set func(cfg *config.GPUConfig, v bool)) func(*config.GPUConfig, string) error {
	return func(cfg *config.GPUConfig, value string) error {
		switch strings.ToLower(value) {
		case "0", "false":
			set(cfg, false)
		case "1", "true":
			set(cfg, true)
		default:
			return fmt.Errorf("expected boolean, got %q", value)
		}
		return nil
	}
}

func cacheOption(pick func(cfg *config.GPUConfig) *config.CacheConfig) func(*config.GPUConfig, string) error {
	return func(cfg *config.GPUConfig, value string) error {
		return parseCacheGeometry(value, pick(cfg))
	}
}

func ocOption(pick func(cfg *config.GPUConfig) map[string]int, kind string) func(*config.GPUConfig, string) error {
	return intOption(func(cfg *config.GPUConfig, v int) {
		pick(cfg)[kind] = v
	})
}

var options = []option{
	{"num_simt_clusters", intOption(func(c *config.GPUConfig, v int) { c.NumClusters = v })},
	{"num_cores_per_simt_cluster", intOption(func(c *config.GPUConfig, v int) { c.NumCoresPerCluster = v })},
	{"max_threads_per_core", intOption(func(c *config.GPUConfig, v int) { c.MaxThreadsPerCore = v })},
	{"max_warps_per_core", intOption(func(c *config.GPUConfig, v int) { c.MaxWarpsPerCore = v })},
	{"warp_size", intOption(func(c *config.GPUConfig, v int) { c.WarpSize = v })},
	{"num_schedulers_per_core", intOption(func(c *config.GPUConfig, v int) { c.NumSchedulersPerCore = v })},
	{"sub_core_model", boolOption(func(c *config.GPUConfig, v bool) { c.SubCoreModel = v })},
	{"concurrent_kernel_sm", boolOption(func(c *config.GPUConfig, v bool) { c.ConcurrentKernelSM = v })},
	{"max_concurrent_blocks_per_core", intOption(func(c *config.GPUConfig, v int) { c.MaxConcurrentBlocks = v })},
	{"max_barriers_per_block", intOption(func(c *config.GPUConfig, v int) { c.MaxBarriersPerBlock = v })},
	{"reg_file_port_throughput", intOption(func(c *config.GPUConfig, v int) { c.RegFilePortThroughput = v })},
	{"inst_fetch_throughput", intOption(func(c *config.GPUConfig, v int) { c.InstFetchThroughput = v })},
	{"num_reg_banks", intOption(func(c *config.GPUConfig, v int) { c.NumRegBanks = v })},
	{"num_sp_units", intOption(func(c *config.GPUConfig, v int) { c.NumSPUnits = v })},
	{"num_dp_units", intOption(func(c *config.GPUConfig, v int) { c.NumDPUnits = v })},
	{"num_int_units", intOption(func(c *config.GPUConfig, v int) { c.NumIntUnits = v })},
	{"num_sfu_units", intOption(func(c *config.GPUConfig, v int) { c.NumSFUUnits = v })},
	{"local_mem_map", boolOption(func(c *config.GPUConfig, v bool) { c.LocalMemMap = v })},
	{"perfect_inst_const_cache", boolOption(func(c *config.GPUConfig, v bool) { c.PerfectInstConstCache = v })},
	{"flush_l1_cache", boolOption(func(c *config.GPUConfig, v bool) { c.FlushL1Cache = v })},
	{"cache:il1", cacheOption(func(c *config.GPUConfig) *config.CacheConfig { return &c.L1ICache })},
	{"cache:dl1", cacheOption(func(c *config.GPUConfig) *config.CacheConfig { return &c.L1DCache })},
	{"cache:dl2", cacheOption(func(c *config.GPUConfig) *config.CacheConfig { return &c.L2Cache })},
	{"num_memory_controllers", intOption(func(c *config.GPUConfig, v int) { c.NumMemoryControllers = v })},
	{"num_sub_partition_per_memory_channel", intOption(func(c *config.GPUConfig, v int) { c.NumSubPartitionPerChannel = v })},
	{"num_cluster_ejection_buffer_size", intOption(func(c *config.GPUConfig, v int) { c.ClusterEjectionBufferSize = v })},
	{"icnt_latency", intOption(func(c *config.GPUConfig, v int) { c.InterconnectLatency = v })},
	{"dram_latency", intOption(func(c *config.GPUConfig, v int) { c.DRAMLatency = v })},
	{"dram_t_rcd", intOption(func(c *config.GPUConfig, v int) { c.TRCD = v })},
	{"dram_t_cas", intOption(func(c *config.GPUConfig, v int) { c.TCAS = v })},
	{"dram_t_rp", intOption(func(c *config.GPUConfig, v int) { c.TRP = v })},
	{"dram_t_wr", intOption(func(c *config.GPUConfig, v int) { c.TWR = v })},
	{"cycle_limit", intOption(func(c *config.GPUConfig, v int) { c.CycleLimit = uint64(v) })},
	{"operand_collector_num_units_gen", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorUnits }, "gen")},
	{"operand_collector_num_units_sp", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorUnits }, "sp")},
	{"operand_collector_num_units_dp", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorUnits }, "dp")},
	{"operand_collector_num_units_sfu", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorUnits }, "sfu")},
	{"operand_collector_num_units_int", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorUnits }, "int")},
	{"operand_collector_num_units_mem", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorUnits }, "mem")},
	{"operand_collector_num_in_ports_gen", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorInPorts }, "gen")},
	{"operand_collector_num_in_ports_sp", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorInPorts }, "sp")},
	{"operand_collector_num_in_ports_dp", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorInPorts }, "dp")},
	{"operand_collector_num_in_ports_sfu", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorInPorts }, "sfu")},
	{"operand_collector_num_in_ports_int", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorInPorts }, "int")},
	{"operand_collector_num_in_ports_mem", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorInPorts }, "mem")},
	{"operand_collector_num_out_ports_gen", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorOutPorts }, "gen")},
	{"operand_collector_num_out_ports_sp", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorOutPorts }, "sp")},
	{"operand_collector_num_out_ports_dp", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorOutPorts }, "dp")},
	{"operand_collector_num_out_ports_sfu", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorOutPorts }, "sfu")},
	{"operand_collector_num_out_ports_int", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorOutPorts }, "int")},
	{"operand_collector_num_out_ports_mem", ocOption(func(c *config.GPUConfig) map[string]int { return c.OperandCollectorOutPorts }, "mem")},
}

func findOption(name string) *option {
	for i := range options {
		if options[i].name == name {
			return &options[i]
		}
	}
	return nil
}

// parseCacheGeometry fills a cache configuration from its geometry
// string.
func parseCacheGeometry(value string, cfg *config.CacheConfig) error {
	groups := strings.Split(value, ",")
	if len(groups) != 4 {
		return fmt.Errorf("cache geometry %q: expected 4 comma groups", value)
	}

	dims := strings.Split(groups[0], ":")
	if len(dims) != 4 {
		return fmt.Errorf("cache geometry %q: expected sets:line:assoc:atom", value)
	}
	nums := make([]uint32, 4)
	for i, dim := range dims {
		v, err := strconv.ParseUint(dim, 10, 32)
		if err != nil {
			return fmt.Errorf("cache geometry %q: bad number %q", value, dim)
		}
		nums[i] = uint32(v)
	}
	cfg.NumSets, cfg.LineSize, cfg.Associativity, cfg.AtomSize = nums[0], nums[1], nums[2], nums[3]

	policy := groups[1]
	if len(policy) != 4 {
		return fmt.Errorf("cache geometry %q: expected 4 policy letters", value)
	}
	switch policy[0] {
	case 'L':
		cfg.Replacement = config.LRU
	case 'F':
		cfg.Replacement = config.FIFO
	default:
		return fmt.Errorf("cache geometry %q: unknown replacement %q", value, policy[0])
	}
	switch policy[1] {
	case 'R':
		cfg.Write = config.ReadOnly
	case 'B':
		cfg.Write = config.WriteBack
	case 'T':
		cfg.Write = config.WriteThrough
	case 'E':
		cfg.Write = config.WriteEvict
	case 'G':
		cfg.Write = config.LocalWBGlobalWT
	default:
		return fmt.Errorf("cache geometry %q: unknown write policy %q", value, policy[1])
	}
	switch policy[2] {
	case 'm':
		cfg.Allocate = config.OnMiss
	case 'f':
		cfg.Allocate = config.OnFill
	default:
		return fmt.Errorf("cache geometry %q: unknown allocate policy %q", value, policy[2])
	}
	switch policy[3] {
	case 'N':
		cfg.WriteAlloc = config.NoWriteAllocate
	case 'W':
		cfg.WriteAlloc = config.WriteAllocate
	case 'F':
		cfg.WriteAlloc = config.FetchOnWrite
	case 'L':
		cfg.WriteAlloc = config.LazyFetchOnRead
	default:
		return fmt.Errorf("cache geometry %q: unknown write allocate policy %q", value, policy[3])
	}

	mshr := strings.Split(groups[2], ":")
	if len(mshr) != 3 {
		return fmt.Errorf("cache geometry %q: expected mshr:entries:merge", value)
	}
	switch mshr[0] {
	case "A":
		cfg.MSHR = config.MSHRAssoc
	case "S":
		cfg.MSHR = config.MSHRSectorAssoc
	default:
		return fmt.Errorf("cache geometry %q: unknown mshr kind %q", value, mshr[0])
	}
	entries, err := strconv.Atoi(mshr[1])
	if err != nil {
		return fmt.Errorf("cache geometry %q: bad mshr entries %q", value, mshr[1])
	}
	merge, err := strconv.Atoi(mshr[2])
	if err != nil {
		return fmt.Errorf("cache geometry %q: bad mshr merge %q", value, mshr[2])
	}
	cfg.MSHREntries = entries
	cfg.MSHRMaxMerge = merge

	tail := strings.Split(groups[3], ":")
	if len(tail) != 3 {
		return fmt.Errorf("cache geometry %q: expected missq:port:dirty", value)
	}
	missq, err := strconv.Atoi(tail[0])
	if err != nil {
		return fmt.Errorf("cache geometry %q: bad miss queue size %q", value, tail[0])
	}
	port, err := strconv.ParseUint(tail[1], 10, 32)
	if err != nil {
		return fmt.Errorf("cache geometry %q: bad data port width %q", value, tail[1])
	}
	dirty, err := strconv.Atoi(tail[2])
	if err != nil {
		return fmt.Errorf("cache geometry %q: bad dirty threshold %q", value, tail[2])
	}
	cfg.MissQueueSize = missq
	cfg.DataPortWidth = uint32(port)
	cfg.DirtyLineThreshold = dirty
	return nil
}

// Load applies an option file to the configuration.
func Load(r io.Reader, cfg *config.GPUConfig) error {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "-") {
			return fmt.Errorf("line %d: options start with '-', got %q", lineNumber, line)
		}
		name, value, found := strings.Cut(line[1:], " ")
		if !found {
			return fmt.Errorf("line %d: option %q missing value", lineNumber, name)
		}
		opt := findOption(name)
		if opt == nil {
			return fmt.Errorf("line %d: unknown option %q", lineNumber, name)
		}
		if err := opt.apply(cfg, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("line %d: option %q: %w", lineNumber, name, err)
		}
	}
	return scanner.Err()
}

// LoadConfigFile reads the named option file into the configuration.
func LoadConfigFile(path string, cfg *config.GPUConfig) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return Load(file, cfg)
}
