/*
 * GPGPU - Configuration parser test cases.
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
	"strings"
	"testing"

	"github.com/rcornwell/GPGPU/sim/config"
)

func TestLoadBasicOptions(t *testing.T) {
	text := `
# test configuration
-num_simt_clusters 4
-num_cores_per_simt_cluster 2
-max_warps_per_core 32
-max_threads_per_core 1024
-num_schedulers_per_core 4
-sub_core_model 1
-local_mem_map true
-num_memory_controllers 2
-num_sub_partition_per_memory_channel 2
`
	cfg := config.Default()
	if err := Load(strings.NewReader(text), cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NumClusters != 4 {
		t.Errorf("NumClusters not correct got: %d expected: %d", cfg.NumClusters, 4)
	}
	if cfg.NumCoresPerCluster != 2 {
		t.Errorf("NumCoresPerCluster not correct got: %d expected: %d", cfg.NumCoresPerCluster, 2)
	}
	if cfg.MaxWarpsPerCore != 32 {
		t.Errorf("MaxWarpsPerCore not correct got: %d expected: %d", cfg.MaxWarpsPerCore, 32)
	}
	if !cfg.SubCoreModel {
		t.Error("SubCoreModel should be set")
	}
	if !cfg.LocalMemMap {
		t.Error("LocalMemMap should be set")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadCacheGeometry(t *testing.T) {
	text := "-cache:dl1 32:128:8:32,LBmW,A:64:16,8:32:100\n"
	cfg := config.Default()
	if err := Load(strings.NewReader(text), cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c := cfg.L1DCache
	if c.NumSets != 32 || c.LineSize != 128 || c.Associativity != 8 || c.AtomSize != 32 {
		t.Errorf("Geometry not correct got: %d:%d:%d:%d", c.NumSets, c.LineSize, c.Associativity, c.AtomSize)
	}
	if c.Replacement != config.LRU {
		t.Errorf("Replacement not correct got: %v expected: %v", c.Replacement, config.LRU)
	}
	if c.Write != config.WriteBack {
		t.Errorf("Write policy not correct got: %v expected: %v", c.Write, config.WriteBack)
	}
	if c.Allocate != config.OnMiss {
		t.Errorf("Allocate policy not correct got: %v expected: %v", c.Allocate, config.OnMiss)
	}
	if c.WriteAlloc != config.WriteAllocate {
		t.Errorf("Write allocate policy not correct got: %v expected: %v", c.WriteAlloc, config.WriteAllocate)
	}
	if c.MSHREntries != 64 || c.MSHRMaxMerge != 16 {
		t.Errorf("MSHR not correct got: %d:%d expected: 64:16", c.MSHREntries, c.MSHRMaxMerge)
	}
	if c.MissQueueSize != 8 || c.DataPortWidth != 32 || c.DirtyLineThreshold != 100 {
		t.Errorf("Queue group not correct got: %d:%d:%d", c.MissQueueSize, c.DataPortWidth, c.DirtyLineThreshold)
	}
}

func TestLoadUnknownOption(t *testing.T) {
	cfg := config.Default()
	err := Load(strings.NewReader("-no_such_option 1\n"), cfg)
	if err == nil {
		t.Error("Unknown option should be an error")
	}
}

func TestLoadBadValue(t *testing.T) {
	cfg := config.Default()
	err := Load(strings.NewReader("-num_simt_clusters twenty\n"), cfg)
	if err == nil {
		t.Error("Bad value should be an error")
	}
}

func TestUnimplementedWriteAllocateRejected(t *testing.T) {
	// Lazy fetch on read parses but construction refuses it.
	text := "-cache:dl1 32:128:8:32,LBmL,A:64:16,8:32:100\n"
	cfg := config.Default()
	if err := Load(strings.NewReader(text), cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("LAZY_FETCH_ON_READ should fail validation")
	}
}
