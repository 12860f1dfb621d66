/*
 * GPGPU - Top level simulator.
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
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rcornwell/GPGPU/sim/addrgen"
	"github.com/rcornwell/GPGPU/sim/cluster"
	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/core"
	"github.com/rcornwell/GPGPU/sim/interconn"
	"github.com/rcornwell/GPGPU/sim/kernel"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/sim/partition"
	"github.com/rcornwell/GPGPU/sim/stats"
	"github.com/rcornwell/GPGPU/sim/trace"
)

// Simulator owns the whole device and advances it cycle by cycle.
type Simulator struct {
	cfg    *config.GPUConfig
	dec    *addrgen.Decoder
	allocs mem.Allocations

	icnt       *interconn.Interconnect
	clusters   []*cluster.Cluster
	partitions []*partition.SubPartition

	kernels  []*kernel.Kernel
	launched map[int]bool

	sink  *stats.Sink
	cycle uint64

	parallel    bool
	nextCluster int
}

// New simulator. The configuration is validated here, bad geometry never
// constructs a device.
func New(cfg *config.GPUConfig, parallel bool) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dec := addrgen.NewDecoder(cfg.NumMemoryControllers, cfg.NumSubPartitionPerChannel)
	numNodes := cfg.NumClusters + cfg.NumSubPartitions()

	s := &Simulator{
		cfg:      cfg,
		dec:      dec,
		icnt:     interconn.New(numNodes, cfg.InterconnectLatency, cfg.ClusterEjectionBufferSize*2),
		launched: map[int]bool{},
		sink:     &stats.Sink{},
		parallel: parallel,
	}
	for id := range cfg.NumClusters {
		s.clusters = append(s.clusters, cluster.New(id, cfg, dec, &s.allocs, s.icnt))
	}
	for id := range cfg.NumSubPartitions() {
		s.partitions = append(s.partitions, partition.New(id, cfg, dec))
	}
	return s, nil
}

// Stats sink with the completed kernels.
func (s *Simulator) Stats() *stats.Sink {
	return s.sink
}

// Cycle count so far.
func (s *Simulator) Cycle() uint64 {
	return s.cycle
}

// Clusters of the device.
func (s *Simulator) Clusters() []*cluster.Cluster {
	return s.clusters
}

// Partitions of the device.
func (s *Simulator) Partitions() []*partition.SubPartition {
	return s.partitions
}

// Memcpy registers a host to device copy as an allocation.
func (s *Simulator) Memcpy(cmd *trace.MemcpyHtoD) {
	id := s.allocs.Insert(cmd.AllocID, cmd.Name, cmd.Addr, cmd.NumBytes)
	slog.Debug("memcpy h2d", "addr", fmt.Sprintf("%#x", cmd.Addr),
		"bytes", cmd.NumBytes, "allocation", id)
}

// Launch queues a kernel for execution.
func (s *Simulator) Launch(kt *trace.KernelTrace) error {
	kern, err := kernel.New(kt, s.cfg)
	if err != nil {
		return err
	}
	s.kernels = append(s.kernels, kern)
	slog.Info("kernel launched", "kernel", kern.ID(), "name", kern.Name(),
		"blocks", kern.NumBlocks(), "threads_per_block", kern.ThreadsPerBlock())
	return nil
}

// currentKernel selects the oldest unfinished kernel. Kernels execute in
// launch order.
func (s *Simulator) currentKernel() *kernel.Kernel {
	for _, kern := range s.kernels {
		if !kern.Done() {
			return kern
		}
	}
	return nil
}

// Step advances the device one core clock: responses drain to clusters,
// cores cycle, the interconnect propagates, partitions and DRAM cycle,
// then new blocks issue.
func (s *Simulator) Step() error {
	// Responses from the interconnect into the cluster FIFOs.
	for id, cl := range s.clusters {
		if fetch := s.icnt.Peek(id); fetch != nil {
			if cl.AcceptResponse(fetch, s.cycle) {
				s.icnt.Pop(id)
			}
		}
	}

	// Core cycles, optionally spread over the machine's processors.
	// Cores only share the lock protected interconnect queues.
	if s.parallel && len(s.clusters) > 1 {
		var group errgroup.Group
		for _, cl := range s.clusters {
			group.Go(func() error {
				return cl.Cycle(s.cycle)
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
	} else {
		for _, cl := range s.clusters {
			if err := cl.Cycle(s.cycle); err != nil {
				return err
			}
		}
	}

	s.icnt.Advance()

	// Memory side: eject replies toward clusters, accept new requests,
	// cycle the partitions.
	for id, sub := range s.partitions {
		node := s.cfg.NumClusters + id
		if fetch := sub.TopPeek(); fetch != nil {
			if s.icnt.HasBuffer(fetch.ClusterID, fetch.Size()) {
				sub.TopPop()
				fetch.SetStatus(mem.InIcntToShader, s.cycle)
				s.icnt.Push(node, fetch.ClusterID, fetch)
			}
		}
		if fetch := s.icnt.Peek(node); fetch != nil && !sub.Full() {
			s.icnt.Pop(node)
			sub.Push(fetch, s.cycle)
		}
		sub.Cycle(s.cycle)
	}

	s.issueBlocks()
	s.cycle++
	s.finalizeCompleted()
	return nil
}

// issueBlocks hands blocks of the running kernel to clusters round
// robin.
func (s *Simulator) issueBlocks() {
	kern := s.currentKernel()
	if kern == nil {
		return
	}
	if !s.launched[kern.ID()] {
		s.launched[kern.ID()] = true
		kern.LaunchedCycle = s.cycle
	}
	numClusters := len(s.clusters)
	for range numClusters {
		if kern.NoMoreBlocksToRun() {
			break
		}
		cl := s.clusters[s.nextCluster]
		s.nextCluster = (s.nextCluster + 1) % numClusters
		cl.IssueBlock(kern, s.cycle)
	}
}

// finalizeCompleted collects statistics of kernels that fully drained.
func (s *Simulator) finalizeCompleted() {
	for _, kern := range s.kernels {
		if !s.launched[kern.ID()] || kern.CompletedAt != 0 || !kern.Done() {
			continue
		}
		if s.busy() {
			// Let in flight writebacks and stores drain first.
			return
		}
		kern.CompletedAt = s.cycle
		kern.Stats.Cycles = s.cycle - kern.LaunchedCycle
		s.collectStats(kern)
		s.sink.Add(kern.Stats)
		slog.Info("kernel completed", "kernel", kern.ID(), "cycles", kern.Stats.Cycles)
		for _, sub := range s.partitions {
			sub.FlushL2(s.cycle)
		}
	}
}

// collectStats merges and resets every component counter into the
// kernel's record. Kernels run serially, the counters since the last
// collection belong to this kernel.
func (s *Simulator) collectStats(kern *kernel.Kernel) {
	for _, cl := range s.clusters {
		for _, c := range cl.Cores() {
			kern.Stats.L1I.Merge(c.L1I().Stats())
			kern.Stats.L1D.Merge(c.L1D().Stats())
			c.L1I().Stats().Reset()
			c.L1D().Stats().Reset()

			kern.Stats.Instructions += c.Count.Instructions
			kern.Stats.IssuedInstr += c.Count.IssuedInstr
			kern.Stats.SchedulerStalls += c.Count.SchedulerStalls
			kern.Stats.NumMemAccesses += c.Count.MemAccesses
			c.Count = core.Counters{}
		}
	}
	for _, sub := range s.partitions {
		kern.Stats.L2.Merge(sub.L2().Stats())
		sub.L2().Stats().Reset()
		kern.Stats.DRAMReads += sub.DRAMReads
		kern.Stats.DRAMWrites += sub.DRAMWrites
		sub.DRAMReads = 0
		sub.DRAMWrites = 0
	}
}

// busy when any component still holds in flight work.
func (s *Simulator) busy() bool {
	for _, cl := range s.clusters {
		if cl.Active() {
			return true
		}
	}
	if s.icnt.Busy() {
		return true
	}
	for _, sub := range s.partitions {
		if sub.Busy() {
			return true
		}
	}
	return false
}

// Done when every kernel completed and the machine drained.
func (s *Simulator) Done() bool {
	for _, kern := range s.kernels {
		if !kern.Done() || kern.CompletedAt == 0 {
			return false
		}
	}
	return !s.busy()
}

// LimitReached against the configured cycle budget.
func (s *Simulator) LimitReached() bool {
	return s.cfg.CycleLimit > 0 && s.cycle >= s.cfg.CycleLimit
}

// RunToCompletion drives the cycle loop until every kernel drains, the
// cycle budget runs out, or the context is cancelled.
func (s *Simulator) RunToCompletion(ctx context.Context) error {
	for !s.Done() {
		if s.LimitReached() {
			slog.Warn("cycle limit reached", "cycle", s.cycle)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}
