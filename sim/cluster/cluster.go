/*
 * GPGPU - Core cluster.
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

package cluster

import (
	"github.com/rcornwell/GPGPU/sim/addrgen"
	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/core"
	"github.com/rcornwell/GPGPU/sim/interconn"
	"github.com/rcornwell/GPGPU/sim/kernel"
	"github.com/rcornwell/GPGPU/sim/mem"
)

// Cluster groups cores behind one interconnect node and the response
// FIFO draining it.
type Cluster struct {
	id          int
	cfg         *config.GPUConfig
	icnt        *interconn.Interconnect
	numClusters int

	cores    []*core.Core
	response []*mem.Fetch

	nextIssueCore int
}

// memPort is the interface cores push their memory traffic through. The
// destination node follows from the fetch's decoded sub partition.
type memPort struct {
	cl *Cluster
}

func (p memPort) node(fetch *mem.Fetch) int {
	return p.cl.numClusters + int(fetch.PhysAddr.SubPartition)
}

func (p memPort) HasBuffer(fetch *mem.Fetch) bool {
	return p.cl.icnt.HasBuffer(p.node(fetch), fetch.Size())
}

func (p memPort) Push(fetch *mem.Fetch, cycle uint64) {
	p.cl.icnt.Push(p.cl.id, p.node(fetch), fetch)
}

// New cluster with its cores.
func New(id int, cfg *config.GPUConfig, dec *addrgen.Decoder,
	allocs *mem.Allocations, icnt *interconn.Interconnect) *Cluster {
	cl := &Cluster{
		id:          id,
		cfg:         cfg,
		icnt:        icnt,
		numClusters: cfg.NumClusters,
	}
	for i := range cfg.NumCoresPerCluster {
		coreID := id*cfg.NumCoresPerCluster + i
		cl.cores = append(cl.cores, core.New(coreID, id, cfg, dec, allocs, memPort{cl: cl}))
	}
	return cl
}

// ID of the cluster.
func (cl *Cluster) ID() int {
	return cl.id
}

// Cores of the cluster.
func (cl *Cluster) Cores() []*core.Core {
	return cl.cores
}

// AcceptResponse takes one fetch popped from the interconnect. Returns
// false when the ejection buffer is full.
func (cl *Cluster) AcceptResponse(fetch *mem.Fetch, cycle uint64) bool {
	if len(cl.response) >= cl.cfg.ClusterEjectionBufferSize {
		return false
	}
	fetch.SetStatus(mem.InClusterToShaderQueue, cycle)
	cl.response = append(cl.response, fetch)
	return true
}

// Cycle drains the response FIFO into the owning core, then cycles every
// core.
func (cl *Cluster) Cycle(cycle uint64) error {
	if len(cl.response) > 0 {
		fetch := cl.response[0]
		local := fetch.CoreID - cl.id*cl.cfg.NumCoresPerCluster
		if local >= 0 && local < len(cl.cores) {
			if cl.cores[local].AcceptResponse(fetch, cycle) {
				cl.response = cl.response[1:]
			}
		} else {
			// Misrouted response, drop it rather than wedge the FIFO.
			cl.response = cl.response[1:]
		}
	}
	for _, c := range cl.cores {
		if err := c.Cycle(cycle); err != nil {
			return err
		}
	}
	return nil
}

// IssueBlock offers the kernel's next block to the cores round robin.
func (cl *Cluster) IssueBlock(kern *kernel.Kernel, cycle uint64) bool {
	numCores := len(cl.cores)
	for i := range numCores {
		c := cl.cores[(cl.nextIssueCore+i)%numCores]
		if c.IssueBlock(kern, cycle) {
			cl.nextIssueCore = (cl.nextIssueCore + i + 1) % numCores
			return true
		}
	}
	return false
}

// Active when any core still has work or responses wait.
func (cl *Cluster) Active() bool {
	if len(cl.response) > 0 {
		return true
	}
	for _, c := range cl.cores {
		if c.Active() {
			return true
		}
	}
	return false
}
