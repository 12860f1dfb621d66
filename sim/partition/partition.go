/*
 * GPGPU - Memory sub partition with L2 slice and DRAM model.
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

package partition

import (
	"fmt"

	"github.com/rcornwell/GPGPU/sim/addrgen"
	"github.com/rcornwell/GPGPU/sim/cache"
	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/mem"
)

// Per direction queue depth inside a sub partition.
const queueSize = 8

type delayed struct {
	fetch   *mem.Fetch
	readyAt uint64
}

// SubPartition owns one L2 slice and the queues between interconnect,
// L2 and its DRAM channel.
type SubPartition struct {
	id  int
	cfg *config.GPUConfig
	dec *addrgen.Decoder

	l2 *cache.Data

	icntToL2 []*mem.Fetch
	l2ToIcnt []*mem.Fetch
	l2ToDram []*mem.Fetch
	dramToL2 []*mem.Fetch

	dramLatency []delayed

	DRAMReads  uint64
	DRAMWrites uint64
}

// dramPort is the L2 cache's outgoing port into the l2ToDram queue.
type dramPort struct {
	sub *SubPartition
}

func (p dramPort) CanFit(fetch *mem.Fetch) bool {
	return len(p.sub.l2ToDram) < queueSize
}

func (p dramPort) Push(fetch *mem.Fetch, cycle uint64) {
	fetch.SetStatus(mem.InPartitionL2ToDramQueue, cycle)
	p.sub.l2ToDram = append(p.sub.l2ToDram, fetch)
}

// New sub partition.
func New(id int, cfg *config.GPUConfig, dec *addrgen.Decoder) *SubPartition {
	sub := &SubPartition{id: id, cfg: cfg, dec: dec}
	sub.l2 = cache.NewL2Data(fmt.Sprintf("l2_%d", id), &cfg.L2Cache, id, dramPort{sub: sub}, dec)
	return sub
}

// ID of the sub partition.
func (s *SubPartition) ID() int {
	return s.id
}

// L2 slice, for statistics collection.
func (s *SubPartition) L2() *cache.Data {
	return s.l2
}

// Full reports whether the incoming queue cannot accept another fetch.
func (s *SubPartition) Full() bool {
	return len(s.icntToL2) >= queueSize
}

// Push a fetch arriving from the interconnect.
func (s *SubPartition) Push(fetch *mem.Fetch, cycle uint64) {
	fetch.SetStatus(mem.InPartitionIcntToL2Queue, cycle)
	s.icntToL2 = append(s.icntToL2, fetch)
}

// TopPop removes the next response headed back to the interconnect.
func (s *SubPartition) TopPop() *mem.Fetch {
	if len(s.l2ToIcnt) == 0 {
		return nil
	}
	fetch := s.l2ToIcnt[0]
	s.l2ToIcnt = s.l2ToIcnt[1:]
	return fetch
}

// TopPeek returns the next response without removing it.
func (s *SubPartition) TopPeek() *mem.Fetch {
	if len(s.l2ToIcnt) == 0 {
		return nil
	}
	return s.l2ToIcnt[0]
}

// Busy when any queue still holds work.
func (s *SubPartition) Busy() bool {
	return len(s.icntToL2) > 0 || len(s.l2ToIcnt) > 0 || len(s.l2ToDram) > 0 ||
		len(s.dramToL2) > 0 || len(s.dramLatency) > 0 || s.l2.HasReadyAccesses()
}

// Cycle advances the sub partition one memory clock.
func (s *SubPartition) Cycle(cycle uint64) {
	// Serviced L2 reads turn into replies toward the cores.
	if s.l2.HasReadyAccesses() && len(s.l2ToIcnt) < queueSize {
		fetch := s.l2.NextAccess()
		// Write allocate reads stay partition internal, everything
		// else answers a core.
		if fetch.Access.Kind != mem.L2WrAllocR && fetch.Access.Kind != mem.L1WrbkAcc {
			fetch.MakeReply()
			fetch.SetStatus(mem.InPartitionL2ToIcntQueue, cycle)
			s.l2ToIcnt = append(s.l2ToIcnt, fetch)
		}
	}

	// DRAM fills drain into the L2 when its fill port is free.
	if len(s.dramToL2) > 0 && s.l2.HasFreeFillPort() {
		fetch := s.dramToL2[0]
		s.dramToL2 = s.dramToL2[1:]
		s.l2.Fill(fetch, cycle)
	}

	// New work from the interconnect.
	s.serviceIncoming(cycle)

	// L2 pushes its misses and writebacks toward DRAM.
	s.l2.Cycle(cycle)

	// DRAM latency pipe.
	s.cycleDram(cycle)
}

// serviceIncoming runs the head of the icntToL2 queue through the L2.
func (s *SubPartition) serviceIncoming(cycle uint64) {
	if len(s.icntToL2) == 0 {
		return
	}
	// A serviced request may need a reply slot.
	if len(s.l2ToIcnt) >= queueSize {
		return
	}
	fetch := s.icntToL2[0]

	var events []cache.Event
	status := s.l2.Access(fetch, cycle, &events)
	if status == mem.ReservationFail {
		// Head retries next cycle, order preserved.
		return
	}
	s.icntToL2 = s.icntToL2[1:]

	switch {
	case fetch.IsWrite():
		// Writebacks from the L1 are absorbed, stores are acknowledged
		// so the core can retire them. The acknowledgement is a fresh
		// fetch, the original may still be on its way to DRAM.
		if fetch.Access.Kind == mem.L1WrbkAcc || fetch.Access.Kind == mem.L2WrbkAcc {
			return
		}
		ack := mem.NewFetch(fetch.Access, mem.WriteAck, fetch.WarpID, fetch.CoreID, fetch.ClusterID, nil)
		ack.PhysAddr = fetch.PhysAddr
		ack.SetStatus(mem.InPartitionL2ToIcntQueue, cycle)
		s.l2ToIcnt = append(s.l2ToIcnt, ack)
	case status == mem.Hit:
		fetch.MakeReply()
		fetch.SetStatus(mem.InPartitionL2ToIcntQueue, cycle)
		s.l2ToIcnt = append(s.l2ToIcnt, fetch)
	default:
		// Miss: the reply is produced when the DRAM fill returns.
	}
}

// cycleDram models the DRAM channel as a latency queue.
func (s *SubPartition) cycleDram(cycle uint64) {
	if len(s.l2ToDram) > 0 && len(s.dramLatency) < queueSize {
		fetch := s.l2ToDram[0]
		s.l2ToDram = s.l2ToDram[1:]
		if fetch.IsWrite() {
			s.DRAMWrites++
		} else {
			s.DRAMReads++
		}
		fetch.SetStatus(mem.InPartitionDramLatencyQueue, cycle)
		s.dramLatency = append(s.dramLatency, delayed{
			fetch:   fetch,
			readyAt: cycle + uint64(s.cfg.DRAMLatency),
		})
	}

	if len(s.dramLatency) > 0 && s.dramLatency[0].readyAt <= cycle && len(s.dramToL2) < queueSize {
		fetch := s.dramLatency[0].fetch
		s.dramLatency = s.dramLatency[1:]
		if fetch.IsWrite() {
			// DRAM absorbs writes, nothing flows back.
			return
		}
		fetch.MakeReply()
		fetch.SetStatus(mem.InPartitionDramToL2Queue, cycle)
		s.dramToL2 = append(s.dramToL2, fetch)
	}
}

// FlushL2 pushes writebacks for all dirty L2 lines toward DRAM. Returns
// the number of lines written back.
func (s *SubPartition) FlushL2(cycle uint64) int {
	return s.l2.FlushL2(cycle)
}
