/*
 * GPGPU - Load store unit.
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

package core

import (
	"github.com/rcornwell/GPGPU/sim/cache"
	"github.com/rcornwell/GPGPU/sim/instr"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/sim/regset"
)

// pendingLoad tracks the accesses of a load still in the memory system.
type pendingLoad struct {
	w         *instr.WarpInstruction
	remaining int
}

// ldstUnit is the memory pipe of the core. It is not stallable against
// the result bus: loads write back on their own path when their last
// access returns, stores retire at issue and track acknowledgements on
// the warp.
type ldstUnit struct {
	core      *Core
	issuePort *regset.RegisterSet

	current    *instr.WarpInstruction
	nextAccess int

	response []*mem.Fetch

	pendingLoads map[uint64]*pendingLoad
}

func newLdstUnit(c *Core, issuePort *regset.RegisterSet) *ldstUnit {
	return &ldstUnit{
		core:         c,
		issuePort:    issuePort,
		pendingLoads: map[uint64]*pendingLoad{},
	}
}

// acceptResponse queues a data response from the interconnect.
func (l *ldstUnit) acceptResponse(fetch *mem.Fetch, cycle uint64) bool {
	if len(l.response) >= responseQueueSize {
		return false
	}
	fetch.SetStatus(mem.InShaderLdstResponseFIFO, cycle)
	l.response = append(l.response, fetch)
	return true
}

// busy while any memory work is in flight.
func (l *ldstUnit) busy() bool {
	return l.current != nil || len(l.response) > 0 || len(l.pendingLoads) > 0 ||
		l.core.l1d.HasReadyAccesses() || l.core.l1d.HasPendingRequests()
}

// cycle runs one LDST clock.
func (l *ldstUnit) cycle(cycle uint64) error {
	c := l.core
	c.l1d.Cycle(cycle)

	// Serviced L1 accesses complete their loads.
	for c.l1d.HasReadyAccesses() {
		l.completeFetch(c.l1d.NextAccess())
	}

	l.drainResponse(cycle)
	return l.dispatch(cycle)
}

// drainResponse moves the response FIFO head into the L1 or completes it
// directly.
func (l *ldstUnit) drainResponse(cycle uint64) {
	if len(l.response) == 0 {
		return
	}
	c := l.core
	fetch := l.response[0]

	if fetch.Kind == mem.WriteAck {
		l.response = l.response[1:]
		w := c.warps[fetch.WarpID]
		if w.NumOutstandingStores > 0 {
			w.NumOutstandingStores--
		}
		return
	}

	if c.l1d.WaitingForFill(fetch) {
		if !c.l1d.HasFreeFillPort() {
			return
		}
		l.response = l.response[1:]
		c.l1d.Fill(fetch, cycle)
		return
	}

	// Response the L1 never tracked, complete it directly.
	l.response = l.response[1:]
	l.completeFetch(fetch)
}

// dispatch pulls a new memory instruction from the operand collector and
// feeds its accesses into the L1, one per cycle.
func (l *ldstUnit) dispatch(cycle uint64) error {
	c := l.core
	if l.current == nil {
		if !l.issuePort.HasReady() {
			return nil
		}
		l.current = l.issuePort.TakeReady()
		l.nextAccess = 0
		if len(l.current.Accesses) == 0 {
			// Shared memory and predicated off instructions never
			// leave the core.
			l.writebackNow(l.current)
			l.current = nil
			return nil
		}
	}

	access := l.current.Accesses[l.nextAccess]
	w := c.warps[l.current.WarpID]
	kind := mem.ReadRequest
	if access.IsWrite {
		kind = mem.WriteRequest
	}
	fetch := mem.NewFetch(access, kind, l.current.WarpID, c.id, c.clusterID, c.dec)
	fetch.InstrUID = l.current.UID
	fetch.IsAtomic = l.current.IsAtomic

	var events []cache.Event
	status := c.l1d.Access(fetch, cycle, &events)
	if status == mem.ReservationFail {
		// Retry the same access next cycle.
		return nil
	}

	if access.IsWrite {
		// Stores that left the core wait for an acknowledgement.
		if cache.HasEvent(events, cache.WriteRequestSent) {
			w.NumOutstandingStores++
		}
	} else if status != mem.Hit {
		// The load's data arrives later through the MSHRs.
		pl := l.pendingLoads[l.current.UID]
		if pl == nil {
			pl = &pendingLoad{w: l.current}
			l.pendingLoads[l.current.UID] = pl
		}
		pl.remaining++
	}

	l.nextAccess++
	if l.nextAccess < len(l.current.Accesses) {
		return nil
	}

	// All accesses dispatched.
	finished := l.current
	l.current = nil
	if finished.IsStore {
		l.writebackNow(finished)
	} else if l.pendingLoads[finished.UID] == nil {
		// Every access hit, the load completes immediately.
		l.writebackNow(finished)
	}
	return nil
}

// completeFetch retires one returned load access, writing the load back
// when its last access arrives.
func (l *ldstUnit) completeFetch(fetch *mem.Fetch) {
	pl, ok := l.pendingLoads[fetch.InstrUID]
	if !ok {
		return
	}
	pl.remaining--
	if pl.remaining > 0 {
		return
	}
	delete(l.pendingLoads, fetch.InstrUID)
	l.writebackNow(pl.w)
}

// writebackNow retires an instruction through the LDST private writeback
// path.
func (l *ldstUnit) writebackNow(w *instr.WarpInstruction) {
	c := l.core
	c.rfu.Writeback(w)
	c.board.ReleaseAll(w.WarpID, w)
	c.warps[w.WarpID].NumInstrInPipeline--
	c.Count.Instructions += uint64(w.ActiveMask.Count())
}
