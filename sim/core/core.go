/*
 * GPGPU - Streaming multiprocessor pipeline.
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
	"fmt"
	"log/slog"

	"github.com/rcornwell/GPGPU/sim/addrgen"
	"github.com/rcornwell/GPGPU/sim/barrier"
	"github.com/rcornwell/GPGPU/sim/cache"
	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/funcunit"
	"github.com/rcornwell/GPGPU/sim/instr"
	"github.com/rcornwell/GPGPU/sim/kernel"
	"github.com/rcornwell/GPGPU/sim/mem"
	"github.com/rcornwell/GPGPU/sim/opcodes"
	"github.com/rcornwell/GPGPU/sim/opcollect"
	"github.com/rcornwell/GPGPU/sim/regset"
	"github.com/rcornwell/GPGPU/sim/scheduler"
	"github.com/rcornwell/GPGPU/sim/scoreboard"
	"github.com/rcornwell/GPGPU/sim/warp"
	"github.com/rcornwell/GPGPU/util/bitset"
)

const responseQueueSize = 8

// MemInterface is the cluster side port cores push memory traffic into.
type MemInterface interface {
	HasBuffer(fetch *mem.Fetch) bool
	Push(fetch *mem.Fetch, cycle uint64)
}

// memPortAdapter turns the cluster interface into the cache MemPort.
type memPortAdapter struct {
	core *Core
}

func (p memPortAdapter) CanFit(fetch *mem.Fetch) bool {
	return p.core.memIface.HasBuffer(fetch)
}

func (p memPortAdapter) Push(fetch *mem.Fetch, cycle uint64) {
	fetch.SetStatus(mem.InIcntToMem, cycle)
	p.core.memIface.Push(fetch, cycle)
}

// instrFetchBuffer holds one fetched line worth of trace instructions
// waiting for decode.
type instrFetchBuffer struct {
	valid  bool
	warpID int
}

// threadState of one hardware thread slot.
type threadState struct {
	active    bool
	blockHWID int
}

// Counters the core accumulates per kernel.
type Counters struct {
	Instructions    uint64
	IssuedInstr     uint64
	SchedulerStalls uint64
	MemAccesses     uint64
}

// Core is one streaming multiprocessor: warp table, five stage pipeline,
// instruction and data L1 caches.
type Core struct {
	id        int // Global core id.
	clusterID int
	cfg       *config.GPUConfig
	dec       *addrgen.Decoder
	allocs    *mem.Allocations
	memIface  MemInterface

	warps      []*warp.Warp
	threads    []threadState
	schedulers []*scheduler.GTO
	schedPrio  int
	board      *scoreboard.Scoreboard
	barriers   *barrier.Set
	rfu        *opcollect.RegisterFileUnit

	l1i *cache.ReadOnly
	l1d *cache.Data

	// Pipeline stages, ID to operand collector and collector to execute
	// per unit class, one shared writeback stage.
	idOC map[string]*regset.RegisterSet
	ocEX map[string]*regset.RegisterSet
	exWB *regset.RegisterSet

	units []*unitSlot
	ldst  *ldstUnit

	resultBus uint64

	ifetch          instrFetchBuffer
	lastWarpFetched int

	instrResponse []*mem.Fetch

	currentKernel *kernel.Kernel
	blockStatus   map[int]int
	blockLinear   map[int]uint64
	numBlocks     int
	dynWarpNext   int
	instrUIDNext  uint64

	Count Counters
}

// New core. The global core id and owning cluster id identify it in
// fetches it originates.
func New(id, clusterID int, cfg *config.GPUConfig, dec *addrgen.Decoder,
	allocs *mem.Allocations, memIface MemInterface) *Core {
	c := &Core{
		id:          id,
		clusterID:   clusterID,
		cfg:         cfg,
		dec:         dec,
		allocs:      allocs,
		memIface:    memIface,
		threads:     make([]threadState, cfg.MaxThreadsPerCore),
		board:       scoreboard.New(cfg.MaxWarpsPerCore),
		barriers:    barrier.New(cfg.MaxBarriersPerBlock),
		blockStatus: map[int]int{},
		blockLinear: map[int]uint64{},
	}

	for i := range cfg.MaxWarpsPerCore {
		c.warps = append(c.warps, warp.New(i))
	}
	for i := range cfg.NumSchedulersPerCore {
		c.schedulers = append(c.schedulers, scheduler.New(i))
	}
	// Warps distribute over schedulers round robin.
	for i, w := range c.warps {
		c.schedulers[i%len(c.schedulers)].Supervise(w)
	}

	c.l1i = cache.NewReadOnly(fmt.Sprintf("l1i_%d", id), &cfg.L1ICache, id, clusterID,
		memPortAdapter{core: c}, dec)
	c.l1d = cache.NewL1Data(fmt.Sprintf("l1d_%d", id), &cfg.L1DCache, id, clusterID,
		memPortAdapter{core: c}, dec)

	c.buildPipeline()
	return c
}

// unitSlot pairs a functional unit with nothing else, it exists so the
// execute stage can range over a stable order.
type unitSlot struct {
	unit stallableUnit
}

// stallableUnit is the surface the execute stage drives.
type stallableUnit interface {
	CanIssue(w *instr.WarpInstruction) bool
	Issue(w *instr.WarpInstruction)
	Cycle()
	Busy() bool
	IssuePort() *regset.RegisterSet
}

// ID of the core.
func (c *Core) ID() int {
	return c.id
}

// L1I cache.
func (c *Core) L1I() *cache.ReadOnly {
	return c.l1i
}

// L1D cache.
func (c *Core) L1D() *cache.Data {
	return c.l1d
}

// Warps table.
func (c *Core) Warps() []*warp.Warp {
	return c.warps
}

// Active when any block is resident or pipeline work remains.
func (c *Core) Active() bool {
	if c.numBlocks > 0 || c.ifetch.valid || len(c.instrResponse) > 0 {
		return true
	}
	if c.ldst.busy() || c.rfu.Busy() || c.exWB.HasReady() {
		return true
	}
	if c.l1i.HasPendingRequests() || c.l1i.HasReadyAccesses() {
		return true
	}
	for _, slot := range c.units {
		if slot.unit.Busy() {
			return true
		}
	}
	return false
}

// AcceptResponse routes a fetch returning from the interconnect into the
// core. Returns false when the response queue is full this cycle.
func (c *Core) AcceptResponse(fetch *mem.Fetch, cycle uint64) bool {
	if fetch.Access.Kind == mem.InstAccR {
		if len(c.instrResponse) >= responseQueueSize {
			return false
		}
		fetch.SetStatus(mem.InClusterToShaderQueue, cycle)
		c.instrResponse = append(c.instrResponse, fetch)
		return true
	}
	return c.ldst.acceptResponse(fetch, cycle)
}

// Cycle advances the core one clock: writeback, execute, the operand
// collector as many times as the register file ports allow, issue, then
// decode and fetch to refill the instruction buffers.
func (c *Core) Cycle(cycle uint64) error {
	c.writeback(cycle)
	if err := c.execute(cycle); err != nil {
		return err
	}
	for range c.cfg.RegFilePortThroughput {
		c.rfu.Step()
	}
	if err := c.issue(cycle); err != nil {
		return err
	}
	for range c.cfg.InstFetchThroughput {
		c.decode(cycle)
		c.fetch(cycle)
	}
	return nil
}

// buildPipeline creates the register sets, operand collector ports and
// functional units.
func (c *Core) buildPipeline() {
	width := c.cfg.NumSchedulersPerCore
	c.idOC = map[string]*regset.RegisterSet{}
	c.ocEX = map[string]*regset.RegisterSet{}
	for _, name := range []string{opcollect.SetSP, opcollect.SetDP, opcollect.SetInt,
		opcollect.SetSFU, opcollect.SetMem} {
		c.idOC[name] = regset.New("id_oc_"+name, width)
		c.ocEX[name] = regset.New("oc_ex_"+name, width)
	}
	c.exWB = regset.New("ex_wb", width*2)

	c.rfu = opcollect.New(c.cfg.NumRegBanks, c.cfg.OperandCollectorUnits)
	for _, name := range []string{opcollect.SetSP, opcollect.SetDP, opcollect.SetInt,
		opcollect.SetSFU, opcollect.SetMem} {
		sets := []string{name, opcollect.SetGen}
		c.rfu.AddPort([]*regset.RegisterSet{c.idOC[name]}, c.ocEX[name], sets)
	}

	c.addUnits(opcollect.SetSP, funcunit.SP, c.cfg.NumSPUnits)
	c.addUnits(opcollect.SetDP, funcunit.DP, c.cfg.NumDPUnits)
	c.addUnits(opcollect.SetInt, funcunit.INT, c.cfg.NumIntUnits)
	c.addUnits(opcollect.SetSFU, funcunit.SFU, c.cfg.NumSFUUnits)

	c.ldst = newLdstUnit(c, c.ocEX[opcollect.SetMem])
}

// fetch refills the instruction fetch buffer, reclaiming finished warps
// on the way.
func (c *Core) fetch(cycle uint64) {
	// Drain a ready instruction cache access first.
	if !c.ifetch.valid {
		c.drainInstrResponses(cycle)
		if c.l1i.HasReadyAccesses() {
			fetch := c.l1i.NextAccess()
			w := c.warps[fetch.WarpID]
			w.HasIMissPending = false
			c.ifetch = instrFetchBuffer{valid: true, warpID: fetch.WarpID}
			return
		}
	}
	if c.ifetch.valid {
		c.l1i.Cycle(cycle)
		return
	}

	numWarps := len(c.warps)
	for i := 1; i <= numWarps; i++ {
		warpID := (c.lastWarpFetched + i) % numWarps
		w := c.warps[warpID]
		if w.DynamicWarpID == -1 {
			continue
		}

		// Reclaim warps whose work fully drained.
		if w.HardwareDone() && c.board.PendingWrites(warpID) == 0 &&
			w.StoresDone() && !w.DoneExit {
			c.lastWarpFetched = warpID
			c.reclaimWarp(w)
			continue
		}

		if w.FunctionalDone() || !w.IBufferEmpty() || w.HasIMissPending || w.DoneExit {
			continue
		}

		c.lastWarpFetched = warpID
		if c.cfg.PerfectInstConstCache {
			c.ifetch = instrFetchBuffer{valid: true, warpID: warpID}
			break
		}

		pc, _ := w.PC()
		addr := config.ProgramMemStart + pc
		offset := addr % uint64(c.cfg.L1ICache.LineSize)
		size := min(uint64(c.cfg.L1ICache.LineSize)-offset, 16)

		access := mem.Access{
			Kind:     mem.InstAccR,
			Addr:     addr,
			Size:     uint32(size),
			WarpMask: w.ActiveMask,
		}
		fetch := mem.NewFetch(access, mem.ReadRequest, warpID, c.id, c.clusterID, c.dec)
		var events []cache.Event
		status := c.l1i.Access(fetch, cycle, &events)
		switch status {
		case mem.Hit:
			c.ifetch = instrFetchBuffer{valid: true, warpID: warpID}
		case mem.Miss:
			w.HasIMissPending = true
		default:
			// Reservation failures retry silently next cycle.
		}
		break
	}
	c.l1i.Cycle(cycle)
}

// drainInstrResponses fills the instruction cache from returned misses.
func (c *Core) drainInstrResponses(cycle uint64) {
	if len(c.instrResponse) == 0 || !c.l1i.HasFreeFillPort() {
		return
	}
	fetch := c.instrResponse[0]
	c.instrResponse = c.instrResponse[1:]
	c.l1i.Fill(fetch, cycle)
}

// reclaimWarp deactivates a drained warp's threads and releases block
// resources when the last thread leaves.
func (c *Core) reclaimWarp(w *warp.Warp) {
	w.DoneExit = true
	blockHWID := w.BlockHWID
	c.barriers.WarpExited(blockHWID, w.WarpID)
	for lane := range c.cfg.WarpSize {
		if !w.ActiveMask.Test(lane) {
			continue
		}
		c.threads[w.WarpID*c.cfg.WarpSize+lane] = threadState{}
		c.registerThreadExited(blockHWID)
	}
}

// registerThreadExited decrements the block's thread count, releasing
// the block when it reaches zero.
func (c *Core) registerThreadExited(blockHWID int) {
	c.blockStatus[blockHWID]--
	if c.blockStatus[blockHWID] > 0 {
		return
	}
	// Last thread out: drop barrier state and free the warp slots.
	delete(c.blockStatus, blockHWID)
	delete(c.blockLinear, blockHWID)
	c.barriers.DeallocateBlock(blockHWID)
	c.numBlocks--
	for _, w := range c.warps {
		if w.BlockHWID == blockHWID && w.DynamicWarpID != -1 {
			w.Reset()
		}
	}
	if c.currentKernel != nil {
		c.currentKernel.BlockCompleted()
		slog.Debug("block completed", "core", c.id, "block_hw_id", blockHWID,
			"kernel", c.currentKernel.ID())
		if c.numBlocks == 0 && c.currentKernel.NoMoreBlocksToRun() {
			if c.cfg.FlushL1Cache {
				c.l1d.FlushL1()
			}
			c.currentKernel = nil
		}
	}
}

// decode pops trace instructions for the fetched warp into its buffer.
func (c *Core) decode(cycle uint64) {
	if !c.ifetch.valid {
		return
	}
	w := c.warps[c.ifetch.warpID]
	c.ifetch.valid = false
	for _, instruction := range w.NextTraceInstructions(warp.IBufferSize) {
		w.IBufferFill(instruction)
		w.NumInstrInPipeline++
	}
}

// issue runs every scheduler, rotating priority for fairness.
func (c *Core) issue(cycle uint64) error {
	numSched := len(c.schedulers)
	for i := range numSched {
		sched := c.schedulers[(c.schedPrio+i)%numSched]
		if err := c.issueScheduler(sched, cycle); err != nil {
			return err
		}
	}
	c.schedPrio = (c.schedPrio + 1) % numSched
	return nil
}

// warpEligible for ordering purposes.
func (c *Core) warpEligible(w *warp.Warp) bool {
	return w.Active() && !w.IBufferEmpty() &&
		!c.barriers.IsWaitingAtBarrier(w.WarpID) && !w.WaitingForMemBarrier
}

// issueScheduler picks one warp in GTO order and issues its next
// instruction into the ID to operand collector stage.
func (c *Core) issueScheduler(sched *scheduler.GTO, cycle uint64) error {
	for _, w := range sched.Order(c.warpEligible) {
		if !w.Active() || w.IBufferEmpty() {
			continue
		}
		if c.barriers.IsWaitingAtBarrier(w.WarpID) {
			continue
		}
		if w.WaitingForMemBarrier {
			if c.board.PendingWrites(w.WarpID) == 0 && w.StoresDone() {
				w.WaitingForMemBarrier = false
			} else {
				continue
			}
		}

		instruction := w.IBufferPeek()
		if c.board.HasCollision(w.WarpID, instruction) {
			c.Count.SchedulerStalls++
			continue
		}

		target := c.targetStage(instruction.Category)
		var ok bool
		if c.cfg.SubCoreModel {
			ok = target.HasFreeSub(sched.ID)
		} else {
			ok = target.HasFree()
		}
		if !ok {
			c.Count.SchedulerStalls++
			continue
		}

		if err := c.issueInstruction(w, sched, target, cycle); err != nil {
			return err
		}
		sched.SetLastIssued(w)
		return nil
	}
	return nil
}

// targetStage for an instruction category. Classes without configured
// units fold into the SP pipe.
func (c *Core) targetStage(category opcodes.Category) *regset.RegisterSet {
	switch category {
	case opcodes.LoadOp, opcodes.StoreOp:
		return c.idOC[opcollect.SetMem]
	case opcodes.DPOp:
		if c.cfg.NumDPUnits > 0 {
			return c.idOC[opcollect.SetDP]
		}
	case opcodes.SFUOp:
		if c.cfg.NumSFUUnits > 0 {
			return c.idOC[opcollect.SetSFU]
		}
	case opcodes.IntOp:
		if c.cfg.NumIntUnits > 0 {
			return c.idOC[opcollect.SetInt]
		}
	}
	return c.idOC[opcollect.SetSP]
}

// issueInstruction moves the buffered instruction into the pipeline and
// applies its per lane issue effects.
func (c *Core) issueInstruction(w *warp.Warp, sched *scheduler.GTO,
	target *regset.RegisterSet, cycle uint64) error {
	instruction := w.IBufferPop()

	c.instrUIDNext++
	instruction.UID = c.instrUIDNext
	instruction.WarpID = w.WarpID
	instruction.SchedulerID = sched.ID
	instruction.IssueCycle = cycle
	instruction.DispatchDelay = instruction.InitInterval

	switch {
	case instruction.IsExit():
		// Threads retire when the warp drains, nothing per lane here.
	case instruction.Op == opcodes.OpMemBarrier:
		w.WaitingForMemBarrier = true
	case instruction.Op == opcodes.OpBarrier:
		c.barriers.WarpArrived(w.BlockHWID, w.WarpID, 0)
	case instruction.IsMem():
		if err := c.generateAccesses(w, instruction); err != nil {
			return err
		}
	}

	c.board.ReserveAll(w.WarpID, instruction)
	if c.cfg.SubCoreModel {
		target.PutSub(sched.ID, instruction)
	} else {
		target.PutFree(instruction)
	}
	c.Count.IssuedInstr++
	return nil
}

// generateAccesses coalesces the instruction's lane addresses, applying
// local memory translation first.
func (c *Core) generateAccesses(w *warp.Warp, instruction *instr.WarpInstruction) error {
	if instruction.Space == mem.SpaceLocal {
		items, err := c.translateLocal(w, instruction)
		if err != nil {
			return err
		}
		kind, _ := instruction.AccessKindFor()
		instruction.CoalesceScatter(kind, items, c.cfg.L1DCache.LineSize, c.allocs)
	} else {
		instruction.GenerateMemAccesses(c.cfg.L1DCache.LineSize, c.allocs)
	}
	c.Count.MemAccesses += uint64(len(instruction.Accesses))
	return nil
}

// execute advances the functional units, issuing ready instructions from
// the operand collector output stages.
func (c *Core) execute(cycle uint64) error {
	// Slide the result bus window one cycle.
	c.resultBus >>= 1

	for _, slot := range c.units {
		unit := slot.unit
		unit.Cycle()
		port := unit.IssuePort()
		ready := port.Ready()
		if ready == -1 {
			continue
		}
		instruction := port.Peek(ready)
		if !unit.CanIssue(instruction) {
			continue
		}
		// Stallable units reserve the result bus cell their result
		// lands in.
		latency := min(instruction.Latency, 63)
		if c.resultBus&(1<<latency) != 0 {
			continue
		}
		c.resultBus |= 1 << latency
		unit.Issue(port.Take(ready))
	}

	return c.ldst.cycle(cycle)
}

// writeback drains the EX to WB stage: registers release, pipeline
// counts fall, thread instructions count toward the kernel.
func (c *Core) writeback(cycle uint64) {
	for c.exWB.HasReady() {
		instruction := c.exWB.TakeReady()
		c.rfu.Writeback(instruction)
		c.board.ReleaseAll(instruction.WarpID, instruction)
		w := c.warps[instruction.WarpID]
		w.NumInstrInPipeline--
		c.Count.Instructions += uint64(instruction.ActiveMask.Count())
	}
}

// CanIssueBlock of the kernel. A core runs one kernel at a time unless
// concurrent kernels are enabled.
func (c *Core) CanIssueBlock(kern *kernel.Kernel) bool {
	if c.currentKernel != nil && c.currentKernel != kern && !c.cfg.ConcurrentKernelSM {
		return false
	}
	limit := c.maxBlocks(kern)
	return limit > 0 && c.numBlocks < limit && !kern.NoMoreBlocksToRun()
}

// maxBlocks the core can hold of this kernel.
func (c *Core) maxBlocks(kern *kernel.Kernel) int {
	padded := kern.PaddedThreadsPerBlock()
	if padded == 0 || padded > c.cfg.MaxThreadsPerCore {
		return 0
	}
	return min(c.cfg.MaxConcurrentBlocks, c.cfg.MaxThreadsPerCore/padded)
}

// IssueBlock binds the kernel's next block to this core.
func (c *Core) IssueBlock(kern *kernel.Kernel, cycle uint64) bool {
	if !c.CanIssueBlock(kern) {
		return false
	}
	block, ok := kern.NextBlock()
	if !ok {
		return false
	}

	padded := kern.PaddedThreadsPerBlock()
	threadsInBlock := kern.ThreadsPerBlock()
	limit := c.maxBlocks(kern)

	// First free hardware block slot.
	blockHWID := -1
	for id := range limit {
		if c.blockStatus[id] == 0 {
			blockHWID = id
			break
		}
	}
	if blockHWID == -1 {
		kern.BlockCompleted()
		return false
	}

	startThread := blockHWID * padded
	startWarp := startThread / c.cfg.WarpSize
	numWarps := kern.WarpsPerBlock()

	var participating bitset.Set64
	for i := range numWarps {
		warpID := startWarp + i
		w := c.warps[warpID]
		threadsInWarp := min(threadsInBlock-i*c.cfg.WarpSize, c.cfg.WarpSize)
		var active bitset.Mask32
		for lane := range threadsInWarp {
			active.Set(lane)
			c.threads[startThread+i*c.cfg.WarpSize+lane] = threadState{active: true, blockHWID: blockHWID}
		}
		c.dynWarpNext++
		w.Init(c.dynWarpNext, blockHWID, kern.ID(), active, kern.WarpInstructions(block, i))
		participating.Set(warpID)
	}

	c.barriers.AllocateBlock(blockHWID, participating)
	c.blockStatus[blockHWID] = threadsInBlock
	c.blockLinear[blockHWID] = block
	c.numBlocks++
	c.currentKernel = kern
	kern.Stats.BlocksLaunched++
	kern.Stats.WarpsLaunched += uint64(numWarps)
	slog.Debug("block issued", "core", c.id, "block", block, "block_hw_id", blockHWID,
		"warps", numWarps)
	return true
}

// NumActiveBlocks resident on the core.
func (c *Core) NumActiveBlocks() int {
	return c.numBlocks
}
