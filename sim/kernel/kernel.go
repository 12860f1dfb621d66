/*
 * GPGPU - Kernel launch state.
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

package kernel

import (
	"fmt"

	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/instr"
	"github.com/rcornwell/GPGPU/sim/stats"
	"github.com/rcornwell/GPGPU/sim/trace"
)

// Kernel is one launch being simulated: its grid iterator, the decoded
// per warp instruction streams and the statistics it accumulates.
type Kernel struct {
	Launch *trace.KernelLaunch
	Stats  *stats.Kernel

	cfg    *config.GPUConfig
	warps  map[trace.WarpKey][]*instr.WarpInstruction

	nextBlock     uint64
	runningBlocks int

	LaunchedCycle uint64
	CompletedAt   uint64
}

// New kernel from its validated trace, decoding every warp stream.
func New(kt *trace.KernelTrace, cfg *config.GPUConfig) (*Kernel, error) {
	k := &Kernel{
		Launch: kt.Launch,
		Stats:  stats.NewKernel(kt.Launch.ID, kt.Launch.Name()),
		cfg:    cfg,
		warps:  map[trace.WarpKey][]*instr.WarpInstruction{},
	}
	for key, entries := range kt.Warps {
		stream := make([]*instr.WarpInstruction, 0, len(entries))
		for _, entry := range entries {
			w, err := instr.FromTrace(entry, cfg)
			if err != nil {
				return nil, fmt.Errorf("kernel %d: %w", kt.Launch.ID, err)
			}
			stream = append(stream, w)
		}
		k.warps[key] = stream
	}
	return k, nil
}

// ID of the launch.
func (k *Kernel) ID() int {
	return k.Launch.ID
}

// Name of the kernel.
func (k *Kernel) Name() string {
	return k.Launch.Name()
}

// NumBlocks of the grid.
func (k *Kernel) NumBlocks() uint64 {
	return k.Launch.Grid.Size()
}

// ThreadsPerBlock of the launch.
func (k *Kernel) ThreadsPerBlock() int {
	return int(k.Launch.Block.Size())
}

// WarpsPerBlock rounded up.
func (k *Kernel) WarpsPerBlock() int {
	return (k.ThreadsPerBlock() + k.cfg.WarpSize - 1) / k.cfg.WarpSize
}

// PaddedThreadsPerBlock rounds the block up to whole warps.
func (k *Kernel) PaddedThreadsPerBlock() int {
	return k.WarpsPerBlock() * k.cfg.WarpSize
}

// NextBlock hands out the next linear block id to issue.
func (k *Kernel) NextBlock() (uint64, bool) {
	if k.nextBlock >= k.NumBlocks() {
		return 0, false
	}
	block := k.nextBlock
	k.nextBlock++
	k.runningBlocks++
	return block, true
}

// BlockCompleted retires one running block.
func (k *Kernel) BlockCompleted() {
	k.runningBlocks--
}

// NoMoreBlocksToRun out of the grid.
func (k *Kernel) NoMoreBlocksToRun() bool {
	return k.nextBlock >= k.NumBlocks()
}

// Running blocks on the device.
func (k *Kernel) Running() bool {
	return k.runningBlocks > 0
}

// Done when every block was issued and retired.
func (k *Kernel) Done() bool {
	return k.NoMoreBlocksToRun() && !k.Running()
}

// WarpInstructions of one warp of one block. Warps past the block's
// thread count have empty streams.
func (k *Kernel) WarpInstructions(block uint64, warpInBlock int) []*instr.WarpInstruction {
	return k.warps[trace.WarpKey{Block: block, WarpIDInBlock: uint32(warpInBlock)}]
}
