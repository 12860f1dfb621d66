/*
 * GPGPU - Local memory address translation.
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

	"github.com/rcornwell/GPGPU/sim/config"
	"github.com/rcornwell/GPGPU/sim/instr"
	"github.com/rcornwell/GPGPU/sim/warp"
)

// translateLocal rewrites the per lane local addresses of a local memory
// instruction into disjoint linear device addresses.
func (c *Core) translateLocal(w *warp.Warp, instruction *instr.WarpInstruction) ([]instr.Scatter, error) {
	var items []instr.Scatter
	for lane := range c.cfg.WarpSize {
		if !instruction.ActiveMask.Test(lane) {
			continue
		}
		tid := w.WarpID*c.cfg.WarpSize + lane
		addrs, err := c.localToGlobal(tid, instruction.ThreadAddrs[lane], instruction.DataSize)
		if err != nil {
			return nil, fmt.Errorf("warp %d lane %d: %w", w.WarpID, lane, err)
		}
		for _, item := range addrs {
			item.Lane = lane
			items = append(items, item)
		}
	}
	return items, nil
}

// localToGlobal translates one thread's local request. Requests of four
// bytes and up split into word sized strided accesses, smaller requests
// must not cross a word boundary.
func (c *Core) localToGlobal(tid int, localAddr uint64, dataSize uint32) ([]instr.Scatter, error) {
	numCores := uint64(c.cfg.NumCores())
	var threadBase, maxConcurrent uint64

	if c.cfg.LocalMemMap {
		// Strided mapping interleaves blocks of one CTA across cores.
		kern := c.currentKernel
		if kern == nil {
			return nil, fmt.Errorf("local access with no kernel resident")
		}
		padded := uint64(kern.PaddedThreadsPerBlock())
		maxCTA := uint64(c.maxBlocks(kern))
		threadBase = 4 * (padded*(uint64(c.id)+numCores*(uint64(tid)/padded)) +
			uint64(tid)%padded)
		maxConcurrent = padded * maxCTA * numCores
	} else {
		threadBase = 4 * (uint64(c.cfg.MaxThreadsPerCore)*uint64(c.id) + uint64(tid))
		maxConcurrent = numCores * uint64(c.cfg.MaxThreadsPerCore)
	}

	if dataSize >= 4 {
		if dataSize%4 != 0 {
			return nil, fmt.Errorf("local access size %d not word aligned", dataSize)
		}
		if localAddr%4 != 0 {
			return nil, fmt.Errorf("local address %#x not word aligned", localAddr)
		}
		items := make([]instr.Scatter, 0, dataSize/4)
		for i := uint64(0); i < uint64(dataSize/4); i++ {
			addr := (localAddr/4+i)*maxConcurrent*4 + threadBase + config.LocalGenericStart
			items = append(items, instr.Scatter{Addr: addr, Size: 4})
		}
		return items, nil
	}

	if localAddr%4+uint64(dataSize) > 4 {
		return nil, fmt.Errorf("local access at %#x size %d crosses a word boundary", localAddr, dataSize)
	}
	addr := (localAddr/4)*maxConcurrent*4 + localAddr%4 + threadBase + config.LocalGenericStart
	return []instr.Scatter{{Addr: addr, Size: dataSize}}, nil
}
