/*
 * GPGPU - Greedy then oldest warp scheduler.
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

package scheduler

import (
	"sort"

	"github.com/rcornwell/GPGPU/sim/warp"
)

// GTO orders its supervised warps greedy then oldest: the last issued
// warp first, then eligible warps by ascending dynamic warp id. Ties
// between equally old warps break on the stable dynamic id order.
type GTO struct {
	ID         int
	supervised []*warp.Warp
	lastIssued *warp.Warp
}

// New scheduler.
func New(id int) *GTO {
	return &GTO{ID: id}
}

// Supervise adds a warp slot to this scheduler.
func (g *GTO) Supervise(w *warp.Warp) {
	g.supervised = append(g.supervised, w)
}

// Supervised warps of this scheduler.
func (g *GTO) Supervised() []*warp.Warp {
	return g.supervised
}

// SetLastIssued records a successful issue, the greedy candidate of the
// next cycle.
func (g *GTO) SetLastIssued(w *warp.Warp) {
	g.lastIssued = w
}

// LastIssued warp, nil before the first issue.
func (g *GTO) LastIssued() *warp.Warp {
	return g.lastIssued
}

// Order builds the candidate list for one scheduler cycle. eligible
// reports whether a warp can issue at all, ineligible warps sort last.
func (g *GTO) Order(eligible func(*warp.Warp) bool) []*warp.Warp {
	sorted := make([]*warp.Warp, len(g.supervised))
	copy(sorted, g.supervised)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, wj := sorted[i], sorted[j]
		ei, ej := eligible(wi), eligible(wj)
		if ei != ej {
			return ei
		}
		return wi.DynamicWarpID < wj.DynamicWarpID
	})

	out := make([]*warp.Warp, 0, len(g.supervised))
	if g.lastIssued != nil {
		out = append(out, g.lastIssued)
	}
	for _, w := range sorted {
		if w == g.lastIssued {
			continue
		}
		out = append(out, w)
	}
	if len(out) > len(g.supervised) {
		out = out[:len(g.supervised)]
	}
	return out
}
