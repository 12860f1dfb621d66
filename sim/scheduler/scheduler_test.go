/*
 * GPGPU - Scheduler test cases.
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
	"testing"

	"github.com/rcornwell/GPGPU/sim/warp"
)

func always(w *warp.Warp) bool {
	return true
}

func makeWarps(g *GTO, dynamicIDs ...int) []*warp.Warp {
	warps := make([]*warp.Warp, len(dynamicIDs))
	for i, id := range dynamicIDs {
		w := warp.New(i)
		w.DynamicWarpID = id
		warps[i] = w
		g.Supervise(w)
	}
	return warps
}

func TestOrderOldestFirst(t *testing.T) {
	g := New(0)
	warps := makeWarps(g, 3, 1, 2)
	order := g.Order(always)
	want := []*warp.Warp{warps[1], warps[2], warps[0]}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Order %d not correct got: %d expected: %d",
				i, order[i].DynamicWarpID, want[i].DynamicWarpID)
		}
	}
}

func TestOrderGreedyFirst(t *testing.T) {
	g := New(0)
	warps := makeWarps(g, 3, 1, 2)
	g.SetLastIssued(warps[0])
	order := g.Order(always)
	if order[0] != warps[0] {
		t.Errorf("Greedy candidate not first got: %d expected: %d",
			order[0].DynamicWarpID, warps[0].DynamicWarpID)
	}
	// Remaining candidates oldest first, no duplicates, supervised count.
	if len(order) != 3 {
		t.Errorf("Order length not correct got: %d expected: %d", len(order), 3)
	}
	if order[1] != warps[1] || order[2] != warps[2] {
		t.Error("Non greedy candidates should sort oldest first")
	}
}

func TestOrderIneligibleLast(t *testing.T) {
	g := New(0)
	warps := makeWarps(g, 0, 1, 2)
	blocked := warps[0]
	order := g.Order(func(w *warp.Warp) bool { return w != blocked })
	if order[len(order)-1] != blocked {
		t.Error("Ineligible warp should sort last")
	}
	if order[0] != warps[1] {
		t.Errorf("Oldest eligible not first got: %d expected: %d",
			order[0].DynamicWarpID, warps[1].DynamicWarpID)
	}
}

func TestGreedyMovesOn(t *testing.T) {
	// When the greedy warp becomes ineligible the next oldest issues,
	// consecutive issues differ while more than one warp is eligible.
	g := New(0)
	warps := makeWarps(g, 0, 1)
	g.SetLastIssued(warps[0])
	order := g.Order(func(w *warp.Warp) bool { return w != warps[0] })
	issued := order[0]
	if issued != warps[0] {
		// Greedy candidate is tried first but the caller skips
		// ineligible warps, the next candidate must be warp 1.
		t.Errorf("Order head not correct got: %d", issued.DynamicWarpID)
	}
	if order[1] != warps[1] {
		t.Errorf("Second candidate not correct got: %d expected: %d",
			order[1].DynamicWarpID, warps[1].DynamicWarpID)
	}
}
