/*
 * GPGPU - Execution unit wiring.
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

	"github.com/rcornwell/GPGPU/sim/funcunit"
)

// Pipeline depth headroom over the configured latencies.
const maxPipelineDepth = 64

// addUnits creates count units of one class, all fed from the class's
// operand collector output stage and draining into the shared writeback
// stage.
func (c *Core) addUnits(setName string, kind funcunit.Kind, count int) {
	issuePort := c.ocEX[setName]
	for i := range count {
		name := fmt.Sprintf("%s_%d_%d", kind, c.id, i)
		unit := funcunit.New(name, kind, maxPipelineDepth, issuePort, c.exWB)
		c.units = append(c.units, &unitSlot{unit: unit})
	}
}
