/*
 * GPGPU - Monitor command parser.
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

package parser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rcornwell/GPGPU/sim/gpu"
)

type cmd struct {
	name    string // Command name.
	min     int    // Minimum match size.
	process func(*cmdLine, *gpu.Simulator) (bool, error)
}

type cmdLine struct {
	line string // Current command.
	pos  int    // Position in line.
}

var cmdList = []cmd{
	{name: "step", min: 2, process: step},
	{name: "run", min: 1, process: run},
	{name: "stats", min: 2, process: showStats},
	{name: "caches", min: 1, process: showCaches},
	{name: "warps", min: 1, process: showWarps},
	{name: "quit", min: 1, process: quit},
}

// ProcessCommand executes the command line given.
func ProcessCommand(commandLine string, sim *gpu.Simulator) (bool, error) {
	line := cmdLine{line: commandLine}
	command := line.getWord()
	if command == "" {
		return false, nil
	}

	match := matchList(command)
	if len(match) == 0 {
		return false, errors.New("command not found: " + command)
	}
	if len(match) > 1 {
		return false, errors.New("unique command not found: " + command)
	}
	return match[0].process(&line, sim)
}

// CompleteCmd is called to complete a command line during line editing.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()
	matchList := matchList(name)
	matches := make([]string, len(matchList))
	for i, m := range matchList {
		matches[i] = m.name
	}
	return matches
}

// matchCommand checks if command matches at least to minimum length.
func matchCommand(match cmd, command string) bool {
	if len(command) < match.min || len(command) > len(match.name) {
		return false
	}
	return strings.HasPrefix(match.name, command)
}

func matchList(command string) []cmd {
	var matches []cmd
	for _, m := range cmdList {
		if matchCommand(m, command) {
			matches = append(matches, m)
		}
	}
	return matches
}

// getWord returns the next whitespace delimited word.
func (l *cmdLine) getWord() string {
	for l.pos < len(l.line) && l.line[l.pos] == ' ' {
		l.pos++
	}
	start := l.pos
	for l.pos < len(l.line) && l.line[l.pos] != ' ' {
		l.pos++
	}
	return strings.ToLower(l.line[start:l.pos])
}

// getNumber returns the next word as a number, def when absent.
func (l *cmdLine) getNumber(def int) (int, error) {
	word := l.getWord()
	if word == "" {
		return def, nil
	}
	return strconv.Atoi(word)
}

// step advances the simulator a number of cycles, default one.
func step(line *cmdLine, sim *gpu.Simulator) (bool, error) {
	n, err := line.getNumber(1)
	if err != nil {
		return false, err
	}
	for range n {
		if sim.Done() {
			break
		}
		if err := sim.Step(); err != nil {
			return false, err
		}
	}
	fmt.Printf("cycle %d\n", sim.Cycle())
	return false, nil
}

// run drives the simulation to completion.
func run(line *cmdLine, sim *gpu.Simulator) (bool, error) {
	if err := sim.RunToCompletion(context.Background()); err != nil {
		return false, err
	}
	fmt.Printf("done at cycle %d\n", sim.Cycle())
	return false, nil
}

// showStats prints the completed kernel summaries.
func showStats(line *cmdLine, sim *gpu.Simulator) (bool, error) {
	kernels := sim.Stats().Kernels()
	if len(kernels) == 0 {
		fmt.Println("no kernels completed yet")
		return false, nil
	}
	for _, k := range kernels {
		fmt.Println(k.Summary())
	}
	return false, nil
}

// showCaches prints the live cache counters.
func showCaches(line *cmdLine, sim *gpu.Simulator) (bool, error) {
	for _, cl := range sim.Clusters() {
		for _, c := range cl.Cores() {
			tags := c.L1D().Tags()
			fmt.Printf("%s: access=%d miss=%d pending_hit=%d sector_miss=%d res_fail=%d dirty=%d\n",
				c.L1D().Name(), tags.NumAccess, tags.NumMiss, tags.NumPendingHit,
				tags.NumSectorMiss, tags.NumReservationFail, tags.NumDirty)
		}
	}
	for _, sub := range sim.Partitions() {
		tags := sub.L2().Tags()
		fmt.Printf("%s: access=%d miss=%d dirty=%d dram_reads=%d dram_writes=%d\n",
			sub.L2().Name(), tags.NumAccess, tags.NumMiss, tags.NumDirty,
			sub.DRAMReads, sub.DRAMWrites)
	}
	return false, nil
}

// showWarps prints the warp table of one core.
func showWarps(line *cmdLine, sim *gpu.Simulator) (bool, error) {
	clusterID, err := line.getNumber(0)
	if err != nil {
		return false, err
	}
	coreID, err := line.getNumber(0)
	if err != nil {
		return false, err
	}
	clusters := sim.Clusters()
	if clusterID < 0 || clusterID >= len(clusters) {
		return false, fmt.Errorf("no cluster %d", clusterID)
	}
	cores := clusters[clusterID].Cores()
	if coreID < 0 || coreID >= len(cores) {
		return false, fmt.Errorf("no core %d in cluster %d", coreID, clusterID)
	}
	for _, w := range cores[coreID].Warps() {
		if w.DynamicWarpID == -1 {
			continue
		}
		fmt.Printf("warp %2d dyn %4d block %2d pipeline %d stores %d mask %08x\n",
			w.WarpID, w.DynamicWarpID, w.BlockHWID, w.NumInstrInPipeline,
			w.NumOutstandingStores, uint32(w.ActiveMask))
	}
	return false, nil
}

func quit(line *cmdLine, sim *gpu.Simulator) (bool, error) {
	return true, nil
}
