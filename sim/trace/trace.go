/*
 * GPGPU - Trace command and instruction record formats.
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

package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcornwell/GPGPU/sim/opcodes"
)

// Dim is a three component grid or block dimension.
type Dim struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
	Z uint32 `json:"z"`
}

// Size is the product of the components.
func (d Dim) Size() uint64 {
	return uint64(d.X) * uint64(d.Y) * uint64(d.Z)
}

// Flatten a point inside this dimension to a linear id.
func (d Dim) Flatten(p Dim) uint64 {
	return (uint64(p.Z)*uint64(d.Y)+uint64(p.Y))*uint64(d.X) + uint64(p.X)
}

// Command is one record of the trace command stream. Exactly one of
// MemcpyHtoD and KernelLaunch is set.
type Command struct {
	MemcpyHtoD   *MemcpyHtoD   `json:"memcpy_h_to_d,omitempty"`
	KernelLaunch *KernelLaunch `json:"kernel_launch,omitempty"`
}

// MemcpyHtoD registers a device allocation before a kernel runs.
type MemcpyHtoD struct {
	Addr     uint64 `json:"dest_device_addr"`
	NumBytes uint64 `json:"num_bytes"`
	AllocID  int    `json:"allocation_id,omitempty"`
	Name     string `json:"allocation_name,omitempty"`
}

// KernelLaunch describes one kernel invocation.
type KernelLaunch struct {
	ID                int    `json:"id"`
	MangledName       string `json:"mangled_name"`
	UnmangledName     string `json:"unmangled_name"`
	Grid              Dim    `json:"grid"`
	Block             Dim    `json:"block"`
	SharedMemBytes    uint32 `json:"shared_mem_bytes"`
	NumRegisters      uint32 `json:"num_registers"`
	BinaryVersion     int    `json:"binary_version"`
	StreamID          int    `json:"stream_id"`
	SharedMemBaseAddr uint64 `json:"shared_mem_base_addr"`
	LocalMemBaseAddr  uint64 `json:"local_mem_base_addr"`
	TraceFile         string `json:"trace_file"`
}

// Name to report for the kernel.
func (k *KernelLaunch) Name() string {
	if k.UnmangledName != "" {
		return k.UnmangledName
	}
	return k.MangledName
}

// Predicate of a traced instruction.
type Predicate struct {
	Num       int  `json:"num"`
	IsNeg     bool `json:"is_neg"`
	IsUniform bool `json:"is_uniform"`
}

// Entry is one warp level instruction record of a kernel trace.
type Entry struct {
	CudaCtx       uint64    `json:"cuda_ctx"`
	SMID          uint32    `json:"sm_id"`
	KernelID      uint32    `json:"kernel_id"`
	BlockID       Dim       `json:"block_id"`
	WarpIDInSM    uint32    `json:"warp_id_in_sm"`
	WarpIDInBlock uint32    `json:"warp_id_in_block"`
	WarpSize      uint32    `json:"warp_size"`
	LineNum       uint32    `json:"line_num"`
	InstrDataWidth uint32   `json:"instr_data_width"`
	InstrOpcode   string    `json:"instr_opcode"`
	InstrOffset   uint64    `json:"instr_offset"`
	InstrIdx      uint32    `json:"instr_idx"`
	InstrPredicate Predicate `json:"instr_predicate"`
	InstrMemSpace string    `json:"instr_mem_space"`
	InstrIsMem    bool      `json:"instr_is_mem"`
	InstrIsLoad   bool      `json:"instr_is_load"`
	InstrIsStore  bool      `json:"instr_is_store"`
	InstrIsExtended bool    `json:"instr_is_extended"`
	DestRegs      []int     `json:"dest_regs"`
	NumDestRegs   int       `json:"num_dest_regs"`
	SrcRegs       []int     `json:"src_regs"`
	NumSrcRegs    int       `json:"num_src_regs"`
	ActiveMask    uint32    `json:"active_mask"`
	Addrs         []uint64  `json:"addrs"`
}

// WarpKey identifies one warp of one block inside a kernel trace.
type WarpKey struct {
	Block         uint64 // Flattened block id.
	WarpIDInBlock uint32
}

// KernelTrace is the per warp instruction stream of one launch.
type KernelTrace struct {
	Launch *KernelLaunch
	Warps  map[WarpKey][]*Entry
}

// ReadCommands decodes the trace command stream from r.
func ReadCommands(r io.Reader) ([]Command, error) {
	var commands []Command
	dec := json.NewDecoder(r)
	if err := dec.Decode(&commands); err != nil {
		return nil, fmt.Errorf("trace commands: %w", err)
	}
	for i, cmd := range commands {
		if (cmd.MemcpyHtoD == nil) == (cmd.KernelLaunch == nil) {
			return nil, fmt.Errorf("trace commands: record %d must be exactly one of memcpy or launch", i)
		}
	}
	return commands, nil
}

// LoadCommands reads the command stream file.
func LoadCommands(path string) ([]Command, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCommands(file)
}

// ReadKernelTrace decodes and validates one kernel trace.
func ReadKernelTrace(launch *KernelLaunch, r io.Reader) (*KernelTrace, error) {
	var entries []*Entry
	dec := json.NewDecoder(r)
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("kernel %d trace: %w", launch.ID, err)
	}

	kt := &KernelTrace{
		Launch: launch,
		Warps:  map[WarpKey][]*Entry{},
	}
	for _, entry := range entries {
		if err := validateEntry(launch, entry); err != nil {
			return nil, err
		}
		key := WarpKey{
			Block:         launch.Grid.Flatten(entry.BlockID),
			WarpIDInBlock: entry.WarpIDInBlock,
		}
		kt.Warps[key] = append(kt.Warps[key], entry)
	}

	// Every warp must terminate with a fully active EXIT.
	for key, stream := range kt.Warps {
		last := stream[len(stream)-1]
		base, _, _ := strings.Cut(last.InstrOpcode, ".")
		if base != "EXIT" {
			return nil, fmt.Errorf("kernel %d block %d warp %d: last instruction %q, want EXIT",
				launch.ID, key.Block, key.WarpIDInBlock, last.InstrOpcode)
		}
		if last.ActiveMask != 0xffffffff {
			return nil, fmt.Errorf("kernel %d block %d warp %d: EXIT active mask %#x, want full",
				launch.ID, key.Block, key.WarpIDInBlock, last.ActiveMask)
		}
	}
	return kt, nil
}

// LoadKernelTrace reads the trace file named by the launch, relative to dir.
func LoadKernelTrace(dir string, launch *KernelLaunch) (*KernelTrace, error) {
	path := launch.TraceFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadKernelTrace(launch, file)
}

func validateEntry(launch *KernelLaunch, entry *Entry) error {
	if _, _, err := opcodes.Lookup(entry.InstrOpcode); err != nil {
		return fmt.Errorf("kernel %d line %d: %w", launch.ID, entry.LineNum, err)
	}
	if entry.InstrIsStore && entry.InstrMemSpace == "Constant" {
		return fmt.Errorf("kernel %d line %d: store to constant space", launch.ID, entry.LineNum)
	}
	if entry.InstrIsMem && len(entry.Addrs) > 32 {
		return fmt.Errorf("kernel %d line %d: %d thread addresses, want at most 32",
			launch.ID, entry.LineNum, len(entry.Addrs))
	}
	if entry.BlockID.X >= launch.Grid.X || entry.BlockID.Y >= launch.Grid.Y || entry.BlockID.Z >= launch.Grid.Z {
		return fmt.Errorf("kernel %d line %d: block (%d,%d,%d) outside grid",
			launch.ID, entry.LineNum, entry.BlockID.X, entry.BlockID.Y, entry.BlockID.Z)
	}
	return nil
}
