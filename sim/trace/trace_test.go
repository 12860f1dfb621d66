/*
 * GPGPU - Trace format test cases.
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
	"fmt"
	"strings"
	"testing"
)

const commandStream = `[
  {"memcpy_h_to_d": {"dest_device_addr": 3221225472, "num_bytes": 4096, "allocation_name": "x"}},
  {"kernel_launch": {
    "id": 1, "mangled_name": "_Z6vecaddPfS_", "unmangled_name": "vecadd",
    "grid": {"x": 2, "y": 1, "z": 1}, "block": {"x": 32, "y": 1, "z": 1},
    "shared_mem_bytes": 0, "num_registers": 8, "binary_version": 86,
    "stream_id": 0, "shared_mem_base_addr": 0, "local_mem_base_addr": 0,
    "trace_file": "kernel-1.json"
  }}
]`

func TestReadCommands(t *testing.T) {
	commands, err := ReadCommands(strings.NewReader(commandStream))
	if err != nil {
		t.Fatalf("ReadCommands failed: %v", err)
	}
	if len(commands) != 2 {
		t.Fatalf("Command count not correct got: %d expected: %d", len(commands), 2)
	}
	if commands[0].MemcpyHtoD == nil || commands[0].MemcpyHtoD.NumBytes != 4096 {
		t.Error("Memcpy command not decoded")
	}
	launch := commands[1].KernelLaunch
	if launch == nil || launch.Name() != "vecadd" {
		t.Error("Kernel launch not decoded")
	}
	if launch.Grid.Size() != 2 || launch.Block.Size() != 32 {
		t.Errorf("Dimensions not correct got: grid %d block %d", launch.Grid.Size(), launch.Block.Size())
	}
}

func TestReadCommandsRejectsAmbiguous(t *testing.T) {
	_, err := ReadCommands(strings.NewReader(`[{}]`))
	if err == nil {
		t.Error("Empty command record should be rejected")
	}
}

func kernelJSON(lastOpcode string, lastMask uint32) string {
	return fmt.Sprintf(`[
  {"instr_opcode": "LDG.E.SYS", "instr_is_mem": true, "instr_is_load": true,
   "instr_mem_space": "Global", "instr_data_width": 4, "active_mask": 4294967295,
   "block_id": {"x": 0, "y": 0, "z": 0}, "warp_id_in_block": 0,
   "addrs": [0, 4, 8, 12]},
  {"instr_opcode": "%s", "active_mask": %d,
   "block_id": {"x": 0, "y": 0, "z": 0}, "warp_id_in_block": 0}
]`, lastOpcode, lastMask)
}

func launchForTest() *KernelLaunch {
	return &KernelLaunch{
		ID:    1,
		Grid:  Dim{X: 1, Y: 1, Z: 1},
		Block: Dim{X: 32, Y: 1, Z: 1},
	}
}

func TestReadKernelTrace(t *testing.T) {
	kt, err := ReadKernelTrace(launchForTest(), strings.NewReader(kernelJSON("EXIT", 0xffffffff)))
	if err != nil {
		t.Fatalf("ReadKernelTrace failed: %v", err)
	}
	stream := kt.Warps[WarpKey{Block: 0, WarpIDInBlock: 0}]
	if len(stream) != 2 {
		t.Fatalf("Stream length not correct got: %d expected: %d", len(stream), 2)
	}
	if stream[1].InstrOpcode != "EXIT" {
		t.Errorf("Last opcode not correct got: %s expected: EXIT", stream[1].InstrOpcode)
	}
}

func TestTraceMustEndWithExit(t *testing.T) {
	if _, err := ReadKernelTrace(launchForTest(), strings.NewReader(kernelJSON("BRA", 0xffffffff))); err == nil {
		t.Error("Trace not ending in EXIT should be rejected")
	}
	if _, err := ReadKernelTrace(launchForTest(), strings.NewReader(kernelJSON("EXIT", 1))); err == nil {
		t.Error("EXIT with partial mask should be rejected")
	}
}

func TestUnknownOpcodeRejected(t *testing.T) {
	if _, err := ReadKernelTrace(launchForTest(), strings.NewReader(kernelJSON("FROB", 0xffffffff))); err == nil {
		t.Error("Unknown opcode should be rejected")
	}
}

func TestConstantStoreRejected(t *testing.T) {
	bad := `[
  {"instr_opcode": "STG.E.SYS", "instr_is_mem": true, "instr_is_store": true,
   "instr_mem_space": "Constant", "active_mask": 4294967295,
   "block_id": {"x": 0, "y": 0, "z": 0}, "warp_id_in_block": 0},
  {"instr_opcode": "EXIT", "active_mask": 4294967295,
   "block_id": {"x": 0, "y": 0, "z": 0}, "warp_id_in_block": 0}
]`
	if _, err := ReadKernelTrace(launchForTest(), strings.NewReader(bad)); err == nil {
		t.Error("Store to constant space should be rejected")
	}
}
