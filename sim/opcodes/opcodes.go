/*
 * GPGPU - Instruction opcode table.
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

package opcodes

import (
	"fmt"
	"strings"
)

// Op classifies what an instruction does to the machine state the timing
// model cares about.
type Op int

const (
	OpNop Op = iota
	OpALU
	OpLoad
	OpStore
	OpAtomic
	OpExit
	OpBranch
	OpCall
	OpRet
	OpBarrier
	OpMemBarrier
)

// Category selects the functional unit class an instruction issues to.
type Category int

const (
	SPOp Category = iota
	DPOp
	IntOp
	SFUOp
	LoadOp
	StoreOp
	BranchOp
	BarrierOp
	MemBarrierOp
	ExitOp
	NoOp
)

var categoryNames = []string{
	"SP", "DP", "INT", "SFU", "LOAD", "STORE", "BRANCH", "BARRIER", "MEMBAR", "EXIT", "NOP",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("CAT(%d)", int(c))
}

type entry struct {
	op  Op
	cat Category
}

// Opcode table, keyed by the base SASS mnemonic. Texture loads map onto
// LDG, they travel the global load path.
var opcodeMap = map[string]entry{
	// Memory.
	"LD":   {OpLoad, LoadOp},
	"LDG":  {OpLoad, LoadOp},
	"LDL":  {OpLoad, LoadOp},
	"LDS":  {OpLoad, LoadOp},
	"LDSM": {OpLoad, LoadOp},
	"LDC":  {OpLoad, LoadOp},
	"LDGSTS": {OpLoad, LoadOp},
	"ST":   {OpStore, StoreOp},
	"STG":  {OpStore, StoreOp},
	"STL":  {OpStore, StoreOp},
	"STS":  {OpStore, StoreOp},
	"ATOM": {OpAtomic, StoreOp},
	"ATOMS": {OpAtomic, StoreOp},
	"ATOMG": {OpAtomic, StoreOp},
	"RED":  {OpAtomic, StoreOp},
	"TEX":  {OpLoad, LoadOp},
	"TLD":  {OpLoad, LoadOp},

	// Control.
	"EXIT":   {OpExit, ExitOp},
	"RET":    {OpRet, BranchOp},
	"BRA":    {OpBranch, BranchOp},
	"BRX":    {OpBranch, BranchOp},
	"JMP":    {OpBranch, BranchOp},
	"JMX":    {OpBranch, BranchOp},
	"CALL":   {OpCall, BranchOp},
	"CAL":    {OpCall, BranchOp},
	"BSSY":   {OpBranch, BranchOp},
	"BSYNC":  {OpBranch, BranchOp},
	"BREAK":  {OpBranch, BranchOp},
	"BMOV":   {OpALU, IntOp},
	"RPCMOV": {OpALU, IntOp},

	// Synchronization.
	"BAR":      {OpBarrier, BarrierOp},
	"MEMBAR":   {OpMemBarrier, MemBarrierOp},
	"ERRBAR":   {OpMemBarrier, MemBarrierOp},
	"CCTL":     {OpNop, NoOp},
	"CCTLL":    {OpNop, NoOp},
	"DEPBAR":   {OpNop, NoOp},
	"NOP":      {OpNop, NoOp},

	// Single precision float.
	"FADD":   {OpALU, SPOp},
	"FADD32I": {OpALU, SPOp},
	"FMUL":   {OpALU, SPOp},
	"FMUL32I": {OpALU, SPOp},
	"FFMA":   {OpALU, SPOp},
	"FFMA32I": {OpALU, SPOp},
	"FMNMX":  {OpALU, SPOp},
	"FSET":   {OpALU, SPOp},
	"FSETP":  {OpALU, SPOp},
	"FSEL":   {OpALU, SPOp},
	"FCHK":   {OpALU, SPOp},
	"F2F":    {OpALU, SPOp},
	"F2I":    {OpALU, SPOp},
	"I2F":    {OpALU, SPOp},
	"I2I":    {OpALU, SPOp},
	"HADD2":  {OpALU, SPOp},
	"HMUL2":  {OpALU, SPOp},
	"HFMA2":  {OpALU, SPOp},
	"HSET2":  {OpALU, SPOp},
	"HSETP2": {OpALU, SPOp},
	"HMNMX2": {OpALU, SPOp},

	// Double precision.
	"DADD":  {OpALU, DPOp},
	"DMUL":  {OpALU, DPOp},
	"DFMA":  {OpALU, DPOp},
	"DSETP": {OpALU, DPOp},
	"DMNMX": {OpALU, DPOp},

	// Special function.
	"MUFU":  {OpALU, SFUOp},
	"RRO":   {OpALU, SFUOp},
	"RCP":   {OpALU, SFUOp},
	"RSQ":   {OpALU, SFUOp},
	"LG2":   {OpALU, SFUOp},
	"EX2":   {OpALU, SFUOp},
	"SIN":   {OpALU, SFUOp},
	"COS":   {OpALU, SFUOp},

	// Integer.
	"IADD":   {OpALU, IntOp},
	"IADD3":  {OpALU, IntOp},
	"IADD32I": {OpALU, IntOp},
	"ISUB":   {OpALU, IntOp},
	"IMAD":   {OpALU, IntOp},
	"IMUL":   {OpALU, IntOp},
	"IMNMX":  {OpALU, IntOp},
	"ISCADD": {OpALU, IntOp},
	"ISETP":  {OpALU, IntOp},
	"ISET":   {OpALU, IntOp},
	"IABS":   {OpALU, IntOp},
	"LEA":    {OpALU, IntOp},
	"LOP":    {OpALU, IntOp},
	"LOP3":   {OpALU, IntOp},
	"LOP32I": {OpALU, IntOp},
	"FLO":    {OpALU, IntOp},
	"POPC":   {OpALU, IntOp},
	"SHF":    {OpALU, IntOp},
	"SHL":    {OpALU, IntOp},
	"SHR":    {OpALU, IntOp},
	"BFE":    {OpALU, IntOp},
	"BFI":    {OpALU, IntOp},
	"BREV":   {OpALU, IntOp},
	"SGXT":   {OpALU, IntOp},
	"XMAD":   {OpALU, IntOp},
	"VABSDIFF": {OpALU, IntOp},
	"VABSDIFF4": {OpALU, IntOp},

	// Movement and predicates.
	"MOV":    {OpALU, IntOp},
	"MOV32I": {OpALU, IntOp},
	"MOVM":   {OpALU, IntOp},
	"SEL":    {OpALU, IntOp},
	"SHFL":   {OpALU, IntOp},
	"PRMT":   {OpALU, IntOp},
	"PSET":   {OpALU, IntOp},
	"PSETP":  {OpALU, IntOp},
	"PLOP3":  {OpALU, IntOp},
	"P2R":    {OpALU, IntOp},
	"R2P":    {OpALU, IntOp},
	"CSMTEST": {OpALU, IntOp},
	"CS2R":   {OpALU, IntOp},
	"S2R":    {OpALU, IntOp},
	"S2UR":   {OpALU, IntOp},
	"B2R":    {OpALU, IntOp},
	"R2B":    {OpALU, IntOp},
	"NANOSLEEP": {OpNop, NoOp},
	"VOTE":   {OpALU, IntOp},
	"VOTEU":  {OpALU, IntOp},
	"MATCH":  {OpALU, IntOp},
	"QSPC":   {OpALU, IntOp},
	"ULDC":   {OpALU, IntOp},
	"UMOV":   {OpALU, IntOp},
	"UIADD3": {OpALU, IntOp},
	"UIMAD":  {OpALU, IntOp},
	"ULOP3":  {OpALU, IntOp},
	"ULEA":   {OpALU, IntOp},
	"USHF":   {OpALU, IntOp},
	"USEL":   {OpALU, IntOp},
	"UISETP": {OpALU, IntOp},
	"UPLOP3": {OpALU, IntOp},
	"UPSETP": {OpALU, IntOp},

	// Tensor and matrix ops issue to the SP pipe in this model.
	"HMMA": {OpALU, SPOp},
	"IMMA": {OpALU, SPOp},
	"BMMA": {OpALU, SPOp},
}

// Lookup decodes an opcode string from the trace. Modifier suffixes
// after the first '.' are ignored, "LDG.E.128.SYS" decodes as "LDG".
// Unknown opcodes are a trace error.
func Lookup(opcode string) (Op, Category, error) {
	base, _, _ := strings.Cut(opcode, ".")
	e, ok := opcodeMap[strings.ToUpper(base)]
	if !ok {
		return OpNop, NoOp, fmt.Errorf("unknown opcode %q", opcode)
	}
	return e.op, e.cat, nil
}
