/*
 * GPGPU - Memory accesses and fetches.
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

package mem

import (
	"fmt"
	"sync/atomic"

	"github.com/rcornwell/GPGPU/sim/addrgen"
	"github.com/rcornwell/GPGPU/util/bitset"
)

// AccessKind enumerates access type crossed with memory space, plus the
// writeback and write allocate traffic each cache level generates.
type AccessKind int

const (
	GlobalAccR AccessKind = iota
	LocalAccR
	ConstAccR
	TextureAccR
	GlobalAccW
	LocalAccW
	L1WrbkAcc
	L2WrbkAcc
	InstAccR
	L1WrAllocR
	L2WrAllocR
	NumAccessKinds
)

var accessKindNames = [NumAccessKinds]string{
	"GLOBAL_ACC_R", "LOCAL_ACC_R", "CONST_ACC_R", "TEXTURE_ACC_R",
	"GLOBAL_ACC_W", "LOCAL_ACC_W", "L1_WRBK_ACC", "L2_WRBK_ACC",
	"INST_ACC_R", "L1_WR_ALLOC_R", "L2_WR_ALLOC_R",
}

func (k AccessKind) String() string {
	if k < 0 || k >= NumAccessKinds {
		return fmt.Sprintf("ACC(%d)", int(k))
	}
	return accessKindNames[k]
}

// Memory spaces from the trace.
type Space int

const (
	SpaceNone Space = iota
	SpaceLocal
	SpaceGlobal
	SpaceShared
	SpaceConstant
	SpaceTexture
)

// RequestStatus of one cache access.
type RequestStatus int

const (
	Hit RequestStatus = iota
	HitReserved
	Miss
	ReservationFail
	SectorMiss
	MSHRHit
	NumRequestStatus
)

var requestStatusNames = [NumRequestStatus]string{
	"HIT", "HIT_RESERVED", "MISS", "RESERVATION_FAIL", "SECTOR_MISS", "MSHR_HIT",
}

func (s RequestStatus) String() string {
	if s < 0 || s >= NumRequestStatus {
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
	return requestStatusNames[s]
}

// ReservationFailure gives the fine grained reason of a RESERVATION_FAIL.
type ReservationFailure int

const (
	NoFailure ReservationFailure = iota
	MissQueueFull
	MSHREntryFail
	MSHRMergeEntryFail
	LineAllocFail
	NumReservationFailures
)

var reservationFailureNames = [NumReservationFailures]string{
	"NONE", "MISS_QUEUE_FULL", "MSHR_ENTRY_FAIL", "MSHR_MERGE_ENTRY_FAIL", "LINE_ALLOC_FAIL",
}

func (f ReservationFailure) String() string {
	if f < 0 || f >= NumReservationFailures {
		return fmt.Sprintf("FAIL(%d)", int(f))
	}
	return reservationFailureNames[f]
}

// Access is one coalesced memory transaction of a warp.
type Access struct {
	Kind       AccessKind
	Addr       uint64
	AllocID    int // 0 when the address is outside any allocation.
	Size       uint32
	IsWrite    bool
	WarpMask   bitset.Mask32
	ByteMask   bitset.ByteMask
	SectorMask bitset.SectorMask
}

// FetchKind of a fetch moving through the hierarchy.
type FetchKind int

const (
	ReadRequest FetchKind = iota
	WriteRequest
	ReadReply
	WriteAck
)

func (k FetchKind) String() string {
	switch k {
	case ReadRequest:
		return "READ_REQUEST"
	case WriteRequest:
		return "WRITE_REQUEST"
	case ReadReply:
		return "READ_REPLY"
	default:
		return "WRITE_ACK"
	}
}

// Status tracks where in the hierarchy a fetch currently sits.
type Status int

const (
	Initialized Status = iota
	InL1IMissQueue
	InL1DMissQueue
	InL1TLBMissQueue
	InIcntToMem
	InPartitionROPDelay
	InPartitionIcntToL2Queue
	InPartitionL2ToDramQueue
	InPartitionDramLatencyQueue
	InPartitionL2MissQueue
	InPartitionDramToL2Queue
	InPartitionDram
	InPartitionL2ToIcntQueue
	InIcntToShader
	InClusterToShaderQueue
	InShaderLdstResponseFIFO
	InShaderFetched
	InShaderL1TLB
	Deleted
)

// Control packet size in bytes for requests without data.
const ControlSize = 8

var nextFetchID atomic.Uint64

// Fetch is the unit of work through the memory hierarchy. Fetches are
// compared by their unique id.
type Fetch struct {
	ID        uint64
	Access    Access
	Kind      FetchKind
	Status    Status
	StatusAt  uint64 // Cycle of the last status change.
	WarpID    int
	CoreID    int
	ClusterID int
	InstrUID  uint64 // Issuing instruction, 0 for cache generated traffic.

	PhysAddr      addrgen.PhysicalAddress
	PartitionAddr uint64

	ControlSize uint32
	DataSize    uint32

	IsAtomic bool

	// Original fetch for writeback and write allocate traffic that a
	// cache synthesized while servicing it.
	Original *Fetch
}

// NewFetch builds a fetch for an access. The physical address is decoded
// once at construction and preserved from then on.
func NewFetch(access Access, kind FetchKind, warpID, coreID, clusterID int, dec *addrgen.Decoder) *Fetch {
	f := &Fetch{
		ID:          nextFetchID.Add(1),
		Access:      access,
		Kind:        kind,
		Status:      Initialized,
		WarpID:      warpID,
		CoreID:      coreID,
		ClusterID:   clusterID,
		ControlSize: ControlSize,
	}
	if access.IsWrite {
		f.DataSize = access.Size
	}
	if dec != nil {
		f.PhysAddr = dec.Decode(access.Addr)
		f.PartitionAddr = dec.PartitionAddr(access.Addr)
	}
	return f
}

// Addr of the underlying access.
func (f *Fetch) Addr() uint64 {
	return f.Access.Addr
}

// IsWrite request.
func (f *Fetch) IsWrite() bool {
	return f.Access.IsWrite
}

// IsReply from a lower level.
func (f *Fetch) IsReply() bool {
	return f.Kind == ReadReply || f.Kind == WriteAck
}

// Size on the wire: data plus control for write requests and read
// replies, control only for read requests and write acks.
func (f *Fetch) Size() uint32 {
	switch f.Kind {
	case ReadRequest, WriteAck:
		return f.ControlSize
	default:
		return f.DataSize + f.ControlSize
	}
}

// SetStatus moves the fetch to a new location in the hierarchy.
func (f *Fetch) SetStatus(status Status, cycle uint64) {
	f.Status = status
	f.StatusAt = cycle
}

// MakeReply converts a serviced request into its response form.
func (f *Fetch) MakeReply() {
	if f.Access.IsWrite {
		f.Kind = WriteAck
	} else {
		f.Kind = ReadReply
		f.DataSize = f.Access.Size
	}
}

func (f *Fetch) String() string {
	return fmt.Sprintf("fetch{id:%d %s %s addr:%#x size:%d}",
		f.ID, f.Kind, f.Access.Kind, f.Access.Addr, f.Access.Size)
}
