// Copyright 2025 clrxasm Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package isaenc stands in for the IsaEncoder collaborator (spec §6.1). The
// real GCN instruction encoder is out of scope (spec §1); this package only
// tracks the two things the format layer actually reads from it: the
// high-water-mark register allocation observed while encoding a kernel's
// instructions, and simple alignment padding — grounded on the teacher's
// per-architecture register-set tables (amd64Parser's amd64Registers /
// amd64XMMRegisters / amd64ZMMRegisters in amd64_parser.go) generalized from
// "which named registers does this instruction touch" into "what's the
// highest register index touched so far".
package isaenc

// RegFlags mirrors the encoder-reported bitset of spec §3.2's allocRegFlags:
// does this kernel's code use VCC, FLAT_SCRATCH, or XNACK.
type RegFlags uint32

const (
	UsesVCC RegFlags = 1 << iota
	UsesFlatScratch
	UsesXNACK
)

// Allocation is a register high-water-mark snapshot, as returned by
// getAllocatedRegisters and installed by setAllocatedRegisters at
// section-switch boundaries (spec §4.4 "register-tracking protocol").
type Allocation struct {
	SGPRs uint32
	VGPRs uint32
	Flags RegFlags
}

// Encoder is the minimal IsaEncoder surface the format layer depends on.
// internal/dialect code never stores an Encoder past the call that needs it,
// per the design note that the core mustn't capture state outliving
// prepareBinary.
type Encoder interface {
	// GetAllocatedRegisters returns the encoder's current high-water-mark
	// allocation (the counts observed since the last SetAllocatedRegisters).
	GetAllocatedRegisters() Allocation
	// SetAllocatedRegisters installs a snapshot as the encoder's current
	// allocation, used both to restore a kernel's state on switchKernel and
	// to reset tracking to zero when a new kernel is created.
	SetAllocatedRegisters(Allocation)
	// FillAlignment returns nBytes of architecture-appropriate NOP filler.
	FillAlignment(nBytes int) []byte
}

// TrackingEncoder is a straightforward in-memory Encoder: it remembers the
// highest register index touched via Touch, and answers
// GetAllocatedRegisters/SetAllocatedRegisters against that state. Good enough
// to drive the finaliser's register back-fill without a real GCN decoder.
type TrackingEncoder struct {
	current Allocation
}

// NewTrackingEncoder returns an Encoder with a zeroed allocation.
func NewTrackingEncoder() *TrackingEncoder {
	return &TrackingEncoder{}
}

// Touch records that the encoded instruction stream referenced the given
// SGPR/VGPR index (0 means "none referenced") and/or special registers,
// raising the high-water mark and OR-ing in any reported flags.
func (e *TrackingEncoder) Touch(sgprHigh, vgprHigh uint32, flags RegFlags) {
	if sgprHigh > e.current.SGPRs {
		e.current.SGPRs = sgprHigh
	}
	if vgprHigh > e.current.VGPRs {
		e.current.VGPRs = vgprHigh
	}
	e.current.Flags |= flags
}

func (e *TrackingEncoder) GetAllocatedRegisters() Allocation { return e.current }

func (e *TrackingEncoder) SetAllocatedRegisters(a Allocation) { e.current = a }

// FillAlignment emits nBytes of the GCN no-op encoding (s_nop 0 = 0xbf800000,
// little-endian), truncated to fit when nBytes isn't a multiple of 4.
func (e *TrackingEncoder) FillAlignment(nBytes int) []byte {
	out := make([]byte, 0, nBytes)
	nop := []byte{0x00, 0x00, 0x80, 0xbf}
	for len(out)+4 <= nBytes {
		out = append(out, nop...)
	}
	for len(out) < nBytes {
		out = append(out, 0)
	}
	return out
}
