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
package kconfig

import "encoding/binary"

// DefaultWavefrontSizeLog2 is the spec §3.3 default: log2(64) = 6.
const DefaultWavefrontSizeLog2 = 6

// HSADescriptor is the fixed 256-byte AMD-HSA kernel descriptor record (spec
// §3.3 "HSA descriptor"): a 128-byte packed header followed by a 128-byte
// control-directive trailer (spec §8.1 "HSA descriptor size").
type HSADescriptor struct {
	CodeVersionMajor, CodeVersionMinor uint32

	MachineKind, MachineMajor, MachineMinor, MachineStepping uint16

	KernelCodeEntryOffset    uint64
	KernelCodePrefetchOffset uint64
	KernelCodePrefetchSize   uint64

	MaxScratchBackingMemory uint64

	ComputePgmRsrc1 uint32
	ComputePgmRsrc2 uint32

	EnableSgprRegisterFlags SgprFeatureFlags
	EnableFeatureFlags      FeatureFlags

	WorkitemPrivateSegmentSize uint32
	WorkgroupGroupSegmentSize  uint32
	GDSSegmentSize             uint32
	KernargSegmentSize         uint64

	WorkgroupFBarrierCount uint32
	WavefrontSgprCount     uint16
	WorkitemVgprCount      uint16

	ReservedVgprFirst uint16
	ReservedVgprCount uint16
	ReservedSgprFirst uint16
	ReservedSgprCount uint16

	DebugWavefrontPrivateSegmentOffsetSgpr uint16
	DebugPrivateSegmentBufferSgpr          uint16

	KernargSegmentAlignLog2 uint8
	GroupSegmentAlignLog2   uint8
	PrivateSegmentAlignLog2 uint8
	WavefrontSizeLog2       uint8

	CallConvention int32

	RuntimeLoaderKernelSymbol uint64

	ControlDirective [128]byte
}

// NewHSADescriptor returns a descriptor with the spec §4.8.3 default
// sentinels filled in: code-version 1.0, machine-kind 1, code-entry-offset
// 256, prefetch {0,0}, alignments log2=4 (16 bytes), wavefront-size log2=6
// (64 lanes).
func NewHSADescriptor() *HSADescriptor {
	return &HSADescriptor{
		CodeVersionMajor:         1,
		CodeVersionMinor:         0,
		MachineKind:              1,
		KernelCodeEntryOffset:    256,
		KernelCodePrefetchOffset: 0,
		KernelCodePrefetchSize:   0,
		KernargSegmentAlignLog2:  4,
		GroupSegmentAlignLog2:    4,
		PrivateSegmentAlignLog2:  4,
		WavefrontSizeLog2:        DefaultWavefrontSizeLog2,
	}
}

// Alignment decodes a log2-encoded alignment field back to a byte count
// (spec §3.3 "Alignment fields encode log2(bytes)"; §8.1 round-trip:
// "1 << stored == v").
func Alignment(log2 uint8) uint32 {
	return 1 << uint(log2)
}

// AlignLog2 encodes a byte alignment (must already be a power of two) as its
// log2, for directive handlers assigning a *SegmentAlign field.
func AlignLog2(bytes uint32) uint8 {
	n := uint8(0)
	for bytes > 1 {
		bytes >>= 1
		n++
	}
	return n
}

// WavefrontSize decodes the log2-encoded wavefront-size field (default 6 ⇒ 64).
func WavefrontSize(log2 uint8) uint32 {
	return 1 << uint(log2)
}

// Marshal serializes the descriptor to its on-disk 256-byte little-endian
// form: 128 bytes of packed header fields, then the 128-byte control
// directive trailer verbatim (spec §4.8.3 "Byte-swap the whole 128-byte
// descriptor to little-endian").
func (d *HSADescriptor) Marshal() [256]byte {
	var out [256]byte
	b := out[:128]
	binary.LittleEndian.PutUint32(b[0:], d.CodeVersionMajor)
	binary.LittleEndian.PutUint32(b[4:], d.CodeVersionMinor)
	binary.LittleEndian.PutUint16(b[8:], d.MachineKind)
	binary.LittleEndian.PutUint16(b[10:], d.MachineMajor)
	binary.LittleEndian.PutUint16(b[12:], d.MachineMinor)
	binary.LittleEndian.PutUint16(b[14:], d.MachineStepping)
	binary.LittleEndian.PutUint64(b[16:], d.KernelCodeEntryOffset)
	binary.LittleEndian.PutUint64(b[24:], d.KernelCodePrefetchOffset)
	binary.LittleEndian.PutUint64(b[32:], d.KernelCodePrefetchSize)
	binary.LittleEndian.PutUint64(b[40:], d.MaxScratchBackingMemory)
	binary.LittleEndian.PutUint32(b[48:], d.ComputePgmRsrc1)
	binary.LittleEndian.PutUint32(b[52:], d.ComputePgmRsrc2)
	binary.LittleEndian.PutUint16(b[56:], d.EnableSgprRegisterFlags.Marshal())
	binary.LittleEndian.PutUint16(b[58:], d.EnableFeatureFlags.Marshal())
	binary.LittleEndian.PutUint32(b[60:], d.WorkitemPrivateSegmentSize)
	binary.LittleEndian.PutUint32(b[64:], d.WorkgroupGroupSegmentSize)
	binary.LittleEndian.PutUint32(b[68:], d.GDSSegmentSize)
	binary.LittleEndian.PutUint64(b[72:], d.KernargSegmentSize)
	binary.LittleEndian.PutUint32(b[80:], d.WorkgroupFBarrierCount)
	binary.LittleEndian.PutUint16(b[84:], d.WavefrontSgprCount)
	binary.LittleEndian.PutUint16(b[86:], d.WorkitemVgprCount)
	binary.LittleEndian.PutUint16(b[88:], d.ReservedVgprFirst)
	binary.LittleEndian.PutUint16(b[90:], d.ReservedVgprCount)
	binary.LittleEndian.PutUint16(b[92:], d.ReservedSgprFirst)
	binary.LittleEndian.PutUint16(b[94:], d.ReservedSgprCount)
	binary.LittleEndian.PutUint16(b[96:], d.DebugWavefrontPrivateSegmentOffsetSgpr)
	binary.LittleEndian.PutUint16(b[98:], d.DebugPrivateSegmentBufferSgpr)
	b[100] = d.KernargSegmentAlignLog2
	b[101] = d.GroupSegmentAlignLog2
	b[102] = d.PrivateSegmentAlignLog2
	b[103] = d.WavefrontSizeLog2
	binary.LittleEndian.PutUint32(b[104:], uint32(d.CallConvention))
	binary.LittleEndian.PutUint64(b[108:], d.RuntimeLoaderKernelSymbol)
	// bytes [116:128) are reserved padding, left zero.
	copy(out[128:], d.ControlDirective[:])
	return out
}
