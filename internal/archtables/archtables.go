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
// Package archtables is the ArchTables collaborator (spec §6.1): GPU device
// enumeration, per-architecture register/LDS/GDS limits, and the PGM_RSRC1/2
// bit-packing helpers the finaliser calls during prepareBinary (spec §4.8.3).
//
// Exact per-device limits vary by silicon revision in the real runtime; this
// package tracks them per architecture generation (the granularity spec.md's
// finaliser actually consumes: "GPU-architecture limits") rather than per
// individual device, mirroring the teacher's single `parsers` registry
// indexed by a coarse key (arch.go's map[string]ArchParser) rather than one
// entry per silicon stepping.
package archtables

import "fmt"

// GPUArchitecture is a GCN/RDNA instruction-set generation.
type GPUArchitecture int

const (
	GCN1 GPUArchitecture = iota
	GCN1_1
	GCN1_2
	GCN1_4
	RDNA1
	RDNA2
)

func (a GPUArchitecture) String() string {
	switch a {
	case GCN1:
		return "GCN1.0"
	case GCN1_1:
		return "GCN1.1"
	case GCN1_2:
		return "GCN1.2"
	case GCN1_4:
		return "GCN1.4"
	case RDNA1:
		return "RDNA1"
	case RDNA2:
		return "RDNA2"
	default:
		return "unknown"
	}
}

// GPUDeviceType names a specific GPU codename accepted by .gpu/-g.
type GPUDeviceType int

const (
	DeviceCapeVerde GPUDeviceType = iota
	DevicePitcairn
	DeviceTahiti
	DeviceOland
	DeviceBonaire
	DeviceHawaii
	DeviceFiji
	DeviceTonga
	DeviceVega10
	DeviceVega20
	DeviceNavi10
	DeviceNavi21
)

var deviceNames = map[string]GPUDeviceType{
	"capeverde": DeviceCapeVerde,
	"pitcairn":  DevicePitcairn,
	"tahiti":    DeviceTahiti,
	"oland":     DeviceOland,
	"bonaire":   DeviceBonaire,
	"hawaii":    DeviceHawaii,
	"fiji":      DeviceFiji,
	"tonga":     DeviceTonga,
	"vega10":    DeviceVega10,
	"vega20":    DeviceVega20,
	"navi10":    DeviceNavi10,
	"navi21":    DeviceNavi21,
}

// DeviceFromName resolves a .gpu argument (case-insensitive) to a device type.
func DeviceFromName(name string) (GPUDeviceType, bool) {
	d, ok := deviceNames[lower(name)]
	return d, ok
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// ArchOf maps a device to its instruction-set generation.
func ArchOf(d GPUDeviceType) GPUArchitecture {
	switch d {
	case DeviceCapeVerde, DevicePitcairn, DeviceTahiti, DeviceOland:
		return GCN1
	case DeviceBonaire, DeviceHawaii:
		return GCN1_1
	case DeviceFiji, DeviceTonga:
		return GCN1_2
	case DeviceVega10, DeviceVega20:
		return GCN1_4
	case DeviceNavi10:
		return RDNA1
	case DeviceNavi21:
		return RDNA2
	default:
		return GCN1
	}
}

// RegType selects which register bank a limit or extra-register query applies to.
type RegType int

const (
	RegSGPR RegType = iota
	RegVGPR
)

// Extra-register-usage flags, ORed into the flags argument of ExtraRegsNum and
// SetupMinRegistersNum.
const (
	GCNFlagVCC uint32 = 1 << iota
	GCNFlagFlatScratch
	GCNFlagXNACK
)

const (
	SetupTgSizeEnable uint32 = 1 << iota
	SetupScratchEnable
)

// limits holds the per-architecture register/LDS/GDS ceilings.
type limits struct {
	maxSGPRs    uint32
	maxVGPRs    uint32
	maxLocal    uint32
	maxGDS      uint32
	extraSGPRv1 uint32 // extra SGPRs reserved pre-GCN1.2 (VCC+FLAT_SCRATCH)
	extraSGPRv2 uint32 // extra SGPRs reserved from GCN1.2 onward
}

var archLimits = map[GPUArchitecture]limits{
	GCN1:   {maxSGPRs: 104, maxVGPRs: 256, maxLocal: 32768, maxGDS: 65536, extraSGPRv1: 2, extraSGPRv2: 4},
	GCN1_1: {maxSGPRs: 104, maxVGPRs: 256, maxLocal: 65536, maxGDS: 65536, extraSGPRv1: 2, extraSGPRv2: 4},
	GCN1_2: {maxSGPRs: 102, maxVGPRs: 256, maxLocal: 65536, maxGDS: 65536, extraSGPRv1: 2, extraSGPRv2: 6},
	GCN1_4: {maxSGPRs: 102, maxVGPRs: 256, maxLocal: 65536, maxGDS: 65536, extraSGPRv1: 2, extraSGPRv2: 6},
	RDNA1:  {maxSGPRs: 106, maxVGPRs: 256, maxLocal: 65536, maxGDS: 65536, extraSGPRv1: 2, extraSGPRv2: 6},
	RDNA2:  {maxSGPRs: 106, maxVGPRs: 256, maxLocal: 65536, maxGDS: 65536, extraSGPRv1: 2, extraSGPRv2: 6},
}

// MaxRegistersNum returns the architectural maximum count of SGPRs or VGPRs,
// per ArchTables.getGPUMaxRegistersNum (spec §6.1). flags is reserved for
// future XNACK-reserves-2-SGPR-slots style adjustments; it is accepted for
// interface parity with the spec and currently only affects SGPR counts when
// GCNFlagXNACK is set on GCN1_2+ (XNACK reserves two trailing SGPRs).
func MaxRegistersNum(arch GPUArchitecture, reg RegType, flags uint32) uint32 {
	l := archLimits[arch]
	if reg == RegSGPR {
		max := l.maxSGPRs
		if flags&GCNFlagXNACK != 0 && arch >= GCN1_2 {
			max -= 2
		}
		return max
	}
	return l.maxVGPRs
}

// MaxLocalSize returns the architectural LDS ceiling in bytes.
func MaxLocalSize(arch GPUArchitecture) uint32 { return archLimits[arch].maxLocal }

// MaxGDSSize returns the architectural GDS ceiling in bytes.
func MaxGDSSize(arch GPUArchitecture) uint32 { return archLimits[arch].maxGDS }

// ExtraRegsNum returns the count of registers reserved beyond what the
// programmer allocates: VCC (2 SGPRs), FLAT_SCRATCH (2 or 4 SGPRs depending
// on generation) and XNACK (2 SGPRs from GCN1_2), each only when its flag
// bit is set in flags. Only meaningful for RegSGPR; VGPR has no extra regs.
func ExtraRegsNum(arch GPUArchitecture, reg RegType, flags uint32) uint32 {
	if reg == RegVGPR {
		return 0
	}
	var n uint32
	if flags&GCNFlagVCC != 0 {
		n += 2
	}
	if flags&GCNFlagFlatScratch != 0 {
		if arch >= GCN1_2 {
			n += 4
		} else {
			n += 2
		}
	}
	if flags&GCNFlagXNACK != 0 && arch >= GCN1_2 {
		n += 2
	}
	return n
}

// SetupMinRegistersNum computes the minimum SGPR/VGPR counts implied by the
// dispatch setup: one VGPR per enabled workitem-id dimension in dimMask, and
// SGPRs for the user-data count plus dispatch-provided workgroup ids per
// dimension, plus one more for each of GPUSETUP_TGSIZE_EN/GPUSETUP_SCRATCH_EN
// that is set.
// Mirrors AsmAmdCL2Format.cpp's getGPUSetupMinRegistersNum call shape.
func SetupMinRegistersNum(arch GPUArchitecture, dimMask uint32, userSGPRs uint32, flags uint32) (minSGPR, minVGPR uint32) {
	dims := popcount3(dimMask)
	minVGPR = uint32(dims)
	if minVGPR == 0 {
		minVGPR = 1
	}
	minSGPR = userSGPRs + uint32(dims) // one SGPR per enabled workgroup-id dimension
	if flags&SetupTgSizeEnable != 0 {
		minSGPR++
	}
	if flags&SetupScratchEnable != 0 {
		minSGPR++
	}
	return minSGPR, minVGPR
}

func popcount3(mask uint32) int {
	n := 0
	for i := 0; i < 3; i++ {
		if mask&(1<<uint(i)) != 0 {
			n++
		}
	}
	return n
}

// DefaultDimMask derives the dim-mask default from bits [7..9] of a packed
// PGM_RSRC2-shaped register when the user never set .dims explicitly
// (spec §4.8.2).
func DefaultDimMask(arch GPUArchitecture, pgmRSRC2 uint32) uint32 {
	return (pgmRSRC2 >> 7) & 0x7
}

// PgmRSrc1 packs COMPUTE_PGM_RSRC1: VGPR/SGPR bands (rounded up to the
// hardware's allocation granularity), priority, float-mode, privileged/
// dx10Clamp/debug/ieee single bits.
func PgmRSrc1(arch GPUArchitecture, vgprsNum, sgprsNum, priority, floatMode uint32, privileged, dx10Clamp, debugMode, ieeeMode bool) uint32 {
	vgprBand := (vgprsNum - 1) / 4
	sgprGran := uint32(8)
	if arch >= GCN1_2 {
		sgprGran = 16
	}
	sgprBand := (sgprsNum - 1) / sgprGran
	var r uint32
	r |= vgprBand & 0x3f
	r |= (sgprBand & 0xf) << 6
	r |= (priority & 0x3) << 10
	r |= (floatMode & 0xff) << 12
	if privileged {
		r |= 1 << 20
	}
	if dx10Clamp {
		r |= 1 << 21
	}
	if debugMode {
		r |= 1 << 22
	}
	if ieeeMode {
		r |= 1 << 23
	}
	return r
}

// PgmRSrc2 packs COMPUTE_PGM_RSRC2: scratch-enable, user-SGPR count,
// trap-present, tg-id-{x,y,z}-enable (derived from dimMask), tg-size-enable,
// LDS-size band (from localSize), and the exception mask.
func PgmRSrc2(arch GPUArchitecture, scratchEnable bool, userSGPRsNum uint32, trapPresent bool, dimMask uint32, ldsSizeRaw uint32, tgSizeEnable bool, exceptions uint32, localSize uint32) uint32 {
	var r uint32
	if scratchEnable {
		r |= 1
	}
	r |= (userSGPRsNum & 0x1f) << 1
	if trapPresent {
		r |= 1 << 6
	}
	r |= (dimMask & 0x7) << 7
	if tgSizeEnable {
		r |= 1 << 10
	}
	ldsGran := uint32(256)
	ldsBand := (localSize + ldsGran - 1) / ldsGran
	r |= (ldsBand & 0x1ff) << 15
	r |= (exceptions & 0x7f) << 24
	_ = ldsSizeRaw
	return r
}

// ArchVersion returns the name of the device's architecture family, for
// diagnostics.
func ArchVersion(d GPUDeviceType) string {
	a := ArchOf(d)
	return fmt.Sprintf("%s", a)
}
