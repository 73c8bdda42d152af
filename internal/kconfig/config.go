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
// ConfigStore (spec §4.3, C3) operates on a per-kernel Config: either the
// classic flat record or the AMD-HSA descriptor shape (spec §3.3), selected
// once per kernel by UseHsaConfig and never mixed (spec §3.2 invariant "a
// non-HSA config kernel must not mix HSA-only directives").
package kconfig

import (
	"fmt"

	"github.com/clrxng/clrxasm/internal/archtables"
)

// UserData is one AMDv1 .userdata entry: a hidden-constant class/slot/register
// range triple.
type UserData struct {
	Class    uint32
	APISlot  uint32
	RegStart uint32
	RegSize  uint32
}

// ClassicFields is the classic (non-HSA) config record of spec §3.3.
type ClassicFields struct {
	PgmRSRC1          Opt[uint32]
	PgmRSRC2          Opt[uint32]
	FloatMode         Opt[uint32]
	Priority          Opt[uint32]
	LocalSize         Opt[uint32]
	GDSSize           Opt[uint32]
	ScratchBufferSize Opt[uint32]
	Exceptions        Opt[uint32]
	DimMask           Opt[uint32]
	DebugMode         bool
	Dx10Clamp         bool
	IeeeMode          bool
	PrivilegedMode    bool
	TgSize            bool

	// AMDv1-only.
	UserDatas []UserData

	// AMDCL2-classic-only hidden-argument toggles.
	UseArgs    bool
	UseSetup   bool
	UseEnqueue bool
	UseGeneric bool
}

// Config is the per-kernel configuration aggregate (spec §3.3). Fields
// common to both shapes (arguments, samplers, CWS hints) live here; the
// shape-specific fields live in Classic or Hsa, exactly one of which is
// non-nil once a kernel has entered a config mode (spec §4.6.5 state
// machine).
type Config struct {
	UseHsaConfig bool
	Classic      *ClassicFields
	Hsa          *HSADescriptor

	UsedSGPRsNum Opt[uint32]
	UsedVGPRsNum Opt[uint32]

	Args              []Argument
	Samplers          []uint32
	ReqdWorkGroupSize [3]uint32
	WorkGroupSizeHint [3]uint32
	VecTypeHint       string
}

// NewClassicConfig returns a Config in classic mode.
func NewClassicConfig() *Config {
	return &Config{Classic: &ClassicFields{}}
}

// NewHsaConfig returns a Config in AMD-HSA descriptor mode.
func NewHsaConfig() *Config {
	return &Config{UseHsaConfig: true, Hsa: NewHSADescriptor()}
}

// Target names one of ConfigStore's ~60 assignable config fields (spec
// §4.3's setScalar target parameter).
type Target int

const (
	TargetUsedSGPRsNum Target = iota
	TargetUsedVGPRsNum
	TargetPgmRSRC1
	TargetPgmRSRC2
	TargetFloatMode
	TargetPriority
	TargetLocalSize
	TargetGDSSize
	TargetScratchBufferSize
	TargetExceptions
	TargetDimMask
	// HSA-only scalar targets.
	TargetKernargSegmentSize
	TargetWorkitemPrivateSegmentSize
	TargetWorkgroupGroupSegmentSize
	TargetGDSSegmentSize
	TargetUserDataNum
	TargetWavefrontSgprCount
	TargetWorkitemVgprCount
)

// hsaTargets is the set of targets only meaningful on an HSA-shaped config;
// everything else is classic-only or shared, per IsHsaTarget.
var hsaTargets = map[Target]bool{
	TargetKernargSegmentSize:         true,
	TargetWorkitemPrivateSegmentSize: true,
	TargetWorkgroupGroupSegmentSize:  true,
	TargetGDSSegmentSize:             true,
	TargetUserDataNum:                true,
	TargetWavefrontSgprCount:         true,
	TargetWorkitemVgprCount:          true,
}

// classicOnlyTargets cannot be set on an HSA-shaped config.
var classicOnlyTargets = map[Target]bool{
	TargetPgmRSRC1:  true,
	TargetPriority:  true,
	TargetFloatMode: true,
}

// IsHsaTarget classifies a target as HSA-only, classic-only, or shared (spec
// §4.3's isHsaTarget).
func IsHsaTarget(t Target) bool { return hsaTargets[t] }

// IsClassicOnlyTarget reports whether t may only be set on a classic config.
func IsClassicOnlyTarget(t Target) bool { return classicOnlyTargets[t] }

// Store is the ConfigStore component bound to one kernel's Config and the
// architecture its limits are checked against.
type Store struct {
	Config *Config
	Arch   archtables.GPUArchitecture
}

// NewStore binds a ConfigStore to a kernel's Config.
func NewStore(cfg *Config, arch archtables.GPUArchitecture) *Store {
	return &Store{Config: cfg, Arch: arch}
}

// SetScalar validates value against GPU-architecture limits for target and,
// if valid, assigns it (spec §4.3's setScalar). It rejects HSA-only targets
// on a classic config and vice versa, except for the three aliased fields
// Open Question 4 calls out (LOCALSIZE/GDSSIZE/SCRATCHBUFFER forwarded into
// the HSA descriptor when UseHsaConfig is set).
func (s *Store) SetScalar(t Target, value uint64) error {
	c := s.Config
	if c.UseHsaConfig && IsClassicOnlyTarget(t) {
		return fmt.Errorf("directive is not available for a kernel using the HSA configuration")
	}
	if !c.UseHsaConfig && IsHsaTarget(t) {
		return fmt.Errorf("directive requires a kernel using the HSA configuration (.hsaconfig)")
	}
	switch t {
	case TargetUsedSGPRsNum:
		max := archtables.MaxRegistersNum(s.Arch, archtables.RegSGPR, 0)
		if uint32(value) > max {
			return fmt.Errorf("number of SGPRs %d exceeds architectural maximum %d", value, max)
		}
		c.UsedSGPRsNum = Set(uint32(value))
	case TargetUsedVGPRsNum:
		max := archtables.MaxRegistersNum(s.Arch, archtables.RegVGPR, 0)
		if uint32(value) > max {
			return fmt.Errorf("number of VGPRs %d exceeds architectural maximum %d", value, max)
		}
		c.UsedVGPRsNum = Set(uint32(value))
	case TargetPgmRSRC1:
		c.Classic.PgmRSRC1 = Set(uint32(value))
	case TargetPgmRSRC2:
		if c.UseHsaConfig {
			c.Hsa.ComputePgmRsrc2 = uint32(value)
		} else {
			c.Classic.PgmRSRC2 = Set(uint32(value))
		}
	case TargetFloatMode:
		if value > 0xff {
			return fmt.Errorf("float mode value %d out of range (0-255)", value)
		}
		c.Classic.FloatMode = Set(uint32(value))
	case TargetPriority:
		if value > 3 {
			return fmt.Errorf("priority value %d out of range (0-3)", value)
		}
		c.Classic.Priority = Set(uint32(value))
	case TargetLocalSize:
		max := archtables.MaxLocalSize(s.Arch)
		if uint32(value) > max {
			return fmt.Errorf("local size %d exceeds architectural maximum %d", value, max)
		}
		if c.UseHsaConfig {
			// Open Question: classic-named directive aliases into the HSA
			// descriptor's workgroupGroupSegmentSize when useHsaConfig is set.
			c.Hsa.WorkgroupGroupSegmentSize = uint32(value)
		} else {
			c.Classic.LocalSize = Set(uint32(value))
		}
	case TargetGDSSize:
		max := archtables.MaxGDSSize(s.Arch)
		if uint32(value) > max {
			return fmt.Errorf("GDS size %d exceeds architectural maximum %d", value, max)
		}
		if c.UseHsaConfig {
			c.Hsa.GDSSegmentSize = uint32(value)
		} else {
			c.Classic.GDSSize = Set(uint32(value))
		}
	case TargetScratchBufferSize:
		if c.UseHsaConfig {
			c.Hsa.WorkitemPrivateSegmentSize = uint32(value)
		} else {
			c.Classic.ScratchBufferSize = Set(uint32(value))
		}
	case TargetExceptions:
		if value > 0x7f {
			return fmt.Errorf("exceptions mask 0x%x out of range (7 bits)", value)
		}
		c.Classic.Exceptions = Set(uint32(value))
	case TargetDimMask:
		if value > 7 {
			return fmt.Errorf("dimension mask 0x%x out of range (3 bits)", value)
		}
		if c.UseHsaConfig {
			c.Hsa.ComputePgmRsrc2 = (c.Hsa.ComputePgmRsrc2 &^ (0x7 << 7)) | (uint32(value) << 7)
		} else {
			c.Classic.DimMask = Set(uint32(value))
		}
	case TargetKernargSegmentSize:
		c.Hsa.KernargSegmentSize = value
	case TargetWorkitemPrivateSegmentSize:
		c.Hsa.WorkitemPrivateSegmentSize = uint32(value)
	case TargetWorkgroupGroupSegmentSize:
		max := archtables.MaxLocalSize(s.Arch)
		if uint32(value) > max {
			return fmt.Errorf("group segment size %d exceeds architectural maximum %d", value, max)
		}
		c.Hsa.WorkgroupGroupSegmentSize = uint32(value)
	case TargetGDSSegmentSize:
		c.Hsa.GDSSegmentSize = uint32(value)
	case TargetUserDataNum:
		if value > 16 {
			return fmt.Errorf("user data count %d exceeds maximum 16", value)
		}
	case TargetWavefrontSgprCount:
		c.Hsa.WavefrontSgprCount = uint16(value)
	case TargetWorkitemVgprCount:
		c.Hsa.WorkitemVgprCount = uint16(value)
	default:
		return fmt.Errorf("unknown config target %d", t)
	}
	return nil
}

// SetBool sets a named classic boolean field (spec §4.3's setBool); HSA
// feature-flag-word booleans are set through the dialect handlers directly
// via SgprFeatureFlags/FeatureFlags bit constants instead, since those OR
// into one packed word rather than a standalone struct field.
func (s *Store) SetBool(name string) error {
	c := s.Config
	if c.UseHsaConfig {
		return fmt.Errorf("directive %q is not available for a kernel using the HSA configuration", name)
	}
	switch name {
	case "debugMode":
		c.Classic.DebugMode = true
	case "dx10Clamp":
		c.Classic.Dx10Clamp = true
	case "ieeeMode":
		c.Classic.IeeeMode = true
	case "privilegedMode":
		c.Classic.PrivilegedMode = true
	case "tgSize":
		c.Classic.TgSize = true
	default:
		return fmt.Errorf("unknown boolean config field %q", name)
	}
	return nil
}

// SetTuple3 assigns a CWS-style triple (.cws / .reqd_work_group_size /
// .work_group_size_hint), per spec §4.3's setTuple3.
func (s *Store) SetTuple3(which string, v [3]uint32) error {
	switch which {
	case "reqdWorkGroupSize":
		s.Config.ReqdWorkGroupSize = v
	case "workGroupSizeHint":
		s.Config.WorkGroupSizeHint = v
	default:
		return fmt.Errorf("unknown tuple config field %q", which)
	}
	return nil
}
