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

// SgprFeatureFlags is the HSA kernel descriptor's enable_sgpr_register_flags
// 16-bit packed bitmask (spec §9 design note "Bitset-heavy enable flags"):
// which hidden user-SGPRs the dispatcher pre-loads before the kernel's first
// instruction.
type SgprFeatureFlags uint16

const (
	SgprPrivateSegmentBuffer SgprFeatureFlags = 1 << iota
	SgprDispatchPtr
	SgprQueuePtr
	SgprKernargSegmentPtr
	SgprDispatchID
	SgprFlatScratchInit
	SgprPrivateSegmentSize
	SgprGridWorkgroupCountX
	SgprGridWorkgroupCountY
	SgprGridWorkgroupCountZ
)

// Marshal returns the 16-bit wire value.
func (f SgprFeatureFlags) Marshal() uint16 { return uint16(f) }

// PopCount returns how many of the flags are set, used to derive the
// finaliser's userSGPRsNum (spec §4.8.2).
func (f SgprFeatureFlags) PopCount() int {
	n := 0
	for v := uint16(f); v != 0; v &= v - 1 {
		n++
	}
	return n
}

// FeatureFlags is the HSA kernel descriptor's enable_feature_flags 16-bit
// packed bitmask: workitem-id usage and a handful of HSA runtime toggles.
type FeatureFlags uint16

const (
	FeatureUseXNACKEnabled FeatureFlags = 1 << iota
	FeatureUseWorkitemIDX
	FeatureUseWorkitemIDY
	FeatureUseWorkitemIDZ
	FeatureUseOrderedAppendGDS
	FeaturePrivateElementSize2
	FeaturePrivateElementSize4
	FeatureUseDynamicCallStack
	FeatureUseDebugEnabled
)

// Marshal returns the 16-bit wire value.
func (f FeatureFlags) Marshal() uint16 { return uint16(f) }

// Has reports whether bit is set.
func (f FeatureFlags) Has(bit FeatureFlags) bool { return f&bit != 0 }
