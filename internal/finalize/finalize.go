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
// Package finalize implements the Finaliser component (spec §4.8, C8):
// prepareBinary's eight-step process, shared across all four dialects,
// called exactly once after all directives have been consumed.
package finalize

import (
	"fmt"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/diag"
	"github.com/clrxng/clrxasm/internal/driverdetect"
	"github.com/clrxng/clrxasm/internal/kconfig"
	"github.com/clrxng/clrxasm/internal/kernel"
)

// RegisterCounts is the step-2 output for one kernel (spec §4.8 step 2).
type RegisterCounts struct {
	UsedSGPRsNum uint32
	UsedVGPRsNum uint32
	UserSGPRsNum uint32
	DimMask      uint32
}

// ClassicUserSGPRsNum derives userSGPRsNum from the classic AMDCL2
// use{Args,Setup,Enqueue,Generic} flags (spec §4.8 step 2: "4/6/8/10/12").
func ClassicUserSGPRsNum(useArgs, useSetup, useEnqueue, useGeneric bool) uint32 {
	n := uint32(4)
	if useArgs {
		n += 2
	}
	if useSetup {
		n += 2
	}
	if useEnqueue {
		n += 2
	}
	if useGeneric {
		n += 2
	}
	return n
}

// HsaUserSGPRsNum derives userSGPRsNum from the HSA enable-sgpr flags'
// popcount, capped at 16 (spec §4.8 step 2).
func HsaUserSGPRsNum(flags kconfig.SgprFeatureFlags) uint32 {
	n := flags.PopCount()
	if n > 16 {
		n = 16
	}
	return uint32(n)
}

// PolicyVersion gates the unified-SGPR-count behaviour of spec §8.1.
type PolicyVersion int

const (
	PolicyLegacy PolicyVersion = iota
	PolicyUnifiedSGPRCount
)

// ComputeRegisterCounts runs step 2 for one kernel whose usedSGPRsNum/
// usedVGPRsNum are unset, applying the extra-register accounting and the
// unified-SGPR-count policy toggle (spec §4.8 step 2, §8.1 "Unified-SGPR
// policy").
func ComputeRegisterCounts(arch archtables.GPUArchitecture, k *kernel.Kernel, userSGPRs uint32, dimMask uint32,
	tgSize, scratchEnable bool, policy PolicyVersion, regFlags uint32) RegisterCounts {

	var setupFlags uint32
	if tgSize {
		setupFlags |= archtables.SetupTgSizeEnable
	}
	if scratchEnable {
		setupFlags |= archtables.SetupScratchEnable
	}
	minSGPR, minVGPR := archtables.SetupMinRegistersNum(arch, dimMask, userSGPRs, setupFlags)

	extraSGPR := archtables.ExtraRegsNum(arch, archtables.RegSGPR, regFlags)
	maxSGPR := archtables.MaxRegistersNum(arch, archtables.RegSGPR, regFlags)

	observedSGPR := k.AllocRegs[0]
	if observedSGPR < minSGPR {
		observedSGPR = minSGPR
	}
	usedSGPR := observedSGPR + extraSGPR
	if usedSGPR > maxSGPR {
		usedSGPR = maxSGPR
	}
	if policy == PolicyUnifiedSGPRCount {
		if usedSGPR > extraSGPR {
			usedSGPR -= extraSGPR
		} else {
			usedSGPR = 0
		}
	}

	usedVGPR := k.AllocRegs[1]
	if usedVGPR < minVGPR {
		usedVGPR = minVGPR
	}

	return RegisterCounts{
		UsedSGPRsNum: usedSGPR,
		UsedVGPRsNum: usedVGPR,
		UserSGPRsNum: userSGPRs,
		DimMask:      dimMask,
	}
}

// PackHSADescriptor runs step 3: fills default sentinels (already done by
// kconfig.NewHSADescriptor), computes kernargSegmentSize if unset, and
// recomputes computePgmRsrc1/2 over the user-supplied raw bits, preserving
// the bits outside the finaliser-owned mask (spec §4.8 step 3, §8.1
// "Pgmrsrc overlay").
func PackHSADescriptor(arch archtables.GPUArchitecture, d *kconfig.HSADescriptor, counts RegisterCounts,
	priority, floatMode uint32, privileged, dx10Clamp, debugMode, ieeeMode bool,
	scratchEnable, tgSizeEnable bool, exceptions uint32, localSize uint32, argsKernargSize uint32) {

	if d.KernargSegmentSize == 0 {
		d.KernargSegmentSize = uint64(argsKernargSize)
	}

	d.ComputePgmRsrc1 |= archtables.PgmRSrc1(arch, counts.UsedVGPRsNum, counts.UsedSGPRsNum, priority, floatMode, privileged, dx10Clamp, debugMode, ieeeMode)

	const rsrc2PreservedMask = 0xffffe440
	computed := archtables.PgmRSrc2(arch, scratchEnable, counts.UserSGPRsNum, false, counts.DimMask, 0, tgSizeEnable, exceptions, localSize)
	d.ComputePgmRsrc2 = (d.ComputePgmRsrc2 & rsrc2PreservedMask) | (computed &^ rsrc2PreservedMask)
}

// KernelOffset is step 4's per-kernel output for HSA-layout dialects: the
// resolved symbol offset and the derived code size (spec §4.8 step 4).
type KernelOffset struct {
	ID       kernel.Id
	Offset   uint64
	CodeSize uint64
}

// SymbolResolver is the minimal symbol lookup the HSA kernel-offset step
// needs: a defined symbol's value and whether it lies in the code section.
type SymbolResolver interface {
	ResolveInCodeSection(name string) (value uint64, ok bool)
}

// ResolveHsaKernelOffsets implements step 4 for HSA-layout dialects: for each
// kernel, resolves its name symbol, verifies it is defined and in the code
// section, sorts by offset, and derives each kernel's code size as the gap to
// the next kernel minus setupSize (spec §4.8 step 4).
func ResolveHsaKernelOffsets(ks *kernel.State, resolver SymbolResolver, setupSize uint64, sink *diag.Sink) ([]KernelOffset, bool) {
	good := true
	var offs []KernelOffset
	for id, k := range ks.All() {
		val, ok := resolver.ResolveInCodeSection(k.Name)
		if !ok {
			sink.Errorf(diag.Pos{}, "kernel symbol %q is undefined or not in the code section", k.Name)
			good = false
			continue
		}
		offs = append(offs, KernelOffset{ID: kernel.Id(id), Offset: val})
	}
	if !good {
		return nil, false
	}
	for i := 1; i < len(offs); i++ {
		for j := i; j > 0 && offs[j-1].Offset > offs[j].Offset; j-- {
			offs[j-1], offs[j] = offs[j], offs[j-1]
		}
	}
	for i := range offs {
		if i+1 < len(offs) {
			gap := offs[i+1].Offset - offs[i].Offset
			if gap < setupSize {
				sink.Errorf(diag.Pos{}, "kernel %q has negative derived code size", ks.Get(offs[i].ID).Name)
				good = false
				continue
			}
			offs[i].CodeSize = gap - setupSize
		}
	}
	return offs, good
}

// ResolveDriverVersion implements step 7: if not user-set, probe the
// environment via driverdetect's process-wide cache (spec §4.8 step 7).
func ResolveDriverVersion(userSet bool, userValue int) (int, error) {
	if userSet {
		return userValue, nil
	}
	v, ok := driverdetect.DetectAmdDriverVersion()
	if !ok {
		return 0, fmt.Errorf("driver version not specified and auto-detection failed")
	}
	return int(v), nil
}
