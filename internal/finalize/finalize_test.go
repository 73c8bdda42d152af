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
package finalize

import (
	"testing"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/diag"
	"github.com/clrxng/clrxasm/internal/isaenc"
	"github.com/clrxng/clrxasm/internal/kconfig"
	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/section"
)

func TestClassicUserSGPRsNum(t *testing.T) {
	if got := ClassicUserSGPRsNum(false, false, false, false); got != 4 {
		t.Errorf("base = %d, want 4", got)
	}
	if got := ClassicUserSGPRsNum(true, true, true, true); got != 12 {
		t.Errorf("all flags = %d, want 12", got)
	}
	if got := ClassicUserSGPRsNum(true, false, false, false); got != 6 {
		t.Errorf("useArgs only = %d, want 6", got)
	}
}

func TestHsaUserSGPRsNum_CapsAtSixteen(t *testing.T) {
	got := HsaUserSGPRsNum(kconfig.SgprPrivateSegmentBuffer | kconfig.SgprDispatchPtr | kconfig.SgprQueuePtr)
	if got != 3 {
		t.Errorf("popcount = %d, want 3", got)
	}
	// every documented bit set: popcount is 10, well under the cap; a 16-bit
	// flag word has at most 16 bits set, so the all-ones value reaches the cap
	// exactly.
	if got := HsaUserSGPRsNum(kconfig.SgprFeatureFlags(0xffff)); got != 16 {
		t.Errorf("capped popcount = %d, want 16", got)
	}
}

func newTestKernel(sgprHigh, vgprHigh uint32) *kernel.Kernel {
	return &kernel.Kernel{Name: "k", AllocRegs: [2]uint32{sgprHigh, vgprHigh}}
}

func TestComputeRegisterCounts_UsesObservedHighWaterMark(t *testing.T) {
	k := newTestKernel(20, 30)
	counts := ComputeRegisterCounts(archtables.GCN1, k, 4, 0, false, false, PolicyLegacy, 0)
	if counts.UsedVGPRsNum != 30 {
		t.Errorf("UsedVGPRsNum = %d, want 30", counts.UsedVGPRsNum)
	}
	if counts.UsedSGPRsNum != 20 {
		t.Errorf("UsedSGPRsNum = %d, want 20 (no extra regs requested)", counts.UsedSGPRsNum)
	}
}

func TestComputeRegisterCounts_MinimumFromSetup(t *testing.T) {
	k := newTestKernel(0, 0)
	counts := ComputeRegisterCounts(archtables.GCN1, k, 4, 0x3, false, false, PolicyLegacy, 0)
	if counts.UsedVGPRsNum != 2 {
		t.Errorf("UsedVGPRsNum = %d, want 2 (from dimMask 0x3)", counts.UsedVGPRsNum)
	}
}

func TestComputeRegisterCounts_ExtraRegsAdded(t *testing.T) {
	k := newTestKernel(10, 0)
	counts := ComputeRegisterCounts(archtables.GCN1, k, 4, 0, false, false, PolicyLegacy, archtables.GCNFlagVCC)
	if counts.UsedSGPRsNum != 12 {
		t.Errorf("UsedSGPRsNum = %d, want 12 (10 observed + 2 VCC)", counts.UsedSGPRsNum)
	}
}

func TestComputeRegisterCounts_UnifiedPolicyStripsExtraRegs(t *testing.T) {
	k := newTestKernel(10, 0)
	legacy := ComputeRegisterCounts(archtables.GCN1, k, 4, 0, false, false, PolicyLegacy, archtables.GCNFlagVCC)
	unified := ComputeRegisterCounts(archtables.GCN1, k, 4, 0, false, false, PolicyUnifiedSGPRCount, archtables.GCNFlagVCC)
	if unified.UsedSGPRsNum != legacy.UsedSGPRsNum-2 {
		t.Errorf("unified policy SGPRs = %d, want %d (legacy minus the 2 VCC extra regs)", unified.UsedSGPRsNum, legacy.UsedSGPRsNum-2)
	}
}

func TestComputeRegisterCounts_CappedAtArchMaximum(t *testing.T) {
	k := newTestKernel(1000, 0)
	counts := ComputeRegisterCounts(archtables.GCN1, k, 4, 0, false, false, PolicyLegacy, 0)
	if counts.UsedSGPRsNum != archtables.MaxRegistersNum(archtables.GCN1, archtables.RegSGPR, 0) {
		t.Errorf("UsedSGPRsNum = %d, want the architectural ceiling", counts.UsedSGPRsNum)
	}
}

func TestPackHSADescriptor_DefaultsKernargSize(t *testing.T) {
	d := kconfig.NewHSADescriptor()
	counts := RegisterCounts{UsedSGPRsNum: 8, UsedVGPRsNum: 16, UserSGPRsNum: 4}
	PackHSADescriptor(archtables.GCN1, d, counts, 0, 0, false, false, false, false, false, false, 0, 0, 256)
	if d.KernargSegmentSize != 256 {
		t.Errorf("KernargSegmentSize = %d, want 256", d.KernargSegmentSize)
	}
}

func TestPackHSADescriptor_PreservesUntouchedRsrc2Bits(t *testing.T) {
	d := kconfig.NewHSADescriptor()
	d.ComputePgmRsrc2 = 0xffffffff
	counts := RegisterCounts{UsedSGPRsNum: 8, UsedVGPRsNum: 16, UserSGPRsNum: 4}
	PackHSADescriptor(archtables.GCN1, d, counts, 0, 0, false, false, false, false, false, false, 0, 0, 0)
	const preservedMask = 0xffffe440
	if d.ComputePgmRsrc2&preservedMask != preservedMask {
		t.Errorf("expected preserved-mask bits to survive, got %#x", d.ComputePgmRsrc2)
	}
}

type fakeResolver map[string]uint64

func (f fakeResolver) ResolveInCodeSection(name string) (uint64, bool) {
	v, ok := f[name]
	return v, ok
}

func newTestKernelState(t *testing.T, names ...string) *kernel.State {
	t.Helper()
	reg := section.New()
	enc := isaenc.NewTrackingEncoder()
	ks := kernel.NewState(reg, archtables.GCN1, enc, func(name string, reg *section.Registry) (*section.Section, error) {
		return reg.New(0, section.KindCode, name+".text")
	})
	for _, n := range names {
		if _, err := ks.AddKernel(n); err != nil {
			t.Fatal(err)
		}
	}
	return ks
}

func TestResolveHsaKernelOffsets_SortsAndDerivesCodeSize(t *testing.T) {
	ks := newTestKernelState(t, "a", "b")
	resolver := fakeResolver{"a": 256, "b": 0}
	sink := diag.NewSink()
	offs, ok := ResolveHsaKernelOffsets(ks, resolver, 256, sink)
	if !ok {
		t.Fatalf("expected success, diagnostics: %v", sink.Items())
	}
	if len(offs) != 2 || offs[0].Offset != 0 || offs[1].Offset != 256 {
		t.Fatalf("expected sorted offsets [0, 256], got %+v", offs)
	}
	if offs[0].CodeSize != 256-256 {
		t.Errorf("first kernel's code size = %d, want 0", offs[0].CodeSize)
	}
}

func TestResolveHsaKernelOffsets_UndefinedSymbolFails(t *testing.T) {
	ks := newTestKernelState(t, "a")
	sink := diag.NewSink()
	_, ok := ResolveHsaKernelOffsets(ks, fakeResolver{}, 0, sink)
	if ok {
		t.Fatal("expected failure for an unresolved kernel symbol")
	}
	if sink.Good() {
		t.Error("expected an error diagnostic")
	}
}

func TestResolveDriverVersion_UserSetTakesPrecedence(t *testing.T) {
	v, err := ResolveDriverVersion(true, 191205)
	if err != nil || v != 191205 {
		t.Fatalf("ResolveDriverVersion() = %d, %v; want 191205, nil", v, err)
	}
}
