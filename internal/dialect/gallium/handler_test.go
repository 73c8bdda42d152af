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
package gallium

import (
	"testing"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/isaenc"
	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/section"
)

func newTestHandler(llvmVersion int) *Handler {
	reg := section.New()
	enc := isaenc.NewTrackingEncoder()
	ks := kernel.NewState(reg, archtables.GCN1, enc, func(name string, r *section.Registry) (*section.Section, error) {
		return NewCodeSectionFor(r)
	})
	return New(reg, ks, archtables.GCN1, llvmVersion)
}

func TestHandler_Name(t *testing.T) {
	h := newTestHandler(0)
	if h.Name() != "gallium" {
		t.Errorf("Name() = %q, want gallium", h.Name())
	}
}

func TestHandler_UsesHsaPath(t *testing.T) {
	if newTestHandler(3*100 + 9).UsesHsaPath() {
		t.Error("LLVM 3.9 must not use the HSA path")
	}
	if !newTestHandler(4 * 100).UsesHsaPath() {
		t.Error("LLVM 4.0 must use the HSA path")
	}
}

func TestHandler_AddKernel_HsaPathInitializesCfg(t *testing.T) {
	h := newTestHandler(HsaPathLLVMVersion)
	id, err := h.AddKernel("k0")
	if err != nil {
		t.Fatal(err)
	}
	k := h.Kernels.Get(id)
	if !k.UseHsaConfig || k.Cfg == nil || k.Cfg.Hsa == nil {
		t.Fatal("expected HSA-path kernels to get an HSA config immediately")
	}
}

func TestHandler_ProgInfo_RejectedOnHsaPath(t *testing.T) {
	h := newTestHandler(HsaPathLLVMVersion)
	id, _ := h.AddKernel("k0")
	h.Kernels.SwitchKernel(id)
	if h.handleProgInfo("0x1000, 1") {
		t.Fatal("expected .proginfo to fail once the HSA descriptor path is active")
	}
}

func TestHandler_ProgInfo_CapsAtMaxEntries(t *testing.T) {
	h := newTestHandler(0) // below both gates: cap is 3
	id, _ := h.AddKernel("k0")
	h.Kernels.SwitchKernel(id)
	for i := 0; i < 3; i++ {
		if !h.handleProgInfo("0x1000, 1") {
			t.Fatalf("entry %d should have succeeded", i)
		}
	}
	if h.handleProgInfo("0x1000, 1") {
		t.Fatal("expected a 4th prog-info entry to be rejected below the spilled-regs LLVM gate")
	}
}

func TestHandler_Spilled_GatedByLLVMVersion(t *testing.T) {
	h := newTestHandler(MinSpilledRegsLLVMVersion - 1)
	id, _ := h.AddKernel("k0")
	h.Kernels.SwitchKernel(id)
	if h.handleSpilled(true)("4") {
		t.Fatal("expected .spilledsgprs to require LLVM >= 3.9")
	}

	h2 := newTestHandler(MinSpilledRegsLLVMVersion)
	id2, _ := h2.AddKernel("k0")
	h2.Kernels.SwitchKernel(id2)
	if !h2.handleSpilled(true)("4") {
		t.Fatal("expected .spilledsgprs to succeed at the gate version")
	}
	if h2.extra[id2].spilledSGP.val != 4 || !h2.extra[id2].spilledSGP.set {
		t.Errorf("spilledSGP = %+v, want {4 true}", h2.extra[id2].spilledSGP)
	}
}

func TestKernargSegmentSize_SumsAlignedSizes(t *testing.T) {
	h := newTestHandler(0)
	id, _ := h.AddKernel("k0")
	h.Kernels.SwitchKernel(id)
	h.handleArg("global, buf, 8")
	h.handleArg("scalar, n, 4")
	got := h.KernargSegmentSize(id)
	if got != 12 {
		t.Errorf("KernargSegmentSize() = %d, want 12", got)
	}
}

func TestTargetSizeAndAlign_GridOffsetForcesTwelve(t *testing.T) {
	ts, align := targetSizeAndAlign(4, SemanticGridOffset)
	if ts != 12 {
		t.Errorf("target size = %d, want 12 for grid_offset", ts)
	}
	if align != 16 {
		t.Errorf("target align = %d, want 16", align)
	}
}

func TestHandler_RecordScratchRelocation(t *testing.T) {
	h := newTestHandler(0)
	h.RecordScratchRelocation(10, 1)
	if len(h.ScratchRelocs) != 1 || h.ScratchRelocs[0].Offset != 10 {
		t.Fatalf("ScratchRelocs = %+v, want one entry at offset 10", h.ScratchRelocs)
	}
}

func TestHandler_SectionInfo_ScratchIsUnresolvable(t *testing.T) {
	h := newTestHandler(0)
	id, err := h.AddSection("scratchsym", section.OwnerGlobal)
	if err != nil {
		t.Fatal(err)
	}
	_, flags := h.SectionInfo(id)
	if flags != section.FlagUnresolvable {
		t.Errorf("SectionInfo() flags = %v, want FlagUnresolvable", flags)
	}
}
