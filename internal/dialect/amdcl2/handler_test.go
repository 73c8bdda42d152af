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
package amdcl2

import (
	"testing"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/diag"
	"github.com/clrxng/clrxasm/internal/finalize"
	"github.com/clrxng/clrxasm/internal/isaenc"
	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/section"
)

func newTestHandler(driverVersion int) *Handler {
	reg := section.New()
	enc := isaenc.NewTrackingEncoder()
	var h *Handler
	ks := kernel.NewState(reg, archtables.GCN1, enc, func(name string, r *section.Registry) (*section.Section, error) {
		return NewCodeSectionFor(h)(name, r)
	})
	h = New(reg, ks, archtables.GCN1, driverVersion, true, finalize.PolicyLegacy)
	return h
}

func TestHandler_Name(t *testing.T) {
	h := newTestHandler(0)
	if h.Name() != "amdcl2" {
		t.Errorf("Name() = %q, want amdcl2", h.Name())
	}
}

func TestHandler_HsaLayout_RejectedAfterKernel(t *testing.T) {
	h := newTestHandler(0)
	if _, err := h.AddKernel("k0"); err != nil {
		t.Fatal(err)
	}
	if ok := h.handleHsaLayout(""); ok {
		t.Fatal(".hsalayout must fail once a kernel already exists")
	}
}

func TestHandler_NewBinaryFeatures_GatedByDriverVersion(t *testing.T) {
	h := newTestHandler(1912*100 + 4) // one below the gate
	if _, err := h.AddSection("rodata", section.OwnerInner); err == nil {
		t.Fatal("expected .rodata to require driver >= 1912.05")
	}

	h2 := newTestHandler(1912*100 + 5)
	if _, err := h2.AddSection("rodata", section.OwnerInner); err != nil {
		t.Fatalf("expected .rodata to succeed at the gate version, got %v", err)
	}
}

func TestHandler_SetupArgs_InsertsSixHiddenArgsOnce(t *testing.T) {
	h := newTestHandler(0)
	id, _ := h.AddKernel("k0")
	h.HsaLayout = false
	k := h.Kernels.Get(id)
	h.handleHsaConfig("")
	if k.Cfg == nil {
		t.Fatal("expected .hsaconfig to initialize Cfg")
	}

	if !h.handleSetupArgs("") {
		t.Fatal("expected first setupargs to succeed")
	}
	if len(k.Cfg.Args) != len(setupArgNames) {
		t.Fatalf("len(Args) = %d, want %d", len(k.Cfg.Args), len(setupArgNames))
	}
	if h.handleSetupArgs("") {
		t.Fatal("expected a second setupargs on the same kernel to fail")
	}
}

func TestHandler_RecordLoHiRelocation_RejectsNonDataSections(t *testing.T) {
	h := newTestHandler(1912*100 + 5)
	id, _ := h.AddKernel("k0")
	if _, err := h.AddSection("rodata", section.OwnerInner); err != nil {
		t.Fatal(err)
	}
	if err := h.RecordLoHiRelocation(id, 0, ".rodata", 0, false); err != nil {
		t.Fatalf("expected .rodata to be a valid relocation target, got %v", err)
	}

	sid, err := h.Sections.New(section.OwnerInner, section.KindCode, ".text2")
	if err != nil {
		t.Fatal(err)
	}
	h.Sections.GoTo(sid.Id)
	if err := h.RecordLoHiRelocation(id, 0, ".text2", 0, false); err == nil {
		t.Fatal("expected a code section to be rejected as a relocation target")
	}
}

func TestHandler_PrepareBinary_BackfillsHsaRegisterCounts(t *testing.T) {
	h := newTestHandler(0)
	id, _ := h.AddKernel("k0")
	h.Kernels.SwitchKernel(id)
	h.handleHsaConfig("")
	h.Kernels.Encoder.Touch(0, 12, 0)

	sink := diag.NewSink()
	if ok := h.PrepareBinary(sink); !ok {
		t.Fatalf("PrepareBinary failed: %v", sink.Items())
	}
	k := h.Kernels.Get(id)
	if !k.Cfg.UsedSGPRsNum.IsSet() {
		t.Error("expected UsedSGPRsNum to be backfilled from the HSA sgpr feature flags")
	}
	if !k.Cfg.UsedVGPRsNum.IsSet() || k.Cfg.UsedVGPRsNum.Get() != 12 {
		t.Errorf("UsedVGPRsNum = %+v, want set to 12", k.Cfg.UsedVGPRsNum)
	}
}

func TestSortRelocsByKernelOffset(t *testing.T) {
	r := []Reloc{
		{KernelID: 0, Offset: 10},
		{KernelID: 1, Offset: 5},
		{KernelID: 0, Offset: 2},
	}
	sortRelocsByKernelOffset(r)
	if r[0].Offset != 2 || r[1].Offset != 10 {
		t.Fatalf("kernel 0's relocs must sort by offset, got %+v", r)
	}
}
