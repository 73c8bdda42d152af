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
package kernel

import (
	"testing"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/isaenc"
	"github.com/clrxng/clrxasm/internal/section"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	reg := section.New()
	enc := isaenc.NewTrackingEncoder()
	newCodeSection := func(name string, reg *section.Registry) (*section.Section, error) {
		return reg.New(0, section.KindCode, name+".text")
	}
	return NewState(reg, archtables.GCN1, enc, newCodeSection)
}

func TestKernel_SetSection_RejectsDuplicateSlot(t *testing.T) {
	k := &Kernel{Name: "foo"}
	if err := k.SetSection(SlotConfig, 3); err != nil {
		t.Fatal(err)
	}
	if err := k.SetSection(SlotConfig, 4); err == nil {
		t.Fatal("expected setting the same slot twice to fail")
	}
	id, ok := k.HasSection(SlotConfig)
	if !ok || id != 3 {
		t.Errorf("HasSection(SlotConfig) = %d, %v; want 3, true", id, ok)
	}
}

func TestKernel_DeclareArg_RejectsDuplicate(t *testing.T) {
	k := &Kernel{}
	if !k.DeclareArg("x") {
		t.Fatal("first declaration of x must succeed")
	}
	if k.DeclareArg("x") {
		t.Fatal("redeclaring x must fail")
	}
}

func TestState_AddKernel_AssignsDenseIds(t *testing.T) {
	s := newTestState(t)
	id0, err := s.AddKernel("a")
	if err != nil {
		t.Fatal(err)
	}
	id1, err := s.AddKernel("b")
	if err != nil {
		t.Fatal(err)
	}
	if id0 != 0 || id1 != 1 {
		t.Fatalf("ids = %d, %d; want 0, 1", id0, id1)
	}
	if s.Current() != id1 {
		t.Errorf("Current() = %d, want %d", s.Current(), id1)
	}
}

func TestState_AddKernel_RejectsDuplicateName(t *testing.T) {
	s := newTestState(t)
	if _, err := s.AddKernel("dup"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddKernel("dup"); err == nil {
		t.Fatal("expected duplicate kernel name to be rejected")
	}
}

func TestState_RegisterSnapshotSaveRestore(t *testing.T) {
	s := newTestState(t)
	id0, _ := s.AddKernel("a")
	s.Encoder.Touch(10, 20, 0)

	id1, _ := s.AddKernel("b")
	if got := s.Encoder.GetAllocatedRegisters(); got.SGPRs != 0 || got.VGPRs != 0 {
		t.Fatalf("new kernel must start with a zeroed allocation, got %+v", got)
	}
	s.Encoder.Touch(3, 4, 0)

	if err := s.SwitchKernel(id0); err != nil {
		t.Fatal(err)
	}
	got := s.Encoder.GetAllocatedRegisters()
	if got.SGPRs != 10 || got.VGPRs != 20 {
		t.Fatalf("switching back to kernel a must restore its snapshot, got %+v", got)
	}

	if err := s.SwitchKernel(id1); err != nil {
		t.Fatal(err)
	}
	got = s.Encoder.GetAllocatedRegisters()
	if got.SGPRs != 3 || got.VGPRs != 4 {
		t.Fatalf("switching back to kernel b must restore its snapshot, got %+v", got)
	}
}

func TestState_ByName(t *testing.T) {
	s := newTestState(t)
	id, _ := s.AddKernel("target")
	got, ok := s.ByName("target")
	if !ok || got != id {
		t.Fatalf("ByName() = %d, %v; want %d, true", got, ok, id)
	}
	if _, ok := s.ByName("missing"); ok {
		t.Error("expected ByName to report ok=false for a missing kernel")
	}
}

func TestState_SwitchKernel_InvalidId(t *testing.T) {
	s := newTestState(t)
	if _, err := s.AddKernel("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.SwitchKernel(99); err == nil {
		t.Fatal("expected an out-of-range kernel id to fail")
	}
}
