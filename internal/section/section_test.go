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
package section

import "testing"

func TestRegistry_NewAssignsStableIncreasingIds(t *testing.T) {
	r := New()
	s0, err := r.New(OwnerGlobal, KindCode, ".text")
	if err != nil {
		t.Fatal(err)
	}
	s1, err := r.New(OwnerGlobal, KindDataRW, ".data")
	if err != nil {
		t.Fatal(err)
	}
	if s0.Id != 0 || s1.Id != 1 {
		t.Fatalf("ids = %d, %d; want 0, 1", s0.Id, s1.Id)
	}
	if got := r.Get(s0.Id); got != s0 {
		t.Error("Get must return the same pointer New returned")
	}
}

func TestRegistry_New_DuplicateNameInScopeRejected(t *testing.T) {
	r := New()
	if _, err := r.New(OwnerGlobal, KindCode, ".text"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.New(OwnerGlobal, KindCode, ".text"); err == nil {
		t.Fatal("expected duplicate section name in the same scope to be rejected")
	}
}

func TestRegistry_New_SameNameDifferentScopesAllowed(t *testing.T) {
	r := New()
	if _, err := r.New(OwnerGlobal, KindCode, ".text"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.New(0, KindCode, ".text"); err != nil {
		t.Fatalf("expected per-kernel scope to allow reusing a global name, got %v", err)
	}
}

func TestRegistry_ByName(t *testing.T) {
	r := New()
	s, _ := r.New(OwnerGlobal, KindDataRodata, ".rodata")
	id, ok := r.ByName(OwnerGlobal, ".rodata")
	if !ok || id != s.Id {
		t.Fatalf("ByName() = %d, %v; want %d, true", id, ok, s.Id)
	}
	if _, ok := r.ByName(OwnerGlobal, ".nonexistent"); ok {
		t.Error("expected ByName to report ok=false for a missing section")
	}
}

func TestRegistry_NewExtra_DenseCounterPerScope(t *testing.T) {
	r := New()
	e0, err := r.NewExtra(OwnerGlobal, KindExtraSection, ".note0")
	if err != nil {
		t.Fatal(err)
	}
	e1, err := r.NewExtra(OwnerGlobal, KindExtraSection, ".note1")
	if err != nil {
		t.Fatal(err)
	}
	if e0.ExtraID != 0 || e1.ExtraID != 1 {
		t.Errorf("ExtraIDs = %d, %d; want 0, 1", e0.ExtraID, e1.ExtraID)
	}

	// A different scope gets its own counter starting back at zero.
	k0, err := r.NewExtra(0, KindExtraSection, ".note0")
	if err != nil {
		t.Fatal(err)
	}
	if k0.ExtraID != 0 {
		t.Errorf("per-scope ExtraID = %d, want 0", k0.ExtraID)
	}
}

func TestRegistry_AllAndCurrent(t *testing.T) {
	r := New()
	if r.Current() != -1 {
		t.Fatal("fresh registry must report no current section")
	}
	s0, _ := r.New(OwnerGlobal, KindCode, ".text")
	s1, _ := r.New(OwnerGlobal, KindDataRW, ".data")
	r.GoTo(s1.Id)
	if r.Current() != s1.Id {
		t.Errorf("Current() = %d, want %d", r.Current(), s1.Id)
	}
	all := r.All()
	if len(all) != 2 || all[0] != s0 || all[1] != s1 {
		t.Fatalf("All() = %v, want [%v %v]", all, s0, s1)
	}
}

func TestInfo_FlagsPerKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want Flags
	}{
		{KindCode, FlagAddressable | FlagWriteable},
		{KindDataRodata, FlagAddressable | FlagWriteable | FlagUnresolvable},
		{KindDataBSS, FlagAddressable | FlagUnresolvable},
		{KindGalliumScratch, FlagUnresolvable},
		{KindConfig, 0},
		{KindAMDv1Header, FlagAddressable | FlagWriteable | FlagAbsAddressable},
	}
	for _, c := range cases {
		if got := Info(c.kind); got != c.want {
			t.Errorf("Info(%v) = %v, want %v", c.kind, got, c.want)
		}
	}
}
