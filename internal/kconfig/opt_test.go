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

import "testing"

func TestOpt_ZeroValueIsUnset(t *testing.T) {
	var o Opt[uint32]
	if o.IsSet() {
		t.Fatal("zero value of Opt must be unset")
	}
	if got := o.GetOr(7); got != 7 {
		t.Errorf("GetOr() = %d, want 7", got)
	}
}

func TestOpt_Set(t *testing.T) {
	o := Set(uint32(42))
	if !o.IsSet() {
		t.Fatal("Set() must produce an IsSet Opt")
	}
	if got := o.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}
	if got := o.GetOr(7); got != 42 {
		t.Errorf("GetOr() on a set Opt = %d, want 42", got)
	}
}

func TestOpt_SetIfUnset(t *testing.T) {
	var unset Opt[int]
	got := unset.SetIfUnset(5)
	if !got.IsSet() || got.Get() != 5 {
		t.Fatalf("SetIfUnset on unset = %+v, want set to 5", got)
	}

	already := Set(1)
	got = already.SetIfUnset(5)
	if got.Get() != 1 {
		t.Errorf("SetIfUnset must not overwrite an already-set Opt, got %d", got.Get())
	}
}

func TestOpt_ZeroIsDistinctFromUnset(t *testing.T) {
	explicitZero := Set(uint32(0))
	if !explicitZero.IsSet() {
		t.Fatal("explicitly setting zero must still be IsSet")
	}
	var unset Opt[uint32]
	if unset.IsSet() {
		t.Fatal("default-constructed Opt must remain unset")
	}
}
