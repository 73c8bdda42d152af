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
package binemit

import (
	"testing"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/isaenc"
	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/section"
)

func TestSectionFlags(t *testing.T) {
	if got := sectionFlags(section.KindCode); got&shfExecinstr == 0 {
		t.Error("code sections must carry SHF_EXECINSTR")
	}
	if got := sectionFlags(section.KindConfig); got != 0 {
		t.Errorf("KindConfig flags = %#x, want 0 (neither addressable nor writeable)", got)
	}
}

func TestSectionType(t *testing.T) {
	cases := []struct {
		kind section.Kind
		want uint32
	}{
		{section.KindDataBSS, shtNobits},
		{section.KindAMDCL2BSS, shtNobits},
		{section.KindAMDv1CalNote, shtNote},
		{section.KindCode, shtProgbits},
	}
	for _, c := range cases {
		if got := sectionType(c.kind); got != c.want {
			t.Errorf("sectionType(%v) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestEmitAMDv1_ProducesAValidElfHeader(t *testing.T) {
	reg := section.New()
	enc := isaenc.NewTrackingEncoder()
	ks := kernel.NewState(reg, archtables.GCN1, enc, func(name string, r *section.Registry) (*section.Section, error) {
		return r.New(0, section.KindCode, name+".text")
	})
	if _, err := ks.AddKernel("k0"); err != nil {
		t.Fatal(err)
	}
	out := EmitAMDv1(reg, ks, Content{})
	if len(out) < 16 || string(out[:4]) != "\x7fELF" {
		t.Fatalf("EmitAMDv1 output does not start with an ELF magic number: %v", out[:min(16, len(out))])
	}
}
