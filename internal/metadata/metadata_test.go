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
package metadata

import (
	"strings"
	"testing"

	"github.com/clrxng/clrxasm/internal/kconfig"
)

func TestFirstFreeUniqueID_SkipsUsedIds(t *testing.T) {
	text := ";uniqueid:1024\n;uniqueid:1025\n;other:line\n"
	if got := FirstFreeUniqueID(text); got != 1026 {
		t.Errorf("FirstFreeUniqueID() = %d, want 1026", got)
	}
}

func TestFirstFreeUniqueID_EmptyStartsAt1024(t *testing.T) {
	if got := FirstFreeUniqueID(""); got != 1024 {
		t.Errorf("FirstFreeUniqueID(\"\") = %d, want 1024", got)
	}
}

func TestAMDv1TextMetadata_ContainsArgEntries(t *testing.T) {
	args := []kconfig.Argument{
		kconfig.ScalarArg{Name: "n", Type: kconfig.TypeI32, VecSize: 1},
		kconfig.PointerArg{Name: "buf", PointeeType: kconfig.TypeFloat, Space: kconfig.SpaceGlobal},
	}
	text := AMDv1TextMetadata("myKernel", "tahiti", 1024, args)

	for _, want := range []string{
		";ARGSTART:myKernel",
		";device:tahiti",
		";uniqueid:1024",
		";value:n:i32:1:1:0",
		";pointer:buf:float:1:1:16:",
		";ARGEND:myKernel",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metadata text missing %q:\n%s", want, text)
		}
	}
}

func TestAMDv1TextMetadata_OffsetsAccumulateInSixteenByteChunks(t *testing.T) {
	args := []kconfig.Argument{
		kconfig.ScalarArg{Name: "a", Type: kconfig.TypeI8, VecSize: 1},
		kconfig.ScalarArg{Name: "b", Type: kconfig.TypeI32, VecSize: 1},
	}
	text := AMDv1TextMetadata("k", "tahiti", 1024, args)
	// a (1 byte -> 16-byte chunk) puts b's offset at 16.
	if !strings.Contains(text, ";value:b:i32:1:1:16") {
		t.Errorf("expected b's offset to start at 16:\n%s", text)
	}
}

func TestMarshalCalNote(t *testing.T) {
	note := CalNote{Name: "PROGINFO", Data: []byte{1, 2, 3, 4}}
	got := MarshalCalNote(note)
	if string(got[:8]) != CalNoteFrameName {
		t.Errorf("note frame name = %q, want %q", got[:8], CalNoteFrameName)
	}
	if string(got[8:]) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("note payload mismatch: %v", got[8:])
	}
}

func TestMarshalProgInfo_PacksKeyValuePairs(t *testing.T) {
	entries := []ProgInfoEntry{{Key: 0x1000, Value: 42}, {Key: 0x1001, Value: 7}}
	out := MarshalProgInfo(entries)
	if len(out) != 16 {
		t.Fatalf("len(out) = %d, want 16", len(out))
	}
	if out[0] != 0x00 || out[1] != 0x10 {
		t.Errorf("first key bytes wrong: %v", out[0:4])
	}
}

func TestAMDCL2Setup_NonHsaIsZeroed(t *testing.T) {
	out := AMDCL2Setup(nil)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 for a non-HSA setup block", i, b)
		}
	}
}

func TestAMDCL2Setup_HsaMarshalsDescriptor(t *testing.T) {
	d := kconfig.NewHSADescriptor()
	d.KernargSegmentSize = 64
	out := AMDCL2Setup(d)
	marshaled := d.Marshal()
	if out != marshaled {
		t.Error("AMDCL2Setup(hsa) must equal hsa.Marshal()")
	}
}
