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
package isaenc

import (
	"bytes"
	"testing"
)

func TestTrackingEncoder_TouchHighWaterMark(t *testing.T) {
	e := NewTrackingEncoder()
	e.Touch(10, 20, 0)
	e.Touch(5, 30, UsesVCC)
	e.Touch(15, 8, 0)

	alloc := e.GetAllocatedRegisters()
	if alloc.SGPRs != 15 {
		t.Errorf("SGPRs = %d, want 15 (high-water mark)", alloc.SGPRs)
	}
	if alloc.VGPRs != 30 {
		t.Errorf("VGPRs = %d, want 30 (high-water mark)", alloc.VGPRs)
	}
	if alloc.Flags&UsesVCC == 0 {
		t.Error("UsesVCC flag must stick once seen")
	}
}

func TestTrackingEncoder_SetAllocatedRegisters(t *testing.T) {
	e := NewTrackingEncoder()
	e.Touch(1, 1, 0)
	want := Allocation{SGPRs: 40, VGPRs: 64, Flags: UsesFlatScratch}
	e.SetAllocatedRegisters(want)
	got := e.GetAllocatedRegisters()
	if got != want {
		t.Errorf("GetAllocatedRegisters() = %+v, want %+v", got, want)
	}
}

func TestTrackingEncoder_FillAlignment(t *testing.T) {
	cases := []struct {
		name     string
		nBytes   int
		wantLen  int
		wantTail []byte
	}{
		{"exact multiple", 8, 8, []byte{0x00, 0x00, 0x80, 0xbf}},
		{"truncated remainder", 6, 6, []byte{0x00, 0x00}},
		{"zero", 0, 0, nil},
	}
	e := NewTrackingEncoder()
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := e.FillAlignment(c.nBytes)
			if len(out) != c.wantLen {
				t.Fatalf("len(out) = %d, want %d", len(out), c.wantLen)
			}
			if c.wantTail != nil && !bytes.Equal(out[len(out)-len(c.wantTail):], c.wantTail) {
				t.Errorf("tail = % x, want % x", out[len(out)-len(c.wantTail):], c.wantTail)
			}
		})
	}
}

func TestTrackingEncoder_FillAlignmentFullWords(t *testing.T) {
	e := NewTrackingEncoder()
	out := e.FillAlignment(12)
	nop := []byte{0x00, 0x00, 0x80, 0xbf}
	for i := 0; i < 3; i++ {
		if !bytes.Equal(out[i*4:i*4+4], nop) {
			t.Errorf("word %d = % x, want % x", i, out[i*4:i*4+4], nop)
		}
	}
}
