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
package asmfront

import (
	"bufio"
	"strings"
	"testing"

	"github.com/clrxng/clrxasm/internal/diag"
)

func TestSplitLine(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantLabel string
		wantDir   *DirectiveLine
		wantInstr string
	}{
		{"blank", "   ", "", nil, ""},
		{"comment only", "# a comment", "", nil, ""},
		{"directive", ".kernel foo", "", &DirectiveLine{Name: ".kernel", Args: "foo"}, ""},
		{"directive no args", ".setupargs", "", &DirectiveLine{Name: ".setupargs", Args: ""}, ""},
		{"label then instruction", "loop: s_nop 0", "loop", nil, "s_nop 0"},
		{"label then directive", "loop: .kernel foo", "loop", &DirectiveLine{Name: ".kernel", Args: "foo"}, ""},
		{"plain instruction", "s_endpgm", "", nil, "s_endpgm"},
		{"trailing comment stripped", "s_nop 0 ; trailing", "", nil, "s_nop 0"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			label, dir, instr := SplitLine(c.raw)
			if label != c.wantLabel {
				t.Errorf("label = %q, want %q", label, c.wantLabel)
			}
			if (dir == nil) != (c.wantDir == nil) {
				t.Fatalf("directive = %+v, want %+v", dir, c.wantDir)
			}
			if dir != nil && (dir.Name != c.wantDir.Name || dir.Args != c.wantDir.Args) {
				t.Errorf("directive = %+v, want %+v", dir, c.wantDir)
			}
			if instr != c.wantInstr {
				t.Errorf("instr = %q, want %q", instr, c.wantInstr)
			}
		})
	}
}

type recordingHandler struct {
	labels      []string
	directives  []string
	instructions []string
}

func (r *recordingHandler) HandleLabel(f *Front, name string) { r.labels = append(r.labels, name) }
func (r *recordingHandler) HandleDirective(f *Front, name, args string) bool {
	r.directives = append(r.directives, name+" "+args)
	return true
}
func (r *recordingHandler) HandleInstruction(f *Front, text string) {
	r.instructions = append(r.instructions, text)
}

func TestRun_DispatchesEachLineKind(t *testing.T) {
	f := NewFront("tahiti", true)
	h := &recordingHandler{}
	src := bufio.NewScanner(strings.NewReader("start: .kernel foo\ns_nop 0\n"))
	Run(f, "test.s", src, h)

	if len(h.labels) != 1 || h.labels[0] != "start" {
		t.Errorf("labels = %v", h.labels)
	}
	if len(h.directives) != 1 || h.directives[0] != ".kernel foo" {
		t.Errorf("directives = %v", h.directives)
	}
	if len(h.instructions) != 1 || h.instructions[0] != "s_nop 0" {
		t.Errorf("instructions = %v", h.instructions)
	}
}

type stoppingHandler struct {
	recordingHandler
	sink *diag.Sink
}

func (s *stoppingHandler) HandleInstruction(f *Front, text string) {
	s.recordingHandler.HandleInstruction(f, text)
	s.sink.SetEndOfAssembly()
}

func TestRun_StopsAtEndOfAssembly(t *testing.T) {
	f := NewFront("tahiti", true)
	h := &stoppingHandler{sink: f.Diag}
	src := bufio.NewScanner(strings.NewReader("s_nop 0\ns_nop 1\ns_nop 2\n"))
	Run(f, "test.s", src, h)
	if len(h.instructions) != 1 {
		t.Fatalf("instructions = %v, want exactly one before EndOfAssembly stopped the loop", h.instructions)
	}
}

func TestFront_AppendBytesTracksOffset(t *testing.T) {
	f := NewFront("tahiti", true)
	f.Sections = []*SectionRef{{}}
	f.CurrentSectID = 0
	off1 := f.AppendBytes([]byte{1, 2, 3, 4})
	off2 := f.AppendBytes([]byte{5, 6})
	if off1 != 0 || off2 != 4 {
		t.Errorf("offsets = %d, %d; want 0, 4", off1, off2)
	}
	if len(f.Sections[0].Content) != 6 {
		t.Errorf("content len = %d, want 6", len(f.Sections[0].Content))
	}
}
