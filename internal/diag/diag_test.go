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
package diag

import "testing"

func TestSink_WarningsDoNotFailResult(t *testing.T) {
	s := NewSink()
	s.Warningf(Pos{Path: "a.s", Line: 1}, "deprecated directive %q", ".foo")
	if !s.Good() {
		t.Fatal("a warning must not flip Good() to false")
	}
	if len(s.Items()) != 1 {
		t.Fatalf("Items() len = %d, want 1", len(s.Items()))
	}
	if len(s.Errors()) != 0 {
		t.Fatalf("Errors() len = %d, want 0", len(s.Errors()))
	}
}

func TestSink_ErrorFailsResult(t *testing.T) {
	s := NewSink()
	s.Errorf(Pos{Path: "a.s", Line: 3}, "undefined symbol %q", "foo")
	if s.Good() {
		t.Fatal("an error must flip Good() to false")
	}
	errs := s.Errors()
	if len(errs) != 1 || errs[0].Message != `undefined symbol "foo"` {
		t.Fatalf("unexpected errors: %+v", errs)
	}
}

func TestSink_EndOfAssembly(t *testing.T) {
	s := NewSink()
	if s.EndOfAssembly() {
		t.Fatal("fresh sink must not report end-of-assembly")
	}
	s.SetEndOfAssembly()
	if !s.EndOfAssembly() || s.Good() {
		t.Fatal("SetEndOfAssembly must set both endOfAssembly and fatal")
	}
}

func TestSink_NilIsSilentlyValid(t *testing.T) {
	var s *Sink
	s.Errorf(Pos{}, "should not panic")
	s.Warningf(Pos{}, "should not panic either")
	s.SetEndOfAssembly()
	if !s.Good() {
		t.Fatal("nil sink must always report Good()")
	}
	if s.EndOfAssembly() {
		t.Fatal("nil sink must always report no end-of-assembly")
	}
	if s.Items() != nil {
		t.Fatal("nil sink must return nil Items()")
	}
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Severity: SeverityError, Pos: Pos{Path: "k.s", Line: 5}, Message: "bad thing"}
	want := "k.s:5: error: bad thing"
	if got := d.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestPos_StringWithoutPath(t *testing.T) {
	p := Pos{Line: 9}
	if got := p.String(); got != "9" {
		t.Errorf("String() = %q, want %q", got, "9")
	}
}
