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
package directive

import (
	"testing"

	"github.com/clrxng/clrxasm/internal/asmfront"
	"github.com/clrxng/clrxasm/internal/diag"
)

func newTestEvaluator() *asmfront.Evaluator {
	syms := asmfront.NewSymbolMap()
	return asmfront.NewEvaluator(syms, func() (int, int64) { return -1, 0 })
}

func TestAbsoluteValue_InRangeNoWarning(t *testing.T) {
	ev := newTestEvaluator()
	sink := diag.NewSink()
	v, ok := AbsoluteValue(ev, sink, diag.Pos{}, "42", 8)
	if !ok || v != 42 {
		t.Fatalf("AbsoluteValue() = %d, %v; want 42, true", v, ok)
	}
	if len(sink.Items()) != 0 {
		t.Errorf("expected no diagnostics, got %v", sink.Items())
	}
}

func TestAbsoluteValue_TruncationWarns(t *testing.T) {
	ev := newTestEvaluator()
	sink := diag.NewSink()
	v, ok := AbsoluteValue(ev, sink, diag.Pos{}, "300", 8)
	if !ok {
		t.Fatal("truncation must still succeed, just with a warning")
	}
	if v != 300&0xff {
		t.Errorf("value = %d, want %d", v, 300&0xff)
	}
	if len(sink.Items()) != 1 || sink.Items()[0].Severity != diag.SeverityWarning {
		t.Errorf("expected one warning diagnostic, got %v", sink.Items())
	}
}

func TestAbsoluteValue_InvalidExpressionErrors(t *testing.T) {
	ev := newTestEvaluator()
	sink := diag.NewSink()
	if _, ok := AbsoluteValue(ev, sink, diag.Pos{}, "1 +", 32); ok {
		t.Fatal("expected failure for malformed expression")
	}
	if sink.Good() {
		t.Error("expected the sink to record an error")
	}
}

func TestStringArg(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`"hello"`, "hello", true},
		{`"a\nb"`, "a\nb", true},
		{`"\x41\x42"`, "AB", true},
		{`no-quotes`, "", false},
	}
	for _, c := range cases {
		sink := diag.NewSink()
		got, ok := StringArg(sink, diag.Pos{}, c.in)
		if ok != c.ok {
			t.Errorf("StringArg(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("StringArg(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNameArg(t *testing.T) {
	sink := diag.NewSink()
	if got, ok := NameArg(sink, diag.Pos{}, " my_kernel1 ", 0); !ok || got != "my_kernel1" {
		t.Errorf("NameArg() = %q, %v; want my_kernel1, true", got, ok)
	}

	sink = diag.NewSink()
	if _, ok := NameArg(sink, diag.Pos{}, "1bad", 0); ok {
		t.Error("identifier must not start with a digit")
	}

	sink = diag.NewSink()
	if _, ok := NameArg(sink, diag.Pos{}, "toolong", 3); ok {
		t.Error("expected maxLen to be enforced")
	}
}

func TestEnumeration(t *testing.T) {
	table := []EnumEntry{{"cl1.2", 120}, {"cl2.0", 200}}
	sink := diag.NewSink()
	v, ok := Enumeration(sink, diag.Pos{}, "CL2.0", table)
	if !ok || v != 200 {
		t.Errorf("Enumeration() = %d, %v; want 200, true", v, ok)
	}

	sink = diag.NewSink()
	if _, ok := Enumeration(sink, diag.Pos{}, "cl3.0", table); ok {
		t.Error("expected unknown keyword to fail")
	}
}

func TestDimensions(t *testing.T) {
	sink := diag.NewSink()
	mask, ok := Dimensions(sink, diag.Pos{}, "xz")
	if !ok || mask != 0b101 {
		t.Errorf("Dimensions(xz) = %b, %v; want 101, true", mask, ok)
	}

	sink = diag.NewSink()
	if _, ok := Dimensions(sink, diag.Pos{}, ""); ok {
		t.Error("expected empty dimension string to fail")
	}

	sink = diag.NewSink()
	if _, ok := Dimensions(sink, diag.Pos{}, "xw"); ok {
		t.Error("expected invalid dimension character to fail")
	}
}

func TestCWS(t *testing.T) {
	sink := diag.NewSink()
	got, ok := CWS(sink, diag.Pos{}, "4,8")
	if !ok || got != [3]uint32{4, 8, 1} {
		t.Errorf("CWS(4,8) = %v, %v; want [4 8 1], true", got, ok)
	}

	sink = diag.NewSink()
	if _, ok := CWS(sink, diag.Pos{}, "0,1,1"); ok {
		t.Error("expected a zero component to fail")
	}

	sink = diag.NewSink()
	got, ok = CWS(sink, diag.Pos{}, "")
	if !ok || got != [3]uint32{1, 1, 1} {
		t.Errorf("CWS(\"\") = %v, %v; want [1 1 1], true", got, ok)
	}
}

func TestMachineQuad(t *testing.T) {
	sink := diag.NewSink()
	got, ok := MachineQuad(sink, diag.Pos{}, "1, 2, 3, 4")
	if !ok || got != [4]uint16{1, 2, 3, 4} {
		t.Errorf("MachineQuad() = %v, %v; want [1 2 3 4], true", got, ok)
	}

	sink = diag.NewSink()
	if _, ok := MachineQuad(sink, diag.Pos{}, "1,2,3"); ok {
		t.Error("expected wrong field count to fail")
	}
}

func TestCodeVersion(t *testing.T) {
	sink := diag.NewSink()
	maj, min, ok := CodeVersion(sink, diag.Pos{}, "7, 0")
	if !ok || maj != 7 || min != 0 {
		t.Errorf("CodeVersion() = %d, %d, %v; want 7, 0, true", maj, min, ok)
	}
}

func TestReservedXgprs(t *testing.T) {
	sink := diag.NewSink()
	first, count, ok := ReservedXgprs(sink, diag.Pos{}, "4, 2", 104)
	if !ok || first != 4 || count != 2 {
		t.Errorf("ReservedXgprs() = %d, %d, %v; want 4, 2, true", first, count, ok)
	}

	sink = diag.NewSink()
	if _, _, ok := ReservedXgprs(sink, diag.Pos{}, "100, 10", 104); ok {
		t.Error("expected out-of-range reservation to fail")
	}
}

func TestCommaThen(t *testing.T) {
	sink := diag.NewSink()
	rest, ok := CommaThen(sink, diag.Pos{}, ", foo", true)
	if !ok || rest != "foo" {
		t.Errorf("CommaThen() = %q, %v; want foo, true", rest, ok)
	}

	sink = diag.NewSink()
	if _, ok := CommaThen(sink, diag.Pos{}, "foo", true); ok {
		t.Error("expected missing comma to fail when required")
	}

	sink = diag.NewSink()
	rest, ok = CommaThen(sink, diag.Pos{}, "foo", false)
	if !ok || rest != "foo" {
		t.Errorf("CommaThen(not required) = %q, %v; want foo, true", rest, ok)
	}
}

func TestSplitArgs_RespectsParens(t *testing.T) {
	got := SplitArgs("lo(a+b), c, foo(1,2)")
	want := []string{"lo(a+b)", "c", "foo(1,2)"}
	if len(got) != len(want) {
		t.Fatalf("SplitArgs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, got[i], want[i])
		}
	}
}
