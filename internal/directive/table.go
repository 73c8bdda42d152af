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
// Package directive implements DirectiveTable (spec §4.1, component C1) and
// ValueParser (spec §4.2, component C2): the sorted keyword table + binary
// search dispatcher every dialect builds its directive set from, and the
// shared argument-parsing primitives the dialect handlers call while
// interpreting a directive's arguments.
package directive

import (
	"sort"
	"strings"
)

// HandlerFunc parses one directive's argument text and returns whether the
// directive was handled successfully (errors are reported to the dialect's
// own diagnostic sink by the handler itself, per spec §4.1).
type HandlerFunc func(args string) bool

// Entry binds one directive name (without its leading '.') to its handler.
type Entry struct {
	Name    string
	Handler HandlerFunc
}

// Table is a dialect's sorted directive set with binary-search dispatch,
// mirroring the teacher's registry-of-strategies pattern (arch.go's
// `parsers map[string]ArchParser`) but keyed by directive name within one
// dialect instead of by architecture across the whole program.
type Table struct {
	entries []Entry
}

// NewTable builds a Table from an unordered entry list, sorting once at
// construction so Dispatch/IsKnown can binary-search (spec §4.1:
// "binary_search(name[1..]) -> index -> switch(index)").
func NewTable(entries []Entry) *Table {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &Table{entries: sorted}
}

func normalize(name string) string {
	return strings.TrimPrefix(name, ".")
}

func (t *Table) search(name string) int {
	name = normalize(name)
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Name >= name })
	if i < len(t.entries) && t.entries[i].Name == name {
		return i
	}
	return -1
}

// IsKnownDirective reports whether name (with or without its leading '.') is
// in this table.
func (t *Table) IsKnownDirective(name string) bool {
	return t.search(name) >= 0
}

// Dispatch looks up name and, if found, invokes its handler with args.
// found reports whether the directive exists in this table at all; ok is the
// handler's own success/failure result and is only meaningful when found is
// true.
func (t *Table) Dispatch(name, args string) (found, ok bool) {
	idx := t.search(name)
	if idx < 0 {
		return false, false
	}
	return true, t.entries[idx].Handler(args)
}

// Names returns the sorted directive names, for tests asserting dispatch
// closure (spec §8.1 "Dispatch closure").
func (t *Table) Names() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Name
	}
	return out
}

// CommonNames lists the shared directive surface every dialect recognizes in
// addition to its own table (spec §6.3 "Shared (~150 names)"), abbreviated
// here to the subset the format layer itself must recognize as "not mine,
// but not unknown either" when deciding whether an unmatched name is a typo
// or simply belongs to the common/ISA-front-end layer.
var CommonNames = []string{
	"byte", "short", "int", "long", "quad", "octa",
	"half", "float", "double",
	"ascii", "asciz", "string",
	"align", "balign", "balignw", "balignl", "p2align",
	"skip", "space", "fill", "fillq",
	"org", "offset",
	"section", "text", "data", "rodata", "bss",
	"kernel",
	"global", "globl", "weak", "local",
	"equ", "set", "equiv", "eqv",
	"if", "ifdef", "ifblank", "ifcmpstr", "ifstreq", "if64bit", "ifarch", "ifgpu", "ifformat",
	"elseif", "else", "endif",
	"macro", "endm", "exitm",
	"rept", "endr",
	"irp", "irpc", "for", "while",
	"include", "incbin",
	"print", "warning", "error", "fail", "err",
	"format", "arch", "gpu", "policy",
	"32bit", "64bit",
	"scope", "ends", "enum",
	"purgem",
	"using", "unusing",
	"regvar", "usereg", "rvlin", "rvlin_once",
	"altmacro", "macrocase", "buggyfplit", "oldmodparam",
}

// IsCommonDirective reports whether name belongs to the shared surface
// rather than any one dialect.
func IsCommonDirective(name string) bool {
	name = normalize(name)
	for _, n := range CommonNames {
		if n == name {
			return true
		}
	}
	return false
}
