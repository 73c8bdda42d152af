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
// Package asmfront implements AssemblerFront (spec §6.1): the directive-loop
// driver, expression evaluator, symbol table, section array, relocation
// list, and diagnostic sink that the dialect handlers are handed on each
// ParseDirective call and never store past PrepareBinary. It is deliberately a thin
// driver — instruction encoding, macro expansion, and the `.if*` clause stack
// are the ISA-agnostic front-end's job per spec §1/§4.9 design notes and are
// out of scope; this package gives the format layer something concrete to be
// driven by, line-oriented the way the teacher's per-arch parsers read their
// input (bufio.Scanner over assembly text, see amd64_parser.go).
package asmfront

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/clrxng/clrxasm/internal/diag"
)

// Flags mirrors spec §6.1's front-end flags (TESTRUN, ADD_SYMBOLS, NEW_ROCM_BIN).
type Flags uint32

const (
	FlagTestRun Flags = 1 << iota
	FlagAddSymbols
	FlagNewROCmBin
)

// SectionRef is the subset of section state the front-end tracks for the
// expression evaluator and relocation emission; the authoritative section
// registry lives in internal/section and is driven by the dialect handler,
// but the front-end needs to know each section's raw byte content to append
// encoded instructions and literal data as directives are processed.
type SectionRef struct {
	Content   []byte
	Alignment uint32
	Flags     uint32
}

// Relocation is an unresolved reference recorded while assembling, resolved
// or re-emitted as an output relocation by the dialect handler's finaliser
// pass (spec §4.8.5).
type Relocation struct {
	Offset     uint64
	Section    int
	Kind       RelocKind
	SymbolName string
	Addend     int64
}

// Front is the concrete AssemblerFront. Dialect handlers receive a *Front
// with every ParseDirective call and call back into it (CurrentSectID,
// Sections, Symbols, Eval, Diag, AddRelocation) — they never reach past it into
// process-global state.
type Front struct {
	DeviceType    string
	Is64Bit       bool
	DriverVersion uint32
	LlvmVersion   uint32
	PolicyVersion uint32
	Flags         Flags

	CurrentKernel int // KernelId, -1 when none
	CurrentSectID int // SectionId

	Sections []*SectionRef
	Symbols  *SymbolMap
	Relocs   []Relocation
	Diag     *diag.Sink
	Eval     *Evaluator

	sourcePath string
	sourceLine int
}

// NewFront builds a Front ready to drive one assembly run.
func NewFront(deviceType string, is64Bit bool) *Front {
	f := &Front{
		DeviceType:    deviceType,
		Is64Bit:       is64Bit,
		CurrentKernel: -1,
		CurrentSectID: -1,
		Symbols:       NewSymbolMap(),
		Diag:          diag.NewSink(),
	}
	f.Eval = NewEvaluator(f.Symbols, f.locPos)
	return f
}

func (f *Front) locPos() (int, int64) {
	if f.CurrentSectID < 0 || f.CurrentSectID >= len(f.Sections) {
		return -1, 0
	}
	return f.CurrentSectID, int64(len(f.Sections[f.CurrentSectID].Content))
}

// SourcePos returns the current diagnostic position.
func (f *Front) SourcePos() diag.Pos {
	return diag.Pos{Path: f.sourcePath, Line: f.sourceLine}
}

// PrintError/PrintWarning forward to the diagnostic sink at the current position.
func (f *Front) PrintError(format string, args ...any) {
	f.Diag.Errorf(f.SourcePos(), format, args...)
}

func (f *Front) PrintWarning(format string, args ...any) {
	f.Diag.Warningf(f.SourcePos(), format, args...)
}

// AddRelocation records an unresolved reference for later resolution.
func (f *Front) AddRelocation(r Relocation) {
	f.Relocs = append(f.Relocs, r)
}

// AppendBytes appends raw bytes to the current section's content and returns
// the offset they were written at.
func (f *Front) AppendBytes(b []byte) uint64 {
	s := f.Sections[f.CurrentSectID]
	off := uint64(len(s.Content))
	s.Content = append(s.Content, b...)
	return off
}

// DirectiveLine handles one line's worth of directive dispatch, splitting
// the mnemonic from its argument text. name includes the leading '.'.
type DirectiveLine struct {
	Name string
	Args string
}

// SplitLine parses a raw source line into a directive name/args pair, a
// label, or plain instruction text. Comments starting with '#' or ';' are
// stripped first, mirroring the teacher's regex-based line classification
// (amd64AttributeLine/amd64LabelLine/amd64CodeLine in amd64_parser.go)
// generalized from x86 AT&T syntax to CLRX directive syntax.
func SplitLine(raw string) (label string, directive *DirectiveLine, rest string) {
	line := stripComment(raw)
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, ""
	}
	if idx := strings.IndexByte(line, ':'); idx >= 0 && !strings.HasPrefix(line, ".") {
		cand := strings.TrimSpace(line[:idx])
		if cand != "" && isLabelName(cand) {
			label = cand
			line = strings.TrimSpace(line[idx+1:])
			if line == "" {
				return label, nil, ""
			}
		}
	}
	if strings.HasPrefix(line, ".") {
		fields := strings.SplitN(line, " ", 2)
		name := fields[0]
		args := ""
		if len(fields) == 2 {
			args = strings.TrimSpace(fields[1])
		}
		if idx := strings.IndexByte(name, '\t'); idx >= 0 {
			args = strings.TrimSpace(name[idx+1:] + " " + args)
			name = name[:idx]
		}
		return label, &DirectiveLine{Name: name, Args: args}, ""
	}
	return label, nil, line
}

func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' || line[i] == ';' {
			return line[:i]
		}
	}
	return line
}

func isLabelName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range []byte(s) {
		if isIdentStart(c) {
			continue
		}
		if i > 0 && isDigit(c) {
			continue
		}
		return false
	}
	return true
}

// Handler is what a dialect handler exposes to the driver loop (a narrowed
// view of spec §4.6's DialectHandler contract; the full contract lives in
// internal/dialect).
type Handler interface {
	HandleLabel(front *Front, name string)
	HandleDirective(front *Front, name, args string) (handled bool)
	HandleInstruction(front *Front, text string)
}

// Run drives the directive loop over src: split into lines, dispatch labels,
// directives, and plain instruction text to h, honouring a fatal
// EndOfAssembly from the diagnostic sink (spec §7).
func Run(f *Front, path string, src *bufio.Scanner, h Handler) {
	f.sourcePath = path
	lineNo := 0
	for src.Scan() {
		lineNo++
		f.sourceLine = lineNo
		if f.Diag.EndOfAssembly() {
			break
		}
		label, directive, instr := SplitLine(src.Text())
		if label != "" {
			h.HandleLabel(f, label)
		}
		switch {
		case directive != nil:
			h.HandleDirective(f, directive.Name, directive.Args)
		case instr != "":
			h.HandleInstruction(f, instr)
		}
	}
}

// ReadIncludeFile implements .include: read a whole text file for re-scanning
// inline.
func ReadIncludeFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot open include file %q: %w", path, err)
	}
	return string(b), nil
}
