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
// Package diag collects assembler diagnostics (errors and warnings) tagged with
// a source position, the way the CLRX front-end's printError/printWarning sink
// does. Directive handlers never return a bare error for a user-facing mistake;
// they append to a Sink and keep going, so one bad directive doesn't abort the
// rest of the source file.
package diag

import "fmt"

// Severity distinguishes a fatal-to-the-result diagnostic from an advisory one.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Pos is a source position: file path plus 1-based line number.
type Pos struct {
	Path string
	Line int
}

func (p Pos) String() string {
	if p.Path == "" {
		return fmt.Sprintf("%d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.Path, p.Line)
}

// Diagnostic is a single reported error or warning.
type Diagnostic struct {
	Severity Severity
	Pos      Pos
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// Sink aggregates diagnostics for one assembly run. A nil *Sink is valid and
// silently drops everything, so tests that don't care about diagnostics can
// pass one without a nil-check dance.
type Sink struct {
	items       []Diagnostic
	fatal       bool
	endOfAsmSet bool
}

// NewSink returns an empty diagnostic sink.
func NewSink() *Sink {
	return &Sink{}
}

// Errorf appends an error-severity diagnostic at pos.
func (s *Sink) Errorf(pos Pos, format string, args ...any) {
	if s == nil {
		return
	}
	s.items = append(s.items, Diagnostic{SeverityError, pos, fmt.Sprintf(format, args...)})
	s.fatal = true
}

// Warningf appends a warning-severity diagnostic at pos. Warnings never flip
// Good() to false (spec §7: "Warnings ... do not affect the result flag").
func (s *Sink) Warningf(pos Pos, format string, args ...any) {
	if s == nil {
		return
	}
	s.items = append(s.items, Diagnostic{SeverityWarning, pos, fmt.Sprintf(format, args...)})
}

// SetEndOfAssembly marks a fatal, non-recoverable parser error: the front-end
// must elide all subsequent directives (spec §7).
func (s *Sink) SetEndOfAssembly() {
	if s == nil {
		return
	}
	s.endOfAsmSet = true
	s.fatal = true
}

// EndOfAssembly reports whether a fatal front-end error has been raised.
func (s *Sink) EndOfAssembly() bool {
	return s != nil && s.endOfAsmSet
}

// Good reports whether no error-severity diagnostic has been recorded yet.
func (s *Sink) Good() bool {
	return s == nil || !s.fatal
}

// Items returns all diagnostics recorded so far, in report order.
func (s *Sink) Items() []Diagnostic {
	if s == nil {
		return nil
	}
	return s.items
}

// Errors returns only the error-severity diagnostics.
func (s *Sink) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range s.Items() {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}
