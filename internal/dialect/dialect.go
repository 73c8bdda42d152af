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
// Package dialect defines the DialectHandler contract (spec §4.6, C6) shared
// by the four container-format strategies (amdv1, amdcl2, gallium, rocm).
// Each sub-package supplies a concrete Handler; the front-end only ever
// depends on this interface, following the teacher's ArchParser
// registry/strategy pattern in arch.go generalized from "one parser per host
// architecture" to "one handler per container dialect".
package dialect

import (
	"github.com/clrxng/clrxasm/internal/asmfront"
	"github.com/clrxng/clrxasm/internal/binemit"
	"github.com/clrxng/clrxasm/internal/diag"
	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/section"
)

// Handler is the per-dialect strategy every container format implements
// (spec §4.6).
type Handler interface {
	Name() string

	AddKernel(name string) (kernel.Id, error)
	AddSection(name string, owner int) (section.Id, error)
	SectionIdByName(name string) (section.Id, bool)
	SwitchKernel(id kernel.Id) error
	SwitchSection(id section.Id)
	SectionInfo(id section.Id) (section.Kind, section.Flags)
	IsCodeSection() bool

	// ParseDirective dispatches a dialect-specific directive (the name has
	// already had its leading '.' stripped and been confirmed present in
	// this dialect's DirectiveTable). It reports success via front's
	// diagnostic sink rather than returning an error, matching spec §4.6's
	// contract; front also carries the expression evaluator ValueParser's
	// AbsoluteValue needs and the current source position for diagnostics.
	ParseDirective(name string, line string, front *asmfront.Front) bool

	// PrepareBinary runs this dialect's share of the Finaliser (spec §4.8)
	// and reports aggregate success.
	PrepareBinary(sink *diag.Sink) bool

	// SetContent installs the raw per-section byte content the front-end
	// accumulated, consulted by WriteBinary (spec §4.9).
	SetContent(content binemit.Content)

	// WriteBinary serializes the already-prepared binary-input object
	// through this dialect's BinaryEmitter adapter (spec §4.9).
	WriteBinary() ([]byte, error)

	ResolveSymbol(name string) (value uint64, sect section.Id, ok bool)
	ResolveRelocation(expr string) (value uint64, sect section.Id, ok bool)

	// IsKnownDirective reports whether name (without leading '.') belongs
	// to this dialect's own DirectiveTable (not the shared common table).
	IsKnownDirective(name string) bool
}
