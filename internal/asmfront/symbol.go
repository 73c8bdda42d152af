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

// Symbol is an assembler symbol: defined (value + owning section) or still
// pending resolution, global/weak/local visibility as set by .global/.weak/.local.
type Symbol struct {
	Name      string
	Value     uint64
	Section   int // SectionId; -1 when undefined or absolute
	IsDefined bool
	IsGlobal  bool
	IsWeak    bool
	HasValue  bool
}

// SymbolMap is the global (or scope-local) symbol table, matching §6.1's
// globalScope.symbolMap / getSymbolMap.
type SymbolMap struct {
	syms map[string]*Symbol
}

// NewSymbolMap returns an empty symbol table.
func NewSymbolMap() *SymbolMap {
	return &SymbolMap{syms: make(map[string]*Symbol)}
}

// Get returns the symbol by name, creating an undefined placeholder entry if
// it has never been referenced before (the usual assembler behaviour: a
// forward reference creates the symbol entry before it's defined).
func (m *SymbolMap) Get(name string) *Symbol {
	if s, ok := m.syms[name]; ok {
		return s
	}
	s := &Symbol{Name: name, Section: -1}
	m.syms[name] = s
	return s
}

// Lookup returns the symbol only if it already exists, without creating it.
func (m *SymbolMap) Lookup(name string) (*Symbol, bool) {
	s, ok := m.syms[name]
	return s, ok
}

// Define sets a symbol's value and owning section, marking it defined.
func (m *SymbolMap) Define(name string, value uint64, section int) *Symbol {
	s := m.Get(name)
	s.Value = value
	s.Section = section
	s.IsDefined = true
	s.HasValue = true
	return s
}

// All returns every symbol in the table, for the finaliser's extra-symbols pass.
func (m *SymbolMap) All() []*Symbol {
	out := make([]*Symbol, 0, len(m.syms))
	for _, s := range m.syms {
		out = append(out, s)
	}
	return out
}
