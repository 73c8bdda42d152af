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
package binemit

import (
	"fmt"

	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/section"
)

// Content supplies the raw bytes a finalised section carries. The four
// dialect handlers and the finaliser are responsible for having produced
// this (code from the encoder, metadata/config from the metadata package);
// the emitter only knows how to lay bytes out into an object file, not where
// they come from (spec §4.9 "BinaryEmitter adapters").
type Content map[section.Id][]byte

func sectionFlags(k section.Kind) uint64 {
	info := section.Info(k)
	var f uint64
	if info&section.FlagWriteable != 0 {
		f |= shfWrite
	}
	if info&section.FlagAddressable != 0 {
		f |= shfAlloc
	}
	if k == section.KindCode {
		f |= shfExecinstr
	}
	return f
}

func sectionType(k section.Kind) uint32 {
	switch k {
	case section.KindDataBSS, section.KindAMDCL2BSS:
		return shtNobits
	case section.KindAMDv1CalNote, section.KindExtraNote:
		return shtNote
	default:
		return shtProgbits
	}
}

// emitGlobalScope serializes every section belonging to owner (typically
// section.OwnerGlobal, or a kernel's code-section id for AMDv1's per-kernel
// scope) plus one
// symbol per kernel whose code section lies in that scope, pointing at
// offset 0 of its code section (spec §4.9, §4.8 step 4's "kernel name
// symbol").
func emitGlobalScope(machine uint16, reg *section.Registry, ks *kernel.State, owner int, content Content) []byte {
	b := NewBuilder(machine)
	secIdx := map[section.Id]int{}
	for _, s := range reg.All() {
		if s.Owner != owner {
			continue
		}
		idx := b.AddSection(Section{
			Name:    s.Name,
			Type:    sectionType(s.Kind),
			Flags:   sectionFlags(s.Kind),
			Content: content[s.Id],
			Align:   4,
		})
		secIdx[s.Id] = idx
	}
	for _, k := range ks.All() {
		if idx, ok := secIdx[k.CodeSection]; ok {
			b.AddSymbol(Symbol{Name: k.Name, Value: 0, Section: idx, Global: true})
		}
	}
	return b.Generate()
}

// EmitAMDv1 builds the AMDv1 container: one top-level ELF carrying a nested
// inner ELF per kernel (spec §4.6.1 "a per-kernel .text"), each produced by
// emitGlobalScope scoped to that kernel's code-section id, embedded as a
// .text.<kernel> PROGBITS
// section of the outer object (spec §4.9's "AMDv1 nests inner ELFs").
func EmitAMDv1(reg *section.Registry, ks *kernel.State, content Content) []byte {
	outer := NewBuilder(emAMDGPU)
	for _, s := range reg.All() {
		if s.Owner != section.OwnerGlobal {
			continue
		}
		outer.AddSection(Section{
			Name:    s.Name,
			Type:    sectionType(s.Kind),
			Flags:   sectionFlags(s.Kind),
			Content: content[s.Id],
			Align:   4,
		})
	}
	for _, k := range ks.All() {
		inner := emitGlobalScope(emAMDGPU, reg, ks, int(k.CodeSection), content)
		outer.AddSection(Section{
			Name:    fmt.Sprintf(".text.%s", k.Name),
			Type:    shtProgbits,
			Content: inner,
			Align:   4,
		})
	}
	return outer.Generate()
}

// EmitAMDCL2 builds the AMDCL2 container: a single outer ELF carrying the
// global-scope sections, plus an .inner section holding a nested inner
// binary whenever any inner-scope (OwnerInner) section such as
// .data/.bss/.rodata exists (spec §4.6.2).
func EmitAMDCL2(reg *section.Registry, ks *kernel.State, content Content) []byte {
	outer := NewBuilder(emAMDGPU)
	for _, s := range reg.All() {
		if s.Owner != section.OwnerGlobal {
			continue
		}
		outer.AddSection(Section{
			Name:    s.Name,
			Type:    sectionType(s.Kind),
			Flags:   sectionFlags(s.Kind),
			Content: content[s.Id],
			Align:   4,
		})
	}
	var hasInner bool
	for _, s := range reg.All() {
		if s.Owner == section.OwnerInner {
			hasInner = true
			break
		}
	}
	if hasInner {
		inner := NewBuilder(emAMDGPU)
		for _, s := range reg.All() {
			if s.Owner != section.OwnerInner {
				continue
			}
			inner.AddSection(Section{
				Name:    s.Name,
				Type:    sectionType(s.Kind),
				Flags:   sectionFlags(s.Kind),
				Content: content[s.Id],
				Align:   4,
			})
		}
		outer.AddSection(Section{Name: ".inner", Type: shtProgbits, Content: inner.Generate(), Align: 4})
	}
	for _, k := range ks.All() {
		outer.AddSymbol(Symbol{Name: k.Name, Value: 0, Section: -1, Global: true})
	}
	return outer.Generate()
}

// EmitGallium builds the Gallium container: a plain shared-text ELF object,
// the shape Mesa's GalliumCompute loader consumes directly (spec §4.6.3).
func EmitGallium(reg *section.Registry, ks *kernel.State, content Content) []byte {
	return emitGlobalScope(emAMDGPU, reg, ks, section.OwnerGlobal, content)
}

// EmitROCm builds the ROCm container: a plain shared-text ELF object carrying
// every global-scope section, including the .got section when GOT entries
// exist (spec §4.6.4). No metadata note section is synthesized here.
func EmitROCm(reg *section.Registry, ks *kernel.State, content Content) []byte {
	return emitGlobalScope(emAMDGPU, reg, ks, section.OwnerGlobal, content)
}
