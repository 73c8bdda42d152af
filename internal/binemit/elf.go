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
// Package binemit implements the BinaryEmitter adapters (spec §4.9, C9):
// one per dialect, each constructing its native binary-input struct and
// driving a shared reference ELF writer. Grounded on the teacher pack's
// other_examples ELF builder (vibe67's WriteCompleteDynamicELF/ExecutableBuilder),
// adapted from a dynamically-linked executable layout down to the simpler
// ET_REL relocatable-object shape an assembler actually emits: section
// header table, shstrtab, and a symbol table, no program headers.
package binemit

import (
	"bytes"
	"encoding/binary"
)

// ELF machine/class/type constants this emitter needs (a small, explicit
// subset of the full ELF spec, not golang.org/x/debug/elf's whole surface,
// since only relocatable AMDGPU/x86 objects are ever produced here).
const (
	elfMag0, elfMag1, elfMag2, elfMag3 = 0x7f, 'E', 'L', 'F'
	elfClass64                        = 2
	elfDataLSB                        = 1
	elfVersionCurrent                 = 1
	etREL                             = 1
	emAMDGPU                          = 224
	emX86_64                          = 62
	shtNull, shtProgbits, shtSymtab, shtStrtab, shtRela, shtNote, shtNobits = 0, 1, 2, 3, 4, 7, 8
	shfWrite, shfAlloc, shfExecinstr  = 1, 2, 4
)

// Section is one output ELF section the caller has already fully populated
// (content, flags, type) from its dialect's section-to-output mapping
// (spec §4.8 step 1).
type Section struct {
	Name    string
	Type    uint32
	Flags   uint64
	Content []byte
	Align   uint64
}

// Symbol is one output ELF symbol (local or global).
type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Section int // index into the Sections slice written to this builder, or -1 for SHN_UNDEF
	Global  bool
}

// Builder accumulates sections and symbols and serializes a minimal ET_REL
// ELF64 object: ELF header, section contents, .symtab, .strtab, .shstrtab,
// and the section header table at the tail (spec §4.9 "section-header
// table, string tables, symbol tables").
type Builder struct {
	Machine  uint16
	sections []Section
	symbols  []Symbol
}

// NewBuilder returns an empty builder targeting machine (emAMDGPU for the
// AMD dialects' device-code objects).
func NewBuilder(machine uint16) *Builder {
	return &Builder{Machine: machine}
}

// AddSection appends a section and returns its index, stable for the
// lifetime of the builder (mirrors SectionRegistry's id-stability invariant
// one layer up, spec §8.1).
func (b *Builder) AddSection(s Section) int {
	b.sections = append(b.sections, s)
	return len(b.sections) - 1
}

// AddSymbol appends a symbol referencing a section index from AddSection.
func (b *Builder) AddSymbol(s Symbol) {
	b.symbols = append(b.symbols, s)
}

func strtabBuild(names []string) (table []byte, offsets []uint32) {
	table = []byte{0}
	offsets = make([]uint32, len(names))
	for i, n := range names {
		offsets[i] = uint32(len(table))
		table = append(table, []byte(n)...)
		table = append(table, 0)
	}
	return table, offsets
}

// Generate serializes the accumulated sections/symbols into a byte-exact
// ET_REL ELF64 object. Running it twice on the same builder state produces
// byte-identical output (spec §5 "Output of the binary emitter is a pure
// function of the finalised input object").
func (b *Builder) Generate() []byte {
	const ehsize = 64
	const shentsize = 64
	const symentsize = 24

	secNames := make([]string, 0, len(b.sections)+3)
	secNames = append(secNames, "") // SHN_NULL's empty name
	for _, s := range b.sections {
		secNames = append(secNames, s.Name)
	}
	secNames = append(secNames, ".symtab", ".strtab", ".shstrtab")
	shstrtab, shNameOff := strtabBuild(secNames)

	symNames := make([]string, len(b.symbols))
	for i, s := range b.symbols {
		symNames[i] = s.Name
	}
	strtab, symNameOff := strtabBuild(symNames)

	var symtab bytes.Buffer
	// Null symbol at index 0, per ELF convention.
	symtab.Write(make([]byte, symentsize))
	for i, s := range b.symbols {
		var entry [symentsize]byte
		binary.LittleEndian.PutUint32(entry[0:], symNameOff[i])
		bind := byte(0) // STB_LOCAL
		if s.Global {
			bind = 1 // STB_GLOBAL
		}
		entry[4] = bind << 4
		shndx := uint16(0)
		if s.Section >= 0 {
			shndx = uint16(s.Section + 1) // +1 for the leading SHN_NULL entry
		}
		binary.LittleEndian.PutUint16(entry[6:], shndx)
		binary.LittleEndian.PutUint64(entry[8:], s.Value)
		binary.LittleEndian.PutUint64(entry[16:], s.Size)
		symtab.Write(entry[:])
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, ehsize)) // placeholder; filled at the end

	type laidOut struct {
		offset uint64
		size   uint64
	}
	offsets := make([]laidOut, len(b.sections))
	for i, s := range b.sections {
		align := s.Align
		if align == 0 {
			align = 1
		}
		pad := (align - uint64(buf.Len())%align) % align
		buf.Write(make([]byte, pad))
		offsets[i] = laidOut{offset: uint64(buf.Len()), size: uint64(len(s.Content))}
		if s.Type != shtNobits {
			buf.Write(s.Content)
		}
	}
	symtabOff := uint64(buf.Len())
	buf.Write(symtab.Bytes())
	strtabOff := uint64(buf.Len())
	buf.Write(strtab)
	shstrtabOff := uint64(buf.Len())
	buf.Write(shstrtab)

	shoff := uint64(buf.Len())
	numSections := uint16(1 + len(b.sections) + 3) // NULL + user sections + symtab/strtab/shstrtab

	writeShdr := func(nameOff uint32, typ uint32, flags uint64, offset, size, addralign, link, info, entsize uint64) {
		var h [shentsize]byte
		binary.LittleEndian.PutUint32(h[0:], nameOff)
		binary.LittleEndian.PutUint32(h[4:], typ)
		binary.LittleEndian.PutUint64(h[8:], flags)
		binary.LittleEndian.PutUint64(h[16:], 0) // addr: unlinked relocatable object
		binary.LittleEndian.PutUint64(h[24:], offset)
		binary.LittleEndian.PutUint64(h[32:], size)
		binary.LittleEndian.PutUint32(h[40:], uint32(link))
		binary.LittleEndian.PutUint32(h[44:], uint32(info))
		binary.LittleEndian.PutUint64(h[48:], addralign)
		binary.LittleEndian.PutUint64(h[56:], entsize)
		buf.Write(h[:])
	}

	writeShdr(0, shtNull, 0, 0, 0, 0, 0, 0, 0)
	for i, s := range b.sections {
		writeShdr(shNameOff[i+1], s.Type, s.Flags, offsets[i].offset, offsets[i].size, s.Align, 0, 0, 0)
	}
	symtabSecIdx := uint32(len(b.sections) + 1)
	writeShdr(shNameOff[len(b.sections)+1], shtSymtab, 0, symtabOff, uint64(symtab.Len()), 8, uint64(symtabSecIdx+1), uint64(1), symentsize)
	writeShdr(shNameOff[len(b.sections)+2], shtStrtab, 0, strtabOff, uint64(len(strtab)), 1, 0, 0, 0)
	writeShdr(shNameOff[len(b.sections)+3], shtStrtab, 0, shstrtabOff, uint64(len(shstrtab)), 1, 0, 0, 0)

	out := buf.Bytes()
	var eh [ehsize]byte
	eh[0], eh[1], eh[2], eh[3] = elfMag0, elfMag1, elfMag2, elfMag3
	eh[4] = elfClass64
	eh[5] = elfDataLSB
	eh[6] = elfVersionCurrent
	binary.LittleEndian.PutUint16(eh[16:], etREL)
	binary.LittleEndian.PutUint16(eh[18:], b.Machine)
	binary.LittleEndian.PutUint32(eh[20:], elfVersionCurrent)
	binary.LittleEndian.PutUint16(eh[52:], ehsize)
	binary.LittleEndian.PutUint16(eh[58:], shentsize)
	binary.LittleEndian.PutUint16(eh[60:], numSections)
	binary.LittleEndian.PutUint16(eh[62:], uint16(len(b.sections)+3)) // shstrndx: the last section
	binary.LittleEndian.PutUint64(eh[40:], shoff)
	copy(out[0:ehsize], eh[:])

	return out
}
