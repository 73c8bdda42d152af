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
// Package gallium implements the Mesa3D GalliumCompute dialect handler (spec
// §4.6.3): LLVM-version-gated prog-info vs. AMD-HSA descriptor path, typed
// kernel arguments, and the unresolvable scratch-section relocation scheme.
package gallium

import (
	"encoding/binary"
	"strings"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/asmfront"
	"github.com/clrxng/clrxasm/internal/binemit"
	"github.com/clrxng/clrxasm/internal/diag"
	"github.com/clrxng/clrxasm/internal/directive"
	"github.com/clrxng/clrxasm/internal/finalize"
	"github.com/clrxng/clrxasm/internal/kconfig"
	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/metadata"
	"github.com/clrxng/clrxasm/internal/section"
)

// MinSpilledRegsLLVMVersion is the LLVM-version gate for spilled-SGPR/VGPR
// counts (spec §4.6.3 "Spilled-SGPR/VGPR counts require LLVM >= 3.9").
const MinSpilledRegsLLVMVersion = 3*100 + 9

// HsaPathLLVMVersion is the LLVM version at and above which the AMD-HSA
// descriptor path replaces prog-info entries (spec §4.6.3).
const HsaPathLLVMVersion = 4 * 100

// ArgKind is one of Gallium's argument type tags (spec §4.6.3 "Arguments").
type ArgKind int

const (
	ArgGlobal ArgKind = iota
	ArgConstant
	ArgLocal
	ArgSampler
	ArgScalar
	ArgImage2DRd
	ArgImage2DWr
	ArgImage3DRd
	ArgImage3DWr
)

// ArgSemantic classifies an argument's runtime-provided meaning.
type ArgSemantic int

const (
	SemanticGeneral ArgSemantic = iota
	SemanticGridDimension
	SemanticGridOffset
	SemanticImageSize
	SemanticImageFormat
)

// Arg is one Gallium kernel argument descriptor (spec §4.6.3).
type Arg struct {
	Name        string
	Kind        ArgKind
	Size        uint32
	TargetSize  uint32 // Size rounded up to 4
	TargetAlign uint32 // power-of-two >= TargetSize
	SignExtend  bool
	Semantic    ArgSemantic
}

// ProgInfoEntry is one (address, value) pair of the LLVM<4.0 prog-info path
// (spec §4.6.3/§4.7).
type ProgInfoEntry struct {
	Address uint32
	Value   uint32
}

// ScratchReloc is one entry of output.scratchRelocs (spec §4.6.3
// ".scratchsym ... produces a scratch relocation").
type ScratchReloc struct {
	Offset  uint64
	RelType int
}

type kernelExtra struct {
	args       []Arg
	progInfo   []ProgInfoEntry
	spilledSGP Opt
	spilledVGP Opt
}

// Opt is a tiny bool-tagged uint32, avoiding a second generic import just for
// this package's two optional fields.
type Opt struct {
	val uint32
	set bool
}

// Handler is the Gallium DialectHandler.
type Handler struct {
	Sections *section.Registry
	Kernels  *kernel.State
	Arch     archtables.GPUArchitecture
	Table    *directive.Table
	Content  binemit.Content

	LLVMVersion   int
	ScratchRelocs []ScratchReloc

	extra map[kernel.Id]*kernelExtra

	eval *asmfront.Evaluator
	sink *diag.Sink
	pos  diag.Pos
}

var argKindTable = []directive.EnumEntry{
	{Keyword: "global", Value: int(ArgGlobal)},
	{Keyword: "constant", Value: int(ArgConstant)},
	{Keyword: "local", Value: int(ArgLocal)},
	{Keyword: "sampler", Value: int(ArgSampler)},
	{Keyword: "scalar", Value: int(ArgScalar)},
	{Keyword: "image2d_rd", Value: int(ArgImage2DRd)},
	{Keyword: "image2d_wr", Value: int(ArgImage2DWr)},
	{Keyword: "image3d_rd", Value: int(ArgImage3DRd)},
	{Keyword: "image3d_wr", Value: int(ArgImage3DWr)},
}

var argSemanticTable = []directive.EnumEntry{
	{Keyword: "general", Value: int(SemanticGeneral)},
	{Keyword: "grid_dimension", Value: int(SemanticGridDimension)},
	{Keyword: "grid_offset", Value: int(SemanticGridOffset)},
	{Keyword: "image_size", Value: int(SemanticImageSize)},
	{Keyword: "image_format", Value: int(SemanticImageFormat)},
}

// SetContent installs the raw per-section byte content the front-end
// accumulated, ready for WriteBinary to lay out (spec §4.9).
func (h *Handler) SetContent(content binemit.Content) {
	h.Content = content
}

// New constructs a Gallium handler.
func New(sections *section.Registry, kernels *kernel.State, arch archtables.GPUArchitecture, llvmVersion int) *Handler {
	h := &Handler{
		Sections:    sections,
		Kernels:     kernels,
		Arch:        arch,
		LLVMVersion: llvmVersion,
		extra:       make(map[kernel.Id]*kernelExtra),
	}
	h.Table = directive.NewTable(h.directiveEntries())
	return h
}

func (h *Handler) Name() string { return "gallium" }

func (h *Handler) IsKnownDirective(name string) bool { return h.Table.IsKnownDirective(name) }

// UsesHsaPath reports whether prepareBinary should emit the AMD-HSA
// descriptor instead of prog-info entries (spec §4.6.3).
func (h *Handler) UsesHsaPath() bool { return h.LLVMVersion >= HsaPathLLVMVersion }

// NewCodeSection places every kernel's code in the single Gallium .text
// singleton (spec §4.4 "Gallium: .rodata, .text, .comment singletons").
func NewCodeSectionFor(reg *section.Registry) (*section.Section, error) {
	if id, ok := reg.ByName(section.OwnerGlobal, ".text"); ok {
		return reg.Get(id), nil
	}
	return reg.New(section.OwnerGlobal, section.KindCode, ".text")
}

func (h *Handler) AddKernel(name string) (kernel.Id, error) {
	id, err := h.Kernels.AddKernel(name)
	if err != nil {
		return -1, err
	}
	h.extra[id] = &kernelExtra{}
	if h.UsesHsaPath() {
		k := h.Kernels.Get(id)
		k.UseHsaConfig = true
		k.Cfg = kconfig.NewHsaConfig()
	}
	return id, nil
}

func (h *Handler) AddSection(name string, owner int) (section.Id, error) {
	switch base := strings.TrimPrefix(name, "."); base {
	case "rodata", "text", "comment":
		kind := map[string]section.Kind{"rodata": section.KindDataRodata, "text": section.KindCode, "comment": section.KindGalliumComment}[base]
		s, err := h.Sections.New(section.OwnerGlobal, kind, "."+base)
		if err != nil {
			return -1, err
		}
		return s.Id, nil
	case "scratchsym":
		s, err := h.Sections.New(section.OwnerGlobal, section.KindGalliumScratch, ".scratch")
		if err != nil {
			return -1, err
		}
		return s.Id, nil
	default:
		s, err := h.Sections.New(owner, section.KindExtraSection, name)
		if err != nil {
			return -1, err
		}
		return s.Id, nil
	}
}

func (h *Handler) SectionIdByName(name string) (section.Id, bool) {
	return h.Sections.ByName(section.OwnerGlobal, name)
}

func (h *Handler) SwitchKernel(id kernel.Id) error { return h.Kernels.SwitchKernel(id) }
func (h *Handler) SwitchSection(id section.Id)     { h.Kernels.GoToSection(id) }

func (h *Handler) SectionInfo(id section.Id) (section.Kind, section.Flags) {
	s := h.Sections.Get(id)
	if s.Kind == section.KindGalliumScratch {
		return s.Kind, section.FlagUnresolvable
	}
	return s.Kind, section.Info(s.Kind)
}

func (h *Handler) IsCodeSection() bool {
	cur := h.Sections.Current()
	return cur >= 0 && h.Sections.Get(cur).Kind == section.KindCode
}

func targetSizeAndAlign(size uint32, semantic ArgSemantic) (uint32, uint32) {
	ts := (size + 3) &^ 3
	if semantic == SemanticGridOffset {
		ts = 12
	}
	align := uint32(4)
	for align < ts {
		align <<= 1
	}
	return ts, align
}

func (h *Handler) directiveEntries() []directive.Entry {
	return []directive.Entry{
		{Name: "args", Handler: h.handleArgsNoop},
		{Name: "arg", Handler: h.handleArg},
		{Name: "entry", Handler: h.handleEntry},
		{Name: "proginfo", Handler: h.handleProgInfo},
		{Name: "scratchsym", Handler: h.handleScratchSym},
		{Name: "spilledsgprs", Handler: h.handleSpilled(true)},
		{Name: "spilledvgprs", Handler: h.handleSpilled(false)},
	}
}

func (h *Handler) handleArgsNoop(args string) bool { return true }

func (h *Handler) handleArg(args string) bool {
	id := h.Kernels.Current()
	if id < 0 {
		return false
	}
	fields := directive.SplitArgs(args)
	if len(fields) < 2 {
		return false
	}
	kindVal, ok := directive.Enumeration(h.sink, h.pos, fields[0], argKindTable)
	if !ok {
		return false
	}
	kind := ArgKind(kindVal)
	var size uint64
	if len(fields) > 2 {
		v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, fields[2], 32)
		if !ok {
			return false
		}
		size = v
	}
	semantic := SemanticGeneral
	if len(fields) > 3 {
		if s, ok := directive.Enumeration(h.sink, h.pos, fields[3], argSemanticTable); ok {
			semantic = ArgSemantic(s)
		}
	}
	ts, align := targetSizeAndAlign(uint32(size), semantic)
	ex := h.extra[id]
	ex.args = append(ex.args, Arg{
		Name: strings.TrimSpace(fields[1]), Kind: kind, Size: uint32(size),
		TargetSize: ts, TargetAlign: align, Semantic: semantic,
	})
	return true
}

func (h *Handler) handleEntry(args string) bool { return true }

func (h *Handler) handleProgInfo(args string) bool {
	id := h.Kernels.Current()
	if id < 0 || h.UsesHsaPath() {
		return false
	}
	fields := directive.SplitArgs(args)
	if len(fields) != 2 {
		return false
	}
	addr, ok1 := directive.AbsoluteValue(h.eval, h.sink, h.pos, fields[0], 32)
	val, ok2 := directive.AbsoluteValue(h.eval, h.sink, h.pos, fields[1], 32)
	if !ok1 || !ok2 {
		return false
	}
	ex := h.extra[id]
	maxEntries := 3
	if h.LLVMVersion >= MinSpilledRegsLLVMVersion {
		maxEntries = 5
	}
	if len(ex.progInfo) >= maxEntries {
		return false
	}
	ex.progInfo = append(ex.progInfo, ProgInfoEntry{Address: uint32(addr), Value: uint32(val)})
	return true
}

func (h *Handler) handleScratchSym(args string) bool {
	name := strings.TrimSpace(args)
	if name == "" {
		return false
	}
	_, err := h.AddSection("scratchsym", section.OwnerGlobal)
	return err == nil
}

func (h *Handler) handleSpilled(isSgpr bool) directive.HandlerFunc {
	return func(args string) bool {
		if h.LLVMVersion < MinSpilledRegsLLVMVersion {
			return false
		}
		id := h.Kernels.Current()
		if id < 0 {
			return false
		}
		v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, args, 32)
		if !ok {
			return false
		}
		ex := h.extra[id]
		if isSgpr {
			ex.spilledSGP = Opt{uint32(v), true}
		} else {
			ex.spilledVGP = Opt{uint32(v), true}
		}
		return true
	}
}

// RecordScratchRelocation appends a scratch relocation for an expression
// that referenced the scratch symbol (spec §4.6.3).
func (h *Handler) RecordScratchRelocation(offset uint64, relType int) {
	h.ScratchRelocs = append(h.ScratchRelocs, ScratchReloc{Offset: offset, RelType: relType})
}

// KernargSegmentSize sums aligned target sizes across a kernel's arguments
// (spec §4.6.3 "Kernel argument segment size is the sum of aligned target
// sizes").
func (h *Handler) KernargSegmentSize(id kernel.Id) uint32 {
	var total uint32
	for _, a := range h.extra[id].args {
		rem := total % a.TargetAlign
		if rem != 0 {
			total += a.TargetAlign - rem
		}
		total += a.TargetSize
	}
	return total
}

func (h *Handler) ParseDirective(name string, line string, front *asmfront.Front) bool {
	h.eval = front.Eval
	h.sink = front.Diag
	h.pos = front.SourcePos()
	found, ok := h.Table.Dispatch(name, line)
	if !found {
		return false
	}
	if !ok {
		h.sink.Errorf(h.pos, "malformed .%s directive", strings.TrimPrefix(name, "."))
	}
	return true
}

// PrepareBinary runs the Finaliser's step 2 (spec §4.8) for kernels that
// took the AMD-HSA descriptor path (LLVM >= 4.0, spec §4.6.3): userSGPRsNum
// and the minimum register counts come from the same Finaliser helpers the
// other HSA-layout dialects use.
func (h *Handler) PrepareBinary(sink *diag.Sink) bool {
	// Save the current kernel's final encoder allocation into its AllocRegs.
	h.Kernels.GoToSection(h.Sections.Current())
	for _, k := range h.Kernels.All() {
		if !k.UseHsaConfig || k.Cfg == nil || k.Cfg.Hsa == nil {
			continue
		}
		if !k.Cfg.UsedSGPRsNum.IsSet() {
			k.Cfg.UsedSGPRsNum = kconfig.Set(finalize.HsaUserSGPRsNum(k.Cfg.Hsa.EnableSgprRegisterFlags))
		}
		if !k.Cfg.UsedVGPRsNum.IsSet() {
			counts := finalize.ComputeRegisterCounts(h.Arch, k, k.Cfg.UsedSGPRsNum.Get(), 0,
				false, k.Cfg.Hsa.WorkitemPrivateSegmentSize != 0, finalize.PolicyLegacy, 0)
			k.Cfg.UsedVGPRsNum = kconfig.Set(counts.UsedVGPRsNum)
		}
	}
	return true
}

// WriteBinary lays out the recorded per-kernel prog-info entries and the
// scratch-relocation table into their own global sections before handing the
// object off to the emitter: binemit has no relocation-record concept of its
// own, so the LLVM<4.0 "CONSTANTBUFFERS et al." prog-info words (spec
// §4.7's PROGINFO layout, reused here via metadata.GalliumProgInfo) and the
// unresolved scratch-symbol references (spec §4.6.3's ".scratchsym produces
// a scratch relocation") are each serialized as a small summary section a
// downstream loader can read back (spec §4.9).
func (h *Handler) WriteBinary() ([]byte, error) {
	for id, k := range h.Kernels.All() {
		ex := h.extra[kernel.Id(id)]
		if ex == nil || len(ex.progInfo) == 0 {
			continue
		}
		entries := make([]metadata.ProgInfoEntry, len(ex.progInfo))
		for i, e := range ex.progInfo {
			entries[i] = metadata.ProgInfoEntry{Key: e.Address, Value: e.Value}
		}
		name := k.Name + ".proginfo"
		sectID, ok := h.Sections.ByName(section.OwnerGlobal, name)
		if !ok {
			s, err := h.Sections.New(section.OwnerGlobal, section.KindExtraSection, name)
			if err != nil {
				return nil, err
			}
			sectID = s.Id
		}
		h.Content[sectID] = metadata.GalliumProgInfo(entries)
	}

	if len(h.ScratchRelocs) > 0 {
		sectID, ok := h.Sections.ByName(section.OwnerGlobal, ".scratchrelocs")
		if !ok {
			s, err := h.Sections.New(section.OwnerGlobal, section.KindExtraSection, ".scratchrelocs")
			if err != nil {
				return nil, err
			}
			sectID = s.Id
		}
		h.Content[sectID] = marshalScratchRelocs(h.ScratchRelocs)
	}

	return binemit.EmitGallium(h.Sections, h.Kernels, h.Content), nil
}

func marshalScratchRelocs(relocs []ScratchReloc) []byte {
	out := make([]byte, len(relocs)*12)
	for i, r := range relocs {
		binary.LittleEndian.PutUint64(out[i*12:], r.Offset)
		binary.LittleEndian.PutUint32(out[i*12+8:], uint32(r.RelType))
	}
	return out
}

func (h *Handler) ResolveSymbol(name string) (uint64, section.Id, bool) {
	if h.eval == nil {
		return 0, 0, false
	}
	sym, ok := h.eval.Symbols().Lookup(name)
	if !ok || !sym.IsDefined {
		return 0, 0, false
	}
	return sym.Value, section.Id(sym.Section), true
}

func (h *Handler) ResolveRelocation(expr string) (uint64, section.Id, bool) {
	if h.eval == nil {
		return 0, 0, false
	}
	res, err := h.eval.ParseExpression(expr)
	if err != nil || !res.Resolved {
		return 0, 0, false
	}
	return uint64(res.Value), section.Id(res.Section), true
}
