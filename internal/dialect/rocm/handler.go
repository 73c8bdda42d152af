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
// Package rocm implements the AMD ROCm dialect handler (spec §4.6.4): the
// shared .text container, raw-vs-structured metadata, the GOT table, and the
// .fkernel/.newbinfmt/.nosectdiffs toggles.
package rocm

import (
	"fmt"
	"strings"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/asmfront"
	"github.com/clrxng/clrxasm/internal/binemit"
	"github.com/clrxng/clrxasm/internal/diag"
	"github.com/clrxng/clrxasm/internal/directive"
	"github.com/clrxng/clrxasm/internal/finalize"
	"github.com/clrxng/clrxasm/internal/kconfig"
	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/section"
)

// ArgValueKind is one of .arg's valueKind enumerators (spec §4.6.4).
type ArgValueKind int

const (
	ValueKindValue ArgValueKind = iota
	ValueKindGlobalBuf
	ValueKindDynSharedPtr
	ValueKindSampler
	ValueKindImage
	ValueKindPipe
	ValueKindQueue
	ValueKindPrintfBuf
	ValueKindDefaultQueue
	ValueKindCompletionAction
	ValueKindNone
	ValueKindHiddenGlobalOffsetX
	ValueKindHiddenGlobalOffsetY
	ValueKindHiddenGlobalOffsetZ
)

var argValueKindTable = []directive.EnumEntry{
	{Keyword: "value", Value: int(ValueKindValue)},
	{Keyword: "globalbuf", Value: int(ValueKindGlobalBuf)},
	{Keyword: "dynshptr", Value: int(ValueKindDynSharedPtr)},
	{Keyword: "sampler", Value: int(ValueKindSampler)},
	{Keyword: "image", Value: int(ValueKindImage)},
	{Keyword: "pipe", Value: int(ValueKindPipe)},
	{Keyword: "queue", Value: int(ValueKindQueue)},
	{Keyword: "printfbuf", Value: int(ValueKindPrintfBuf)},
	{Keyword: "defqueue", Value: int(ValueKindDefaultQueue)},
	{Keyword: "complact", Value: int(ValueKindCompletionAction)},
	{Keyword: "none", Value: int(ValueKindNone)},
	{Keyword: "gox", Value: int(ValueKindHiddenGlobalOffsetX)},
	{Keyword: "goy", Value: int(ValueKindHiddenGlobalOffsetY)},
	{Keyword: "goz", Value: int(ValueKindHiddenGlobalOffsetZ)},
}

// MetadataArg is one .arg entry of the structured ROCmMetadata object (spec
// §4.6.4).
type MetadataArg struct {
	Name, TypeName  string
	Size, Align     uint32
	ValueKind       ArgValueKind
	ValueType       string
	PointeeAlign    kconfig.Opt[uint32]
	AddressSpace    kconfig.Opt[int]
	AccessQual      kconfig.Opt[int]
	ActualAccess    kconfig.Opt[int]
	Flags           []string
}

// Metadata is the structured ROCmMetadata object assembled from .md_*/.arg/
// .printf/.cws/... directives (spec §4.6.4/§4.7).
type Metadata struct {
	Version             [2]uint32
	SymbolName          string
	Language            string
	GroupSegmentSize    uint32
	KernargSegmentAlign uint32
	KernargSegmentSize  uint32
	PrivateSegmentSize  uint32
	SgprCount, VgprCount uint32
	WavefrontSize       uint32
	Args                []MetadataArg
	Printfs             []string
	ReqdWorkGroupSize   [3]uint32
	WorkGroupSizeHint   [3]uint32
	VecTypeHint         string
	RuntimeHandle       string
}

// GotEntry is one ROCM-GOT slot (spec §3.5).
type GotEntry struct {
	Symbol    string
	TargetSym string
	Index     int
}

type kernelExtra struct {
	usesRawMetadata        bool
	usesStructuredMetadata bool
	rawMetadataText        string
	meta                   *Metadata
}

// Handler is the ROCm DialectHandler.
type Handler struct {
	Sections *section.Registry
	Kernels  *kernel.State
	Arch     archtables.GPUArchitecture
	Table    *directive.Table
	Content  binemit.Content

	NewBinFmt    bool
	NoSectDiffs  bool
	Got          []GotEntry
	gotBySym     map[string]int
	gotSection   section.Id
	hasGotSection bool

	extra map[kernel.Id]*kernelExtra

	eval *asmfront.Evaluator
	sink *diag.Sink
	pos  diag.Pos
}

// SetContent installs the raw per-section byte content the front-end
// accumulated, ready for WriteBinary to lay out (spec §4.9).
func (h *Handler) SetContent(content binemit.Content) {
	h.Content = content
}

// New constructs a ROCm handler.
func New(sections *section.Registry, kernels *kernel.State, arch archtables.GPUArchitecture) *Handler {
	h := &Handler{
		Sections: sections,
		Kernels:  kernels,
		Arch:     arch,
		gotBySym: make(map[string]int),
		extra:    make(map[kernel.Id]*kernelExtra),
	}
	h.Table = directive.NewTable(h.directiveEntries())
	return h
}

func (h *Handler) Name() string { return "rocm" }

func (h *Handler) IsKnownDirective(name string) bool { return h.Table.IsKnownDirective(name) }

// NewCodeSection places every kernel in the single shared .text (spec
// §4.6.4 "All kernels live in the single shared .text").
func NewCodeSection(reg *section.Registry) (*section.Section, error) {
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
	k := h.Kernels.Get(id)
	k.UseHsaConfig = true
	k.Cfg = kconfig.NewHsaConfig()
	h.extra[id] = &kernelExtra{}
	return id, nil
}

func (h *Handler) AddSection(name string, owner int) (section.Id, error) {
	switch name {
	case "metadata":
		s, err := h.Sections.New(section.OwnerGlobal, section.KindROCmMetadata, ".metadata")
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
	flags := section.Info(s.Kind)
	if h.NoSectDiffs {
		switch s.Kind {
		case section.KindCode, section.KindDataRodata, section.KindAMDCL2RWData, section.KindAMDCL2BSS:
			flags |= section.FlagAbsAddressable
		}
	}
	return s.Kind, flags
}

func (h *Handler) IsCodeSection() bool {
	cur := h.Sections.Current()
	return cur >= 0 && h.Sections.Get(cur).Kind == section.KindCode
}

func (h *Handler) current() (kernel.Id, *kernelExtra, error) {
	id := h.Kernels.Current()
	if id < 0 {
		return -1, nil, fmt.Errorf("directive requires an active kernel")
	}
	return id, h.extra[id], nil
}

func (h *Handler) ensureStructured(ex *kernelExtra) error {
	if ex.usesRawMetadata {
		return fmt.Errorf("cannot mix raw .metadata with structured .md_*/.arg directives")
	}
	ex.usesStructuredMetadata = true
	if ex.meta == nil {
		ex.meta = &Metadata{Version: [2]uint32{1, 0}}
	}
	return nil
}

func (h *Handler) directiveEntries() []directive.Entry {
	return []directive.Entry{
		{Name: "metadata", Handler: h.handleRawMetadata},
		{Name: "md_version", Handler: h.handleMdVersion},
		{Name: "md_symname", Handler: h.handleMdField(func(m *Metadata, s string) { m.SymbolName = s })},
		{Name: "md_language", Handler: h.handleMdField(func(m *Metadata, s string) { m.Language = s })},
		{Name: "md_group_segment_fixed_size", Handler: h.handleMdUint(func(m *Metadata, v uint32) { m.GroupSegmentSize = v })},
		{Name: "md_kernarg_segment_align", Handler: h.handleMdUint(func(m *Metadata, v uint32) { m.KernargSegmentAlign = v })},
		{Name: "md_kernarg_segment_size", Handler: h.handleMdUint(func(m *Metadata, v uint32) { m.KernargSegmentSize = v })},
		{Name: "md_private_segment_fixed_size", Handler: h.handleMdUint(func(m *Metadata, v uint32) { m.PrivateSegmentSize = v })},
		{Name: "md_sgprsnum", Handler: h.handleMdUint(func(m *Metadata, v uint32) { m.SgprCount = v })},
		{Name: "md_vgprsnum", Handler: h.handleMdUint(func(m *Metadata, v uint32) { m.VgprCount = v })},
		{Name: "md_wavefront_size", Handler: h.handleMdUint(func(m *Metadata, v uint32) { m.WavefrontSize = v })},
		{Name: "arg", Handler: h.handleArg},
		{Name: "printf", Handler: h.handlePrintf},
		{Name: "vectypehint", Handler: h.handleMdField(func(m *Metadata, s string) { m.VecTypeHint = s })},
		{Name: "runtime_handle", Handler: h.handleMdField(func(m *Metadata, s string) { m.RuntimeHandle = s })},
		{Name: "fkernel", Handler: h.handleFKernel},
		{Name: "gotsym", Handler: h.handleGotSym},
		{Name: "newbinfmt", Handler: h.handleNewBinFmt},
		{Name: "nosectdiffs", Handler: h.handleNoSectDiffs},
	}
}

func (h *Handler) handleRawMetadata(args string) bool {
	_, ex, err := h.current()
	if err != nil || ex.usesStructuredMetadata {
		return false
	}
	ex.usesRawMetadata = true
	ex.rawMetadataText = args
	return true
}

func (h *Handler) handleMdVersion(args string) bool {
	_, ex, err := h.current()
	if err != nil || h.ensureStructured(ex) != nil {
		return false
	}
	maj, min, ok := directive.CodeVersion(h.sink, h.pos, args)
	if !ok {
		return false
	}
	ex.meta.Version = [2]uint32{uint32(maj), uint32(min)}
	return true
}

func (h *Handler) handleMdField(set func(*Metadata, string)) directive.HandlerFunc {
	return func(args string) bool {
		_, ex, err := h.current()
		if err != nil || h.ensureStructured(ex) != nil {
			return false
		}
		set(ex.meta, strings.TrimSpace(args))
		return true
	}
}

func (h *Handler) handleMdUint(set func(*Metadata, uint32)) directive.HandlerFunc {
	return func(args string) bool {
		_, ex, err := h.current()
		if err != nil || h.ensureStructured(ex) != nil {
			return false
		}
		v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, args, 32)
		if !ok {
			return false
		}
		set(ex.meta, uint32(v))
		return true
	}
}

// handleArg parses `name, "typeName", size, align, valueKind, valueType,
// extra*` (spec §4.6.4). Every non-empty field after valueType is recorded
// verbatim in Flags; pointeeAlign, addressSpace and access qualifiers are not
// parsed as separate fields.
func (h *Handler) handleArg(args string) bool {
	_, ex, err := h.current()
	if err != nil || h.ensureStructured(ex) != nil {
		return false
	}
	fields := directive.SplitArgs(args)
	if len(fields) < 6 {
		return false
	}
	size, ok1 := directive.AbsoluteValue(h.eval, h.sink, h.pos, fields[2], 32)
	align, ok2 := directive.AbsoluteValue(h.eval, h.sink, h.pos, fields[3], 32)
	if !ok1 || !ok2 {
		return false
	}
	kindVal, ok := directive.Enumeration(h.sink, h.pos, fields[4], argValueKindTable)
	if !ok {
		return false
	}
	kind := ArgValueKind(kindVal)
	a := MetadataArg{
		Name:      strings.TrimSpace(fields[0]),
		TypeName:  strings.Trim(strings.TrimSpace(fields[1]), `"`),
		Size:      uint32(size),
		Align:     uint32(align),
		ValueKind: kind,
		ValueType: strings.TrimSpace(fields[5]),
	}
	for _, extra := range fields[6:] {
		extra = strings.TrimSpace(extra)
		if extra != "" {
			a.Flags = append(a.Flags, extra)
		}
	}
	ex.meta.Args = append(ex.meta.Args, a)
	return true
}

func (h *Handler) handlePrintf(args string) bool {
	_, ex, err := h.current()
	if err != nil || h.ensureStructured(ex) != nil {
		return false
	}
	ex.meta.Printfs = append(ex.meta.Printfs, strings.TrimSpace(args))
	return true
}

func (h *Handler) handleFKernel(args string) bool {
	id := h.Kernels.Current()
	if id < 0 {
		return false
	}
	h.Kernels.Get(id).IsFKernel = true
	return true
}

// ensureGotSection lazily creates the .got section (spec §3.5's "a .got
// section sized 8 bytes per GOT entry"), so the first .gotsym directive has
// somewhere to anchor its target symbol.
func (h *Handler) ensureGotSection() section.Id {
	if h.hasGotSection {
		return h.gotSection
	}
	if id, ok := h.Sections.ByName(section.OwnerGlobal, ".got"); ok {
		h.gotSection, h.hasGotSection = id, true
		return id
	}
	s, err := h.Sections.New(section.OwnerGlobal, section.KindROCmGOT, ".got")
	if err != nil {
		return -1
	}
	h.gotSection, h.hasGotSection = s.Id, true
	return s.Id
}

// handleGotSym allocates a GOT slot, defining targetSym to gotIndex*8 when
// given (spec §3.5/§4.6.4).
func (h *Handler) handleGotSym(args string) bool {
	fields := directive.SplitArgs(args)
	if len(fields) == 0 || len(fields) > 2 {
		return false
	}
	name := strings.TrimSpace(fields[0])
	if _, exists := h.gotBySym[name]; exists {
		return false
	}
	idx := len(h.Got)
	entry := GotEntry{Symbol: name, Index: idx}
	gotID := h.ensureGotSection()
	if len(fields) == 2 {
		entry.TargetSym = strings.TrimSpace(fields[1])
		if h.eval != nil && entry.TargetSym != "" {
			h.eval.Symbols().Define(entry.TargetSym, uint64(idx*8), int(gotID))
		}
	}
	h.Got = append(h.Got, entry)
	h.gotBySym[name] = idx
	return true
}

func (h *Handler) handleNewBinFmt(args string) bool {
	h.NewBinFmt = true
	return true
}

func (h *Handler) handleNoSectDiffs(args string) bool {
	h.NoSectDiffs = true
	return true
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

// PrepareBinary runs the Finaliser's step 2 (spec §4.8): a kernel whose
// structured metadata left .md_sgprsnum/.md_vgprsnum unset gets them derived
// the same way the other HSA-layout dialects do, from the kernel's own
// AMD-HSA descriptor. GOT index assignment already happened at handleGotSym
// time (spec §4.8 step 5).
func (h *Handler) PrepareBinary(sink *diag.Sink) bool {
	// Save the current kernel's final encoder allocation into its AllocRegs.
	h.Kernels.GoToSection(h.Sections.Current())
	for id, k := range h.Kernels.All() {
		ex := h.extra[kernel.Id(id)]
		if ex == nil || ex.meta == nil || k.Cfg == nil || k.Cfg.Hsa == nil {
			continue
		}
		if ex.meta.SgprCount == 0 {
			ex.meta.SgprCount = finalize.HsaUserSGPRsNum(k.Cfg.Hsa.EnableSgprRegisterFlags)
		}
		if ex.meta.VgprCount == 0 {
			counts := finalize.ComputeRegisterCounts(h.Arch, k, ex.meta.SgprCount, 0,
				false, ex.meta.PrivateSegmentSize != 0, finalize.PolicyLegacy, 0)
			ex.meta.VgprCount = counts.UsedVGPRsNum
		}
	}
	return true
}

// WriteBinary sizes the .got section at 8 bytes per recorded entry before
// handing off to the emitter (spec §3.5); entry contents stay zero, since
// the GOT is populated by the runtime loader, not by the assembler.
func (h *Handler) WriteBinary() ([]byte, error) {
	if h.hasGotSection && len(h.Got) > 0 {
		h.Content[h.gotSection] = make([]byte, len(h.Got)*8)
	}
	return binemit.EmitROCm(h.Sections, h.Kernels, h.Content), nil
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
