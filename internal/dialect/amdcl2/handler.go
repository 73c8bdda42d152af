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
// Package amdcl2 implements the AMD Catalyst OpenCL 2.x ("AMDCL2") dialect
// handler (spec §4.6.2): classic vs. HSA inner-binary layout, setupargs
// hidden-argument injection, driver-version gating, and lo()/hi() relocation
// emission against .rodata/.data/.bss.
package amdcl2

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

// hsaHeaderSize is sizeof(amd_kernel_code_t), the fixed descriptor every
// AMD-HSA-layout kernel carries immediately before its instructions (spec
// §4.6.2/§4.7's AMD-HSA descriptor, matching kconfig.HSADescriptor.Marshal's
// 256-byte record).
const hsaHeaderSize = 256

// MinNewBinaryDriverVersion is the driver-version gate for "new-binary"
// features: global data/rwdata/bss, samplerinit, inner sections, HSA config
// (spec §4.6.2 "any 'new-binary' feature ... requires driver >= 1912.05").
const MinNewBinaryDriverVersion = 1912*100 + 5

// setupArgNames are the six hidden arguments setupargs inserts first (spec
// §4.6.2's setupargs).
var setupArgNames = []string{
	"_.global_offset_0", "_.global_offset_1", "_.global_offset_2",
	"_.printf_buffer", "_.vqueue_pointer", "_.aqlwrap_pointer",
}

// Reloc is one recorded relocation against .rodata/.data/.bss (spec
// §4.6.2's relocation emission).
type Reloc struct {
	KernelID   kernel.Id
	Offset     uint64
	TargetKind section.Kind // KindDataRodata, KindAMDCL2RWData, or KindAMDCL2BSS
	Addend     int64
	IsHi       bool
}

// FillerPattern is written into the code stream at a relocation site before
// the real address is known (spec §4.6.2).
const FillerPattern uint32 = 0x55555555

// Handler is the AMDCL2 DialectHandler.
type Handler struct {
	Sections *section.Registry
	Kernels  *kernel.State
	Arch     archtables.GPUArchitecture
	Table    *directive.Table
	Content  binemit.Content

	DriverVersion  int
	Is64Bit        bool
	Policy         finalize.PolicyVersion
	HsaLayout      bool // set by .hsalayout, must precede any kernel (spec §4.6.2)
	innerSections  map[string]section.Id
	Relocs         []Reloc
	kernelSetup    map[kernel.Id]bool // whether the kernel already has an explicit .setup
	kernelSetupArg map[kernel.Id]bool // whether setupargs has already run

	hsaOffsets []finalize.KernelOffset // resolved by PrepareBinary for HSA-layout kernels

	eval *asmfront.Evaluator
	sink *diag.Sink
	pos  diag.Pos
}

// symbolResolver adapts Handler.ResolveSymbol to finalize.SymbolResolver,
// restricting matches to the code section (spec §4.8 step 4).
type symbolResolver struct{ h *Handler }

func (r symbolResolver) ResolveInCodeSection(name string) (uint64, bool) {
	v, sect, ok := r.h.ResolveSymbol(name)
	if !ok {
		return 0, false
	}
	kind, _ := r.h.SectionInfo(sect)
	if kind != section.KindCode {
		return 0, false
	}
	return v, true
}

// SetContent installs the raw per-section byte content the front-end
// accumulated, ready for WriteBinary to lay out (spec §4.9).
func (h *Handler) SetContent(content binemit.Content) {
	h.Content = content
}

// New constructs an AMDCL2 handler.
func New(sections *section.Registry, kernels *kernel.State, arch archtables.GPUArchitecture, driverVersion int, is64Bit bool, policy finalize.PolicyVersion) *Handler {
	h := &Handler{
		Sections:       sections,
		Kernels:        kernels,
		Arch:           arch,
		DriverVersion:  driverVersion,
		Is64Bit:        is64Bit,
		Policy:         policy,
		innerSections:  make(map[string]section.Id),
		kernelSetup:    make(map[kernel.Id]bool),
		kernelSetupArg: make(map[kernel.Id]bool),
	}
	h.Table = directive.NewTable(h.directiveEntries())
	return h
}

func (h *Handler) Name() string { return "amdcl2" }

func (h *Handler) IsKnownDirective(name string) bool { return h.Table.IsKnownDirective(name) }

// NewCodeSection places each kernel's .text per spec §4.6.2: its own
// inner-binary .text in classic layout, or the single shared inner .text
// once .hsalayout has selected HSA mode.
func NewCodeSectionFor(h *Handler) func(name string, reg *section.Registry) (*section.Section, error) {
	return func(name string, reg *section.Registry) (*section.Section, error) {
		if h.HsaLayout {
			if id, ok := reg.ByName(section.OwnerInner, ".text"); ok {
				return reg.Get(id), nil
			}
			return reg.New(section.OwnerInner, section.KindCode, ".text")
		}
		return reg.New(section.OwnerInner, section.KindCode, name+".text")
	}
}

func (h *Handler) AddKernel(name string) (kernel.Id, error) {
	id, err := h.Kernels.AddKernel(name)
	if err != nil {
		return -1, err
	}
	if h.HsaLayout {
		h.Kernels.Get(id).UseHsaConfig = true
		h.Kernels.Get(id).Cfg = kconfig.NewHsaConfig()
	}
	return id, nil
}

func (h *Handler) requiresNewBinary(feature string) error {
	if h.DriverVersion != 0 && h.DriverVersion < MinNewBinaryDriverVersion {
		return fmt.Errorf("%s requires driver version >= 1912.05, detected %d.%02d", feature, h.DriverVersion/100, h.DriverVersion%100)
	}
	return nil
}

func (h *Handler) AddSection(name string, owner int) (section.Id, error) {
	switch base := strings.TrimPrefix(name, "."); base {
	case "rodata", "data", "bss":
		if err := h.requiresNewBinary("." + base); err != nil {
			return -1, err
		}
		kind := section.KindDataRodata
		if base == "data" {
			kind = section.KindAMDCL2RWData
		} else if base == "bss" {
			kind = section.KindAMDCL2BSS
		}
		s, err := h.Sections.New(section.OwnerInner, kind, "."+base)
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
	return h.Sections.ByName(section.OwnerInner, name)
}

func (h *Handler) SwitchKernel(id kernel.Id) error { return h.Kernels.SwitchKernel(id) }

func (h *Handler) SwitchSection(id section.Id) { h.Kernels.GoToSection(id) }

func (h *Handler) SectionInfo(id section.Id) (section.Kind, section.Flags) {
	s := h.Sections.Get(id)
	return s.Kind, section.Info(s.Kind)
}

func (h *Handler) IsCodeSection() bool {
	cur := h.Sections.Current()
	return cur >= 0 && h.Sections.Get(cur).Kind == section.KindCode
}

func (h *Handler) directiveEntries() []directive.Entry {
	return []directive.Entry{
		{Name: "hsalayout", Handler: h.handleHsaLayout},
		{Name: "hsaconfig", Handler: h.handleHsaConfig},
		{Name: "setup", Handler: h.handleSetup},
		{Name: "setupargs", Handler: h.handleSetupArgs},
		{Name: "globaldata", Handler: h.handleSectionAlias("rodata")},
		{Name: "rwdata", Handler: h.handleSectionAlias("data")},
		{Name: "bssdata", Handler: h.handleSectionAlias("bss")},
		{Name: "kernarg_segment_size", Handler: h.handleScalar(kconfig.TargetKernargSegmentSize, 64)},
		{Name: "kernarg_segment_align", Handler: h.handleAlign},
		{Name: "localsize", Handler: h.handleScalar(kconfig.TargetLocalSize, 32)},
		{Name: "scratchbuffer", Handler: h.handleScalar(kconfig.TargetScratchBufferSize, 32)},
	}
}

func (h *Handler) handleHsaLayout(args string) bool {
	if len(h.Kernels.All()) > 0 {
		return false // must precede any kernel, spec §4.6.2
	}
	if err := h.requiresNewBinary(".hsalayout"); err != nil {
		return false
	}
	h.HsaLayout = true
	return true
}

func (h *Handler) handleHsaConfig(args string) bool {
	if err := h.requiresNewBinary(".hsaconfig"); err != nil {
		return false
	}
	id := h.Kernels.Current()
	if id < 0 {
		return false
	}
	k := h.Kernels.Get(id)
	k.UseHsaConfig = true
	if k.Cfg == nil {
		k.Cfg = kconfig.NewHsaConfig()
	}
	return true
}

func (h *Handler) handleSetup(args string) bool {
	id := h.Kernels.Current()
	if id < 0 {
		return false
	}
	h.kernelSetup[id] = true
	return true
}

// handleSetupArgs inserts the six hidden setup arguments first (spec
// §4.6.2), sized 64-bit when Is64Bit else 32-bit.
func (h *Handler) handleSetupArgs(args string) bool {
	id := h.Kernels.Current()
	if id < 0 || h.kernelSetupArg[id] {
		return false
	}
	k := h.Kernels.Get(id)
	if k.Cfg == nil {
		return false
	}
	ty := kconfig.TypeU32
	if h.Is64Bit {
		ty = kconfig.TypeU64
	}
	hidden := make([]kconfig.Argument, 0, len(setupArgNames))
	for _, name := range setupArgNames {
		hidden = append(hidden, kconfig.ScalarArg{Name: name, Type: ty})
	}
	k.Cfg.Args = append(hidden, k.Cfg.Args...)
	h.kernelSetupArg[id] = true
	return true
}

func (h *Handler) handleSectionAlias(real string) directive.HandlerFunc {
	return func(args string) bool {
		_, err := h.AddSection(real, section.OwnerInner)
		return err == nil
	}
}

func (h *Handler) handleScalar(t kconfig.Target, bits int) directive.HandlerFunc {
	return func(args string) bool {
		id := h.Kernels.Current()
		if id < 0 {
			return false
		}
		k := h.Kernels.Get(id)
		if k.Cfg == nil {
			return false
		}
		store := kconfig.NewStore(k.Cfg, h.Arch)
		v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, args, bits)
		if !ok {
			return false
		}
		return store.SetScalar(t, v) == nil
	}
}

func (h *Handler) handleAlign(args string) bool {
	id := h.Kernels.Current()
	if id < 0 {
		return false
	}
	k := h.Kernels.Get(id)
	if k.Cfg == nil || k.Cfg.Hsa == nil {
		return false
	}
	v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, args, 32)
	if !ok || v == 0 || v&(v-1) != 0 {
		return false
	}
	k.Cfg.Hsa.KernargSegmentAlignLog2 = kconfig.AlignLog2(uint32(v))
	return true
}

// RecordLoHiRelocation validates that expr's target section is one of
// .rodata/.data/.bss and appends a relocation with the filler pattern
// convention (spec §4.6.2's "Relocation emission").
func (h *Handler) RecordLoHiRelocation(id kernel.Id, offset uint64, targetSectName string, addend int64, isHi bool) error {
	sid, ok := h.Sections.ByName(section.OwnerInner, targetSectName)
	if !ok {
		return fmt.Errorf("lo()/hi() relocation target %q is not a known inner section", targetSectName)
	}
	kind := h.Sections.Get(sid).Kind
	switch kind {
	case section.KindDataRodata, section.KindAMDCL2RWData, section.KindAMDCL2BSS:
	default:
		return fmt.Errorf("only .rodata, .data, .bss may appear in a lo()/hi() expression")
	}
	h.Relocs = append(h.Relocs, Reloc{KernelID: id, Offset: offset, TargetKind: kind, Addend: addend, IsHi: isHi})
	return nil
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

func (h *Handler) PrepareBinary(sink *diag.Sink) bool {
	// Save the current kernel's final encoder allocation into its AllocRegs.
	h.Kernels.GoToSection(h.Sections.Current())
	good := true
	hasHsaKernel := false
	for _, k := range h.Kernels.All() {
		if k.Cfg == nil {
			continue
		}
		if k.UseHsaConfig && k.Cfg.Hsa != nil {
			hasHsaKernel = true
			if !k.Cfg.UsedSGPRsNum.IsSet() {
				k.Cfg.UsedSGPRsNum = kconfig.Set(finalize.HsaUserSGPRsNum(k.Cfg.Hsa.EnableSgprRegisterFlags))
			}
			if !k.Cfg.UsedVGPRsNum.IsSet() {
				counts := finalize.ComputeRegisterCounts(h.Arch, k, k.Cfg.UsedSGPRsNum.Get(), 0,
					false, k.Cfg.Hsa.WorkitemPrivateSegmentSize != 0, h.Policy, 0)
				k.Cfg.UsedVGPRsNum = kconfig.Set(counts.UsedVGPRsNum)
			}
		}
	}
	// relocations sorted per kernel by offset (spec §4.8 step 5).
	sortRelocsByKernelOffset(h.Relocs)

	// h.eval is only populated once a directive has gone through
	// ParseDirective; unit tests that drive handlers directly (bypassing the
	// front-end) never reach that, so offset resolution is skipped rather
	// than failing on a symbol table that was never wired up.
	if hasHsaKernel && h.eval != nil {
		offs, ok := finalize.ResolveHsaKernelOffsets(h.Kernels, symbolResolver{h}, hsaHeaderSize, sink)
		if !ok {
			good = false
		} else {
			h.hsaOffsets = offs
		}
	}
	return good
}

func sortRelocsByKernelOffset(r []Reloc) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j-1].KernelID == r[j].KernelID && r[j-1].Offset > r[j].Offset; j-- {
			r[j-1], r[j] = r[j], r[j-1]
		}
	}
}

// WriteBinary places each HSA-layout kernel's packed amd_kernel_code_t
// descriptor into its dedicated .setup section (spec §4.7's "AMD-HSA
// descriptor placement") before delegating to the BinaryEmitter adapter.
// The descriptor lives in its own section rather than spliced inline ahead
// of the kernel's code bytes, since the code stream's byte offsets were
// already fixed by the front-end at assembly time (spec §4.9's Content map
// is immutable-by-position once SetContent installs it).
func (h *Handler) WriteBinary() ([]byte, error) {
	for _, k := range h.Kernels.All() {
		if !k.UseHsaConfig || k.Cfg == nil || k.Cfg.Hsa == nil {
			continue
		}
		setupID, has := k.HasSection(kernel.SlotSetup)
		if !has {
			s, err := h.Sections.New(section.OwnerInner, section.KindAMDCL2Setup, k.Name+".setup")
			if err != nil {
				continue
			}
			setupID = s.Id
			k.SetSection(kernel.SlotSetup, setupID)
		}
		userSGPRs := finalize.HsaUserSGPRsNum(k.Cfg.Hsa.EnableSgprRegisterFlags)
		counts := finalize.RegisterCounts{
			UsedSGPRsNum: k.Cfg.UsedSGPRsNum.GetOr(0),
			UsedVGPRsNum: k.Cfg.UsedVGPRsNum.GetOr(0),
			UserSGPRsNum: userSGPRs,
		}
		finalize.PackHSADescriptor(h.Arch, k.Cfg.Hsa, counts, 0, 0, false, false, false, false,
			k.Cfg.Hsa.WorkitemPrivateSegmentSize != 0, false, 0, k.Cfg.Hsa.WorkgroupGroupSegmentSize, 0)
		buf := k.Cfg.Hsa.Marshal()
		h.Content[setupID] = append(h.Content[setupID], buf[:]...)
	}
	return binemit.EmitAMDCL2(h.Sections, h.Kernels, h.Content), nil
}

// ResolveSymbol looks a name up in the front-end's symbol table (spec §4.6's
// DialectHandler.resolveSymbol).
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

// ResolveRelocation evaluates a lo()/hi()-wrapped expression against
// .rodata/.data/.bss (spec §4.6.2's relocation emission).
func (h *Handler) ResolveRelocation(expr string) (uint64, section.Id, bool) {
	if h.eval == nil {
		return 0, 0, false
	}
	r, err := h.eval.ParseExpression(expr)
	if err != nil || !r.Resolved || r.Section < 0 {
		return 0, 0, false
	}
	v := uint64(r.Value)
	switch r.Kind {
	case asmfront.RelocLow32:
		v &= 0xffffffff
	case asmfront.RelocHigh32:
		v = (v >> 32) & 0xffffffff
	}
	return v, section.Id(r.Section), true
}
