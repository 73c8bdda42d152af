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
// Package amdv1 implements the AMD Catalyst OpenCL 1.x ("AMDv1") dialect
// handler (spec §4.6.1): explicit vs. config per-kernel modes, CAL notes, and
// the classic flat Config record.
package amdv1

import (
	"encoding/binary"
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
	"github.com/clrxng/clrxasm/internal/metadata"
	"github.com/clrxng/clrxasm/internal/section"
)

// CalNoteType is one of the fixed CAL-note ids emitted in §4.7's order.
type CalNoteType int

const (
	CalInputs CalNoteType = iota
	CalOutputs
	CalUAV
	CalCondout
	CalFloat32Consts
	CalInt32Consts
	CalBool32Consts
	CalEarlyExit
	CalGlobalBuffers
	CalConstantBuffers
	CalInputSamplers
	CalScratchBuffers
	CalPersistentBuffers
	CalProgInfo
	CalSubConstantBuffers
	CalUAVMailboxSize
	CalUAVOpMask
)

// calNoteNames gives each type the 8-byte "ATI CAL\0"-framed note name, per
// spec §8.1's CAL-note framing invariant.
var calNoteNames = map[CalNoteType]string{
	CalInputs: "INPUTS", CalOutputs: "OUTPUTS", CalUAV: "UAV",
	CalCondout: "CONDOUT", CalFloat32Consts: "FLOAT32CONSTS",
	CalInt32Consts: "INT32CONSTS", CalBool32Consts: "BOOL32CONSTS",
	CalEarlyExit: "EARLYEXIT", CalGlobalBuffers: "GLOBALBUFFERS",
	CalConstantBuffers: "CONSTANTBUFFERS", CalInputSamplers: "INPUTSAMPLERS",
	CalScratchBuffers: "SCRATCHBUFFERS", CalPersistentBuffers: "PERSISTENTBUFFERS",
	CalProgInfo: "PROGINFO", CalSubConstantBuffers: "SUBCONSTANTBUFFERS",
	CalUAVMailboxSize: "UAVMAILBOXSIZE", CalUAVOpMask: "UAVOPMASK",
}

// calNoteOrder is the fixed emission order of spec §4.7's AMDv1 CAL notes.
var calNoteOrder = []CalNoteType{
	CalInputs, CalOutputs, CalUAV, CalCondout, CalFloat32Consts, CalInt32Consts,
	CalBool32Consts, CalEarlyExit, CalGlobalBuffers, CalConstantBuffers,
	CalInputSamplers, CalScratchBuffers, CalPersistentBuffers, CalProgInfo,
	CalSubConstantBuffers, CalUAVMailboxSize, CalUAVOpMask,
}

// kernelMode is the per-kernel explicit-vs-config state (spec §4.6.1
// "Disallows mixing within a kernel").
type kernelMode int

const (
	modeNone kernelMode = iota
	modeExplicit
	modeConfig
)

// kernelExtra is the AMDv1-specific per-kernel state the shared
// kernel.Kernel/kconfig.Config types don't carry: CAL note buffers, mode, and
// (config mode only) the synthesized header/metadata/cal-note sections.
type kernelExtra struct {
	mode     kernelMode
	notes    map[CalNoteType]*[]byte
	curNote  CalNoteType
	hasNote  bool
	cfgStore *kconfig.Store

	headerSec, metadataSec, calNoteSec          section.Id
	hasHeaderSec, hasMetadataSec, hasCalNoteSec bool
	text                                         string
}

// Handler is the AMDv1 DialectHandler.
type Handler struct {
	Sections *section.Registry
	Kernels  *kernel.State
	Arch     archtables.GPUArchitecture
	Table    *directive.Table
	Content  binemit.Content
	Policy   finalize.PolicyVersion

	extra map[kernel.Id]*kernelExtra

	// metadataText accumulates every kernel's rendered text-metadata block in
	// emission order, so FirstFreeUniqueID can see ids already claimed by
	// earlier kernels (spec's "unique-ids in generated metadata are disjoint").
	metadataText string

	eval *asmfront.Evaluator
	sink *diag.Sink
	pos  diag.Pos
}

// SetContent installs the raw per-section byte content the front-end
// accumulated (code from the encoder, metadata/config serialized by
// internal/metadata), ready for WriteBinary to lay out (spec §4.9).
func (h *Handler) SetContent(content binemit.Content) {
	h.Content = content
}

// New constructs an AMDv1 handler bound to shared SectionRegistry/KernelState
// collaborators (owned by the front-end, per spec §5's shared-resource rule).
func New(sections *section.Registry, kernels *kernel.State, arch archtables.GPUArchitecture, policy finalize.PolicyVersion) *Handler {
	h := &Handler{
		Sections: sections,
		Kernels:  kernels,
		Arch:     arch,
		Policy:   policy,
		extra:    make(map[kernel.Id]*kernelExtra),
	}
	h.Table = directive.NewTable(h.directiveEntries())
	return h
}

func (h *Handler) Name() string { return "amd" }

func (h *Handler) IsKnownDirective(name string) bool { return h.Table.IsKnownDirective(name) }

// NewCodeSection is the AMDv1 code-section constructor passed to
// kernel.NewState: each kernel gets its own global-scope .text (spec §3.2
// "a per-kernel .text in AMDv1").
func NewCodeSection(name string, reg *section.Registry) (*section.Section, error) {
	return reg.New(section.OwnerGlobal, section.KindCode, name+".text")
}

func (h *Handler) AddKernel(name string) (kernel.Id, error) {
	id, err := h.Kernels.AddKernel(name)
	if err != nil {
		return -1, err
	}
	h.extra[id] = &kernelExtra{notes: make(map[CalNoteType]*[]byte)}
	return id, nil
}

func (h *Handler) AddSection(name string, owner int) (section.Id, error) {
	s, err := h.Sections.New(owner, section.KindExtraSection, name)
	if err != nil {
		return -1, err
	}
	return s.Id, nil
}

func (h *Handler) SectionIdByName(name string) (section.Id, bool) {
	return h.Sections.ByName(section.OwnerGlobal, name)
}

func (h *Handler) SwitchKernel(id kernel.Id) error { return h.Kernels.SwitchKernel(id) }

func (h *Handler) SwitchSection(id section.Id) { h.Kernels.GoToSection(id) }

func (h *Handler) SectionInfo(id section.Id) (section.Kind, section.Flags) {
	s := h.Sections.Get(id)
	return s.Kind, section.Info(s.Kind)
}

func (h *Handler) IsCodeSection() bool {
	cur := h.Sections.Current()
	if cur < 0 {
		return false
	}
	return h.Sections.Get(cur).Kind == section.KindCode
}

// current returns the AMDv1 extra state for the kernel currently selected.
func (h *Handler) current() (kernel.Id, *kernelExtra, error) {
	id := h.Kernels.Current()
	if id < 0 {
		return -1, nil, fmt.Errorf(".config/.metadata/.calnote directives require an active kernel")
	}
	return id, h.extra[id], nil
}

// enterMode enforces spec §4.6.1's "disallows mixing within a kernel":
// a kernel locks to its first-observed mode (explicit or config).
func (ex *kernelExtra) enterMode(m kernelMode) error {
	if ex.mode == modeNone {
		ex.mode = m
		return nil
	}
	if ex.mode != m {
		return fmt.Errorf("kernel cannot mix explicit and config modes")
	}
	return nil
}

func (h *Handler) directiveEntries() []directive.Entry {
	return []directive.Entry{
		{Name: "config", Handler: h.handleConfig},
		{Name: "metadata", Handler: h.handleMetadata},
		{Name: "header", Handler: h.handleHeader},
		{Name: "calnote", Handler: h.handleCalNote},
		{Name: "earlyexit", Handler: h.handleSingleValueNote(CalEarlyExit)},
		{Name: "condout", Handler: h.handleSingleValueNote(CalCondout)},
		{Name: "uavopmask", Handler: h.handleSingleValueNote(CalUAVOpMask)},
		{Name: "uavmailboxsize", Handler: h.handleSingleValueNote(CalUAVMailboxSize)},
		{Name: "entry", Handler: h.handleEntry(2)},
		{Name: "cbmask", Handler: h.handleEntry(2)},
		{Name: "sampler", Handler: h.handleEntry(2)},
		{Name: "segment", Handler: h.handleEntry(2)},
		// .inputs/.uav/.proginfo/.globalbuffers self-open their CAL note
		// rather than requiring a preceding .calnote (spec §4.6.1's
		// CAL-note-payload directives).
		{Name: "inputs", Handler: h.handleNoteEntry(CalInputs, 2)},
		{Name: "uav", Handler: h.handleNoteEntry(CalUAV, 4)},
		{Name: "proginfo", Handler: h.handleNoteEntry(CalProgInfo, 2)},
		{Name: "globalbuffers", Handler: h.handleNoteEntry(CalGlobalBuffers, 2)},
		{Name: "arg", Handler: h.handleArg},
		{Name: "userdata", Handler: h.handleUserData},
		{Name: "sgprsnum", Handler: h.handleScalar(kconfig.TargetUsedSGPRsNum, 32)},
		{Name: "vgprsnum", Handler: h.handleScalar(kconfig.TargetUsedVGPRsNum, 32)},
		{Name: "pgmrsrc2", Handler: h.handleScalar(kconfig.TargetPgmRSRC2, 32)},
		{Name: "floatmode", Handler: h.handleScalar(kconfig.TargetFloatMode, 8)},
		{Name: "localsize", Handler: h.handleScalar(kconfig.TargetLocalSize, 32)},
		{Name: "scratchbuffer", Handler: h.handleScalar(kconfig.TargetScratchBufferSize, 32)},
		{Name: "exceptions", Handler: h.handleScalar(kconfig.TargetExceptions, 7)},
		{Name: "tgsize", Handler: h.handleBool("tgSize")},
		{Name: "ieeemode", Handler: h.handleBool("ieeeMode")},
		{Name: "dx10clamp", Handler: h.handleBool("dx10Clamp")},
		{Name: "privmode", Handler: h.handleBool("privilegedMode")},
	}
}

func (h *Handler) handleConfig(args string) bool {
	id, ex, err := h.current()
	if err != nil {
		return false
	}
	if err := ex.enterMode(modeConfig); err != nil {
		return false
	}
	if ex.cfgStore == nil {
		k := h.Kernels.Get(id)
		k.Cfg = kconfig.NewClassicConfig()
		ex.cfgStore = kconfig.NewStore(k.Cfg, h.Arch)
	}
	return true
}

func (h *Handler) handleMetadata(args string) bool {
	_, ex, err := h.current()
	if err != nil {
		return false
	}
	return ex.enterMode(modeExplicit) == nil
}

func (h *Handler) handleHeader(args string) bool {
	_, ex, err := h.current()
	if err != nil {
		return false
	}
	return ex.enterMode(modeExplicit) == nil
}

func (h *Handler) handleCalNote(args string) bool {
	_, ex, err := h.current()
	if err != nil {
		return false
	}
	if err := ex.enterMode(modeExplicit); err != nil {
		return false
	}
	name := strings.ToUpper(strings.TrimSpace(args))
	for t, n := range calNoteNames {
		if n == name {
			ex.curNote = t
			ex.hasNote = true
			if ex.notes[t] == nil {
				buf := []byte{}
				ex.notes[t] = &buf
			}
			return true
		}
	}
	return false
}

// handleSingleValueNote returns a handler for the four CAL notes that accept
// one inline 32-bit value LE-written into the freshly opened section (spec
// §4.6.1).
func (h *Handler) handleSingleValueNote(t CalNoteType) directive.HandlerFunc {
	return func(args string) bool {
		_, ex, err := h.current()
		if err != nil {
			return false
		}
		v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, args, 32)
		if !ok {
			return false
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
		ex.notes[t] = &buf
		return true
	}
}

// handleEntry appends nWords*4 bytes LE into the currently open CAL-note
// section (spec §4.6.1 entry pseudo-ops, 2 words normally / 4 for UAV
// entries).
func (h *Handler) handleEntry(nWords int) directive.HandlerFunc {
	return func(args string) bool {
		_, ex, err := h.current()
		if err != nil || !ex.hasNote {
			return false
		}
		return h.appendNoteWords(ex, ex.curNote, args, nWords)
	}
}

// handleNoteEntry self-opens CAL note t (creating its buffer if this is the
// first directive to touch it) before appending nWords words, so directives
// like .inputs/.uav/.proginfo don't require a preceding .calnote (spec
// §4.6.1's config-mode CAL-note-payload directives).
func (h *Handler) handleNoteEntry(t CalNoteType, nWords int) directive.HandlerFunc {
	return func(args string) bool {
		_, ex, err := h.current()
		if err != nil {
			return false
		}
		if ex.notes[t] == nil {
			buf := []byte{}
			ex.notes[t] = &buf
		}
		ex.curNote, ex.hasNote = t, true
		return h.appendNoteWords(ex, t, args, nWords)
	}
}

func (h *Handler) appendNoteWords(ex *kernelExtra, t CalNoteType, args string, nWords int) bool {
	fields := directive.SplitArgs(args)
	if len(fields) != nWords {
		return false
	}
	buf := *ex.notes[t]
	for _, f := range fields {
		v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, f, 32)
		if !ok {
			return false
		}
		word := make([]byte, 4)
		binary.LittleEndian.PutUint32(word, uint32(v))
		buf = append(buf, word...)
	}
	*ex.notes[t] = buf
	return true
}

// amdv1ArgKinds selects which kconfig.Argument variant .arg constructs (spec
// §4.2's "typed-name table" generalized to the argument kind itself).
var amdv1ArgKinds = []directive.EnumEntry{
	{Keyword: "scalar", Value: 0},
	{Keyword: "pointer", Value: 1},
	{Keyword: "image", Value: 2},
	{Keyword: "counter", Value: 3},
}

var amdv1ScalarTypes = []directive.EnumEntry{
	{Keyword: "i8", Value: int(kconfig.TypeI8)}, {Keyword: "i16", Value: int(kconfig.TypeI16)},
	{Keyword: "i32", Value: int(kconfig.TypeI32)}, {Keyword: "i64", Value: int(kconfig.TypeI64)},
	{Keyword: "u8", Value: int(kconfig.TypeU8)}, {Keyword: "u16", Value: int(kconfig.TypeU16)},
	{Keyword: "u32", Value: int(kconfig.TypeU32)}, {Keyword: "u64", Value: int(kconfig.TypeU64)},
	{Keyword: "float", Value: int(kconfig.TypeFloat)}, {Keyword: "double", Value: int(kconfig.TypeDouble)},
}

var amdv1Spaces = []directive.EnumEntry{
	{Keyword: "global", Value: int(kconfig.SpaceGlobal)}, {Keyword: "local", Value: int(kconfig.SpaceLocal)},
	{Keyword: "constant", Value: int(kconfig.SpaceConstant)}, {Keyword: "private", Value: int(kconfig.SpacePrivate)},
	{Keyword: "generic", Value: int(kconfig.SpaceGeneric)}, {Keyword: "region", Value: int(kconfig.SpaceRegion)},
}

var amdv1ImageDims = []directive.EnumEntry{
	{Keyword: "1d", Value: int(kconfig.Image1D)}, {Keyword: "1d_array", Value: int(kconfig.Image1DArray)},
	{Keyword: "1d_buffer", Value: int(kconfig.Image1DBuffer)}, {Keyword: "2d", Value: int(kconfig.Image2D)},
	{Keyword: "2d_array", Value: int(kconfig.Image2DArray)}, {Keyword: "3d", Value: int(kconfig.Image3D)},
}

var amdv1AccessQuals = []directive.EnumEntry{
	{Keyword: "default", Value: int(kconfig.AccessDefault)}, {Keyword: "ro", Value: int(kconfig.AccessReadOnly)},
	{Keyword: "wo", Value: int(kconfig.AccessWriteOnly)}, {Keyword: "rw", Value: int(kconfig.AccessReadWrite)},
}

// handleArg parses `.arg kind, name, ...` into the kconfig.Argument variant
// kind selects, appending to the active kernel's config Args (spec §3.4/§4.6.1).
func (h *Handler) handleArg(args string) bool {
	id, ex, err := h.current()
	if err != nil || ex.cfgStore == nil {
		return false
	}
	fields := directive.SplitArgs(args)
	if len(fields) < 2 {
		return false
	}
	kind, ok := directive.Enumeration(h.sink, h.pos, fields[0], amdv1ArgKinds)
	if !ok {
		return false
	}
	name, ok := directive.NameArg(h.sink, h.pos, fields[1], 0)
	if !ok {
		return false
	}
	k := h.Kernels.Get(id)
	if !k.DeclareArg(name) {
		return false
	}
	switch kind {
	case 0: // scalar
		if len(fields) < 3 {
			return false
		}
		ty, ok := directive.Enumeration(h.sink, h.pos, fields[2], amdv1ScalarTypes)
		if !ok {
			return false
		}
		vecSize := 1
		if len(fields) > 3 {
			v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, fields[3], 8)
			if !ok {
				return false
			}
			vecSize = int(v)
		}
		k.Cfg.Args = append(k.Cfg.Args, kconfig.ScalarArg{Name: name, Type: kconfig.ScalarType(ty), VecSize: vecSize})
	case 1: // pointer
		if len(fields) < 4 {
			return false
		}
		ty, ok := directive.Enumeration(h.sink, h.pos, fields[2], amdv1ScalarTypes)
		if !ok {
			return false
		}
		space, ok := directive.Enumeration(h.sink, h.pos, fields[3], amdv1Spaces)
		if !ok {
			return false
		}
		isConst := len(fields) > 4 && strings.EqualFold(strings.TrimSpace(fields[4]), "const")
		k.Cfg.Args = append(k.Cfg.Args, kconfig.PointerArg{
			Name: name, PointeeType: kconfig.ScalarType(ty), Space: kconfig.AddressSpace(space), Const: isConst,
		})
	case 2: // image
		if len(fields) < 4 {
			return false
		}
		dim, ok := directive.Enumeration(h.sink, h.pos, fields[2], amdv1ImageDims)
		if !ok {
			return false
		}
		access, ok := directive.Enumeration(h.sink, h.pos, fields[3], amdv1AccessQuals)
		if !ok {
			return false
		}
		k.Cfg.Args = append(k.Cfg.Args, kconfig.ImageArg{Name: name, Dim: kconfig.ImageDim(dim), Access: kconfig.AccessQual(access)})
	case 3: // counter
		k.Cfg.Args = append(k.Cfg.Args, kconfig.Counter32Arg{Name: name})
	}
	return true
}

// handleUserData parses `.userdata class, apiSlot, regStart, regSize`,
// appending a hidden-constant descriptor consumed by the PROGINFO CAL note
// (spec §4.6.1/§4.7's userDatas).
func (h *Handler) handleUserData(args string) bool {
	_, ex, err := h.current()
	if err != nil || ex.cfgStore == nil {
		return false
	}
	fields := directive.SplitArgs(args)
	if len(fields) != 4 {
		return false
	}
	var vals [4]uint64
	for i, f := range fields {
		v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, f, 32)
		if !ok {
			return false
		}
		vals[i] = v
	}
	cf := ex.cfgStore.Config.Classic
	cf.UserDatas = append(cf.UserDatas, kconfig.UserData{
		Class: uint32(vals[0]), APISlot: uint32(vals[1]), RegStart: uint32(vals[2]), RegSize: uint32(vals[3]),
	})
	return true
}

func (h *Handler) handleScalar(t kconfig.Target, bits int) directive.HandlerFunc {
	return func(args string) bool {
		_, ex, err := h.current()
		if err != nil || ex.cfgStore == nil {
			return false
		}
		v, ok := directive.AbsoluteValue(h.eval, h.sink, h.pos, args, bits)
		if !ok {
			return false
		}
		return ex.cfgStore.SetScalar(t, v) == nil
	}
}

func (h *Handler) handleBool(name string) directive.HandlerFunc {
	return func(args string) bool {
		_, ex, err := h.current()
		if err != nil || ex.cfgStore == nil {
			return false
		}
		return ex.cfgStore.SetBool(name) == nil
	}
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

// PrepareBinary runs the Finaliser's step 2 (spec §4.8) for every kernel
// still missing its register counts: classic configs derive userSGPRsNum
// from the use{Args,Setup,Enqueue,Generic} toggles, same as AMDCL2's classic
// shape, since AMDv1 kernels carry the same four hidden-argument flags. A
// config-mode kernel additionally gets its header/metadata/CAL-note content
// synthesized here, deferred as kernelExtra state since the front-end's
// content map is not installed (SetContent) until after PrepareBinary runs.
func (h *Handler) PrepareBinary(sink *diag.Sink) bool {
	// Save the current kernel's final encoder allocation into its AllocRegs.
	h.Kernels.GoToSection(h.Sections.Current())
	good := true
	for id, k := range h.Kernels.All() {
		if k.Cfg == nil || k.Cfg.Classic == nil {
			continue
		}
		cf := k.Cfg.Classic
		if !k.Cfg.UsedSGPRsNum.IsSet() || !k.Cfg.UsedVGPRsNum.IsSet() {
			userSGPRs := finalize.ClassicUserSGPRsNum(cf.UseArgs, cf.UseSetup, cf.UseEnqueue, cf.UseGeneric)
			counts := finalize.ComputeRegisterCounts(h.Arch, k, userSGPRs, cf.DimMask.GetOr(0),
				cf.TgSize, cf.ScratchBufferSize.IsSet(), h.Policy, 0)
			if !k.Cfg.UsedSGPRsNum.IsSet() {
				k.Cfg.UsedSGPRsNum = kconfig.Set(counts.UsedSGPRsNum)
			}
			if !k.Cfg.UsedVGPRsNum.IsSet() {
				k.Cfg.UsedVGPRsNum = kconfig.Set(counts.UsedVGPRsNum)
			}
		}
		if ex := h.extra[kernel.Id(id)]; ex != nil && ex.mode == modeConfig {
			h.synthesizeConfigContent(kernel.Id(id), k, ex)
		}
	}
	return good
}

// synthesizeConfigContent implements spec §4.6.1's config-mode synthesis: a
// per-kernel AMDv1-HEADER/AMDv1-METADATA/AMDv1-CALNOTE section triple, the
// text-metadata block, and a PROGINFO CAL note built from the kernel's
// register counts and config fields. Sections are created with owner =
// k.CodeSection so emitGlobalScope's per-kernel inner-ELF scope picks them up
// (spec §4.9 "AMDv1 nests inner ELFs").
func (h *Handler) synthesizeConfigContent(id kernel.Id, k *kernel.Kernel, ex *kernelExtra) {
	owner := int(k.CodeSection)
	if !ex.hasMetadataSec {
		if s, err := h.Sections.New(owner, section.KindAMDv1Metadata, k.Name+".metadata"); err == nil {
			ex.metadataSec, ex.hasMetadataSec = s.Id, true
			k.SetSection(kernel.SlotMetadata, s.Id)
		}
	}
	if !ex.hasHeaderSec {
		if s, err := h.Sections.New(owner, section.KindAMDv1Header, k.Name+".header"); err == nil {
			ex.headerSec, ex.hasHeaderSec = s.Id, true
			k.SetSection(kernel.SlotConfig, s.Id)
		}
	}
	if !ex.hasCalNoteSec {
		if s, err := h.Sections.New(owner, section.KindAMDv1CalNote, k.Name+".calnote"); err == nil {
			ex.calNoteSec, ex.hasCalNoteSec = s.Id, true
		}
	}

	uid := metadata.FirstFreeUniqueID(h.metadataText)
	text := metadata.AMDv1TextMetadata(k.Name, h.Arch.String(), uid, k.Cfg.Args)
	h.metadataText += text
	ex.text = text

	entries := h.buildProgInfo(k)
	buf := metadata.MarshalProgInfo(entries)
	ex.notes[CalProgInfo] = &buf
}

// progInfo key constants, matching the real AMD binary generator's PROGINFO
// entry addresses (userdata block, register counts, floatMode/ieeeMode,
// scratch, pgmRSRC2, required work-group size).
const (
	progInfoUserDataCount = 0x80001000
	progInfoUserDataBase  = 0x80001001
	progInfoUsedVGPRs     = 0x80001041
	progInfoUsedSGPRs     = 0x80001042
	progInfoMaxSGPRs      = 0x80001863
	progInfoMaxVGPRs      = 0x80001864
	progInfoFloatMode     = 0x80001043
	progInfoIeeeMode      = 0x80001044
	progInfoScratchWords  = 0x80001045
	progInfoPgmRSRC2      = 0x00002e13
	progInfoReqdWGSizeX   = 0x8000001c
	progInfoReqdWGSizeY   = 0x8000001d
	progInfoReqdWGSizeZ   = 0x8000001e
)

// buildProgInfo renders a config-mode kernel's PROGINFO entries (spec §4.7
// "PROGINFO (32+ (18+user-data-count)×8 bytes): user-data specs, usedVGPR,
// usedSGPR, max-SGPR, max-VGPR, floatMode, ieeeMode, scratch, pgmRSRC2,
// reqdWorkGroupSize ...").
func (h *Handler) buildProgInfo(k *kernel.Kernel) []metadata.ProgInfoEntry {
	cf := k.Cfg.Classic
	var entries []metadata.ProgInfoEntry
	entries = append(entries, metadata.ProgInfoEntry{Key: progInfoUserDataCount, Value: uint32(len(cf.UserDatas))})
	for i, ud := range cf.UserDatas {
		base := uint32(progInfoUserDataBase) + uint32(i)*4
		entries = append(entries,
			metadata.ProgInfoEntry{Key: base, Value: ud.Class},
			metadata.ProgInfoEntry{Key: base + 1, Value: ud.APISlot},
			metadata.ProgInfoEntry{Key: base + 2, Value: ud.RegStart},
			metadata.ProgInfoEntry{Key: base + 3, Value: ud.RegSize},
		)
	}
	var ieeeMode uint32
	if cf.IeeeMode {
		ieeeMode = 1
	}
	maxSGPR := archtables.MaxRegistersNum(h.Arch, archtables.RegSGPR, 0)
	maxVGPR := archtables.MaxRegistersNum(h.Arch, archtables.RegVGPR, 0)
	entries = append(entries,
		metadata.ProgInfoEntry{Key: progInfoUsedVGPRs, Value: k.Cfg.UsedVGPRsNum.Get()},
		metadata.ProgInfoEntry{Key: progInfoUsedSGPRs, Value: k.Cfg.UsedSGPRsNum.Get()},
		metadata.ProgInfoEntry{Key: progInfoMaxSGPRs, Value: maxSGPR},
		metadata.ProgInfoEntry{Key: progInfoMaxVGPRs, Value: maxVGPR},
		metadata.ProgInfoEntry{Key: progInfoFloatMode, Value: cf.FloatMode.GetOr(0)},
		metadata.ProgInfoEntry{Key: progInfoIeeeMode, Value: ieeeMode},
		metadata.ProgInfoEntry{Key: progInfoScratchWords, Value: (cf.ScratchBufferSize.GetOr(0) + 3) >> 2},
		metadata.ProgInfoEntry{Key: progInfoPgmRSRC2, Value: cf.PgmRSRC2.GetOr(0)},
	)
	wg := k.Cfg.ReqdWorkGroupSize
	if wg[0] == 0 || wg[1] == 0 || wg[2] == 0 {
		wg = [3]uint32{256, 0, 0}
	}
	entries = append(entries,
		metadata.ProgInfoEntry{Key: progInfoReqdWGSizeX, Value: wg[0]},
		metadata.ProgInfoEntry{Key: progInfoReqdWGSizeY, Value: wg[1]},
		metadata.ProgInfoEntry{Key: progInfoReqdWGSizeZ, Value: wg[2]},
	)
	return entries
}

// classicHeaderBytes renders the fixed 24-byte AMDv1-HEADER record: the
// classic config scalars a loader needs before the CAL notes (spec §4.6.1
// "handler synthesises header, metadata text, and all CAL notes").
func classicHeaderBytes(cf *kconfig.ClassicFields, counts finalize.RegisterCounts) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:], counts.UsedSGPRsNum)
	binary.LittleEndian.PutUint32(buf[4:], counts.UsedVGPRsNum)
	binary.LittleEndian.PutUint32(buf[8:], cf.PgmRSRC2.GetOr(0))
	binary.LittleEndian.PutUint32(buf[12:], cf.LocalSize.GetOr(0))
	binary.LittleEndian.PutUint32(buf[16:], cf.ScratchBufferSize.GetOr(0))
	binary.LittleEndian.PutUint32(buf[20:], cf.Exceptions.GetOr(0))
	return buf
}

func (h *Handler) WriteBinary() ([]byte, error) {
	for id, k := range h.Kernels.All() {
		ex := h.extra[kernel.Id(id)]
		if ex == nil {
			continue
		}
		if ex.hasMetadataSec {
			h.Content[ex.metadataSec] = append(h.Content[ex.metadataSec], []byte(ex.text)...)
		}
		if ex.hasHeaderSec && k.Cfg != nil && k.Cfg.Classic != nil {
			counts := finalize.RegisterCounts{UsedSGPRsNum: k.Cfg.UsedSGPRsNum.Get(), UsedVGPRsNum: k.Cfg.UsedVGPRsNum.Get()}
			h.Content[ex.headerSec] = append(h.Content[ex.headerSec], classicHeaderBytes(k.Cfg.Classic, counts)...)
		}
		if ex.hasCalNoteSec {
			var blob []byte
			for _, n := range h.CalNotesInOrder(kernel.Id(id)) {
				blob = append(blob, metadata.MarshalCalNote(metadata.CalNote{Name: n.Name, Data: n.Data})...)
			}
			h.Content[ex.calNoteSec] = append(h.Content[ex.calNoteSec], blob...)
		}
	}
	return binemit.EmitAMDv1(h.Sections, h.Kernels, h.Content), nil
}

// ResolveSymbol looks a name up in the front-end's symbol table (spec §4.6's
// DialectHandler.resolveSymbol), used by the finaliser's relocation pass.
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

// ResolveRelocation evaluates expr and reports its value and owning section,
// masking per lo()/hi() the way AMDCL2/Gallium/ROCm relocation directives do
// (spec §4.6's DialectHandler.resolveRelocation); AMDv1 itself has no
// relocatable inner sections, but a future explicit-mode directive referring
// to a label still needs this to resolve correctly.
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

func (h *Handler) CalNotesInOrder(id kernel.Id) []struct {
	Type CalNoteType
	Name string
	Data []byte
} {
	ex := h.extra[id]
	var out []struct {
		Type CalNoteType
		Name string
		Data []byte
	}
	for _, t := range calNoteOrder {
		if buf, ok := ex.notes[t]; ok {
			out = append(out, struct {
				Type CalNoteType
				Name string
				Data []byte
			}{t, calNoteNames[t], *buf})
		}
	}
	return out
}
