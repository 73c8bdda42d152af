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
// Package section implements the Section data model (spec §3.1) and the
// SectionRegistry component (spec §4.4, C4): a global registry of logical
// sections with stable, monotonically increasing ids and the
// addressable/writeable/abs-addressable/unresolvable flag table every
// dialect's finaliser consults when mapping a section into its binary-input
// object (spec §4.8.1).
package section

import "fmt"

// Id is a dense, non-negative SectionId. Once returned by the registry it is
// valid for the registry's whole lifetime (spec §8.1 "Section-id stability").
type Id int

// Owner scope sentinels; a non-negative Owner names a per-kernel scope (AMDv1
// keys it by the kernel's code-section id).
const (
	OwnerGlobal = -1
	OwnerInner  = -2 // AMDCL2 inner-binary scope only
)

// Kind enumerates every section kind named in spec §3.1.
type Kind int

const (
	KindCode Kind = iota
	KindDataRodata
	KindDataRW
	KindDataBSS
	KindConfig
	KindConfigCtrlDirective
	KindAMDv1Header
	KindAMDv1Metadata
	KindAMDv1CalNote
	KindAMDCL2Metadata
	KindAMDCL2IsaMetadata
	KindAMDCL2Setup
	KindAMDCL2Stub
	KindAMDCL2SamplerInit
	KindAMDCL2Dummy
	KindAMDCL2RWData
	KindAMDCL2BSS
	KindAMDCL2ConfigCtrlDirective
	KindGalliumComment
	KindGalliumConfigCtrlDirective
	KindGalliumScratch
	KindROCmComment
	KindROCmMetadata
	KindROCmConfigCtrlDirective
	KindROCmGOT
	KindExtraProgbits
	KindExtraNote
	KindExtraNobits
	KindExtraSection
)

// Flags are the addressable/writeable/abs-addressable/unresolvable bits
// returned by sectionInfo (spec §4.4).
type Flags uint32

const (
	FlagAddressable Flags = 1 << iota
	FlagWriteable
	FlagAbsAddressable
	FlagUnresolvable
)

// Section is one entry of the registry (spec §3.1).
type Section struct {
	Id           Id
	Owner        int // OwnerGlobal, OwnerInner, or a per-kernel scope id
	Kind         Kind
	Name         string
	ElfBinSectID int
	ExtraID      int
}

// Registry is the SectionRegistry component. It only knows section mechanics
// (id allocation, name uniqueness per scope, the current-section pointer);
// which names a dialect permits in which scope, and under what driver-version
// gates, is the dialect handler's job (spec §4.4's per-dialect addSection
// bullets) — the registry just enforces "once created, this id never moves."
type Registry struct {
	sections     []*Section
	byScopeName  map[int]map[string]Id
	extraCounter map[int]int
	current      Id
}

// New returns an empty registry with no current section.
func New() *Registry {
	return &Registry{
		byScopeName:  make(map[int]map[string]Id),
		extraCounter: make(map[int]int),
		current:      -1,
	}
}

// ByName looks up a section by name within a scope.
func (r *Registry) ByName(owner int, name string) (Id, bool) {
	m, ok := r.byScopeName[owner]
	if !ok {
		return 0, false
	}
	id, ok := m[name]
	return id, ok
}

// New registers a brand-new section; the caller (a dialect handler) is
// responsible for having already checked whatever singleton/driver-version
// rule applies before calling this.
func (r *Registry) New(owner int, kind Kind, name string) (*Section, error) {
	if _, exists := r.ByName(owner, name); exists {
		return nil, fmt.Errorf("section %q already exists in this scope", name)
	}
	s := &Section{
		Id:           Id(len(r.sections)),
		Owner:        owner,
		Kind:         kind,
		Name:         name,
		ElfBinSectID: len(r.sections),
	}
	r.sections = append(r.sections, s)
	if r.byScopeName[owner] == nil {
		r.byScopeName[owner] = make(map[string]Id)
	}
	r.byScopeName[owner][name] = s.Id
	return s, nil
}

// NewExtra registers an EXTRA-* section, assigning it a dense per-scope
// counter as its ExtraID (spec §3.1 "for EXTRA-* it is a handler-assigned
// dense counter").
func (r *Registry) NewExtra(owner int, kind Kind, name string) (*Section, error) {
	s, err := r.New(owner, kind, name)
	if err != nil {
		return nil, err
	}
	s.ExtraID = r.extraCounter[owner]
	r.extraCounter[owner]++
	return s, nil
}

// Get returns the section for id. Panics on an out-of-range id: the registry
// guarantees ids it hands out stay valid, so an invalid id here is a caller
// bug, not a recoverable assembler error.
func (r *Registry) Get(id Id) *Section {
	return r.sections[id]
}

// All returns every registered section in creation order.
func (r *Registry) All() []*Section {
	return r.sections
}

// Current returns the current section id, or -1 if none has been selected yet.
func (r *Registry) Current() Id {
	return r.current
}

// GoTo updates the current-section pointer. Register-snapshot save/restore
// around this call is the KernelState lifecycle's responsibility (spec
// §4.4's "register-tracking protocol"), not the registry's: the registry has
// no notion of kernels or encoders.
func (r *Registry) GoTo(id Id) {
	r.current = id
}

// Info returns the general addressable/writeable/abs-addressable/unresolvable
// flags for a section kind, per the table in spec §4.4. Dialect-specific
// exceptions (ROCm's ABS_ADDRESSABLE-unless-resolvable data, Gallium's
// unresolvable scratch) are applied by the caller on top of this base table.
func Info(kind Kind) Flags {
	switch kind {
	case KindCode:
		return FlagAddressable | FlagWriteable
	case KindDataRodata, KindDataRW, KindAMDCL2RWData:
		return FlagAddressable | FlagWriteable | FlagUnresolvable
	case KindDataBSS, KindAMDCL2BSS:
		return FlagAddressable | FlagUnresolvable
	case KindGalliumScratch:
		return FlagUnresolvable
	case KindConfig, KindConfigCtrlDirective, KindAMDCL2Dummy,
		KindAMDCL2ConfigCtrlDirective, KindGalliumConfigCtrlDirective,
		KindROCmConfigCtrlDirective:
		return 0
	default:
		return FlagAddressable | FlagWriteable | FlagAbsAddressable
	}
}
