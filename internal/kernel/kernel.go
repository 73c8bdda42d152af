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
// Package kernel implements the Kernel data model (spec §3.2) and the
// KernelState lifecycle component (spec §4.5, C5): per-kernel mutable state
// plus the addKernel/register-snapshot save-restore protocol shared by all
// four dialect handlers.
package kernel

import (
	"fmt"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/isaenc"
	"github.com/clrxng/clrxasm/internal/kconfig"
	"github.com/clrxng/clrxasm/internal/section"
)

// Id is a dense, non-negative KernelId.
type Id int

// Kernel is one entry of KernelState (spec §3.2).
type Kernel struct {
	Name string

	CodeSection section.Id

	Config      section.Id
	Metadata    section.Id
	IsaMetadata section.Id
	Setup       section.Id
	Stub        section.Id
	SamplerInit section.Id
	CtrlDir     section.Id
	hasConfig, hasMetadata, hasIsaMetadata, hasSetup, hasStub, hasSamplerInit, hasCtrlDir bool

	ArgNames map[string]bool

	AllocRegs     [2]uint32 // [0]=SGPR high-water mark, [1]=VGPR high-water mark
	AllocRegFlags isaenc.RegFlags

	UseHsaConfig bool
	IsFKernel    bool // ROCm only

	Cfg *kconfig.Config
}

// sectionIdSlot names one of a Kernel's optional owned section ids, for the
// generic has/set accessor pair below.
type sectionIdSlot int

const (
	SlotConfig sectionIdSlot = iota
	SlotMetadata
	SlotIsaMetadata
	SlotSetup
	SlotStub
	SlotSamplerInit
	SlotCtrlDir
)

// SetSection assigns one of the kernel's optional section ids (spec §3.2
// "Optional section ids"). Each may be set at most once per kernel.
func (k *Kernel) SetSection(slot sectionIdSlot, id section.Id) error {
	switch slot {
	case SlotConfig:
		if k.hasConfig {
			return fmt.Errorf("kernel %q already has a config section", k.Name)
		}
		k.Config, k.hasConfig = id, true
	case SlotMetadata:
		if k.hasMetadata {
			return fmt.Errorf("kernel %q already has a metadata section", k.Name)
		}
		k.Metadata, k.hasMetadata = id, true
	case SlotIsaMetadata:
		if k.hasIsaMetadata {
			return fmt.Errorf("kernel %q already has an isaMetadata section", k.Name)
		}
		k.IsaMetadata, k.hasIsaMetadata = id, true
	case SlotSetup:
		if k.hasSetup {
			return fmt.Errorf("kernel %q already has a setup section", k.Name)
		}
		k.Setup, k.hasSetup = id, true
	case SlotStub:
		if k.hasStub {
			return fmt.Errorf("kernel %q already has a stub section", k.Name)
		}
		k.Stub, k.hasStub = id, true
	case SlotSamplerInit:
		if k.hasSamplerInit {
			return fmt.Errorf("kernel %q already has a samplerInit section", k.Name)
		}
		k.SamplerInit, k.hasSamplerInit = id, true
	case SlotCtrlDir:
		if k.hasCtrlDir {
			return fmt.Errorf("kernel %q already has a ctrlDir section", k.Name)
		}
		k.CtrlDir, k.hasCtrlDir = id, true
	default:
		return fmt.Errorf("unknown section slot %d", slot)
	}
	return nil
}

// HasSection reports whether slot has been assigned, and its section id.
func (k *Kernel) HasSection(slot sectionIdSlot) (section.Id, bool) {
	switch slot {
	case SlotConfig:
		return k.Config, k.hasConfig
	case SlotMetadata:
		return k.Metadata, k.hasMetadata
	case SlotIsaMetadata:
		return k.IsaMetadata, k.hasIsaMetadata
	case SlotSetup:
		return k.Setup, k.hasSetup
	case SlotStub:
		return k.Stub, k.hasStub
	case SlotSamplerInit:
		return k.SamplerInit, k.hasSamplerInit
	case SlotCtrlDir:
		return k.CtrlDir, k.hasCtrlDir
	default:
		return 0, false
	}
}

// DeclareArg records name in the kernel's duplicate-detection set (spec
// §3.2 "argNames"), returning false if name was already declared.
func (k *Kernel) DeclareArg(name string) bool {
	if k.ArgNames == nil {
		k.ArgNames = make(map[string]bool)
	}
	if k.ArgNames[name] {
		return false
	}
	k.ArgNames[name] = true
	return true
}

// State is the KernelState component (C5): the array of kernels plus the
// current-kernel pointer and the section registry it must keep in lockstep
// for the register save/restore protocol (spec §4.4/§4.5).
type State struct {
	kernels []*Kernel
	current Id

	Sections *section.Registry
	Arch     archtables.GPUArchitecture
	Encoder  *isaenc.TrackingEncoder

	// newKernelCodeSection builds the code section for a fresh kernel; its
	// kind and owner scope are dialect-specific (spec §4.5 bullet i), so the
	// dialect handler supplies it rather than KernelState hardcoding one
	// shape.
	newKernelCodeSection func(name string, reg *section.Registry) (*section.Section, error)
}

// NewState constructs a KernelState bound to a section registry, an
// architecture (for config validation), an encoder (for register snapshots),
// and the dialect-specific code-section constructor.
func NewState(reg *section.Registry, arch archtables.GPUArchitecture, enc *isaenc.TrackingEncoder,
	newCodeSection func(name string, reg *section.Registry) (*section.Section, error)) *State {
	return &State{
		current:              -1,
		Sections:             reg,
		Arch:                 arch,
		Encoder:              enc,
		newKernelCodeSection: newCodeSection,
	}
}

// Current returns the current kernel id, or -1 if none exists yet.
func (s *State) Current() Id { return s.current }

// Get returns the kernel for id.
func (s *State) Get(id Id) *Kernel { return s.kernels[id] }

// All returns every kernel in creation order.
func (s *State) All() []*Kernel { return s.kernels }

// ByName looks up a kernel id by name.
func (s *State) ByName(name string) (Id, bool) {
	for i, k := range s.kernels {
		if k.Name == name {
			return Id(i), true
		}
	}
	return -1, false
}

// snapshotOutgoing reads the current allocation from the encoder and stores
// it into the outgoing kernel's state (spec §4.4's register-tracking
// protocol, shared by both addKernel and switchKernel/goTo).
func (s *State) snapshotOutgoing() {
	if s.current < 0 {
		return
	}
	out := s.kernels[s.current]
	alloc := s.Encoder.GetAllocatedRegisters()
	out.AllocRegs = [2]uint32{alloc.SGPRs, alloc.VGPRs}
	out.AllocRegFlags = alloc.Flags
}

// AddKernel creates a new kernel (spec §4.5's addKernel): allocates its code
// section, initialises its state, snapshots the outgoing kernel's register
// allocation, installs the new kernel as current, and resets the encoder's
// allocation snapshot to zero for the fresh kernel.
func (s *State) AddKernel(name string) (Id, error) {
	if _, exists := s.ByName(name); exists {
		return -1, fmt.Errorf("kernel %q already defined", name)
	}
	codeSect, err := s.newKernelCodeSection(name, s.Sections)
	if err != nil {
		return -1, err
	}

	s.snapshotOutgoing()

	k := &Kernel{
		Name:        name,
		CodeSection: codeSect.Id,
		ArgNames:    make(map[string]bool),
	}
	id := Id(len(s.kernels))
	s.kernels = append(s.kernels, k)

	s.current = id
	s.Sections.GoTo(codeSect.Id)
	s.Encoder.SetAllocatedRegisters(isaenc.Allocation{})
	return id, nil
}

// SwitchKernel installs id as current, applying the same register
// save/restore protocol as AddKernel: the outgoing kernel's allocation is
// snapshotted, and the incoming kernel's previously saved allocation is
// installed into the encoder (spec §4.5 "Switching between kernels obeys the
// save/restore protocol of §4.4").
func (s *State) SwitchKernel(id Id) error {
	if int(id) < 0 || int(id) >= len(s.kernels) {
		return fmt.Errorf("invalid kernel id %d", id)
	}
	if id == s.current {
		return nil
	}
	s.snapshotOutgoing()
	s.current = id
	in := s.kernels[id]
	s.Sections.GoTo(in.CodeSection)
	s.Encoder.SetAllocatedRegisters(isaenc.Allocation{
		SGPRs: in.AllocRegs[0],
		VGPRs: in.AllocRegs[1],
		Flags: in.AllocRegFlags,
	})
	return nil
}

// GoToSection updates the current section without switching kernels,
// applying the same outgoing-snapshot half of the protocol (spec §4.4
// "On any goTo ... that moves into or out of a kernel's code section").
func (s *State) GoToSection(id section.Id) {
	s.snapshotOutgoing()
	s.Sections.GoTo(id)
	if s.current >= 0 {
		// Re-seating the same kernel's just-saved allocation keeps the
		// encoder's view equal to the kernel's snapshot whichever section
		// is now current.
		cur := s.kernels[s.current]
		s.Encoder.SetAllocatedRegisters(isaenc.Allocation{
			SGPRs: cur.AllocRegs[0],
			VGPRs: cur.AllocRegs[1],
			Flags: cur.AllocRegFlags,
		})
	}
}
