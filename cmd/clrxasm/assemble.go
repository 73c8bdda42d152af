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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/clrxng/clrxasm/internal/asmcfg"
	"github.com/clrxng/clrxasm/internal/asmfront"
	"github.com/clrxng/clrxasm/internal/binemit"
	"github.com/clrxng/clrxasm/internal/clrxlog"
	"github.com/clrxng/clrxasm/internal/dialect"
	"github.com/clrxng/clrxasm/internal/dialect/amdcl2"
	"github.com/clrxng/clrxasm/internal/dialect/amdv1"
	"github.com/clrxng/clrxasm/internal/dialect/gallium"
	"github.com/clrxng/clrxasm/internal/dialect/rocm"
	"github.com/clrxng/clrxasm/internal/isaenc"
	"github.com/clrxng/clrxasm/internal/kernel"
	"github.com/clrxng/clrxasm/internal/section"
)

// buildHandler constructs the KernelState and the single dialect.Handler
// opts.BinaryFormat selects (spec §4.6's strategy pattern, generalized from
// the teacher's one-ArchParser-per-host-architecture registry in arch.go to
// one Handler per container dialect). AMDCL2's code-section constructor
// needs the handler itself (its .text placement depends on .hsalayout), so
// its KernelState is wired through a forwarding closure assigned once the
// handler exists, rather than building every dialect's handler eagerly.
func buildHandler(opts asmcfg.BuildOptions, reg *section.Registry, enc *isaenc.TrackingEncoder) (dialect.Handler, *kernel.State, error) {
	switch opts.BinaryFormat {
	case "amd":
		ks := kernel.NewState(reg, opts.Arch(), enc, amdv1.NewCodeSection)
		return amdv1.New(reg, ks, opts.Arch(), opts.Policy), ks, nil

	case "amdcl2":
		var h *amdcl2.Handler
		newCodeSection := func(name string, reg *section.Registry) (*section.Section, error) {
			return amdcl2.NewCodeSectionFor(h)(name, reg)
		}
		ks := kernel.NewState(reg, opts.Arch(), enc, newCodeSection)
		driverVersion := opts.DriverVersion
		h = amdcl2.New(reg, ks, opts.Arch(), driverVersion, opts.Is64Bit, opts.Policy)
		return h, ks, nil

	case "gallium":
		newCodeSection := func(name string, reg *section.Registry) (*section.Section, error) {
			return gallium.NewCodeSectionFor(reg)
		}
		ks := kernel.NewState(reg, opts.Arch(), enc, newCodeSection)
		return gallium.New(reg, ks, opts.Arch(), opts.LLVMVersion), ks, nil

	case "rocm":
		newCodeSection := func(name string, reg *section.Registry) (*section.Section, error) {
			return rocm.NewCodeSection(reg)
		}
		ks := kernel.NewState(reg, opts.Arch(), enc, newCodeSection)
		return rocm.New(reg, ks, opts.Arch()), ks, nil
	}
	return nil, nil, fmt.Errorf("no handler registered for binary format %q", opts.BinaryFormat)
}

// adapter drives asmfront.Run, translating the generic directive-loop
// callbacks into calls against the selected dialect.Handler plus the small
// set of common directives (.kernel/.text/.data/.rodata/.bss/.incbin) that
// belong to the shared surface rather than any one dialect (spec §6.3).
type adapter struct {
	handler dialect.Handler
	kernels *kernel.State
	content binemit.Content
}

func (a *adapter) HandleLabel(front *asmfront.Front, name string) {
	sectID, off := front.CurrentSectID, int64(0)
	if sectID >= 0 {
		off = int64(len(a.content[section.Id(sectID)]))
	}
	front.Symbols.Define(name, uint64(off), sectID)
}

func (a *adapter) HandleInstruction(front *asmfront.Front, text string) {
	// Real GCN instruction encoding is out of scope (spec §1); the
	// front-end only needs to drive the format layer, not produce
	// executable code bytes.
}

func (a *adapter) HandleDirective(front *asmfront.Front, name, args string) bool {
	name = strings.TrimPrefix(name, ".")
	switch name {
	case "kernel":
		kernelName := strings.TrimSpace(args)
		id, err := a.handler.AddKernel(kernelName)
		if err != nil {
			front.PrintError("%v", err)
			return false
		}
		front.CurrentKernel = int(id)
		sectID := int(a.kernels.Get(id).CodeSection)
		front.CurrentSectID = sectID
		// The kernel's own name resolves as a symbol at its code section's
		// current end, matching where its bytes will actually start once
		// assembly continues (spec §4.8 step 4's "kernel name symbol").
		front.Symbols.Define(kernelName, uint64(len(a.content[section.Id(sectID)])), sectID)
		return true
	case "text", "data", "rodata", "bss":
		id, ok := a.handler.SectionIdByName("." + name)
		if !ok {
			newID, err := a.handler.AddSection("."+name, section.OwnerGlobal)
			if err != nil {
				front.PrintError("%v", err)
				return false
			}
			id = newID
		}
		a.handler.SwitchSection(id)
		front.CurrentSectID = int(id)
		return true
	case "incbin":
		path, offset, length := parseIncbinArgs(args)
		data, err := asmfront.ReadIncBin(path, offset, length)
		if err != nil {
			front.PrintError("%v", err)
			return false
		}
		if front.CurrentSectID < 0 {
			front.PrintError(".incbin outside any section")
			return false
		}
		sid := section.Id(front.CurrentSectID)
		a.content[sid] = append(a.content[sid], data...)
		return true
	}

	if a.handler.IsKnownDirective(name) {
		return a.handler.ParseDirective(name, args, front)
	}
	front.PrintError("unknown directive %q", "."+name)
	return false
}

func parseIncbinArgs(args string) (path string, offset, length int64) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", 0, -1
	}
	path = strings.Trim(fields[0], `"`)
	length = -1
	if len(fields) > 1 {
		fmt.Sscanf(fields[1], "%d", &offset)
	}
	if len(fields) > 2 {
		fmt.Sscanf(fields[2], "%d", &length)
	}
	return path, offset, length
}

// assembleFile runs the whole pipeline: parse, finalise, emit.
func assembleFile(path string, opts asmcfg.BuildOptions) error {
	clrxlog.Phase("parse", path)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open source file %q: %w", path, err)
	}
	defer f.Close()

	reg := section.New()
	enc := isaenc.NewTrackingEncoder()

	h, ks, err := buildHandler(opts, reg, enc)
	if err != nil {
		return err
	}

	front := asmfront.NewFront(opts.Arch().String(), opts.Is64Bit)
	a := &adapter{handler: h, kernels: ks, content: binemit.Content{}}

	scanner := bufio.NewScanner(f)
	asmfront.Run(front, path, scanner, a)

	for _, d := range front.Diag.Items() {
		fmt.Fprintln(os.Stderr, d.String())
	}

	if !front.Diag.Good() {
		return fmt.Errorf("assembly of %q failed", path)
	}

	clrxlog.Phase("prepareBinary")
	if !h.PrepareBinary(front.Diag) {
		for _, d := range front.Diag.Items() {
			fmt.Fprintln(os.Stderr, d.String())
		}
		return fmt.Errorf("prepareBinary failed for %q", path)
	}

	h.SetContent(a.content)
	out, err := h.WriteBinary()
	if err != nil {
		return fmt.Errorf("failed to emit binary: %w", err)
	}

	if err := os.WriteFile(opts.Output, out, 0644); err != nil {
		return fmt.Errorf("cannot write output file %q: %w", opts.Output, err)
	}
	clrxlog.Phase("done", opts.Output)
	return nil
}
