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

// Package asmcfg holds BuildOptions, the single validated configuration
// struct threaded explicitly through the toolchain from the CLI layer down
// to the dialect handlers and finaliser, rather than a global singleton
// (spec §4.10).
package asmcfg

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/clrxng/clrxasm/internal/archtables"
	"github.com/clrxng/clrxasm/internal/finalize"
)

// BuildOptions is the fully-resolved configuration for one assembly run.
type BuildOptions struct {
	Output string

	GPUDevice archtables.GPUDeviceType
	Is64Bit   bool
	TargetOS  string

	BinaryFormat string // amd, amdcl2, gallium, rocm

	DriverVersionSet bool
	DriverVersion    int

	LLVMVersionSet bool
	LLVMVersion    int

	Policy finalize.PolicyVersion

	Defines      map[string]string
	IncludePaths []string

	Force   bool
	Verbose bool
}

var knownFormats = map[string]bool{
	"amd":     true,
	"amdcl2":  true,
	"gallium": true,
	"rocm":    true,
}

// New resolves raw CLI strings into a validated BuildOptions (spec §4.10
// "validated once, then threaded explicitly").
func New(output, gpuType, binaryFormat, targetOS string, driverVersion, llvmVersion string,
	is64Bit, force, verbose bool, defines []string, includePaths []string) (BuildOptions, error) {

	opts := BuildOptions{
		Output:       output,
		Is64Bit:      is64Bit,
		TargetOS:     targetOS,
		BinaryFormat: strings.ToLower(binaryFormat),
		IncludePaths: lo.Uniq(includePaths),
		Force:        force,
		Verbose:      verbose,
		Defines:      map[string]string{},
	}

	device, ok := archtables.DeviceFromName(gpuType)
	if !ok {
		return BuildOptions{}, fmt.Errorf("unknown gpu type %q", gpuType)
	}
	opts.GPUDevice = device

	if !knownFormats[opts.BinaryFormat] {
		return BuildOptions{}, fmt.Errorf("unknown binary format %q", binaryFormat)
	}

	if driverVersion != "" {
		v, err := parseVersionTriple(driverVersion)
		if err != nil {
			return BuildOptions{}, fmt.Errorf("invalid driver version %q: %w", driverVersion, err)
		}
		opts.DriverVersionSet = true
		opts.DriverVersion = v / 100
	}
	if llvmVersion != "" {
		v, err := parseVersionTriple(llvmVersion)
		if err != nil {
			return BuildOptions{}, fmt.Errorf("invalid llvm version %q: %w", llvmVersion, err)
		}
		opts.LLVMVersionSet = true
		opts.LLVMVersion = v / 100
	}

	for _, d := range defines {
		name, value, _ := strings.Cut(d, "=")
		opts.Defines[name] = value
	}

	return opts, nil
}

// parseVersionTriple accepts "major.minor.patch" or "major.minor" and
// returns the packed major*10000+minor*100+patch form. New divides it by 100
// into the major*100+minor form the dialects compare against (e.g. 1912.05
// becomes 191205).
func parseVersionTriple(s string) (int, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("expected major.minor[.patch]")
	}
	var nums [3]int
	for i, p := range parts {
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil {
			return 0, fmt.Errorf("non-numeric version component %q", p)
		}
		nums[i] = n
	}
	return nums[0]*10000 + nums[1]*100 + nums[2], nil
}

// Arch returns the GPU architecture family for the resolved device.
func (o BuildOptions) Arch() archtables.GPUArchitecture {
	return archtables.ArchOf(o.GPUDevice)
}
