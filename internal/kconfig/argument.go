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
package kconfig

// Argument is the sum type of spec §3.4: every kernel argument descriptor
// variant implements it via an unexported marker method, matching the design
// note "Argument variants ... Use a tagged union with variant-local fields
// rather than a flat record with conditional field interpretation."
type Argument interface {
	argument()
	ArgName() string
}

// ScalarType is one of the scalar argument element types.
type ScalarType int

const (
	TypeI8 ScalarType = iota
	TypeI16
	TypeI32
	TypeI64
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeFloat
	TypeDouble
)

// AddressSpace is a pointer argument's address space.
type AddressSpace int

const (
	SpaceGlobal AddressSpace = iota
	SpaceLocal
	SpaceConstant
	SpacePrivate
	SpaceGeneric
	SpaceRegion
)

// AccessQual is an image (or pointer) argument's access qualifier.
type AccessQual int

const (
	AccessDefault AccessQual = iota
	AccessReadOnly
	AccessWriteOnly
	AccessReadWrite
)

// ImageDim is an image argument's dimensionality.
type ImageDim int

const (
	Image1D ImageDim = iota
	Image1DArray
	Image1DBuffer
	Image2D
	Image2DArray
	Image3D
)

// ScalarArg is a plain scalar or vectorized-scalar argument; VecSize is 0 or
// 1 for a bare scalar, else one of {2,3,4,8,16}.
type ScalarArg struct {
	Name    string
	Type    ScalarType
	VecSize int
}

func (ScalarArg) argument()          {}
func (a ScalarArg) ArgName() string  { return a.Name }

// PointerArg is a global/local/constant/private/generic/region pointer
// argument, with const/restrict/volatile/pipe qualifiers and a
// finaliser-assigned ResId (spec §3.4's disjoint resId pools).
type PointerArg struct {
	Name           string
	PointeeType    ScalarType
	PointeeIsVoid  bool
	Space          AddressSpace
	Const          bool
	Restrict       bool
	Volatile       bool
	Pipe           bool
	ConstSpaceSize Opt[uint32]
	ResId          Opt[uint32]
}

func (PointerArg) argument()          {}
func (a PointerArg) ArgName() string { return a.Name }

// ImageArg is a read/write-only or read-write image argument.
type ImageArg struct {
	Name   string
	Dim    ImageDim
	Access AccessQual
	ResId  Opt[uint32]
}

func (ImageArg) argument()          {}
func (a ImageArg) ArgName() string { return a.Name }

// SamplerArg, Counter32Arg, QueueArg, PipeArg, ClkEventArg are the remaining
// opaque-handle argument kinds of spec §3.4.
type SamplerArg struct {
	Name  string
	ResId Opt[uint32]
}

func (SamplerArg) argument()          {}
func (a SamplerArg) ArgName() string { return a.Name }

type Counter32Arg struct {
	Name  string
	ResId Opt[uint32]
}

func (Counter32Arg) argument()          {}
func (a Counter32Arg) ArgName() string { return a.Name }

type QueueArg struct{ Name string }

func (QueueArg) argument()          {}
func (a QueueArg) ArgName() string { return a.Name }

type PipeArg struct{ Name string }

func (PipeArg) argument()          {}
func (a PipeArg) ArgName() string { return a.Name }

type ClkEventArg struct{ Name string }

func (ClkEventArg) argument()          {}
func (a ClkEventArg) ArgName() string { return a.Name }

// StructureArg is a by-value struct argument of an explicit size.
type StructureArg struct {
	Name string
	Size uint32
}

func (StructureArg) argument()          {}
func (a StructureArg) ArgName() string { return a.Name }

// ScalarSize returns a scalar type's element size in bytes.
func ScalarSize(t ScalarType) uint32 {
	switch t {
	case TypeI8, TypeU8:
		return 1
	case TypeI16, TypeU16:
		return 2
	case TypeI32, TypeU32, TypeFloat:
		return 4
	case TypeI64, TypeU64, TypeDouble:
		return 8
	default:
		return 4
	}
}

// resId pool bounds, spec §3.4: "read-only images [0..127], write-only
// images [0..7], counters [0..7], UAVs [9 or 11 .. 1023], constant-buffers
// [2..159]". UAV pool start depends on whether a printf buffer UAV (id 9) has
// already been reserved, handled by the finaliser.
const (
	ResIdReadImageMax     = 127
	ResIdWriteImageMax    = 7
	ResIdCounterMax       = 7
	ResIdUAVMinNoPrintf   = 9
	ResIdUAVMinWithPrintf = 11
	ResIdUAVMax           = 1023
	ResIdConstBufMin      = 2
	ResIdConstBufMax      = 159
)
