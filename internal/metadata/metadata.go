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
// Package metadata implements the MetadataEmitter component (spec §4.7,
// C7): AMDv1 text metadata + CAL notes, AMDCL2 setup blocks, ROCm structured
// metadata, and Gallium prog-info serialization into their dialects' binary
// input objects.
package metadata

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/clrxng/clrxasm/internal/kconfig"
)

// typeName is the typed-name table §4.7 refers to ("typed-name table (name +
// vector size) is consulted for each argument type").
func typeName(t kconfig.ScalarType) string {
	switch t {
	case kconfig.TypeI8:
		return "i8"
	case kconfig.TypeI16:
		return "i16"
	case kconfig.TypeI32:
		return "i32"
	case kconfig.TypeI64:
		return "i64"
	case kconfig.TypeU8:
		return "u8"
	case kconfig.TypeU16:
		return "u16"
	case kconfig.TypeU32:
		return "u32"
	case kconfig.TypeU64:
		return "u64"
	case kconfig.TypeFloat:
		return "float"
	case kconfig.TypeDouble:
		return "double"
	default:
		return "u32"
	}
}

// argChunkSize rounds an argument's footprint up to the AMDv1 metadata's
// 16-byte accounting chunk (spec §4.7 "Argument offsets accumulate in
// 16-byte chunks").
func argChunkSize(byteSize uint32) uint32 {
	const chunk = 16
	return ((byteSize + chunk - 1) / chunk) * chunk
}

// FirstFreeUniqueID scans existing metadata text for `;uniqueid:<n>` entries
// and returns the first unused id >= 1024 (spec §4.7 "reserves ids >= 1024
// and skips any id present in a user-supplied metadata text").
func FirstFreeUniqueID(existingText string) int {
	used := map[int]bool{}
	for _, line := range strings.Split(existingText, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, ";uniqueid:") {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(line, ";uniqueid:%d", &n); err == nil {
			used[n] = true
		}
	}
	for id := 1024; ; id++ {
		if !used[id] {
			return id
		}
	}
}

// AMDv1TextMetadata renders the semicolon-directive text block (spec §4.7
// "AMDv1 text metadata").
func AMDv1TextMetadata(kernelName, device string, uniqueID int, args []kconfig.Argument) string {
	var b strings.Builder
	fmt.Fprintf(&b, ";ARGSTART:%s\n", kernelName)
	fmt.Fprintf(&b, ";version:3:1:111\n")
	fmt.Fprintf(&b, ";device:%s\n", strings.ToLower(device))
	fmt.Fprintf(&b, ";uniqueid:%d\n", uniqueID)

	offset := uint32(0)
	for _, a := range args {
		switch v := a.(type) {
		case kconfig.ScalarArg:
			size := kconfig.ScalarSize(v.Type)
			if v.VecSize > 1 {
				size *= uint32(v.VecSize)
			}
			fmt.Fprintf(&b, ";value:%s:%s:%d:1:%d\n", v.Name, typeName(v.Type), v.VecSize, offset)
			offset += argChunkSize(size)
		case kconfig.PointerArg:
			fmt.Fprintf(&b, ";pointer:%s:%s:1:1:%d:%s:%s:1:rw\n", v.Name, typeName(v.PointeeType), offset, spaceNameAMDv1(v.Space), constName(v.Const))
			offset += argChunkSize(8)
		case kconfig.ImageArg:
			fmt.Fprintf(&b, ";image:%s:%d:%d:%d\n", v.Name, int(v.Dim), int(v.Access), offset)
			offset += argChunkSize(8)
		case kconfig.Counter32Arg:
			fmt.Fprintf(&b, ";counter:%s:32:%d\n", v.Name, offset)
			offset += argChunkSize(4)
		}
	}
	fmt.Fprintf(&b, ";memory:%d:hw\n", offset)
	fmt.Fprintf(&b, ";ARGEND:%s\n", kernelName)
	return b.String()
}

func spaceNameAMDv1(s kconfig.AddressSpace) string {
	switch s {
	case kconfig.SpaceLocal:
		return "hl"
	case kconfig.SpaceConstant:
		return "hc"
	default:
		return "uav"
	}
}

func constName(c bool) string {
	if c {
		return "c"
	}
	return "rw"
}

// CalNote is a single fixed-format CAL note, framed per spec §8.1's "Every
// CAL note is 8 + descSize bytes; the 8-byte name is ASCII 'ATI CAL\0'".
type CalNote struct {
	Name string
	Data []byte
}

// CalNoteFrameName is the 8-byte ASCII note-name field shared by every CAL
// note.
const CalNoteFrameName = "ATI CAL\x00"

// MarshalCalNote returns a note's full on-wire bytes: 8-byte name plus the
// descriptor payload.
func MarshalCalNote(n CalNote) []byte {
	out := make([]byte, 0, 8+len(n.Data))
	out = append(out, []byte(CalNoteFrameName)...)
	out = append(out, n.Data...)
	return out
}

// ProgInfoEntry is one (index,size) pair for CONSTANTBUFFERS, or a bare
// (key,value) word pair elsewhere, per §4.7's AMDv1 PROGINFO note layout.
type ProgInfoEntry struct {
	Key, Value uint32
}

// MarshalProgInfo packs PROGINFO's fixed 18-entry-plus-user-data layout
// (spec §4.7: "32+ (18+user-data-count)x8 bytes").
func MarshalProgInfo(entries []ProgInfoEntry) []byte {
	out := make([]byte, len(entries)*8)
	for i, e := range entries {
		binary.LittleEndian.PutUint32(out[i*8:], e.Key)
		binary.LittleEndian.PutUint32(out[i*8+4:], e.Value)
	}
	return out
}

// AMDCL2Setup returns the fixed 256-byte setup block. In HSA mode it is the
// packed HSA descriptor; otherwise it is 256 zero bytes (spec §4.7
// "AMDCL2 setup").
func AMDCL2Setup(hsa *kconfig.HSADescriptor) [256]byte {
	if hsa != nil {
		return hsa.Marshal()
	}
	var out [256]byte
	return out
}

// GalliumProgInfo renders up to 5 (address,value) entries per kernel for the
// LLVM<4.0 path (spec §4.7 "Gallium prog-info").
func GalliumProgInfo(entries []ProgInfoEntry) []byte {
	return MarshalProgInfo(entries)
}
