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
package directive

import (
	"strconv"
	"strings"

	"github.com/clrxng/clrxasm/internal/asmfront"
	"github.com/clrxng/clrxasm/internal/diag"
)

// bitMask returns the mask for an n-bit unsigned quantity.
func bitMask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bits)) - 1
}

// AbsoluteValue evaluates text as an absolute integer, range-checked against
// bits (one of {2,7,8,16,32,64} per spec §4.2), warning (not erroring) on
// truncation the way the real assembler treats an oversized directive
// argument as a lossy-but-recoverable mistake.
func AbsoluteValue(ev *asmfront.Evaluator, sink *diag.Sink, pos diag.Pos, text string, bits int) (uint64, bool) {
	v, err := ev.GetAbsoluteValueArg(text)
	if err != nil {
		sink.Errorf(pos, "%s", err)
		return 0, false
	}
	mask := bitMask(bits)
	uv := uint64(v)
	if uv&^mask != 0 && v >= 0 {
		sink.Warningf(pos, "value 0x%x truncated to %d bits", uv, bits)
	} else if v < 0 {
		// sign-extended negative value: truncation warning only if it doesn't
		// round-trip through the requested width.
		if bits < 64 && v < -(int64(1)<<uint(bits-1)) {
			sink.Warningf(pos, "value %d truncated to %d bits", v, bits)
		}
	}
	return uv & mask, true
}

// StringArg decodes a C-style double-quoted string literal (\n \t \\ \" \xNN
// escapes), per spec §4.2's `string(line)`.
func StringArg(sink *diag.Sink, pos diag.Pos, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] != '"' || text[len(text)-1] != '"' {
		sink.Errorf(pos, "expected a quoted string, got %q", text)
		return "", false
	}
	inner := text[1 : len(text)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c != '\\' || i+1 >= len(inner) {
			b.WriteByte(c)
			continue
		}
		i++
		switch inner[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case 'x':
			if i+2 < len(inner) {
				v, err := strconv.ParseUint(inner[i+1:i+3], 16, 8)
				if err == nil {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
			sink.Errorf(pos, "invalid \\x escape in string")
		default:
			b.WriteByte(inner[i])
		}
	}
	return b.String(), true
}

// NameArg parses an identifier no longer than maxLen, per §4.2's `name(line, maxLen)`.
func NameArg(sink *diag.Sink, pos diag.Pos, text string, maxLen int) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		sink.Errorf(pos, "expected an identifier")
		return "", false
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9')
		if !ok {
			sink.Errorf(pos, "invalid character %q in identifier %q", string(c), text)
			return "", false
		}
	}
	if maxLen > 0 && len(text) > maxLen {
		sink.Errorf(pos, "identifier %q exceeds maximum length %d", text, maxLen)
		return "", false
	}
	return text, true
}

// EnumEntry is one (keyword, value) pair of an Enumeration table.
type EnumEntry struct {
	Keyword string
	Value   int
}

// Enumeration selects a value from a sorted (keyword, value) table, per
// §4.2's `enumeration(line, table)`.
func Enumeration(sink *diag.Sink, pos diag.Pos, text string, table []EnumEntry) (int, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, e := range table {
		if e.Keyword == text {
			return e.Value, true
		}
	}
	kws := make([]string, len(table))
	for i, e := range table {
		kws[i] = e.Keyword
	}
	sink.Errorf(pos, "unknown keyword %q; expected one of: %s", text, strings.Join(kws, ", "))
	return 0, false
}

// Dimensions parses any subset of "xyz" into a bitmask {x=1, y=2, z=4}, per
// §4.2's `dimensions(line)`.
func Dimensions(sink *diag.Sink, pos diag.Pos, text string) (uint32, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	var mask uint32
	for _, c := range text {
		switch c {
		case 'x':
			mask |= 1
		case 'y':
			mask |= 2
		case 'z':
			mask |= 4
		default:
			sink.Errorf(pos, "invalid dimension character %q (expected subset of xyz)", string(c))
			return 0, false
		}
	}
	if mask == 0 {
		sink.Errorf(pos, "at least one dimension required")
		return 0, false
	}
	return mask, true
}

// CWS parses a comma-separated 3-tuple of u32 with defaults 1, rejecting any
// zero component, per §4.2's `cws(line)`.
func CWS(sink *diag.Sink, pos diag.Pos, text string) ([3]uint32, bool) {
	out := [3]uint32{1, 1, 1}
	text = strings.TrimSpace(text)
	if text == "" {
		return out, true
	}
	parts := strings.Split(text, ",")
	if len(parts) > 3 {
		sink.Errorf(pos, "cws takes at most 3 values")
		return out, false
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 0, 32)
		if err != nil {
			sink.Errorf(pos, "invalid cws value %q: %s", p, err)
			return out, false
		}
		if v == 0 {
			sink.Errorf(pos, "cws value must not be zero")
			return out, false
		}
		out[i] = uint32(v)
	}
	return out, true
}

// MachineQuad parses "(kind, major, minor, stepping)" as four comma-separated
// 16-bit unsigned values, per §4.2's `machineQuad(line)`.
func MachineQuad(sink *diag.Sink, pos diag.Pos, text string) ([4]uint16, bool) {
	var out [4]uint16
	parts := strings.Split(text, ",")
	if len(parts) != 4 {
		sink.Errorf(pos, "expected 4 comma-separated values (kind, major, minor, stepping)")
		return out, false
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 0, 16)
		if err != nil {
			sink.Errorf(pos, "invalid machine field %q: %s", p, err)
			return out, false
		}
		out[i] = uint16(v)
	}
	return out, true
}

// CodeVersion parses "major, minor" as a 16-bit pair, per §4.2's `codeVersion(line)`.
func CodeVersion(sink *diag.Sink, pos diag.Pos, text string) (major, minor uint16, ok bool) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		sink.Errorf(pos, "expected \"major, minor\"")
		return 0, 0, false
	}
	maj, err1 := strconv.ParseUint(strings.TrimSpace(parts[0]), 0, 16)
	min, err2 := strconv.ParseUint(strings.TrimSpace(parts[1]), 0, 16)
	if err1 != nil || err2 != nil {
		sink.Errorf(pos, "invalid code version %q", text)
		return 0, 0, false
	}
	return uint16(maj), uint16(min), true
}

// ReservedXgprs parses "(first, count)" with an architecture-bounded range
// check against maxRegs, per §4.2's `reservedXgprs(line, isVgpr)`.
func ReservedXgprs(sink *diag.Sink, pos diag.Pos, text string, maxRegs uint32) (first, count uint32, ok bool) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		sink.Errorf(pos, "expected \"first, count\"")
		return 0, 0, false
	}
	f, err1 := strconv.ParseUint(strings.TrimSpace(parts[0]), 0, 32)
	c, err2 := strconv.ParseUint(strings.TrimSpace(parts[1]), 0, 32)
	if err1 != nil || err2 != nil {
		sink.Errorf(pos, "invalid reserved register range %q", text)
		return 0, 0, false
	}
	if uint32(f)+uint32(c) > maxRegs {
		sink.Errorf(pos, "reserved register range [%d, %d) exceeds architectural maximum %d", f, f+c, maxRegs)
		return 0, 0, false
	}
	return uint32(f), uint32(c), true
}

// CommaThen consumes a leading comma from text (optional when required is
// false), returning the remainder, per §4.2's `commaThen(line)`.
func CommaThen(sink *diag.Sink, pos diag.Pos, text string, required bool) (string, bool) {
	trimmed := strings.TrimLeft(text, " \t")
	if strings.HasPrefix(trimmed, ",") {
		return strings.TrimSpace(trimmed[1:]), true
	}
	if required {
		sink.Errorf(pos, "expected ',' before %q", text)
		return text, false
	}
	return strings.TrimSpace(text), true
}

// SplitArgs splits a comma-separated argument list respecting nested parens
// (so "lo(a+b), c" splits into two fields, not three), a small helper the
// .arg-style multi-field directives of AMDCL2/Gallium/ROCm all need.
func SplitArgs(text string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(text[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(text[start:]))
	return out
}
