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
// Package clrxlog wires the toolchain's ambient logging through glog, the way
// google-kati wires its build-tool trace logging: levelled, flag-driven, and
// silent by default unless -v is raised.
package clrxlog

import (
	"github.com/golang/glog"
)

// Verbose gates the toolchain's own chatter (phase tracing, cache hits/misses)
// independent of glog's -v=N flag, mirroring the teacher's package-level
// `verbose bool` switched on by the CLI's -v/--verbose flag.
var Verbose bool

// Phase logs entry into a prepareBinary phase (section mapping, register
// back-fill, HSA packing, ...). Only emitted when Verbose is set.
func Phase(name string, args ...any) {
	if !Verbose {
		return
	}
	if len(args) == 0 {
		glog.Infof("phase: %s", name)
		return
	}
	glog.Infof("phase: %s %v", name, args)
}

// Cache logs a driver/LLVM version cache hit or miss.
func Cache(format string, args ...any) {
	if !Verbose {
		return
	}
	glog.Infof("cache: "+format, args...)
}

// Warning forwards a non-fatal toolchain-internal warning (not a user-facing
// assembler diagnostic — those go through internal/diag).
func Warning(format string, args ...any) {
	glog.Warningf(format, args...)
}

// Flush flushes any buffered glog output; call before process exit.
func Flush() {
	glog.Flush()
}
