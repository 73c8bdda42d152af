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
package clrxlog

import "testing"

// These only exercise the Verbose gating; glog's own output plumbing is not
// ours to re-test.
func TestPhaseAndCache_SilentWhenNotVerbose(t *testing.T) {
	old := Verbose
	defer func() { Verbose = old }()

	Verbose = false
	Phase("section-mapping")
	Phase("hsa-packing", 1, 2)
	Cache("driver version %d", 12345)
}

func TestPhaseAndCache_EmitWhenVerbose(t *testing.T) {
	old := Verbose
	defer func() { Verbose = old }()

	Verbose = true
	Phase("register-backfill")
	Phase("register-backfill", "kernel0")
	Cache("llvm version %d", 400)
}

func TestWarningAndFlush_DoNotPanic(t *testing.T) {
	Warning("unexpected %s", "condition")
	Flush()
}
