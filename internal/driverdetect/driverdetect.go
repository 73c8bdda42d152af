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
// Package driverdetect implements the DriverDetection collaborator (spec
// §6.1, §6.4): probing the installed AMD OpenCL runtime / Mesa driver / LLVM
// compiler version, with a process-wide mutex-guarded cache keyed by
// (path, mtime) so repeated assembler invocations in one process don't
// re-read the shared library every time (spec §5 "Shared resources").
package driverdetect

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/clrxng/clrxasm/internal/clrxlog"
)

// cacheEntry is what's persisted to <home>/.clrxamdocltstamp/<escaped-path>:
// "<timestamp> <driverVersion>".
type cacheEntry struct {
	mtime   int64
	version uint32
}

var (
	mu    sync.Mutex
	cache = map[string]cacheEntry{}
)

// candidatePaths lists the platform-dependent standard locations the real
// runtime loader searches for the AMD OpenCL ICD / Mesa libraries (spec
// §6.4). Kept as a var (not const) so tests can override it.
var candidatePaths = []string{
	"/opt/amdgpu-pro/lib/x86_64-linux-gnu/libamdocl64.so",
	"/usr/lib/x86_64-linux-gnu/libamdocl64.so",
	"/usr/lib64/libamdocl64.so",
	"/usr/lib/x86_64-linux-gnu/libMesaOpenCL.so",
	"/usr/lib64/libMesaOpenCL.so",
}

// Reset clears the in-process cache; used by tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cache = map[string]cacheEntry{}
}

func cacheFilePath(libPath string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	escaped := strings.ReplaceAll(libPath, string(filepath.Separator), "_")
	return filepath.Join(home, ".clrxamdocltstamp", escaped)
}

func readCacheFile(libPath string) (cacheEntry, bool) {
	b, err := os.ReadFile(cacheFilePath(libPath))
	if err != nil {
		return cacheEntry{}, false
	}
	fields := strings.Fields(string(b))
	if len(fields) != 2 {
		return cacheEntry{}, false
	}
	mtime, err1 := strconv.ParseInt(fields[0], 10, 64)
	ver, err2 := strconv.ParseUint(fields[1], 10, 32)
	if err1 != nil || err2 != nil {
		return cacheEntry{}, false
	}
	return cacheEntry{mtime: mtime, version: uint32(ver)}, true
}

func writeCacheFile(libPath string, e cacheEntry) {
	dir := filepath.Dir(cacheFilePath(libPath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	tmp := cacheFilePath(libPath) + ".tmp"
	content := fmt.Sprintf("%d %d", e.mtime, e.version)
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return
	}
	// Atomic replace so a concurrent reader never observes a half-written file.
	_ = os.Rename(tmp, cacheFilePath(libPath))
}

// probeVersion checks that libPath exists and then always returns an error:
// reading the version out of the library (the ELF .dynstr / the loader's
// version query) is out of this repo's scope (spec §1), so only versions
// already present in the cache are ever reported. Call sites should prefer a
// user-supplied --driver-version.
func probeVersion(libPath string) (uint32, error) {
	if _, err := os.Stat(libPath); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("cannot determine driver version from %q without external metadata", libPath)
}

// DetectAmdDriverVersion returns major*100+minor for the first AMD OpenCL ICD
// found among candidatePaths, consulting and refreshing the process-wide
// cache. Returns ok=false when no runtime library could be found or probed,
// in which case the caller (spec §4.8.7) should fall back to the
// conservative default used across the dialect handlers.
func DetectAmdDriverVersion() (uint32, bool) {
	return detectFromCandidates(candidatePaths)
}

// DetectMesaDriverVersion mirrors DetectAmdDriverVersion for the Mesa3D
// GalliumCompute runtime.
func DetectMesaDriverVersion() (uint32, bool) {
	return detectFromCandidates([]string{
		"/usr/lib/x86_64-linux-gnu/libMesaOpenCL.so",
		"/usr/lib64/libMesaOpenCL.so",
	})
}

// DetectLLVMCompilerVersion probes an installed LLVM's reported version
// (major*100+minor), used for Gallium's LLVM<4.0 vs >=4.0 path selection.
func DetectLLVMCompilerVersion() (uint32, bool) {
	return detectFromCandidates([]string{
		"/usr/lib/llvm/lib/libLLVM.so",
		"/usr/lib/x86_64-linux-gnu/libLLVM.so",
	})
}

func detectFromCandidates(paths []string) (uint32, bool) {
	for _, p := range paths {
		if v, ok := detectOne(p); ok {
			return v, true
		}
	}
	return 0, false
}

func detectOne(libPath string) (uint32, bool) {
	info, err := os.Stat(libPath)
	if err != nil {
		return 0, false
	}
	mtime := info.ModTime().Unix()

	mu.Lock()
	if e, ok := cache[libPath]; ok && e.mtime == mtime {
		mu.Unlock()
		clrxlog.Cache("hit (in-process) %s", libPath)
		return e.version, true
	}
	mu.Unlock()

	if e, ok := readCacheFile(libPath); ok && e.mtime == mtime {
		mu.Lock()
		cache[libPath] = e
		mu.Unlock()
		clrxlog.Cache("hit (on-disk) %s", libPath)
		return e.version, true
	}

	clrxlog.Cache("miss, probing %s", libPath)
	v, err := probeVersion(libPath)
	if err != nil {
		return 0, false
	}
	e := cacheEntry{mtime: mtime, version: v}
	mu.Lock()
	cache[libPath] = e
	mu.Unlock()
	writeCacheFile(libPath, e)
	return v, true
}
