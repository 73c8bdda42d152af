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
package driverdetect

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFromCandidates_NoneExist(t *testing.T) {
	Reset()
	if _, ok := detectFromCandidates([]string{"/no/such/library.so"}); ok {
		t.Fatal("expected ok=false when no candidate path exists")
	}
}

func TestDetectOne_MissWithoutCache(t *testing.T) {
	Reset()
	t.Setenv("HOME", t.TempDir())

	lib := filepath.Join(t.TempDir(), "lib.so")
	if err := os.WriteFile(lib, []byte("not-a-real-shared-library"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := detectOne(lib); ok {
		t.Fatal("expected a miss: probeVersion has no external metadata to rely on")
	}
}

func TestDetectOne_OnDiskCacheHit(t *testing.T) {
	Reset()
	home := t.TempDir()
	t.Setenv("HOME", home)

	lib := filepath.Join(t.TempDir(), "lib.so")
	if err := os.WriteFile(lib, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(lib)
	if err != nil {
		t.Fatal(err)
	}

	writeCacheFile(lib, cacheEntry{mtime: info.ModTime().Unix(), version: 3000})

	v, ok := detectOne(lib)
	if !ok {
		t.Fatal("expected on-disk cache to produce a hit")
	}
	if v != 3000 {
		t.Errorf("version = %d, want 3000", v)
	}
}

func TestDetectOne_InProcessCacheHit(t *testing.T) {
	Reset()
	t.Setenv("HOME", t.TempDir())

	lib := filepath.Join(t.TempDir(), "lib.so")
	if err := os.WriteFile(lib, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(lib)
	if err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	cache[lib] = cacheEntry{mtime: info.ModTime().Unix(), version: 1234}
	mu.Unlock()

	v, ok := detectOne(lib)
	if !ok || v != 1234 {
		t.Fatalf("detectOne() = %d, %v; want 1234, true", v, ok)
	}
}

func TestDetectOne_StaleCacheIgnoredAfterModification(t *testing.T) {
	Reset()
	t.Setenv("HOME", t.TempDir())

	lib := filepath.Join(t.TempDir(), "lib.so")
	if err := os.WriteFile(lib, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	cache[lib] = cacheEntry{mtime: 1, version: 9999}
	mu.Unlock()

	if _, ok := detectOne(lib); ok {
		t.Fatal("a cache entry for a stale mtime must not be trusted")
	}
}

func TestCacheFilePath_EscapesSeparators(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	got := cacheFilePath("/usr/lib64/libamdocl64.so")
	if filepath.Base(got) == "" || got == "" {
		t.Fatal("cacheFilePath must produce a non-empty path")
	}
	if filepath.Dir(got) != filepath.Join("/home/test", ".clrxamdocltstamp") {
		t.Errorf("cacheFilePath dir = %q, want .clrxamdocltstamp under HOME", filepath.Dir(got))
	}
}
