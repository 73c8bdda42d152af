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
package asmfront

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// ReadIncBin implements .incbin: a binary include that appends the whole
// (optionally offset/length-sliced) contents of a file to the current
// section. Memory-mapped instead of read into a buffer, the way
// saferwall-pe's File.New mmaps the whole input once rather than copying it
// (file.go) — the natural fit for .incbin, where the usual case is slurping
// a large firmware/constant blob unmodified into the code section.
func ReadIncBin(path string, offset, length int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open binary include %q: %w", path, err)
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot mmap binary include %q: %w", path, err)
	}
	defer data.Unmap()

	total := int64(len(data))
	if offset < 0 || offset > total {
		return nil, fmt.Errorf(".incbin %q: offset %d out of range (file is %d bytes)", path, offset, total)
	}
	end := total
	if length >= 0 {
		end = offset + length
		if end > total {
			return nil, fmt.Errorf(".incbin %q: offset+length %d exceeds file size %d", path, end, total)
		}
	}
	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out, nil
}
