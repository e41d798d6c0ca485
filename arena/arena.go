// Copyright 2025 CloudWeGo Authors
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

// Package arena provides a contiguous, monotonically growing heap region
// with sbrk-style semantics. The region is reserved up front and committed
// incrementally; committed memory is never returned to the runtime.
package arena

import (
	"fmt"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// alignment is the boundary the base pointer is rounded up to, so that
// offset arithmetic within the arena matches pointer alignment.
const alignment = 16

// Arena is a single contiguous heap region. The break only advances:
// every Sbrk returns a span contiguous with all previous spans.
// Committed memory is NOT zeroed; callers that need zeroed bytes must
// clear them.
type Arena struct {
	// buf is the full reservation, including the alignment slack before base.
	buf []byte

	// base is the 16-byte-aligned start of the usable region.
	base unsafe.Pointer

	// pad is the number of slack bytes between &buf[0] and base.
	pad int

	// brk is the number of bytes currently committed past base.
	brk int
}

// New reserves a region of at least reserve bytes. No memory is committed
// until Sbrk is called.
func New(reserve int) (*Arena, error) {
	if reserve <= 0 {
		return nil, fmt.Errorf("arena: reserve must be positive, got %d", reserve)
	}
	// Over-reserve by one alignment quantum so the aligned base still has
	// the requested capacity behind it.
	buf := dirtmake.Bytes(reserve+alignment, reserve+alignment)
	pad := int(-uintptr(unsafe.Pointer(&buf[0])) & (alignment - 1))
	return &Arena{
		buf:  buf,
		base: unsafe.Pointer(&buf[pad]),
		pad:  pad,
	}, nil
}

// Sbrk commits n more bytes and returns the offset of the old break,
// i.e. the start of the fresh span. Returns -1 if n is not positive or
// the reservation is exhausted; the break is unchanged in that case.
// The content of the fresh span is undefined.
func (a *Arena) Sbrk(n int) int {
	if n <= 0 {
		return -1
	}
	if a.brk+n > a.Reserved() {
		return -1
	}
	old := a.brk
	a.brk += n
	return old
}

// Lo returns the inclusive low bound of the committed region, as an offset.
func (a *Arena) Lo() int { return 0 }

// Hi returns the exclusive high bound of the committed region, as an offset.
func (a *Arena) Hi() int { return a.brk }

// Base returns the aligned start of the region for pointer arithmetic.
func (a *Arena) Base() unsafe.Pointer { return a.base }

// Reserved returns the total capacity the break can grow to.
func (a *Arena) Reserved() int { return len(a.buf) - a.pad }

// Slice returns a view of n committed bytes starting at off.
// Panics if the range is not fully committed.
func (a *Arena) Slice(off, n int) []byte {
	if off < 0 || n < 0 || off+n > a.brk {
		panic("arena: slice out of committed range")
	}
	return unsafe.Slice((*byte)(a.base), a.brk)[off : off+n]
}

// Release drops the reservation reference so it can be collected.
// The arena must not be used afterwards.
func (a *Arena) Release() {
	a.buf = nil
	a.base = nil
	a.pad = 0
	a.brk = 0
}
