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

package arena

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		reserve int
		wantErr bool
	}{
		{"zero", 0, true},
		{"negative", -1, true},
		{"one_byte", 1, false},
		{"large", 1 << 20, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.reserve)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, a.Lo())
			assert.Equal(t, 0, a.Hi())
			assert.GreaterOrEqual(t, a.Reserved(), tt.reserve)
		})
	}
}

func TestBaseAlignment(t *testing.T) {
	for i := 0; i < 16; i++ {
		a, err := New(1024 + i)
		require.NoError(t, err)
		assert.Zero(t, uintptr(a.Base())&(alignment-1))
	}
}

func TestSbrk(t *testing.T) {
	a, err := New(4096)
	require.NoError(t, err)

	// spans are handed out contiguously
	off1 := a.Sbrk(1024)
	assert.Equal(t, 0, off1)
	assert.Equal(t, 1024, a.Hi())

	off2 := a.Sbrk(512)
	assert.Equal(t, 1024, off2)
	assert.Equal(t, 1536, a.Hi())

	// invalid requests leave the break alone
	assert.Equal(t, -1, a.Sbrk(0))
	assert.Equal(t, -1, a.Sbrk(-1))
	assert.Equal(t, 1536, a.Hi())

	// exhaustion
	assert.Equal(t, -1, a.Sbrk(a.Reserved()))
	assert.Equal(t, 1536, a.Hi())

	// the very last byte is still reachable
	rest := a.Reserved() - a.Hi()
	assert.Equal(t, 1536, a.Sbrk(rest))
	assert.Equal(t, a.Reserved(), a.Hi())
	assert.Equal(t, -1, a.Sbrk(1))
}

func TestSbrkContiguousMemory(t *testing.T) {
	a, err := New(4096)
	require.NoError(t, err)

	off1 := a.Sbrk(64)
	require.Equal(t, 0, off1)
	s1 := a.Slice(off1, 64)
	for i := range s1 {
		s1[i] = 0xAB
	}

	off2 := a.Sbrk(64)
	require.Equal(t, 64, off2)
	s2 := a.Slice(off2, 64)

	// the second span starts exactly where the first ends
	assert.Equal(t, uintptr(unsafe.Pointer(&s1[63]))+1, uintptr(unsafe.Pointer(&s2[0])))
	// and growing did not disturb earlier content
	for i := range s1 {
		assert.Equal(t, byte(0xAB), s1[i])
	}
}

func TestSlice(t *testing.T) {
	a, err := New(4096)
	require.NoError(t, err)
	a.Sbrk(128)

	s := a.Slice(0, 128)
	assert.Equal(t, 128, len(s))
	assert.Equal(t, uintptr(a.Base()), uintptr(unsafe.Pointer(&s[0])))

	assert.Panics(t, func() { a.Slice(-1, 16) })
	assert.Panics(t, func() { a.Slice(0, -1) })
	assert.Panics(t, func() { a.Slice(0, 129) })  // past the break
	assert.Panics(t, func() { a.Slice(120, 16) }) // straddles the break
}

func TestRelease(t *testing.T) {
	a, err := New(4096)
	require.NoError(t, err)
	a.Sbrk(64)
	a.Release()
	assert.Equal(t, 0, a.Hi())
	assert.Equal(t, 0, a.Reserved())
	assert.Equal(t, -1, a.Sbrk(16))
}
