// Package segalloc implements a general-purpose heap allocator over a
// single contiguous sbrk-style region. Blocks carry boundary tags (a
// header and a footer holding size and free state) so neighbors can be
// located in O(1), and free blocks are indexed by a 16-bucket segregated
// free list for sub-linear fit search. Freed blocks are eagerly merged
// with free neighbors, so no two adjacent blocks are ever both free.
//
// The allocator is single-threaded: callers needing concurrent access
// must serialize externally.
package segalloc

import (
	"fmt"
	"unsafe"

	"github.com/cloudwego/segalloc/arena"
)

// Stats are observability counters. FreeBlocks is the number of blocks
// currently indexed by the free list.
type Stats struct {
	Allocs     uint64
	Frees      uint64
	Extends    uint64
	FreeBlocks int
}

// Allocator manages one heap region. All block bookkeeping lives inside
// the region itself; the only out-of-band state is the bucket head table
// and the counters.
type Allocator struct {
	heap *arena.Arena

	// base caches the arena start for tag arithmetic.
	base unsafe.Pointer

	// buckets holds the head block offset of each size class, nilRef
	// when the class is empty.
	buckets [numClasses]int

	// freeBlocks counts index insertions minus removals.
	freeBlocks int

	allocs  uint64
	frees   uint64
	extends uint64
}

// New reserves a heap of at least reserve bytes and carves the initial
// chunk as one free block. The heap grows on demand up to the
// reservation and never shrinks.
func New(reserve int) (*Allocator, error) {
	h, err := arena.New(reserve)
	if err != nil {
		return nil, err
	}
	return NewWithArena(h)
}

// NewWithArena builds an allocator over a caller-supplied arena. If the
// arena already has committed bytes they are re-tiled as one free block,
// otherwise the initial chunk is committed.
func NewWithArena(h *arena.Arena) (*Allocator, error) {
	a := &Allocator{heap: h, base: h.Base()}
	if err := a.Reset(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reset discards all allocations and re-carves the committed region as a
// single free block. Slices handed out before Reset must not be used
// afterwards. On a fresh arena it commits the initial chunk.
func (a *Allocator) Reset() error {
	for i := range a.buckets {
		a.buckets[i] = nilRef
	}
	a.freeBlocks = 0
	a.allocs, a.frees, a.extends = 0, 0, 0

	if a.heap.Hi() == 0 {
		initSize := allocSize(chunkSize)
		if a.heap.Sbrk(initSize) < 0 {
			return fmt.Errorf("segalloc: initial heap extension of %d bytes failed", initSize)
		}
	}
	size := a.heap.Hi()
	if size%alignment != 0 || size < minBlockSize {
		return fmt.Errorf("segalloc: committed heap of %d bytes cannot host a block", size)
	}
	a.setSize(0, size)
	a.setFree(0, true)
	a.insertFree(0, size)
	return nil
}

// findFit scans the bucket of the requested class and every class above
// it, returning the first free block large enough, or nilRef. Classes
// below cannot hold a fitting block by construction.
func (a *Allocator) findFit(asize int) int {
	for class := classOf(asize); class < numClasses; class++ {
		for off := a.buckets[class]; off != nilRef; off = a.linkNext(off) {
			if a.blockSize(off) >= asize {
				return off
			}
		}
	}
	return nilRef
}

// splitBlock allocates asize bytes out of a free block. When the
// remainder cannot host a minimum block it is consumed whole and the
// slack becomes internal fragmentation; otherwise the tail is carved off
// as a new free block.
func (a *Allocator) splitBlock(off, asize int) {
	oldSize := a.blockSize(off)
	a.removeFree(off, oldSize)
	remainder := oldSize - asize
	if remainder < minBlockSize {
		a.setFree(off, false)
		return
	}
	a.setSize(off, asize)
	a.setFree(off, false)
	rest := off + asize
	a.setSize(rest, remainder)
	a.setFree(rest, true)
	a.insertFree(rest, remainder)
}

// coalesce marks the block at off free and merges it with any free
// neighbors, removing absorbed blocks from the index under their
// pre-merge sizes. Returns the offset of the surviving block, which is
// inserted into the index exactly once.
func (a *Allocator) coalesce(off int) int {
	prev := a.prevBlock(off)
	next := a.nextBlock(off)
	prevFree := prev != nilRef && a.blockFreed(prev)
	nextFree := next != nilRef && a.blockFreed(next)

	size := a.blockSize(off)
	switch {
	case prevFree && nextFree:
		a.removeFree(prev, a.blockSize(prev))
		a.removeFree(next, a.blockSize(next))
		size += a.blockSize(prev) + a.blockSize(next)
		off = prev
	case prevFree:
		a.removeFree(prev, a.blockSize(prev))
		size += a.blockSize(prev)
		off = prev
	case nextFree:
		a.removeFree(next, a.blockSize(next))
		size += a.blockSize(next)
	}
	a.setSize(off, size)
	a.setFree(off, true)
	a.insertFree(off, size)
	return off
}

// extendHeap commits bytes more heap, tags the fresh span as a free
// block and coalesces it, merging with a free tail if present. Returns
// the surviving block offset or nilRef if the arena is exhausted.
func (a *Allocator) extendHeap(bytes int) int {
	off := a.heap.Sbrk(bytes)
	if off < 0 {
		return nilRef
	}
	a.extends++
	a.setSize(off, bytes)
	return a.coalesce(off)
}

// extendFor grows the heap until a block of asize bytes exists. When the
// tail block is free only the difference is requested, so the merge
// yields exactly asize; otherwise at least one chunk is requested.
func (a *Allocator) extendFor(asize int) int {
	tail := a.prevBlock(a.heap.Hi())
	var bytes int
	if tail != nilRef && a.blockFreed(tail) {
		bytes = asize - a.blockSize(tail)
	} else {
		bytes = asize
		if bytes < chunkSize {
			bytes = chunkSize
		}
	}
	return a.extendHeap(bytes)
}

// Alloc returns a payload of len size, or nil when size is not positive
// or the heap cannot be grown to fit. The payload's cap is the block's
// full capacity; content is undefined.
func (a *Allocator) Alloc(size int) []byte {
	if size <= 0 || size > a.heap.Reserved() {
		return nil
	}
	asize := allocSize(size)
	off := a.findFit(asize)
	if off == nilRef {
		off = a.extendFor(asize)
		if off == nilRef {
			return nil
		}
	}
	a.splitBlock(off, asize)
	a.allocs++
	return a.payload(off, size)
}

// blockOf maps a payload slice back to its block offset. Panics when the
// slice does not point into the heap or is not block-aligned (for
// example after reslicing the front off a returned payload).
func (a *Allocator) blockOf(block []byte) int {
	dataPtr := *(*uintptr)(unsafe.Pointer(&block))
	off := int(dataPtr-uintptr(a.base)) - headerSize
	if off < 0 || off >= a.heap.Hi() {
		panic("segalloc: block not in heap")
	}
	if off&(alignment-1) != 0 {
		panic("segalloc: misaligned block")
	}
	return off
}

func (a *Allocator) freeAt(off int) {
	if a.blockFreed(off) {
		panic("segalloc: double free")
	}
	size := a.blockSize(off)
	if size < minBlockSize || size%alignment != 0 || off+size > a.heap.Hi() {
		panic("segalloc: corrupted block")
	}
	a.frees++
	a.coalesce(off)
}

// Free returns a block to the allocator and merges it with free
// neighbors. A slice with zero capacity (nil or empty) is a no-op; a
// zero-length reslice of a payload still frees its block. The slice must be the one
// returned by Alloc (or share its start); panics on foreign pointers and
// double frees.
func (a *Allocator) Free(block []byte) {
	if cap(block) == 0 {
		return
	}
	a.freeAt(a.blockOf(block))
}

// IsValidOffset reports whether payloadOff could be the start of an
// allocation, checking bounds and alignment only. Use before FreeAt with
// untrusted offsets.
func (a *Allocator) IsValidOffset(payloadOff int) bool {
	off := payloadOff - headerSize
	if off < 0 || off >= a.heap.Hi() {
		return false
	}
	return off&(alignment-1) == 0
}

// FreeAt frees the allocation whose payload starts at payloadOff bytes
// from the heap base, as returned via Offset. Panics like Free on
// invalid input.
func (a *Allocator) FreeAt(payloadOff int) {
	off := payloadOff - headerSize
	if off < 0 || off >= a.heap.Hi() {
		panic("segalloc: offset out of range")
	}
	if off&(alignment-1) != 0 {
		panic("segalloc: misaligned offset")
	}
	a.freeAt(off)
}

// Offset returns the payload offset of a block returned by Alloc, for
// use with FreeAt and IsValidOffset.
func (a *Allocator) Offset(block []byte) int {
	return a.blockOf(block) + headerSize
}

// Realloc resizes an allocation. A nil block is equivalent to Alloc; a
// negative size returns nil with the block untouched; size zero frees
// the block and returns nil. When the rounded size equals the current
// block size the same payload is returned; otherwise the content is
// copied into a new block, the old block is freed, and the new payload
// returned. Returns nil, leaving the old block intact, when the new
// block cannot be allocated.
func (a *Allocator) Realloc(block []byte, size int) []byte {
	if size < 0 {
		return nil
	}
	if cap(block) == 0 {
		return a.Alloc(size)
	}
	if size == 0 {
		a.Free(block)
		return nil
	}
	off := a.blockOf(block)
	oldSize := a.blockSize(off)
	if allocSize(size) == oldSize {
		return a.payload(off, size)
	}
	fresh := a.Alloc(size)
	if fresh == nil {
		return nil
	}
	copy(fresh, a.payload(off, oldSize-overhead))
	a.freeAt(off)
	return fresh
}

// Calloc allocates count*size bytes and zeroes them. Returns nil when
// either argument is not positive, the product overflows, or the heap
// cannot be grown.
func (a *Allocator) Calloc(count, size int) []byte {
	if count <= 0 || size <= 0 {
		return nil
	}
	total := count * size
	if total/size != count {
		return nil
	}
	p := a.Alloc(total)
	if p == nil {
		return nil
	}
	for i := range p {
		p[i] = 0
	}
	return p
}

// Available returns the total payload bytes of all free blocks. The heap
// may still grow beyond this, up to the arena reservation.
func (a *Allocator) Available() int {
	total := 0
	for class := 0; class < numClasses; class++ {
		for off := a.buckets[class]; off != nilRef; off = a.linkNext(off) {
			total += a.blockSize(off) - overhead
		}
	}
	return total
}

// Stats returns the current counters.
func (a *Allocator) Stats() Stats {
	return Stats{
		Allocs:     a.allocs,
		Frees:      a.frees,
		Extends:    a.extends,
		FreeBlocks: a.freeBlocks,
	}
}
