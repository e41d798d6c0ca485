package segalloc

import "unsafe"

const (
	// alignment is the block and payload alignment. All block offsets and
	// sizes are multiples of it.
	alignment = 16

	// headerSize is the per-block header: size, flags, and the two
	// free-list links. The links are only meaningful while the block is
	// free; the payload starts after the full header so it lands on a
	// 16-byte boundary.
	headerSize = 32

	// footerSize duplicates size and flags at the end of the block so the
	// previous neighbor can be located in O(1).
	footerSize = 16

	// overhead is the metadata cost of every block.
	overhead = headerSize + footerSize

	// minPayload is the smallest payload a block can carry.
	minPayload = 16

	// minBlockSize is the smallest legal block. Splitting never produces
	// a remainder below this.
	minBlockSize = overhead + minPayload

	// chunkSize is the growth quantum used when extending the heap
	// without a free tail, amortizing extension cost.
	chunkSize = 2048

	// nilRef is the null value for block offsets and link fields.
	nilRef = -1
)

// Header field offsets within a block. The flags word holds the freed
// state: 0 allocated, 1 free. Links are block offsets, nilRef for none.
const (
	offSize  = 0
	offFlags = 8
	offPrev  = 16
	offNext  = 24
)

// align rounds n up to the nearest multiple of alignment.
func align(n int) int {
	return alignment * ((n + alignment - 1) / alignment)
}

// allocSize returns the block size needed to carry an n-byte payload:
// payload plus both tags, rounded up to the alignment.
func allocSize(n int) int {
	return align(n + overhead)
}

func (a *Allocator) word(off int) *uint64 {
	return (*uint64)(unsafe.Add(a.base, off))
}

func (a *Allocator) ref(off int) *int64 {
	return (*int64)(unsafe.Add(a.base, off))
}

func (a *Allocator) blockSize(off int) int {
	return int(*a.word(off + offSize))
}

func (a *Allocator) blockFreed(off int) bool {
	return *a.word(off+offFlags) == 1
}

func (a *Allocator) footerOf(off int) int {
	return off + a.blockSize(off) - footerSize
}

// setSize rewrites the size in the header and in the footer located from
// the new size. Must be called before setFree when both change, so the
// flags land in the relocated footer.
func (a *Allocator) setSize(off, size int) {
	*a.word(off + offSize) = uint64(size)
	*a.word(off + size - footerSize + offSize) = uint64(size)
}

// setFree rewrites the freed flag in both tags. The block's size must
// already be correct so the footer can be located.
func (a *Allocator) setFree(off int, freed bool) {
	var v uint64
	if freed {
		v = 1
	}
	*a.word(off + offFlags) = v
	*a.word(a.footerOf(off) + offFlags) = v
}

func (a *Allocator) linkPrev(off int) int {
	return int(*a.ref(off + offPrev))
}

func (a *Allocator) linkNext(off int) int {
	return int(*a.ref(off + offNext))
}

func (a *Allocator) setLinkPrev(off, v int) {
	*a.ref(off + offPrev) = int64(v)
}

func (a *Allocator) setLinkNext(off, v int) {
	*a.ref(off + offNext) = int64(v)
}

// nextBlock returns the offset of the block after off, or nilRef when off
// is the last block of the heap.
func (a *Allocator) nextBlock(off int) int {
	n := off + a.blockSize(off)
	if n >= a.heap.Hi() {
		return nilRef
	}
	return n
}

// prevBlock returns the offset of the block before off, or nilRef when
// off is the first block. off may also be the heap's high bound, in which
// case the last block is returned.
func (a *Allocator) prevBlock(off int) int {
	fOff := off - footerSize
	if fOff < a.heap.Lo() {
		return nilRef
	}
	return off - int(*a.word(fOff+offSize))
}

// payload returns the caller-facing slice of a block: len n, cap the full
// payload capacity.
func (a *Allocator) payload(off, n int) []byte {
	capacity := a.blockSize(off) - overhead
	return unsafe.Slice((*byte)(unsafe.Add(a.base, off+headerSize)), capacity)[:n]
}
