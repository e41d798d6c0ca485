package segalloc

import "fmt"

// Check walks the heap and the free-list index and verifies every
// structural invariant, returning nil when all hold or an error naming
// the first violation. It is a diagnostic: no repair is attempted.
//
// Verified per block: header/footer agreement, 16-byte alignment, legal
// multiple-of-16 size, perfect tiling of the committed region, and no
// two adjacent free blocks. Verified per bucket: members are free, sized
// for their class, bidirectionally linked, and in one bucket only (the
// walk count must match both the bucket count and the index counter).
func (a *Allocator) Check() error {
	hi := a.heap.Hi()
	walked := 0
	prevFreed := false
	off := 0
	for off < hi {
		if off&(alignment-1) != 0 {
			return fmt.Errorf("segalloc: block %#x misaligned", off)
		}
		size := a.blockSize(off)
		if size < minBlockSize || size%alignment != 0 {
			return fmt.Errorf("segalloc: block %#x has illegal size %d", off, size)
		}
		if off+size > hi {
			return fmt.Errorf("segalloc: block %#x of size %d overruns heap end %#x", off, size, hi)
		}
		hf := *a.word(off + offFlags)
		if hf > 1 {
			return fmt.Errorf("segalloc: block %#x has corrupt flags %#x", off, hf)
		}
		fOff := off + size - footerSize
		if fs := int(*a.word(fOff + offSize)); fs != size {
			return fmt.Errorf("segalloc: block %#x header size %d != footer size %d", off, size, fs)
		}
		if ff := *a.word(fOff + offFlags); ff != hf {
			return fmt.Errorf("segalloc: block %#x header flags %d != footer flags %d", off, hf, ff)
		}
		freed := hf == 1
		if freed && prevFreed {
			return fmt.Errorf("segalloc: block %#x and its predecessor are both free", off)
		}
		if freed {
			walked++
		}
		prevFreed = freed
		off += size
	}
	if off != hi {
		return fmt.Errorf("segalloc: heap walk ended at %#x, want %#x", off, hi)
	}

	counted := 0
	for class := 0; class < numClasses; class++ {
		prev := nilRef
		for b := a.buckets[class]; b != nilRef; b = a.linkNext(b) {
			if counted++; counted > walked {
				return fmt.Errorf("segalloc: class %d holds more blocks than the heap has free", class)
			}
			if b < 0 || b+minBlockSize > hi || b&(alignment-1) != 0 {
				return fmt.Errorf("segalloc: class %d links to bad offset %#x", class, b)
			}
			if !a.blockFreed(b) {
				return fmt.Errorf("segalloc: class %d holds allocated block %#x", class, b)
			}
			if c := classOf(a.blockSize(b)); c != class {
				return fmt.Errorf("segalloc: block %#x of size %d in class %d, want %d", b, a.blockSize(b), class, c)
			}
			if a.linkPrev(b) != prev {
				return fmt.Errorf("segalloc: block %#x prev link %#x, want %#x", b, a.linkPrev(b), prev)
			}
			prev = b
		}
	}
	if counted != walked {
		return fmt.Errorf("segalloc: heap walk found %d free blocks, index holds %d", walked, counted)
	}
	if counted != a.freeBlocks {
		return fmt.Errorf("segalloc: index holds %d blocks, counter says %d", counted, a.freeBlocks)
	}
	return nil
}
