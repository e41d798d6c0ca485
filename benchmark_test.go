package segalloc

import (
	"math/rand"
	"strconv"
	"testing"
)

func BenchmarkAllocFree(b *testing.B) {
	a, err := New(64 << 20)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := a.Alloc(1024)
		if p == nil {
			b.Fatal("alloc failed")
		}
		a.Free(p)
	}
}

func BenchmarkAllocFreeSizes(b *testing.B) {
	sizes := []int{16, 64, 256, 1024, 4096, 65536}
	for _, size := range sizes {
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			a, err := New(64 << 20)
			if err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				p := a.Alloc(size)
				if p == nil {
					b.Fatal("alloc failed")
				}
				a.Free(p)
			}
		})
	}
}

func BenchmarkChurn(b *testing.B) {
	a, err := New(256 << 20)
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	live := make([][]byte, 0, 4096)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if len(live) >= 4096 || (len(live) > 0 && rng.Intn(2) == 0) {
			j := rng.Intn(len(live))
			a.Free(live[j])
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		} else {
			p := a.Alloc(16 + rng.Intn(2048))
			if p == nil {
				b.Fatal("alloc failed")
			}
			live = append(live, p)
		}
	}
}
