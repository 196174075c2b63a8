// Package vm implements the value-swapping subsystem of §4.9: a fixed-size
// swap file divided into pages, a page bitmap allocator, a worker pool
// standing in for the new/processing/processed job lists, and swap-out
// candidate selection.
package vm

import (
	"fmt"
	"math/bits"
	"math/rand"
	"sync"
)

// Bitmap is the in-RAM page-usage bitmap backing the fixed-size swap file
// (§4.9): one bit per page, allocation via rotating first-fit with
// periodic random jumps to avoid always scanning from the same offset.
type Bitmap struct {
	mu        sync.Mutex
	bits      []uint64
	pageCount uint64
	cursor    uint64
	sinceJump int

	jumpEvery int // how many allocations between random cursor jumps
	rng       *rand.Rand
}

func NewBitmap(pageCount uint64, seed int64) *Bitmap {
	return &Bitmap{
		bits:      make([]uint64, (pageCount+63)/64),
		pageCount: pageCount,
		jumpEvery: 64,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (b *Bitmap) isSet(page uint64) bool {
	return b.bits[page/64]&(1<<(page%64)) != 0
}

func (b *Bitmap) set(page uint64) {
	b.bits[page/64] |= 1 << (page % 64)
}

func (b *Bitmap) clear(page uint64) {
	b.bits[page/64] &^= 1 << (page % 64)
}

// Alloc finds `count` contiguous free pages using rotating first-fit,
// returning the starting page. Every jumpEvery allocations the scan cursor
// jumps to a random offset instead of continuing where the last scan left
// off, so long-lived allocations don't all cluster at low page numbers.
func (b *Bitmap) Alloc(count uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if count == 0 || count > b.pageCount {
		return 0, fmt.Errorf("vm: invalid page count %d", count)
	}

	b.sinceJump++
	if b.sinceJump >= b.jumpEvery {
		b.cursor = uint64(b.rng.Int63n(int64(b.pageCount)))
		b.sinceJump = 0
	}

	start := b.cursor
	for tried := uint64(0); tried < b.pageCount; tried++ {
		base := (start + tried) % b.pageCount
		if base+count > b.pageCount {
			continue
		}
		if b.regionFree(base, count) {
			for p := base; p < base+count; p++ {
				b.set(p)
			}
			b.cursor = (base + count) % b.pageCount
			return base, nil
		}
	}
	return 0, fmt.Errorf("vm: swap file exhausted, need %d contiguous pages", count)
}

func (b *Bitmap) regionFree(base, count uint64) bool {
	for p := base; p < base+count; p++ {
		if b.isSet(p) {
			return false
		}
	}
	return true
}

// Free releases `count` pages starting at `base`.
func (b *Bitmap) Free(base, count uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := base; p < base+count; p++ {
		b.clear(p)
	}
}

func (b *Bitmap) UsedPages() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var used uint64
	for _, word := range b.bits {
		used += uint64(bits.OnesCount64(word))
	}
	return used
}
