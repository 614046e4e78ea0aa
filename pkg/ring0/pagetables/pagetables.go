// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pagetables implements the sparse three-level page table that
// translates user virtual page numbers to physical frames.
package pagetables

import (
	"fmt"

	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/sentry/pgalloc"
	"vmsim.dev/vmsim/pkg/sentry/platform/tlb"
)

// Geometry of the table. The 20-bit virtual page number is sliced 8/6/6.
const (
	topShift    = 24
	secondShift = 18
	leafShift   = hostarch.PageShift

	topEntries    = 1 << (32 - topShift)
	secondEntries = 1 << (topShift - secondShift)
	leafEntries   = 1 << (secondShift - leafShift)

	// entrySize is the size of a table entry on the simulated machine.
	entrySize = 4

	// RootSize, SecondSize and LeafSize are the kernel heap charges of each
	// table level.
	RootSize   = topEntries * entrySize
	SecondSize = secondEntries * entrySize
	LeafSize   = leafEntries * entrySize
)

// Allocator charges table memory to the kernel heap.
type Allocator interface {
	// Alloc charges size bytes, returning ENOMEM if it cannot.
	Alloc(size uintptr) error

	// Free uncharges size bytes.
	Free(size uintptr)
}

// PTE is a leaf page table entry. The zero value is the unmapped entry.
type PTE struct {
	// Frame is the backing physical frame.
	Frame pgalloc.Frame

	// Valid is set for every mapped entry.
	Valid bool

	// Dirty is set if stores to the page are permitted.
	Dirty bool
}

// Present returns true if the entry maps a frame.
func (p PTE) Present() bool {
	return p.Valid && p.Frame != 0
}

// EntryLo encodes p in the layout of the TLB's low word.
func (p PTE) EntryLo() uint32 {
	lo := p.Frame.Paddr() & tlb.LoFrameMask
	if p.Valid {
		lo |= tlb.LoValid
	}
	if p.Dirty {
		lo |= tlb.LoDirty
	}
	return lo
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	if !p.Present() {
		return "<unmapped>"
	}
	return fmt.Sprintf("{%v valid=%t dirty=%t}", p.Frame, p.Valid, p.Dirty)
}

// Indices is the position of a page in the table.
type Indices struct {
	Top    int
	Second int
	Leaf   int
}

// IndicesOf returns the table position of the page containing addr.
func IndicesOf(addr hostarch.Addr) Indices {
	return Indices{
		Top:    int(addr >> topShift),
		Second: int(addr>>secondShift) & (secondEntries - 1),
		Leaf:   int(addr>>leafShift) & (leafEntries - 1),
	}
}

// Addr returns the page-aligned address at idx.
func (idx Indices) Addr() hostarch.Addr {
	return hostarch.Addr(idx.Top)<<topShift |
		hostarch.Addr(idx.Second)<<secondShift |
		hostarch.Addr(idx.Leaf)<<leafShift
}

// PTEs is a leaf table.
type PTEs [leafEntries]PTE

// branch is a second-level table.
type branch [secondEntries]*PTEs

// PageTable is a sparse three-level page table. Absent levels are nil.
//
// PageTable is not synchronized; the owning address space serializes access.
type PageTable struct {
	alloc Allocator
	root  *[topEntries]*branch
}

// New returns an empty page table with its root charged to alloc.
func New(alloc Allocator) (*PageTable, error) {
	if err := alloc.Alloc(RootSize); err != nil {
		return nil, err
	}
	return &PageTable{
		alloc: alloc,
		root:  new([topEntries]*branch),
	}, nil
}

// EnsureTop allocates the second-level table for top if it is absent.
func (pt *PageTable) EnsureTop(top int) error {
	if pt.root[top] != nil {
		return nil
	}
	if err := pt.alloc.Alloc(SecondSize); err != nil {
		return err
	}
	pt.root[top] = new(branch)
	return nil
}

// EnsureSecond allocates the leaf table at (top, second) if it is absent.
//
// Preconditions: EnsureTop(top) has succeeded.
func (pt *PageTable) EnsureSecond(top, second int) error {
	b := pt.root[top]
	if b == nil {
		panic(fmt.Sprintf("EnsureSecond(%d, %d) with an absent top-level branch", top, second))
	}
	if b[second] != nil {
		return nil
	}
	if err := pt.alloc.Alloc(LeafSize); err != nil {
		return err
	}
	b[second] = new(PTEs)
	return nil
}

// Ensure allocates every table level leading to idx.
func (pt *PageTable) Ensure(idx Indices) error {
	if err := pt.EnsureTop(idx.Top); err != nil {
		return err
	}
	return pt.EnsureSecond(idx.Top, idx.Second)
}

// leaves returns the leaf table containing idx, or nil if it is absent.
func (pt *PageTable) leaves(idx Indices) *PTEs {
	if pt.root == nil {
		return nil
	}
	b := pt.root[idx.Top]
	if b == nil {
		return nil
	}
	return b[idx.Second]
}

// Leaf returns the PTE at idx. ok is false if a table level leading to it is
// absent.
func (pt *PageTable) Leaf(idx Indices) (pte PTE, ok bool) {
	l := pt.leaves(idx)
	if l == nil {
		return PTE{}, false
	}
	return l[idx.Leaf], true
}

// SetLeaf installs pte at idx unconditionally.
//
// Preconditions: Ensure(idx) has succeeded.
func (pt *PageTable) SetLeaf(idx Indices, pte PTE) {
	l := pt.leaves(idx)
	if l == nil {
		panic(fmt.Sprintf("SetLeaf(%+v) with an absent leaf table", idx))
	}
	l[idx.Leaf] = pte
}

// Lookup returns the PTE mapping addr, if any.
func (pt *PageTable) Lookup(addr hostarch.Addr) (PTE, bool) {
	pte, ok := pt.Leaf(IndicesOf(addr))
	if !ok || !pte.Present() {
		return PTE{}, false
	}
	return pte, true
}

// Release frees every table level, calling free for each present PTE first.
// Leaves go before their leaf table, leaf tables before their branch, and
// branches before the root. Release may be called on a nil or already
// released table.
func (pt *PageTable) Release(free func(PTE)) {
	if pt == nil || pt.root == nil {
		return
	}
	for top, b := range pt.root {
		if b == nil {
			continue
		}
		for second, l := range b {
			if l == nil {
				continue
			}
			for _, pte := range l {
				if pte.Present() {
					free(pte)
				}
			}
			b[second] = nil
			pt.alloc.Free(LeafSize)
		}
		pt.root[top] = nil
		pt.alloc.Free(SecondSize)
	}
	pt.root = nil
	pt.alloc.Free(RootSize)
}
