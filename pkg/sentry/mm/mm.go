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

// Package mm implements the per-process virtual address space: the set of
// regions a process may touch, the page table that backs them with physical
// frames on demand, and the resolution of TLB misses.
//
// Lock order:
//
//	AddressSpace.mu
//	  pgalloc.MemoryFile.mu
//	  pgalloc.Heap.mu
package mm

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/btree"
	"vmsim.dev/vmsim/pkg/cleanup"
	"vmsim.dev/vmsim/pkg/errors/linuxerr"
	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/ring0/pagetables"
	"vmsim.dev/vmsim/pkg/sentry/context"
	"vmsim.dev/vmsim/pkg/sentry/pgalloc"
)

// Kernel heap charges of the address space record and of each region.
const (
	addressSpaceSize = 16
	regionSize       = 24
)

// An AddressSpace is the virtual memory of one process.
type AddressSpace struct {
	// mf is the physical memory backing the address space. It is immutable.
	mf *pgalloc.MemoryFile

	// mu serializes faults, region changes, Fork (as the source) and Destroy.
	mu sync.Mutex

	// pt is the page table. It is nil after Destroy.
	//
	// pt is protected by mu.
	pt *pagetables.PageTable

	// regions is ordered by start address. See regionLess.
	//
	// regions is protected by mu.
	regions *btree.BTreeG[*region]

	// nextSeq orders regions with equal start addresses.
	//
	// nextSeq is protected by mu.
	nextSeq uint64

	// destroyed is set by Destroy.
	//
	// destroyed is protected by mu.
	destroyed bool
}

// NewAddressSpace returns an empty address space backed by the MemoryFile in
// ctx. It returns ENOMEM if the kernel heap cannot hold the record or the
// page table root.
func NewAddressSpace(ctx context.Context) (*AddressSpace, error) {
	mf := pgalloc.MemoryFileFromContext(ctx)
	if mf == nil {
		panic("context has no MemoryFile")
	}
	as, err := newAddressSpace(mf)
	if err != nil {
		addressSpaceEvents.Increment("create_failed")
		return nil, err
	}
	addressSpaceEvents.Increment("create")
	return as, nil
}

func newAddressSpace(mf *pgalloc.MemoryFile) (*AddressSpace, error) {
	heap := mf.Heap()
	if err := heap.Alloc(addressSpaceSize); err != nil {
		return nil, err
	}
	cu := cleanup.Make(func() { heap.Free(addressSpaceSize) })
	defer cu.Clean()

	pt, err := pagetables.New(heap)
	if err != nil {
		return nil, err
	}
	cu.Release()
	return &AddressSpace{
		mf:      mf,
		pt:      pt,
		regions: btree.NewG(regionDegree, regionLess),
	}, nil
}

// Destroy releases every frame, every table level and every region of as,
// then the record itself. Destroy is safe on a partially built address space
// and is a no-op after the first call.
func (as *AddressSpace) Destroy(ctx context.Context) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.destroyed {
		return
	}
	as.destroyLocked()
	addressSpaceEvents.Increment("destroy")
}

// Preconditions: as.mu is locked.
func (as *AddressSpace) destroyLocked() {
	as.destroyed = true
	as.pt.Release(func(pte pagetables.PTE) {
		as.mf.Free(pte.Frame)
	})
	as.pt = nil
	heap := as.mf.Heap()
	heap.Free(addressSpaceSize)
	if as.regions != nil {
		heap.Free(uintptr(as.regions.Len()) * regionSize)
		as.regions.Clear(false)
	}
}

// Fork returns an eager copy of as: every resident page is duplicated into a
// new frame and every region is copied. If memory runs out the partial copy
// is destroyed and ENOMEM is returned.
func (as *AddressSpace) Fork(ctx context.Context) (*AddressSpace, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.destroyed {
		panic("Fork of a destroyed address space")
	}

	child, err := newAddressSpace(as.mf)
	if err != nil {
		addressSpaceEvents.Increment("fork_failed")
		return nil, err
	}
	cu := cleanup.Make(func() { child.destroyLocked() })
	defer cu.Clean()

	as.pt.ForEach(func(addr hostarch.Addr, pte pagetables.PTE) bool {
		err = child.copyPage(as.mf, addr, pte)
		return err == nil
	})
	if err != nil {
		ctx.Debugf("Fork: out of memory copying pages: %v", err)
		addressSpaceEvents.Increment("fork_failed")
		return nil, err
	}
	if err = child.copyRegions(as); err != nil {
		ctx.Debugf("Fork: out of memory copying regions: %v", err)
		addressSpaceEvents.Increment("fork_failed")
		return nil, err
	}
	cu.Release()
	addressSpaceEvents.Increment("fork")
	return child, nil
}

// copyPage installs a private copy of the page at addr, which src maps with
// pte.
func (as *AddressSpace) copyPage(mf *pgalloc.MemoryFile, addr hostarch.Addr, pte pagetables.PTE) error {
	idx := pagetables.IndicesOf(addr)
	if err := as.pt.Ensure(idx); err != nil {
		return err
	}
	fr, err := as.mf.Allocate(1)
	if err != nil {
		return err
	}
	copy(as.mf.Bytes(fr), mf.Bytes(pte.Frame))
	as.pt.SetLeaf(idx, pagetables.PTE{Frame: fr, Valid: pte.Valid, Dirty: pte.Dirty})
	return nil
}

// DefineRegion adds a region covering [base, base+size) rounded out to page
// boundaries. readable and executable are recorded but not enforced.
func (as *AddressSpace) DefineRegion(ctx context.Context, base hostarch.Addr, size uint64, readable, writable, executable bool) error {
	if size == 0 {
		return linuxerr.EINVAL
	}
	if size > 1<<32 {
		return linuxerr.EINVAL
	}
	start := base.RoundDown()
	pages := hostarch.PagesFor(size + uint64(base.PageOffset()))
	rng, ok := start.ToRange(pages * hostarch.PageSize)
	if !ok {
		return linuxerr.EINVAL
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	if as.destroyed {
		panic("DefineRegion on a destroyed address space")
	}
	if err := as.mf.Heap().Alloc(regionSize); err != nil {
		return err
	}
	if n := as.overlappingLocked(rng); n != 0 {
		ctx.Debugf("Region %v overlaps %d existing regions", rng, n)
	}
	r := as.insertLocked(Region{
		Start:         start,
		Pages:         pages,
		Readable:      readable,
		Writable:      writable,
		Executable:    executable,
		SavedWritable: writable,
	})
	ctx.Debugf("Defined region %v", r.Region)
	return nil
}

// DefineStack defines the user stack region, StackPages pages ending at
// UserStack, and returns the initial stack pointer.
func (as *AddressSpace) DefineStack(ctx context.Context) (hostarch.Addr, error) {
	const stackSize = hostarch.StackPages * hostarch.PageSize
	if err := as.DefineRegion(ctx, hostarch.UserStack-stackSize, stackSize, true, true, false); err != nil {
		return 0, err
	}
	return hostarch.UserStack, nil
}

// PrepareLoad makes every region writable so a loader can fill read-only
// segments.
func (as *AddressSpace) PrepareLoad(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.regions.Ascend(func(r *region) bool {
		r.Writable = true
		return true
	})
	return nil
}

// CompleteLoad restores every region's writable flag. Pages in regions that
// are no longer writable lose their dirty bit, and the local TLB is flushed so
// no writable translation survives.
func (as *AddressSpace) CompleteLoad(ctx context.Context) error {
	as.mu.Lock()
	as.regions.Ascend(func(r *region) bool {
		r.Writable = r.SavedWritable
		if !r.Writable {
			as.pt.ForRange(r.Range(), func(addr hostarch.Addr, pte *pagetables.PTE) bool {
				// A later writable region may overlap this page.
				if !as.writableLocked(addr) {
					pte.Dirty = false
				}
				return true
			})
		}
		return true
	})
	as.mu.Unlock()

	Activate(ctx)
	return nil
}

// writableLocked returns true if the first region containing addr is
// writable.
//
// Preconditions: as.mu is locked.
func (as *AddressSpace) writableLocked(addr hostarch.Addr) bool {
	r := as.findRegionLocked(addr)
	return r != nil && r.Writable
}

// Regions returns a copy of every region in ascending order.
func (as *AddressSpace) Regions() []Region {
	as.mu.Lock()
	defer as.mu.Unlock()
	rs := make([]Region, 0, as.regions.Len())
	as.regions.Ascend(func(r *region) bool {
		rs = append(rs, r.Region)
		return true
	})
	return rs
}

// Lookup returns the PTE mapping addr, if any.
func (as *AddressSpace) Lookup(addr hostarch.Addr) (pagetables.PTE, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.pt == nil {
		return pagetables.PTE{}, false
	}
	return as.pt.Lookup(addr)
}

// ResidentPages returns the number of pages backed by a frame.
func (as *AddressSpace) ResidentPages() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.pt.Present()
}

// MemoryFile returns the physical memory backing as.
func (as *AddressSpace) MemoryFile() *pgalloc.MemoryFile {
	return as.mf
}

// String returns one line per region, in the style of /proc/[pid]/maps,
// followed by the number of resident pages.
func (as *AddressSpace) String() string {
	as.mu.Lock()
	defer as.mu.Unlock()
	var b bytes.Buffer
	as.regions.Ascend(func(r *region) bool {
		fmt.Fprintf(&b, "%08x-%08x %s %d\n", uint32(r.Start), r.End(), r.perms(), r.Pages)
		return true
	})
	fmt.Fprintf(&b, "resident: %d\n", as.pt.Present())
	return b.String()
}
