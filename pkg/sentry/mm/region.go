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

package mm

import (
	"fmt"

	"vmsim.dev/vmsim/pkg/hostarch"
)

// regionDegree is the B-tree degree of the region set.
const regionDegree = 8

// Region is a contiguous, page-aligned range of user addresses a process may
// touch.
type Region struct {
	// Start is the page-aligned first address.
	Start hostarch.Addr

	// Pages is the length in pages.
	Pages uint64

	// Readable and Executable are recorded but not enforced.
	Readable   bool
	Executable bool

	// Writable is the current write permission. It is forced on between
	// PrepareLoad and CompleteLoad.
	Writable bool

	// SavedWritable is the write permission given at definition.
	SavedWritable bool
}

// End returns the exclusive end address of r.
func (r Region) End() uint64 {
	return uint64(r.Start) + r.Pages*hostarch.PageSize
}

// Range returns [r.Start, r.End()).
func (r Region) Range() hostarch.AddrRange {
	return hostarch.RangeOfPages(r.Start, r.Pages)
}

// Contains returns true if addr lies in r. The end bound is exclusive.
func (r Region) Contains(addr hostarch.Addr) bool {
	return r.Range().Contains(addr)
}

func (r Region) perms() string {
	b := []byte("---")
	if r.Readable {
		b[0] = 'r'
	}
	if r.Writable {
		b[1] = 'w'
	}
	if r.Executable {
		b[2] = 'x'
	}
	return string(b)
}

// String implements fmt.Stringer.String.
func (r Region) String() string {
	return fmt.Sprintf("%v %s", r.Range(), r.perms())
}

// region is a node of the region set.
type region struct {
	Region

	// seq is the definition order. Among regions with the same start the
	// most recently defined sorts first.
	seq uint64
}

// regionLess orders regions by start address, then by descending seq.
func regionLess(a, b *region) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.seq > b.seq
}

// insertLocked adds a region to the set and returns its node.
//
// Preconditions: as.mu is locked. The region's heap charge has been made.
func (as *AddressSpace) insertLocked(r Region) *region {
	n := &region{Region: r, seq: as.nextSeq}
	as.nextSeq++
	as.regions.ReplaceOrInsert(n)
	return n
}

// overlappingLocked returns the number of regions that share an address with
// ar.
//
// Preconditions: as.mu is locked.
func (as *AddressSpace) overlappingLocked(ar hostarch.AddrRange) int {
	n := 0
	as.regions.Ascend(func(r *region) bool {
		if uint64(r.Start) >= ar.End {
			return false
		}
		if r.Range().Overlaps(ar) {
			n++
		}
		return true
	})
	return n
}

// findRegionLocked returns the first region in ascending order that contains
// addr, or nil.
//
// Preconditions: as.mu is locked.
func (as *AddressSpace) findRegionLocked(addr hostarch.Addr) *region {
	var found *region
	as.regions.Ascend(func(r *region) bool {
		if r.Start > addr {
			return false
		}
		if r.Contains(addr) {
			found = r
			return false
		}
		return true
	})
	return found
}

// copyRegions duplicates every region of src into as, preserving order and
// both writable flags.
//
// Preconditions: src.mu is locked. as is not yet shared.
func (as *AddressSpace) copyRegions(src *AddressSpace) error {
	heap := as.mf.Heap()
	var err error
	src.regions.Ascend(func(r *region) bool {
		if err = heap.Alloc(regionSize); err != nil {
			return false
		}
		as.regions.ReplaceOrInsert(&region{
			Region: r.Region,
			seq:    r.seq,
		})
		return true
	})
	as.nextSeq = src.nextSeq
	return err
}
