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

// Package hostarch describes the simulated machine's address layout: a 32-bit
// MIPS-style virtual address space with 4K pages, user space below 2GB and a
// direct-mapped kernel segment above it.
package hostarch

import "fmt"

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the page size in bytes.
	PageSize = 1 << PageShift

	// PageNumberBits is the width of a virtual page number.
	PageNumberBits = 32 - PageShift

	// UserStack is the top of the user address space. The initial user stack
	// pointer is placed here and grows down.
	UserStack Addr = 0x80000000

	// KSeg0 is the base of the direct-mapped, cached kernel segment. Physical
	// address p is visible to the kernel at KSeg0+p.
	KSeg0 Addr = 0x80000000

	// StackPages is the number of pages in the user stack region.
	StackPages = 16
)

// Addr represents a virtual address.
type Addr uint32

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#x", uint32(v))
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v & ^Addr(PageSize-1)
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageSize - 1).RoundDown()
	ok = addr >= v
	return
}

// PageOffset returns the offset of v into the current page.
func (v Addr) PageOffset() uint32 {
	return uint32(v & Addr(PageSize-1))
}

// IsPageAligned returns true if v.PageOffset() == 0.
func (v Addr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// PageNumber returns the virtual page number containing v.
func (v Addr) PageNumber() uint32 {
	return uint32(v) >> PageShift
}

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the 32-bit address space.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	sum := uint64(v) + length
	end = Addr(sum)
	ok = sum <= 1<<32-1
	return
}

// ToRange returns [v, v+length). ok is true iff the range ends at or below
// the top of the 32-bit address space.
func (v Addr) ToRange(length uint64) (ar AddrRange, ok bool) {
	end := uint64(v) + length
	return AddrRange{Start: v, End: end}, end >= uint64(v) && end <= 1<<32
}

// IsUser returns true if v lies below the top of the user address space.
func (v Addr) IsUser() bool {
	return v < UserStack
}

// PagesFor returns the number of whole pages needed to hold size bytes.
func PagesFor(size uint64) uint64 {
	return (size + PageSize - 1) >> PageShift
}
