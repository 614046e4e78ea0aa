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

package hostarch

import "fmt"

// AddrRange is a half-open range of addresses [Start, End). End is held as a
// uint64 so that a range may end exactly at the top of the 32-bit space.
type AddrRange struct {
	Start Addr
	End   uint64
}

// RangeOfPages returns the range covering n pages starting at start.
func RangeOfPages(start Addr, n uint64) AddrRange {
	return AddrRange{Start: start, End: uint64(start) + n*PageSize}
}

// WellFormed returns true if ar.Start <= ar.End.
func (ar AddrRange) WellFormed() bool {
	return uint64(ar.Start) <= ar.End
}

// Length returns the length of the range in bytes.
func (ar AddrRange) Length() uint64 {
	return ar.End - uint64(ar.Start)
}

// Contains returns true if ar contains addr. The end bound is exclusive.
func (ar AddrRange) Contains(addr Addr) bool {
	return ar.Start <= addr && uint64(addr) < ar.End
}

// Overlaps returns true if ar and other share at least one address.
func (ar AddrRange) Overlaps(other AddrRange) bool {
	return uint64(ar.Start) < other.End && uint64(other.Start) < ar.End
}

// IsPageAligned returns true if both bounds of ar are page-aligned.
func (ar AddrRange) IsPageAligned() bool {
	return ar.Start.IsPageAligned() && ar.End%PageSize == 0
}

// String implements fmt.Stringer.String.
func (ar AddrRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", uint32(ar.Start), ar.End)
}
