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

import "testing"

func TestRoundUp(t *testing.T) {
	for _, tc := range []struct {
		in   Addr
		want Addr
		ok   bool
	}{
		{0, 0, true},
		{1, PageSize, true},
		{PageSize, PageSize, true},
		{PageSize + 1, 2 * PageSize, true},
		{0xfffff001, 0, false},
	} {
		got, ok := tc.in.RoundUp()
		if got != tc.want || ok != tc.ok {
			t.Errorf("%v.RoundUp() = (%v, %t), want (%v, %t)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPagesFor(t *testing.T) {
	for _, tc := range []struct {
		size uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{PageSize, 1},
		{PageSize + 1, 2},
		{16 * PageSize, 16},
	} {
		if got := PagesFor(tc.size); got != tc.want {
			t.Errorf("PagesFor(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

func TestRangeContainsIsHalfOpen(t *testing.T) {
	ar := RangeOfPages(0x400000, 2)
	if !ar.Contains(0x400000) {
		t.Errorf("%v does not contain its start", ar)
	}
	if !ar.Contains(0x401fff) {
		t.Errorf("%v does not contain its last byte", ar)
	}
	if ar.Contains(0x402000) {
		t.Errorf("%v contains its end", ar)
	}
}

func TestRangeAtTopOfAddressSpace(t *testing.T) {
	ar := RangeOfPages(0xfffff000, 1)
	if !ar.WellFormed() || ar.Length() != PageSize {
		t.Fatalf("got %v (length %d), want a single well-formed page", ar, ar.Length())
	}
	if !ar.Contains(0xffffffff) {
		t.Errorf("%v does not contain the last address", ar)
	}
	if _, ok := Addr(0xfffff000).AddLength(2 * PageSize); ok {
		t.Errorf("AddLength past the top of the address space did not report overflow")
	}
}

func TestToRange(t *testing.T) {
	for _, tc := range []struct {
		start  Addr
		length uint64
		want   AddrRange
		ok     bool
	}{
		{0x400000, 2 * PageSize, AddrRange{0x400000, 0x402000}, true},
		{0xfffff000, PageSize, AddrRange{0xfffff000, 1 << 32}, true},
		{0xfffff000, 2 * PageSize, AddrRange{0xfffff000, 1<<32 + PageSize}, false},
		{0, 0, AddrRange{0, 0}, true},
	} {
		got, ok := tc.start.ToRange(tc.length)
		if got != tc.want || ok != tc.ok {
			t.Errorf("%v.ToRange(%#x) = %v, %t, want %v, %t", tc.start, tc.length, got, ok, tc.want, tc.ok)
		}
	}
}

func TestOverlaps(t *testing.T) {
	a := RangeOfPages(0x400000, 2)
	for _, tc := range []struct {
		other AddrRange
		want  bool
	}{
		{RangeOfPages(0x400000, 1), true},
		{RangeOfPages(0x401000, 4), true},
		{RangeOfPages(0x3ff000, 2), true},
		{RangeOfPages(0x3ff000, 1), false},
		{RangeOfPages(0x402000, 1), false},
	} {
		if got := a.Overlaps(tc.other); got != tc.want {
			t.Errorf("%v.Overlaps(%v) = %t, want %t", a, tc.other, got, tc.want)
		}
		if got := tc.other.Overlaps(a); got != tc.want {
			t.Errorf("%v.Overlaps(%v) = %t, want %t", tc.other, a, got, tc.want)
		}
	}
}
