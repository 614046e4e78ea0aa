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

package pagetables

import (
	"vmsim.dev/vmsim/pkg/hostarch"
)

// Visitor is called for each present PTE during a walk. It returns false to
// stop the walk.
type Visitor func(addr hostarch.Addr, pte *PTE) bool

// walk calls visit for each present PTE in ascending address order. It
// returns false if the visitor stopped the walk.
func (pt *PageTable) walk(visit Visitor) bool {
	if pt == nil || pt.root == nil {
		return true
	}
	for top, b := range pt.root {
		if b == nil {
			// Skip over this entry.
			continue
		}
		for second, l := range b {
			if l == nil {
				continue
			}
			for leaf := range l {
				entry := &l[leaf]
				if !entry.Present() {
					continue
				}
				addr := Indices{Top: top, Second: second, Leaf: leaf}.Addr()
				if !visit(addr, entry) {
					return false
				}
			}
		}
	}
	return true
}

// ForEach calls fn with a copy of each present PTE in ascending address
// order, stopping early if fn returns false.
func (pt *PageTable) ForEach(fn func(addr hostarch.Addr, pte PTE) bool) {
	pt.walk(func(addr hostarch.Addr, pte *PTE) bool {
		return fn(addr, *pte)
	})
}

// Update calls fn with a pointer to each present PTE in ascending address
// order so that it may be edited in place. fn returns false to stop.
func (pt *PageTable) Update(fn Visitor) {
	pt.walk(fn)
}

// Present returns the number of present PTEs.
func (pt *PageTable) Present() int {
	n := 0
	pt.walk(func(hostarch.Addr, *PTE) bool {
		n++
		return true
	})
	return n
}

// Tables returns the number of allocated branches and leaf tables.
func (pt *PageTable) Tables() (branches, leaves int) {
	if pt == nil || pt.root == nil {
		return 0, 0
	}
	for _, b := range pt.root {
		if b == nil {
			continue
		}
		branches++
		for _, l := range b {
			if l != nil {
				leaves++
			}
		}
	}
	return branches, leaves
}

// ForRange calls fn with a pointer to each present PTE whose page lies in ar.
func (pt *PageTable) ForRange(ar hostarch.AddrRange, fn Visitor) {
	pt.walk(func(addr hostarch.Addr, pte *PTE) bool {
		if uint64(addr) >= ar.End {
			return false
		}
		if addr < ar.Start {
			return true
		}
		return fn(addr, pte)
	})
}
