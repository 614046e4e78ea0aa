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

// Package tlb models a software-managed, fully associative MIPS TLB.
package tlb

import (
	"fmt"
	"math/rand"

	"vmsim.dev/vmsim/pkg/hostarch"
)

// NumEntries is the number of TLB slots.
const NumEntries = 64

// EntryLo bits.
const (
	LoNoCache   uint32 = 0x00000800
	LoDirty     uint32 = 0x00000400
	LoValid     uint32 = 0x00000200
	LoGlobal    uint32 = 0x00000100
	LoFrameMask uint32 = 0xfffff000
)

// HiPageMask selects the virtual page number in EntryHi.
const HiPageMask uint32 = 0xfffff000

// EntryHi returns the EntryHi word for the page containing addr.
func EntryHi(addr hostarch.Addr) uint32 {
	return uint32(addr) & HiPageMask
}

// InvalidHi returns an EntryHi for slot that never matches a user page. Each
// slot gets a distinct kernel-segment page so no two slots alias.
func InvalidHi(slot int) uint32 {
	return uint32(0x80000+slot) << hostarch.PageShift
}

// InvalidLo is the EntryLo stored in invalidated slots.
func InvalidLo() uint32 {
	return 0
}

// FrameOf returns the physical address of the frame in lo.
func FrameOf(lo uint32) uint32 {
	return lo & LoFrameMask
}

// Entry is a single TLB slot.
type Entry struct {
	Hi uint32
	Lo uint32
}

// Valid returns true if the entry translates.
func (e Entry) Valid() bool {
	return e.Lo&LoValid != 0
}

// Dirty returns true if the entry permits stores.
func (e Entry) Dirty() bool {
	return e.Lo&LoDirty != 0
}

// String implements fmt.Stringer.String.
func (e Entry) String() string {
	return fmt.Sprintf("{hi=%#08x lo=%#08x}", e.Hi, e.Lo)
}

// TLB is the translation lookaside buffer of one CPU.
//
// TLB is not synchronized. The owning CPU serializes access.
type TLB struct {
	entries [NumEntries]Entry
	rand    *rand.Rand
}

// New returns a TLB with every slot invalid. seed drives the replacement
// slot choice of Random.
func New(seed int64) *TLB {
	t := &TLB{
		rand: rand.New(rand.NewSource(seed)),
	}
	t.InvalidateAll()
	return t
}

func checkSlot(slot int) {
	if slot < 0 || slot >= NumEntries {
		panic(fmt.Sprintf("TLB slot %d out of range [0, %d)", slot, NumEntries))
	}
}

// Read returns the contents of slot.
func (t *TLB) Read(slot int) Entry {
	checkSlot(slot)
	return t.entries[slot]
}

// Write stores (hi, lo) into slot.
func (t *TLB) Write(hi, lo uint32, slot int) {
	checkSlot(slot)
	t.entries[slot] = Entry{Hi: hi, Lo: lo}
}

// Random stores (hi, lo) into a randomly chosen slot and returns it.
func (t *TLB) Random(hi, lo uint32) int {
	slot := t.rand.Intn(NumEntries)
	t.entries[slot] = Entry{Hi: hi, Lo: lo}
	return slot
}

// Probe returns the slot whose EntryHi matches hi, or -1.
func (t *TLB) Probe(hi uint32) int {
	for i, e := range t.entries {
		if e.Hi&HiPageMask == hi&HiPageMask {
			return i
		}
	}
	return -1
}

// InvalidateAll writes the invalid entry into every slot.
func (t *TLB) InvalidateAll() {
	for i := range t.entries {
		t.entries[i] = Entry{Hi: InvalidHi(i), Lo: InvalidLo()}
	}
}

// Entries returns a copy of every slot.
func (t *TLB) Entries() [NumEntries]Entry {
	return t.entries
}
