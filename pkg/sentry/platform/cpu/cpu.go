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

// Package cpu models a single simulated processor: its interrupt priority
// level and its TLB.
package cpu

import (
	"fmt"

	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/metric"
	"vmsim.dev/vmsim/pkg/sentry/platform/tlb"
)

var tlbFlushes = metric.MustCreateNewUint64Metric("/vm/tlb_flushes", "Number of full TLB invalidations.")

// Level is an interrupt priority level.
type Level int

const (
	// LevelLow has interrupts enabled.
	LevelLow Level = iota

	// LevelHigh has interrupts disabled.
	LevelHigh
)

// String implements fmt.Stringer.String.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Exception is the cause of a trap raised by an address translation.
type Exception int

// Exception codes, numbered as in the MIPS Cause register.
const (
	ExcNone      Exception = 0
	ExcMod       Exception = 1
	ExcTLBL      Exception = 2
	ExcTLBS      Exception = 3
	ExcAddrLoad  Exception = 4
	ExcAddrStore Exception = 5
)

var exceptionNames = map[Exception]string{
	ExcNone:      "none",
	ExcMod:       "Mod",
	ExcTLBL:      "TLBL",
	ExcTLBS:      "TLBS",
	ExcAddrLoad:  "AdEL",
	ExcAddrStore: "AdES",
}

// String implements fmt.Stringer.String.
func (e Exception) String() string {
	if name, ok := exceptionNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Exception(%d)", int(e))
}

// CPU is one simulated processor.
//
// A CPU is owned by a single goroutine at a time and is not synchronized.
type CPU struct {
	id  int
	ipl Level
	tlb *tlb.TLB
}

// New returns a CPU with interrupts enabled and an invalidated TLB.
func New(id int, seed int64) *CPU {
	return &CPU{
		id:  id,
		tlb: tlb.New(seed),
	}
}

// ID returns the CPU number.
func (c *CPU) ID() int {
	return c.id
}

// String implements fmt.Stringer.String.
func (c *CPU) String() string {
	return fmt.Sprintf("cpu%d", c.id)
}

// SplHigh disables interrupts and returns the previous level.
func (c *CPU) SplHigh() Level {
	old := c.ipl
	c.ipl = LevelHigh
	return old
}

// Splx restores the interrupt level returned by SplHigh.
func (c *CPU) Splx(l Level) {
	c.ipl = l
}

// InterruptsEnabled returns true if the level is low.
func (c *CPU) InterruptsEnabled() bool {
	return c.ipl == LevelLow
}

func (c *CPU) assertHigh(op string) {
	if c.ipl != LevelHigh {
		panic(fmt.Sprintf("%v: %s with interrupts enabled", c, op))
	}
}

// TLBWrite writes (hi, lo) into slot.
//
// Preconditions: interrupts are disabled.
func (c *CPU) TLBWrite(hi, lo uint32, slot int) {
	c.assertHigh("TLBWrite")
	c.tlb.Write(hi, lo, slot)
}

// TLBRandom writes (hi, lo) into a random slot and returns it.
//
// Preconditions: interrupts are disabled.
func (c *CPU) TLBRandom(hi, lo uint32) int {
	c.assertHigh("TLBRandom")
	return c.tlb.Random(hi, lo)
}

// TLBRead returns the contents of slot.
//
// Preconditions: interrupts are disabled.
func (c *CPU) TLBRead(slot int) tlb.Entry {
	c.assertHigh("TLBRead")
	return c.tlb.Read(slot)
}

// TLBProbe returns the slot matching hi, or -1.
//
// Preconditions: interrupts are disabled.
func (c *CPU) TLBProbe(hi uint32) int {
	c.assertHigh("TLBProbe")
	return c.tlb.Probe(hi)
}

// TLBInvalidateAll invalidates every slot.
//
// Preconditions: interrupts are disabled.
func (c *CPU) TLBInvalidateAll() {
	c.assertHigh("TLBInvalidateAll")
	for i := 0; i < tlb.NumEntries; i++ {
		c.tlb.Write(tlb.InvalidHi(i), tlb.InvalidLo(), i)
	}
	tlbFlushes.Increment()
}

// TLBEntries returns a copy of every TLB slot.
func (c *CPU) TLBEntries() [tlb.NumEntries]tlb.Entry {
	return c.tlb.Entries()
}

// Translate performs a user-mode translation of addr as the hardware would.
// On success it returns the physical address and ExcNone; otherwise it
// returns the exception the access raises.
func (c *CPU) Translate(addr hostarch.Addr, store bool) (uint32, Exception) {
	if !addr.IsUser() {
		if store {
			return 0, ExcAddrStore
		}
		return 0, ExcAddrLoad
	}
	slot := c.tlb.Probe(tlb.EntryHi(addr))
	if slot < 0 || !c.tlb.Read(slot).Valid() {
		if store {
			return 0, ExcTLBS
		}
		return 0, ExcTLBL
	}
	e := c.tlb.Read(slot)
	if store && !e.Dirty() {
		return 0, ExcMod
	}
	return tlb.FrameOf(e.Lo) | addr.PageOffset(), ExcNone
}
