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

package cpu

import (
	"testing"

	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/sentry/context"
	"vmsim.dev/vmsim/pkg/sentry/platform/tlb"
)

func TestSplNesting(t *testing.T) {
	c := New(0, 1)
	if !c.InterruptsEnabled() {
		t.Fatalf("new CPU has interrupts disabled")
	}
	outer := c.SplHigh()
	inner := c.SplHigh()
	c.Splx(inner)
	if c.InterruptsEnabled() {
		t.Errorf("inner Splx enabled interrupts")
	}
	c.Splx(outer)
	if !c.InterruptsEnabled() {
		t.Errorf("outer Splx did not restore interrupts")
	}
}

func TestTLBAccessRequiresHighLevel(t *testing.T) {
	c := New(0, 1)
	for name, fn := range map[string]func(){
		"TLBWrite":         func() { c.TLBWrite(0, 0, 0) },
		"TLBRandom":        func() { c.TLBRandom(0, 0) },
		"TLBRead":          func() { c.TLBRead(0) },
		"TLBProbe":         func() { c.TLBProbe(0) },
		"TLBInvalidateAll": func() { c.TLBInvalidateAll() },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s with interrupts enabled did not panic", name)
				}
			}()
			fn()
		}()
	}
}

func TestTranslate(t *testing.T) {
	c := New(0, 1)
	s := c.SplHigh()
	c.TLBWrite(tlb.EntryHi(0x400000), 0x5000|tlb.LoValid, 0)
	c.TLBWrite(tlb.EntryHi(0x401000), 0x6000|tlb.LoValid|tlb.LoDirty, 1)
	c.Splx(s)

	for _, tc := range []struct {
		addr  uint32
		store bool
		paddr uint32
		exc   Exception
	}{
		{0x400123, false, 0x5123, ExcNone},
		{0x400123, true, 0, ExcMod},
		{0x401ffc, true, 0x6ffc, ExcNone},
		{0x402000, false, 0, ExcTLBL},
		{0x402000, true, 0, ExcTLBS},
		{0x80000000, false, 0, ExcAddrLoad},
		{0x80001000, true, 0, ExcAddrStore},
	} {
		paddr, exc := c.Translate(hostarch.Addr(tc.addr), tc.store)
		if paddr != tc.paddr || exc != tc.exc {
			t.Errorf("Translate(%#x, store=%t) = (%#x, %v), want (%#x, %v)", tc.addr, tc.store, paddr, exc, tc.paddr, tc.exc)
		}
	}
}

func TestInvalidateAllClearsTranslations(t *testing.T) {
	c := New(0, 1)
	s := c.SplHigh()
	c.TLBRandom(tlb.EntryHi(0x400000), 0x5000|tlb.LoValid)
	c.TLBInvalidateAll()
	c.Splx(s)
	if _, exc := c.Translate(0x400000, false); exc != ExcTLBL {
		t.Errorf("Translate after TLBInvalidateAll raised %v, want TLBL", exc)
	}
}

func TestFromContext(t *testing.T) {
	c := New(3, 1)
	ctx := context.WithValue(context.Background(), CtxCPU, c)
	if got := FromContext(ctx); got != c {
		t.Errorf("FromContext = %v, want %v", got, c)
	}
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext(Background) = %v, want nil", got)
	}
}
