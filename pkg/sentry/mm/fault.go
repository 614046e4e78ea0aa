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
	"time"

	"vmsim.dev/vmsim/pkg/errors/linuxerr"
	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/ring0/pagetables"
	"vmsim.dev/vmsim/pkg/sentry/context"
	"vmsim.dev/vmsim/pkg/sentry/platform/cpu"
	"vmsim.dev/vmsim/pkg/sentry/platform/tlb"
)

// FaultKind is the cause of a translation fault.
type FaultKind int

// Fault kinds, numbered as the kernel's VM_FAULT_* codes.
const (
	// FaultRead is a load that missed in the TLB.
	FaultRead FaultKind = 0

	// FaultWrite is a store that missed in the TLB.
	FaultWrite FaultKind = 1

	// FaultReadOnly is a store through a TLB entry without the dirty bit.
	FaultReadOnly FaultKind = 2
)

// String implements fmt.Stringer.String.
func (k FaultKind) String() string {
	switch k {
	case FaultRead:
		return "read"
	case FaultWrite:
		return "write"
	case FaultReadOnly:
		return "readonly"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// metricLabel returns the value of the kind field of the faults metric.
func (k FaultKind) metricLabel() string {
	switch k {
	case FaultRead, FaultWrite, FaultReadOnly:
		return k.String()
	default:
		return "invalid"
	}
}

// protectionLog reports faults the process cannot recover from. A misbehaving
// process can raise these in a loop, so they are rate limited.
var protectionLog = log.BasicRateLimitedLogger(time.Second)

// HandleFault resolves a translation fault of the given kind at addr in the
// address space current in ctx, loading the translation into the TLB of the
// CPU in ctx.
//
// HandleFault returns EFAULT if there is no current address space, if the
// fault is a store to a read-only page, or if addr lies outside every region.
// It returns EINVAL for an unknown kind or a zero address, and ENOMEM if a
// table level or frame cannot be allocated.
func HandleFault(ctx context.Context, kind FaultKind, addr hostarch.Addr) error {
	err := handleFault(ctx, kind, addr)
	faults.Increment(kind.metricLabel(), faultResult(err))
	return err
}

func faultResult(err error) string {
	switch err {
	case nil:
		return "ok"
	case linuxerr.EFAULT:
		return "efault"
	case linuxerr.EINVAL:
		return "einval"
	case linuxerr.ENOMEM:
		return "enomem"
	default:
		panic(fmt.Sprintf("unexpected fault error %v", err))
	}
}

func handleFault(ctx context.Context, kind FaultKind, addr hostarch.Addr) error {
	as := FromContext(ctx)
	if as == nil {
		return linuxerr.EFAULT
	}
	switch kind {
	case FaultReadOnly:
		protectionLog.Warningf("Store to read-only page at %v", addr)
		return linuxerr.EFAULT
	case FaultRead, FaultWrite:
	default:
		return linuxerr.EINVAL
	}
	if addr == 0 {
		return linuxerr.EINVAL
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	if as.destroyed {
		return linuxerr.EFAULT
	}

	idx := pagetables.IndicesOf(addr)
	// Branches allocated here stay even if a later step fails.
	if err := as.pt.Ensure(idx); err != nil {
		return err
	}
	pte, _ := as.pt.Leaf(idx)
	if !pte.Present() {
		r := as.findRegionLocked(addr)
		if r == nil {
			protectionLog.Warningf("%v fault at %v outside every region", kind, addr)
			return linuxerr.EFAULT
		}
		fr, err := as.mf.Allocate(1)
		if err != nil {
			return err
		}
		as.mf.Zero(fr)
		as.pt.SetLeaf(idx, pagetables.PTE{Frame: fr, Valid: true, Dirty: r.Writable})
		if log.IsLogging(log.Debug) {
			ctx.Debugf("%v fault at %v: mapped %v in region %v", kind, addr, fr, r.Region)
		}
	}

	pte, _ = as.pt.Leaf(idx)
	c := cpu.FromContext(ctx)
	if c == nil {
		panic("context has no CPU")
	}
	s := c.SplHigh()
	c.TLBRandom(tlb.EntryHi(addr), pte.EntryLo())
	c.Splx(s)
	return nil
}
