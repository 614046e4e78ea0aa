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

package kernel

import (
	"fmt"

	"vmsim.dev/vmsim/pkg/errors/linuxerr"
	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/sentry/context"
	"vmsim.dev/vmsim/pkg/sentry/mm"
	"vmsim.dev/vmsim/pkg/sentry/platform/cpu"
)

// maxTranslateAttempts bounds the retries of one access. A successful fault
// loads the translation, so the second attempt always succeeds.
const maxTranslateAttempts = 2

// faultKind maps a translation exception to the fault it reports.
func faultKind(exc cpu.Exception) (mm.FaultKind, bool) {
	switch exc {
	case cpu.ExcTLBL:
		return mm.FaultRead, true
	case cpu.ExcTLBS:
		return mm.FaultWrite, true
	case cpu.ExcMod:
		return mm.FaultReadOnly, true
	default:
		return 0, false
	}
}

// translate returns the physical address of a user access to addr on the
// CPU in ctx, dispatching any trap the access raises to the fault handler
// and retrying it.
func translate(ctx context.Context, addr hostarch.Addr, store bool) (uint32, error) {
	c := cpu.FromContext(ctx)
	for attempt := 0; ; attempt++ {
		paddr, exc := c.Translate(addr, store)
		if exc == cpu.ExcNone {
			return paddr, nil
		}
		if attempt == maxTranslateAttempts {
			panic(fmt.Sprintf("%v: access to %v raised %v after the fault was handled", c, addr, exc))
		}
		kind, ok := faultKind(exc)
		if !ok {
			// Address error: a user access to kernel space.
			return 0, linuxerr.EFAULT
		}
		if err := mm.HandleFault(ctx, kind, addr); err != nil {
			return 0, err
		}
	}
}
