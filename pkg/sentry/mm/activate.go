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
	"vmsim.dev/vmsim/pkg/sentry/context"
	"vmsim.dev/vmsim/pkg/sentry/platform/cpu"
)

// Activate makes the address space current in ctx the one translated by the
// CPU in ctx by invalidating every TLB slot. It does nothing if ctx has no
// current address space.
func Activate(ctx context.Context) {
	if FromContext(ctx) == nil {
		return
	}
	c := cpu.FromContext(ctx)
	if c == nil {
		panic("context has no CPU")
	}
	// Disable interrupts on this CPU while frobbing the TLB.
	s := c.SplHigh()
	c.TLBInvalidateAll()
	c.Splx(s)
}

// Deactivate is called when the address space current in ctx stops running.
// Activate of the next address space flushes the TLB, so there is nothing to
// do.
func Deactivate(ctx context.Context) {}
