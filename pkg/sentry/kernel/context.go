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
	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/sentry/context"
	"vmsim.dev/vmsim/pkg/sentry/mm"
	"vmsim.dev/vmsim/pkg/sentry/pgalloc"
	"vmsim.dev/vmsim/pkg/sentry/platform/cpu"
)

// contextID is the kernel package's type for context.Context.Value keys.
type contextID int

const (
	// CtxKernel is a Context.Value key for a Kernel.
	CtxKernel contextID = iota
)

// KernelFromContext returns the Kernel in which ctx is executing, or nil if
// there is no such Kernel.
func KernelFromContext(ctx context.Context) *Kernel {
	if v := ctx.Value(CtxKernel); v != nil {
		return v.(*Kernel)
	}
	return nil
}

// Context returns a context executing on CPU id. Its current address space
// is that of the process running on the CPU.
func (k *Kernel) Context(id int) context.Context {
	return &cpuContext{
		Logger: log.Log(),
		k:      k,
		id:     id,
	}
}

// SupervisorContext returns a context with no CPU and no current address
// space, suitable for creating and forking address spaces.
func (k *Kernel) SupervisorContext() context.Context {
	return &supervisorContext{
		Logger: log.Log(),
		k:      k,
	}
}

type supervisorContext struct {
	log.Logger
	k *Kernel
}

// Value implements context.Context.
func (ctx *supervisorContext) Value(key any) any {
	switch key {
	case CtxKernel:
		return ctx.k
	case pgalloc.CtxMemoryFile:
		return ctx.k.mf
	default:
		return nil
	}
}

type cpuContext struct {
	log.Logger
	k  *Kernel
	id int
}

// Value implements context.Context.
func (ctx *cpuContext) Value(key any) any {
	switch key {
	case CtxKernel:
		return ctx.k
	case pgalloc.CtxMemoryFile:
		return ctx.k.mf
	case cpu.CtxCPU:
		return ctx.k.cpus[ctx.id]
	case mm.CtxAddressSpace:
		if p := ctx.k.Running(ctx.id); p != nil {
			if as := p.AddressSpace(); as != nil {
				return as
			}
		}
		return nil
	case context.CtxProcessID:
		if p := ctx.k.Running(ctx.id); p != nil {
			return p.pid
		}
		return nil
	default:
		return nil
	}
}
