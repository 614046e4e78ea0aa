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
	"sync"

	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/sentry/mm"
)

// Process is a user program with its own address space.
type Process struct {
	k    *Kernel
	pid  int32
	name string

	// mu protects as.
	mu sync.Mutex

	// as is the address space. It is nil once the process has exited.
	as *mm.AddressSpace
}

// PID returns the process ID.
func (p *Process) PID() int32 {
	return p.pid
}

// Name returns the process name.
func (p *Process) Name() string {
	return p.name
}

// String implements fmt.Stringer.String.
func (p *Process) String() string {
	if p == nil {
		return "<idle>"
	}
	return fmt.Sprintf("%s[%d]", p.name, p.pid)
}

// AddressSpace returns the address space of p, or nil if p has exited.
func (p *Process) AddressSpace() *mm.AddressSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.as
}

// NewProcess creates a process with an empty address space.
func (k *Kernel) NewProcess(name string) (*Process, error) {
	as, err := mm.NewAddressSpace(k.SupervisorContext())
	if err != nil {
		return nil, err
	}
	return k.register(name, as), nil
}

func (k *Kernel) register(name string, as *mm.AddressSpace) *Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	p := &Process{
		k:    k,
		pid:  k.nextPID,
		name: name,
		as:   as,
	}
	k.nextPID++
	k.processes[p.pid] = p
	log.Debugf("Created process %v", p)
	return p
}

// Fork creates a child of p with an eager copy of p's address space.
func (p *Process) Fork(name string) (*Process, error) {
	as := p.AddressSpace()
	if as == nil {
		return nil, fmt.Errorf("fork of exited process %v", p)
	}
	child, err := as.Fork(p.k.SupervisorContext())
	if err != nil {
		return nil, err
	}
	return p.k.register(name, child), nil
}

// Exit removes p from every CPU, invalidates those CPUs' TLBs, and destroys
// its address space. Exit of an exited process is a no-op.
//
// Preconditions: the caller owns every CPU p is running on.
func (p *Process) Exit() {
	k := p.k
	k.mu.Lock()
	delete(k.processes, p.pid)
	cs := k.descheduleLocked(p)
	k.mu.Unlock()

	for _, c := range cs {
		// The frames behind these entries are about to be freed.
		s := c.SplHigh()
		c.TLBInvalidateAll()
		c.Splx(s)
	}

	p.mu.Lock()
	as := p.as
	p.as = nil
	p.mu.Unlock()
	if as != nil {
		as.Destroy(k.SupervisorContext())
		log.Debugf("Process %v exited", p)
	}
}
