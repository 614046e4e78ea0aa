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

// Package kernel provides the simulated machine's process layer: it boots
// physical memory and CPUs, creates and forks processes, schedules them onto
// CPUs, and dispatches the traps their memory accesses raise to the virtual
// memory system.
//
// Lock order:
//
//	Kernel.mu
//	  Process.mu
//	    mm.AddressSpace.mu
package kernel

import (
	"fmt"
	"sort"
	"sync"

	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/sentry/mm"
	"vmsim.dev/vmsim/pkg/sentry/pgalloc"
	"vmsim.dev/vmsim/pkg/sentry/platform/cpu"
)

// Config describes the machine.
type Config struct {
	// Frames is the number of physical frames.
	Frames uint32

	// HeapBytes is the kernel heap budget.
	HeapBytes uint64

	// CPUs is the number of processors.
	CPUs int

	// Seed drives TLB replacement. CPU i uses Seed+i.
	Seed int64
}

// Kernel is the simulated machine.
type Kernel struct {
	// mf and cpus are immutable.
	mf   *pgalloc.MemoryFile
	cpus []*cpu.CPU

	// mu protects the fields below.
	mu sync.Mutex

	// nextPID is the PID of the next process.
	nextPID int32

	// processes maps PIDs to live processes.
	processes map[int32]*Process

	// running is the process each CPU is running, or nil.
	running []*Process
}

// New boots a machine described by cfg.
func New(cfg Config) (*Kernel, error) {
	if cfg.CPUs < 1 {
		return nil, fmt.Errorf("need at least one CPU, got %d", cfg.CPUs)
	}
	mf, err := pgalloc.New(pgalloc.Options{Frames: cfg.Frames, HeapBytes: cfg.HeapBytes})
	if err != nil {
		return nil, fmt.Errorf("creating physical memory: %w", err)
	}
	k := &Kernel{
		mf:        mf,
		cpus:      make([]*cpu.CPU, cfg.CPUs),
		nextPID:   1,
		processes: make(map[int32]*Process),
		running:   make([]*Process, cfg.CPUs),
	}
	for i := range k.cpus {
		k.cpus[i] = cpu.New(i, cfg.Seed+int64(i))
	}
	log.Infof("Booted: %d CPUs, %d frames (%d KiB), %d bytes of kernel heap",
		cfg.CPUs, cfg.Frames, uint64(cfg.Frames)*hostarch.PageSize/1024, cfg.HeapBytes)
	return k, nil
}

// MemoryFile returns the machine's physical memory.
func (k *Kernel) MemoryFile() *pgalloc.MemoryFile {
	return k.mf
}

// CPUs returns the number of processors.
func (k *Kernel) CPUs() int {
	return len(k.cpus)
}

// CPU returns processor id.
func (k *Kernel) CPU(id int) *cpu.CPU {
	return k.cpus[id]
}

// Running returns the process running on CPU id, or nil.
func (k *Kernel) Running(id int) *Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running[id]
}

// Process returns the live process with the given PID, or nil.
func (k *Kernel) Process(pid int32) *Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.processes[pid]
}

// Processes returns every live process in PID order.
func (k *Kernel) Processes() []*Process {
	k.mu.Lock()
	ps := make([]*Process, 0, len(k.processes))
	for _, p := range k.processes {
		ps = append(ps, p)
	}
	k.mu.Unlock()
	sort.Slice(ps, func(i, j int) bool { return ps[i].pid < ps[j].pid })
	return ps
}

// Switch makes p the process running on CPU id. The previous process is
// deactivated and p's address space is activated. p may be nil to leave the
// CPU idle.
//
// Preconditions: the caller owns CPU id.
func (k *Kernel) Switch(id int, p *Process) error {
	if p != nil && p.AddressSpace() == nil {
		return fmt.Errorf("switch to exited process %v", p)
	}
	mm.Deactivate(k.Context(id))
	k.mu.Lock()
	prev := k.running[id]
	k.running[id] = p
	k.mu.Unlock()
	mm.Activate(k.Context(id))
	if prev != p && log.IsLogging(log.Debug) {
		log.Debugf("%v: switched from %v to %v", k.cpus[id], prev, p)
	}
	return nil
}

// descheduleLocked removes p from every CPU it runs on and returns those
// CPUs.
//
// Preconditions: k.mu is locked.
func (k *Kernel) descheduleLocked(p *Process) []*cpu.CPU {
	var cs []*cpu.CPU
	for id, r := range k.running {
		if r == p {
			k.running[id] = nil
			cs = append(cs, k.cpus[id])
		}
	}
	return cs
}

// Shutdown exits every live process.
func (k *Kernel) Shutdown() {
	for _, p := range k.Processes() {
		p.Exit()
	}
	u := k.mf.Usage()
	log.Infof("Shut down: %d frames and %d heap bytes still in use", u.Frames, u.HeapBytes)
}
