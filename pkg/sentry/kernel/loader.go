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

	"vmsim.dev/vmsim/pkg/hostarch"
)

// Segment is a loadable part of a program image.
type Segment struct {
	// Vaddr is where the segment is loaded.
	Vaddr hostarch.Addr

	// Data is copied to Vaddr.
	Data []byte

	// MemSize is the size of the segment in memory. Bytes past len(Data)
	// are zero. If MemSize is less than len(Data), len(Data) is used.
	MemSize uint64

	Readable, Writable, Executable bool
}

func (s Segment) memSize() uint64 {
	return max(s.MemSize, uint64(len(s.Data)))
}

// Load defines a region per segment, fills them while the address space is
// prepared for loading, restores their permissions and defines the stack.
// It returns the initial stack pointer.
//
// Preconditions: p is running on CPU id.
func (p *Process) Load(id int, segs []Segment) (hostarch.Addr, error) {
	ctx, err := p.userContext(id)
	if err != nil {
		return 0, err
	}
	as := p.AddressSpace()
	for _, s := range segs {
		if err := as.DefineRegion(ctx, s.Vaddr, s.memSize(), s.Readable, s.Writable, s.Executable); err != nil {
			return 0, fmt.Errorf("defining segment at %v: %w", s.Vaddr, err)
		}
	}
	if err := as.PrepareLoad(ctx); err != nil {
		return 0, err
	}
	for _, s := range segs {
		if _, err := p.CopyOut(id, s.Vaddr, s.Data); err != nil {
			return 0, fmt.Errorf("loading segment at %v: %w", s.Vaddr, err)
		}
	}
	if err := as.CompleteLoad(ctx); err != nil {
		return 0, err
	}
	sp, err := as.DefineStack(ctx)
	if err != nil {
		return 0, fmt.Errorf("defining stack: %w", err)
	}
	ctx.Debugf("Loaded %d segments into %v, sp=%v", len(segs), p, sp)
	return sp, nil
}
