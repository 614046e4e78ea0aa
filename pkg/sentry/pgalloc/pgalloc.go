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

// Package pgalloc models the machine's physical memory: a fixed number of
// page frames handed out by a first-fit allocator, and a byte budget standing
// in for the kernel heap.
package pgalloc

import (
	"fmt"
	"sync"

	"vmsim.dev/vmsim/pkg/bitmap"
	"vmsim.dev/vmsim/pkg/errors/linuxerr"
	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/metric"
)

var (
	framesAllocated = metric.MustCreateNewUint64Metric("/vm/frames_allocated", "Number of physical frames handed out.")
	framesFreed     = metric.MustCreateNewUint64Metric("/vm/frames_freed", "Number of physical frames returned.")
)

// Frame is a physical page frame number.
type Frame uint32

// Paddr returns the physical address of the start of f.
func (f Frame) Paddr() uint32 {
	return uint32(f) << hostarch.PageShift
}

// String implements fmt.Stringer.String.
func (f Frame) String() string {
	return fmt.Sprintf("frame %d", uint32(f))
}

// PaddrToKvaddr returns the kernel direct-mapped address of paddr.
func PaddrToKvaddr(paddr uint32) hostarch.Addr {
	return hostarch.Addr(paddr) + hostarch.KSeg0
}

// KvaddrToPaddr is the inverse of PaddrToKvaddr.
func KvaddrToPaddr(kvaddr hostarch.Addr) uint32 {
	return uint32(kvaddr - hostarch.KSeg0)
}

// Options configures a MemoryFile.
type Options struct {
	// Frames is the number of physical frames, including the reserved
	// frame 0.
	Frames uint32

	// HeapBytes is the size of the kernel heap budget.
	HeapBytes uint64
}

// Usage is a point-in-time accounting of a MemoryFile.
type Usage struct {
	// Frames is the number of frames in use, excluding frame 0.
	Frames uint32

	// HeapBytes is the number of kernel heap bytes charged.
	HeapBytes uint64
}

// MemoryFile is the machine's physical memory.
//
// MemoryFile is safe for concurrent use.
type MemoryFile struct {
	// data backs every frame. It is immutable in length.
	data []byte

	// heap is the kernel heap budget.
	heap Heap

	// mu protects the fields below.
	mu sync.Mutex

	// used tracks allocated frames.
	used bitmap.Bitmap

	// runs maps the first frame of each allocation to its length.
	runs map[Frame]uint32
}

// New returns a MemoryFile with the given geometry.
func New(opts Options) (*MemoryFile, error) {
	if opts.Frames < 2 {
		return nil, fmt.Errorf("need at least 2 frames, got %d", opts.Frames)
	}
	if opts.Frames > 1<<hostarch.PageNumberBits {
		return nil, fmt.Errorf("%d frames exceed the physical address space", opts.Frames)
	}
	f := &MemoryFile{
		data: make([]byte, uint64(opts.Frames)*hostarch.PageSize),
		heap: Heap{limit: opts.HeapBytes},
		used: bitmap.New(opts.Frames),
		runs: make(map[Frame]uint32),
	}
	// Frame 0 belongs to the kernel; a zero frame number in a PTE always
	// means "unmapped".
	f.used.Add(0)
	log.Debugf("Physical memory: %d frames, %d heap bytes", opts.Frames, opts.HeapBytes)
	return f, nil
}

// Allocate returns the first run of n contiguous free frames. It returns
// ENOMEM if no such run exists.
func (f *MemoryFile) Allocate(n uint32) (Frame, error) {
	if n == 0 {
		return 0, linuxerr.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	first, err := f.used.FirstZeroRun(1, n)
	if err != nil {
		return 0, linuxerr.ENOMEM
	}
	f.used.AddRange(first, first+n)
	f.runs[Frame(first)] = n
	framesAllocated.IncrementBy(uint64(n))
	return Frame(first), nil
}

// Free returns the run of frames starting at fr.
//
// Preconditions: fr was returned by Allocate and not yet freed.
func (f *MemoryFile) Free(fr Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.runs[fr]
	if !ok {
		panic(fmt.Sprintf("freeing %v which is not the start of an allocation", fr))
	}
	delete(f.runs, fr)
	f.used.RemoveRange(uint32(fr), uint32(fr)+n)
	framesFreed.IncrementBy(uint64(n))
}

// Bytes returns the backing bytes of frame fr.
//
// Preconditions: fr is allocated.
func (f *MemoryFile) Bytes(fr Frame) []byte {
	off := uint64(fr) * hostarch.PageSize
	return f.data[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// Zero fills frame fr with zeroes.
func (f *MemoryFile) Zero(fr Frame) {
	clear(f.Bytes(fr))
}

// Frames returns the total number of frames, including frame 0.
func (f *MemoryFile) Frames() uint32 {
	return f.used.Size()
}

// Heap returns the kernel heap budget.
func (f *MemoryFile) Heap() *Heap {
	return &f.heap
}

// Usage returns the current usage of f.
func (f *MemoryFile) Usage() Usage {
	f.mu.Lock()
	frames := f.used.Count() - 1
	f.mu.Unlock()
	return Usage{
		Frames:    frames,
		HeapBytes: f.heap.Used(),
	}
}
