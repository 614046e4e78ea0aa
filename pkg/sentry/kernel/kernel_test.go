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
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"vmsim.dev/vmsim/pkg/errors/linuxerr"
	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/sentry/mm"
	"vmsim.dev/vmsim/pkg/sentry/pgalloc"
	"vmsim.dev/vmsim/pkg/sentry/platform/cpu"
)

func newTestKernel(t *testing.T, cpus int) *Kernel {
	t.Helper()
	k, err := New(Config{Frames: 256, HeapBytes: 1 << 20, CPUs: cpus, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

// runningProcess creates a process and switches CPU 0 to it.
func runningProcess(t *testing.T, k *Kernel, name string) *Process {
	t.Helper()
	p, err := k.NewProcess(name)
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	if err := k.Switch(0, p); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	return p
}

var testImage = []Segment{
	{Vaddr: 0x400000, Data: []byte("text segment"), Readable: true, Executable: true},
	{Vaddr: 0x10000000, Data: []byte("data"), MemSize: 2 * hostarch.PageSize, Readable: true, Writable: true},
}

func TestNewRejectsNoCPUs(t *testing.T) {
	if _, err := New(Config{Frames: 16, CPUs: 0}); err == nil {
		t.Errorf("New with no CPUs succeeded")
	}
}

func TestCopyAcrossPages(t *testing.T) {
	k := newTestKernel(t, 1)
	p := runningProcess(t, k, "p")
	defer p.Exit()
	if err := p.AddressSpace().DefineRegion(k.Context(0), 0x400000, 3*hostarch.PageSize, true, true, false); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}

	src := bytes.Repeat([]byte("0123456789abcdef"), hostarch.PageSize/8)
	addr := hostarch.Addr(0x400000 + hostarch.PageSize - 100)
	if n, err := p.CopyOut(0, addr, src); err != nil || n != len(src) {
		t.Fatalf("CopyOut = (%d, %v), want (%d, nil)", n, err, len(src))
	}
	dst := make([]byte, len(src))
	if n, err := p.CopyIn(0, addr, dst); err != nil || n != len(dst) {
		t.Fatalf("CopyIn = (%d, %v), want (%d, nil)", n, err, len(dst))
	}
	if !bytes.Equal(src, dst) {
		t.Errorf("CopyIn returned different bytes than CopyOut stored")
	}
	if got := p.AddressSpace().ResidentPages(); got != 3 {
		t.Errorf("ResidentPages = %d, want 3", got)
	}
}

func TestCopyOutStopsAtRegionEnd(t *testing.T) {
	k := newTestKernel(t, 1)
	p := runningProcess(t, k, "p")
	defer p.Exit()
	if err := p.AddressSpace().DefineRegion(k.Context(0), 0x400000, hostarch.PageSize, true, true, false); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}
	n, err := p.CopyOut(0, 0x400ff0, make([]byte, 32))
	if err != linuxerr.EFAULT || n != 16 {
		t.Errorf("CopyOut = (%d, %v), want (16, EFAULT)", n, err)
	}
}

func TestLoad(t *testing.T) {
	k := newTestKernel(t, 1)
	p := runningProcess(t, k, "p")
	defer p.Exit()

	sp, err := p.Load(0, testImage)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sp != hostarch.UserStack {
		t.Errorf("sp = %v, want %v", sp, hostarch.UserStack)
	}

	got := make([]byte, len(testImage[0].Data))
	if _, err := p.CopyIn(0, testImage[0].Vaddr, got); err != nil {
		t.Fatalf("CopyIn of text: %v", err)
	}
	if diff := cmp.Diff(testImage[0].Data, got); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}

	// Text is read-only once loaded.
	if n, err := p.CopyOut(0, testImage[0].Vaddr, []byte("x")); err != linuxerr.EFAULT || n != 0 {
		t.Errorf("CopyOut to text = (%d, %v), want (0, EFAULT)", n, err)
	}
	// Data past the file image is zero and writable.
	tail := make([]byte, 8)
	if _, err := p.CopyIn(0, 0x10001000, tail); err != nil || !bytes.Equal(tail, make([]byte, 8)) {
		t.Errorf("CopyIn of bss = (%v, %v), want zeroes", tail, err)
	}
	if _, err := p.CopyOut(0, 0x10001000, []byte("bss")); err != nil {
		t.Errorf("CopyOut to bss: %v", err)
	}
	// The stack is writable right below sp.
	if _, err := p.CopyOut(0, sp-4, []byte("word")); err != nil {
		t.Errorf("CopyOut to stack: %v", err)
	}
	regions := p.AddressSpace().Regions()
	if len(regions) != 3 {
		t.Fatalf("got %d regions, want 3: %v", len(regions), regions)
	}
	for _, r := range regions {
		if r.Writable != r.SavedWritable {
			t.Errorf("region %v still has load permissions", r)
		}
	}
}

func TestAccessErrors(t *testing.T) {
	k := newTestKernel(t, 2)
	p := runningProcess(t, k, "p")
	defer p.Exit()
	if _, err := p.Load(0, testImage); err != nil {
		t.Fatalf("Load: %v", err)
	}

	buf := make([]byte, 4)
	if _, err := p.CopyIn(1, 0x400000, buf); err != ErrNotRunning {
		t.Errorf("CopyIn on a CPU not running p got %v, want ErrNotRunning", err)
	}
	if _, err := p.CopyIn(5, 0x400000, buf); err == nil {
		t.Errorf("CopyIn on a missing CPU succeeded")
	}
	if _, err := p.CopyIn(0, hostarch.KSeg0, buf); err != linuxerr.EFAULT {
		t.Errorf("CopyIn of a kernel address got %v, want EFAULT", err)
	}
	if _, err := p.CopyIn(0, 0x20000000, buf); err != linuxerr.EFAULT {
		t.Errorf("CopyIn outside every region got %v, want EFAULT", err)
	}
	if _, err := p.CopyIn(0, 0, buf); err != linuxerr.EINVAL {
		t.Errorf("CopyIn at address zero got %v, want EINVAL", err)
	}
}

func TestForkAndExit(t *testing.T) {
	k := newTestKernel(t, 2)
	parent := runningProcess(t, k, "parent")
	if _, err := parent.Load(0, testImage); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := parent.CopyOut(0, 0x10000000, []byte("DATA")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}

	child, err := parent.Fork("child")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if child.PID() == parent.PID() {
		t.Errorf("child shares PID %d with parent", child.PID())
	}
	if err := k.Switch(1, child); err != nil {
		t.Fatalf("Switch: %v", err)
	}

	got := make([]byte, 4)
	if _, err := child.CopyIn(1, 0x10000000, got); err != nil || string(got) != "DATA" {
		t.Fatalf("child CopyIn = (%q, %v), want (\"DATA\", nil)", got, err)
	}
	if _, err := child.CopyOut(1, 0x10000000, []byte("kid!")); err != nil {
		t.Fatalf("child CopyOut: %v", err)
	}
	if _, err := parent.CopyIn(0, 0x10000000, got); err != nil || string(got) != "DATA" {
		t.Errorf("parent sees %q after child write, want \"DATA\"", got)
	}
	// Text stays read-only in the child.
	if _, err := child.CopyOut(1, 0x400000, []byte("x")); err != linuxerr.EFAULT {
		t.Errorf("child CopyOut to text got %v, want EFAULT", err)
	}

	var pids []int32
	for _, p := range k.Processes() {
		pids = append(pids, p.PID())
	}
	if diff := cmp.Diff([]int32{parent.PID(), child.PID()}, pids); diff != "" {
		t.Errorf("Processes mismatch (-want +got):\n%s", diff)
	}

	child.Exit()
	child.Exit()
	if k.Running(1) != nil {
		t.Errorf("CPU 1 still runs %v after Exit", k.Running(1))
	}
	if err := k.Switch(1, child); err == nil {
		t.Errorf("Switch to an exited process succeeded")
	}
	for i, e := range k.CPU(1).TLBEntries() {
		if e.Valid() {
			t.Errorf("CPU 1 slot %d still valid after Exit: %v", i, e)
		}
	}

	k.Shutdown()
	if diff := cmp.Diff(pgalloc.Usage{}, k.MemoryFile().Usage()); diff != "" {
		t.Errorf("Shutdown leaked (-want +got):\n%s", diff)
	}
	if k.Process(parent.PID()) != nil {
		t.Errorf("parent still registered after Shutdown")
	}
}

func TestSwitchFlushesTLB(t *testing.T) {
	k := newTestKernel(t, 1)
	p := runningProcess(t, k, "p")
	defer p.Exit()
	if _, err := p.Load(0, testImage); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := p.CopyIn(0, 0x400000, make([]byte, 4)); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	q, err := k.NewProcess("q")
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	defer q.Exit()
	if err := k.Switch(0, q); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if _, exc := k.CPU(0).Translate(0x400000, false); exc != cpu.ExcTLBL {
		t.Errorf("p's translation survived the switch: %v", exc)
	}
	// q has no regions, so the same address faults.
	if _, err := q.CopyIn(0, 0x400000, make([]byte, 4)); err != linuxerr.EFAULT {
		t.Errorf("q CopyIn got %v, want EFAULT", err)
	}
}

func TestContextValues(t *testing.T) {
	k := newTestKernel(t, 1)
	ctx := k.Context(0)
	if as := mm.FromContext(ctx); as != nil {
		t.Errorf("idle CPU context has address space %p", as)
	}
	if KernelFromContext(ctx) != k || pgalloc.MemoryFileFromContext(ctx) != k.MemoryFile() || cpu.FromContext(ctx) != k.CPU(0) {
		t.Errorf("CPU context does not carry the machine")
	}
	p := runningProcess(t, k, "p")
	defer p.Exit()
	if as := mm.FromContext(ctx); as != p.AddressSpace() {
		t.Errorf("CPU context address space = %p, want %p", as, p.AddressSpace())
	}
	if cpu.FromContext(k.SupervisorContext()) != nil {
		t.Errorf("supervisor context carries a CPU")
	}
}
