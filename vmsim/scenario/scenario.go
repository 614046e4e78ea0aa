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

// Package scenario runs scripted sequences of virtual memory operations
// against a simulated machine. Scripts are YAML documents:
//
//	name: fault in a data page
//	steps:
//	- op: create
//	  name: init
//	- op: switch
//	  process: init
//	- op: define_region
//	  process: init
//	  addr: 0x400000
//	  size: 0x2000
//	  perms: rw
//	- op: store
//	  process: init
//	  addr: 0x400010
//	  data: hello
//	  resident: 1
//	- op: store
//	  process: init
//	  addr: 0x500000
//	  data: x
//	  expect_error: EFAULT
//
// Every step names an operation and the process it applies to. A step
// succeeds if the operation returns no error, or if it fails with exactly
// the errno named by expect_error. The optional resident, frames and heap
// fields are checked after the step. resident applies to the step's process,
// or to the process the step created.
package scenario

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"
	"vmsim.dev/vmsim/pkg/errors"
	"vmsim.dev/vmsim/pkg/errors/linuxerr"
	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/sentry/kernel"
)

// Scenario is a script.
type Scenario struct {
	// Name describes the scenario.
	Name string `yaml:"name"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// Step is a single operation.
type Step struct {
	// Op is one of the operations in ops.
	Op string `yaml:"op"`

	// Process names the process the operation applies to.
	Process string `yaml:"process,omitempty"`

	// Name is the name of the process created by create and fork.
	Name string `yaml:"name,omitempty"`

	// CPU is the processor the operation runs on.
	CPU int `yaml:"cpu,omitempty"`

	// Addr is the user address of define_region, store and load.
	Addr uint64 `yaml:"addr,omitempty"`

	// Size is the byte size of define_region.
	Size uint64 `yaml:"size,omitempty"`

	// Perms is a subset of "rwx" for define_region.
	Perms string `yaml:"perms,omitempty"`

	// Data is stored by store, Repeat times.
	Data   string `yaml:"data,omitempty"`
	Repeat int    `yaml:"repeat,omitempty"`

	// Len is the number of bytes read by load.
	Len int `yaml:"len,omitempty"`

	// Expect is the data load must return.
	Expect *string `yaml:"expect,omitempty"`

	// Segments are loaded by exec.
	Segments []Segment `yaml:"segments,omitempty"`

	// ExpectError is the errno name the operation must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Resident is the number of pages the process must have mapped after
	// the step.
	Resident *int `yaml:"resident,omitempty"`

	// Frames and Heap are the machine-wide frames and heap bytes that must
	// be in use after the step.
	Frames *uint32 `yaml:"frames,omitempty"`
	Heap   *uint64 `yaml:"heap,omitempty"`
}

// Segment is a program segment loaded by exec.
type Segment struct {
	Addr  uint64 `yaml:"addr"`
	Data  string `yaml:"data,omitempty"`
	Size  uint64 `yaml:"size,omitempty"`
	Perms string `yaml:"perms"`
}

// Parse decodes a scenario. Unknown fields are errors.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}
	for i, st := range s.Steps {
		if _, ok := ops[st.Op]; !ok {
			return nil, fmt.Errorf("step %d: unknown op %q", i, st.Op)
		}
	}
	return &s, nil
}

// Clone returns a deep copy of s. Expectations held by pointer are not shared
// with the copy.
func (s *Scenario) Clone() *Scenario {
	return deepcopy.Copy(s).(*Scenario)
}

// Load reads and parses the scenario at path.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Runner runs scenarios on a kernel.
type Runner struct {
	k   *kernel.Kernel
	out io.Writer

	// procs maps process names to live processes.
	procs map[string]*kernel.Process
}

// NewRunner returns a Runner that reports each step to out.
func NewRunner(k *kernel.Kernel, out io.Writer) *Runner {
	return &Runner{
		k:     k,
		out:   out,
		procs: make(map[string]*kernel.Process),
	}
}

// Run runs every step of s and stops at the first step whose outcome differs
// from its expectation. s is not modified.
func (r *Runner) Run(s *Scenario) error {
	s = s.Clone()
	log.Infof("Running scenario %q, %d steps", s.Name, len(s.Steps))
	for i := range s.Steps {
		st := &s.Steps[i]
		output, err := ops[st.Op](r, st)
		if cerr := r.check(st, err); cerr != nil {
			fmt.Fprintf(r.out, "%3d %-14s FAIL %v\n", i, st.Op, cerr)
			return fmt.Errorf("step %d (%s): %w", i, st.Op, cerr)
		}
		result := "ok"
		if err != nil {
			result = errName(err)
		}
		fmt.Fprintf(r.out, "%3d %-14s %s%s\n", i, st.Op, result, output)
	}
	return nil
}

// check compares the outcome of st with its expectations.
func (r *Runner) check(st *Step, err error) error {
	switch {
	case st.ExpectError == "" && err != nil:
		return err
	case st.ExpectError != "" && err == nil:
		return fmt.Errorf("succeeded, want %s", st.ExpectError)
	case st.ExpectError != "" && errName(err) != st.ExpectError:
		return fmt.Errorf("got %v, want %s", err, st.ExpectError)
	}
	if st.Resident != nil {
		name := st.Process
		if name == "" {
			name = st.Name
		}
		p, err := r.process(name)
		if err != nil {
			return err
		}
		as := p.AddressSpace()
		if as == nil {
			return fmt.Errorf("process %v has exited", p)
		}
		if got := as.ResidentPages(); got != *st.Resident {
			return fmt.Errorf("%v has %d resident pages, want %d", p, got, *st.Resident)
		}
	}
	u := r.k.MemoryFile().Usage()
	if st.Frames != nil && u.Frames != *st.Frames {
		return fmt.Errorf("%d frames in use, want %d", u.Frames, *st.Frames)
	}
	if st.Heap != nil && u.HeapBytes != *st.Heap {
		return fmt.Errorf("%d heap bytes in use, want %d", u.HeapBytes, *st.Heap)
	}
	return nil
}

// Close exits every process the runner created that is still alive.
func (r *Runner) Close() {
	for name, p := range r.procs {
		p.Exit()
		delete(r.procs, name)
	}
}

// errName returns the errno name of a kernel error, looking through
// wrapping.
func errName(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Name()
	}
	return linuxerr.Name(err)
}

func parsePerms(perms string) (r, w, x bool, err error) {
	for _, c := range perms {
		switch c {
		case 'r':
			r = true
		case 'w':
			w = true
		case 'x':
			x = true
		case '-':
		default:
			return false, false, false, fmt.Errorf("invalid permission %q in %q", c, perms)
		}
	}
	return r, w, x, nil
}

func (r *Runner) process(name string) (*kernel.Process, error) {
	p, ok := r.procs[name]
	if !ok {
		return nil, fmt.Errorf("no process %q", name)
	}
	return p, nil
}

func (r *Runner) addProcess(p *kernel.Process) error {
	if _, ok := r.procs[p.Name()]; ok {
		p.Exit()
		return fmt.Errorf("process %q already exists", p.Name())
	}
	r.procs[p.Name()] = p
	return nil
}

func (r *Runner) checkCPU(id int) error {
	if id < 0 || id >= r.k.CPUs() {
		return fmt.Errorf("no CPU %d", id)
	}
	return nil
}

// data returns the bytes a store writes.
func (st *Step) data() []byte {
	n := max(st.Repeat, 1)
	return bytes.Repeat([]byte(st.Data), n)
}

// quote formats user data for the report, eliding the middle of long
// buffers.
func quote(b []byte) string {
	const limit = 32
	if len(b) <= limit {
		return fmt.Sprintf("%q", b)
	}
	return fmt.Sprintf("%q...(%d bytes)", b[:limit], len(b))
}

// indent prefixes every line of s for the report.
func indent(s string) string {
	s = strings.TrimRight(s, "\n")
	return "\n    " + strings.ReplaceAll(s, "\n", "\n    ")
}

func addr(v uint64) (hostarch.Addr, error) {
	if v > 1<<32-1 {
		return 0, fmt.Errorf("address %#x does not fit in 32 bits", v)
	}
	return hostarch.Addr(v), nil
}
