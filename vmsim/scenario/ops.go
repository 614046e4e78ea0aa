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

package scenario

import (
	"fmt"

	"vmsim.dev/vmsim/pkg/sentry/kernel"
	"vmsim.dev/vmsim/pkg/sentry/mm"
)

// opFunc runs a step. The returned string is appended to the step's report
// line.
type opFunc func(r *Runner, st *Step) (string, error)

// ops maps op names to their implementations.
var ops = map[string]opFunc{
	"create":        (*Runner).create,
	"define_region": (*Runner).defineRegion,
	"prepare_load":  (*Runner).prepareLoad,
	"complete_load": (*Runner).completeLoad,
	"define_stack":  (*Runner).defineStack,
	"exec":          (*Runner).exec,
	"store":         (*Runner).store,
	"load":          (*Runner).load,
	"fork":          (*Runner).fork,
	"switch":        (*Runner).switchTo,
	"exit":          (*Runner).exit,
	"dump":          (*Runner).dump,
	"usage":         (*Runner).usage,
}

func (r *Runner) create(st *Step) (string, error) {
	p, err := r.k.NewProcess(st.Name)
	if err != nil {
		return "", err
	}
	if err := r.addProcess(p); err != nil {
		return "", err
	}
	return " " + p.String(), nil
}

// addressSpace returns the live address space of the step's process and the
// context of the step's CPU.
func (r *Runner) addressSpace(st *Step) (*mm.AddressSpace, *kernel.Process, error) {
	if err := r.checkCPU(st.CPU); err != nil {
		return nil, nil, err
	}
	p, err := r.process(st.Process)
	if err != nil {
		return nil, nil, err
	}
	as := p.AddressSpace()
	if as == nil {
		return nil, nil, fmt.Errorf("process %v has exited", p)
	}
	return as, p, nil
}

func (r *Runner) defineRegion(st *Step) (string, error) {
	as, _, err := r.addressSpace(st)
	if err != nil {
		return "", err
	}
	base, err := addr(st.Addr)
	if err != nil {
		return "", err
	}
	rd, wr, ex, err := parsePerms(st.Perms)
	if err != nil {
		return "", err
	}
	return "", as.DefineRegion(r.k.Context(st.CPU), base, st.Size, rd, wr, ex)
}

func (r *Runner) prepareLoad(st *Step) (string, error) {
	as, _, err := r.addressSpace(st)
	if err != nil {
		return "", err
	}
	return "", as.PrepareLoad(r.k.Context(st.CPU))
}

func (r *Runner) completeLoad(st *Step) (string, error) {
	as, _, err := r.addressSpace(st)
	if err != nil {
		return "", err
	}
	return "", as.CompleteLoad(r.k.Context(st.CPU))
}

func (r *Runner) defineStack(st *Step) (string, error) {
	as, _, err := r.addressSpace(st)
	if err != nil {
		return "", err
	}
	sp, err := as.DefineStack(r.k.Context(st.CPU))
	if err != nil {
		return "", err
	}
	return " sp=" + sp.String(), nil
}

func (r *Runner) exec(st *Step) (string, error) {
	_, p, err := r.addressSpace(st)
	if err != nil {
		return "", err
	}
	segs := make([]kernel.Segment, 0, len(st.Segments))
	for _, s := range st.Segments {
		va, err := addr(s.Addr)
		if err != nil {
			return "", err
		}
		rd, wr, ex, err := parsePerms(s.Perms)
		if err != nil {
			return "", err
		}
		segs = append(segs, kernel.Segment{
			Vaddr:      va,
			Data:       []byte(s.Data),
			MemSize:    s.Size,
			Readable:   rd,
			Writable:   wr,
			Executable: ex,
		})
	}
	sp, err := p.Load(st.CPU, segs)
	if err != nil {
		return "", err
	}
	return " sp=" + sp.String(), nil
}

func (r *Runner) store(st *Step) (string, error) {
	_, p, err := r.addressSpace(st)
	if err != nil {
		return "", err
	}
	va, err := addr(st.Addr)
	if err != nil {
		return "", err
	}
	data := st.data()
	n, err := p.CopyOut(st.CPU, va, data)
	if err != nil {
		return "", fmt.Errorf("stored %d of %d bytes at %v: %w", n, len(data), va, err)
	}
	return fmt.Sprintf(" %d bytes at %v", n, va), nil
}

func (r *Runner) load(st *Step) (string, error) {
	_, p, err := r.addressSpace(st)
	if err != nil {
		return "", err
	}
	va, err := addr(st.Addr)
	if err != nil {
		return "", err
	}
	buf := make([]byte, st.Len)
	n, err := p.CopyIn(st.CPU, va, buf)
	if err != nil {
		return "", fmt.Errorf("loaded %d of %d bytes at %v: %w", n, len(buf), va, err)
	}
	if st.Expect != nil && string(buf) != *st.Expect {
		return "", fmt.Errorf("loaded %s at %v, want %q", quote(buf), va, *st.Expect)
	}
	return " " + quote(buf), nil
}

func (r *Runner) fork(st *Step) (string, error) {
	parent, err := r.process(st.Process)
	if err != nil {
		return "", err
	}
	child, err := parent.Fork(st.Name)
	if err != nil {
		return "", err
	}
	if err := r.addProcess(child); err != nil {
		return "", err
	}
	return " " + child.String(), nil
}

// switchTo runs the step's process on the step's CPU. An empty process name
// idles the CPU.
func (r *Runner) switchTo(st *Step) (string, error) {
	if err := r.checkCPU(st.CPU); err != nil {
		return "", err
	}
	var p *kernel.Process
	if st.Process != "" {
		var err error
		if p, err = r.process(st.Process); err != nil {
			return "", err
		}
	}
	if err := r.k.Switch(st.CPU, p); err != nil {
		return "", err
	}
	return fmt.Sprintf(" cpu%d: %v", st.CPU, p), nil
}

func (r *Runner) exit(st *Step) (string, error) {
	p, err := r.process(st.Process)
	if err != nil {
		return "", err
	}
	p.Exit()
	delete(r.procs, st.Process)
	return "", nil
}

func (r *Runner) dump(st *Step) (string, error) {
	as, _, err := r.addressSpace(st)
	if err != nil {
		return "", err
	}
	return indent(as.String()), nil
}

func (r *Runner) usage(*Step) (string, error) {
	u := r.k.MemoryFile().Usage()
	return fmt.Sprintf(" frames=%d heap=%d", u.Frames, u.HeapBytes), nil
}
