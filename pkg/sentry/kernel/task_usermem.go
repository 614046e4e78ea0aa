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
	"errors"
	"fmt"

	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/sentry/context"
	"vmsim.dev/vmsim/pkg/sentry/pgalloc"
)

// ErrNotRunning is returned by user memory accesses of a process that is not
// running on the given CPU.
var ErrNotRunning = errors.New("process is not running on this CPU")

// userContext returns the context of CPU id, which must be running p.
func (p *Process) userContext(id int) (context.Context, error) {
	if id < 0 || id >= p.k.CPUs() {
		return nil, fmt.Errorf("no CPU %d", id)
	}
	if p.k.Running(id) != p {
		return nil, ErrNotRunning
	}
	return p.k.Context(id), nil
}

// access copies between b and user memory at addr a page at a time.
func (p *Process) access(id int, addr hostarch.Addr, b []byte, store bool) (int, error) {
	ctx, err := p.userContext(id)
	if err != nil {
		return 0, err
	}
	mf := p.k.mf
	var done int
	for done < len(b) {
		paddr, err := translate(ctx, addr+hostarch.Addr(done), store)
		if err != nil {
			return done, err
		}
		frame := mf.Bytes(pgalloc.Frame(paddr >> hostarch.PageShift))
		off := paddr & (hostarch.PageSize - 1)
		if store {
			done += copy(frame[off:], b[done:])
		} else {
			done += copy(b[done:], frame[off:])
		}
	}
	return done, nil
}

// CopyOut stores src into p's memory at addr as a user-mode program running
// on CPU id would. It returns the number of bytes copied and the error of
// the fault that stopped the copy, if any.
func (p *Process) CopyOut(id int, addr hostarch.Addr, src []byte) (int, error) {
	return p.access(id, addr, src, true)
}

// CopyIn loads len(dst) bytes of p's memory at addr into dst as a user-mode
// program running on CPU id would.
func (p *Process) CopyIn(id int, addr hostarch.Addr, dst []byte) (int, error) {
	return p.access(id, addr, dst, false)
}
