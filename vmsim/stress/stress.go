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

// Package stress runs concurrent process lifecycles on every CPU of a
// simulated machine and checks that their memory stays isolated.
package stress

import (
	"bytes"
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"
	"vmsim.dev/vmsim/pkg/errors/linuxerr"
	"vmsim.dev/vmsim/pkg/hostarch"
	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/sentry/kernel"
)

const (
	textBase hostarch.Addr = 0x400000
	dataBase hostarch.Addr = 0x10000000
)

// Options configures a run.
type Options struct {
	// Iterations is the number of process lifecycles per CPU.
	Iterations int

	// Pages is the number of data pages each process touches.
	Pages int

	// Retries bounds how many times a lifecycle that ran out of memory is
	// retried. Zero retries without bound.
	Retries uint64

	// RetryDelay is the wait between retries.
	RetryDelay time.Duration
}

// DefaultOptions are used by the stress command.
var DefaultOptions = Options{
	Iterations: 10,
	Pages:      4,
	Retries:    5,
	RetryDelay: 10 * time.Millisecond,
}

// Result summarizes a run.
type Result struct {
	// Cycles is the number of completed lifecycles.
	Cycles uint64

	// Retries is the number of lifecycles retried after ENOMEM.
	Retries uint64
}

type counters struct {
	cycles  atomic.Uint64
	retries atomic.Uint64
}

// Run runs opts.Iterations lifecycles on each CPU of k, one goroutine per
// CPU. A lifecycle loads a program, writes every data page, forks, checks
// that parent and child see their own copies, and exits both processes.
// The first failing lifecycle cancels the run.
func Run(ctx context.Context, k *kernel.Kernel, opts Options) (Result, error) {
	if opts.Pages < 1 {
		return Result{}, fmt.Errorf("need at least one data page, got %d", opts.Pages)
	}
	var c counters
	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < k.CPUs(); id++ {
		id := id
		g.Go(func() error {
			return worker(ctx, k, id, opts, &c)
		})
	}
	err := g.Wait()
	res := Result{Cycles: c.cycles.Load(), Retries: c.retries.Load()}
	log.Infof("Stress: %d cycles, %d retries", res.Cycles, res.Retries)
	return res, err
}

func worker(ctx context.Context, k *kernel.Kernel, id int, opts Options, c *counters) error {
	defer k.Switch(id, nil)
	for i := 0; i < opts.Iterations; i++ {
		l := lifecycle{k: k, cpu: id, iter: i, pages: opts.Pages}
		op := func() error {
			err := l.run()
			if err == nil || stderrors.Is(err, linuxerr.ENOMEM) {
				return err
			}
			return backoff.Permanent(err)
		}
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.RetryDelay), opts.Retries), ctx)
		notify := func(err error, d time.Duration) {
			c.retries.Add(1)
			log.Debugf("cpu%d: cycle %d: %v, retrying in %v", id, i, err, d)
		}
		if err := backoff.RetryNotify(op, b, notify); err != nil {
			return fmt.Errorf("cpu%d: cycle %d: %w", id, i, err)
		}
		c.cycles.Add(1)
	}
	return nil
}

// lifecycle is one process lifecycle on a CPU.
type lifecycle struct {
	k     *kernel.Kernel
	cpu   int
	iter  int
	pages int
}

// pattern returns the bytes written to data page j by gen.
func (l *lifecycle) pattern(gen, j int) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:], uint32(l.cpu))
	binary.LittleEndian.PutUint32(b[4:], uint32(l.iter))
	binary.LittleEndian.PutUint32(b[8:], uint32(gen))
	binary.LittleEndian.PutUint32(b[12:], uint32(j))
	return b[:]
}

func (l *lifecycle) page(j int) hostarch.Addr {
	return dataBase + hostarch.Addr(j)*hostarch.PageSize
}

func (l *lifecycle) run() error {
	name := fmt.Sprintf("stress-%d-%d", l.cpu, l.iter)
	p, err := l.k.NewProcess(name)
	if err != nil {
		return err
	}
	defer p.Exit()
	if err := l.k.Switch(l.cpu, p); err != nil {
		return err
	}
	sp, err := p.Load(l.cpu, []kernel.Segment{
		{Vaddr: textBase, Data: []byte(name), Readable: true, Executable: true},
		{Vaddr: dataBase, MemSize: uint64(l.pages) * hostarch.PageSize, Readable: true, Writable: true},
	})
	if err != nil {
		return err
	}
	if err := l.fill(p, 0); err != nil {
		return err
	}
	if _, err := p.CopyOut(l.cpu, sp-4, []byte{1, 2, 3, 4}); err != nil {
		return fmt.Errorf("%v: pushing to the stack: %w", p, err)
	}
	if _, err := p.CopyOut(l.cpu, textBase, []byte{0}); !linuxerr.Equals(linuxerr.EFAULT, err) {
		return fmt.Errorf("%v: store to text returned %v, want EFAULT", p, err)
	}

	child, err := p.Fork(name + "-child")
	if err != nil {
		return err
	}
	defer child.Exit()
	if err := l.k.Switch(l.cpu, child); err != nil {
		return err
	}
	if err := l.verify(child, 0); err != nil {
		return err
	}
	if err := l.fill(child, 1); err != nil {
		return err
	}
	if err := l.k.Switch(l.cpu, p); err != nil {
		return err
	}
	return l.verify(p, 0)
}

// fill writes generation gen's pattern to every data page of p.
func (l *lifecycle) fill(p *kernel.Process, gen int) error {
	for j := 0; j < l.pages; j++ {
		if _, err := p.CopyOut(l.cpu, l.page(j), l.pattern(gen, j)); err != nil {
			return fmt.Errorf("%v: writing page %d: %w", p, j, err)
		}
	}
	return nil
}

// verify checks that every data page of p holds generation gen's pattern.
func (l *lifecycle) verify(p *kernel.Process, gen int) error {
	for j := 0; j < l.pages; j++ {
		want := l.pattern(gen, j)
		got := make([]byte, len(want))
		if _, err := p.CopyIn(l.cpu, l.page(j), got); err != nil {
			return fmt.Errorf("%v: reading page %d: %w", p, j, err)
		}
		if !bytes.Equal(got, want) {
			return fmt.Errorf("%v: page %d holds %x, want %x", p, j, got, want)
		}
	}
	return nil
}
