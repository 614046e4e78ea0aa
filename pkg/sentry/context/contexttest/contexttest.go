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

// Package contexttest builds a test context.Context.
package contexttest

import (
	"testing"

	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/sentry/context"
	"vmsim.dev/vmsim/pkg/sentry/pgalloc"
	"vmsim.dev/vmsim/pkg/sentry/platform/cpu"
)

// DefaultOptions is the machine used by Context.
var DefaultOptions = pgalloc.Options{
	Frames:    512,
	HeapBytes: 1 << 20,
}

// Context returns a Context that may be used in tests. It carries a fresh
// MemoryFile built from DefaultOptions and a single CPU, and logs through tb.
func Context(tb testing.TB) context.Context {
	return WithOptions(tb, DefaultOptions)
}

// WithOptions is like Context but builds the MemoryFile from opts.
func WithOptions(tb testing.TB, opts pgalloc.Options) context.Context {
	mf, err := pgalloc.New(opts)
	if err != nil {
		tb.Fatalf("pgalloc.New(%+v): %v", opts, err)
	}
	return &testContext{
		Logger: &log.BasicLogger{Level: log.Debug, Emitter: &log.TestEmitter{TestLogger: tb}},
		mf:     mf,
		cpu:    cpu.New(0, 1),
	}
}

type testContext struct {
	log.Logger
	mf  *pgalloc.MemoryFile
	cpu *cpu.CPU
}

// Value implements context.Context.
func (t *testContext) Value(key any) any {
	switch key {
	case pgalloc.CtxMemoryFile:
		return t.mf
	case cpu.CtxCPU:
		return t.cpu
	default:
		return nil
	}
}

// WithCPU returns a copy of ctx running on c.
func WithCPU(ctx context.Context, c *cpu.CPU) context.Context {
	return context.WithValue(ctx, cpu.CtxCPU, c)
}
