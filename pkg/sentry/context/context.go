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

// Package context defines the simulator's Context type.
package context

import (
	"vmsim.dev/vmsim/pkg/log"
)

type contextID int

// Globally accessible values from a context. These keys are defined in the
// context package to resolve dependency cycles by not requiring the caller to
// import packages usually required to get these information.
const (
	// CtxProcessID is the current process ID when a context represents a
	// process context. The value is represented as an int32.
	CtxProcessID contextID = iota
)

// ProcessIDFromContext returns the current process ID when ctx represents a
// process context.
func ProcessIDFromContext(ctx Context) (pid int32, ok bool) {
	if pid := ctx.Value(CtxProcessID); pid != nil {
		return pid.(int32), true
	}
	return 0, false
}

// A Context represents a thread of execution (hereafter "goroutine" to reflect
// Go idiosyncrasy). It carries state associated with the goroutine across API
// boundaries: the physical memory, the CPU it is running on, and the current
// address space.
//
// Unlike the standard context.Context, it is *not safe* to use the same
// Context in multiple concurrent goroutines, since the CPU it carries is owned
// by a single goroutine at a time.
type Context interface {
	log.Logger

	// Value returns the value associated with this Context for key, or nil if
	// no value is associated with key. Successive calls to Value with the same
	// key returns the same result.
	//
	// A key identifies a specific value in a Context. Functions that wish to
	// retrieve values from Context typically allocate a key in a global
	// variable then use that key as the argument to Context.Value. A key can
	// be any type that supports equality; packages should define keys as an
	// unexported type to avoid collisions.
	Value(key any) any
}

type logContext struct {
	log.Logger
}

// Value implements Context.Value.
func (logContext) Value(key any) any {
	return nil
}

// Background returns an empty context using the default logger.
//
// Using a Background context for tests is fine, as long as no values are
// needed from the context in the tested code paths.
func Background() Context {
	return logContext{Logger: log.Log()}
}

// WithValue returns a copy of parent in which the value associated with key is
// val.
func WithValue(parent Context, key, val any) Context {
	return &valueContext{
		Context: parent,
		key:     key,
		val:     val,
	}
}

type valueContext struct {
	Context
	key, val any
}

// Value implements Context.Value.
func (ctx *valueContext) Value(key any) any {
	if key == ctx.key {
		return ctx.val
	}
	return ctx.Context.Value(key)
}
