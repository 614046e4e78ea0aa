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

package cpu

import (
	"vmsim.dev/vmsim/pkg/sentry/context"
)

// contextID is this package's type for context.Context.Value keys.
type contextID int

const (
	// CtxCPU is a Context.Value key for the CPU the context runs on.
	CtxCPU contextID = iota
)

// FromContext returns the CPU ctx runs on, or nil.
func FromContext(ctx context.Context) *CPU {
	if v := ctx.Value(CtxCPU); v != nil {
		return v.(*CPU)
	}
	return nil
}
