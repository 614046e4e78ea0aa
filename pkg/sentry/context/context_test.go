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

package context

import "testing"

type otherKey int

func TestWithValueShadows(t *testing.T) {
	ctx := WithValue(Background(), CtxProcessID, int32(1))
	ctx = WithValue(ctx, otherKey(0), "other")
	if pid, ok := ProcessIDFromContext(ctx); !ok || pid != 1 {
		t.Errorf("ProcessIDFromContext = (%d, %t), want (1, true)", pid, ok)
	}
	ctx = WithValue(ctx, CtxProcessID, int32(2))
	if pid, _ := ProcessIDFromContext(ctx); pid != 2 {
		t.Errorf("ProcessIDFromContext = %d after shadowing, want 2", pid)
	}
	if got := ctx.Value(otherKey(0)); got != "other" {
		t.Errorf("Value(otherKey) = %v, want %q", got, "other")
	}
}

func TestBackgroundHasNoValues(t *testing.T) {
	if _, ok := ProcessIDFromContext(Background()); ok {
		t.Errorf("Background context carries a process ID")
	}
}
