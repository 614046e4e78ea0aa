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

package pgalloc

import (
	"fmt"
	"sync"

	"vmsim.dev/vmsim/pkg/errors/linuxerr"
)

// Heap is a byte budget standing in for the kernel heap. Kernel data
// structures are charged against it when they are created and uncharged when
// they are released.
type Heap struct {
	mu    sync.Mutex
	limit uint64
	used  uint64
}

// Alloc charges size bytes. It returns ENOMEM if the budget would be
// exceeded, in which case nothing is charged.
func (h *Heap) Alloc(size uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.used+uint64(size) > h.limit {
		return linuxerr.ENOMEM
	}
	h.used += uint64(size)
	return nil
}

// Free uncharges size bytes.
func (h *Heap) Free(size uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if uint64(size) > h.used {
		panic(fmt.Sprintf("heap underflow: freeing %d bytes with %d in use", size, h.used))
	}
	h.used -= uint64(size)
}

// Used returns the number of bytes charged.
func (h *Heap) Used() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Limit returns the size of the budget.
func (h *Heap) Limit() uint64 {
	return h.limit
}
