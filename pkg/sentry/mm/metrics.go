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

package mm

import (
	"vmsim.dev/vmsim/pkg/metric"
)

var (
	faults = metric.MustCreateNewUint64Metric("/vm/faults", "Number of translation faults handled, by kind and outcome.",
		metric.NewField("kind", []string{"read", "write", "readonly", "invalid"}),
		metric.NewField("result", []string{"ok", "efault", "einval", "enomem"}))

	addressSpaceEvents = metric.MustCreateNewUint64Metric("/vm/address_spaces", "Address space lifecycle events.",
		metric.NewField("event", []string{"create", "create_failed", "fork", "fork_failed", "destroy"}))
)
