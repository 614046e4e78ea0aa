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

package metric

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// reset clears all global state in the metric package.
func reset() {
	allMetrics = makeMetricSet()
}

func TestNameInUse(t *testing.T) {
	defer reset()
	reset()

	if _, err := NewUint64Metric("/foo", "Foo!"); err != nil {
		t.Fatalf("NewUint64Metric got err %v want nil", err)
	}
	if _, err := NewUint64Metric("/foo", "Foo again"); err != ErrNameInUse {
		t.Errorf("NewUint64Metric got err %v want %v", err, ErrNameInUse)
	}
}

func TestFieldValidation(t *testing.T) {
	defer reset()
	reset()

	if _, err := NewUint64Metric("/empty", "", NewField("f", nil)); err != ErrFieldHasNoAllowedValues {
		t.Errorf("NewUint64Metric with empty field got err %v want %v", err, ErrFieldHasNoAllowedValues)
	}
	if _, err := NewUint64Metric("/quote", "", NewField("f", []string{`a"b`})); err != ErrFieldValueContainsIllegalChar {
		t.Errorf("NewUint64Metric with quoted value got err %v want %v", err, ErrFieldValueContainsIllegalChar)
	}
}

func TestIncrementWithFields(t *testing.T) {
	defer reset()
	reset()

	m := MustCreateNewUint64Metric("/counter", "Counter",
		NewField("kind", []string{"read", "write"}),
		NewField("result", []string{"ok", "error"}))
	m.Increment("read", "ok")
	m.Increment("read", "ok")
	m.IncrementBy(5, "write", "error")

	for _, tc := range []struct {
		fields []string
		want   uint64
	}{
		{[]string{"read", "ok"}, 2},
		{[]string{"read", "error"}, 0},
		{[]string{"write", "ok"}, 0},
		{[]string{"write", "error"}, 5},
	} {
		if got := m.Value(tc.fields...); got != tc.want {
			t.Errorf("Value(%v) = %d, want %d", tc.fields, got, tc.want)
		}
	}
}

func TestFieldMapperKeys(t *testing.T) {
	f, err := newFieldMapper(
		NewField("a", []string{"x", "y"}),
		NewField("b", []string{"1", "2", "3"}))
	if err != nil {
		t.Fatalf("newFieldMapper: %v", err)
	}
	seen := make(map[int]bool)
	for _, a := range []string{"x", "y"} {
		for _, b := range []string{"1", "2", "3"} {
			key := f.lookup(a, b)
			if seen[key] {
				t.Errorf("lookup(%q, %q) = %d, already used", a, b, key)
			}
			seen[key] = true
			if diff := cmp.Diff([]string{a, b}, f.keyToMultiField(key)); diff != "" {
				t.Errorf("keyToMultiField(%d) mismatch (-want +got):\n%s", key, diff)
			}
		}
	}
	if len(seen) != f.numKeys() {
		t.Errorf("got %d distinct keys, want %d", len(seen), f.numKeys())
	}
}

func TestDisallowedValuePanics(t *testing.T) {
	defer reset()
	reset()

	m := MustCreateNewUint64Metric("/strict", "", NewField("f", []string{"a"}))
	defer func() {
		if recover() == nil {
			t.Errorf("Increment with a disallowed value did not panic")
		}
	}()
	m.Increment("b")
}

func TestWritePrometheus(t *testing.T) {
	defer reset()
	reset()

	plain := MustCreateNewUint64Metric("/vm/plain", "Plain counter")
	fielded := MustCreateNewUint64Metric("/vm/fielded", "Fielded counter", NewField("event", []string{"create", "destroy"}))
	plain.IncrementBy(3)
	fielded.Increment("destroy")

	var buf bytes.Buffer
	if err := WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# HELP vmsim_vm_plain Plain counter\n",
		"# TYPE vmsim_vm_plain counter\n",
		"vmsim_vm_plain 3\n",
		"# TYPE vmsim_vm_fielded counter\n",
		`vmsim_vm_fielded{event="create"} 0` + "\n",
		`vmsim_vm_fielded{event="destroy"} 1` + "\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Families are sorted by name.
	if strings.Index(out, "vmsim_vm_fielded") > strings.Index(out, "vmsim_vm_plain") {
		t.Errorf("families out of order:\n%s", out)
	}
}
