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

package bitmap

import "testing"

func TestAddRemove(t *testing.T) {
	b := New(100)
	b.Add(0)
	b.Add(64)
	b.Add(64)
	b.Add(99)
	if got := b.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}
	for _, i := range []uint32{0, 64, 99} {
		if !b.Contains(i) {
			t.Errorf("Contains(%d) = false after Add", i)
		}
	}
	b.Remove(64)
	b.Remove(64)
	if b.Contains(64) || b.Count() != 2 {
		t.Errorf("after Remove(64): Contains = %t, Count = %d", b.Contains(64), b.Count())
	}
	if b.Contains(1000) {
		t.Errorf("Contains reported a bit beyond the bitmap size")
	}
}

func TestFirstZeroRespectsSize(t *testing.T) {
	b := New(3)
	b.AddRange(0, 3)
	if bit, err := b.FirstZero(0); err == nil {
		t.Errorf("FirstZero on a full 3-bit map returned %d, want error", bit)
	}
	b.Remove(1)
	if bit, err := b.FirstZero(0); err != nil || bit != 1 {
		t.Errorf("FirstZero(0) = (%d, %v), want (1, nil)", bit, err)
	}
}

func TestFirstZeroRun(t *testing.T) {
	b := New(200)
	// Layout: [0,3) used, [3,5) free, [5,70) used, [70,200) free.
	b.AddRange(0, 3)
	b.AddRange(5, 70)

	for _, tc := range []struct {
		n    uint32
		want uint32
		ok   bool
	}{
		{1, 3, true},
		{2, 3, true},
		{3, 70, true},
		{130, 70, true},
		{131, 0, false},
	} {
		got, err := b.FirstZeroRun(0, tc.n)
		if (err == nil) != tc.ok {
			t.Errorf("FirstZeroRun(0, %d) error = %v, want ok = %t", tc.n, err, tc.ok)
			continue
		}
		if tc.ok && got != tc.want {
			t.Errorf("FirstZeroRun(0, %d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}
