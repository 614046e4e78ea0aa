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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return testFlags
}

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vmsim.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if want := 512; c.Frames != uint(want) {
		t.Errorf("Frames=%v, want: %v", c.Frames, want)
	}
}

func TestFromFlags(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t, "--debug", "--frames=64", "--cpus=4", "--seed=-3", "--log-format=json"))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		LogFormat: "json",
		Debug:     true,
		Frames:    64,
		HeapBytes: 1 << 20,
		CPUs:      4,
		Seed:      -3,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("NewFromFlags() mismatch (-want +got):\n%s", diff)
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t, "--debug=true", "--frames=64", "--cpus=1", "--metrics=-"))
	if err != nil {
		t.Fatal(err)
	}

	// --cpus matches the default value and is dropped.
	want := []string{"--debug=true", "--frames=64", "--metrics=-"}
	if diff := cmp.Diff(want, c.ToFlags()); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}

	// Round trip.
	c2, err := NewFromFlags(newFlagSet(t, c.ToFlags()...))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, c2); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFile(t *testing.T) {
	path := writeFile(t, `
frames = 128
heap-bytes = 4096
cpus = 2
debug = true
`)
	c, err := NewFromFlags(newFlagSet(t, "--config="+path, "--cpus=3"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Frames != 128 {
		t.Errorf("Frames=%d, want 128 from the file", c.Frames)
	}
	if c.HeapBytes != 4096 {
		t.Errorf("HeapBytes=%d, want 4096 from the file", c.HeapBytes)
	}
	if !c.Debug {
		t.Errorf("Debug=false, want true from the file")
	}
	if c.CPUs != 3 {
		t.Errorf("CPUs=%d, want 3 from the command line", c.CPUs)
	}
	if c.LogFormat != "text" {
		t.Errorf("LogFormat=%q, want the default %q", c.LogFormat, "text")
	}
}

func TestFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
		want     string
	}{
		{
			name:     "unknown key",
			contents: "frames = 64\npages = 3\n",
			want:     "unknown keys",
		},
		{
			name:     "syntax",
			contents: "frames = \n",
			want:     "reading config file",
		},
		{
			name:     "invalid value",
			contents: "cpus = 0\n",
			want:     "cpus must be at least 1",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.contents)
			_, err := NewFromFlags(newFlagSet(t, "--config="+path))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("NewFromFlags() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	if _, err := NewFromFlags(newFlagSet(t, "--config="+path)); err == nil {
		t.Errorf("NewFromFlags() with a missing config file succeeded")
	}
}

func TestValidationErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--frames=1"},
		{"--frames=2000000"},
		{"--cpus=0"},
		{"--log-format=xml"},
	} {
		if _, err := NewFromFlags(newFlagSet(t, args...)); err == nil {
			t.Errorf("NewFromFlags(%v) succeeded, want error", args)
		}
	}
}

func TestKernel(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t, "--frames=32", "--cpus=2", "--seed=9", "--heap-bytes=8192"))
	if err != nil {
		t.Fatal(err)
	}
	kc := c.Kernel()
	if kc.Frames != 32 || kc.CPUs != 2 || kc.Seed != 9 || kc.HeapBytes != 8192 {
		t.Errorf("Kernel() = %+v", kc)
	}
}
