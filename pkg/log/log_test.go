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

package log

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if len(tw.lines) != len(expected) {
		t.Fatalf("Writer should have logged %d lines, got: %q, expected: %q", len(expected), tw.lines, expected)
	}
	for i, l := range tw.lines {
		if l != expected[i] {
			t.Fatalf("line %d doesn't match, got: %q, expected: %q", i, l, expected[i])
		}
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("hidden")
	l.Infof("shown %d", 1)
	l.Warningf("shown %d", 2)
	l.SetLevel(Warning)
	l.Infof("hidden")

	if got, want := strings.Join(tw.lines, ""), "shown 1\nshown 2\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if l.IsLogging(Info) {
		t.Errorf("IsLogging(Info) is true at level Warning")
	}
}

func TestGoogleEmitterHeader(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Debug, Emitter: GoogleEmitter{&Writer{Next: tw}}}
	l.Warningf("tlb flush")

	if len(tw.lines) != 1 {
		t.Fatalf("got %d writes, want 1: %q", len(tw.lines), tw.lines)
	}
	line := tw.lines[0]
	if line[0] != 'W' {
		t.Errorf("line %q does not start with the warning marker", line)
	}
	if !strings.Contains(line, " log_test.go:") || !strings.HasSuffix(line, "] tlb flush\n") {
		t.Errorf("line %q does not name the caller and message", line)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 10; i++ {
		l.Warningf("protection fault %d", i)
	}
	if got := strings.Join(tw.lines, ""); got != "protection fault 0\n" {
		t.Errorf("got %q, want only the first message", tw.lines)
	}
}

func TestSetTargetFollowedByBasicRateLimitedLogger(t *testing.T) {
	old := Log()
	defer SetTarget(old.Emitter)

	rl := BasicRateLimitedLogger(time.Hour)
	tw := &testWriter{}
	SetTarget(&Writer{Next: tw})
	rl.Warningf("after retarget")
	if got := strings.Join(tw.lines, ""); got != "after retarget\n" {
		t.Errorf("got %q, want the message on the new target", tw.lines)
	}
}
