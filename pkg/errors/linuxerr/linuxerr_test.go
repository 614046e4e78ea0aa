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

package linuxerr

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
	"vmsim.dev/vmsim/pkg/errors"
)

func TestEquals(t *testing.T) {
	for _, tc := range []struct {
		e    *errors.Error
		err  error
		want bool
	}{
		{ENOMEM, ENOMEM, true},
		{ENOMEM, unix.ENOMEM, true},
		{EFAULT, EINVAL, false},
		{EFAULT, unix.EINVAL, false},
		{nil, nil, true},
		{EINVAL, nil, false},
	} {
		if got := Equals(tc.e, tc.err); got != tc.want {
			t.Errorf("Equals(%v, %v) = %t, want %t", tc.e, tc.err, got, tc.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, e := range []*errors.Error{ENOMEM, EFAULT, EINVAL} {
		if got := ErrorFromUnix(ToUnix(e)); got != e {
			t.Errorf("ErrorFromUnix(ToUnix(%v)) = %v, want %v", e, got, e)
		}
	}
	if got := ErrorFromUnix(0); got != nil {
		t.Errorf("ErrorFromUnix(0) = %v, want nil", got)
	}
}

func TestName(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{nil, ""},
		{EFAULT, "EFAULT"},
		{ENOMEM, "ENOMEM"},
		{unix.EINVAL, "EINVAL"},
		{fmt.Errorf("other"), "other"},
	} {
		if got := Name(tc.err); got != tc.want {
			t.Errorf("Name(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
