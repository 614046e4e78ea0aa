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

// Package linuxerr contains the error codes returned by the virtual memory
// system, exported as *errors.Error pointers so they can be compared with ==.
package linuxerr

import (
	"golang.org/x/sys/unix"
	"vmsim.dev/vmsim/pkg/errors"
)

// The following errors are the only ones produced by the VM core. Their Errno
// method returns the matching unix.Errno so that callers may compare against
// unix constants as well.
var (
	noError *errors.Error = nil

	// ENOMEM reports that the kernel heap or the physical frame allocator
	// could not satisfy a request.
	ENOMEM = errors.New(unix.ENOMEM, "out of memory")

	// EFAULT reports an access outside every region of the address space, or
	// a write to a read-only page.
	EFAULT = errors.New(unix.EFAULT, "bad address")

	// EINVAL reports an unrecognised fault kind, a null fault address or a
	// malformed region.
	EINVAL = errors.New(unix.EINVAL, "invalid argument")
)

var errorMap = map[unix.Errno]*errors.Error{
	unix.ENOMEM: ENOMEM,
	unix.EFAULT: EFAULT,
	unix.EINVAL: EINVAL,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno. It returns nil for a
// zero errno and for errnos the VM system never produces.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	if e, ok := errorMap[err]; ok {
		return e
	}
	return nil
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compares a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	if err == nil {
		err = noError
	}
	return e == err || unixErr == err
}

// Name returns the symbolic errno name of err if it is a kernel error, or
// err.Error() otherwise.
func Name(err error) string {
	switch e := err.(type) {
	case nil:
		return ""
	case *errors.Error:
		return e.Name()
	case unix.Errno:
		return unix.ErrnoName(e)
	default:
		return err.Error()
	}
}
