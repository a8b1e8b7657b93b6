// Copyright 2026 The Wormhole Authors.
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

// Package wherrors defines the sentinel error kinds shared by every core
// component, and the mapping from those kinds to kernel errno values at the
// FUSE boundary.
package wherrors

import (
	"errors"
	"syscall"
)

// Sentinel error kinds. Components return these directly or wrap them with
// fmt.Errorf("...: %w", ...); callers compare with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrNotADirectory     = errors.New("not a directory")
	ErrIsADirectory      = errors.New("is a directory")
	ErrAlreadyExist      = errors.New("already exists")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrWouldBlock        = errors.New("lock acquisition timed out")
	ErrNetworkDied       = errors.New("network task is no longer running")
	ErrNoHostAvailable   = errors.New("no host for file responded")
	ErrInsufficientHosts = errors.New("not enough peers to satisfy redundancy target")
	ErrDeltaMismatch     = errors.New("signature mismatch, retrying with fresh base")
	ErrNonEmpty          = errors.New("directory not empty")
	ErrParentNotFound    = errors.New("parent inode not found")
	ErrParentNotFolder   = errors.New("parent inode is not a directory")
	ErrNotHosted         = errors.New("file is not hosted anywhere reachable")
	ErrNoHandle          = errors.New("no open file handle for this operation")
	ErrDestinationExists = errors.New("rename destination already exists")
	ErrOverwriteNonEmpty = errors.New("rename target is a non-empty directory")
	ErrKeyNotFound       = errors.New("extended attribute key not found")
	ErrNotSymlink        = errors.New("inode is not a symlink")
	ErrHandshakeFailed   = errors.New("peer handshake failed")
	ErrNoReadPerm        = errors.New("no read permission on file")
	ErrNoWritePerm       = errors.New("no write permission on file")
)

// ToErrno maps a (possibly wrapped) sentinel error to the errno the kernel
// bridge should report. Unrecognized errors map to EIO.
func ToErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, ErrAlreadyExist), errors.Is(err, ErrDestinationExists):
		return syscall.EEXIST
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrNoReadPerm), errors.Is(err, ErrNoWritePerm):
		return syscall.EACCES
	case errors.Is(err, ErrWouldBlock):
		return syscall.EWOULDBLOCK
	case errors.Is(err, ErrNetworkDied):
		return syscall.ENETDOWN
	case errors.Is(err, ErrNoHostAvailable), errors.Is(err, ErrNotHosted):
		return syscall.EHOSTUNREACH
	case errors.Is(err, ErrNonEmpty), errors.Is(err, ErrOverwriteNonEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, ErrKeyNotFound):
		return syscall.ENODATA
	case errors.Is(err, ErrNotSymlink):
		return syscall.EINVAL
	case errors.Is(err, ErrNoHandle):
		return syscall.EBADF
	default:
		return syscall.EIO
	}
}
