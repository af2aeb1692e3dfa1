// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Syscalls is the set of kernel primitives the capability module
// forwards to. [Kernel] issues the real system calls; tests substitute
// a recording implementation.
type Syscalls interface {
	Chroot(path string) error
	Chdir(path string) error
	Mount(request MountRequest) error
	Unmount(target string, flags int) error
	Unshare(flags int) error
}

// MountRequest carries the arguments of one mount(2) call. A nil
// Source, FSType, or Data is passed to the kernel as a NULL pointer,
// which is not the same as an empty string: several filesystem
// drivers reject "" where they accept NULL.
type MountRequest struct {
	Source *string
	Target string
	FSType *string
	Flags  uintptr
	Data   *string
}

// LogValue renders absent fields as <nil> so debug output shows the
// distinction between NULL and "".
func (r MountRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("source", optionalText(r.Source)),
		slog.String("target", r.Target),
		slog.String("fstype", optionalText(r.FSType)),
		slog.Uint64("flags", uint64(r.Flags)),
		slog.String("data", optionalText(r.Data)),
	)
}

func optionalText(value *string) string {
	if value == nil {
		return "<nil>"
	}
	return *value
}

// Kernel implements [Syscalls] with direct system calls.
type Kernel struct{}

func (Kernel) Chroot(path string) error {
	return unix.Chroot(path)
}

func (Kernel) Chdir(path string) error {
	return unix.Chdir(path)
}

// Mount issues mount(2) directly. unix.Mount cannot be used because it
// turns an empty source or fstype into a pointer to "\0" instead of
// NULL.
func (Kernel) Mount(request MountRequest) error {
	target, err := unix.BytePtrFromString(request.Target)
	if err != nil {
		return err
	}
	source, err := optionalBytePointer(request.Source)
	if err != nil {
		return err
	}
	fstype, err := optionalBytePointer(request.FSType)
	if err != nil {
		return err
	}
	data, err := optionalBytePointer(request.Data)
	if err != nil {
		return err
	}

	_, _, errno := unix.Syscall6(unix.SYS_MOUNT,
		uintptr(unsafe.Pointer(source)),
		uintptr(unsafe.Pointer(target)),
		uintptr(unsafe.Pointer(fstype)),
		request.Flags,
		uintptr(unsafe.Pointer(data)),
		0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Unmount uses umount2(2) so that MNT_DETACH and MNT_FORCE are honored.
func (Kernel) Unmount(target string, flags int) error {
	return unix.Unmount(target, flags)
}

func (Kernel) Unshare(flags int) error {
	return unix.Unshare(flags)
}

func optionalBytePointer(value *string) (*byte, error) {
	if value == nil {
		return nil, nil
	}
	return unix.BytePtrFromString(*value)
}

// errnoOf extracts the kernel error number from err. Errors that carry
// no errno (which Kernel never returns) map to EINVAL.
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EINVAL
}
