// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import "golang.org/x/sys/unix"

// Constant is a named kernel flag exposed in the capability namespace.
type Constant struct {
	Name  string
	Value int64
}

// constantTable is the complete set of flags policy scripts can see.
// Values come from golang.org/x/sys/unix, which is generated from the
// kernel headers of each GOOS/GOARCH pair. Never write a literal here.
var constantTable = [...]Constant{
	// Namespace and clone flags (linux/sched.h).
	{"CLONE_VM", unix.CLONE_VM},
	{"CLONE_FS", unix.CLONE_FS},
	{"CLONE_FILES", unix.CLONE_FILES},
	{"CLONE_SIGHAND", unix.CLONE_SIGHAND},
	{"CLONE_PTRACE", unix.CLONE_PTRACE},
	{"CLONE_VFORK", unix.CLONE_VFORK},
	{"CLONE_PARENT", unix.CLONE_PARENT},
	{"CLONE_THREAD", unix.CLONE_THREAD},
	{"CLONE_NEWNS", unix.CLONE_NEWNS},
	{"CLONE_SYSVSEM", unix.CLONE_SYSVSEM},
	{"CLONE_SETTLS", unix.CLONE_SETTLS},
	{"CLONE_PARENT_SETTID", unix.CLONE_PARENT_SETTID},
	{"CLONE_CHILD_CLEARTID", unix.CLONE_CHILD_CLEARTID},
	{"CLONE_DETACHED", unix.CLONE_DETACHED},
	{"CLONE_UNTRACED", unix.CLONE_UNTRACED},
	{"CLONE_CHILD_SETTID", unix.CLONE_CHILD_SETTID},
	{"CLONE_NEWCGROUP", unix.CLONE_NEWCGROUP},
	{"CLONE_NEWUTS", unix.CLONE_NEWUTS},
	{"CLONE_NEWIPC", unix.CLONE_NEWIPC},
	{"CLONE_NEWUSER", unix.CLONE_NEWUSER},
	{"CLONE_NEWPID", unix.CLONE_NEWPID},
	{"CLONE_NEWNET", unix.CLONE_NEWNET},
	{"CLONE_IO", unix.CLONE_IO},

	// Mount flags (linux/mount.h).
	{"MS_RDONLY", unix.MS_RDONLY},
	{"MS_NOSUID", unix.MS_NOSUID},
	{"MS_NODEV", unix.MS_NODEV},
	{"MS_NOEXEC", unix.MS_NOEXEC},
	{"MS_SYNCHRONOUS", unix.MS_SYNCHRONOUS},
	{"MS_REMOUNT", unix.MS_REMOUNT},
	{"MS_MANDLOCK", unix.MS_MANDLOCK},
	{"MS_DIRSYNC", unix.MS_DIRSYNC},
	{"MS_NOSYMFOLLOW", unix.MS_NOSYMFOLLOW},
	{"MS_NOATIME", unix.MS_NOATIME},
	{"MS_NODIRATIME", unix.MS_NODIRATIME},
	{"MS_BIND", unix.MS_BIND},
	{"MS_MOVE", unix.MS_MOVE},
	{"MS_REC", unix.MS_REC},
	{"MS_SILENT", unix.MS_SILENT},
	{"MS_POSIXACL", unix.MS_POSIXACL},
	{"MS_UNBINDABLE", unix.MS_UNBINDABLE},
	{"MS_PRIVATE", unix.MS_PRIVATE},
	{"MS_SLAVE", unix.MS_SLAVE},
	{"MS_SHARED", unix.MS_SHARED},
	{"MS_RELATIME", unix.MS_RELATIME},
	{"MS_KERNMOUNT", unix.MS_KERNMOUNT},
	{"MS_I_VERSION", unix.MS_I_VERSION},
	{"MS_STRICTATIME", unix.MS_STRICTATIME},
	{"MS_LAZYTIME", unix.MS_LAZYTIME},
	{"MS_ACTIVE", unix.MS_ACTIVE},
	{"MS_NOUSER", unix.MS_NOUSER},

	// umount2 flags.
	{"MNT_FORCE", unix.MNT_FORCE},
	{"MNT_DETACH", unix.MNT_DETACH},
	{"MNT_EXPIRE", unix.MNT_EXPIRE},
	{"UMOUNT_NOFOLLOW", unix.UMOUNT_NOFOLLOW},
}

var constantIndex = buildConstantIndex()

func buildConstantIndex() map[string]int64 {
	index := make(map[string]int64, len(constantTable))
	for _, constant := range constantTable {
		index[constant.Name] = constant.Value
	}
	return index
}

// Constants returns a copy of the constant table in registration order.
func Constants() []Constant {
	constants := make([]Constant, len(constantTable))
	copy(constants, constantTable[:])
	return constants
}

// LookupConstant returns the value registered under name.
func LookupConstant(name string) (int64, bool) {
	value, ok := constantIndex[name]
	return value, ok
}
