// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Stamped with -ldflags -X. An empty value falls back to the VCS
// settings the Go toolchain records in the binary.
var (
	gitCommit string
	gitDirty  string
	buildTime string
)

// Version is the release version of osbpb.
const Version = "0.1.0-dev"

// shortCommit is the number of revision characters shown.
const shortCommit = 12

// Build identifies the source a binary was built from.
type Build struct {
	Version  string
	Commit   string
	Modified bool
	Time     string
}

// String renders b as "0.1.0-dev (abc1234-dirty, 2026-02-10T12:00:00Z)",
// with "unknown" for anything not recorded.
func (b Build) String() string {
	commit := orUnknown(b.Commit)
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, commit, orUnknown(b.Time))
}

// Current returns the build description of the running binary.
func Current() Build {
	info, _ := debug.ReadBuildInfo()
	return resolve(fromBuildInfo(info), gitCommit, gitDirty, buildTime)
}

// Info is Current().String(), for logging at startup.
func Info() string {
	return Current().String()
}

// fromBuildInfo extracts the vcs.* settings. A nil info, as in
// binaries built without module support, yields only the version.
func fromBuildInfo(info *debug.BuildInfo) Build {
	build := Build{Version: Version}
	if info == nil {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.Commit = setting.Value
			if len(build.Commit) > shortCommit {
				build.Commit = build.Commit[:shortCommit]
			}
		case "vcs.modified":
			build.Modified = setting.Value == "true"
		case "vcs.time":
			build.Time = setting.Value
		}
	}
	return build
}

// resolve lets non-empty stamped values override the recorded ones.
func resolve(recorded Build, commit, dirty, stamped string) Build {
	if commit != "" {
		recorded.Commit = commit
		recorded.Modified = dirty == "true"
	}
	if stamped != "" {
		recorded.Time = stamped
	}
	return recorded
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// Platform returns the Go toolchain and GOOS/GOARCH the binary was
// built for. The constant table differs per architecture, so this is
// logged next to Info.
func Platform() string {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
