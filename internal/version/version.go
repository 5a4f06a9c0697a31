// Package version provides application version and build info.
//
//nolint:revive
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// Version is the current version of the application.
	// It can be overridden by ldflags at build time.
	Version = "dev"
	// CommitHash is the git commit hash at build time.
	// It can be overridden by ldflags at build time.
	CommitHash = ""
	// BuildTime is the time when the application was built.
	// It can be overridden by ldflags at build time.
	BuildTime = ""

	readBuildInfo sync.Once
)

// Info is the build metadata reported by /ping and `stpctl version`.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

// Get returns the build metadata, filling commit and time from VCS info when ldflags left them empty.
func Get() Info {
	readBuildInfo.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	})
	return Info{Version: Version, CommitHash: CommitHash, BuildTime: BuildTime}
}

// GetInfo returns a formatted version string including the version and short commit hash.
func GetInfo() string {
	info := Get()
	res := info.Version
	if info.CommitHash != "" {
		shortHash := info.CommitHash
		if len(shortHash) > 7 {
			shortHash = shortHash[:7]
		}
		res += fmt.Sprintf(" (%s)", shortHash)
	}
	return res
}
