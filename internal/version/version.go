// Package version reports the build identity of pettracer-live.
//
// Version and Commit can be set at build time:
//
//	go build -ldflags="-X github.com/muurk/pettracer/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/pettracer/internal/version.Commit=4f1c2ab"
//
// Unset values are filled from the module's VCS stamp, then from a dev
// fallback.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

var (
	Version = ""
	Commit  = ""
)

const shortCommitLen = 7

// vcsStamp is the subset of debug.BuildInfo settings we use.
type vcsStamp struct {
	revision string
	modified bool
	time     time.Time
}

func init() {
	var stamp vcsStamp
	if info, ok := debug.ReadBuildInfo(); ok {
		stamp = readStamp(info.Settings)
	}
	Version, Commit = resolve(Version, Commit, stamp, time.Now())
}

func readStamp(settings []debug.BuildSetting) vcsStamp {
	var s vcsStamp
	for _, kv := range settings {
		switch kv.Key {
		case "vcs.revision":
			s.revision = kv.Value
		case "vcs.modified":
			s.modified = kv.Value == "true"
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, kv.Value); err == nil {
				s.time = t
			}
		}
	}
	return s
}

// resolve fills whatever ldflags left empty. Build tags are not in the VCS
// stamp, so a stamped build gets a dev version dated by its commit.
func resolve(version, commit string, stamp vcsStamp, now time.Time) (string, string) {
	if commit == "" && stamp.revision != "" {
		commit = stamp.revision
		if len(commit) > shortCommitLen {
			commit = commit[:shortCommitLen]
		}
		if stamp.modified {
			commit += "-dirty"
		}
	}
	if commit == "" {
		commit = "unknown"
	}

	if version == "" {
		switch {
		case !stamp.time.IsZero():
			version = "dev-" + stamp.time.Format("20060102")
		default:
			version = "dev-" + now.Format("20060102-150405")
		}
	}
	return version, commit
}

// Full returns the version with its commit.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent is sent on the WebSocket upgrade and API requests.
func UserAgent() string {
	return fmt.Sprintf("pettracer-live/%s (%s; %s/%s)", Version, Commit, runtime.GOOS, runtime.GOARCH)
}
