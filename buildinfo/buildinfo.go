// Package buildinfo holds the version metadata stamped in at link time:
//
//	go build -ldflags "\
//	  -X github.com/dotside-studios/ndefscan/buildinfo.Version=1.0.0 \
//	  -X github.com/dotside-studios/ndefscan/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/dotside-studios/ndefscan/buildinfo.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import (
	"fmt"
	"runtime"
)

var (
	// DirName prefixes files the agent writes, such as the exported CA.
	DirName = "ndefscan"

	// DisplayName is announced over mDNS and shown in logs.
	DisplayName = "NDEF Scan Agent"

	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// FullVersion returns Version, followed by the commit when one was stamped.
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// Summary is the startup banner: name, version, toolchain and platform.
func Summary() string {
	s := fmt.Sprintf("%s %s, %s %s/%s", DisplayName, FullVersion(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		s += ", built " + BuildTime
	}
	return s
}
