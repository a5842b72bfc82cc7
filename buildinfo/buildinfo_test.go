package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func stamp(t *testing.T, version, commit, built string) {
	oldVersion, oldCommit, oldBuilt := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldVersion, oldCommit, oldBuilt })
	Version, Commit, BuildTime = version, commit, built
}

func TestFullVersion(t *testing.T) {
	stamp(t, "1.2.0", "", "")
	if got := FullVersion(); got != "1.2.0" {
		t.Errorf("FullVersion() = %q", got)
	}
	Commit = "abc1234"
	if got := FullVersion(); got != "1.2.0 (abc1234)" {
		t.Errorf("FullVersion() = %q", got)
	}
}

func TestSummary(t *testing.T) {
	stamp(t, "dev", "", "")
	got := Summary()
	if !strings.HasPrefix(got, DisplayName+" dev, ") {
		t.Errorf("Summary() = %q, want it to start with the name and version", got)
	}
	if !strings.Contains(got, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Summary() = %q, missing platform", got)
	}
	if strings.Contains(got, "built") {
		t.Errorf("Summary() = %q, reports a build time that was never stamped", got)
	}

	BuildTime = "2026-01-02T03:04:05Z"
	if got := Summary(); !strings.HasSuffix(got, ", built 2026-01-02T03:04:05Z") {
		t.Errorf("Summary() = %q", got)
	}
}
