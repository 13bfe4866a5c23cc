package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "1.2.3"
	Commit = "abc123"
	BuildTime = "2026-01-01T00:00:00Z"

	want := "1.2.3 (abc123) built 2026-01-01T00:00:00Z"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUserAgent(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() {
		Version, Commit = origVersion, origCommit
	}()

	Version = "dev"
	Commit = "unknown"

	ua := UserAgent()
	if !strings.HasPrefix(ua, "mmoclient/dev") {
		t.Errorf("UserAgent() = %q, want prefix %q", ua, "mmoclient/dev")
	}
	if !strings.Contains(ua, "unknown") {
		t.Errorf("UserAgent() = %q, should contain commit", ua)
	}
}
