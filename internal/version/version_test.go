package version

import (
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	tests := []struct{ in, want string }{
		{"v0.3.0", "0.3.0"},
		{"0.3.0", "0.3.0"},
		{"dev", "dev"},
	}
	for _, tc := range tests {
		Version = tc.in
		if got := Short(); got != tc.want {
			t.Errorf("Short() with Version=%q = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMap(t *testing.T) {
	m := Map()
	for _, k := range []string{"version", "git_commit", "build_date", "go_version"} {
		if m[k] == "" {
			t.Errorf("Map()[%q] is empty", k)
		}
	}
}

func TestInfo_TruncatesCommit(t *testing.T) {
	origV, origC := Version, GitCommit
	defer func() { Version, GitCommit = origV, origC }()
	Version, GitCommit = "v1.2.3", "0123456789abcdef"

	s := Info()
	if !strings.HasPrefix(s, "sleepcast 1.2.3 (0123456,") {
		t.Errorf("Info() = %q", s)
	}
}
