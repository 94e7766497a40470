package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldSHA, oldT := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldT }()

	Version, GitSHA, BuildTime = "0.3.0", "0123456789abcdef", "2026-01-02T03:04:05Z"
	if got, want := String(), "0.3.0 (0123456, built 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	GitSHA = "abc"
	if got := Get(); got.GitSHA != "abc" || got.Version != "0.3.0" {
		t.Errorf("Get() = %+v", got)
	}
}
