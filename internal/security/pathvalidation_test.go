package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "plots"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing subdirectory", filepath.Join(dir, "plots"), false},
		{"new file", filepath.Join(dir, "plots", "steering.png"), false},
		{"new nested file", filepath.Join(dir, "a", "b", "slope.png"), false},
		{"the directory itself", dir, false},
		{"parent escape", filepath.Join(dir, "..", "steering.png"), true},
		{"dotdot inside", filepath.Join(dir, "plots", "..", "..", "x"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, dir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathWithinDirectory_SymlinkParent(t *testing.T) {
	safe := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(safe, "out")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(link, "new.png"), safe); err == nil {
		t.Error("expected symlinked parent pointing outside to be rejected")
	}
}

func TestValidatePathWithinDirectory_MissingDir(t *testing.T) {
	if err := ValidatePathWithinDirectory("x", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestValidateExportPath(t *testing.T) {
	if err := ValidateExportPath(filepath.Join(os.TempDir(), "plots", "steering.png")); err != nil {
		t.Errorf("temp dir path rejected: %v", err)
	}
	if err := ValidateExportPath("steering.png"); err != nil {
		t.Errorf("working dir path rejected: %v", err)
	}
	if err := ValidateExportPath("/proc/self/steering.png"); err == nil {
		t.Error("expected /proc path to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                                     "unknown",
		"3f2c9a1e-0b7d-4c1e-9d2a-8e6f5a4b3c21": "3f2c9a1e-0b7d-4c1e-9d2a-8e6f5a4b3c21",
		"run 1/../../etc":                      "run_1_.._.._etc",
		"...":                                  "unknown",
		"__a b__":                              "a_b",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	if got := SanitizeFilename(strings.Repeat("x", 300)); len(got) != 128 {
		t.Errorf("len = %d, want 128", len(got))
	}
}
