package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfigFileInPaths(t *testing.T) {
	t.Parallel()

	empty := t.TempDir()
	withYAML := t.TempDir()
	if err := os.WriteFile(filepath.Join(withYAML, "sentinel.yaml"), []byte("gateway:\n  mode: enforce\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	withYML := t.TempDir()
	if err := os.WriteFile(filepath.Join(withYML, "sentinel.yml"), []byte(""), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if got := findConfigFileInPaths([]string{empty}); got != "" {
		t.Errorf("empty dir: found %q", got)
	}
	if got := findConfigFileInPaths([]string{empty, withYAML}); got != filepath.Join(withYAML, "sentinel.yaml") {
		t.Errorf("yaml search = %q", got)
	}
	if got := findConfigFileInPaths([]string{withYML}); got != filepath.Join(withYML, "sentinel.yml") {
		t.Errorf("yml search = %q", got)
	}
	// First match wins in search order.
	if got := findConfigFileInPaths([]string{withYAML, withYML}); got != filepath.Join(withYAML, "sentinel.yaml") {
		t.Errorf("precedence = %q", got)
	}
}

func TestFindConfigFileIgnoresExtensionlessBinary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// A file named exactly "sentinel" (like the built binary) must not match.
	if err := os.WriteFile(filepath.Join(dir, "sentinel"), []byte{0x7f, 'E', 'L', 'F'}, 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Errorf("matched the binary: %q", got)
	}
}
