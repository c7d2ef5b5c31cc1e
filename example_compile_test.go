package normcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestExamplesBuild(t *testing.T) {
	if testing.Short() {
		t.Skip("builds every example with the go tool")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go tool not on PATH")
	}
	t.Parallel()
	examplesDir := "examples"

	entries, err := os.ReadDir(examplesDir)
	if err != nil {
		t.Fatalf("cannot read examples directory: %v", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(examplesDir, name)

		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if err := buildExampleWithoutTags(path); err != nil {
				t.Fatalf("example %q failed to build:\n%s", name, err)
			}
		})
	}
}

func abs(p string) string {
	a, err := filepath.Abs(p)
	if err != nil {
		panic(err)
	}
	return a
}

// buildExampleWithoutTags compiles main.go through an overlay with the ignore tag
// stripped, inside a throwaway module that replaces normcache with this checkout.
func buildExampleWithoutTags(exampleDir string) error {
	orig := filepath.Join(exampleDir, "main.go")
	src, err := os.ReadFile(orig)
	if err != nil {
		return fmt.Errorf("read main.go: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "example-overlay-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	tmpFile := filepath.Join(tmpDir, "main.go")
	if err := os.WriteFile(tmpFile, stripBuildTags(src), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "go.mod"), []byte(exampleBuildGoMod()), 0o644); err != nil {
		return err
	}

	overlayJSON, err := json.Marshal(map[string]any{
		"Replace": map[string]string{abs(orig): abs(tmpFile)},
	})
	if err != nil {
		return err
	}
	overlayPath := filepath.Join(tmpDir, "overlay.json")
	if err := os.WriteFile(overlayPath, overlayJSON, 0o644); err != nil {
		return err
	}

	cmd := exec.Command("go", "build", "-mod=mod", "-overlay", overlayPath, "-o", os.DevNull, ".")
	cmd.Dir = tmpDir
	cmd.Env = append(os.Environ(), "GOWORK=off")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.New(stderr.String())
	}
	return nil
}

func exampleBuildGoMod() string {
	root := filepath.ToSlash(abs("."))
	lines := []string{
		"module examplebuild",
		"",
		"go 1.24.4",
		"",
		"require github.com/goforj/normcache v0.0.0",
		"",
		"replace github.com/goforj/normcache => " + root,
		"",
	}
	return strings.Join(lines, "\n")
}

func stripBuildTags(src []byte) []byte {
	lines := strings.Split(string(src), "\n")
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "//go:build") || strings.HasPrefix(line, "// +build") || line == "" {
			i++
			continue
		}
		break
	}
	return []byte(strings.Join(lines[i:], "\n"))
}

func TestStripBuildTags(t *testing.T) {
	got := string(stripBuildTags([]byte("//go:build ignore\n// +build ignore\n\npackage main\n")))
	if got != "package main\n" {
		t.Fatalf("unexpected stripped source %q", got)
	}
}
