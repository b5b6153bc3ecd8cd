package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestScanner_ClassifiesFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "math_utils.py", "class Calculator:\n    def add(self, a, b):\n        return a + b\n")
	writeFile(t, root, "pkg/main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "README.md", "# toy\n")
	writeFile(t, root, "scripts/build.sh", "#!/bin/sh\necho build\n")
	writeFile(t, root, "notes.txt", "ignored\n")
	writeFile(t, root, "node_modules/lib/index.js", "function x() {}\n")
	writeFile(t, root, "generated/out.py", "def gen(): pass\n")
	writeFile(t, root, ".codeqaignore", "generated/\n")

	s := NewScanner(WithScannerLogger(discardLogger()))
	res, err := s.Scan(context.Background(), root)
	require.NoError(t, err)

	var sources []string
	for _, f := range res.SourceFiles {
		sources = append(sources, f.Path)
	}
	assert.ElementsMatch(t, []string{"math_utils.py", "pkg/main.go"}, sources)

	var specials []string
	for _, f := range res.SpecialFiles {
		specials = append(specials, f.Path)
	}
	assert.ElementsMatch(t, []string{"README.md", "scripts/build.sh"}, specials)

	for _, f := range res.SourceFiles {
		if f.Path == "math_utils.py" {
			assert.Equal(t, LanguagePython, f.Language)
		}
		if f.Path == "pkg/main.go" {
			assert.Equal(t, LanguageGo, f.Language)
		}
	}
}

func TestScanner_MissingRoot(t *testing.T) {
	s := NewScanner(WithScannerLogger(discardLogger()))
	_, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestScanner_RootIsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x = 1\n")

	s := NewScanner(WithScannerLogger(discardLogger()))
	_, err := s.Scan(context.Background(), filepath.Join(root, "a.py"))
	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestScanner_SkipsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	writeFile(t, root, "ok.py", "def ok(): pass\n")
	writeFile(t, root, "locked/hidden.py", "def hidden(): pass\n")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	s := NewScanner(WithScannerLogger(discardLogger()))
	res, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, res.SourceFiles, 1)
	assert.Equal(t, "ok.py", res.SourceFiles[0].Path)
}
