// Package testutil provides shared test helpers used across integration,
// e2e, and unit test packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// WriteFiles creates each slash-separated relative path under root with
// the given content.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// GraphFile is a two-package graph where "consumer" copies a file out of
// its dependency "example". Sources live under ./example and ./consumer.
const GraphFile = `packages:
  - name: example
    script: echo "hello" >> example.txt
    install_script: cp example.txt $output/example.txt
    source:
      uri: ./example
      ignore_paths: [.git]
  - name: consumer
    script: cat "$example/example.txt" > copied.txt
    install_script: cp copied.txt $output/copied.txt
    source:
      uri: ./consumer
    depends_on: [example]
`

// WriteGraphWorkspace lays out GraphFile and its sources under a new temp
// directory and returns the graph file path.
func WriteGraphWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	WriteFiles(t, dir, map[string]string{
		"example/README":    "example\n",
		"example/.git/HEAD": "ref\n",
		"consumer/main.c":   "int main;\n",
		"vorpal.graph.yaml": GraphFile,
	})
	return filepath.Join(dir, "vorpal.graph.yaml")
}
