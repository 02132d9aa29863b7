package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vorpal/internal/shared"
)

// ---------- Command tree tests ----------

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, name := range []string{"build", "hash", "validate", "keys", "prune"} {
		assert.Contains(t, names, name, "missing subcommand: %s", name)
	}
}

func TestRootCommandVersion(t *testing.T) {
	root := newRootCommand()
	assert.Equal(t, "dev", root.Version)
}

func TestBuildCommandFlags(t *testing.T) {
	cmd := newBuildCommand()
	flags := []string{
		"graph", "target", "jobs", "endpoint",
		"package-root", "private-key", "age-identity", "algorithm",
		"lockfile",
	}
	for _, name := range flags {
		flag := cmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "missing flag: %s", name)
	}
	assert.Equal(t, "1", cmd.Flags().Lookup("jobs").DefValue)
}

func TestHashCommandFlags(t *testing.T) {
	cmd := newHashCommand()
	assert.NotNil(t, cmd.Flags().Lookup("source"))
	assert.NotNil(t, cmd.Flags().Lookup("ignore"))
	assert.NotNil(t, cmd.Flags().Lookup("algorithm"))
}

func TestValidateCommandFlags(t *testing.T) {
	cmd := newValidateCommand()
	assert.NotNil(t, cmd.Flags().Lookup("graph"))
	assert.NotNil(t, cmd.Flags().Lookup("target"))
}

func TestPruneCommandFlags(t *testing.T) {
	cmd := newPruneCommand()
	for _, name := range []string{"package-root", "keep-last", "keep-days", "protect-key", "protect-name", "lockfile", "dry-run"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag: %s", name)
	}
	assert.Equal(t, "true", cmd.Flags().Lookup("dry-run").DefValue)
}

func TestKeysGenerateCommand(t *testing.T) {
	cmd := newKeysCommand()
	generate, _, err := cmd.Find([]string{"generate"})
	require.NoError(t, err)
	assert.Equal(t, "generate", generate.Name())
	assert.NotNil(t, generate.Flags().Lookup("dir"))
	assert.NotNil(t, generate.Flags().Lookup("encrypt-to"))
}

func TestHashCommandPrintsSourceHash(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "example.txt"), []byte("hello\n"), 0o644))

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"hash", "--source", dir, "--algorithm", "sha256"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	hash := strings.TrimSpace(out.String())
	assert.Len(t, hash, 64)

	out.Reset()
	root = newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"hash", "--source", dir, "--algorithm", "sha256"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, hash, strings.TrimSpace(out.String()))
}

func TestValidateCommandPrintsOrder(t *testing.T) {
	dir := t.TempDir()
	graph := filepath.Join(dir, "vorpal.yaml")
	content := `packages:
  - name: app
    source: {kind: local, uri: .}
    script: make
    depends_on: [lib]
  - name: lib
    source: {kind: local, uri: .}
    script: make
`
	require.NoError(t, os.WriteFile(graph, []byte(content), 0o644))

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--graph", graph})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "1. lib\n2. app\n", out.String())
}

// ---------- Helper function tests ----------

func TestResolveString(t *testing.T) {
	tests := []struct {
		name     string
		cmd      *cobra.Command
		value    string
		expected string
	}{
		{
			name:     "nil cmd with value returns value",
			cmd:      nil,
			value:    "explicit",
			expected: "explicit",
		},
		{
			name:     "nil cmd empty value returns empty",
			cmd:      nil,
			value:    "",
			expected: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveString(tt.cmd, tt.value, "test_key", "test-flag")
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveStrings(t *testing.T) {
	tests := []struct {
		name     string
		cmd      *cobra.Command
		values   []string
		expected []string
	}{
		{
			name:     "nil cmd with values returns values",
			cmd:      nil,
			values:   []string{"a", "b"},
			expected: []string{"a", "b"},
		},
		{
			name:     "nil cmd empty returns nil",
			cmd:      nil,
			values:   nil,
			expected: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveStrings(tt.cmd, tt.values, "test_key", "test-flag")
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveBool(t *testing.T) {
	got := resolveBool(nil, true, "test_key", "test-flag")
	assert.True(t, got)

	got = resolveBool(nil, false, "test_key", "test-flag")
	assert.False(t, got)
}

func TestResolveInt(t *testing.T) {
	got := resolveInt(nil, 42, "test_key", "test-flag")
	assert.Equal(t, 42, got)
}

func TestFlagChanged(t *testing.T) {
	assert.False(t, flagChanged(nil, "anything"), "nil cmd should return false")
	assert.False(t, flagChanged(nil, ""), "nil cmd with empty name")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("myflag", "", "test flag")
	assert.False(t, flagChanged(cmd, "myflag"), "unchanged flag")
	assert.False(t, flagChanged(cmd, "nonexistent"), "nonexistent flag")
}

func TestFlagChangedAfterSet(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("myflag", "", "test flag")
	require.NoError(t, cmd.Flags().Set("myflag", "val"))
	assert.True(t, flagChanged(cmd, "myflag"))
}

// ---------- Exit code tests ----------

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid graph", shared.Fail(shared.KindInvalidGraph, shared.StageGraph, "cycle: a -> a", nil), 2},
		{"invalid package", shared.Fail(shared.KindInvalidPackage, shared.StageGraph, "bad name", nil), 2},
		{"empty source", shared.Fail(shared.KindEmptySource, shared.StageFingerprint, "no files", nil), 3},
		{"signing key", shared.Fail(shared.KindSigningKeyUnavailable, shared.StageSign, "missing", nil), 4},
		{"transport", shared.Fail(shared.KindTransport, shared.StagePrepare, "refused", nil), 5},
		{"protocol violation", shared.Fail(shared.KindProtocolViolation, shared.StageBuild, "MissingOutputIdentity", nil), 6},
		{"store consistency", shared.Fail(shared.KindStoreConsistency, shared.StageStore, "not a dir", nil), 7},
		{"io", shared.Fail(shared.KindIO, shared.StageStore, "disk full", nil), 7},
		{
			name: "invalid argument",
			err: errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("bad input"),
			expected: 2,
		},
		{
			name: "internal error",
			err: errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("boom"),
			expected: 1,
		},
		{"unknown error", assert.AnError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exitCodeForError(tt.err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name: "errbuilder with msg",
			err: errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("something broke"),
			expected: "something broke",
		},
		{
			name:     "failure with kind",
			err:      shared.Fail(shared.KindTransport, shared.StagePrepare, "executor unreachable", assert.AnError),
			expected: "executor unreachable",
		},
		{
			name:     "plain error",
			err:      assert.AnError,
			expected: assert.AnError.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorMessage(tt.err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
