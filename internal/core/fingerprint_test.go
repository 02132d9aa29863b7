package core

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vorpal/internal/adapters"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

func digestsFrom(paths []string, contents []string) []types.FileDigest {
	entries := make([]types.FileDigest, 0, len(paths))
	for i, p := range paths {
		content := ""
		if i < len(contents) {
			content = contents[i]
		}
		entries = append(entries, types.FileDigest{
			RelativePath: fmt.Sprintf("%03d/%s", i, p),
			ContentHash:  content,
		})
	}
	return entries
}

func TestAggregateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate is deterministic", prop.ForAll(
		func(paths []string, contents []string) bool {
			entries := digestsFrom(paths, contents)
			if len(entries) == 0 {
				return true
			}
			first, err1 := Aggregate(types.HashAlgorithmSHA256, entries)
			second, err2 := Aggregate(types.HashAlgorithmSHA256, entries)
			return err1 == nil && err2 == nil && first.Hash == second.Hash
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("enumeration order never changes the hash", prop.ForAll(
		func(paths []string, contents []string, seed int64) bool {
			entries := digestsFrom(paths, contents)
			if len(entries) == 0 {
				return true
			}
			shuffled := append([]types.FileDigest(nil), entries...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			ordered, err1 := Aggregate(types.HashAlgorithmBLAKE3, entries)
			permuted, err2 := Aggregate(types.HashAlgorithmBLAKE3, shuffled)
			return err1 == nil && err2 == nil && ordered.Hash == permuted.Hash
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
		gen.Int64(),
	))

	properties.Property("changing any content changes the hash", prop.ForAll(
		func(paths []string, contents []string, pick int) bool {
			entries := digestsFrom(paths, contents)
			if len(entries) == 0 {
				return true
			}
			before, err := Aggregate(types.HashAlgorithmSHA256, entries)
			if err != nil {
				return false
			}
			mutated := append([]types.FileDigest(nil), entries...)
			idx := pick % len(mutated)
			mutated[idx].ContentHash += "x"
			after, err := Aggregate(types.HashAlgorithmSHA256, mutated)
			return err == nil && before.Hash != after.Hash
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func TestAggregateSortsBytewise(t *testing.T) {
	fp, err := Aggregate("", []types.FileDigest{
		{RelativePath: "b", ContentHash: "2"},
		{RelativePath: "B", ContentHash: "1"},
		{RelativePath: "a/z", ContentHash: "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.HashAlgorithmSHA256, fp.Algorithm)
	assert.Equal(t, []string{"B", "a/z", "b"}, []string{fp.Entries[0].RelativePath, fp.Entries[1].RelativePath, fp.Entries[2].RelativePath})
	assert.Len(t, fp.Hash, 64)
}

func TestAggregateSeparatesPathAndContent(t *testing.T) {
	left, err := Aggregate("", []types.FileDigest{{RelativePath: "ab", ContentHash: "c"}})
	require.NoError(t, err)
	right, err := Aggregate("", []types.FileDigest{{RelativePath: "a", ContentHash: "bc"}})
	require.NoError(t, err)
	assert.NotEqual(t, left.Hash, right.Hash)
}

func TestAggregateErrors(t *testing.T) {
	_, err := Aggregate("", nil)
	assert.Equal(t, shared.KindEmptySource, shared.KindOf(err))

	_, err = Aggregate("md5", []types.FileDigest{{RelativePath: "a", ContentHash: "1"}})
	assert.Equal(t, shared.KindInvalidPackage, shared.KindOf(err))
}

func writeSource(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func fingerprintOf(t *testing.T, root string, ignore ...string) string {
	t.Helper()
	fp, _, err := NewFingerprinter(adapters.NewSourceTreeAdapter(), "").Fingerprint(context.Background(), root, ignore)
	require.NoError(t, err)
	return fp.Hash
}

func TestFingerprintSensitivity(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, map[string]string{
		"src/main.c":  "int main(void) { return 0; }\n",
		"README":      "docs\n",
		".git/HEAD":   "ref: refs/heads/main\n",
		".git/config": "[core]\n",
	})
	base := fingerprintOf(t, root, ".git")
	assert.Equal(t, base, fingerprintOf(t, root, ".git"))

	writeSource(t, root, map[string]string{".git/HEAD": "ref: refs/heads/other\n"})
	assert.Equal(t, base, fingerprintOf(t, root, ".git"), "ignored content must not matter")

	writeSource(t, root, map[string]string{"README": "docs!\n"})
	assert.NotEqual(t, base, fingerprintOf(t, root, ".git"))
}

func TestFingerprintIsMachineIndependent(t *testing.T) {
	files := map[string]string{"a.txt": "a", "nested/b.txt": "b"}
	first := t.TempDir()
	second := filepath.Join(t.TempDir(), "elsewhere", "copy")
	writeSource(t, first, files)
	writeSource(t, second, files)

	assert.Equal(t, fingerprintOf(t, first), fingerprintOf(t, second))
}

func TestFingerprintAlgorithms(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, map[string]string{"a.txt": "a"})
	ctx := context.Background()

	sha, files, err := NewFingerprinter(adapters.NewSourceTreeAdapter(), types.HashAlgorithmSHA256).Fingerprint(ctx, root, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	b3, _, err := NewFingerprinter(adapters.NewSourceTreeAdapter(), types.HashAlgorithmBLAKE3).Fingerprint(ctx, root, nil)
	require.NoError(t, err)

	assert.NotEqual(t, sha.Hash, b3.Hash)
	assert.Equal(t, types.HashAlgorithmBLAKE3, b3.Algorithm)

	_, _, err = NewFingerprinter(adapters.NewSourceTreeAdapter(), "crc32").Fingerprint(ctx, root, nil)
	assert.Equal(t, shared.KindInvalidPackage, shared.KindOf(err))
}

func TestFingerprintEmptySource(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, map[string]string{".git/HEAD": "x"})

	_, _, err := NewFingerprinter(adapters.NewSourceTreeAdapter(), "").Fingerprint(context.Background(), root, []string{".git"})
	assert.Equal(t, shared.KindEmptySource, shared.KindOf(err))
}
