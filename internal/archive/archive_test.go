package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"example.txt":       "hello\n",
		"nested/deep/a.bin": "\x00\x01\x02",
		"nested/b.txt":      "",
	}
	writeTree(t, src, files)
	require.NoError(t, os.Chmod(filepath.Join(src, "nested", "b.txt"), 0o755))

	var buf bytes.Buffer
	require.NoError(t, PackDir(&buf, src))

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, Unpack(bytes.NewReader(buf.Bytes()), dest))

	unpacked, err := Collect(dest)
	require.NoError(t, err)
	require.Len(t, unpacked, len(files))
	for rel, content := range files {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, content, string(data), rel)
	}
	info, err := os.Stat(filepath.Join(dest, "nested", "b.txt"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestPackIsReproducible(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"b.txt": "b", "a.txt": "a", "dir/c.txt": "c"})

	var first, second bytes.Buffer
	require.NoError(t, PackDir(&first, src))
	require.NoError(t, os.Chtimes(filepath.Join(src, "a.txt"), testTime, testTime))
	require.NoError(t, PackDir(&second, src))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestPackSymlink(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"real.txt": "data"})
	require.NoError(t, os.Symlink("real.txt", filepath.Join(src, "link.txt")))

	var buf bytes.Buffer
	require.NoError(t, PackDir(&buf, src))
	dest := t.TempDir()
	require.NoError(t, Unpack(&buf, dest))

	target, err := os.Readlink(filepath.Join(dest, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", target)
}

func TestUnpackRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	payload := []byte("evil")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(payload))}))
	_, err := tw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	dest := filepath.Join(t.TempDir(), "dest")
	err = Unpack(&buf, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

type tarEntry struct {
	name     string
	linkname string
	body     string
	typeflag byte
}

func tarStream(t *testing.T, entries ...tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		header := &tar.Header{Name: e.name, Typeflag: e.typeflag, Mode: 0o644}
		switch e.typeflag {
		case tar.TypeSymlink:
			header.Linkname = e.linkname
			header.Mode = 0o777
		case tar.TypeDir:
			header.Mode = 0o755
		default:
			header.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(header))
		if header.Size > 0 {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return &buf
}

func TestUnpackRejectsWriteThroughOutsideSymlink(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	dest := filepath.Join(base, "dest")

	stream := tarStream(t,
		tarEntry{name: "link", linkname: outside, typeflag: tar.TypeSymlink},
		tarEntry{name: "link/evil.txt", body: "evil", typeflag: tar.TypeReg},
	)
	err := Unpack(stream, dest)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(outside, "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUnpackRejectsUnsafeSymlinks(t *testing.T) {
	tests := []struct {
		name     string
		entries  []tarEntry
		contains string
	}{
		{
			name:     "absolute target",
			entries:  []tarEntry{{name: "link", linkname: "/etc", typeflag: tar.TypeSymlink}},
			contains: "absolute target",
		},
		{
			name:     "relative target above root",
			entries:  []tarEntry{{name: "sub/link", linkname: "../../outside", typeflag: tar.TypeSymlink}},
			contains: "escapes destination",
		},
		{
			name:     "empty target",
			entries:  []tarEntry{{name: "link", typeflag: tar.TypeSymlink}},
			contains: "empty target",
		},
		{
			name: "dot-dot after a named element",
			entries: []tarEntry{
				{name: "d/up", linkname: "../x", typeflag: tar.TypeSymlink},
				{name: "d/out", linkname: "up/../..", typeflag: tar.TypeSymlink},
			},
			contains: "named element",
		},
		{
			name: "write through in-tree symlink",
			entries: []tarEntry{
				{name: "real/keep.txt", body: "keep", typeflag: tar.TypeReg},
				{name: "alias", linkname: "real", typeflag: tar.TypeSymlink},
				{name: "alias/keep.txt", body: "overwritten", typeflag: tar.TypeReg},
			},
			contains: "traverses symlink",
		},
		{
			name: "file replaces symlink",
			entries: []tarEntry{
				{name: "real.txt", body: "keep", typeflag: tar.TypeReg},
				{name: "link.txt", linkname: "real.txt", typeflag: tar.TypeSymlink},
				{name: "link.txt", body: "overwritten", typeflag: tar.TypeReg},
			},
			contains: "link.txt",
		},
		{
			name: "directory replaces symlink",
			entries: []tarEntry{
				{name: "link", linkname: "real", typeflag: tar.TypeSymlink},
				{name: "link", typeflag: tar.TypeDir},
			},
			contains: "replaces an existing entry",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			err := Unpack(tarStream(t, tt.entries...), dest)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)

			if data, readErr := os.ReadFile(filepath.Join(dest, "real", "keep.txt")); readErr == nil {
				assert.Equal(t, "keep", string(data))
			}
			if data, readErr := os.ReadFile(filepath.Join(dest, "real.txt")); readErr == nil {
				assert.Equal(t, "keep", string(data))
			}
		})
	}
}

func TestUnpackAllowsInTreeSymlinks(t *testing.T) {
	dest := t.TempDir()
	stream := tarStream(t,
		tarEntry{name: "lib/libz.so.1", body: "elf", typeflag: tar.TypeReg},
		tarEntry{name: "lib/libz.so", linkname: "libz.so.1", typeflag: tar.TypeSymlink},
		tarEntry{name: "bin/libz", linkname: "../lib/libz.so", typeflag: tar.TypeSymlink},
	)
	require.NoError(t, Unpack(stream, dest))

	data, err := os.ReadFile(filepath.Join(dest, "bin", "libz"))
	require.NoError(t, err)
	assert.Equal(t, "elf", string(data))
}

func TestUnpackRejectsGarbage(t *testing.T) {
	err := Unpack(bytes.NewReader([]byte("not gzip")), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip reader")
}
