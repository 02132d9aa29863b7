// Package archive writes and reads the tar.gz archives held by the store.
//
// Archives are reproducible: entries are written in relative path order
// with zeroed timestamps and ownership, and modes normalized to 0644 or
// 0755. Unpacking refuses entries that would escape the destination,
// directly or through a symlink.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"vorpal/internal/types"
)

// Pack writes files as a gzip-compressed tar stream to w.
func Pack(w io.Writer, files []types.SourceFile) error {
	sorted := make([]types.SourceFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RelativePath < sorted[j].RelativePath
	})

	gw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(gw)
	for _, file := range sorted {
		if err := writeEntry(tw, file); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

// PackDir archives every regular file and symlink under dir.
func PackDir(w io.Writer, dir string) error {
	files, err := Collect(dir)
	if err != nil {
		return err
	}
	return Pack(w, files)
}

// Collect lists regular files and symlinks under dir with slash-separated
// relative paths.
func Collect(dir string) ([]types.SourceFile, error) {
	var files []types.SourceFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		file, ok, err := Describe(p, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Describe stats p and reports whether it is an archivable entry.
func Describe(p string, rel string) (types.SourceFile, bool, error) {
	info, err := os.Lstat(p)
	if err != nil {
		return types.SourceFile{}, false, err
	}
	file := types.SourceFile{
		RelativePath: rel,
		AbsolutePath: p,
		Mode:         info.Mode(),
		Size:         info.Size(),
	}
	switch {
	case info.Mode().IsRegular():
		return file, true, nil
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(p)
		if err != nil {
			return types.SourceFile{}, false, err
		}
		file.LinkTarget = target
		return file, true, nil
	default:
		return types.SourceFile{}, false, nil
	}
}

func writeEntry(tw *tar.Writer, file types.SourceFile) error {
	header := &tar.Header{
		Name:    file.RelativePath,
		ModTime: time.Unix(0, 0),
		Format:  tar.FormatPAX,
	}
	if file.IsSymlink() {
		header.Typeflag = tar.TypeSymlink
		header.Linkname = file.LinkTarget
		header.Mode = 0o777
		return tw.WriteHeader(header)
	}
	header.Typeflag = tar.TypeReg
	header.Mode = normalizedMode(file.Mode)

	f, err := os.Open(file.AbsolutePath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	header.Size = info.Size()
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archive %s: %w", file.RelativePath, err)
	}
	return nil
}

func normalizedMode(mode fs.FileMode) int64 {
	if mode&0o111 != 0 {
		return 0o755
	}
	return 0o644
}

// Unpack extracts a gzip-compressed tar stream into dest, creating it if
// needed. Entries may not leave dest, pass through a symlink, or replace an
// entry written earlier in the stream. Symlinks must be relative and resolve
// inside dest.
func Unpack(r io.Reader, dest string) error {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	tr := tar.NewReader(gr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar reader: %w", err)
		}
		clean, err := cleanEntryName(header.Name)
		if err != nil {
			return err
		}
		if err := checkParents(dest, clean); err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(clean))
		switch header.Typeflag {
		case tar.TypeDir:
			if info, err := os.Lstat(target); err == nil && !info.IsDir() {
				return fmt.Errorf("tar entry %q replaces an existing entry", header.Name)
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := mkdirParent(target); err != nil {
				return err
			}
			if err := writeFile(target, tr, fs.FileMode(header.Mode)&0o755|0o400); err != nil {
				return fmt.Errorf("tar entry %q: %w", header.Name, err)
			}
		case tar.TypeSymlink:
			if err := checkLinkTarget(clean, header.Linkname); err != nil {
				return err
			}
			if err := mkdirParent(target); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("tar entry %q: %w", header.Name, err)
			}
		default:
			return fmt.Errorf("unsupported tar entry %s (type %c)", header.Name, header.Typeflag)
		}
	}
}

func mkdirParent(target string) error {
	return os.MkdirAll(filepath.Dir(target), 0o755)
}

// writeFile refuses to open an existing path so a regular entry can never
// be written through a symlink placed by an earlier entry.
func writeFile(target string, r io.Reader, mode fs.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cleanEntryName(name string) (string, error) {
	clean := path.Clean(name)
	if path.IsAbs(clean) || escapes(clean) || clean == "." {
		return "", fmt.Errorf("tar entry %q escapes destination", name)
	}
	return clean, nil
}

func escapes(clean string) bool {
	return clean == ".." || strings.HasPrefix(clean, "../")
}

// checkParents walks the directories above clean and fails if any of the
// ones already on disk is a symlink or not a directory.
func checkParents(dest string, clean string) error {
	dir := path.Dir(clean)
	if dir == "." {
		return nil
	}
	current := dest
	for _, part := range strings.Split(dir, "/") {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("tar entry %q traverses symlink %s", clean, part)
		}
		if !info.IsDir() {
			return fmt.Errorf("tar entry %q: parent %s is not a directory", clean, part)
		}
	}
	return nil
}

// checkLinkTarget accepts only relative link targets that stay inside the
// archive root when resolved from the link's own directory.
func checkLinkTarget(clean string, linkname string) error {
	if linkname == "" {
		return fmt.Errorf("symlink %q has an empty target", clean)
	}
	if path.IsAbs(linkname) || filepath.IsAbs(linkname) || strings.Contains(linkname, "\\") {
		return fmt.Errorf("symlink %q has absolute target %q", clean, linkname)
	}
	if escapes(path.Join(path.Dir(clean), linkname)) {
		return fmt.Errorf("symlink %q target %q escapes destination", clean, linkname)
	}
	// ".." after a named element would be resolved against whatever that
	// element points to on disk, not against its lexical parent.
	named := false
	for _, part := range strings.Split(linkname, "/") {
		switch part {
		case "", ".":
		case "..":
			if named {
				return fmt.Errorf("symlink %q target %q climbs out of a named element", clean, linkname)
			}
		default:
			named = true
		}
	}
	return nil
}
