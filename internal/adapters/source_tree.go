package adapters

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"vorpal/internal/archive"
	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

type SourceTreeAdapter struct{}

func NewSourceTreeAdapter() SourceTreeAdapter {
	return SourceTreeAdapter{}
}

func (a SourceTreeAdapter) Walk(root string, ignore []string) ([]types.SourceFile, error) {
	if strings.TrimSpace(root) == "" {
		return nil, shared.Fail(shared.KindIO, shared.StageFingerprint, "source root is empty", nil)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, shared.Fail(shared.KindIO, shared.StageFingerprint, "failed to read source root "+root, err)
	}
	if !info.IsDir() {
		return nil, shared.Fail(shared.KindIO, shared.StageFingerprint, "source root is not a directory: "+root, nil)
	}
	patterns := normalizeIgnore(ignore)

	var files []types.SourceFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if isIgnored(rel, patterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		file, ok, err := archive.Describe(p, rel)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		return nil, shared.Fail(shared.KindIO, shared.StageFingerprint, "failed to scan source tree "+root, err)
	}
	if len(files) == 0 {
		return nil, shared.Fail(shared.KindEmptySource, shared.StageFingerprint, "no files left under "+root+" after ignore filtering", nil)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})
	return files, nil
}

func (a SourceTreeAdapter) Open(file types.SourceFile) (io.ReadCloser, error) {
	if file.IsSymlink() {
		return io.NopCloser(strings.NewReader(file.LinkTarget)), nil
	}
	f, err := os.Open(file.AbsolutePath)
	if err != nil {
		return nil, shared.Fail(shared.KindIO, shared.StageFingerprint, "failed to open "+file.RelativePath, err)
	}
	return f, nil
}

func normalizeIgnore(ignore []string) []string {
	patterns := make([]string, 0, len(ignore))
	for _, entry := range ignore {
		entry = strings.TrimSpace(filepath.ToSlash(entry))
		if entry == "" {
			continue
		}
		entry = path.Clean(strings.TrimPrefix(entry, "./"))
		if entry == "." || entry == "/" {
			continue
		}
		patterns = append(patterns, strings.TrimPrefix(entry, "/"))
	}
	return patterns
}

// isIgnored matches rel exactly or as a leading directory, so ".git"
// excludes ".git/config" but not ".gitignore".
func isIgnored(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if rel == pattern || strings.HasPrefix(rel, pattern+"/") {
			return true
		}
	}
	return false
}

var _ ports.SourceTreePort = SourceTreeAdapter{}
