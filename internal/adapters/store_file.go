package adapters

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"vorpal/internal/archive"
	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

const (
	sourceArchiveSuffix = ".source.tar.gz"
	outputArchiveSuffix = ".tar.gz"
	readOnlyFileMode    = 0o444
	readOnlyExecMode    = 0o555
)

// FileStore is the content-addressed store rooted at one package-root
// directory. Entries are published with a link or rename so a path that
// exists is always complete.
type FileStore struct {
	root string
}

func NewFileStore(root string) FileStore {
	return FileStore{root: root}
}

func (s FileStore) Root() string {
	return s.root
}

func (s FileStore) SourceArchivePath(name string, hash string) string {
	return filepath.Join(s.root, types.StoreKey(name, hash)+sourceArchiveSuffix)
}

func (s FileStore) OutputArchivePath(output types.PackageOutput) string {
	return filepath.Join(s.root, output.Key()+outputArchiveSuffix)
}

func (s FileStore) OutputDir(output types.PackageOutput) string {
	return filepath.Join(s.root, output.Key())
}

func (s FileStore) EnsureSourceArchive(ctx context.Context, name string, hash string, files []types.SourceFile) (string, error) {
	if err := types.ValidateStoreKey(name, hash); err != nil {
		return "", shared.Fail(shared.KindInvalidPackage, shared.StageStore, "invalid source archive key", err)
	}
	target := s.SourceArchivePath(name, hash)
	reused, err := existingFile(target)
	if err != nil {
		return "", err
	}
	if reused {
		log.Ctx(ctx).Debug().Str("path", target).Msg("source archive reused")
		return target, nil
	}
	if len(files) == 0 {
		return "", shared.Fail(shared.KindEmptySource, shared.StageStore, "no files to archive for "+name, nil)
	}
	if err := s.publishFile(target, func(w io.Writer) error {
		return archive.Pack(w, files)
	}); err != nil {
		return "", err
	}
	log.Ctx(ctx).Debug().Str("path", target).Msg("source archive written")
	return target, nil
}

func (s FileStore) MaterializeOutput(ctx context.Context, output types.PackageOutput, payload []byte) (string, error) {
	if err := types.ValidateStoreKey(output.Name, output.Hash); err != nil {
		return "", shared.Fail(shared.KindProtocolViolation, shared.StageStore, "invalid output identity", err)
	}
	dir := s.OutputDir(output)
	info, err := os.Lstat(dir)
	switch {
	case err == nil && info.IsDir():
		log.Ctx(ctx).Debug().Str("path", dir).Msg("output directory reused")
		return dir, nil
	case err == nil:
		return "", consistencyError(dir, "expected a directory")
	case !errors.Is(err, fs.ErrNotExist):
		return "", shared.Fail(shared.KindIO, shared.StageStore, "failed to stat "+dir, err)
	}

	archivePath := s.OutputArchivePath(output)
	reused, err := existingFile(archivePath)
	if err != nil {
		return "", err
	}
	if !reused {
		if len(payload) == 0 {
			return "", shared.Fail(shared.KindProtocolViolation, shared.StageStore, "compressed result for "+output.Key()+" has no payload", nil)
		}
		if err := s.publishFile(archivePath, func(w io.Writer) error {
			_, err := w.Write(payload)
			return err
		}); err != nil {
			return "", err
		}
	}
	if err := s.publishDir(archivePath, dir); err != nil {
		return "", err
	}
	log.Ctx(ctx).Debug().Str("path", dir).Msg("output unpacked")
	return dir, nil
}

// publishFile writes a temp file next to target, makes it read-only and
// hard-links it into place. Losing a race to another writer is not an
// error: the winner's entry is kept.
func (s FileStore) publishFile(target string, write func(io.Writer) error) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to create package root", err)
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := write(tmp); err != nil {
		tmp.Close()
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to write "+filepath.Base(target), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to sync "+filepath.Base(target), err)
	}
	if err := tmp.Close(); err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to close "+filepath.Base(target), err)
	}
	if err := os.Chmod(tmpPath, readOnlyFileMode); err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to set read-only "+filepath.Base(target), err)
	}
	if err := os.Link(tmpPath, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			_, err := existingFile(target)
			return err
		}
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to publish "+filepath.Base(target), err)
	}
	return nil
}

// publishDir unpacks archivePath into a temp directory and renames it to
// dir once every file is read-only.
func (s FileStore) publishDir(archivePath string, dir string) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to read "+filepath.Base(archivePath), err)
	}
	tmpDir, err := os.MkdirTemp(s.root, ".tmp-"+filepath.Base(dir)+"-*")
	if err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to create temp directory", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := archive.Unpack(bytes.NewReader(data), tmpDir); err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to unpack "+filepath.Base(archivePath), err)
	}
	if err := makeFilesReadOnly(tmpDir); err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to set read-only "+filepath.Base(dir), err)
	}
	if err := os.Rename(tmpDir, dir); err != nil {
		if info, statErr := os.Lstat(dir); statErr == nil && info.IsDir() {
			return nil
		}
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to publish "+filepath.Base(dir), err)
	}
	return nil
}

// makeFilesReadOnly drops write bits from every regular file under dir.
// Directories keep their mode so the store root stays prunable.
func makeFilesReadOnly(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := fs.FileMode(readOnlyFileMode)
		if info.Mode()&0o111 != 0 {
			mode = readOnlyExecMode
		}
		return os.Chmod(p, mode)
	})
}

// existingFile reports whether target exists as a regular file. Any other
// shape at that path violates the store layout.
func existingFile(target string) (bool, error) {
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, shared.Fail(shared.KindIO, shared.StageStore, "failed to stat "+target, err)
	}
	if !info.Mode().IsRegular() {
		return false, consistencyError(target, "expected a regular file")
	}
	return true, nil
}

func consistencyError(target string, want string) error {
	return shared.Fail(shared.KindStoreConsistency, shared.StageStore, "store entry "+target+" has unexpected shape: "+want, nil)
}

var _ ports.StorePort = FileStore{}
