package adapters

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

const tempEntryPrefix = ".tmp-"

// ListEntries reports every complete entry under the package root.
// In-flight temp files and unrecognized names are skipped.
func (s FileStore) ListEntries(ctx context.Context) ([]types.StoreEntryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []types.StoreEntryInfo{}, nil
		}
		return nil, shared.Fail(shared.KindIO, shared.StageStore, "failed to read package root", err)
	}
	var entries []types.StoreEntryInfo
	for _, dirEntry := range dirEntries {
		base := dirEntry.Name()
		if strings.HasPrefix(base, tempEntryPrefix) {
			continue
		}
		kind, key, ok := classifyEntry(base, dirEntry.IsDir())
		if !ok {
			continue
		}
		name, hash, ok := splitStoreKey(key)
		if !ok {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			return nil, shared.Fail(shared.KindIO, shared.StageStore, "failed to read entry info "+base, err)
		}
		entries = append(entries, types.StoreEntryInfo{
			Kind:      kind,
			Name:      name,
			Hash:      hash,
			Path:      filepath.Join(s.root, base),
			CreatedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// RemoveEntry deletes one entry. The path is recomputed from the entry's
// kind and key so callers cannot point it outside the package root.
func (s FileStore) RemoveEntry(ctx context.Context, entry types.StoreEntryInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := types.ValidateStoreKey(entry.Name, entry.Hash); err != nil {
		return shared.Fail(shared.KindStoreConsistency, shared.StageStore, "invalid store entry key "+entry.Key(), err)
	}
	var target string
	switch entry.Kind {
	case types.StoreEntrySourceArchive:
		target = s.SourceArchivePath(entry.Name, entry.Hash)
	case types.StoreEntryOutputArchive:
		target = s.OutputArchivePath(types.PackageOutput{Name: entry.Name, Hash: entry.Hash})
	case types.StoreEntryOutputDir:
		target = s.OutputDir(types.PackageOutput{Name: entry.Name, Hash: entry.Hash})
	default:
		return shared.Fail(shared.KindStoreConsistency, shared.StageStore, "unknown store entry kind "+string(entry.Kind), nil)
	}
	if err := os.RemoveAll(target); err != nil {
		return shared.Fail(shared.KindIO, shared.StageStore, "failed to remove "+target, err)
	}
	log.Ctx(ctx).Debug().Str("path", target).Msg("store entry removed")
	return nil
}

func classifyEntry(base string, isDir bool) (types.StoreEntryKind, string, bool) {
	if isDir {
		return types.StoreEntryOutputDir, base, true
	}
	if key, ok := strings.CutSuffix(base, sourceArchiveSuffix); ok {
		return types.StoreEntrySourceArchive, key, true
	}
	if key, ok := strings.CutSuffix(base, outputArchiveSuffix); ok {
		return types.StoreEntryOutputArchive, key, true
	}
	return "", "", false
}

// splitStoreKey splits "<name>-<hash>" at the last dash. Package names may
// contain dashes; hashes are hex and never do.
func splitStoreKey(key string) (string, string, bool) {
	i := strings.LastIndex(key, "-")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

var _ ports.StoreInventoryPort = FileStore{}
