package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"

	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

// Fingerprinter reduces a source tree to one content hash. The result
// depends only on the relative paths and bytes of the non-ignored files.
type Fingerprinter struct {
	Tree      ports.SourceTreePort
	Algorithm types.HashAlgorithm
}

func NewFingerprinter(tree ports.SourceTreePort, algorithm types.HashAlgorithm) Fingerprinter {
	if algorithm == "" {
		algorithm = types.HashAlgorithmSHA256
	}
	return Fingerprinter{Tree: tree, Algorithm: algorithm}
}

// Fingerprint walks root and returns the sorted digests, the aggregate
// hash and the walked files so callers can archive exactly what was
// hashed.
func (f Fingerprinter) Fingerprint(ctx context.Context, root string, ignore []string) (types.SourceFingerprint, []types.SourceFile, error) {
	if _, err := newHasher(f.Algorithm); err != nil {
		return types.SourceFingerprint{}, nil, err
	}
	files, err := f.Tree.Walk(root, ignore)
	if err != nil {
		return types.SourceFingerprint{}, nil, err
	}
	entries := make([]types.FileDigest, 0, len(files))
	for _, file := range files {
		sum, err := f.hashFile(file)
		if err != nil {
			return types.SourceFingerprint{}, nil, err
		}
		entries = append(entries, types.FileDigest{RelativePath: file.RelativePath, ContentHash: sum})
	}
	fp, err := Aggregate(f.Algorithm, entries)
	if err != nil {
		return types.SourceFingerprint{}, nil, err
	}
	log.Ctx(ctx).Debug().
		Str("root", root).
		Int("files", len(entries)).
		Str("algorithm", string(fp.Algorithm)).
		Str("hash", fp.Hash).
		Msg("source fingerprinted")
	return fp, files, nil
}

func (f Fingerprinter) hashFile(file types.SourceFile) (string, error) {
	h, err := newHasher(f.Algorithm)
	if err != nil {
		return "", err
	}
	rc, err := f.Tree.Open(file)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	if _, err := io.Copy(h, rc); err != nil {
		return "", shared.Fail(shared.KindIO, shared.StageFingerprint, "failed to read "+file.RelativePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Aggregate sorts entries by relative path (byte-wise) and reduces them to
// the source hash. Each entry contributes a composite digest of its
// length-prefixed path and content hash, so no two distinct entry lists
// share a byte stream.
func Aggregate(algorithm types.HashAlgorithm, entries []types.FileDigest) (types.SourceFingerprint, error) {
	if algorithm == "" {
		algorithm = types.HashAlgorithmSHA256
	}
	if len(entries) == 0 {
		return types.SourceFingerprint{}, shared.Fail(shared.KindEmptySource, shared.StageFingerprint, "no files to fingerprint", nil)
	}
	sorted := make([]types.FileDigest, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RelativePath < sorted[j].RelativePath
	})

	total, err := newHasher(algorithm)
	if err != nil {
		return types.SourceFingerprint{}, err
	}
	for _, entry := range sorted {
		composite, err := newHasher(algorithm)
		if err != nil {
			return types.SourceFingerprint{}, err
		}
		writeField(composite, entry.RelativePath)
		writeField(composite, entry.ContentHash)
		total.Write(composite.Sum(nil))
	}
	return types.SourceFingerprint{
		Algorithm: algorithm,
		Entries:   sorted,
		Hash:      hex.EncodeToString(total.Sum(nil)),
	}, nil
}

func writeField(h hash.Hash, value string) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(value)))
	h.Write(size[:])
	h.Write([]byte(value))
}

func newHasher(algorithm types.HashAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case types.HashAlgorithmSHA256, "":
		return sha256.New(), nil
	case types.HashAlgorithmBLAKE3:
		return blake3.New(), nil
	default:
		return nil, shared.Fail(shared.KindInvalidPackage, shared.StageConfig, "unsupported fingerprint algorithm "+string(algorithm), nil)
	}
}
