package app

import (
	"context"
	"strings"

	"vorpal/internal/core"
	"vorpal/internal/shared"
)

// Hash fingerprints a local source tree without contacting the executor.
func (s Service) Hash(ctx context.Context, req HashRequest) (HashResult, error) {
	dir := strings.TrimSpace(req.SourceDir)
	if dir == "" {
		return HashResult{}, shared.Fail(shared.KindIO, shared.StageFingerprint, "source directory is required", nil)
	}
	fp, _, err := core.NewFingerprinter(s.SourceTree, req.Algorithm).Fingerprint(ctx, dir, req.Ignore)
	if err != nil {
		return HashResult{}, err
	}
	return HashResult{Hash: fp.Hash, Algorithm: fp.Algorithm, Files: len(fp.Entries)}, nil
}
