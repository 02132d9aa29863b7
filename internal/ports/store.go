package ports

import (
	"context"

	"vorpal/internal/types"
)

// StorePort is the local content-addressed store. Entries are immutable
// once written; an existing entry short-circuits all further work.
type StorePort interface {
	SourceArchivePath(name string, hash string) string
	OutputArchivePath(output types.PackageOutput) string
	OutputDir(output types.PackageOutput) string

	// EnsureSourceArchive archives files as <name>-<hash>.source.tar.gz
	// unless that entry already exists, and returns its path.
	EnsureSourceArchive(ctx context.Context, name string, hash string, files []types.SourceFile) (string, error)

	// MaterializeOutput makes the unpacked directory for output exist,
	// reusing an existing directory or archive before writing payload.
	MaterializeOutput(ctx context.Context, output types.PackageOutput, payload []byte) (string, error)
}
