package ports

import (
	"io"

	"vorpal/internal/types"
)

// SourceTreePort enumerates and reads the files of a local source tree.
type SourceTreePort interface {
	// Walk returns every file under root that is not excluded by ignore,
	// sorted by relative path. Ignore entries match a relative path
	// exactly or as a leading directory.
	Walk(root string, ignore []string) ([]types.SourceFile, error)

	// Open returns the content of a walked file. For symbolic links the
	// content is the link target.
	Open(file types.SourceFile) (io.ReadCloser, error)
}
