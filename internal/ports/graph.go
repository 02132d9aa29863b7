package ports

import (
	"context"

	"vorpal/internal/types"
)

// GraphLoaderPort reads a declarative package graph.
type GraphLoaderPort interface {
	Load(path string) (types.GraphFile, error)
}

// PackageBuilderPort turns one finalized package into its output.
type PackageBuilderPort interface {
	BuildPackage(ctx context.Context, pkg types.Package) (types.PackageOutput, error)
}
