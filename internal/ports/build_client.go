package ports

import (
	"context"

	"vorpal/internal/protocol"
)

// BuildEventHandler receives each element of a build stream in order.
type BuildEventHandler func(event *protocol.BuildResponse) error

// BuildClientPort issues remote calls to the build executor.
type BuildClientPort interface {
	Prepare(ctx context.Context, req *protocol.PrepareRequest) (*protocol.PrepareResponse, error)
	Build(ctx context.Context, req *protocol.BuildRequest, handle BuildEventHandler) error
	Package(ctx context.Context, req *protocol.PackageRequest, handle BuildEventHandler) error
	Close() error
}
