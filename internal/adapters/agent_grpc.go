package adapters

import (
	"context"
	"errors"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"vorpal/internal/ports"
	"vorpal/internal/protocol"
	"vorpal/internal/shared"
)

// GRPCBuildClient talks to the build executor over one long-lived
// connection. Every call is CBOR-encoded and tagged with the run id.
type GRPCBuildClient struct {
	conn  *grpc.ClientConn
	owned bool
	runID string
}

// NewGRPCBuildClient dials endpoint lazily. An "http://" scheme prefix is
// accepted for compatibility with URL-style configuration.
func NewGRPCBuildClient(endpoint string, runID string) (*GRPCBuildClient, error) {
	target := strings.TrimPrefix(strings.TrimSpace(endpoint), "http://")
	if target == "" {
		return nil, shared.Fail(shared.KindTransport, shared.StageConfig, "build endpoint is empty", nil)
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, shared.Fail(shared.KindTransport, shared.StageConfig, "failed to create client for "+target, err)
	}
	return &GRPCBuildClient{conn: conn, owned: true, runID: runID}, nil
}

// NewGRPCBuildClientFromConn wraps an existing connection; Close leaves
// it open.
func NewGRPCBuildClientFromConn(conn *grpc.ClientConn, runID string) *GRPCBuildClient {
	return &GRPCBuildClient{conn: conn, runID: runID}
}

func (c *GRPCBuildClient) Prepare(ctx context.Context, req *protocol.PrepareRequest) (*protocol.PrepareResponse, error) {
	resp := new(protocol.PrepareResponse)
	if err := c.conn.Invoke(c.outgoing(ctx), protocol.PrepareMethod, req, resp, c.callOptions()...); err != nil {
		return nil, transportError(shared.StagePrepare, "prepare call failed", err)
	}
	if resp.SourceID == "" {
		return nil, shared.Fail(shared.KindProtocolViolation, shared.StagePrepare, "prepare response has no source reference", nil)
	}
	return resp, nil
}

func (c *GRPCBuildClient) Build(ctx context.Context, req *protocol.BuildRequest, handle ports.BuildEventHandler) error {
	return c.stream(ctx, &protocol.BuildStreamDesc, protocol.BuildMethod, req, handle)
}

func (c *GRPCBuildClient) Package(ctx context.Context, req *protocol.PackageRequest, handle ports.BuildEventHandler) error {
	return c.stream(ctx, &protocol.PackageStreamDesc, protocol.PackageMethod, req, handle)
}

func (c *GRPCBuildClient) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

func (c *GRPCBuildClient) stream(ctx context.Context, desc *grpc.StreamDesc, method string, req any, handle ports.BuildEventHandler) error {
	ctx, cancel := context.WithCancel(c.outgoing(ctx))
	defer cancel()

	stream, err := c.conn.NewStream(ctx, desc, method, c.callOptions()...)
	if err != nil {
		return transportError(shared.StageBuild, "failed to open build stream", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return transportError(shared.StageBuild, "failed to send build request", err)
	}
	if err := stream.CloseSend(); err != nil {
		return transportError(shared.StageBuild, "failed to close build request", err)
	}
	for {
		event := new(protocol.BuildResponse)
		err := stream.RecvMsg(event)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return transportError(shared.StageBuild, "build stream failed", err)
		}
		if err := handle(event); err != nil {
			return err
		}
	}
}

func (c *GRPCBuildClient) outgoing(ctx context.Context) context.Context {
	if c.runID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, protocol.RunIDMetadataKey, c.runID)
}

func (c *GRPCBuildClient) callOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(protocol.CodecName)}
}

func transportError(stage shared.Stage, msg string, err error) error {
	if st, ok := status.FromError(err); ok {
		msg = msg + ": " + st.Code().String() + ": " + st.Message()
	}
	return shared.Fail(shared.KindTransport, stage, msg, err)
}

var _ ports.BuildClientPort = (*GRPCBuildClient)(nil)
