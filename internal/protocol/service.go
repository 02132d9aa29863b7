package protocol

import (
	"context"

	"google.golang.org/grpc"
)

const (
	BuildServiceName  = "vorpal.build.BuildService"
	ConfigServiceName = "vorpal.config.ConfigService"

	PrepareMethod = "/" + BuildServiceName + "/Prepare"
	BuildMethod   = "/" + BuildServiceName + "/Build"
	PackageMethod = "/" + ConfigServiceName + "/Package"
)

// RunIDMetadataKey carries the client's pipeline run id on every call.
const RunIDMetadataKey = "vorpal-run-id"

// BuildStreamDesc describes the Build call: one request, many responses.
var BuildStreamDesc = grpc.StreamDesc{
	StreamName:    "Build",
	ServerStreams: true,
}

// PackageStreamDesc describes the config-oriented Package call.
var PackageStreamDesc = grpc.StreamDesc{
	StreamName:    "Package",
	ServerStreams: true,
}

// ResponseStream is the server side of a build stream.
type ResponseStream interface {
	Send(resp *BuildResponse) error
	Context() context.Context
}

// BuildServer is implemented by build executors.
type BuildServer interface {
	Prepare(ctx context.Context, req *PrepareRequest) (*PrepareResponse, error)
	Build(req *BuildRequest, stream ResponseStream) error
}

// ConfigServer is implemented by executors that accept whole package
// descriptions.
type ConfigServer interface {
	Package(req *PackageRequest, stream ResponseStream) error
}

// RegisterBuildServer attaches srv to s under the build service name.
func RegisterBuildServer(s grpc.ServiceRegistrar, srv BuildServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: BuildServiceName,
		HandlerType: (*BuildServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Prepare", Handler: prepareHandler},
		},
		Streams: []grpc.StreamDesc{
			{StreamName: "Build", Handler: buildHandler, ServerStreams: true},
		},
	}, srv)
}

// RegisterConfigServer attaches srv to s under the config service name.
func RegisterConfigServer(s grpc.ServiceRegistrar, srv ConfigServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ConfigServiceName,
		HandlerType: (*ConfigServer)(nil),
		Streams: []grpc.StreamDesc{
			{StreamName: "Package", Handler: packageHandler, ServerStreams: true},
		},
	}, srv)
}

func prepareHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PrepareRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BuildServer).Prepare(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PrepareMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BuildServer).Prepare(ctx, req.(*PrepareRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func buildHandler(srv any, stream grpc.ServerStream) error {
	in := new(BuildRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BuildServer).Build(in, serverStream{stream})
}

func packageHandler(srv any, stream grpc.ServerStream) error {
	in := new(PackageRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ConfigServer).Package(in, serverStream{stream})
}

type serverStream struct {
	grpc.ServerStream
}

func (s serverStream) Send(resp *BuildResponse) error {
	return s.ServerStream.SendMsg(resp)
}
