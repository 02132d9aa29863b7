// Package protocoltest provides an in-process build executor for tests.
// It verifies source signatures, runs build and install scripts with bash
// and streams their output back over the real wire protocol.
package protocoltest

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"os/exec"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"vorpal/internal/archive"
	"vorpal/internal/protocol"
	"vorpal/internal/signing"
	"vorpal/internal/types"
)

// Executor is a fake remote build executor. The exported toggles must be
// set before the first call.
type Executor struct {
	// PublicKey, when set, is used to verify every prepared source.
	PublicKey *rsa.PublicKey
	// OmitOutput ends build streams without an output identity.
	OmitOutput bool
	// PrepareError is returned from every Prepare call when set.
	PrepareError error

	mu       sync.Mutex
	sources  map[string]preparedSource
	prepares []protocol.PrepareRequest
	builds   []protocol.BuildRequest
	packages []protocol.PackageRequest
	runIDs   []string
}

type preparedSource struct {
	name string
	hash string
	data []byte
}

func NewExecutor(pub *rsa.PublicKey) *Executor {
	return &Executor{PublicKey: pub, sources: map[string]preparedSource{}}
}

func (e *Executor) Prepare(ctx context.Context, req *protocol.PrepareRequest) (*protocol.PrepareResponse, error) {
	e.mu.Lock()
	e.prepares = append(e.prepares, *req)
	e.recordRunID(ctx)
	e.mu.Unlock()

	if e.PrepareError != nil {
		return nil, e.PrepareError
	}
	if req.SourceName == "" || req.SourceHash == "" {
		return nil, status.Error(codes.InvalidArgument, "source name and hash are required")
	}
	if req.PinnedHash != nil && *req.PinnedHash != req.SourceHash {
		return nil, status.Errorf(codes.FailedPrecondition, "source %s: pinned hash %s does not match %s", req.SourceName, *req.PinnedHash, req.SourceHash)
	}
	if e.PublicKey != nil {
		if err := signing.Verify(e.PublicKey, req.SourceData, req.SourceSignature); err != nil {
			return nil, status.Errorf(codes.PermissionDenied, "signature rejected: %v", err)
		}
	}
	id := uuid.NewString()
	e.mu.Lock()
	e.sources[id] = preparedSource{name: req.SourceName, hash: req.SourceHash, data: req.SourceData}
	e.mu.Unlock()
	return &protocol.PrepareResponse{SourceID: id}, nil
}

func (e *Executor) Build(req *protocol.BuildRequest, stream protocol.ResponseStream) error {
	e.mu.Lock()
	e.builds = append(e.builds, *req)
	e.recordRunID(stream.Context())
	source, ok := e.sources[req.SourceID]
	e.mu.Unlock()
	if !ok {
		return status.Errorf(codes.NotFound, "unknown source %q", req.SourceID)
	}

	workDir, err := os.MkdirTemp("", "vorpal-executor-src-*")
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	defer os.RemoveAll(workDir)
	if err := archive.Unpack(bytes.NewReader(source.data), workDir); err != nil {
		return status.Errorf(codes.InvalidArgument, "source archive: %v", err)
	}
	output := types.PackageOutput{Name: source.name, Hash: source.hash}
	return e.run(stream, workDir, output, req.BuildScript, req.InstallScript, req.Environment)
}

func (e *Executor) Package(req *protocol.PackageRequest, stream protocol.ResponseStream) error {
	e.mu.Lock()
	e.packages = append(e.packages, *req)
	e.recordRunID(stream.Context())
	e.mu.Unlock()

	workDir, err := os.MkdirTemp("", "vorpal-executor-src-*")
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	defer os.RemoveAll(workDir)

	hash := ""
	if req.Source.Hash != nil {
		hash = *req.Source.Hash
	} else {
		sum := sha256.Sum256([]byte(req.Name + req.Build.Script))
		hash = hex.EncodeToString(sum[:])
	}
	output := types.PackageOutput{Name: req.Name, Hash: hash}
	return e.run(stream, workDir, output, req.Build.Script, req.Build.InstallScript, req.Build.Environment)
}

func (e *Executor) run(stream protocol.ResponseStream, workDir string, output types.PackageOutput, script string, installScript string, env map[string]string) error {
	outDir, err := os.MkdirTemp("", "vorpal-executor-out-*")
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	defer os.RemoveAll(outDir)

	environ := scriptEnvironment(env, outDir)
	for _, s := range []string{script, installScript} {
		if s == "" {
			continue
		}
		if err := runScript(stream, workDir, environ, s); err != nil {
			return err
		}
	}
	if e.OmitOutput {
		return nil
	}
	var payload bytes.Buffer
	if err := archive.PackDir(&payload, outDir); err != nil {
		return status.Errorf(codes.Internal, "pack output: %v", err)
	}
	return stream.Send(&protocol.BuildResponse{
		PackageOutput: &output,
		IsCompressed:  true,
		Payload:       payload.Bytes(),
	})
}

func runScript(stream protocol.ResponseStream, dir string, environ []string, script string) error {
	cmd := exec.CommandContext(stream.Context(), "bash", "-c", script)
	cmd.Dir = dir
	cmd.Env = environ
	out, runErr := cmd.CombinedOutput()
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := append(bytes.Clone(scanner.Bytes()), '\n')
		if err := stream.Send(&protocol.BuildResponse{LogOutput: line}); err != nil {
			return err
		}
	}
	if runErr != nil {
		return status.Errorf(codes.Aborted, "script failed: %v", runErr)
	}
	return nil
}

func scriptEnvironment(env map[string]string, outDir string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	environ := []string{"PATH=" + os.Getenv("PATH")}
	for _, key := range keys {
		environ = append(environ, key+"="+env[key])
	}
	return append(environ, types.OutputBinding+"="+outDir)
}

func (e *Executor) recordRunID(ctx context.Context) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return
	}
	e.runIDs = append(e.runIDs, md.Get(protocol.RunIDMetadataKey)...)
}

func (e *Executor) Prepares() []protocol.PrepareRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.PrepareRequest(nil), e.prepares...)
}

func (e *Executor) Builds() []protocol.BuildRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.BuildRequest(nil), e.builds...)
}

func (e *Executor) Packages() []protocol.PackageRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.PackageRequest(nil), e.packages...)
}

func (e *Executor) RunIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.runIDs...)
}

// Start serves executor over an in-memory listener and returns a client
// connection to it. Both are torn down when the test ends.
func Start(t testing.TB, executor *Executor) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	protocol.RegisterBuildServer(srv, executor)
	protocol.RegisterConfigServer(srv, executor)
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return conn
}
