package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vorpal/internal/adapters"
	"vorpal/internal/ports"
	"vorpal/internal/protocol/protocoltest"
	"vorpal/internal/shared"
	"vorpal/internal/signing"
)

const exampleGraph = `packages:
  - name: example
    script: echo "hello" >> example.txt
    install_script: cp example.txt $output/example.txt
    source:
      uri: ./example
      ignore_paths: [.git]
  - name: consumer
    script: cat "$example/example.txt" > copied.txt
    install_script: cp copied.txt $output/copied.txt
    source:
      uri: ./consumer
    depends_on: [example]
`

type buildFixture struct {
	service  Service
	executor *protocoltest.Executor
	dir      string
	keys     KeysGenerateResult
	dials    int
}

func newBuildFixture(t *testing.T) *buildFixture {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "example", "README"), "example\n")
	writeFile(t, filepath.Join(dir, "example", ".git", "HEAD"), "ref\n")
	writeFile(t, filepath.Join(dir, "consumer", "main.c"), "int main;\n")
	writeFile(t, filepath.Join(dir, "vorpal.graph.yaml"), exampleGraph)

	f := &buildFixture{dir: dir}
	f.service = NewService()
	f.service.KeyGen = adapters.KeyFileGenerator{Bits: 2048}
	keys, err := f.service.GenerateKeys(context.Background(), KeysGenerateRequest{
		PrivatePath: filepath.Join(dir, "key", "private.pem"),
		PublicPath:  filepath.Join(dir, "key", "public.pem"),
	})
	require.NoError(t, err)
	f.keys = keys

	publicPEM, err := os.ReadFile(keys.PublicPath)
	require.NoError(t, err)
	pub, err := signing.ParsePublicKey(publicPEM)
	require.NoError(t, err)
	f.executor = protocoltest.NewExecutor(pub)
	conn := protocoltest.Start(t, f.executor)

	f.service.NewRunID = func() string { return "run-fixed" }
	f.service.Dial = func(endpoint string, runID string) (ports.BuildClientPort, error) {
		f.dials++
		return adapters.NewGRPCBuildClientFromConn(conn, runID), nil
	}
	return f
}

func (f *buildFixture) request() BuildRequest {
	return BuildRequest{
		GraphPath:   filepath.Join(f.dir, "vorpal.graph.yaml"),
		Jobs:        1,
		Endpoint:    "unused",
		PackageRoot: filepath.Join(f.dir, "package"),
		PrivateKey:  f.keys.PrivatePath,
	}
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildGraphEndToEnd(t *testing.T) {
	f := newBuildFixture(t)

	result, err := f.service.Build(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", result.RunID)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "example", result.Records[0].Name)
	assert.Equal(t, "consumer", result.Records[1].Name)

	store := adapters.NewFileStore(filepath.Join(f.dir, "package"))
	data, err := os.ReadFile(filepath.Join(store.OutputDir(result.Records[0].Output), "example.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	copied, err := os.ReadFile(filepath.Join(store.OutputDir(result.Records[1].Output), "copied.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(copied))

	for _, id := range f.executor.RunIDs() {
		assert.Equal(t, "run-fixed", id)
	}
}

func TestBuildWritesLockfile(t *testing.T) {
	f := newBuildFixture(t)
	req := f.request()
	req.Lockfile = filepath.Join(f.dir, "vorpal.lock.yaml")

	result, err := f.service.Build(context.Background(), req)
	require.NoError(t, err)

	lock, err := adapters.NewLockFileAdapter().ReadLockfile(req.Lockfile)
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", lock.RunID)
	assert.Equal(t, result.Records, lock.Packages)
}

func TestBuildTargetSubset(t *testing.T) {
	f := newBuildFixture(t)
	req := f.request()
	req.Targets = []string{"example"}

	result, err := f.service.Build(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Len(t, f.executor.Builds(), 1)
}

func TestBuildMissingKeyFailsBeforeDialing(t *testing.T) {
	f := newBuildFixture(t)
	req := f.request()
	req.PrivateKey = filepath.Join(f.dir, "key", "missing.pem")

	_, err := f.service.Build(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, shared.KindSigningKeyUnavailable, shared.KindOf(err))
	assert.Zero(t, f.dials)
	assert.Empty(t, f.executor.Prepares())
}

func TestBuildInvalidGraphFailsBeforeDialing(t *testing.T) {
	f := newBuildFixture(t)
	writeFile(t, filepath.Join(f.dir, "cycle.yaml"), `packages:
  - {name: a, script: make, source: {uri: .}, depends_on: [b]}
  - {name: b, script: make, source: {uri: .}, depends_on: [a]}
`)
	req := f.request()
	req.GraphPath = filepath.Join(f.dir, "cycle.yaml")

	_, err := f.service.Build(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, shared.KindInvalidGraph, shared.KindOf(err))
	assert.Zero(t, f.dials)
}

func TestBuildRequiresPackageRoot(t *testing.T) {
	f := newBuildFixture(t)
	req := f.request()
	req.PackageRoot = " "

	_, err := f.service.Build(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package root is required")
}

func TestValidateReportsOrder(t *testing.T) {
	f := newBuildFixture(t)

	result, err := f.service.Validate(context.Background(), ValidateRequest{GraphPath: filepath.Join(f.dir, "vorpal.graph.yaml")})
	require.NoError(t, err)
	assert.Equal(t, []string{"example", "consumer"}, result.Order)

	_, err = f.service.Validate(context.Background(), ValidateRequest{})
	assert.Equal(t, shared.KindInvalidGraph, shared.KindOf(err))

	writeFile(t, filepath.Join(f.dir, "empty.yaml"), "packages: []\n")
	_, err = f.service.Validate(context.Background(), ValidateRequest{GraphPath: filepath.Join(f.dir, "empty.yaml")})
	assert.Contains(t, err.Error(), "declares no packages")
}

func TestHashMatchesBuildIdentity(t *testing.T) {
	f := newBuildFixture(t)
	hash, err := f.service.Hash(context.Background(), HashRequest{
		SourceDir: filepath.Join(f.dir, "example"),
		Ignore:    []string{".git"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hash.Files)

	req := f.request()
	req.Targets = []string{"example"}
	result, err := f.service.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, hash.Hash, result.Records[0].Output.Hash)
}

func TestGenerateKeysValidation(t *testing.T) {
	service := NewService()
	_, err := service.GenerateKeys(context.Background(), KeysGenerateRequest{PrivatePath: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key paths are required")
}
