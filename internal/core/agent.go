package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vorpal/internal/ports"
	"vorpal/internal/protocol"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

const tracerName = "vorpal/internal/core"

// LogSink receives remote log chunks as they arrive.
type LogSink func(ctx context.Context, pkg string, chunk []byte)

// StateObserver is notified on every package state transition.
type StateObserver func(pkg string, state types.PackageState)

// Agent turns one finalized Package into its output by driving the
// executor: local sources go through fingerprint, store, sign, prepare and
// build; remote sources are described in a single package call.
type Agent struct {
	Fingerprinter Fingerprinter
	Store         ports.StorePort
	Signer        ports.SignerPort
	Client        ports.BuildClientPort
	LogSink       LogSink
	Observer      StateObserver

	tracer trace.Tracer
}

func NewAgent(fingerprinter Fingerprinter, store ports.StorePort, signer ports.SignerPort, client ports.BuildClientPort) *Agent {
	return &Agent{
		Fingerprinter: fingerprinter,
		Store:         store,
		Signer:        signer,
		Client:        client,
		LogSink:       LogToConsole,
		tracer:        otel.Tracer(tracerName),
	}
}

// LogToConsole echoes a remote log chunk through the context logger, or
// the global logger when the context carries none.
func LogToConsole(ctx context.Context, pkg string, chunk []byte) {
	text := strings.TrimRight(string(chunk), "\n")
	if text == "" {
		return
	}
	progressLogger(ctx).Info().Str("package", pkg).Msg(text)
}

func progressLogger(ctx context.Context) *zerolog.Logger {
	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		return &log.Logger
	}
	return logger
}

func (a *Agent) BuildPackage(ctx context.Context, pkg types.Package) (types.PackageOutput, error) {
	a.transition(ctx, pkg.Name(), types.PackageStateDeclared)
	out, err := a.buildPackage(ctx, pkg)
	if err != nil {
		a.transition(ctx, pkg.Name(), types.PackageStateFailed)
		return types.PackageOutput{}, err
	}
	a.transition(ctx, pkg.Name(), types.PackageStateSucceeded)
	progressLogger(ctx).Info().Str("package", pkg.Name()).Str("output", out.Key()).Msg("built")
	return out, nil
}

func (a *Agent) buildPackage(ctx context.Context, pkg types.Package) (types.PackageOutput, error) {
	env, err := BuildEnvironment(a.Store, pkg)
	if err != nil {
		return types.PackageOutput{}, err
	}
	if pkg.Source().Kind.IsRemote() {
		return a.buildRemote(ctx, pkg, env)
	}
	return a.buildLocal(ctx, pkg, env)
}

func (a *Agent) buildLocal(ctx context.Context, pkg types.Package, env map[string]string) (types.PackageOutput, error) {
	name := pkg.Name()
	source := pkg.Source()
	build := pkg.Build()

	fp, files, err := a.Fingerprinter.Fingerprint(ctx, source.Location, source.IgnorePaths)
	if err != nil {
		return types.PackageOutput{}, err
	}
	if source.HasPinnedHash() && source.PinnedHash != fp.Hash {
		progressLogger(ctx).Warn().
			Str("package", name).
			Str("pinned", source.PinnedHash).
			Str("source_hash", fp.Hash).
			Msg("pinned source hash differs from fingerprint")
	}
	a.transition(ctx, name, types.PackageStateFingerprinted)

	archivePath, err := a.Store.EnsureSourceArchive(ctx, name, fp.Hash, files)
	if err != nil {
		return types.PackageOutput{}, err
	}
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return types.PackageOutput{}, shared.Fail(shared.KindIO, shared.StageStore, "failed to read source archive "+archivePath, err)
	}
	signature, err := a.Signer.Sign(data)
	if err != nil {
		return types.PackageOutput{}, err
	}
	a.transition(ctx, name, types.PackageStateSigned)

	progressLogger(ctx).Info().Str("package", name).Str("source_hash", fp.Hash).Msg("preparing")
	prepareReq := &protocol.PrepareRequest{
		SourceData:      data,
		SourceHash:      fp.Hash,
		SourceName:      name,
		SourceSignature: signature,
	}
	if source.HasPinnedHash() {
		pinned := source.PinnedHash
		prepareReq.PinnedHash = &pinned
	}
	prepared, err := a.prepare(ctx, prepareReq)
	if err != nil {
		return types.PackageOutput{}, err
	}
	a.transition(ctx, name, types.PackageStatePrepared)

	req := &protocol.BuildRequest{
		BuildScript:   build.Script,
		InstallScript: build.InstallScript,
		SourceID:      prepared.SourceID,
		Environment:   env,
		Dependencies:  build.Dependencies,
		Sandbox:       build.Sandboxed,
	}
	progressLogger(ctx).Info().Str("package", name).Str("source_hash", fp.Hash).Msg("building")
	a.transition(ctx, name, types.PackageStateBuilding)
	return a.drain(ctx, name, "vorpal.build", func(ctx context.Context, handle ports.BuildEventHandler) error {
		return a.Client.Build(ctx, req, handle)
	})
}

func (a *Agent) buildRemote(ctx context.Context, pkg types.Package, env map[string]string) (types.PackageOutput, error) {
	name := pkg.Name()
	source := pkg.Source()
	build := pkg.Build()

	kind, err := protocol.WireSourceKind(source.Kind)
	if err != nil {
		return types.PackageOutput{}, shared.Fail(shared.KindInvalidPackage, shared.StageConfig, "package "+name, err)
	}
	req := &protocol.PackageRequest{
		Name: name,
		Source: protocol.PackageSource{
			Kind:        kind,
			URI:         source.Location,
			IgnorePaths: source.IgnorePaths,
		},
		Build: protocol.PackageBuild{
			Environment:   env,
			Packages:      build.Dependencies,
			Sandbox:       build.Sandboxed,
			Script:        build.Script,
			InstallScript: build.InstallScript,
		},
	}
	if source.HasPinnedHash() {
		pinned := source.PinnedHash
		req.Source.Hash = &pinned
	}
	progressLogger(ctx).Info().Str("package", name).Str("source", source.Location).Msg("building")
	a.transition(ctx, name, types.PackageStateBuilding)
	return a.drain(ctx, name, "vorpal.package", func(ctx context.Context, handle ports.BuildEventHandler) error {
		return a.Client.Package(ctx, req, handle)
	})
}

func (a *Agent) prepare(ctx context.Context, req *protocol.PrepareRequest) (*protocol.PrepareResponse, error) {
	ctx, span := a.startSpan(ctx, "vorpal.prepare",
		attribute.String("package", req.SourceName),
		attribute.String("source_hash", req.SourceHash),
		attribute.Int("source_bytes", len(req.SourceData)),
	)
	defer span.End()
	resp, err := a.Client.Prepare(ctx, req)
	endSpan(span, err)
	return resp, err
}

// buildStream collects what a build stream reports.
type buildStream struct {
	mu         sync.Mutex
	output     *types.PackageOutput
	compressed bool
	payload    []byte
}

// drain consumes a build or package stream to the end. Log chunks are
// echoed as they arrive; the stream must report exactly one complete
// output identity.
func (a *Agent) drain(ctx context.Context, name string, spanName string, call func(context.Context, ports.BuildEventHandler) error) (types.PackageOutput, error) {
	ctx, span := a.startSpan(ctx, spanName, attribute.String("package", name))
	defer span.End()

	result := &buildStream{}
	err := call(ctx, func(event *protocol.BuildResponse) error {
		if len(event.LogOutput) > 0 && a.LogSink != nil {
			a.LogSink(ctx, name, event.LogOutput)
		}
		result.mu.Lock()
		defer result.mu.Unlock()
		if event.PackageOutput != nil && !event.PackageOutput.IsZero() {
			if result.output != nil && *result.output != *event.PackageOutput {
				return shared.Fail(shared.KindProtocolViolation, shared.StageBuild,
					fmt.Sprintf("build stream for %s reported outputs %s and %s", name, result.output.Key(), event.PackageOutput.Key()), nil)
			}
			out := *event.PackageOutput
			result.output = &out
		}
		if event.IsCompressed {
			result.compressed = true
			result.payload = event.Payload
		}
		return nil
	})
	if err != nil {
		endSpan(span, err)
		return types.PackageOutput{}, err
	}
	if result.output == nil {
		err := shared.Fail(shared.KindProtocolViolation, shared.StageBuild,
			"MissingOutputIdentity: build stream for "+name+" ended without an output name and hash", nil)
		endSpan(span, err)
		return types.PackageOutput{}, err
	}
	out := *result.output
	span.SetAttributes(attribute.String("output", out.Key()))
	if result.compressed {
		dir, err := a.Store.MaterializeOutput(ctx, out, result.payload)
		if err != nil {
			endSpan(span, err)
			return types.PackageOutput{}, err
		}
		log.Ctx(ctx).Debug().Str("package", name).Str("path", dir).Msg("output materialized")
	}
	endSpan(span, nil)
	return out, nil
}

func (a *Agent) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := a.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (a *Agent) transition(ctx context.Context, name string, state types.PackageState) {
	log.Ctx(ctx).Debug().Str("package", name).Str("state", string(state)).Msg("package state")
	if a.Observer != nil {
		a.Observer(name, state)
	}
}

var _ ports.PackageBuilderPort = (*Agent)(nil)
