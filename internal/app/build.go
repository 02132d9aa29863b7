package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"vorpal/internal/adapters"
	"vorpal/internal/core"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

func (s Service) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	packageRoot := strings.TrimSpace(req.PackageRoot)
	if packageRoot == "" {
		return BuildResult{}, shared.Fail(shared.KindIO, shared.StageConfig, "package root is required", nil)
	}
	graph, err := s.loadGraph(req.GraphPath)
	if err != nil {
		return BuildResult{}, err
	}
	order, err := graph.Closure(req.Targets)
	if err != nil {
		return BuildResult{}, err
	}

	keys := s.NewKeys(req.PrivateKey, req.AgeIdentity)
	if needsSigning(graph, order) {
		// Key problems must surface before the first remote call.
		if _, err := keys.PrivateKey(); err != nil {
			return BuildResult{}, err
		}
	}

	runID := s.NewRunID()
	logger := log.Ctx(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx)

	client, err := s.Dial(req.Endpoint, runID)
	if err != nil {
		return BuildResult{}, err
	}
	defer client.Close()

	agent := core.NewAgent(
		core.NewFingerprinter(s.SourceTree, req.Algorithm),
		s.NewStore(packageRoot),
		adapters.NewRSASigner(keys),
		client,
	)
	logger.Info().Int("packages", len(order)).Int("jobs", req.Jobs).Msg("build started")
	records, err := core.NewWalker(req.Jobs).Run(ctx, graph, agent, req.Targets)
	if err != nil {
		return BuildResult{RunID: runID, Records: records}, err
	}
	if lockPath := strings.TrimSpace(req.Lockfile); lockPath != "" {
		if err := s.Lockfiles.WriteLockfile(lockPath, types.Lockfile{RunID: runID, Packages: records}); err != nil {
			return BuildResult{RunID: runID, Records: records}, err
		}
		logger.Debug().Str("path", lockPath).Msg("lockfile written")
	}
	return BuildResult{RunID: runID, Records: records}, nil
}

func needsSigning(graph *core.PackageGraph, order []string) bool {
	for _, name := range order {
		def, ok := graph.Definition(name)
		if !ok {
			continue
		}
		kind := def.Source.Kind
		if kind == "" {
			kind = types.SourceKindLocal
		}
		if !kind.IsRemote() {
			return true
		}
	}
	return false
}
