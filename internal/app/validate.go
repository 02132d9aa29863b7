package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"vorpal/internal/core"
	"vorpal/internal/shared"
)

func (s Service) Validate(ctx context.Context, req ValidateRequest) (ValidateResult, error) {
	graph, err := s.loadGraph(req.GraphPath)
	if err != nil {
		return ValidateResult{}, err
	}
	order, err := graph.Closure(req.Targets)
	if err != nil {
		return ValidateResult{}, err
	}
	log.Ctx(ctx).Debug().Strs("order", order).Msg("graph validated")
	return ValidateResult{Order: order}, nil
}

func (s Service) loadGraph(path string) (*core.PackageGraph, error) {
	graphPath := strings.TrimSpace(path)
	if graphPath == "" {
		return nil, shared.Fail(shared.KindInvalidGraph, shared.StageConfig, "graph file path is required", nil)
	}
	file, err := s.GraphLoader.Load(graphPath)
	if err != nil {
		return nil, err
	}
	if len(file.Packages) == 0 {
		return nil, shared.Fail(shared.KindInvalidGraph, shared.StageGraph, "graph file declares no packages", nil)
	}
	return core.NewPackageGraph(file.Packages)
}
