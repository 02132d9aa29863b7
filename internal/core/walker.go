package core

import (
	"context"
	"fmt"
	"sort"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/rs/zerolog/log"

	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

// Walker builds a package graph in dependency order. With Jobs > 1
// independent packages build concurrently; a package is only finalized
// once every dependency has produced its output.
type Walker struct {
	Jobs int
}

func NewWalker(jobs int) Walker {
	if jobs < 1 {
		jobs = 1
	}
	return Walker{Jobs: jobs}
}

type walkResult struct {
	name   string
	output types.PackageOutput
	err    error
}

// Run builds targets and their dependencies (the whole graph when targets
// is empty). The first failure stops scheduling; packages already in
// flight finish before Run returns that failure.
func (w Walker) Run(ctx context.Context, graph *PackageGraph, builder ports.PackageBuilderPort, targets []string) ([]types.BuildRecord, error) {
	order, err := graph.Closure(targets)
	if err != nil {
		return nil, err
	}
	jobs := w.Jobs
	if jobs < 1 {
		jobs = 1
	}
	position := make(map[string]int, len(order))
	remaining := make(map[string]int, len(order))
	var ready []string
	for i, name := range order {
		def, _ := graph.Definition(name)
		position[name] = i
		remaining[name] = len(def.DependsOn)
		if remaining[name] == 0 {
			ready = append(ready, name)
		}
	}
	log.Ctx(ctx).Debug().Strs("order", order).Int("jobs", jobs).Msg("graph walk planned")

	outputs := make(map[string]types.PackageOutput, len(order))
	records := make([]types.BuildRecord, 0, len(order))
	results := make(chan walkResult)
	running := 0
	var firstErr error

	for {
		for firstErr == nil && running < jobs && len(ready) > 0 {
			if err := ctx.Err(); err != nil {
				firstErr = shared.Fail(shared.KindTransport, shared.StageBuild, "graph walk cancelled", err)
				break
			}
			name := ready[0]
			ready = ready[1:]
			pkg, err := w.finalize(ctx, graph, name, outputs)
			if err != nil {
				firstErr = err
				break
			}
			running++
			go func() {
				out, err := builder.BuildPackage(ctx, pkg)
				results <- walkResult{name: name, output: out, err: err}
			}()
		}
		if running == 0 {
			break
		}
		res := <-results
		running--
		if res.err != nil {
			log.Ctx(ctx).Error().Err(res.err).Str("package", res.name).Msg("package failed")
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		outputs[res.name] = res.output
		records = append(records, types.BuildRecord{Name: res.name, Output: res.output})
		for _, dependent := range graph.Dependents(res.name) {
			if _, inClosure := remaining[dependent]; !inClosure {
				continue
			}
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.SliceStable(ready, func(i, j int) bool {
			return position[ready[i]] < position[ready[j]]
		})
	}
	if firstErr != nil {
		return records, firstErr
	}
	return records, nil
}

// finalize turns a graph node into an immutable Package, appending the
// dependency outputs in depends_on order.
func (w Walker) finalize(ctx context.Context, graph *PackageGraph, name string, outputs map[string]types.PackageOutput) (types.Package, error) {
	assert.NotEmpty(ctx, name, "package name must be set")
	def, ok := graph.Definition(name)
	if !ok {
		return types.Package{}, shared.Fail(shared.KindInvalidGraph, shared.StageGraph, fmt.Sprintf("package %q is not in the graph", name), nil)
	}
	deps := make([]types.PackageOutput, 0, len(def.DependsOn))
	for _, depName := range def.DependsOn {
		out, ok := outputs[depName]
		if !ok {
			return types.Package{}, shared.Fail(shared.KindInvalidGraph, shared.StageGraph,
				fmt.Sprintf("package %q scheduled before dependency %q succeeded", name, depName), nil)
		}
		deps = append(deps, out)
	}
	return def.Builder().WithDependencies(deps...).Build()
}
