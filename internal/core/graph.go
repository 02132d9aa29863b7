package core

import (
	"container/heap"
	"fmt"
	"strings"

	"vorpal/internal/shared"
	"vorpal/internal/types"
)

// PackageGraph is a validated package graph. Nodes keep their declaration
// index, which breaks ties wherever an order is otherwise free.
type PackageGraph struct {
	nodes    []types.PackageDefinition
	index    map[string]int
	deps     [][]int
	outgoing [][]int
	indeg    []int
}

// NewPackageGraph validates defs and builds the graph. It rejects empty or
// duplicate names, unknown or repeated dependencies, self-loops, cycles
// and definitions the package builder would refuse, all before any
// network call is made.
func NewPackageGraph(defs []types.PackageDefinition) (*PackageGraph, error) {
	g := &PackageGraph{
		nodes:    append([]types.PackageDefinition(nil), defs...),
		index:    make(map[string]int, len(defs)),
		deps:     make([][]int, len(defs)),
		outgoing: make([][]int, len(defs)),
		indeg:    make([]int, len(defs)),
	}
	for i, def := range g.nodes {
		name := def.Name
		if strings.TrimSpace(name) == "" {
			return nil, invalidGraphf("package at position %d has no name", i)
		}
		if _, exists := g.index[name]; exists {
			return nil, invalidGraphf("duplicate package %q", name)
		}
		if _, err := def.Builder().Build(); err != nil {
			return nil, err
		}
		g.index[name] = i
	}
	for i, def := range g.nodes {
		seen := make(map[int]bool, len(def.DependsOn))
		for _, depName := range def.DependsOn {
			dep, ok := g.index[depName]
			if !ok {
				return nil, invalidGraphf("package %q depends on unknown package %q", def.Name, depName)
			}
			if dep == i {
				return nil, invalidGraphf("package %q depends on itself", def.Name)
			}
			if seen[dep] {
				return nil, invalidGraphf("package %q lists dependency %q twice", def.Name, depName)
			}
			seen[dep] = true
			g.deps[i] = append(g.deps[i], dep)
			g.outgoing[dep] = append(g.outgoing[dep], i)
			g.indeg[i]++
		}
	}
	if order := g.topoOrderIndices(nil); len(order) != len(g.nodes) {
		return nil, invalidGraphf("cycle: %s", strings.Join(g.findCycle(), " -> "))
	}
	return g, nil
}

func (g *PackageGraph) Len() int {
	return len(g.nodes)
}

// Definition returns the named node.
func (g *PackageGraph) Definition(name string) (types.PackageDefinition, bool) {
	i, ok := g.index[name]
	if !ok {
		return types.PackageDefinition{}, false
	}
	return g.nodes[i], true
}

// Dependents returns the packages that list name in depends_on, in
// declaration order.
func (g *PackageGraph) Dependents(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.outgoing[i])
}

// TopologicalOrder lists every package after all of its dependencies.
// Packages that become ready together are taken in declaration order.
func (g *PackageGraph) TopologicalOrder() []string {
	return g.names(g.topoOrderIndices(nil))
}

// Closure returns targets and everything they depend on, in topological
// order. An empty target list selects the whole graph.
func (g *PackageGraph) Closure(targets []string) ([]string, error) {
	if len(targets) == 0 {
		return g.TopologicalOrder(), nil
	}
	keep := make([]bool, len(g.nodes))
	stack := make([]int, 0, len(targets))
	for _, target := range targets {
		i, ok := g.index[target]
		if !ok {
			return nil, invalidGraphf("unknown target %q", target)
		}
		stack = append(stack, i)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if keep[n] {
			continue
		}
		keep[n] = true
		stack = append(stack, g.deps[n]...)
	}
	return g.names(g.topoOrderIndices(keep)), nil
}

func (g *PackageGraph) names(order []int) []string {
	out := make([]string, 0, len(order))
	for _, i := range order {
		out = append(out, g.nodes[i].Name)
	}
	return out
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices runs Kahn's algorithm over the nodes selected by keep
// (all nodes when keep is nil). A closure is dependency-closed, so
// in-degrees need no adjustment for unselected nodes.
func (g *PackageGraph) topoOrderIndices(keep []bool) []int {
	selected := func(i int) bool { return keep == nil || keep[i] }
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &indexHeap{}
	for i := range indeg {
		if selected(i) && indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}
	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 && selected(m) {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle returns one cycle as a closed path of names, found by a DFS
// in declaration order so the witness is stable across runs.
func (g *PackageGraph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}
	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}
	for i := range g.nodes {
		if color[i] == white && dfs(i) {
			break
		}
	}
	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.nodes[cycle[i]].Name)
	}
	return out
}

func invalidGraphf(format string, args ...any) error {
	return shared.Fail(shared.KindInvalidGraph, shared.StageGraph, fmt.Sprintf(format, args...), nil)
}
