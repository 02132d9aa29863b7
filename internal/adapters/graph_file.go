package adapters

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

type GraphFileAdapter struct{}

func NewGraphFileAdapter() GraphFileAdapter {
	return GraphFileAdapter{}
}

// Load parses a graph file. Relative local source URIs are resolved
// against the directory holding the file.
func (a GraphFileAdapter) Load(path string) (types.GraphFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.GraphFile{}, shared.Fail(shared.KindIO, shared.StageGraph, "graph file not found: "+path, err)
	}
	var graph types.GraphFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&graph); err != nil && !errors.Is(err, io.EOF) {
		return types.GraphFile{}, shared.Fail(shared.KindInvalidGraph, shared.StageGraph, "failed to parse graph yaml "+path, err)
	}
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return types.GraphFile{}, shared.Fail(shared.KindIO, shared.StageGraph, "failed to resolve graph directory", err)
	}
	for i := range graph.Packages {
		source := &graph.Packages[i].Source
		if source.Kind != "" && source.Kind != types.SourceKindLocal {
			continue
		}
		if source.URI != "" && !filepath.IsAbs(source.URI) {
			source.URI = filepath.Join(base, source.URI)
		}
	}
	return graph, nil
}

var _ ports.GraphLoaderPort = GraphFileAdapter{}
