package types

// SourceDefinition is the declarative form of a package source.
type SourceDefinition struct {
	Kind        SourceKind `yaml:"kind,omitempty"`
	URI         string     `yaml:"uri"`
	Hash        string     `yaml:"hash,omitempty"`
	IgnorePaths []string   `yaml:"ignore_paths,omitempty"`
}

// PackageDefinition is one node of a graph file. Dependencies are named
// by package and resolved to outputs while the graph is walked.
type PackageDefinition struct {
	Name          string            `yaml:"name"`
	Script        string            `yaml:"script"`
	InstallScript string            `yaml:"install_script,omitempty"`
	Source        SourceDefinition  `yaml:"source"`
	Environment   map[string]string `yaml:"environment,omitempty"`

	// Sandbox is a pointer so an omitted key keeps the default (enabled).
	Sandbox   *bool    `yaml:"sandbox,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

type GraphFile struct {
	Packages []PackageDefinition `yaml:"packages"`
}

// Builder returns a PackageBuilder seeded with the definition. Dependency
// outputs are not known yet and must be appended by the caller.
func (d PackageDefinition) Builder() *PackageBuilder {
	builder := NewPackageBuilder(d.Name, d.Script, d.Source.URI)
	if d.InstallScript != "" {
		builder.WithInstallScript(d.InstallScript)
	}
	for key, value := range d.Environment {
		builder.WithEnvironment(key, value)
	}
	if d.Sandbox != nil {
		builder.WithSandbox(*d.Sandbox)
	}
	if d.Source.Kind != "" {
		builder.WithSourceKind(d.Source.Kind)
	}
	if d.Source.Hash != "" {
		builder.WithSourceHash(d.Source.Hash)
	}
	if len(d.Source.IgnorePaths) > 0 {
		builder.WithIgnorePaths(d.Source.IgnorePaths...)
	}
	return builder
}

// BuildRecord is one completed node of a graph walk.
type BuildRecord struct {
	Name   string        `yaml:"name"`
	Output PackageOutput `yaml:"output"`
}
