package types

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"vorpal/internal/shared"
)

// PackageBuilder collects a package declaration. Setters only add or
// override optional fields; Build validates and returns an immutable
// Package. A builder may be reused: later setters never affect packages
// that were already built.
type PackageBuilder struct {
	name          string
	script        string
	installScript string
	environment   map[string]string
	dependencies  []PackageOutput
	sandboxed     bool
	kind          SourceKind
	location      string
	pinnedHash    string
	ignorePaths   []string
}

// NewPackageBuilder starts a declaration with the required fields. The
// defaults are an empty environment, no dependencies, sandbox enabled, a
// local source, no ignore paths and no pinned hash.
func NewPackageBuilder(name string, buildScript string, sourceLocation string) *PackageBuilder {
	return &PackageBuilder{
		name:        name,
		script:      buildScript,
		environment: map[string]string{},
		sandboxed:   true,
		kind:        SourceKindLocal,
		location:    sourceLocation,
	}
}

// WithDependencies appends dependency outputs, keeping caller order.
func (b *PackageBuilder) WithDependencies(outputs ...PackageOutput) *PackageBuilder {
	b.dependencies = append(b.dependencies, outputs...)
	return b
}

func (b *PackageBuilder) WithEnvironment(key string, value string) *PackageBuilder {
	b.environment[key] = value
	return b
}

func (b *PackageBuilder) WithInstallScript(script string) *PackageBuilder {
	b.installScript = script
	return b
}

func (b *PackageBuilder) WithSandbox(enabled bool) *PackageBuilder {
	b.sandboxed = enabled
	return b
}

func (b *PackageBuilder) WithSourceHash(hash string) *PackageBuilder {
	b.pinnedHash = hash
	return b
}

func (b *PackageBuilder) WithSourceKind(kind SourceKind) *PackageBuilder {
	b.kind = kind
	return b
}

// WithIgnorePaths replaces the ignore list wholesale.
func (b *PackageBuilder) WithIgnorePaths(paths ...string) *PackageBuilder {
	b.ignorePaths = slices.Clone(paths)
	return b
}

// Build validates the declaration and returns the finalized Package.
func (b *PackageBuilder) Build() (Package, error) {
	if strings.TrimSpace(b.name) == "" {
		return Package{}, invalidPackage("package name is required")
	}
	if err := ValidatePackageName(b.name); err != nil {
		return Package{}, invalidPackage(err.Error())
	}
	if strings.TrimSpace(b.script) == "" {
		return Package{}, invalidPackage(fmt.Sprintf("package %s: build script is required", b.name))
	}
	if strings.TrimSpace(b.location) == "" {
		return Package{}, invalidPackage(fmt.Sprintf("package %s: source location is required", b.name))
	}
	switch b.kind {
	case SourceKindLocal, SourceKindHTTP, SourceKindGit:
	default:
		return Package{}, invalidPackage(fmt.Sprintf("package %s: unsupported source kind %q", b.name, b.kind))
	}
	if err := validateBindings(b.name, b.dependencies); err != nil {
		return Package{}, err
	}
	return Package{
		name: b.name,
		build: BuildSpec{
			Environment:   maps.Clone(b.environment),
			Dependencies:  slices.Clone(b.dependencies),
			Sandboxed:     b.sandboxed,
			Script:        b.script,
			InstallScript: b.installScript,
		},
		source: SourceSpec{
			Kind:        b.kind,
			Location:    b.location,
			PinnedHash:  b.pinnedHash,
			IgnorePaths: slices.Clone(b.ignorePaths),
		},
	}, nil
}

// validateBindings rejects dependency sets whose script variables would
// collide with each other or with the install destination.
func validateBindings(name string, deps []PackageOutput) error {
	seen := make(map[string]string, len(deps))
	for _, dep := range deps {
		if dep.IsZero() {
			return invalidPackage(fmt.Sprintf("package %s: dependency output must have a name and hash", name))
		}
		if err := ValidateStoreKey(dep.Name, dep.Hash); err != nil {
			return invalidPackage(fmt.Sprintf("package %s: dependency %s", name, err))
		}
		binding := shared.BindingName(dep.Name)
		if binding == OutputBinding {
			return invalidPackage(fmt.Sprintf("package %s: dependency %s binds reserved variable $%s", name, dep.Name, OutputBinding))
		}
		if prev, ok := seen[binding]; ok && prev != dep.Key() {
			return invalidPackage(fmt.Sprintf("package %s: dependencies %s and %s both bind $%s", name, prev, dep.Key(), binding))
		}
		seen[binding] = dep.Key()
	}
	return nil
}

func invalidPackage(msg string) error {
	return shared.Fail(shared.KindInvalidPackage, shared.StageConfig, msg, nil)
}
