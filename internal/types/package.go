package types

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// PackageOutput is the identity of a built artifact. It is both the result
// of a remote build and the dependency reference handed to later packages.
type PackageOutput struct {
	Name string `yaml:"name" cbor:"name"`
	Hash string `yaml:"hash" cbor:"hash"`
}

// Key returns the content-addressed store key "<name>-<hash>".
func (o PackageOutput) Key() string {
	return StoreKey(o.Name, o.Hash)
}

// IsZero reports whether either half of the identity is missing.
func (o PackageOutput) IsZero() bool {
	return o.Name == "" || o.Hash == ""
}

// StoreKey joins a package name and hash into the store entry key.
func StoreKey(name string, hash string) string {
	return name + "-" + hash
}

// ValidateStoreKey reports whether name and hash can be joined into a
// store key. The key is used as a single path element under the package
// root, and the hash may not contain the dash that separates the halves.
func ValidateStoreKey(name string, hash string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}
	if err := validateKeyPart("hash", hash); err != nil {
		return err
	}
	if strings.Contains(hash, "-") {
		return fmt.Errorf("hash %q contains '-'", hash)
	}
	return nil
}

// ValidatePackageName reports whether name is usable as the name half of
// a store key.
func ValidatePackageName(name string) error {
	return validateKeyPart("package name", name)
}

func validateKeyPart(field string, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%s is empty", field)
	case strings.TrimSpace(value) != value:
		return fmt.Errorf("%s %q has surrounding whitespace", field, value)
	case strings.HasPrefix(value, "."):
		return fmt.Errorf("%s %q starts with a dot", field, value)
	case strings.Contains(value, ".."):
		return fmt.Errorf("%s %q contains '..'", field, value)
	case strings.ContainsAny(value, "/\\\x00"):
		return fmt.Errorf("%s %q contains a path separator", field, value)
	}
	return nil
}

type SourceSpec struct {
	Kind        SourceKind
	Location    string
	PinnedHash  string
	IgnorePaths []string
}

// HasPinnedHash reports whether the source declares a pinned hash.
func (s SourceSpec) HasPinnedHash() bool {
	return s.PinnedHash != ""
}

type BuildSpec struct {
	Environment   map[string]string
	Dependencies  []PackageOutput
	Sandboxed     bool
	Script        string
	InstallScript string
}

// Package is a finalized package declaration. It is produced only by
// PackageBuilder.Build and has no mutating methods; accessors hand out
// copies so callers cannot alter the declaration after submission.
type Package struct {
	name   string
	build  BuildSpec
	source SourceSpec
}

func (p Package) Name() string {
	return p.name
}

func (p Package) Build() BuildSpec {
	out := p.build
	out.Environment = maps.Clone(p.build.Environment)
	if out.Environment == nil {
		out.Environment = map[string]string{}
	}
	out.Dependencies = slices.Clone(p.build.Dependencies)
	return out
}

func (p Package) Source() SourceSpec {
	out := p.source
	out.IgnorePaths = slices.Clone(p.source.IgnorePaths)
	return out
}

// Dependencies returns the dependency outputs in declaration order.
func (p Package) Dependencies() []PackageOutput {
	return slices.Clone(p.build.Dependencies)
}
