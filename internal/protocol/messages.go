package protocol

import "vorpal/internal/types"

// PrepareRequest uploads a signed source archive. PinnedHash, when set,
// is the hash the package declared for its source; the executor compares
// it with SourceHash.
type PrepareRequest struct {
	SourceData      []byte  `cbor:"source_data"`
	SourceHash      string  `cbor:"source_hash"`
	SourceName      string  `cbor:"source_name"`
	SourceSignature string  `cbor:"source_signature"`
	PinnedHash      *string `cbor:"pinned_hash,omitempty"`
}

// PrepareResponse carries the executor's opaque reference to the
// uploaded source.
type PrepareResponse struct {
	SourceID string `cbor:"source_id"`
}

type BuildRequest struct {
	BuildScript   string                `cbor:"build_script"`
	InstallScript string                `cbor:"install_script"`
	SourceID      string                `cbor:"source_id"`
	Environment   map[string]string     `cbor:"environment,omitempty"`
	Dependencies  []types.PackageOutput `cbor:"dependencies,omitempty"`
	Sandbox       bool                  `cbor:"sandbox"`
}

// BuildResponse is one stream element: a log chunk, the terminal output
// identity, an optional compressed result, or any combination.
type BuildResponse struct {
	LogOutput     []byte               `cbor:"log_output,omitempty"`
	PackageOutput *types.PackageOutput `cbor:"package_output,omitempty"`
	IsCompressed  bool                 `cbor:"is_compressed,omitempty"`
	Payload       []byte               `cbor:"payload,omitempty"`
}

type PackageSource struct {
	Kind        SourceKind `cbor:"kind"`
	URI         string     `cbor:"uri"`
	Hash        *string    `cbor:"hash,omitempty"`
	IgnorePaths []string   `cbor:"ignore_paths,omitempty"`
}

type PackageBuild struct {
	Environment   map[string]string     `cbor:"environment,omitempty"`
	Packages      []types.PackageOutput `cbor:"packages,omitempty"`
	Sandbox       bool                  `cbor:"sandbox"`
	Script        string                `cbor:"script"`
	InstallScript string                `cbor:"install_script,omitempty"`
}

// PackageRequest is the config-oriented call carrying a whole package
// description in one message.
type PackageRequest struct {
	Name   string        `cbor:"name"`
	Source PackageSource `cbor:"source"`
	Build  PackageBuild  `cbor:"build"`
}
