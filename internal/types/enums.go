package types

type SourceKind string

const (
	SourceKindLocal SourceKind = "local"
	SourceKindHTTP  SourceKind = "http"
	SourceKindGit   SourceKind = "git"
)

// IsRemote reports whether the source is fetched by the executor rather
// than fingerprinted and archived locally.
func (k SourceKind) IsRemote() bool {
	return k == SourceKindHTTP || k == SourceKindGit
}

type HashAlgorithm string

const (
	HashAlgorithmSHA256 HashAlgorithm = "sha256"
	HashAlgorithmBLAKE3 HashAlgorithm = "blake3"
)

// PackageState is the position of one package in the build pipeline.
type PackageState string

const (
	PackageStateDeclared      PackageState = "declared"
	PackageStateFingerprinted PackageState = "fingerprinted"
	PackageStateSigned        PackageState = "signed"
	PackageStatePrepared      PackageState = "prepared"
	PackageStateBuilding      PackageState = "building"
	PackageStateSucceeded     PackageState = "succeeded"
	PackageStateFailed        PackageState = "failed"
)

// IsTerminal reports whether no further transition can follow.
func (s PackageState) IsTerminal() bool {
	return s == PackageStateSucceeded || s == PackageStateFailed
}

// OutputBinding is the reserved script variable bound to the install
// destination by the executor.
const OutputBinding = "output"
