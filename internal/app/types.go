package app

import "vorpal/internal/types"

type ValidateRequest struct {
	GraphPath string
	Targets   []string
}

type ValidateResult struct {
	Order []string
}

type BuildRequest struct {
	GraphPath   string
	Targets     []string
	Jobs        int
	Endpoint    string
	PackageRoot string
	PrivateKey  string
	AgeIdentity string
	Algorithm   types.HashAlgorithm
	Lockfile    string
}

type BuildResult struct {
	RunID   string
	Records []types.BuildRecord
}

type HashRequest struct {
	SourceDir string
	Ignore    []string
	Algorithm types.HashAlgorithm
}

type HashResult struct {
	Hash      string
	Algorithm types.HashAlgorithm
	Files     int
}

type KeysGenerateRequest struct {
	PrivatePath string
	PublicPath  string
	Recipients  []string
}

type KeysGenerateResult struct {
	PrivatePath string
	PublicPath  string
}

type PruneRequest struct {
	PackageRoot  string
	KeepLast     int
	KeepDays     int
	ProtectKeys  []string
	ProtectNames []string
	Lockfiles    []string
	DryRun       bool
}

func (r PruneRequest) policy(protectKeys []string) types.StoreRetentionPolicy {
	return types.StoreRetentionPolicy{
		KeepLast:     r.KeepLast,
		KeepDays:     r.KeepDays,
		ProtectKeys:  protectKeys,
		ProtectNames: r.ProtectNames,
		DryRun:       r.DryRun,
	}
}

type PruneResult struct {
	KeepCount   int
	DeleteCount int
	Deleted     []string
	DryRun      bool
}
