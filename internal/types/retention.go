package types

import "time"

type StoreEntryKind string

const (
	StoreEntrySourceArchive StoreEntryKind = "source_archive"
	StoreEntryOutputArchive StoreEntryKind = "output_archive"
	StoreEntryOutputDir     StoreEntryKind = "output_dir"
)

// StoreEntryInfo describes one entry found under the package root.
type StoreEntryInfo struct {
	Kind      StoreEntryKind
	Name      string
	Hash      string
	Path      string
	CreatedAt time.Time
}

// Key returns the "<name>-<hash>" part shared by an entry's archive and
// directory forms.
func (e StoreEntryInfo) Key() string {
	return StoreKey(e.Name, e.Hash)
}

type StoreRetentionPolicy struct {
	KeepLast     int
	KeepDays     int
	ProtectKeys  []string
	ProtectNames []string
	DryRun       bool
}

type StorePrunePlan struct {
	Keep   []StoreEntryInfo
	Delete []StoreEntryInfo
}

// Lockfile records the outputs of one successful build run.
type Lockfile struct {
	RunID    string        `yaml:"run_id"`
	Packages []BuildRecord `yaml:"packages"`
}
