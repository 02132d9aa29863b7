package types

import "io/fs"

// SourceFile is one non-ignored entry of a source tree. RelativePath is
// slash-separated so identities match across operating systems.
type SourceFile struct {
	RelativePath string
	AbsolutePath string
	Mode         fs.FileMode
	LinkTarget   string
	Size         int64
}

// IsSymlink reports whether the entry is a symbolic link.
func (f SourceFile) IsSymlink() bool {
	return f.Mode&fs.ModeSymlink != 0
}

// FileDigest pairs a relative path with the hash of its content.
type FileDigest struct {
	RelativePath string
	ContentHash  string
}

// SourceFingerprint is the sorted digest list and its aggregate hash.
type SourceFingerprint struct {
	Algorithm HashAlgorithm
	Entries   []FileDigest
	Hash      string
}
