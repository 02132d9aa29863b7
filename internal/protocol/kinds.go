package protocol

import (
	"fmt"

	"vorpal/internal/types"
)

// SourceKind is the wire enumeration of source kinds.
type SourceKind int32

const (
	SourceKindUnknown SourceKind = 0
	SourceKindLocal   SourceKind = 1
	SourceKindHTTP    SourceKind = 2
	SourceKindGit     SourceKind = 3
)

// WireSourceKind maps a declared kind to its wire value. Every declared
// kind has an explicit case; an unmapped kind is an error, never a
// silent default.
func WireSourceKind(kind types.SourceKind) (SourceKind, error) {
	switch kind {
	case types.SourceKindLocal:
		return SourceKindLocal, nil
	case types.SourceKindHTTP:
		return SourceKindHTTP, nil
	case types.SourceKindGit:
		return SourceKindGit, nil
	}
	return SourceKindUnknown, fmt.Errorf("source kind %q has no wire mapping", kind)
}

// DeclaredSourceKind is the inverse of WireSourceKind.
func DeclaredSourceKind(kind SourceKind) (types.SourceKind, error) {
	switch kind {
	case SourceKindLocal:
		return types.SourceKindLocal, nil
	case SourceKindHTTP:
		return types.SourceKindHTTP, nil
	case SourceKindGit:
		return types.SourceKindGit, nil
	case SourceKindUnknown:
	}
	return "", fmt.Errorf("wire source kind %d is not a declared kind", kind)
}
