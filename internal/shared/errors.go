package shared

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Kind classifies a pipeline failure so callers can tell a bad declaration
// apart from an infrastructure fault.
type Kind string

const (
	KindIO                    Kind = "io"
	KindEmptySource           Kind = "empty_source"
	KindSigningKeyUnavailable Kind = "signing_key_unavailable"
	KindTransport             Kind = "transport"
	KindProtocolViolation     Kind = "protocol_violation"
	KindStoreConsistency      Kind = "store_consistency"
	KindInvalidGraph          Kind = "invalid_graph"
	KindInvalidPackage        Kind = "invalid_package"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageFingerprint Stage = "fingerprint"
	StageStore       Stage = "store"
	StageSign        Stage = "sign"
	StagePrepare     Stage = "prepare"
	StageBuild       Stage = "build"
	StageGraph       Stage = "graph"
	StageConfig      Stage = "config"
)

// Error carries the failure kind and stage around an errbuilder error.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fail builds a classified error. cause may be nil.
func Fail(kind Kind, stage Stage, msg string, cause error) error {
	builder := errbuilder.New().
		WithCode(codeForKind(kind)).
		WithMsg(msg)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return &Error{Kind: kind, Stage: stage, Err: builder}
}

// KindOf returns the kind of the first classified error in the chain, or
// an empty Kind when err is unclassified.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// StageOf returns the stage of the first classified error in the chain.
func StageOf(err error) Stage {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Stage
	}
	return ""
}

func codeForKind(kind Kind) errbuilder.ErrCode {
	switch kind {
	case KindInvalidGraph, KindInvalidPackage:
		return errbuilder.CodeInvalidArgument
	case KindEmptySource:
		return errbuilder.CodeFailedPrecondition
	case KindSigningKeyUnavailable:
		return errbuilder.CodePermissionDenied
	case KindStoreConsistency:
		return errbuilder.CodeAlreadyExists
	default:
		return errbuilder.CodeInternal
	}
}
