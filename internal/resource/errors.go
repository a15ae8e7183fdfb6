package resource

import (
	"errors"
	"fmt"
)

type PipelineErrorKind int

const (
	UnknownResourceKind PipelineErrorKind = iota + 1
	InvariantViolation
	InvalidUpsertTarget
	UnsupportedProjectVersion
)

func (k PipelineErrorKind) String() string {
	switch k {
	case UnknownResourceKind:
		return "unknown resource kind"
	case InvariantViolation:
		return "invariant violation"
	case InvalidUpsertTarget:
		return "invalid upsert target"
	case UnsupportedProjectVersion:
		return "unsupported project version"
	}
	return fmt.Sprintf("pipeline error %d", int(k))
}

var (
	ErrUnknownResourceKind       = errors.New("unknown resource kind")
	ErrInvariantViolation        = errors.New("invariant violation")
	ErrInvalidUpsertTarget       = errors.New("invalid upsert target")
	ErrUnsupportedProjectVersion = errors.New("unsupported project version")
)

// PipelineError reports a domain problem with the project or with a requested
// mutation. Resource names the offending resource when there is one.
type PipelineError struct {
	Kind     PipelineErrorKind
	Resource string
	Msg      string
	Err      error
}

func pipelineErrorf(kind PipelineErrorKind, resource, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Resource: resource, Msg: fmt.Sprintf(format, args...)}
}

func (e *PipelineError) Error() string {
	msg := e.Kind.String()
	if e.Resource != "" {
		msg += " (" + e.Resource + ")"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	switch target {
	case ErrUnknownResourceKind:
		return e.Kind == UnknownResourceKind
	case ErrInvariantViolation:
		return e.Kind == InvariantViolation
	case ErrInvalidUpsertTarget:
		return e.Kind == InvalidUpsertTarget
	case ErrUnsupportedProjectVersion:
		return e.Kind == UnsupportedProjectVersion
	}
	return false
}
