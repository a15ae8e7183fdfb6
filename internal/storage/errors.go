package storage

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	IO ErrorKind = iota
	NotFound
	PermissionDenied
	MalformedContent
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case MalformedContent:
		return "malformed content"
	default:
		return "io error"
	}
}

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrMalformedContent = errors.New("malformed content")
)

type Error struct {
	Op   string
	Path string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match on the kind sentinels, e.g. errors.Is(err, storage.ErrNotFound).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == NotFound
	case ErrPermissionDenied:
		return e.Kind == PermissionDenied
	case ErrMalformedContent:
		return e.Kind == MalformedContent
	}
	return false
}
