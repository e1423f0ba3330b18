package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrRecordInvalid  = errors.New("invalid record")
)

// Error wraps a fatal materialization failure with its kind.
type Error struct {
	Kind error
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func notFound(path string, err error) error {
	return &Error{Kind: ErrSourceNotFound, Path: path, Err: err}
}

func invalidf(path string, format string, args ...any) error {
	return &Error{Kind: ErrRecordInvalid, Path: path, Msg: fmt.Sprintf(format, args...)}
}
