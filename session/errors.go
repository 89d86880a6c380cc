package session

import (
	"fmt"
	"net/textproto"

	"github.com/pkg/errors"
)

// Error kinds. Every failure returned by this package is an *OpError whose
// Kind is one of these, so errors.Is(err, ErrRmdir) works on any of them.
var (
	ErrConfig            = errors.New("invalid configuration")
	ErrConnection        = errors.New("unable to connect")
	ErrAuth              = errors.New("unable to login")
	ErrNotConnected      = errors.New("no connection")
	ErrMkdir             = errors.New("unable to mkdir")
	ErrChdir             = errors.New("unable to changedir")
	ErrList              = errors.New("unable to list")
	ErrUpload            = errors.New("unable to upload")
	ErrNoSourceFile      = errors.New("no source file")
	ErrAllocation        = errors.New("unable to allocate space on server")
	ErrDownload          = errors.New("unable to download")
	ErrRename            = errors.New("unable to rename")
	ErrDelete            = errors.New("unable to delete")
	ErrRmdir             = errors.New("unable to remove directory")
	ErrChmod             = errors.New("unable to chmod")
	ErrUnsupported       = errors.New("operation not supported")
	ErrSourceDirNotFound = errors.New("source directory not found")
)

// OpError records the operation, the path it ran on and the cause.
type OpError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := "ftp: " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, path string, kind, err error) *OpError {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// ServerMessage returns the server's reply text carried by err, if any.
func ServerMessage(err error) string {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return fmt.Sprintf("%d %s", tpErr.Code, tpErr.Msg)
	}
	return ""
}

// ServerCode returns the server's reply code carried by err, or 0.
func ServerCode(err error) int {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code
	}
	return 0
}
