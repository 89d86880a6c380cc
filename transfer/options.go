// Package transfer implements the recursive tree operations over a
// session: mirroring a local tree to the server and deleting a remote tree.
// Both run strictly sequentially on one control connection.
package transfer

import (
	"log/slog"

	"ftpmirror/transport"
)

// Navigator is the part of a session the directory probe needs.
type Navigator interface {
	ChangeDir(path string) (bool, error)
}

// Remote is the set of session primitives the tree operations use.
// *session.Session implements it.
type Remote interface {
	Navigator
	CurrentDir() (string, error)
	MakeDir(path string) error
	ListEntries(path string) ([]string, error)
	UploadFile(local, remote string, mode transport.Mode) error
	DeleteFile(path string) (bool, error)
	RemoveDir(path string) error
}

// UploadEvent is reported for every file the mirror tries to upload.
type UploadEvent struct {
	Local  string
	Remote string
	Mode   transport.Mode
	Err    error
}

// DeleteEvent is reported for every remote path the deleter removes or
// fails to remove.
type DeleteEvent struct {
	Path  string
	IsDir bool
	Err   error
}

type options struct {
	logger          *slog.Logger
	continueOnError bool
	onUpload        func(UploadEvent)
	onDelete        func(DeleteEvent)
}

// Option configures Mirror and DeleteTree.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// ContinueOnError keeps walking after a failure and returns every failure
// as one aggregated error. Without it the first failure stops the walk.
func ContinueOnError() Option {
	return func(o *options) {
		o.continueOnError = true
	}
}

func OnUpload(fn func(UploadEvent)) Option {
	return func(o *options) {
		o.onUpload = fn
	}
}

func OnDelete(fn func(DeleteEvent)) Option {
	return func(o *options) {
		o.onDelete = fn
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
