// Package transport defines the FTP command layer a Session drives and
// adapts github.com/jlaffaye/ftp to it.
package transport

import (
	"context"
	"crypto/tls"
	"io"
	"os"
	"time"
)

// Entry is one line of a long directory listing.
type Entry struct {
	Name  string
	Size  uint64
	Time  time.Time
	IsDir bool
}

// DialOptions carries everything a Dialer needs to open a control connection.
type DialOptions struct {
	Addr      string
	Timeout   time.Duration
	TLSConfig *tls.Config // nil means plain FTP
	UTF8      bool
}

// Dialer opens control connections.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, opts DialOptions) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, opts DialOptions) (Conn, error) {
	return f(ctx, opts)
}

// Conn is a single authenticated-or-not control connection. Commands are
// strictly sequential; only Quit may be called concurrently with another
// command, and it aborts that command.
type Conn interface {
	Login(user, password string) error
	SetPassive(passive bool) error
	Quote(command string) error

	ChangeDir(path string) error
	CurrentDir() (string, error)
	MakeDir(path string) error
	RemoveDir(path string) error
	NameList(path string) ([]string, error)
	List(path string) ([]Entry, error)

	Stor(path string, r io.Reader, mode Mode) error
	Retr(path string, mode Mode) (io.ReadCloser, error)
	Delete(path string) error
	Rename(from, to string) error

	FileSize(path string) (int64, error)
	ModTime(path string) (time.Time, error)

	Quit() error
}

// Chmoder is implemented by connections that support SITE CHMOD.
type Chmoder interface {
	Chmod(path string, perm os.FileMode) error
}

// Allocator is implemented by connections that support ALLO.
type Allocator interface {
	Alloc(size int64) error
}

// SysTyper is implemented by connections that support SYST.
type SysTyper interface {
	SysType() (string, error)
}
