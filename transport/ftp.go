package transport

import (
	"context"
	"io"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
)

// ErrNotSupported is returned for commands github.com/jlaffaye/ftp does not expose.
var ErrNotSupported = errors.New("not supported by transport")

// FTPDialer dials real servers with github.com/jlaffaye/ftp.
type FTPDialer struct {
	// DebugOutput, when set, receives the raw control channel conversation.
	DebugOutput io.Writer
}

// Dial opens the control connection. Data connections are always passive
// (EPSV, falling back to PASV).
func (d FTPDialer) Dial(ctx context.Context, opts DialOptions) (Conn, error) {
	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(opts.Timeout),
		ftp.DialWithContext(ctx),
		ftp.DialWithDisabledUTF8(!opts.UTF8),
	}
	if opts.TLSConfig != nil {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(opts.TLSConfig))
	}
	if d.DebugOutput != nil {
		dialOpts = append(dialOpts, ftp.DialWithDebugOutput(d.DebugOutput))
	}

	c, err := ftp.Dial(opts.Addr, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", opts.Addr)
	}
	return &serverConn{c: c}, nil
}

type serverConn struct {
	c *ftp.ServerConn
}

func (s *serverConn) Login(user, password string) error {
	if user == "" {
		user = "anonymous"
	}
	return s.c.Login(user, password)
}

// SetPassive accepts passive mode only; the library has no PORT support.
func (s *serverConn) SetPassive(passive bool) error {
	if !passive {
		return errors.Wrap(ErrNotSupported, "active mode")
	}
	return nil
}

// Quote is unavailable: the library does not expose raw commands. UTF-8 is
// negotiated at dial time instead.
func (s *serverConn) Quote(command string) error {
	return errors.Wrapf(ErrNotSupported, "raw command %q", command)
}

func (s *serverConn) ChangeDir(path string) error {
	return s.c.ChangeDir(path)
}

func (s *serverConn) CurrentDir() (string, error) {
	return s.c.CurrentDir()
}

func (s *serverConn) MakeDir(path string) error {
	return s.c.MakeDir(path)
}

func (s *serverConn) RemoveDir(path string) error {
	return s.c.RemoveDir(path)
}

func (s *serverConn) NameList(path string) ([]string, error) {
	return s.c.NameList(path)
}

func (s *serverConn) List(path string) ([]Entry, error) {
	entries, err := s.c.List(path)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, Entry{
			Name:  e.Name,
			Size:  e.Size,
			Time:  e.Time,
			IsDir: e.Type == ftp.EntryTypeFolder,
		})
	}
	return out, nil
}

func (s *serverConn) setType(mode Mode) error {
	t := ftp.TransferTypeBinary
	if mode == Text {
		t = ftp.TransferTypeASCII
	}
	return s.c.Type(t)
}

func (s *serverConn) Stor(path string, r io.Reader, mode Mode) error {
	if err := s.setType(mode); err != nil {
		return errors.Wrapf(err, "set %s mode", mode)
	}
	return s.c.Stor(path, r)
}

func (s *serverConn) Retr(path string, mode Mode) (io.ReadCloser, error) {
	if err := s.setType(mode); err != nil {
		return nil, errors.Wrapf(err, "set %s mode", mode)
	}
	return s.c.Retr(path)
}

func (s *serverConn) Delete(path string) error {
	return s.c.Delete(path)
}

func (s *serverConn) Rename(from, to string) error {
	return s.c.Rename(from, to)
}

func (s *serverConn) FileSize(path string) (int64, error) {
	return s.c.FileSize(path)
}

func (s *serverConn) ModTime(path string) (time.Time, error) {
	return s.c.GetTime(path)
}

func (s *serverConn) Quit() error {
	return s.c.Quit()
}
