package session

import (
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"ftpmirror/transport"
)

// Download fetches remote into local. Auto resolves the mode from the
// remote name. A partially written local file is removed on failure.
func (s *Session) Download(remote, local string, mode transport.Mode) error {
	conn, err := s.ensureConnected("download")
	if err != nil {
		return err
	}
	mode = mode.Resolve(remote)

	total, err := conn.FileSize(remote)
	if err != nil {
		total = -1
	}

	stats := TransferStats{Op: "download", Local: local, Remote: remote, Mode: mode}
	start := time.Now()
	n, err := s.retrieve(conn, remote, local, mode, total)
	stats.Bytes = n
	stats.Duration = time.Since(start)
	if err != nil {
		stats.Err = opError("download", remote, ErrDownload, err)
		s.report(stats)
		return stats.Err
	}
	s.logger.Debug("downloaded", "remote", remote, "local", local, "mode", mode, "bytes", n)
	s.report(stats)
	return nil
}

func (s *Session) retrieve(conn transport.Conn, remote, local string, mode transport.Mode, total int64) (int64, error) {
	rc, err := conn.Retr(remote, mode)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	// Truncate only once the lock is held so a file in use is left intact.
	f, err := s.fs.OpenFile(local, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", local)
	}
	if osFile, ok := f.(*os.File); ok {
		if !TryExclusiveLock(osFile) {
			f.Close()
			return 0, errors.Errorf("%s is locked by another process", local)
		}
		defer UnlockFile(osFile)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "truncate %s", local)
	}

	pr := s.progressReader(rc, remote, total)
	n, err := io.Copy(f, pr)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := s.fs.Remove(local); rmErr != nil {
			s.logger.Debug("remove partial download", "local", local, "error", rmErr)
		}
		return n, err
	}
	return n, nil
}

// Rename renames a remote file or directory.
func (s *Session) Rename(from, to string) error {
	return s.rename("rename", from, to)
}

// Move is Rename under another name, for moving between directories.
func (s *Session) Move(from, to string) error {
	return s.rename("move", from, to)
}

func (s *Session) rename(op, from, to string) error {
	conn, err := s.ensureConnected(op)
	if err != nil {
		return err
	}
	if err := conn.Rename(from, to); err != nil {
		return opError(op, from+" -> "+to, ErrRename, err)
	}
	return nil
}

// Delete removes a remote file, reporting why it could not.
func (s *Session) Delete(path string) error {
	conn, err := s.ensureConnected("delete")
	if err != nil {
		return err
	}
	if err := conn.Delete(path); err != nil {
		return opError("delete", path, ErrDelete, err)
	}
	return nil
}

// Chmod sets remote permissions with SITE CHMOD.
func (s *Session) Chmod(path string, perm os.FileMode) error {
	conn, err := s.ensureConnected("chmod")
	if err != nil {
		return err
	}
	ch, ok := conn.(transport.Chmoder)
	if !ok {
		return opError("chmod", path, ErrUnsupported, nil)
	}
	if err := ch.Chmod(path, perm); err != nil {
		return opError("chmod", path, ErrChmod, err)
	}
	return nil
}

// Size returns the remote file size, or -1 with the error.
func (s *Session) Size(path string) (int64, error) {
	conn, err := s.ensureConnected("size")
	if err != nil {
		return -1, err
	}
	n, err := conn.FileSize(path)
	if err != nil {
		return -1, opError("size", path, ErrList, err)
	}
	return n, nil
}

// FormattedSize returns the remote file size in human-readable form.
func (s *Session) FormattedSize(path string) (string, error) {
	n, err := s.Size(path)
	if err != nil {
		return "", err
	}
	return humanize.IBytes(uint64(n)), nil
}

// FileExists reports whether SIZE succeeds for path.
func (s *Session) FileExists(path string) bool {
	n, _ := s.Size(path)
	return n != -1
}

// ModTime returns the remote modification time (MDTM).
func (s *Session) ModTime(path string) (time.Time, error) {
	conn, err := s.ensureConnected("mdtm")
	if err != nil {
		return time.Time{}, err
	}
	t, err := conn.ModTime(path)
	if err != nil {
		return time.Time{}, opError("mdtm", path, ErrList, err)
	}
	return t, nil
}

// SysType returns the SYST reply.
func (s *Session) SysType() (string, error) {
	conn, err := s.ensureConnected("syst")
	if err != nil {
		return "", err
	}
	st, ok := conn.(transport.SysTyper)
	if !ok {
		return "", opError("syst", "", ErrUnsupported, nil)
	}
	sys, err := st.SysType()
	if err != nil {
		return "", opError("syst", "", ErrUnsupported, err)
	}
	return sys, nil
}

// List returns a long listing of path.
func (s *Session) List(path string) ([]transport.Entry, error) {
	conn, err := s.ensureConnected("list")
	if err != nil {
		return nil, err
	}
	entries, err := conn.List(path)
	if err != nil {
		return nil, opError("list", path, ErrList, err)
	}
	return entries, nil
}
