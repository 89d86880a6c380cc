package session

import (
	"io"
	"os"
	"time"

	"ftpmirror/transport"
)

// ChangeDir navigates to path and reports whether that worked. The server's
// refusal is swallowed: this doubles as the only "is it a directory" probe
// the protocol offers. The error is non-nil only when there is no connection.
func (s *Session) ChangeDir(path string) (bool, error) {
	conn, err := s.ensureConnected("changedir")
	if err != nil {
		return false, err
	}
	if path == "" {
		return false, nil
	}
	if err := conn.ChangeDir(path); err != nil {
		s.logger.Debug("changedir failed", "path", path, "error", err)
		return false, nil
	}
	return true, nil
}

// MakeDir creates one remote directory.
func (s *Session) MakeDir(path string) error {
	conn, err := s.ensureConnected("mkdir")
	if err != nil {
		return err
	}
	if err := conn.MakeDir(path); err != nil {
		return opError("mkdir", path, ErrMkdir, err)
	}
	return nil
}

// MakeDirPerm creates a remote directory and sets its permissions.
func (s *Session) MakeDirPerm(path string, perm os.FileMode) error {
	if err := s.MakeDir(path); err != nil {
		return err
	}
	return s.Chmod(path, perm)
}

// ListEntries returns the names NLST reports for path. Servers differ on
// whether names come back bare or prefixed with path.
func (s *Session) ListEntries(path string) ([]string, error) {
	conn, err := s.ensureConnected("list")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "."
	}
	names, err := conn.NameList(path)
	if err != nil {
		return nil, opError("list", path, ErrList, err)
	}
	return names, nil
}

// UploadFile stores local at remote. Auto resolves the mode from the local
// file name.
func (s *Session) UploadFile(local, remote string, mode transport.Mode) error {
	conn, err := s.ensureConnected("upload")
	if err != nil {
		return err
	}

	fi, err := s.fs.Stat(local)
	if err != nil {
		return opError("upload", local, ErrNoSourceFile, err)
	}
	if fi.IsDir() {
		return opError("upload", local, ErrNoSourceFile, os.ErrInvalid)
	}
	mode = mode.Resolve(local)

	if alloc, ok := conn.(transport.Allocator); ok {
		if err := alloc.Alloc(fi.Size()); err != nil {
			return opError("upload", remote, ErrAllocation, err)
		}
	}

	f, err := s.fs.Open(local)
	if err != nil {
		return opError("upload", local, ErrNoSourceFile, err)
	}
	defer f.Close()

	stats := TransferStats{Op: "upload", Local: local, Remote: remote, Mode: mode}
	pr := s.progressReader(f, remote, fi.Size())
	start := time.Now()

	err = conn.Stor(remote, pr, mode)
	stats.Bytes = pr.Transferred
	stats.Duration = time.Since(start)
	if err != nil {
		stats.Err = opError("upload", remote, ErrUpload, err)
		s.report(stats)
		return stats.Err
	}
	s.logger.Debug("uploaded", "local", local, "remote", remote, "mode", mode, "bytes", stats.Bytes)
	s.report(stats)
	return nil
}

// UploadFilePerm uploads and then sets the remote file's permissions.
func (s *Session) UploadFilePerm(local, remote string, mode transport.Mode, perm os.FileMode) error {
	if err := s.UploadFile(local, remote, mode); err != nil {
		return err
	}
	return s.Chmod(remote, perm)
}

// DeleteFile removes a remote file and reports whether that worked. A false
// result is used by tree deletion as the hint that path is a directory. The
// error is non-nil only when there is no connection.
func (s *Session) DeleteFile(path string) (bool, error) {
	conn, err := s.ensureConnected("delete")
	if err != nil {
		return false, err
	}
	if err := conn.Delete(path); err != nil {
		s.logger.Debug("delete failed", "path", path, "error", err)
		return false, nil
	}
	return true, nil
}

// RemoveDir removes one empty remote directory.
func (s *Session) RemoveDir(path string) error {
	conn, err := s.ensureConnected("rmdir")
	if err != nil {
		return err
	}
	if err := conn.RemoveDir(path); err != nil {
		return opError("rmdir", path, ErrRmdir, err)
	}
	return nil
}

// CurrentDir returns the remote working directory.
func (s *Session) CurrentDir() (string, error) {
	conn, err := s.ensureConnected("pwd")
	if err != nil {
		return "", err
	}
	dir, err := conn.CurrentDir()
	if err != nil {
		return "", opError("pwd", "", ErrChdir, err)
	}
	return dir, nil
}

func (s *Session) progressReader(r io.Reader, name string, total int64) *transport.ProgressReader {
	pr := &transport.ProgressReader{Reader: r, Total: total}
	if s.onProgress != nil {
		pr.OnProgress = func(transferred, total int64, _ float64, _ time.Duration) {
			s.onProgress(name, transferred, total)
		}
	}
	return pr
}

func (s *Session) report(stats TransferStats) {
	if s.onTransfer != nil {
		s.onTransfer(stats)
	}
}
