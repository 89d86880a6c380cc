package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftpmirror/config"
	"ftpmirror/internal/ftptest"
	"ftpmirror/session"
	"ftpmirror/transport"
)

func connected(t *testing.T, srv *ftptest.Server, fs afero.Fs, opts ...session.Option) *session.Session {
	t.Helper()
	opts = append([]session.Option{session.WithDialer(srv), session.WithLocalFs(fs)}, opts...)
	s := session.New(config.New("h"), opts...)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUploadFile(t *testing.T) {
	srv := ftptest.NewServer()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/local/index.html", []byte("<html/>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/local/logo.png", []byte{0x89, 'P', 'N', 'G'}, 0o644))

	var stats []session.TransferStats
	var progress []int64
	s := connected(t, srv, fs,
		session.WithTransferHook(func(ts session.TransferStats) { stats = append(stats, ts) }),
		session.WithProgress(func(name string, done, total int64) { progress = append(progress, done) }),
	)

	require.NoError(t, s.UploadFile("/local/index.html", "/index.html", transport.Auto))
	require.NoError(t, s.UploadFile("/local/logo.png", "/logo.png", transport.Auto))
	require.NoError(t, s.UploadFile("/local/logo.png", "/forced.png", transport.Text))

	data, err := srv.ReadFile("/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(data))

	mode, _ := srv.ModeOf("/index.html")
	assert.Equal(t, transport.Text, mode)
	mode, _ = srv.ModeOf("/logo.png")
	assert.Equal(t, transport.Binary, mode)
	mode, _ = srv.ModeOf("/forced.png")
	assert.Equal(t, transport.Text, mode)

	require.Len(t, stats, 3)
	assert.Equal(t, "upload", stats[0].Op)
	assert.Equal(t, int64(7), stats[0].Bytes)
	assert.NoError(t, stats[0].Err)
	assert.NotEmpty(t, progress)
	assert.Equal(t, 3, srv.CountPrefix("ALLO"))
}

func TestUploadFileErrors(t *testing.T) {
	srv := ftptest.NewServer()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.txt", []byte("a"), 0o644))
	require.NoError(t, fs.MkdirAll("/dir", 0o755))

	var stats []session.TransferStats
	s := connected(t, srv, fs, session.WithTransferHook(func(ts session.TransferStats) { stats = append(stats, ts) }))

	err := s.UploadFile("/missing.txt", "/missing.txt", transport.Auto)
	assert.True(t, errors.Is(err, session.ErrNoSourceFile))
	assert.Contains(t, err.Error(), "/missing.txt")

	err = s.UploadFile("/dir", "/dir", transport.Auto)
	assert.True(t, errors.Is(err, session.ErrNoSourceFile))

	err = s.UploadFile("/a.txt", "/nowhere/a.txt", transport.Auto)
	assert.True(t, errors.Is(err, session.ErrUpload))
	assert.Equal(t, 553, session.ServerCode(err))
	require.Len(t, stats, 1)
	assert.Error(t, stats[0].Err)

	srv.AllocErr = errors.New("552 Insufficient storage")
	err = s.UploadFile("/a.txt", "/a.txt", transport.Auto)
	assert.True(t, errors.Is(err, session.ErrAllocation))
	assert.Contains(t, err.Error(), "Insufficient storage")
	assert.False(t, srv.Exists("/a.txt"))
}

func TestUploadWithoutAllocCapability(t *testing.T) {
	srv := ftptest.NewServer()
	srv.AllocErr = errors.New("never called")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.bin", []byte("a"), 0o644))

	s := session.New(config.New("h"), session.WithDialer(srv.Basic()), session.WithLocalFs(fs))
	defer s.Close()

	require.NoError(t, s.UploadFile("/a.bin", "/a.bin", transport.Auto))
	assert.Equal(t, 0, srv.CountPrefix("ALLO"))
}

func TestUploadFilePermAndMakeDirPerm(t *testing.T) {
	srv := ftptest.NewServer()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run.sh", []byte("#!/bin/sh"), 0o644))
	s := connected(t, srv, fs)

	require.NoError(t, s.MakeDirPerm("/bin", 0o700))
	require.NoError(t, s.UploadFilePerm("/run.sh", "/bin/run.sh", transport.Auto, 0o755))
	assert.Equal(t, 1, srv.CountPrefix("SITE CHMOD 0700 /bin"))
	assert.Equal(t, 1, srv.CountPrefix("SITE CHMOD 0755 /bin/run.sh"))
}

func TestDownload(t *testing.T) {
	srv := ftptest.NewServer()
	srv.WriteFile("/pub/readme.txt", []byte("hello"))
	fs := afero.NewMemMapFs()
	var stats []session.TransferStats
	s := connected(t, srv, fs, session.WithTransferHook(func(ts session.TransferStats) { stats = append(stats, ts) }))

	require.NoError(t, s.Download("/pub/readme.txt", "/readme.txt", transport.Auto))
	data, err := afero.ReadFile(fs, "/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, 1, srv.CountPrefix("RETR /pub/readme.txt text"))
	require.Len(t, stats, 1)
	assert.Equal(t, int64(5), stats[0].Bytes)

	err = s.Download("/pub/missing.bin", "/missing.bin", transport.Auto)
	assert.True(t, errors.Is(err, session.ErrDownload))
	exists, _ := afero.Exists(fs, "/missing.bin")
	assert.False(t, exists)
}

func TestDownloadToDisk(t *testing.T) {
	srv := ftptest.NewServer()
	srv.WriteFile("/data.bin", []byte{1, 2, 3})
	dir := t.TempDir()
	s := connected(t, srv, afero.NewOsFs())

	local := filepath.Join(dir, "data.bin")
	require.NoError(t, s.Download("/data.bin", local, transport.Binary))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestRenameMoveDelete(t *testing.T) {
	srv := ftptest.NewServer()
	srv.WriteFile("/a.txt", []byte("a"))
	srv.MkdirAll("/archive")
	s := connected(t, srv, afero.NewMemMapFs())

	require.NoError(t, s.Rename("/a.txt", "/b.txt"))
	require.NoError(t, s.Move("/b.txt", "/archive/b.txt"))
	assert.True(t, srv.Exists("/archive/b.txt"))

	err := s.Rename("/a.txt", "/c.txt")
	assert.True(t, errors.Is(err, session.ErrRename))
	assert.Contains(t, err.Error(), "rename /a.txt -> /c.txt")

	err = s.Move("/archive/b.txt", "/nope/b.txt")
	assert.True(t, errors.Is(err, session.ErrRename))
	assert.Contains(t, err.Error(), "move")

	require.NoError(t, s.Delete("/archive/b.txt"))
	err = s.Delete("/archive/b.txt")
	assert.True(t, errors.Is(err, session.ErrDelete))
	assert.Equal(t, 550, session.ServerCode(err))
}

func TestPrimitives(t *testing.T) {
	srv := ftptest.NewServer()
	srv.WriteFile("/r/file.txt", []byte("x"))
	s := connected(t, srv, afero.NewMemMapFs())

	ok, err := s.ChangeDir("/r")
	require.NoError(t, err)
	assert.True(t, ok)
	dir, err := s.CurrentDir()
	require.NoError(t, err)
	assert.Equal(t, "/r", dir)

	ok, err = s.ChangeDir("/r/file.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ChangeDir("")
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := s.ListEntries("")
	require.NoError(t, err)
	assert.Equal(t, []string{"file.txt"}, names)

	_, err = s.ListEntries("/missing")
	assert.True(t, errors.Is(err, session.ErrList))

	require.NoError(t, s.MakeDir("/r/sub"))
	err = s.MakeDir("/r/sub")
	assert.True(t, errors.Is(err, session.ErrMkdir))

	deleted, err := s.DeleteFile("/r/sub")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.RemoveDir("/r/sub"))
	err = s.RemoveDir("/r")
	assert.True(t, errors.Is(err, session.ErrRmdir))

	deleted, err = s.DeleteFile("/r/file.txt")
	require.NoError(t, err)
	assert.True(t, deleted)

	entries, err := s.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir)
}

func TestSizeAndModTime(t *testing.T) {
	srv := ftptest.NewServer()
	srv.WriteFile("/big.bin", make([]byte, 2048))
	mtime := time.Date(2023, 12, 20, 14, 30, 0, 0, time.UTC)
	require.NoError(t, srv.Fs.Chtimes("/big.bin", mtime, mtime))
	s := connected(t, srv, afero.NewMemMapFs())

	n, err := s.Size("/big.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), n)

	formatted, err := s.FormattedSize("/big.bin")
	require.NoError(t, err)
	assert.Equal(t, "2.0 KiB", formatted)

	n, err = s.Size("/missing")
	assert.Error(t, err)
	assert.Equal(t, int64(-1), n)

	assert.True(t, s.FileExists("/big.bin"))
	assert.False(t, s.FileExists("/missing"))

	got, err := s.ModTime("/big.bin")
	require.NoError(t, err)
	assert.True(t, mtime.Equal(got))

	_, err = s.ModTime("/missing")
	assert.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	srv := ftptest.NewServer()
	srv.WriteFile("/a", []byte("a"))

	s := connected(t, srv, afero.NewMemMapFs())
	sys, err := s.SysType()
	require.NoError(t, err)
	assert.Equal(t, "UNIX Type: L8", sys)
	require.NoError(t, s.Chmod("/a", 0o600))
	assert.True(t, errors.Is(s.Chmod("/missing", 0o600), session.ErrChmod))

	basic := session.New(config.New("h"), session.WithDialer(srv.Basic()))
	defer basic.Close()
	err = basic.Chmod("/a", 0o600)
	assert.True(t, errors.Is(err, session.ErrUnsupported))
	_, err = basic.SysType()
	assert.True(t, errors.Is(err, session.ErrUnsupported))
}
