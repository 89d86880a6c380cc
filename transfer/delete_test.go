package transfer_test

import (
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftpmirror/internal/ftptest"
	"ftpmirror/session"
	"ftpmirror/transfer"
)

func remoteTree(srv *ftptest.Server) {
	srv.WriteFile("/r/b.txt", []byte("b"))
	srv.WriteFile("/r/c/d.php", []byte("d"))
	srv.WriteFile("/r/c/e/f.bin", []byte("f"))
}

func TestDeleteTree(t *testing.T) {
	for name, tweak := range map[string]func(*ftptest.Server){
		"joined names": func(*ftptest.Server) {},
		"bare names":   func(srv *ftptest.Server) { srv.BareNames = true },
		"dot entries":  func(srv *ftptest.Server) { srv.IncludeDots = true },
	} {
		t.Run(name, func(t *testing.T) {
			srv := ftptest.NewServer()
			remoteTree(srv)
			tweak(srv)
			s := newSession(t, srv, afero.NewMemMapFs())

			require.NoError(t, transfer.DeleteTree(context.Background(), s, "/r/"))
			assert.False(t, srv.Exists("/r"))
			assert.True(t, srv.IsDir("/"))
		})
	}
}

func TestDeleteTreeRelativePath(t *testing.T) {
	srv := ftptest.NewServer()
	remoteTree(srv)
	s := newSession(t, srv, afero.NewMemMapFs())

	require.NoError(t, transfer.DeleteTree(context.Background(), s, "r/c"))
	assert.Equal(t, []string{"/r/b.txt"}, srv.Tree("/r"))
}

func TestDeleteTreeChildNamedLikeTarget(t *testing.T) {
	for _, bare := range []bool{false, true} {
		srv := ftptest.NewServer()
		srv.BareNames = bare
		srv.MkdirAll("/backup/backup")
		srv.WriteFile("/backup/backup/old.tar", []byte("t"))
		srv.WriteFile("/backup/other.txt", []byte("o"))
		s := newSession(t, srv, afero.NewMemMapFs())

		require.NoError(t, transfer.DeleteTree(context.Background(), s, "backup"), "bare names: %v", bare)
		assert.False(t, srv.Exists("/backup"), "bare names: %v", bare)
	}
}

func TestDeleteTreeEmptyPath(t *testing.T) {
	srv := ftptest.NewServer()
	s := newSession(t, srv, afero.NewMemMapFs())

	err := transfer.DeleteTree(context.Background(), s, "")
	assert.True(t, errors.Is(err, session.ErrRmdir))
	assert.Equal(t, 0, srv.CountPrefix("RMD"))
}

func TestDeleteTreeUndeletableFile(t *testing.T) {
	srv := ftptest.NewServer()
	remoteTree(srv)
	srv.DenyDelete["/r/c/d.php"] = true
	s := newSession(t, srv, afero.NewMemMapFs())

	err := transfer.DeleteTree(context.Background(), s, "/r")
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrRmdir))

	// The file is reported as a directory that could not be removed.
	var oe *session.OpError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "/r/c/d.php/", oe.Path)

	assert.True(t, srv.Exists("/r/c/d.php"))
	assert.True(t, srv.Exists("/r/c"))
	assert.False(t, srv.Exists("/r/b.txt"))
}

func TestDeleteTreeListingFailureTreatedAsEmpty(t *testing.T) {
	srv := ftptest.NewServer()
	remoteTree(srv)
	srv.DenyList["/r/c"] = true
	s := newSession(t, srv, afero.NewMemMapFs())

	err := transfer.DeleteTree(context.Background(), s, "/r")
	var oe *session.OpError
	require.True(t, errors.As(err, &oe))
	assert.True(t, errors.Is(err, session.ErrRmdir))
	assert.Equal(t, "/r/c/", oe.Path)
	assert.True(t, srv.Exists("/r/c/d.php"))
}

func TestDeleteTreeContinueOnError(t *testing.T) {
	srv := ftptest.NewServer()
	remoteTree(srv)
	srv.WriteFile("/r/z.txt", []byte("z"))
	srv.DenyRmdir["/r/c/e"] = true
	s := newSession(t, srv, afero.NewMemMapFs())

	var failed []string
	err := transfer.DeleteTree(context.Background(), s, "/r",
		transfer.ContinueOnError(),
		transfer.OnDelete(func(ev transfer.DeleteEvent) {
			if ev.Err != nil {
				failed = append(failed, ev.Path)
			}
		}),
	)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, []string{"/r/c/e/", "/r/c/", "/r/"}, failed)
	assert.Len(t, merr.Errors, 3)
	assert.False(t, srv.Exists("/r/z.txt"))
	assert.False(t, srv.Exists("/r/c/d.php"))
	assert.Equal(t, []string{"/r/c/", "/r/c/e/"}, srv.Tree("/r"))
}

func TestDeleteTreeNotConnected(t *testing.T) {
	srv := ftptest.NewServer()
	remoteTree(srv)
	s := newSession(t, srv, afero.NewMemMapFs())
	require.NoError(t, s.Close())

	err := transfer.DeleteTree(context.Background(), s, "/r")
	assert.True(t, errors.Is(err, session.ErrNotConnected))
	assert.True(t, srv.Exists("/r/b.txt"))
}

func TestDeleteTreeCancelled(t *testing.T) {
	srv := ftptest.NewServer()
	remoteTree(srv)
	s := newSession(t, srv, afero.NewMemMapFs())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := transfer.DeleteTree(ctx, s, "/r")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, srv.Exists("/r/b.txt"))
}
