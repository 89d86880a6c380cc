//go:build !windows

package session_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftpmirror/internal/ftptest"
	"ftpmirror/session"
	"ftpmirror/transport"
)

func TestDownloadLeavesLockedFileIntact(t *testing.T) {
	srv := ftptest.NewServer()
	srv.WriteFile("/data.txt", []byte("new"))
	s := connected(t, srv, afero.NewOsFs())

	local := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(local, []byte("precious data in use"), 0o644))

	holder, err := os.OpenFile(local, os.O_RDWR, 0)
	require.NoError(t, err)
	defer holder.Close()
	require.True(t, session.TryExclusiveLock(holder))

	err = s.Download("/data.txt", local, transport.Text)
	assert.True(t, errors.Is(err, session.ErrDownload))
	assert.Contains(t, err.Error(), "locked by another process")
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "precious data in use", string(data))

	session.UnlockFile(holder)
	require.NoError(t, s.Download("/data.txt", local, transport.Text))
	data, err = os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
