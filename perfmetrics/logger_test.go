package perfmetrics

import (
	"bytes"
	"encoding/csv"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftpmirror/session"
	"ftpmirror/transport"
)

func readRows(t *testing.T, fs afero.Fs, path string) [][]string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRecorder(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := NewRecorder(fs, "/logs/perf/transfers.csv")
	r.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	require.NotEmpty(t, r.RunID())

	require.NoError(t, r.Record(session.TransferStats{
		Op:       "upload",
		Local:    "site/index.html",
		Remote:   "/www/index.html",
		Mode:     transport.Text,
		Bytes:    2 * 1024 * 1024,
		Duration: 2 * time.Second,
	}))
	require.NoError(t, r.Record(session.TransferStats{
		Op:     "download",
		Local:  "a,b.bin",
		Remote: "/a,b.bin",
		Mode:   transport.Binary,
		Err:    errors.New("550 gone"),
	}))

	rows := readRows(t, fs, r.Path())
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{
		"2024-03-01T12:00:00Z", r.RunID(), "upload", "site/index.html", "/www/index.html",
		"text", "2097152", "2.00", "1.00", "",
	}, rows[1])
	assert.Equal(t, "a,b.bin", rows[2][3])
	assert.Equal(t, "0.00", rows[2][8])
	assert.Equal(t, "550 gone", rows[2][9])
}

func TestRecorderAppendsAcrossRuns(t *testing.T) {
	fs := afero.NewMemMapFs()
	first := NewRecorder(fs, "/transfers.csv")
	second := NewRecorder(fs, "/transfers.csv")
	assert.NotEqual(t, first.RunID(), second.RunID())

	require.NoError(t, first.Record(session.TransferStats{Op: "upload"}))
	require.NoError(t, second.Record(session.TransferStats{Op: "upload"}))

	rows := readRows(t, fs, "/transfers.csv")
	require.Len(t, rows, 3)
	assert.Equal(t, first.RunID(), rows[1][1])
	assert.Equal(t, second.RunID(), rows[2][1])
}

func TestHookLogsFailures(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	r := NewRecorder(fs, "/transfers.csv")

	var buf bytes.Buffer
	hook := r.Hook(slog.New(slog.NewTextHandler(&buf, nil)))
	hook(session.TransferStats{Op: "upload"})
	assert.Contains(t, buf.String(), "performance log write failed")
}
