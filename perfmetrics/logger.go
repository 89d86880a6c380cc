// Package perfmetrics appends one CSV row per finished transfer so runs can
// be compared afterwards.
package perfmetrics

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"ftpmirror/session"
)

// DefaultFile is the log the CLI writes to, under DefaultDir.
const (
	DefaultDir  = "perfmetrics"
	DefaultFile = "transfers.csv"
)

// Header is written once, when the file is created.
var Header = []string{
	"Timestamp", "Run", "Operation", "Local", "Remote", "Mode",
	"Bytes", "TimeSec", "ThroughputMBps", "Error",
}

// Recorder appends transfer rows to a CSV file. Every row carries the id of
// the run that produced it; a new Recorder is a new run.
type Recorder struct {
	fs   afero.Fs
	path string
	run  string
	now  func() time.Time

	mu sync.Mutex
}

// NewRecorder records to path on fs.
func NewRecorder(fs afero.Fs, path string) *Recorder {
	return &Recorder{fs: fs, path: path, run: uuid.NewString(), now: time.Now}
}

// RunID returns the id stamped on every row of this run.
func (r *Recorder) RunID() string { return r.run }

// Path returns the CSV file path.
func (r *Recorder) Path() string { return r.path }

// Record appends one row for stats.
func (r *Recorder) Record(stats session.TransferStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", filepath.Dir(r.path))
	}

	exists, err := afero.Exists(r.fs, r.path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", r.path)
	}

	file, err := r.fs.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %s", r.path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if !exists {
		if err := writer.Write(Header); err != nil {
			return errors.Wrap(err, "failed to write header")
		}
	}

	errText := ""
	if stats.Err != nil {
		errText = stats.Err.Error()
	}
	record := []string{
		r.now().Format(time.RFC3339),
		r.run,
		stats.Op,
		stats.Local,
		stats.Remote,
		stats.Mode.String(),
		strconv.FormatInt(stats.Bytes, 10),
		strconv.FormatFloat(stats.Duration.Seconds(), 'f', 2, 64),
		strconv.FormatFloat(stats.Throughput(), 'f', 2, 64),
		errText,
	}
	if err := writer.Write(record); err != nil {
		return errors.Wrap(err, "failed to write CSV record")
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "failed to flush CSV writer")
}

// Hook adapts the recorder to session.WithTransferHook. Recording failures
// are logged, never returned to the transfer.
func (r *Recorder) Hook(logger *slog.Logger) func(session.TransferStats) {
	return func(stats session.TransferStats) {
		if err := r.Record(stats); err != nil {
			logger.Warn("performance log write failed", "path", r.path, "error", err)
		}
	}
}
