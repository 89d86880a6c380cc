package transfer

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"ftpmirror/session"
	"ftpmirror/transport"
)

// walker carries the options and the failures collected so far.
type walker struct {
	*options
	errs *multierror.Error
}

// fail decides whether err stops the walk. Cancellation and a lost
// connection always stop it.
func (w *walker) fail(err error) error {
	if !w.continueOnError || isFatal(err) {
		return err
	}
	w.errs = multierror.Append(w.errs, err)
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, session.ErrNotConnected) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Mirror recreates the local tree at localDir under remoteDir, creating
// remote directories as needed and uploading every file with the mode its
// name implies. Entries whose name starts with "." are skipped at every
// depth. The walk is depth-first, pre-order, in local listing order.
//
// Nothing is rolled back on failure. Re-running re-uploads everything;
// existing remote directories are entered rather than recreated.
//
// A relative remoteDir is taken relative to the remote working directory,
// which is restored when Mirror returns. When that directory cannot be read
// only an absolute remoteDir is accepted.
//
// Symlinks to files are uploaded as files; symlinks to directories are
// skipped so a link back to an ancestor cannot recurse forever.
func Mirror(ctx context.Context, r Remote, fs afero.Fs, localDir, remoteDir string, opts ...Option) error {
	w := &walker{options: newOptions(opts)}

	wd, err := r.CurrentDir()
	switch {
	case err != nil && errors.Is(err, session.ErrNotConnected):
		return err
	case err != nil && !path.IsAbs(remoteDir):
		return &session.OpError{Op: "mirror", Path: remoteDir, Kind: session.ErrChdir, Err: err}
	case err != nil:
		w.logger.Warn("remote working directory unknown, it will not be restored", "error", err)
	default:
		if !path.IsAbs(remoteDir) {
			remoteDir = path.Join(wd, remoteDir)
		}
		defer func() {
			if ok, err := r.ChangeDir(wd); err != nil || !ok {
				w.logger.Debug("could not restore working directory", "dir", wd, "error", err)
			}
		}()
	}

	w.logger.Info("mirror started", "local", localDir, "remote", remoteDir)
	if err := w.mirror(ctx, r, fs, localDir, path.Clean(remoteDir)); err != nil {
		return err
	}
	return w.errs.ErrorOrNil()
}

func (w *walker) mirror(ctx context.Context, r Remote, fs afero.Fs, localDir, remoteDir string) error {
	entries, err := afero.ReadDir(fs, localDir)
	if err != nil {
		return w.fail(&session.OpError{Op: "mirror", Path: localDir, Kind: session.ErrSourceDirNotFound, Err: err})
	}

	if err := w.enter(r, remoteDir); err != nil {
		return w.fail(err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := e.Name()
		if strings.HasPrefix(name, ".") {
			w.logger.Debug("skipping hidden entry", "path", filepath.Join(localDir, name))
			continue
		}
		local := filepath.Join(localDir, name)
		remote := path.Join(remoteDir, name)

		if e.Mode()&os.ModeSymlink != 0 {
			if target, err := fs.Stat(local); err == nil && target.IsDir() {
				w.logger.Debug("skipping directory symlink", "path", local)
				continue
			}
		}
		if e.IsDir() {
			if err := w.mirror(ctx, r, fs, local, remote); err != nil {
				return err
			}
			continue
		}

		mode := transport.ResolveMode(name)
		err := r.UploadFile(local, remote, mode)
		if w.onUpload != nil {
			w.onUpload(UploadEvent{Local: local, Remote: remote, Mode: mode, Err: err})
		}
		if err != nil {
			w.logger.Warn("upload failed", "local", local, "remote", remote, "error", err)
			if err := w.fail(err); err != nil {
				return err
			}
			continue
		}
		w.logger.Debug("uploaded", "local", local, "remote", remote, "mode", mode)
	}
	return nil
}

// enter changes into dir, creating it first when it cannot be entered.
func (w *walker) enter(r Remote, dir string) error {
	ok, err := r.ChangeDir(dir)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := r.MakeDir(dir); err != nil {
		return err
	}
	w.logger.Debug("created remote directory", "dir", dir)
	if ok, err = r.ChangeDir(dir); err != nil {
		return err
	}
	if !ok {
		return &session.OpError{Op: "mirror", Path: dir, Kind: session.ErrChdir}
	}
	return nil
}
