package transfer

import (
	"context"
	"path"
	"strings"

	"github.com/pkg/errors"

	"ftpmirror/session"
)

// DeleteTree empties and removes the remote directory remoteDir.
//
// FTP cannot say whether a listed name is a file or a directory, so every
// entry is first deleted as a file and, when that fails, treated as a
// subdirectory and recursed into. A listing failure is treated as an empty
// directory. The consequence: a file that cannot be deleted surfaces as an
// ErrRmdir on that file's path, indistinguishable from a directory that
// could not be emptied, and that failure propagates up through every
// enclosing directory. Nothing already deleted is restored.
func DeleteTree(ctx context.Context, r Remote, remoteDir string, opts ...Option) error {
	if strings.TrimSpace(remoteDir) == "" {
		return &session.OpError{Op: "rmtree", Kind: session.ErrRmdir, Err: errors.New("empty path")}
	}
	w := &walker{options: newOptions(opts)}
	w.logger.Info("tree delete started", "remote", remoteDir)
	if err := w.deleteTree(ctx, r, remoteDir); err != nil {
		return err
	}
	return w.errs.ErrorOrNil()
}

func (w *walker) deleteTree(ctx context.Context, r Remote, dir string) error {
	dir = strings.TrimRight(dir, "/") + "/"

	names, err := r.ListEntries(dir)
	if err != nil {
		if isFatal(err) {
			return err
		}
		w.logger.Debug("listing failed, treating as empty", "dir", dir, "error", err)
		names = nil
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok := childPath(dir, name)
		if !ok {
			continue
		}

		deleted, err := r.DeleteFile(entry)
		if err != nil {
			return err
		}
		if deleted {
			w.logger.Debug("deleted", "path", entry)
			w.report(DeleteEvent{Path: entry})
			continue
		}
		if err := w.deleteTree(ctx, r, entry); err != nil {
			return err
		}
	}

	if err := r.RemoveDir(dir); err != nil {
		w.logger.Warn("rmdir failed", "dir", dir, "error", err)
		w.report(DeleteEvent{Path: dir, IsDir: true, Err: err})
		return w.fail(err)
	}
	w.logger.Debug("removed directory", "dir", dir)
	w.report(DeleteEvent{Path: dir, IsDir: true})
	return nil
}

func (w *walker) report(ev DeleteEvent) {
	if w.onDelete != nil {
		w.onDelete(ev)
	}
}

// childPath maps an NLST name to a path under dir. Servers answer with bare
// names or with paths; only the last element is kept. Dot entries and a
// listing that names dir itself (some servers list a file as itself) are
// skipped. A bare name is always a child, even when it matches dir's last
// element.
func childPath(dir, name string) (string, bool) {
	trimmed := strings.TrimRight(name, "/")
	if trimmed == "" || name == dir {
		return "", false
	}
	if strings.Contains(trimmed, "/") && trimmed == strings.TrimRight(dir, "/") {
		return "", false
	}
	base := path.Base(trimmed)
	if base == "." || base == ".." {
		return "", false
	}
	return dir + base, true
}
