package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"ftpmirror/config"
	"ftpmirror/perfmetrics"
	"ftpmirror/session"
	"ftpmirror/terminal"
	"ftpmirror/transfer"
	"ftpmirror/transport"
)

var errExit = errors.New("exit")

// Command is one parsed input line.
type Command struct {
	name string
	args []string
}

// shell holds the REPL state: the open session, the local directory and
// the terminal helpers.
type shell struct {
	out    io.Writer
	fs     afero.Fs
	dialer transport.Dialer
	logger *slog.Logger
	level  *slog.LevelVar

	theme     *terminal.ThemeManager
	table     *terminal.TableFormatter
	progress  *terminal.ProgressBar
	completer *terminal.CommandCompleter
	recorder  *perfmetrics.Recorder
	profiles  *config.Profiles

	readLine     func(prompt string) (string, error)
	readPassword func(prompt string) (string, error)

	localDir string
	sess     *session.Session
	retries  int
}

func (s *shell) printf(format string, args ...any) {
	s.theme.Text().Fprintf(s.out, format, args...)
}

func (s *shell) success(format string, args ...any) {
	s.theme.Success().Fprintf(s.out, format+"\n", args...)
}

func (s *shell) info(format string, args ...any) {
	s.theme.Info().Fprintf(s.out, format+"\n", args...)
}

func (s *shell) fail(err error) {
	s.theme.Error().Fprintf(s.out, "Error: %v\n", err)
}

func parseCommand(input string) Command {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return Command{}
	}

	cmd := Command{
		name: strings.ToLower(parts[0]),
		args: parts[1:],
	}

	// Rejoin "quoted names with spaces".
	for i := 0; i < len(cmd.args); i++ {
		if !strings.HasPrefix(cmd.args[i], "\"") {
			continue
		}
		if len(cmd.args[i]) > 1 && strings.HasSuffix(cmd.args[i], "\"") {
			cmd.args[i] = strings.Trim(cmd.args[i], "\"")
			continue
		}
		for j := i + 1; j < len(cmd.args); j++ {
			if strings.HasSuffix(cmd.args[j], "\"") {
				cmd.args[i] = strings.Trim(strings.Join(cmd.args[i:j+1], " "), "\"")
				cmd.args = append(cmd.args[:i+1], cmd.args[j+1:]...)
				break
			}
		}
	}

	return cmd
}

// execute runs one input line. It returns errExit when the user asked to
// leave; every other failure is printed.
func (s *shell) execute(ctx context.Context, input string) error {
	cmd := parseCommand(input)
	if cmd.name == "" {
		return nil
	}
	if cmd.name == "exit" || cmd.name == "quit" || cmd.name == "bye" {
		s.closeSession()
		return errExit
	}

	handler, ok := s.commands()[cmd.name]
	if !ok {
		s.theme.Error().Fprintf(s.out, "Unknown command %q. Type 'help' for the command list.\n", cmd.name)
		return nil
	}
	if err := handler(ctx, cmd.args); err != nil {
		s.fail(err)
	}
	return nil
}

type handlerFunc func(ctx context.Context, args []string) error

func (s *shell) commands() map[string]handlerFunc {
	return map[string]handlerFunc{
		"open":    s.cmdOpen,
		"user":    s.cmdUser,
		"close":   s.cmdClose,
		"pwd":     s.cmdPwd,
		"cd":      s.cmdCd,
		"ls":      s.cmdLs,
		"mkdir":   s.cmdMkdir,
		"rmdir":   s.cmdRmdir,
		"put":     s.cmdPut,
		"get":     s.cmdGet,
		"rm":      s.cmdRm,
		"mv":      s.cmdMv,
		"chmod":   s.cmdChmod,
		"size":    s.cmdSize,
		"mdtm":    s.cmdMdtm,
		"syst":    s.cmdSyst,
		"isdir":   s.cmdIsDir,
		"exists":  s.cmdExists,
		"mirror":  s.cmdMirror,
		"rmtree":  s.cmdRmtree,
		"lls":     s.cmdLls,
		"lcd":     s.cmdLcd,
		"theme":   s.cmdTheme,
		"verbose": s.cmdVerbose,
		"help":    s.cmdHelp,
	}
}

func usage(text string) error {
	return errors.Errorf("usage: %s", text)
}

// remote returns the open session. Commands never connect implicitly
// from the shell; "open" does that.
func (s *shell) remote() (*session.Session, error) {
	if s.sess == nil || s.sess.State() != session.StateConnected {
		return nil, errors.New("not connected, use 'open <host>' first")
	}
	return s.sess, nil
}

func (s *shell) localPath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.localDir, p)
}

func (s *shell) closeSession() {
	if s.sess == nil {
		return
	}
	if err := s.sess.Close(); err != nil {
		s.logger.Debug("close", "error", err)
	}
	s.sess = nil
	s.completer.SetRemote(nil)
}

// resolveConfig turns "open" arguments into a config: a saved profile
// when the first argument names one, a host otherwise.
func (s *shell) resolveConfig(args []string) (*config.SessionConfig, error) {
	var cfg *config.SessionConfig
	if s.profiles != nil {
		if _, ok := s.profiles.Profiles[args[0]]; ok {
			c, ignored, err := s.profiles.Config(args[0])
			if err != nil {
				return nil, err
			}
			if len(ignored) > 0 {
				s.logger.Warn("ignored profile options", "profile", args[0], "options", ignored)
			}
			cfg = c
		}
	}
	if cfg == nil {
		cfg = config.New(args[0])
	}

	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, errors.Errorf("invalid port %q", args[1])
		}
		cfg.WithPort(port)
	}
	return cfg, nil
}

func (s *shell) cmdOpen(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return usage("open <host|profile> [port]")
	}
	if s.sess != nil && s.sess.State() == session.StateConnected {
		return errors.New("already connected, 'close' first")
	}

	cfg, err := s.resolveConfig(args)
	if err != nil {
		return err
	}
	if cfg.User == "" {
		user, err := s.readLine(fmt.Sprintf("Name (%s): ", cfg.Host))
		if err != nil {
			return err
		}
		cfg.WithUser(strings.TrimSpace(user))
	}
	if cfg.User != "" && cfg.User != "anonymous" && cfg.Password == "" {
		password, err := s.readPassword("Password: ")
		if err != nil {
			return err
		}
		cfg.WithPassword(password)
	}
	return s.connect(ctx, cfg)
}

func (s *shell) connect(ctx context.Context, cfg *config.SessionConfig) error {
	opts := []session.Option{
		session.WithDialer(s.dialer),
		session.WithLogger(s.logger),
		session.WithLocalFs(s.fs),
		session.WithAutoConnect(false),
	}
	if s.recorder != nil {
		opts = append(opts, session.WithTransferHook(s.recorder.Hook(s.logger)))
	}
	if s.progress != nil {
		opts = append(opts, session.WithProgress(s.progress.Update))
	}

	sess := session.New(cfg, opts...)
	if err := sess.ConnectWithRetry(ctx, s.retries); err != nil {
		return err
	}
	s.sess = sess
	s.completer.SetRemote(sess)
	s.success("Connected to %s", sess.Config())
	return nil
}

func (s *shell) cmdUser(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("user <name>")
	}
	if s.sess == nil {
		return errors.New("no host, use 'open <host>' first")
	}
	cfg := s.sess.Config().WithUser(args[0]).WithPassword("")
	if args[0] != "anonymous" {
		password, err := s.readPassword("Password: ")
		if err != nil {
			return err
		}
		cfg.WithPassword(password)
	}
	s.closeSession()
	return s.connect(ctx, cfg)
}

func (s *shell) cmdClose(_ context.Context, _ []string) error {
	if s.sess == nil {
		s.info("Not connected.")
		return nil
	}
	s.closeSession()
	s.success("Disconnected.")
	return nil
}

func (s *shell) cmdPwd(_ context.Context, _ []string) error {
	sess, err := s.remote()
	if err != nil {
		return err
	}
	dir, err := sess.CurrentDir()
	if err != nil {
		return err
	}
	s.printf("%s\n", dir)
	return nil
}

func (s *shell) cmdCd(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("cd <dir>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	ok, err := sess.ChangeDir(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("%s: no such directory or permission denied", args[0])
	}
	s.completer.ClearCache()
	dir, _ := sess.CurrentDir()
	s.success("Remote directory is now %s", dir)
	return nil
}

func (s *shell) cmdLs(_ context.Context, args []string) error {
	long := false
	if len(args) > 0 && args[0] == "-l" {
		long = true
		args = args[1:]
	}
	if len(args) > 1 {
		return usage("ls [-l] [dir]")
	}
	dir := ""
	if len(args) == 1 {
		dir = args[0]
	}

	sess, err := s.remote()
	if err != nil {
		return err
	}
	if long {
		entries, err := sess.List(dir)
		if err != nil {
			return err
		}
		return s.table.FormatRemoteDirectory(entries)
	}

	names, err := sess.ListEntries(dir)
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		s.printf("%s\n", name)
	}
	return nil
}

func (s *shell) cmdMkdir(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("mkdir <dir>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	if err := sess.MakeDir(args[0]); err != nil {
		return err
	}
	s.completer.ClearCache()
	s.success("Created %s", args[0])
	return nil
}

func (s *shell) cmdRmdir(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rmdir <dir>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	if err := sess.RemoveDir(args[0]); err != nil {
		return err
	}
	s.completer.ClearCache()
	s.success("Removed %s", args[0])
	return nil
}

// transferArgs parses "<src> [dst] [binary|text|auto]".
func transferArgs(args []string, defaultDst func(src string) string) (src, dst string, mode transport.Mode, err error) {
	mode = transport.Auto
	if len(args) > 1 {
		if m, ok := transport.ParseMode(args[len(args)-1]); ok {
			mode = m
			args = args[:len(args)-1]
		}
	}
	if len(args) == 0 || len(args) > 2 {
		return "", "", mode, errors.New("wrong number of arguments")
	}
	src = args[0]
	dst = defaultDst(src)
	if len(args) == 2 {
		dst = args[1]
	}
	return src, dst, mode, nil
}

func (s *shell) cmdPut(_ context.Context, args []string) error {
	local, remote, mode, err := transferArgs(args, filepath.Base)
	if err != nil {
		return usage("put <local> [remote] [binary|text|auto]")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	if err := sess.UploadFile(s.localPath(local), remote, mode); err != nil {
		return err
	}
	s.completer.ClearCache()
	s.success("Uploaded %s -> %s (%s)", local, remote, mode.Resolve(local))
	return nil
}

func (s *shell) cmdGet(_ context.Context, args []string) error {
	remote, local, mode, err := transferArgs(args, path.Base)
	if err != nil {
		return usage("get <remote> [local] [binary|text|auto]")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	if err := sess.Download(remote, s.localPath(local), mode); err != nil {
		return err
	}
	s.success("Downloaded %s -> %s (%s)", remote, local, mode.Resolve(remote))
	return nil
}

func (s *shell) cmdRm(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rm <file>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	if err := sess.Delete(args[0]); err != nil {
		return err
	}
	s.completer.ClearCache()
	s.success("Deleted %s", args[0])
	return nil
}

func (s *shell) cmdMv(_ context.Context, args []string) error {
	if len(args) != 2 {
		return usage("mv <from> <to>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	if err := sess.Move(args[0], args[1]); err != nil {
		return err
	}
	s.completer.ClearCache()
	s.success("Moved %s -> %s", args[0], args[1])
	return nil
}

func (s *shell) cmdChmod(_ context.Context, args []string) error {
	if len(args) != 2 {
		return usage("chmod <octal-mode> <path>")
	}
	perm, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil || perm > 0o7777 {
		return errors.Errorf("invalid mode %q", args[0])
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	if err := sess.Chmod(args[1], os.FileMode(perm)); err != nil {
		return err
	}
	s.success("Changed mode of %s to %04o", args[1], perm)
	return nil
}

func (s *shell) cmdSize(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("size <file>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	n, err := sess.Size(args[0])
	if err != nil {
		return err
	}
	s.printf("%s: %d bytes (%s)\n", args[0], n, humanize.IBytes(uint64(n)))
	return nil
}

func (s *shell) cmdMdtm(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("mdtm <file>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	t, err := sess.ModTime(args[0])
	if err != nil {
		return err
	}
	s.printf("%s: %s\n", args[0], t.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func (s *shell) cmdSyst(_ context.Context, _ []string) error {
	sess, err := s.remote()
	if err != nil {
		return err
	}
	sys, err := sess.SysType()
	if err != nil {
		return err
	}
	s.printf("%s\n", sys)
	return nil
}

func (s *shell) cmdIsDir(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("isdir <path>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	ok, err := transfer.IsDirectory(sess, args[0])
	if err != nil {
		return err
	}
	if ok {
		s.printf("%s: directory\n", args[0])
	} else {
		s.printf("%s: not a directory (or not accessible)\n", args[0])
	}
	return nil
}

func (s *shell) cmdExists(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("exists <file>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}
	if sess.FileExists(args[0]) {
		s.printf("%s: exists\n", args[0])
	} else {
		s.printf("%s: not found\n", args[0])
	}
	return nil
}

// treeOptions strips "-k" (keep going) from args.
func (s *shell) treeOptions(args []string) ([]string, []transfer.Option) {
	opts := []transfer.Option{transfer.WithLogger(s.logger)}
	var rest []string
	for _, a := range args {
		if a == "-k" {
			opts = append(opts, transfer.ContinueOnError())
			continue
		}
		rest = append(rest, a)
	}
	return rest, opts
}

func (s *shell) cmdMirror(ctx context.Context, args []string) error {
	args, opts := s.treeOptions(args)
	if len(args) != 2 {
		return usage("mirror [-k] <local-dir> <remote-dir>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}

	uploaded, failed := 0, 0
	opts = append(opts, transfer.OnUpload(func(ev transfer.UploadEvent) {
		if ev.Err != nil {
			failed++
			s.theme.Error().Fprintf(s.out, "  failed %s: %v\n", ev.Remote, ev.Err)
			return
		}
		uploaded++
		s.printf("  %s -> %s (%s)\n", ev.Local, ev.Remote, ev.Mode)
	}))

	err = transfer.Mirror(ctx, sess, s.fs, s.localPath(args[0]), args[1], opts...)
	s.completer.ClearCache()
	s.info("%d uploaded, %d failed", uploaded, failed)
	return summarize(err)
}

func (s *shell) cmdRmtree(ctx context.Context, args []string) error {
	args, opts := s.treeOptions(args)
	if len(args) != 1 {
		return usage("rmtree [-k] <remote-dir>")
	}
	sess, err := s.remote()
	if err != nil {
		return err
	}

	answer, err := s.readLine(fmt.Sprintf("Delete %s and everything below it? [y/N] ", args[0]))
	if err != nil {
		return err
	}
	if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
		s.info("Cancelled.")
		return nil
	}

	removed := 0
	opts = append(opts, transfer.OnDelete(func(ev transfer.DeleteEvent) {
		if ev.Err == nil {
			removed++
		}
	}))
	err = transfer.DeleteTree(ctx, sess, args[0], opts...)
	s.completer.ClearCache()
	s.info("%d entries removed", removed)
	return summarize(err)
}

// summarize flattens an aggregated tree failure into one line per cause.
func summarize(err error) error {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		merr.ErrorFormat = func(errs []error) string {
			lines := make([]string, len(errs))
			for i, e := range errs {
				lines[i] = "  " + e.Error()
			}
			return fmt.Sprintf("%d failures:\n%s", len(errs), strings.Join(lines, "\n"))
		}
	}
	return err
}

func (s *shell) cmdLls(_ context.Context, args []string) error {
	dir := s.localDir
	if len(args) == 1 {
		dir = s.localPath(args[0])
	}
	return s.table.FormatLocalDirectory(s.fs, dir)
}

func (s *shell) cmdLcd(_ context.Context, args []string) error {
	if len(args) != 1 {
		s.printf("%s\n", s.localDir)
		return nil
	}
	dir := s.localPath(args[0])
	ok, err := afero.IsDir(s.fs, dir)
	if err != nil || !ok {
		return errors.Errorf("%s: not a directory", dir)
	}
	s.localDir = dir
	s.completer.SetLocalDir(dir)
	s.success("Local directory is now %s", dir)
	return nil
}

func (s *shell) cmdTheme(_ context.Context, args []string) error {
	if len(args) != 1 {
		s.printf("Current theme: %s (available: %s)\n", s.theme.Name(), strings.Join(terminal.ThemeNames(), ", "))
		return nil
	}
	if err := s.theme.SetTheme(args[0]); err != nil {
		return err
	}
	s.success("Theme set to %s", args[0])
	return nil
}

func (s *shell) cmdVerbose(_ context.Context, _ []string) error {
	if s.level.Level() == slog.LevelDebug {
		s.level.Set(slog.LevelInfo)
		s.info("Verbose logging off")
	} else {
		s.level.Set(slog.LevelDebug)
		s.info("Verbose logging on")
	}
	return nil
}

func (s *shell) cmdHelp(_ context.Context, _ []string) error {
	s.printf("\nCommands:\n")
	for _, c := range terminal.Commands {
		s.printf("  %-8s %s\n", c.Text, c.Description)
	}
	s.printf("\nput/get take an optional trailing binary|text|auto mode.\n")
	s.printf("mirror and rmtree take -k to keep going after failures.\n")
	s.printf("Profile keys: %s\n", strings.Join(config.Keys(), ", "))
	if s.profiles != nil {
		if names := s.profiles.Names(); len(names) > 0 {
			s.printf("Profiles: %s\n", strings.Join(names, ", "))
		}
	}
	s.printf("\n")
	return nil
}
