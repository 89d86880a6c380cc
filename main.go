package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/lmittmann/tint"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"ftpmirror/config"
	"ftpmirror/perfmetrics"
	"ftpmirror/session"
	"ftpmirror/terminal"
	"ftpmirror/transport"
)

func main() {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}))

	sh, err := newShell(logger, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ftpmirror: %v\n", err)
		os.Exit(1)
	}
	defer sh.closeSession()

	sh.theme.Prompt().Println("ftpmirror: FTP/FTPS client with tree mirroring")
	sh.theme.Text().Println("Type 'help' for available commands")
	fmt.Println()

	if len(os.Args) > 1 {
		sh.run(strings.Join(append([]string{"open"}, os.Args[1:]...), " "))
	}

	p := prompt.New(
		func(input string) {
			if sh.run(input) {
				sh.closeSession()
				os.Exit(0)
			}
		},
		sh.completer.Completer,
		prompt.OptionTitle("ftpmirror"),
		prompt.OptionLivePrefix(sh.livePrefix),
		prompt.OptionPrefixTextColor(sh.theme.PromptColor()),
		prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
		prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
		prompt.OptionSuggestionBGColor(prompt.DarkGray),
		prompt.OptionCompletionWordSeparator(" "),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlC,
			Fn: func(*prompt.Buffer) {
				sh.closeSession()
				fmt.Println("\nExiting...")
				os.Exit(0)
			},
		}),
	)
	p.Run()
}

func newShell(logger *slog.Logger, level *slog.LevelVar) (*shell, error) {
	localDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	themePath, err := terminal.DefaultThemePath()
	if err != nil {
		logger.Warn("theme not persisted", "error", err)
	}
	theme, err := terminal.NewThemeManager(themePath)
	if err != nil {
		logger.Warn("failed to initialize theme manager, using defaults", "error", err)
		theme, _ = terminal.NewThemeManager("")
	}

	profiles := &config.Profiles{}
	if profilePath, err := config.DefaultProfilePath(); err == nil {
		if p, err := config.LoadProfiles(profilePath); err != nil {
			logger.Warn("profiles not loaded", "path", profilePath, "error", err)
		} else {
			profiles = p
		}
	}

	fs := afero.NewOsFs()
	completer := terminal.NewCommandCompleter(fs)
	completer.SetLocalDir(localDir)

	sh := &shell{
		out:          os.Stdout,
		fs:           fs,
		dialer:       transport.FTPDialer{},
		logger:       logger,
		level:        level,
		theme:        theme,
		table:        terminal.NewTableFormatter(os.Stdout),
		progress:     terminal.NewProgressBar(os.Stdout, int(os.Stdout.Fd())),
		completer:    completer,
		recorder:     perfmetrics.NewRecorder(fs, filepath.Join(localDir, perfmetrics.DefaultDir, perfmetrics.DefaultFile)),
		profiles:     profiles,
		readLine:     readLine,
		readPassword: readPassword,
		localDir:     localDir,
		retries:      3,
	}
	logger.Debug("performance log", "path", sh.recorder.Path(), "run", sh.recorder.RunID())
	return sh, nil
}

// run executes one line with Ctrl+C cancelling it, and reports whether the
// shell should exit.
func (s *shell) run(input string) bool {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return s.execute(ctx, input) == errExit
}

func (s *shell) livePrefix() (string, bool) {
	if s.sess != nil && s.sess.State() == session.StateConnected {
		return fmt.Sprintf("[%s] %s> ", s.sess.Config().Host, filepath.Base(s.localDir)), true
	}
	return filepath.Base(s.localDir) + "> ", true
}

var stdin = bufio.NewReader(os.Stdin)

func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine("")
	}
	password, err := term.ReadPassword(fd)
	fmt.Println()
	return string(password), err
}
