package terminal

import (
	"sort"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/afero"

	"ftpmirror/session"
	"ftpmirror/transport"
)

// Remote is what the completer needs from the session.
type Remote interface {
	State() session.State
	List(path string) ([]transport.Entry, error)
}

// Commands is the REPL command set with one-line descriptions.
var Commands = []prompt.Suggest{
	{Text: "open", Description: "Connect to a host or saved profile"},
	{Text: "user", Description: "Log in again as another user"},
	{Text: "close", Description: "Disconnect from the server"},
	{Text: "pwd", Description: "Show the remote directory"},
	{Text: "cd", Description: "Change the remote directory"},
	{Text: "ls", Description: "List a remote directory (-l for details)"},
	{Text: "mkdir", Description: "Create a remote directory"},
	{Text: "rmdir", Description: "Remove an empty remote directory"},
	{Text: "put", Description: "Upload a file"},
	{Text: "get", Description: "Download a file"},
	{Text: "rm", Description: "Delete a remote file"},
	{Text: "mv", Description: "Rename or move a remote file"},
	{Text: "chmod", Description: "Change remote permissions"},
	{Text: "size", Description: "Show a remote file's size"},
	{Text: "mdtm", Description: "Show a remote file's modification time"},
	{Text: "syst", Description: "Show the server system type"},
	{Text: "isdir", Description: "Probe whether a remote path is a directory"},
	{Text: "exists", Description: "Check whether a remote file exists"},
	{Text: "mirror", Description: "Upload a local tree to a remote directory"},
	{Text: "rmtree", Description: "Delete a remote directory tree"},
	{Text: "lls", Description: "List a local directory"},
	{Text: "lcd", Description: "Change the local directory"},
	{Text: "theme", Description: "Change terminal theme"},
	{Text: "verbose", Description: "Toggle debug logging"},
	{Text: "help", Description: "Show help information"},
	{Text: "exit", Description: "Quit"},
}

// CommandCompleter handles command and argument completion
type CommandCompleter struct {
	remote       Remote
	localFs      afero.Fs
	localDir     string
	cacheTimeout time.Duration

	remoteFiles []string
	remoteDirs  []string
	lastUpdate  time.Time
}

// NewCommandCompleter completes local names from fs, relative to its
// working directory.
func NewCommandCompleter(fs afero.Fs) *CommandCompleter {
	return &CommandCompleter{
		localFs:      fs,
		localDir:     ".",
		cacheTimeout: 15 * time.Second,
	}
}

// SetRemote sets the session remote names are completed from.
func (c *CommandCompleter) SetRemote(r Remote) {
	c.remote = r
	c.ClearCache()
}

// SetLocalDir sets the directory local names are completed from.
func (c *CommandCompleter) SetLocalDir(dir string) {
	c.localDir = dir
}

// UpdateRemoteFiles updates the cached remote files and directories
func (c *CommandCompleter) UpdateRemoteFiles(files, dirs []string) {
	c.remoteFiles = files
	c.remoteDirs = dirs
	c.lastUpdate = time.Now()
}

// ClearCache forces the next remote completion to list again.
func (c *CommandCompleter) ClearCache() {
	c.remoteFiles = nil
	c.remoteDirs = nil
	c.lastUpdate = time.Time{}
}

// Completer returns suggestions for the current input
func (c *CommandCompleter) Completer(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	words := strings.Fields(text)

	if len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(text, " ")) {
		return prompt.FilterHasPrefix(Commands, d.GetWordBeforeCursor(), true)
	}
	if strings.HasSuffix(text, " ") {
		words = append(words, "")
	}
	return c.suggestArguments(words)
}

func (c *CommandCompleter) suggestArguments(words []string) []prompt.Suggest {
	cmd := strings.ToLower(words[0])
	arg := len(words) - 1
	prefix := words[arg]

	switch cmd {
	case "cd", "ls", "rmdir", "rmtree", "isdir":
		return c.suggestRemote(prefix, true, false)
	case "get", "rm", "size", "mdtm", "exists", "chmod", "mv":
		return c.suggestRemote(prefix, true, true)
	case "put":
		if arg == 1 {
			return c.suggestLocal(prefix, false)
		}
		return c.suggestRemote(prefix, true, false)
	case "mirror":
		if arg == 1 {
			return c.suggestLocal(prefix, true)
		}
		return c.suggestRemote(prefix, true, false)
	case "lcd", "lls":
		return c.suggestLocal(prefix, true)
	case "theme":
		var s []prompt.Suggest
		for _, name := range ThemeNames() {
			s = append(s, prompt.Suggest{Text: name})
		}
		return prompt.FilterHasPrefix(s, prefix, true)
	default:
		return nil
	}
}

func (c *CommandCompleter) suggestRemote(prefix string, dirs, files bool) []prompt.Suggest {
	if time.Since(c.lastUpdate) > c.cacheTimeout {
		c.refreshRemoteCache()
	}

	var s []prompt.Suggest
	if dirs {
		s = appendMatches(s, c.remoteDirs, prefix, "Remote directory")
	}
	if files {
		s = appendMatches(s, c.remoteFiles, prefix, "Remote file")
	}
	return s
}

func (c *CommandCompleter) suggestLocal(prefix string, dirsOnly bool) []prompt.Suggest {
	entries, err := afero.ReadDir(c.localFs, c.localDir)
	if err != nil {
		return nil
	}
	var dirs, files []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else if !dirsOnly {
			files = append(files, e.Name())
		}
	}
	s := appendMatches(nil, dirs, prefix, "Local directory")
	return appendMatches(s, files, prefix, "Local file")
}

// appendMatches skips hidden names unless prefix asks for them.
func appendMatches(s []prompt.Suggest, names []string, prefix, desc string) []prompt.Suggest {
	for _, name := range names {
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			s = append(s, prompt.Suggest{Text: name, Description: desc})
		}
	}
	return s
}

func (c *CommandCompleter) refreshRemoteCache() {
	if c.remote == nil || c.remote.State() != session.StateConnected {
		return
	}

	entries, err := c.remote.List("")
	if err != nil {
		return
	}

	var files, dirs []string
	for _, entry := range entries {
		if entry.IsDir {
			dirs = append(dirs, entry.Name)
		} else {
			files = append(files, entry.Name)
		}
	}
	sort.Strings(files)
	sort.Strings(dirs)
	c.UpdateRemoteFiles(files, dirs)
}
