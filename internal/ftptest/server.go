// Package ftptest provides an in-memory FTP server fake that satisfies
// transport.Dialer, with hooks for injecting the failures real servers
// produce.
package ftptest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"ftpmirror/transport"
)

// Server is the shared remote tree plus failure injection. Path keys in the
// Deny*/Fail* maps are absolute and clean ("/a/b").
type Server struct {
	Fs afero.Fs

	// Users restricts logins when non-nil. An empty user name is anonymous.
	Users map[string]string

	DialErr     error
	FailPassive bool
	FailQuote   bool
	AllocErr    error

	DenyChdir  map[string]bool
	DenyDelete map[string]bool
	DenyRmdir  map[string]bool
	DenyList   map[string]bool
	FailMkdir  map[string]bool
	FailStor   map[string]bool

	// BareNames makes NLST return entry names instead of joined paths.
	BareNames bool
	// IncludeDots makes NLST list "." and ".." first.
	IncludeDots bool

	mu       sync.Mutex
	modes    map[string]transport.Mode
	commands []string
	dials    int
	quits    int
	lastOpts transport.DialOptions
}

// NewServer returns a server with an empty root.
func NewServer() *Server {
	return &Server{
		Fs:         afero.NewMemMapFs(),
		DenyChdir:  map[string]bool{},
		DenyDelete: map[string]bool{},
		DenyRmdir:  map[string]bool{},
		DenyList:   map[string]bool{},
		FailMkdir:  map[string]bool{},
		FailStor:   map[string]bool{},
		modes:      map[string]transport.Mode{},
	}
}

// Dial implements transport.Dialer.
func (s *Server) Dial(ctx context.Context, opts transport.DialOptions) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	s.lastOpts = opts
	if s.DialErr != nil {
		return nil, s.DialErr
	}
	return &Conn{s: s, cwd: "/"}, nil
}

// Basic returns a dialer whose connections expose only transport.Conn,
// without the chmod, alloc and syst capabilities.
func (s *Server) Basic() transport.Dialer {
	return transport.DialerFunc(func(ctx context.Context, opts transport.DialOptions) (transport.Conn, error) {
		c, err := s.Dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		return basicConn{c}, nil
	})
}

type basicConn struct {
	transport.Conn
}

func (s *Server) record(cmd string, args ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, strings.TrimSpace(cmd+" "+strings.Join(args, " ")))
}

// Commands returns every command received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// CountPrefix counts received commands starting with prefix.
func (s *Server) CountPrefix(prefix string) int {
	n := 0
	for _, c := range s.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *Server) Quits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quits
}

// LastDialOptions returns the options of the most recent dial.
func (s *Server) LastDialOptions() transport.DialOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpts
}

// ModeOf returns the mode the file at p was last stored with.
func (s *Server) ModeOf(p string) (transport.Mode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modes[path.Clean(p)]
	return m, ok
}

// WriteFile creates a remote file, creating parents.
func (s *Server) WriteFile(p string, data []byte) {
	p = path.Clean(p)
	if err := s.Fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		panic(err)
	}
	if err := afero.WriteFile(s.Fs, p, data, 0o644); err != nil {
		panic(err)
	}
}

// MkdirAll creates a remote directory and its parents.
func (s *Server) MkdirAll(p string) {
	if err := s.Fs.MkdirAll(path.Clean(p), 0o755); err != nil {
		panic(err)
	}
}

// ReadFile returns the content of a remote file.
func (s *Server) ReadFile(p string) ([]byte, error) {
	return afero.ReadFile(s.Fs, path.Clean(p))
}

// Exists reports whether p exists remotely.
func (s *Server) Exists(p string) bool {
	_, err := s.Fs.Stat(path.Clean(p))
	return err == nil
}

// IsDir reports whether p is a remote directory.
func (s *Server) IsDir(p string) bool {
	fi, err := s.Fs.Stat(path.Clean(p))
	return err == nil && fi.IsDir()
}

// Tree lists every path under root, directories with a trailing slash.
func (s *Server) Tree(root string) []string {
	root = path.Clean(root)
	var out []string
	_ = afero.Walk(s.Fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil || p == root {
			return nil
		}
		if info.IsDir() {
			p += "/"
		}
		out = append(out, p)
		return nil
	})
	sort.Strings(out)
	return out
}

// Conn is one control connection with its own working directory.
type Conn struct {
	s        *Server
	mu       sync.Mutex
	cwd      string
	loggedIn bool
	closed   bool
}

func reply(code int, format string, args ...any) error {
	return &textproto.Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (c *Conn) abs(p string) string {
	if p == "" {
		p = "."
	}
	c.mu.Lock()
	cwd := c.cwd
	c.mu.Unlock()
	if !path.IsAbs(p) {
		p = path.Join(cwd, p)
	}
	return path.Clean(p)
}

func (c *Conn) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	if !c.loggedIn {
		return reply(530, "Please login with USER and PASS.")
	}
	return nil
}

// isClosed reports whether QUIT arrived, possibly during a transfer.
func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) stat(p string) (os.FileInfo, error) {
	fi, err := c.s.Fs.Stat(p)
	if err != nil {
		return nil, reply(550, "%s: No such file or directory", p)
	}
	return fi, nil
}

func (c *Conn) Login(user, password string) error {
	c.s.record("USER", user)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	if c.s.Users != nil {
		if want, ok := c.s.Users[user]; !ok || want != password {
			return reply(530, "Login incorrect.")
		}
	}
	c.loggedIn = true
	return nil
}

func (c *Conn) SetPassive(passive bool) error {
	c.s.record("PASV", fmt.Sprint(passive))
	if err := c.check(); err != nil {
		return err
	}
	if c.s.FailPassive {
		return reply(502, "Command not implemented.")
	}
	return nil
}

func (c *Conn) Quote(command string) error {
	c.s.record(command)
	if err := c.check(); err != nil {
		return err
	}
	if c.s.FailQuote {
		return reply(500, "Unknown command.")
	}
	return nil
}

func (c *Conn) ChangeDir(p string) error {
	c.s.record("CWD", p)
	if err := c.check(); err != nil {
		return err
	}
	abs := c.abs(p)
	if c.s.DenyChdir[abs] {
		return reply(550, "%s: Permission denied", p)
	}
	fi, err := c.stat(abs)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return reply(550, "%s: Not a directory", p)
	}
	c.mu.Lock()
	c.cwd = abs
	c.mu.Unlock()
	return nil
}

func (c *Conn) CurrentDir() (string, error) {
	c.s.record("PWD")
	if err := c.check(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cwd, nil
}

func (c *Conn) MakeDir(p string) error {
	c.s.record("MKD", p)
	if err := c.check(); err != nil {
		return err
	}
	abs := c.abs(p)
	if c.s.FailMkdir[abs] {
		return reply(550, "%s: Permission denied", p)
	}
	if _, err := c.s.Fs.Stat(abs); err == nil {
		return reply(550, "%s: File exists", p)
	}
	parent, err := c.stat(path.Dir(abs))
	if err != nil || !parent.IsDir() {
		return reply(550, "%s: No such file or directory", p)
	}
	if err := c.s.Fs.Mkdir(abs, 0o755); err != nil {
		return reply(550, "%s: %v", p, err)
	}
	return nil
}

func (c *Conn) RemoveDir(p string) error {
	c.s.record("RMD", p)
	if err := c.check(); err != nil {
		return err
	}
	abs := c.abs(p)
	if c.s.DenyRmdir[abs] || abs == "/" {
		return reply(550, "%s: Permission denied", p)
	}
	fi, err := c.stat(abs)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return reply(550, "%s: Not a directory", p)
	}
	entries, err := afero.ReadDir(c.s.Fs, abs)
	if err != nil {
		return reply(550, "%s: %v", p, err)
	}
	if len(entries) > 0 {
		return reply(550, "%s: Directory not empty", p)
	}
	if err := c.s.Fs.Remove(abs); err != nil {
		return reply(550, "%s: %v", p, err)
	}
	return nil
}

func (c *Conn) readDir(p string) ([]os.FileInfo, string, error) {
	abs := c.abs(p)
	if c.s.DenyList[abs] {
		return nil, abs, reply(550, "%s: Permission denied", p)
	}
	fi, err := c.stat(abs)
	if err != nil {
		return nil, abs, err
	}
	if !fi.IsDir() {
		return []os.FileInfo{fi}, abs, nil
	}
	entries, err := afero.ReadDir(c.s.Fs, abs)
	if err != nil {
		return nil, abs, reply(550, "%s: %v", p, err)
	}
	return entries, abs, nil
}

func (c *Conn) NameList(p string) ([]string, error) {
	c.s.record("NLST", p)
	if err := c.check(); err != nil {
		return nil, err
	}
	entries, abs, err := c.readDir(p)
	if err != nil {
		return nil, err
	}
	if fi, _ := c.s.Fs.Stat(abs); fi != nil && !fi.IsDir() {
		return []string{p}, nil
	}

	var names []string
	if c.s.IncludeDots {
		names = append(names, ".", "..")
	}
	for _, e := range entries {
		if c.s.BareNames || p == "" || p == "." {
			names = append(names, e.Name())
			continue
		}
		names = append(names, strings.TrimSuffix(p, "/")+"/"+e.Name())
	}
	return names, nil
}

func (c *Conn) List(p string) ([]transport.Entry, error) {
	c.s.record("LIST", p)
	if err := c.check(); err != nil {
		return nil, err
	}
	entries, _, err := c.readDir(p)
	if err != nil {
		return nil, err
	}
	out := make([]transport.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, transport.Entry{
			Name:  e.Name(),
			Size:  uint64(e.Size()),
			Time:  e.ModTime(),
			IsDir: e.IsDir(),
		})
	}
	return out, nil
}

func (c *Conn) Stor(p string, r io.Reader, mode transport.Mode) error {
	c.s.record("STOR", p, mode.String())
	if err := c.check(); err != nil {
		return err
	}
	abs := c.abs(p)
	if c.s.FailStor[abs] {
		return reply(553, "%s: Could not create file", p)
	}
	parent, err := c.stat(path.Dir(abs))
	if err != nil || !parent.IsDir() {
		return reply(553, "%s: Could not create file", p)
	}
	if fi, err := c.s.Fs.Stat(abs); err == nil && fi.IsDir() {
		return reply(553, "%s: Is a directory", p)
	}
	var data bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		data.Write(buf[:n])
		if c.isClosed() {
			return reply(426, "Connection closed; transfer aborted.")
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return reply(426, "Connection closed; transfer aborted.")
		}
	}
	if err := afero.WriteFile(c.s.Fs, abs, data.Bytes(), 0o644); err != nil {
		return reply(553, "%s: %v", p, err)
	}
	c.s.mu.Lock()
	c.s.modes[abs] = mode
	c.s.mu.Unlock()
	return nil
}

func (c *Conn) Retr(p string, mode transport.Mode) (io.ReadCloser, error) {
	c.s.record("RETR", p, mode.String())
	if err := c.check(); err != nil {
		return nil, err
	}
	abs := c.abs(p)
	fi, err := c.stat(abs)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, reply(550, "%s: Not a regular file", p)
	}
	data, err := afero.ReadFile(c.s.Fs, abs)
	if err != nil {
		return nil, reply(550, "%s: %v", p, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *Conn) Delete(p string) error {
	c.s.record("DELE", p)
	if err := c.check(); err != nil {
		return err
	}
	abs := c.abs(p)
	if c.s.DenyDelete[abs] {
		return reply(550, "%s: Permission denied", p)
	}
	fi, err := c.stat(abs)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return reply(550, "%s: Is a directory", p)
	}
	if err := c.s.Fs.Remove(abs); err != nil {
		return reply(550, "%s: %v", p, err)
	}
	return nil
}

func (c *Conn) Rename(from, to string) error {
	c.s.record("RNFR", from)
	c.s.record("RNTO", to)
	if err := c.check(); err != nil {
		return err
	}
	src, dst := c.abs(from), c.abs(to)
	if _, err := c.stat(src); err != nil {
		return err
	}
	parent, err := c.stat(path.Dir(dst))
	if err != nil || !parent.IsDir() {
		return reply(553, "%s: No such directory", to)
	}
	if err := c.s.Fs.Rename(src, dst); err != nil {
		return reply(553, "%s: %v", to, err)
	}
	return nil
}

func (c *Conn) FileSize(p string) (int64, error) {
	c.s.record("SIZE", p)
	if err := c.check(); err != nil {
		return 0, err
	}
	fi, err := c.stat(c.abs(p))
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return 0, reply(550, "%s: not a regular file", p)
	}
	return fi.Size(), nil
}

func (c *Conn) ModTime(p string) (time.Time, error) {
	c.s.record("MDTM", p)
	if err := c.check(); err != nil {
		return time.Time{}, err
	}
	fi, err := c.stat(c.abs(p))
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime().UTC().Truncate(time.Second), nil
}

func (c *Conn) Chmod(p string, perm os.FileMode) error {
	c.s.record("SITE CHMOD", fmt.Sprintf("%04o", perm&os.ModePerm), p)
	if err := c.check(); err != nil {
		return err
	}
	abs := c.abs(p)
	if _, err := c.stat(abs); err != nil {
		return err
	}
	return c.s.Fs.Chmod(abs, perm)
}

func (c *Conn) Alloc(size int64) error {
	c.s.record("ALLO", fmt.Sprint(size))
	if err := c.check(); err != nil {
		return err
	}
	return c.s.AllocErr
}

func (c *Conn) SysType() (string, error) {
	c.s.record("SYST")
	if err := c.check(); err != nil {
		return "", err
	}
	return "UNIX Type: L8", nil
}

func (c *Conn) Quit() error {
	c.s.record("QUIT")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.closed = true
	c.s.mu.Lock()
	c.s.quits++
	c.s.mu.Unlock()
	return nil
}
