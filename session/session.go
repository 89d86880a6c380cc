// Package session owns one FTP control connection: its configuration,
// lifecycle and every command sent over it.
//
// A Session is single-threaded-use. Only Close may be called from another
// goroutine while a command or a tree operation is running; doing so aborts
// the command and leaves the Session closed.
package session

import (
	"context"
	"crypto/tls"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"ftpmirror/config"
	"ftpmirror/transport"
)

// State of a Session.
type State int

const (
	StateNew State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "new"
	}
}

// TransferStats describes one finished upload or download.
type TransferStats struct {
	Op       string // "upload" or "download"
	Local    string
	Remote   string
	Mode     transport.Mode
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Throughput returns MB/s.
func (t TransferStats) Throughput() float64 {
	if t.Duration <= 0 {
		return 0
	}
	return float64(t.Bytes) / 1024 / 1024 / t.Duration.Seconds()
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the default github.com/jlaffaye/ftp dialer.
func WithDialer(d transport.Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithLocalFs sets the filesystem uploads read from and downloads write to.
func WithLocalFs(fs afero.Fs) Option {
	return func(s *Session) {
		s.fs = fs
	}
}

// WithAutoConnect controls whether an operation on a new Session connects
// implicitly. It is enabled by default; a closed Session never reconnects
// implicitly.
func WithAutoConnect(enabled bool) Option {
	return func(s *Session) {
		s.autoConnect = enabled
	}
}

// WithTransferHook is called after every upload and download.
func WithTransferHook(fn func(TransferStats)) Option {
	return func(s *Session) {
		s.onTransfer = fn
	}
}

// WithProgress is called while file data moves.
func WithProgress(fn func(name string, done, total int64)) Option {
	return func(s *Session) {
		s.onProgress = fn
	}
}

// Session holds the connection configuration and its transport handle.
type Session struct {
	cfg         *config.SessionConfig
	dialer      transport.Dialer
	logger      *slog.Logger
	fs          afero.Fs
	autoConnect bool
	onTransfer  func(TransferStats)
	onProgress  func(name string, done, total int64)

	mu    sync.Mutex
	state State
	conn  transport.Conn
}

// New creates a Session in StateNew. cfg is copied; later changes to it
// have no effect.
func New(cfg *config.SessionConfig, opts ...Option) *Session {
	if cfg == nil {
		cfg = &config.SessionConfig{}
	}
	s := &Session{
		cfg:         cfg.Clone(),
		dialer:      transport.FTPDialer{},
		logger:      slog.New(slog.DiscardHandler),
		fs:          afero.NewOsFs(),
		autoConnect: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns a copy of the session configuration.
func (s *Session) Config() *config.SessionConfig {
	return s.cfg.Clone()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LocalFs returns the local filesystem used for transfers.
func (s *Session) LocalFs() afero.Fs {
	return s.fs
}

// Connect dials, logs in and negotiates passive mode and UTF-8. It does
// nothing when already connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.state == StateConnected {
		return nil
	}

	s.cfg.Normalize()
	if err := s.cfg.Validate(); err != nil {
		return opError("connect", s.cfg.Host, ErrConfig, err)
	}

	opts := transport.DialOptions{
		Addr:    s.cfg.Address(),
		Timeout: s.cfg.Timeout,
		UTF8:    s.cfg.ForceUTF8,
	}
	if s.cfg.UseTLS {
		opts.TLSConfig = &tls.Config{
			ServerName:         s.cfg.Host,
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		}
	}

	log := s.logger.With("addr", opts.Addr, "tls", s.cfg.UseTLS)
	log.Debug("dialing")
	conn, err := s.dialer.Dial(ctx, opts)
	if err != nil {
		return opError("connect", opts.Addr, ErrConnection, err)
	}

	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		if qerr := conn.Quit(); qerr != nil {
			log.Debug("quit after failed login", "error", qerr)
		}
		return opError("login", s.cfg.User, ErrAuth, err)
	}

	passive := s.cfg.PassiveEnabled()
	if err := conn.SetPassive(passive); err != nil {
		log.Warn("could not set transfer mode, continuing", "passive", passive, "error", err)
	}

	if s.cfg.ForceUTF8 {
		if err := conn.Quote("OPTS UTF8 ON"); err != nil {
			log.Debug("OPTS UTF8 ON ignored", "error", err)
		}
	}

	s.conn = conn
	s.state = StateConnected
	log.Info("connected", "user", s.cfg.User)
	return nil
}

// ensureConnected returns the live handle, connecting implicitly from
// StateNew when auto-connect is on.
func (s *Session) ensureConnected(op string) (transport.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cause error
	if s.state == StateNew && s.autoConnect {
		s.logger.Info("implicit connect", "op", op, "addr", s.cfg.Address())
		cause = s.connectLocked(context.Background())
	}
	if s.state != StateConnected || s.conn == nil {
		return nil, opError(op, "", ErrNotConnected, cause)
	}
	return s.conn, nil
}

// Close sends QUIT and releases the handle. It is a no-op unless connected
// and safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	s.logger.Info("disconnected", "addr", s.cfg.Address())
	if err := conn.Quit(); err != nil {
		return opError("close", "", ErrConnection, err)
	}
	return nil
}

// With connects a new Session, runs fn and always closes it.
func With(ctx context.Context, cfg *config.SessionConfig, fn func(*Session) error, opts ...Option) (err error) {
	s := New(cfg, opts...)
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	if err := s.Connect(ctx); err != nil {
		return err
	}
	return fn(s)
}
