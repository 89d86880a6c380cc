package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultPort    = 21
	DefaultTimeout = 90 * time.Second
)

var (
	// ErrInvalid is wrapped by every Validate failure.
	ErrInvalid = errors.New("invalid ftp config")
	// ErrUnknownOption is returned by SetOption for keys outside the recognized set.
	ErrUnknownOption = errors.New("unknown ftp option")
)

// SessionConfig holds FTP connection credentials and settings.
type SessionConfig struct {
	Host      string        // Example: "ftp.gnu.org"
	Port      int           // 0 means DefaultPort
	User      string        // empty means anonymous
	Password  string
	UseTLS    bool          // explicit AUTH TLS on the control channel
	Passive   *bool         // nil means passive
	Timeout   time.Duration // 0 means DefaultTimeout
	ForceUTF8 bool
}

// New returns a config for host with every default filled in.
func New(host string) *SessionConfig {
	c := &SessionConfig{Host: host}
	c.Normalize()
	return c
}

func (c *SessionConfig) WithHost(host string) *SessionConfig {
	c.Host = host
	return c
}

func (c *SessionConfig) WithUser(user string) *SessionConfig {
	c.User = user
	return c
}

func (c *SessionConfig) WithPassword(password string) *SessionConfig {
	c.Password = password
	return c
}

func (c *SessionConfig) WithPort(port int) *SessionConfig {
	c.Port = port
	return c
}

func (c *SessionConfig) WithPassive(passive bool) *SessionConfig {
	c.Passive = &passive
	return c
}

func (c *SessionConfig) WithTimeout(timeout time.Duration) *SessionConfig {
	c.Timeout = timeout
	return c
}

func (c *SessionConfig) WithTLS(useTLS bool) *SessionConfig {
	c.UseTLS = useTLS
	return c
}

func (c *SessionConfig) WithForceUTF8(force bool) *SessionConfig {
	c.ForceUTF8 = force
	return c
}

// PassiveEnabled reports whether passive mode is requested; unset means yes.
func (c *SessionConfig) PassiveEnabled() bool {
	return c.Passive == nil || *c.Passive
}

// Normalize fills the port, timeout and passive defaults.
func (c *SessionConfig) Normalize() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Passive == nil {
		passive := true
		c.Passive = &passive
	}
}

// Validate checks the fields that must hold before connecting.
func (c *SessionConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.Wrap(ErrInvalid, "host not set")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Wrapf(ErrInvalid, "port %d out of range 1-65535", c.Port)
	}
	return nil
}

// Address returns host:port, using the default port when none is set.
func (c *SessionConfig) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Clone returns a deep copy.
func (c *SessionConfig) Clone() *SessionConfig {
	out := *c
	if c.Passive != nil {
		passive := *c.Passive
		out.Passive = &passive
	}
	return &out
}

// String describes the target without the password.
func (c *SessionConfig) String() string {
	user := c.User
	if user == "" {
		user = "anonymous"
	}
	scheme := "ftp"
	if c.UseTLS {
		scheme = "ftps"
	}
	return fmt.Sprintf("%s://%s@%s", scheme, user, c.Address())
}

// Keys lists every option key SetOption recognizes.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(c *SessionConfig, v any) error{
	"host": func(c *SessionConfig, v any) error {
		s, err := toString(v)
		c.Host = s
		return err
	},
	"user": func(c *SessionConfig, v any) error {
		s, err := toString(v)
		c.User = s
		return err
	},
	"password": func(c *SessionConfig, v any) error {
		s, err := toString(v)
		c.Password = s
		return err
	},
	"port": func(c *SessionConfig, v any) error {
		n, err := toInt(v)
		if err != nil {
			return err
		}
		c.Port = n
		return nil
	},
	"passive": func(c *SessionConfig, v any) error {
		b, err := toBool(v)
		if err != nil {
			return err
		}
		c.Passive = &b
		return nil
	},
	"timeout": func(c *SessionConfig, v any) error {
		d, err := toDuration(v)
		if err != nil {
			return err
		}
		c.Timeout = d
		return nil
	},
	"ssh": setTLS,
	"tls": setTLS,
	"force_utf8": func(c *SessionConfig, v any) error {
		b, err := toBool(v)
		if err != nil {
			return err
		}
		c.ForceUTF8 = b
		return nil
	},
}

func setTLS(c *SessionConfig, v any) error {
	b, err := toBool(v)
	if err != nil {
		return err
	}
	c.UseTLS = b
	return nil
}

// SetOption sets a single option by key. Keys are matched case-insensitively.
func (c *SessionConfig) SetOption(key string, value any) error {
	set, ok := setters[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return errors.Wrapf(ErrUnknownOption, "%q", key)
	}
	if err := set(c, value); err != nil {
		return errors.Wrapf(err, "option %s", key)
	}
	return nil
}

// ApplyOptions applies every recognized key in opts. Unknown keys are
// skipped and returned sorted in ignored; they are not an error.
func (c *SessionConfig) ApplyOptions(opts map[string]any) (ignored []string, err error) {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := c.SetOption(k, opts[k]); err != nil {
			if errors.Is(err, ErrUnknownOption) {
				ignored = append(ignored, k)
				continue
			}
			return ignored, err
		}
	}
	return ignored, nil
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case nil:
		return "", nil
	case fmt.Stringer:
		return t.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(t), nil
	}
	return "", errors.Errorf("cannot use %T as string", v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, errors.Wrapf(err, "parse %q", t)
		}
		return n, nil
	}
	return 0, errors.Errorf("cannot use %T as integer", v)
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, errors.Wrapf(err, "parse %q", t)
		}
		return b, nil
	}
	return false, errors.Errorf("cannot use %T as boolean", v)
}

// toDuration reads plain numbers as seconds, like the historical timeout key.
func toDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %q", t)
		}
		return d, nil
	}
	return 0, errors.Errorf("cannot use %T as duration", v)
}
