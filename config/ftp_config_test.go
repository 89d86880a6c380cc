package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New("ftp.example.com")

	assert.Equal(t, DefaultPort, c.Port)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.True(t, c.PassiveEnabled())
	assert.False(t, c.UseTLS)
	assert.Empty(t, c.User)
	assert.Equal(t, "ftp.example.com:21", c.Address())
	require.NoError(t, c.Validate())
}

func TestFluentSetters(t *testing.T) {
	c := New("a").
		WithHost("b").
		WithUser("deploy").
		WithPassword("secret").
		WithPort(2121).
		WithPassive(false).
		WithTimeout(5 * time.Second).
		WithTLS(true).
		WithForceUTF8(true)

	assert.Equal(t, "b", c.Host)
	assert.Equal(t, "deploy", c.User)
	assert.Equal(t, "secret", c.Password)
	assert.Equal(t, 2121, c.Port)
	assert.False(t, c.PassiveEnabled())
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.True(t, c.UseTLS)
	assert.True(t, c.ForceUTF8)
	assert.Equal(t, "ftps://deploy@b:2121", c.String())
}

func TestPassiveUnsetMeansPassive(t *testing.T) {
	c := &SessionConfig{Host: "h"}
	assert.True(t, c.PassiveEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  SessionConfig
		ok   bool
	}{
		{"empty host", SessionConfig{Port: 21}, false},
		{"blank host", SessionConfig{Host: "  ", Port: 21}, false},
		{"port zero", SessionConfig{Host: "h"}, false},
		{"port too large", SessionConfig{Host: "h", Port: 70000}, false},
		{"negative port", SessionConfig{Host: "h", Port: -1}, false},
		{"valid", SessionConfig{Host: "h", Port: 65535}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	c := (&SessionConfig{Host: "h", Port: 990, Timeout: time.Second}).WithPassive(false)
	c.Normalize()
	assert.Equal(t, 990, c.Port)
	assert.Equal(t, time.Second, c.Timeout)
	assert.False(t, c.PassiveEnabled())
}

func TestSetOption(t *testing.T) {
	c := &SessionConfig{}
	require.NoError(t, c.SetOption("HOST", "ftp.example.com"))
	require.NoError(t, c.SetOption("port", "2121"))
	require.NoError(t, c.SetOption("passive", "false"))
	require.NoError(t, c.SetOption("timeout", 30))
	require.NoError(t, c.SetOption("ssh", true))
	require.NoError(t, c.SetOption("force_utf8", 1))
	require.NoError(t, c.SetOption("user", "u"))
	require.NoError(t, c.SetOption("password", "p"))

	assert.Equal(t, "ftp.example.com", c.Host)
	assert.Equal(t, 2121, c.Port)
	assert.False(t, c.PassiveEnabled())
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.True(t, c.UseTLS)
	assert.True(t, c.ForceUTF8)

	require.NoError(t, c.SetOption("timeout", "1m"))
	assert.Equal(t, time.Minute, c.Timeout)
	require.NoError(t, c.SetOption("tls", "false"))
	assert.False(t, c.UseTLS)
}

func TestSetOptionRejects(t *testing.T) {
	c := &SessionConfig{}

	err := c.SetOption("proxy", "x")
	assert.True(t, errors.Is(err, ErrUnknownOption))

	err = c.SetOption("port", "twenty-one")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownOption))
	assert.Contains(t, err.Error(), "port")

	assert.Error(t, c.SetOption("passive", []int{1}))
}

func TestApplyOptionsIgnoresUnknownKeys(t *testing.T) {
	c := &SessionConfig{}
	ignored, err := c.ApplyOptions(map[string]any{
		"host":    "h",
		"port":    2121,
		"color":   "blue",
		"retries": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"color", "retries"}, ignored)
	assert.Equal(t, "h", c.Host)
	assert.Equal(t, 2121, c.Port)
}

func TestApplyOptionsBadValue(t *testing.T) {
	c := &SessionConfig{}
	_, err := c.ApplyOptions(map[string]any{"port": "abc"})
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	c := New("h")
	d := c.Clone()
	d.WithPassive(false).WithHost("other")
	assert.True(t, c.PassiveEnabled())
	assert.Equal(t, "h", c.Host)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{"force_utf8", "host", "passive", "password", "port", "ssh", "timeout", "tls", "user"}, Keys())
}

func TestProfiles(t *testing.T) {
	data := []byte(`
profiles:
  backup:
    host: ftp.example.com
    user: deploy
    ssh: true
    timeout: 30
    theme: dark
  local:
    host: 127.0.0.1
    port: 2121
    passive: false
`)
	p, err := ParseProfiles(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup", "local"}, p.Names())

	cfg, ignored, err := p.Config("backup")
	require.NoError(t, err)
	assert.Equal(t, []string{"theme"}, ignored)
	assert.Equal(t, "ftp.example.com:21", cfg.Address())
	assert.True(t, cfg.UseTLS)
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	cfg, _, err = p.Config("local")
	require.NoError(t, err)
	assert.Equal(t, 2121, cfg.Port)
	assert.False(t, cfg.PassiveEnabled())

	_, _, err = p.Config("missing")
	assert.Error(t, err)
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()

	p, err := LoadProfiles(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, p.Names())

	path := filepath.Join(dir, ProfileFileName)
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  a:\n    host: h\n"), 0o600))
	p, err = LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, p.Names())

	require.NoError(t, os.WriteFile(path, []byte("profiles: [1, 2"), 0o600))
	_, err = LoadProfiles(path)
	assert.Error(t, err)
}
