package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ProfileFileName is looked up in the user's home directory.
const ProfileFileName = ".ftpmirror.yaml"

// Profiles maps a profile name to its raw option map.
//
//	profiles:
//	  backup:
//	    host: ftp.example.com
//	    user: deploy
//	    ssh: true
//	    timeout: 30
type Profiles struct {
	Profiles map[string]map[string]any `yaml:"profiles"`
}

// DefaultProfilePath returns ~/.ftpmirror.yaml.
func DefaultProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ProfileFileName), nil
}

// LoadProfiles reads a profile file. A missing file yields no profiles.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profiles{Profiles: map[string]map[string]any{}}, nil
		}
		return nil, errors.Wrapf(err, "read profiles %s", path)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes profile YAML.
func ParseProfiles(data []byte) (*Profiles, error) {
	p := &Profiles{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "parse profiles")
	}
	if p.Profiles == nil {
		p.Profiles = map[string]map[string]any{}
	}
	return p, nil
}

// Names returns the profile names, sorted.
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.Profiles))
	for name := range p.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config builds a normalized SessionConfig from the named profile. Unknown
// keys in the profile are returned in ignored.
func (p *Profiles) Config(name string) (cfg *SessionConfig, ignored []string, err error) {
	opts, ok := p.Profiles[name]
	if !ok {
		return nil, nil, errors.Errorf("profile %q not found", name)
	}
	cfg = &SessionConfig{}
	ignored, err = cfg.ApplyOptions(opts)
	if err != nil {
		return nil, ignored, errors.Wrapf(err, "profile %s", name)
	}
	cfg.Normalize()
	return cfg, ignored, nil
}
