package terminal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/c-bata/go-prompt"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// ThemeFileName is the theme file in the user's home directory.
const ThemeFileName = ".ftpconfig.json"

// Theme represents a terminal theme configuration
type Theme struct {
	Name         string `json:"name"`
	PromptColor  string `json:"promptColor"`
	TextColor    string `json:"textColor"`
	ErrorColor   string `json:"errorColor"`
	SuccessColor string `json:"successColor"`
	InfoColor    string `json:"infoColor"`
}

var themes = map[string]Theme{
	"dark": {
		Name:         "dark",
		PromptColor:  "green",
		TextColor:    "white",
		ErrorColor:   "red",
		SuccessColor: "green",
		InfoColor:    "cyan",
	},
	"light": {
		Name:         "light",
		PromptColor:  "black",
		TextColor:    "black",
		ErrorColor:   "red",
		SuccessColor: "green",
		InfoColor:    "blue",
	},
	"matrix": {
		Name:         "matrix",
		PromptColor:  "green",
		TextColor:    "green",
		ErrorColor:   "red",
		SuccessColor: "green",
		InfoColor:    "green",
	},
}

// ThemeNames lists the built-in themes.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ThemeManager handles theme operations
type ThemeManager struct {
	currentTheme Theme
	configPath   string
}

// DefaultThemePath returns ~/.ftpconfig.json.
func DefaultThemePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(homeDir, ThemeFileName), nil
}

// NewThemeManager loads the theme saved at configPath, writing the default
// theme there when the file does not exist yet. An empty configPath keeps
// the theme in memory only.
func NewThemeManager(configPath string) (*ThemeManager, error) {
	tm := &ThemeManager{
		configPath:   configPath,
		currentTheme: themes["dark"],
	}

	if err := tm.LoadTheme(); err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrap(err, "failed to load theme")
		}
		if err := tm.SaveTheme(); err != nil {
			return nil, errors.Wrap(err, "failed to save default theme")
		}
	}

	return tm, nil
}

// LoadTheme loads the theme from config file
func (tm *ThemeManager) LoadTheme() error {
	if tm.configPath == "" {
		return nil
	}
	data, err := os.ReadFile(tm.configPath)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, &tm.currentTheme), "invalid theme file %s", tm.configPath)
}

// SaveTheme saves the current theme to config file
func (tm *ThemeManager) SaveTheme() error {
	if tm.configPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(tm.currentTheme, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tm.configPath, data, 0o644)
}

// SetTheme switches to a built-in theme and saves it.
func (tm *ThemeManager) SetTheme(name string) error {
	theme, ok := themes[name]
	if !ok {
		return errors.Errorf("unknown theme: %s", name)
	}
	tm.currentTheme = theme
	return tm.SaveTheme()
}

func (tm *ThemeManager) Prompt() *color.Color  { return colorFromName(tm.currentTheme.PromptColor) }
func (tm *ThemeManager) Text() *color.Color    { return colorFromName(tm.currentTheme.TextColor) }
func (tm *ThemeManager) Error() *color.Color   { return colorFromName(tm.currentTheme.ErrorColor) }
func (tm *ThemeManager) Success() *color.Color { return colorFromName(tm.currentTheme.SuccessColor) }
func (tm *ThemeManager) Info() *color.Color    { return colorFromName(tm.currentTheme.InfoColor) }

// PromptColor maps the prompt color onto go-prompt's palette.
func (tm *ThemeManager) PromptColor() prompt.Color {
	switch tm.currentTheme.PromptColor {
	case "black":
		return prompt.Black
	case "red":
		return prompt.Red
	case "green":
		return prompt.Green
	case "yellow":
		return prompt.Yellow
	case "blue":
		return prompt.Blue
	case "magenta":
		return prompt.Fuchsia
	case "cyan":
		return prompt.Cyan
	default:
		return prompt.DefaultColor
	}
}

// Name returns the name of the current theme
func (tm *ThemeManager) Name() string {
	return tm.currentTheme.Name
}

func colorFromName(name string) *color.Color {
	switch name {
	case "black":
		return color.New(color.FgBlack)
	case "red":
		return color.New(color.FgRed)
	case "green":
		return color.New(color.FgGreen)
	case "yellow":
		return color.New(color.FgYellow)
	case "blue":
		return color.New(color.FgBlue)
	case "magenta":
		return color.New(color.FgMagenta)
	case "cyan":
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}
