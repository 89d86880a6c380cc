package transport

import (
	"path"
	"strings"
)

// Mode selects byte-for-byte or ASCII transfer.
type Mode int

const (
	Binary Mode = iota
	Text
	// Auto asks the caller to resolve the mode from the file name.
	Auto
)

func (m Mode) String() string {
	switch m {
	case Text:
		return "text"
	case Auto:
		return "auto"
	default:
		return "binary"
	}
}

// ParseMode reads "text"/"ascii", "binary"/"bin" or "auto".
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(s) {
	case "text", "ascii", "a":
		return Text, true
	case "binary", "bin", "i":
		return Binary, true
	case "auto", "":
		return Auto, true
	}
	return Binary, false
}

var textExtensions = map[string]struct{}{
	"txt":   {},
	"text":  {},
	"php":   {},
	"phps":  {},
	"php4":  {},
	"js":    {},
	"css":   {},
	"htm":   {},
	"html":  {},
	"phtml": {},
	"shtml": {},
	"log":   {},
	"xml":   {},
}

// Extension returns what follows the last '.' of the base name, or "txt"
// when the name has no '.' at all.
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return "txt"
	}
	return base[i+1:]
}

// ResolveMode maps a file name to Text or Binary by its extension. The
// lookup is case-sensitive and never looks at content.
func ResolveMode(filename string) Mode {
	if _, ok := textExtensions[Extension(filename)]; ok {
		return Text
	}
	return Binary
}

// Resolve returns m, or the mode for filename when m is Auto.
func (m Mode) Resolve(filename string) Mode {
	if m == Auto {
		return ResolveMode(filename)
	}
	return m
}
