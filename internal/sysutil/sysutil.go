// Package sysutil holds process-level helpers: log level selection and
// log-safe rendering of approver phone numbers.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level from a name such as "debug" or
// "warn" and returns the level applied. Unknown or empty names select info.
func SetLogLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// MaskPhone hides all but the last four digits of a phone number so it can
// be logged. "+15551234567" becomes "+*******4567".
func MaskPhone(p string) string {
	p = strings.TrimSpace(p)
	if len(p) <= 4 {
		return strings.Repeat("*", len(p))
	}
	var b strings.Builder
	b.Grow(len(p))
	for i, r := range p {
		switch {
		case i == 0 && r == '+':
			b.WriteRune(r)
		case i < len(p)-4:
			b.WriteByte('*')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
