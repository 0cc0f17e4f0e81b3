// Package device derives a human-readable descriptor of the client a session was created on.
// The descriptor is informational; two devices may share one and that is acceptable.
package device

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"
)

const (
	unknown = "Unknown"

	// MaxAgentLen bounds the client-agent part of a descriptor.
	MaxAgentLen = 50
	// MaxDescriptorLen bounds a whole descriptor so it fits the device_info column.
	MaxDescriptorLen = 200

	fieldSep = " | "
)

// Signals are the raw environment observations a descriptor is built from.
type Signals struct {
	Platform  string
	Locale    string
	Screen    string
	UserAgent string
}

// Fingerprinter builds descriptors from a signal source.
type Fingerprinter struct {
	source func() Signals
}

// NewFingerprinter returns a Fingerprinter reading signals from source.
// A nil source reads the local process environment.
func NewFingerprinter(source func() Signals) *Fingerprinter {
	if source == nil {
		source = EnvironmentSignals
	}
	return &Fingerprinter{source: source}
}

// Static returns a signal source that always reports s.
func Static(s Signals) func() Signals {
	return func() Signals { return s }
}

// Describe returns the descriptor for the current signals. It never fails.
func (f *Fingerprinter) Describe() string {
	return Describe(f.source())
}

// Describe concatenates s into a bounded descriptor, substituting "Unknown" for missing fields.
func Describe(s Signals) string {
	agent := truncate(clean(s.UserAgent), MaxAgentLen)
	fields := []string{
		orUnknown(clean(s.Platform)),
		orUnknown(clean(s.Locale)),
		orUnknown(clean(s.Screen)),
		orUnknown(agent),
	}
	return truncate(strings.Join(fields, fieldSep), MaxDescriptorLen)
}

// Parse splits a descriptor back into its fields. Descriptors that were not produced by
// Describe come back with every field set to "Unknown" except Platform, which holds the raw value.
func Parse(descriptor string) Signals {
	parts := strings.Split(descriptor, fieldSep)
	if len(parts) != 4 {
		return Signals{Platform: orUnknown(clean(descriptor)), Locale: unknown, Screen: unknown, UserAgent: unknown}
	}
	return Signals{Platform: parts[0], Locale: parts[1], Screen: parts[2], UserAgent: parts[3]}
}

// EnvironmentSignals reads the local process environment: OS/arch, locale variables,
// terminal geometry and the executable name with the Go runtime version.
func EnvironmentSignals() Signals {
	s := Signals{Platform: runtime.GOOS + "/" + runtime.GOARCH}
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(k); v != "" {
			s.Locale = strings.SplitN(v, ".", 2)[0]
			break
		}
	}
	cols, lines := os.Getenv("COLUMNS"), os.Getenv("LINES")
	if cols != "" && lines != "" {
		s.Screen = cols + "x" + lines
	}
	if len(os.Args) > 0 {
		s.UserAgent = filepath.Base(os.Args[0]) + " (" + runtime.Version() + ")"
	}
	return s
}

// truncate cuts v to at most n bytes without splitting a rune.
func truncate(v string, n int) string {
	if len(v) <= n {
		return v
	}
	for n > 0 && !utf8.RuneStart(v[n]) {
		n--
	}
	return v[:n]
}

func clean(v string) string {
	v = strings.ToValidUTF8(v, "?")
	v = strings.TrimSpace(v)
	v = strings.ReplaceAll(v, "|", "/")
	return strings.Join(strings.Fields(v), " ")
}

func orUnknown(v string) string {
	if v == "" {
		return unknown
	}
	return v
}
