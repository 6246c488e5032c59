package logging

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Logging level. Higher values indicate more verbosity.
type Level int

const (
	Error Level = iota - 2
	Warn
	Info
	Debug

	// Allow numeric logging levels up to 9.
	MaxLevel Level = 9
)

// Name of the environment variable that configures levels at startup.
const envVar = "LOGLEVEL"

// Default level, unless overridden by environment variable.
var defaultLevel = Info

// Per-tag overrides, in the order they appeared in the environment variable.
var tagLevels []tagLevel

type tagLevel struct {
	tag   string
	level Level
}

func init() {
	// The environment variable holds comma-separated "tag=level" directives.
	// A directive without "tag=" sets the default level for all tags.
	for _, directive := range strings.Split(os.Getenv(envVar), ",") {
		if directive == "" {
			continue
		}
		parts := strings.SplitN(directive, "=", 2)
		level, err := parseLevel(parts[len(parts)-1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid %s directive '%s': %s\n", envVar, directive, err)
			continue
		}
		if len(parts) == 1 {
			defaultLevel = level
		} else {
			tagLevels = append(tagLevels, tagLevel{parts[0], level})
		}
	}

	DefaultLogger.Level = defaultLevel
}

// levelFor returns the level configured for tag, or fallback if the
// environment named no such tag.
func levelFor(tag string, fallback Level) Level {
	for _, e := range tagLevels {
		if e.tag == tag {
			return e.level
		}
	}
	return fallback
}

func parseLevel(s string) (Level, error) {
	// Well-known level names and their abbreviations.
	switch strings.ToUpper(s) {
	case "E", "ERROR":
		return Error, nil
	case "W", "WARN":
		return Warn, nil
	case "I", "INFO":
		return Info, nil
	case "D", "DEBUG":
		return Debug, nil
	case "T", "TRACE":
		return MaxLevel, nil
	}

	// Otherwise expect an explicit numeric level.
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid logging level: %s", s)
	}
	level := Level(n)
	if level < Error || level > MaxLevel {
		return 0, fmt.Errorf("numeric level out of range: %s", s)
	}
	return level, nil
}

func (l Level) String() string {
	switch l {
	case Error:
		return "Error"
	case Warn:
		return "Warn"
	case Info:
		return "Info"
	case Debug:
		return "Debug"
	default:
		return strconv.Itoa(int(l))
	}
}

func (l Level) letter() byte {
	if l <= Debug {
		return "EWID"[l-Error]
	}
	// Numeric values up to 9 are allowed.
	return byte('0' + l)
}

func (l Level) color() []byte {
	switch l {
	case Error:
		return ansiBoldRed
	case Warn:
		return ansiRed
	case Info:
		return ansiReset
	case Debug:
		return ansiGreen
	default:
		return ansiYellow
	}
}
