package record

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Capture describes an execution whose output streams were already
// captured to files by the caller.
type Capture struct {
	StdoutPath string
	StderrPath string
	ExitCode   int
	Cmd        string
	SimPath    string
	HostOS     string
	MaxChars   int // characters kept per stream
}

// Collect reads both capture files and assembles a record. Capture files
// that cannot be read count as empty output; the failure is logged at
// debug level and otherwise dropped.
func Collect(c Capture, now time.Time, logger *zap.Logger) *Record {
	if logger == nil {
		logger = zap.NewNop()
	}

	stdout, err := ReadCapture(c.StdoutPath, c.MaxChars)
	if err != nil {
		logger.Debug("stdout capture unreadable", zap.String("path", c.StdoutPath), zap.Error(err))
	}
	stderr, err := ReadCapture(c.StderrPath, c.MaxChars)
	if err != nil {
		logger.Debug("stderr capture unreadable", zap.String("path", c.StderrPath), zap.Error(err))
	}

	exitCode := c.ExitCode
	return &Record{
		Timestamp:       Timestamp(now),
		HostOS:          c.HostOS,
		ExitCode:        &exitCode,
		StdoutTruncated: stdout,
		StderrTruncated: stderr,
		Cmd:             c.Cmd,
		SimPath:         c.SimPath,
	}
}

// newlines folds CRLF and lone CR line endings into LF.
var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ReadCapture returns the first n characters of the file at path, with
// line endings normalised to "\n" before counting. On any failure it
// returns "" together with the cause. Content that is not valid UTF-8 is
// a failure.
func ReadCapture(path string, n int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: invalid UTF-8", path)
	}
	return Truncate(newlines.Replace(string(data)), n), nil
}

// Truncate keeps the first n characters (runes) of s. A negative n
// drops the last -n characters instead; zero keeps nothing.
func Truncate(s string, n int) string {
	if n < 0 {
		n += utf8.RuneCountInString(s)
	}
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		// Byte length bounds rune count.
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
