// Package record builds execution evidence records: a fixed-shape
// description of a command execution that happened elsewhere, or of a
// probe where nothing ran.
package record

import "time"

// Defaults applied when the caller omits optional values.
const (
	DefaultSimPath  = "/usr/bin:/bin:/usr/sbin:/sbin"
	DefaultHostOS   = "unknown"
	DefaultMaxChars = 4000

	// ProbeHost marks a record produced without any execution.
	ProbeHost = "probe_only"
)

// TimestampLayout is ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record is the execution evidence record. Field order is the JSON key
// order; every key is always emitted.
type Record struct {
	Timestamp       string `json:"timestamp"`
	HostOS          string `json:"host_os"`
	ExitCode        *int   `json:"exit_code"` // nil only in probe mode
	StdoutTruncated string `json:"stdout_truncated"`
	StderrTruncated string `json:"stderr_truncated"`
	Cmd             string `json:"cmd"`
	SimPath         string `json:"sim_path"`
}

// Timestamp formats t in UTC with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Probe returns a placeholder record for probe-only mode.
func Probe(simPath string, now time.Time) *Record {
	return &Record{
		Timestamp: Timestamp(now),
		HostOS:    ProbeHost,
		SimPath:   simPath,
	}
}

// IsProbe reports whether r describes a probe rather than a real execution.
func (r *Record) IsProbe() bool {
	return r.ExitCode == nil
}
