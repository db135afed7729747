package classify

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/deixis/evidence/internal/record"
)

// Execution is the execution evidence as the classifier reads it. Fields
// are decoded one at a time so a record written by another tool, with
// odd types or missing keys, still takes part in classification.
type Execution struct {
	// ExitCode is the raw exit_code value; nil when the key is absent.
	ExitCode json.RawMessage
	Stderr   string
	Cmd      string
}

// ExecutionOf converts a record into classifier input.
func ExecutionOf(r *record.Record) *Execution {
	if r == nil {
		return nil
	}
	code := json.RawMessage("null")
	if r.ExitCode != nil {
		code = json.RawMessage(strconv.Itoa(*r.ExitCode))
	}
	return &Execution{ExitCode: code, Stderr: r.StderrTruncated, Cmd: r.Cmd}
}

// ParseExecution decodes an execution evidence document. A document that
// is null, false, 0 or "" yields nil. Any other non-object document is an
// execution without fields.
func ParseExecution(data []byte) (*Execution, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case bool:
		if !v {
			return nil, nil
		}
	case float64:
		if v == 0 {
			return nil, nil
		}
	case string:
		if v == "" {
			return nil, nil
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// Arrays and scalars carry no fields.
		return &Execution{}, nil
	}
	e := &Execution{ExitCode: fields["exit_code"]}
	e.Stderr = stringField(fields["stderr_truncated"])
	e.Cmd = stringField(fields["cmd"])
	return e, nil
}

// stringField returns raw as a string, or "" for any non-string value.
func stringField(raw json.RawMessage) string {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Exited reports whether the execution ended with a failing exit code.
// Only a literal null (no execution) and the number zero count as clean;
// a missing key or a non-numeric value is a failure.
func (e *Execution) Exited() bool {
	raw := bytes.TrimSpace(e.ExitCode)
	if raw == nil {
		return true
	}
	if string(raw) == "null" {
		return false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n == 0 {
		return false
	}
	return true
}
