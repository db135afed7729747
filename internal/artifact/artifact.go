// Package artifact writes JSON artifacts the way harness consumers expect
// them: an indented document at the target path and a compact copy on a
// console stream.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StdoutMarker is the output path that means "the console stream itself".
const StdoutMarker = "-"

// Options controls where Emit writes.
type Options struct {
	// MkdirAll creates the parent directory of the output path first.
	MkdirAll bool
}

// Emit writes v as indented JSON to path and then as compact JSON to
// console. When path is StdoutMarker the indented document goes to console
// too, ahead of the compact copy. Both renderings end with a newline.
func Emit(v any, path string, console io.Writer, opts Options) error {
	pretty, err := Marshal(v, true)
	if err != nil {
		return err
	}
	compact, err := Marshal(v, false)
	if err != nil {
		return err
	}

	if path == StdoutMarker {
		if _, err := console.Write(pretty); err != nil {
			return fmt.Errorf("writing to stdout: %w", err)
		}
	} else {
		if opts.MkdirAll {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", path, err)
			}
		}
		if err := os.WriteFile(path, pretty, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	if _, err := console.Write(compact); err != nil {
		return fmt.Errorf("writing to stdout: %w", err)
	}
	return nil
}

// Marshal renders v as JSON without HTML escaping, indented by two spaces
// when indent is set, terminated by a newline.
func Marshal(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads the JSON document at path into v.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
