package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/deixis/evidence/internal/artifact"
	"github.com/deixis/evidence/internal/history"
	"github.com/deixis/evidence/internal/record"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

type probeParams struct {
	OutputPath string `json:"output_path" jsonschema:"file to write the record to, or - to only return it"`
	SimPath    string `json:"sim_path,omitempty" jsonschema:"search path to record. Defaults to the configured sim_path."`
}

func (h *handler) probeHandler(ctx context.Context, req *mcp.CallToolRequest, params probeParams) (*mcp.CallToolResult, any, error) {
	cfg, root := h.snapshot()

	simPath := params.SimPath
	if simPath == "" {
		simPath = cfg.SimPath()
	}
	rec := record.Probe(simPath, h.now())

	return h.emitRecord(history.Probe, resolve(root, params.OutputPath), rec)
}

type writeParams struct {
	OutputPath     string `json:"output_path" jsonschema:"file to write the record to, or - to only return it"`
	StdoutPath     string `json:"stdout_path" jsonschema:"file holding the captured standard output"`
	StderrPath     string `json:"stderr_path" jsonschema:"file holding the captured standard error"`
	ExitCode       int    `json:"exit_code" jsonschema:"exit status of the command"`
	Cmd            string `json:"cmd,omitempty" jsonschema:"command line that was executed"`
	SimPath        string `json:"sim_path,omitempty" jsonschema:"search path used for the execution. Defaults to the configured sim_path."`
	HostOS         string `json:"host_os,omitempty" jsonschema:"host identifier. Defaults to the configured host_os."`
	TruncateLength *int   `json:"truncate_length,omitempty" jsonschema:"characters kept per stream. Defaults to the configured truncate."`
}

func (h *handler) writeHandler(ctx context.Context, req *mcp.CallToolRequest, params writeParams) (*mcp.CallToolResult, any, error) {
	cfg, root := h.snapshot()

	c := record.Capture{
		StdoutPath: resolve(root, params.StdoutPath),
		StderrPath: resolve(root, params.StderrPath),
		ExitCode:   params.ExitCode,
		Cmd:        params.Cmd,
		SimPath:    params.SimPath,
		HostOS:     params.HostOS,
		MaxChars:   cfg.Truncate(),
	}
	if c.SimPath == "" {
		c.SimPath = cfg.SimPath()
	}
	if c.HostOS == "" {
		c.HostOS = cfg.HostOS()
	}
	if params.TruncateLength != nil {
		c.MaxChars = *params.TruncateLength
	}

	rec := record.Collect(c, h.now(), h.logger)
	return h.emitRecord(history.Write, resolve(root, params.OutputPath), rec)
}

func (h *handler) emitRecord(kind history.Kind, path string, rec *record.Record) (*mcp.CallToolResult, any, error) {
	var out bytes.Buffer
	if err := artifact.Emit(rec, path, &out, artifact.Options{}); err != nil {
		return errorResult(fmt.Sprintf("%s failed: %v", kind, err))
	}

	entry := history.NewRecordEntry(kind, path, rec)
	if err := h.store.Save(entry); err != nil {
		h.logger.Warn("saving history entry", zap.String("run_id", entry.ID), zap.Error(err))
	}

	return textResult(formatProduced(entry.ID, path, out.String()))
}

func formatProduced(runID, path, body string) string {
	var b strings.Builder
	fmt.Fprint(&b, body)
	if path != artifact.StdoutMarker {
		fmt.Fprintf(&b, "Written: %s\n", path)
	}
	fmt.Fprintf(&b, "Run: %s\n", runID)
	return b.String()
}
