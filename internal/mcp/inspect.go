package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/evidence/internal/artifact"
	"github.com/deixis/evidence/internal/history"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID printed by evidence_probe, evidence_write or evidence_classify"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	entry, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	body, err := artifact.Marshal(entry.Payload(), true)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to render run %s: %v", params.RunID, err))
	}
	return textResult(formatInspect(entry, string(body)))
}

func formatInspect(entry *history.Entry, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s (%s)\n", entry.ID, entry.Kind)
	fmt.Fprintf(&b, "Path: %s\n", entry.Path)
	fmt.Fprintf(&b, "Created: %s\n", entry.CreatedAt.Format(time.RFC3339))
	fmt.Fprintln(&b)
	fmt.Fprint(&b, body)
	return b.String()
}

// defaultHistoryLimit caps evidence_history output when no limit is given.
const defaultHistoryLimit = 20

type historyParams struct {
	Kind  string `json:"kind,omitempty" jsonschema:"only list runs of this kind: probe, write or classify"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of runs to list. Defaults to 20."`
}

func (h *handler) historyHandler(ctx context.Context, req *mcp.CallToolRequest, params historyParams) (*mcp.CallToolResult, any, error) {
	lister, ok := h.store.(history.Lister)
	if !ok {
		return errorResult("This server's run history cannot be listed")
	}
	entries, err := lister.List()
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list runs: %v", err))
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var kept []*history.Entry
	for _, e := range entries {
		if params.Kind != "" && string(e.Kind) != params.Kind {
			continue
		}
		kept = append(kept, e)
		if len(kept) == limit {
			break
		}
	}
	return textResult(formatHistory(kept))
}

func formatHistory(entries []*history.Entry) string {
	if len(entries) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %-8s  %s  %s\n", e.ID, e.Kind, e.CreatedAt.Format(time.RFC3339), e.Path)
	}
	return b.String()
}
