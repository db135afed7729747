package mcp

import (
	"bytes"
	"context"
	"fmt"

	"github.com/deixis/evidence/internal/classify"
	"github.com/deixis/evidence/internal/history"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

type classifyParams struct {
	Root string `json:"root,omitempty" jsonschema:"evidence root directory. Defaults to the workspace root."`
}

func (h *handler) classifyHandler(ctx context.Context, req *mcp.CallToolRequest, params classifyParams) (*mcp.CallToolResult, any, error) {
	cfg, root := h.snapshot()
	if params.Root != "" {
		root = resolve(root, params.Root)
	}

	paths := cfg.ClassifyPaths(root)

	var out bytes.Buffer
	c, err := classify.Run(paths, &out, h.logger)
	if err != nil {
		return errorResult(fmt.Sprintf("classify failed: %v", err))
	}

	entry := history.NewClassifyEntry(paths.Output, c)
	if err := h.store.Save(entry); err != nil {
		h.logger.Warn("saving history entry", zap.String("run_id", entry.ID), zap.Error(err))
	}

	return textResult(formatProduced(entry.ID, paths.Output, out.String()))
}
