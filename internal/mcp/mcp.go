// Package mcp exposes the evidence writers and the failure classifier as
// MCP tools.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/deixis/evidence"
	"github.com/deixis/evidence/internal/artifact"
	"github.com/deixis/evidence/internal/config"
	"github.com/deixis/evidence/internal/history"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu     sync.RWMutex
	cfg    *config.Config
	root   string // relative paths resolve here
	store  history.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewServer creates an MCP server with all evidence tools registered.
func NewServer(cfg *config.Config, root string, store history.Store, opts ...ServerOption) *mcp.Server {
	so := serverOptions{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		cfg:    cfg,
		root:   root,
		store:  store,
		logger: so.logger.With(zap.String("mod", "mcp")),
		now:    so.now,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateRootFromClient(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "evidence", Version: evidence.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "evidence_probe",
		Description: `Write a probe-only execution evidence record (no command ran).

host_os is "probe_only" and exit_code is null. Use output_path "-" to get the record back without writing a file.`,
	}, h.probeHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "evidence_write",
		Description: `Write an execution evidence record from already-captured stdout/stderr files.

Unreadable capture files count as empty output. Streams are truncated to truncate_length characters.
The result is stored for later retrieval via evidence_inspect.`,
	}, h.writeHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "evidence_classify",
		Description: `Classify structural, execution and pipeline evidence files into a failure mode.

Writes classification.json next to the evidence files and returns it.`,
	}, h.classifyHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "evidence_inspect",
		Description: `Return a stored evidence record or classification by the run ID printed by the other tools.`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "evidence_history",
		Description: `List the runs stored by this server, newest first.

Each line holds the run ID, kind, creation time and artifact path. Pass an ID to evidence_inspect for the full artifact.`,
	}, h.historyHandler)

	return s
}

// ServerOption configures the evidence MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger *zap.Logger
	now    func() time.Time
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) ServerOption {
	return func(o *serverOptions) {
		o.now = now
	}
}

// updateRootFromClient asks the client for its MCP roots and, when a file
// root is returned, reloads the configuration from there.
func (h *handler) updateRootFromClient(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}

	loaded, err := config.Load(u.Path)
	if err != nil {
		h.logger.Warn("ignoring client root", zap.String("root", u.Path), zap.Error(err))
		return
	}

	h.mu.Lock()
	h.cfg = loaded.Config
	h.root = u.Path
	h.mu.Unlock()
	h.logger.Debug("root updated from client", zap.String("root", u.Path), zap.String("config_root", loaded.Root))
}

func (h *handler) snapshot() (*config.Config, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, h.root
}

// resolve makes path absolute against root, leaving the stdout marker alone.
func resolve(root, path string) string {
	if path == artifact.StdoutMarker || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
