// Command evidence records execution evidence for test harnesses and CI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/deixis/evidence"
	"github.com/deixis/evidence/internal/artifact"
	"github.com/deixis/evidence/internal/classify"
	"github.com/deixis/evidence/internal/config"
	"github.com/deixis/evidence/internal/history"
	evmcp "github.com/deixis/evidence/internal/mcp"
	"github.com/deixis/evidence/internal/record"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// errUsage marks argument errors that should print usage and exit 2.
var errUsage = errors.New("usage")

// errFailed marks a completed run whose verdict is a failure.
var errFailed = errors.New("classification failed")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "probe":
		err = probeMain(args)
	case "write":
		err = writeMain(args)
	case "classify":
		err = classifyMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(evidence.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "evidence: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "evidence: %v\n", err)
		usage()
		os.Exit(2)
	case errors.Is(err, errFailed):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "evidence: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: evidence <command> [flags] [arguments]

Commands:
  probe       Write a probe-only record: probe [output_path] [sim_path]
  write       Write a record from captured output:
              write output_path tmp_stdout tmp_stderr exit_code [cmd] [sim_path] [host_os] [truncate_length]
  classify    Classify evidence files into a failure mode
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

An output_path of "-" writes the indented record to stdout, followed by
the usual compact copy.
Use "evidence <command> -h" for command-specific flags.`)
}

// --- probe ---

func probeMain(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	verbose := fs.Bool("v", false, "verbose logging on stderr")
	_ = fs.Parse(args)

	logger := newLogger(os.Stderr, *verbose)
	defer func() { _ = logger.Sync() }()

	return runProbe(fs.Args(), os.Stdout, time.Now(), logger)
}

func runProbe(args []string, stdout io.Writer, now time.Time, logger *zap.Logger) error {
	out := arg(args, 0, artifact.StdoutMarker)
	simPath := arg(args, 1, record.DefaultSimPath)
	if len(args) > 2 {
		logger.Warn("ignoring extra arguments", zap.Strings("args", args[2:]))
	}

	rec := record.Probe(simPath, now)
	if err := artifact.Emit(rec, out, stdout, artifact.Options{}); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	logger.Debug("probe record written", zap.String("path", out))
	return nil
}

// --- write ---

func writeMain(args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	verbose := fs.Bool("v", false, "verbose logging on stderr (shows unreadable captures)")
	_ = fs.Parse(args)

	logger := newLogger(os.Stderr, *verbose)
	defer func() { _ = logger.Sync() }()

	return runWrite(fs.Args(), os.Stdout, time.Now(), logger)
}

func runWrite(args []string, stdout io.Writer, now time.Time, logger *zap.Logger) error {
	if len(args) < 4 {
		return fmt.Errorf("%w: write needs output_path tmp_stdout tmp_stderr exit_code", errUsage)
	}
	if len(args) > 8 {
		logger.Warn("ignoring extra arguments", zap.Strings("args", args[8:]))
	}

	exitCode, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("parsing exit_code %q: %w", args[3], err)
	}
	maxChars := record.DefaultMaxChars
	if len(args) > 7 {
		maxChars, err = strconv.Atoi(args[7])
		if err != nil {
			return fmt.Errorf("parsing truncate_length %q: %w", args[7], err)
		}
	}

	rec := record.Collect(record.Capture{
		StdoutPath: args[1],
		StderrPath: args[2],
		ExitCode:   exitCode,
		Cmd:        arg(args, 4, ""),
		SimPath:    arg(args, 5, ""),
		HostOS:     arg(args, 6, record.DefaultHostOS),
		MaxChars:   maxChars,
	}, now, logger)

	if err := artifact.Emit(rec, args[0], stdout, artifact.Options{}); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	logger.Debug("evidence record written", zap.String("path", args[0]), zap.Int("exit_code", exitCode))
	return nil
}

// arg returns args[i], or def when the argument was not given.
func arg(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

// --- classify ---

func classifyMain(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	rootFlag := fs.String("root", "", "evidence root (default $PCK_ROOT, then the current directory)")
	strict := fs.Bool("strict", false, "exit 1 when the failure mode is not OK")
	verbose := fs.Bool("v", false, "verbose logging on stderr")
	_ = fs.Parse(args)

	logger := newLogger(os.Stderr, *verbose)
	defer func() { _ = logger.Sync() }()

	root := *rootFlag
	if root == "" {
		root = os.Getenv("PCK_ROOT")
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determining root: %w", err)
		}
		root = wd
	}

	return runClassify(root, *strict, os.Stdout, logger)
}

// runClassify classifies the evidence under root. A .evidence file found in
// root or an ancestor only overrides file names; relative paths it names stay
// relative to root.
func runClassify(root string, strict bool, stdout io.Writer, logger *zap.Logger) error {
	loaded, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if loaded.Root != root {
		logger.Debug("using ancestor config", zap.String("config_root", loaded.Root), zap.String("root", root))
	}

	c, err := classify.Run(loaded.Config.ClassifyPaths(root), stdout, logger)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	if strict && c.Failed() {
		return fmt.Errorf("%w: %s", errFailed, c.FailureMode)
	}
	return nil
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	verbose := fs.Bool("v", false, "verbose logging on stderr")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(evmcp.Instructions)
		return nil
	}

	logger := newLogger(os.Stderr, *verbose)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr, logger)
}

func serve(ctx context.Context, httpAddr string, logger *zap.Logger) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	disk := history.NewDiskStore()
	defer func() {
		if err := disk.Close(); err != nil {
			logger.Warn("removing run history", zap.Error(err))
		}
	}()
	store := history.NewLRUStore(16, disk)
	server := evmcp.NewServer(loaded.Config, workspace, store, evmcp.WithLogger(logger))

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, logger)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger *zap.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
