// Rocky is a conversational geology assistant.
//
// It exposes a streaming chat API backed by an OpenAI-compatible model
// provider and a small set of tools (web search, page fetch, image
// generation, quiz prompts, and a persistent fact memory). Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	rocky serve              Start the API server
//	rocky init [dir]         Initialize a working directory with defaults
//	rocky ask <question>     Ask a single question (for testing)
//	rocky version            Print version and build information
//	rocky -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rockylabs/rocky/internal/agent"
	"github.com/rockylabs/rocky/internal/api"
	"github.com/rockylabs/rocky/internal/buildinfo"
	"github.com/rockylabs/rocky/internal/config"
	"github.com/rockylabs/rocky/internal/events"
	"github.com/rockylabs/rocky/internal/facts"
	"github.com/rockylabs/rocky/internal/fetch"
	"github.com/rockylabs/rocky/internal/history"
	"github.com/rockylabs/rocky/internal/llm"
	"github.com/rockylabs/rocky/internal/prompts"
	"github.com/rockylabs/rocky/internal/search"
	"github.com/rockylabs/rocky/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the rocky command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the server and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals (flag.CommandLine), which makes it impossible to call run()
	// concurrently from tests. Our argument surface is small enough that
	// manual parsing is clearer than bringing in a CLI framework.
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				// Collect remaining args as subcommand arguments.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	// Default to human-readable text output.
	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: rocky ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// rocky is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Rocky - Conversational Geology Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: rocky [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/rocky/config.yaml, /etc/rocky/config.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations and, when nothing
// is found, the built-in defaults apply so rocky can run from environment
// variables alone. Returns the config, the path loaded (empty for
// defaults), and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// newLogger builds a structured text logger at the given level. The
// ReplaceAttr hook renders the custom TRACE level correctly.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// buildDeps constructs the shared agent dependencies (model client,
// tool registry, history store, fact store) from configuration. The
// fact store is nil when no data directory can be created; callers
// decide whether that is fatal. Close the returned stores when done.
func buildDeps(cfg *config.Config, logger *slog.Logger) (llm.Client, *tools.Registry, history.Store, *facts.Store, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, nil, nil, nil, fmt.Errorf("no OpenAI API key configured (set openai.api_key or OPENAI_API_KEY)")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	llmClient := llm.NewOpenAIClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, logger)

	// Conversation history. The memory backend survives the process
	// lifetime only; sqlite persists threads across restarts.
	var hist history.Store
	switch cfg.History.Backend {
	case "", "memory":
		hist = history.NewMemoryStore()
	case "sqlite":
		dbPath := filepath.Join(cfg.DataDir, "history.db")
		s, err := history.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("open history database %s: %w", dbPath, err)
		}
		hist = s
		logger.Info("history database opened", "path", dbPath)
	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown history backend %q (valid: memory, sqlite)", cfg.History.Backend)
	}

	factsPath := filepath.Join(cfg.DataDir, "facts.db")
	factStore, err := facts.NewStore(factsPath)
	if err != nil {
		hist.Close()
		return nil, nil, nil, nil, fmt.Errorf("open fact store %s: %w", factsPath, err)
	}

	// Web search is optional. Tavily is preferred when both providers
	// are configured; either alone works.
	var mgr *search.Manager
	if cfg.Tavily.Configured() || cfg.SearXNG.Configured() {
		primary := "tavily"
		if !cfg.Tavily.Configured() {
			primary = "searxng"
		}
		mgr = search.NewManager(primary)
		if cfg.Tavily.Configured() {
			mgr.Register(search.NewTavily(cfg.Tavily.APIKey))
		}
		if cfg.SearXNG.Configured() {
			mgr.Register(search.NewSearXNG(cfg.SearXNG.BaseURL))
		}
		logger.Info("web search configured", "primary", primary, "providers", mgr.Providers())
	} else {
		logger.Warn("no search provider configured - web_search tool disabled")
	}

	registry := tools.NewRegistry(tools.Deps{
		Search:  mgr,
		Fetcher: fetch.New(cfg.Agent.FetchMaxChars),
		Images:  llm.NewImageClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.ImageModel, logger),
		Facts:   factStore,
	})
	logger.Info("tools registered", "tools", registry.Names())

	return llmClient, registry, hist, factStore, nil
}

// agentConfig maps the YAML agent section onto the loop configuration.
func agentConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		Model:         cfg.OpenAI.Model,
		SystemPrompt:  prompts.SystemPrompt(),
		MaxInputChars: cfg.Agent.MaxInputChars,
		MaxRounds:     cfg.Agent.MaxRounds,
		ModelTimeout:  cfg.Agent.ModelTimeout(),
		ToolTimeout:   cfg.Agent.ToolTimeout(),
	}
}

// runAsk handles the "rocky ask <question>" subcommand. It boots a
// minimal agent (in-memory history, no event bus) and processes a single
// question, streaming the response to stdout. Useful for quick smoke
// tests and debugging without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn)

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// One-shot questions never need persistence.
	cfg.History.Backend = "memory"

	llmClient, registry, hist, factStore, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer hist.Close()
	defer factStore.Close()

	loop := agent.NewLoop(llmClient, registry, hist, nil, logger, agentConfig(cfg))

	for ev := range loop.Run(ctx, "cli", question) {
		switch ev.Kind {
		case agent.KindToken:
			fmt.Fprint(stdout, ev.Token)
		case agent.KindToolStart:
			fmt.Fprintf(stderr, "[tool: %s]\n", ev.ToolName)
		case agent.KindError:
			return fmt.Errorf("ask: %w", ev.Err)
		case agent.KindDone:
			fmt.Fprintln(stdout)
		}
	}
	return nil
}

// runServe handles the "rocky serve" subcommand. It is the primary
// operating mode: loads config, opens databases, initializes the agent
// loop with all tools, starts the API server, and blocks until a
// shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The HTTP server drains in-flight requests (10s grace)
//  3. Database connections are closed via defers
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Rocky", "version", buildinfo.Version)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	} else {
		logger.Info("no config file found, using defaults and environment")
	}

	llmClient, registry, hist, factStore, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer hist.Close()
	defer factStore.Close()

	// One-shot reachability check. A failure is logged but not fatal:
	// the provider may come up after us, and every chat request carries
	// its own timeout anyway.
	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := llmClient.Ping(pingCtx); err != nil {
		logger.Warn("model provider unreachable at startup", "error", err)
	} else {
		logger.Info("model provider reachable", "model", cfg.OpenAI.Model)
	}
	pingCancel()

	bus := events.New()
	loop := agent.NewLoop(llmClient, registry, hist, bus, logger, agentConfig(cfg))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Debug-log subscriber. The websocket feed gets the same events;
	// this one makes them visible in the server log at debug level.
	sub := bus.Subscribe(256)
	defer bus.Unsubscribe(sub)
	go func() {
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				attrs := []any{"source", ev.Source, "kind", ev.Kind}
				for k, v := range ev.Data {
					attrs = append(attrs, k, v)
				}
				logger.Debug("event", attrs...)
			case <-ctx.Done():
				return
			}
		}
	}()

	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, loop, hist, factStore, bus, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("shutdown complete", "uptime", buildinfo.Uptime().Round(time.Second))
	return nil
}
