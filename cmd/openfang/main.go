// OpenFang is a personal AI assistant core.
//
// It runs a conversation loop against an Anthropic- or OpenAI-style
// model backend with tool execution, persists conversations in SQLite,
// fires scheduled prompts and reminders, and serves a small HTTP API
// with a streaming chat endpoint. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	openfang serve           Start the assistant and API server
//	openfang ask <question>  Ask a single question (for testing)
//	openfang version         Print version and build information
//	openfang -o json version Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/zhukov123/openfang/internal/agent"
	"github.com/zhukov123/openfang/internal/api"
	"github.com/zhukov123/openfang/internal/buildinfo"
	"github.com/zhukov123/openfang/internal/config"
	"github.com/zhukov123/openfang/internal/conversation"
	"github.com/zhukov123/openfang/internal/delivery"
	"github.com/zhukov123/openfang/internal/fetch"
	"github.com/zhukov123/openfang/internal/llm"
	"github.com/zhukov123/openfang/internal/memory"
	"github.com/zhukov123/openfang/internal/schedule"
	"github.com/zhukov123/openfang/internal/search"
	"github.com/zhukov123/openfang/internal/tools"
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

// run is the real entry point for the openfang command. All OS-level
// dependencies are injected as parameters so tests can drive the full
// lifecycle. Arguments are parsed by hand: the flag package relies on
// package-level globals, and our argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
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
				cmdArgs = append(cmdArgs, args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: openfang ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command %q (run openfang -h for usage)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "OpenFang - Personal AI Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: openfang [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the assistant and API server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// runAsk handles the "openfang ask <question>" subcommand. It boots a
// minimal engine (no persistence, no scheduler, no server) and runs a
// single ephemeral question with tools enabled, printing the answer.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	logger.Debug("config loaded", "path", cfgPath)

	question := strings.Join(args, " ")

	registry := tools.NewRegistry(logger)
	registerTools(cfg, logger, registry, nil, nil)

	systemPrompt, err := cfg.SystemPrompt()
	if err != nil {
		return err
	}

	// No conversation store: RunOnce never persists.
	engine := agent.NewEngine(agent.Config{
		Logger:             logger,
		Client:             newLLMClient(cfg, logger),
		Registry:           registry,
		Model:              modelName(cfg),
		SystemPrompt:       systemPrompt,
		MaxContextMessages: cfg.Agent.MaxContextMessages,
		MaxTokens:          cfg.Agent.MaxTokens,
	})

	answer, err := engine.RunOnce(ctx, question, agent.RunOnceOptions{ToolsEnabled: true})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, answer)
	return nil
}

// runServe handles the "openfang serve" subcommand: it wires every
// component together, starts the scheduler and the API server, and
// blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting", "build", buildinfo.String(), "config", cfgPath)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// --- Persistence ---
	convStore, err := conversation.NewStore(filepath.Join(cfg.DataDir, "conversations.db"))
	if err != nil {
		return fmt.Errorf("conversation store: %w", err)
	}
	defer convStore.Close()

	memStore, err := memory.NewStore(filepath.Join(cfg.DataDir, "memories.db"))
	if err != nil {
		return fmt.Errorf("memory store: %w", err)
	}
	defer memStore.Close()

	schedStore, err := schedule.NewStore(filepath.Join(cfg.DataDir, "schedules.db"))
	if err != nil {
		return fmt.Errorf("schedule store: %w", err)
	}
	defer schedStore.Close()

	// --- Model backend and tools ---
	llmClient := newLLMClient(cfg, logger)

	registry := tools.NewRegistry(logger)
	registerTools(cfg, logger, registry, memStore, schedStore)
	logger.Info("tools registered", "tools", registry.Names())

	systemPrompt, err := cfg.SystemPrompt()
	if err != nil {
		return err
	}

	engine := agent.NewEngine(agent.Config{
		Logger:             logger,
		Client:             llmClient,
		Registry:           registry,
		Store:              convStore,
		Model:              modelName(cfg),
		SystemPrompt:       systemPrompt,
		MaxContextMessages: cfg.Agent.MaxContextMessages,
		MaxTokens:          cfg.Agent.MaxTokens,
	})

	// Surface a bad key or unreachable endpoint at startup rather than
	// on the first turn. Not fatal: the provider may come up later.
	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	if err := engine.Ping(pingCtx); err != nil {
		logger.Warn("provider unreachable", "provider", cfg.Provider, "error", err)
	} else {
		logger.Info("provider reachable", "provider", cfg.Provider, "model", modelName(cfg))
	}
	cancelPing()

	// --- Delivery ---
	var transport delivery.Deliverer
	if cfg.Delivery.WebhookURL != "" {
		transport = delivery.NewWebhook(cfg.Delivery.WebhookURL)
		logger.Info("delivery via webhook", "url", cfg.Delivery.WebhookURL)
	} else {
		transport = delivery.NewLog(logger)
		logger.Info("no webhook configured, deliveries are logged")
	}
	sender := delivery.NewSender(transport, cfg.Delivery.MaxMessageLen)

	// --- Signal handling and graceful shutdown ---
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Scheduler ---
	if cfg.Scheduler.Enabled {
		sched := schedule.New(schedule.Config{
			Logger:    logger,
			Store:     schedStore,
			Executor:  schedule.NewExecutor(engine, logger),
			Deliverer: sender,
			Interval:  cfg.Scheduler.PollInterval(),
		})
		go func() {
			if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("scheduler failed", "error", err)
			}
		}()
	} else {
		logger.Info("scheduler disabled")
	}

	// --- API server ---
	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, engine, convStore, schedStore, memStore, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("OpenFang stopped")
	return nil
}

func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLLMClient selects the provider client from config. Validate has
// already rejected unknown providers.
func newLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	if cfg.Provider == "openai" {
		return llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger)
	}
	return llm.NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, logger)
}

func modelName(cfg *config.Config) string {
	if cfg.Provider == "openai" {
		return cfg.OpenAI.Model
	}
	return cfg.Anthropic.Model
}

// registerTools registers every tool the config enables. The memory and
// schedule stores may be nil (the ask subcommand runs without them), in
// which case their tools are skipped.
func registerTools(cfg *config.Config, logger *slog.Logger, registry *tools.Registry,
	memStore *memory.Store, schedStore *schedule.Store) {

	if cfg.Tools.Calculator {
		registry.Register(tools.CalculatorTool())
	}

	if cfg.Tools.WebRead {
		registry.Register(fetch.Tool(fetch.New()))
	}

	if cfg.Tools.WebSearch && cfg.Tools.BraveAPIKey != "" {
		mgr := search.NewManager("brave")
		mgr.Register(search.NewBrave(cfg.Tools.BraveAPIKey, ""))
		registry.Register(search.Tool(mgr))
	}

	if cfg.Tools.Memory && memStore != nil {
		for _, t := range memory.Tools(memStore) {
			registry.Register(t)
		}
	}

	if cfg.Tools.Schedules && schedStore != nil {
		for _, t := range schedule.Tools(schedStore, cfg.Agent.Timezone) {
			registry.Register(t)
		}
	}

	if cfg.ShellExec.Enabled {
		exec := tools.NewShellExec(tools.ShellExecConfig{
			WorkingDir:     cfg.ShellExec.WorkingDir,
			AllowedCmds:    cfg.ShellExec.AllowedPrefixes,
			DeniedCmds:     cfg.ShellExec.DeniedPatterns,
			DefaultTimeout: time.Duration(cfg.ShellExec.DefaultTimeoutSec) * time.Second,
		})
		registry.Register(tools.ShellExecTool(exec))
	}
}
