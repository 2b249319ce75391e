package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/config"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/llm/openai"
	"github.com/deepnoodle-ai/callflow/nodes"
	"github.com/deepnoodle-ai/callflow/redisstore"
	"github.com/deepnoodle-ai/callflow/store"
	"github.com/deepnoodle-ai/callflow/store/postgres"
	"github.com/deepnoodle-ai/callflow/tools"
	"github.com/deepnoodle-ai/callflow/tools/mcptool"
	"github.com/fatih/color"
)

// app holds what every command builds from the configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider llm.Provider
	closers  []func() error
}

func newApp(configPath string, verbose bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger := cfg.Logger(os.Stderr)
	if cfg.LLM.APIKey == "" {
		logger.Warn("no llm api key configured; set CALLFLOW_LLM_API_KEY")
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: openai.New(cfg.OpenAI(), logger),
	}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// agent is the base configuration of conversation nodes.
func (a *app) agent() llm.AgentConfig {
	temperature := a.cfg.LLM.Temperature
	return llm.AgentConfig{ID: "workflow", Model: a.cfg.LLM.Model, Temperature: &temperature}
}

// definitions opens PostgreSQL when a DSN is configured and the definitions
// directory otherwise.
func (a *app) definitions(ctx context.Context) (store.Store, error) {
	if dsn := a.cfg.Store.PostgresDSN; dsn != "" {
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return store.LoadDir(a.cfg.Store.Dir)
}

// checkpointer prefers Redis, then a checkpoint directory.
func (a *app) checkpointer(ctx context.Context) (callflow.Checkpointer, error) {
	if addr := a.cfg.Redis.Addr; addr != "" {
		c, err := redisstore.Dial(ctx, addr, a.cfg.Redis.Password, a.cfg.Redis.DB,
			redisstore.Options{KeyPrefix: a.cfg.Redis.KeyPrefix})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	}
	if dir := a.cfg.Engine.CheckpointDir; dir != "" {
		return callflow.NewFileCheckpointer(dir)
	}
	return callflow.NewNullCheckpointer(), nil
}

func (a *app) nodeLogger() callflow.NodeLogger {
	if dir := a.cfg.Engine.NodeLogDir; dir != "" {
		return callflow.NewFileNodeLogger(dir)
	}
	return callflow.NewNullNodeLogger()
}

// tools starts the MCP servers given as name=command specs and registers
// their tools as name.tool.
func (a *app) tools(ctx context.Context, specs []string) (tools.Registry, error) {
	registry := tools.NewMemoryRegistry()
	for _, spec := range specs {
		name, command, ok := strings.Cut(spec, "=")
		if !ok || name == "" || command == "" {
			return nil, fmt.Errorf("invalid mcp server %q, use name=command", spec)
		}
		fields := strings.Fields(command)
		c, err := mcptool.DialStdio(ctx, fields[0], os.Environ(), fields[1:]...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		discovered, err := mcptool.Discover(ctx, name, c)
		if err != nil {
			return nil, err
		}
		for _, tool := range discovered {
			registry.Register(tool)
		}
		a.logger.Info("mcp server connected", "server", name, "tools", len(discovered))
	}
	return registry, nil
}

func (a *app) engine(ctx context.Context, toolSpecs []string, callbacks callflow.ExecutionCallbacks, formatter callflow.WorkflowFormatter) (*callflow.Engine, error) {
	registry, err := a.tools(ctx, toolSpecs)
	if err != nil {
		return nil, err
	}
	checkpointer, err := a.checkpointer(ctx)
	if err != nil {
		return nil, err
	}
	return callflow.NewEngine(callflow.EngineOptions{
		Executors: nodes.NewRegistry(nodes.Options{
			Provider:               a.provider,
			Agent:                  a.agent(),
			Tools:                  registry,
			ExternalRequestTimeout: a.cfg.Engine.ExternalRequestTimeout,
			Logger:                 a.logger,
		}),
		Logger:       a.logger,
		Callbacks:    callbacks,
		Checkpointer: checkpointer,
		NodeLogger:   a.nodeLogger(),
		Formatter:    formatter,
	})
}

// stringSlice collects a repeated flag.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// parseInputs turns key=value pairs into variables. Values are parsed as
// JSON when possible.
func parseInputs(pairs []string) (map[string]any, error) {
	inputs := map[string]any{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, use key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		inputs[key] = parsed
	}
	return inputs, nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		color.Red("Error formatting output: %v", err)
		return
	}
	fmt.Println(string(data))
}
