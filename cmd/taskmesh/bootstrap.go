package main

import (
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh"
	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/model"
	anthropicmodel "github.com/hupe1980/taskmesh/model/anthropic"
	openaimodel "github.com/hupe1980/taskmesh/model/openai"
	"github.com/hupe1980/taskmesh/tool"
)

// loadConfig resolves the configuration from the --config flag, the
// TASKMESH_CONFIG environment variable or ./taskmesh.yaml, in that order.
// Without any of these the built-in defaults apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("TASKMESH_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("taskmesh.yaml"); err == nil {
			path = "taskmesh.yaml"
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildMesh wires the configured memory store, models, tools and agents into
// a ready-to-use mesh.
func buildMesh(cfg *config.Config) (*taskmesh.TaskMesh, logging.Logger, error) {
	logger := logging.NewConfiguredLogger(
		logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, os.Stderr, false)

	store, err := buildStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	mesh := taskmesh.New(func(o *taskmesh.Options) {
		o.MemoryStore = store
		o.Logger = logger
	})

	for _, ac := range cfg.Agents {
		if !ac.IsEnabled() {
			continue
		}

		a, err := buildAgent(ac, store, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		mesh.Register(a)
	}

	if len(mesh.Supervisor().Agents()) == 0 {
		return nil, nil, fmt.Errorf("no enabled agents in configuration")
	}

	return mesh, logger, nil
}

func buildStore(cfg *config.Config) (memory.Store, error) {
	switch cfg.Memory.Driver {
	case "", "memory":
		return memory.NewInMemoryStore(), nil
	case "sqlite":
		return memory.NewSQLiteStore(cfg.Memory.DSN)
	case "redis":
		return memory.NewRedisStore(cfg.Memory.Addr, func(o *memory.RedisStoreOptions) {
			o.Password = cfg.Memory.Password
			o.DB = cfg.Memory.DB
		})
	default:
		return nil, fmt.Errorf("unknown memory driver %q", cfg.Memory.Driver)
	}
}

func buildAgent(ac config.AgentConfig, store memory.Store, logger logging.Logger) (*agent.ModelAgent, error) {
	m, err := buildModel(ac)
	if err != nil {
		return nil, err
	}

	strategy, err := agent.ParseStrategy(ac.Strategy)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(ac.Tools)
	if err != nil {
		return nil, err
	}

	return agent.NewModelAgent(ac.ID, m, func(o *agent.ModelAgentOptions) {
		o.Description = ac.Name
		o.Capabilities = ac.Capabilities
		o.Registry = registry
		o.Memory = store
		o.Strategy = strategy
		o.Estimator = buildEstimator(ac.Model)
		o.Logger = logger
		if ac.SystemPrompt != "" {
			o.SystemPrompt = ac.SystemPrompt
		}
		if ac.MaxIterations > 0 {
			o.MaxIterations = ac.MaxIterations
		}
	}), nil
}

func buildModel(ac config.AgentConfig) (model.Model, error) {
	switch ac.Provider {
	case "openai":
		key := ac.APIKey()
		if key == "" {
			return nil, fmt.Errorf("provider openai: environment variable %s is not set", ac.APIKeyEnv)
		}
		client := openaisdk.NewClient(option.WithAPIKey(key))
		return openaimodel.NewModelFromClient(&client, func(o *openaimodel.Options) {
			if ac.Model != "" {
				o.Model = ac.Model
			}
		}), nil

	case "anthropic":
		key := ac.APIKey()
		if key == "" {
			return nil, fmt.Errorf("provider anthropic: environment variable %s is not set", ac.APIKeyEnv)
		}
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.APIKey = key
			if ac.Model != "" {
				o.Model = anthropicsdk.Model(ac.Model)
			}
		}), nil

	case "mock":
		// Keyless canned-response model, handy for trying the CLI out.
		return model.NewMockModel(ac.Model, "mock"), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", ac.Provider)
	}
}

// buildRegistry maps configured tool names onto the built-ins. An empty list
// enables all of them.
func buildRegistry(names []string) (*tool.Registry, error) {
	registry := tool.NewRegistry()

	if len(names) == 0 {
		if err := tool.RegisterBuiltins(registry); err != nil {
			return nil, err
		}
		return registry, nil
	}

	for _, name := range names {
		var err error
		switch name {
		case "calculator":
			err = registry.Register(tool.NewCalculatorTool())
		case "current_time":
			err = registry.Register(tool.NewCurrentTimeTool())
		case "http_request":
			err = registry.Register(tool.NewHTTPRequestTool(), "http.request")
		default:
			err = fmt.Errorf("unknown tool %q", name)
		}
		if err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildEstimator prefers exact tiktoken counts for models the encoder knows,
// falling back to the length heuristic.
func buildEstimator(modelName string) model.Estimator {
	if est, err := model.NewTiktokenEstimatorForModel(modelName); err == nil {
		return est
	}
	return model.HeuristicEstimator{}
}
