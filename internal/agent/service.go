// Package agent hosts the tool-calling reasoning agent that executes chat
// turns: it binds a hosted chat model to a fixed tool chain and runs the
// plan/act loop up to a bounded number of steps.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/AlexandrLebegue/thesis-llm/internal/config"
)

// Service runs agent turns. One react agent is built per configured step
// budget and reused across turns; the tool set never changes.
type Service struct {
	cfg       *config.Config
	chatModel model.ToolCallingChatModel
	tools     []tool.BaseTool
	agents    map[int]*react.Agent
	mu        sync.Mutex
}

// NewService builds the chat model for the configured provider and
// pre-builds the react agent at the default step budget.
func NewService(cfg *config.Config, tools []tool.BaseTool) (*Service, error) {
	agentCfg := cfg.Agent
	provCfg, ok := cfg.Providers[agentCfg.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", agentCfg.Provider)
	}
	modelName := agentCfg.Model
	if modelName == "" {
		modelName = provCfg.Model
	}
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s has no API key", agentCfg.Provider)
	}

	chatModel, err := newChatModel(agentCfg.Provider, modelName, provCfg, agentCfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		chatModel: chatModel,
		tools:     tools,
		agents:    make(map[int]*react.Agent),
	}
	if _, err := s.agentForSteps(cfg.Agent.MaxSteps); err != nil {
		return nil, err
	}
	return s, nil
}

func newChatModel(provider, modelName string, provCfg config.ProviderConfig, agentCfg config.AgentConfig) (model.ToolCallingChatModel, error) {
	ctx := context.Background()
	switch provider {
	case "openai":
		temp := float32(agentCfg.Temperature)
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     provCfg.BaseURL,
			Model:       modelName,
			APIKey:      provCfg.APIKey,
			Temperature: &temp,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		maxTokens := agentCfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 3000
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// agentForSteps returns a react agent whose loop stops after the given step
// budget, building and caching it on first use. Step budgets are already
// clamped to a small fixed range so the cache stays tiny.
func (s *Service) agentForSteps(steps int) (*react.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[steps]; ok {
		return a, nil
	}
	a, err := react.NewAgent(context.Background(), &react.AgentConfig{
		ToolCallingModel: s.chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: s.tools,
		},
		MaxStep: steps,
	})
	if err != nil {
		return nil, fmt.Errorf("init react agent: %w", err)
	}
	s.agents[steps] = a
	return a, nil
}

// Run executes one agent turn: the instruction goes in as the user message
// and the agent's final text comes back. maxSteps is clamped to the
// supported range before use.
func (s *Service) Run(ctx context.Context, instruction string, maxSteps int) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", errors.New("instruction is required")
	}
	agent, err := s.agentForSteps(s.cfg.ClampSteps(maxSteps))
	if err != nil {
		return "", err
	}

	out, err := agent.Generate(ctx, []*schema.Message{
		schema.UserMessage(instruction),
	})
	if err != nil {
		return "", fmt.Errorf("agent run failed: %w", err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", errors.New("agent produced no answer")
	}
	return out.Content, nil
}
