// Package agents implements the Agent Registry (spec.md §2 C13): a
// read-mostly map of built-in and custom agents, loaded once at
// startup and reloadable. Built-ins run in-process, driven by the
// Operation Engine's own LLM calls; custom agents are always
// Subprocess and are loaded from `~/.mira/agents.json` and
// `<project>/.mira/agents.json`.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/getmira/mira-core/pkg/models"
)

// AgentType distinguishes built-in agents, which run in-process as
// ordinary Operation Engine turns, from custom agents, which shell
// out to an external command.
type AgentType string

const (
	AgentTypeInProcess AgentType = "in_process"
	AgentTypeSubprocess AgentType = "subprocess"
)

// AgentScope records which config file an agent was loaded from.
// Shadowing between scopes happens positionally during Load, in the
// order {builtin, user, project} (spec.md §6).
type AgentScope string

const (
	ScopeBuiltin AgentScope = "builtin"
	ScopeUser    AgentScope = "user"
	ScopeProject AgentScope = "project"
)

// AgentDefinition describes one agent available to the Operation
// Engine: either a fixed built-in or a custom agent loaded from an
// agents.json file.
type AgentDefinition struct {
	ID          string
	Name        string
	Description string
	Type        AgentType
	Scope       AgentScope
	ToolAccess  models.ToolAccessMode

	// SystemPrompt is only set on built-in, in-process agents; custom
	// agents supply their own behavior via Command.
	SystemPrompt string

	// Command, Args, Env, TimeoutMS and MaxIterations only apply to
	// Subprocess agents.
	Command       string
	Args          []string
	Env           map[string]string
	TimeoutMS     int
	MaxIterations int

	// CanSpawnAgents is always false: custom agents may never spawn
	// sub-agents (spec.md §6).
	CanSpawnAgents bool
	ThinkingLevel  string
}

// CustomAgentConfig is the on-disk shape of one entry in agents.json
// (spec.md §6, "Agent config file format").
type CustomAgentConfig struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Command       string                `json:"command"`
	Args          []string              `json:"args,omitempty"`
	Env           map[string]string     `json:"env,omitempty"`
	TimeoutMS     int                   `json:"timeout_ms,omitempty"`
	MaxIterations int                   `json:"max_iterations,omitempty"`
	ToolAccess    models.ToolAccessMode `json:"tool_access"`
	ThinkingLevel string                `json:"thinking_level,omitempty"`
}

// AgentsConfig is the top-level agents.json document.
type AgentsConfig struct {
	Agents []CustomAgentConfig `json:"agents"`
}

// Registry is the read-mostly agent map described in spec.md §5:
// "loaded once at startup into a read-mostly structure protected by a
// reader-writer lock; reload() swaps the whole map atomically."
type Registry struct {
	mu     sync.RWMutex
	agents map[string]AgentDefinition
}

// NewRegistry returns an empty registry; call Load before using it.
func NewRegistry() *Registry {
	return &Registry{agents: map[string]AgentDefinition{}}
}

// Load populates the registry from the built-in agents, then
// `~/.mira/agents.json`, then `<projectRoot>/.mira/agents.json` (an
// empty projectRoot skips the project file). Later scopes shadow
// earlier ones on ID collision. A missing config file is tolerated; a
// present-but-unparseable one is reported.
func (r *Registry) Load(projectRoot string) error {
	agents := make(map[string]AgentDefinition, len(builtinAgents)+4)
	for _, def := range builtinAgents {
		agents[def.ID] = def
	}

	if home, err := os.UserHomeDir(); err == nil {
		if err := loadConfigFile(filepath.Join(home, ".mira", "agents.json"), ScopeUser, agents); err != nil {
			return fmt.Errorf("agents: load user config: %w", err)
		}
	}

	if projectRoot != "" {
		if err := loadConfigFile(filepath.Join(projectRoot, ".mira", "agents.json"), ScopeProject, agents); err != nil {
			return fmt.Errorf("agents: load project config: %w", err)
		}
	}

	r.mu.Lock()
	r.agents = agents
	r.mu.Unlock()
	return nil
}

// Reload re-runs Load and atomically swaps the registered map.
func (r *Registry) Reload(projectRoot string) error {
	return r.Load(projectRoot)
}

func loadConfigFile(path string, scope AgentScope, into map[string]AgentDefinition) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var cfg AgentsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for _, custom := range cfg.Agents {
		into[custom.ID] = customToDefinition(custom, scope)
	}
	return nil
}

func customToDefinition(cfg CustomAgentConfig, scope AgentScope) AgentDefinition {
	toolAccess := cfg.ToolAccess
	if toolAccess == "" {
		toolAccess = models.AccessReadOnly
	}
	return AgentDefinition{
		ID:             cfg.ID,
		Name:           cfg.Name,
		Description:    cfg.Description,
		Type:           AgentTypeSubprocess,
		Scope:          scope,
		ToolAccess:     toolAccess,
		Command:        cfg.Command,
		Args:           cfg.Args,
		Env:            cfg.Env,
		TimeoutMS:      cfg.TimeoutMS,
		MaxIterations:  cfg.MaxIterations,
		CanSpawnAgents: false,
		ThinkingLevel:  cfg.ThinkingLevel,
	}
}

// Get returns the agent registered under id, if any.
func (r *Registry) Get(id string) (AgentDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[id]
	return def, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns every registered agent in no particular order.
func (r *Registry) List() []AgentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentDefinition, 0, len(r.agents))
	for _, def := range r.agents {
		out = append(out, def)
	}
	return out
}

// ListBuiltin returns only the fixed, in-process agents.
func (r *Registry) ListBuiltin() []AgentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentDefinition, 0, len(builtinAgents))
	for _, def := range r.agents {
		if def.Scope == ScopeBuiltin {
			out = append(out, def)
		}
	}
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// AgentInfo is the (id, description) projection handed to an LLM when
// offering agent selection as a tool choice.
type AgentInfo struct {
	ID          string
	Description string
}

// InfoForLLM returns (id, description) pairs for every registered
// agent, suitable for presenting the registry as a tool-choice enum.
func (r *Registry) InfoForLLM() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentInfo, 0, len(r.agents))
	for _, def := range r.agents {
		out = append(out, AgentInfo{ID: def.ID, Description: def.Description})
	}
	return out
}

var builtinAgents = []AgentDefinition{
	{
		ID:          "explore",
		Name:        "Explore",
		Description: "Reads and searches the codebase and memory to answer a question without making changes.",
		Type:        AgentTypeInProcess,
		Scope:       ScopeBuiltin,
		ToolAccess:  models.AccessReadOnly,
		SystemPrompt: "You are an exploration agent. Investigate the codebase and memory to answer the request. " +
			"You MUST NOT call any tool that modifies files, memory, or other external state.",
	},
	{
		ID:          "plan",
		Name:        "Plan",
		Description: "Produces a step-by-step plan for a change without executing it.",
		Type:        AgentTypeInProcess,
		Scope:       ScopeBuiltin,
		ToolAccess:  models.AccessReadOnly,
		SystemPrompt: "You are a planning agent. Read whatever context you need, then produce a concrete, " +
			"ordered plan. Do not make changes yourself; leave execution to the caller.",
	},
	{
		ID:          "general",
		Name:        "General",
		Description: "General-purpose agent with full tool access for open-ended requests.",
		Type:        AgentTypeInProcess,
		Scope:       ScopeBuiltin,
		ToolAccess:  models.AccessFull,
		SystemPrompt: "You are a general-purpose engineering agent with full tool access.",
	},
}

// Run executes a Subprocess agent's command with its configured
// timeout and environment, feeding input on stdin and returning
// combined stdout. Cancelling ctx, or exceeding TimeoutMS, kills the
// child process (spec.md §5: "subprocess agents are killed on
// cancel"). Calling Run on a non-Subprocess agent is a programming
// error.
func (d AgentDefinition) Run(ctx context.Context, workdir, input string) (string, error) {
	if d.Type != AgentTypeSubprocess {
		return "", fmt.Errorf("agents: %q is not a subprocess agent", d.ID)
	}

	runCtx := ctx
	if d.TimeoutMS > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(d.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, d.Command, d.Args...)
	// Once the child is killed, stop waiting on stdout/stderr pipes that
	// a surviving grandchild may still hold open.
	cmd.WaitDelay = time.Second
	if workdir != "" {
		cmd.Dir = workdir
	}
	if len(d.Env) > 0 {
		env := os.Environ()
		for k, v := range d.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return "", fmt.Errorf("agents: %q: %w", d.ID, runCtx.Err())
		}
		return "", fmt.Errorf("agents: %q exited: %w: %s", d.ID, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
