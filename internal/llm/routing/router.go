package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getmira/mira-core/internal/llm/providers"
	"github.com/getmira/mira-core/pkg/models"
)

// ErrNoProvider is returned when a tier has no healthy provider/model
// assignment left to try.
var ErrNoProvider = errors.New("routing: no provider available for tier")

// TierTarget names the provider and model a tier resolves to.
type TierTarget struct {
	Provider string
	Model    string
}

// Config wires a Router: per-tier targets, the provider registry, and
// the classification thresholds.
type Config struct {
	Targets         map[Tier]TierTarget
	Providers       map[string]providers.Provider
	Thresholds      Thresholds
	FailureCooldown time.Duration
}

// Router classifies a Task into a tier, then resolves that tier to a
// healthy provider, calling it with tools and recording Stats — the
// spec's "Router picks tier → Provider called with tools" step (§3).
// Unhealthy-provider cooldown tracking is grounded on teacher
// internal/agent/routing/router.go's markUnhealthy/isHealthy pair.
type Router struct {
	targets         map[Tier]TierTarget
	providerPool    map[string]providers.Provider
	thresholds      Thresholds
	failureCooldown time.Duration
	stats           Stats

	healthMu  sync.Mutex
	unhealthy map[string]time.Time
}

// NewRouter builds a Router from Config.
func NewRouter(cfg Config) *Router {
	return &Router{
		targets:         cfg.Targets,
		providerPool:    cfg.Providers,
		thresholds:      cfg.Thresholds,
		failureCooldown: cfg.FailureCooldown,
		unhealthy:       make(map[string]time.Time),
	}
}

// Decision is the outcome of routing one task: which tier it was
// classified into and which provider/model will serve it.
type Decision struct {
	Tier     Tier
	Provider string
	Model    string
}

// Route classifies task and resolves it to a healthy provider target,
// always honoring task.TierOverride.
func (r *Router) Route(task Task) (Decision, error) {
	tier := Classify(task, r.thresholds)
	target, ok := r.targets[tier]
	if !ok || !r.isHealthy(target.Provider) {
		// Fall back to Voice's target, the safest generalist, when it
		// is healthy and on a different provider; otherwise there is
		// no provider for this tier.
		if fallback, ok := r.targets[TierVoice]; ok && r.isHealthy(fallback.Provider) && fallback.Provider != target.Provider {
			target = fallback
		} else {
			return Decision{}, fmt.Errorf("%w: tier=%s", ErrNoProvider, tier)
		}
	}
	return Decision{Tier: tier, Provider: target.Provider, Model: target.Model}, nil
}

// CallWithTools routes task, invokes the resolved provider, records
// Stats, and marks the provider unhealthy on failure so the next call
// prefers a different one for the cooldown window.
func (r *Router) CallWithTools(ctx context.Context, task Task, messages []providers.Message, tools []models.ToolDeclaration, opts providers.CallOptions) (*providers.Response, Decision, error) {
	decision, err := r.Route(task)
	if err != nil {
		return nil, Decision{}, err
	}
	provider, ok := r.providerPool[decision.Provider]
	if !ok {
		return nil, decision, fmt.Errorf("%w: provider %q not registered", ErrNoProvider, decision.Provider)
	}

	if opts.Model == "" {
		opts.Model = decision.Model
	}
	if len(tools) > 0 {
		if model := forceToolCapableModel(provider, opts.Model); model != "" {
			opts.Model = model
			decision.Model = model
		}
	}
	resp, err := provider.CallWithTools(ctx, messages, tools, opts)
	if err != nil {
		r.markUnhealthy(decision.Provider)
		return nil, decision, err
	}
	r.stats.Record(decision.Tier, resp.TokensIn+resp.TokensOut)
	return resp, decision, nil
}

// Stats returns the router's cumulative routing statistics.
func (r *Router) Stats() *Stats { return &r.stats }

// forceToolCapableModel returns a substitute model ID when model is a
// "reasoner" that rejects tools (spec §4.3: "the router MUST force such
// calls to a tool-capable sibling model when tools are present"). It
// returns "" when the current model already accepts tools or no sibling
// is found.
func forceToolCapableModel(provider providers.Provider, model string) string {
	var current *providers.Model
	for _, m := range provider.Models() {
		if m.ID == model {
			mCopy := m
			current = &mCopy
			break
		}
	}
	if current == nil || !current.ToolsUnsupported {
		return ""
	}
	for _, m := range provider.Models() {
		if !m.ToolsUnsupported {
			return m.ID
		}
	}
	return ""
}

func (r *Router) isHealthy(provider string) bool {
	if provider == "" {
		return false
	}
	if r.failureCooldown <= 0 {
		return true
	}
	r.healthMu.Lock()
	defer r.healthMu.Unlock()
	until, ok := r.unhealthy[provider]
	if !ok {
		return true
	}
	if time.Now().After(until) {
		delete(r.unhealthy, provider)
		return true
	}
	return false
}

func (r *Router) markUnhealthy(provider string) {
	if provider == "" || r.failureCooldown <= 0 {
		return
	}
	r.healthMu.Lock()
	r.unhealthy[provider] = time.Now().Add(r.failureCooldown)
	r.healthMu.Unlock()
}
