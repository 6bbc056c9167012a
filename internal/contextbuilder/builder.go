// Package contextbuilder implements the Context Builder (C12): it
// turns a session_id/query/project_id/access_mode into the single
// system prompt and trimmed message history the Operation Engine hands
// to a provider's call_with_tools (spec §4.4.3). It is grounded on the
// teacher's internal/agent/context/packer.go for the section-ordering
// shape, rebuilt against the current pkg/models schema (packer.go
// referenced fields — Message.Metadata, ToolCall.Input, a standalone
// models.ToolResult — that no longer exist) and against
// internal/recall.Engine (C5) for the recall tier itself.
package contextbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/internal/config"
	"github.com/getmira/mira-core/internal/llm/providers"
	"github.com/getmira/mira-core/internal/recall"
	"github.com/getmira/mira-core/internal/store"
	"github.com/getmira/mira-core/pkg/models"
)

const (
	basePersonaKey    = "base_persona"
	projectPersonaKey = "project_persona"

	// defaultHistoryLimit mirrors config.DefaultContextBuilderConfig
	// when the caller wires a zero-value Config.
	defaultHistoryLimit = 40
)

// fixedInstructions are the spec §4.4.3 step-2 "fixed system
// instructions for the access mode" — every operation gets one of
// these verbatim, ahead of any recalled or persona content.
var fixedInstructions = map[models.ToolAccessMode]string{
	models.AccessReadOnly: "You may inspect the project (read files, search code, browse history) " +
		"but MUST NOT call any tool that creates, modifies, or deletes state.",
	models.AccessFull: "You have full tool access for this project: you may read, write, run builds, " +
		"and record goals/fixes as the task requires.",
}

// Builder assembles prompts. It holds no per-request state, so one
// Builder is shared across every concurrent operation.
type Builder struct {
	Store  *store.Store
	Recall *recall.Engine
	Config config.ContextBuilderConfig
	Now    func() time.Time
}

// New builds a Builder over an already-open store and recall engine.
func New(st *store.Store, rec *recall.Engine, cfg config.ContextBuilderConfig) *Builder {
	if cfg.MessageHistoryLimit <= 0 {
		cfg.MessageHistoryLimit = defaultHistoryLimit
	}
	return &Builder{Store: st, Recall: rec, Config: cfg, Now: time.Now}
}

// Input scopes one Build call.
type Input struct {
	SessionID      string
	ProjectID      string
	ProjectRoot    string
	Query          string
	AccessMode     models.ToolAccessMode
	GitBranch      string
	CoChangedFiles []string
}

// Output is the assembled prompt: a system prompt plus the trimmed
// message history the caller prepends with the current user turn.
type Output struct {
	SystemPrompt       string
	Messages           []providers.Message
	TokensUsedEstimate int
}

// Build assembles the system prompt and trimmed history for one
// operation, following the spec §4.4.3 assembly order: persona
// overlay, fixed instructions, recall context (provenance-marked),
// codebase oracle, active goals/tasks, module cartographer exports,
// active working modules.
func (b *Builder) Build(ctx context.Context, in Input) (*Output, error) {
	var sections []string

	persona, err := b.personaOverlay(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if persona != "" {
		sections = append(sections, persona)
	}

	if instr, ok := fixedInstructions[in.AccessMode]; ok && instr != "" {
		sections = append(sections, instr)
	}

	var recallCtx *recall.RecallContext
	if b.Recall != nil && strings.TrimSpace(in.Query) != "" {
		recallCtx, err = b.Recall.Recall(ctx, recall.Query{
			Text:           in.Query,
			ProjectID:      in.ProjectID,
			SessionID:      in.SessionID,
			GitBranch:      in.GitBranch,
			ProjectRoot:    in.ProjectRoot,
			RecentLimit:    b.Config.RecentMessageLimit,
			CodeLimit:      b.Config.CodeHintLimit,
			MemoryLimit:    b.Config.MemoryLimit,
			CoChangedFiles: in.CoChangedFiles,
		})
		if err != nil {
			return nil, err
		}
		if section := renderRecallSection(recallCtx); section != "" {
			sections = append(sections, section)
		}
	}

	if section, err := b.oracleSection(ctx, in.ProjectID, in.Query); err != nil {
		return nil, err
	} else if section != "" {
		sections = append(sections, section)
	}

	if section, err := b.goalsSection(ctx, in.ProjectID); err != nil {
		return nil, err
	} else if section != "" {
		sections = append(sections, section)
	}

	var relatedFiles []string
	if recallCtx != nil {
		relatedFiles = recallCtx.RelatedFiles
	}
	modules, err := b.modulesSection(ctx, in.ProjectID, in.Query, relatedFiles)
	if err != nil {
		return nil, err
	}
	if modules.cartographer != "" {
		sections = append(sections, modules.cartographer)
	}
	if modules.active != "" {
		sections = append(sections, modules.active)
	}

	messages := historyMessages(recallCtx, b.Config.MessageHistoryLimit)

	out := &Output{
		SystemPrompt: strings.Join(sections, "\n\n"),
		Messages:     messages,
	}
	out.TokensUsedEstimate = estimateTokens(out.SystemPrompt, messages)
	return out, nil
}

// personaOverlay resolves base_persona, then an optional
// project_persona overlay, per spec §4.4.3 step 1. Either or both may
// be absent; absence is not an error.
func (b *Builder) personaOverlay(ctx context.Context, projectID string) (string, error) {
	var parts []string
	if base, err := b.lookupPersona(ctx, "", basePersonaKey); err != nil {
		return "", err
	} else if base != "" {
		parts = append(parts, base)
	}
	if projectID != "" {
		if overlay, err := b.lookupPersona(ctx, projectID, projectPersonaKey); err != nil {
			return "", err
		} else if overlay != "" {
			parts = append(parts, overlay)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (b *Builder) lookupPersona(ctx context.Context, projectID, key string) (string, error) {
	fact, err := b.Store.GetMemoryFactByKey(ctx, projectID, key)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if !fact.Injectable() {
		return "", nil
	}
	return fact.Content, nil
}

// renderRecallSection renders the recall tier (spec §4.4.3 step 3):
// recent messages are handled separately as chat history, not inlined
// into the system prompt; this section covers semantic memories, code
// hints, and related files, each provenance-marked.
func renderRecallSection(rc *recall.RecallContext) string {
	if rc == nil {
		return ""
	}
	var b strings.Builder
	wrote := false
	if len(rc.Semantic) > 0 {
		b.WriteString("Relevant memory:\n")
		for _, f := range rc.Semantic {
			fmt.Fprintf(&b, "- %s %s\n", models.ProvenanceUserData, f.Content)
		}
		wrote = true
	}
	if len(rc.Code) > 0 {
		if wrote {
			b.WriteString("\n")
		}
		b.WriteString("Relevant code:\n")
		for _, c := range rc.Code {
			fmt.Fprintf(&b, "- %s %s:%d-%d\n%s\n", models.ProvenanceUserData, c.FilePath, c.StartLine, c.EndLine, c.Content)
		}
		wrote = true
	}
	if len(rc.RelatedFiles) > 0 {
		if wrote {
			b.WriteString("\n")
		}
		b.WriteString("Related files:\n")
		for _, f := range rc.RelatedFiles {
			fmt.Fprintf(&b, "- %s %s\n", models.ProvenanceUserData, f)
		}
		wrote = true
	}
	if !wrote {
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}

// oracleSection renders the codebase intelligence oracle (spec
// §4.4.3 step 4): complexity hotspots and prior fixes for errors
// mentioned in the query. Grounded on internal/store/code.go's
// ComplexityHotspots and internal/store/audit.go's FindSimilarFixes.
func (b *Builder) oracleSection(ctx context.Context, projectID, query string) (string, error) {
	if projectID == "" {
		return "", nil
	}
	var b2 strings.Builder
	wrote := false

	hotspots, err := b.Store.ComplexityHotspots(ctx, projectID, 5)
	if err != nil {
		return "", err
	}
	if len(hotspots) > 0 {
		b2.WriteString("Codebase hotspots (high complexity, change with care):\n")
		for _, h := range hotspots {
			fmt.Fprintf(&b2, "- %s (%s:%d)\n", h.QualifiedName, h.FilePath, h.StartLine)
		}
		wrote = true
	}

	if strings.TrimSpace(query) != "" {
		fixes, err := b.Store.FindSimilarFixes(ctx, projectID, query, 3)
		if err != nil {
			return "", err
		}
		if len(fixes) > 0 {
			if wrote {
				b2.WriteString("\n")
			}
			b2.WriteString("Similar errors fixed before:\n")
			for _, f := range fixes {
				fmt.Fprintf(&b2, "- %s: %s\n", f.ErrorSignature, f.FixDescription)
			}
			wrote = true
		}
	}

	if !wrote {
		return "", nil
	}
	return strings.TrimRight(b2.String(), "\n"), nil
}

// goalsSection renders active tasks/goals (spec §4.4.3 step 5).
func (b *Builder) goalsSection(ctx context.Context, projectID string) (string, error) {
	if projectID == "" {
		return "", nil
	}
	goals, err := b.Store.ListGoals(ctx, projectID, models.GoalActive, false, 10)
	if err != nil {
		return "", err
	}
	if len(goals) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("Active goals:\n")
	for _, g := range goals {
		fmt.Fprintf(&sb, "- %s (%s)\n", g.Title, g.Priority)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

type moduleSections struct {
	cartographer string
	active       string
}

// modulesSection renders the module cartographer exports for
// query-relevant modules (step 6) and active working modules derived
// from recall's related files (step 7).
func (b *Builder) modulesSection(ctx context.Context, projectID, query string, relatedFiles []string) (moduleSections, error) {
	if projectID == "" {
		return moduleSections{}, nil
	}
	modules, err := b.Store.ModulesByProject(ctx, projectID)
	if err != nil {
		return moduleSections{}, err
	}
	if len(modules) == 0 {
		return moduleSections{}, nil
	}

	terms := queryTerms(query)
	var cartographer strings.Builder
	for _, m := range modules {
		if !moduleMatchesTerms(m, terms) {
			continue
		}
		fmt.Fprintf(&cartographer, "- %s (%s): %s\n", m.Name, m.Directory, m.Purpose)
		if len(m.Exports) > 0 {
			fmt.Fprintf(&cartographer, "  exports: %s\n", strings.Join(m.Exports, ", "))
		}
	}

	var active strings.Builder
	for _, path := range relatedFiles {
		for _, m := range modules {
			if m.Directory != "" && strings.HasPrefix(path, m.Directory) {
				fmt.Fprintf(&active, "- %s (working on %s)\n", m.Name, path)
				break
			}
		}
	}

	var out moduleSections
	if cartographer.Len() > 0 {
		out.cartographer = "Relevant modules:\n" + strings.TrimRight(cartographer.String(), "\n")
	}
	if active.Len() > 0 {
		out.active = "Active working modules:\n" + strings.TrimRight(active.String(), "\n")
	}
	return out, nil
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	var terms []string
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

func moduleMatchesTerms(m *models.Module, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	haystack := strings.ToLower(m.Name + " " + m.Purpose + " " + strings.Join(m.Exports, " "))
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}

// historyMessages converts recall's recent messages into the
// provider-facing shape, bounded to limit (spec §4.4.3's
// llm_message_history_limit). Older turns are left to the multi-level
// summarizer (Builder.MaybeSummarize) rather than inlined here.
func historyMessages(rc *recall.RecallContext, limit int) []providers.Message {
	if rc == nil || len(rc.Recent) == 0 {
		return nil
	}
	msgs := rc.Recent
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		pm := providers.Message{Role: m.Role, Content: m.Content}
		if m.Role == models.RoleTool {
			pm.ToolResults = []models.ToolCallResult{{ToolCallID: m.ToolCallID, Content: m.Content}}
		}
		out = append(out, pm)
	}
	return out
}

func estimateTokens(systemPrompt string, messages []providers.Message) int {
	chars := len(systemPrompt)
	for _, m := range messages {
		chars += len(m.Content)
	}
	// 4 characters per token is the same heuristic the teacher's
	// internal/context/window.go used.
	return chars / 4
}

func isNotFound(err error) bool {
	var appErr *apperr.Error
	return errors.As(err, &appErr) && appErr.Kind == apperr.NotFound
}
