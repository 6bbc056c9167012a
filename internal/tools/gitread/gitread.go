// Package gitread implements the read-only git tools spec §4's Tool
// Router requires: commit log, diff, file-at-commit, and blame. It shells
// out to the system `git` binary rather than vendoring a Go git
// implementation — grounded on the "local-first" posture of the rest of
// the system (the indexer itself walks the filesystem directly rather
// than linking a VCS library) and on teacher's general preference for
// thin adapters over third-party reimplementations of tools the host OS
// already provides. Every tool here is read-only: none of them mutate
// the repository, matching the access-mode guard spec §4 requires for
// git tools.
package gitread

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/getmira/mira-core/internal/agent"
)

// Toolset bundles the git-read tools for one repository root.
type Toolset struct {
	RepoRoot string
}

// Tools returns every git-read tool ready for registration.
func (t Toolset) Tools() []agent.Tool {
	return []agent.Tool{
		&commitsTool{repoRoot: t.RepoRoot},
		&diffTool{repoRoot: t.RepoRoot},
		&fileAtCommitTool{repoRoot: t.RepoRoot},
		&blameTool{repoRoot: t.RepoRoot},
	}
}

func errResult(format string, args ...any) *agent.ToolResult {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

func runGit(ctx context.Context, repoRoot string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}

type commitsTool struct{ repoRoot string }

func (t *commitsTool) Name() string        { return "git_commits" }
func (t *commitsTool) Description() string { return "Lists recent commits, optionally scoped to a path." }
func (t *commitsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Limit to commits touching this path"},
    "limit": {"type": "integer"}
  }
}`)
}

func (t *commitsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path  string `json:"path"`
		Limit int    `json:"limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return errResult("invalid params: %v", err), nil
		}
	}
	if input.Limit <= 0 {
		input.Limit = 20
	}

	args := []string{"log", "-n", strconv.Itoa(input.Limit), "--pretty=format:%H%x1f%an%x1f%aI%x1f%s%x1e"}
	if input.Path != "" {
		args = append(args, "--", input.Path)
	}

	out, err := runGit(ctx, t.repoRoot, args...)
	if err != nil {
		return errResult("%v", err), nil
	}

	var commits []map[string]string
	for _, rec := range strings.Split(out, "\x1e") {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.Split(rec, "\x1f")
		if len(fields) != 4 {
			continue
		}
		commits = append(commits, map[string]string{
			"hash": fields[0], "author": fields[1], "date": fields[2], "subject": fields[3],
		})
	}
	b, err := json.Marshal(map[string]any{"commits": commits})
	if err != nil {
		return errResult("failed to marshal result: %v", err), nil
	}
	return &agent.ToolResult{Content: string(b)}, nil
}

type diffTool struct{ repoRoot string }

func (t *diffTool) Name() string        { return "git_diff" }
func (t *diffTool) Description() string { return "Shows the diff for a commit, or between two refs." }
func (t *diffTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "commit": {"type": "string", "description": "Commit to diff against its parent"},
    "from_ref": {"type": "string"},
    "to_ref": {"type": "string"},
    "path": {"type": "string"}
  }
}`)
}

func (t *diffTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Commit  string `json:"commit"`
		FromRef string `json:"from_ref"`
		ToRef   string `json:"to_ref"`
		Path    string `json:"path"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return errResult("invalid params: %v", err), nil
		}
	}

	var args []string
	switch {
	case input.Commit != "":
		args = []string{"show", input.Commit}
	case input.FromRef != "" && input.ToRef != "":
		args = []string{"diff", input.FromRef, input.ToRef}
	default:
		return errResult("either commit or from_ref+to_ref is required"), nil
	}
	if input.Path != "" {
		args = append(args, "--", input.Path)
	}

	out, err := runGit(ctx, t.repoRoot, args...)
	if err != nil {
		return errResult("%v", err), nil
	}
	return &agent.ToolResult{Content: out}, nil
}

type fileAtCommitTool struct{ repoRoot string }

func (t *fileAtCommitTool) Name() string { return "git_file_at_commit" }
func (t *fileAtCommitTool) Description() string {
	return "Retrieves a file's content as it existed at a given commit."
}
func (t *fileAtCommitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "commit": {"type": "string"},
    "path": {"type": "string"}
  },
  "required": ["commit", "path"]
}`)
}

func (t *fileAtCommitTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Commit string `json:"commit"`
		Path   string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if input.Commit == "" || input.Path == "" {
		return errResult("commit and path are required"), nil
	}

	out, err := runGit(ctx, t.repoRoot, "show", fmt.Sprintf("%s:%s", input.Commit, input.Path))
	if err != nil {
		return errResult("%v", err), nil
	}
	return &agent.ToolResult{Content: out}, nil
}

type blameTool struct{ repoRoot string }

func (t *blameTool) Name() string        { return "git_blame" }
func (t *blameTool) Description() string { return "Annotates each line of a file with its last-modifying commit." }
func (t *blameTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string"},
    "start_line": {"type": "integer"},
    "end_line": {"type": "integer"}
  },
  "required": ["path"]
}`)
}

func (t *blameTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path      string `json:"path"`
		StartLine int    `json:"start_line"`
		EndLine   int    `json:"end_line"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if input.Path == "" {
		return errResult("path is required"), nil
	}
	if input.StartLine < 0 || input.EndLine < 0 || (input.EndLine > 0 && input.StartLine > input.EndLine) {
		return errResult("invalid line range"), nil
	}

	args := []string{"blame", "--line-porcelain"}
	if input.StartLine > 0 && input.EndLine > 0 {
		args = append(args, "-L", fmt.Sprintf("%d,%d", input.StartLine, input.EndLine))
	}
	args = append(args, "--", input.Path)

	out, err := runGit(ctx, t.repoRoot, args...)
	if err != nil {
		return errResult("%v", err), nil
	}
	return &agent.ToolResult{Content: out}, nil
}
