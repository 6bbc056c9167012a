package gitread

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial commit")
	return dir
}

func TestCommitsTool(t *testing.T) {
	dir := initTestRepo(t)
	tool := &commitsTool{repoRoot: dir}

	res, err := tool.Execute(context.Background(), nil)
	if err != nil || res.IsError {
		t.Fatalf("Execute() failed: err=%v res=%+v", err, res)
	}
	if !strings.Contains(res.Content, "initial commit") {
		t.Errorf("commits result = %s, want it to mention the commit subject", res.Content)
	}
}

func TestFileAtCommitTool(t *testing.T) {
	dir := initTestRepo(t)
	tool := &fileAtCommitTool{repoRoot: dir}

	params, _ := json.Marshal(map[string]any{"commit": "HEAD", "path": "a.txt"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil || res.IsError {
		t.Fatalf("Execute() failed: err=%v res=%+v", err, res)
	}
	if strings.TrimSpace(res.Content) != "hello" {
		t.Errorf("content = %q, want %q", res.Content, "hello")
	}
}

func TestFileAtCommitRequiresParams(t *testing.T) {
	tool := &fileAtCommitTool{repoRoot: "."}
	params, _ := json.Marshal(map[string]any{"commit": "", "path": ""})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError when commit/path missing")
	}
}

func TestBlameToolRejectsInvalidRange(t *testing.T) {
	dir := initTestRepo(t)
	tool := &blameTool{repoRoot: dir}

	params, _ := json.Marshal(map[string]any{"path": "a.txt", "start_line": 5, "end_line": 1})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError for start_line > end_line")
	}
}

func TestDiffToolRequiresCommitOrRefPair(t *testing.T) {
	dir := initTestRepo(t)
	tool := &diffTool{repoRoot: dir}

	res, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError when neither commit nor from_ref/to_ref supplied")
	}
}
