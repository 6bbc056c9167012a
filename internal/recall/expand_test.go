package recall

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSymbolHeader(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantKind string
		wantName string
		wantOK   bool
	}{
		{"function", "// function foo\nfn foo() {}", "function", "foo", true},
		{"function with signature", "// function foo: fn foo(x int) bool\nfn foo(x int) bool {}", "function", "foo", true},
		{"continued", "// function bar (continued)\n    more code here", "function", "bar", true},
		{"struct", "// struct MyStruct\ntype MyStruct struct{}", "struct", "MyStruct", true},
		{"impl", "// impl Database\nimpl Database {}", "impl", "Database", true},
		{"method", "// method process: func (d *D) process()\nfunc (d *D) process() {}", "method", "process", true},
		{"no comment prefix", "fn foo() {}", "", "", false},
		{"module level", "// module-level code\nuse std::io;", "", "", false},
		{"empty", "", "", "", false},
		{"just comment", "// ", "", "", false},
		{"whitespace in name", "// function my_func \nfn my_func() {}", "function", "my_func", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			kind, name, ok := parseSymbolHeader(c.input)
			if ok != c.wantOK {
				t.Fatalf("ok = %v, want %v", ok, c.wantOK)
			}
			if !ok {
				return
			}
			if kind != c.wantKind || name != c.wantName {
				t.Fatalf("got (%q, %q), want (%q, %q)", kind, name, c.wantKind, c.wantName)
			}
		})
	}
}

func TestExpandContext_NoProjectRoot(t *testing.T) {
	e := &Engine{}
	got := e.expandContext(context.Background(), "proj-1", "", "src/main.go", "func main() {}")
	if got.header != "" {
		t.Fatalf("expected no header, got %q", got.header)
	}
	if got.content != "func main() {}" {
		t.Fatalf("expected unchanged content, got %q", got.content)
	}
}

func TestExpandContext_WithHeaderNoProjectRoot(t *testing.T) {
	e := &Engine{}
	chunk := "// function foo\nfunc foo() {}"
	got := e.expandContext(context.Background(), "proj-1", "", "src/lib.go", chunk)
	if got.header != "// function foo" {
		t.Fatalf("expected header preserved, got %q", got.header)
	}
	if got.content != chunk {
		t.Fatalf("expected unchanged content, got %q", got.content)
	}
}

func TestExpandContext_FallbackFindsSurroundingLines(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.go")
	content := "package main\n\nfunc helper() {}\n\nfunc main() {\n\thelper()\n}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	e := &Engine{}
	got := e.expandContext(context.Background(), "proj-1", root, "main.go", "func main() {\n\thelper()\n}")
	if got.content == "" {
		t.Fatal("expected fallback content, got empty")
	}
	if !strings.Contains(got.content, "func helper() {}") {
		t.Fatalf("expected expanded content to include surrounding lines, got %q", got.content)
	}
}
