package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepositoryQueriesAreMarked(t *testing.T) {
	violations, err := lint([]string{"../../sqlinline"})
	if err != nil {
		t.Fatalf("lint error: %v", err)
	}
	for _, v := range violations {
		t.Errorf("%s", v)
	}
}

func TestLintReportsProblems(t *testing.T) {
	dir := t.TempDir()
	src := "package q\n\n" +
		"const QOk = `--sql 11111111-2222-3333-4444-555555555555\nselect 1`\n\n" +
		"const QDup = `--sql 11111111-2222-3333-4444-555555555555\nselect 2`\n\n" +
		"const QBare = \"select * from jobs\"\n\n" +
		"const Greeting = \"hello\"\n"
	if err := os.WriteFile(filepath.Join(dir, "q.go"), []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	violations, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint error: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %v", violations)
	}
	var joined []string
	for _, v := range violations {
		joined = append(joined, v.String())
	}
	out := strings.Join(joined, "\n")
	if !strings.Contains(out, "QBare") || !strings.Contains(out, "already used by QOk") {
		t.Fatalf("unexpected violations:\n%s", out)
	}
}
