package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"chatrelay/internal/provider"
	"chatrelay/internal/session"
)

func TestLoadContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "context.txt")
	if err := os.WriteFile(path, []byte("\n\n  You are a helpful assistant.\n  \n"), 0644); err != nil {
		t.Fatalf("write context: %v", err)
	}

	got := LoadContext(path)
	if got != "You are a helpful assistant." {
		t.Errorf("LoadContext() = %q, want trimmed content", got)
	}
}

func TestLoadContext_Missing(t *testing.T) {
	got := LoadContext(filepath.Join(t.TempDir(), "nope.txt"))
	if got != "" {
		t.Errorf("LoadContext() = %q, want empty", got)
	}

	if got := LoadContext(""); got != "" {
		t.Errorf("LoadContext(\"\") = %q, want empty", got)
	}
}

func TestReadContext_MissingIsTyped(t *testing.T) {
	_, err := readContext(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrMissingContext) {
		t.Errorf("expected ErrMissingContext, got %v", err)
	}
}

func TestLoadContext_Directory(t *testing.T) {
	if got := LoadContext(t.TempDir()); got != "" {
		t.Errorf("LoadContext(dir) = %q, want empty", got)
	}
}

func TestBuildMessages_EmptyContext(t *testing.T) {
	store := session.NewStore(20)
	a := NewAssembler(store, LoadContext(""), 2)

	msgs := a.BuildMessages("A", "what time do you open?")
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != provider.RoleSystem || msgs[0].Content != "" {
		t.Errorf("first message = %+v, want empty system message", msgs[0])
	}
	if msgs[1].Role != provider.RoleUser || msgs[1].Content != "what time do you open?" {
		t.Errorf("last message = %+v", msgs[1])
	}
}

func TestBuildMessages_SystemContextVerbatim(t *testing.T) {
	store := session.NewStore(20)
	a := NewAssembler(store, "Answer in one line.", 2)

	msgs := a.BuildMessages("A", "hi")
	if msgs[0].Content != "Answer in one line." {
		t.Errorf("system content = %q", msgs[0].Content)
	}
	if a.SystemContext() != "Answer in one line." {
		t.Errorf("SystemContext() = %q", a.SystemContext())
	}
}

func TestBuildMessages_LimitsHistory(t *testing.T) {
	store := session.NewStore(20)
	for i := 1; i <= 8; i++ {
		store.Append("A", session.RoleUser, fmt.Sprintf("q%d", i))
		store.Append("A", session.RoleAssistant, fmt.Sprintf("a%d", i))
	}
	a := NewAssembler(store, "ctx", 2)

	msgs := a.BuildMessages("A", "next")

	want := []provider.Message{
		{Role: "system", Content: "ctx"},
		{Role: "user", Content: "q8"},
		{Role: "assistant", Content: "a8"},
		{Role: "user", Content: "next"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(msgs), len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("msgs[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}

func TestBuildMessages_FiltersNonConversational(t *testing.T) {
	store := session.NewStore(20)
	store.Append("A", session.RoleUser, "q1")
	store.Append("A", session.RoleSystem, "note")
	a := NewAssembler(store, "ctx", 2)

	msgs := a.BuildMessages("A", "q2")
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(msgs), msgs)
	}
	if msgs[1].Content != "q1" {
		t.Errorf("history = %+v, want only q1", msgs[1])
	}
}

func TestBuildMessages_DoesNotPersist(t *testing.T) {
	store := session.NewStore(20)
	a := NewAssembler(store, "ctx", 2)

	a.BuildMessages("A", "hello there")
	if n := len(store.Turns("A")); n != 0 {
		t.Errorf("stored turns = %d, want 0", n)
	}
	if !store.Has("A") {
		t.Error("expected session to be registered")
	}
}

func TestBuildMessages_ZeroHistory(t *testing.T) {
	store := session.NewStore(20)
	store.Append("A", session.RoleUser, "q1")
	store.Append("A", session.RoleAssistant, "a1")

	a := NewAssembler(store, "ctx", 0)
	if msgs := a.BuildMessages("A", "q2"); len(msgs) != 2 {
		t.Errorf("len = %d, want 2", len(msgs))
	}

	if got := NewAssembler(store, "ctx", -1).HistoryTurns(); got != DefaultHistoryTurns {
		t.Errorf("HistoryTurns() = %d, want %d", got, DefaultHistoryTurns)
	}
}
