package resolve

import (
	"testing"

	"anthrogate/internal/domain"
)

type fakeStore struct {
	mappings map[string]string
}

func (f *fakeStore) ModelMapping(anthropicID string) (string, bool) {
	id, ok := f.mappings[anthropicID]
	return id, ok
}

func TestResolveCustomMappingTakesPriority(t *testing.T) {
	r := New(&fakeStore{mappings: map[string]string{
		"claude-sonnet-4-5": "eu.anthropic.claude-sonnet-4-5-20250929-v1:0",
	}})

	got := r.Resolve("claude-sonnet-4-5")
	want := "eu.anthropic.claude-sonnet-4-5-20250929-v1:0"
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolveFallsBackToBuiltinTable(t *testing.T) {
	r := New(&fakeStore{mappings: map[string]string{}})

	got := r.Resolve("claude-opus-4-1")
	want := "us.anthropic.claude-opus-4-1-20250805-v1:0"
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolveUnknownIDPassesThrough(t *testing.T) {
	r := New(nil)

	got := r.Resolve("some.unknown.model-id")
	if got != "some.unknown.model-id" {
		t.Errorf("Resolve() = %q, want pass-through", got)
	}
}

func TestResolveWithNilStoreUsesBuiltinTable(t *testing.T) {
	r := New(nil)

	got := r.Resolve("nova-pro")
	want := "us.amazon.nova-pro-v1:0"
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestHintReturnsNearestBuiltinAlias(t *testing.T) {
	got := Hint("claude-sonnet-4-6")
	if got != "claude-sonnet-4-5" {
		t.Errorf("Hint() = %q, want claude-sonnet-4-5", got)
	}
}

func TestFamilyClassifiesClaudeModels(t *testing.T) {
	if got := Family("us.anthropic.claude-sonnet-4-5-20250929-v1:0"); got != domain.FamilyClaude {
		t.Errorf("Family() = %v, want FamilyClaude", got)
	}
}

func TestFamilyClassifiesNovaReasoningModels(t *testing.T) {
	if got := Family("us.amazon.nova-premier-2:0"); got != domain.FamilyNovaReasoning {
		t.Errorf("Family() = %v, want FamilyNovaReasoning", got)
	}
}

func TestFamilyClassifiesOtherModels(t *testing.T) {
	if got := Family("us.meta.llama3-70b-instruct-v1:0"); got != domain.FamilyOther {
		t.Errorf("Family() = %v, want FamilyOther", got)
	}
}

func TestBuiltinModelsIncludesKnownAliases(t *testing.T) {
	ids := BuiltinModels()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, want := range []string{"claude-sonnet-4-5", "claude-opus-4-1", "nova-pro"} {
		if !seen[want] {
			t.Errorf("BuiltinModels() missing %q", want)
		}
	}
}
