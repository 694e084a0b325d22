package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"anthrogate/internal/auth"
	"anthrogate/internal/domain"
	"anthrogate/internal/invoke"
	"anthrogate/internal/ratelimit"
	"anthrogate/internal/resolve"
	"anthrogate/internal/store"
	"anthrogate/internal/usage"
)

type fakeClient struct {
	resp   *domain.ConverseResponse
	err    error
	frames []domain.BedrockFrame
}

func (f *fakeClient) Converse(ctx context.Context, req *domain.ConverseRequest) (*domain.ConverseResponse, error) {
	return f.resp, f.err
}

func (f *fakeClient) ConverseStream(ctx context.Context, req *domain.ConverseRequest) (<-chan domain.BedrockFrame, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan domain.BedrockFrame, len(f.frames))
	for _, fr := range f.frames {
		ch <- fr
	}
	close(ch)
	return ch, nil
}

func newTestPipeline(t *testing.T, client *fakeClient) (*Pipeline, *store.MemoryStore) {
	t.Helper()
	memStore := store.NewMemoryStore()
	authn := auth.New(memStore, "master-key", true)
	limits := ratelimit.New(100, 60, 0)
	resolver := resolve.New(store.NewResolverAdapter(memStore))
	invoker := invoke.New(client, time.Second)
	recorder := usage.New(memStore)

	return New(authn, limits, resolver, invoker, recorder), memStore
}

func TestHandleSucceeds(t *testing.T) {
	client := &fakeClient{resp: &domain.ConverseResponse{
		Message:    domain.ConverseMessage{Role: "assistant"},
		StopReason: "end_turn",
		Usage:      domain.ConverseUsage{InputTokens: 10, OutputTokens: 5},
	}}
	p, _ := newTestPipeline(t, client)

	resp, err := p.Handle(context.Background(), "master-key", &domain.MessageRequest{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 100,
		Messages:  []domain.Message{{Role: domain.RoleUser, Content: json.RawMessage(`"hello"`)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.InputTokens != 10 {
		t.Fatalf("got input tokens %d, want 10", resp.Usage.InputTokens)
	}
}

func TestHandleRejectsUnknownKey(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeClient{})

	_, err := p.Handle(context.Background(), "not-a-real-key", &domain.MessageRequest{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 100,
	})
	var classified *domain.Error
	if err == nil {
		t.Fatal("expected an authentication error")
	}
	if !asDomainError(err, &classified) || classified.Kind != domain.ErrAuthentication {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestHandleEnforcesRateLimit(t *testing.T) {
	client := &fakeClient{resp: &domain.ConverseResponse{Message: domain.ConverseMessage{Role: "assistant"}}}
	memStore := store.NewMemoryStore()
	authn := auth.New(memStore, "master-key", true)
	limits := ratelimit.New(1, 60, 0) // capacity 1: second request in the same window is denied
	resolver := resolve.New(store.NewResolverAdapter(memStore))
	invoker := invoke.New(client, time.Second)
	recorder := usage.New(memStore)
	p := New(authn, limits, resolver, invoker, recorder)

	memStore.Put(context.Background(), &domain.APIKey{Key: auth.HashKey("sk-ant-limited"), IsActive: true})

	req := &domain.MessageRequest{Model: "claude-sonnet-4-5", MaxTokens: 100}
	if _, err := p.Handle(context.Background(), "sk-ant-limited", req); err != nil {
		t.Fatalf("first request should succeed: %v", err)
	}

	_, err := p.Handle(context.Background(), "sk-ant-limited", req)
	var classified *domain.Error
	if !asDomainError(err, &classified) || classified.Kind != domain.ErrRateLimit {
		t.Fatalf("expected ErrRateLimit on second request, got %v", err)
	}
}

func TestHandleStreamEmitsEvents(t *testing.T) {
	client := &fakeClient{frames: []domain.BedrockFrame{
		{Type: domain.FrameContentBlockDelta, Index: 0, DeltaText: "hi", HasTextDelta: true},
		{Type: domain.FrameMessageStop, StopReason: "end_turn"},
	}}
	p, _ := newTestPipeline(t, client)

	events, err := p.HandleStream(context.Background(), "master-key", &domain.MessageRequest{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	for range events {
		count++
	}
	if count == 0 {
		t.Fatal("expected at least one SSE event")
	}
}

func asDomainError(err error, target **domain.Error) bool {
	for err != nil {
		if de, ok := err.(*domain.Error); ok {
			*target = de
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
