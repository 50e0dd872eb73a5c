package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"pilot/internal/chat"
	"pilot/internal/config"
)

func newTestProvider(t *testing.T, baseURL string) *OpenAIProvider {
	t.Helper()
	return NewOpenAIProvider(config.ProviderConfig{
		BaseURL:   baseURL,
		Model:     "test-model",
		APIKey:    "test-key",
		TimeoutMS: 5000,
	})
}

func sseHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestChat_StreamsContent(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":" world"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
	))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	var chunks []string
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []chat.Message{{Role: "user", Content: "hi"}},
	}, &StreamCallbacks{
		OnTextChunk: func(chunk string) { chunks = append(chunks, chunk) },
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Fatalf("Content = %q, want %q", resp.Content, "Hello world")
	}
	if len(chunks) != 2 || chunks[0] != "Hello" || chunks[1] != " world" {
		t.Fatalf("unexpected chunks: %#v", chunks)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("Usage.TotalTokens = %d, want 7", resp.Usage.TotalTokens)
	}
}

func TestChat_StreamsReasoning(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"reasoning_content":"let me think"}}]}`,
		`{"choices":[{"delta":{"content":"answer"}}]}`,
	))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	var reasoning strings.Builder
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []chat.Message{{Role: "user", Content: "solve"}},
	}, &StreamCallbacks{
		OnReasoningChunk: func(chunk string) { reasoning.WriteString(chunk) },
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Reasoning != "let me think" {
		t.Errorf("Reasoning = %q, want %q", resp.Reasoning, "let me think")
	}
	if reasoning.String() != "let me think" {
		t.Errorf("reasoning callback got %q", reasoning.String())
	}
	if resp.Content != "answer" {
		t.Errorf("Content = %q, want answer", resp.Content)
	}
}

func TestChat_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"upstream hiccup"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []chat.Message{{Role: "user", Content: "hi"}},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("Content = %q, want ok", resp.Content)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("server calls = %d, want 2", got)
	}
}

func TestChat_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"no luck"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []chat.Message{{Role: "user", Content: "hi"}},
	}, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != int32(defaultMaxRetries+1) {
		t.Fatalf("server calls = %d, want %d", got, defaultMaxRetries+1)
	}
}

func TestChat_CanceledContextNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Drain the body so net/http starts its background read; without it the
		// server never notices the client disconnect, r.Context() is never
		// canceled, and the deferred srv.Close deadlocks on this handler.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := newTestProvider(t, srv.URL)
	done := make(chan error, 1)
	go func() {
		_, err := p.Chat(ctx, ChatRequest{Messages: []chat.Message{{Role: "user", Content: "hi"}}}, nil)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Chat did not return after cancellation")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server calls = %d, want 1", got)
	}
}

func TestConvertMessages(t *testing.T) {
	messages := []chat.Message{
		{Role: "system", Content: "You are a helper"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}

	converted := convertMessages(messages)
	if len(converted) != 3 {
		t.Fatalf("convertMessages len=%d, want 3", len(converted))
	}
	if converted[0].Role != "system" || converted[0].Content != "You are a helper" {
		t.Fatalf("msg[0] unexpected: %+v", converted[0])
	}
	if converted[2].Role != "assistant" || converted[2].Content != "hi" {
		t.Fatalf("msg[2] unexpected: %+v", converted[2])
	}
}

func TestConvertMessages_Multimodal(t *testing.T) {
	messages := []chat.Message{{
		Role: "user",
		MultiContent: []chat.ContentPart{
			chat.TextContent{Type: "text", Text: "what is in this image"},
			chat.ImageContent{Type: "image_url", ImageURL: chat.ImageURL{URL: "data:image/png;base64,AAAA", Detail: "auto"}},
		},
	}}

	converted := convertMessages(messages)
	if len(converted) != 1 {
		t.Fatalf("convertMessages len=%d, want 1", len(converted))
	}
	if converted[0].Content != "" {
		t.Error("multimodal message should not set plain Content")
	}
	parts := converted[0].MultiContent
	if len(parts) != 2 {
		t.Fatalf("parts len=%d, want 2", len(parts))
	}
	if parts[0].Type != openai.ChatMessagePartTypeText || parts[0].Text != "what is in this image" {
		t.Fatalf("part[0] unexpected: %+v", parts[0])
	}
	if parts[1].Type != openai.ChatMessagePartTypeImageURL {
		t.Fatalf("part[1] type = %q", parts[1].Type)
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/png;base64,AAAA" {
		t.Fatalf("part[1] image url unexpected: %+v", parts[1].ImageURL)
	}
}

func TestOpenAIProviderSetModel(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o-mini"}
	if p.CurrentModel() != "gpt-4o-mini" {
		t.Fatalf("CurrentModel()=%q, want gpt-4o-mini", p.CurrentModel())
	}
	if err := p.SetModel("gpt-4o"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}
	if p.CurrentModel() != "gpt-4o" {
		t.Fatalf("CurrentModel()=%q after set, want gpt-4o", p.CurrentModel())
	}
	if err := p.SetModel(" "); err == nil {
		t.Fatal("SetModel empty should error")
	}
}

func TestOpenAIProviderName(t *testing.T) {
	p := &OpenAIProvider{}
	if p.Name() != "openai" {
		t.Fatalf("Name()=%q, want openai", p.Name())
	}
}
