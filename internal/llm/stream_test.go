package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestChatStream_Ollama(t *testing.T) {
	client := newTestClient(t, BackendOllama, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("streaming request had stream=false")
		}
		w.Write([]byte(`{"model":"test-model","message":{"role":"assistant","content":"hel"},"done":false}` + "\n"))
		w.Write([]byte(`{"model":"test-model","message":{"role":"assistant","content":"lo"},"done":false}` + "\n"))
		w.Write([]byte(`{"model":"test-model","message":{"role":"assistant","content":""},"done":true}` + "\n"))
	}))

	seq, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var text strings.Builder
	var sawDone bool
	for chunk := range seq {
		text.WriteString(chunk.Text())
		if chunk.Done {
			sawDone = true
		}
	}
	if text.String() != "hello" {
		t.Errorf("assembled text = %q, want hello", text.String())
	}
	if !sawDone {
		t.Error("done chunk not observed")
	}
}

func TestChatStream_OpenAI(t *testing.T) {
	client := newTestClient(t, BackendVLLM, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"delta":{"content":"hel"}}]}` + "\n"))
		w.Write([]byte(`{"choices":[{"delta":{"content":"lo"},"finish_reason":"stop"}]}` + "\n"))
	}))

	seq, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var text strings.Builder
	for chunk := range seq {
		text.WriteString(chunk.Text())
	}
	if text.String() != "hello" {
		t.Errorf("assembled text = %q, want hello", text.String())
	}
}

func TestChatStream_SkipsBadLines(t *testing.T) {
	client := newTestClient(t, BackendOllama, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"a"}` + "\n"))
		w.Write([]byte("not json at all\n"))
		w.Write([]byte("\n"))
		w.Write([]byte(`{"response":"b","done":true}` + "\n"))
	}))

	seq, err := client.GenerateStream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	var got []string
	for chunk := range seq {
		got = append(got, chunk.Text())
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("chunks = %v, want [a b]", got)
	}
}

func TestChatStream_EarlyBreakReleasesConnection(t *testing.T) {
	var closed atomic.Bool
	client := newTestClient(t, BackendOllama, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		// Write until the client hangs up; the drain on close consumes
		// a bounded amount, after which writes start failing.
		for {
			if _, err := w.Write([]byte(`{"response":"x"}` + "\n")); err != nil {
				closed.Store(true)
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				closed.Store(true)
				return
			default:
			}
		}
	}))

	seq, err := client.GenerateStream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	count := 0
	for range seq {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Fatalf("consumed %d chunks, want 3", count)
	}

	// Abandoning the range must close the body; the server sees the
	// write fail once the connection drops.
	deadline := time.Now().Add(2 * time.Second)
	for !closed.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !closed.Load() {
		t.Error("server connection still open after abandoning the stream")
	}
}

func TestChatStream_HTTPErrorBeforeStream(t *testing.T) {
	client := newTestClient(t, BackendOllama, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))

	if _, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestGenerateStream_Path(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"response":"ok","done":true}` + "\n"))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Model: "m", Backend: BackendOllama})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seq, err := client.GenerateStream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	for range seq {
	}

	if gotPath != "/api/generate" {
		t.Errorf("path = %q, want /api/generate", gotPath)
	}
}
