package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fakeOpenAI(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if seen != nil {
			json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4-0613",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "{\"correctness\": \"CORRECT\"}"}}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
}`

func TestChatCompletion(t *testing.T) {
	var req map[string]any
	srv := fakeOpenAI(t, http.StatusOK, completionBody, &req)

	c := NewClient(srv.URL+"/v1/", "sk-test", "gpt-4")
	resp, err := c.ChatCompletion(context.Background(),
		[]Message{SystemMessage("grade"), UserMessage("print(1)")},
		Options{Temperature: 0.2, JSON: true})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if resp.Message.Content != `{"correctness": "CORRECT"}` {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Model != "gpt-4-0613" {
		t.Errorf("model = %q", resp.Model)
	}
	if resp.Usage != (Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150}) {
		t.Errorf("usage = %+v", resp.Usage)
	}

	if req["model"] != "gpt-4" {
		t.Errorf("request model = %v", req["model"])
	}
	if req["temperature"] != 0.2 {
		t.Errorf("request temperature = %v", req["temperature"])
	}
	rf, _ := req["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v", req["response_format"])
	}
	if msgs, _ := req["messages"].([]any); len(msgs) != 2 {
		t.Errorf("messages = %v", req["messages"])
	}
}

func TestChatCompletionErrorStatus(t *testing.T) {
	srv := fakeOpenAI(t, http.StatusTooManyRequests, `{"error": {"message": "slow down", "type": "rate_limit"}}`, nil)

	c := NewClient(srv.URL+"/v1/", "sk-test", "gpt-4")
	_, err := c.ChatCompletion(context.Background(), []Message{UserMessage("hi")}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if StatusCode(err) != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", StatusCode(err))
	}
	if !IsRetryable(err) {
		t.Error("429 should be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("cancellation is not retryable")
	}
}
