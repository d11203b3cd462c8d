package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewise/internal/pkg/apperr"
)

func TestCompleteSendsDecodingParams(t *testing.T) {
	var body map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk", Model: "base"})
	out, err := c.Complete(context.Background(),
		CompletionParams{Temperature: 0.3, TopP: 0.9, MaxTokens: 32},
		[]ChatMessage{TextMessage("user", "hello")})
	require.NoError(t, err)

	assert.Equal(t, "hi there", out)
	assert.Equal(t, "Bearer sk", auth)
	assert.Equal(t, "base", body["model"])
	assert.Equal(t, 0.3, body["temperature"])
	assert.Equal(t, 0.9, body["top_p"])
	assert.Equal(t, float64(32), body["max_tokens"])
	assert.Equal(t, false, body["stream"])
}

func TestCompleteUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), CompletionParams{Model: "m"}, nil)
	assert.ErrorIs(t, err, apperr.ErrCompletionService)
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL}).Complete(context.Background(), CompletionParams{}, nil)
	assert.ErrorIs(t, err, apperr.ErrCompletionService)
}

func TestStreamCompleteCollectsChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, ": keep-alive\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	var chunks []string
	out, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: srv.URL}).StreamComplete(
		context.Background(), CompletionParams{}, nil,
		func(s string) error { chunks = append(chunks, s); return nil })
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestChatMessageMarshal(t *testing.T) {
	text, err := json.Marshal(TextMessage("user", "hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(text))

	img, err := json.Marshal(ImageMessage("user", "read", "https://img/1.jpg"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[
		{"type":"text","text":"read"},
		{"type":"image_url","image_url":{"url":"https://img/1.jpg"}}
	]}`, string(img))
}
