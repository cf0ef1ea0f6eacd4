package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chatEndpoint, r.URL.Path)

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Role: "assistant", Content: reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeImage(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"faces":[{"confidence":0.8,"box":{"x":0.4,"y":0.1,"w":0.2,"h":0.3}}]}`)
	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	res, err := c.AnalyzeImage(context.Background(), "test-model", "find faces", "aGVsbG8=")
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, 0.8, res.Faces[0].Confidence)
}

func TestAnalyzeImageServerError(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, "")
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.AnalyzeImage(context.Background(), "test-model", "find faces", "")
	assert.Error(t, err)
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "hi", messageText("hi"))
	assert.Equal(t, "part", messageText([]any{map[string]any{"type": "text", "text": "part"}}))
	assert.Equal(t, "", messageText(42))
}
