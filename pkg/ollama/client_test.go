package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-captioner/pkg/types"
)

func invokeInput(t *testing.T, imageData string) types.InvokeInput {
	t.Helper()
	body, err := json.Marshal(types.ModelRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        256,
		Messages: []types.Message{{
			Role: "user",
			Content: []types.ContentPart{
				{Type: "image", Source: &types.ImageSource{Type: "base64", MediaType: "image/png", Data: imageData}},
				{Type: "text", Text: "Provide a caption for this image"},
			},
		}},
	})
	require.NoError(t, err)
	return types.InvokeInput{ModelID: "llava", Body: body, ContentType: "application/json", Accept: "application/json"}
}

func TestInvokeModel_TranslatesChat(t *testing.T) {
	imgBytes := []byte("fake-png-bytes")
	var (
		got  api.ChatRequest
		path string
	)
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llava","message":{"role":"assistant","content":"A cat on a windowsill"},"done":true,"done_reason":"stop"}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	require.NoError(t, err)

	body, err := c.InvokeModel(context.Background(), invokeInput(t, base64.StdEncoding.EncodeToString(imgBytes)))
	require.NoError(t, err)

	var resp types.ModelResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.Equal(t, "A cat on a windowsill", resp.Content[0].Text)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "/api/chat", path)
	assert.Equal(t, "llava", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Provide a caption for this image", got.Messages[0].Content)
	require.Len(t, got.Messages[0].Images, 1)
	assert.Equal(t, imgBytes, []byte(got.Messages[0].Images[0]))
}

func TestInvokeModel_StatusErrorIsRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llava\" not found"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.InvokeModel(context.Background(), invokeInput(t, "AAAA"))
	require.Error(t, err)
	assert.Equal(t, types.KindRemoteService, types.KindOf(err))
}

func TestInvokeModel_BadImageData(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)

	_, err = c.InvokeModel(context.Background(), invokeInput(t, "not base64 !!"))
	assert.Equal(t, types.KindEncoding, types.KindOf(err))
}
