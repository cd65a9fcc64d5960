package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-captioner/pkg/types"
)

func testInput(t *testing.T) types.InvokeInput {
	t.Helper()
	body, err := json.Marshal(types.ModelRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
		Messages: []types.Message{{
			Role: "user",
			Content: []types.ContentPart{
				{Type: "image", Source: &types.ImageSource{Type: "base64", MediaType: "image/png", Data: "AAAA"}},
				{Type: "text", Text: "Provide a caption for this image"},
			},
		}},
	})
	require.NoError(t, err)
	return types.InvokeInput{ModelID: "claude-test", Body: body, ContentType: "application/json", Accept: "application/json"}
}

func TestInvokeModel_SendsMessagesRequest(t *testing.T) {
	var (
		calls int
		got   map[string]any
		hdr   http.Header
		path  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		path = r.URL.Path
		hdr = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"A red square"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", "secret")
	require.NoError(t, err)

	body, err := c.InvokeModel(context.Background(), testInput(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"A red square"}]}`, string(body))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "/v1/messages", path)
	assert.Equal(t, "secret", hdr.Get("x-api-key"))
	assert.Equal(t, APIVersion, hdr.Get("anthropic-version"))
	assert.Equal(t, "claude-test", got["model"])
	assert.NotContains(t, got, "anthropic_version")

	messages := got["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	assert.Equal(t, "image", content[0].(map[string]any)["type"])
	assert.Equal(t, "text", content[1].(map[string]any)["type"])
}

func TestInvokeModel_RemoteErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "secret")
	require.NoError(t, err)

	_, err = c.InvokeModel(context.Background(), testInput(t))
	require.Error(t, err)
	assert.Equal(t, types.KindRemoteService, types.KindOf(err))
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 1, calls)
}

func TestInvokeModel_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, "secret")
	require.NoError(t, err)

	_, err = c.InvokeModel(context.Background(), testInput(t))
	assert.Equal(t, types.KindTransport, types.KindOf(err))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", "")
	assert.Error(t, err)
}
