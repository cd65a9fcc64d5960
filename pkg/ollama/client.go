package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/image-captioner/pkg/types"
)

// DefaultURL is the address of a local ollama server
const DefaultURL = "http://localhost:11434"

// Client wraps the Ollama API client and speaks the messages schema on its behalf
type Client struct {
	client *api.Client
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}

	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Keep only scheme and host, paths like /api/chat are added by the SDK
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{client: api.NewClient(baseURL, http.DefaultClient)}, nil
}

// InvokeModel translates the request into a non-streaming chat call and wraps
// the reply as a single text content part
func (c *Client) InvokeModel(ctx context.Context, in types.InvokeInput) ([]byte, error) {
	var req types.ModelRequest
	if err := json.Unmarshal(in.Body, &req); err != nil {
		return nil, types.NewError(types.KindEncoding, "ollama invoke", fmt.Errorf("invalid request body: %w", err))
	}

	messages, err := toChatMessages(req.Messages)
	if err != nil {
		return nil, types.NewError(types.KindEncoding, "ollama invoke", err)
	}

	streamFalse := false
	chatReq := &api.ChatRequest{
		Model:    in.ModelID,
		Messages: messages,
		Stream:   &streamFalse,
		Options: map[string]any{
			"num_predict": req.MaxTokens,
		},
	}

	var reply api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		reply = resp
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	resp := types.ModelResponse{
		Model:      reply.Model,
		Role:       reply.Message.Role,
		StopReason: reply.DoneReason,
		Content:    []types.ContentPart{},
	}
	if reply.Message.Content != "" {
		resp.Content = append(resp.Content, types.ContentPart{Type: types.PartText, Text: reply.Message.Content})
	}
	return json.Marshal(resp)
}

// toChatMessages flattens content parts: text parts become the message body,
// image parts become raw image attachments
func toChatMessages(in []types.Message) ([]api.Message, error) {
	out := make([]api.Message, 0, len(in))
	for _, m := range in {
		var texts []string
		var images []api.ImageData
		for _, part := range m.Content {
			switch part.Type {
			case types.PartText:
				texts = append(texts, part.Text)
			case types.PartImage:
				if part.Source == nil {
					return nil, fmt.Errorf("image part without source")
				}
				raw, err := base64.StdEncoding.DecodeString(part.Source.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode base64 image: %w", err)
				}
				images = append(images, api.ImageData(raw))
			}
		}
		out = append(out, api.Message{
			Role:    m.Role,
			Content: strings.Join(texts, "\n"),
			Images:  images,
		})
	}
	return out, nil
}

// classify separates failures to reach the server from errors it reported
func classify(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return types.NewError(types.KindRemoteService, "ollama invoke", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.KindTransport, "ollama invoke", err)
	}
	// the server answered, but with an error payload
	return types.NewError(types.KindRemoteService, "ollama invoke", err)
}
