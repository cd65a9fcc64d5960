package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/menta2k/image-captioner/pkg/types"
)

const (
	// DefaultBaseURL is the public Anthropic API
	DefaultBaseURL = "https://api.anthropic.com"
	// APIVersion goes into the anthropic-version header
	APIVersion = "2023-06-01"
)

// Client calls the Anthropic messages API directly, for setups without Bedrock
type Client struct {
	baseURL string
	apiKey  string
	client  *resty.Client
}

// messagesRequest is ModelRequest reshaped for the direct API: the model id
// travels in the body and the version in a header
type messagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []types.Message `json:"messages"`
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty)
func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New()
	client.SetRetryCount(0)

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}, nil
}

// InvokeModel posts the request to /v1/messages and returns the response body
func (c *Client) InvokeModel(ctx context.Context, in types.InvokeInput) ([]byte, error) {
	var req types.ModelRequest
	if err := json.Unmarshal(in.Body, &req); err != nil {
		return nil, types.NewError(types.KindEncoding, "anthropic invoke", fmt.Errorf("invalid request body: %w", err))
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", in.ContentType).
		SetHeader("Accept", in.Accept).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", APIVersion).
		SetBody(messagesRequest{
			Model:     in.ModelID,
			MaxTokens: req.MaxTokens,
			Messages:  req.Messages,
		}).
		Post(c.baseURL + "/v1/messages")
	if err != nil {
		return nil, types.NewError(types.KindTransport, "anthropic invoke", err)
	}

	if response.IsError() {
		return nil, types.NewError(types.KindRemoteService, "anthropic invoke",
			fmt.Errorf("server returned status %d: %s", response.StatusCode(), response.String()))
	}

	return response.Body(), nil
}
