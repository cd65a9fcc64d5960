package caption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/image-captioner/pkg/client"
	"github.com/menta2k/image-captioner/pkg/types"
)

const (
	// DefaultInstruction is sent alongside every image
	DefaultInstruction = "Provide a caption for this image"
	// DefaultMaxTokens caps the model's answer
	DefaultMaxTokens = 4096
	// AnthropicVersion is the protocol tag Bedrock expects for Anthropic models
	AnthropicVersion = "bedrock-2023-05-31"
	// ContentTypeJSON is used for both the request body and the accepted response
	ContentTypeJSON = "application/json"
)

// Config controls how captions are requested
type Config struct {
	Backend   string
	ModelID   string
	MaxTokens int
	Timeout   time.Duration // applied when the caller's context has no deadline, 0 disables
}

// Recorder receives one observation per caption request
type Recorder interface {
	RecordCaption(backend string, kind types.ErrorKind, elapsed time.Duration, payloadBytes int)
}

// Requester turns encoded payloads into captions through a ModelInvoker
type Requester struct {
	invoker  client.ModelInvoker
	config   Config
	logger   *slog.Logger
	recorder Recorder
}

// Option customizes a Requester
type Option func(*Requester)

// WithLogger sets the logger used for request tracing
func WithLogger(logger *slog.Logger) Option {
	return func(r *Requester) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(rec Recorder) Option {
	return func(r *Requester) { r.recorder = rec }
}

// New creates a Requester around an already configured invoker
func New(invoker client.ModelInvoker, config Config, opts ...Option) *Requester {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	r := &Requester{
		invoker: invoker,
		config:  config,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the requester configuration
func (r *Requester) Config() Config {
	return r.config
}

// BuildRequest assembles the model request. The content order image then text
// is part of the contract with the remote model.
func BuildRequest(payload types.EncodedPayload, instruction string, maxTokens int) types.ModelRequest {
	return types.ModelRequest{
		AnthropicVersion: AnthropicVersion,
		MaxTokens:        maxTokens,
		Messages: []types.Message{
			{
				Role: types.RoleUser,
				Content: []types.ContentPart{
					{
						Type: types.PartImage,
						Source: &types.ImageSource{
							Type:      types.SourceBase64,
							MediaType: payload.Format.MediaType(),
							Data:      payload.Data,
						},
					},
					{
						Type: types.PartText,
						Text: instruction,
					},
				},
			},
		},
	}
}

// textPart keeps a missing or null "text" distinguishable from an empty one
type textPart struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// ExtractCaption pulls the text of the first content part out of a response body
func ExtractCaption(body []byte) (types.Caption, error) {
	var resp struct {
		Content []textPart `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", types.NewError(types.KindResponseShape, "parse response", fmt.Errorf("failed to parse response: %w", err))
	}
	if len(resp.Content) == 0 {
		return "", types.NewError(types.KindResponseShape, "parse response", types.ErrEmptyContent)
	}
	first := resp.Content[0]
	if first.Type != types.PartText {
		return "", types.NewError(types.KindResponseShape, "parse response", fmt.Errorf("first content part has type %q, want %q", first.Type, types.PartText))
	}
	if first.Text == nil {
		return "", types.NewError(types.KindResponseShape, "parse response", errors.New("first content part has no text"))
	}
	return *first.Text, nil
}

// RequestCaption performs exactly one model invocation for payload and returns
// the caption. Failures come back as *types.Error; nothing is retried.
func (r *Requester) RequestCaption(ctx context.Context, payload types.EncodedPayload, instruction string) (caption types.Caption, err error) {
	if r.config.Timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
			defer cancel()
		}
	}

	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := r.logger.With("request_id", requestID, "backend", r.config.Backend, "model_id", r.config.ModelID)

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		kind := types.KindOf(err)
		if r.recorder != nil {
			r.recorder.RecordCaption(r.config.Backend, kind, elapsed, len(payload.Data))
		}
		if err != nil {
			logger.Error("caption request failed", "kind", kind.String(), "elapsed", elapsed, "error", err)
			return
		}
		logger.Info("caption received", "elapsed", elapsed, "caption_chars", len(caption))
	}()

	if instruction == "" {
		return "", types.NewError(types.KindEncoding, "build request", errors.New("empty instruction"))
	}

	req := BuildRequest(payload, instruction, r.config.MaxTokens)
	body, err := json.Marshal(req)
	if err != nil {
		return "", types.NewError(types.KindEncoding, "marshal request", err)
	}
	logger.Debug("invoking model", "payload_bytes", len(payload.Data), "media_type", payload.Format.MediaType())

	respBody, err := r.invoker.InvokeModel(ctx, types.InvokeInput{
		ModelID:     r.config.ModelID,
		Body:        body,
		ContentType: ContentTypeJSON,
		Accept:      ContentTypeJSON,
	})
	if err != nil {
		if types.KindOf(err) == types.KindUnknown {
			err = types.NewError(types.KindTransport, "invoke model", err)
		}
		return "", err
	}

	caption, err = ExtractCaption(respBody)
	if err != nil {
		return "", err
	}
	return caption, nil
}
