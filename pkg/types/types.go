package types

import "strings"

// RasterFormat names the pixel format an image is re-serialized into before upload
type RasterFormat string

const (
	PNG  RasterFormat = "png"
	JPEG RasterFormat = "jpeg"
	WebP RasterFormat = "webp"
)

// DefaultFormat is the format sent to the model unless configured otherwise
const DefaultFormat = PNG

// ParseRasterFormat maps a user supplied name (png, jpg, jpeg, webp) to a RasterFormat
func ParseRasterFormat(name string) (RasterFormat, bool) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "png":
		return PNG, true
	case "jpg", "jpeg":
		return JPEG, true
	case "webp":
		return WebP, true
	}
	return "", false
}

// MediaType returns the MIME type declared for the format in model requests
func (f RasterFormat) MediaType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// EncodedPayload is a base64 (standard encoding) rendition of an image in Format
type EncodedPayload struct {
	Data   string
	Format RasterFormat
}

// Empty reports whether the payload carries no image data
func (p EncodedPayload) Empty() bool {
	return p.Data == ""
}

// DataURI returns the payload as a data: URI, handy for previews
func (p EncodedPayload) DataURI() string {
	return "data:" + p.Format.MediaType() + ";base64," + p.Data
}

// Caption is the text the model returned for an image
type Caption = string

// Content part kinds used by the messages schema
const (
	PartImage = "image"
	PartText  = "text"

	SourceBase64 = "base64"
	RoleUser     = "user"
)

// ImageSource carries inline image bytes inside a content part
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentPart is one unit of a multimodal message, either image or text
type ContentPart struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// Message is a single conversational turn
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ModelRequest is the Bedrock invoke body for Anthropic models
type ModelRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []Message `json:"messages"`
}

// Usage reports token accounting when the endpoint returns it
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ModelResponse is the structured body returned by the endpoint
type ModelResponse struct {
	ID         string        `json:"id,omitempty"`
	Model      string        `json:"model,omitempty"`
	Role       string        `json:"role,omitempty"`
	Content    []ContentPart `json:"content"`
	StopReason string        `json:"stop_reason,omitempty"`
	Usage      *Usage        `json:"usage,omitempty"`
}

// InvokeInput is what a model invoker needs for one round trip
type InvokeInput struct {
	ModelID     string
	Body        []byte
	ContentType string
	Accept      string
}
