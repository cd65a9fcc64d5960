// Package imagecaptioner turns uploaded images into captions using a hosted
// multimodal model.
//
// The pipeline has two stages:
//
//  1. Encoder (pkg/encoder): decode the upload and re-serialize it as base64 PNG
//     (or another configured raster format).
//  2. Caption Requester (pkg/caption): embed the payload and a fixed instruction
//     in a messages-schema request, invoke the model once and return the text
//     of the first content part.
//
// The model endpoint sits behind client.ModelInvoker. Bedrock (pkg/bedrock) is
// the default; the Anthropic API (pkg/anthropic) and a local ollama server
// (pkg/ollama) can stand in for it.
//
// Basic usage:
//
//	cfg, _ := config.Load("")
//	c, err := imagecaptioner.NewFromConfig(ctx, cfg, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	data, _ := os.ReadFile("photo.png")
//	result, err := c.CaptionUpload(ctx, data)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(result.Caption)
package imagecaptioner

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/menta2k/image-captioner/internal/config"
	"github.com/menta2k/image-captioner/pkg/anthropic"
	"github.com/menta2k/image-captioner/pkg/bedrock"
	"github.com/menta2k/image-captioner/pkg/caption"
	"github.com/menta2k/image-captioner/pkg/client"
	"github.com/menta2k/image-captioner/pkg/encoder"
	"github.com/menta2k/image-captioner/pkg/ollama"
	"github.com/menta2k/image-captioner/pkg/types"
)

// Version of the image captioner
const Version = "1.0.0"

// Captioner runs the upload -> encode -> request pipeline
type Captioner struct {
	encoder     *encoder.Encoder
	requester   *caption.Requester
	instruction string
}

// Result holds everything one pipeline run produced
type Result struct {
	Image   image.Image
	Format  string
	Payload types.EncodedPayload
	Caption types.Caption
}

// New wires an encoder and requester together
func New(enc *encoder.Encoder, req *caption.Requester, instruction string) *Captioner {
	if instruction == "" {
		instruction = caption.DefaultInstruction
	}
	return &Captioner{
		encoder:     enc,
		requester:   req,
		instruction: instruction,
	}
}

// NewFromConfig builds the model client once and returns a ready Captioner
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...caption.Option) (*Captioner, error) {
	invoker, err := NewInvoker(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	enc := encoder.NewWithConfig(encoder.Config{
		Format:       cfg.RasterFormat(),
		MaxDimension: cfg.Encoder.MaxDimension,
		JPEGQuality:  cfg.Encoder.JPEGQuality,
	})

	opts = append([]caption.Option{caption.WithLogger(logger)}, opts...)
	req := caption.New(invoker, caption.Config{
		Backend:   cfg.Model.Backend,
		ModelID:   cfg.Model.ModelID,
		MaxTokens: cfg.Model.MaxTokens,
		Timeout:   cfg.Model.Timeout,
	}, opts...)

	return New(enc, req, cfg.Model.Instruction), nil
}

// NewInvoker creates the client for the configured backend
func NewInvoker(ctx context.Context, cfg config.ModelConfig) (client.ModelInvoker, error) {
	switch cfg.Backend {
	case config.BackendBedrock, "":
		c, err := bedrock.NewClient(ctx, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bedrock client: %w", err)
		}
		return c, nil
	case config.BackendAnthropic:
		c, err := anthropic.NewClient(cfg.AnthropicURL, cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return c, nil
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.OllamaURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

// Instruction returns the prompt sent with every image
func (c *Captioner) Instruction() string {
	return c.instruction
}

// Prepare decodes an upload and encodes it, without contacting the model
func (c *Captioner) Prepare(data []byte) (Result, error) {
	decoded, err := c.encoder.DecodeUpload(bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	payload, err := c.encoder.Encode(decoded.Image)
	if err != nil {
		return Result{}, err
	}
	return Result{Image: decoded.Image, Format: decoded.Format, Payload: payload}, nil
}

// Caption requests a caption for an already encoded payload
func (c *Captioner) Caption(ctx context.Context, payload types.EncodedPayload) (types.Caption, error) {
	return c.requester.RequestCaption(ctx, payload, c.instruction)
}

// CaptionImage encodes img and requests its caption
func (c *Captioner) CaptionImage(ctx context.Context, img image.Image) (types.Caption, error) {
	payload, err := c.encoder.Encode(img)
	if err != nil {
		return "", err
	}
	return c.Caption(ctx, payload)
}

// CaptionUpload runs the whole pipeline on raw upload bytes. On a caption
// failure the returned Result still carries the decoded image and payload.
func (c *Captioner) CaptionUpload(ctx context.Context, data []byte) (Result, error) {
	result, err := c.Prepare(data)
	if err != nil {
		return Result{}, err
	}
	result.Caption, err = c.Caption(ctx, result.Payload)
	if err != nil {
		return result, err
	}
	return result, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
