package encoder

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-captioner/pkg/types"
)

// Config holds options for turning uploads into model payloads
type Config struct {
	Format           types.RasterFormat
	MaxDimension     int // long side cap in px, 0 keeps the original size
	JPEGQuality      int
	SupportedFormats []string
}

// DefaultConfig returns PNG output at original size, accepting png and jpeg uploads
func DefaultConfig() Config {
	return Config{
		Format:           types.DefaultFormat,
		MaxDimension:     0,
		JPEGQuality:      90,
		SupportedFormats: []string{"png", "jpeg"},
	}
}

// Encoder converts decoded images into base64 payloads
type Encoder struct {
	config Config
}

// Decoded is an uploaded image together with the format it was stored in
type Decoded struct {
	Image  image.Image
	Format string
}

// New creates an Encoder with default configuration
func New() *Encoder {
	return &Encoder{config: DefaultConfig()}
}

// NewWithConfig creates an Encoder with custom configuration
func NewWithConfig(config Config) *Encoder {
	def := DefaultConfig()
	if config.Format == "" {
		config.Format = def.Format
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = def.JPEGQuality
	}
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = def.SupportedFormats
	}
	return &Encoder{config: config}
}

// Format returns the configured target format
func (e *Encoder) Format() types.RasterFormat {
	return e.config.Format
}

// DecodeUpload reads raw upload bytes and decodes them, honoring EXIF orientation.
// Only the configured source formats are accepted.
func (e *Encoder) DecodeUpload(r io.Reader) (Decoded, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Decoded{}, types.NewError(types.KindEncoding, "decode", fmt.Errorf("failed to read upload: %w", err))
	}
	if len(data) == 0 {
		return Decoded{}, types.NewError(types.KindEncoding, "decode", fmt.Errorf("empty upload"))
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, types.NewError(types.KindEncoding, "decode", fmt.Errorf("failed to decode image: %w", err))
	}
	if !e.isFormatSupported(format) {
		return Decoded{}, types.NewError(types.KindEncoding, "decode", fmt.Errorf("unsupported image format: %s", format))
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Decoded{}, types.NewError(types.KindEncoding, "decode", fmt.Errorf("failed to decode image: %w", err))
	}
	return Decoded{Image: img, Format: format}, nil
}

// Encode re-serializes img into the configured format and base64-encodes it
func (e *Encoder) Encode(img image.Image) (types.EncodedPayload, error) {
	return e.EncodeAs(img, e.config.Format)
}

// EncodeAs is Encode with an explicit target format
func (e *Encoder) EncodeAs(img image.Image, format types.RasterFormat) (types.EncodedPayload, error) {
	if img == nil {
		return types.EncodedPayload{}, types.NewError(types.KindEncoding, "encode", fmt.Errorf("nil image"))
	}

	if maxDim := e.config.MaxDimension; maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	raw, err := e.serialize(img, format)
	if err != nil {
		return types.EncodedPayload{}, types.NewError(types.KindEncoding, "encode", err)
	}
	return types.EncodedPayload{
		Data:   base64.StdEncoding.EncodeToString(raw),
		Format: format,
	}, nil
}

func (e *Encoder) serialize(img image.Image, format types.RasterFormat) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case types.PNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	case types.JPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(e.config.JPEGQuality)); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	case types.WebP:
		// lossless keeps the output stable for a given input
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return nil, fmt.Errorf("webp encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported target format: %q", format)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) isFormatSupported(format string) bool {
	for _, supported := range e.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// Encode re-serializes img into format with default options
func Encode(img image.Image, format types.RasterFormat) (types.EncodedPayload, error) {
	return New().EncodeAs(img, format)
}

// Decode reverses Encode, returning the image held by the payload
func Decode(p types.EncodedPayload) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", p.Format, err)
	}
	return img, nil
}
