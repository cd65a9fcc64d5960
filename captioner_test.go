package imagecaptioner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-captioner/internal/config"
	"github.com/menta2k/image-captioner/pkg/caption"
	"github.com/menta2k/image-captioner/pkg/encoder"
	"github.com/menta2k/image-captioner/pkg/types"
)

type fakeInvoker struct {
	calls    int
	body     []byte
	response []byte
	err      error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, in types.InvokeInput) ([]byte, error) {
	f.calls++
	f.body = in.Body
	return f.response, f.err
}

// createTestImage creates a solid red square
func createTestImage(size int) image.Image {
	return imaging.New(size, size, color.NRGBA{R: 255, A: 255})
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestCaptioner(inv *fakeInvoker) *Captioner {
	req := caption.New(inv, caption.Config{Backend: "test", ModelID: "test-model"})
	return New(encoder.New(), req, "")
}

func TestNew_DefaultInstruction(t *testing.T) {
	c := newTestCaptioner(&fakeInvoker{})
	if c.Instruction() != caption.DefaultInstruction {
		t.Errorf("Instruction() = %q, want %q", c.Instruction(), caption.DefaultInstruction)
	}

	custom := New(encoder.New(), caption.New(&fakeInvoker{}, caption.Config{}), "Describe this")
	if custom.Instruction() != "Describe this" {
		t.Errorf("Instruction() = %q, want custom instruction", custom.Instruction())
	}
}

func TestCaptionUpload_RedSquare(t *testing.T) {
	inv := &fakeInvoker{response: []byte(`{"content":[{"type":"text","text":"A red square"}]}`)}
	c := newTestCaptioner(inv)

	result, err := c.CaptionUpload(context.Background(), encodePNG(t, createTestImage(100)))
	if err != nil {
		t.Fatalf("CaptionUpload failed: %v", err)
	}
	if result.Caption != "A red square" {
		t.Errorf("Caption = %q, want %q", result.Caption, "A red square")
	}
	if inv.calls != 1 {
		t.Errorf("invoker called %d times, want 1", inv.calls)
	}
	if result.Format != "png" {
		t.Errorf("Format = %q, want png", result.Format)
	}
	if b := result.Image.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("image is %dx%d, want 100x100", b.Dx(), b.Dy())
	}

	var req types.ModelRequest
	if err := json.Unmarshal(inv.body, &req); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	parts := req.Messages[0].Content
	if parts[0].Source == nil || parts[0].Source.Data != result.Payload.Data {
		t.Error("request image does not match the encoded payload")
	}
	if parts[1].Text != caption.DefaultInstruction {
		t.Errorf("instruction = %q", parts[1].Text)
	}
}

func TestCaptionUpload_CaptionErrorKeepsPayload(t *testing.T) {
	inv := &fakeInvoker{err: types.NewError(types.KindRemoteService, "bedrock invoke", errors.New("ThrottlingException: slow down"))}
	c := newTestCaptioner(inv)

	result, err := c.CaptionUpload(context.Background(), encodePNG(t, createTestImage(32)))
	if types.KindOf(err) != types.KindRemoteService {
		t.Fatalf("error kind = %v, want remote_service (err=%v)", types.KindOf(err), err)
	}
	if result.Payload.Empty() {
		t.Error("payload should survive a caption failure")
	}
	if result.Caption != "" {
		t.Errorf("Caption = %q, want empty", result.Caption)
	}
}

func TestPrepare_InvalidUpload(t *testing.T) {
	inv := &fakeInvoker{}
	c := newTestCaptioner(inv)

	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Prepare(data)
			if types.KindOf(err) != types.KindEncoding {
				t.Errorf("error kind = %v, want encoding (err=%v)", types.KindOf(err), err)
			}
		})
	}

	if _, err := c.CaptionUpload(context.Background(), []byte("nope")); err == nil {
		t.Error("CaptionUpload should fail on an undecodable upload")
	}
	if inv.calls != 0 {
		t.Errorf("invoker called %d times, want 0", inv.calls)
	}
}

func TestCaptionImage(t *testing.T) {
	inv := &fakeInvoker{response: []byte(`{"content":[{"type":"text","text":"A red square"}]}`)}
	c := newTestCaptioner(inv)

	got, err := c.CaptionImage(context.Background(), createTestImage(10))
	if err != nil {
		t.Fatalf("CaptionImage failed: %v", err)
	}
	if got != "A red square" {
		t.Errorf("CaptionImage = %q", got)
	}

	if _, err := c.CaptionImage(context.Background(), nil); types.KindOf(err) != types.KindEncoding {
		t.Errorf("nil image: error kind = %v, want encoding", types.KindOf(err))
	}
}

func TestNewInvoker(t *testing.T) {
	cfg := config.Default().Model

	cfg.Backend = config.BackendOllama
	if inv, err := NewInvoker(context.Background(), cfg); err != nil || inv == nil {
		t.Errorf("ollama: invoker=%v err=%v", inv, err)
	}

	cfg.Backend = config.BackendAnthropic
	cfg.AnthropicAPIKey = "test-key"
	if inv, err := NewInvoker(context.Background(), cfg); err != nil || inv == nil {
		t.Errorf("anthropic: invoker=%v err=%v", inv, err)
	}

	cfg.Backend = "carrier-pigeon"
	if _, err := NewInvoker(context.Background(), cfg); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("GetVersion() = %q, want %q", GetVersion(), Version)
	}
}
