package ui

import (
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"

	imagecaptioner "github.com/menta2k/image-captioner"
)

const (
	Title           = "Building with Bedrock"
	Subtitle        = "Image Understanding Demo"
	NoImageNotice   = "No image uploaded"
	UploadedCaption = "Uploaded Image"
	LoadingNotice   = "Generating caption..."
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Pipeline is the part of the captioner the page needs
type Pipeline interface {
	Prepare(data []byte) (imagecaptioner.Result, error)
	CaptionUpload(ctx context.Context, data []byte) (imagecaptioner.Result, error)
}

// Input is everything the page knows about one interaction
type Input struct {
	Upload    []byte // nil when nothing was uploaded
	Filename  string
	Triggered bool // the Generate Caption button was pressed
}

// View is the rendered state of both panes
type View struct {
	Title    string
	Subtitle string
	// Loading is revealed client side while a caption request is in flight
	Loading string

	// left pane
	HasImage     bool
	ImageURI     template.URL
	ImageCaption string
	Filename     string
	// Upload echoes the raw upload (base64) so Generate Caption can resubmit it
	Upload string

	// right pane
	Notice     string
	HasCaption bool
	Caption    string
	Error      string
}

// Evaluate derives the page state from the input. The pipeline is touched only
// when an image was uploaded, and the model only when the button was pressed.
func Evaluate(ctx context.Context, p Pipeline, in Input) View {
	v := View{Title: Title, Subtitle: Subtitle, Loading: LoadingNotice}

	if len(in.Upload) == 0 {
		v.Notice = NoImageNotice
		return v
	}

	var (
		result imagecaptioner.Result
		err    error
	)
	if in.Triggered {
		result, err = p.CaptionUpload(ctx, in.Upload)
	} else {
		result, err = p.Prepare(in.Upload)
	}

	if !result.Payload.Empty() {
		v.HasImage = true
		v.ImageURI = template.URL(result.Payload.DataURI())
		v.ImageCaption = UploadedCaption
		v.Filename = in.Filename
		v.Upload = base64.StdEncoding.EncodeToString(in.Upload)
	}

	switch {
	case err != nil && result.Payload.Empty():
		v.Error = fmt.Sprintf("Error reading image: %v", err)
	case err != nil:
		v.Error = fmt.Sprintf("Error generating caption: %v", err)
	case in.Triggered:
		v.HasCaption = true
		v.Caption = result.Caption
	}
	return v
}

// Render writes the two-pane page for v
func Render(w io.Writer, v View) error {
	return pageTemplate.Execute(w, v)
}
