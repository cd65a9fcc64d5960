package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	imagecaptioner "github.com/menta2k/image-captioner"
	"github.com/menta2k/image-captioner/internal/config"
	"github.com/menta2k/image-captioner/internal/metrics"
	"github.com/menta2k/image-captioner/internal/ui"
	fileutil "github.com/menta2k/image-captioner/internal/utils"
	"github.com/menta2k/image-captioner/pkg/caption"
	"github.com/menta2k/image-captioner/pkg/types"
)

const requestIDHeader = "X-Request-ID"

var (
	errUnsupportedUpload = errors.New("only png, jpg and jpeg uploads are accepted")
	errUploadTooLarge    = errors.New("upload exceeds the size limit")
)

// Server serves the two-pane caption page and a small JSON API
type Server struct {
	config   config.ServerConfig
	pipeline ui.Pipeline
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Server; metrics and logger may be nil
func New(cfg config.ServerConfig, pipeline ui.Pipeline, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		config:   cfg,
		pipeline: pipeline,
		metrics:  m,
		logger:   logger,
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return s
}

// Build creates the hertz engine listening on addr with all routes registered
func (s *Server) Build(addr string, opts ...hertzconfig.Option) *server.Hertz {
	// base64 echo of the upload plus form overhead
	maxBody := s.config.MaxUploadBytes*2 + 64<<10
	opts = append([]hertzconfig.Option{
		server.WithHostPorts(addr),
		server.WithMaxRequestBodySize(maxBody),
	}, opts...)

	h := server.Default(opts...)
	s.Register(h)
	return h
}

// Register attaches the routes to h
func (s *Server) Register(h *server.Hertz) {
	h.Use(AccessLog())
	h.GET("/", s.Index)
	h.POST("/", s.Page)
	h.POST("/api/caption", s.throttle, s.CaptionAPI)
	h.GET("/healthz", s.Health)
	h.GET("/metrics", s.Metrics)
}

// Index renders the empty page
func (s *Server) Index(ctx context.Context, c *app.RequestContext) {
	s.render(c, ui.Evaluate(ctx, s.pipeline, ui.Input{}))
}

// Page handles the upload form. Generate Caption triggers the model call.
func (s *Server) Page(ctx context.Context, c *app.RequestContext) {
	triggered := string(c.FormValue("action")) == "generate"

	data, filename, err := s.readUpload(c)
	if err != nil {
		s.metrics.RecordUpload("rejected")
		v := ui.Evaluate(ctx, s.pipeline, ui.Input{})
		v.Notice = ""
		v.Error = fmt.Sprintf("Error reading image: %v", err)
		s.render(c, v)
		return
	}
	if data == nil {
		s.metrics.RecordUpload("missing")
	} else {
		s.metrics.RecordUpload("accepted")
	}

	if triggered && data != nil && !s.allow() {
		v := ui.Evaluate(ctx, s.pipeline, ui.Input{Upload: data, Filename: filename})
		v.Error = "Error generating caption: too many requests, try again shortly"
		s.renderStatus(c, consts.StatusTooManyRequests, v)
		return
	}

	ctx, requestID := withRequestID(ctx, c)
	if data != nil {
		s.logger.Info("upload received", "request_id", requestID, "filename", filename,
			"size", fileutil.HumanSize(int64(len(data))), "generate", triggered)
	}

	s.render(c, ui.Evaluate(ctx, s.pipeline, ui.Input{
		Upload:    data,
		Filename:  filename,
		Triggered: triggered,
	}))
}

// CaptionAPI captions the multipart field "image" and answers with JSON
func (s *Server) CaptionAPI(ctx context.Context, c *app.RequestContext) {
	data, filename, err := s.readUpload(c)
	if err != nil {
		s.metrics.RecordUpload("rejected")
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error(), "kind": types.KindEncoding.String()})
		return
	}
	if data == nil {
		s.metrics.RecordUpload("missing")
		c.JSON(consts.StatusBadRequest, utils.H{"error": ui.NoImageNotice})
		return
	}
	s.metrics.RecordUpload("accepted")

	ctx, requestID := withRequestID(ctx, c)
	s.logger.Info("api caption request", "request_id", requestID, "filename", filename,
		"size", fileutil.HumanSize(int64(len(data))))

	result, err := s.pipeline.CaptionUpload(ctx, data)
	if err != nil {
		kind := types.KindOf(err)
		c.JSON(statusFor(kind), utils.H{
			"error":      err.Error(),
			"kind":       kind.String(),
			"request_id": requestID,
		})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"caption":    result.Caption,
		"media_type": result.Payload.Format.MediaType(),
		"request_id": requestID,
	})
}

// Health reports liveness
func (s *Server) Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok", "version": imagecaptioner.GetVersion()})
}

// Metrics exposes the prometheus registry
func (s *Server) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := s.metrics.WritePrometheus(&buf); err != nil {
		c.String(consts.StatusInternalServerError, err.Error())
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// AccessLog writes one hlog line per request once the handler chain finished
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		hlog.CtxInfof(ctx, "access method=%s path=%s status=%d latency=%s request_id=%s",
			c.Method(), c.Path(), c.Response.StatusCode(), time.Since(start), c.Response.Header.Get(requestIDHeader))
	}
}

func (s *Server) throttle(ctx context.Context, c *app.RequestContext) {
	if !s.allow() {
		c.AbortWithStatusJSON(consts.StatusTooManyRequests, utils.H{"error": "too many requests"})
		return
	}
	c.Next(ctx)
}

func (s *Server) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// readUpload returns the uploaded bytes, or nil when nothing was uploaded.
// A fresh file in "image" wins over the echoed "upload" field.
func (s *Server) readUpload(c *app.RequestContext) ([]byte, string, error) {
	limit := s.config.MaxUploadBytes

	if fh, err := c.FormFile("image"); err == nil && fh != nil && fh.Size > 0 {
		filename := fileutil.CleanFilename(fh.Filename)
		if !fileutil.AcceptedUpload(filename) {
			return nil, "", errUnsupportedUpload
		}
		if fh.Size > int64(limit) {
			return nil, "", errUploadTooLarge
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open upload: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
		if err != nil {
			return nil, "", fmt.Errorf("failed to read upload: %w", err)
		}
		if len(data) > limit {
			return nil, "", errUploadTooLarge
		}
		return data, filename, nil
	}

	if echoed := c.FormValue("upload"); len(echoed) > 0 {
		data, err := base64.StdEncoding.DecodeString(string(echoed))
		if err != nil {
			return nil, "", fmt.Errorf("invalid upload field: %w", err)
		}
		if len(data) > limit {
			return nil, "", errUploadTooLarge
		}
		return data, fileutil.CleanFilename(string(c.FormValue("filename"))), nil
	}

	return nil, "", nil
}

func (s *Server) render(c *app.RequestContext, v ui.View) {
	s.renderStatus(c, consts.StatusOK, v)
}

func (s *Server) renderStatus(c *app.RequestContext, status int, v ui.View) {
	var buf bytes.Buffer
	if err := ui.Render(&buf, v); err != nil {
		s.logger.Error("failed to render page", "error", err)
		c.String(consts.StatusInternalServerError, "failed to render page")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func withRequestID(ctx context.Context, c *app.RequestContext) (context.Context, string) {
	id := string(c.GetHeader(requestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	return caption.WithRequestID(ctx, id), id
}

func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindEncoding:
		return consts.StatusBadRequest
	case types.KindTransport, types.KindRemoteService, types.KindResponseShape:
		return consts.StatusBadGateway
	default:
		return consts.StatusInternalServerError
	}
}
