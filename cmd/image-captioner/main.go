package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	imagecaptioner "github.com/menta2k/image-captioner"
	"github.com/menta2k/image-captioner/internal/config"
	"github.com/menta2k/image-captioner/internal/logging"
	"github.com/menta2k/image-captioner/internal/metrics"
	"github.com/menta2k/image-captioner/internal/server"
	"github.com/menta2k/image-captioner/pkg/caption"
)

func main() {
	var configPath, addr, backend, in, initConfig string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (json or yaml); defaults to ~/.config/image-captioner/config.json when present")
	flag.StringVar(&addr, "addr", "", "listen address for the web UI (overrides server.addr)")
	flag.StringVar(&backend, "backend", "", "model backend: bedrock|anthropic|ollama (overrides model.backend)")
	flag.StringVar(&in, "in", "", "caption a single image path or URL and exit")
	flag.StringVar(&initConfig, "init-config", "", "write the effective configuration to this path and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(imagecaptioner.GetVersion())
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("usage: %s [-config file] [-addr :8501] [-backend bedrock|anthropic|ollama] [-in image.png|URL]: %v",
			filepath.Base(os.Args[0]), err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if backend != "" {
		cfg.Model.Backend = backend
		if err := cfg.Validate(); err != nil {
			log.Fatal(err)
		}
	}

	if initConfig != "" {
		if err := cfg.SaveToFile(initConfig); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", initConfig)
		return
	}

	logger := logging.New(cfg.Log)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	captioner, err := imagecaptioner.NewFromConfig(ctx, cfg, logger, caption.WithRecorder(m))
	if err != nil {
		log.Fatal(err)
	}

	if in != "" {
		if err := captionOnce(ctx, captioner, in); err != nil {
			logger.Error("caption failed", "input", in, "error", err)
			stop()
			os.Exit(1)
		}
		return
	}

	logging.InstallHertz(cfg.Log, os.Stderr)
	h := server.New(cfg.Server, captioner, m, logger).Build(cfg.Server.Addr)

	logger.Info("starting image captioner", "addr", cfg.Server.Addr, "backend", cfg.Model.Backend,
		"model", cfg.Model.ModelID, "version", imagecaptioner.Version)
	// Spin blocks until SIGINT/SIGTERM and shuts down gracefully
	h.Spin()
}

// captionOnce runs the pipeline on a single file or URL and prints the caption
func captionOnce(ctx context.Context, c *imagecaptioner.Captioner, in string) error {
	data, err := loadInput(ctx, in)
	if err != nil {
		return err
	}
	result, err := c.CaptionUpload(ctx, data)
	if err != nil {
		return err
	}
	fmt.Println(result.Caption)
	return nil
}

func loadInput(ctx context.Context, in string) ([]byte, error) {
	if !strings.HasPrefix(in, "http://") && !strings.HasPrefix(in, "https://") {
		return os.ReadFile(in)
	}

	resp, err := resty.New().SetTimeout(30 * time.Second).R().SetContext(ctx).Get(in)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	if resp.IsError() {
		return nil, errors.New("failed to download image: " + resp.Status())
	}
	return resp.Body(), nil
}
