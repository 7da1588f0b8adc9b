package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"slidecast/common"
	"slidecast/pipelines/video"
)

const defaultConfigPath = "config.yaml"

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   defaultConfigPath,
	Usage:   "path to the YAML config file",
}

func main() {
	app := &cli.App{
		Name:           "slidecast",
		Usage:          "turn a document into a slide deck and a narrated video",
		DefaultCommand: "run",
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "process one document",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "PDF, .txt or .md document"},
			&cli.StringFlag{Name: "outdir", Aliases: []string{"o"}, Usage: "output directory (default: timestamped dir under paths.output)"},
			&cli.IntFlag{Name: "slides-count", Usage: "maximum number of slides"},
			&cli.StringFlag{Name: "tts", Usage: "narration on|off"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			req := video.RunRequest{
				InputPath:   c.String("input"),
				OutputDir:   c.String("outdir"),
				SlidesCount: cfg.Slides.MaxCount,
				Narration:   cfg.Narration.Enabled,
			}
			if c.IsSet("slides-count") {
				if c.Int("slides-count") < 1 {
					return fmt.Errorf("--slides-count must be at least 1")
				}
				req.SlidesCount = c.Int("slides-count")
			}
			if c.IsSet("tts") {
				if req.Narration, err = parseToggle(c.String("tts")); err != nil {
					return err
				}
			}
			if req.OutputDir == "" {
				req.OutputDir = filepath.Join(cfg.Paths.Output, "output_"+time.Now().Format("20060102_150405"))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg, logger, os.Stdout)
			if err != nil {
				return err
			}
			if _, err := p.Run(ctx, req); err != nil {
				return fmt.Errorf("pipeline failed: %w", err)
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP job server",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{Name: "port", Usage: "listen address, e.g. :8080"},
			&cli.IntFlag{Name: "workers", Usage: "number of worker goroutines"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if c.IsSet("port") {
				cfg.Server.Addr = c.String("port")
			}
			if c.IsSet("workers") {
				cfg.Server.Workers = c.Int("workers")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return StartServer(ctx, cfg, logger)
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "process every document dropped into a directory",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "directory to watch"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if c.IsSet("input") {
				cfg.Watch.Input = c.String("input")
			}
			if err := os.MkdirAll(cfg.Watch.Input, 0755); err != nil {
				return fmt.Errorf("create watch dir: %w", err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			w, err := NewWatcher(cfg, p, logger)
			if err != nil {
				return err
			}
			defer w.Stop()

			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// setup loads .env, the config file and the logger. A missing config file
// is fine as long as the user did not name one explicitly.
func setup(c *cli.Context) (*common.Config, common.Logger, error) {
	if err := common.LoadEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Could not read .env: %v", err)
	}

	cfg, err := common.Load(c.String("config"))
	switch {
	case errors.Is(err, os.ErrNotExist) && !c.IsSet("config"):
		cfg = common.Default()
	case err != nil:
		return nil, nil, err
	}
	cfg.ApplyEnv()

	logger, err := common.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newPipeline(ctx context.Context, cfg *common.Config, logger common.Logger, progress io.Writer) (*video.Pipeline, error) {
	sink, err := common.NewSink(ctx, cfg.Sink)
	if err != nil {
		return nil, fmt.Errorf("output sink: %w", err)
	}
	return video.New(cfg, common.NewExecutor(), logger, sink, progress), nil
}

func parseToggle(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", v)
}
