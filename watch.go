package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"slidecast/common"
	"slidecast/pipelines/video"
)

// Watcher runs the pipeline for every document dropped into a directory.
type Watcher struct {
	inputDir   string
	outputRoot string
	runner     Runner
	cfg        *common.Config
	log        common.Logger
	watcher    *fsnotify.Watcher
	semaphore  chan struct{}
	wg         sync.WaitGroup

	// settle is how long to wait for a new file to finish being written.
	settle time.Duration
}

func NewWatcher(cfg *common.Config, runner Runner, log common.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := fw.Add(cfg.Watch.Input); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	maxConcurrent := cfg.Watch.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}

	return &Watcher{
		inputDir:   cfg.Watch.Input,
		outputRoot: cfg.Paths.Output,
		runner:     runner,
		cfg:        cfg,
		log:        log,
		watcher:    fw,
		semaphore:  make(chan struct{}, maxConcurrent),
		settle:     500 * time.Millisecond,
	}, nil
}

// Start blocks until ctx is cancelled, then waits for running documents.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info(ctx, "File watcher started (max concurrent: %d). Monitoring: %s", cap(w.semaphore), w.inputDir)

	for {
		select {
		case <-ctx.Done():
			w.log.Info(ctx, "Waiting for ongoing processing to complete...")
			w.wg.Wait()
			w.log.Info(ctx, "File watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !common.SupportedInput(event.Name) {
				w.log.Debug(ctx, "Ignoring unsupported file: %s", event.Name)
				continue
			}

			w.log.Info(ctx, "New document detected: %s", event.Name)
			time.Sleep(w.settle)

			select {
			case w.semaphore <- struct{}{}:
				w.wg.Add(1)
				go func(path string) {
					defer w.wg.Done()
					defer func() { <-w.semaphore }()

					if err := w.handle(ctx, path); err != nil {
						w.log.Error(ctx, "Failed to process %s: %v", path, err)
					}
				}(event.Name)
			case <-ctx.Done():
				w.wg.Wait()
				return ctx.Err()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.Error(ctx, "Watcher error: %v", err)
		}
	}
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) handle(ctx context.Context, path string) error {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	res, err := w.runner.Run(ctx, video.RunRequest{
		ID:          uuid.New().String(),
		InputPath:   path,
		OutputDir:   filepath.Join(w.outputRoot, stem+"_"+time.Now().Format("20060102_150405")),
		SlidesCount: w.cfg.Slides.MaxCount,
		Narration:   w.cfg.Narration.Enabled,
	})
	if err != nil {
		return err
	}
	w.log.Info(ctx, "Finished %s -> %s", filepath.Base(path), res.VideoPath)
	return nil
}
