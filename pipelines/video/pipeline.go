package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"slidecast/common"
)

const (
	videoFileName   = "video.mp4"
	handoutFileName = "handout.docx"
)

// Pipeline turns one document into a slide deck and a narrated video.
// Collaborator fields left nil are built from Cfg on each run.
type Pipeline struct {
	Cfg      *common.Config
	Exec     common.Executor
	Log      common.Logger
	Sink     common.Sink
	Progress io.Writer

	Extractor   common.Extractor
	Deck        DeckWriter
	Raster      Rasterizer
	Prober      Prober
	NewSynth    func(ctx context.Context) (Synthesizer, error)
	NewPrimary  func(workDir string) Strategy
	NewFallback func() Strategy
}

func New(cfg *common.Config, exec common.Executor, log common.Logger, sink common.Sink, progress io.Writer) *Pipeline {
	return &Pipeline{Cfg: cfg, Exec: exec, Log: log, Sink: sink, Progress: progress}
}

// Run executes the full document to video workflow. Only failures that
// leave nothing to show are returned as errors; narration problems and a
// failed full-featured encode degrade the result instead.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.SlidesCount == 0 {
		req.SlidesCount = p.Cfg.Slides.MaxCount
	}
	log := p.Log.With("run", req.ID)
	progress := common.NewProgress(p.Progress)
	started := time.Now()

	log.Info(ctx, "Starting video pipeline for %s -> %s", req.InputPath, req.OutputDir)

	// 1. Extract
	progress.Step("Extracting text...")
	text, err := p.extract(ctx, req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}
	log.Info(ctx, "Step 1: Extracted %d chars of text", len(text))

	// 2. Segment
	progress.Step("Extracting keypoints and speaker notes...")
	units := Segment(text, req.SlidesCount)
	log.Info(ctx, "Step 2: Segmented into %d slides", len(units))

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if p.Cfg.Paths.Temp != "" {
		if err := os.MkdirAll(p.Cfg.Paths.Temp, 0755); err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
	}
	workDir, err := os.MkdirTemp(p.Cfg.Paths.Temp, "run-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	deck, raster, err := p.deck(workDir)
	if err != nil {
		return nil, err
	}

	// 3. Deck
	progress.Step("Building slide deck...")
	icons := AssignIcons(units, p.iconPool(ctx, log, req.InputPath, workDir))
	deckPath := filepath.Join(req.OutputDir, "slides."+deck.Extension())
	if err := deck.Build(ctx, units, icons, deckPath); err != nil {
		return nil, fmt.Errorf("deck generation failed: %w", err)
	}
	log.Info(ctx, "Step 3: Deck written to %s", deckPath)

	// 4. Video
	progress.Step("Rendering video...")
	frames, err := raster.Render(ctx, deckPath, units, icons, workDir)
	if err != nil {
		return nil, fmt.Errorf("rasterizing deck failed: %w", err)
	}
	if len(frames) != len(units) {
		return nil, fmt.Errorf("rasterizer produced %d frames for %d slides", len(frames), len(units))
	}

	synth := p.openSynth(ctx, log, req.Narration)
	if synth != nil {
		defer synth.Close()
	}
	resolver := &Resolver{Synth: synth, Probe: p.prober(), Log: log}
	tracks := resolver.Resolve(ctx, units, req.Narration, workDir)
	plans := PlanSlides(tracks, req.Narration, p.Cfg.Timing)
	log.Info(ctx, "Step 4: Planned %d clips", len(plans))

	tl, err := BuildTimeline(frames, plans, tracks, p.background(ctx, log, req.Narration), req.Narration)
	if err != nil {
		return nil, err
	}

	videoPath := filepath.Join(req.OutputDir, videoFileName)
	composer := &Composer{Primary: p.primary(workDir), Fallback: p.fallback(), Log: log}
	outcome, err := composer.Compose(ctx, tl, videoPath)
	if err != nil {
		return nil, fmt.Errorf("video creation failed: %w", err)
	}
	if outcome.Degraded {
		progress.Warn("Full rendering failed, wrote a simplified video instead")
	}
	log.Info(ctx, "Step 5: Video written with %s strategy (%.1fs)", outcome.Strategy, tl.Duration())

	result := &RunResult{
		DeckPath:  deckPath,
		VideoPath: videoPath,
		Units:     units,
		Tracks:    tracks,
		Plans:     plans,
		Strategy:  outcome.Strategy,
		Degraded:  outcome.Degraded,
		Published: map[string]string{},
	}

	if p.Cfg.Slides.Handout {
		handoutPath := filepath.Join(req.OutputDir, handoutFileName)
		title := strings.TrimSuffix(filepath.Base(req.InputPath), filepath.Ext(req.InputPath))
		if err := WriteHandout(title, units, plans, handoutPath); err != nil {
			log.Warn(ctx, "Handout not written: %v", err)
		} else {
			result.HandoutPath = handoutPath
		}
	}

	// 5. Publish
	if p.Sink != nil {
		progress.Step("Publishing outputs...")
		for _, artifact := range []string{result.DeckPath, result.VideoPath, result.HandoutPath} {
			if artifact == "" {
				continue
			}
			url, err := p.Sink.Publish(ctx, req.ID, artifact)
			if err != nil {
				log.Warn(ctx, "Publishing %s failed: %v", filepath.Base(artifact), err)
				continue
			}
			result.Published[filepath.Base(artifact)] = url
		}
	}

	progress.Done(result.DeckPath, result.VideoPath)
	log.Info(ctx, "Video Pipeline Complete in %s! Video: %s", time.Since(started).Round(time.Millisecond), videoPath)
	return result, nil
}

func (p *Pipeline) extract(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	extractor := p.Extractor
	if extractor == nil {
		var err error
		if extractor, err = common.NewExtractor(path); err != nil {
			return "", err
		}
	}
	pages, err := extractor.Extract(ctx, path)
	if err != nil {
		return "", err
	}
	return common.JoinPages(pages), nil
}

func (p *Pipeline) deck(workDir string) (DeckWriter, Rasterizer, error) {
	deck, raster, err := NewDeck(p.Cfg.Slides.DeckFormat, p.Exec, p.Cfg.Video, workDir)
	if err != nil {
		return nil, nil, err
	}
	if p.Deck != nil {
		deck = p.Deck
	}
	if p.Raster != nil {
		raster = p.Raster
	}
	return deck, raster, nil
}

// iconPool collects the icon directory and, when enabled, figures detected
// in the source PDF.
func (p *Pipeline) iconPool(ctx context.Context, log common.Logger, inputPath, workDir string) []string {
	icons, err := ListIcons(p.Cfg.Paths.Icons)
	if err != nil {
		log.Warn(ctx, "Could not read icon dir %s: %v", p.Cfg.Paths.Icons, err)
	}

	fc := p.Cfg.Figures
	if !fc.Enabled || fc.ModelPath == "" || !strings.EqualFold(filepath.Ext(inputPath), ".pdf") {
		return icons
	}
	extractor, err := NewFigureExtractor(fc.ModelPath, fc.LibPath)
	if err != nil {
		log.Warn(ctx, "Figure extraction disabled: %v", err)
		return icons
	}
	defer extractor.Close()

	figures, err := extractor.Extract(ctx, inputPath, filepath.Join(workDir, "figures"), fc.MaxIcons)
	if err != nil {
		log.Warn(ctx, "Figure extraction stopped early: %v", err)
	}
	log.Info(ctx, "Found %d figures in source document", len(figures))
	return append(icons, figures...)
}

func (p *Pipeline) openSynth(ctx context.Context, log common.Logger, enabled bool) Synthesizer {
	if !enabled {
		return nil
	}
	open := p.NewSynth
	if open == nil {
		open = func(ctx context.Context) (Synthesizer, error) {
			return NewSynthesizer(ctx, p.Cfg.Narration, p.Exec)
		}
	}
	synth, err := open(ctx)
	if err != nil {
		log.Warn(ctx, "Narration engine unavailable, slides will be silent: %v", err)
		return nil
	}
	return synth
}

func (p *Pipeline) prober() Prober {
	if p.Prober != nil {
		return p.Prober
	}
	return FFProbe{Exec: p.Exec}
}

// background measures the configured music file. Any problem just means
// no background.
func (p *Pipeline) background(ctx context.Context, log common.Logger, narration bool) *BackgroundSource {
	path := p.Cfg.Paths.Background
	if !narration || path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn(ctx, "Background track %s unreadable: %v", path, err)
		}
		return nil
	}
	native, err := p.prober().Duration(ctx, path)
	if err != nil || native <= 0 {
		log.Warn(ctx, "Skipping background track %s: duration unknown (%v)", path, err)
		return nil
	}
	return &BackgroundSource{Path: path, NativeSeconds: native, Volume: p.Cfg.Video.BackgroundVolume}
}

func (p *Pipeline) primary(workDir string) Strategy {
	if p.NewPrimary != nil {
		return p.NewPrimary(workDir)
	}
	return NewFFmpegStrategy(p.Exec, p.Cfg.Video, workDir)
}

func (p *Pipeline) fallback() Strategy {
	if p.NewFallback != nil {
		return p.NewFallback()
	}
	return NewDegradedStrategy(p.Cfg.Video, p.Cfg.Timing)
}
