package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast/common"
)

const sampleDocument = `1. Introduction
We study slide generation. Extra words.

2. Approach
Each section becomes one slide.

3. Results
Narration drives the timing.
`

type stubExtractor struct {
	pages []string
	err   error
}

func (s stubExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	return s.pages, s.err
}

type stubDeck struct{ built int }

func (d *stubDeck) Extension() string { return "pdf" }

func (d *stubDeck) Build(ctx context.Context, units []ContentUnit, icons []string, outputPath string) error {
	d.built = len(units)
	return os.WriteFile(outputPath, []byte("%PDF"), 0644)
}

type stubRaster struct{}

func (stubRaster) Render(ctx context.Context, deckPath string, units []ContentUnit, icons []string, workDir string) ([]string, error) {
	var frames []string
	for i := range units {
		p := filepath.Join(workDir, fmt.Sprintf("slide_%03d.png", i+1))
		if err := os.WriteFile(p, []byte("png"), 0644); err != nil {
			return nil, err
		}
		frames = append(frames, p)
	}
	return frames, nil
}

type recordingSink struct {
	runIDs    []string
	published []string
}

func (s *recordingSink) Publish(ctx context.Context, runID, localPath string) (string, error) {
	s.runIDs = append(s.runIDs, runID)
	s.published = append(s.published, filepath.Base(localPath))
	return "mem://" + runID + "/" + filepath.Base(localPath), nil
}

type testPipeline struct {
	*Pipeline
	deck     *stubDeck
	synth    *fakeSynth
	primary  *fakeStrategy
	fallback *fakeStrategy
	sink     *recordingSink
	progress *bytes.Buffer
	temp     string
}

func newTestPipeline(t *testing.T) *testPipeline {
	cfg := common.Default()
	cfg.Paths.Temp = t.TempDir()
	cfg.Paths.Icons = ""
	cfg.Paths.Background = ""

	tp := &testPipeline{
		deck:     &stubDeck{},
		synth:    &fakeSynth{},
		primary:  &fakeStrategy{name: "ffmpeg", writeOutput: true},
		fallback: &fakeStrategy{name: "degraded", writeOutput: true},
		sink:     &recordingSink{},
		progress: &bytes.Buffer{},
		temp:     cfg.Paths.Temp,
	}
	p := New(cfg, &fakeExecutor{}, common.NopLogger(), tp.sink, tp.progress)
	p.Extractor = stubExtractor{pages: []string{sampleDocument}}
	p.Deck = tp.deck
	p.Raster = stubRaster{}
	p.Prober = &fakeProber{fallback: 4}
	p.NewSynth = func(ctx context.Context) (Synthesizer, error) { return tp.synth, nil }
	p.NewPrimary = func(string) Strategy { return tp.primary }
	p.NewFallback = func() Strategy { return tp.fallback }
	tp.Pipeline = p
	return tp
}

func writeInput(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "paper.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0644))
	return path
}

func TestPipelineRun(t *testing.T) {
	tp := newTestPipeline(t)
	out := t.TempDir()

	res, err := tp.Run(context.Background(), RunRequest{ID: "run-1", InputPath: writeInput(t), OutputDir: out, Narration: true})
	require.NoError(t, err)

	require.Len(t, res.Units, 3)
	assert.Equal(t, "Introduction", res.Units[0].Title)
	assert.Equal(t, "We study slide generation.", res.Units[0].Summary)
	assert.Equal(t, 3, tp.deck.built)

	assert.Equal(t, filepath.Join(out, "slides.pdf"), res.DeckPath)
	assert.Equal(t, filepath.Join(out, "video.mp4"), res.VideoPath)
	assert.FileExists(t, res.VideoPath)
	assert.Equal(t, "ffmpeg", res.Strategy)
	assert.False(t, res.Degraded)

	for _, p := range res.Plans {
		assert.InDelta(t, 4.0, p.ClipDurationSeconds, 1e-9)
	}
	assert.True(t, tp.synth.closed)

	assert.Equal(t, []string{"slides.pdf", "video.mp4"}, tp.sink.published)
	assert.Equal(t, "mem://run-1/video.mp4", res.Published["video.mp4"])

	assert.Contains(t, tp.progress.String(), "1) Extracting text...")
	assert.Contains(t, tp.progress.String(), "Done. Outputs:")

	// the scoped work dir is gone after the run
	leftovers, err := filepath.Glob(filepath.Join(tp.temp, "run-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPipelineRunDegraded(t *testing.T) {
	tp := newTestPipeline(t)
	tp.primary.err = errors.New("ffmpeg not found")

	res, err := tp.Run(context.Background(), RunRequest{InputPath: writeInput(t), OutputDir: t.TempDir(), Narration: true})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "degraded", res.Strategy)
	assert.Equal(t, 1, tp.fallback.calls)
	assert.FileExists(t, res.VideoPath)
	assert.Contains(t, tp.progress.String(), "simplified video")
}

func TestPipelineRunNarrationDisabled(t *testing.T) {
	tp := newTestPipeline(t)

	res, err := tp.Run(context.Background(), RunRequest{InputPath: writeInput(t), OutputDir: t.TempDir(), Narration: false})
	require.NoError(t, err)
	assert.Empty(t, tp.synth.texts)
	for _, p := range res.Plans {
		assert.InDelta(t, 5.0, p.ClipDurationSeconds, 1e-9)
	}
	for _, tr := range res.Tracks {
		assert.False(t, tr.HasAudio())
	}
}

func TestPipelineRunEngineUnavailable(t *testing.T) {
	tp := newTestPipeline(t)
	tp.NewSynth = func(ctx context.Context) (Synthesizer, error) { return nil, errors.New("no key") }

	res, err := tp.Run(context.Background(), RunRequest{InputPath: writeInput(t), OutputDir: t.TempDir(), Narration: true})
	require.NoError(t, err)
	for _, p := range res.Plans {
		assert.InDelta(t, 1.5, p.ClipDurationSeconds, 1e-9)
	}
}

func TestPipelineRunSlidesCount(t *testing.T) {
	tp := newTestPipeline(t)

	res, err := tp.Run(context.Background(), RunRequest{InputPath: writeInput(t), OutputDir: t.TempDir(), SlidesCount: 2})
	require.NoError(t, err)
	assert.Len(t, res.Units, 2)
	assert.Len(t, res.Plans, 2)
}

func TestPipelineRunHandout(t *testing.T) {
	tp := newTestPipeline(t)
	tp.Cfg.Slides.Handout = true
	out := t.TempDir()

	res, err := tp.Run(context.Background(), RunRequest{InputPath: writeInput(t), OutputDir: out, Narration: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "handout.docx"), res.HandoutPath)
	assert.FileExists(t, res.HandoutPath)
	assert.Contains(t, tp.sink.published, "handout.docx")
}

func TestPipelineRunBackground(t *testing.T) {
	tp := newTestPipeline(t)
	bg := filepath.Join(t.TempDir(), "bg.mp3")
	require.NoError(t, os.WriteFile(bg, []byte("mp3"), 0644))
	tp.Cfg.Paths.Background = bg

	var seen *Timeline
	tp.NewPrimary = func(string) Strategy {
		return strategyFunc(func(tl *Timeline, out string) error {
			seen = tl
			return os.WriteFile(out, []byte("v"), 0644)
		})
	}

	_, err := tp.Run(context.Background(), RunRequest{InputPath: writeInput(t), OutputDir: t.TempDir(), Narration: true})
	require.NoError(t, err)
	require.NotNil(t, seen)
	require.NotNil(t, seen.Background)
	assert.Equal(t, 3, seen.Background.Copies) // 12s of slides over a 4s loop
	assert.InDelta(t, 12.0, seen.Background.TrimSeconds, 1e-9)
}

func TestPipelineRunFailures(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		tp := newTestPipeline(t)
		_, err := tp.Run(context.Background(), RunRequest{InputPath: "/does/not/exist.pdf", OutputDir: t.TempDir()})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("extraction error", func(t *testing.T) {
		tp := newTestPipeline(t)
		tp.Extractor = stubExtractor{err: errors.New("corrupt")}
		_, err := tp.Run(context.Background(), RunRequest{InputPath: writeInput(t), OutputDir: t.TempDir()})
		assert.ErrorContains(t, err, "text extraction failed")
	})

	t.Run("both strategies fail", func(t *testing.T) {
		tp := newTestPipeline(t)
		tp.primary.err = errors.New("encoder")
		tp.fallback.err = errors.New("writer")
		_, err := tp.Run(context.Background(), RunRequest{InputPath: writeInput(t), OutputDir: t.TempDir()})
		assert.ErrorContains(t, err, "video creation failed")
	})
}

type strategyFunc func(tl *Timeline, out string) error

func (f strategyFunc) Name() string { return "func" }

func (f strategyFunc) Compose(ctx context.Context, tl *Timeline, out string) error {
	return f(tl, out)
}
