package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"slidecast/common"
)

// Prober measures the playable duration of an encoded media file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFProbe reads the container duration with ffprobe.
type FFProbe struct {
	Exec common.Executor
}

func (p FFProbe) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.Exec.Execute(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	durationStr := strings.TrimSpace(out)
	d, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", durationStr, err)
	}
	return d, nil
}

// Resolver produces one narration track per content unit.
type Resolver struct {
	Synth Synthesizer
	Probe Prober
	Log   common.Logger
}

// NarrationText is what gets spoken for a unit: its summary, or its title
// when the summary is blank.
func NarrationText(u ContentUnit) string {
	if s := strings.TrimSpace(u.Summary); s != "" {
		return s
	}
	return strings.TrimSpace(u.Title)
}

// Resolve synthesizes and measures narration for every unit. A unit whose
// audio cannot be produced or measured gets a silent zero-length track; the
// other units are unaffected. Track i always belongs to unit i.
func (r *Resolver) Resolve(ctx context.Context, units []ContentUnit, enabled bool, workDir string) []NarrationTrack {
	tracks := make([]NarrationTrack, len(units))
	for i := range units {
		tracks[i] = NarrationTrack{UnitIndex: i}
	}
	if !enabled {
		return tracks
	}
	if r.Synth == nil {
		r.Log.Warn(ctx, "Narration enabled but no synthesizer available, all slides silent")
		return tracks
	}

	for i, u := range units {
		path, dur, err := r.resolveOne(ctx, i, u, workDir)
		if err != nil {
			r.Log.Warn(ctx, "Narration for slide %d (%q) unavailable: %v", i+1, u.Title, err)
			continue
		}
		tracks[i].AudioPath = path
		tracks[i].DurationSeconds = dur
		r.Log.Debug(ctx, "Slide %d narration: %.2fs", i+1, dur)
	}
	return tracks
}

func (r *Resolver) resolveOne(ctx context.Context, i int, u ContentUnit, workDir string) (string, float64, error) {
	text := cleanTextForTTS(NarrationText(u))
	if text == "" {
		text = cleanTextForTTS(u.Title)
	}
	if text == "" {
		return "", 0, fmt.Errorf("nothing to say")
	}

	path := filepath.Join(workDir, fmt.Sprintf("narration_%03d.%s", i+1, r.Synth.Extension()))
	if err := r.Synth.Synthesize(ctx, text, path); err != nil {
		return "", 0, fmt.Errorf("synthesize: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("audio file missing: %w", err)
	}
	if info.Size() == 0 {
		return "", 0, fmt.Errorf("audio file is empty")
	}

	dur, err := r.Probe.Duration(ctx, path)
	if err != nil {
		return "", 0, fmt.Errorf("probe duration: %w", err)
	}
	if dur <= 0 {
		return "", 0, fmt.Errorf("non-positive duration %.3f", dur)
	}
	return path, dur, nil
}
