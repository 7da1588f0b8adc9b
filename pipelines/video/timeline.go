package video

import (
	"fmt"
	"math"
)

// Clip is one slide on the timeline.
type Clip struct {
	Index     int
	FramePath string
	Plan      SlidePlan
	AudioPath string
}

func (c Clip) Duration() float64 { return c.Plan.ClipDurationSeconds }

// BackgroundSource is a background music file and its measured length.
type BackgroundSource struct {
	Path          string
	NativeSeconds float64
	Volume        float64
}

// BackgroundTrack is a background source looped Copies times and trimmed to
// TrimSeconds, which always equals the timeline duration.
type BackgroundTrack struct {
	Path          string
	NativeSeconds float64
	Copies        int
	TrimSeconds   float64
	Volume        float64
}

// LoopedSeconds is the untrimmed length of all copies laid end to end.
func (b BackgroundTrack) LoopedSeconds() float64 {
	return float64(b.Copies) * b.NativeSeconds
}

// Timeline is the ordered set of clips handed to a composition strategy.
type Timeline struct {
	Clips      []Clip
	Background *BackgroundTrack
	Silent     bool
}

// Duration is the sum of all clip durations.
func (t *Timeline) Duration() float64 {
	total := 0.0
	for _, c := range t.Clips {
		total += c.Duration()
	}
	return total
}

// HasAudio reports whether the encoded video needs an audio stream at all.
func (t *Timeline) HasAudio() bool {
	if t.Silent {
		return false
	}
	if t.Background != nil {
		return true
	}
	for _, c := range t.Clips {
		if c.AudioPath != "" {
			return true
		}
	}
	return false
}

// BuildTimeline zips frames, plans and tracks by index. All three must have
// the same length and refer to the same units in the same order. With
// narration disabled the timeline is silent and background is ignored.
func BuildTimeline(frames []string, plans []SlidePlan, tracks []NarrationTrack, bg *BackgroundSource, narrationEnabled bool) (*Timeline, error) {
	if len(frames) != len(plans) || len(plans) != len(tracks) {
		return nil, fmt.Errorf("timeline inputs misaligned: %d frames, %d plans, %d tracks", len(frames), len(plans), len(tracks))
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("timeline has no slides")
	}

	tl := &Timeline{Silent: !narrationEnabled}
	for i := range frames {
		if plans[i].UnitIndex != i || tracks[i].UnitIndex != i {
			return nil, fmt.Errorf("slide %d misaligned: plan for unit %d, track for unit %d", i, plans[i].UnitIndex, tracks[i].UnitIndex)
		}
		clip := Clip{Index: i, FramePath: frames[i], Plan: plans[i]}
		if narrationEnabled && tracks[i].HasAudio() {
			clip.AudioPath = tracks[i].AudioPath
		}
		tl.Clips = append(tl.Clips, clip)
	}

	if narrationEnabled && bg != nil {
		tl.Background = LoopBackground(*bg, tl.Duration())
	}
	return tl, nil
}

// LoopBackground repeats the source whole until it covers total seconds and
// trims it to exactly total. It returns nil for an unusable source.
func LoopBackground(src BackgroundSource, total float64) *BackgroundTrack {
	if src.Path == "" || src.NativeSeconds <= 0 || total <= 0 {
		return nil
	}
	copies := int(math.Ceil(total / src.NativeSeconds))
	if copies < 1 {
		copies = 1
	}
	for float64(copies)*src.NativeSeconds < total {
		copies++
	}
	return &BackgroundTrack{
		Path:          src.Path,
		NativeSeconds: src.NativeSeconds,
		Copies:        copies,
		TrimSeconds:   total,
		Volume:        src.Volume,
	}
}
