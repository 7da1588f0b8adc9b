package video

import (
	"math"

	"slidecast/common"
)

// PlanSlide computes the clip length and fade for one narration track. With
// narration enabled the clip lasts as long as the audio, but never less than
// MinDuration, so a failed unit still gets the floor. With narration disabled
// every clip lasts FallbackDuration.
func PlanSlide(track NarrationTrack, narrationEnabled bool, cfg common.TimingConfig) SlidePlan {
	clip := cfg.FallbackDuration
	if narrationEnabled {
		clip = math.Max(cfg.MinDuration, track.DurationSeconds)
	}

	fade := clamp(clip*cfg.FadeRatio, cfg.FadeMin, cfg.FadeMax)
	// fade in and fade out must not meet
	fade = math.Min(fade, clip/2-cfg.FadeEpsilon)

	return SlidePlan{
		UnitIndex:           track.UnitIndex,
		ClipDurationSeconds: clip,
		FadeSeconds:         fade,
	}
}

// PlanSlides plans every track, preserving order.
func PlanSlides(tracks []NarrationTrack, narrationEnabled bool, cfg common.TimingConfig) []SlidePlan {
	plans := make([]SlidePlan, len(tracks))
	for i, t := range tracks {
		plans[i] = PlanSlide(t, narrationEnabled, cfg)
	}
	return plans
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
