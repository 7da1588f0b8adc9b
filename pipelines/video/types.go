package video

// ContentUnit is one title and summary pair, rendered as one slide.
type ContentUnit struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// NarrationTrack is the synthesized audio for the unit at UnitIndex. An empty
// AudioPath with zero duration means narration was disabled or failed.
type NarrationTrack struct {
	UnitIndex       int     `json:"unit_index"`
	AudioPath       string  `json:"audio_path,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (t NarrationTrack) HasAudio() bool {
	return t.AudioPath != "" && t.DurationSeconds > 0
}

// SlidePlan is the computed on-screen timing of one unit.
type SlidePlan struct {
	UnitIndex           int     `json:"unit_index"`
	ClipDurationSeconds float64 `json:"clip_duration_seconds"`
	FadeSeconds         float64 `json:"fade_seconds"`
}

// RunRequest describes one document-to-video run.
type RunRequest struct {
	ID          string
	InputPath   string
	OutputDir   string
	SlidesCount int
	Narration   bool
}

// RunResult lists everything a run produced.
type RunResult struct {
	DeckPath    string
	VideoPath   string
	HandoutPath string
	Units       []ContentUnit
	Tracks      []NarrationTrack
	Plans       []SlidePlan
	Strategy    string
	Degraded    bool
	Published   map[string]string
}
