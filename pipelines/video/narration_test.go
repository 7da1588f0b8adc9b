package video

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast/common"
)

var threeUnits = []ContentUnit{
	{Title: "Intro", Summary: "We start here."},
	{Title: "Middle", Summary: "This one breaks."},
	{Title: "End", Summary: "We finish here."},
}

func TestResolveIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	synth := &fakeSynth{failOn: "breaks"}
	prober := &fakeProber{byName: map[string]float64{
		"narration_001.wav": 3.2,
		"narration_003.wav": 7.5,
	}}
	r := &Resolver{Synth: synth, Probe: prober, Log: common.NopLogger()}

	tracks := r.Resolve(context.Background(), threeUnits, true, dir)
	require.Len(t, tracks, 3)

	assert.Equal(t, NarrationTrack{UnitIndex: 0, AudioPath: filepath.Join(dir, "narration_001.wav"), DurationSeconds: 3.2}, tracks[0])
	assert.Equal(t, NarrationTrack{UnitIndex: 1}, tracks[1])
	assert.Equal(t, NarrationTrack{UnitIndex: 2, AudioPath: filepath.Join(dir, "narration_003.wav"), DurationSeconds: 7.5}, tracks[2])
	assert.Equal(t, []string{"We start here.", "This one breaks.", "We finish here."}, synth.texts)

	plans := PlanSlides(tracks, true, defaultTiming())
	assert.InDelta(t, 3.2, plans[0].ClipDurationSeconds, 1e-9)
	assert.InDelta(t, 1.5, plans[1].ClipDurationSeconds, 1e-9)
	assert.InDelta(t, 7.5, plans[2].ClipDurationSeconds, 1e-9)
}

func TestResolveDisabledSkipsSynthesis(t *testing.T) {
	synth := &fakeSynth{}
	r := &Resolver{Synth: synth, Probe: &fakeProber{fallback: 4}, Log: common.NopLogger()}

	tracks := r.Resolve(context.Background(), threeUnits, false, t.TempDir())
	require.Len(t, tracks, 3)
	for i, tr := range tracks {
		assert.Equal(t, i, tr.UnitIndex)
		assert.False(t, tr.HasAudio())
	}
	assert.Empty(t, synth.texts)
}

func TestResolveWithoutSynthesizer(t *testing.T) {
	r := &Resolver{Probe: &fakeProber{fallback: 4}, Log: common.NopLogger()}

	tracks := r.Resolve(context.Background(), threeUnits, true, t.TempDir())
	require.Len(t, tracks, 3)
	for _, tr := range tracks {
		assert.Zero(t, tr.DurationSeconds)
	}
}

func TestResolveBadAudio(t *testing.T) {
	tests := []struct {
		name   string
		synth  *fakeSynth
		prober *fakeProber
	}{
		{name: "empty file", synth: &fakeSynth{empty: true}, prober: &fakeProber{fallback: 2}},
		{name: "probe error", synth: &fakeSynth{}, prober: &fakeProber{err: errors.New("ffprobe missing")}},
		{name: "zero duration", synth: &fakeSynth{}, prober: &fakeProber{fallback: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{Synth: tt.synth, Probe: tt.prober, Log: common.NopLogger()}
			tracks := r.Resolve(context.Background(), threeUnits[:1], true, t.TempDir())
			require.Len(t, tracks, 1)
			assert.Equal(t, NarrationTrack{UnitIndex: 0}, tracks[0])
		})
	}
}

func TestNarrationText(t *testing.T) {
	assert.Equal(t, "Body.", NarrationText(ContentUnit{Title: "T", Summary: " Body. "}))
	assert.Equal(t, "Title", NarrationText(ContentUnit{Title: "Title", Summary: "  "}))
}

func TestFFProbeDuration(t *testing.T) {
	exec := &fakeExecutor{stdout: "12.345000\n"}
	d, err := FFProbe{Exec: exec}.Duration(context.Background(), "a.wav")
	require.NoError(t, err)
	assert.InDelta(t, 12.345, d, 1e-9)

	calls := exec.named("ffprobe")
	require.Len(t, calls, 1)
	assert.Equal(t, "a.wav", calls[0].Args[len(calls[0].Args)-1])

	_, err = FFProbe{Exec: &fakeExecutor{stdout: "N/A"}}.Duration(context.Background(), "a.wav")
	assert.Error(t, err)
}

func TestResolveNonLatinSummary(t *testing.T) {
	synth := &fakeSynth{}
	r := &Resolver{Synth: synth, Probe: &fakeProber{fallback: 2.4}, Log: common.NopLogger()}

	units := []ContentUnit{{Title: "परिचय", Summary: "यह एक परीक्षण है।"}}
	tracks := r.Resolve(context.Background(), units, true, t.TempDir())
	require.Len(t, tracks, 1)
	assert.InDelta(t, 2.4, tracks[0].DurationSeconds, 1e-9)
	assert.Equal(t, []string{"यह एक परीक्षण है।"}, synth.texts)
}
