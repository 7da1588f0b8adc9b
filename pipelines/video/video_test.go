package video

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast/common"
)

func testStrategy(exec common.Executor, dir string) *FFmpegStrategy {
	return NewFFmpegStrategy(exec, common.Default().Video, dir)
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestClipArgsWithNarration(t *testing.T) {
	v := testStrategy(&fakeExecutor{}, t.TempDir())
	clip := Clip{Index: 0, FramePath: "f1.png", AudioPath: "n1.wav", Plan: SlidePlan{ClipDurationSeconds: 3.2, FadeSeconds: 0.384}}

	args := v.ClipArgs(clip, true, "out.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-loop 1 -framerate 24 -t 3.200 -i f1.png")
	assert.Contains(t, joined, "-i n1.wav")
	assert.Contains(t, joined, "-af apad")
	assert.Contains(t, joined, "-c:a aac -ar 44100 -ac 1")
	assert.NotContains(t, joined, "anullsrc")

	vf := argAfter(args, "-vf")
	assert.Contains(t, vf, "scale=1280:720:force_original_aspect_ratio=decrease")
	assert.Contains(t, vf, "pad=1280:720:(ow-iw)/2:(oh-ih)/2:color=white")
	assert.Contains(t, vf, "fade=t=in:st=0:d=0.384")
	assert.Contains(t, vf, "fade=t=out:st=2.816:d=0.384")

	assert.Equal(t, []string{"-t", "3.200", "out.mp4"}, args[len(args)-3:])
}

func TestClipArgsSilentClipInNarratedVideo(t *testing.T) {
	v := testStrategy(&fakeExecutor{}, t.TempDir())
	clip := Clip{Index: 1, FramePath: "f2.png", Plan: SlidePlan{ClipDurationSeconds: 1.5, FadeSeconds: 0.18}}

	joined := strings.Join(v.ClipArgs(clip, true, "out.mp4"), " ")
	assert.Contains(t, joined, "-f lavfi -t 1.500 -i anullsrc=r=44100:cl=mono")
	assert.NotContains(t, joined, "apad")
	assert.Contains(t, joined, "-c:a aac")
}

func TestClipArgsSilentVideo(t *testing.T) {
	v := testStrategy(&fakeExecutor{}, t.TempDir())
	clip := Clip{Index: 0, FramePath: "f1.png", Plan: SlidePlan{ClipDurationSeconds: 5, FadeSeconds: 0.6}}

	args := v.ClipArgs(clip, false, "out.mp4")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-an")
	assert.NotContains(t, joined, "-c:a")
	assert.NotContains(t, joined, "anullsrc")
	assert.Equal(t, 1, strings.Count(joined, " -i "))
}

func TestMixArgs(t *testing.T) {
	v := testStrategy(&fakeExecutor{}, t.TempDir())
	bg := BackgroundTrack{Path: "bg.mp3", NativeSeconds: 5, Copies: 3, TrimSeconds: 12.2, Volume: 0.05}

	args := v.MixArgs("narrated.mp4", bg, "video.mp4")
	assert.Equal(t, "2", argAfter(args, "-stream_loop"))
	assert.Equal(t, "12.200", argAfter(args, "-t"))
	assert.Equal(t, "video.mp4", args[len(args)-1])

	filter := argAfter(args, "-filter_complex")
	assert.Contains(t, filter, "atrim=0:12.200")
	assert.Contains(t, filter, "volume=0.05")
	assert.Contains(t, filter, "amix=inputs=2:duration=first")
}

func TestFFmpegComposeWithBackground(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{touch: true}
	v := testStrategy(exec, dir)

	tl, err := BuildTimeline(
		[]string{"f1.png", "f2.png"},
		[]SlidePlan{planFor(0, 3), planFor(1, 4)},
		[]NarrationTrack{{UnitIndex: 0, AudioPath: "a1.wav", DurationSeconds: 3}, {UnitIndex: 1}},
		&BackgroundSource{Path: "bg.mp3", NativeSeconds: 5, Volume: 0.05},
		true,
	)
	require.NoError(t, err)

	out := filepath.Join(dir, "video.mp4")
	require.NoError(t, v.Compose(context.Background(), tl, out))

	calls := exec.named("ffmpeg")
	require.Len(t, calls, 4) // two clips, concat, mix
	assert.True(t, strings.HasSuffix(calls[0].Args[len(calls[0].Args)-1], "clip_001.mp4"))
	assert.True(t, strings.HasSuffix(calls[1].Args[len(calls[1].Args)-1], "clip_002.mp4"))
	assert.Equal(t, filepath.Join(dir, "narrated.mp4"), calls[2].Args[len(calls[2].Args)-1])
	assert.Equal(t, out, calls[3].Args[len(calls[3].Args)-1])

	list, err := os.ReadFile(filepath.Join(dir, "concat_list.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(list)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "clip_001.mp4")
	assert.Contains(t, lines[1], "clip_002.mp4")
}

func TestFFmpegComposeWithoutBackground(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{touch: true}
	v := testStrategy(exec, dir)
	out := filepath.Join(dir, "video.mp4")

	tl := &Timeline{Silent: true, Clips: []Clip{{Index: 0, FramePath: "f1.png", Plan: planFor(0, 5)}}}
	require.NoError(t, v.Compose(context.Background(), tl, out))

	calls := exec.named("ffmpeg")
	require.Len(t, calls, 2)
	assert.Equal(t, out, calls[1].Args[len(calls[1].Args)-1])
}

func TestFFmpegComposeStopsOnClipFailure(t *testing.T) {
	exec := &fakeExecutor{hook: func(name string, args []string) error {
		return errors.New("boom")
	}}
	v := testStrategy(exec, t.TempDir())

	err := v.Compose(context.Background(), oneClipTimeline(), "video.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode clip 1")
	assert.Len(t, exec.calls, 1)
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	require.NoError(t, writeConcatList(list, []string{filepath.Join(dir, "it's.mp4")}))

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Contains(t, string(data), `it'\''s.mp4'`)
}
