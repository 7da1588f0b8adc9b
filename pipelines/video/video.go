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

const narrationSampleRate = "44100"

// FFmpegStrategy is the full-featured renderer: per-slide fades, narration,
// and looped background music mixed under the narration.
type FFmpegStrategy struct {
	Exec    common.Executor
	Video   common.VideoConfig
	WorkDir string
}

func NewFFmpegStrategy(exec common.Executor, cfg common.VideoConfig, workDir string) *FFmpegStrategy {
	return &FFmpegStrategy{Exec: exec, Video: cfg, WorkDir: workDir}
}

func (v *FFmpegStrategy) Name() string { return "ffmpeg" }

func (v *FFmpegStrategy) Compose(ctx context.Context, tl *Timeline, outputPath string) error {
	segDir := filepath.Join(v.WorkDir, "segments")
	if err := os.MkdirAll(segDir, 0755); err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}

	withAudio := tl.HasAudio()
	var segments []string
	for _, clip := range tl.Clips {
		segPath := filepath.Join(segDir, fmt.Sprintf("clip_%03d.mp4", clip.Index+1))
		if _, err := v.Exec.Execute(ctx, "ffmpeg", v.ClipArgs(clip, withAudio, segPath)...); err != nil {
			return fmt.Errorf("encode clip %d: %w", clip.Index+1, err)
		}
		segments = append(segments, segPath)
	}

	concatTarget := outputPath
	if tl.Background != nil {
		concatTarget = filepath.Join(v.WorkDir, "narrated.mp4")
	}
	if err := v.ConcatSegments(ctx, segments, concatTarget); err != nil {
		return err
	}

	if tl.Background == nil {
		return nil
	}
	if _, err := v.Exec.Execute(ctx, "ffmpeg", v.MixArgs(concatTarget, *tl.Background, outputPath)...); err != nil {
		return fmt.Errorf("mix background: %w", err)
	}
	return nil
}

// ClipArgs builds the ffmpeg arguments for one still-image clip of exactly
// the planned duration, faded in and out.
func (v *FFmpegStrategy) ClipArgs(clip Clip, withAudio bool, outputPath string) []string {
	dur := seconds(clip.Plan.ClipDurationSeconds)
	fps := strconv.Itoa(v.Video.FPS)

	args := []string{"-y", "-loop", "1", "-framerate", fps, "-t", dur, "-i", clip.FramePath}
	if withAudio {
		if clip.AudioPath != "" {
			args = append(args, "-i", clip.AudioPath)
		} else {
			args = append(args, "-f", "lavfi", "-t", dur, "-i", "anullsrc=r="+narrationSampleRate+":cl=mono")
		}
	}

	args = append(args,
		"-vf", v.videoFilter(clip.Plan),
		"-c:v", v.Video.Codec,
		"-preset", v.Video.Preset,
		"-r", fps,
		"-pix_fmt", "yuv420p",
	)
	if withAudio {
		if clip.AudioPath != "" {
			args = append(args, "-af", "apad")
		}
		args = append(args, "-c:a", v.Video.AudioCodec, "-ar", narrationSampleRate, "-ac", "1")
	} else {
		args = append(args, "-an")
	}
	return append(args, "-t", dur, outputPath)
}

func (v *FFmpegStrategy) videoFilter(plan SlidePlan) string {
	w, h := v.Video.Width, v.Video.Height
	fade := seconds(plan.FadeSeconds)
	fadeOutStart := seconds(plan.ClipDurationSeconds - plan.FadeSeconds)
	return strings.Join([]string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=white", w, h),
		"fade=t=in:st=0:d=" + fade,
		"fade=t=out:st=" + fadeOutStart + ":d=" + fade,
		"format=yuv420p",
	}, ",")
}

// MixArgs loops the background Copies times, trims it to the timeline
// length, attenuates it and mixes it under the narration.
func (v *FFmpegStrategy) MixArgs(narrated string, bg BackgroundTrack, outputPath string) []string {
	total := seconds(bg.TrimSeconds)
	filter := fmt.Sprintf(
		"[1:a]atrim=0:%s,asetpts=PTS-STARTPTS,volume=%s[bg];[0:a][bg]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
		total, strconv.FormatFloat(bg.Volume, 'f', -1, 64),
	)
	return []string{
		"-y",
		"-i", narrated,
		"-stream_loop", strconv.Itoa(bg.Copies - 1), "-i", bg.Path,
		"-filter_complex", filter,
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy",
		"-c:a", v.Video.AudioCodec,
		"-t", total,
		outputPath,
	}
}

// ConcatSegments joins clips in order with the concat demuxer.
func (v *FFmpegStrategy) ConcatSegments(ctx context.Context, segments []string, outputPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments to concat")
	}

	listPath := filepath.Join(v.WorkDir, "concat_list.txt")
	if err := writeConcatList(listPath, segments); err != nil {
		return err
	}

	_, err := v.Exec.Execute(ctx, "ffmpeg",
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy",
		outputPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w", err)
	}
	return nil
}

func writeConcatList(listPath string, files []string) error {
	var sb strings.Builder
	for _, f := range files {
		absPath, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		sb.WriteString("file '" + strings.ReplaceAll(absPath, "'", `'\''`) + "'\n")
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func seconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
