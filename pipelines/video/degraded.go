package video

import (
	"context"
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"slidecast/common"
)

// DegradedStrategy writes every frame for a fixed duration with OpenCV. No
// fades, no audio and no ffmpeg, so it still works when the encoder or an
// audio file is the thing that broke.
type DegradedStrategy struct {
	Width    int
	Height   int
	FPS      int
	Duration float64
}

func NewDegradedStrategy(v common.VideoConfig, t common.TimingConfig) *DegradedStrategy {
	return &DegradedStrategy{Width: v.Width, Height: v.Height, FPS: v.FPS, Duration: t.FallbackDuration}
}

func (d *DegradedStrategy) Name() string { return "degraded" }

// FramesPerClip is how many times each slide image is written.
func (d *DegradedStrategy) FramesPerClip() int {
	return max(1, int(math.Round(d.Duration*float64(d.FPS))))
}

func (d *DegradedStrategy) Compose(ctx context.Context, tl *Timeline, outputPath string) error {
	writer, err := gocv.VideoWriterFile(outputPath, "mp4v", float64(d.FPS), d.Width, d.Height, true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	defer writer.Close()
	if !writer.IsOpened() {
		return fmt.Errorf("video writer for %s did not open", outputPath)
	}

	n := d.FramesPerClip()
	for _, clip := range tl.Clips {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.writeClip(writer, clip.FramePath, n); err != nil {
			return fmt.Errorf("slide %d: %w", clip.Index+1, err)
		}
	}
	return nil
}

func (d *DegradedStrategy) writeClip(writer *gocv.VideoWriter, framePath string, n int) error {
	img := gocv.IMRead(framePath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("cannot read frame %s", framePath)
	}

	frame := letterbox(img, d.Width, d.Height)
	defer frame.Close()

	for i := 0; i < n; i++ {
		if err := writer.Write(frame); err != nil {
			return err
		}
	}
	return nil
}
