package video

import (
	"context"
	"errors"
	"fmt"
	"os"

	"slidecast/common"
)

// Strategy renders a timeline into a video file.
type Strategy interface {
	Name() string
	Compose(ctx context.Context, tl *Timeline, outputPath string) error
}

// Outcome reports which strategy produced the video.
type Outcome struct {
	Strategy   string
	Degraded   bool
	PrimaryErr error
}

// Composer tries the full-featured strategy first and, if it fails, renders
// the degraded one so that a video is still produced.
type Composer struct {
	Primary  Strategy
	Fallback Strategy
	Log      common.Logger
}

func (c *Composer) Compose(ctx context.Context, tl *Timeline, outputPath string) (Outcome, error) {
	if tl == nil || len(tl.Clips) == 0 {
		return Outcome{}, fmt.Errorf("nothing to compose")
	}

	primaryErr := c.Primary.Compose(ctx, tl, outputPath)
	if primaryErr == nil {
		return Outcome{Strategy: c.Primary.Name()}, nil
	}
	if c.Fallback == nil {
		return Outcome{}, fmt.Errorf("%s composition failed: %w", c.Primary.Name(), primaryErr)
	}

	c.Log.Warn(ctx, "%s composition failed, falling back to %s: %v", c.Primary.Name(), c.Fallback.Name(), primaryErr)
	if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.Log.Warn(ctx, "Could not remove partial output %s: %v", outputPath, err)
	}

	if err := c.Fallback.Compose(ctx, tl, outputPath); err != nil {
		return Outcome{}, fmt.Errorf("composition failed (%s: %v; %s: %w)", c.Primary.Name(), primaryErr, c.Fallback.Name(), err)
	}
	return Outcome{Strategy: c.Fallback.Name(), Degraded: true, PrimaryErr: primaryErr}, nil
}
