package video

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"slidecast/common"
)

// Layout of a drawn slide on the 1280x720 reference canvas.
const (
	titleWrap     = 30
	summaryWrap   = 60
	titleLineStep = 60
	noteLineStep  = 42
	iconSize      = 120
	iconMargin    = 40
)

var (
	titleColor = color.RGBA{0, 0, 0, 255}
	noteColor  = color.RGBA{60, 60, 60, 255}
)

// CanvasRasterizer draws each unit directly: title at the top, summary
// below it and the icon in the bottom-right corner. It does not read the
// deck file, so it works for formats MuPDF cannot open.
type CanvasRasterizer struct {
	Width  int
	Height int
}

func (r *CanvasRasterizer) Render(ctx context.Context, deckPath string, units []ContentUnit, icons []string, workDir string) ([]string, error) {
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, err
	}

	var frames []string
	for i, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		icon := ""
		if i < len(icons) {
			icon = icons[i]
		}

		framePath := filepath.Join(framesDir, fmt.Sprintf("slide_%03d.png", i+1))
		if err := r.drawSlide(u, icon, framePath); err != nil {
			return nil, fmt.Errorf("draw slide %d: %w", i+1, err)
		}
		frames = append(frames, framePath)
	}
	return frames, nil
}

func (r *CanvasRasterizer) drawSlide(u ContentUnit, iconPath, outputPath string) error {
	canvas := gocv.NewMatWithSizeFromScalar(white, r.Height, r.Width, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	y := 60 + 45
	for _, line := range common.Wrap(u.Title, titleWrap) {
		gocv.PutText(&canvas, line, image.Pt(60, y), gocv.FontHersheyDuplex, 1.6, titleColor, 3)
		y += titleLineStep
	}

	y = max(200, y+20) + 30
	for _, line := range common.Wrap(u.Summary, summaryWrap) {
		gocv.PutText(&canvas, line, image.Pt(60, y), gocv.FontHersheySimplex, 0.95, noteColor, 2)
		y += noteLineStep
	}

	if iconPath != "" {
		// A broken icon only costs the decoration.
		_ = pasteIcon(&canvas, iconPath, r.Width-iconSize-iconMargin, r.Height-iconSize-iconMargin)
	}

	if ok := gocv.IMWrite(outputPath, canvas); !ok {
		return fmt.Errorf("write frame %s", outputPath)
	}
	return nil
}

// pasteIcon scales the icon to iconSize and copies it at (x, y), using its
// alpha channel as a mask when it has one.
func pasteIcon(canvas *gocv.Mat, path string, x, y int) error {
	icon := gocv.IMRead(path, gocv.IMReadUnchanged)
	defer icon.Close()
	if icon.Empty() {
		return fmt.Errorf("cannot read icon %s", path)
	}
	if x < 0 || y < 0 || x+iconSize > canvas.Cols() || y+iconSize > canvas.Rows() {
		return fmt.Errorf("canvas too small for icon")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(icon, &resized, image.Pt(iconSize, iconSize), 0, 0, gocv.InterpolationArea)

	roi := canvas.Region(image.Rect(x, y, x+iconSize, y+iconSize))
	defer roi.Close()

	switch resized.Channels() {
	case 4:
		ch := gocv.Split(resized)
		for _, c := range ch {
			defer c.Close()
		}
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.Merge(ch[:3], &bgr)
		bgr.CopyToWithMask(&roi, ch[3])
	case 1:
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(resized, &bgr, gocv.ColorGrayToBGR)
		bgr.CopyTo(&roi)
	default:
		resized.CopyTo(&roi)
	}
	return nil
}
