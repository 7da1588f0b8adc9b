package video

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

var white = gocv.NewScalar(255, 255, 255, 0)

// letterbox scales src to fit inside w x h, keeping the aspect ratio, and
// centres it on a white canvas. The caller owns the returned Mat.
func letterbox(src gocv.Mat, w, h int) gocv.Mat {
	canvas := gocv.NewMatWithSizeFromScalar(white, h, w, gocv.MatTypeCV8UC3)

	srcW, srcH := src.Cols(), src.Rows()
	if srcW == 0 || srcH == 0 {
		return canvas
	}
	scale := min(float64(w)/float64(srcW), float64(h)/float64(srcH))
	newW := max(1, int(float64(srcW)*scale))
	newH := max(1, int(float64(srcH)*scale))

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationArea)

	dx := (w - newW) / 2
	dy := (h - newH) / 2
	roi := canvas.Region(image.Rect(dx, dy, dx+newW, dy+newH))
	resized.CopyTo(&roi)
	roi.Close()

	return canvas
}

// normalizeFrame decodes an image, fits it onto a w x h canvas and writes it
// as PNG to outputPath.
func normalizeFrame(data []byte, w, h int, outputPath string) error {
	src, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	defer src.Close()
	if src.Empty() {
		return fmt.Errorf("decode frame: empty image")
	}

	frame := letterbox(src, w, h)
	defer frame.Close()

	if ok := gocv.IMWrite(outputPath, frame); !ok {
		return fmt.Errorf("write frame %s", outputPath)
	}
	return nil
}
