package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"slidecast/common"
)

// DocLayNet YOLO model geometry.
const (
	yoloInputSize = 1024
	yoloChannels  = 15
	yoloAnchors   = 21504
)

// ClassNames for DocLayNet model
var ClassNames = []string{
	"Caption", "Footnote", "Formula", "List-item", "Page-footer",
	"Page-header", "Picture", "Section-header", "Table", "Text", "Title",
}

var (
	ortOnce    sync.Once
	ortInitErr error
)

// initRuntime loads the ONNX Runtime library once per process. The
// environment is shared by every extractor and never torn down.
func initRuntime(libPath string) error {
	ortOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// FigureExtractor finds pictures in a source PDF with a YOLO layout model and
// saves them as PNG crops. The crops join the slide icon pool.
type FigureExtractor struct {
	ConfThreshold float32
	NMSThreshold  float32
	MinBoxSize    int
	session       *ort.DynamicAdvancedSession
}

func NewFigureExtractor(modelPath, libPath string) (*FigureExtractor, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("layout model: %w", err)
	}
	if err := initRuntime(libPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &FigureExtractor{
		ConfThreshold: 0.30,
		NMSThreshold:  0.45,
		MinBoxSize:    30,
		session:       session,
	}, nil
}

func (e *FigureExtractor) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
}

// Extract scans pages in order and returns at most limit figure crops.
func (e *FigureExtractor) Extract(ctx context.Context, pdfPath, outputDir string, limit int) ([]string, error) {
	proc, err := common.NewPDFProcessor(pdfPath)
	if err != nil {
		return nil, err
	}
	defer proc.Close()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for page := 0; page < proc.NumPages && len(paths) < limit; page++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		found, err := e.processPage(proc, page, outputDir)
		if err != nil {
			return paths, fmt.Errorf("page %d: %w", page+1, err)
		}
		paths = append(paths, found...)
	}
	if len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

func (e *FigureExtractor) processPage(proc *common.PDFProcessor, pageNum int, outputDir string) ([]string, error) {
	img, err := proc.ExtractPageImage(pageNum)
	if err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	originalW, originalH := mat.Cols(), mat.Rows()
	inputData, dx, dy, scale := letterboxTensor(mat)

	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, yoloInputSize, yoloInputSize), inputData)
	if err != nil {
		return nil, err
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, yoloChannels, yoloAnchors))
	if err != nil {
		return nil, err
	}
	defer outputTensor.Destroy()

	if err := e.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	boxes, classIDs, confidences := ParseYOLOOutput(outputTensor.GetData(), e.ConfThreshold, dx, dy, scale)
	pictures := e.selectPictures(boxes, classIDs, confidences)
	if len(pictures) == 0 {
		return nil, nil
	}

	hiResBytes, err := proc.Doc.ImagePNG(pageNum, 300)
	if err != nil {
		return nil, err
	}
	hiResImg, err := png.Decode(bytes.NewReader(hiResBytes))
	if err != nil {
		return nil, err
	}
	hiResBounds := hiResImg.Bounds()
	sx := float64(hiResBounds.Dx()) / float64(originalW)
	sy := float64(hiResBounds.Dy()) / float64(originalH)

	var paths []string
	for _, box := range pictures {
		cropRect := image.Rect(
			int(float64(box.Min.X)*sx), int(float64(box.Min.Y)*sy),
			int(float64(box.Max.X)*sx), int(float64(box.Max.Y)*sy),
		)
		fName := filepath.Join(outputDir, fmt.Sprintf("p%d_figure_%d_%d.png", pageNum+1, box.Min.X, box.Min.Y))
		if err := saveImage(fName, cropImage(hiResImg, cropRect)); err == nil {
			paths = append(paths, fName)
		}
	}
	return paths, nil
}

// selectPictures keeps large enough "Picture" detections that survive NMS.
func (e *FigureExtractor) selectPictures(boxes []image.Rectangle, classIDs []int, confidences []float32) []image.Rectangle {
	if len(boxes) == 0 {
		return nil
	}
	var out []image.Rectangle
	for _, idx := range gocv.NMSBoxes(boxes, confidences, e.ConfThreshold, e.NMSThreshold) {
		if ClassNames[classIDs[idx]] != "Picture" {
			continue
		}
		box := boxes[idx]
		if box.Dx() < e.MinBoxSize || box.Dy() < e.MinBoxSize {
			continue
		}
		out = append(out, box)
	}
	return out
}

// letterboxTensor pads the page to a square model input and returns it as
// planar float32 RGB in [0,1], with the offsets and scale used.
func letterboxTensor(mat gocv.Mat) ([]float32, int, int, float64) {
	originalW, originalH := mat.Cols(), mat.Rows()
	scale := float64(yoloInputSize) / float64(max(originalW, originalH))
	newW := int(float64(originalW) * scale)
	newH := int(float64(originalH) * scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear)

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(114, 114, 114, 0), yoloInputSize, yoloInputSize, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	dx := (yoloInputSize - newW) / 2
	dy := (yoloInputSize - newH) / 2
	roi := canvas.Region(image.Rect(dx, dy, dx+newW, dy+newH))
	resized.CopyTo(&roi)
	roi.Close()

	planes := gocv.Split(canvas)
	inputData := make([]float32, 3*yoloInputSize*yoloInputSize)
	for c := 0; c < 3; c++ {
		fMat := gocv.NewMat()
		planes[c].ConvertTo(&fMat, gocv.MatTypeCV32F)
		fMat.MultiplyFloat(1.0 / 255.0)
		if data, err := fMat.DataPtrFloat32(); err == nil {
			copy(inputData[c*yoloInputSize*yoloInputSize:], data)
		}
		fMat.Close()
		planes[c].Close()
	}
	return inputData, dx, dy, scale
}

// ParseYOLOOutput decodes the (1, 15, 21504) output into boxes in original
// page coordinates, keeping anchors whose best class beats confThreshold.
func ParseYOLOOutput(data []float32, confThreshold float32, dx, dy int, scale float64) ([]image.Rectangle, []int, []float32) {
	var boxes []image.Rectangle
	var classIDs []int
	var confidences []float32

	if len(data) < yoloChannels*yoloAnchors {
		return nil, nil, nil
	}

	for j := 0; j < yoloAnchors; j++ {
		maxScore := float32(0.0)
		maxClassID := -1
		for k := 4; k < yoloChannels; k++ {
			score := data[k*yoloAnchors+j]
			if score > maxScore {
				maxScore = score
				maxClassID = k - 4
			}
		}
		if maxScore <= confThreshold {
			continue
		}

		cx := (data[0*yoloAnchors+j] - float32(dx)) / float32(scale)
		cy := (data[1*yoloAnchors+j] - float32(dy)) / float32(scale)
		w := data[2*yoloAnchors+j] / float32(scale)
		h := data[3*yoloAnchors+j] / float32(scale)

		x := max(cx-w/2, 0)
		y := max(cy-h/2, 0)

		boxes = append(boxes, image.Rect(int(x), int(y), int(x+w), int(y+h)))
		classIDs = append(classIDs, maxClassID)
		confidences = append(confidences, maxScore)
	}
	return boxes, classIDs, confidences
}

func cropImage(img image.Image, rect image.Rectangle) image.Image {
	intersect := rect.Intersect(img.Bounds())
	if intersect.Empty() {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(intersect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, intersect.Dx(), intersect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, intersect.Min, draw.Src)
	return dst
}

func saveImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
