package video

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"slidecast/common"
)

func TestGenerateLatex(t *testing.T) {
	units := []ContentUnit{
		{Title: "Costs & Benefits", Summary: "Saves 50% of time."},
		{Title: "Plain", Summary: "No icon here."},
	}
	tex := generateLatex(units, []string{"/icons/a.png", ""})

	assert.Equal(t, 2, strings.Count(tex, `\begin{frame}`))
	assert.Contains(t, tex, `\begin{frame}{Costs \& Benefits}`)
	assert.Contains(t, tex, `Saves 50\% of time.`)
	assert.Equal(t, 1, strings.Count(tex, `\includegraphics`))
	assert.Contains(t, tex, "{/icons/a.png}")
	assert.True(t, strings.HasSuffix(tex, "\\end{document}\n"))
}

func TestGenerateLatexSkipsUnsafeIconPath(t *testing.T) {
	units := []ContentUnit{{Title: "A", Summary: "B."}, {Title: "C", Summary: "D."}}
	tex := generateLatex(units, []string{"/icons/100%#1.png", "icon_002.png"})

	assert.Equal(t, 1, strings.Count(tex, `\includegraphics`))
	assert.Contains(t, tex, "{icon_002.png}")
	assert.NotContains(t, tex, "100%#1")
}

func TestLatexDeckBuildStagesIcons(t *testing.T) {
	work := t.TempDir()
	iconDir := filepath.Join(t.TempDir(), "my #1 icons 100%")
	require.NoError(t, os.MkdirAll(iconDir, 0755))
	icon := filepath.Join(iconDir, "Logo.PNG")
	require.NoError(t, os.WriteFile(icon, []byte("png"), 0644))

	exec := &fakeExecutor{}
	exec.hook = func(name string, args []string) error {
		return os.WriteFile(filepath.Join(work, "latex", "slides.pdf"), []byte("%PDF-1.5"), 0644)
	}
	deck := &LatexDeck{Exec: exec, WorkDir: work}
	units := []ContentUnit{{Title: "A", Summary: "B."}, {Title: "C", Summary: "D."}}
	icons := []string{icon, filepath.Join(iconDir, "missing.png")}

	require.NoError(t, deck.Build(context.Background(), units, icons, filepath.Join(t.TempDir(), "slides.pdf")))

	tex, err := os.ReadFile(filepath.Join(work, "latex", "slides.tex"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(tex), `\includegraphics`))
	assert.Contains(t, string(tex), "{icon_001.png}")
	assert.NotContains(t, string(tex), iconDir)
	assert.FileExists(t, filepath.Join(work, "latex", "icon_001.png"))
}

func TestNewDeck(t *testing.T) {
	v := common.Default().Video

	deck, raster, err := NewDeck("pdf", &fakeExecutor{}, v, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "pdf", deck.Extension())
	assert.IsType(t, &PDFRasterizer{}, raster)

	deck, raster, err = NewDeck("docx", &fakeExecutor{}, v, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "docx", deck.Extension())
	assert.IsType(t, &CanvasRasterizer{}, raster)

	_, _, err = NewDeck("pptx", &fakeExecutor{}, v, t.TempDir())
	assert.Error(t, err)
}

func TestLatexDeckBuild(t *testing.T) {
	work := t.TempDir()
	exec := &fakeExecutor{}
	exec.hook = func(name string, args []string) error {
		// pdflatex leaves slides.pdf next to the source
		return os.WriteFile(filepath.Join(work, "latex", "slides.pdf"), []byte("%PDF-1.5"), 0644)
	}
	deck := &LatexDeck{Exec: exec, WorkDir: work}
	out := filepath.Join(t.TempDir(), "slides.pdf")

	require.NoError(t, deck.Build(context.Background(), []ContentUnit{{Title: "A", Summary: "B."}}, nil, out))

	calls := exec.named("pdflatex")
	require.Len(t, calls, 1)
	assert.Equal(t, filepath.Join(work, "latex"), calls[0].Dir)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5", string(data))
}

func TestLatexDeckBuildWithoutOutput(t *testing.T) {
	deck := &LatexDeck{Exec: &fakeExecutor{}, WorkDir: t.TempDir()}
	err := deck.Build(context.Background(), []ContentUnit{{Title: "A", Summary: "B."}}, nil, filepath.Join(t.TempDir(), "slides.pdf"))
	assert.Error(t, err)
}

func TestCanvasRasterizer(t *testing.T) {
	work := t.TempDir()
	r := &CanvasRasterizer{Width: 1280, Height: 720}
	units := []ContentUnit{
		{Title: "A fairly long title that has to wrap onto a second line", Summary: "Summary text."},
		{Title: "Second", Summary: "More text."},
	}

	frames, err := r.Render(context.Background(), "", units, nil, work)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, filepath.Join(work, "frames", "slide_001.png"), frames[0])

	img := gocv.IMRead(frames[1], gocv.IMReadColor)
	defer img.Close()
	assert.Equal(t, 1280, img.Cols())
	assert.Equal(t, 720, img.Rows())
}

func TestCanvasRasterizerPastesIcon(t *testing.T) {
	work := t.TempDir()
	iconPath := filepath.Join(work, "icon.png")
	icon := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), 64, 64, gocv.MatTypeCV8UC3)
	require.True(t, gocv.IMWrite(iconPath, icon))
	icon.Close()

	r := &CanvasRasterizer{Width: 1280, Height: 720}
	frames, err := r.Render(context.Background(), "", []ContentUnit{{Title: "T", Summary: "S."}}, []string{iconPath}, work)
	require.NoError(t, err)

	img := gocv.IMRead(frames[0], gocv.IMReadColor)
	defer img.Close()
	// centre of the icon slot is red, the opposite corner stays white
	px := img.GetVecbAt(720-iconMargin-iconSize/2, 1280-iconMargin-iconSize/2)
	assert.Equal(t, gocv.Vecb{0, 0, 255}, px)
	assert.Equal(t, gocv.Vecb{255, 255, 255}, img.GetVecbAt(5, 5))
}

func TestDegradedFramesPerClip(t *testing.T) {
	d := NewDegradedStrategy(common.Default().Video, common.Default().Timing)
	assert.Equal(t, "degraded", d.Name())
	assert.Equal(t, 120, d.FramesPerClip())

	d.Duration = 0
	assert.Equal(t, 1, d.FramesPerClip())
}
