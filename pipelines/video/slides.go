package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"slidecast/common"
)

// DeckWriter turns content units into a presentation artifact with one slide
// per unit: title, then summary, then the unit's icon if it has one.
type DeckWriter interface {
	Build(ctx context.Context, units []ContentUnit, icons []string, outputPath string) error
	Extension() string
}

// Rasterizer renders one frame image per unit from a deck.
type Rasterizer interface {
	Render(ctx context.Context, deckPath string, units []ContentUnit, icons []string, workDir string) ([]string, error)
}

// NewDeck returns the deck writer and the matching rasterizer for a format.
func NewDeck(format string, exec common.Executor, v common.VideoConfig, workDir string) (DeckWriter, Rasterizer, error) {
	switch format {
	case "pdf", "":
		return &LatexDeck{Exec: exec, WorkDir: workDir}, &PDFRasterizer{Width: v.Width, Height: v.Height, DPI: 150}, nil
	case "docx":
		return DocxDeck{}, &CanvasRasterizer{Width: v.Width, Height: v.Height}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported deck format: %s", format)
	}
}

// LatexDeck builds a beamer PDF with pdflatex.
type LatexDeck struct {
	Exec    common.Executor
	WorkDir string
}

func (s *LatexDeck) Extension() string { return "pdf" }

func (s *LatexDeck) Build(ctx context.Context, units []ContentUnit, icons []string, outputPath string) error {
	buildDir := filepath.Join(s.WorkDir, "latex")
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return fmt.Errorf("error creating build dir: %w", err)
	}

	texFile := filepath.Join(buildDir, "slides.tex")
	if err := os.WriteFile(texFile, []byte(generateLatex(units, stageIcons(icons, buildDir))), 0644); err != nil {
		return fmt.Errorf("error writing tex file: %w", err)
	}

	_, err := s.Exec.ExecuteInDir(ctx, buildDir, "pdflatex",
		"-interaction=nonstopmode", "-halt-on-error",
		"-output-directory", buildDir, texFile)
	if err != nil {
		return fmt.Errorf("pdflatex failed: %w", err)
	}

	pdfPath := filepath.Join(buildDir, "slides.pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		return fmt.Errorf("pdf not generated: %w", err)
	}
	return copyFile(pdfPath, outputPath)
}

// stageIcons copies icons next to the tex source under plain names, so paths
// with spaces or TeX specials never reach \includegraphics. Icons that cannot
// be copied are dropped.
func stageIcons(icons []string, buildDir string) []string {
	staged := make([]string, len(icons))
	for i, icon := range icons {
		if icon == "" {
			continue
		}
		name := fmt.Sprintf("icon_%03d%s", i+1, strings.ToLower(filepath.Ext(icon)))
		if err := copyFile(icon, filepath.Join(buildDir, name)); err != nil {
			continue
		}
		staged[i] = name
	}
	return staged
}

// latexSafePath reports whether p can be used verbatim as a graphics path.
func latexSafePath(p string) bool {
	return !strings.ContainsAny(p, "%#{}\\$&~^ ")
}

func generateLatex(units []ContentUnit, icons []string) string {
	var sb strings.Builder

	sb.WriteString(`\documentclass[aspectratio=169]{beamer}
\usetheme{Madrid}
\usecolortheme{whale}
\setbeamertemplate{navigation symbols}{}
\usepackage{graphicx}
\usepackage{ragged2e}

\begin{document}
`)

	for i, u := range units {
		sb.WriteString("\\begin{frame}{" + common.EscapeLatex(u.Title) + "}\n")
		sb.WriteString("\\justifying\n")
		sb.WriteString("\\large " + common.EscapeLatex(u.Summary) + "\n")
		if i < len(icons) && icons[i] != "" && latexSafePath(icons[i]) {
			sb.WriteString("\\vfill\n\\hfill")
			sb.WriteString(fmt.Sprintf("\\includegraphics[width=2cm,height=2cm,keepaspectratio]{%s}\n", icons[i]))
		}
		sb.WriteString("\\end{frame}\n\n")
	}

	sb.WriteString("\\end{document}\n")
	return sb.String()
}

// PDFRasterizer renders deck pages with MuPDF and fits them to the frame size.
type PDFRasterizer struct {
	Width  int
	Height int
	DPI    float64
}

func (r *PDFRasterizer) Render(ctx context.Context, deckPath string, units []ContentUnit, icons []string, workDir string) ([]string, error) {
	proc, err := common.NewPDFProcessor(deckPath)
	if err != nil {
		return nil, err
	}
	defer proc.Close()

	if proc.NumPages != len(units) {
		return nil, fmt.Errorf("deck has %d pages for %d slides", proc.NumPages, len(units))
	}

	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, err
	}

	var frames []string
	for i := 0; i < proc.NumPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := proc.Doc.ImagePNG(i, r.DPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}

		framePath := filepath.Join(framesDir, fmt.Sprintf("slide_%03d.png", i+1))
		if err := normalizeFrame(img, r.Width, r.Height, framePath); err != nil {
			return nil, err
		}
		frames = append(frames, framePath)
	}
	return frames, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
