package video

import (
	"context"
	"fmt"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"
)

const (
	fontName = "Calibri"
	fontSize = 16

	deckIconInches = 1.2
)

// DocxDeck writes the deck as a Word document, one titled section per slide,
// each followed by its icon when one is assigned.
type DocxDeck struct{}

func (DocxDeck) Extension() string { return "docx" }

func (DocxDeck) Build(ctx context.Context, slides []ContentUnit, icons []string, outputPath string) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return err
	}

	for i, u := range slides {
		addStyledRun(doc.AddParagraph(""), fmt.Sprintf("Slide %d", i+1), false, 11)
		addStyledRun(doc.AddParagraph(""), u.Title, true, 28)
		addStyledRun(doc.AddParagraph(""), u.Summary, false, fontSize)
		if i < len(icons) && icons[i] != "" {
			// unreadable icons are left out, the slide text still stands
			_, _ = doc.AddPicture(icons[i], units.Inch(deckIconInches), units.Inch(deckIconInches))
		}
		doc.AddParagraph("")
	}

	if err := doc.SaveTo(outputPath); err != nil {
		return fmt.Errorf("save docx deck: %w", err)
	}
	return nil
}

// WriteHandout writes a companion document listing every slide with the
// narration text and how long it stays on screen.
func WriteHandout(title string, units []ContentUnit, plans []SlidePlan, outputPath string) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return err
	}

	addStyledRun(doc.AddParagraph(""), title, true, 20)
	doc.AddParagraph("")

	for i, u := range units {
		addStyledRun(doc.AddParagraph(""), fmt.Sprintf("%d. %s", i+1, u.Title), true, 14)
		addStyledRun(doc.AddParagraph(""), NarrationText(u), false, 12)
		if i < len(plans) {
			addStyledRun(doc.AddParagraph(""), fmt.Sprintf("On screen: %.1fs", plans[i].ClipDurationSeconds), false, 10)
		}
	}

	if err := doc.SaveTo(outputPath); err != nil {
		return fmt.Errorf("save handout: %w", err)
	}
	return nil
}

func addStyledRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(text).Font(fontName).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}
