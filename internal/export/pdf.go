// Package export renders a story for printing.
package export

import (
	"fmt"
	"io"

	"storybook/internal/domain"

	"github.com/jung-kurt/gofpdf"
)

const (
	fontFamily = "Helvetica"
	lineHeight = 7.0
)

// WritePDF writes the story as an A4 document: a title page with the hero,
// then one section per page. Core fonts are cp1252, so text is translated
// from UTF-8 to keep the accents.
func WritePDF(w io.Writer, story domain.Story, hero domain.Character) error {
	if len(story) == 0 {
		return domain.ErrNoStory
	}

	title := "Mon histoire"
	if hero.Name != "" {
		title = "L'histoire de " + hero.Name
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetCreator("storybook", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		if pdf.PageNo() == 1 {
			return
		}
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d / %d", pdf.PageNo()-1, len(story)), "", 0, "C", false, 0, "")
	})

	// обложка
	pdf.AddPage()
	pdf.SetY(100)
	pdf.SetFont(fontFamily, "B", 28)
	pdf.CellFormat(0, 14, tr(title), "", 1, "C", false, 0, "")
	if hero.Age > 0 {
		pdf.SetFont(fontFamily, "", 14)
		subtitle := fmt.Sprintf("%d ans", hero.Age)
		if hero.HasTrait() {
			subtitle = hero.Emotion.Label() + ", " + subtitle
		}
		pdf.CellFormat(0, 10, tr(subtitle), "", 1, "C", false, 0, "")
	}

	for _, section := range story {
		pdf.AddPage()
		pdf.SetFont(fontFamily, "B", 18)
		pdf.MultiCell(0, 10, tr(section.DisplayTitle()), "", "L", false)
		pdf.Ln(4)
		pdf.SetFont(fontFamily, "", 12)
		for _, p := range section.Paragraphs() {
			pdf.MultiCell(0, lineHeight, tr(p), "", "J", false)
			pdf.Ln(3)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render story PDF: %w", err)
	}
	return nil
}
