package render

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// WrapPNGInPDF embeds a PNG capture into a single-page A4 PDF. Used as the
// fallback when Chrome's print pipeline is unavailable.
func WrapPNGInPDF(png []byte) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("diagram", opts, bytes.NewReader(png))

	info := pdf.GetImageInfo("diagram")
	if info == nil {
		return nil, fmt.Errorf("failed to decode PNG capture")
	}

	// Fit to the printable width, preserving aspect ratio.
	pageW, _ := pdf.GetPageSize()
	printable := pageW - 20
	width := info.Width()
	height := info.Height()
	if width > printable {
		scale := printable / width
		width *= scale
		height *= scale
	}

	pdf.ImageOptions("diagram", 10, 10, width, height, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

// ValidatePDF checks that produced PDF bytes form a structurally valid
// document. Used by the batch verification pass.
func ValidatePDF(data []byte) error {
	conf := model.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("invalid PDF output: %w", err)
	}
	return nil
}
