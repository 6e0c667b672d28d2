// Package report renders a case as a paginated A4 PDF.
package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

const (
	ContentType = "application/pdf"

	margin     = 15.0
	lineHeight = 5.0
	font       = "Helvetica"
)

// Delivery says how the rendered report reaches the user.
type Delivery int

const (
	// Download saves the file (Content-Disposition: attachment).
	Download Delivery = iota
	// Share hands the file to the platform share sheet (inline).
	Share
)

// ParseDelivery maps "share" to Share; anything else is a download.
func ParseDelivery(s string) Delivery {
	if s == "share" {
		return Share
	}
	return Download
}

func (d Delivery) Disposition() string {
	if d == Share {
		return "inline"
	}
	return "attachment"
}

// FileName is the report name for the given day: Report_YYYY-MM-DD.pdf.
func FileName(day time.Time) string {
	return "Report_" + day.Format("2006-01-02") + ".pdf"
}

// ShareTitle and ShareText caption a shared report.
func ShareTitle(c *domain.Case) string {
	return "Suma report: " + c.Title
}

func ShareText(c *domain.Case) string {
	return "Attached is the report for the case: " + c.Title
}

// Render writes the case summary header and the full transcript to w.
func Render(w io.Writer, c *domain.Case, generatedAt time.Time) error {
	if c == nil {
		return errors.New("report: no case")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(tr("Suma - "+c.Title), false)
	pdf.SetCreator("suma", false)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin + 3)
		pdf.SetFont(font, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	// Header
	pdf.SetFont(font, "B", 16)
	pdf.CellFormat(0, 9, tr("Suma - Case report"), "", 1, "L", false, 0, "")
	pdf.SetFont(font, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, lineHeight, tr(fmt.Sprintf("Case #%d - started %s - generated %s",
		c.ID, c.StartTime.Format("2006-01-02 15:04 MST"), generatedAt.Format("2006-01-02 15:04 MST"))),
		"", 1, "L", false, 0, "")
	pdf.Ln(3)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(font, "B", 12)
	pdf.CellFormat(0, 7, tr(c.Title), "", 1, "L", false, 0, "")
	pdf.SetFont(font, "", 10)
	pdf.MultiCell(0, lineHeight, tr(c.Summary()), "", "L", false)
	pdf.Ln(2)

	field := func(label, value string) {
		pdf.SetFont(font, "B", 10)
		pdf.CellFormat(40, lineHeight, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont(font, "", 10)
		pdf.MultiCell(0, lineHeight, tr(value), "", "L", false)
	}
	field("Professional role", c.Role.Label())
	field("Age", c.Age)
	field("Sex", c.Sex)
	field("Background", c.Background)
	field("Medications", c.Medications)
	field("Symptoms", c.Symptoms)

	pdf.Ln(4)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(margin, pdf.GetY(), 210-margin, pdf.GetY())
	pdf.Ln(3)

	// Transcript
	pdf.SetFont(font, "B", 12)
	pdf.CellFormat(0, 7, tr("Consultation"), "", 1, "L", false, 0, "")

	for _, m := range c.Chat {
		speaker := "Suma"
		if m.Sender == domain.SenderUser {
			speaker = c.Role.Label()
		}
		pdf.SetFont(font, "B", 9)
		pdf.SetTextColor(70, 70, 70)
		pdf.CellFormat(0, lineHeight, tr(fmt.Sprintf("%s - %s", speaker, m.Timestamp.Format("15:04"))), "", 1, "L", false, 0, "")
		pdf.SetFont(font, "", 10)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, lineHeight, tr(m.Text), "", "L", false)
		pdf.Ln(2)
	}

	pdf.Ln(2)
	pdf.SetFont(font, "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.MultiCell(0, 4, tr("Suma provides decision support only and does not replace professional clinical judgment."), "", "L", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
