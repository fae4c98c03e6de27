package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/subrat243/DeCent-Pay/internal/model"
)

// Generator renders escrow statements with the core Helvetica font, so
// account ids and amounts must stay within Latin-1.
type Generator struct {
	fontName string
}

func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

func (g *Generator) Generate(st model.EscrowStatement) ([]byte, error) {
	e := st.Escrow

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle(fmt.Sprintf("Escrow #%d statement", e.ID), false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("Escrow statement #%d", e.ID), "", 1, "C", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at ledger sequence %d", st.Sequence), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	if title := strings.TrimSpace(e.Title); title != "" {
		pdf.SetFont(g.fontName, "B", 12)
		pdf.MultiCell(0, 6, tr(title), "", "L", false)
	}
	if desc := strings.TrimSpace(e.Description); desc != "" {
		pdf.SetFont(g.fontName, "", 10)
		pdf.MultiCell(0, 5, tr(desc), "", "L", false)
	}
	pdf.Ln(2)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Parties", "", 1, "L", false, 0, "")
	keyValue(pdf, g.fontName, "Depositor", e.Depositor)
	keyValue(pdf, g.fontName, "Beneficiary", optional(e.Beneficiary, "open job"))
	if len(e.Arbiters) > 0 {
		keyValue(pdf, g.fontName, "Arbiters", fmt.Sprintf("%s (%d required)", strings.Join(e.Arbiters, ", "), e.RequiredConfirmations))
	}
	pdf.Ln(2)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Funds", "", 1, "L", false, 0, "")
	keyValue(pdf, g.fontName, "Asset", optional(e.Asset, "native"))
	keyValue(pdf, g.fontName, "Total", e.TotalAmount.String())
	keyValue(pdf, g.fontName, "Paid", e.PaidAmount.String())
	keyValue(pdf, g.fontName, "Held", heldAmount(e))
	keyValue(pdf, g.fontName, "Platform fee", e.PlatformFee.String())
	keyValue(pdf, g.fontName, "Status", string(e.Status))
	keyValue(pdf, g.fontName, "Created at", fmt.Sprintf("%d", e.CreatedAt))
	keyValue(pdf, g.fontName, "Deadline", fmt.Sprintf("%d", e.Deadline))
	pdf.Ln(2)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Milestones", "", 1, "L", false, 0, "")

	headers := []string{"#", "Description", "Amount", "Status", "Note"}
	colWidths := []float64{10, 70, 30, 30, 40}
	drawTableRow(pdf, g.fontName, headers, colWidths, true)
	for _, m := range st.Milestones {
		row := []string{
			fmt.Sprintf("%d", m.Index),
			tr(truncate(m.Description, 40)),
			m.Amount.String(),
			string(m.Status),
			tr(truncate(milestoneNote(m), 22)),
		}
		drawTableRow(pdf, g.fontName, row, colWidths, false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func keyValue(pdf *gofpdf.Fpdf, fontName, label, value string) {
	pdf.SetFont(fontName, "B", 10)
	pdf.CellFormat(35, 6, label, "", 0, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	pdf.CellFormat(0, 6, safeValue(value), "", 1, "L", false, 0, "")
}

func drawTableRow(pdf *gofpdf.Fpdf, fontName string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 9)
	for i, col := range cols {
		align := "L"
		if i == 2 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 7, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

// heldAmount is what custody still holds for the escrow.
func heldAmount(e model.Escrow) string {
	if !e.HoldsFunds() {
		return "0"
	}
	return e.Remaining().String()
}

func milestoneNote(m model.Milestone) string {
	switch {
	case m.Resolution != nil:
		return fmt.Sprintf("%s %s/%s", m.Resolution.Outcome, m.Resolution.BeneficiaryAmount, m.Resolution.DepositorAmount)
	case m.DisputeReason != nil:
		return "dispute: " + *m.DisputeReason
	case m.RejectionReason != nil:
		return "rejected: " + *m.RejectionReason
	default:
		return ""
	}
}

func optional(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
