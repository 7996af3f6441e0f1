package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptMediaLine is one archived asset on the receipt.
type ReceiptMediaLine struct {
	Filename  string
	MimeType  string
	ArchiveID string
}

// ReceiptData carries everything printed on an archival receipt.
type ReceiptData struct {
	EntryTitle string
	EntryID    string
	ArchiveID  string
	ArchiveURI string
	ArchivedAt time.Time
	Media      []ReceiptMediaLine
}

// ReceiptBuilder renders archival receipts as PDF documents.
type ReceiptBuilder struct{}

// NewReceiptBuilder constructs a receipt builder.
func NewReceiptBuilder() *ReceiptBuilder {
	return &ReceiptBuilder{}
}

// Render produces the PDF bytes for a receipt.
func (b *ReceiptBuilder) Render(data ReceiptData) ([]byte, error) {
	if data.ArchiveID == "" {
		return nil, fmt.Errorf("receipt requires an archive identifier")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "ARCHIVAL RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 10)
	meta := [][2]string{
		{"Entry", data.EntryTitle},
		{"Entry ID", data.EntryID},
		{"Archive ID", data.ArchiveID},
		{"Archive URI", data.ArchiveURI},
		{"Archived at", data.ArchivedAt.UTC().Format(time.RFC3339)},
	}
	for _, row := range meta {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 7, row[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, row[1], "", 1, "", false, 0, "")
	}
	pdf.Ln(5)

	headers := []string{"Filename", "MIME type", "Archive ID"}
	widths := []float64{80, 50, 60}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, line := range data.Media {
		pdf.CellFormat(widths[0], 7, line.Filename, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, line.MimeType, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 7, line.ArchiveID, "1", 0, "", false, 0, "")
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
