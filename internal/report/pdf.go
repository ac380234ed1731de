package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/ledgate/internal/common"
	"example.com/ledgate/internal/profile"
)

const maxSwatches = 480

// SaveDecodePDF renders the given decode report into a PDF document.
func SaveDecodePDF(rep DecodeReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("LED Decode Report", false)
	pdf.SetAuthor("ledctl", false)
	pdf.SetCreator("ledctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "LED Decode Report")
	addCaptureQR(pdf, rep.Capture.Sha256)
	addSummarySection(pdf, rep)
	addPacketSection(pdf, rep.Packets)
	addSwatchSection(pdf, rep.Frames)
	addEventSection(pdf, rep.Events)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

// addCaptureQR places the capture digest in the top right corner.
func addCaptureQR(pdf *gofpdf.Fpdf, hash string) {
	if hash == "" {
		return
	}
	png, err := CaptureHashToQR(hash, 256)
	if err != nil {
		common.Warnf("report: qr: %v", err)
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("capture-qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions("capture-qr", pageW-right-28, 12, 28, 28, false, opts, 0, "")
}

func addSummarySection(pdf *gofpdf.Fpdf, rep DecodeReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Run", value: emptyFallback(rep.RunID, "-")},
		{label: "Generated", value: rep.GeneratedAt.Format(time.RFC3339)},
		{label: "Controller", value: rep.Controller},
		{label: "Capture", value: emptyFallback(rep.Capture.Path, "-")},
		{label: "Sample Rate", value: fmt.Sprintf("%s Hz", common.FormatSamples(int64(rep.Capture.SampleRateHz)))},
		{label: "Samples", value: common.FormatSamples(rep.Capture.Samples)},
		{label: "Frames", value: strconv.Itoa(rep.Summary.Frames)},
		{label: "Packets", value: strconv.Itoa(rep.Summary.Packets)},
		{label: "Unterminated", value: strconv.Itoa(rep.Summary.Unterminated)},
		{label: "Resyncs", value: strconv.Itoa(rep.Summary.Resyncs)},
		{label: "Premature Resets", value: strconv.Itoa(rep.Summary.PrematureResets)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	if rep.Capture.Sha256 != "" {
		pdf.SetFont("Courier", "", 8)
		pdf.CellFormat(0, 5, "sha256 "+rep.Capture.Sha256, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addPacketSection(pdf *gofpdf.Fpdf, rows []PacketRow) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Packets")
	pdf.Ln(9)

	if len(rows) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No packets decoded.", "", "L", false)
		pdf.Ln(2)
		return
	}

	headers := []string{"Packet", "Frames", "Start", "End", "Speed"}
	widths := []float64{24, 36, 46, 46, 28}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		values := []string{
			strconv.Itoa(row.Ordinal),
			fmt.Sprintf("%d-%d (%d)", row.FirstFrame, row.LastFrame, row.LastFrame-row.FirstFrame+1),
			formatSeconds(row.StartSec),
			formatSeconds(row.EndSec),
			row.Speed,
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

// addSwatchSection draws one filled square per LED, a row per packet.
func addSwatchSection(pdf *gofpdf.Fpdf, frames []FrameRow) {
	if len(frames) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Frames")
	pdf.Ln(9)

	const size, gap = 5.0, 1.0
	left, _, right, _ := pdf.GetMargins()
	pageW, _ := pdf.GetPageSize()
	perRow := int((pageW - left - right) / (size + gap))
	x, y := left, pdf.GetY()
	col, packet := 0, frames[0].Packet
	shown := frames
	if len(shown) > maxSwatches {
		shown = shown[:maxSwatches]
	}
	pdf.SetDrawColor(160, 160, 160)
	for _, f := range shown {
		if f.Packet != packet || col == perRow {
			packet = f.Packet
			col = 0
			y += size + gap
			if y > 270 {
				pdf.AddPage()
				y = pdf.GetY()
			}
		}
		for _, hex := range f.Colors {
			c, err := profile.ParseHex(hex)
			if err != nil {
				continue
			}
			pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
			pdf.Rect(x+float64(col)*(size+gap), y, size, size, "FD")
			col++
			if col == perRow {
				break
			}
		}
	}
	pdf.SetXY(left, y+size+gap*3)
	if len(frames) > len(shown) {
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf("%d further frames not shown.", len(frames)-len(shown)), "", "L", false)
	}
	pdf.Ln(2)
}

func addEventSection(pdf *gofpdf.Fpdf, events []common.Event) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Decoder Events")
	pdf.Ln(9)

	if len(events) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No resynchronizations recorded.", "", "L", false)
		return
	}
	for i, ev := range events {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s at sample %d (packet %d)", i+1, ev.Kind, ev.Sample, ev.Packet)
		pdf.MultiCell(0, 5, header, "", "L", false)
		if msg := strings.TrimSpace(ev.Detail); msg != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, msg, "", "L", false)
		}
		pdf.Ln(1)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 9, 64) + " s"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
