package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"tripy/models"
)

var slotTitles = map[models.Slot]string{
	models.SlotMorning:   "Morning",
	models.SlotLunch:     "Lunch",
	models.SlotAfternoon: "Afternoon",
	models.SlotEvening:   "Evening",
}

// PDF writes a day-by-day printout of trip to w.
func (e *Exporter) PDF(w io.Writer, trip models.Trip) error {
	qrPNG, err := qrcode.Encode(e.ShareURL(trip.ID), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("generate share qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	req := trip.Request

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(130, 12, tr(fmt.Sprintf("%s, %d days", req.Destination, len(trip.Itinerary.Days))), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(130, 7, fmt.Sprintf("%s to %s", req.StartDate, req.EndDate), "", 1, "L", false, 0, "")
	if req.GroupSize > 0 {
		pdf.CellFormat(130, 7, fmt.Sprintf("%d travellers, budget %.2f %s", req.GroupSize, req.TotalBudget, req.Currency), "", 1, "L", false, 0, "")
	}

	imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("share", imgOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("share", 155, 15, 35, 35, false, imgOpts, 0, "")

	pdf.SetY(55)
	if trip.Itinerary.Summary != "" {
		pdf.SetFont("Arial", "I", 11)
		pdf.MultiCell(0, 6, tr(trip.Itinerary.Summary), "", "L", false)
		pdf.Ln(4)
	}

	for _, day := range trip.Itinerary.Days {
		pdf.SetFont("Arial", "B", 14)
		pdf.SetFillColor(235, 240, 250)
		title := fmt.Sprintf("Day %d  %s", day.DayIndex, day.Date)
		if day.Theme != "" {
			title += "  " + day.Theme
		}
		pdf.CellFormat(0, 9, tr(title), "", 1, "L", true, 0, "")
		pdf.Ln(1)

		for _, sp := range day.Slots {
			if len(sp.Activities) == 0 {
				continue
			}
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 7, slotTitles[sp.Slot], "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			for _, a := range sp.Activities {
				line := fmt.Sprintf("%s-%s  %s", a.StartTime, a.EndTime, a.Description)
				if a.Cost > 0 {
					line += fmt.Sprintf("  (%.2f %s)", a.Cost, req.Currency)
				}
				pdf.MultiCell(0, 5, tr(line), "", "L", false)
				if where := placeLine(a); where != "" {
					pdf.SetTextColor(90, 90, 90)
					pdf.MultiCell(0, 5, tr("    "+where), "", "L", false)
					pdf.SetTextColor(0, 0, 0)
				}
			}
			pdf.Ln(1)
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("Day total: %.2f %s", day.TotalCost, req.Currency), "T", 1, "R", false, 0, "")
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Trip total: %.2f %s", trip.Itinerary.TotalCost(), req.Currency), "", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, fmt.Sprintf("Version %d, printed %s", trip.Version, e.now().Format("02 Jan 2006 15:04")), "", 1, "L", false, 0, "")

	return pdf.Output(w)
}

func placeLine(a models.Activity) string {
	if !a.Resolved() {
		return ""
	}
	parts := []string{a.Place.Name}
	if a.Place.Address != "" {
		parts = append(parts, a.Place.Address)
	}
	return strings.Join(parts, ", ")
}
