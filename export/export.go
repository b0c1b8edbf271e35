// Package export renders a stored trip for use outside the app: a printable
// PDF with a share QR code, and an iCalendar feed.
package export

import (
	"strings"
	"time"
	_ "time/tzdata"

	"tripy/models"
)

type Exporter struct {
	baseURL string
	now     func() time.Time
}

func New(baseURL string) *Exporter {
	return &Exporter{baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

// ShareURL is where the QR code on a printed trip points.
func (e *Exporter) ShareURL(tripID string) string {
	return e.baseURL + "/trips/" + tripID
}

// location picks the zone an activity's wall-clock times are read in: the
// place's own zone, else the first zone seen anywhere on the trip, else UTC.
func location(trip models.Trip, a models.Activity) *time.Location {
	if a.Resolved() && a.Place.TimeZone != "" {
		if loc, err := time.LoadLocation(a.Place.TimeZone); err == nil {
			return loc
		}
	}
	return tripLocation(trip)
}

func tripLocation(trip models.Trip) *time.Location {
	var loc *time.Location
	it := trip.Itinerary
	it.Activities(func(_ *models.DayPlan, _ *models.SlotPlan, a *models.Activity) {
		if loc != nil || !a.Resolved() || a.Place.TimeZone == "" {
			return
		}
		if l, err := time.LoadLocation(a.Place.TimeZone); err == nil {
			loc = l
		}
	})
	if loc == nil {
		return time.UTC
	}
	return loc
}

// wallClock combines a YYYY-MM-DD date and an HH:MM time in loc.
func wallClock(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
}
