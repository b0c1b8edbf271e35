package export

import (
	"fmt"
	"io"

	ics "github.com/arran4/golang-ical"

	"tripy/models"
)

// ICS writes one calendar event per activity. Times are the activity's wall
// clock in its place's zone, serialised as UTC.
func (e *Exporter) ICS(w io.Writer, trip models.Trip) error {
	cal := ics.NewCalendarFor("tripy")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(fmt.Sprintf("Trip to %s", trip.Request.Destination))
	cal.SetXWRTimezone(tripLocation(trip).String())
	cal.SetUrl(e.ShareURL(trip.ID))

	stamp := e.now()
	var failed error
	it := trip.Itinerary
	it.Activities(func(day *models.DayPlan, slot *models.SlotPlan, a *models.Activity) {
		if failed != nil {
			return
		}
		loc := location(trip, *a)
		start, err := wallClock(day.Date, a.StartTime, loc)
		if err != nil {
			failed = fmt.Errorf("day %d activity %q start: %w", day.DayIndex, a.Description, err)
			return
		}
		end, err := wallClock(day.Date, a.EndTime, loc)
		if err != nil {
			failed = fmt.Errorf("day %d activity %q end: %w", day.DayIndex, a.Description, err)
			return
		}

		ev := cal.AddEvent(fmt.Sprintf("%s-%s@tripy", trip.ID, a.ID))
		ev.SetDtStampTime(stamp)
		if !trip.UpdatedAt.IsZero() {
			ev.SetModifiedAt(trip.UpdatedAt)
		}
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary(a.Description)
		ev.SetDescription(fmt.Sprintf("Day %d %s, %s", day.DayIndex, slot.Slot, a.Category))
		if a.Resolved() {
			ev.SetLocation(placeLine(*a))
			ev.SetGeo(a.Place.Lat, a.Place.Lng)
		}
		ev.SetURL(e.ShareURL(trip.ID))
	})
	if failed != nil {
		return failed
	}
	return cal.SerializeTo(w)
}
