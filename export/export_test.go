package export

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripy/db"
	"tripy/globals"
	"tripy/models"
)

func lisbonTrip() models.Trip {
	belem := &models.PlaceRef{PlaceID: "p-belem", Name: "Torre de Belém", Address: "Av. Brasília", Lat: 38.6916, Lng: -9.2160, TimeZone: "Europe/Lisbon"}
	return models.Trip{
		ID:      "trip-1",
		OwnerID: "owner",
		Version: 2,
		Request: models.TripRequest{Destination: "Lisbon", StartDate: "2026-05-01", EndDate: "2026-05-01", GroupSize: 2, TotalBudget: 800, Currency: "EUR"},
		Itinerary: models.Itinerary{
			Summary: "A day by the river",
			Days: []models.DayPlan{{
				DayIndex: 1, Date: "2026-05-01", Theme: "Belém", TotalCost: 30,
				Slots: []models.SlotPlan{
					{Slot: models.SlotMorning, Activities: []models.Activity{
						{ID: "a1", Description: "Climb the tower", Category: models.CategoryActivities, Place: belem, Cost: 12, DurationMinutes: 90, StartTime: "09:30", EndTime: "11:00"},
					}},
					{Slot: models.SlotLunch, Activities: []models.Activity{
						{ID: "a2", Description: "Pastries by the river", Category: models.CategoryFood, Unresolved: true, Cost: 18, DurationMinutes: 60, StartTime: "12:00", EndTime: "13:00"},
					}},
				},
			}},
		},
	}
}

func testExporter() *Exporter {
	e := New("https://tripy.example/")
	e.now = func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) }
	return e
}

func TestShareURL(t *testing.T) {
	assert.Equal(t, "https://tripy.example/trips/trip-1", testExporter().ShareURL("trip-1"))
}

func TestICSEventPerActivity(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testExporter().ICS(&buf, lisbonTrip()))
	out := buf.String()

	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
	// Lisbon is UTC+1 in May
	assert.Contains(t, out, "DTSTART:20260501T083000Z")
	assert.Contains(t, out, "DTEND:20260501T100000Z")
	// the unresolved lunch borrows the trip's zone
	assert.Contains(t, out, "DTSTART:20260501T110000Z")
	assert.Contains(t, out, "SUMMARY:Climb the tower")
	assert.Contains(t, out, "UID:trip-1-a1@tripy")
	assert.Contains(t, out, "X-WR-TIMEZONE:Europe/Lisbon")
}

func TestICSWithoutZonesUsesUTC(t *testing.T) {
	trip := lisbonTrip()
	trip.Itinerary.Days[0].Slots[0].Activities[0].Place.TimeZone = ""
	var buf bytes.Buffer
	require.NoError(t, testExporter().ICS(&buf, trip))
	assert.Contains(t, buf.String(), "DTSTART:20260501T093000Z")
}

func TestICSRejectsBadTimes(t *testing.T) {
	trip := lisbonTrip()
	trip.Itinerary.Days[0].Slots[0].Activities[0].StartTime = "late"
	assert.Error(t, testExporter().ICS(&bytes.Buffer{}, trip))
}

func TestPDFRenders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testExporter().PDF(&buf, lisbonTrip()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 1000)
}

func TestExportHandlers(t *testing.T) {
	store := db.NewMemoryStore()
	trip := lisbonTrip()
	require.NoError(t, store.Create(context.Background(), &trip))

	router := httprouter.New()
	e := testExporter()
	router.GET("/api/trips/:id/export.pdf", PDFHandler(e, store))
	router.GET("/api/trips/:id/export.ics", ICSHandler(e, store))

	call := func(path, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if user != "" {
			req = req.WithContext(context.WithValue(req.Context(), globals.UserIDKey, user))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := call("/api/trips/trip-1/export.ics", "owner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "trip-trip-1.ics")

	rec = call("/api/trips/trip-1/export.pdf", "owner")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusForbidden, call("/api/trips/trip-1/export.pdf", "stranger").Code)
	assert.Equal(t, http.StatusUnauthorized, call("/api/trips/trip-1/export.ics", "").Code)
	assert.Equal(t, http.StatusNotFound, call("/api/trips/nope/export.ics", "owner").Code)
}
