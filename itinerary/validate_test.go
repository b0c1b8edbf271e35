package itinerary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripy/apperr"
	"tripy/models"
)

var twoDates = []string{"2026-05-01", "2026-05-02"}

func messyItinerary() models.Itinerary {
	return models.Itinerary{
		Summary: "two days",
		Days: []models.DayPlan{
			{DayIndex: 7, Slots: []models.SlotPlan{
				{Slot: models.SlotEvening, Activities: []models.Activity{
					{ID: "e1", Description: "Dinner", Category: "food", Cost: 40.004, DurationMinutes: 90, StartTime: "19:00"},
				}},
			}},
			{DayIndex: 3, Theme: "Museums", Slots: []models.SlotPlan{
				{Slot: models.SlotMorning, Activities: []models.Activity{
					{ID: "m2", Description: "Second", Category: "activities", Cost: 10, DurationMinutes: 60, StartTime: "10:30"},
					{ID: "m1", Description: "First", Category: "sightseeing", Cost: 5, DurationMinutes: 120, StartTime: "09:00",
						Place: &models.PlaceRef{PlaceID: "p-1", Name: "Gallery"}},
				}},
				{Slot: models.SlotMorning, Activities: []models.Activity{
					{ID: "m3", Description: "Coffee", Category: "food", Cost: 3.5, DurationMinutes: 20},
				}},
			}},
		},
	}
}

func TestNormalizeFixesDrift(t *testing.T) {
	it := messyItinerary()
	require.NoError(t, Normalize(&it, Rules{Dates: twoDates}))

	first, second := it.Days[0], it.Days[1]
	assert.Equal(t, 1, first.DayIndex)
	assert.Equal(t, "2026-05-01", first.Date)
	assert.Equal(t, "Museums", first.Theme)
	assert.Equal(t, "Day 2", second.Theme)

	require.Len(t, first.Slots, 4)
	for i, sp := range first.Slots {
		assert.Equal(t, models.Slots[i], sp.Slot)
	}

	morning := first.Slots[0].Activities
	require.Len(t, morning, 3)
	assert.Equal(t, "m1", morning[0].ID)
	assert.Equal(t, "09:00", morning[0].StartTime)
	assert.Equal(t, "11:00", morning[0].EndTime)
	// requested 10:30 overlaps, so it is pushed after the first
	assert.Equal(t, "11:00", morning[1].StartTime)
	assert.Equal(t, "12:00", morning[2].StartTime)
	assert.Equal(t, models.CategoryMisc, morning[0].Category)

	assert.InDelta(t, 18.5, first.TotalCost, 0.0001)
	assert.Equal(t, 40.0, second.TotalCost)
	assert.Equal(t, 200, first.Slots[0].DurationMinutes)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	it := messyItinerary()
	require.NoError(t, Normalize(&it, Rules{Dates: twoDates}))
	once := it.Clone()
	require.NoError(t, Normalize(&it, Rules{Dates: twoDates}))
	assert.Equal(t, once, it)
	assert.NoError(t, Verify(it, models.BudgetBreakdown{}, 0.01))
}

func TestNormalizeStripsUnverifiedPlaces(t *testing.T) {
	it := messyItinerary()
	require.NoError(t, Normalize(&it, Rules{Dates: twoDates, Verified: map[string]models.PlaceRef{}}))

	it.Activities(func(_ *models.DayPlan, _ *models.SlotPlan, a *models.Activity) {
		assert.Nil(t, a.Place)
		assert.True(t, a.Unresolved)
		assert.True(t, a.LowConfidence)
	})
}

func TestNormalizeUsesVerifiedRef(t *testing.T) {
	it := messyItinerary()
	verified := map[string]models.PlaceRef{"p-1": {PlaceID: "p-1", Name: "National Gallery", Lat: 1, Lng: 2}}
	require.NoError(t, Normalize(&it, Rules{Dates: twoDates, Verified: verified}))

	a := it.Days[0].Slots[0].Activities[0]
	require.NotNil(t, a.Place)
	assert.Equal(t, "National Gallery", a.Place.Name)
	assert.False(t, a.Unresolved)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]func(it *models.Itinerary){
		"day count":      func(it *models.Itinerary) { it.Days = it.Days[:1] },
		"no description": func(it *models.Itinerary) { it.Days[0].Slots[0].Activities[0].Description = "" },
		"negative cost":  func(it *models.Itinerary) { it.Days[0].Slots[0].Activities[0].Cost = -1 },
		"zero duration":  func(it *models.Itinerary) { it.Days[0].Slots[0].Activities[0].DurationMinutes = 0 },
		"past midnight":  func(it *models.Itinerary) { it.Days[0].Slots[0].Activities[0].StartTime = "23:00" },
		"unknown slot": func(it *models.Itinerary) {
			it.Days[0].Slots = append(it.Days[0].Slots, models.SlotPlan{Slot: "brunch", Activities: []models.Activity{
				{Description: "Eggs", DurationMinutes: 30},
			}})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			it := messyItinerary()
			mutate(&it)
			err := Normalize(&it, Rules{Dates: twoDates})
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.AssemblyInvalid))
		})
	}
}

func TestVerifyCatchesDrift(t *testing.T) {
	it := messyItinerary()
	require.NoError(t, Normalize(&it, Rules{Dates: twoDates}))

	broken := it.Clone()
	broken.Days[0].TotalCost += 1
	assert.Error(t, Verify(broken, models.BudgetBreakdown{}, 0.01))

	broken = it.Clone()
	broken.Days[1].Slots[3].Activities[0].Unresolved = false
	assert.Error(t, Verify(broken, models.BudgetBreakdown{}, 0.01))

	b := models.BudgetBreakdown{Total: 100, Allocations: map[models.Category]float64{models.CategoryFood: 99}}
	assert.Error(t, Verify(it, b, 0.01))
}

func TestDraftRoundTripKeepsVerifiedPlaces(t *testing.T) {
	it := messyItinerary()
	require.NoError(t, Normalize(&it, Rules{Dates: twoDates}))

	d := FromItinerary(it)
	require.Len(t, d.Days, 2)
	assert.Equal(t, "p-1", d.Days[0].Activities[0].PlaceID)
	assert.Empty(t, d.Days[0].Activities[1].PlaceID)

	back := d.ToItinerary(twoDates)
	a := back.Days[0].Slots[0].Activities[0]
	assert.Equal(t, "m1", a.ID)
	// carried place ids wait for verification
	assert.True(t, a.Unresolved)
	assert.Equal(t, "p-1", a.Place.PlaceID)
}
