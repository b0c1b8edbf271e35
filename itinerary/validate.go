package itinerary

import (
	"fmt"
	"sort"
	"time"

	"tripy/apperr"
	"tripy/models"
)

// Rules parameterise Normalize.
type Rules struct {
	// Dates is the trip's date list; the itinerary must have one day per entry.
	Dates []string
	// Verified, when non-nil, is the complete set of place ids an activity may
	// reference. Any other place is stripped and the activity marked unresolved.
	// A nil map keeps the places already on the itinerary.
	Verified map[string]models.PlaceRef
}

const dayEnd = 24 * 60

// Normalize enforces the itinerary invariants in place. Mechanical drift
// (slot layout, ordering, times, cost sums, rounding, dates, themes) is
// corrected; anything else is apperr.AssemblyInvalid. Running it on its own
// output changes nothing.
func Normalize(it *models.Itinerary, r Rules) error {
	if len(it.Days) != len(r.Dates) {
		return apperr.Newf(apperr.AssemblyInvalid, "itinerary has %d days, trip has %d", len(it.Days), len(r.Dates))
	}
	sort.SliceStable(it.Days, func(i, j int) bool { return it.Days[i].DayIndex < it.Days[j].DayIndex })

	for i := range it.Days {
		day := &it.Days[i]
		day.DayIndex = i + 1
		day.Date = r.Dates[i]
		if day.Theme == "" {
			day.Theme = fmt.Sprintf("Day %d", day.DayIndex)
		}
		if err := normalizeSlots(day); err != nil {
			return err
		}
		if err := normalizeDay(day, r.Verified); err != nil {
			return err
		}
	}
	return nil
}

// normalizeSlots folds the day into exactly the canonical slots, in order.
func normalizeSlots(day *models.DayPlan) error {
	bySlot := make(map[models.Slot][]models.Activity, len(models.Slots))
	for _, sp := range day.Slots {
		if !sp.Slot.Valid() {
			if len(sp.Activities) > 0 {
				return apperr.Newf(apperr.AssemblyInvalid, "day %d uses unknown slot %q", day.DayIndex, sp.Slot)
			}
			continue
		}
		bySlot[sp.Slot] = append(bySlot[sp.Slot], sp.Activities...)
	}
	slots := make([]models.SlotPlan, len(models.Slots))
	for i, s := range models.Slots {
		acts := bySlot[s]
		if acts == nil {
			acts = []models.Activity{}
		}
		slots[i] = models.SlotPlan{Slot: s, Activities: acts}
	}
	day.Slots = slots
	return nil
}

func normalizeDay(day *models.DayPlan, verified map[string]models.PlaceRef) error {
	cursor := 0
	var dayCents int64
	for si := range day.Slots {
		sp := &day.Slots[si]
		win := sp.Slot.Window()
		if cursor < win.Start {
			cursor = win.Start
		}

		for ai := range sp.Activities {
			if err := normalizeActivity(day.DayIndex, &sp.Activities[ai], verified); err != nil {
				return err
			}
		}
		sort.SliceStable(sp.Activities, func(i, j int) bool {
			return startKey(sp.Activities[i]) < startKey(sp.Activities[j])
		})

		var slotCents int64
		minutes := 0
		for ai := range sp.Activities {
			a := &sp.Activities[ai]
			start := cursor
			if m, ok := parseClock(a.StartTime); ok && m > start {
				start = m
			}
			end := start + a.DurationMinutes
			if end > dayEnd {
				return apperr.Newf(apperr.AssemblyInvalid, "day %d %s runs past midnight", day.DayIndex, sp.Slot)
			}
			a.StartTime = formatClock(start)
			a.EndTime = formatClock(end)
			cursor = end

			slotCents += models.ToCents(a.Cost)
			minutes += a.DurationMinutes
		}
		sp.Cost = models.FromCents(slotCents)
		sp.DurationMinutes = minutes
		dayCents += slotCents
	}
	day.TotalCost = models.FromCents(dayCents)
	return nil
}

func normalizeActivity(dayIndex int, a *models.Activity, verified map[string]models.PlaceRef) error {
	switch {
	case a.Description == "":
		return apperr.Newf(apperr.AssemblyInvalid, "day %d has an activity without a description", dayIndex)
	case a.Cost < 0:
		return apperr.Newf(apperr.AssemblyInvalid, "day %d activity %q has a negative cost", dayIndex, a.Description)
	case a.DurationMinutes <= 0:
		return apperr.Newf(apperr.AssemblyInvalid, "day %d activity %q has no duration", dayIndex, a.Description)
	}
	a.Cost = models.RoundCents(a.Cost)
	a.Category = models.ParseCategory(string(a.Category))

	if a.Place != nil && verified != nil {
		if ref, ok := verified[a.Place.PlaceID]; ok {
			p := ref
			a.Place = &p
		} else {
			a.Place = nil
		}
	}
	if a.Place != nil && (a.Place.PlaceID == "" || verified == nil && a.Unresolved) {
		a.Place = nil
	}
	a.Unresolved = a.Place == nil
	if a.Unresolved {
		a.LowConfidence = true
	}
	return nil
}

// startKey orders activities by requested start; unscheduled ones keep their
// relative order after scheduled ones.
func startKey(a models.Activity) int {
	if m, ok := parseClock(a.StartTime); ok {
		return m
	}
	return dayEnd + 1
}

func parseClock(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func formatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Verify checks the invariants without changing anything: day totals equal
// slot sums, activities are ordered and non-overlapping, the budget sums to
// its total, and every activity is verified or marked unresolved.
func Verify(it models.Itinerary, b models.BudgetBreakdown, tolerance float64) error {
	for _, day := range it.Days {
		var dayCents int64
		last := -1
		for i, sp := range day.Slots {
			if i >= len(models.Slots) || sp.Slot != models.Slots[i] {
				return fmt.Errorf("day %d slots out of canonical order", day.DayIndex)
			}
			var slotCents int64
			for _, a := range sp.Activities {
				slotCents += models.ToCents(a.Cost)
				start, ok1 := parseClock(a.StartTime)
				end, ok2 := parseClock(a.EndTime)
				if !ok1 || !ok2 || end <= start || start < last {
					return fmt.Errorf("day %d activity %q is out of order or overlaps", day.DayIndex, a.Description)
				}
				last = end
				if !a.Resolved() && !a.Unresolved {
					return fmt.Errorf("day %d activity %q has an unverified place", day.DayIndex, a.Description)
				}
				if a.Unresolved && a.Place != nil {
					return fmt.Errorf("day %d activity %q is unresolved but carries a place", day.DayIndex, a.Description)
				}
			}
			if slotCents != models.ToCents(sp.Cost) {
				return fmt.Errorf("day %d %s cost %.2f does not match its activities", day.DayIndex, sp.Slot, sp.Cost)
			}
			dayCents += slotCents
		}
		if dayCents != models.ToCents(day.TotalCost) {
			return fmt.Errorf("day %d total %.2f does not match its slots", day.DayIndex, day.TotalCost)
		}
	}
	if b.Allocations != nil {
		diff := b.Sum() - b.Total
		if diff > tolerance || -diff > tolerance {
			return fmt.Errorf("budget allocations sum to %.2f, total is %.2f", b.Sum(), b.Total)
		}
	}
	return nil
}
