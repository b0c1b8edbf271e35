package itinerary

import (
	"fmt"
	"sort"
	"strings"

	"tripy/models"
	"tripy/utils"
)

// Draft is the generator's itinerary shape. Edits use it too, so activities
// may carry the id and verified place_id of an existing activity.
type Draft struct {
	Summary string     `json:"summary" validate:"required,max=600"`
	Days    []DraftDay `json:"days" validate:"required,min=1,dive"`
}

type DraftDay struct {
	DayIndex   int             `json:"day_index" validate:"min=1"`
	Theme      string          `json:"theme" validate:"required,max=120"`
	Activities []DraftActivity `json:"activities" validate:"dive"`
}

type DraftActivity struct {
	ID              string  `json:"id,omitempty"`
	Slot            string  `json:"slot" validate:"required,oneof=morning lunch afternoon evening"`
	Description     string  `json:"description" validate:"required,min=3,max=400"`
	Category        string  `json:"category" validate:"required,oneof=accommodation food activities transport misc"`
	PlaceQuery      string  `json:"place_query,omitempty" validate:"max=200"`
	PlaceID         string  `json:"place_id,omitempty"`
	Cost            float64 `json:"cost" validate:"min=0"`
	DurationMinutes int     `json:"duration_minutes" validate:"min=1,max=720"`
	StartTime       string  `json:"start_time,omitempty" validate:"omitempty,datetime=15:04"`
}

// DraftShape is the JSON example shown to the generator for Draft replies.
const DraftShape = `{
  "summary": "one paragraph overview",
  "days": [
    {
      "day_index": 1,
      "theme": "short label",
      "activities": [
        {
          "slot": "morning|lunch|afternoon|evening",
          "description": "what to do",
          "category": "accommodation|food|activities|transport|misc",
          "place_query": "searchable venue name, empty for generic activities",
          "cost": 25.0,
          "duration_minutes": 90,
          "start_time": "09:30"
        }
      ]
    }
  ]
}`

// CheckDays returns the semantic check for a draft covering want days.
func CheckDays(want int) func(*Draft) error {
	return func(d *Draft) error {
		if len(d.Days) != want {
			return fmt.Errorf("expected exactly %d days, got %d", want, len(d.Days))
		}
		seen := make(map[int]bool, want)
		for _, day := range d.Days {
			if day.DayIndex > want {
				return fmt.Errorf("day_index %d is outside 1..%d", day.DayIndex, want)
			}
			if seen[day.DayIndex] {
				return fmt.Errorf("day_index %d appears twice", day.DayIndex)
			}
			seen[day.DayIndex] = true
		}
		return nil
	}
}

// ToItinerary converts a draft into an itinerary skeleton dated from dates.
// Places are left empty; only enrichment or a verified carry-over sets them.
func (d Draft) ToItinerary(dates []string) models.Itinerary {
	days := append([]DraftDay(nil), d.Days...)
	sort.SliceStable(days, func(i, j int) bool { return days[i].DayIndex < days[j].DayIndex })

	it := models.Itinerary{Summary: strings.TrimSpace(d.Summary), Days: make([]models.DayPlan, 0, len(days))}
	for i, dd := range days {
		day := models.DayPlan{DayIndex: i + 1, Theme: strings.TrimSpace(dd.Theme), Slots: emptySlots()}
		if i < len(dates) {
			day.Date = dates[i]
		}
		for _, da := range dd.Activities {
			sp := day.SlotPlan(models.Slot(da.Slot))
			if sp == nil {
				continue
			}
			sp.Activities = append(sp.Activities, da.toActivity())
		}
		it.Days = append(it.Days, day)
	}
	return it
}

func (da DraftActivity) toActivity() models.Activity {
	id := da.ID
	if id == "" {
		id = utils.GetUUID()
	}
	a := models.Activity{
		ID:              id,
		Description:     strings.TrimSpace(da.Description),
		Category:        models.ParseCategory(da.Category),
		PlaceQuery:      strings.TrimSpace(da.PlaceQuery),
		Cost:            da.Cost,
		DurationMinutes: da.DurationMinutes,
		StartTime:       da.StartTime,
		Unresolved:      true,
	}
	if da.PlaceID != "" {
		a.Place = &models.PlaceRef{PlaceID: da.PlaceID}
	}
	return a
}

// FromItinerary renders an itinerary back into draft form, the shape the
// generator edits.
func FromItinerary(it models.Itinerary) Draft {
	d := Draft{Summary: it.Summary, Days: make([]DraftDay, 0, len(it.Days))}
	for _, day := range it.Days {
		dd := DraftDay{DayIndex: day.DayIndex, Theme: day.Theme}
		for _, sp := range day.Slots {
			for _, a := range sp.Activities {
				da := DraftActivity{
					ID:              a.ID,
					Slot:            string(sp.Slot),
					Description:     a.Description,
					Category:        string(a.Category),
					PlaceQuery:      a.PlaceQuery,
					Cost:            a.Cost,
					DurationMinutes: a.DurationMinutes,
					StartTime:       a.StartTime,
				}
				if a.Resolved() {
					da.PlaceID = a.Place.PlaceID
				}
				dd.Activities = append(dd.Activities, da)
			}
		}
		d.Days = append(d.Days, dd)
	}
	return d
}

func emptySlots() []models.SlotPlan {
	out := make([]models.SlotPlan, len(models.Slots))
	for i, s := range models.Slots {
		out[i] = models.SlotPlan{Slot: s, Activities: []models.Activity{}}
	}
	return out
}
