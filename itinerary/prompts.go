package itinerary

import (
	"encoding/json"
	"fmt"
	"strings"

	"tripy/budget"
	"tripy/llm"
	"tripy/models"
)

const plannerSystem = `You are an expert travel planner. Build realistic day-by-day itineraries.
Every day has four slots: morning (08:00-12:00), lunch (12:00-14:00), afternoon (14:00-18:00) and evening (18:00-23:00).
Give each activity a concrete, searchable place_query when it happens at a specific venue, and leave it empty for generic activities like "stroll the neighbourhood".
Never invent coordinates, addresses or place ids. Costs are for the whole group in the trip currency and exclude accommodation unless the category is accommodation.
Respect dietary, accessibility and avoid lists strictly.`

// DraftPrompt describes the full request to the generator.
func DraftPrompt(req models.TripRequest) llm.PromptSpec {
	return llm.PromptSpec{
		Schema:      "draft_itinerary",
		System:      plannerSystem,
		Shape:       DraftShape,
		User:        describeRequest(req),
		Temperature: 0.7,
	}
}

func describeRequest(req models.TripRequest) string {
	var b strings.Builder
	days := req.Days()
	fmt.Fprintf(&b, "Plan %d days in %s from %s to %s.\n", days, req.Destination, req.StartDate, req.EndDate)
	fmt.Fprintf(&b, "Group of %d (ages %s), activity level %s.\n", req.GroupSize, joinInts(req.Ages), req.ActivityLevel)
	fmt.Fprintf(&b, "Total budget %.2f %s, roughly %.2f per day.\n", req.TotalBudget, req.Currency, req.TotalBudget/float64(max(days, 1)))
	style := string(req.PrimaryStyle)
	if req.SecondaryStyle != "" {
		style += " with some " + string(req.SecondaryStyle)
	}
	fmt.Fprintf(&b, "Travel style: %s.\n", style)
	if top := req.TopPreferences(); len(top) > 0 {
		fmt.Fprintf(&b, "Strong interests: %s.\n", strings.Join(top, ", "))
	}
	if req.Accommodation != "" {
		fmt.Fprintf(&b, "Accommodation: %s.\n", req.Accommodation)
	}
	if len(req.Transport) > 0 {
		fmt.Fprintf(&b, "Getting around by: %s.\n", strings.Join(req.Transport, ", "))
	}
	if len(req.Dietary) > 0 {
		fmt.Fprintf(&b, "Dietary needs: %s.\n", strings.Join(req.Dietary, ", "))
	}
	if len(req.Accessibility) > 0 {
		fmt.Fprintf(&b, "Accessibility needs: %s.\n", strings.Join(req.Accessibility, ", "))
	}
	if req.Occasion != "" {
		fmt.Fprintf(&b, "Occasion: %s.\n", req.Occasion)
	}
	if len(req.MustVisit) > 0 {
		fmt.Fprintf(&b, "Must visit: %s.\n", strings.Join(req.MustVisit, "; "))
	}
	if len(req.Avoid) > 0 {
		fmt.Fprintf(&b, "Avoid: %s.\n", strings.Join(req.Avoid, "; "))
	}
	fmt.Fprintf(&b, "Return exactly %d days with day_index 1 to %d.", days, days)
	return b.String()
}

// RevisionPrompt asks for cheaper versions of the days that overshoot their
// daily ceiling. The reply is a draft containing only those days.
func RevisionPrompt(req models.TripRequest, it models.Itinerary, b models.BudgetBreakdown, over []budget.Overage) llm.PromptSpec {
	want := make(map[int]bool, len(over))
	var lines []string
	for _, o := range over {
		want[o.DayIndex] = true
		lines = append(lines, fmt.Sprintf("day %d plans %.2f against a ceiling of %.2f", o.DayIndex, o.Planned, o.Ceiling))
	}
	subset := FromItinerary(it)
	days := subset.Days[:0:0]
	for _, d := range subset.Days {
		if want[d.DayIndex] {
			days = append(days, d)
		}
	}
	subset.Days = days
	current, _ := json.Marshal(subset)

	return llm.PromptSpec{
		Schema: "budget_revision",
		System: plannerSystem,
		Shape:  DraftShape,
		User: fmt.Sprintf("These days in %s overshoot the daily spending ceiling of %.2f %s: %s.\n"+
			"Revise only these days so each stays under its ceiling, keeping their themes and the best activities. "+
			"Return the same day_index values and keep id and place_id on activities you keep unchanged.\nCurrent days:\n%s",
			req.Destination, b.DailyBudget, b.Currency, strings.Join(lines, "; "), current),
		Temperature: 0.4,
	}
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
