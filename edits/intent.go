package edits

import (
	"encoding/json"
	"fmt"
	"strings"

	"tripy/itinerary"
	"tripy/llm"
	"tripy/models"
	"tripy/places"
)

type EditType string

const (
	EditReplace   EditType = "replace"
	EditAdd       EditType = "add"
	EditRemove    EditType = "remove"
	EditRebalance EditType = "rebalance"
)

// Intent is the structured reading of a free-text edit command. DayIndex 0
// means the edit may touch every day.
type Intent struct {
	EditType         EditType `json:"edit_type" validate:"required,oneof=replace add remove rebalance"`
	DayIndex         int      `json:"day_index" validate:"min=0,max=60"`
	Slot             string   `json:"slot,omitempty" validate:"omitempty,oneof=morning lunch afternoon evening"`
	Category         string   `json:"category,omitempty" validate:"omitempty,oneof=accommodation food activities transport misc"`
	Change           string   `json:"change" validate:"required,max=400"`
	NeedsPlaceSearch bool     `json:"needs_place_search"`
	SearchQuery      string   `json:"search_query,omitempty" validate:"required_if=NeedsPlaceSearch true,max=200"`
	Summary          string   `json:"summary" validate:"required,max=300"`
}

const intentShape = `{
  "edit_type": "replace|add|remove|rebalance",
  "day_index": 3,
  "slot": "morning|lunch|afternoon|evening or empty",
  "category": "accommodation|food|activities|transport|misc or empty",
  "change": "what should change, in one sentence",
  "needs_place_search": false,
  "search_query": "venue to look up when needs_place_search is true",
  "summary": "past-tense summary for the traveller"
}`

const editorSystem = `You edit existing travel itineraries. Change only what the traveller asks for and keep everything else as it is.`

func intentPrompt(command string, days int) llm.PromptSpec {
	return llm.PromptSpec{
		Schema: "edit_intent",
		System: editorSystem + "\nClassify the traveller's request. Use day_index 0 only when the request concerns the whole trip.",
		Shape:  intentShape,
		User:   fmt.Sprintf("The trip has %d days.\nRequest: %s", days, command),
	}
}

// checkIntent rejects intents pointing outside the trip.
func checkIntent(days int) func(*Intent) error {
	return func(in *Intent) error {
		if in.DayIndex > days {
			return fmt.Errorf("day_index %d is outside the %d-day trip", in.DayIndex, days)
		}
		return nil
	}
}

func applyPrompt(trip models.Trip, in Intent, found []models.PlaceRef) llm.PromptSpec {
	current, _ := json.Marshal(itinerary.FromItinerary(trip.Itinerary))
	parsed, _ := json.Marshal(in)

	var b strings.Builder
	fmt.Fprintf(&b, "Destination: %s. Budget %.2f %s, daily spending ceiling %.2f.\n",
		trip.Request.Destination, trip.Budget.Total, trip.Budget.Currency, trip.Budget.DailyBudget)
	fmt.Fprintf(&b, "Requested change: %s\n", parsed)
	if len(found) > 0 {
		b.WriteString("Verified places you may use (set place_id to use one):\n")
		for _, p := range found {
			fmt.Fprintf(&b, "- %s (place_id %s) %s\n", p.Name, p.PlaceID, p.Address)
		}
	}
	fmt.Fprintf(&b, "Current itinerary:\n%s\n", current)
	b.WriteString("Return the complete revised itinerary with every day. Keep id and place_id on activities you keep.")

	return llm.PromptSpec{
		Schema:      "edit_apply",
		System:      editorSystem,
		Shape:       itinerary.DraftShape,
		User:        b.String(),
		Temperature: 0.3,
	}
}

// verifiedPlaces lists the places already verified on it, keyed by id.
func verifiedPlaces(it models.Itinerary) map[string]models.PlaceRef {
	out := make(map[string]models.PlaceRef)
	it.Activities(func(_ *models.DayPlan, _ *models.SlotPlan, a *models.Activity) {
		if a.Resolved() {
			out[a.Place.PlaceID] = *a.Place
		}
	})
	return out
}

func mergePlaces(into map[string]models.PlaceRef, run *places.Run) {
	for id, ref := range run.Resolved() {
		into[id] = ref
	}
}
