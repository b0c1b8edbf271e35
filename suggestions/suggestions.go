// Package suggestions proposes edit commands for an existing trip.
package suggestions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"tripy/budget"
	"tripy/contract"
	"tripy/db"
	"tripy/itinerary"
	"tripy/llm"
	"tripy/logger"
	"tripy/models"
	"tripy/utils"
)

type suggestionList struct {
	Suggestions []models.EditSuggestion `json:"suggestions" validate:"required,min=1,max=20,dive"`
}

const listShape = `{
  "suggestions": [
    {
      "title": "short title",
      "rationale": "why this improves the trip",
      "example_command": "a command the traveller could send, e.g. replace the museum on day 2 with a food tour",
      "priority": "high|medium|low",
      "day_index": 2
    }
  ]
}`

type Service struct {
	gen   *contract.Client
	limit int
	slack float64
}

func NewService(gen *contract.Client, limit int, slack float64) *Service {
	if limit <= 0 {
		limit = 8
	}
	return &Service{gen: gen, limit: limit, slack: slack}
}

// Suggest returns up to the configured number of suggestions, high priority
// first, with no two sharing an example command. Checks computed from the
// trip itself are always included; generated ones are added when the
// generator delivers.
func (s *Service) Suggest(ctx context.Context, trip models.Trip) ([]models.EditSuggestion, error) {
	local := s.checks(trip)

	days := len(trip.Itinerary.Days)
	generated, err := contract.Generate(ctx, s.gen, prompt(trip), func(l *suggestionList) error {
		for _, sg := range l.Suggestions {
			if sg.DayIndex > days {
				return fmt.Errorf("suggestion %q points at day %d of a %d-day trip", sg.Title, sg.DayIndex, days)
			}
		}
		return nil
	})
	if err != nil {
		if len(local) == 0 {
			return nil, err
		}
		logger.Get().Warn("generated suggestions unavailable", zap.String("trip_id", trip.ID), zap.Error(err))
	}

	return rank(append(local, generated.Suggestions...), s.limit), nil
}

func rank(all []models.EditSuggestion, limit int) []models.EditSuggestion {
	out := lo.UniqBy(all, func(sg models.EditSuggestion) string {
		return strings.ToLower(strings.TrimSpace(sg.ExampleCommand))
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority.Rank() < out[j].Priority.Rank() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// checks derives suggestions from the stored trip without the generator.
func (s *Service) checks(trip models.Trip) []models.EditSuggestion {
	var out []models.EditSuggestion
	for _, ov := range budget.OverCeiling(trip.Itinerary, trip.Budget, s.slack) {
		out = append(out, models.EditSuggestion{
			Title:          fmt.Sprintf("Day %d is over budget", ov.DayIndex),
			Rationale:      fmt.Sprintf("It plans %.2f against a daily ceiling of %.2f %s.", ov.Planned, ov.Ceiling, trip.Budget.Currency),
			ExampleCommand: fmt.Sprintf("make day %d cheaper", ov.DayIndex),
			Priority:       models.PriorityHigh,
			DayIndex:       ov.DayIndex,
		})
	}
	for _, day := range trip.Itinerary.Days {
		empty := lo.Filter(day.Slots, func(sp models.SlotPlan, _ int) bool { return len(sp.Activities) == 0 })
		if len(empty) >= 3 {
			out = append(out, models.EditSuggestion{
				Title:          fmt.Sprintf("Day %d is mostly free", day.DayIndex),
				Rationale:      "Only one part of the day has anything planned.",
				ExampleCommand: fmt.Sprintf("add an afternoon activity on day %d", day.DayIndex),
				Priority:       models.PriorityMedium,
				DayIndex:       day.DayIndex,
			})
		}
	}
	if n := trip.Itinerary.UnresolvedCount(); n > 0 {
		out = append(out, models.EditSuggestion{
			Title:          "Pin down venues",
			Rationale:      fmt.Sprintf("%d activities have no confirmed location yet.", n),
			ExampleCommand: "suggest specific places for the activities without a location",
			Priority:       models.PriorityLow,
		})
	}
	return out
}

func prompt(trip models.Trip) llm.PromptSpec {
	current, _ := json.Marshal(itinerary.FromItinerary(trip.Itinerary))
	req := trip.Request
	return llm.PromptSpec{
		Schema: "edit_suggestions",
		System: "You are an expert trip planner reviewing an itinerary. Suggest concrete improvements the traveller can ask for in one sentence each.",
		Shape:  listShape,
		User: fmt.Sprintf("Destination: %s. Style: %s. Activity level: %s. %d days, budget %.2f %s.\nItinerary:\n%s",
			req.Destination, req.PrimaryStyle, req.ActivityLevel, len(trip.Itinerary.Days), req.TotalBudget, req.Currency, current),
		Temperature: 0.6,
	}
}

// GET /api/trips/:id/suggestions
func Handler(s *Service, store db.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
		defer cancel()

		trip, err := itinerary.LoadForUser(ctx, store, ps.ByName("id"), utils.GetUserIDFromRequest(r))
		if err != nil {
			utils.RespondWithAppError(w, err)
			return
		}
		list, err := s.Suggest(ctx, trip)
		if err != nil {
			utils.RespondWithAppError(w, err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"tripid": trip.ID, "suggestions": list})
	}
}
