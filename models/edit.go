package models

type EditCommand struct {
	TripID  string `json:"tripid" validate:"required"`
	Command string `json:"command" validate:"required,min=3,max=500"`
}

// EditResult is what an edit run reports back. On failure Itinerary is nil and
// ErrorKind/Reason describe why; the stored trip is untouched.
type EditResult struct {
	Success   bool       `json:"success"`
	Summary   string     `json:"summary"`
	Itinerary *Itinerary `json:"itinerary,omitempty"`
	Version   int64      `json:"version,omitempty"`
	ErrorKind string     `json:"error_kind,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities high first; unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

type EditSuggestion struct {
	Title          string   `json:"title" validate:"required,max=120"`
	Rationale      string   `json:"rationale" validate:"required,max=400"`
	ExampleCommand string   `json:"example_command" validate:"required,max=300"`
	Priority       Priority `json:"priority" validate:"required,oneof=high medium low"`
	DayIndex       int      `json:"day_index,omitempty" validate:"min=0"`
}
