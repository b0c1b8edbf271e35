package models

import (
	"math"
	"time"
)

// Category is a budget bucket. Every activity cost lands in exactly one.
type Category string

const (
	CategoryAccommodation Category = "accommodation"
	CategoryFood          Category = "food"
	CategoryActivities    Category = "activities"
	CategoryTransport     Category = "transport"
	CategoryMisc          Category = "misc"
)

var Categories = []Category{
	CategoryAccommodation, CategoryFood, CategoryActivities, CategoryTransport, CategoryMisc,
}

// ParseCategory maps a free-form tag to a Category, defaulting to misc.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryAccommodation, CategoryFood, CategoryActivities, CategoryTransport:
		return Category(s)
	}
	return CategoryMisc
}

type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotLunch     Slot = "lunch"
	SlotAfternoon Slot = "afternoon"
	SlotEvening   Slot = "evening"
)

// Slots is the canonical, chronological slot order of a day.
var Slots = []Slot{SlotMorning, SlotLunch, SlotAfternoon, SlotEvening}

// SlotWindow is the [Start, End) minute-of-day window a slot occupies.
type SlotWindow struct {
	Start int
	End   int
}

var slotWindows = map[Slot]SlotWindow{
	SlotMorning:   {Start: 8 * 60, End: 12 * 60},
	SlotLunch:     {Start: 12 * 60, End: 14 * 60},
	SlotAfternoon: {Start: 14 * 60, End: 18 * 60},
	SlotEvening:   {Start: 18 * 60, End: 23 * 60},
}

func (s Slot) Window() SlotWindow { return slotWindows[s] }

func (s Slot) Valid() bool {
	_, ok := slotWindows[s]
	return ok
}

// Order returns the slot's position in Slots, or -1.
func (s Slot) Order() int {
	for i, v := range Slots {
		if v == s {
			return i
		}
	}
	return -1
}

// PlaceRef is a verified location. It only ever comes from the place search
// service, never from generator output.
type PlaceRef struct {
	PlaceID  string  `json:"place_id" bson:"place_id"`
	Name     string  `json:"name" bson:"name"`
	Lat      float64 `json:"lat" bson:"lat"`
	Lng      float64 `json:"lng" bson:"lng"`
	Rating   float64 `json:"rating,omitempty" bson:"rating,omitempty"`
	Address  string  `json:"address,omitempty" bson:"address,omitempty"`
	TimeZone string  `json:"time_zone,omitempty" bson:"time_zone,omitempty"`
}

type Activity struct {
	ID              string    `json:"id" bson:"id"`
	Description     string    `json:"description" bson:"description"`
	Category        Category  `json:"category" bson:"category"`
	PlaceQuery      string    `json:"place_query,omitempty" bson:"place_query,omitempty"`
	Place           *PlaceRef `json:"place,omitempty" bson:"place,omitempty"`
	Unresolved      bool      `json:"unresolved" bson:"unresolved"`
	LowConfidence   bool      `json:"low_confidence,omitempty" bson:"low_confidence,omitempty"`
	Cost            float64   `json:"cost" bson:"cost"`
	DurationMinutes int       `json:"duration_minutes" bson:"duration_minutes"`
	StartTime       string    `json:"start_time" bson:"start_time"`
	EndTime         string    `json:"end_time" bson:"end_time"`
}

// Resolved reports whether the activity carries a verified place.
func (a Activity) Resolved() bool {
	return a.Place != nil && a.Place.PlaceID != "" && !a.Unresolved
}

type SlotPlan struct {
	Slot            Slot       `json:"slot" bson:"slot"`
	Activities      []Activity `json:"activities" bson:"activities"`
	Cost            float64    `json:"cost" bson:"cost"`
	DurationMinutes int        `json:"duration_minutes" bson:"duration_minutes"`
}

type DayPlan struct {
	DayIndex  int        `json:"day_index" bson:"day_index"`
	Date      string     `json:"date" bson:"date"`
	Theme     string     `json:"theme" bson:"theme"`
	Slots     []SlotPlan `json:"slots" bson:"slots"`
	TotalCost float64    `json:"total_cost" bson:"total_cost"`
}

// SlotPlan returns the plan for slot s, or nil.
func (d *DayPlan) SlotPlan(s Slot) *SlotPlan {
	for i := range d.Slots {
		if d.Slots[i].Slot == s {
			return &d.Slots[i]
		}
	}
	return nil
}

type Itinerary struct {
	Summary string    `json:"summary" bson:"summary"`
	Days    []DayPlan `json:"days" bson:"days"`
}

// Day returns the plan with the given 1-based index, or nil.
func (it *Itinerary) Day(index int) *DayPlan {
	for i := range it.Days {
		if it.Days[i].DayIndex == index {
			return &it.Days[i]
		}
	}
	return nil
}

// TotalCost sums the day totals.
func (it Itinerary) TotalCost() float64 {
	var cents int64
	for _, d := range it.Days {
		cents += ToCents(d.TotalCost)
	}
	return FromCents(cents)
}

// Activities calls fn for every activity in day, slot and position order.
func (it *Itinerary) Activities(fn func(day *DayPlan, slot *SlotPlan, a *Activity)) {
	for di := range it.Days {
		day := &it.Days[di]
		for si := range day.Slots {
			slot := &day.Slots[si]
			for ai := range slot.Activities {
				fn(day, slot, &slot.Activities[ai])
			}
		}
	}
}

// UnresolvedCount is the number of activities without a verified place.
func (it Itinerary) UnresolvedCount() int {
	n := 0
	it.Activities(func(_ *DayPlan, _ *SlotPlan, a *Activity) {
		if !a.Resolved() {
			n++
		}
	})
	return n
}

// Clone returns a deep copy.
func (it Itinerary) Clone() Itinerary {
	out := Itinerary{Summary: it.Summary, Days: make([]DayPlan, len(it.Days))}
	for i, d := range it.Days {
		out.Days[i] = d.Clone()
	}
	return out
}

func (d DayPlan) Clone() DayPlan {
	out := d
	out.Slots = make([]SlotPlan, len(d.Slots))
	for i, s := range d.Slots {
		cs := s
		cs.Activities = make([]Activity, len(s.Activities))
		for j, a := range s.Activities {
			ca := a
			if a.Place != nil {
				p := *a.Place
				ca.Place = &p
			}
			cs.Activities[j] = ca
		}
		out.Slots[i] = cs
	}
	return out
}

// Trip is the persisted aggregate. Version starts at 1 and grows by one on
// every committed edit.
type Trip struct {
	ID         string          `json:"tripid" bson:"tripid"`
	OwnerID    string          `json:"owner_id" bson:"owner_id"`
	SharedWith []string        `json:"shared_with,omitempty" bson:"shared_with,omitempty"`
	Request    TripRequest     `json:"request" bson:"request"`
	Itinerary  Itinerary       `json:"itinerary" bson:"itinerary"`
	Budget     BudgetBreakdown `json:"budget" bson:"budget"`
	Version    int64           `json:"version" bson:"version"`
	CreatedAt  time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" bson:"updated_at"`
}

// CanAccess reports whether userID owns the trip or it was shared with them.
func (t Trip) CanAccess(userID string) bool {
	if userID == "" {
		return false
	}
	if t.OwnerID == userID {
		return true
	}
	for _, u := range t.SharedWith {
		if u == userID {
			return true
		}
	}
	return false
}

type BudgetBreakdown struct {
	Total       float64              `json:"total" bson:"total"`
	Currency    string               `json:"currency" bson:"currency"`
	Days        int                  `json:"days" bson:"days"`
	GroupSize   int                  `json:"group_size" bson:"group_size"`
	Allocations map[Category]float64 `json:"allocations" bson:"allocations"`
	// DailyCeilings is each allocation spread evenly across the trip's days.
	DailyCeilings map[Category]float64 `json:"daily_ceilings" bson:"daily_ceilings"`
	// DailyBudget is the per-day ceiling for everything except accommodation,
	// the part a generated day plan is expected to spend.
	DailyBudget float64 `json:"daily_budget" bson:"daily_budget"`
	PerPerson   float64 `json:"per_person" bson:"per_person"`
}

// Sum adds the allocations in cents.
func (b BudgetBreakdown) Sum() float64 {
	var cents int64
	for _, c := range Categories {
		cents += ToCents(b.Allocations[c])
	}
	return FromCents(cents)
}

func ToCents(v float64) int64 { return int64(math.Round(v * 100)) }

func FromCents(c int64) float64 { return float64(c) / 100 }

// RoundCents rounds v to two decimals.
func RoundCents(v float64) float64 { return FromCents(ToCents(v)) }
