package models

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"tripy/apperr"
	"tripy/config"
)

const DateLayout = "2006-01-02"

type TravelStyle string

const (
	StyleAdventure TravelStyle = "adventure"
	StyleBudget    TravelStyle = "budget"
	StyleLuxury    TravelStyle = "luxury"
	StyleCultural  TravelStyle = "cultural"
)

// PreferenceCategories are the keys a TripRequest may weight.
var PreferenceCategories = []string{
	"food_dining", "history_culture", "nature_wildlife", "nightlife_entertainment",
	"shopping", "art_museums", "beaches_water", "mountains_hiking",
	"architecture", "local_markets", "photography", "wellness_relaxation",
}

// TripRequest is immutable once accepted by NewTripRequest.
type TripRequest struct {
	Destination    string         `json:"destination" bson:"destination" validate:"required,min=2,max=100"`
	StartDate      string         `json:"start_date" bson:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string         `json:"end_date" bson:"end_date" validate:"required,datetime=2006-01-02"`
	TotalBudget    float64        `json:"total_budget" bson:"total_budget" validate:"gt=0"`
	Currency       string         `json:"currency" bson:"currency" validate:"required,len=3,alpha,uppercase"`
	GroupSize      int            `json:"group_size" bson:"group_size" validate:"min=1"`
	Ages           []int          `json:"ages" bson:"ages" validate:"required,dive,min=0,max=120"`
	ActivityLevel  string         `json:"activity_level" bson:"activity_level" validate:"required,oneof=relaxed moderate highly_active"`
	PrimaryStyle   TravelStyle    `json:"primary_style" bson:"primary_style" validate:"required,oneof=adventure budget luxury cultural"`
	SecondaryStyle TravelStyle    `json:"secondary_style,omitempty" bson:"secondary_style,omitempty" validate:"omitempty,oneof=adventure budget luxury cultural,nefield=PrimaryStyle"`
	Preferences    map[string]int `json:"preferences" bson:"preferences" validate:"dive,keys,oneof=food_dining history_culture nature_wildlife nightlife_entertainment shopping art_museums beaches_water mountains_hiking architecture local_markets photography wellness_relaxation,endkeys,min=1,max=5"`
	Accommodation  string         `json:"accommodation,omitempty" bson:"accommodation,omitempty" validate:"omitempty,oneof=hotel hostel airbnb resort boutique"`
	Transport      []string       `json:"transport,omitempty" bson:"transport,omitempty" validate:"dive,oneof=walking public_transport taxi rental_car"`
	Dietary        []string       `json:"dietary,omitempty" bson:"dietary,omitempty" validate:"max=10,dive,max=80"`
	Accessibility  []string       `json:"accessibility,omitempty" bson:"accessibility,omitempty" validate:"max=10,dive,max=80"`
	Occasion       string         `json:"occasion,omitempty" bson:"occasion,omitempty" validate:"max=80"`
	MustVisit      []string       `json:"must_visit,omitempty" bson:"must_visit,omitempty" validate:"max=20,dive,max=120"`
	Avoid          []string       `json:"avoid,omitempty" bson:"avoid,omitempty" validate:"max=20,dive,max=120"`
}

var validate = newValidator()

// newValidator reports fields by their json names, which is what clients and
// the generator see.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// Validator exposes the shared validator instance so generator schemas reuse
// the same tag vocabulary.
func Validator() *validator.Validate { return validate }

// NewTripRequest checks r against the field rules and limits and returns the
// accepted copy. Failures are apperr.InvalidRequest.
func NewTripRequest(r TripRequest, limits config.Limits) (TripRequest, error) {
	if err := validate.Struct(r); err != nil {
		return TripRequest{}, apperr.Wrap(apperr.InvalidRequest, err, describeValidation(err))
	}

	start, _ := time.Parse(DateLayout, r.StartDate)
	end, _ := time.Parse(DateLayout, r.EndDate)
	if !end.After(start) {
		return TripRequest{}, apperr.New(apperr.InvalidRequest, "end_date must be after start_date")
	}
	if days := r.Days(); limits.MaxTripDays > 0 && days > limits.MaxTripDays {
		return TripRequest{}, apperr.Newf(apperr.InvalidRequest, "trip lasts %d days, the maximum is %d", days, limits.MaxTripDays)
	}
	if limits.MaxGroupSize > 0 && r.GroupSize > limits.MaxGroupSize {
		return TripRequest{}, apperr.Newf(apperr.InvalidRequest, "group_size must be at most %d", limits.MaxGroupSize)
	}
	if len(r.Ages) != r.GroupSize {
		return TripRequest{}, apperr.Newf(apperr.InvalidRequest, "ages lists %d travellers but group_size is %d", len(r.Ages), r.GroupSize)
	}
	if r.TotalBudget < limits.MinBudget || (limits.MaxBudget > 0 && r.TotalBudget > limits.MaxBudget) {
		return TripRequest{}, apperr.Newf(apperr.InvalidRequest, "total_budget must be between %.0f and %.0f", limits.MinBudget, limits.MaxBudget)
	}

	out := r
	out.Ages = append([]int(nil), r.Ages...)
	out.Transport = append([]string(nil), r.Transport...)
	out.Dietary = append([]string(nil), r.Dietary...)
	out.Accessibility = append([]string(nil), r.Accessibility...)
	out.MustVisit = append([]string(nil), r.MustVisit...)
	out.Avoid = append([]string(nil), r.Avoid...)
	out.Preferences = make(map[string]int, len(r.Preferences))
	for k, v := range r.Preferences {
		out.Preferences[k] = v
	}
	return out, nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid trip request"
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("field %s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field %s failed %s", fe.Namespace(), fe.Tag())
}

// Days is the inclusive number of calendar days covered by the request.
func (r TripRequest) Days() int {
	start, err1 := time.Parse(DateLayout, r.StartDate)
	end, err2 := time.Parse(DateLayout, r.EndDate)
	if err1 != nil || err2 != nil || end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// Dates lists every date of the trip in order, formatted as DateLayout.
func (r TripRequest) Dates() []string {
	start, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		return nil
	}
	n := r.Days()
	out := make([]string, n)
	for i := range n {
		out[i] = start.AddDate(0, 0, i).Format(DateLayout)
	}
	return out
}

// Advisories are non-blocking hints about a request that would still plan
// poorly as submitted.
func (r TripRequest) Advisories() []string {
	var out []string
	if r.Days() > 15 {
		out = append(out, "Consider breaking long trips into multiple shorter trips for better planning")
	}
	if r.GroupSize > 0 && r.TotalBudget/float64(r.GroupSize) < 100 {
		out = append(out, "Consider increasing budget for a more comfortable trip experience")
	}
	if r.ActivityLevel == "highly_active" {
		for _, age := range r.Ages {
			if age < 18 {
				out = append(out, "Consider moderate activity level for trips with children")
				break
			}
		}
	}
	if len(r.TopPreferences()) > 8 {
		out = append(out, "Consider focusing on your top 5-6 preferences for more targeted recommendations")
	}
	if len(r.MustVisit) > 10 {
		out = append(out, "Limit must-visit places to the top 5-7 for better itinerary optimization")
	}
	return out
}

// TopPreferences returns preference keys weighted 4 or higher.
func (r TripRequest) TopPreferences() []string {
	var out []string
	for _, k := range PreferenceCategories {
		if r.Preferences[k] >= 4 {
			out = append(out, k)
		}
	}
	return out
}
