// Package budget splits a trip budget across categories and days.
//
// Allocation works in integer cents with largest-remainder rounding, so the
// categories always sum to the total exactly.
package budget

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"tripy/apperr"
	"tripy/models"
)

type Weights map[models.Category]float64

var styleWeights = map[models.TravelStyle]Weights{
	models.StyleLuxury: {
		models.CategoryAccommodation: 0.50,
		models.CategoryFood:          0.20,
		models.CategoryActivities:    0.15,
		models.CategoryTransport:     0.10,
		models.CategoryMisc:          0.05,
	},
	models.StyleBudget: {
		models.CategoryAccommodation: 0.25,
		models.CategoryFood:          0.30,
		models.CategoryActivities:    0.25,
		models.CategoryTransport:     0.12,
		models.CategoryMisc:          0.08,
	},
	models.StyleAdventure: {
		models.CategoryAccommodation: 0.30,
		models.CategoryFood:          0.22,
		models.CategoryActivities:    0.30,
		models.CategoryTransport:     0.12,
		models.CategoryMisc:          0.06,
	},
	models.StyleCultural: {
		models.CategoryAccommodation: 0.35,
		models.CategoryFood:          0.25,
		models.CategoryActivities:    0.25,
		models.CategoryTransport:     0.10,
		models.CategoryMisc:          0.05,
	},
}

const secondaryShare = 0.3

// Style is the primary travel style and an optional secondary one.
type Style struct {
	Primary   models.TravelStyle
	Secondary models.TravelStyle
}

// WeightsFor returns normalized category weights for s. A secondary style
// contributes 30%.
func WeightsFor(s Style) (Weights, error) {
	primary, ok := styleWeights[s.Primary]
	if !ok {
		return nil, apperr.Newf(apperr.InvalidRequest, "unknown travel style %q", s.Primary)
	}
	out := make(Weights, len(models.Categories))
	secondary, blend := styleWeights[s.Secondary]
	for _, c := range models.Categories {
		w := primary[c]
		if blend && s.Secondary != s.Primary {
			w = (1-secondaryShare)*w + secondaryShare*secondary[c]
		}
		out[c] = w
	}
	return normalize(out), nil
}

func normalize(w Weights) Weights {
	total := lo.SumBy(models.Categories, func(c models.Category) float64 { return w[c] })
	if total <= 0 {
		return w
	}
	out := make(Weights, len(w))
	for c, v := range w {
		out[c] = v / total
	}
	return out
}

// Allocate distributes total across categories for a trip of days days and
// groupSize travellers. The result depends only on its inputs.
func Allocate(total float64, currency string, style Style, days, groupSize int) (models.BudgetBreakdown, error) {
	switch {
	case total <= 0 || math.IsNaN(total) || math.IsInf(total, 0):
		return models.BudgetBreakdown{}, apperr.New(apperr.InvalidRequest, "total budget must be positive")
	case days < 1:
		return models.BudgetBreakdown{}, apperr.New(apperr.InvalidRequest, "trip must last at least one day")
	case groupSize < 1:
		return models.BudgetBreakdown{}, apperr.New(apperr.InvalidRequest, "group size must be at least one")
	}
	weights, err := WeightsFor(style)
	if err != nil {
		return models.BudgetBreakdown{}, err
	}

	totalCents := models.ToCents(total)
	cents := splitCents(totalCents, weights)

	b := models.BudgetBreakdown{
		Total:         models.FromCents(totalCents),
		Currency:      currency,
		Days:          days,
		GroupSize:     groupSize,
		Allocations:   make(map[models.Category]float64, len(cents)),
		DailyCeilings: make(map[models.Category]float64, len(cents)),
		PerPerson:     models.FromCents(totalCents / int64(groupSize)),
	}
	var daily int64
	for _, c := range models.Categories {
		b.Allocations[c] = models.FromCents(cents[c])
		perDay := cents[c] / int64(days)
		b.DailyCeilings[c] = models.FromCents(perDay)
		if c != models.CategoryAccommodation {
			daily += perDay
		}
	}
	b.DailyBudget = models.FromCents(daily)
	return b, nil
}

// ForRequest allocates the budget of an accepted request.
func ForRequest(r models.TripRequest) (models.BudgetBreakdown, error) {
	return Allocate(r.TotalBudget, r.Currency, Style{Primary: r.PrimaryStyle, Secondary: r.SecondaryStyle}, r.Days(), r.GroupSize)
}

// splitCents floors each share and hands the leftover cents to the largest
// fractional remainders, ties going to the earlier category.
func splitCents(total int64, w Weights) map[models.Category]int64 {
	type share struct {
		cat  models.Category
		frac float64
		idx  int
	}
	out := make(map[models.Category]int64, len(models.Categories))
	shares := make([]share, 0, len(models.Categories))
	var used int64
	for i, c := range models.Categories {
		exact := float64(total) * w[c]
		floor := int64(math.Floor(exact))
		out[c] = floor
		used += floor
		shares = append(shares, share{cat: c, frac: exact - float64(floor), idx: i})
	}
	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].frac != shares[j].frac {
			return shares[i].frac > shares[j].frac
		}
		return shares[i].idx < shares[j].idx
	})
	for i := 0; used < total; i++ {
		out[shares[i%len(shares)].cat]++
		used++
	}
	return out
}

// Consistent reports whether b sums to its total within tolerance and has no
// negative allocation.
func Consistent(b models.BudgetBreakdown, tolerance float64) error {
	for c, v := range b.Allocations {
		if v < 0 {
			return fmt.Errorf("allocation for %s is negative", c)
		}
	}
	if diff := math.Abs(b.Sum() - b.Total); diff > tolerance {
		return fmt.Errorf("allocations sum to %.2f, total is %.2f", b.Sum(), b.Total)
	}
	return nil
}

// Overage describes a day whose planned spend materially exceeds its ceiling.
type Overage struct {
	DayIndex int
	Planned  float64
	Ceiling  float64
}

// OverCeiling lists the days of it spending more than slack above the daily
// non-accommodation budget. It is advisory only.
func OverCeiling(it models.Itinerary, b models.BudgetBreakdown, slack float64) []Overage {
	if b.DailyBudget <= 0 {
		return nil
	}
	limit := b.DailyBudget * (1 + slack)
	var out []Overage
	for _, d := range it.Days {
		if d.TotalCost > limit {
			out = append(out, Overage{DayIndex: d.DayIndex, Planned: d.TotalCost, Ceiling: b.DailyBudget})
		}
	}
	return out
}

// Warnings flags budgets that will make for a thin plan.
func Warnings(b models.BudgetBreakdown) []string {
	var out []string
	if b.GroupSize > 0 && b.DailyBudget/float64(b.GroupSize) < 30 {
		out = append(out, fmt.Sprintf("Daily spending money is %.2f %s per person, expect mostly free activities", b.DailyBudget/float64(b.GroupSize), b.Currency))
	}
	if b.Days > 0 && b.Allocations[models.CategoryAccommodation]/float64(b.Days) < 40 {
		out = append(out, "Accommodation budget per night is very low for most destinations")
	}
	return out
}
