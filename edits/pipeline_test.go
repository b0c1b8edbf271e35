package edits

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripy/apperr"
	"tripy/budget"
	"tripy/contract"
	"tripy/db"
	"tripy/itinerary"
	"tripy/llm"
	"tripy/metrics"
	"tripy/models"
	"tripy/mq"
	"tripy/places"
)

var tripDates = []string{"2026-05-01", "2026-05-02", "2026-05-03"}

func seedTrip(t *testing.T, store db.Store) models.Trip {
	t.Helper()
	req := models.TripRequest{
		Destination: "Lisbon", StartDate: "2026-05-01", EndDate: "2026-05-03",
		TotalBudget: 3000, Currency: "EUR", GroupSize: 2, Ages: []int{30, 31},
		ActivityLevel: "moderate", PrimaryStyle: models.StyleCultural,
	}
	b, err := budget.ForRequest(req)
	require.NoError(t, err)

	d := itinerary.Draft{Summary: "Lisbon in three days", Days: []itinerary.DraftDay{
		{DayIndex: 1, Theme: "Baixa", Activities: []itinerary.DraftActivity{
			{Slot: "morning", Description: "Tram 28 ride", Category: "transport", Cost: 6, DurationMinutes: 60},
			{Slot: "lunch", Description: "Bifana stand", Category: "food", Cost: 8, DurationMinutes: 40},
		}},
		{DayIndex: 2, Theme: "Belém", Activities: []itinerary.DraftActivity{
			{Slot: "afternoon", Description: "Jerónimos cloisters", Category: "activities", PlaceQuery: "Mosteiro dos Jerónimos", Cost: 36, DurationMinutes: 120},
			{Slot: "evening", Description: "Dinner by the river", Category: "food", Cost: 70, DurationMinutes: 120},
		}},
		{DayIndex: 3, Theme: "Art", Activities: []itinerary.DraftActivity{
			{Slot: "morning", Description: "Gulbenkian museum visit", Category: "activities", PlaceQuery: "Gulbenkian Museum", Cost: 28, DurationMinutes: 150},
			{Slot: "afternoon", Description: "Park walk", Category: "misc", DurationMinutes: 90},
		}},
	}}
	it := d.ToItinerary(tripDates)
	mosteiro := &it.Days[1].Slots[2].Activities[0]
	mosteiro.Place, mosteiro.Unresolved = &models.PlaceRef{PlaceID: "p-mosteiro", Name: "Mosteiro dos Jerónimos"}, false
	museum := &it.Days[2].Slots[0].Activities[0]
	museum.Place, museum.Unresolved = &models.PlaceRef{PlaceID: "p-museum", Name: "Calouste Gulbenkian Museum"}, false
	require.NoError(t, itinerary.Normalize(&it, itinerary.Rules{Dates: tripDates}))

	trip := &models.Trip{ID: "trip-1", OwnerID: "owner", Request: req, Itinerary: it, Budget: b}
	require.NoError(t, store.Create(context.Background(), trip))
	return *trip
}

// editGen answers edit_intent with a fixed reply and edit_apply through apply.
// When gate is set, apply calls report on arrived and wait for gate.
type editGen struct {
	intent  string
	apply   func() string
	gate    chan struct{}
	arrived chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

func (g *editGen) Invoke(ctx context.Context, spec llm.PromptSpec, _ ...llm.Message) (string, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[spec.Schema]++
	g.mu.Unlock()

	switch spec.Schema {
	case "edit_intent":
		return g.intent, nil
	case "edit_apply":
		if g.gate != nil {
			g.arrived <- struct{}{}
			select {
			case <-g.gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return g.apply(), nil
	}
	return "", errors.New("unexpected schema " + spec.Schema)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

type recorder struct {
	mu     sync.Mutex
	events []mq.TripEvent
}

func (r *recorder) Publish(_ context.Context, ev mq.TripEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type knownPlaces map[string]models.PlaceRef

func (k knownPlaces) Resolve(_ context.Context, query, _ string) places.Result {
	if ref, ok := k[query]; ok {
		return places.Result{Place: &ref}
	}
	return places.Result{Unresolved: true, LowConfidence: true}
}

func newPipeline(gen llm.Generator, store db.Store, events mq.Publisher, m *metrics.Metrics) *Pipeline {
	client := contract.NewClient(gen, contract.Options{RepairRetries: 1, BackoffInitial: time.Millisecond}, m)
	return NewPipeline(client, knownPlaces{
		"Time Out Market": {PlaceID: "p-market", Name: "Time Out Market", Address: "Av. 24 de Julho"},
	}, store, events, m, 0.01)
}

const removeMuseumIntent = `{"edit_type":"remove","day_index":3,"slot":"morning","category":"activities",
"change":"remove the museum visit","needs_place_search":false,"summary":"Removed the museum visit on day 3"}`

func TestApplyRemovesMuseumOnDayThreeMorning(t *testing.T) {
	store := db.NewMemoryStore()
	before := seedTrip(t, store)
	events := &recorder{}
	m := metrics.New(prometheus.NewRegistry())

	gen := &editGen{intent: removeMuseumIntent, apply: func() string {
		d := itinerary.FromItinerary(before.Itinerary)
		d.Days[2].Activities = d.Days[2].Activities[1:]
		// an overreaching reply that also drops day 1 lunch
		d.Days[0].Activities = d.Days[0].Activities[:1]
		return mustJSON(t, d)
	}}
	p := newPipeline(gen, store, events, m)

	res, err := p.Apply(context.Background(), before.ID, "remove the museum visit on day 3 morning")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "Removed the museum visit on day 3", res.Summary)

	day3 := res.Itinerary.Day(3)
	assert.Empty(t, day3.SlotPlan(models.SlotMorning).Activities)
	assert.Len(t, day3.SlotPlan(models.SlotAfternoon).Activities, 1)
	assert.InDelta(t, 0, day3.TotalCost, 0.001)

	assert.Equal(t, before.Itinerary.Days[0], res.Itinerary.Days[0])
	assert.Equal(t, before.Itinerary.Days[1].TotalCost, res.Itinerary.Days[1].TotalCost)

	stored, err := store.Get(context.Background(), before.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, *res.Itinerary, stored.Itinerary)

	require.Len(t, events.events, 1)
	assert.Equal(t, mq.EventEdited, events.events[0].Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Edits.WithLabelValues("ok")))
}

func TestApplyKeepsOnlyVerifiedPlaces(t *testing.T) {
	store := db.NewMemoryStore()
	before := seedTrip(t, store)

	intent := `{"edit_type":"replace","day_index":2,"slot":"evening","category":"food","change":"dinner at the food hall",
"needs_place_search":true,"search_query":"Time Out Market","summary":"Dinner moved to Time Out Market"}`
	gen := &editGen{intent: intent, apply: func() string {
		d := itinerary.FromItinerary(before.Itinerary)
		acts := d.Days[1].Activities
		acts[1] = itinerary.DraftActivity{Slot: "evening", Description: "Food hall dinner", Category: "food",
			PlaceQuery: "Time Out Market", PlaceID: "p-market", Cost: 50, DurationMinutes: 90}
		acts = append(acts, itinerary.DraftActivity{Slot: "evening", Description: "Rooftop drinks", Category: "misc",
			PlaceID: "p-invented", Cost: 20, DurationMinutes: 60})
		acts[0].PlaceID = "p-museum" // moved id from day 3, still verified on this trip
		d.Days[1].Activities = acts
		return mustJSON(t, d)
	}}
	p := newPipeline(gen, store, nil, nil)

	res, err := p.Apply(context.Background(), before.ID, "swap dinner on day 2 for the food hall")
	require.NoError(t, err)

	evening := res.Itinerary.Day(2).SlotPlan(models.SlotEvening).Activities
	require.Len(t, evening, 2)
	assert.Equal(t, "p-market", evening[0].Place.PlaceID)
	assert.Equal(t, "Av. 24 de Julho", evening[0].Place.Address)
	assert.False(t, evening[0].Unresolved)
	assert.Nil(t, evening[1].Place)
	assert.True(t, evening[1].Unresolved)

	afternoon := res.Itinerary.Day(2).SlotPlan(models.SlotAfternoon).Activities
	assert.Equal(t, "Calouste Gulbenkian Museum", afternoon[0].Place.Name)
}

func TestApplyUnknownTrip(t *testing.T) {
	gen := &editGen{intent: removeMuseumIntent}
	p := newPipeline(gen, db.NewMemoryStore(), nil, nil)

	res, err := p.Apply(context.Background(), "missing", "remove something")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.TripNotFound))
	assert.False(t, res.Success)
	assert.Equal(t, string(apperr.TripNotFound), res.ErrorKind)
	assert.Zero(t, gen.calls["edit_intent"])
}

func TestApplyInvalidRevisionLeavesTripUntouched(t *testing.T) {
	store := db.NewMemoryStore()
	before := seedTrip(t, store)
	gen := &editGen{intent: removeMuseumIntent, apply: func() string { return `{"summary":"two days only","days":[]}` }}
	p := newPipeline(gen, store, nil, nil)

	res, err := p.Apply(context.Background(), before.ID, "remove the museum visit on day 3 morning")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.GenerationInvalid))
	assert.Nil(t, res.Itinerary)

	stored, err := store.Get(context.Background(), before.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, before.Itinerary, stored.Itinerary)
}

func TestApplyRejectsDayOutsideTrip(t *testing.T) {
	store := db.NewMemoryStore()
	before := seedTrip(t, store)
	gen := &editGen{intent: `{"edit_type":"remove","day_index":9,"change":"x","needs_place_search":false,"summary":"x"}`}
	p := newPipeline(gen, store, nil, nil)

	_, err := p.Apply(context.Background(), before.ID, "remove day 9")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.GenerationInvalid))
	assert.Equal(t, 2, gen.calls["edit_intent"])
}

func TestConcurrentEditsAcrossWritersConflict(t *testing.T) {
	store := db.NewMemoryStore()
	before := seedTrip(t, store)

	gate := make(chan struct{})
	gen := &editGen{
		intent:  removeMuseumIntent,
		gate:    gate,
		arrived: make(chan struct{}, 2),
		apply: func() string {
			d := itinerary.FromItinerary(before.Itinerary)
			d.Days[2].Activities = d.Days[2].Activities[1:]
			return mustJSON(t, d)
		},
	}
	// two pipelines stand in for two server processes sharing the store
	a := newPipeline(gen, store, nil, nil)
	b := newPipeline(gen, store, nil, nil)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, p := range []*Pipeline{a, b} {
		wg.Add(1)
		go func(i int, p *Pipeline) {
			defer wg.Done()
			_, errs[i] = p.Apply(context.Background(), before.ID, "remove the museum visit on day 3 morning")
		}(i, p)
	}
	<-gen.arrived
	<-gen.arrived
	close(gate)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.EditConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	stored, err := store.Get(context.Background(), before.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestConcurrentEditsOnOnePipelineSerialize(t *testing.T) {
	store := db.NewMemoryStore()
	before := seedTrip(t, store)
	gen := &editGen{intent: removeMuseumIntent, apply: func() string {
		d := itinerary.FromItinerary(before.Itinerary)
		d.Days[2].Activities = d.Days[2].Activities[1:]
		return mustJSON(t, d)
	}}
	p := newPipeline(gen, store, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Apply(context.Background(), before.ID, "remove the museum visit on day 3 morning")
		}(i)
	}
	wg.Wait()
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])

	stored, err := store.Get(context.Background(), before.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version)
	assert.Zero(t, p.locks.size())
}

func TestTripLocksHonourContext(t *testing.T) {
	l := newTripLocks()
	release, err := l.acquire(context.Background(), "t")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx, "t")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.acquire(context.Background(), "u")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.Zero(t, l.size())
}
