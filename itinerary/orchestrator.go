package itinerary

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tripy/apperr"
	"tripy/budget"
	"tripy/contract"
	"tripy/db"
	"tripy/logger"
	"tripy/metrics"
	"tripy/models"
	"tripy/mq"
	"tripy/places"
	"tripy/utils"
)

type State string

const (
	StateDrafting   State = "drafting"
	StateEnriching  State = "enriching"
	StateAllocating State = "allocating"
	StateValidating State = "validating"
	StateAssembled  State = "assembled"
	StateFailed     State = "failed"
)

type Options struct {
	Workers   int
	Slack     float64
	Tolerance float64
	// OnState, when set, observes every state a run enters.
	OnState func(tripID string, s State)
}

// Orchestrator assembles a trip: draft, enrich, allocate, validate, persist.
type Orchestrator struct {
	gen     *contract.Client
	places  places.Resolver
	store   db.Store
	events  mq.Publisher
	metrics *metrics.Metrics
	opts    Options
}

func NewOrchestrator(gen *contract.Client, resolver places.Resolver, store db.Store, events mq.Publisher, m *metrics.Metrics, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 8
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 0.01
	}
	if events == nil {
		events = mq.NopPublisher{}
	}
	return &Orchestrator{gen: gen, places: resolver, store: store, events: events, metrics: m, opts: opts}
}

type assembly struct {
	tripID string
	state  State
	o      *Orchestrator
	log    *zap.Logger
}

func (a *assembly) enter(s State) {
	a.state = s
	a.log.Debug("assembly state", zap.String("state", string(s)))
	if a.o.opts.OnState != nil {
		a.o.opts.OnState(a.tripID, s)
	}
}

// Assemble runs the full pipeline for an accepted request and returns the
// persisted trip at version 1. Nothing is stored unless every step succeeds,
// and cancelling ctx before the write aborts the run.
func (o *Orchestrator) Assemble(ctx context.Context, ownerID string, req models.TripRequest) (*models.Trip, error) {
	started := time.Now()
	run := &assembly{tripID: utils.GetUUID(), o: o}
	run.log = logger.Get().With(zap.String("trip_id", run.tripID), zap.String("destination", req.Destination))

	trip, err := o.assemble(ctx, run, ownerID, req)
	if err != nil {
		run.enter(StateFailed)
		o.metrics.Assembly(string(StateFailed), time.Since(started).Seconds())
		run.log.Warn("assembly failed", zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
		return nil, err
	}
	run.enter(StateAssembled)
	o.metrics.Assembly(string(StateAssembled), time.Since(started).Seconds())
	run.log.Info("trip assembled",
		zap.Int("days", len(trip.Itinerary.Days)),
		zap.Int("unresolved", trip.Itinerary.UnresolvedCount()),
		zap.Duration("took", time.Since(started)))

	mq.Emit(context.WithoutCancel(ctx), o.events, mq.TripEvent{
		Type:    mq.EventAssembled,
		TripID:  trip.ID,
		Version: trip.Version,
		Summary: trip.Itinerary.Summary,
	})
	return trip, nil
}

func (o *Orchestrator) assemble(ctx context.Context, run *assembly, ownerID string, req models.TripRequest) (*models.Trip, error) {
	dates := req.Dates()
	if len(dates) == 0 {
		return nil, apperr.New(apperr.InvalidRequest, "trip request has no dates")
	}

	run.enter(StateDrafting)
	draft, err := contract.Generate(ctx, o.gen, DraftPrompt(req), CheckDays(len(dates)))
	if err != nil {
		return nil, err
	}
	it := draft.ToItinerary(dates)

	run.enter(StateEnriching)
	lookups := places.NewRun(o.places)
	if err := o.enrich(ctx, lookups, &it, req.Destination, nil); err != nil {
		return nil, err
	}

	run.enter(StateAllocating)
	b, err := budget.ForRequest(req)
	if err != nil {
		return nil, err
	}
	if err := normalizeWith(&it, dates, lookups); err != nil {
		return nil, err
	}
	if over := budget.OverCeiling(it, b, o.opts.Slack); len(over) > 0 {
		it = o.revise(ctx, run, lookups, req, it, b, over)
	}

	run.enter(StateValidating)
	if err := normalizeWith(&it, dates, lookups); err != nil {
		return nil, err
	}
	if err := budget.Consistent(b, o.opts.Tolerance); err != nil {
		return nil, apperr.Wrap(apperr.AssemblyInvalid, err, "budget does not add up")
	}
	if err := Verify(it, b, o.opts.Tolerance); err != nil {
		return nil, apperr.Wrap(apperr.AssemblyInvalid, err, "assembled itinerary is inconsistent")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	trip := &models.Trip{
		ID:        run.tripID,
		OwnerID:   ownerID,
		Request:   req,
		Itinerary: it,
		Budget:    b,
	}
	if err := o.store.Create(ctx, trip); err != nil {
		return nil, fmt.Errorf("persist trip: %w", err)
	}
	return trip, nil
}

// enrich resolves every activity that names a place, using a bounded pool.
// only, when non-nil, limits enrichment to those day indexes.
func (o *Orchestrator) enrich(ctx context.Context, lookups *places.Run, it *models.Itinerary, hint string, only map[int]bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	it.Activities(func(day *models.DayPlan, _ *models.SlotPlan, a *models.Activity) {
		if only != nil && !only[day.DayIndex] {
			return
		}
		if a.Resolved() {
			return
		}
		if a.PlaceQuery == "" {
			a.Place, a.Unresolved = nil, true
			return
		}
		g.Go(func() error {
			res := lookups.Resolve(gctx, a.PlaceQuery, hint)
			a.Place = res.Place
			a.Unresolved = res.Unresolved || res.Place == nil
			a.LowConfidence = res.LowConfidence
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// revise asks the generator to bring overspending days under their ceiling.
// It is best effort: on any failure the unrevised itinerary stands.
func (o *Orchestrator) revise(ctx context.Context, run *assembly, lookups *places.Run, req models.TripRequest, it models.Itinerary, b models.BudgetBreakdown, over []budget.Overage) models.Itinerary {
	run.log.Info("requesting budget revision", zap.Int("days_over", len(over)))

	want := make(map[int]bool, len(over))
	for _, ov := range over {
		want[ov.DayIndex] = true
	}
	check := func(d *Draft) error {
		if len(d.Days) != len(want) {
			return fmt.Errorf("expected %d revised days, got %d", len(want), len(d.Days))
		}
		for _, day := range d.Days {
			if !want[day.DayIndex] {
				return fmt.Errorf("day_index %d was not asked for", day.DayIndex)
			}
		}
		return nil
	}
	revised, err := contract.Generate(ctx, o.gen, RevisionPrompt(req, it, b, over), check)
	if err != nil {
		run.log.Warn("budget revision skipped", zap.Error(err))
		return it
	}

	out := it.Clone()
	for _, rd := range revised.Days {
		single := Draft{Days: []DraftDay{rd}}.ToItinerary([]string{""})
		day := single.Days[0]
		day.DayIndex = rd.DayIndex
		if cur := out.Day(rd.DayIndex); cur != nil {
			day.Date = cur.Date
			*cur = day
		}
	}
	if err := o.enrich(ctx, lookups, &out, req.Destination, want); err != nil {
		return it
	}
	return out
}

func normalizeWith(it *models.Itinerary, dates []string, lookups *places.Run) error {
	return Normalize(it, Rules{Dates: dates, Verified: lookups.Resolved()})
}
