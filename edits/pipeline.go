// Package edits applies free-text edit commands to persisted trips.
package edits

import (
	"context"

	"go.uber.org/zap"

	"tripy/apperr"
	"tripy/contract"
	"tripy/db"
	"tripy/itinerary"
	"tripy/logger"
	"tripy/metrics"
	"tripy/models"
	"tripy/mq"
	"tripy/places"
)

// Pipeline runs edits. Edits on one trip are serialized within a Pipeline;
// writers in other processes are kept honest by the store's version check.
type Pipeline struct {
	gen       *contract.Client
	places    places.Resolver
	store     db.Store
	events    mq.Publisher
	metrics   *metrics.Metrics
	locks     *tripLocks
	tolerance float64
}

func NewPipeline(gen *contract.Client, resolver places.Resolver, store db.Store, events mq.Publisher, m *metrics.Metrics, tolerance float64) *Pipeline {
	if events == nil {
		events = mq.NopPublisher{}
	}
	if tolerance <= 0 {
		tolerance = 0.01
	}
	return &Pipeline{
		gen:       gen,
		places:    resolver,
		store:     store,
		events:    events,
		metrics:   m,
		locks:     newTripLocks(),
		tolerance: tolerance,
	}
}

// Apply parses command, revises the trip's itinerary and commits it as the
// next version. On any failure the stored trip is unchanged and the result
// carries the error kind.
func (p *Pipeline) Apply(ctx context.Context, tripID, command string) (models.EditResult, error) {
	log := logger.Get().With(zap.String("trip_id", tripID))

	release, err := p.locks.acquire(ctx, tripID)
	if err != nil {
		return p.fail(log, err)
	}
	defer release()

	res, err := p.apply(ctx, log, tripID, command)
	if err != nil {
		return p.fail(log, err)
	}
	p.metrics.Edit("ok")
	log.Info("edit applied", zap.Int64("version", res.Version), zap.String("summary", res.Summary))
	return res, nil
}

func (p *Pipeline) apply(ctx context.Context, log *zap.Logger, tripID, command string) (models.EditResult, error) {
	// The intent check needs the day count, so peek at the trip first; the
	// version that matters is the one read below.
	peek, err := p.store.Get(ctx, tripID)
	if err != nil {
		return models.EditResult{}, err
	}
	days := len(peek.Itinerary.Days)

	intent, err := contract.Generate(ctx, p.gen, intentPrompt(command, days), checkIntent(days))
	if err != nil {
		return models.EditResult{}, err
	}
	log.Debug("edit intent", zap.String("type", string(intent.EditType)), zap.Int("day", intent.DayIndex))

	trip, err := p.store.Get(ctx, tripID)
	if err != nil {
		return models.EditResult{}, err
	}
	dates := trip.Request.Dates()
	if len(dates) != len(trip.Itinerary.Days) {
		dates = make([]string, len(trip.Itinerary.Days))
		for i, d := range trip.Itinerary.Days {
			dates[i] = d.Date
		}
	}

	allowed := verifiedPlaces(trip.Itinerary)
	lookups := places.NewRun(p.places)
	var found []models.PlaceRef
	if intent.NeedsPlaceSearch {
		if r := lookups.Resolve(ctx, intent.SearchQuery, trip.Request.Destination); r.Place != nil && !r.Unresolved {
			found = append(found, *r.Place)
		}
	}
	mergePlaces(allowed, lookups)

	draft, err := contract.Generate(ctx, p.gen, applyPrompt(trip, intent, found), itinerary.CheckDays(len(dates)))
	if err != nil {
		return models.EditResult{}, err
	}
	revised := draft.ToItinerary(dates)
	if revised.Summary == "" {
		revised.Summary = trip.Itinerary.Summary
	}
	if intent.DayIndex > 0 {
		keepOnly(&revised, trip.Itinerary, intent.DayIndex)
	}

	if err := itinerary.Normalize(&revised, itinerary.Rules{Dates: dates, Verified: allowed}); err != nil {
		return models.EditResult{}, err
	}
	if err := itinerary.Verify(revised, trip.Budget, p.tolerance); err != nil {
		return models.EditResult{}, apperr.Wrap(apperr.AssemblyInvalid, err, "edited itinerary is inconsistent")
	}

	if err := ctx.Err(); err != nil {
		return models.EditResult{}, err
	}
	updated := trip
	updated.Itinerary = revised
	if err := p.store.UpdateIfVersion(ctx, tripID, trip.Version, &updated); err != nil {
		return models.EditResult{}, err
	}

	mq.Emit(context.WithoutCancel(ctx), p.events, mq.TripEvent{
		Type:    mq.EventEdited,
		TripID:  tripID,
		Version: updated.Version,
		Summary: intent.Summary,
	})
	return models.EditResult{
		Success:   true,
		Summary:   intent.Summary,
		Itinerary: &updated.Itinerary,
		Version:   updated.Version,
	}, nil
}

// keepOnly restores every day except target from before.
func keepOnly(revised *models.Itinerary, before models.Itinerary, target int) {
	for i := range revised.Days {
		idx := revised.Days[i].DayIndex
		if idx == target {
			continue
		}
		if orig := before.Day(idx); orig != nil {
			revised.Days[i] = orig.Clone()
		}
	}
}

func (p *Pipeline) fail(log *zap.Logger, err error) (models.EditResult, error) {
	kind := apperr.KindOf(err)
	p.metrics.Edit(string(kind))
	log.Warn("edit failed", zap.String("kind", string(kind)), zap.Error(err))
	return models.EditResult{
		ErrorKind: string(kind),
		Reason:    apperr.Message(err),
	}, err
}
