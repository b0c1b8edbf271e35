// Package places resolves free-text place references to verified locations.
// Lookups never fail: a search error or an empty result is reported as an
// unresolved Result and is not cached. Only confident matches are cached, so a
// hit is never low confidence.
package places

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tripy/logger"
	"tripy/metrics"
	"tripy/models"
)

type Result struct {
	Place         *models.PlaceRef `json:"place,omitempty"`
	Unresolved    bool             `json:"unresolved"`
	LowConfidence bool             `json:"low_confidence"`
}

func unresolved() Result { return Result{Unresolved: true, LowConfidence: true} }

// TimeZoneFinder maps coordinates to an IANA zone name.
type TimeZoneFinder interface {
	GetTimezoneName(lng float64, lat float64) string
}

type Resolver interface {
	Resolve(ctx context.Context, query, locationHint string) Result
}

type Service struct {
	searcher Searcher
	tiers    []Cache
	tz       TimeZoneFinder
	metrics  *metrics.Metrics
}

// NewService builds a resolver. tiers are consulted in order and a hit in a
// later tier is copied into the earlier ones. tz may be nil.
func NewService(searcher Searcher, tz TimeZoneFinder, m *metrics.Metrics, tiers ...Cache) *Service {
	return &Service{searcher: searcher, tiers: tiers, tz: tz, metrics: m}
}

func (s *Service) Resolve(ctx context.Context, query, locationHint string) Result {
	if strings.TrimSpace(query) == "" {
		return unresolved()
	}
	key := CacheKey(query, locationHint)

	for i, tier := range s.tiers {
		if ref, ok := tier.Get(ctx, key); ok {
			s.metrics.PlaceLookup(tier.Name(), "hit")
			for _, earlier := range s.tiers[:i] {
				earlier.Set(ctx, key, ref)
			}
			return Result{Place: &ref}
		}
	}

	cands, err := s.searcher.Search(ctx, query, locationHint)
	if err != nil {
		logger.Get().Warn("place search failed",
			zap.String("query", query),
			zap.String("hint", locationHint),
			zap.Error(err))
		s.metrics.PlaceLookup("search", "error")
		return unresolved()
	}
	if len(cands) == 0 {
		s.metrics.PlaceLookup("search", "empty")
		return unresolved()
	}

	best, weak := pick(query, cands)
	ref := best.Ref()
	if s.tz != nil {
		ref.TimeZone = s.tz.GetTimezoneName(ref.Lng, ref.Lat)
	}
	if weak {
		s.metrics.PlaceLookup("search", "weak")
		return Result{Place: &ref, LowConfidence: true}
	}
	s.metrics.PlaceLookup("search", "found")
	for _, tier := range s.tiers {
		tier.Set(ctx, key, ref)
	}
	return Result{Place: &ref}
}

// Run scopes lookups to one assembly or edit: identical query and hint pairs
// are resolved once and the result shared, including concurrent callers.
type Run struct {
	resolver Resolver
	group    singleflight.Group

	mu   sync.Mutex
	done map[string]Result
}

func NewRun(r Resolver) *Run {
	return &Run{resolver: r, done: make(map[string]Result)}
}

func (r *Run) Resolve(ctx context.Context, query, locationHint string) Result {
	key := CacheKey(query, locationHint)

	r.mu.Lock()
	res, ok := r.done[key]
	r.mu.Unlock()
	if ok {
		return copyResult(res)
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		r.mu.Lock()
		prev, ok := r.done[key]
		r.mu.Unlock()
		if ok {
			return prev, nil
		}
		res := r.resolver.Resolve(ctx, query, locationHint)
		r.mu.Lock()
		r.done[key] = res
		r.mu.Unlock()
		return res, nil
	})
	return copyResult(v.(Result))
}

// Resolved lists the verified places seen so far, keyed by place id.
func (r *Run) Resolved() map[string]models.PlaceRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.PlaceRef, len(r.done))
	for _, res := range r.done {
		if res.Place != nil && !res.Unresolved {
			out[res.Place.PlaceID] = *res.Place
		}
	}
	return out
}

func copyResult(res Result) Result {
	if res.Place != nil {
		p := *res.Place
		res.Place = &p
	}
	return res
}
