package places

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"googlemaps.github.io/maps"

	"tripy/models"
)

// Candidate is one place-search hit.
type Candidate struct {
	PlaceID string  `json:"place_id"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Rating  float64 `json:"rating,omitempty"`
	Address string  `json:"address,omitempty"`
}

func (c Candidate) Ref() models.PlaceRef {
	return models.PlaceRef{
		PlaceID: c.PlaceID,
		Name:    c.Name,
		Lat:     c.Lat,
		Lng:     c.Lng,
		Rating:  c.Rating,
		Address: c.Address,
	}
}

// Searcher is the external place-search service. It may return no candidates.
type Searcher interface {
	Search(ctx context.Context, query, locationHint string) ([]Candidate, error)
}

// Offline finds nothing. Every lookup then degrades to an unresolved activity.
type Offline struct{}

func (Offline) Search(context.Context, string, string) ([]Candidate, error) { return nil, nil }

// GoogleSearcher queries the Places text search, biased to the geocoded hint.
type GoogleSearcher struct {
	client *maps.Client
	radius uint

	mu     sync.Mutex
	anchor map[string]*maps.LatLng
}

func NewGoogleSearcher(apiKey string, radiusMeters uint) (*GoogleSearcher, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &GoogleSearcher{client: client, radius: radiusMeters, anchor: make(map[string]*maps.LatLng)}, nil
}

func (g *GoogleSearcher) Search(ctx context.Context, query, locationHint string) ([]Candidate, error) {
	req := &maps.TextSearchRequest{Query: query}
	if locationHint != "" {
		req.Query = query + ", " + locationHint
		if loc := g.locate(ctx, locationHint); loc != nil {
			req.Location = loc
			req.Radius = g.radius
		}
	}

	resp, err := g.client.TextSearch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search %q: %w", query, err)
	}
	out := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.PlaceID == "" {
			continue
		}
		out = append(out, Candidate{
			PlaceID: r.PlaceID,
			Name:    r.Name,
			Lat:     r.Geometry.Location.Lat,
			Lng:     r.Geometry.Location.Lng,
			Rating:  float64(r.Rating),
			Address: r.FormattedAddress,
		})
	}
	return out, nil
}

// locate geocodes a location hint once per process.
func (g *GoogleSearcher) locate(ctx context.Context, hint string) *maps.LatLng {
	key := Normalize(hint)
	g.mu.Lock()
	loc, ok := g.anchor[key]
	g.mu.Unlock()
	if ok {
		return loc
	}

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: hint})
	if err != nil || len(results) == 0 {
		return nil
	}
	loc = &maps.LatLng{Lat: results[0].Geometry.Location.Lat, Lng: results[0].Geometry.Location.Lng}

	g.mu.Lock()
	g.anchor[key] = loc
	g.mu.Unlock()
	return loc
}

// pick chooses the candidate that best matches the query: the first one whose
// name shares a word with it, else the service's top hit flagged low-confidence.
func pick(query string, cands []Candidate) (Candidate, bool) {
	words := strings.Fields(Normalize(query))
	for _, c := range cands {
		name := Normalize(c.Name)
		for _, w := range words {
			if len(w) > 2 && strings.Contains(name, w) {
				return c, false
			}
		}
	}
	return cands[0], true
}
