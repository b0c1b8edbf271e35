package contract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripy/apperr"
	"tripy/llm"
	"tripy/metrics"
)

type reply struct {
	text string
	err  error
}

// scripted returns its replies in order and records every call's extra messages.
type scripted struct {
	mu      sync.Mutex
	replies []reply
	calls   [][]llm.Message
}

func (s *scripted) Invoke(_ context.Context, _ llm.PromptSpec, extra ...llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, extra)
	if len(s.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

type dayTheme struct {
	Theme string `json:"theme" validate:"required"`
	Count int    `json:"count" validate:"min=1,max=4"`
}

func testClient(gen llm.Generator, m *metrics.Metrics) *Client {
	return NewClient(gen, Options{
		RepairRetries:    1,
		TransportRetries: 3,
		BackoffInitial:   time.Millisecond,
		BackoffMax:       2 * time.Millisecond,
	}, m)
}

var spec = llm.PromptSpec{Schema: "day_theme", System: "theme a day", Shape: `{"theme":"","count":1}`}

func TestGenerateValidFirstTry(t *testing.T) {
	gen := &scripted{replies: []reply{{text: `{"theme":"Old town","count":2}`}}}
	got, err := Generate[dayTheme](context.Background(), testClient(gen, nil), spec, nil)
	require.NoError(t, err)
	assert.Equal(t, dayTheme{Theme: "Old town", Count: 2}, got)
	assert.Len(t, gen.calls, 1)
}

func TestGenerateRepairsMissingFieldOnce(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	gen := &scripted{replies: []reply{
		{text: `{"count":2}`},
		{text: "```json\n{\"theme\":\"Harbour\",\"count\":2}\n```"},
	}}

	got, err := Generate[dayTheme](context.Background(), testClient(gen, m), spec, nil)
	require.NoError(t, err)
	assert.Equal(t, "Harbour", got.Theme)

	require.Len(t, gen.calls, 2)
	assert.Empty(t, gen.calls[0])
	require.Len(t, gen.calls[1], 2)
	assert.Equal(t, `{"count":2}`, gen.calls[1][0].Content)
	assert.Contains(t, gen.calls[1][1].Content, "theme is required")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationAttempts.WithLabelValues("day_theme", "repair")))
}

func TestGenerateFailsAfterOneRepair(t *testing.T) {
	gen := &scripted{replies: []reply{
		{text: `{"count":2}`},
		{text: `{"count":9}`},
		{text: `{"theme":"never reached","count":1}`},
	}}

	_, err := Generate[dayTheme](context.Background(), testClient(gen, nil), spec, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.GenerationInvalid, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "count")
	assert.Equal(t, 1, strings.Count(err.Error(), "theme is required"))
	assert.Len(t, gen.calls, 2)
}

type slotDraft struct {
	Days []struct {
		Activities []struct {
			Slot string `json:"slot" validate:"required,oneof=morning evening"`
		} `json:"activities" validate:"dive"`
	} `json:"days" validate:"required,dive"`
}

func TestDecodeNamesJSONPaths(t *testing.T) {
	_, err := Decode[slotDraft](`{"days":[{"activities":[{"slot":"morning"},{"slot":"noon"}]}]}`, nil)
	require.Error(t, err)
	assert.Equal(t, "days[0].activities[1].slot must be one of [morning evening]", err.Error())
}

func TestGenerateRunsSemanticCheck(t *testing.T) {
	gen := &scripted{replies: []reply{
		{text: `{"theme":"x","count":3}`},
		{text: `{"theme":"x","count":1}`},
	}}
	check := func(v *dayTheme) error {
		if v.Count > 2 {
			return errors.New("count must not exceed 2 for a half day")
		}
		return nil
	}

	got, err := Generate(context.Background(), testClient(gen, nil), spec, check)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
	assert.Contains(t, gen.calls[1][1].Content, "half day")
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	gen := &scripted{replies: []reply{
		{err: llm.Transient(errors.New("429"))},
		{err: llm.Transient(errors.New("502"))},
		{text: `{"theme":"ok","count":1}`},
	}}
	_, err := Generate[dayTheme](context.Background(), testClient(gen, nil), spec, nil)
	require.NoError(t, err)
	assert.Len(t, gen.calls, 3)
}

func TestGenerateUnavailableAfterTransportExhaustion(t *testing.T) {
	var replies []reply
	for range 10 {
		replies = append(replies, reply{err: llm.Transient(errors.New("timeout"))})
	}
	gen := &scripted{replies: replies}

	_, err := Generate[dayTheme](context.Background(), testClient(gen, nil), spec, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.GenerationUnavailable, apperr.KindOf(err))
	assert.Len(t, gen.calls, 4)
}

func TestGeneratePermanentFailureIsNotRetried(t *testing.T) {
	gen := &scripted{replies: []reply{{err: errors.New("401 bad key")}}}
	_, err := Generate[dayTheme](context.Background(), testClient(gen, nil), spec, nil)
	assert.Equal(t, apperr.GenerationUnavailable, apperr.KindOf(err))
	assert.Len(t, gen.calls, 1)
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := llm.GeneratorFunc(func(ctx context.Context, _ llm.PromptSpec, _ ...llm.Message) (string, error) {
		return "", ctx.Err()
	})
	_, err := Generate[dayTheme](ctx, testClient(gen, nil), spec, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                          `{"a":1}`,
		"```json\n{\"a\":1}\n```":          `{"a":1}`,
		"Sure! Here it is: {\"a\":{}} :)": `{"a":{}}`,
	}
	for in, want := range cases {
		got, err := ExtractJSON(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ExtractJSON("no json here")
	assert.Error(t, err)
}
