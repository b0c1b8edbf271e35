// Package contract wraps the generator with a parse and validate gate.
//
// Every call goes through the same loop: invoke (retrying transient transport
// failures with exponential backoff), extract the JSON document, decode it into
// the target type, run struct validation plus the caller's semantic check, and
// on failure re-invoke once with the diagnostics appended. Nothing here keeps
// state between calls.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tripy/apperr"
	"tripy/config"
	"tripy/llm"
	"tripy/logger"
	"tripy/metrics"
	"tripy/models"
)

type Options struct {
	RepairRetries    int
	TransportRetries int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	CallTimeout      time.Duration
}

func OptionsFrom(cfg config.Generation) Options {
	return Options{
		RepairRetries:    cfg.RepairRetries,
		TransportRetries: cfg.TransportRetries,
		BackoffInitial:   cfg.BackoffInitial,
		BackoffMax:       cfg.BackoffMax,
		CallTimeout:      cfg.CallTimeout,
	}
}

type Client struct {
	gen     llm.Generator
	opts    Options
	metrics *metrics.Metrics
}

func NewClient(gen llm.Generator, opts Options, m *metrics.Metrics) *Client {
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 250 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	return &Client{gen: gen, opts: opts, metrics: m}
}

// Generate produces a T from spec. check, when non-nil, runs after struct
// validation and its error text becomes the repair diagnostic.
//
// Failures: GenerationUnavailable when the transport gives up,
// GenerationInvalid when output is still unusable after the repair retries.
// Caller cancellation is returned as the context error.
func Generate[T any](ctx context.Context, c *Client, spec llm.PromptSpec, check func(*T) error) (T, error) {
	var zero T
	var extra []llm.Message
	var lastDiag error

	for attempt := 0; attempt <= c.opts.RepairRetries; attempt++ {
		label := "initial"
		if attempt > 0 {
			label = "repair"
		}
		c.metrics.GenerationAttempt(spec.Schema, label)

		raw, err := c.invoke(ctx, spec, extra)
		if err != nil {
			c.metrics.GenerationOutcome(spec.Schema, string(apperr.KindOf(err)))
			return zero, err
		}

		v, diag := Decode(raw, check)
		if diag == nil {
			c.metrics.GenerationOutcome(spec.Schema, "ok")
			return v, nil
		}
		lastDiag = diag
		logger.Get().Warn("generator output rejected",
			zap.String("schema", spec.Schema),
			zap.Int("attempt", attempt),
			zap.Error(diag))

		extra = []llm.Message{
			{Role: llm.RoleAssistant, Content: raw},
			{Role: llm.RoleUser, Content: repairPrompt(diag)},
		}
	}

	c.metrics.GenerationOutcome(spec.Schema, string(apperr.GenerationInvalid))
	return zero, apperr.Wrap(apperr.GenerationInvalid, lastDiag, spec.Schema+" output failed validation")
}

func (c *Client) invoke(ctx context.Context, spec llm.PromptSpec, extra []llm.Message) (string, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.BackoffInitial
	eb.MaxInterval = c.opts.BackoffMax
	eb.Multiplier = 2

	op := func() (string, error) {
		callCtx := ctx
		if c.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
			defer cancel()
		}
		raw, err := c.gen.Invoke(callCtx, spec, extra...)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		if !llm.IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	raw, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(c.opts.TransportRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Get().Info("retrying generator call",
				zap.String("schema", spec.Schema),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err == nil {
		return raw, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if llm.IsTransient(err) {
		return "", apperr.Wrap(apperr.GenerationUnavailable, err, "generator unavailable after retries")
	}
	return "", apperr.Wrap(apperr.GenerationUnavailable, err, "generator call failed")
}

// Decode extracts the JSON document from raw and validates it. The returned
// error is a diagnostic meant for the repair prompt.
func Decode[T any](raw string, check func(*T) error) (T, error) {
	var v T
	doc, err := ExtractJSON(raw)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return v, fmt.Errorf("output is not valid JSON for the schema: %w", err)
	}
	if err := models.Validator().Struct(&v); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return v, describe(err)
		}
	}
	if check != nil {
		if err := check(&v); err != nil {
			return v, err
		}
	}
	return v, nil
}

// ExtractJSON strips code fences and surrounding prose and returns the
// outermost JSON object in s.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", errors.New("output contains no JSON object")
	}
	return s[start : end+1], nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", field))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s %s", field, fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

func repairPrompt(diag error) string {
	return "Your previous response was rejected: " + diag.Error() +
		". Return the complete corrected JSON object only, keeping every valid part unchanged."
}
