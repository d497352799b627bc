package ai

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	oracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "screening",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Duration of oracle scoring requests",
	}, []string{"provider", "kind"})

	oracleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screening",
		Subsystem: "oracle",
		Name:      "request_failures_total",
		Help:      "Number of oracle scoring failures by reason",
	}, []string{"provider", "kind", "reason"})
)

// completeFunc sends one system/user prompt pair to a provider and returns the raw text answer.
type completeFunc func(ctx context.Context, system, user string, maxTokens int) (string, error)

// score runs a single provider call with tracing, metrics and judgment parsing.
func score(parent context.Context, tracer trace.Tracer, provider, model string, req ScoreRequest, complete completeFunc) (Judgment, error) {
	ctx, span := tracer.Start(parent, provider+".score", trace.WithAttributes(
		attribute.String("model", model),
		attribute.String("kind", string(req.Kind)),
	))
	defer span.End()

	fail := func(reason string, err error) (Judgment, error) {
		oracleFailures.WithLabelValues(provider, string(req.Kind), reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Judgment{}, err
	}

	user, err := buildUserPrompt(req)
	if err != nil {
		return fail("request", err)
	}

	start := time.Now()
	raw, err := complete(ctx, systemPrompt(req.Kind), user, maxTokens(req.Kind))
	oracleDuration.WithLabelValues(provider, string(req.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail("timeout", err)
		}
		return fail("transport", err)
	}

	judgment, err := ParseJudgment(req.Kind, raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyResponse):
			return fail("empty", err)
		case errors.Is(err, ErrSchemaViolation):
			return fail("schema", err)
		default:
			return fail("malformed", err)
		}
	}

	judgment.Provider = provider
	judgment.Model = model
	span.SetStatus(codes.Ok, "scored")
	return judgment, nil
}
