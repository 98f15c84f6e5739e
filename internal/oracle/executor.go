package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/joelkehle/jury-instructions/internal/oracle"

type failureClass int

const (
	failureNone failureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

// Metrics describes the work spent on one Run.
type Metrics struct {
	Attempts         int
	ContentRetries   int
	TransportRetries int
	Duration         time.Duration
}

// Stats accumulates over the life of an Executor.
type Stats struct {
	Calls            int64
	Failures         int64
	ContentRetries   int64
	TransportRetries int64
}

// Executor runs requests against an Oracle, retrying transient transport
// failures with backoff and re-asking with corrective feedback when the
// response is empty, malformed or invalid.
type Executor struct {
	oracle         Oracle
	attempts       int
	transportTries uint
	initialBackoff time.Duration
	limiter        *rate.Limiter
	logger         *zap.Logger
	tracer         trace.Tracer

	calls            atomic.Int64
	failures         atomic.Int64
	contentRetries   atomic.Int64
	transportRetries atomic.Int64
}

type Option func(*Executor)

// WithAttempts sets how many times a request is asked before giving up on
// content problems. Defaults to 3.
func WithAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// WithTransportTries sets the retry budget for timeouts, rate limits and
// server errors. Defaults to 3.
func WithTransportTries(n uint) Option {
	return func(e *Executor) {
		if n > 0 {
			e.transportTries = n
		}
	}
}

func WithBackoff(initial time.Duration) Option {
	return func(e *Executor) { e.initialBackoff = initial }
}

// WithRateLimit caps outbound calls. A nil limiter disables limiting.
func WithRateLimit(l *rate.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

func NewExecutor(o Oracle, opts ...Option) *Executor {
	e := &Executor{
		oracle:         o,
		attempts:       3,
		transportTries: 3,
		initialBackoff: time.Second,
		logger:         zap.NewNop(),
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Logger() *zap.Logger { return e.logger }

func (e *Executor) Stats() Stats {
	return Stats{
		Calls:            e.calls.Load(),
		Failures:         e.failures.Load(),
		ContentRetries:   e.contentRetries.Load(),
		TransportRetries: e.transportRetries.Load(),
	}
}

// Run asks the oracle for req and decodes the result into out, which must be
// a non-nil pointer. validate, when set, checks the decoded value. Every
// failure other than context cancellation wraps ErrNoResult.
func (e *Executor) Run(ctx context.Context, req Request, out any, validate func() error) (Metrics, error) {
	started := time.Now()
	metrics := Metrics{}
	ctx, span := e.tracer.Start(ctx, "oracle."+req.SchemaName,
		trace.WithAttributes(attribute.String("oracle.schema", req.SchemaName)))
	defer span.End()

	err := e.run(ctx, req, out, validate, &metrics)
	metrics.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("oracle.attempts", metrics.Attempts),
		attribute.Int("oracle.content_retries", metrics.ContentRetries),
		attribute.Int("oracle.transport_retries", metrics.TransportRetries),
	)
	if err != nil {
		e.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return metrics, err
}

func (e *Executor) run(ctx context.Context, req Request, out any, validate func() error, metrics *Metrics) error {
	name := req.SchemaName
	base := req.Instructions
	feedback := ""
	for attempt := 1; attempt <= e.attempts; attempt++ {
		metrics.Attempts = attempt
		call := req
		if feedback != "" {
			call.Instructions = base + "\n\n" + feedback
		}

		raw, err := e.invoke(ctx, call, metrics)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%s transport failure: %w: %w", name, ErrNoResult, err)
		}

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			if attempt < e.attempts {
				e.retryContent(metrics, name, attempt, "empty response")
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return fmt.Errorf("%s failed: %w: empty response", name, ErrNoResult)
		}

		resetValue(out)
		if err := json.Unmarshal(raw, out); err != nil {
			if attempt < e.attempts {
				e.retryContent(metrics, name, attempt, "malformed json")
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON matching the schema."
				continue
			}
			return fmt.Errorf("%s failed json parse: %w: %w", name, ErrNoResult, err)
		}
		if validate != nil {
			if err := validate(); err != nil {
				if attempt < e.attempts {
					e.retryContent(metrics, name, attempt, err.Error())
					feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
					continue
				}
				return fmt.Errorf("%s failed validation: %w: %w", name, ErrNoResult, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%s failed after retries: %w", name, ErrNoResult)
}

func (e *Executor) retryContent(metrics *Metrics, name string, attempt int, reason string) {
	metrics.ContentRetries++
	e.contentRetries.Add(1)
	e.logger.Debug("retrying oracle request",
		zap.String("schema", name), zap.Int("attempt", attempt), zap.String("reason", reason))
}

func (e *Executor) invoke(ctx context.Context, req Request, metrics *Metrics) (json.RawMessage, error) {
	tries := 0
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialBackoff
	return backoff.Retry(ctx, func() (json.RawMessage, error) {
		tries++
		if tries > 1 {
			metrics.TransportRetries++
			e.transportRetries.Add(1)
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		e.calls.Add(1)
		raw, err := e.oracle.Invoke(ctx, req)
		if err == nil {
			return raw, nil
		}
		switch classifyTransportError(err) {
		case failureTimeout, failureRateLimit, failureServer:
			e.logger.Debug("transient oracle failure",
				zap.String("schema", req.SchemaName), zap.Int("try", tries), zap.Error(err))
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(e.transportTries))
}

func classifyTransportError(err error) failureClass {
	if err == nil {
		return failureNone
	}
	if errors.Is(err, context.Canceled) {
		return failureClient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted"):
		return failureRateLimit
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "status code: 5") || strings.Contains(msg, "status=5") || strings.Contains(msg, "server error") ||
		strings.Contains(msg, " 500 ") || strings.Contains(msg, " 502 ") || strings.Contains(msg, " 503 ") || strings.Contains(msg, " 529 "):
		return failureServer
	default:
		return failureClient
	}
}

func resetValue(out any) {
	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().SetZero()
	}
}
