package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

const tracerName = "github.com/StricklySoft/realm-gateway/pkg/lifecycle"

// Hook runs during a lifecycle transition. A non-nil error moves the
// service to [StateFailed].
type Hook func(ctx context.Context) error

// StateChangeHandler observes transitions. Handlers run synchronously
// under the state lock and must not call back into the service.
type StateChangeHandler func(old, new State)

// Service tracks the lifecycle of one named component.
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt time.Time

	tracer trace.Tracer
	logger *slog.Logger

	onStart  []Hook
	onStop   []Hook
	handlers []StateChangeHandler
}

// Option configures a [Service].
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithOnStart appends a start hook. Hooks run in registration order.
func WithOnStart(h Hook) Option {
	return func(s *Service) { s.onStart = append(s.onStart, h) }
}

// WithOnStop appends a stop hook. Stop hooks run in reverse registration
// order, so resources are released opposite to how they were acquired.
func WithOnStop(h Hook) Option {
	return func(s *Service) { s.onStop = append(s.onStop, h) }
}

// OnStateChange registers a transition observer.
func OnStateChange(h StateChangeHandler) Option {
	return func(s *Service) { s.handlers = append(s.handlers, h) }
}

// New returns a Service in [StateUnknown].
func New(name, version string, opts ...Option) (*Service, error) {
	if name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service name is required")
	}
	s := &Service{
		name:    name,
		version: version,
		state:   StateUnknown,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Name() string { return s.name }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Uptime returns how long the service has been running, or zero when it is
// not running.
func (s *Service) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateRunning {
		return 0
	}
	return time.Since(s.startedAt)
}

// Health returns nil only in [StateRunning].
func (s *Service) Health(context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Unavailable(fmt.Sprintf("lifecycle: %s is not running, current state is %q", s.name, state))
	}
	return nil
}

// SetState moves the service to next, returning a CodeConflict error for
// transitions the state machine does not allow.
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return sserr.Newf(sserr.CodeConflict, "lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next
	if next == StateRunning {
		s.startedAt = time.Now()
	}

	for _, h := range s.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start runs the start hooks between Starting and Running. A canceled ctx
// leaves the state untouched.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.fail(span, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return s.fail(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: starting service", "service", s.name, "version", s.version)
	for _, h := range s.onStart {
		if err := h(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "error", err)
			_ = s.SetState(StateFailed)
			return s.fail(span, sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed"))
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop runs the stop hooks between Stopping and Stopped. Stopping a
// service in a terminal state is a no-op. All stop hooks run even when one
// fails; the first error is returned.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		return s.fail(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)
	var firstErr error
	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		_ = s.SetState(StateFailed)
		return s.fail(span, sserr.Wrap(firstErr, sserr.CodeInternal, "lifecycle: stop hook failed"))
	}

	if err := s.SetState(StateStopped); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("service.name", s.name)),
	)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
