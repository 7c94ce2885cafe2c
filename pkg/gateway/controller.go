// Package gateway decides, per request, whether a bearer token may pass to
// the backend and with which internal token.
//
// [Controller.Handle] runs a linear state machine: parse the Authorization
// header, verify the token against its tenant, then exchange it for an
// internal token. Every request ends in exactly one [Outcome]. The HTTP
// middleware and gRPC interceptors in this package apply that outcome to
// their transport.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http/httpguts"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
	"github.com/StricklySoft/realm-gateway/pkg/exchange"
	"github.com/StricklySoft/realm-gateway/pkg/metrics"
	"github.com/StricklySoft/realm-gateway/pkg/token"
)

const tracerName = "github.com/StricklySoft/realm-gateway/pkg/gateway"

const bearerPrefix = "Bearer "

// Response texts. They are part of the wire contract with clients.
const (
	ErrorUnauthorized = "Unauthorized access"
	ErrorChangeToken  = "Change token failed"
	MessageBadHeader  = "Invalid Authorization header"
	MessageBadToken   = "Invalid access token"
	MessageNoTenant   = "Tenant not found"
	messageBadMinted  = "minted token is not a valid header value"
)

// Decision labels recorded in metrics, logs and spans.
const (
	OutcomeForward          = "forward"
	OutcomeMalformedHeader  = "malformed_header"
	OutcomeInvalidToken     = "invalid_token"
	OutcomeTenantNotFound   = "tenant_not_found"
	OutcomeSignatureInvalid = "signature_invalid"
	OutcomeExchangeFailed   = "exchange_failed"
)

// ErrMalformedHeader classifies a missing or non-Bearer Authorization header.
var ErrMalformedHeader = sserr.New(sserr.CodeAuthenticationHeader, MessageBadHeader)

// ErrorBody is the JSON body of a rejection.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Outcome is the result of one [Controller.Handle] call. When Forward is
// true, Authorization holds the replacement header value and Status and
// Body are zero. Otherwise the request must be answered with Status and
// Body and never reach the backend.
type Outcome struct {
	Forward       bool
	Authorization string
	TenantID      string
	Status        int
	Body          ErrorBody
}

func reject(status int, errText, message string) Outcome {
	return Outcome{Status: status, Body: ErrorBody{Error: errText, Message: message}}
}

// Verifier authenticates a raw bearer token. *token.Verifier implements it.
type Verifier interface {
	Verify(ctx context.Context, raw string) (token.Verified, error)
}

// Controller applies the gateway decision. It is safe for concurrent use.
type Controller struct {
	verifier    Verifier
	minter      exchange.Minter
	mintTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Recorder
	tracer      trace.Tracer
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithMintTimeout bounds each Mint call. The default is
// exchange.DefaultMintTimeout.
func WithMintTimeout(d time.Duration) Option {
	return func(c *Controller) { c.mintTimeout = d }
}

// NewController returns a Controller that verifies with v and mints with m.
func NewController(v Verifier, m exchange.Minter, opts ...Option) (*Controller, error) {
	if v == nil || m == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "gateway: verifier and minter are required")
	}
	c := &Controller{
		verifier:    v,
		minter:      m,
		mintTimeout: exchange.DefaultMintTimeout,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mintTimeout <= 0 {
		return nil, sserr.New(sserr.CodeValidationRange, "gateway: mint timeout must be positive")
	}
	return c, nil
}

// Handle decides the fate of a request carrying the given Authorization
// header value ("" when absent).
func (c *Controller) Handle(ctx context.Context, authorization string) Outcome {
	ctx, span := c.tracer.Start(ctx, "gateway.Handle")
	defer span.End()

	out, label, err := c.decide(ctx, authorization)

	c.metrics.Decision(label)
	span.SetAttributes(attribute.String("gateway.outcome", label))
	if out.TenantID != "" {
		span.SetAttributes(attribute.String("tenant.id", out.TenantID))
	}

	switch {
	case out.Forward:
		c.logger.DebugContext(ctx, "request authorized", "tenant_id", out.TenantID)
	case out.Status >= http.StatusInternalServerError:
		span.RecordError(err)
		span.SetStatus(codes.Error, out.Body.Message)
		c.logger.ErrorContext(ctx, "token exchange failed",
			"tenant_id", out.TenantID,
			"outcome", label,
			"error", err,
		)
	default:
		span.SetStatus(codes.Error, out.Body.Message)
		c.logger.DebugContext(ctx, "request rejected",
			"tenant_id", out.TenantID,
			"outcome", label,
			"status", out.Status,
			"error", err,
		)
	}
	return out
}

func (c *Controller) decide(ctx context.Context, authorization string) (Outcome, string, error) {
	raw, ok := strings.CutPrefix(authorization, bearerPrefix)
	if !ok {
		return reject(http.StatusUnauthorized, ErrorUnauthorized, MessageBadHeader), OutcomeMalformedHeader, ErrMalformedHeader
	}

	verified, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		out, label := classify(err)
		return out, label, err
	}

	internal, err := c.mint(ctx, verified)
	if err != nil {
		out := reject(http.StatusInternalServerError, ErrorChangeToken, sserr.PublicMessage(err))
		out.TenantID = verified.TenantID
		return out, OutcomeExchangeFailed, err
	}

	return Outcome{
		Forward:       true,
		Authorization: bearerPrefix + internal,
		TenantID:      verified.TenantID,
	}, OutcomeForward, nil
}

// classify maps verification errors onto rejections. Errors that match no
// known class are answered like undecodable tokens.
func classify(err error) (Outcome, string) {
	var sigErr *token.SignatureError
	switch {
	case errors.As(err, &sigErr):
		out := reject(http.StatusUnauthorized, ErrorUnauthorized, sigErr.Error())
		out.TenantID = sigErr.TenantID
		return out, OutcomeSignatureInvalid
	case errors.Is(err, token.ErrTenantNotFound):
		return reject(http.StatusUnauthorized, ErrorUnauthorized, MessageNoTenant), OutcomeTenantNotFound
	default:
		return reject(http.StatusUnauthorized, ErrorUnauthorized, MessageBadToken), OutcomeInvalidToken
	}
}

func (c *Controller) mint(ctx context.Context, verified token.Verified) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.mintTimeout)
	defer cancel()

	internal, err := c.minter.Mint(ctx, verified.TenantID, mintPayload(verified))
	if err != nil {
		return "", err
	}
	if internal == "" || !httpguts.ValidHeaderFieldValue(bearerPrefix+internal) {
		return "", sserr.New(exchange.ErrMintFailed.Code, messageBadMinted)
	}
	return internal, nil
}

// mintPayload carries the caller's subject into the internal token.
func mintPayload(verified token.Verified) map[string]any {
	payload := map[string]any{}
	if sub, ok := verified.Claims["sub"].(string); ok && sub != "" {
		payload["sub"] = sub
	}
	return payload
}
