// Package orchestrator exposes the single generate operation the boundary
// layer consumes. It owns validation, rate limiting, ticket lifecycle, and
// the collapse of duplicate submissions onto one generator connection.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"deckpilot/internal/broker"
	"deckpilot/internal/domain"
	"deckpilot/internal/signer"
	"deckpilot/internal/sse"
)

const (
	defaultDeadline     = 180 * time.Second
	defaultRateCapacity = 10
	defaultRateRefill   = 1.0
)

// Runner abstracts the streaming client so tests can substitute a stub
// generator.
type Runner interface {
	Run(ctx context.Context, target sse.Target, creds sse.CredentialFunc) (string, error)
}

// Options configures the orchestrator.
type Options struct {
	Broker *broker.Broker
	Runner Runner
	// GeneratorURL is the generator's streaming endpoint.
	GeneratorURL string
	// Deadline bounds one job end to end (default 180s).
	Deadline time.Duration
	// RateCapacity and RateRefillPerSec shape the global token bucket.
	RateCapacity     int
	RateRefillPerSec float64
	Logger           *zerolog.Logger
}

// Orchestrator drives tickets from issuance to a terminal outcome.
type Orchestrator struct {
	broker       *broker.Broker
	runner       Runner
	generatorURL string
	deadline     time.Duration
	limiter      *rate.Limiter
	group        singleflight.Group
	logger       zerolog.Logger
}

// New constructs an orchestrator.
func New(opts Options) *Orchestrator {
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	capacity := opts.RateCapacity
	if capacity <= 0 {
		capacity = defaultRateCapacity
	}
	refill := opts.RateRefillPerSec
	if refill <= 0 {
		refill = defaultRateRefill
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		broker:       opts.Broker,
		runner:       opts.Runner,
		generatorURL: opts.GeneratorURL,
		deadline:     deadline,
		limiter:      rate.NewLimiter(rate.Limit(refill), capacity),
		logger:       logger,
	}
}

// Generate resolves one generation request to a download URL or a classified
// error. Duplicate requests share the in-flight ticket's outcome instead of
// opening a second generator connection. The returned error, when non-nil,
// is always a *domain.Error.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if !o.limiter.Allow() {
		return "", domain.NewError(domain.KindRateLimited, "generation rate limit exceeded, retry later")
	}

	ticket, created := o.broker.Issue(req)
	o.logger.Info().
		Str("ticket_id", ticket.ID).
		Str("mode", string(req.Mode)).
		Bool("reused", !created).
		Msg("orchestrator: generate")

	// All callers for the same ticket funnel through one execution; the job
	// keeps running even when an individual caller goes away, since other
	// requesters may depend on it.
	ch := o.group.DoChan(ticket.ID, func() (any, error) {
		return o.runTicket(ticket), nil
	})

	select {
	case res := <-ch:
		outcome := res.Val.(domain.JobOutcome)
		if outcome.Failed() {
			return "", outcome.Err
		}
		return outcome.DownloadURL, nil
	case <-ctx.Done():
		return "", domain.NewError(domain.KindTimeoutExceeded, "request canceled before job completion")
	}
}

// runTicket drives exactly one ticket to its terminal outcome. It is entered
// once per ticket regardless of how many callers are waiting.
func (o *Orchestrator) runTicket(ticket domain.Ticket) domain.JobOutcome {
	// A duplicate submission may land here after the original completed but
	// inside the retention window; replay the recorded outcome.
	if outcome, ok := o.broker.Outcome(ticket.ID); ok {
		return outcome
	}

	if err := o.broker.Mark(ticket.ID, domain.TicketInFlight); err != nil {
		if outcome, ok := o.broker.Outcome(ticket.ID); ok {
			return outcome
		}
		return domain.JobOutcome{
			TicketID:    ticket.ID,
			Err:         domain.Classify(err, domain.KindInvalidRequest),
			CompletedAt: time.Now(),
		}
	}

	// The ticket deadline is the single cancellation signal; caller
	// lifetimes do not reach this context.
	ctx, cancel := context.WithDeadline(context.Background(), ticket.ExpiresAt)
	defer cancel()

	target := sse.Target{
		BaseURL:    o.generatorURL,
		Query:      ticket.Request.Query(),
		UseNetwork: ticket.Request.UseNetwork,
		Tool:       ticket.Request.Mode.Tool(),
		Export:     ticket.Request.Mode.ExportExtension(),
	}
	link, err := o.runner.Run(ctx, target, func() (signer.Credential, error) {
		return o.broker.ResolveCredential(ticket.ID)
	})

	outcome := domain.JobOutcome{TicketID: ticket.ID, CompletedAt: time.Now()}
	if err != nil {
		outcome.Err = domain.Classify(err, domain.KindGeneratorError)
		o.logger.Error().
			Str("ticket_id", ticket.ID).
			Str("kind", string(outcome.Err.Kind)).
			Msg("orchestrator: job failed")
	} else {
		outcome.DownloadURL = link
		o.logger.Info().Str("ticket_id", ticket.ID).Msg("orchestrator: job completed")
	}

	if err := o.broker.Complete(ticket.ID, outcome); err != nil {
		// The ticket can expire mid-flight; the outcome still goes back to
		// every waiting caller.
		o.logger.Warn().Str("ticket_id", ticket.ID).Err(err).Msg("orchestrator: record outcome failed")
	}
	return outcome
}
