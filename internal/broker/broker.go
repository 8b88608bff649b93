// Package broker owns the in-memory ticket table. A ticket maps one logical
// generation request to one generator connection attempt sequence, so the
// signed generator URL and the secret pair never leave the trusted boundary.
package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"deckpilot/internal/domain"
	"deckpilot/internal/signer"
)

const (
	defaultTTL       = 180 * time.Second
	defaultRetention = 30 * time.Second
)

// Options configures the broker.
type Options struct {
	SecretID  string
	SecretKey string
	// TTL bounds the lifetime of a non-terminal ticket. Defaults to 180s,
	// matching the end-to-end job deadline.
	TTL time.Duration
	// Retention keeps terminal tickets around briefly so duplicate
	// submissions can replay the final outcome. Defaults to 30s.
	Retention time.Duration
	Logger    *zerolog.Logger
	// Now is injectable for tests.
	Now func() time.Time
}

type record struct {
	ticket      domain.Ticket
	outcome     *domain.JobOutcome
	retainUntil time.Time
}

// Broker is the single owner of ticket state. All reads and writes are
// serialized under one mutex; no cross-ticket ordering exists.
type Broker struct {
	mu            sync.Mutex
	secretID      string
	secretKey     string
	ttl           time.Duration
	retention     time.Duration
	logger        zerolog.Logger
	now           func() time.Time
	byID          map[string]*record
	byFingerprint map[string]string
}

// New constructs a broker with the given secret pair.
func New(opts Options) *Broker {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Broker{
		secretID:      opts.SecretID,
		secretKey:     opts.SecretKey,
		ttl:           ttl,
		retention:     retention,
		logger:        logger,
		now:           now,
		byID:          make(map[string]*record),
		byFingerprint: make(map[string]string),
	}
}

// Issue returns the ticket for the request, allocating a fresh one unless a
// live or recently terminal ticket with the same fingerprint exists. The
// second return value reports whether the ticket was newly created and the
// caller therefore owns driving it to a terminal state.
func (b *Broker) Issue(req domain.GenerationRequest) (domain.Ticket, bool) {
	fp := req.Fingerprint()

	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.byFingerprint[fp]; ok {
		if rec := b.lookupLocked(id); rec != nil {
			return rec.ticket, false
		}
	}

	now := b.now()
	ticket := domain.Ticket{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Request:     req,
		State:       domain.TicketPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(b.ttl),
	}
	b.byID[ticket.ID] = &record{ticket: ticket}
	b.byFingerprint[fp] = ticket.ID
	b.logger.Debug().
		Str("ticket_id", ticket.ID).
		Str("fingerprint", fp[:8]).
		Time("expires_at", ticket.ExpiresAt).
		Msg("broker: ticket issued")
	return ticket, true
}

// Mark transitions the ticket to the requested state. Illegal transitions
// fail with ErrInvalidTransition; unknown or expired tickets fail with the
// corresponding classified error.
func (b *Broker) Mark(ticketID string, state domain.TicketState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.lookupLocked(ticketID)
	if rec == nil {
		return domain.NewError(domain.KindTicketNotFound, "ticket %s not found", ticketID)
	}
	if !rec.ticket.State.CanTransition(state) {
		return domain.ErrInvalidTransition
	}
	rec.ticket.State = state
	if state.Terminal() {
		rec.retainUntil = b.now().Add(b.retention)
	}
	return nil
}

// ResolveCredential signs a fresh credential for a live ticket. Signing at
// resolve time, not issue time, keeps the signature window as short as the
// connection attempt it authorizes.
func (b *Broker) ResolveCredential(ticketID string) (signer.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.lookupLocked(ticketID)
	if rec == nil {
		return signer.Credential{}, domain.NewError(domain.KindTicketNotFound, "ticket %s not found", ticketID)
	}
	if rec.ticket.State == domain.TicketExpired {
		return signer.Credential{}, domain.NewError(domain.KindTicketExpired, "ticket %s expired", ticketID)
	}
	return signer.Sign(b.secretID, b.secretKey, b.now()), nil
}

// Complete records the terminal outcome for a ticket and transitions it to
// Completed or Failed. The outcome stays replayable for the retention window.
func (b *Broker) Complete(ticketID string, outcome domain.JobOutcome) error {
	state := domain.TicketCompleted
	if outcome.Failed() {
		state = domain.TicketFailed
	}
	if err := b.Mark(ticketID, state); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.byID[ticketID]; ok {
		rec.outcome = &outcome
	}
	return nil
}

// Outcome returns the recorded terminal outcome for a ticket, if any.
func (b *Broker) Outcome(ticketID string) (domain.JobOutcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.byID[ticketID]
	if !ok || rec.outcome == nil {
		return domain.JobOutcome{}, false
	}
	return *rec.outcome, true
}

// lookupLocked returns the live record for id, applying lazy expiry. Expired
// and retention-elapsed records are evicted and nil is returned.
func (b *Broker) lookupLocked(id string) *record {
	rec, ok := b.byID[id]
	if !ok {
		return nil
	}
	now := b.now()
	if !rec.ticket.State.Terminal() && now.After(rec.ticket.ExpiresAt) {
		rec.ticket.State = domain.TicketExpired
		b.evictLocked(rec)
		b.logger.Debug().Str("ticket_id", id).Msg("broker: ticket expired")
		return nil
	}
	if rec.ticket.State.Terminal() && now.After(rec.retainUntil) {
		b.evictLocked(rec)
		return nil
	}
	return rec
}

func (b *Broker) evictLocked(rec *record) {
	delete(b.byID, rec.ticket.ID)
	if cur, ok := b.byFingerprint[rec.ticket.Fingerprint]; ok && cur == rec.ticket.ID {
		delete(b.byFingerprint, rec.ticket.Fingerprint)
	}
}
