package broker

import (
	"errors"
	"testing"
	"time"

	"deckpilot/internal/domain"
)

func testRequest(topic string) domain.GenerationRequest {
	return domain.GenerationRequest{Topic: topic, Mode: domain.ModePPT, UseNetwork: true}
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestBroker(c *clock) *Broker {
	return New(Options{
		SecretID:  "demo-id",
		SecretKey: "demo-key",
		TTL:       180 * time.Second,
		Retention: 30 * time.Second,
		Now:       c.Now,
	})
}

func TestIssueIdempotentByFingerprint(t *testing.T) {
	c := &clock{now: time.Now()}
	b := newTestBroker(c)

	first, created := b.Issue(testRequest("Q1 report"))
	if !created {
		t.Fatalf("first issue should create a ticket")
	}
	second, created := b.Issue(testRequest("Q1 report"))
	if created {
		t.Fatalf("duplicate request must reuse the live ticket")
	}
	if second.ID != first.ID {
		t.Fatalf("ticket id mismatch: %s vs %s", second.ID, first.ID)
	}

	other, created := b.Issue(testRequest("Q2 report"))
	if !created || other.ID == first.ID {
		t.Fatalf("distinct request must allocate a fresh ticket")
	}
}

func TestTicketExpiryFreesFingerprint(t *testing.T) {
	c := &clock{now: time.Now()}
	b := newTestBroker(c)

	first, _ := b.Issue(testRequest("Q1 report"))
	c.now = c.now.Add(181 * time.Second)

	second, created := b.Issue(testRequest("Q1 report"))
	if !created {
		t.Fatalf("expired fingerprint must be eligible for a brand-new ticket")
	}
	if second.ID == first.ID {
		t.Fatalf("expired ticket must not be reused")
	}
	if _, err := b.ResolveCredential(first.ID); err == nil {
		t.Fatalf("expired ticket should not resolve a credential")
	}
}

func TestMarkTransitions(t *testing.T) {
	c := &clock{now: time.Now()}
	b := newTestBroker(c)
	ticket, _ := b.Issue(testRequest("Q1 report"))

	if err := b.Mark(ticket.ID, domain.TicketCompleted); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("pending -> completed should be rejected, got %v", err)
	}
	if err := b.Mark(ticket.ID, domain.TicketInFlight); err != nil {
		t.Fatalf("pending -> in_flight: %v", err)
	}
	if err := b.Mark(ticket.ID, domain.TicketInFlight); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("in_flight -> in_flight should be rejected, got %v", err)
	}
	if err := b.Mark(ticket.ID, domain.TicketCompleted); err != nil {
		t.Fatalf("in_flight -> completed: %v", err)
	}
	if err := b.Mark(ticket.ID, domain.TicketFailed); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("terminal states must be final, got %v", err)
	}

	if err := b.Mark("missing", domain.TicketInFlight); err == nil {
		t.Fatalf("unknown ticket should fail")
	} else if classified := domain.Classify(err, domain.KindGeneratorError); classified.Kind != domain.KindTicketNotFound {
		t.Fatalf("kind = %s, want %s", classified.Kind, domain.KindTicketNotFound)
	}
}

func TestResolveCredentialSignsFresh(t *testing.T) {
	c := &clock{now: time.Now()}
	b := newTestBroker(c)
	ticket, _ := b.Issue(testRequest("Q1 report"))

	first, err := b.ResolveCredential(ticket.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.SecretID != "demo-id" {
		t.Fatalf("secret id = %q", first.SecretID)
	}
	if first.Signature == "" || first.Signature == "demo-key" {
		t.Fatalf("signature not derived")
	}

	c.now = c.now.Add(10 * time.Second)
	second, err := b.ResolveCredential(ticket.ID)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if !second.IssuedAt.After(first.IssuedAt) {
		t.Fatalf("credential must be signed at resolve time")
	}
}

func TestOutcomeRetentionWindow(t *testing.T) {
	c := &clock{now: time.Now()}
	b := newTestBroker(c)
	ticket, _ := b.Issue(testRequest("Q1 report"))

	if err := b.Mark(ticket.ID, domain.TicketInFlight); err != nil {
		t.Fatalf("mark: %v", err)
	}
	outcome := domain.JobOutcome{TicketID: ticket.ID, DownloadURL: "https://x/y.pptx", CompletedAt: c.now}
	if err := b.Complete(ticket.ID, outcome); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Inside the retention window the same fingerprint replays the ticket.
	replay, created := b.Issue(testRequest("Q1 report"))
	if created || replay.ID != ticket.ID {
		t.Fatalf("terminal ticket should replay inside retention")
	}
	got, ok := b.Outcome(ticket.ID)
	if !ok || got.DownloadURL != "https://x/y.pptx" {
		t.Fatalf("outcome = %+v, ok = %v", got, ok)
	}

	// Past retention the fingerprint frees up again.
	c.now = c.now.Add(31 * time.Second)
	fresh, created := b.Issue(testRequest("Q1 report"))
	if !created || fresh.ID == ticket.ID {
		t.Fatalf("retention elapsed, expected a fresh ticket")
	}
}

func TestFailedOutcomeMarksTicketFailed(t *testing.T) {
	c := &clock{now: time.Now()}
	b := newTestBroker(c)
	ticket, _ := b.Issue(testRequest("Q1 report"))
	_ = b.Mark(ticket.ID, domain.TicketInFlight)

	outcome := domain.JobOutcome{
		TicketID:    ticket.ID,
		Err:         domain.NewError(domain.KindGeneratorError, "quota_exceeded"),
		CompletedAt: c.now,
	}
	if err := b.Complete(ticket.ID, outcome); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, ok := b.Outcome(ticket.ID)
	if !ok || !got.Failed() || got.Err.Kind != domain.KindGeneratorError {
		t.Fatalf("outcome = %+v", got)
	}
}
