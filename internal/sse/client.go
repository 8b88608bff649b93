package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"deckpilot/internal/domain"
	"deckpilot/internal/signer"
)

const (
	defaultConnectTimeout   = 10 * time.Second
	defaultIdleTimeout      = 30 * time.Second
	defaultMaxReconnects    = 3
	defaultBackoffBase      = time.Second
	defaultBackoffCap       = 10 * time.Second
	defaultMaxBadFrames     = 5
	defaultCredentialWindow = 60 * time.Second
	dispatchTimeout         = 60 * time.Second
)

// CredentialFunc supplies a signed credential for one connection attempt.
// The client calls it again before a reconnect when the previous credential
// has aged past the validity window.
type CredentialFunc func() (signer.Credential, error)

// Target describes where and what to stream. The credential is embedded at
// connect time, never stored on the target.
type Target struct {
	BaseURL    string
	Query      string
	UseNetwork bool
	Tool       string
	Export     string
}

// Options configures the streaming client.
type Options struct {
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	Classifier Classifier
	// ConnectTimeout bounds connection establishment (default 10s).
	ConnectTimeout time.Duration
	// IdleTimeout aborts the stream when no event, heartbeats included,
	// arrives inside the window (default 30s).
	IdleTimeout time.Duration
	// MaxReconnects caps reconnect attempts after a dropped connection
	// (default 3).
	MaxReconnects int
	// BackoffBase and BackoffCap shape the exponential reconnect backoff
	// (defaults 1s base, doubling, capped at 10s).
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MaxBadFrames is the consecutive unparseable-frame budget before the
	// stream is declared broken (default 5).
	MaxBadFrames int
	// CredentialWindow is how long a resolved credential stays reusable
	// across reconnects (default 60s).
	CredentialWindow time.Duration
}

// Client opens one signed streaming connection per job and resolves it to a
// terminal download URL or a classified failure. It owns reconnects, backoff,
// idle detection, and the tools/call dispatch handshake.
type Client struct {
	httpClient       *http.Client
	logger           zerolog.Logger
	classifier       Classifier
	connectTimeout   time.Duration
	idleTimeout      time.Duration
	maxReconnects    int
	backoffBase      time.Duration
	backoffCap       time.Duration
	maxBadFrames     int
	credentialWindow time.Duration
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = connectTimeout
		httpClient = &http.Client{Transport: transport}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := &Client{
		httpClient:       httpClient,
		logger:           logger,
		classifier:       opts.Classifier,
		connectTimeout:   connectTimeout,
		idleTimeout:      opts.IdleTimeout,
		maxReconnects:    opts.MaxReconnects,
		backoffBase:      opts.BackoffBase,
		backoffCap:       opts.BackoffCap,
		maxBadFrames:     opts.MaxBadFrames,
		credentialWindow: opts.CredentialWindow,
	}
	if c.classifier == nil {
		c.classifier = &EventClassifier{}
	}
	if c.idleTimeout <= 0 {
		c.idleTimeout = defaultIdleTimeout
	}
	if c.maxReconnects <= 0 {
		c.maxReconnects = defaultMaxReconnects
	}
	if c.backoffBase <= 0 {
		c.backoffBase = defaultBackoffBase
	}
	if c.backoffCap <= 0 {
		c.backoffCap = defaultBackoffCap
	}
	if c.maxBadFrames <= 0 {
		c.maxBadFrames = defaultMaxBadFrames
	}
	if c.credentialWindow <= 0 {
		c.credentialWindow = defaultCredentialWindow
	}
	return c
}

// Run streams events for the target until a terminal signal, an explicit
// generator failure, the reconnect budget, or the deadline carried by ctx.
// It returns the artifact download URL on success. Every failure is a
// classified *domain.Error.
func (c *Client) Run(ctx context.Context, target Target, creds CredentialFunc) (string, error) {
	cred, err := creds()
	if err != nil {
		return "", err
	}

	var lastErr *domain.Error
	for attempt := 0; attempt <= c.maxReconnects; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", delay).
				Str("reason", lastErr.Message).
				Msg("sse: reconnecting")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", deadlineError(ctx)
			}
			if !cred.FreshWithin(c.credentialWindow, time.Now()) {
				if cred, err = creds(); err != nil {
					return "", err
				}
			}
		}

		link, retryable, attemptErr := c.attempt(ctx, target, cred)
		if attemptErr == nil {
			return link, nil
		}
		if ctx.Err() != nil {
			return "", deadlineError(ctx)
		}
		lastErr = attemptErr
		if !retryable {
			return "", attemptErr
		}
	}
	return "", lastErr
}

// attempt opens one connection and drains it. The middle return reports
// whether the failure is retryable within the reconnect budget.
func (c *Client) attempt(ctx context.Context, target Target, cred signer.Credential) (string, bool, *domain.Error) {
	streamURL, err := c.streamURL(target, cred)
	if err != nil {
		return "", false, domain.Classify(err, domain.KindProtocolError)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return "", false, domain.NewError(domain.KindConnectError, "build stream request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, domain.NewError(domain.KindConnectError, "open stream: %v", sanitizeErr(err, target.BaseURL))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", true, domain.NewError(domain.KindConnectError, "stream status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return c.consume(ctx, cancel, resp.Body, target, cred)
}

type frame struct {
	ev Event
	// done marks the end of the stream; err carries the read failure, if any.
	// An empty event is a legal frame (a bare "data:" line), so end of stream
	// is signaled explicitly rather than by a zero value.
	done bool
	err  error
}

// consume reads the event stream until a terminal verdict. It enforces the
// idle window and the consecutive bad-frame budget, and fires the tools/call
// dispatch when the generator hands out its message endpoint.
func (c *Client) consume(ctx context.Context, cancel context.CancelFunc, body io.Reader, target Target, cred signer.Credential) (string, bool, *domain.Error) {
	frames := make(chan frame, 1)
	go func() {
		scanner := NewScanner(body)
		for scanner.Next() {
			select {
			case frames <- frame{ev: scanner.Event()}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case frames <- frame{done: true, err: scanner.Err()}:
		case <-ctx.Done():
		}
	}()

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	badFrames := 0
	dispatched := false
	for {
		select {
		case <-ctx.Done():
			return "", true, deadlineError(ctx)
		case <-idle.C:
			cancel()
			return "", true, domain.NewError(domain.KindTimeoutExceeded, "no event for %s", c.idleTimeout)
		case f := <-frames:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleTimeout)

			if f.done {
				if f.err != nil {
					return "", true, domain.NewError(domain.KindConnectError, "stream read: %v", f.err)
				}
				// Clean end of stream without a terminal event; treat as a
				// dropped connection.
				return "", true, domain.NewError(domain.KindConnectError, "stream ended before terminal event")
			}

			verdict, err := c.classifier.Classify(f.ev)
			if err != nil {
				badFrames++
				c.logger.Warn().
					Int("consecutive", badFrames).
					Str("event", f.ev.Type).
					Msg("sse: skipping unparseable event frame")
				if badFrames >= c.maxBadFrames {
					return "", false, domain.NewError(domain.KindProtocolError, "%d consecutive unparseable frames", badFrames)
				}
				continue
			}
			badFrames = 0

			switch verdict.Class {
			case ClassTerminal:
				c.logger.Info().Msg("sse: terminal event received")
				return verdict.URL, false, nil
			case ClassFailure:
				return "", false, domain.NewError(domain.KindGeneratorError, "%s", verdict.Message)
			case ClassEndpoint:
				if dispatched {
					continue
				}
				if err := c.dispatch(ctx, verdict, target, cred); err != nil {
					return "", true, domain.NewError(domain.KindConnectError, "tools/call dispatch: %v", err)
				}
				dispatched = true
			}
		}
	}
}

// streamURL embeds the credential and request parameters into the generator's
// streaming endpoint.
func (c *Client) streamURL(target Target, cred signer.Credential) (string, error) {
	parsed, err := url.Parse(target.BaseURL)
	if err != nil {
		return "", fmt.Errorf("sse: parse base url: %w", err)
	}
	q := parsed.Query()
	q.Set("secret_id", cred.SecretID)
	q.Set("sign", cred.Signature)
	q.Set("query", target.Query)
	q.Set("use_network", strconv.FormatBool(target.UseNetwork))
	q.Set("status_updates", "true")
	q.Set("debug", "true")
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// dispatch POSTs the JSON-RPC tools/call that actually starts generation once
// the generator has announced its message endpoint.
func (c *Client) dispatch(ctx context.Context, verdict Classification, target Target, cred signer.Credential) error {
	params := map[string]any{
		"name": target.Tool,
		"arguments": map[string]any{
			"query":          target.Query,
			"use_network":    strconv.FormatBool(target.UseNetwork),
			"export":         target.Export,
			"status_updates": true,
			"debug":          true,
		},
	}
	if len(verdict.Context) > 0 {
		params["context"] = verdict.Context
	}
	payload, err := json.Marshal(map[string]any{
		"jsonrpc":   "2.0",
		"id":        1,
		"secret_id": cred.SecretID,
		"sign":      cred.Signature,
		"method":    "tools/call",
		"params":    params,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, verdict.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The endpoint URL carries no signature, only session context.
		return errors.New(sanitizeErr(err, verdict.URL))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	c.logger.Info().Str("tool", target.Tool).Int("status", resp.StatusCode).Msg("sse: tools/call dispatched")
	return nil
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.backoffBase << (attempt - 1)
	if delay > c.backoffCap {
		delay = c.backoffCap
	}
	return delay
}

func deadlineError(ctx context.Context) *domain.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.KindTimeoutExceeded, "job deadline exceeded")
	}
	return domain.NewError(domain.KindTimeoutExceeded, "job canceled")
}

// sanitizeErr keeps signed URLs out of error messages. Transport errors embed
// the full request URL, signature included; the base URL is all a diagnostic
// needs.
func sanitizeErr(err error, baseURL string) string {
	if err == nil {
		return ""
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Sprintf("%s %s: %v", ue.Op, baseURL, ue.Err)
	}
	return err.Error()
}
