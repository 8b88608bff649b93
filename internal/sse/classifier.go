package sse

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Class labels what an event means for the job.
type Class int

const (
	// ClassIgnorable covers heartbeats and progress chatter.
	ClassIgnorable Class = iota
	// ClassTerminal carries the final artifact download URL.
	ClassTerminal
	// ClassFailure is an explicit failure signaled by the generator.
	ClassFailure
	// ClassEndpoint carries the message-post URL the generator expects the
	// tools/call dispatch on.
	ClassEndpoint
)

// Classification is the classifier verdict for one event.
type Classification struct {
	Class   Class
	URL     string         // terminal download URL or endpoint URL
	Message string         // failure message
	Context map[string]any // session context extracted from an endpoint event
}

// Classifier maps a raw event to a verdict. Implementations isolate the
// generator's wire shape, so protocol drift stays in one swappable component.
// A non-nil error marks the frame as unparseable; the caller decides how many
// of those to tolerate.
type Classifier interface {
	Classify(ev Event) (Classification, error)
}

// DefaultPreferredExtensions ranks artifact URL candidates when the generator
// does not name the download explicitly.
var DefaultPreferredExtensions = []string{"pptx", "docx", "xlsx", "pdf", "zip"}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// sessionKeys are the context fields an endpoint event may carry, in payload
// or query-string form.
var sessionKeys = []string{"session_id", "sessionId", "conversation_id", "conversationId", "channel", "room"}

// EventClassifier understands the generator's event shapes: ping heartbeats,
// endpoint handshakes, explicit terminal/error payloads, and free-form status
// text that may embed the artifact URL.
type EventClassifier struct {
	// BaseURL resolves relative endpoint paths.
	BaseURL string
	// PreferredExtensions overrides DefaultPreferredExtensions when set.
	PreferredExtensions []string
}

// Classify implements Classifier.
func (c *EventClassifier) Classify(ev Event) (Classification, error) {
	data := strings.TrimSpace(ev.Data)
	if data == "" {
		return Classification{Class: ClassIgnorable}, nil
	}

	var payload map[string]any
	parsed := false
	if strings.HasPrefix(data, "{") {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return Classification{}, fmt.Errorf("sse: unparseable event frame: %w", err)
		}
		parsed = true
	}

	if parsed {
		if method, _ := payload["method"].(string); method == "ping" {
			return Classification{Class: ClassIgnorable}, nil
		}
		if link := explicitDownloadURL(payload); link != "" {
			return Classification{Class: ClassTerminal, URL: link}, nil
		}
	}

	if ev.Type == "endpoint" {
		endpoint, sessionCtx := c.endpointFrom(data, payload)
		if endpoint == "" {
			return Classification{}, fmt.Errorf("sse: endpoint event without target")
		}
		return Classification{Class: ClassEndpoint, URL: endpoint, Context: sessionCtx}, nil
	}

	if ev.Type == "error" {
		return Classification{Class: ClassFailure, Message: failureMessage(data, payload)}, nil
	}
	if parsed {
		if msg, ok := payload["error"].(string); ok && msg != "" {
			return Classification{Class: ClassFailure, Message: msg}, nil
		}
	}
	if strings.Contains(strings.ToLower(data), "token exhausted") {
		return Classification{Class: ClassFailure, Message: "token exhausted"}, nil
	}

	if link := c.bestURL(data); link != "" {
		return Classification{Class: ClassTerminal, URL: link}, nil
	}
	return Classification{Class: ClassIgnorable}, nil
}

// explicitDownloadURL honors the generator's own terminal marker. An explicit
// field always wins over heuristic URL election.
func explicitDownloadURL(payload map[string]any) string {
	for _, key := range []string{"file_url", "download_url"} {
		if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
			return unescapeAmp(strings.TrimSpace(v))
		}
	}
	return ""
}

func failureMessage(data string, payload map[string]any) string {
	if payload != nil {
		for _, key := range []string{"error", "message"} {
			if v, ok := payload[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return data
}

// endpointFrom extracts the message-post URL and any session context from an
// endpoint event. The payload is either a bare URL/path or a JSON object with
// an endpoint/url field.
func (c *EventClassifier) endpointFrom(data string, payload map[string]any) (string, map[string]any) {
	endpoint := data
	sessionCtx := map[string]any{}
	if payload != nil {
		endpoint = ""
		for _, key := range []string{"endpoint", "url"} {
			if v, ok := payload[key].(string); ok && v != "" {
				endpoint = v
				break
			}
		}
		if nested, ok := payload["context"].(map[string]any); ok {
			for k, v := range nested {
				sessionCtx[k] = v
			}
		}
		for _, key := range sessionKeys {
			if v, ok := payload[key]; ok {
				sessionCtx[key] = v
			}
		}
	}
	if endpoint == "" {
		return "", sessionCtx
	}
	if strings.HasPrefix(endpoint, "/") {
		endpoint = strings.TrimRight(originOf(c.BaseURL), "/") + endpoint
	}
	if parsed, err := url.Parse(endpoint); err == nil {
		q := parsed.Query()
		for _, key := range sessionKeys {
			if v := q.Get(key); v != "" {
				sessionCtx[key] = v
			}
		}
	}
	if len(sessionCtx) == 0 {
		sessionCtx = nil
	}
	return endpoint, sessionCtx
}

func originOf(base string) string {
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" {
		return base
	}
	return parsed.Scheme + "://" + parsed.Host
}

// bestURL elects the most plausible artifact URL out of free-form payload
// text. Preferred document extensions rank first, then download markers.
func (c *EventClassifier) bestURL(data string) string {
	candidates := urlPattern.FindAllString(data, -1)
	if len(candidates) == 0 {
		return ""
	}
	seen := map[string]struct{}{}
	unique := candidates[:0]
	for _, u := range candidates {
		u = unescapeAmp(u)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}
	exts := c.PreferredExtensions
	if len(exts) == 0 {
		exts = DefaultPreferredExtensions
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return scoreURL(unique[i], exts) > scoreURL(unique[j], exts)
	})
	return unique[0]
}

func scoreURL(u string, exts []string) int {
	s := strings.ToLower(u)
	score := 10
	for i, ext := range exts {
		if strings.HasSuffix(s, "."+strings.ToLower(ext)) {
			score += 100 - (i + 1)
		}
	}
	if strings.Contains(s, "download") || strings.Contains(s, "export") || strings.Contains(s, "file") {
		score += 15
	}
	if strings.Contains(s, "signature=") || strings.Contains(s, "token=") {
		score += 10
	}
	return score
}

// unescapeAmp undoes the & escaping some generator payloads apply to
// query separators.
func unescapeAmp(u string) string {
	return strings.ReplaceAll(u, `\u0026`, "&")
}

var _ Classifier = (*EventClassifier)(nil)
