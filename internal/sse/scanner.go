package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one framed server-sent event. Type carries the "event:" field
// (empty for the default event type); Data is the payload assembled from one
// or more "data:" lines joined with newlines.
type Event struct {
	Type string
	Data string
}

// Scanner reads server-sent events from a stream. Frames are delimited by
// blank lines; comment lines (leading ":") and unknown fields are skipped.
// The scanner holds only the frame currently being assembled, never the whole
// stream.
type Scanner struct {
	r       *bufio.Reader
	current Event
	err     error
}

// NewScanner wraps the reader, typically an HTTP response body.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event and reports whether one is available.
// After Next returns false, Err distinguishes a clean end of stream from a
// read failure.
func (s *Scanner) Next() bool {
	s.current = Event{}

	var data []string
	eventType := ""

	for {
		line, err := s.r.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && len(data) > 0 {
				// Emit a final partial frame, then stop on the next call.
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				s.err = io.EOF
				return true
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(data) > 0 {
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if ok {
			value = strings.TrimPrefix(value, " ")
		} else {
			field, value = line, ""
		}
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			eventType = value
		}
	}
}

// Event returns the most recently scanned event. Valid only after Next
// returned true.
func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the first read error, with io.EOF reported as nil.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
