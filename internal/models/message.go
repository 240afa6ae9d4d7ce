package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Sender identifies who authored a conversation message.
type Sender string

const (
	SenderScammer  Sender = "scammer"
	SenderOperator Sender = "user"
)

// Message is a single normalized conversation turn. Immutable once built.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FromScammer reports whether the counterpart authored the message.
func (m Message) FromScammer() bool {
	return m.Sender == SenderScammer
}

// UnmarshalJSON normalizes the inbound shape into a Message. The portal
// sends messages as objects with string, epoch-second or epoch-millisecond
// timestamps, and sometimes as a bare string. Each field is decoded on its
// own, so a malformed field defaults without poisoning its siblings, and
// decoding never returns an error.
func (m *Message) UnmarshalJSON(data []byte) error {
	m.Sender = SenderScammer
	m.Text = ""
	m.Timestamp = time.Now().UTC()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil {
		if raw, ok := fields["sender"]; ok {
			var sender string
			if json.Unmarshal(raw, &sender) == nil && sender != "" {
				m.Sender = Sender(sender)
			}
		}
		if raw, ok := fields["text"]; ok {
			var text string
			if json.Unmarshal(raw, &text) == nil {
				m.Text = text
			}
		}
		if raw, ok := fields["timestamp"]; ok {
			m.Timestamp = parseTimestamp(raw)
		}
		return nil
	}

	// Bare string message.
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		m.Text = text
		return nil
	}

	// Anything else (number, bool, array) keeps its literal text so the
	// extraction pass still sees it.
	if s := strings.TrimSpace(string(data)); s != "null" {
		m.Text = s
	}
	return nil
}

// parseTimestamp accepts an ISO-8601 string or a numeric epoch value. Values
// above 1e10 are milliseconds, everything else seconds. Unparsable input
// falls back to the current time.
func parseTimestamp(raw json.RawMessage) time.Time {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Now().UTC()
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n > 1e10 {
			n /= 1000.0
		}
		sec := int64(n)
		nsec := int64((n - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC()
	}

	unquoted := strings.Trim(s, `"`)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, unquoted); err == nil {
			return t.UTC()
		}
	}

	// Numeric epoch wrapped in quotes shows up from some clients.
	if n, err := strconv.ParseFloat(unquoted, 64); err == nil {
		if n > 1e10 {
			n /= 1000.0
		}
		return time.Unix(int64(n), 0).UTC()
	}

	return time.Now().UTC()
}
