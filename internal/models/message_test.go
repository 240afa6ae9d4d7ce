package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageUnmarshalISOTimestamp(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"sender":"scammer","text":"hi","timestamp":"2024-03-01T10:30:00Z"}`), &m)
	require.NoError(t, err)

	assert.Equal(t, SenderScammer, m.Sender)
	assert.Equal(t, "hi", m.Text)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), m.Timestamp)
}

func TestMessageUnmarshalEpochSeconds(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"sender":"scammer","text":"hi","timestamp":1709288100}`), &m)
	require.NoError(t, err)

	assert.Equal(t, int64(1709288100), m.Timestamp.Unix())
}

func TestMessageUnmarshalEpochMilliseconds(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"sender":"scammer","text":"hi","timestamp":1709288100000}`), &m)
	require.NoError(t, err)

	// Values above 1e10 are treated as milliseconds.
	assert.Equal(t, int64(1709288100), m.Timestamp.Unix())
}

func TestMessageUnmarshalQuotedEpoch(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"sender":"scammer","text":"hi","timestamp":"1709288100000"}`), &m)
	require.NoError(t, err)

	assert.Equal(t, int64(1709288100), m.Timestamp.Unix())
}

func TestMessageUnmarshalDefaults(t *testing.T) {
	before := time.Now().UTC()

	var m Message
	err := json.Unmarshal([]byte(`{"text":"hi"}`), &m)
	require.NoError(t, err)

	assert.Equal(t, SenderScammer, m.Sender, "missing sender defaults to scammer")
	assert.False(t, m.Timestamp.Before(before), "missing timestamp defaults to now")
}

func TestMessageUnmarshalGarbageTimestamp(t *testing.T) {
	before := time.Now().UTC()

	var m Message
	err := json.Unmarshal([]byte(`{"sender":"user","text":"hi","timestamp":"soon"}`), &m)
	require.NoError(t, err)

	assert.False(t, m.Timestamp.Before(before))
}

func TestMessageUnmarshalBareString(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`"your kyc is suspended"`), &m)
	require.NoError(t, err, "a string-shaped message is accepted, not rejected")

	assert.Equal(t, SenderScammer, m.Sender)
	assert.Equal(t, "your kyc is suspended", m.Text)
	assert.False(t, m.Timestamp.IsZero())
}

func TestMessageUnmarshalBadFieldStaysFieldLocal(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"sender":42,"text":"hi","timestamp":"2024-03-01T10:30:00Z"}`), &m)
	require.NoError(t, err, "a malformed field defaults instead of failing the message")

	assert.Equal(t, SenderScammer, m.Sender, "non-string sender falls back to scammer")
	assert.Equal(t, "hi", m.Text, "sibling fields survive the malformed one")
	assert.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), m.Timestamp)
}

func TestMessageUnmarshalNonObjectKeepsLiteralText(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`9876543210`), &m))
	assert.Equal(t, "9876543210", m.Text, "scalar messages keep their literal text for extraction")

	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.Empty(t, m.Text)
}

func TestFromScammer(t *testing.T) {
	assert.True(t, Message{Sender: SenderScammer}.FromScammer())
	assert.False(t, Message{Sender: SenderOperator}.FromScammer())
}
