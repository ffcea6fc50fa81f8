// internal/session/messages.go
//
// Wire payloads exchanged on the message bus.
//
// Outbound:
//   sequence-topic   {"colors":[int...],"terminal":bool}
//   difficulty-topic {"status":"ok","received_dif":N,"applied_difficulty":name,"timestamp":...}
//                    {"status":"error","message":...,"expected_format":{"dif":"0-2"},"timestamp":...}
//                    {"type":"reminder",...}
//   score-topic      {"score":int,"difficulte":name,"timestamp":ISO8601}
//
// Inbound:
//   difficulty-topic {"dif":0|1|2}  (integer or digit string)
//   start-topic      "true"

package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robalobadob/simon-floor/internal/game"
)

// Topics names the bus topics the session uses.
type Topics struct {
	Sequence   string
	Difficulty string
	Start      string
	Score      string
}

// DefaultTopics are the topic names used by the installation.
var DefaultTopics = Topics{
	Sequence:   "Tapis/sequence",
	Difficulty: "site/difficulte",
	Start:      "site/start",
	Score:      "Tapis/score",
}

// SequenceMessage drives the LEDs and the audio cue player.
type SequenceMessage struct {
	Colors   []int `json:"colors"`
	Terminal bool  `json:"terminal"`
}

// DifficultyReply answers an inbound difficulty selection.
type DifficultyReply struct {
	Status            string            `json:"status"`
	ReceivedDif       *int              `json:"received_dif,omitempty"`
	AppliedDifficulty string            `json:"applied_difficulty,omitempty"`
	Message           string            `json:"message,omitempty"`
	ExpectedFormat    map[string]string `json:"expected_format,omitempty"`
	Timestamp         string            `json:"timestamp"`
}

// Reminder is published while the session waits for a difficulty.
type Reminder struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Format    map[string]any `json:"format"`
	Example   map[string]int `json:"example"`
	Timestamp string         `json:"timestamp"`
}

// ScoreMessage is published once per ended game.
type ScoreMessage struct {
	Score          int    `json:"score"`
	Difficulty     string `json:"difficulte"`
	Timestamp      string `json:"timestamp"`
	EndedWithError bool   `json:"ended_with_error,omitempty"`
}

// MalformedMessageError reports an inbound payload failing schema checks.
type MalformedMessageError struct {
	Reason string
}

func (e *MalformedMessageError) Error() string { return "malformed message: " + e.Reason }

func malformed(format string, args ...any) error {
	return &MalformedMessageError{Reason: fmt.Sprintf(format, args...)}
}

var expectedDifficultyFormat = map[string]string{"dif": "0-2"}

func timestamp(t time.Time) string { return t.Format(time.RFC3339) }

func newReminder(now time.Time) Reminder {
	values := map[string]string{}
	for d := range game.Presets {
		values[strconv.Itoa(int(d))] = d.String()
	}
	return Reminder{
		Type:    "reminder",
		Message: "waiting for difficulty",
		Format: map[string]any{
			"dif": map[string]any{"type": "integer", "values": values},
		},
		Example:   map[string]int{"dif": 1},
		Timestamp: timestamp(now),
	}
}

// parseDifficulty decodes an inbound difficulty payload. ignore is true for
// messages that are our own replies echoed by the broker.
func parseDifficulty(payload []byte) (code int, ignore bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return 0, false, malformed("invalid JSON: %v", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return 0, false, malformed("expected an object like {\"dif\": 0-2}")
	}
	if _, ok := obj["status"]; ok {
		return 0, true, nil
	}
	if _, ok := obj["type"]; ok {
		return 0, true, nil
	}
	v, ok := obj["dif"]
	if !ok {
		return 0, false, malformed("missing field \"dif\"")
	}

	switch x := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(x.String())
		if err != nil {
			return 0, false, malformed("\"dif\" must be an integer, got %s", x)
		}
		code = n
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false, malformed("\"dif\" must be an integer, got %q", x)
		}
		code = n
	default:
		return 0, false, malformed("\"dif\" must be an integer, got %T", v)
	}

	if _, err := game.ParseDifficulty(code); err != nil {
		return code, false, malformed("%v", err)
	}
	return code, false, nil
}

// isStart reports whether a start-topic payload requests a new game.
func isStart(payload []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(payload)), "true")
}
