package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/simon-floor/internal/bus"
)

func TestParseDifficulty(t *testing.T) {
	cases := []struct {
		name      string
		payload   string
		code      int
		ignore    bool
		malformed bool
	}{
		{"integer", `{"dif": 1}`, 1, false, false},
		{"digit string", `{"dif": "2"}`, 2, false, false},
		{"padded string", `{"dif": " 0 "}`, 0, false, false},
		{"out of range", `{"dif": 5}`, 5, false, true},
		{"negative", `{"dif": -1}`, -1, false, true},
		{"float", `{"dif": 1.5}`, 0, false, true},
		{"word", `{"dif": "hard"}`, 0, false, true},
		{"missing field", `{"level": 1}`, 0, false, true},
		{"not an object", `[1]`, 0, false, true},
		{"not json", `dif=1`, 0, false, true},
		{"own reply", `{"status":"ok","received_dif":1}`, 0, true, false},
		{"own reminder", `{"type":"reminder"}`, 0, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, ignore, err := parseDifficulty([]byte(tc.payload))
			assert.Equal(t, tc.ignore, ignore)
			if tc.malformed {
				var mm *MalformedMessageError
				require.ErrorAs(t, err, &mm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestIsStart(t *testing.T) {
	assert.True(t, isStart([]byte("true")))
	assert.True(t, isStart([]byte(" TRUE\n")))
	assert.False(t, isStart([]byte("false")))
	assert.False(t, isStart([]byte(`{"start":true}`)))
}

func TestHandleDifficultyReplies(t *testing.T) {
	b := bus.NewMemory()
	defer b.Close()
	replies, err := b.Subscribe(DefaultTopics.Difficulty)
	require.NoError(t, err)
	s := New(b, Options{})
	defer s.Stop()

	s.HandleDifficulty(context.Background(), []byte(`{"dif": 2}`))
	var ok DifficultyReply
	require.NoError(t, json.Unmarshal(next(t, replies), &ok))
	assert.Equal(t, "ok", ok.Status)
	assert.Equal(t, "hard", ok.AppliedDifficulty)
	require.NotNil(t, ok.ReceivedDif)
	assert.Equal(t, 2, *ok.ReceivedDif)

	s.HandleDifficulty(context.Background(), []byte(`{"dif": 9}`))
	var bad DifficultyReply
	require.NoError(t, json.Unmarshal(next(t, replies), &bad))
	assert.Equal(t, "error", bad.Status)
	assert.Equal(t, map[string]string{"dif": "0-2"}, bad.ExpectedFormat)

	// The pending selection is unchanged by the malformed message.
	d, pending := s.takePending()
	assert.True(t, pending)
	assert.Equal(t, "hard", d.String())

	s.HandleDifficulty(context.Background(), []byte(`{"status":"ok"}`))
	select {
	case m := <-replies.C():
		t.Fatalf("echoed reply answered: %s", m.Payload)
	default:
	}
}

func TestHandleStartIgnoresOtherPayloads(t *testing.T) {
	s := New(bus.NewMemory(), Options{})
	defer s.Stop()

	s.HandleStart([]byte("false"))
	assert.Equal(t, NotStarted, s.Phase())

	s.HandleStart([]byte("true"))
	assert.NotEqual(t, NotStarted, s.Phase())
	s.HandleStart([]byte("true"))
}

func TestListenDispatchesCommands(t *testing.T) {
	b := bus.NewMemory()
	defer b.Close()
	seq, err := b.Subscribe(DefaultTopics.Sequence)
	require.NoError(t, err)

	s := New(b, Options{Presets: quickPresets(time.Second)})
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Listen(ctx, b) }()

	assert.Eventually(t, func() bool {
		_ = b.Publish(ctx, DefaultTopics.Difficulty, []byte(`{"dif": 0}`))
		_ = b.Publish(ctx, DefaultTopics.Start, []byte("true"))
		return s.Phase() != NotStarted
	}, time.Second, 10*time.Millisecond)

	m := nextSequence(t, seq)
	assert.True(t, m.Terminal)

	cancel()
	assert.NoError(t, <-done)
}
