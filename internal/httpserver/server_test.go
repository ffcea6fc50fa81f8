package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/simon-floor/internal/game"
	"github.com/robalobadob/simon-floor/internal/scores"
	"github.com/robalobadob/simon-floor/internal/session"
)

const testPassword = "floor-operator"

var testHash = func() string {
	h, err := HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return h
}()

func newTestServer(t *testing.T, c *MockController, st scores.Store) *Server {
	t.Helper()
	if st == nil {
		st = scores.NewMemory()
	}
	return New(c, st, Options{
		JWTSecret:    "test-secret",
		PasswordHash: testHash,
		InputMode:    func() string { return "keyboard" },
	})
}

func do(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	s.Router().ServeHTTP(res, req)
	return res
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	res := do(s, http.MethodPost, "/auth/login", `{"password":"`+testPassword+`"}`, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestHealthAndStatus(t *testing.T) {
	c := &MockController{}
	c.On("Status").Return(session.Status{Phase: "running", Difficulty: "hard", Round: 3, Length: 6, Score: 4, RemainingMs: 1500})
	s := newTestServer(t, c, nil)

	res := do(s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"ok":true}`, res.Body.String())

	res = do(s, http.MethodGet, "/status", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"phase":"running","difficulty":"hard","round":3,"sequenceLength":6,"score":4,"remainingMs":1500,"inputMode":"keyboard"}`,
		res.Body.String())
	c.AssertExpectations(t)
}

func TestScores(t *testing.T) {
	st := scores.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.Record(ctx, session.Result{SessionID: "a", Score: 2, Difficulty: game.Easy, Reason: "timeout", EndedAt: base}))
	require.NoError(t, st.Record(ctx, session.Result{SessionID: "b", Score: 5, Difficulty: game.Hard, Reason: "mismatch", EndedAt: base.Add(time.Hour)}))
	s := newTestServer(t, &MockController{}, st)

	var top []scores.Entry
	res := do(s, http.MethodGet, "/scores?limit=1", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&top))
	require.Len(t, top, 1)
	assert.Equal(t, "b", top[0].SessionID)

	var recent []scores.Entry
	res = do(s, http.MethodGet, "/scores?order=recent", "", "")
	require.NoError(t, json.NewDecoder(res.Body).Decode(&recent))
	require.Len(t, recent, 2)

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/scores?limit=x", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/scores?order=worst", "", "").Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, &MockController{}, nil)

	res := do(s, http.MethodPost, "/auth/login", `{"password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = do(s, http.MethodPost, "/auth/login", `{"password":"`+testPassword+`"}`, "")
	require.Equal(t, http.StatusOK, res.Code)
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "simon_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subject":"operator"}`, rec.Body.String())
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	s := New(&MockController{}, scores.NewMemory(), Options{})
	res := do(s, http.MethodPost, "/auth/login", `{"password":""}`, "")
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestGameRoutesRequireAuth(t *testing.T) {
	c := &MockController{}
	s := newTestServer(t, c, nil)

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/game/start", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/game/abort", "", "garbage").Code)

	forged, _, err := New(c, scores.NewMemory(), Options{JWTSecret: "other"}).signJWT(operatorSubject)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/game/start", "", forged).Code)
	c.AssertNotCalled(t, "Start")
}

func TestStartGame(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		setup func(*MockController)
		code  int
		want  string
	}{
		{
			name:  "no difficulty",
			body:  "",
			setup: func(c *MockController) { c.On("Start").Return(nil) },
			code:  http.StatusAccepted,
			want:  `{"status":"started"}`,
		},
		{
			name: "with difficulty",
			body: `{"dif":2}`,
			setup: func(c *MockController) {
				c.On("SelectDifficulty", 2).Return(game.Hard, nil)
				c.On("Start").Return(nil)
			},
			code: http.StatusAccepted,
			want: `{"status":"started","difficulty":"hard"}`,
		},
		{
			name: "invalid difficulty",
			body: `{"dif":7}`,
			setup: func(c *MockController) {
				c.On("SelectDifficulty", 7).Return(game.Easy, &session.MalformedMessageError{Reason: "unknown difficulty code 7"})
			},
			code: http.StatusBadRequest,
		},
		{
			name: "difficulty while running",
			body: `{"dif":1}`,
			setup: func(c *MockController) {
				c.On("SelectDifficulty", 1).Return(game.Medium, session.ErrGameInProgress)
			},
			code: http.StatusConflict,
		},
		{
			name: "difficulty for a waiting game",
			body: `{"dif":1}`,
			setup: func(c *MockController) {
				c.On("SelectDifficulty", 1).Return(game.Medium, nil)
				c.On("Start").Return(session.ErrAlreadyRunning)
			},
			code: http.StatusAccepted,
			want: `{"status":"difficulty_applied","difficulty":"medium"}`,
		},
		{
			name:  "already running",
			body:  `{}`,
			setup: func(c *MockController) { c.On("Start").Return(session.ErrAlreadyRunning) },
			code:  http.StatusConflict,
		},
		{
			name:  "bad json",
			body:  `{"dif":`,
			setup: func(c *MockController) {},
			code:  http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &MockController{}
			tc.setup(c)
			s := newTestServer(t, c, nil)

			res := do(s, http.MethodPost, "/game/start", tc.body, login(t, s))
			assert.Equal(t, tc.code, res.Code, res.Body.String())
			if tc.want != "" {
				assert.JSONEq(t, tc.want, res.Body.String())
			}
			c.AssertExpectations(t)
		})
	}
}

func TestAbortGame(t *testing.T) {
	c := &MockController{}
	c.On("Abort").Return(nil).Once()
	c.On("Abort").Return(session.ErrNotRunning).Once()
	s := newTestServer(t, c, nil)
	tok := login(t, s)

	assert.Equal(t, http.StatusAccepted, do(s, http.MethodPost, "/game/abort", "", tok).Code)
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/game/abort", "", tok).Code)
	c.AssertExpectations(t)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &MockController{}, nil)
	res := do(s, http.MethodOptions, "/game/start", "", "")
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, "http://localhost:5173", res.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, &MockController{}, nil)
	res := do(s, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, res.Code)
}
