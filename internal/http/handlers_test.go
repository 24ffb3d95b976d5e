package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpg-mentor/internal/apperr"
	"cpg-mentor/internal/logger"
	"cpg-mentor/pkg"
)

const (
	testCaseID = "7f1d2c3b-0000-4000-8000-000000000001"
	testUserID = "7f1d2c3b-0000-4000-8000-000000000002"
	testConvID = "7f1d2c3b-0000-4000-8000-000000000003"
)

type fakeTurns struct {
	got  pkg.TurnRequest
	resp *pkg.TurnResponse
	err  error
}

func (f *fakeTurns) HandleTurn(_ context.Context, req pkg.TurnRequest) (*pkg.TurnResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeConversations struct {
	conv      *pkg.Conversation
	err       error
	abandoned bool
}

func (f *fakeConversations) Get(_ context.Context, userID, id string) (*pkg.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conv, nil
}

func (f *fakeConversations) Abandon(_ context.Context, userID, id string) (*pkg.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.abandoned = true
	c := *f.conv
	c.Status = pkg.StatusAbandoned
	return &c, nil
}

func newTestRouter(turns *fakeTurns, convs *fakeConversations) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewServer(turns, convs, logger.Nop()), logger.Nop())
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(&fakeTurns{}, &fakeConversations{})
	w := doJSON(t, r, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestChatSuccess(t *testing.T) {
	resumed := false
	turns := &fakeTurns{resp: &pkg.TurnResponse{
		Response:       "Let's work through Maria's case together.",
		ConversationID: testConvID,
		IsResumed:      &resumed,
		UpdatedState:   pkg.ConversationState{CurrentStepNumber: 1, TotalSteps: 4},
	}}
	r := newTestRouter(turns, &fakeConversations{})

	w := doJSON(t, r, http.MethodPost, "/api/chat", map[string]any{
		"caseId":            testCaseID,
		"userId":            testUserID,
		"message":           "",
		"isFirstMessage":    true,
		"conversationState": map[string]any{"currentStepNumber": 1, "totalSteps": 4},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, turns.got.IsFirstMessage)
	assert.Equal(t, testCaseID, turns.got.CaseID)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, testConvID, body["conversationId"])
	assert.Equal(t, false, body["isResumed"])
	assert.Equal(t, false, body["shouldAdvanceStep"])
	state := body["updatedState"].(map[string]any)
	assert.EqualValues(t, 1, state["currentStepNumber"])
}

func TestChatRejectsBadIDs(t *testing.T) {
	turns := &fakeTurns{}
	r := newTestRouter(turns, &fakeConversations{})

	w := doJSON(t, r, http.MethodPost, "/api/chat", map[string]any{
		"caseId":  "not-a-uuid",
		"userId":  testUserID,
		"message": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Error.Code)

	w = doJSON(t, r, http.MethodPost, "/api/chat", map[string]any{"caseId": testCaseID, "message": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, turns.got.CaseID)
}

func TestChatMalformedBody(t *testing.T) {
	r := newTestRouter(&fakeTurns{}, &fakeConversations{})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"not found", apperr.NotFound("patient case not found"), http.StatusNotFound, "not_found", "patient case not found"},
		{"model", apperr.ModelUnavailable(errors.New("timeout")), http.StatusBadGateway, "model_unavailable", ""},
		{"conflict", apperr.Conflict("conversation already completed"), http.StatusConflict, "conflict", "conversation already completed"},
		{"internal hides detail", apperr.Internal("persist conversation", errors.New("pq: secret detail")), http.StatusInternalServerError, "internal", "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeTurns{err: tc.err}, &fakeConversations{})
			w := doJSON(t, r, http.MethodPost, "/api/chat", map[string]any{
				"caseId": testCaseID, "userId": testUserID, "message": "hello",
			})
			assert.Equal(t, tc.status, w.Code)
			env := decodeError(t, w)
			assert.Equal(t, tc.code, env.Error.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, env.Error.Message)
			}
			assert.NotContains(t, env.Error.Message, "secret detail")
		})
	}
}

func TestGetConversation(t *testing.T) {
	convs := &fakeConversations{conv: &pkg.Conversation{ID: testConvID, UserID: testUserID, Status: pkg.StatusInProgress, CurrentPathwayStep: 2}}
	r := newTestRouter(&fakeTurns{}, convs)

	w := doJSON(t, r, http.MethodGet, "/api/conversations/"+testConvID+"?userId="+testUserID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got pkg.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.CurrentPathwayStep)

	w = doJSON(t, r, http.MethodGet, "/api/conversations/"+testConvID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConversationNotFound(t *testing.T) {
	r := newTestRouter(&fakeTurns{}, &fakeConversations{err: apperr.NotFound("conversation not found")})
	w := doJSON(t, r, http.MethodGet, "/api/conversations/"+testConvID+"?userId="+testUserID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAbandonConversation(t *testing.T) {
	convs := &fakeConversations{conv: &pkg.Conversation{ID: testConvID, UserID: testUserID, Status: pkg.StatusInProgress}}
	r := newTestRouter(&fakeTurns{}, convs)

	w := doJSON(t, r, http.MethodDelete, "/api/conversations/"+testConvID+"?userId="+testUserID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, convs.abandoned)
	var got pkg.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, pkg.StatusAbandoned, got.Status)
}
