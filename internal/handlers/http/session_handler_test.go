package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/services"
	"livesession/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, sessionID domain.SessionID, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev.SessionID = sessionID
	p.events = append(p.events, ev)
	return nil
}

type handlerFixture struct {
	router    *gin.Engine
	auth      services.AuthService
	publisher *capturingPublisher
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.NewMemorySessionRepository()
	sessionService := services.NewSessionService(repo)
	auth := services.NewAuthService("test-secret", time.Hour)
	publisher := &capturingPublisher{}

	router := gin.New()
	NewSessionHandler(sessionService, auth, publisher, zap.NewNop().Sugar()).SetupRoutes(router)

	return &handlerFixture{router: router, auth: auth, publisher: publisher}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) createSession(t *testing.T) domain.SessionID {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/sessions",
		map[string]string{"initiator": "alice", "responder": "bob"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		Session domain.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Session.ID
}

func TestCreateSessionValidatesInput(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"initiator": "alice"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions",
		map[string]string{"initiator": "alice", "responder": "bob"}, "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetSessionAndStatus(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions/"+string(id), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/"+string(id)+"/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Status domain.SessionStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, domain.StatusScheduled, out.Status)

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueJoinTokenChecksSlotAssignment(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/token",
		map[string]string{"user_id": "bob", "display_name": "Bob"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Token string      `json:"token"`
		Role  domain.Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, domain.RoleResponder, out.Role)

	claims, err := f.auth.ValidateToken(out.Token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.SessionID)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/token",
		map[string]string{"user_id": "mallory", "display_name": "Mallory"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCompleteSessionPublishesEvent(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSession(t)

	token, err := f.auth.GenerateJoinToken(id, "alice", "Alice")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/complete", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, domain.EventSessionCompleted, ev.Name)
	assert.Equal(t, id, ev.SessionID)

	payload, err := domain.DecodePayload(ev)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, payload.(*domain.SessionCompletedPayload).Status)
}

func TestCompleteSessionRequiresToken(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/complete", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCancelCompletedSessionConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.createSession(t)

	token, err := f.auth.GenerateJoinToken(id, "alice", "Alice")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/complete", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/cancel", nil, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, sessionID domain.SessionID, ev domain.Event) error {
	return errors.New("room gone")
}

func TestCompleteSessionLogsPublishFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	repo := memory.NewMemorySessionRepository()
	sessionService := services.NewSessionService(repo)
	auth := services.NewAuthService("test-secret", time.Hour)

	core, logs := observer.New(zapcore.WarnLevel)
	router := gin.New()
	NewSessionHandler(sessionService, auth, failingPublisher{}, zap.New(core).Sugar()).SetupRoutes(router)

	f := &handlerFixture{router: router, auth: auth}
	id := f.createSession(t)

	token, err := auth.GenerateJoinToken(id, "alice", "Alice")
	require.NoError(t, err)

	// The completion itself still succeeds; the responder recovers
	// through the fallback status fetch.
	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+string(id)+"/complete", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("failed to publish session-completed").Len())
}
