package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailpulse/api/handlers"
	"github.com/customeros/mailpulse/api/middleware"
	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
)

type stubRepository struct {
	interfaces.MailRecordRepository

	mu       sync.Mutex
	records  map[string]*models.MailRecord
	listed   []*models.MailRecord
	filter   dto.MailRecordFilter
	replied  map[string]string
	countErr error
}

func (s *stubRepository) ListClassified(_ context.Context, filter dto.MailRecordFilter) ([]*models.MailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filter
	return s.listed, nil
}

func (s *stubRepository) GetByID(_ context.Context, id string) (*models.MailRecord, error) {
	return s.records[id], nil
}

func (s *stubRepository) MarkReplied(_ context.Context, id, replyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replied[id] = replyID
	return nil
}

func (s *stubRepository) CountByState(context.Context) (*dto.RecordCounts, error) {
	if s.countErr != nil {
		return nil, s.countErr
	}
	return &dto.RecordCounts{Total: 3, Classified: 2, Unclassified: 1}, nil
}

type stubMailer struct {
	sent []*interfaces.OutboundMessage
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg *interfaces.OutboundMessage) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "reply-1@example.com", nil
}

type stubIngestion struct {
	result dto.CycleResult
	status interfaces.IngestionStatus
}

func (s *stubIngestion) RunCycle(context.Context) dto.CycleResult { return s.result }

func (s *stubIngestion) Status() interfaces.IngestionStatus { return s.status }

type stubTrigger struct {
	pending bool
}

func (s *stubTrigger) TriggerPass() bool {
	if s.pending {
		return false
	}
	s.pending = true
	return true
}

type testEnv struct {
	router    *gin.Engine
	repo      *stubRepository
	mailer    *stubMailer
	ingestion *stubIngestion
}

func newTestEnv(apiKey string) *testEnv {
	gin.SetMode(gin.TestMode)

	negative := enum.SentimentNegative
	complaint := enum.CategoryComplaint
	received := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)
	rec := &models.MailRecord{
		ID:            "mail_1",
		Subject:       "RE: Late delivery",
		Sender:        "Bob",
		SenderAddress: "bob@example.org",
		Body:          "Where is my order?",
		ReceivedAt:    received,
		MessageID:     "abc@mail.example.org",
		Labels:        models.StringList{"delivery"},
		Sentiment:     &negative,
		Category:      &complaint,
		IsClassified:  true,
	}

	env := &testEnv{
		router: gin.New(),
		repo: &stubRepository{
			records: map[string]*models.MailRecord{rec.ID: rec},
			listed:  []*models.MailRecord{rec},
			replied: map[string]string{},
		},
		mailer:    &stubMailer{},
		ingestion: &stubIngestion{},
	}
	h := handlers.InitHandlers(env.repo, env.mailer, env.ingestion, &stubTrigger{}, logger.NewNopLogger())
	RegisterRoutes(env.router, h, &config.AppConfig{APIKey: apiKey, CorsAllowOrigin: "*"})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv("")
	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestAPIKey(t *testing.T) {
	env := newTestEnv("secret")

	w := env.do(t, http.MethodGet, "/api/emails", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Missing API key", decode(t, w)["error"])

	w = env.do(t, http.MethodGet, "/api/emails", "", map[string]string{middleware.APIKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid API key", decode(t, w)["error"])

	w = env.do(t, http.MethodGet, "/api/emails", "", map[string]string{middleware.APIKeyHeader: "secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays public
	w = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv("")
	w := env.do(t, http.MethodGet, "/api/emails", "", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListEmails(t *testing.T) {
	env := newTestEnv("")

	w := env.do(t, http.MethodGet, "/api/emails?label=delivery&sentiment=Negative", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "mail_1", body[0]["id"])
	assert.Equal(t, "Bob", body[0]["from"])
	assert.Equal(t, "Where is my order?", body[0]["content"])
	assert.Equal(t, "2025-02-01T09:30:00Z", body[0]["timestamp"])
	assert.Equal(t, []any{"delivery"}, body[0]["labels"])
	assert.Equal(t, false, body[0]["isAnswered"])
	assert.Equal(t, "negative", body[0]["sentiment"])
	assert.Equal(t, "complaint", body[0]["category"])

	assert.Equal(t, "delivery", env.repo.filter.Label)
	assert.Equal(t, "negative", env.repo.filter.Sentiment)
}

func TestListEmails_InvalidFilter(t *testing.T) {
	env := newTestEnv("")

	w := env.do(t, http.MethodGet, "/api/emails?sentiment=angry&limit=-1", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "sentiment")
	assert.Contains(t, fields, "limit")
}

func TestReply(t *testing.T) {
	env := newTestEnv("")

	w := env.do(t, http.MethodPost, "/api/emails/mail_1/reply", `{"content":"It ships today."}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Reply sent successfully", body["message"])

	require.Len(t, env.mailer.sent, 1)
	sent := env.mailer.sent[0]
	assert.Equal(t, "bob@example.org", sent.To)
	assert.Equal(t, "Re: Late delivery", sent.Subject)
	assert.Equal(t, "It ships today.", sent.Body)
	assert.Equal(t, "abc@mail.example.org", sent.InReplyTo)
	assert.Equal(t, "reply-1@example.com", env.repo.replied["mail_1"])
}

func TestReply_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		env := newTestEnv("")
		w := env.do(t, http.MethodPost, "/api/emails/missing/reply", `{"content":"hi"}`, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Email not found", decode(t, w)["error"])
	})

	t.Run("empty content", func(t *testing.T) {
		env := newTestEnv("")
		w := env.do(t, http.MethodPost, "/api/emails/mail_1/reply", `{"content":"  "}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, env.mailer.sent)
	})

	t.Run("send failure is generic", func(t *testing.T) {
		env := newTestEnv("")
		env.mailer.err = errors.New("535 5.7.8 bad credentials for support@example.com")
		w := env.do(t, http.MethodPost, "/api/emails/mail_1/reply", `{"content":"hi"}`, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Error sending reply", decode(t, w)["error"])
		assert.NotContains(t, w.Body.String(), "credentials")
		assert.Empty(t, env.repo.replied)
	})
}

func TestCheckEmails(t *testing.T) {
	env := newTestEnv("")
	env.ingestion.result = dto.CycleResult{CycleID: "c1", Found: 3, Inserted: 2, Duplicates: 1}

	w := env.do(t, http.MethodGet, "/api/check-emails", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	result := body["result"].(map[string]any)
	assert.Equal(t, float64(2), result["inserted"])
	assert.Equal(t, float64(1), result["duplicates"])
}

func TestCheckEmails_NotConnected(t *testing.T) {
	env := newTestEnv("")
	env.ingestion.result = dto.CycleResult{CycleID: "c1", Error: dto.CycleErrorNotConnected}

	w := env.do(t, http.MethodGet, "/api/check-emails", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestCheckEmails_TransportErrorHidden(t *testing.T) {
	env := newTestEnv("")
	env.ingestion.result = dto.CycleResult{CycleID: "c1", Error: "read tcp 10.0.0.1:993: connection reset"}

	w := env.do(t, http.MethodGet, "/api/check-emails", "", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}

func TestTriggerAnalysis(t *testing.T) {
	env := newTestEnv("")

	w := env.do(t, http.MethodGet, "/api/trigger-analysis", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Analysis started", decode(t, w)["message"])

	w = env.do(t, http.MethodGet, "/api/trigger-analysis", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Analysis already pending", decode(t, w)["message"])
}

func TestImapStatus(t *testing.T) {
	env := newTestEnv("")
	last := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	env.ingestion.status = interfaces.IngestionStatus{
		State:       enum.ConnectionIdle,
		Connected:   true,
		LastCycleAt: &last,
		LastCycle:   &dto.CycleResult{CycleID: "c9", Found: 1, Error: "secret detail"},
		LastError:   "dial tcp 10.0.0.1:993",
		Reconnects:  2,
	}

	w := env.do(t, http.MethodGet, "/api/imap-status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, "2025-02-01T10:00:00Z", body["lastCheck"])
	assert.Equal(t, float64(2), body["reconnects"])
	counts := body["counts"].(map[string]any)
	assert.Equal(t, float64(3), counts["total"])
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
	assert.NotContains(t, w.Body.String(), "secret detail")
}

func TestImapStatus_CountFailure(t *testing.T) {
	env := newTestEnv("")
	env.repo.countErr = errors.New("db down")

	w := env.do(t, http.MethodGet, "/api/imap-status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "counts")
}
