package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/missedmail/internal/api"
	"github.com/ricirt/missedmail/internal/api/handler"
	"github.com/ricirt/missedmail/internal/domain"
	"github.com/ricirt/missedmail/internal/mailer"
	"github.com/ricirt/missedmail/internal/metrics"
	"github.com/ricirt/missedmail/internal/notifier"
	"github.com/ricirt/missedmail/internal/replyaddress"
	"github.com/ricirt/missedmail/internal/repository"
	"github.com/ricirt/missedmail/internal/service"
)

type testServer struct {
	handler http.Handler
	store   *repository.MockMessageStore
	queue   *repository.MockPendingQueue
	outbox  *mailer.Outbox
}

func newTestServer(t *testing.T, checks map[string]handler.Check) *testServer {
	t.Helper()
	store := repository.NewMockMessageStore()
	store.AddUser(1, "Othello", "othello@example.com")
	store.AddUser(2, "Hamlet", "hamlet@example.com")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	queue := repository.NewMockPendingQueue()
	outbox := mailer.NewOutbox()
	issuer := replyaddress.NewIssuer(replyaddress.NewMemoryStore(), nil, time.Hour, "%s@reply.example.com")
	n := notifier.New(notifier.Config{
		NoReplyAddress:      "noreply@example.com",
		EmailGatewayPattern: "%s@reply.example.com",
		SendAsUser:          true,
		SiteName:            "Chat",
	}, store, issuer, outbox, zap.NewNop(), m.NotifierHooks(outbox.Name()))
	svc := service.NewMissedMessageService(queue, n, issuer, zap.NewNop())

	return &testServer{
		handler: api.NewRouter(svc, checks, reg, zap.NewNop()),
		store:   store,
		queue:   queue,
		outbox:  outbox,
	}
}

func (s *testServer) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestHealth_FailingCheck(t *testing.T) {
	s := newTestServer(t, map[string]handler.Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestEnqueueMissedMessages(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodPost, "/api/v1/missed-messages", `{"user_id":2,"message_ids":[3,4,3]}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["queued"])
	assert.Equal(t, 2, s.queue.Len())
}

func TestEnqueueMissedMessages_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodPost, "/api/v1/missed-messages", `{"user_id":2,"message_ids":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/missed-messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/missed-messages", `{"user":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueMissedMessages_UnknownUser(t *testing.T) {
	s := newTestServer(t, nil)
	s.queue.EnqueueErr = fmt.Errorf("user 404: %w", domain.ErrUserNotFound)

	rec := s.do(http.MethodPost, "/api/v1/missed-messages", `{"user_id":404,"message_ids":[1]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendDigest(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.store.SendPrivate(1, "hello there", 2)

	rec := s.do(http.MethodPost, "/api/v1/digests", `{"user_id":2,"message_ids":[`+itoa(id)+`]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["sent"])
	assert.Equal(t, "[Chat] Missed message from Othello", body["subject"])
	assert.Equal(t, `"Othello" <othello@example.com>`, body["from"])
	assert.True(t, strings.HasPrefix(body["reply_to"].(string), "mm"))
	assert.Len(t, s.outbox.Sent(), 1)
}

func TestSendDigest_NothingToSend(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.store.SendPrivate(1, "hello there", 2)
	s.store.Delete(id)

	rec := s.do(http.MethodPost, "/api/v1/digests", `{"user_id":2,"message_ids":[`+itoa(id)+`]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["sent"])
	assert.Empty(t, s.outbox.Sent())
}

func TestSendDigest_UnknownUser(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodPost, "/api/v1/digests", `{"user_id":77,"message_ids":[1]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendDigest_TransportFailure(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.store.SendPrivate(1, "hello there", 2)
	s.outbox.Fail(errors.New("mail relay down"))

	rec := s.do(http.MethodPost, "/api/v1/digests", `{"user_id":2,"message_ids":[`+itoa(id)+`]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}

func TestRedeemReplyAddress(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.store.SendPrivate(1, "hello there", 2)

	rec := s.do(http.MethodPost, "/api/v1/digests", `{"user_id":2,"message_ids":[`+itoa(id)+`]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	replyTo := decode(t, rec)["reply_to"].(string)

	rec = s.do(http.MethodPost, "/api/v1/reply-addresses/"+replyTo+"/redeem", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["user_id"])
	conv := body["conversation"].(map[string]any)
	assert.Equal(t, "personal", conv["type"])

	rec = s.do(http.MethodPost, "/api/v1/reply-addresses/"+replyTo+"/redeem", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorrelationIDEchoed(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodGet, "/health", "", "X-Correlation-ID", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))

	rec = s.do(http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.store.SendPrivate(1, "hello there", 2)
	s.do(http.MethodPost, "/api/v1/digests", `{"user_id":2,"message_ids":[`+itoa(id)+`]}`)

	rec := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `missed_message_digests_sent_total{transport="outbox"} 1`)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
