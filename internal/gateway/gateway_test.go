package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/memerelay/internal/config"
	"github.com/flemzord/memerelay/internal/telegram"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBot struct {
	webhookSet     *telegram.SetWebhookRequest
	webhookDeleted bool
	getMeErr       error
}

func (b *fakeBot) GetMe(context.Context) (*telegram.User, error) {
	if b.getMeErr != nil {
		return nil, b.getMeErr
	}
	return &telegram.User{ID: 1, IsBot: true, Username: "memerelay_bot"}, nil
}

func (b *fakeBot) SetWebhook(_ context.Context, req telegram.SetWebhookRequest) error {
	b.webhookSet = &req
	return nil
}

func (b *fakeBot) DeleteWebhook(context.Context) error {
	b.webhookDeleted = true
	return nil
}

type fakeDispatcher struct {
	dispatched []*telegram.Message
	err        error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg *telegram.Message) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, msg)
	return nil
}

func newTestServer(secret string, d Dispatcher) *Server {
	cfg := config.ServerConfig{Bind: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second, ShutdownTimeout: time.Second}
	return NewServer(cfg, config.TelegramConfig{
		Token:         "123:abc",
		ChannelID:     -100200300,
		WebhookSecret: secret,
	}, &fakeBot{}, d, testLogger())
}

func doRequest(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestLiveness(t *testing.T) {
	s := newTestServer("", &fakeDispatcher{})
	rec := doRequest(t, s, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET / = %d %q, want 200 OK", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer("", &fakeDispatcher{})
	rec := doRequest(t, s, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", rec.Code)
	}
}

func TestWebhookDispatchesMessage(t *testing.T) {
	d := &fakeDispatcher{}
	s := newTestServer("", d)

	update := `{"update_id": 1, "message": {"message_id": 5, "from": {"id": 42, "first_name": "A"}, "chat": {"id": 42, "type": "private"}, "text": "/help"}}`
	rec := doRequest(t, s, http.MethodPost, "/webhook", update, nil)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("response = %d %q, want 200 OK", rec.Code, rec.Body.String())
	}
	if len(d.dispatched) != 1 {
		t.Fatalf("dispatched = %d, want 1", len(d.dispatched))
	}
	if d.dispatched[0].MessageID != 5 {
		t.Errorf("MessageID = %d, want 5", d.dispatched[0].MessageID)
	}
}

func TestWebhookSecretMismatch(t *testing.T) {
	d := &fakeDispatcher{}
	s := newTestServer("hunter2", d)

	rec := doRequest(t, s, http.MethodPost, "/webhook", `{"update_id":1}`, map[string]string{
		secretTokenHeader: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/webhook", `{"update_id":1}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: code = %d, want 401", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/webhook", `{"update_id":1}`, map[string]string{
		secretTokenHeader: "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("correct secret: code = %d, want 200", rec.Code)
	}
}

func TestWebhookMalformedJSON(t *testing.T) {
	s := newTestServer("", &fakeDispatcher{})

	rec := doRequest(t, s, http.MethodPost, "/webhook", `{"update_id": `, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ignored, invalid update format" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWebhookNoMessage(t *testing.T) {
	s := newTestServer("", &fakeDispatcher{})

	rec := doRequest(t, s, http.MethodPost, "/webhook", `{"update_id": 1, "channel_post": {"message_id": 9, "chat": {"id": 1, "type": "channel"}}}`, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ignored, no message" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWebhookDispatchErrorStaysOK(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("store down")}
	s := newTestServer("", d)

	update := `{"update_id": 1, "message": {"message_id": 5, "chat": {"id": 42, "type": "private"}}}`
	rec := doRequest(t, s, http.MethodPost, "/webhook", update, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("response = %d %q, want 200 OK despite handler error", rec.Code, rec.Body.String())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	bot := &fakeBot{}
	s := NewServer(
		config.ServerConfig{Bind: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second, ShutdownTimeout: time.Second},
		config.TelegramConfig{
			Token:         "123:abc",
			ChannelID:     -1,
			WebhookURL:    "https://relay.example/webhook",
			WebhookSecret: "s",
		},
		bot, &fakeDispatcher{}, testLogger(),
	)

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if bot.webhookSet == nil {
		t.Fatal("webhook not registered on start")
	}
	if bot.webhookSet.URL != "https://relay.example/webhook" || bot.webhookSet.SecretToken != "s" {
		t.Errorf("webhook request = %+v", bot.webhookSet)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if !bot.webhookDeleted {
		t.Error("webhook not deleted on stop")
	}
}

func TestStartFailsOnBadToken(t *testing.T) {
	bot := &fakeBot{getMeErr: errors.New("401 unauthorized")}
	s := NewServer(
		config.ServerConfig{Bind: "127.0.0.1:0"},
		config.TelegramConfig{Token: "123:abc", ChannelID: -1},
		bot, &fakeDispatcher{}, testLogger(),
	)
	if err := s.Start(context.Background()); err == nil {
		_ = s.Stop(context.Background())
		t.Fatal("Start() should fail when getMe fails")
	}
}
