package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTEST_TOKEN/getMe" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		writeJSON(t, w, APIResponse[User]{
			OK: true,
			Result: User{
				ID:        123,
				IsBot:     true,
				FirstName: "RelayBot",
				Username:  "relay_bot",
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TEST_TOKEN", srv.URL)
	user, err := client.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe() error: %v", err)
	}
	if user.ID != 123 {
		t.Errorf("ID = %d, want 123", user.ID)
	}
	if !user.IsBot {
		t.Error("IsBot = false, want true")
	}
	if user.Username != "relay_bot" {
		t.Errorf("Username = %q, want %q", user.Username, "relay_bot")
	}
}

func TestForwardMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/forwardMessage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var req ForwardMessageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		if req.ChatID != -100200300 {
			t.Errorf("ChatID = %d, want -100200300", req.ChatID)
		}
		if req.FromChatID != 42 {
			t.Errorf("FromChatID = %d, want 42", req.FromChatID)
		}
		if req.MessageID != 7 {
			t.Errorf("MessageID = %d, want 7", req.MessageID)
		}

		writeJSON(t, w, APIResponse[Message]{
			OK: true,
			Result: Message{
				MessageID: 555,
				Chat:      Chat{ID: -100200300, Type: "channel"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	msg, err := client.ForwardMessage(context.Background(), ForwardMessageRequest{
		ChatID:     -100200300,
		FromChatID: 42,
		MessageID:  7,
	})
	if err != nil {
		t.Fatalf("ForwardMessage() error: %v", err)
	}
	if msg.MessageID != 555 {
		t.Errorf("MessageID = %d, want 555", msg.MessageID)
	}
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, APIResponse[Message]{
			OK:          false,
			ErrorCode:   400,
			Description: "Bad Request: chat not found",
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	_, err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 1, Text: "hi"})
	if err == nil {
		t.Fatal("SendMessage() should return API error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Code != 400 {
		t.Errorf("Code = %d, want 400", apiErr.Code)
	}
}

func TestRateLimitRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, APIResponse[json.RawMessage]{
				OK:          false,
				ErrorCode:   429,
				Description: "Too Many Requests",
				Parameters:  &ResponseParameters{RetryAfter: 0},
			})
			return
		}
		writeJSON(t, w, APIResponse[Message]{
			OK:     true,
			Result: Message{MessageID: 1, Chat: Chat{ID: 42, Type: "private"}},
		})
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)

	msg, err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 42, Text: "x"})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.MessageID != 1 {
		t.Errorf("MessageID = %d, want 1", msg.MessageID)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("API calls = %d, want 2 (one retry)", got)
	}
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/botTOKEN/photos/file_1.jpg" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	client := NewClient("TOKEN", srv.URL)
	data, err := client.DownloadFile(context.Background(), "photos/file_1.jpg")
	if err != nil {
		t.Fatalf("DownloadFile() error: %v", err)
	}
	if string(data) != "jpegbytes" {
		t.Errorf("data = %q, want %q", data, "jpegbytes")
	}
}
