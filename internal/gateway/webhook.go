package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flemzord/memerelay/internal/telegram"
)

// secretTokenHeader is the header Telegram echoes the configured secret in.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxUpdateBytes caps the webhook request body.
const maxUpdateBytes = 1 << 20

var webhookUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "memerelay_webhook_updates_total",
	Help: "Webhook deliveries by outcome.",
}, []string{"outcome"})

// handleWebhook accepts one Telegram update. Malformed or empty updates are
// acknowledged with 200 so Telegram does not redeliver them; only a secret
// mismatch is rejected, since that is a transport-level failure the sender
// should see.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.tg.WebhookSecret != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.tg.WebhookSecret)) != 1 {
			webhookUpdates.WithLabelValues("unauthorized").Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		webhookUpdates.WithLabelValues("invalid").Inc()
		respond(w, "ignored, invalid update format")
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		webhookUpdates.WithLabelValues("invalid").Inc()
		s.logger.Warn("malformed update", "error", err)
		respond(w, "ignored, invalid update format")
		return
	}

	if update.Message == nil {
		webhookUpdates.WithLabelValues("no_message").Inc()
		respond(w, "ignored, no message")
		return
	}

	msg := update.Message
	if err := s.dispatcher.Dispatch(r.Context(), msg); err != nil {
		webhookUpdates.WithLabelValues("error").Inc()
		// Business failures never propagate to Telegram; an error status
		// would only trigger redelivery of the same update.
		attrs := []any{"update_id", update.UpdateID, "message_id", msg.MessageID, "error", err}
		if msg.From != nil {
			attrs = append(attrs, "user_id", msg.From.ID)
		}
		s.logger.Error("update dispatch failed", attrs...)
		respond(w, "OK")
		return
	}

	webhookUpdates.WithLabelValues("ok").Inc()
	respond(w, "OK")
}

func respond(w http.ResponseWriter, body string) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
