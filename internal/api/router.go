// Package api exposes the HTTP surface: the WhatsApp webhook (verification
// handshake plus inbound messages), a health endpoint, and a bearer-guarded
// devtools area for inspecting and driving conversations in staging.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/assusa/viabot/internal/conversation"
)

const maxWebhookBodySize = 1 << 20 // 1MB

// MessageHandler consumes one inbound user message.
type MessageHandler interface {
	HandleIncomingMessage(ctx context.Context, identity, text, correlationID string)
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Handler       MessageHandler
	Store         *conversation.MemoryStore
	VerifyToken   string // webhook subscription handshake token
	AppSecret     string // HMAC key for payload signatures; empty disables the check
	DevToolsToken string // bearer token for /devtools; empty disables the routes
	Logger        *slog.Logger
}

// NewRouter builds the full route tree.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/webhook", handleWebhookVerify(deps))
	r.Post("/webhook", handleWebhook(deps))

	if deps.DevToolsToken != "" {
		r.Route("/devtools", func(r chi.Router) {
			r.Use(BearerAuth(deps.DevToolsToken))
			r.Get("/state/{identity}", handleGetState(deps))
			r.Delete("/state/{identity}", handleClearState(deps))
			r.Post("/messages", handleSimulateMessage(deps))
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhookVerify answers the platform's subscription handshake: echo the
// challenge when the verify token matches.
func handleWebhookVerify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != deps.VerifyToken {
			httpError(w, http.StatusForbidden, "authentication_error", "verify token mismatch")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, q.Get("hub.challenge"))
	}
}

// webhookPayload mirrors the slice of the platform's event envelope the bot
// consumes: text messages only.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func handleWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read body: %v", err)
			return
		}

		if deps.AppSecret != "" {
			if !verifySignature(deps.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid payload signature")
				return
			}
		}

		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid payload: %v", err)
			return
		}

		handled := 0
		for _, entry := range payload.Entry {
			for _, change := range entry.Changes {
				for _, msg := range change.Value.Messages {
					if msg.Type != "text" || msg.From == "" {
						continue
					}
					deps.Handler.HandleIncomingMessage(r.Context(), msg.From, msg.Text.Body, uuid.NewString())
					handled++
				}
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"status": "received", "handled": handled})
	}
}

func handleGetState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := chi.URLParam(r, "identity")
		st := deps.Store.Snapshot(identity)
		if st == nil {
			httpError(w, http.StatusNotFound, "not_found", "no conversation for identity")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleClearState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Store.Clear(chi.URLParam(r, "identity"))
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

// handleSimulateMessage feeds a message into the dialogue as if it had come
// from the webhook. Staging only; it sits behind the devtools bearer token.
func handleSimulateMessage(deps Deps) http.HandlerFunc {
	type request struct {
		Identity string `json:"identity"`
		Text     string `json:"text"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Identity == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "identity is required")
			return
		}
		deps.Handler.HandleIncomingMessage(r.Context(), req.Identity, req.Text, uuid.NewString())
		writeJSON(w, http.StatusOK, map[string]string{"status": "handled"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
