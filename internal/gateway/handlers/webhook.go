package handlers

import (
	"context"
	"net/http"
	"runtime/debug"

	"chatrelay/internal/chatbot"
	"chatrelay/internal/twiml"
	"chatrelay/pkg/logger"
)

// MissingSenderText is returned with 400 when a webhook call has no From.
const MissingSenderText = "Sorry, this message could not be processed."

// maxWebhookBody caps the form body read from the provider.
const maxWebhookBody = 64 * 1024

// Responder answers one inbound message.
type Responder interface {
	Respond(ctx context.Context, sender, text string) chatbot.Reply
}

// WebhookHandler handles the messaging provider callback. It reads the
// Body and From form fields and always answers with a TwiML document,
// including when the responder panics.
func WebhookHandler(bot Responder, internalError string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Interface("error", rec).
					Bytes("stack", debug.Stack()).
					Msg("Webhook handler fault")
				writeTwiML(w, http.StatusOK, internalError)
			}
		}()

		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
		if err := r.ParseForm(); err != nil {
			logger.Warn().Err(err).Msg("Malformed webhook form")
			writeTwiML(w, http.StatusBadRequest, MissingSenderText)
			return
		}

		body := r.FormValue("Body")
		from := r.FormValue("From")
		if from == "" {
			logger.Warn().Str("input", logger.Preview(body)).Msg("Webhook call without sender")
			writeTwiML(w, http.StatusBadRequest, MissingSenderText)
			return
		}

		logger.Exchange(from, body).Info().Msg("Message received")

		reply := bot.Respond(r.Context(), from, body)
		text := reply.Text
		if text == "" {
			text = internalError
		}

		if reply.ExchangeID != "" {
			w.Header().Set("X-Exchange-ID", reply.ExchangeID)
		}
		writeTwiML(w, http.StatusOK, text)
	}
}

func writeTwiML(w http.ResponseWriter, status int, text string) {
	if err := twiml.Write(w, status, text); err != nil {
		logger.Error().Err(err).Msg("Failed to write TwiML response")
	}
}
