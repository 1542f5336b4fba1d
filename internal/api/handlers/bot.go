package handlers

import (
	"net/http"

	"github.com/event-reminder/backend/internal/bot"
	"github.com/event-reminder/backend/internal/command"
)

// MessageResponse is the reply to a free-text message. Handled is false
// when the sender was not asked for input.
type MessageResponse struct {
	Handled bool          `json:"handled"`
	Reply   command.Reply `json:"reply"`
}

// BotCallback runs an inline button press forwarded by the chat transport.
func BotCallback(conv *bot.Conversation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cb bot.Callback
		if !decodeBody(w, r, &cb) {
			return
		}
		reply, err := conv.HandleCallback(r.Context(), cb)
		if err != nil {
			writeServiceError(w, err, "callback")
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// BotMessage applies a free-text message forwarded by the chat transport.
func BotMessage(conv *bot.Conversation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg bot.Message
		if !decodeBody(w, r, &msg) {
			return
		}
		reply, handled, err := conv.HandleMessage(r.Context(), msg)
		if err != nil {
			writeServiceError(w, err, "message")
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Handled: handled, Reply: reply})
	}
}
