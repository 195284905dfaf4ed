package handlers

import (
	"net/http"
	"strconv"

	"github.com/cburnette/deaddrop/internal/api/middleware"
	"github.com/cburnette/deaddrop/internal/mailbox"
	"github.com/cburnette/deaddrop/internal/models"
)

// SendRequest is the body of POST /messages/send.
type SendRequest struct {
	To      []string `json:"to"`
	Body    string   `json:"body"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// Send delivers a message from the caller.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.mailbox.Send(r.Context(), mailbox.SendRequest{
		From:    middleware.GetAgentID(r.Context()),
		To:      req.To,
		Body:    req.Body,
		ReplyTo: req.ReplyTo,
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, models.SendResult{
		ID:        msg.ID,
		From:      msg.From,
		To:        msg.To,
		Timestamp: msg.Timestamp,
	})
}

// Poll consumes up to take messages from the caller's inbox.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	take := mailbox.DefaultTake
	if raw := r.URL.Query().Get("take"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "take must be an integer")
			return
		}
		take = n
	}

	batch, err := h.mailbox.Poll(r.Context(), middleware.GetAgentID(r.Context()), take)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, batch)
}
