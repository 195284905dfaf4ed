package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/directory"
	"github.com/cburnette/deaddrop/internal/mailbox"
	"github.com/cburnette/deaddrop/internal/registry"
	"github.com/cburnette/deaddrop/internal/stats"
	"github.com/cburnette/deaddrop/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	redis     *store.RedisStore
	registry  *registry.Registry
	mailbox   *mailbox.Mailbox
	directory *directory.Directory
	stats     *stats.Aggregator
	logger    zerolog.Logger
}

// Services groups the domain components the handlers call.
type Services struct {
	Store     *store.RedisStore
	Registry  *registry.Registry
	Mailbox   *mailbox.Mailbox
	Directory *directory.Directory
	Stats     *stats.Aggregator
}

// NewHandler creates a new Handler.
func NewHandler(svc Services, logger zerolog.Logger) *Handler {
	return &Handler{
		redis:     svc.Store,
		registry:  svc.Registry,
		mailbox:   svc.Mailbox,
		directory: svc.Directory,
		stats:     svc.Stats,
		logger:    logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps a domain error onto its HTTP status and client message.
// Unclassified and store errors are logged; their details stay server side.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	h.Error(w, status, apperr.PublicMessage(err))
}

// decode reads a JSON request body into v, writing the error response
// itself when it fails.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	h.Error(w, http.StatusBadRequest, "invalid JSON body")
	return false
}
