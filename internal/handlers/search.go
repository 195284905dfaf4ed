package handlers

import "net/http"

// SearchRequest is the body of POST /agents/search.
type SearchRequest struct {
	Phrases []string `json:"phrases"`
}

// Search finds active agents whose name or description matches any phrase.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.directory.Search(r.Context(), req.Phrases)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, res)
}
