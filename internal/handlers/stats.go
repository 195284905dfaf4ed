package handlers

import "net/http"

// AdminStats returns the operational snapshot.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.stats.Collect(r.Context())
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, snapshot)
}
