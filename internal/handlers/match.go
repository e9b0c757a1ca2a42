package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wowsvault/replay-api/internal/store"
)

// GetMatch handles GET /api/match/{arenaUniqueID}
// @Summary Match detail
// @Description Joined MATCH + STATS + UPLOAD view with signed video URLs.
// @Tags Search
// @Produce json
// @Success 200 {object} models.MatchDetail
// @Failure 404 {object} map[string]string "Not Found"
// @Router /match/{arenaUniqueID} [get]
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	arenaID := chi.URLParam(r, "arenaUniqueID")

	detail, err := h.store.MatchDetail(r.Context(), arenaID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.errorResponse(w, http.StatusNotFound, "Match not found")
			return
		}
		h.logger.Errorw("Match detail failed", "arenaUniqueID", arenaID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if detail.Match.MP4Key != "" {
		detail.MP4URL = h.blobs.SignedPath(detail.Match.MP4Key)
	}
	if detail.Match.DualMP4Key != "" {
		detail.DualMP4URL = h.blobs.SignedPath(detail.Match.DualMP4Key)
	}

	h.jsonResponse(w, http.StatusOK, detail)
}
