package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wowsvault/replay-api/internal/models"
)

// uppercasePrefixes are ship-name prefixes kept fully uppercase by the game
// (collab ships); everything else title-cases for exact index lookup.
var uppercasePrefixes = []string{"AL ", "BA ", "GQ ", "STAR "}

// normalizeShipName folds user input into the stored index form.
func normalizeShipName(name string) string {
	if name == "" {
		return name
	}
	normalized := strings.Title(strings.ToLower(name)) //nolint:staticcheck // ship names are ASCII
	for _, prefix := range uppercasePrefixes {
		titled := strings.Title(strings.ToLower(prefix)) //nolint:staticcheck
		if strings.HasPrefix(normalized, titled) {
			normalized = prefix + normalized[len(prefix):]
			break
		}
	}
	return normalized
}

// Search handles POST /api/search
// @Summary Search matches
// @Description Paginated search across the per-game-type match tables and
// @Description the ship/player/clan reverse indexes.
// @Tags Search
// @Accept json
// @Produce json
// @Success 200 {object} models.SearchResponse
// @Failure 400 {object} map[string]string "Bad Request"
// @Router /search [post]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	req.ShipName = normalizeShipName(req.ShipName)

	resp, err := h.store.Search(r.Context(), req)
	if err != nil {
		h.logger.Errorw("Search failed", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Search failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, resp)
}
