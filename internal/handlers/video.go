package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wowsvault/replay-api/internal/blob"
	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/queue"
	"github.com/wowsvault/replay-api/internal/store"
)

// GenerateVideo handles POST /api/generate-video
// @Summary Request a video render
// @Description Idempotent: answers already_exists when the video is present,
// @Description otherwise enqueues a render job and answers generating.
// @Tags Video
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string "Not Found"
// @Router /generate-video [post]
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	match, err := h.store.FindMatch(r.Context(), req.ArenaUniqueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.errorResponse(w, http.StatusNotFound, "Match not found")
			return
		}
		h.logger.Errorw("Match lookup failed", "arenaUniqueID", req.ArenaUniqueID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if match.MP4Key != "" {
		h.jsonResponse(w, http.StatusOK, map[string]string{
			"status": "already_exists",
			"mp4Url": h.blobs.SignedPath(match.MP4Key),
		})
		return
	}

	job := queue.RenderJob{
		ArenaUniqueID: match.ArenaUniqueID,
		GameType:      string(match.GameType),
		PlayerID:      req.PlayerID,
	}
	if err := h.queue.EnqueueRender(r.Context(), job); err != nil {
		h.logger.Errorw("Render enqueue failed", "arenaUniqueID", req.ArenaUniqueID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Queue failure")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "generating"})
}

// DownloadBlob handles GET /api/blob/* with expires/sig query parameters,
// serving objects referenced by signed paths.
func (h *Handler) DownloadBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	expires, _ := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	sig := r.URL.Query().Get("sig")

	if err := h.blobs.VerifySignedPath(key, expires, sig); err != nil {
		h.errorResponse(w, http.StatusForbidden, "Invalid or expired link")
		return
	}

	data, err := h.blobs.Get(key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			h.errorResponse(w, http.StatusNotFound, "Object not found")
			return
		}
		h.logger.Errorw("Blob read failed", "key", key, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Internal error")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
