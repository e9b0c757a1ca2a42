package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wowsvault/replay-api/internal/assembler"
	"github.com/wowsvault/replay-api/internal/blob"
	"github.com/wowsvault/replay-api/internal/models"
	"github.com/wowsvault/replay-api/internal/queue"
	"github.com/wowsvault/replay-api/internal/replay"
)

// Upload handles POST /api/upload
// @Summary Upload a replay
// @Description Accepts a multipart .wowsreplay file, stores the blob and
// @Description enqueues the decode job. Returns before decoding completes.
// @Tags Upload
// @Accept mpfd
// @Produce json
// @Security ApiKey
// @Success 201 {object} models.UploadResponse
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 429 {object} map[string]string "Rate Limited"
// @Router /upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, ok := uploaderFromContext(r.Context())
	if !ok {
		h.errorResponse(w, http.StatusUnauthorized, "Missing API key")
		return
	}
	if !h.allowUpload(r.Context(), identity.DiscordUserID) {
		h.errorResponse(w, http.StatusTooManyRequests, "Upload rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.errorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "No file in multipart data")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".wowsreplay") {
		h.errorResponse(w, http.StatusBadRequest, "File must be a .wowsreplay")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	// Cheap format check: header and metadata only, no stream decode.
	meta, err := replay.ReadMeta(data)
	if err != nil {
		h.logger.Warnw("Rejected invalid replay", "file", header.Filename, "error", err)
		h.errorResponse(w, http.StatusBadRequest, "Invalid replay file")
		return
	}

	fileName := fmt.Sprintf("%s_%s.wowsreplay",
		strings.ReplaceAll(strings.ReplaceAll(meta.DateTime, ":", "-"), " ", "_"),
		meta.PlayerName)
	blobKey := blob.ReplayKey(identity.DiscordUserID, fileName)

	if err := h.blobs.Put(blobKey, data); err != nil {
		h.logger.Errorw("Blob write failed", "key", blobKey, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Storage failure")
		return
	}

	uploadKey := uuid.NewString()
	job := queue.DecodeJob{
		UploadKey:  uploadKey,
		BlobKey:    blobKey,
		FileName:   fileName,
		FileSize:   int64(len(data)),
		UploadedBy: identity.DiscordUserID,
		UploadedAt: time.Now().Unix(),
	}
	if err := h.queue.EnqueueDecode(r.Context(), job); err != nil {
		h.logger.Errorw("Decode enqueue failed", "key", blobKey, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Queue failure")
		return
	}

	// The real arenaUniqueID is extracted asynchronously; hand back the
	// synthetic group id so the client can poll.
	names := make([]string, 0, len(meta.Vehicles))
	for _, v := range meta.Vehicles {
		names = append(names, v.Name)
	}
	tempArenaID := assembler.SyntheticArenaID(
		assembler.MatchKey(meta.DateTime, meta.MapName, meta.MatchGroup, names))

	h.logger.Infow("Upload accepted",
		"uploadKey", uploadKey,
		"blobKey", blobKey,
		"player", meta.PlayerName,
		"uploadedBy", identity.DiscordUserID,
	)

	h.jsonResponse(w, http.StatusCreated, models.UploadResponse{
		Status:      "uploaded",
		UploadKey:   uploadKey,
		TempArenaID: tempArenaID,
	})
}
