package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"chunkstore/internal/services"
	"chunkstore/internal/transport/httpdto"
	upload_errors "chunkstore/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UploadHandler struct {
	uploads   *services.UploadService
	tracker   *services.ChunkTracker
	finalizer *services.Finalizer
}

func NewUploadHandler(uploads *services.UploadService, tracker *services.ChunkTracker, finalizer *services.Finalizer) *UploadHandler {
	return &UploadHandler{uploads: uploads, tracker: tracker, finalizer: finalizer}
}

func (h *UploadHandler) CreateSession(c *gin.Context) {
	var req httpdto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	session, err := h.uploads.CreateSession(c.Request.Context(), services.CreateSessionInput{
		Owner:        req.Owner,
		DeclaredSize: req.DeclaredSize,
		ChunkSize:    req.ChunkSize,
		TTL:          time.Duration(req.TTLSeconds) * time.Second,
		HashHint:     req.HashHint,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromSession(session)))
}

func (h *UploadHandler) AdmitChunk(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	chunkNumber, err := strconv.Atoi(c.Param("chunk"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid chunk number", "INVALID_REQUEST"))
		return
	}

	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable request body", "INVALID_REQUEST"))
		return
	}
	checksum := c.GetHeader("X-Chunk-Checksum")

	result, err := h.tracker.AdmitChunk(c.Request.Context(), sessionID, chunkNumber, data, checksum)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.AdmitChunkResponse{
		Accepted:    result.Accepted,
		AllReceived: result.AllReceived,
	}))
}

func (h *UploadHandler) Finalize(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	result, err := h.finalizer.Finalize(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromResult(result)))
}

func (h *UploadHandler) GetStatus(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	status, err := h.uploads.GetStatus(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromStatus(status)))
}

func (h *UploadHandler) Cancel(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if err := h.uploads.Cancel(c.Request.Context(), sessionID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *UploadHandler) ChunkUploadURL(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	chunkNumber, err := strconv.Atoi(c.Param("chunk"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid chunk number", "INVALID_REQUEST"))
		return
	}

	url, err := h.uploads.ChunkUploadURL(c.Request.Context(), sessionID, chunkNumber, c.Query("checksum"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ChunkURLResponse{UploadURL: url}))
}

func (h *UploadHandler) AccessURL(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	ttl := time.Duration(0)
	if sec, err := strconv.Atoi(c.Query("ttl_seconds")); err == nil && sec > 0 {
		ttl = time.Duration(sec) * time.Second
	}

	url, err := h.uploads.FileAccessURL(c.Request.Context(), sessionID, ttl)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.AccessURLResponse{DownloadURL: url}))
}

func (h *UploadHandler) ListFiles(c *gin.Context) {
	owner := c.Query("owner")
	files, err := h.uploads.ListOwnerFiles(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListFilesResponse{
		Files: httpdto.FromFileSlice(files),
	}))
}

func sessionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid session id", "INVALID_REQUEST"))
		return uuid.Nil, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, upload_errors.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, upload_errors.ErrSessionExpired):
		return http.StatusGone, "SESSION_EXPIRED"
	case errors.Is(err, upload_errors.ErrTooManyChunks):
		return http.StatusBadRequest, "TOO_MANY_CHUNKS"
	case errors.Is(err, upload_errors.ErrChunkOutOfRange):
		return http.StatusBadRequest, "CHUNK_OUT_OF_RANGE"
	case errors.Is(err, upload_errors.ErrChunkSizeMismatch):
		return http.StatusBadRequest, "CHUNK_SIZE_MISMATCH"
	case errors.Is(err, upload_errors.ErrChecksumMismatch):
		return http.StatusUnprocessableEntity, "CHECKSUM_MISMATCH"
	case errors.Is(err, upload_errors.ErrDuplicateChunk):
		return http.StatusConflict, "DUPLICATE_CHUNK"
	case errors.Is(err, upload_errors.ErrSessionNotUploading):
		return http.StatusConflict, "SESSION_NOT_UPLOADING"
	case errors.Is(err, upload_errors.ErrIncompleteUpload):
		return http.StatusConflict, "INCOMPLETE_UPLOAD"
	case errors.Is(err, upload_errors.ErrAlreadyTerminal):
		return http.StatusConflict, "ALREADY_TERMINAL"
	case errors.Is(err, upload_errors.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, upload_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	default:
		return http.StatusInternalServerError, "REQUEST_FAILED"
	}
}
