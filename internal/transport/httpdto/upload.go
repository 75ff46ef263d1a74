package httpdto

import (
	"time"

	"chunkstore/internal/domain/file"
	"chunkstore/internal/domain/upload"
	"chunkstore/internal/services"
)

// CreateSessionRequest is used for POST /v1/uploads
type CreateSessionRequest struct {
	Owner        string `json:"owner" binding:"required"`
	DeclaredSize int64  `json:"declared_size" binding:"required"`
	ChunkSize    int64  `json:"chunk_size,omitempty"`
	TTLSeconds   int64  `json:"ttl_seconds,omitempty"`
	HashHint     string `json:"content_hash_hint,omitempty"`
}

// CreateSessionResponse is returned after creating an upload session
type CreateSessionResponse struct {
	SessionID   string `json:"session_id"`
	ChunkSize   int64  `json:"chunk_size"`
	TotalChunks int    `json:"total_chunks"`
	ExpiresAt   string `json:"expires_at"`
}

// AdmitChunkResponse is returned after a chunk admission
type AdmitChunkResponse struct {
	Accepted    bool `json:"accepted"`
	AllReceived bool `json:"all_received"`
}

// FinalizeResponse is returned when a session completes
type FinalizeResponse struct {
	CanonicalRef string `json:"canonical_ref"`
	ContentHash  string `json:"content_hash"`
	ByteSize     int64  `json:"byte_size"`
}

// SessionStatusResponse is returned for GET /v1/uploads/:id
type SessionStatusResponse struct {
	SessionID           string            `json:"session_id"`
	Status              string            `json:"status"`
	ReceivedChunksCount int               `json:"received_chunks_count"`
	TotalChunks         int               `json:"total_chunks"`
	ExpiresAt           string            `json:"expires_at,omitempty"`
	Result              *FinalizeResponse `json:"result,omitempty"`
}

// ChunkURLResponse carries a presigned PUT for one chunk
type ChunkURLResponse struct {
	UploadURL string `json:"upload_url"`
}

// AccessURLResponse carries a presigned GET for a completed file
type AccessURLResponse struct {
	DownloadURL string `json:"download_url"`
}

// FileDTO represents a completed upload in API responses
type FileDTO struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	ByteSize    int64  `json:"byte_size"`
	ContentHash string `json:"content_hash"`
	StoragePath string `json:"storage_path"`
	CompletedAt string `json:"completed_at"`
}

// ListFilesResponse is returned when listing an owner's completed uploads
type ListFilesResponse struct {
	Files []FileDTO `json:"files"`
}

func FromSession(s *upload.Session) CreateSessionResponse {
	return CreateSessionResponse{
		SessionID:   s.ID.String(),
		ChunkSize:   s.ChunkSize,
		TotalChunks: s.TotalChunks,
		ExpiresAt:   s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func FromResult(r *upload.Result) *FinalizeResponse {
	if r == nil {
		return nil
	}
	return &FinalizeResponse{
		CanonicalRef: r.CanonicalRef,
		ContentHash:  r.ContentHash,
		ByteSize:     r.ByteSize,
	}
}

func FromStatus(s *services.SessionStatus) SessionStatusResponse {
	resp := SessionStatusResponse{
		SessionID:           s.ID.String(),
		Status:              s.Status,
		ReceivedChunksCount: s.ReceivedChunks,
		TotalChunks:         s.TotalChunks,
		Result:              FromResult(s.Result),
	}
	if !s.ExpiresAt.IsZero() {
		resp.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func FromFileSlice(files []file.StoredFile) []FileDTO {
	out := make([]FileDTO, 0, len(files))
	for _, f := range files {
		out = append(out, FileDTO{
			ID:          f.ID.String(),
			Owner:       f.Owner,
			ByteSize:    f.ByteSize,
			ContentHash: f.ContentHash,
			StoragePath: f.StoragePath,
			CompletedAt: f.CompletedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
