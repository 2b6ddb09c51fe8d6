package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/amara-nwosu/docscan/constants"
)

// Document represents one uploaded receipt or bill and its extraction
// lifecycle, for data transfer between layers.
type Document struct {
	ID           uuid.UUID                `json:"id"`
	OwnerID      uuid.UUID                `json:"owner_id"`
	Kind         constants.DocumentKind   `json:"kind"`
	ContentHash  []byte                   `json:"content_hash"`
	BlobRef      string                   `json:"blob_ref"`
	Status       constants.DocumentStatus `json:"status"`
	Fields       map[string]FieldValue    `json:"fields,omitempty"`
	Confidences  map[string]float32       `json:"confidences,omitempty"`
	ErrorCode    *string                  `json:"error_code,omitempty"`
	ErrorMessage *string                  `json:"error_message,omitempty"`
	AttemptCount int                      `json:"attempt_count"`
	Version      int64                    `json:"version"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	ExpiresAt    time.Time                `json:"expires_at"`
}
