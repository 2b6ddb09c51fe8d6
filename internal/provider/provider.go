package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/entity"
)

// Request carries the image bytes and hints to an extraction provider.
type Request struct {
	Data     []byte
	Kind     constants.DocumentKind
	Filename string
}

// Result is provider-agnostic structured output: a field map with per-field
// confidence, plus line items for receipts.
type Result struct {
	Fields      map[string]entity.FieldValue
	Confidences map[string]float32
	LineItems   []entity.LineItem
}

// Error is a provider failure carrying a code from the known vocabulary in
// constants. Everything downstream of the provider boundary classifies on
// the code, never on provider-specific text.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf maps any error from an Extract call onto the provider error
// vocabulary. Deadline expiry becomes a timeout; anything unrecognized is
// treated as a network failure, which is retryable.
func CodeOf(err error) string {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return constants.ErrCodeTimeout
	}
	return constants.ErrCodeNetwork
}

// Extractor is the outbound extraction boundary. Implementations live in
// subpackages; selection is configuration, not logic.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}
