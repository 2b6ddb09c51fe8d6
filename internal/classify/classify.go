package classify

import (
	"time"

	"github.com/amara-nwosu/docscan/constants"
)

// Kind buckets provider error codes by how the pipeline should react.
type Kind string

const (
	// Transient failures resolve on their own; retry up to the ceiling.
	Transient Kind = "TRANSIENT"
	// PermanentDocument failures are properties of the uploaded bytes;
	// retrying the same bytes cannot succeed.
	PermanentDocument Kind = "PERMANENT_DOCUMENT"
	// PermanentConfiguration failures mean every subsequent job will also
	// fail; they warrant an operational alert, not a retry.
	PermanentConfiguration Kind = "PERMANENT_CONFIGURATION"
)

// Classification is the retry decision for one provider error code.
type Classification struct {
	Kind       Kind
	Retryable  bool
	MessageKey string
}

var byCode = map[string]Classification{
	constants.ErrCodeThrottling:         {Transient, true, MsgKeyBusy},
	constants.ErrCodeProvisionedLimit:   {Transient, true, MsgKeyBusy},
	constants.ErrCodeInternalError:      {Transient, true, MsgKeyBusy},
	constants.ErrCodeServiceUnavailable: {Transient, true, MsgKeyBusy},
	constants.ErrCodeTimeout:            {Transient, true, MsgKeyBusy},
	constants.ErrCodeNetwork:            {Transient, true, MsgKeyBusy},

	constants.ErrCodeBadDocument:         {PermanentDocument, false, MsgKeyUnreadable},
	constants.ErrCodeDocumentTooLarge:    {PermanentDocument, false, MsgKeyTooLarge},
	constants.ErrCodeUnsupportedDocument: {PermanentDocument, false, MsgKeyUnsupported},
	constants.ErrCodePoorQuality:         {PermanentDocument, false, MsgKeyPoorQuality},

	constants.ErrCodeAccessDenied: {PermanentConfiguration, false, MsgKeyInternal},
	constants.ErrCodeExpiredToken: {PermanentConfiguration, false, MsgKeyInternal},
	constants.ErrCodeInvalidKey:   {PermanentConfiguration, false, MsgKeyInternal},
}

// Classify maps a provider error code onto the retry taxonomy. Unknown
// codes are treated as transient so a new provider-side code cannot
// permanently fail documents that a retry would have recovered.
func Classify(code string) Classification {
	if c, ok := byCode[code]; ok {
		return c
	}
	return Classification{Kind: Transient, Retryable: true, MessageKey: MsgKeyBusy}
}

// Backoff returns the delay before retry attempt n (1-based), following an
// exponential schedule: base, base*2, base*4, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
