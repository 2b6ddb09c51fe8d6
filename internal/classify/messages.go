package classify

// Message keys decouple stored user-facing text from provider error detail.
// Raw provider messages are logged, never surfaced.
const (
	MsgKeyBusy        = "extract.busy"
	MsgKeyUnreadable  = "extract.unreadable"
	MsgKeyTooLarge    = "extract.too_large"
	MsgKeyUnsupported = "extract.unsupported"
	MsgKeyPoorQuality = "extract.poor_quality"
	MsgKeyInternal    = "extract.internal"
	MsgKeyExhausted   = "extract.exhausted"
	MsgKeyConfirm     = "extract.confirm"
)

var messages = map[string]string{
	MsgKeyBusy:        "The document is taking longer than expected to process. Please check back shortly.",
	MsgKeyUnreadable:  "We could not read this document. Please upload a clearer copy.",
	MsgKeyTooLarge:    "This document is too large to process.",
	MsgKeyUnsupported: "This document format is not supported.",
	MsgKeyPoorQuality: "The image quality is too low to extract data. Please retake the photo.",
	MsgKeyInternal:    "Something went wrong on our side. Please try again later.",
	MsgKeyExhausted:   "Processing failed after several attempts. Please try uploading again later.",
	MsgKeyConfirm:     "Some values could not be read with confidence. Please review and confirm them.",
}

// Message resolves a message key to its user-safe text.
func Message(key string) string {
	if m, ok := messages[key]; ok {
		return m
	}
	return messages[MsgKeyInternal]
}
