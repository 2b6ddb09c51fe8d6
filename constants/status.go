package constants

// DocumentStatus is the canonical status for rows in documents.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending      DocumentStatus = "PENDING"       // accepted, not yet picked up
	StatusProcessing   DocumentStatus = "PROCESSING"    // extraction attempt in flight
	StatusSuccess      DocumentStatus = "SUCCESS"       // extraction confident enough to use
	StatusPartial      DocumentStatus = "PARTIAL"       // fields stored, human confirmation advised
	StatusFailed       DocumentStatus = "FAILED"        // terminal failure
	StatusManualReview DocumentStatus = "MANUAL_REVIEW" // fields stored but flagged for correction
)

// Terminal reports whether no further automatic transition occurs from s.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed, StatusManualReview:
		return true
	}
	return false
}

// DocumentKind distinguishes receipts (with line items) from bills.
type DocumentKind string

const (
	KindReceipt DocumentKind = "RECEIPT"
	KindBill    DocumentKind = "BILL"
)

// ValidKind reports whether k is a known document kind.
func ValidKind(k DocumentKind) bool {
	return k == KindReceipt || k == KindBill
}
