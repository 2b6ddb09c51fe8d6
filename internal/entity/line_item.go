package entity

import "github.com/google/uuid"

// LineItem is a single purchased item on a receipt. Line items are owned
// exclusively by their parent document and are replaced wholesale on every
// successful (re-)extraction.
type LineItem struct {
	ID          uuid.UUID `json:"id"`
	DocumentID  uuid.UUID `json:"document_id"`
	Position    int       `json:"position"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	LineTotal   float64   `json:"line_total"`
	Confidence  float32   `json:"confidence"`
}
