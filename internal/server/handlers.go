package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/common"
	"github.com/amara-nwosu/docscan/internal/entity"
	"github.com/amara-nwosu/docscan/internal/ingest"
	"github.com/amara-nwosu/docscan/internal/repository"
)

const ownerHeader = "X-Owner-ID"

type fieldDTO struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type lineItemDTO struct {
	Position    int     `json:"position"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
	Confidence  float32 `json:"confidence"`
}

type documentDTO struct {
	ID           uuid.UUID           `json:"id"`
	Kind         string              `json:"kind"`
	Status       string              `json:"status"`
	Fields       map[string]fieldDTO `json:"fields,omitempty"`
	Confidences  map[string]float32  `json:"confidences,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	AttemptCount int                 `json:"attempt_count"`
	LineItems    []lineItemDTO       `json:"line_items,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

type uploadResponse struct {
	Document    documentDTO `json:"document"`
	JobAccepted bool        `json:"job_accepted"`
	Duplicate   bool        `json:"duplicate"`
}

func (s *Server) handleUpload(c *gin.Context) {
	owner, ok := s.ownerFrom(c)
	if !ok {
		return
	}

	kind := constants.DocumentKind(c.PostForm("kind"))
	fh, err := c.FormFile("file")
	if err != nil {
		s.reject(c, common.NewAppError("MISSING_FILE", "multipart field \"file\" is required", common.ErrInvalidInput))
		return
	}
	if fh.Size > s.maxBody {
		s.reject(c, common.NewAppError("TOO_LARGE", "document exceeds the upload limit", common.ErrInvalidInput))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.reject(c, common.WrapError(err, "open upload"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxBody+1))
	if err != nil {
		s.reject(c, common.WrapError(err, "read upload"))
		return
	}

	res, err := s.ingest.Submit(c.Request.Context(), ingest.SubmitRequest{
		OwnerID:  owner,
		Kind:     kind,
		Filename: fh.Filename,
		Data:     data,
	})
	if err != nil {
		s.reject(c, err)
		return
	}

	status := http.StatusAccepted
	if !res.JobAccepted {
		status = http.StatusOK
	}
	c.JSON(status, uploadResponse{
		Document:    toDTO(res.Document, nil),
		JobAccepted: res.JobAccepted,
		Duplicate:   !res.JobAccepted,
	})
}

func (s *Server) handleGet(c *gin.Context) {
	owner, ok := s.ownerFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.reject(c, common.NewAppError("INVALID_ID", "document id must be a UUID", common.ErrInvalidInput))
		return
	}
	doc, items, err := s.ingest.Get(c.Request.Context(), owner, id)
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, toDTO(doc, items))
}

func (s *Server) handleReprocess(c *gin.Context) {
	owner, ok := s.ownerFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.reject(c, common.NewAppError("INVALID_ID", "document id must be a UUID", common.ErrInvalidInput))
		return
	}
	doc, err := s.ingest.Reprocess(c.Request.Context(), owner, id)
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toDTO(doc, nil))
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := repository.HealthCheck(c.Request.Context(), s.db, 2*time.Second, s.logger); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ownerFrom(c *gin.Context) (uuid.UUID, bool) {
	owner, err := uuid.Parse(c.GetHeader(ownerHeader))
	if err != nil {
		s.reject(c, common.NewAppError("MISSING_OWNER", ownerHeader+" header must be a UUID", common.ErrUnauthorized))
		return uuid.Nil, false
	}
	return owner, true
}

// reject writes the error response. AppError messages are user-safe by
// construction; anything else collapses to a generic message so internal
// detail stays in the log.
func (s *Server) reject(c *gin.Context, err error) {
	status := common.HTTPStatus(err)
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		c.JSON(status, gin.H{"error": gin.H{"code": appErr.Code, "message": appErr.Message}})
		return
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("http.internal_error", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": gin.H{"code": "INTERNAL", "message": "internal error"}})
		return
	}
	c.JSON(status, gin.H{"error": gin.H{"code": "REQUEST_FAILED", "message": err.Error()}})
}

// toDTO shapes a record for the API. Extracted fields appear only once the
// record is terminal; a mid-flight snapshot of partially written fields
// never leaves the service.
func toDTO(doc *entity.Document, items []entity.LineItem) documentDTO {
	dto := documentDTO{
		ID:           doc.ID,
		Kind:         string(doc.Kind),
		Status:       string(doc.Status),
		AttemptCount: doc.AttemptCount,
		CreatedAt:    doc.CreatedAt,
		ExpiresAt:    doc.ExpiresAt,
	}
	if doc.Status.Terminal() {
		dto.Fields = make(map[string]fieldDTO, len(doc.Fields))
		for name, fv := range doc.Fields {
			dto.Fields[name] = fieldDTO{Type: string(fv.Type), Value: fieldValue(fv)}
		}
		dto.Confidences = doc.Confidences
		if doc.ErrorMessage != nil {
			dto.ErrorMessage = *doc.ErrorMessage
		}
	}
	for _, item := range items {
		dto.LineItems = append(dto.LineItems, lineItemDTO{
			Position:    item.Position,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			Confidence:  item.Confidence,
		})
	}
	return dto
}

func fieldValue(fv entity.FieldValue) any {
	if fv.Type == entity.FieldNumber {
		return fv.Number
	}
	return fv.Text()
}
