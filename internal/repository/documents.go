package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/common"
	"github.com/amara-nwosu/docscan/internal/entity"
)

// DocumentRepository is the persistence boundary for document records and
// their line items. All state transitions are compare-and-set on version;
// callers that lose the race get ok=false and must discard their work.
type DocumentRepository interface {
	CreateIfAbsent(ctx context.Context, doc *entity.Document) (*entity.Document, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	GetByOwnerAndHash(ctx context.Context, ownerID uuid.UUID, hash []byte) (*entity.Document, error)
	BeginAttempt(ctx context.Context, id uuid.UUID, fromVersion int64) (bool, error)
	// CompleteExtraction stores fields and line items with the terminal
	// status in one transaction. note, when non-nil, becomes the user-safe
	// message for statuses like PARTIAL; the stored error code stays empty
	// since no provider error occurred.
	CompleteExtraction(ctx context.Context, id uuid.UUID, fromVersion int64, status constants.DocumentStatus,
		fields map[string]entity.FieldValue, confidences map[string]float32, items []entity.LineItem, note *string) (bool, error)
	FailExtraction(ctx context.Context, id uuid.UUID, fromVersion int64, errorCode, errorMessage string) (bool, error)
	ResetForReprocess(ctx context.Context, id uuid.UUID, fromVersion int64) (bool, error)
	ListLineItems(ctx context.Context, documentID uuid.UUID) ([]entity.LineItem, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*entity.Document, error)
	ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Document, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)
}

type documentRepo struct {
	db     *goqu.Database
	logger *slog.Logger
}

func NewDocumentRepository(db *goqu.Database, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{db: db, logger: logger}
}

type documentRow struct {
	ID           string         `db:"id"`
	OwnerID      string         `db:"owner_id"`
	Kind         string         `db:"kind"`
	ContentHash  []byte         `db:"content_hash"`
	BlobRef      string         `db:"blob_ref"`
	Status       string         `db:"status"`
	Fields       []byte         `db:"fields"`
	Confidences  []byte         `db:"confidences"`
	ErrorCode    sql.NullString `db:"error_code"`
	ErrorMessage sql.NullString `db:"error_message"`
	AttemptCount int            `db:"attempt_count"`
	Version      int64          `db:"version"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	ExpiresAt    time.Time      `db:"expires_at"`
}

type lineItemRow struct {
	ID          string  `db:"id"`
	DocumentID  string  `db:"document_id"`
	Position    int     `db:"position"`
	Description string  `db:"description"`
	Quantity    float64 `db:"quantity"`
	UnitPrice   float64 `db:"unit_price"`
	LineTotal   float64 `db:"line_total"`
	Confidence  float32 `db:"confidence"`
}

func (r *documentRow) toEntity() (*entity.Document, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse document id: %w", err)
	}
	owner, err := uuid.Parse(r.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	doc := &entity.Document{
		ID:           id,
		OwnerID:      owner,
		Kind:         constants.DocumentKind(r.Kind),
		ContentHash:  r.ContentHash,
		BlobRef:      r.BlobRef,
		Status:       constants.DocumentStatus(r.Status),
		AttemptCount: r.AttemptCount,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		ExpiresAt:    r.ExpiresAt,
	}
	if len(r.Fields) > 0 {
		if err := json.Unmarshal(r.Fields, &doc.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	if len(r.Confidences) > 0 {
		if err := json.Unmarshal(r.Confidences, &doc.Confidences); err != nil {
			return nil, fmt.Errorf("decode confidences: %w", err)
		}
	}
	if r.ErrorCode.Valid {
		doc.ErrorCode = &r.ErrorCode.String
	}
	if r.ErrorMessage.Valid {
		doc.ErrorMessage = &r.ErrorMessage.String
	}
	return doc, nil
}

func (r *documentRepo) CreateIfAbsent(ctx context.Context, doc *entity.Document) (*entity.Document, bool, error) {
	if existing, err := r.GetByOwnerAndHash(ctx, doc.OwnerID, doc.ContentHash); err == nil {
		return existing, false, nil
	}

	row := goqu.Record{
		"id":            doc.ID.String(),
		"owner_id":      doc.OwnerID.String(),
		"kind":          string(doc.Kind),
		"content_hash":  doc.ContentHash,
		"blob_ref":      doc.BlobRef,
		"status":        string(doc.Status),
		"attempt_count": doc.AttemptCount,
		"version":       doc.Version,
		"created_at":    doc.CreatedAt,
		"updated_at":    doc.UpdatedAt,
		"expires_at":    doc.ExpiresAt,
	}
	_, err := r.db.Insert("documents").Prepared(true).Rows(row).Executor().ExecContext(ctx)
	if err != nil {
		// the unique (owner_id, content_hash) index is the backstop for two
		// concurrent uploads of the same bytes; the loser resolves to the
		// winner's row
		if existing, lookupErr := r.GetByOwnerAndHash(ctx, doc.OwnerID, doc.ContentHash); lookupErr == nil {
			r.logger.Info("concurrent duplicate upload resolved to existing record",
				"owner_id", doc.OwnerID, "document_id", existing.ID)
			return existing, false, nil
		}
		r.logger.Error("failed to insert document", "owner_id", doc.OwnerID, "error", err)
		return nil, false, common.WrapError(err, "insert document")
	}
	return doc, true, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	var row documentRow
	found, err := r.db.From("documents").Prepared(true).
		Where(goqu.Ex{"id": id.String()}).
		ScanStructContext(ctx, &row)
	if err != nil {
		r.logger.Error("failed to get document", "document_id", id, "error", err)
		return nil, common.WrapError(err, "get document")
	}
	if !found {
		return nil, common.ErrNotFound
	}
	return row.toEntity()
}

func (r *documentRepo) GetByOwnerAndHash(ctx context.Context, ownerID uuid.UUID, hash []byte) (*entity.Document, error) {
	var row documentRow
	found, err := r.db.From("documents").Prepared(true).
		Where(goqu.Ex{"owner_id": ownerID.String(), "content_hash": hash}).
		ScanStructContext(ctx, &row)
	if err != nil {
		r.logger.Error("failed to get document by hash", "owner_id", ownerID, "error", err)
		return nil, common.WrapError(err, "get document by hash")
	}
	if !found {
		return nil, common.ErrNotFound
	}
	return row.toEntity()
}

// BeginAttempt transitions Pending/Processing to Processing and increments
// the attempt counter. ok=false means another delivery won the version race.
func (r *documentRepo) BeginAttempt(ctx context.Context, id uuid.UUID, fromVersion int64) (bool, error) {
	res, err := r.db.Update("documents").Prepared(true).
		Set(goqu.Record{
			"status":        string(constants.StatusProcessing),
			"attempt_count": goqu.L("attempt_count + 1"),
			"version":       goqu.L("version + 1"),
			"updated_at":    time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id.String(), "version": fromVersion}).
		Where(goqu.C("status").In(string(constants.StatusPending), string(constants.StatusProcessing))).
		Executor().ExecContext(ctx)
	if err != nil {
		r.logger.Error("begin attempt failed", "document_id", id, "error", err)
		return false, common.WrapError(err, "begin attempt")
	}
	return oneRow(res)
}

func (r *documentRepo) CompleteExtraction(ctx context.Context, id uuid.UUID, fromVersion int64,
	status constants.DocumentStatus, fields map[string]entity.FieldValue,
	confidences map[string]float32, items []entity.LineItem, note *string) (bool, error) {

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("encode fields: %w", err)
	}
	confJSON, err := json.Marshal(confidences)
	if err != nil {
		return false, fmt.Errorf("encode confidences: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, common.WrapError(err, "begin tx")
	}
	ok, err := r.completeInTx(ctx, tx, id, fromVersion, status, fieldsJSON, confJSON, items, note)
	if err != nil {
		_ = tx.Rollback()
		r.logger.Error("complete extraction failed", "document_id", id, "error", err)
		return false, err
	}
	if !ok {
		_ = tx.Rollback()
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, common.WrapError(err, "commit extraction")
	}
	return true, nil
}

func (r *documentRepo) completeInTx(ctx context.Context, tx *goqu.TxDatabase, id uuid.UUID, fromVersion int64,
	status constants.DocumentStatus, fieldsJSON, confJSON []byte, items []entity.LineItem, note *string) (bool, error) {

	var message any
	if note != nil {
		message = *note
	}
	res, err := tx.Update("documents").Prepared(true).
		Set(goqu.Record{
			"status":        string(status),
			"fields":        fieldsJSON,
			"confidences":   confJSON,
			"error_code":    nil,
			"error_message": message,
			"version":       goqu.L("version + 1"),
			"updated_at":    time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id.String(), "version": fromVersion}).
		Executor().ExecContext(ctx)
	if err != nil {
		return false, common.WrapError(err, "update document")
	}
	ok, err := oneRow(res)
	if err != nil || !ok {
		return ok, err
	}

	// wholesale replacement keeps re-extraction idempotent: no stale items
	// survive a reprocess
	if _, err := tx.Delete("line_items").Prepared(true).
		Where(goqu.Ex{"document_id": id.String()}).
		Executor().ExecContext(ctx); err != nil {
		return false, common.WrapError(err, "clear line items")
	}
	if len(items) == 0 {
		return true, nil
	}
	rows := make([]any, 0, len(items))
	for i, item := range items {
		itemID := item.ID
		if itemID == uuid.Nil {
			itemID = uuid.New()
		}
		rows = append(rows, lineItemRow{
			ID:          itemID.String(),
			DocumentID:  id.String(),
			Position:    i,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			Confidence:  item.Confidence,
		})
	}
	if _, err := tx.Insert("line_items").Prepared(true).Rows(rows...).Executor().ExecContext(ctx); err != nil {
		return false, common.WrapError(err, "insert line items")
	}
	return true, nil
}

func (r *documentRepo) FailExtraction(ctx context.Context, id uuid.UUID, fromVersion int64, errorCode, errorMessage string) (bool, error) {
	res, err := r.db.Update("documents").Prepared(true).
		Set(goqu.Record{
			"status":        string(constants.StatusFailed),
			"error_code":    errorCode,
			"error_message": errorMessage,
			"version":       goqu.L("version + 1"),
			"updated_at":    time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id.String(), "version": fromVersion}).
		Executor().ExecContext(ctx)
	if err != nil {
		r.logger.Error("fail extraction update failed", "document_id", id, "error", err)
		return false, common.WrapError(err, "fail extraction")
	}
	return oneRow(res)
}

// ResetForReprocess returns a terminal record to Pending with a fresh attempt
// budget. Only the explicit reprocess operation calls this.
func (r *documentRepo) ResetForReprocess(ctx context.Context, id uuid.UUID, fromVersion int64) (bool, error) {
	res, err := r.db.Update("documents").Prepared(true).
		Set(goqu.Record{
			"status":        string(constants.StatusPending),
			"attempt_count": 0,
			"error_code":    nil,
			"error_message": nil,
			"version":       goqu.L("version + 1"),
			"updated_at":    time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id.String(), "version": fromVersion}).
		Executor().ExecContext(ctx)
	if err != nil {
		r.logger.Error("reset for reprocess failed", "document_id", id, "error", err)
		return false, common.WrapError(err, "reset for reprocess")
	}
	return oneRow(res)
}

func (r *documentRepo) ListLineItems(ctx context.Context, documentID uuid.UUID) ([]entity.LineItem, error) {
	var rows []lineItemRow
	err := r.db.From("line_items").Prepared(true).
		Where(goqu.Ex{"document_id": documentID.String()}).
		Order(goqu.C("position").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		r.logger.Error("failed to list line items", "document_id", documentID, "error", err)
		return nil, common.WrapError(err, "list line items")
	}
	items := make([]entity.LineItem, len(rows))
	for i, row := range rows {
		itemID, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("parse line item id: %w", err)
		}
		items[i] = entity.LineItem{
			ID:          itemID,
			DocumentID:  documentID,
			Position:    row.Position,
			Description: row.Description,
			Quantity:    row.Quantity,
			UnitPrice:   row.UnitPrice,
			LineTotal:   row.LineTotal,
			Confidence:  row.Confidence,
		}
	}
	return items, nil
}

func (r *documentRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*entity.Document, error) {
	return r.list(ctx, r.db.From("documents").Prepared(true).
		Where(goqu.C("expires_at").Lte(now)).
		Order(goqu.C("expires_at").Asc()).
		Limit(uint(limit)))
}

// ListStuck returns non-terminal records untouched since olderThan. Both
// Pending and Processing qualify: a Pending record whose enqueue was lost
// and a Processing record whose worker died without acking are equally
// invisible to the queue.
func (r *documentRepo) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Document, error) {
	return r.list(ctx, r.db.From("documents").Prepared(true).
		Where(goqu.C("status").In(string(constants.StatusPending), string(constants.StatusProcessing))).
		Where(goqu.C("updated_at").Lte(olderThan)).
		Order(goqu.C("updated_at").Asc()).
		Limit(uint(limit)))
}

func (r *documentRepo) list(ctx context.Context, ds *goqu.SelectDataset) ([]*entity.Document, error) {
	var rows []documentRow
	if err := ds.ScanStructsContext(ctx, &rows); err != nil {
		r.logger.Error("failed to list documents", "error", err)
		return nil, common.WrapError(err, "list documents")
	}
	docs := make([]*entity.Document, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteByID removes a record and its line items. ok=false means another
// sweep already deleted it.
func (r *documentRepo) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, common.WrapError(err, "begin tx")
	}
	if _, err := tx.Delete("line_items").Prepared(true).
		Where(goqu.Ex{"document_id": id.String()}).
		Executor().ExecContext(ctx); err != nil {
		_ = tx.Rollback()
		r.logger.Error("failed to delete line items", "document_id", id, "error", err)
		return false, common.WrapError(err, "delete line items")
	}
	res, err := tx.Delete("documents").Prepared(true).
		Where(goqu.Ex{"id": id.String()}).
		Executor().ExecContext(ctx)
	if err != nil {
		_ = tx.Rollback()
		r.logger.Error("failed to delete document", "document_id", id, "error", err)
		return false, common.WrapError(err, "delete document")
	}
	if err := tx.Commit(); err != nil {
		return false, common.WrapError(err, "commit delete")
	}
	return oneRow(res)
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
