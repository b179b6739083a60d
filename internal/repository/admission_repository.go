package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const admissionColumns = `id, applicant_name, contact_info, grade_applied_for, date_of_birth, gender, address, parent_info,
       emergency_contact, previous_school, submitted_at, status, payment_ref, payment_status, reviewed_by, reviewed_at,
       admin_notes, refund_amount, refund_reason, refund_status, documents, updated_at`

// AdmissionRepository persists admission requests.
type AdmissionRepository struct {
	db *sqlx.DB
}

// NewAdmissionRepository constructs the repository.
func NewAdmissionRepository(db *sqlx.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// Create inserts a new pending request.
func (r *AdmissionRepository) Create(ctx context.Context, req *models.AdmissionRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = now
	}
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.AdmissionStatusPending
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = models.PaymentStatusNone
	}
	if req.RefundStatus == "" {
		req.RefundStatus = models.RefundStatusNone
	}
	const query = `INSERT INTO admission_requests (` + admissionColumns + `)
	VALUES (:id, :applicant_name, :contact_info, :grade_applied_for, :date_of_birth, :gender, :address, :parent_info,
	        :emergency_contact, :previous_school, :submitted_at, :status, :payment_ref, :payment_status, :reviewed_by, :reviewed_at,
	        :admin_notes, :refund_amount, :refund_reason, :refund_status, :documents, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		if constraint, ok := uniqueConstraint(err); ok && constraint == constraintPaymentRef {
			return ErrDuplicatePaymentRef
		}
		return fmt.Errorf("create admission request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *AdmissionRepository) GetByID(ctx context.Context, id string) (*models.AdmissionRequest, error) {
	var req models.AdmissionRequest
	if err := r.db.GetContext(ctx, &req, `SELECT `+admissionColumns+` FROM admission_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByPaymentRef fetches the request tied to a gateway transaction.
func (r *AdmissionRepository) GetByPaymentRef(ctx context.Context, ref string) (*models.AdmissionRequest, error) {
	var req models.AdmissionRequest
	if err := r.db.GetContext(ctx, &req, `SELECT `+admissionColumns+` FROM admission_requests WHERE payment_ref = $1`, ref); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, newest first, with the total count.
func (r *AdmissionRepository) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRequest, int, error) {
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RefundStatus != "" {
		args = append(args, filter.RefundStatus)
		conditions = append(conditions, fmt.Sprintf("refund_status = $%d", len(args)))
	}
	if filter.UpdatedBefore != nil {
		args = append(args, *filter.UpdatedBefore)
		conditions = append(conditions, fmt.Sprintf("updated_at < $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(applicant_name) LIKE $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM admission_requests%s ORDER BY submitted_at DESC, id LIMIT %d OFFSET %d`,
		admissionColumns, where, size, (page-1)*size)

	var requests []models.AdmissionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list admission requests: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM admission_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count admission requests: %w", err)
	}
	return requests, total, nil
}

// Transition moves a request from t.From to t.To. It returns sql.ErrNoRows
// when the request is not in t.From anymore, which is how concurrent
// reviewers lose the race.
func (r *AdmissionRepository) Transition(ctx context.Context, t models.AdmissionTransition) error {
	setParts := []string{"status = :to", "updated_at = :updated_at"}
	switch {
	case t.ClearReview:
		setParts = append(setParts, "reviewed_by = NULL", "reviewed_at = NULL", "admin_notes = NULL")
	case t.ReviewedBy != nil:
		setParts = append(setParts, "reviewed_by = :reviewed_by", "reviewed_at = :reviewed_at", "admin_notes = :admin_notes")
	}
	if t.RefundStatus != "" {
		setParts = append(setParts, "refund_amount = :refund_amount", "refund_reason = :refund_reason", "refund_status = :refund_status")
	}
	query := fmt.Sprintf("UPDATE admission_requests SET %s WHERE id = :id AND status = :from", strings.Join(setParts, ", "))
	res, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            t.ID,
		"from":          t.From,
		"to":            t.To,
		"updated_at":    time.Now().UTC(),
		"reviewed_by":   t.ReviewedBy,
		"reviewed_at":   t.ReviewedAt,
		"admin_notes":   t.AdminNotes,
		"refund_amount": t.RefundAmount,
		"refund_reason": t.RefundReason,
		"refund_status": t.RefundStatus,
	})
	if err != nil {
		return fmt.Errorf("transition admission request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check admission transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdatePaymentStatus stores the latest payment signal.
func (r *AdmissionRepository) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	const query = `UPDATE admission_requests SET payment_status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return requireRows(res)
}

// UpdateRefundStatus records the outcome of an asynchronous refund.
func (r *AdmissionRepository) UpdateRefundStatus(ctx context.Context, id string, status models.RefundStatus) error {
	const query = `UPDATE admission_requests SET refund_status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update refund status: %w", err)
	}
	return requireRows(res)
}

// Collection implements the reference holder contract.
func (r *AdmissionRepository) Collection() string {
	return models.CollectionAdmissions
}

type admissionRefsRow struct {
	ID        string                 `db:"id"`
	Documents models.AssetReferences `db:"documents"`
}

// ForEachReferences visits every request's document references.
func (r *AdmissionRepository) ForEachReferences(ctx context.Context, fn func(string, []models.FieldReference) error) error {
	const query = `SELECT id::text AS id, documents FROM admission_requests WHERE id::text > $1 ORDER BY id::text LIMIT $2`
	return scanReferencePages(ctx, r.db, query, func(row admissionRefsRow) (string, []models.FieldReference) {
		return row.ID, documentFieldRefs(row.Documents)
	}, fn)
}

// RemoveReferences drops blobIDs from a request's documents under a row lock.
func (r *AdmissionRepository) RemoveReferences(ctx context.Context, id string, blobIDs []string) ([]models.FieldReference, error) {
	return removeDocumentRefs(ctx, r.db, "admission_requests", id, blobIDs)
}

func documentFieldRefs(refs models.AssetReferences) []models.FieldReference {
	out := make([]models.FieldReference, 0, len(refs))
	for _, ref := range refs {
		out = append(out, models.FieldReference{Field: models.FieldDocuments, Ref: ref})
	}
	return out
}

// removeDocumentRefs rewrites the documents column of table without blobIDs.
// table is always a package constant.
func removeDocumentRefs(ctx context.Context, db *sqlx.DB, table, id string, blobIDs []string) (removed []models.FieldReference, err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s ref removal: %w", table, err)
	}
	defer rollback(tx, &err)

	var docs models.AssetReferences
	if err = tx.GetContext(ctx, &docs, fmt.Sprintf(`SELECT documents FROM %s WHERE id = $1 FOR UPDATE`, table), id); err != nil {
		if err == sql.ErrNoRows {
			err = nil
			_ = tx.Rollback()
			return nil, nil
		}
		return nil, fmt.Errorf("lock %s: %w", table, err)
	}
	kept := docs
	for _, blobID := range blobIDs {
		if kept.Contains(blobID) {
			for _, ref := range kept {
				if ref.BlobID == blobID {
					removed = append(removed, models.FieldReference{Field: models.FieldDocuments, Ref: ref})
				}
			}
			kept = kept.Without(blobID)
		}
	}
	if len(removed) == 0 {
		err = tx.Rollback()
		return nil, err
	}
	// updated_at tracks workflow changes; stranded recovery keys off it.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET documents = $2 WHERE id = $1`, table), id, kept); err != nil {
		return nil, fmt.Errorf("update %s documents: %w", table, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s ref removal: %w", table, err)
	}
	return removed, nil
}

func requireRows(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
