package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// ErrDuplicateSourceRequest is returned when a student already exists for an admission request.
var ErrDuplicateSourceRequest = errors.New("student already exists for source request")

// ErrDuplicateStudentID is returned when a generated student number collides.
var ErrDuplicateStudentID = errors.New("student id already taken")

// ErrDuplicatePaymentRef is returned when a payment reference is already tied to a request.
var ErrDuplicatePaymentRef = errors.New("payment reference already used")

const (
	uniqueViolation         = "23505"
	constraintSourceRequest = "uq_students_source_request"
	constraintStudentID     = "students_student_id_key"
	constraintPaymentRef    = "uq_admission_payment_ref"
	referenceScanPage       = 200
)

func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// scanReferencePages walks a table in id order one page at a time so a
// reconciliation pass never holds a long-lived cursor.
func scanReferencePages[T any](ctx context.Context, db *sqlx.DB, query string, refsOf func(T) (string, []models.FieldReference), fn func(string, []models.FieldReference) error) error {
	cursor := ""
	for {
		var page []T
		if err := db.SelectContext(ctx, &page, query, cursor, referenceScanPage); err != nil {
			return err
		}
		for _, row := range page {
			id, refs := refsOf(row)
			cursor = id
			if err := fn(id, refs); err != nil {
				return err
			}
		}
		if len(page) < referenceScanPage {
			return nil
		}
	}
}

func rollback(tx *sqlx.Tx, err *error) {
	if *err != nil {
		_ = tx.Rollback()
	}
}
