package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const studentColumns = `id, student_id, first_name, last_name, date_of_birth, gender, contact_info, address, current_grade,
       academic_year, parent_info, emergency_contact, status, admission_date, source_request_id, documents, created_at, updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Grade != "" {
		args = append(args, filter.Grade)
		conditions = append(conditions, fmt.Sprintf("current_grade = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name || ' ' || last_name) LIKE $%d OR LOWER(student_id) LIKE $%d)", n, n))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"first_name":     "first_name",
		"student_id":     "student_id",
		"admission_date": "admission_date",
		"created_at":     "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalisePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM students%s ORDER BY %s %s, id LIMIT %d OFFSET %d`,
		studentColumns, where, column, order, size, (page-1)*size)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindBySourceRequest fetches the student converted from an admission request.
func (r *StudentRepository) FindBySourceRequest(ctx context.Context, requestID string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE source_request_id = $1`, requestID); err != nil {
		return nil, err
	}
	return &student, nil
}

// NextSequence reserves the next student number for year.
func (r *StudentRepository) NextSequence(ctx context.Context, year int) (int, error) {
	const query = `INSERT INTO student_id_counters (year, last_value) VALUES ($1, 1)
	ON CONFLICT (year) DO UPDATE SET last_value = student_id_counters.last_value + 1
	RETURNING last_value`
	var seq int
	if err := r.db.GetContext(ctx, &seq, query, year); err != nil {
		return 0, fmt.Errorf("next student sequence: %w", err)
	}
	return seq, nil
}

// Create inserts a new student record. Unique violations are reported as
// ErrDuplicateSourceRequest or ErrDuplicateStudentID.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.Documents == nil {
		student.Documents = models.AssetReferences{}
	}
	const query = `INSERT INTO students (` + studentColumns + `)
	VALUES (:id, :student_id, :first_name, :last_name, :date_of_birth, :gender, :contact_info, :address, :current_grade,
	        :academic_year, :parent_info, :emergency_contact, :status, :admission_date, :source_request_id, :documents, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			switch constraint {
			case constraintSourceRequest:
				return ErrDuplicateSourceRequest
			case constraintStudentID:
				return ErrDuplicateStudentID
			}
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student. student_id and source_request_id are never rewritten.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name = :first_name, last_name = :last_name, date_of_birth = :date_of_birth,
	gender = :gender, contact_info = :contact_info, address = :address, current_grade = :current_grade,
	academic_year = :academic_year, parent_info = :parent_info, emergency_contact = :emergency_contact,
	status = :status, documents = :documents, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return requireRows(res)
}

// Delete removes a student row.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return requireRows(res)
}

// Collection implements the reference holder contract.
func (r *StudentRepository) Collection() string {
	return models.CollectionStudents
}

type studentRefsRow struct {
	ID        string                 `db:"id"`
	Documents models.AssetReferences `db:"documents"`
}

// ForEachReferences visits every student's document references.
func (r *StudentRepository) ForEachReferences(ctx context.Context, fn func(string, []models.FieldReference) error) error {
	const query = `SELECT id::text AS id, documents FROM students WHERE id::text > $1 ORDER BY id::text LIMIT $2`
	return scanReferencePages(ctx, r.db, query, func(row studentRefsRow) (string, []models.FieldReference) {
		return row.ID, documentFieldRefs(row.Documents)
	}, fn)
}

// RemoveReferences drops blobIDs from a student's documents under a row lock.
func (r *StudentRepository) RemoveReferences(ctx context.Context, id string, blobIDs []string) ([]models.FieldReference, error) {
	return removeDocumentRefs(ctx, r.db, "students", id, blobIDs)
}
