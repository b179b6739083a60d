package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

const studentIDAttempts = 3

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindBySourceRequest(ctx context.Context, requestID string) (*models.Student, error)
	NextSequence(ctx context.Context, year int) (int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type assetTracker interface {
	Attach(ctx context.Context, doc models.DocumentRef, ref models.AssetReference) error
	Detach(ctx context.Context, doc models.DocumentRef, blobID string) error
	DetachAll(ctx context.Context, doc models.DocumentRef) error
}

// StudentServiceConfig holds student numbering rules.
type StudentServiceConfig struct {
	IDPrefix               string
	AcademicYearStartMonth int
}

// StudentService is the student registry.
type StudentService struct {
	repo      studentRepository
	assets    assetTracker
	cfg       StudentServiceConfig
	validator *validator.Validate
	audit     auditTrail
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, assets assetTracker, cfg StudentServiceConfig, validate *validator.Validate, audit auditWriter, logger *zap.Logger) *StudentService {
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "STU"
	}
	if cfg.AcademicYearStartMonth < 1 || cfg.AcademicYearStartMonth > 12 {
		cfg.AcademicYearStartMonth = 7
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		assets:    assets,
		cfg:       cfg,
		validator: validate,
		audit:     auditTrail{writer: audit, source: "student-service", logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	now := s.now()
	for i := range students {
		students[i].FillAge(now)
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	student.FillAge(s.now())
	return student, nil
}

// CreateFromRequest materialises an approved admission request into a
// student. A second call for the same request fails with DuplicateConversion.
func (s *StudentService) CreateFromRequest(ctx context.Context, req *models.AdmissionRequest) (*models.Student, error) {
	if req == nil || req.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "admission request is required")
	}
	existing, err := s.repo.FindBySourceRequest(ctx, req.ID)
	if err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateConversion, fmt.Sprintf("student %s already created from request %s", existing.StudentID, req.ID))
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing student")
	}

	firstName, lastName := splitName(req.ApplicantName)
	sourceID := req.ID
	now := s.now().UTC()
	student := &models.Student{
		ID:               uuid.NewString(),
		FirstName:        firstName,
		LastName:         lastName,
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		ContactInfo:      req.ContactInfo,
		Address:          req.Address,
		CurrentGrade:     req.GradeAppliedFor,
		ParentInfo:       req.ParentInfo,
		EmergencyContact: req.EmergencyContact,
		Status:           models.StudentStatusActive,
		AdmissionDate:    now,
		SourceRequestID:  &sourceID,
		Documents:        append(models.AssetReferences{}, req.Documents...),
	}
	if err := s.insert(ctx, student); err != nil {
		return nil, err
	}

	doc := models.DocumentRef{Collection: models.CollectionStudents, DocumentID: student.ID}
	for _, ref := range student.Documents {
		if err := s.assets.Attach(ctx, doc, ref); err != nil {
			s.logger.Warn("failed to link carried-over document", zap.String("student_id", student.ID), zap.String("blob_id", ref.BlobID), zap.Error(err))
		}
	}
	student.FillAge(now)
	return student, nil
}

// CreateManual registers a student that did not come through admission.
func (s *StudentService) CreateManual(ctx context.Context, actor *models.Identity, req dto.CreateStudentRequest) (*models.Student, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin identity required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	admission := s.now().UTC()
	if req.AdmissionDate != nil {
		admission = req.AdmissionDate.UTC()
	}
	student := &models.Student{
		ID:               uuid.NewString(),
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		ContactInfo:      req.ContactInfo,
		Address:          req.Address,
		CurrentGrade:     req.CurrentGrade,
		AcademicYear:     req.AcademicYear,
		ParentInfo:       req.ParentInfo,
		EmergencyContact: req.EmergencyContact,
		Status:           models.StudentStatusActive,
		AdmissionDate:    admission,
		Documents:        append(models.AssetReferences{}, req.Documents...),
	}

	doc := models.DocumentRef{Collection: models.CollectionStudents, DocumentID: student.ID}
	for _, ref := range student.Documents {
		if err := s.assets.Attach(ctx, doc, ref); err != nil {
			s.releaseLinks(ctx, doc)
			return nil, err
		}
	}
	if err := s.insert(ctx, student); err != nil {
		s.releaseLinks(ctx, doc)
		return nil, err
	}
	student.FillAge(s.now())
	return student, nil
}

// Update patches a student. The human-readable studentId never changes.
func (s *StudentService) Update(ctx context.Context, actor *models.Identity, id string, req dto.UpdateStudentRequest) (*models.Student, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin identity required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.StudentID != nil && *req.StudentID != student.StudentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId cannot be changed")
	}
	applyStudentPatch(student, req)

	doc := models.DocumentRef{Collection: models.CollectionStudents, DocumentID: student.ID}
	var added, removed []models.AssetReference
	if req.Documents != nil {
		next := models.AssetReferences(*req.Documents)
		added, removed = diffReferences(student.Documents, next)
		for i, ref := range added {
			if err := s.assets.Attach(ctx, doc, ref); err != nil {
				s.detachEach(ctx, doc, added[:i])
				return nil, err
			}
		}
		student.Documents = next
	}

	if err := s.repo.Update(ctx, student); err != nil {
		s.detachEach(ctx, doc, added)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.detachEach(ctx, doc, removed)
	student.FillAge(s.now())
	return student, nil
}

// Delete removes a student after detaching its references. Blobs are left
// for the reconciler.
func (s *StudentService) Delete(ctx context.Context, actor *models.Identity, id string) error {
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin identity required")
	}
	student, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.assets.DetachAll(ctx, models.DocumentRef{Collection: models.CollectionStudents, DocumentID: id}); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.audit.emit(ctx, actor, models.AuditActionStudentDelete, "students", id, student, nil)
	return nil
}

// GetBySourceRequest returns the student created from an admission request.
func (s *StudentService) GetBySourceRequest(ctx context.Context, requestID string) (*models.Student, error) {
	student, err := s.repo.FindBySourceRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no student for admission request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// DiscardConversion removes a student whose admission request could not be
// marked converted. It is compensation, not a user-facing delete.
func (s *StudentService) DiscardConversion(ctx context.Context, id string) error {
	if err := s.assets.DetachAll(ctx, models.DocumentRef{Collection: models.CollectionStudents, DocumentID: id}); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard student")
	}
	return nil
}

// AcademicYear returns the starting year and label of the academic year at t.
func (s *StudentService) AcademicYear(t time.Time) (int, string) {
	year := t.Year()
	if int(t.Month()) < s.cfg.AcademicYearStartMonth {
		year--
	}
	return year, fmt.Sprintf("%d/%d", year, year+1)
}

func (s *StudentService) insert(ctx context.Context, student *models.Student) error {
	year, label := s.AcademicYear(s.now())
	if student.AcademicYear == "" {
		student.AcademicYear = label
	}
	for attempt := 0; attempt < studentIDAttempts; attempt++ {
		seq, err := s.repo.NextSequence(ctx, year)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate student id")
		}
		student.StudentID = fmt.Sprintf("%s-%d-%04d", s.cfg.IDPrefix, year, seq)
		err = s.repo.Create(ctx, student)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrDuplicateStudentID):
			s.logger.Warn("student id collision, retrying", zap.String("student_id", student.StudentID))
			continue
		case errors.Is(err, repository.ErrDuplicateSourceRequest):
			return appErrors.Clone(appErrors.ErrDuplicateConversion, "student already created from this request")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
		}
	}
	return appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique student id")
}

func (s *StudentService) load(ctx context.Context, id string) (*models.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) releaseLinks(ctx context.Context, doc models.DocumentRef) {
	if err := s.assets.DetachAll(context.WithoutCancel(ctx), doc); err != nil {
		s.logger.Error("failed to release asset links", zap.String("document", doc.String()), zap.Error(err))
	}
}

func (s *StudentService) detachEach(ctx context.Context, doc models.DocumentRef, refs []models.AssetReference) {
	for _, ref := range refs {
		if err := s.assets.Detach(context.WithoutCancel(ctx), doc, ref.BlobID); err != nil {
			s.logger.Error("failed to detach reference", zap.String("document", doc.String()), zap.String("blob_id", ref.BlobID), zap.Error(err))
		}
	}
}

func applyStudentPatch(student *models.Student, req dto.UpdateStudentRequest) {
	if req.FirstName != nil {
		student.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		student.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.DateOfBirth != nil {
		student.DateOfBirth = req.DateOfBirth
	}
	if req.Gender != nil {
		student.Gender = req.Gender
	}
	if req.ContactInfo != nil {
		student.ContactInfo = *req.ContactInfo
	}
	if req.Address != nil {
		student.Address = req.Address
	}
	if req.CurrentGrade != nil {
		student.CurrentGrade = *req.CurrentGrade
	}
	if req.AcademicYear != nil {
		student.AcademicYear = *req.AcademicYear
	}
	if req.ParentInfo != nil {
		student.ParentInfo = *req.ParentInfo
	}
	if req.EmergencyContact != nil {
		student.EmergencyContact = *req.EmergencyContact
	}
	if req.Status != nil {
		student.Status = *req.Status
	}
}

// diffReferences returns refs present only in next and only in prev.
func diffReferences(prev, next models.AssetReferences) (added, removed []models.AssetReference) {
	for _, ref := range next {
		if !prev.Contains(ref.BlobID) {
			added = append(added, ref)
		}
	}
	for _, ref := range prev {
		if !next.Contains(ref.BlobID) {
			removed = append(removed, ref)
		}
	}
	return added, removed
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func pageDefaults(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
