package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/jobs"
	"github.com/noah-isme/sma-admission-api/pkg/payment"
)

type admissionRepository interface {
	Create(ctx context.Context, req *models.AdmissionRequest) error
	GetByID(ctx context.Context, id string) (*models.AdmissionRequest, error)
	GetByPaymentRef(ctx context.Context, ref string) (*models.AdmissionRequest, error)
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRequest, int, error)
	Transition(ctx context.Context, t models.AdmissionTransition) error
	UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error
	UpdateRefundStatus(ctx context.Context, id string, status models.RefundStatus) error
}

type studentRegistry interface {
	CreateFromRequest(ctx context.Context, req *models.AdmissionRequest) (*models.Student, error)
	GetBySourceRequest(ctx context.Context, requestID string) (*models.Student, error)
	DiscardConversion(ctx context.Context, id string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// AdmissionServiceConfig tunes workflow recovery.
type AdmissionServiceConfig struct {
	// StrandedAfter is how long a request may sit in approved before
	// recovery treats it as abandoned.
	StrandedAfter time.Duration
}

// AdmissionService runs the admission workflow: pending to approved to
// converted, or pending to rejected. Every status change is a compare-and-swap
// on the prior status, so concurrent reviewers cannot both win.
type AdmissionService struct {
	repo      admissionRepository
	students  studentRegistry
	blobs     blobWriter
	assets    assetTracker
	gateway   payment.Gateway
	refunds   jobDispatcher
	cfg       AdmissionServiceConfig
	validator *validator.Validate
	metrics   *MetricsService
	audit     auditTrail
	logger    *zap.Logger
	now       func() time.Time
}

// NewAdmissionService constructs the workflow service.
func NewAdmissionService(repo admissionRepository, students studentRegistry, blobs blobWriter, assets assetTracker, gateway payment.Gateway, refunds jobDispatcher, cfg AdmissionServiceConfig, validate *validator.Validate, audit auditWriter, metrics *MetricsService, logger *zap.Logger) *AdmissionService {
	if gateway == nil {
		gateway = payment.Disabled{}
	}
	if cfg.StrandedAfter <= 0 {
		cfg.StrandedAfter = 10 * time.Minute
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{
		repo:      repo,
		students:  students,
		blobs:     blobs,
		assets:    assets,
		gateway:   gateway,
		refunds:   refunds,
		cfg:       cfg,
		validator: validate,
		metrics:   metrics,
		audit:     auditTrail{writer: audit, source: "admission-service", logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// Submit records a new pending request with its uploaded documents.
func (s *AdmissionService) Submit(ctx context.Context, req dto.SubmitAdmissionRequest, uploads []dto.FileUpload) (*models.AdmissionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission payload")
	}
	request := &models.AdmissionRequest{
		ID:               uuid.NewString(),
		ApplicantName:    req.ApplicantName,
		ContactInfo:      req.ContactInfo,
		GradeAppliedFor:  req.GradeAppliedFor,
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		Address:          req.Address,
		ParentInfo:       req.ParentInfo,
		EmergencyContact: req.EmergencyContact,
		PreviousSchool:   req.PreviousSchool,
		SubmittedAt:      s.now().UTC(),
		Status:           models.AdmissionStatusPending,
		PaymentRef:       req.PaymentRef,
		PaymentStatus:    models.PaymentStatusNone,
		RefundStatus:     models.RefundStatusNone,
		Documents:        models.AssetReferences{},
	}
	if request.PaymentRef != nil {
		request.PaymentStatus = s.lookupPayment(ctx, *request.PaymentRef)
	}

	batch := newUploadBatch(s.blobs, s.assets, models.DocumentRef{Collection: models.CollectionAdmissions, DocumentID: request.ID}, s.logger)
	for _, upload := range uploads {
		ref, err := batch.store(ctx, upload, models.AssetRoleDocument)
		if err != nil {
			batch.rollback(ctx)
			return nil, err
		}
		request.Documents = append(request.Documents, ref)
	}

	if err := s.repo.Create(ctx, request); err != nil {
		batch.rollback(ctx)
		if errors.Is(err, repository.ErrDuplicatePaymentRef) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "payment reference already used by another request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit admission request")
	}
	s.logger.Info("admission request submitted", zap.String("request_id", request.ID), zap.Int("documents", len(request.Documents)))
	return request, nil
}

// List returns requests with pagination metadata.
func (s *AdmissionService) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRequest, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admission requests")
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single request.
func (s *AdmissionService) Get(ctx context.Context, id string) (*models.AdmissionRequest, error) {
	return s.load(ctx, id)
}

// Approve claims a pending request and converts it into a student. Once the
// claim succeeds the remaining steps ignore caller cancellation. If student
// creation fails the request returns to pending.
func (s *AdmissionService) Approve(ctx context.Context, actor *models.Identity, id string, req dto.ApproveAdmissionRequest) (*models.AdmissionRequest, *models.Student, error) {
	if !actor.IsAdmin() {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "admin identity required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if request.Status != models.AdmissionStatusPending {
		s.metrics.RecordTransition(models.AdmissionStatusApproved, "invalid")
		return nil, nil, invalidTransition(request.Status, models.AdmissionStatusApproved)
	}

	reviewer := actor.UserID
	reviewedAt := s.now().UTC()
	notes := optionalString(req.AdminNotes)
	if err := s.claim(ctx, models.AdmissionTransition{
		ID:         id,
		From:       models.AdmissionStatusPending,
		To:         models.AdmissionStatusApproved,
		ReviewedBy: &reviewer,
		ReviewedAt: &reviewedAt,
		AdminNotes: notes,
	}); err != nil {
		return nil, nil, err
	}

	ctx = context.WithoutCancel(ctx)
	request.Status = models.AdmissionStatusApproved
	request.ReviewedBy = &reviewer
	request.ReviewedAt = &reviewedAt
	request.AdminNotes = notes

	student, err := s.students.CreateFromRequest(ctx, request)
	if err != nil {
		s.metrics.RecordTransition(models.AdmissionStatusConverted, "rolled_back")
		s.logger.Warn("student creation failed, reverting approval", zap.String("request_id", id), zap.Error(err))
		s.revertApproval(ctx, id)
		return nil, nil, err
	}

	if err := s.repo.Transition(ctx, models.AdmissionTransition{
		ID:   id,
		From: models.AdmissionStatusApproved,
		To:   models.AdmissionStatusConverted,
	}); err != nil {
		s.metrics.RecordTransition(models.AdmissionStatusConverted, "rolled_back")
		s.logger.Error("failed to mark request converted, discarding student", zap.String("request_id", id), zap.String("student_id", student.ID), zap.Error(err))
		if discardErr := s.students.DiscardConversion(ctx, student.ID); discardErr != nil {
			s.logger.Error("failed to discard student; request left approved for recovery", zap.String("request_id", id), zap.String("student_id", student.ID), zap.Error(discardErr))
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete conversion")
		}
		s.revertApproval(ctx, id)
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete conversion")
	}

	request.Status = models.AdmissionStatusConverted
	s.metrics.RecordTransition(models.AdmissionStatusConverted, "ok")
	s.audit.emit(ctx, actor, models.AuditActionAdmissionApprove, "admission_requests", id,
		map[string]interface{}{"status": models.AdmissionStatusPending},
		map[string]interface{}{"status": request.Status, "studentId": student.StudentID})
	s.logger.Info("admission request converted", zap.String("request_id", id), zap.String("student_id", student.StudentID))
	return request, student, nil
}

// Reject closes a pending request. When the request carries a payment and a
// positive refund amount, a refund is queued and the call returns without
// waiting for it.
func (s *AdmissionService) Reject(ctx context.Context, actor *models.Identity, id string, req dto.RejectAdmissionRequest) (*models.AdmissionRequest, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin identity required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.AdmissionStatusPending {
		s.metrics.RecordTransition(models.AdmissionStatusRejected, "invalid")
		return nil, invalidTransition(request.Status, models.AdmissionStatusRejected)
	}

	refundStatus := models.RefundStatusNone
	var refundAmount int64
	if req.RefundAmount > 0 {
		if request.PaymentRef == nil {
			s.logger.Info("refund amount ignored, request has no payment", zap.String("request_id", id))
		} else {
			refundStatus = models.RefundStatusRequested
			refundAmount = req.RefundAmount
		}
	}

	reviewer := actor.UserID
	reviewedAt := s.now().UTC()
	notes := optionalString(req.AdminNotes)
	reason := optionalString(req.RefundReason)
	if err := s.claim(ctx, models.AdmissionTransition{
		ID:           id,
		From:         models.AdmissionStatusPending,
		To:           models.AdmissionStatusRejected,
		ReviewedBy:   &reviewer,
		ReviewedAt:   &reviewedAt,
		AdminNotes:   notes,
		RefundAmount: refundAmount,
		RefundReason: reason,
		RefundStatus: refundStatus,
	}); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	request.Status = models.AdmissionStatusRejected
	request.ReviewedBy = &reviewer
	request.ReviewedAt = &reviewedAt
	request.AdminNotes = notes
	request.RefundAmount = refundAmount
	request.RefundReason = reason
	request.RefundStatus = refundStatus

	if refundStatus == models.RefundStatusRequested {
		request.RefundStatus = s.dispatchRefund(ctx, request)
	}

	s.metrics.RecordTransition(models.AdmissionStatusRejected, "ok")
	s.audit.emit(ctx, actor, models.AuditActionAdmissionReject, "admission_requests", id,
		map[string]interface{}{"status": models.AdmissionStatusPending},
		map[string]interface{}{"status": request.Status, "refundAmount": refundAmount, "refundStatus": request.RefundStatus})
	return request, nil
}

// ErrPaymentUnverified is returned when a success signal cannot be confirmed
// with the payment gateway.
var ErrPaymentUnverified = appErrors.New("PAYMENT_UNVERIFIED", http.StatusUnprocessableEntity, "payment could not be verified with the gateway")

// RecordPayment stores a payment signal on the request owning the transaction.
// When the gateway is reachable its view of the transaction wins. Without it a
// success is refused and a settled payment is never downgraded.
func (s *AdmissionService) RecordPayment(ctx context.Context, note dto.PaymentNotification) (*models.AdmissionRequest, error) {
	if err := s.validator.Struct(note); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment notification")
	}
	signal, ok := payment.ParseStatus(note.Status)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown payment status")
	}
	request, err := s.repo.GetByPaymentRef(ctx, note.TransactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no admission request for transaction")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission request")
	}

	verified, err := s.gateway.Status(ctx, note.TransactionID)
	switch {
	case err == nil:
		if verified != signal {
			s.logger.Warn("payment signal differs from gateway", zap.String("transaction_id", note.TransactionID), zap.String("signal", string(signal)), zap.String("gateway", string(verified)))
		}
		signal = verified
	case signal == payment.StatusSuccess:
		// Only the gateway can confirm a payment.
		s.logger.Warn("unverified payment success refused", zap.String("transaction_id", note.TransactionID), zap.Error(err))
		return nil, ErrPaymentUnverified
	case request.PaymentStatus == models.PaymentStatusSuccess:
		s.logger.Warn("unverified payment signal ignored for settled request", zap.String("transaction_id", note.TransactionID), zap.String("signal", string(signal)))
		return request, nil
	case !errors.Is(err, payment.ErrNotConfigured):
		s.logger.Warn("payment verification unavailable", zap.String("transaction_id", note.TransactionID), zap.Error(err))
	}

	status := paymentStatusOf(signal)
	if err := s.repo.UpdatePaymentStatus(ctx, request.ID, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	request.PaymentStatus = status
	return request, nil
}

// RecoverStranded repairs requests left in approved by a crash or a failed
// compensation: if their student exists they are marked converted, otherwise
// they return to pending.
func (s *AdmissionService) RecoverStranded(ctx context.Context) (*models.RecoveryResult, error) {
	cutoff := s.now().UTC().Add(-s.cfg.StrandedAfter)
	stranded, err := s.collect(ctx, models.AdmissionFilter{
		Status:        []models.AdmissionStatus{models.AdmissionStatusApproved},
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		return nil, err
	}

	result := &models.RecoveryResult{Converted: []string{}, Reverted: []string{}, Failed: []string{}}
	for _, request := range stranded {
		student, err := s.students.GetBySourceRequest(ctx, request.ID)
		switch {
		case err == nil:
			err = s.repo.Transition(ctx, models.AdmissionTransition{ID: request.ID, From: models.AdmissionStatusApproved, To: models.AdmissionStatusConverted})
			if err == nil {
				result.Converted = append(result.Converted, request.ID)
				s.audit.emit(ctx, nil, models.AuditActionAdmissionRecover, "admission_requests", request.ID, nil,
					map[string]interface{}{"status": models.AdmissionStatusConverted, "studentId": student.StudentID})
				continue
			}
		case errors.Is(err, appErrors.ErrNotFound):
			err = s.repo.Transition(ctx, models.AdmissionTransition{ID: request.ID, From: models.AdmissionStatusApproved, To: models.AdmissionStatusPending, ClearReview: true})
			if err == nil {
				result.Reverted = append(result.Reverted, request.ID)
				s.audit.emit(ctx, nil, models.AuditActionAdmissionRecover, "admission_requests", request.ID, nil,
					map[string]interface{}{"status": models.AdmissionStatusPending})
				continue
			}
		}
		if errors.Is(err, sql.ErrNoRows) {
			// moved on concurrently
			continue
		}
		s.logger.Error("failed to recover stranded request", zap.String("request_id", request.ID), zap.Error(err))
		result.Failed = append(result.Failed, request.ID)
	}
	return result, nil
}

// RecoverPendingRefunds re-queues refunds that were requested but never
// completed, for example because the process stopped.
func (s *AdmissionService) RecoverPendingRefunds(ctx context.Context) (int, error) {
	pending, err := s.collect(ctx, models.AdmissionFilter{
		Status:       []models.AdmissionStatus{models.AdmissionStatusRejected},
		RefundStatus: models.RefundStatusRequested,
	})
	if err != nil {
		return 0, err
	}
	queued := 0
	for i := range pending {
		if s.dispatchRefund(ctx, &pending[i]) == models.RefundStatusRequested {
			queued++
		}
	}
	return queued, nil
}

func (s *AdmissionService) claim(ctx context.Context, t models.AdmissionTransition) error {
	if err := s.repo.Transition(ctx, t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordTransition(t.To, "lost_race")
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request is no longer %s", t.From))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admission request")
	}
	s.metrics.RecordTransition(t.To, "ok")
	return nil
}

func (s *AdmissionService) revertApproval(ctx context.Context, id string) {
	err := s.repo.Transition(ctx, models.AdmissionTransition{
		ID:          id,
		From:        models.AdmissionStatusApproved,
		To:          models.AdmissionStatusPending,
		ClearReview: true,
	})
	if err != nil {
		s.logger.Error("failed to revert approval; request left approved for recovery", zap.String("request_id", id), zap.Error(err))
	}
}

// dispatchRefund queues the refund and returns the resulting refund status.
func (s *AdmissionService) dispatchRefund(ctx context.Context, request *models.AdmissionRequest) models.RefundStatus {
	if s.refunds == nil || request.PaymentRef == nil {
		s.markRefundFailed(ctx, request.ID, errors.New("refund dispatch unavailable"))
		return models.RefundStatusFailed
	}
	reason := ""
	if request.RefundReason != nil {
		reason = *request.RefundReason
	}
	err := s.refunds.Enqueue(jobs.Job{
		ID:   request.ID,
		Type: JobTypeRefund,
		Payload: RefundJob{
			RequestID:     request.ID,
			TransactionID: *request.PaymentRef,
			Amount:        request.RefundAmount,
			Reason:        reason,
		},
	})
	if err != nil {
		s.markRefundFailed(ctx, request.ID, err)
		return models.RefundStatusFailed
	}
	return models.RefundStatusRequested
}

func (s *AdmissionService) markRefundFailed(ctx context.Context, id string, cause error) {
	s.logger.Error("refund could not be queued", zap.String("request_id", id), zap.Error(cause))
	s.metrics.RecordRefund(models.RefundStatusFailed)
	if err := s.repo.UpdateRefundStatus(ctx, id, models.RefundStatusFailed); err != nil {
		s.logger.Error("failed to record refund failure", zap.String("request_id", id), zap.Error(err))
	}
}

func (s *AdmissionService) lookupPayment(ctx context.Context, ref string) models.PaymentStatus {
	status, err := s.gateway.Status(ctx, ref)
	if err != nil {
		if !errors.Is(err, payment.ErrNotConfigured) {
			s.logger.Warn("payment lookup failed", zap.String("payment_ref", ref), zap.Error(err))
		}
		return models.PaymentStatusPending
	}
	return paymentStatusOf(status)
}

func (s *AdmissionService) collect(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRequest, error) {
	const pageSize = 100
	var out []models.AdmissionRequest
	for page := 1; ; page++ {
		filter.Page, filter.PageSize = page, pageSize
		batch, _, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admission requests")
		}
		out = append(out, batch...)
		if len(batch) < pageSize {
			return out, nil
		}
	}
}

func (s *AdmissionService) load(ctx context.Context, id string) (*models.AdmissionRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "admission request not found")
	}
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission request")
	}
	return request, nil
}

func invalidTransition(from, to models.AdmissionStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move request from %s to %s", from, to))
}

func paymentStatusOf(status payment.Status) models.PaymentStatus {
	switch status {
	case payment.StatusSuccess:
		return models.PaymentStatusSuccess
	case payment.StatusFailed:
		return models.PaymentStatusFailed
	}
	return models.PaymentStatusPending
}
