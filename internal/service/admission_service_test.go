package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/payment"
)

func submitPending(t *testing.T, f *fixture, paymentRef *string) *models.AdmissionRequest {
	t.Helper()
	req, err := f.admissionSvc.Submit(context.Background(), dto.SubmitAdmissionRequest{
		ApplicantName:   "Siti Nur Aisyah",
		GradeAppliedFor: "X",
		PaymentRef:      paymentRef,
	}, []dto.FileUpload{{Field: "documents", Filename: "birth-certificate.txt", Data: []byte("certificate")}})
	require.NoError(t, err)
	return req
}

func strPtr(v string) *string { return &v }

func TestSubmitStoresDocumentsAndLinks(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, strPtr("ORDER-1"))

	assert.Equal(t, models.AdmissionStatusPending, req.Status)
	assert.Equal(t, models.PaymentStatusPending, req.PaymentStatus)
	require.Len(t, req.Documents, 1)
	assert.Equal(t, models.AssetRoleDocument, req.Documents[0].Role)
	assert.True(t, f.links.has(models.DocumentRef{Collection: models.CollectionAdmissions, DocumentID: req.ID}, req.Documents[0].BlobID))
}

func TestSubmitDuplicatePaymentRefRollsBackUploads(t *testing.T) {
	f := newFixture()
	submitPending(t, f, strPtr("ORDER-1"))
	require.Equal(t, 1, f.blobRepo.count())

	_, err := f.admissionSvc.Submit(context.Background(), dto.SubmitAdmissionRequest{
		ApplicantName:   "Another Applicant",
		GradeAppliedFor: "X",
		PaymentRef:      strPtr("ORDER-1"),
	}, []dto.FileUpload{{Field: "documents", Filename: "report.txt", Data: []byte("report card")}})
	require.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, 1, f.blobRepo.count())
	assert.Equal(t, 1, f.links.size())
}

func TestSubmitValidatesPayload(t *testing.T) {
	f := newFixture()
	_, err := f.admissionSvc.Submit(context.Background(), dto.SubmitAdmissionRequest{GradeAppliedFor: "X"}, nil)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestApproveConvertsExactlyOnce(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)

	approved, student, err := f.admissionSvc.Approve(context.Background(), adminIdentity, req.ID, dto.ApproveAdmissionRequest{AdminNotes: "complete file"})
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusConverted, approved.Status)
	require.NotNil(t, student.SourceRequestID)
	assert.Equal(t, req.ID, *student.SourceRequestID)
	assert.Equal(t, "Siti", student.FirstName)
	assert.Equal(t, "Nur Aisyah", student.LastName)
	year, _ := f.studentSvc.AcademicYear(time.Now())
	assert.Equal(t, fmt.Sprintf("STU-%d-0001", year), student.StudentID)
	assert.Equal(t, req.Documents, student.Documents)
	assert.True(t, f.links.has(models.DocumentRef{Collection: models.CollectionStudents, DocumentID: student.ID}, req.Documents[0].BlobID))

	_, _, err = f.admissionSvc.Approve(context.Background(), adminIdentity, req.ID, dto.ApproveAdmissionRequest{})
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	assert.Equal(t, 1, f.students.countFor(req.ID))
	assert.Contains(t, f.audit.actions(), models.AuditActionAdmissionApprove)
}

func TestApproveRequiresAdmin(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)

	_, _, err := f.admissionSvc.Approve(context.Background(), editorIdentity, req.ID, dto.ApproveAdmissionRequest{})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, _, err = f.admissionSvc.Approve(context.Background(), nil, req.ID, dto.ApproveAdmissionRequest{})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Equal(t, models.AdmissionStatusPending, f.admissions.status(req.ID))
}

func TestApproveUnknownRequestIsNotFound(t *testing.T) {
	f := newFixture()
	_, _, err := f.admissionSvc.Approve(context.Background(), adminIdentity, "nope", dto.ApproveAdmissionRequest{})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	_, _, err = f.admissionSvc.Approve(context.Background(), adminIdentity, uuid.NewString(), dto.ApproveAdmissionRequest{})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestApproveRevertsWhenStudentCreationFails(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)
	f.students.createErr = errors.New("insert failed")

	_, _, err := f.admissionSvc.Approve(context.Background(), adminIdentity, req.ID, dto.ApproveAdmissionRequest{AdminNotes: "ok"})
	require.ErrorIs(t, err, appErrors.ErrInternal)

	stored, err := f.admissions.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusPending, stored.Status)
	assert.Nil(t, stored.ReviewedBy)
	assert.Nil(t, stored.AdminNotes)
	assert.Zero(t, f.students.countFor(req.ID))
}

func TestApproveWithExistingStudentIsDuplicateConversion(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)
	f.students.students["existing"] = models.Student{ID: "existing", StudentID: "STU-2020-0001", SourceRequestID: strPtr(req.ID)}

	_, _, err := f.admissionSvc.Approve(context.Background(), adminIdentity, req.ID, dto.ApproveAdmissionRequest{})
	require.ErrorIs(t, err, appErrors.ErrDuplicateConversion)
	assert.Equal(t, models.AdmissionStatusPending, f.admissions.status(req.ID))
	assert.Equal(t, 1, f.students.countFor(req.ID))
}

func TestApproveDiscardsStudentWhenConversionCannotBeRecorded(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)
	f.admissions.failTo[models.AdmissionStatusConverted] = errors.New("write conflict")

	_, _, err := f.admissionSvc.Approve(context.Background(), adminIdentity, req.ID, dto.ApproveAdmissionRequest{})
	require.Error(t, err)
	assert.Zero(t, f.students.countFor(req.ID))
	assert.Equal(t, models.AdmissionStatusPending, f.admissions.status(req.ID))
}

func TestApproveFinishesAfterCallerCancels(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)
	ctx, cancel := context.WithCancel(context.Background())
	f.admissions.afterClaim = cancel

	_, student, err := f.admissionSvc.Approve(ctx, adminIdentity, req.ID, dto.ApproveAdmissionRequest{})
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Error(t, ctx.Err())
	assert.Equal(t, models.AdmissionStatusConverted, f.admissions.status(req.ID))
}

func TestConcurrentApproveAndRejectHaveOneWinner(t *testing.T) {
	for i := 0; i < 25; i++ {
		f := newFixture()
		req := submitPending(t, f, nil)

		var (
			wg         sync.WaitGroup
			start      = make(chan struct{})
			approveErr error
			rejectErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, _, approveErr = f.admissionSvc.Approve(context.Background(), adminIdentity, req.ID, dto.ApproveAdmissionRequest{})
		}()
		go func() {
			defer wg.Done()
			<-start
			_, rejectErr = f.admissionSvc.Reject(context.Background(), adminIdentity, req.ID, dto.RejectAdmissionRequest{AdminNotes: "incomplete"})
		}()
		close(start)
		wg.Wait()

		if approveErr == nil {
			require.ErrorIs(t, rejectErr, appErrors.ErrInvalidTransition)
			assert.Equal(t, models.AdmissionStatusConverted, f.admissions.status(req.ID))
			assert.Equal(t, 1, f.students.countFor(req.ID))
			continue
		}
		require.ErrorIs(t, approveErr, appErrors.ErrInvalidTransition)
		require.NoError(t, rejectErr)
		assert.Equal(t, models.AdmissionStatusRejected, f.admissions.status(req.ID))
		assert.Zero(t, f.students.countFor(req.ID))
	}
}

func TestConcurrentApprovalsCreateOneStudent(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)

	const reviewers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.admissionSvc.Approve(context.Background(), adminIdentity, req.ID, dto.ApproveAdmissionRequest{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, f.students.countFor(req.ID))
}

func TestRejectQueuesRefundAndWorkerCompletesIt(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, strPtr("ORDER-9"))

	rejected, err := f.admissionSvc.Reject(context.Background(), adminIdentity, req.ID, dto.RejectAdmissionRequest{
		AdminNotes:   "quota reached",
		RefundAmount: 150000,
		RefundReason: "application closed",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusRejected, rejected.Status)
	assert.Equal(t, models.RefundStatusRequested, rejected.RefundStatus)
	require.Len(t, f.dispatcher.jobs, 1)
	job := f.dispatcher.jobs[0]
	assert.Equal(t, JobTypeRefund, job.Type)
	assert.Equal(t, RefundJob{RequestID: req.ID, TransactionID: "ORDER-9", Amount: 150000, Reason: "application closed"}, job.Payload)

	worker := NewRefundWorker(f.admissions, f.gateway, nil, nil)
	require.NoError(t, worker.Handle(context.Background(), job))
	require.Len(t, f.gateway.refunds, 1)
	assert.Equal(t, "refund-"+req.ID, f.gateway.refunds[0].Key)
	assert.Equal(t, int64(150000), f.gateway.refunds[0].Amount)

	stored, err := f.admissions.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusCompleted, stored.RefundStatus)
	assert.Contains(t, f.audit.actions(), models.AuditActionAdmissionReject)
}

func TestRefundWorkerFailureIsRetriedThenGivenUp(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, strPtr("ORDER-7"))
	_, err := f.admissionSvc.Reject(context.Background(), adminIdentity, req.ID, dto.RejectAdmissionRequest{RefundAmount: 1000})
	require.NoError(t, err)

	f.gateway.refundErr = errors.New("gateway timeout")
	worker := NewRefundWorker(f.admissions, f.gateway, nil, nil)
	job := f.dispatcher.jobs[0]
	err = worker.Handle(context.Background(), job)
	require.Error(t, err)

	stored, err := f.admissions.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusRequested, stored.RefundStatus)

	worker.GiveUp(context.Background(), job, errors.New("gateway timeout"))
	stored, err = f.admissions.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusFailed, stored.RefundStatus)
}

func TestRejectWithoutPaymentIgnoresRefund(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)

	rejected, err := f.admissionSvc.Reject(context.Background(), adminIdentity, req.ID, dto.RejectAdmissionRequest{RefundAmount: 5000})
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusNone, rejected.RefundStatus)
	assert.Zero(t, rejected.RefundAmount)
	assert.Empty(t, f.dispatcher.jobs)
}

func TestRejectMarksRefundFailedWhenQueueUnavailable(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, strPtr("ORDER-3"))
	f.dispatcher.err = errors.New("queue not started")

	rejected, err := f.admissionSvc.Reject(context.Background(), adminIdentity, req.ID, dto.RejectAdmissionRequest{RefundAmount: 5000})
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusFailed, rejected.RefundStatus)
	assert.Equal(t, models.AdmissionStatusRejected, f.admissions.status(req.ID))
}

func TestRejectAfterConversionIsInvalid(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, nil)
	_, _, err := f.admissionSvc.Approve(context.Background(), adminIdentity, req.ID, dto.ApproveAdmissionRequest{})
	require.NoError(t, err)

	_, err = f.admissionSvc.Reject(context.Background(), adminIdentity, req.ID, dto.RejectAdmissionRequest{})
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	assert.Equal(t, models.AdmissionStatusConverted, f.admissions.status(req.ID))
}

func TestRecordPaymentPrefersGatewayStatus(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, strPtr("ORDER-5"))
	f.gateway.statuses["ORDER-5"] = payment.StatusSuccess

	updated, err := f.admissionSvc.RecordPayment(context.Background(), dto.PaymentNotification{TransactionID: "ORDER-5", Status: "PENDING"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, updated.PaymentStatus)

	stored, err := f.admissions.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, stored.PaymentStatus)
}

func TestRecordPaymentFallsBackToSignal(t *testing.T) {
	f := newFixture()
	submitPending(t, f, strPtr("ORDER-6"))

	updated, err := f.admissionSvc.RecordPayment(context.Background(), dto.PaymentNotification{TransactionID: "ORDER-6", Status: "FAILED"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, updated.PaymentStatus)

	_, err = f.admissionSvc.RecordPayment(context.Background(), dto.PaymentNotification{TransactionID: "ORDER-404", Status: "SUCCESS"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.admissionSvc.RecordPayment(context.Background(), dto.PaymentNotification{TransactionID: "ORDER-6", Status: "SETTLED"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRecordPaymentRefusesUnverifiedSuccess(t *testing.T) {
	f := newFixture()
	req := submitPending(t, f, strPtr("ORDER-7"))
	ctx := context.Background()

	_, err := f.admissionSvc.RecordPayment(ctx, dto.PaymentNotification{TransactionID: "ORDER-7", Status: "SUCCESS"})
	require.ErrorIs(t, err, ErrPaymentUnverified)
	stored, err := f.admissions.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.PaymentStatusSuccess, stored.PaymentStatus)

	f.gateway.mu.Lock()
	f.gateway.statuses["ORDER-7"] = payment.StatusSuccess
	f.gateway.mu.Unlock()
	updated, err := f.admissionSvc.RecordPayment(ctx, dto.PaymentNotification{TransactionID: "ORDER-7", Status: "SUCCESS"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, updated.PaymentStatus)

	f.gateway.mu.Lock()
	delete(f.gateway.statuses, "ORDER-7")
	f.gateway.mu.Unlock()
	updated, err = f.admissionSvc.RecordPayment(ctx, dto.PaymentNotification{TransactionID: "ORDER-7", Status: "FAILED"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, updated.PaymentStatus)
	stored, err = f.admissions.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, stored.PaymentStatus)
}

func TestRecoverStrandedRequests(t *testing.T) {
	f := newFixture()
	old := time.Now().UTC().Add(-time.Hour)
	withStudent := uuid.NewString()
	withoutStudent := uuid.NewString()
	inFlight := uuid.NewString()
	for _, id := range []string{withStudent, withoutStudent} {
		f.admissions.requests[id] = models.AdmissionRequest{ID: id, Status: models.AdmissionStatusApproved, ReviewedBy: strPtr("admin-1"), UpdatedAt: old}
	}
	f.admissions.requests[inFlight] = models.AdmissionRequest{ID: inFlight, Status: models.AdmissionStatusApproved, UpdatedAt: time.Now().UTC()}
	f.students.students["s-1"] = models.Student{ID: "s-1", StudentID: "STU-2026-0001", SourceRequestID: strPtr(withStudent)}

	result, err := f.admissionSvc.RecoverStranded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{withStudent}, result.Converted)
	assert.Equal(t, []string{withoutStudent}, result.Reverted)
	assert.Empty(t, result.Failed)

	assert.Equal(t, models.AdmissionStatusConverted, f.admissions.status(withStudent))
	assert.Equal(t, models.AdmissionStatusPending, f.admissions.status(withoutStudent))
	assert.Equal(t, models.AdmissionStatusApproved, f.admissions.status(inFlight))
	reverted, err := f.admissions.GetByID(context.Background(), withoutStudent)
	require.NoError(t, err)
	assert.Nil(t, reverted.ReviewedBy)
}

func TestRecoverPendingRefundsRequeues(t *testing.T) {
	f := newFixture()
	id := uuid.NewString()
	f.admissions.requests[id] = models.AdmissionRequest{
		ID:           id,
		Status:       models.AdmissionStatusRejected,
		PaymentRef:   strPtr("ORDER-11"),
		RefundAmount: 2500,
		RefundStatus: models.RefundStatusRequested,
	}

	queued, err := f.admissionSvc.RecoverPendingRefunds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, id, f.dispatcher.jobs[0].Payload.(RefundJob).RequestID)
}
