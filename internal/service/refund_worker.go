package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/jobs"
	"github.com/noah-isme/sma-admission-api/pkg/payment"
)

// JobTypeRefund identifies refund jobs on the queue.
const JobTypeRefund = "admission.refund"

// RefundJob is the queue payload for one refund instruction.
type RefundJob struct {
	RequestID     string
	TransactionID string
	Amount        int64
	Reason        string
}

type refundStatusStore interface {
	UpdateRefundStatus(ctx context.Context, id string, status models.RefundStatus) error
}

// RefundWorker bridges queued refund jobs to the payment gateway.
type RefundWorker struct {
	repo    refundStatusStore
	gateway payment.Gateway
	metrics *MetricsService
	logger  *zap.Logger
}

// NewRefundWorker constructs a worker.
func NewRefundWorker(repo refundStatusStore, gateway payment.Gateway, metrics *MetricsService, logger *zap.Logger) *RefundWorker {
	if gateway == nil {
		gateway = payment.Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefundWorker{repo: repo, gateway: gateway, metrics: metrics, logger: logger}
}

// Handle submits the refund. Returning an error lets the queue retry.
func (w *RefundWorker) Handle(ctx context.Context, job jobs.Job) error {
	refund, ok := job.Payload.(RefundJob)
	if !ok {
		w.logger.Error("dropping refund job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	err := w.gateway.Refund(ctx, payment.RefundInstruction{
		TransactionID: refund.TransactionID,
		Amount:        refund.Amount,
		Reason:        refund.Reason,
		Key:           "refund-" + refund.RequestID,
	})
	if err != nil {
		return fmt.Errorf("refund %s: %w", refund.TransactionID, err)
	}
	if err := w.repo.UpdateRefundStatus(ctx, refund.RequestID, models.RefundStatusCompleted); err != nil {
		// the gateway call is idempotent on Key, so a retry is safe
		return fmt.Errorf("record refund completion: %w", err)
	}
	w.metrics.RecordRefund(models.RefundStatusCompleted)
	w.logger.Info("refund completed", zap.String("request_id", refund.RequestID), zap.Int64("amount", refund.Amount))
	return nil
}

// GiveUp marks the refund failed once retries are exhausted.
func (w *RefundWorker) GiveUp(ctx context.Context, job jobs.Job, cause error) {
	refund, ok := job.Payload.(RefundJob)
	if !ok {
		return
	}
	w.metrics.RecordRefund(models.RefundStatusFailed)
	if err := w.repo.UpdateRefundStatus(context.WithoutCancel(ctx), refund.RequestID, models.RefundStatusFailed); err != nil {
		w.logger.Error("failed to record refund failure", zap.String("request_id", refund.RequestID), zap.Error(err))
		return
	}
	w.logger.Warn("refund failed", zap.String("request_id", refund.RequestID), zap.Error(cause))
}
