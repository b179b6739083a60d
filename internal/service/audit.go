package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditTrail persists audit rows on a best-effort basis.
type auditTrail struct {
	writer auditWriter
	source string
	logger *zap.Logger
}

func (a auditTrail) emit(ctx context.Context, actor *models.Identity, action, resource, resourceID string, oldValues, newValues interface{}) {
	if a.writer == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: optionalString(resourceID),
		OldValues:  marshalAudit(oldValues),
		NewValues:  marshalAudit(newValues),
		IPAddress:  "system",
		UserAgent:  a.source,
	}
	if actor != nil {
		log.ActorID = optionalString(actor.UserID)
	}
	if err := a.writer.CreateAuditLog(context.WithoutCancel(ctx), log); err != nil {
		a.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func marshalAudit(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}
