package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionAdmissionApprove = "ADMISSION_APPROVE"
	AuditActionAdmissionReject  = "ADMISSION_REJECT"
	AuditActionAdmissionRecover = "ADMISSION_RECOVER"
	AuditActionStudentDelete    = "STUDENT_DELETE"
	AuditActionContentDelete    = "CONTENT_DELETE"
	AuditActionOrphanCleanup    = "ORPHAN_CLEANUP"
	AuditActionAssetReconcile   = "ASSET_RECONCILE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actorId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  []byte    `db:"old_values" json:"oldValues,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
