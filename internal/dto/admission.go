package dto

import (
	"time"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// SubmitAdmissionRequest is the applicant's submission. Uploaded documents
// travel alongside it as multipart files.
type SubmitAdmissionRequest struct {
	ApplicantName    string                  `json:"applicantName" validate:"required,max=200"`
	ContactInfo      models.ContactInfo      `json:"contactInfo"`
	GradeAppliedFor  string                  `json:"gradeAppliedFor" validate:"required,max=20"`
	DateOfBirth      *time.Time              `json:"dateOfBirth"`
	Gender           *string                 `json:"gender" validate:"omitempty,oneof=male female"`
	Address          *string                 `json:"address"`
	ParentInfo       models.ParentInfo       `json:"parentInfo"`
	EmergencyContact models.EmergencyContact `json:"emergencyContact"`
	PreviousSchool   *string                 `json:"previousSchool"`
	PaymentRef       *string                 `json:"paymentRef" validate:"omitempty,max=100"`
}

// ApproveAdmissionRequest carries the reviewer's notes.
type ApproveAdmissionRequest struct {
	AdminNotes string `json:"adminNotes" validate:"max=2000"`
}

// RejectAdmissionRequest carries the reviewer's notes and an optional refund.
type RejectAdmissionRequest struct {
	AdminNotes   string `json:"adminNotes" validate:"max=2000"`
	RefundAmount int64  `json:"refundAmount" validate:"gte=0"`
	RefundReason string `json:"refundReason" validate:"max=500"`
}

// PaymentNotification is the payment status signal for a transaction.
type PaymentNotification struct {
	TransactionID string `json:"transactionId" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=SUCCESS PENDING FAILED"`
	Amount        int64  `json:"amount" validate:"gte=0"`
}

// FileUpload is one uploaded file together with the document field it targets.
type FileUpload struct {
	Field    string
	Filename string
	Data     []byte
}
