package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// AdmissionStatus tracks the review lifecycle of an admission request.
type AdmissionStatus string

const (
	AdmissionStatusPending   AdmissionStatus = "pending"
	AdmissionStatusApproved  AdmissionStatus = "approved"
	AdmissionStatusRejected  AdmissionStatus = "rejected"
	AdmissionStatusConverted AdmissionStatus = "converted"
)

// Valid reports whether the status is known.
func (s AdmissionStatus) Valid() bool {
	switch s {
	case AdmissionStatusPending, AdmissionStatusApproved, AdmissionStatusRejected, AdmissionStatusConverted:
		return true
	}
	return false
}

// PaymentStatus mirrors the last payment signal for a request.
type PaymentStatus string

const (
	PaymentStatusNone    PaymentStatus = "none"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// RefundStatus tracks an asynchronous refund after rejection.
type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusRequested RefundStatus = "requested"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

// ContactInfo holds reachability details.
type ContactInfo struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (c ContactInfo) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ContactInfo) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// ParentInfo holds guardian details.
type ParentInfo struct {
	FatherName   string `json:"fatherName,omitempty"`
	MotherName   string `json:"motherName,omitempty"`
	GuardianName string `json:"guardianName,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Occupation   string `json:"occupation,omitempty"`
}

func (p ParentInfo) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *ParentInfo) Scan(src interface{}) error {
	return scanJSON(src, p)
}

// EmergencyContact is who to call when the parents cannot be reached.
type EmergencyContact struct {
	Name         string `json:"name,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

func (e EmergencyContact) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *EmergencyContact) Scan(src interface{}) error {
	return scanJSON(src, e)
}

// AdmissionRequest is an applicant's submission awaiting review.
type AdmissionRequest struct {
	ID               string           `db:"id" json:"id"`
	ApplicantName    string           `db:"applicant_name" json:"applicantName"`
	ContactInfo      ContactInfo      `db:"contact_info" json:"contactInfo"`
	GradeAppliedFor  string           `db:"grade_applied_for" json:"gradeAppliedFor"`
	DateOfBirth      *time.Time       `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	Gender           *string          `db:"gender" json:"gender,omitempty"`
	Address          *string          `db:"address" json:"address,omitempty"`
	ParentInfo       ParentInfo       `db:"parent_info" json:"parentInfo"`
	EmergencyContact EmergencyContact `db:"emergency_contact" json:"emergencyContact"`
	PreviousSchool   *string          `db:"previous_school" json:"previousSchool,omitempty"`
	SubmittedAt      time.Time        `db:"submitted_at" json:"submittedAt"`
	Status           AdmissionStatus  `db:"status" json:"status"`
	PaymentRef       *string          `db:"payment_ref" json:"paymentRef,omitempty"`
	PaymentStatus    PaymentStatus    `db:"payment_status" json:"paymentStatus"`
	ReviewedBy       *string          `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
	AdminNotes       *string          `db:"admin_notes" json:"adminNotes,omitempty"`
	RefundAmount     int64            `db:"refund_amount" json:"refundAmount"`
	RefundReason     *string          `db:"refund_reason" json:"refundReason,omitempty"`
	RefundStatus     RefundStatus     `db:"refund_status" json:"refundStatus"`
	Documents        AssetReferences  `db:"documents" json:"documents"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}

// AdmissionFilter narrows admission listings.
type AdmissionFilter struct {
	Status        []AdmissionStatus
	RefundStatus  RefundStatus
	UpdatedBefore *time.Time
	Search        string
	Page          int
	PageSize      int
}

// AdmissionTransition describes a compare-and-swap on request status.
type AdmissionTransition struct {
	ID         string
	From       AdmissionStatus
	To         AdmissionStatus
	ReviewedBy *string
	ReviewedAt *time.Time
	AdminNotes *string

	// ClearReview resets reviewer stamps; used when rolling back a claim.
	ClearReview  bool
	RefundAmount int64
	RefundReason *string
	RefundStatus RefundStatus
}

// RecoveryResult lists requests repaired after being left in approved.
type RecoveryResult struct {
	Converted []string `json:"converted"`
	Reverted  []string `json:"reverted"`
	Failed    []string `json:"failed"`
}
