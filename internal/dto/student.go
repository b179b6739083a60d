package dto

import (
	"time"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// CreateStudentRequest registers a student without an admission request.
type CreateStudentRequest struct {
	FirstName        string                  `json:"firstName" validate:"required,max=100"`
	LastName         string                  `json:"lastName" validate:"max=100"`
	DateOfBirth      *time.Time              `json:"dateOfBirth"`
	Gender           *string                 `json:"gender" validate:"omitempty,oneof=male female"`
	ContactInfo      models.ContactInfo      `json:"contactInfo"`
	Address          *string                 `json:"address"`
	CurrentGrade     string                  `json:"currentGrade" validate:"required,max=20"`
	AcademicYear     string                  `json:"academicYear" validate:"omitempty,max=20"`
	ParentInfo       models.ParentInfo       `json:"parentInfo"`
	EmergencyContact models.EmergencyContact `json:"emergencyContact"`
	AdmissionDate    *time.Time              `json:"admissionDate"`
	Documents        []models.AssetReference `json:"documents" validate:"dive"`
}

// UpdateStudentRequest patches a student. Nil fields are left untouched;
// studentId may be echoed back but never changed.
type UpdateStudentRequest struct {
	StudentID        *string                  `json:"studentId"`
	FirstName        *string                  `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName         *string                  `json:"lastName" validate:"omitempty,max=100"`
	DateOfBirth      *time.Time               `json:"dateOfBirth"`
	Gender           *string                  `json:"gender" validate:"omitempty,oneof=male female"`
	ContactInfo      *models.ContactInfo      `json:"contactInfo"`
	Address          *string                  `json:"address"`
	CurrentGrade     *string                  `json:"currentGrade" validate:"omitempty,min=1,max=20"`
	AcademicYear     *string                  `json:"academicYear" validate:"omitempty,max=20"`
	ParentInfo       *models.ParentInfo       `json:"parentInfo"`
	EmergencyContact *models.EmergencyContact `json:"emergencyContact"`
	Status           *models.StudentStatus    `json:"status" validate:"omitempty,oneof=active inactive"`
	Documents        *[]models.AssetReference `json:"documents"`
}
