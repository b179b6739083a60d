package models

import "time"

// StudentStatus marks whether a student is currently enrolled.
type StudentStatus string

const (
	StudentStatusActive   StudentStatus = "active"
	StudentStatusInactive StudentStatus = "inactive"
)

// Student represents an enrolled learner.
type Student struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"studentId"`
	FirstName        string           `db:"first_name" json:"firstName"`
	LastName         string           `db:"last_name" json:"lastName"`
	DateOfBirth      *time.Time       `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	Age              *int             `db:"-" json:"age,omitempty"`
	Gender           *string          `db:"gender" json:"gender,omitempty"`
	ContactInfo      ContactInfo      `db:"contact_info" json:"contactInfo"`
	Address          *string          `db:"address" json:"address,omitempty"`
	CurrentGrade     string           `db:"current_grade" json:"currentGrade"`
	AcademicYear     string           `db:"academic_year" json:"academicYear"`
	ParentInfo       ParentInfo       `db:"parent_info" json:"parentInfo"`
	EmergencyContact EmergencyContact `db:"emergency_contact" json:"emergencyContact"`
	Status           StudentStatus    `db:"status" json:"status"`
	AdmissionDate    time.Time        `db:"admission_date" json:"admissionDate"`
	SourceRequestID  *string          `db:"source_request_id" json:"sourceRequestId,omitempty"`
	Documents        AssetReferences  `db:"documents" json:"documents"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}

// FillAge derives Age from DateOfBirth relative to now.
func (s *Student) FillAge(now time.Time) {
	if s == nil || s.DateOfBirth == nil {
		return
	}
	dob := s.DateOfBirth.UTC()
	now = now.UTC()
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	s.Age = &age
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    StudentStatus
	Grade     string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
