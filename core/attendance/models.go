package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type Status string

// Statuses
const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

func (s Status) IsValid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Record is the attendance of a student to a course on a given day.
// There is at most one Record per (student, course, date).
type Record struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	CourseID        string    `json:"course_id"`
	CourseName      string    `json:"course_name"`
	Date            core.Date `json:"date"`
	Status          Status    `json:"status"`
	StudentUserID   string    `json:"-"`
	CourseTeacherID string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// NewRecord: Date defaults to today, StudentID to the requester's profile when they are a student.
type NewRecord struct {
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id" validate:"required"`
	Date      core.Date `json:"date"`
	Status    Status    `json:"status" validate:"required,attendance_status"`
}

func (nr *NewRecord) Validate(validate *validator.Validate) error {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.CourseID = core.CleanString(nr.CourseID)
	nr.Status = Status(core.CleanString(string(nr.Status), true /* lower */))
	if nr.Date.IsZero() {
		nr.Date = core.NewDate(core.Today())
	}
	return validate.Struct(nr)
}

// UpdateRecord changes the provided fields only.
type UpdateRecord struct {
	Date   core.Date `json:"date"`
	Status Status    `json:"status" validate:"omitempty,attendance_status"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	ur.Status = Status(core.CleanString(string(ur.Status), true /* lower */))
	return validate.Struct(ur)
}

type QueryFilter struct {
	StudentID string    `query:"student"`
	CourseID  string    `query:"course"`
	Date      core.Date `query:"date"`
	Status    Status    `query:"status"`

	// set from the requester's scope
	TeacherID     string `query:"-"`
	StudentUserID string `query:"-"`
}

// GetFilter selects a single Record, either by ID or by (StudentID, CourseID, Date).
type GetFilter struct {
	ID        string
	StudentID string
	CourseID  string
	Date      core.Date
}
