package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type Enrollment struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	CourseID        string    `json:"course_id"`
	StudentName     string    `json:"student_name"`
	CourseName      string    `json:"course_name"`
	CourseTeacherID string    `json:"course_teacher_id"`
	StudentUserID   string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

// NewEnrollment: StudentID is ignored when a student enrolls, they always enroll themself.
type NewEnrollment struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id" validate:"required"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.StudentID = core.CleanString(ne.StudentID)
	ne.CourseID = core.CleanString(ne.CourseID)
	return validate.Struct(ne)
}

// UpdateEnrollment changes the provided fields only.
type UpdateEnrollment struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
}

func (ue *UpdateEnrollment) Clean() {
	ue.StudentID = core.CleanString(ue.StudentID)
	ue.CourseID = core.CleanString(ue.CourseID)
}

type QueryFilter struct {
	StudentID string `query:"student"`
	CourseID  string `query:"course"`

	// set from the requester's scope
	TeacherID     string `query:"-"`
	StudentUserID string `query:"-"`
}

// GetFilter selects a single Enrollment, either by ID or by (StudentID, CourseID).
type GetFilter struct {
	ID        string
	StudentID string
	CourseID  string
}
