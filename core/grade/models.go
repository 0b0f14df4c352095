package grade

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Grade is one grading event of a student in a course. Score is within [0, 100].
type Grade struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	CourseID        string    `json:"course_id"`
	CourseName      string    `json:"course_name"`
	Score           float64   `json:"score"`
	Date            core.Date `json:"date"` // last write
	StudentUserID   string    `json:"-"`
	CourseTeacherID string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

type NewGrade struct {
	StudentID string   `json:"student_id" validate:"required"`
	CourseID  string   `json:"course_id" validate:"required"`
	Score     *float64 `json:"score" validate:"required,score"`
}

func (ng *NewGrade) Validate(validate *validator.Validate) error {
	ng.StudentID = core.CleanString(ng.StudentID)
	ng.CourseID = core.CleanString(ng.CourseID)
	return validate.Struct(ng)
}

type UpdateGrade struct {
	Score *float64 `json:"score" validate:"required,score"`
}

func (ug UpdateGrade) Validate(validate *validator.Validate) error {
	return validate.Struct(ug)
}

type QueryFilter struct {
	StudentID string    `query:"student"`
	CourseID  string    `query:"course"`
	Date      core.Date `query:"date"`

	// set from the requester's scope
	TeacherID     string `query:"-"`
	StudentUserID string `query:"-"`
}
