package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Course is owned by exactly one teacher.
type Course struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TeacherID   string    `json:"teacher_id"`
	TeacherName string    `json:"teacher_name"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

type NewCourse struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	TeacherID   string `json:"teacher_id" validate:"required"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	nc.TeacherID = core.CleanString(nc.TeacherID)
	return validate.Struct(nc)
}

// UpdateCourse changes the provided fields only.
type UpdateCourse struct {
	Name        string  `json:"name" validate:"max=255"`
	Description *string `json:"description"`
	TeacherID   string  `json:"teacher_id"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.TeacherID = core.CleanString(uc.TeacherID)
	if uc.Description != nil {
		desc := core.CleanString(*uc.Description)
		uc.Description = &desc
	}
	return validate.Struct(uc)
}

type QueryFilter struct {
	TeacherIDs []string `query:"teacher"`
	Search     string   `query:"search"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf == nil || (qf.TeacherIDs == nil && qf.Search == "")
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
