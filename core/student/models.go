package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// Student is the profile of a user whose role is student.
type Student struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DOB       core.Date `json:"dob"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewStudent registers a new user with the student role along with their profile.
type NewStudent struct {
	user.NewUser
	DOB core.Date `json:"dob"`
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, users *user.Service) error {
	ns.Role = user.RoleStudent
	if err := ns.NewUser.Validate(ctx, validate, users); err != nil {
		return err
	}
	return validateDOB(ns.DOB)
}

type UpdateStudent struct {
	DOB core.Date `json:"dob"`
}

func (us UpdateStudent) Validate() error {
	return validateDOB(us.DOB)
}

func validateDOB(dob core.Date) error {
	if !dob.IsZero() && dob.After(core.Today()) {
		return core.NewFieldValidationError("dob", "date of birth cannot be in the future")
	}
	return nil
}

type QueryFilter struct {
	Search  string   `query:"search"`
	UserIDs []string `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf == nil || (qf.Search == "" && qf.UserIDs == nil)
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single Student: the first non-empty field wins.
type GetFilter struct {
	ID     string
	UserID string
}
