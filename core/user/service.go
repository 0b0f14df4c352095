package user

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")

	// orderable fields -> columns
	Orderings = map[string]string{
		"name":       "name",
		"username":   "username",
		"email":      "email",
		"role":       "role",
		"created_at": "created_at",
		"last_login": "last_login",
	}

	errInvalidValue = "invalid value"
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists if another user already uses them.
		CheckUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	// RoleHook is run, in the same transaction, whenever a user is created or changes role.
	// Cache invalidation belongs in tx.OnCommit.
	RoleHook func(ctx context.Context, usr User, prevRole Role, tx *core.Tx) error

	// DeleteHook is run, in the same transaction, right before users are deleted.
	// Cache invalidation belongs in tx.OnCommit.
	DeleteHook func(ctx context.Context, ids []string, tx *core.Tx) error

	// UpdateHook is run after a user's name, username or email changed.
	UpdateHook func(ctx context.Context, usr User)

	Service struct {
		db          core.DB
		repo        Repository
		mailSvc     core.EmailService
		tokens      tokenGenerator
		hooks       []RoleHook
		deleteHooks []DeleteHook
		updateHooks []UpdateHook
	}
)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

// OnRoleSet registers a RoleHook.
func (svc *Service) OnRoleSet(hook RoleHook) {
	svc.hooks = append(svc.hooks, hook)
}

// OnDelete registers a DeleteHook.
func (svc *Service) OnDelete(hook DeleteHook) {
	svc.deleteHooks = append(svc.deleteHooks, hook)
}

// OnUpdate registers an UpdateHook.
func (svc *Service) OnUpdate(hook UpdateHook) {
	svc.updateHooks = append(svc.updateHooks, hook)
}

func (svc *Service) runHooks(ctx context.Context, usr User, prevRole Role, tx *core.Tx, extra ...RoleHook) error {
	for _, hook := range append(svc.hooks[:len(svc.hooks):len(svc.hooks)], extra...) {
		if err := hook(ctx, usr, prevRole, tx); err != nil {
			return err
		}
	}
	return nil
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclUsers); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Create inserts a new user. The registered hooks, then the `then` hooks, run in the same transaction.
func (svc *Service) Create(ctx context.Context, nu NewUser, then ...RoleHook) (User, error) {
	now := core.Now()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Role == "" {
		usr.Role = RoleStudent
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	err := core.RunInTx(ctx, svc.db, func(tx *core.Tx) error {
		var err error
		if usr, err = svc.repo.CreateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "creating user")
		}
		return svc.runHooks(ctx, usr, "", tx, then...)
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, core.FilterOrderings(ordering, Orderings))
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Update applies uu on usr. Only admins may change IsActive, Username & Email (enforced by the caller).
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	renamed := usr.Name != uu.Name || usr.Username != uu.Username || usr.Email != uu.Email
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = core.Now()

	usr, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	if renamed {
		for _, hook := range svc.updateHooks {
			hook(ctx, usr)
		}
	}
	return usr, nil
}

// SetRole is the only way to change a user's role.
func (svc *Service) SetRole(ctx context.Context, usr User, role Role) (User, error) {
	if !role.IsValid() {
		return User{}, core.NewFieldValidationError("role", errInvalidValue)
	}
	if usr.Role == role {
		return usr, nil
	}

	prevRole := usr.Role
	usr.Role = role
	usr.UpdatedAt = core.Now()

	err := core.RunInTx(ctx, svc.db, func(tx *core.Tx) error {
		var err error
		if usr, err = svc.repo.UpdateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "updating user")
		}
		return svc.runHooks(ctx, usr, prevRole, tx)
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.Now()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return core.RunInTx(ctx, svc.db, func(tx *core.Tx) error {
		for _, hook := range svc.deleteHooks {
			if err := hook(ctx, ids, tx); err != nil {
				return err
			}
		}
		_, err := svc.repo.DeleteUsersByID(ctx, ids, tx)
		return errors.Wrap(err, "deleting users")
	})
}

// RequestPasswordReset emails a password reset link to the active user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return nil
	}
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
	return nil
}

// MakePasswordResetToken generates a password reset token for usr.
func (svc *Service) MakePasswordResetToken(usr User) (string, error) {
	return svc.tokens.makeToken(usr)
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return core.NewFieldValidationError("uid", errInvalidValue)
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewFieldValidationError("uid", errInvalidValue)
		}
		return errors.Wrap(err, "finding user")
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return core.NewFieldValidationError("token", errInvalidValue)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.Now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
