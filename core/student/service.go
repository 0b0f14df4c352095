package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

var ErrNotFound = core.NewNotFoundError("student")

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		// QueryStudents returns students ordered by name.
		// QueryFilter.Search does a case-insensitive match on the user's name, username or email.
		QueryStudents(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Student, error)
		UpdateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		DeleteStudentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		repo     Repository
		users    *user.Service
		cache    core.Cache
		ttl      time.Duration
		validate *validator.Validate
		logger   core.Logger
	}
)

// NewService also registers the hooks keeping a single profile per student user.
func NewService(
	repo Repository,
	users *user.Service,
	cache core.Cache,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
) *Service {
	svc := &Service{
		repo:     repo,
		users:    users,
		cache:    cache,
		ttl:      conf.Cache.TTL,
		validate: validate,
		logger:   logger,
	}
	users.OnRoleSet(svc.syncProfile)
	users.OnDelete(svc.onUsersDeleted)
	users.OnUpdate(svc.onUserUpdated)
	return svc
}

// syncProfile creates the profile of a user becoming a student, and removes it when they stop being one.
func (svc *Service) syncProfile(ctx context.Context, usr user.User, prevRole user.Role, tx *core.Tx) error {
	switch {
	case usr.Role == user.RoleStudent && prevRole != user.RoleStudent:
		_, err := svc.repo.GetStudent(ctx, GetFilter{UserID: usr.ID}, tx)
		if err == nil {
			return nil
		}
		if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding student profile")
		}
		now := core.Now()
		if _, err = svc.repo.CreateStudent(ctx, Student{UserID: usr.ID, CreatedAt: now, UpdatedAt: now}, tx); err != nil {
			return errors.Wrap(err, "creating student profile")
		}
		tx.OnCommit(func() { svc.invalidate(ctx) })

	case prevRole == user.RoleStudent && usr.Role != user.RoleStudent:
		s, err := svc.repo.GetStudent(ctx, GetFilter{UserID: usr.ID}, tx)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return nil
			}
			return errors.Wrap(err, "finding student profile")
		}
		if _, err = svc.repo.DeleteStudentsByID(ctx, []string{s.ID}, tx); err != nil {
			return errors.Wrap(err, "deleting student profile")
		}
		tx.OnCommit(func() { svc.invalidate(ctx, s.ID) })
	}
	return nil
}

// onUsersDeleted drops the cached profiles of deleted users, which the DB deletes in cascade.
func (svc *Service) onUsersDeleted(ctx context.Context, ids []string, tx *core.Tx) error {
	students, err := svc.repo.QueryStudents(ctx, &QueryFilter{UserIDs: ids}, tx)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if len(students) > 0 {
		sids := make([]string, 0, len(students))
		for _, s := range students {
			sids = append(sids, s.ID)
		}
		tx.OnCommit(func() { svc.invalidate(ctx, sids...) })
	}
	return nil
}

func (svc *Service) onUserUpdated(ctx context.Context, usr user.User) {
	if usr.Role != user.RoleStudent {
		return
	}
	s, err := svc.repo.GetStudent(ctx, GetFilter{UserID: usr.ID})
	if err != nil {
		svc.invalidate(ctx)
		return
	}
	svc.invalidate(ctx, s.ID)
}

// invalidate drops the students list and the detail of ids from the cache.
func (svc *Service) invalidate(ctx context.Context, ids ...string) {
	keys := []string{core.CacheKeyStudentsList}
	for _, id := range ids {
		keys = append(keys, core.StudentCacheKey(id))
	}
	if err := core.Invalidate(ctx, svc.cache, keys...); err != nil {
		svc.logger.Error("student.invalidate: "+err.Error(), err)
	}
}

// List returns the students visible to actor. The unfiltered list is read through the cache.
func (svc *Service) List(ctx context.Context, actor access.Subject, filter *QueryFilter) ([]Student, error) {
	scope, err := access.ListScope(actor, access.ResourceStudent)
	if err != nil {
		return nil, err
	}

	var students []Student
	if filter.IsEmpty() {
		students, err = core.GetOrPopulate(ctx, svc.cache, svc.logger, core.CacheKeyStudentsList, svc.ttl, func() ([]Student, error) {
			return svc.repo.QueryStudents(ctx, nil)
		})
	} else {
		filter.Clean()
		students, err = svc.repo.QueryStudents(ctx, filter)
	}
	if err != nil {
		return nil, err
	}

	if scope == access.ScopeSelf {
		own := make([]Student, 0, 1)
		for _, s := range students {
			if s.UserID == actor.UserID {
				own = append(own, s)
			}
		}
		students = own
	}
	return students, nil
}

func (svc *Service) Get(ctx context.Context, actor access.Subject, id string) (Student, error) {
	s, err := core.GetOrPopulate(ctx, svc.cache, svc.logger, core.StudentCacheKey(id), svc.ttl, func() (Student, error) {
		return svc.repo.GetStudent(ctx, GetFilter{ID: id})
	})
	if err != nil {
		return Student{}, err
	}
	if err = access.Decide(actor, access.ActionRead, target(s)); err != nil {
		return Student{}, err
	}
	return s, nil
}

// GetByUserID returns the profile of a student user, bypassing the cache and the access policy.
func (svc *Service) GetByUserID(ctx context.Context, userID string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{UserID: userID})
}

// Create registers a student user and their profile in a single transaction.
func (svc *Service) Create(ctx context.Context, actor access.Subject, ns NewStudent) (Student, error) {
	if err := access.Decide(actor, access.ActionCreate, access.Target{Resource: access.ResourceStudent}); err != nil {
		return Student{}, err
	}
	if err := ns.Validate(ctx, svc.validate, svc.users); err != nil {
		return Student{}, err
	}

	var s Student
	usr, err := svc.users.Create(ctx, ns.NewUser, func(ctx context.Context, usr user.User, _ user.Role, tx *core.Tx) error {
		var err error
		if s, err = svc.repo.GetStudent(ctx, GetFilter{UserID: usr.ID}, tx); err != nil {
			return errors.Wrap(err, "finding student profile")
		}
		s.DOB = ns.DOB
		s, err = svc.repo.UpdateStudent(ctx, s, tx)
		return errors.Wrap(err, "setting date of birth")
	})
	if err != nil {
		return Student{}, err
	}
	s.Name, s.Username, s.Email = usr.Name, usr.Username, usr.Email
	svc.invalidate(ctx, s.ID)
	return s, nil
}

func (svc *Service) Update(ctx context.Context, actor access.Subject, id string, us UpdateStudent) (Student, error) {
	s, err := svc.repo.GetStudent(ctx, GetFilter{ID: id})
	if err != nil {
		return Student{}, err
	}
	if err = access.Decide(actor, access.ActionUpdate, target(s)); err != nil {
		return Student{}, err
	}
	if err = us.Validate(); err != nil {
		return Student{}, err
	}

	if !us.DOB.IsZero() {
		s.DOB = us.DOB
	}
	s.UpdatedAt = core.Now()
	if s, err = svc.repo.UpdateStudent(ctx, s); err != nil {
		return Student{}, errors.Wrap(err, "updating student")
	}
	svc.invalidate(ctx, s.ID)
	return s, nil
}

// Delete removes the student together with their user account.
func (svc *Service) Delete(ctx context.Context, actor access.Subject, id string) error {
	s, err := svc.repo.GetStudent(ctx, GetFilter{ID: id})
	if err != nil {
		return err
	}
	if err = access.Decide(actor, access.ActionDelete, target(s)); err != nil {
		return err
	}
	// the user's delete hook invalidates the cache once committed
	return svc.users.Delete(ctx, s.UserID)
}

func target(s Student) access.Target {
	return access.Target{Resource: access.ResourceStudent, StudentUserID: s.UserID}
}
