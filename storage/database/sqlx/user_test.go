package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
	"github.com/trezcool/shule/tests"
)

func newUser(name, uname, email string, role user.Role, createdAt time.Time) user.User {
	return user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := sqlxrepos.NewUserRepository(testutil.PrepareDB(t))

	now := core.Now()
	alice, err := repo.CreateUser(ctx, newUser("Alice", "alice", "alice@school.test", user.RoleTeacher, now.Add(-time.Hour)))
	require.NoError(t, err)
	bob, err := repo.CreateUser(ctx, newUser("Bob", "", "bob@school.test", user.RoleStudent, now))
	require.NoError(t, err)
	assert.NotEmpty(t, alice.ID)

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{ID: alice.ID})
		require.NoError(t, err)
		assert.Equal(t, alice, got)

		got, err = repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "bob@school.test"})
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
		assert.Empty(t, got.Username, "NULL username")

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{Username: "nobody"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUniqueness(ctx, "alice", "other@school.test", nil))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "other", "bob@school.test", nil))
		assert.NoError(t, repo.CheckUniqueness(ctx, "alice", "alice@school.test", []user.User{alice}))
		assert.NoError(t, repo.CheckUniqueness(ctx, "", "", nil))

		_, err := repo.CreateUser(ctx, newUser("Copy", "alice", "", user.RoleStudent, now))
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("query", func(t *testing.T) {
		all, err := repo.QueryUsers(ctx, nil, nil)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, bob.ID, all[0].ID, "newest first")

		found, err := repo.QueryUsers(ctx, &user.QueryFilter{Search: "ALI"}, nil)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, alice.ID, found[0].ID)

		found, err = repo.QueryUsers(ctx, &user.QueryFilter{Roles: []user.Role{user.RoleStudent}}, nil)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, bob.ID, found[0].ID)

		found, err = repo.QueryUsers(ctx, &user.QueryFilter{CreatedTo: now.Add(-time.Minute)}, nil)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, alice.ID, found[0].ID)

		found, err = repo.QueryUsers(ctx, nil, []core.DBOrdering{{Field: "name", Ascending: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{"Alice", "Bob"}, []string{found[0].Name, found[1].Name})
	})

	t.Run("update", func(t *testing.T) {
		bob.Name = "Robert"
		bob.LastLogin = core.Now()
		_, err := repo.UpdateUser(ctx, bob)
		require.NoError(t, err)

		got, err := repo.GetUser(ctx, user.GetFilter{ID: bob.ID})
		require.NoError(t, err)
		assert.Equal(t, "Robert", got.Name)
		assert.True(t, bob.LastLogin.Equal(got.LastLogin))

		_, err = repo.UpdateUser(ctx, user.User{ID: "8f4d0a7e-0000-4000-8000-000000000000", CreatedAt: now, UpdatedAt: now})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("delete", func(t *testing.T) {
		cnt, err := repo.DeleteUsersByID(ctx, []string{alice.ID, bob.ID})
		require.NoError(t, err)
		assert.Equal(t, 2, cnt)

		all, err := repo.QueryUsers(ctx, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
