package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func TestNewUser_Validate(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	env.CreateUser(t, "Taken", "taken", user.RoleStudent)

	valid := func() user.NewUser {
		return user.NewUser{Name: " Sam ", Username: " SAM_1 ", Password: testutil.Password, PasswordConfirm: testutil.Password}
	}

	nu := valid()
	require.NoError(t, nu.Validate(ctx, env.Validate, env.Users))
	assert.Equal(t, "Sam", nu.Name)
	assert.Equal(t, "sam_1", nu.Username)
	assert.Equal(t, user.RoleStudent, nu.Role, "defaults to student")

	tests := []struct {
		name   string
		modify func(nu *user.NewUser)
		field  string
	}{
		{"no username nor email", func(nu *user.NewUser) { nu.Username = "" }, "username"},
		{"short username", func(nu *user.NewUser) { nu.Username = "sam" }, "username"},
		{"bad email", func(nu *user.NewUser) { nu.Email = "sam@" }, "email"},
		{"bad role", func(nu *user.NewUser) { nu.Role = "janitor" }, "role"},
		{"passwords differ", func(nu *user.NewUser) { nu.PasswordConfirm = "Other#Pwd9" }, "password_confirm"},
		{"short password", func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "Ab1#", "Ab1#" }, "password"},
		{"numeric password", func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "1234567890", "1234567890" }, "password"},
		{"simple password", func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "abcdefghij", "abcdefghij" }, "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nu := valid()
			tc.modify(&nu)
			err := nu.Validate(ctx, env.Validate, env.Users)
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs), "%v", err)
			assert.Equal(t, tc.field, verrs[0].Field())
		})
	}

	nu = valid()
	nu.Username = "taken"
	err := nu.Validate(ctx, env.Validate, env.Users)
	assert.True(t, core.IsValidationError(err), "username taken")
}

func TestService_SetRole(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	usr := env.CreateUser(t, "Sam", "sam", user.RoleTeacher)

	var calls []user.Role
	env.Users.OnRoleSet(func(_ context.Context, usr user.User, prev user.Role, _ *core.Tx) error {
		calls = append(calls, prev, usr.Role)
		return nil
	})

	_, err := env.Users.SetRole(ctx, usr, "janitor")
	assert.True(t, core.IsValidationError(err))

	same, err := env.Users.SetRole(ctx, usr, user.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, usr, same)
	assert.Empty(t, calls, "no change, no hook")

	updated, err := env.Users.SetRole(ctx, usr, user.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, updated.Role)
	assert.Equal(t, []user.Role{user.RoleTeacher, user.RoleAdmin}, calls)
}

func TestService_HookFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	usr := env.CreateUser(t, "Sam", "sam", user.RoleTeacher)

	env.Users.OnRoleSet(func(context.Context, user.User, user.Role, *core.Tx) error {
		return errors.New("boom")
	})

	_, err := env.Users.SetRole(ctx, usr, user.RoleStudent)
	require.Error(t, err)

	got, err := env.Users.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, got.Role)
	_, err = env.Students.GetByUserID(ctx, usr.ID)
	assert.True(t, core.IsNotFound(err), "no profile left behind")

	_, err = env.Users.Create(ctx, user.NewUser{Name: "Tom", Username: "tom_t", Password: testutil.Password})
	require.Error(t, err)
	_, err = env.Users.GetByUsernameOrEmail(ctx, "tom_t")
	assert.True(t, core.IsNotFound(err))
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	usr := env.CreateUser(t, "Sam", "sam", user.RoleStudent)

	env.Mail.Reset()
	assert.True(t, core.IsNotFound(env.Users.RequestPasswordReset(ctx, "nobody@school.test")))
	require.NoError(t, env.Users.RequestPasswordReset(ctx, " SAM@school.test "))
	msgs := env.Mail.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Password Reset", msgs[0].Subject)

	token, err := env.Users.MakePasswordResetToken(usr)
	require.NoError(t, err)
	newPwd := "N3w#Secret!x"

	err = env.Users.ResetPassword(ctx, user.ResetUserPassword{UID: user.EncodeUID(usr), Token: "bad", Password: newPwd})
	assert.True(t, core.IsValidationError(err))
	err = env.Users.ResetPassword(ctx, user.ResetUserPassword{UID: "bad", Token: token, Password: newPwd})
	assert.True(t, core.IsValidationError(err))

	require.NoError(t, env.Users.ResetPassword(ctx, user.ResetUserPassword{UID: user.EncodeUID(usr), Token: token, Password: newPwd}))
	got, err := env.Users.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword(newPwd))
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	usr := env.CreateUser(t, "Sam", "sam", user.RoleTeacher)

	var renamed []string
	env.Users.OnUpdate(func(_ context.Context, usr user.User) { renamed = append(renamed, usr.Name) })

	uu := user.UpdateUser{Password: "N3w#Secret!x", PasswordConfirm: "N3w#Secret!x"}
	require.NoError(t, uu.Validate(ctx, usr, env.Validate, env.Users))
	updated, err := env.Users.Update(ctx, usr, uu)
	require.NoError(t, err)
	assert.NoError(t, updated.CheckPassword("N3w#Secret!x"))
	assert.Empty(t, renamed, "same name, username and email")

	uu = user.UpdateUser{Name: "Samuel"}
	require.NoError(t, uu.Validate(ctx, updated, env.Validate, env.Users))
	updated, err = env.Users.Update(ctx, updated, uu)
	require.NoError(t, err)
	assert.Equal(t, "Samuel", updated.Name)
	assert.Equal(t, "sam", updated.Username)
	assert.Equal(t, []string{"Samuel"}, renamed)
}
