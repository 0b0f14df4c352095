package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/user"
)

// addUser creates an active user; the password policy applies.
func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) error {
	if err := nu.Validate(ctx, cli.validate, cli.users); err != nil {
		return err
	}
	usr, err := cli.users.Create(ctx, nu)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	_, _ = fmt.Fprintf(cli.out, "%s user %q created (id: %s)\n", usr.Role, usr.Name, usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.users.Update(ctx, usr, user.UpdateUser{
		Name:            usr.Name,
		Username:        usr.Username,
		Email:           usr.Email,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	return err
}

func (cli *commandLine) setRole(ctx context.Context, uname string, role user.Role) error {
	usr, err := cli.users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if usr, err = cli.users.SetRole(ctx, usr, role); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "%q is now %s\n", usr.Name, usr.Role)
	return nil
}
