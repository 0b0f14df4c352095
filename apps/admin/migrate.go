package main

import "context"

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	return runMigrationsFunc(ctx, cli.db, args[0], args[1:]...)
}
