package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var errUnknownNotification = errors.New("unknown notification: want one of reminder, report or weekly")

// notify sends one of the scheduled notifications right away.
func (cli *commandLine) notify(ctx context.Context, name string) error {
	switch name {
	case "reminder":
		n, err := cli.notifier.DailyAttendanceReminder(ctx)
		if err != nil {
			return errors.Wrap(err, "sending attendance reminders")
		}
		_, _ = fmt.Fprintf(cli.out, "%d attendance reminder(s) queued\n", n)
	case "report":
		if err := cli.notifier.DailyReportSummary(ctx); err != nil {
			return errors.Wrap(err, "sending daily report")
		}
		_, _ = fmt.Fprintln(cli.out, "daily report queued")
	case "weekly":
		n, err := cli.notifier.WeeklyPerformanceSummary(ctx)
		if err != nil {
			return errors.Wrap(err, "sending weekly summaries")
		}
		_, _ = fmt.Fprintf(cli.out, "%d weekly summary(ies) queued\n", n)
	default:
		return errUnknownNotification
	}
	return nil
}
