package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	logsvc "github.com/trezcool/shule/services/logger"
)

type fakeNotifier struct {
	reminders, reports, summaries atomic.Int32
	fail                          bool
}

func (n *fakeNotifier) DailyAttendanceReminder(context.Context) (int, error) {
	n.reminders.Add(1)
	return 2, nil
}

func (n *fakeNotifier) DailyReportSummary(context.Context) error {
	n.reports.Add(1)
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (n *fakeNotifier) WeeklyPerformanceSummary(context.Context) (int, error) {
	n.summaries.Add(1)
	return 0, nil
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig()
	notifier := &fakeNotifier{fail: true}

	s, err := New(notifier, conf, logsvc.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Jobs())

	s.RunAll()
	assert.EqualValues(t, 1, notifier.reminders.Load())
	assert.EqualValues(t, 1, notifier.reports.Load(), "a failing job does not stop the others")
	assert.EqualValues(t, 1, notifier.summaries.Load())

	s.Start()
	require.NoError(t, s.Stop(context.Background()))
}

func TestNew_Specs(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Scheduler.WeeklySummary = ""
	s, err := New(&fakeNotifier{}, conf, logsvc.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs(), "empty spec disables the job")

	conf.Scheduler.DailyReport = "every tuesday"
	_, err = New(&fakeNotifier{}, conf, logsvc.NewDiscardLogger())
	assert.ErrorContains(t, err, "daily_report")
}
