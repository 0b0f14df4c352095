package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/shule/core"
)

const jobTimeout = 10 * time.Minute

// Notifier is implemented by notification.Service.
type Notifier interface {
	DailyAttendanceReminder(ctx context.Context) (int, error)
	DailyReportSummary(ctx context.Context) error
	WeeklyPerformanceSummary(ctx context.Context) (int, error)
}

// Scheduler runs the periodic notification jobs. A job still running when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger
}

func New(notifier Notifier, conf *core.Config, logger core.Logger) (*Scheduler, error) {
	clog := cronLogger{logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		logger: logger,
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"attendance_reminder", conf.Scheduler.AttendanceReminder, func(ctx context.Context) error {
			queued, err := notifier.DailyAttendanceReminder(ctx)
			logger.Info("attendance reminders queued", map[string]interface{}{"count": queued})
			return err
		}},
		{"daily_report", conf.Scheduler.DailyReport, notifier.DailyReportSummary},
		{"weekly_summary", conf.Scheduler.WeeklySummary, func(ctx context.Context) error {
			queued, err := notifier.WeeklyPerformanceSummary(ctx)
			logger.Info("weekly summaries queued", map[string]interface{}{"count": queued})
			return err
		}},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			return nil, errors.Wrapf(err, "scheduling %s (%q)", job.name, job.spec)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := run(ctx); err != nil {
			s.logger.Error("job "+name+" failed", err)
			return
		}
		s.logger.Info("job "+name+" done", map[string]interface{}{"took": time.Since(start).String()})
	}
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

// RunAll runs every scheduled job once, synchronously.
func (s *Scheduler) RunAll() {
	for _, entry := range s.cron.Entries() {
		entry.Job.Run()
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling new runs and waits for the running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, pairs(keysAndValues))
}

func pairs(kv []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}
