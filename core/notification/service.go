// Package notification sends the school's emails: attendance reminders, grade updates and reports.
//
// Every message has a single recipient, so a delivery failure only ever affects one person.
// Nothing is deduplicated: running a job twice sends its emails twice.
package notification

import (
	"context"
	"net/mail"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/student"
)

// Subjects
const (
	SubjectAttendanceReminder = "Daily Attendance Reminder"
	SubjectGradeUpdate        = "Grade Update Notification"
	SubjectDailyReport        = "Daily Report Summary"
	SubjectWeeklySummary      = "Weekly Performance Summary"
)

type (
	Service struct {
		mailSvc    core.EmailService
		students   student.Repository
		grades     grade.Repository
		attendance attendance.Repository
		adminEmail mail.Address
		logger     core.Logger
	}

	GradeLine struct {
		CourseName string
		Score      string
	}

	AttendanceLine struct {
		CourseName string
		Date       string
		Status     attendance.Status
	}
)

var _ grade.Notifier = (*Service)(nil)

func NewService(
	mailSvc core.EmailService,
	students student.Repository,
	grades grade.Repository,
	records attendance.Repository,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		mailSvc:    mailSvc,
		students:   students,
		grades:     grades,
		attendance: records,
		adminEmail: conf.AdminEmail(),
		logger:     logger,
	}
}

// DailyAttendanceReminder asks every student to mark their attendance.
// It returns the number of emails queued; delivery is asynchronous.
func (svc *Service) DailyAttendanceReminder(ctx context.Context) (int, error) {
	students, err := svc.students.QueryStudents(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "querying students")
	}

	msgs := make([]*core.EmailMessage, 0, len(students))
	for _, s := range students {
		if s.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{recipient(s)},
			Subject:      SubjectAttendanceReminder,
			TemplateName: "attendance_reminder",
			TemplateData: map[string]string{"Name": s.Name},
		})
	}
	svc.mailSvc.SendMessages(msgs...)
	return len(msgs), nil
}

// NotifyGradeUpdate tells a student their grade for a course changed.
func (svc *Service) NotifyGradeUpdate(ctx context.Context, studentID, courseName string, score float64) error {
	s, err := svc.students.GetStudent(ctx, student.GetFilter{ID: studentID})
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	if s.Email == "" {
		return nil
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{recipient(s)},
		Subject:      SubjectGradeUpdate,
		TemplateName: "grade_update",
		TemplateData: map[string]string{
			"Name":   s.Name,
			"Course": courseName,
			"Score":  FormatScore(score),
		},
	})
	return nil
}

// DailyReportSummary sends the admin today's attendance and grade counts.
func (svc *Service) DailyReportSummary(ctx context.Context) error {
	today := core.NewDate(core.Today())

	attendanceCnt, err := svc.attendance.CountRecords(ctx, &attendance.QueryFilter{Date: today})
	if err != nil {
		return errors.Wrap(err, "counting attendance records")
	}
	gradeCnt, err := svc.grades.CountGrades(ctx, &grade.QueryFilter{Date: today})
	if err != nil {
		return errors.Wrap(err, "counting grades")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{svc.adminEmail},
		Subject:      SubjectDailyReport,
		TemplateName: "daily_report",
		TemplateData: map[string]int{
			"AttendanceCount": attendanceCnt,
			"GradeCount":      gradeCnt,
		},
	})
	return nil
}

// WeeklyPerformanceSummary sends every student their grades and attendance.
// It returns the number of emails queued; delivery is asynchronous.
// A student whose records cannot be read is logged and skipped.
func (svc *Service) WeeklyPerformanceSummary(ctx context.Context) (int, error) {
	students, err := svc.students.QueryStudents(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "querying students")
	}

	msgs := make([]*core.EmailMessage, 0, len(students))
	for _, s := range students {
		if s.Email == "" {
			continue
		}
		msg, err := svc.weeklySummary(ctx, s)
		if err != nil {
			svc.logger.Error("notification.WeeklyPerformanceSummary: "+err.Error(), err)
			continue
		}
		msgs = append(msgs, msg)
	}
	svc.mailSvc.SendMessages(msgs...)
	return len(msgs), nil
}

func (svc *Service) weeklySummary(ctx context.Context, s student.Student) (*core.EmailMessage, error) {
	grades, err := svc.grades.QueryGrades(ctx, &grade.QueryFilter{StudentID: s.ID})
	if err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	records, err := svc.attendance.QueryRecords(ctx, &attendance.QueryFilter{StudentID: s.ID})
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}

	gradeLines := make([]GradeLine, 0, len(grades))
	for _, g := range grades {
		gradeLines = append(gradeLines, GradeLine{CourseName: g.CourseName, Score: FormatScore(g.Score)})
	}
	attendanceLines := make([]AttendanceLine, 0, len(records))
	for _, rec := range records {
		attendanceLines = append(attendanceLines, AttendanceLine{CourseName: rec.CourseName, Date: rec.Date.String(), Status: rec.Status})
	}

	return &core.EmailMessage{
		To:           []mail.Address{recipient(s)},
		Subject:      SubjectWeeklySummary,
		TemplateName: "weekly_summary",
		TemplateData: map[string]interface{}{
			"Name":       s.Name,
			"Grades":     gradeLines,
			"Attendance": attendanceLines,
		},
	}, nil
}

// FormatScore prints a score without trailing zeros: 95.5, 90.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func recipient(s student.Student) mail.Address {
	return mail.Address{Name: s.Name, Address: s.Email}
}
