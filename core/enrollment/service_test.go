package enrollment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	admin := access.SubjectOf(env.CreateUser(t, "Admin", "admin", user.RoleAdmin))
	teacher := env.CreateUser(t, "Teacher", "teacher", user.RoleTeacher)
	sUser, s := env.CreateStudent(t, "Sam", "sam")
	_, other := env.CreateStudent(t, "Tom", "tom")
	math := env.CreateCourse(t, "Math", teacher)
	art := env.CreateCourse(t, "Art", teacher)

	t.Run("teacher cannot enroll", func(t *testing.T) {
		_, err := env.Enrollments.Create(ctx, access.SubjectOf(teacher), enrollment.NewEnrollment{StudentID: s.ID, CourseID: math.ID})
		assert.True(t, core.IsAuthorizationError(err))
	})

	t.Run("student enrolls themself", func(t *testing.T) {
		e, err := env.Enrollments.Create(ctx, access.SubjectOf(sUser), enrollment.NewEnrollment{StudentID: other.ID, CourseID: math.ID})
		require.NoError(t, err)
		assert.Equal(t, s.ID, e.StudentID, "student_id is ignored")
		assert.Equal(t, "Math", e.CourseName)

		_, err = env.Enrollments.Create(ctx, access.SubjectOf(sUser), enrollment.NewEnrollment{CourseID: math.ID})
		assert.True(t, core.IsValidationError(err), "already enrolled")
	})

	t.Run("admin enrolls anyone", func(t *testing.T) {
		_, err := env.Enrollments.Create(ctx, admin, enrollment.NewEnrollment{CourseID: art.ID})
		assert.True(t, core.IsValidationError(err), "student_id required")

		_, err = env.Enrollments.Create(ctx, admin, enrollment.NewEnrollment{StudentID: "unknown", CourseID: art.ID})
		assert.True(t, core.IsValidationError(err))

		_, err = env.Enrollments.Create(ctx, admin, enrollment.NewEnrollment{StudentID: other.ID, CourseID: "unknown"})
		assert.True(t, core.IsValidationError(err))

		e, err := env.Enrollments.Create(ctx, admin, enrollment.NewEnrollment{StudentID: other.ID, CourseID: art.ID})
		require.NoError(t, err)
		assert.Equal(t, other.ID, e.StudentID)
	})
}

func TestService_ListGet(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	admin := access.SubjectOf(env.CreateUser(t, "Admin", "admin", user.RoleAdmin))
	teacherA := env.CreateUser(t, "Teacher A", "teacher_a", user.RoleTeacher)
	teacherB := env.CreateUser(t, "Teacher B", "teacher_b", user.RoleTeacher)
	samUser, sam := env.CreateStudent(t, "Sam", "sam")
	tomUser, tom := env.CreateStudent(t, "Tom", "tom")
	math := env.CreateCourse(t, "Math", teacherA)
	art := env.CreateCourse(t, "Art", teacherB)

	samMath := env.Enroll(t, sam, math)
	env.Enroll(t, sam, art)
	tomMath := env.Enroll(t, tom, math)

	tests := []struct {
		name  string
		actor access.Subject
		want  int
	}{
		{"admin", admin, 3},
		{"teacher of math", access.SubjectOf(teacherA), 2},
		{"teacher of art", access.SubjectOf(teacherB), 1},
		{"sam", access.SubjectOf(samUser), 2},
		{"tom", access.SubjectOf(tomUser), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := env.Enrollments.List(ctx, tc.actor, enrollment.QueryFilter{})
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}

	got, err := env.Enrollments.List(ctx, access.SubjectOf(teacherB), enrollment.QueryFilter{CourseID: math.ID})
	require.NoError(t, err)
	assert.Empty(t, got, "a filter cannot widen the scope")

	_, err = env.Enrollments.Get(ctx, access.SubjectOf(teacherA), tomMath.ID)
	assert.NoError(t, err)
	_, err = env.Enrollments.Get(ctx, access.SubjectOf(teacherB), tomMath.ID)
	assert.True(t, core.IsAuthorizationError(err))
	_, err = env.Enrollments.Get(ctx, access.SubjectOf(tomUser), samMath.ID)
	assert.True(t, core.IsAuthorizationError(err))
	_, err = env.Enrollments.Get(ctx, admin, "unknown")
	assert.True(t, core.IsNotFound(err))
}

func TestService_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	admin := access.SubjectOf(env.CreateUser(t, "Admin", "admin", user.RoleAdmin))
	teacher := env.CreateUser(t, "Teacher", "teacher", user.RoleTeacher)
	samUser, sam := env.CreateStudent(t, "Sam", "sam")
	math := env.CreateCourse(t, "Math", teacher)
	art := env.CreateCourse(t, "Art", teacher)
	e := env.Enroll(t, sam, math)
	env.Enroll(t, sam, art)

	_, err := env.Enrollments.Update(ctx, access.SubjectOf(teacher), e.ID, enrollment.UpdateEnrollment{CourseID: art.ID})
	assert.True(t, core.IsAuthorizationError(err))

	_, err = env.Enrollments.Update(ctx, admin, e.ID, enrollment.UpdateEnrollment{CourseID: art.ID})
	assert.True(t, core.IsValidationError(err), "already enrolled in art")

	history := env.CreateCourse(t, "History", teacher)
	updated, err := env.Enrollments.Update(ctx, admin, e.ID, enrollment.UpdateEnrollment{CourseID: " " + history.ID + " "})
	require.NoError(t, err)
	assert.Equal(t, history.ID, updated.CourseID)
	assert.Equal(t, sam.ID, updated.StudentID)

	assert.True(t, core.IsAuthorizationError(env.Enrollments.Delete(ctx, access.SubjectOf(samUser), e.ID)))
	require.NoError(t, env.Enrollments.Delete(ctx, admin, e.ID))
	assert.True(t, core.IsNotFound(env.Enrollments.Delete(ctx, admin, e.ID)))
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	teacher := env.CreateUser(t, "Teacher", "teacher", user.RoleTeacher)
	samUser, sam := env.CreateStudent(t, "Sam", "sam")
	math := env.CreateCourse(t, "Math", teacher)

	pair, err := env.Enrollments.Resolve(ctx, sam.ID, math.ID)
	require.NoError(t, err)
	assert.False(t, pair.Enrolled)

	env.Enroll(t, sam, math)
	pair, err = env.Enrollments.Resolve(ctx, sam.ID, math.ID)
	require.NoError(t, err)
	assert.True(t, pair.Enrolled)
	assert.Equal(t, access.Target{Resource: access.ResourceGrade, StudentUserID: samUser.ID, CourseTeacherID: teacher.ID}, pair.Target(access.ResourceGrade))

	_, err = env.Enrollments.Resolve(ctx, "unknown", math.ID)
	assert.True(t, core.IsValidationError(err))
}
