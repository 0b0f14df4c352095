package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/notification"
	"github.com/trezcool/shule/core/user"
)

func Test_enrollmentApi(t *testing.T) {
	env, app := setup(t)

	sam := env.CreateUser(t, "Sam", "sam_t", user.RoleTeacher)
	kim := env.CreateUser(t, "Kim", "kim_t", user.RoleTeacher)
	admin := env.CreateUser(t, "Admin", "admin", user.RoleAdmin)
	zoeUsr, zoe := env.CreateStudent(t, "Zoe", "zoe_doe")
	_, amy := env.CreateStudent(t, "Amy", "amy_doe")
	maths := env.CreateCourse(t, "Maths", sam)
	physics := env.CreateCourse(t, "Physics", kim)
	amyPhysics := env.Enroll(t, amy, physics)

	zoeToken := getToken(t, app, zoeUsr)
	samToken := getToken(t, app, sam)
	adminToken := getToken(t, app, admin)

	var zoeMaths enrollment.Enrollment

	t.Run("Create", func(t *testing.T) {
		tests := []httpTest{
			{name: "Teacher not allowed", token: samToken, body: []byte(`{"student_id":"` + zoe.ID + `","course_id":"` + maths.ID + `"}`), wantCode: http.StatusForbidden},
			{name: "Unknown course", token: zoeToken, body: []byte(`{"course_id":"nope"}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"course_id": "course not found"})},
			{name: "Admin requires student", token: adminToken, body: []byte(`{"course_id":"` + maths.ID + `"}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"student_id": "this field is required"})},
		}
		for _, tt := range tests {
			tt.method = http.MethodPost
			tt.path = "/v1/enrollments"
			t.Run(tt.name, func(t *testing.T) {
				checkCodeAndData(t, tt, do(app, tt))
			})
		}

		// a student always enrolls themself
		body := []byte(`{"student_id":"` + amy.ID + `","course_id":"` + maths.ID + `"}`)
		rec := do(app, httpTest{method: http.MethodPost, path: "/v1/enrollments", token: zoeToken, body: body})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &zoeMaths)
		assert.Equal(t, zoe.ID, zoeMaths.StudentID)
		assert.Equal(t, "Maths", zoeMaths.CourseName)

		rec = do(app, httpTest{method: http.MethodPost, path: "/v1/enrollments", token: zoeToken, body: body})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"course_id": "the student is already enrolled in this course"}`, rec.Body.String())
	})

	t.Run("List", func(t *testing.T) {
		rec := do(app, httpTest{path: "/v1/enrollments", token: zoeToken})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{zoeMaths.ID}, ids(t, rec))

		rec = do(app, httpTest{path: "/v1/enrollments", token: samToken})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{zoeMaths.ID}, ids(t, rec), "teachers see their courses only")

		rec = do(app, httpTest{path: "/v1/enrollments?course=" + physics.ID, token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{amyPhysics.ID}, ids(t, rec))
	})

	t.Run("Detail", func(t *testing.T) {
		tests := []httpTest{
			{name: "Own", path: "/v1/enrollments/" + zoeMaths.ID, token: zoeToken, wantCode: http.StatusOK},
			{name: "Someone else's", path: "/v1/enrollments/" + amyPhysics.ID, token: zoeToken, wantCode: http.StatusForbidden},
			{name: "Other course", path: "/v1/enrollments/" + amyPhysics.ID, token: samToken, wantCode: http.StatusForbidden},
			{name: "Student cannot delete", method: http.MethodDelete, path: "/v1/enrollments/" + zoeMaths.ID, token: zoeToken, wantCode: http.StatusForbidden},
			{name: "Admin moves", method: http.MethodPut, path: "/v1/enrollments/" + amyPhysics.ID, token: adminToken,
				body: []byte(`{"course_id":"` + maths.ID + `"}`), wantCode: http.StatusOK},
			{name: "Admin deletes", method: http.MethodDelete, path: "/v1/enrollments/" + zoeMaths.ID, token: adminToken, wantCode: http.StatusNoContent},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				checkCode(t, tt, do(app, tt))
			})
		}
	})
}

func Test_gradeApi(t *testing.T) {
	env, app := setup(t)
	env.Mail.Reset()

	sam := env.CreateUser(t, "Sam", "sam_t", user.RoleTeacher)
	kim := env.CreateUser(t, "Kim", "kim_t", user.RoleTeacher)
	zoeUsr, zoe := env.CreateStudent(t, "Zoe", "zoe_doe")
	amyUsr, amy := env.CreateStudent(t, "Amy", "amy_doe")
	maths := env.CreateCourse(t, "Maths", sam)
	physics := env.CreateCourse(t, "Physics", kim)
	env.Enroll(t, zoe, maths)
	env.Enroll(t, amy, physics)

	samToken := getToken(t, app, sam)
	zoeToken := getToken(t, app, zoeUsr)

	newGrade := func(s, c string, score string) []byte {
		return []byte(`{"student_id":"` + s + `","course_id":"` + c + `","score":` + score + `}`)
	}

	var g grade.Grade

	t.Run("Create", func(t *testing.T) {
		tests := []httpTest{
			{name: "Student not allowed", token: zoeToken, body: newGrade(zoe.ID, maths.ID, "90"), wantCode: http.StatusForbidden},
			{name: "Another teacher's course", token: samToken, body: newGrade(amy.ID, physics.ID, "90"), wantCode: http.StatusForbidden},
			{name: "Not enrolled", token: samToken, body: newGrade(amy.ID, maths.ID, "90"), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"student_id": "the student is not enrolled in this course"})},
			{name: "Out of range", token: samToken, body: newGrade(zoe.ID, maths.ID, "101"), wantCode: http.StatusBadRequest},
		}
		for _, tt := range tests {
			tt.method = http.MethodPost
			tt.path = "/v1/grades"
			t.Run(tt.name, func(t *testing.T) {
				checkCodeAndData(t, tt, do(app, tt))
			})
		}

		rec := do(app, httpTest{method: http.MethodPost, path: "/v1/grades", token: samToken, body: newGrade(zoe.ID, maths.ID, "87.5")})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &g)
		assert.Equal(t, 87.5, g.Score)
		assert.Equal(t, "Maths", g.CourseName)

		msgs := env.Mail.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, notification.SubjectGradeUpdate, msgs[0].Subject)
		assert.Equal(t, zoeUsr.Email, msgs[0].To[0].Address)
	})

	t.Run("Read", func(t *testing.T) {
		rec := do(app, httpTest{path: "/v1/grades", token: zoeToken})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{g.ID}, ids(t, rec))

		rec = do(app, httpTest{path: "/v1/grades", token: getToken(t, app, amyUsr)})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, ids(t, rec))

		rec = do(app, httpTest{path: "/v1/grades/" + g.ID, token: getToken(t, app, kim)})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Update", func(t *testing.T) {
		rec := do(app, httpTest{method: http.MethodPut, path: "/v1/grades/" + g.ID, token: zoeToken, body: []byte(`{"score":100}`)})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(app, httpTest{method: http.MethodPut, path: "/v1/grades/" + g.ID, token: samToken, body: []byte(`{"score":92}`)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated grade.Grade
		unmarshal(t, rec, &updated)
		assert.Equal(t, 92.0, updated.Score)
	})

	t.Run("Delete", func(t *testing.T) {
		rec := do(app, httpTest{method: http.MethodDelete, path: "/v1/grades/" + g.ID, token: samToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = do(app, httpTest{path: "/v1/grades/" + g.ID, token: samToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_attendanceApi(t *testing.T) {
	env, app := setup(t)
	ctx := context.Background()

	sam := env.CreateUser(t, "Sam", "sam_t", user.RoleTeacher)
	admin := env.CreateUser(t, "Admin", "admin", user.RoleAdmin)
	zoeUsr, zoe := env.CreateStudent(t, "Zoe", "zoe_doe")
	_, amy := env.CreateStudent(t, "Amy", "amy_doe")
	maths := env.CreateCourse(t, "Maths", sam)
	env.Enroll(t, zoe, maths)
	env.Enroll(t, amy, maths)

	samToken := getToken(t, app, sam)
	zoeToken := getToken(t, app, zoeUsr)
	adminToken := getToken(t, app, admin)

	var rec attendance.Record

	t.Run("Create", func(t *testing.T) {
		body := []byte(`{"student_id":"` + amy.ID + `","course_id":"` + maths.ID + `","date":"2024-03-04","status":"absent"}`)

		resp := do(app, httpTest{method: http.MethodPost, path: "/v1/attendance", token: zoeToken, body: body})
		assert.Equal(t, http.StatusForbidden, resp.Code, "students record their own attendance only")

		resp = do(app, httpTest{method: http.MethodPost, path: "/v1/attendance", token: samToken,
			body: []byte(`{"student_id":"` + amy.ID + `","course_id":"` + maths.ID + `","status":"sleeping"}`)})
		assert.Equal(t, http.StatusBadRequest, resp.Code)

		resp = do(app, httpTest{method: http.MethodPost, path: "/v1/attendance", token: samToken, body: body})
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
		unmarshal(t, resp, &rec)
		assert.Equal(t, attendance.StatusAbsent, rec.Status)
		assert.Equal(t, "2024-03-04", rec.Date.String())

		resp = do(app, httpTest{method: http.MethodPost, path: "/v1/attendance", token: samToken, body: body})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.JSONEq(t, `{"date": "attendance for this student, course and date already exists"}`, resp.Body.String())
	})

	t.Run("Mark", func(t *testing.T) {
		tests := []httpTest{
			{name: "Self", path: "/v1/attendance/mark/" + zoe.ID + "/" + maths.ID, token: zoeToken, wantCode: http.StatusOK,
				wantData: marchallObj(t, echoapi.MessageResponse{Message: "Attendance marked as present."})},
			{name: "Twice", path: "/v1/attendance/mark/" + zoe.ID + "/" + maths.ID, token: zoeToken, wantCode: http.StatusOK},
			{name: "Another student", path: "/v1/attendance/mark/" + amy.ID + "/" + maths.ID, token: zoeToken, wantCode: http.StatusForbidden},
			{name: "Unknown student", path: "/v1/attendance/mark/nope/" + maths.ID, token: zoeToken, wantCode: http.StatusForbidden},
			{name: "Unknown student as admin", path: "/v1/attendance/mark/nope/" + maths.ID, token: adminToken, wantCode: http.StatusNotFound},
			{name: "Unknown course", path: "/v1/attendance/mark/" + zoe.ID + "/nope", token: zoeToken, wantCode: http.StatusNotFound},
			{name: "Teacher", path: "/v1/attendance/mark/" + amy.ID + "/" + maths.ID, token: samToken, wantCode: http.StatusOK},
		}
		for _, tt := range tests {
			tt.method = http.MethodPost
			t.Run(tt.name, func(t *testing.T) {
				checkCodeAndData(t, tt, do(app, tt))
			})
		}

		records, err := env.AttendanceRepo.QueryRecords(ctx, &attendance.QueryFilter{StudentID: zoe.ID, Date: core.NewDate(core.Today())})
		require.NoError(t, err)
		require.Len(t, records, 1, "marking twice upserts")
		assert.Equal(t, attendance.StatusPresent, records[0].Status)
	})

	t.Run("List", func(t *testing.T) {
		resp := do(app, httpTest{path: "/v1/attendance?status=absent", token: samToken})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, []string{rec.ID}, ids(t, resp))

		resp = do(app, httpTest{path: "/v1/attendance?date=2024-03-04", token: zoeToken})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Empty(t, ids(t, resp), "amy's record is not visible to zoe")
	})

	t.Run("Update", func(t *testing.T) {
		resp := do(app, httpTest{method: http.MethodPut, path: "/v1/attendance/" + rec.ID, token: zoeToken, body: []byte(`{"status":"present"}`)})
		assert.Equal(t, http.StatusForbidden, resp.Code)

		resp = do(app, httpTest{method: http.MethodPut, path: "/v1/attendance/" + rec.ID, token: samToken, body: []byte(`{"status":"PRESENT"}`)})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		var updated attendance.Record
		unmarshal(t, resp, &updated)
		assert.Equal(t, attendance.StatusPresent, updated.Status)
	})

	t.Run("Delete", func(t *testing.T) {
		resp := do(app, httpTest{method: http.MethodDelete, path: "/v1/attendance/" + rec.ID, token: adminToken})
		assert.Equal(t, http.StatusNoContent, resp.Code)
	})
}
