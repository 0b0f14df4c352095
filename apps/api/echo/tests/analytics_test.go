package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/analytics"
	"github.com/trezcool/shule/core/user"
)

func Test_analyticsApi(t *testing.T) {
	env, app := setup(t)

	admin := env.CreateUser(t, "Admin", "admin", user.RoleAdmin)
	sam := env.CreateUser(t, "Sam", "sam_t", user.RoleTeacher)
	zoeUsr, _ := env.CreateStudent(t, "Zoe", "zoe_doe")
	maths := env.CreateCourse(t, "Maths", sam)
	physics := env.CreateCourse(t, "Physics", sam)

	adminToken := getToken(t, app, admin)
	zoeToken := getToken(t, app, zoeUsr)

	for i := 0; i < 3; i++ {
		rec := do(app, httpTest{path: "/v1/courses/" + maths.ID, token: zoeToken})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(app, httpTest{path: "/v1/courses/" + physics.ID, token: getToken(t, app, sam)})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("Admin only", func(t *testing.T) {
		for _, path := range []string{"/v1/analytics/api-usage", "/v1/analytics/most-active-users", "/v1/analytics/popular-courses"} {
			tt := httpTest{name: path, path: path, token: zoeToken, wantCode: http.StatusForbidden,
				wantData: marchallObj(t, httpErr{Error: "permission denied"})}
			checkCodeAndData(t, tt, do(app, tt))
		}
	})

	t.Run("API usage", func(t *testing.T) {
		rec := do(app, httpTest{path: "/v1/analytics/api-usage", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var usage []analytics.EndpointUsage
		unmarshal(t, rec, &usage)
		require.NotEmpty(t, usage)
		assert.Equal(t, analytics.EndpointUsage{Endpoint: "/v1/courses/:id", Method: http.MethodGet, Requests: 4}, usage[0])
	})

	t.Run("Most active users", func(t *testing.T) {
		rec := do(app, httpTest{path: "/v1/analytics/most-active-users?limit=1", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var users []analytics.UserActivity
		unmarshal(t, rec, &users)
		require.Len(t, users, 1)
		assert.Equal(t, zoeUsr.ID, users[0].UserID)
		assert.Equal(t, 6, users[0].Requests, "course views and the forbidden analytics requests")
	})

	t.Run("Popular courses", func(t *testing.T) {
		rec := do(app, httpTest{path: "/v1/analytics/popular-courses", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var courses []analytics.CoursePopularity
		unmarshal(t, rec, &courses)
		require.Len(t, courses, 2)
		assert.Equal(t, maths.ID, courses[0].CourseID)
		assert.Equal(t, 3, courses[0].Views)
		assert.Equal(t, physics.ID, courses[1].CourseID)
	})
}

func TestServer_home(t *testing.T) {
	env, app := setup(t)

	rec := do(app, httpTest{path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to "+env.Conf.AppName+" API!", rec.Body.String())

	rec = do(app, httpTest{path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/",status="200"} 1`)
}
