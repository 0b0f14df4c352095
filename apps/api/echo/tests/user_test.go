package tests

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func Test_userApi_login(t *testing.T) {
	env, app := setup(t)
	ctx := context.Background()

	sam := env.CreateUser(t, "Sam", "sam_t", user.RoleTeacher)
	naughty := env.CreateUser(t, "N Dog", "ndog", user.RoleStudent)
	_, err := env.Users.Update(ctx, naughty, user.UpdateUser{Name: naughty.Name, Username: naughty.Username, Email: naughty.Email, IsActive: new(bool)})
	require.NoError(t, err)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}
	failed := marchallObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{name: "Missing fields", body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{
			"username": "username is a required field",
			"password": "password is a required field",
		})},
		{name: "Unknown user", body: login("nobody", testutil.Password), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "Wrong password", body: login("sam_t", "wrong"), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "Inactive user", body: login("ndog", testutil.Password), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "By username", body: login(" SAM_T ", testutil.Password), wantCode: http.StatusOK},
		{name: "By email", body: login("sam_t@school.test", testutil.Password), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"
		t.Run(tt.name, func(t *testing.T) {
			rec := do(app, tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshal(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)

				// the token grants access
				rec = do(app, httpTest{path: "/v1/users/" + sam.ID, token: resp.Token})
				assert.Equal(t, http.StatusOK, rec.Code)
			}
		})
	}

	usr, err := env.Users.GetByID(ctx, sam.ID)
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero(), "last login recorded")
}

func Test_userApi_signup(t *testing.T) {
	env, app := setup(t)
	env.CreateUser(t, "Taken", "taken", user.RoleStudent)

	body := func(uname, role string) []byte {
		return marchallObj(t, map[string]string{
			"name": "Zoe", "username": uname, "password": testutil.Password, "password_confirm": testutil.Password, "role": role,
		})
	}

	rec := do(app, httpTest{method: http.MethodPost, path: "/v1/users/signup", body: body("taken", "")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"username": "a user with this username already exists"}`, rec.Body.String())

	rec = do(app, httpTest{method: http.MethodPost, path: "/v1/users/signup", body: body("zoe_doe", "admin")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var usr user.User
	unmarshal(t, rec, &usr)
	assert.Equal(t, user.RoleStudent, usr.Role, "public sign up always creates students")

	_, err := env.Students.GetByUserID(context.Background(), usr.ID)
	assert.NoError(t, err, "student profile created")
}

func Test_userApi_register(t *testing.T) {
	env, app := setup(t)
	admin := env.CreateUser(t, "Admin", "admin", user.RoleAdmin)
	teacher := env.CreateUser(t, "Teacher", "teacher", user.RoleTeacher)

	body := marchallObj(t, map[string]string{
		"name": "Tom", "email": "tom@school.test", "password": testutil.Password, "password_confirm": testutil.Password, "role": "teacher",
	})

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", token: getToken(t, app, teacher), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})},
		{name: "Invalid role", token: getToken(t, app, admin), body: []byte(`{"name":"X","email":"x@school.test","password":"Xk9#mQ2$vLp","password_confirm":"Xk9#mQ2$vLp","role":"janitor"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": "role must be one of [student teacher admin]"})},
		{name: "Created", token: getToken(t, app, admin), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register"
		if tt.body == nil {
			tt.body = body
		}
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, do(app, tt))
		})
	}

	usr, err := env.Users.GetByUsernameOrEmail(context.Background(), "tom@school.test")
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, usr.Role)
}

func Test_userApi_query(t *testing.T) {
	env, app := setup(t)

	path := func(search string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}

	admin := env.CreateUser(t, "Admin", "admin", user.RoleAdmin)
	teacher := env.CreateUser(t, "Teacher", "teacher", user.RoleTeacher)
	zoe := env.CreateUser(t, "Zoe", "zoe_doe", user.RoleStudent)
	adminToken := getToken(t, app, admin)

	tests := []struct {
		httpTest
		want []string
	}{
		{httpTest: httpTest{name: "Admin required", path: "/v1/users", token: getToken(t, app, zoe), wantCode: http.StatusForbidden}},
		{httpTest: httpTest{name: "Ordered by name", path: "/v1/users?ordering=name", token: adminToken}, want: []string{admin.ID, teacher.ID, zoe.ID}},
		{httpTest: httpTest{name: "Search", path: path("ZOE"), token: adminToken}, want: []string{zoe.ID}},
		{httpTest: httpTest{name: "Roles", path: path("", "teacher", "admin") + "&ordering=-name", token: adminToken}, want: []string{teacher.ID, admin.ID}},
		{httpTest: httpTest{name: "Unknown role", path: path("", "janitor"), token: adminToken}, want: []string{}},
	}
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			rec := do(app, tt.httpTest)
			checkCode(t, tt.httpTest, rec)
			if tt.want != nil {
				assert.Equal(t, tt.want, ids(t, rec))
			}
		})
	}

	rec := do(app, httpTest{path: "/v1/users/roles", token: adminToken})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(marchallObj(t, user.Roles)), rec.Body.String())
}

func Test_userApi_detail(t *testing.T) {
	env, app := setup(t)
	ctx := context.Background()

	admin := env.CreateUser(t, "Admin", "admin", user.RoleAdmin)
	teacher := env.CreateUser(t, "Teacher", "teacher", user.RoleTeacher)
	zoe := env.CreateUser(t, "Zoe", "zoe_doe", user.RoleStudent)
	zoeToken := getToken(t, app, zoe)

	tests := []httpTest{
		{name: "Self", path: "/v1/users/" + zoe.ID, token: zoeToken, wantCode: http.StatusOK},
		{name: "Someone else", path: "/v1/users/" + teacher.ID, token: zoeToken, wantCode: http.StatusForbidden},
		{name: "Admin", path: "/v1/users/" + zoe.ID, token: getToken(t, app, admin), wantCode: http.StatusOK},
		{name: "Unknown", path: "/v1/users/5f6b8cb4-0e0b-4e55-9a6e-1d3d1f1a8f00", token: getToken(t, app, admin), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "user not found"})},
		{name: "Self update", method: http.MethodPut, path: "/v1/users/" + zoe.ID, token: zoeToken, body: []byte(`{"name":"Zoe Doe"}`), wantCode: http.StatusOK},
		{name: "Self update email", method: http.MethodPut, path: "/v1/users/" + zoe.ID, token: zoeToken, body: []byte(`{"email":"z@school.test"}`), wantCode: http.StatusForbidden},
		{name: "Self delete", method: http.MethodDelete, path: "/v1/users/" + zoe.ID, token: zoeToken, wantCode: http.StatusForbidden},
		{name: "Self role change", method: http.MethodPut, path: "/v1/users/" + zoe.ID + "/role", token: zoeToken, body: []byte(`{"role":"admin"}`), wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, do(app, tt))
		})
	}

	usr, err := env.Users.GetByID(ctx, zoe.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zoe Doe", usr.Name)
	assert.Equal(t, user.RoleStudent, usr.Role)
}

func Test_userApi_setRole(t *testing.T) {
	env, app := setup(t)
	ctx := context.Background()

	admin := env.CreateUser(t, "Admin", "admin", user.RoleAdmin)
	zoe, profile := env.CreateStudent(t, "Zoe", "zoe_doe")
	adminToken := getToken(t, app, admin)
	path := "/v1/users/" + zoe.ID + "/role"

	rec := do(app, httpTest{method: http.MethodPut, path: path, token: adminToken, body: []byte(`{"role":"janitor"}`)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(app, httpTest{method: http.MethodPut, path: path, token: adminToken, body: []byte(`{"role":"teacher"}`)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	unmarshal(t, rec, &usr)
	assert.Equal(t, user.RoleTeacher, usr.Role)

	_, err := env.StudentRepo.GetStudent(ctx, student.GetFilter{ID: profile.ID})
	assert.True(t, core.IsNotFound(err), "no longer a student")
}

func Test_userApi_destroy(t *testing.T) {
	env, app := setup(t)
	ctx := context.Background()

	admin := env.CreateUser(t, "Admin", "admin", user.RoleAdmin)
	zoe := env.CreateUser(t, "Zoe", "zoe_doe", user.RoleStudent)
	amy := env.CreateUser(t, "Amy", "amy_doe", user.RoleStudent)
	adminToken := getToken(t, app, admin)

	rec := do(app, httpTest{method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken})
	assert.Equal(t, http.StatusForbidden, rec.Code, "cannot delete themself")
	rec = do(app, httpTest{method: http.MethodDelete, path: "/v1/users?id=" + zoe.ID + "&id=" + admin.ID, token: adminToken})
	assert.Equal(t, http.StatusForbidden, rec.Code, "cannot delete themself")

	rec = do(app, httpTest{method: http.MethodDelete, path: "/v1/users/" + zoe.ID, token: adminToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(app, httpTest{method: http.MethodDelete, path: "/v1/users?id=" + amy.ID, token: adminToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	users, err := env.Users.Query(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, admin.ID, users[0].ID)
}

func Test_userApi_passwordReset(t *testing.T) {
	env, app := setup(t)
	zoe := env.CreateUser(t, "Zoe", "zoe_doe", user.RoleStudent)
	env.Mail.Reset()

	success := "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."
	for _, email := range []string{"nobody@school.test", "zoe_doe@school.test"} {
		rec := do(app, httpTest{method: http.MethodPost, path: "/v1/users/password-reset", body: marchallObj(t, map[string]string{"email": email})})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, string(marchallObj(t, echoapi.SuccessResponse{Success: success})), rec.Body.String())
	}

	msgs := env.Mail.SentMessages()
	require.Len(t, msgs, 1, "unknown emails get no message")
	assert.Equal(t, "Password Reset", msgs[0].Subject)
	link := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`).FindStringSubmatch(msgs[0].TextContent)
	require.Len(t, link, 3, msgs[0].TextContent)

	newPwd := "N3w#Secret!x"
	confirm := func(uid, token string) []byte {
		return marchallObj(t, user.ResetUserPassword{UID: uid, Token: token, Password: newPwd, PasswordConfirm: newPwd})
	}
	rec := do(app, httpTest{method: http.MethodPost, path: "/v1/users/password-reset-confirm", body: confirm(link[1], "bad-token")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"token": "invalid value"}`, rec.Body.String())

	rec = do(app, httpTest{method: http.MethodPost, path: "/v1/users/password-reset-confirm", body: confirm(link[1], link[2])})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(app, httpTest{method: http.MethodPost, path: "/v1/users/login", body: marchallObj(t, echoapi.LoginRequest{Username: zoe.Username, Password: newPwd})})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_refreshToken(t *testing.T) {
	env, app := setup(t)
	ctx := context.Background()

	naughty := env.CreateUser(t, "N Dog", "ndog", user.RoleStudent)
	naughtyToken := getToken(t, app, naughty)
	_, err := env.Users.Update(ctx, naughty, user.UpdateUser{Name: naughty.Name, Username: naughty.Username, Email: naughty.Email, IsActive: new(bool)})
	require.NoError(t, err)
	zoe := env.CreateUser(t, "Zoe", "zoe_doe", user.RoleStudent)

	now := time.Now()
	unrefreshable := jwt.NewWithClaims(jwt.SigningMethodHS256, &echoapi.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    env.Conf.AppName,
			Subject:   zoe.ID,
			Audience:  jwt.ClaimStrings{"Shule"},
			ExpiresAt: jwt.NewNumericDate(now.Add(env.Conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: now.Add(-2 * env.Conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Role:         zoe.Role,
	})
	unrefreshableToken, err := unrefreshable.SignedString([]byte(env.Conf.SecretKey))
	require.NoError(t, err)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &echoapi.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: zoe.ID, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte("not-the-secret"))
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Forged token", token: forged, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"})},
		{name: "Inactive user not allowed", token: naughtyToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, app, zoe), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, do(app, tt))
		})
	}
}
