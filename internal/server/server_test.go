package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	assignmentdomain "github.com/smallbiznis/nexus360/internal/assignment/domain"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/migration"
	"github.com/smallbiznis/nexus360/internal/observability"
	obsmetrics "github.com/smallbiznis/nexus360/internal/observability/metrics"
	questiondomain "github.com/smallbiznis/nexus360/internal/question/domain"
	"github.com/smallbiznis/nexus360/internal/seed"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	userdomain "github.com/smallbiznis/nexus360/internal/user/domain"
	"github.com/smallbiznis/nexus360/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestEngineWithConfig(t, config.Config{Environment: "test", HTTPAddr: ":0"})
}

func newTestEngineWithConfig(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	_, err = seed.EnsureSharedQuestionnaire(conn)
	require.NoError(t, err)

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	var engine *gin.Engine
	fxtest.New(t,
		fx.Supply(conn, node, cfg),
		fx.Supply(config.StaticReviewPolicy(config.DefaultReviewPolicy())),
		fx.Supply(observability.Config{}),
		fx.Provide(
			func() *zap.Logger { return zaptest.NewLogger(t) },
			func() clock.Clock { return clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)) },
			func() tenantlock.Locker { return tenantlock.NewLocal() },
			func() *obsmetrics.HTTPMetrics { return nil },
		),
		Module,
		fx.Populate(&engine),
	)
	require.NotNil(t, engine)
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type registered struct {
	Token       string          `json:"token"`
	RecoveryKey string          `json:"recovery_key"`
	Admin       userdomain.User `json:"admin"`
}

type loggedIn struct {
	Token string          `json:"token"`
	User  userdomain.User `json:"user"`
}

func registerAcme(t *testing.T, engine *gin.Engine) registered {
	t.Helper()
	rec := doJSON(t, engine, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":           "Acme",
		"login_code":     "acme",
		"admin_name":     "Ada Admin",
		"admin_username": "ada",
		"admin_password": "admin-pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[registered](t, rec)
	require.NotEmpty(t, out.Token)
	require.NotEmpty(t, out.RecoveryKey)
	return out
}

func createUser(t *testing.T, engine *gin.Engine, token string, body gin.H) userdomain.User {
	t.Helper()
	rec := doJSON(t, engine, http.MethodPost, "/api/users", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[userdomain.CreateUserResult](t, rec).User
}

func login(t *testing.T, engine *gin.Engine, username, password string) loggedIn {
	t.Helper()
	rec := doJSON(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{
		"login_code": "ACME",
		"username":   username,
		"password":   password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[loggedIn](t, rec)
}

func TestHealth(t *testing.T) {
	engine := newTestEngine(t)

	rec := doJSON(t, engine, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthBoundary(t *testing.T) {
	engine := newTestEngine(t)
	acme := registerAcme(t, engine)

	t.Run("missing token", func(t *testing.T) {
		rec := doJSON(t, engine, http.MethodGet, "/api/users", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode[errorResponse](t, rec)
		assert.Equal(t, "unauthorized", body.Error.Type)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := doJSON(t, engine, http.MethodGet, "/api/users", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown login code", func(t *testing.T) {
		rec := doJSON(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{
			"login_code": "globex", "username": "ada", "password": "admin-pass",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_credentials", decode[errorResponse](t, rec).Error.Message)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := doJSON(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{
			"login_code": "acme", "username": "ada", "password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("duplicate login code", func(t *testing.T) {
		rec := doJSON(t, engine, http.MethodPost, "/api/auth/register", "", gin.H{
			"name": "Acme 2", "login_code": "acme", "admin_name": "Zed",
			"admin_username": "zed", "admin_password": "pw",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "conflict", decode[errorResponse](t, rec).Error.Type)
	})

	t.Run("me", func(t *testing.T) {
		rec := doJSON(t, engine, http.MethodGet, "/api/auth/me", acme.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"username":"ada"`)
		assert.NotContains(t, rec.Body.String(), "recovery_key_hash")
	})

	t.Run("recover rotates the key", func(t *testing.T) {
		rec := doJSON(t, engine, http.MethodPost, "/api/auth/recover", "", gin.H{
			"login_code": "acme", "recovery_key": acme.RecoveryKey, "new_admin_password": "fresh-pass",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		login(t, engine, "ada", "fresh-pass")

		reused := doJSON(t, engine, http.MethodPost, "/api/auth/recover", "", gin.H{
			"login_code": "acme", "recovery_key": acme.RecoveryKey, "new_admin_password": "other",
		})
		assert.Equal(t, http.StatusUnauthorized, reused.Code)
	})
}

func TestLoginThrottle(t *testing.T) {
	engine := newTestEngineWithConfig(t, config.Config{
		Environment:           "test",
		HTTPAddr:              ":0",
		AuthAttemptsPerMinute: 3,
	})
	registerAcme(t, engine)

	attempt := func() *httptest.ResponseRecorder {
		return doJSON(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{
			"login_code": "acme", "username": "ada", "password": "guess",
		})
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusUnauthorized, attempt().Code)
	}

	rec := attempt()
	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "rate_limited", body.Error.Type)
	assert.Equal(t, "too_many_attempts", body.Error.Message)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// registration has its own budget
	rec = doJSON(t, engine, http.MethodPost, "/api/auth/register", "", gin.H{
		"name": "Globex", "login_code": "globex", "admin_name": "Gus",
		"admin_username": "gus", "admin_password": "pw",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestValidationEnvelope(t *testing.T) {
	engine := newTestEngine(t)
	acme := registerAcme(t, engine)

	rec := doJSON(t, engine, http.MethodPost, "/api/users", acme.Token, gin.H{"name": "  ", "role": "EMPLOYEE"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "validation_error", body.Error.Type)
	require.Len(t, body.Error.Errors, 1)
	assert.Equal(t, "invalid_name", body.Error.Errors[0].Code)
	assert.Equal(t, "name", body.Error.Errors[0].Field)

	rec = doJSON(t, engine, http.MethodGet, "/api/users/not-an-id", acme.Token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/nowhere", acme.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewFlow(t *testing.T) {
	engine := newTestEngine(t)
	acme := registerAcme(t, engine)

	bob := createUser(t, engine, acme.Token, gin.H{
		"name": "Bob Boss", "username": "bob", "password": "bob-pass",
		"role": "MANAGER", "department": "Sales",
	})
	carol := createUser(t, engine, acme.Token, gin.H{
		"name": "Carol Clerk", "username": "carol", "password": "carol-pass",
		"role": "EMPLOYEE", "department": "Sales", "manager_id": bob.ID.String(),
	})
	require.NotNil(t, carol.ManagerID)

	carolSession := login(t, engine, "carol", "carol-pass")
	bobSession := login(t, engine, "bob", "bob-pass")

	// Employees cannot browse the directory.
	rec := doJSON(t, engine, http.MethodGet, "/api/users", carolSession.Token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[errorResponse](t, rec).Error.Type)

	rec = doJSON(t, engine, http.MethodPost, "/api/assignments/generate", acme.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	generated := decode[assignmentdomain.GenerateResult](t, rec)
	assert.Equal(t, 3, generated.Counts[assignmentdomain.RelationshipSelf])
	assert.Equal(t, 1, generated.Counts[assignmentdomain.RelationshipManager])
	assert.Equal(t, 1, generated.Counts[assignmentdomain.RelationshipDirectReport])

	rec = doJSON(t, engine, http.MethodGet, "/api/questions", carolSession.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	questions := decode[envelope[[]questiondomain.Question]](t, rec).Data
	require.NotEmpty(t, questions)
	scores := map[string]int{}
	for _, q := range questions {
		scores[q.ID.String()] = 4
	}

	mine := func(token string) []assignmentdomain.Assignment {
		rec := doJSON(t, engine, http.MethodGet, "/api/assignments/mine", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[envelope[[]assignmentdomain.Assignment]](t, rec).Data
	}
	find := func(list []assignmentdomain.Assignment, subject snowflake.ID, rel assignmentdomain.Relationship) assignmentdomain.Assignment {
		for _, a := range list {
			if a.SubjectID == subject && a.Relationship == rel {
				return a
			}
		}
		t.Fatalf("no %s assignment for %s", rel, subject)
		return assignmentdomain.Assignment{}
	}

	carolSelf := find(mine(carolSession.Token), carol.ID, assignmentdomain.RelationshipSelf)
	bobOnCarol := find(mine(bobSession.Token), carol.ID, assignmentdomain.RelationshipManager)

	// Only the reviewer may answer.
	rec = doJSON(t, engine, http.MethodPost, "/api/assignments/"+bobOnCarol.ID.String()+"/submit", carolSession.Token, gin.H{"scores": scores})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, engine, http.MethodPut, "/api/assignments/"+carolSelf.ID.String()+"/draft", carolSession.Token, gin.H{"scores": scores})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, assignmentdomain.StatusDraft, decode[envelope[assignmentdomain.Assignment]](t, rec).Data.Status)

	rec = doJSON(t, engine, http.MethodPost, "/api/assignments/"+carolSelf.ID.String()+"/submit", carolSession.Token, gin.H{"scores": scores})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/api/assignments/"+carolSelf.ID.String()+"/submit", carolSession.Token, gin.H{"scores": scores})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[errorResponse](t, rec).Error.Type)

	// Self review alone is not enough for a report.
	rec = doJSON(t, engine, http.MethodGet, "/api/reports/"+carol.ID.String(), acme.Token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, engine, http.MethodPost, "/api/assignments/"+bobOnCarol.ID.String()+"/submit", bobSession.Token, gin.H{
		"scores":    scores,
		"strengths": "Reliable",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodGet, "/api/reports/"+carol.ID.String(), acme.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[envelope[struct {
		ReviewCount  int     `json:"review_count"`
		AverageScore float64 `json:"average_score"`
	}]](t, rec).Data
	assert.Equal(t, 1, report.ReviewCount)
	assert.InDelta(t, 4.0, report.AverageScore, 0.001)

	// Managers see their reports, employees do not see their managers.
	rec = doJSON(t, engine, http.MethodGet, "/api/reports/"+carol.ID.String(), bobSession.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, engine, http.MethodGet, "/api/reports/"+bob.ID.String(), carolSession.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/reports/"+carol.ID.String()+"/summary", carolSession.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "AI unavailable")

	rec = doJSON(t, engine, http.MethodGet, "/api/reports/"+carol.ID.String()+"/pdf", acme.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	// Employees cannot export; admins get a BOM-prefixed CSV.
	rec = doJSON(t, engine, http.MethodGet, "/api/exports/users.csv", carolSession.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/exports/assignments.csv", acme.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\xEF\xBB\xBFid,reviewer,subject,relationship,status,cycle"))
	assert.Contains(t, rec.Body.String(), "Bob Boss,Carol Clerk,MANAGER,SUBMITTED")

	rec = doJSON(t, engine, http.MethodGet, "/api/audit-logs?action=assignment.submit", acme.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCredentialRosterDownload(t *testing.T) {
	engine := newTestEngine(t)
	acme := registerAcme(t, engine)

	rec := doJSON(t, engine, http.MethodPost, "/api/users/import?format=csv", acme.Token, gin.H{
		"users": []gin.H{
			{"ref": "m", "name": "Mia Müller", "role": "MANAGER", "department": "Ops"},
			{"ref": "e", "name": "Eli", "manager_ref": "m"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "\xEF\xBB\xBFname,username,password,role,department"))
	assert.Contains(t, body, "Mia Müller")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	assert.Len(t, lines, 3)

	rec = doJSON(t, engine, http.MethodPost, "/api/users/import", acme.Token, gin.H{
		"users": []gin.H{{"name": "Noor"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestBatchResetKeepsCallerPassword(t *testing.T) {
	engine := newTestEngine(t)
	acme := registerAcme(t, engine)
	createUser(t, engine, acme.Token, gin.H{"name": "Dan", "username": "dan", "password": "dan-pass", "role": "EMPLOYEE"})

	rec := doJSON(t, engine, http.MethodPost, "/api/users/reset-passwords", acme.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	creds := decode[envelope[[]userdomain.Credential]](t, rec).Data
	require.Len(t, creds, 1)
	assert.Equal(t, "dan", creds[0].Username)

	login(t, engine, "ada", "admin-pass")
	login(t, engine, "dan", creds[0].Password)
}
