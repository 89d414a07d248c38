package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pryde-social/governance/models"
	"github.com/pryde-social/governance/util/cliutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// the prometheus middleware registers on the default registry, so the echo
// instance is built once and shared; tests isolate via distinct accounts
var (
	harnessOnce sync.Once
	harnessSrv  *Server
	harnessEcho *echo.Echo
	harnessDB   *gorm.DB
	harnessErr  error
)

func testHarness(t *testing.T) (*Server, *echo.Echo, *gorm.DB) {
	t.Helper()
	harnessOnce.Do(func() {
		db, err := cliutil.SetupDatabase("sqlite://:memory:", 40)
		if err != nil {
			harnessErr = err
			return
		}
		srv, err := NewServer(db, Config{
			JWTSigningKey: []byte("test-signing-key"),
		})
		if err != nil {
			harnessErr = err
			return
		}
		harnessDB = db
		harnessSrv = srv
		harnessEcho = srv.buildEcho()
	})
	require.NoError(t, harnessErr)
	return harnessSrv, harnessEcho, harnessDB
}

func createTestAccount(t *testing.T, handle, password string, role models.Role) *models.Account {
	t.Helper()
	srv, _, _ := testHarness(t)
	acct, err := srv.EnsureAccount(context.Background(), handle, handle+"@pryde.test", password, role)
	require.NoError(t, err)
	return acct
}

type testRequest struct {
	method  string
	path    string
	body    any
	jwt     string
	headers map[string]string
	cookies []*http.Cookie
}

func doRequest(t *testing.T, req testRequest) *httptest.ResponseRecorder {
	t.Helper()
	_, e, _ := testHarness(t)

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	httpReq := httptest.NewRequest(req.method, req.path, body)
	if req.body != nil {
		httpReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if req.jwt != "" {
		httpReq.Header.Set(echo.HeaderAuthorization, "Bearer "+req.jwt)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	for _, ck := range req.cookies {
		httpReq.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httpReq)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func loginAccount(t *testing.T, handle, password string, service bool) createSessionResponse {
	t.Helper()
	rec := doRequest(t, testRequest{
		method: "POST",
		path:   "/api/session",
		body:   createSessionRequest{Handle: handle, Password: password, Service: service},
	})
	require.Equal(t, 200, rec.Code, "login failed: %s", rec.Body.String())
	return decodeJSON[createSessionResponse](t, rec)
}

// escalateByPassword runs the full password-method step-up for a logged-in
// session and returns the raw escalation token.
func escalateByPassword(t *testing.T, jwt, password string) escalationResponse {
	t.Helper()
	rec := doRequest(t, testRequest{
		method: "POST",
		path:   "/api/escalation",
		body:   createEscalationRequest{Method: "password", Code: password},
		jwt:    jwt,
	})
	require.Equal(t, 200, rec.Code, "escalation failed: %s", rec.Body.String())
	return decodeJSON[escalationResponse](t, rec)
}

func escalationCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == EscalationCookieName {
			return ck
		}
	}
	return nil
}

func governancePath(accountID uint) string {
	return fmt.Sprintf("/api/admin/accounts/%d/governance", accountID)
}
