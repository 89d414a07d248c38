package server

import (
	"net/http"
	"testing"

	"github.com/pryde-social/governance/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateRejectsUnprivilegedRole(t *testing.T) {
	assert := assert.New(t)
	target := createTestAccount(t, "gate-target.test", "hunter2hunter2", models.RoleUser)
	createTestAccount(t, "gate-user.test", "hunter2hunter2", models.RoleUser)
	sess := loginAccount(t, "gate-user.test", "hunter2hunter2", false)

	rec := doRequest(t, testRequest{method: "GET", path: governancePath(target.ID), jwt: sess.AccessJwt})
	assert.Equal(403, rec.Code)
	assert.Contains(rec.Body.String(), "admin role required")
	// a role rejection never touches the escalation cookie
	assert.Nil(escalationCookie(rec))
}

func TestGateRequiresEscalationToken(t *testing.T) {
	assert := assert.New(t)
	target := createTestAccount(t, "gate-target2.test", "hunter2hunter2", models.RoleUser)
	createTestAccount(t, "gate-admin.test", "hunter2hunter2", models.RoleAdmin)
	sess := loginAccount(t, "gate-admin.test", "hunter2hunter2", false)

	// an admin session JWT alone is never enough
	rec := doRequest(t, testRequest{method: "GET", path: governancePath(target.ID), jwt: sess.AccessJwt})
	assert.Equal(403, rec.Code)
	assert.Contains(rec.Body.String(), "escalation required")
}

func TestGateRejectsBogusToken(t *testing.T) {
	assert := assert.New(t)
	target := createTestAccount(t, "gate-target3.test", "hunter2hunter2", models.RoleUser)
	createTestAccount(t, "gate-admin3.test", "hunter2hunter2", models.RoleAdmin)
	sess := loginAccount(t, "gate-admin3.test", "hunter2hunter2", false)

	rec := doRequest(t, testRequest{
		method:  "GET",
		path:    governancePath(target.ID),
		jwt:     sess.AccessJwt,
		headers: map[string]string{EscalationHeaderName: "no-such-token"},
	})
	assert.Equal(403, rec.Code)
	assert.Contains(rec.Body.String(), "escalation invalid")

	// the stale cookie gets cleared
	ck := escalationCookie(rec)
	require.NotNil(t, ck)
	assert.Less(ck.MaxAge, 0)
}

func TestGatePasswordEscalationFlow(t *testing.T) {
	assert := assert.New(t)
	target := createTestAccount(t, "gate-target4.test", "hunter2hunter2", models.RoleUser)
	createTestAccount(t, "gate-admin4.test", "hunter2hunter2", models.RoleAdmin)
	sess := loginAccount(t, "gate-admin4.test", "hunter2hunter2", false)
	esc := escalateByPassword(t, sess.AccessJwt, "hunter2hunter2")

	// token via header
	rec := doRequest(t, testRequest{
		method:  "GET",
		path:    governancePath(target.ID),
		jwt:     sess.AccessJwt,
		headers: map[string]string{EscalationHeaderName: esc.Token},
	})
	assert.Equal(200, rec.Code, rec.Body.String())

	// token via cookie
	rec = doRequest(t, testRequest{
		method:  "GET",
		path:    governancePath(target.ID),
		jwt:     sess.AccessJwt,
		cookies: []*http.Cookie{{Name: EscalationCookieName, Value: esc.Token}},
	})
	assert.Equal(200, rec.Code, rec.Body.String())
}

func TestGateTokenBoundToSession(t *testing.T) {
	assert := assert.New(t)
	target := createTestAccount(t, "gate-target5.test", "hunter2hunter2", models.RoleUser)
	createTestAccount(t, "gate-admin5.test", "hunter2hunter2", models.RoleAdmin)

	first := loginAccount(t, "gate-admin5.test", "hunter2hunter2", false)
	esc := escalateByPassword(t, first.AccessJwt, "hunter2hunter2")

	// a second login is a fresh session; the first session's token is
	// rejected there exactly like a token that never existed
	second := loginAccount(t, "gate-admin5.test", "hunter2hunter2", false)
	rec := doRequest(t, testRequest{
		method:  "GET",
		path:    governancePath(target.ID),
		jwt:     second.AccessJwt,
		headers: map[string]string{EscalationHeaderName: esc.Token},
	})
	assert.Equal(403, rec.Code)
	assert.Contains(rec.Body.String(), "escalation invalid")

	// still valid under its own session
	rec = doRequest(t, testRequest{
		method:  "GET",
		path:    governancePath(target.ID),
		jwt:     first.AccessJwt,
		headers: map[string]string{EscalationHeaderName: esc.Token},
	})
	assert.Equal(200, rec.Code)
}

func TestGateRevocation(t *testing.T) {
	assert := assert.New(t)
	target := createTestAccount(t, "gate-target6.test", "hunter2hunter2", models.RoleUser)
	createTestAccount(t, "gate-admin6.test", "hunter2hunter2", models.RoleAdmin)
	sess := loginAccount(t, "gate-admin6.test", "hunter2hunter2", false)
	esc := escalateByPassword(t, sess.AccessJwt, "hunter2hunter2")

	rec := doRequest(t, testRequest{
		method: "DELETE",
		path:   "/api/escalation",
		body:   revokeEscalationRequest{Reason: "stepping away"},
		jwt:    sess.AccessJwt,
	})
	require.Equal(t, 200, rec.Code)
	resp := decodeJSON[revokeEscalationResponse](t, rec)
	assert.GreaterOrEqual(resp.Revoked, 1)

	// the revoked token no longer passes the gate
	rec = doRequest(t, testRequest{
		method:  "GET",
		path:    governancePath(target.ID),
		jwt:     sess.AccessJwt,
		headers: map[string]string{EscalationHeaderName: esc.Token},
	})
	assert.Equal(403, rec.Code)
	assert.Contains(rec.Body.String(), "escalation invalid")
}

func TestEscalationSecondFactorRejected(t *testing.T) {
	assert := assert.New(t)
	createTestAccount(t, "gate-admin7.test", "hunter2hunter2", models.RoleAdmin)
	sess := loginAccount(t, "gate-admin7.test", "hunter2hunter2", false)

	// wrong password
	rec := doRequest(t, testRequest{
		method: "POST",
		path:   "/api/escalation",
		body:   createEscalationRequest{Method: "password", Code: "wrong-password"},
		jwt:    sess.AccessJwt,
	})
	assert.Equal(403, rec.Code)
	assert.Contains(rec.Body.String(), "second factor verification failed")

	// totp with no verification backend configured
	rec = doRequest(t, testRequest{
		method: "POST",
		path:   "/api/escalation",
		body:   createEscalationRequest{Method: "totp", Code: "123456"},
		jwt:    sess.AccessJwt,
	})
	assert.Equal(403, rec.Code)

	// unknown method
	rec = doRequest(t, testRequest{
		method: "POST",
		path:   "/api/escalation",
		body:   createEscalationRequest{Method: "carrier-pigeon"},
		jwt:    sess.AccessJwt,
	})
	assert.Equal(400, rec.Code)
}

func TestEscalationRequiresPrivilegedRole(t *testing.T) {
	assert := assert.New(t)
	createTestAccount(t, "gate-user8.test", "hunter2hunter2", models.RoleUser)
	sess := loginAccount(t, "gate-user8.test", "hunter2hunter2", false)

	rec := doRequest(t, testRequest{
		method: "POST",
		path:   "/api/escalation",
		body:   createEscalationRequest{Method: "password", Code: "hunter2hunter2"},
		jwt:    sess.AccessJwt,
	})
	assert.Equal(403, rec.Code)

	rec = doRequest(t, testRequest{method: "POST", path: "/api/escalation/challenge", jwt: sess.AccessJwt})
	assert.Equal(403, rec.Code)
}

func TestEscalationChallenge(t *testing.T) {
	assert := assert.New(t)
	createTestAccount(t, "gate-admin9.test", "hunter2hunter2", models.RoleAdmin)
	sess := loginAccount(t, "gate-admin9.test", "hunter2hunter2", false)

	rec := doRequest(t, testRequest{method: "POST", path: "/api/escalation/challenge", jwt: sess.AccessJwt})
	require.Equal(t, 200, rec.Code)
	resp := decodeJSON[escalationChallengeResponse](t, rec)
	assert.NotEmpty(resp.Challenge)
	assert.Greater(resp.ExpiresInSecs, int64(0))

	// passkey verification consumes the challenge; with no backend configured
	// the attempt fails but does not error
	rec = doRequest(t, testRequest{
		method: "POST",
		path:   "/api/escalation",
		body:   createEscalationRequest{Method: "passkey", Assertion: "sig"},
		jwt:    sess.AccessJwt,
	})
	assert.Equal(403, rec.Code)
}
