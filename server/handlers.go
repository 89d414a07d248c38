package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/pryde-social/governance/audit"
	"github.com/pryde-social/governance/governance"
	"github.com/pryde-social/governance/governance/challenge"
	"github.com/pryde-social/governance/governance/tokenstore"
	"github.com/pryde-social/governance/models"

	"github.com/labstack/echo/v4"
)

type createSessionRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
	// Service requests a pipeline-scoped session for the violation intake;
	// only moderator-level accounts may hold one.
	Service bool `json:"service,omitempty"`
}

type createSessionResponse struct {
	AccessJwt string      `json:"accessJwt"`
	Handle    string      `json:"handle"`
	AccountID uint        `json:"accountId"`
	Role      models.Role `json:"role"`
}

func (s *Server) HandleCreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	if req.Handle == "" || req.Password == "" {
		return echo.NewHTTPError(400, "handle and password are required")
	}

	acct, err := s.lookupAccountByHandle(ctx, req.Handle)
	if err != nil {
		if errors.Is(err, governance.ErrNoSuchAccount) {
			return echo.NewHTTPError(401, ErrInvalidUsernameOrPassword.Error())
		}
		return err
	}
	if err := verifyPassword(acct.Password, req.Password); err != nil {
		return echo.NewHTTPError(401, ErrInvalidUsernameOrPassword.Error())
	}

	scope := ScopeAccess
	if req.Service {
		if !canSubmitViolations(ScopeService, acct.Role) {
			return echo.NewHTTPError(403, "account not eligible for a service session")
		}
		scope = ScopeService
	}

	// login is one of the two lazy decay points (the other is a new violation)
	if err := s.ledger.RefreshDecay(ctx, acct.ID, time.Now()); err != nil {
		return err
	}

	jwt, _, err := s.createSessionToken(ctx, acct.ID, scope)
	if err != nil {
		return err
	}

	return c.JSON(200, createSessionResponse{
		AccessJwt: jwt,
		Handle:    acct.Handle,
		AccountID: acct.ID,
		Role:      acct.Role,
	})
}

// canSubmitViolations: the upstream classifier holds a service-scoped
// session; moderators and admins may also file confirmed violations by hand.
func canSubmitViolations(scope string, role models.Role) bool {
	if scope == ScopeService {
		return true
	}
	switch role {
	case models.RoleModerator, models.RoleAdmin, models.RoleSuperAdmin:
		return true
	default:
		return false
	}
}

type escalationChallengeResponse struct {
	Challenge     string `json:"challenge"`
	ExpiresInSecs int64  `json:"expiresInSecs"`
}

func (s *Server) HandleEscalationChallenge(c echo.Context) error {
	ctx := c.Request().Context()

	acct, err := s.getAccount(ctx)
	if err != nil {
		return echo.NewHTTPError(401, "authentication required")
	}
	if !acct.Role.Privileged() {
		return echo.NewHTTPError(403, "admin role required")
	}

	buf := make([]byte, 32)
	rand.Read(buf)
	chal := base64.RawURLEncoding.EncodeToString(buf)

	if err := s.challenges.Put(ctx, acct.ID, chal); err != nil {
		return err
	}

	return c.JSON(200, escalationChallengeResponse{
		Challenge:     chal,
		ExpiresInSecs: int64(challenge.DefaultTTL / time.Second),
	})
}

type createEscalationRequest struct {
	Method string `json:"method"`
	// Code carries the TOTP code or the account password, per Method.
	Code string `json:"code,omitempty"`
	// Assertion carries the signed passkey assertion.
	Assertion string `json:"assertion,omitempty"`
}

type escalationResponse struct {
	Token     string    `json:"token"`
	Method    string    `json:"method"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) HandleCreateEscalation(c echo.Context) error {
	ctx := c.Request().Context()

	acct, err := s.getAccount(ctx)
	if err != nil {
		return echo.NewHTTPError(401, "authentication required")
	}
	if !acct.Role.Privileged() {
		return echo.NewHTTPError(403, "admin role required")
	}

	var req createEscalationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	method := tokenstore.Method(req.Method)
	if !method.Valid() {
		return echo.NewHTTPError(400, "method must be one of: passkey, totp, password")
	}

	ok, err := s.verifySecondFactor(ctx, acct, method, req)
	if err != nil {
		return err
	}
	if !ok {
		escalationDeniedCount.WithLabelValues(method.String()).Inc()
		s.log.Warn("second factor verification failed", "account", acct.ID, "method", method)
		return echo.NewHTTPError(403, "second factor verification failed")
	}

	tok, err := s.tokens.CreateToken(ctx, acct.ID, s.getSessionID(ctx), method, s.tokenTTL)
	if err != nil {
		return err
	}
	s.setEscalationCookie(c, tok.Token)
	escalationGrantCount.WithLabelValues(method.String()).Inc()

	s.recordEscalationAudit(c, acct, "escalation_grant", method.String(), map[string]any{"expiresAt": tok.ExpiresAt})

	return c.JSON(200, escalationResponse{
		Token:     tok.Token,
		Method:    tok.Method.String(),
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
	})
}

func (s *Server) verifySecondFactor(ctx context.Context, acct *models.Account, method tokenstore.Method, req createEscalationRequest) (bool, error) {
	switch method {
	case tokenstore.MethodTOTP:
		return s.verifier.VerifyTOTP(ctx, acct.ID, req.Code)
	case tokenstore.MethodPasskey:
		chal, err := s.challenges.Take(ctx, acct.ID)
		if err != nil {
			if errors.Is(err, challenge.ErrChallengeNotFound) {
				return false, nil
			}
			return false, err
		}
		return s.verifier.VerifyPasskey(ctx, acct.ID, chal, req.Assertion)
	case tokenstore.MethodPassword:
		return verifyPassword(acct.Password, req.Code) == nil, nil
	default:
		return false, nil
	}
}

type revokeEscalationRequest struct {
	Reason string `json:"reason,omitempty"`
}

type revokeEscalationResponse struct {
	Revoked int `json:"revoked"`
}

func (s *Server) HandleRevokeEscalation(c echo.Context) error {
	ctx := c.Request().Context()

	acct, err := s.getAccount(ctx)
	if err != nil {
		return echo.NewHTTPError(401, "authentication required")
	}

	var req revokeEscalationRequest
	c.Bind(&req)
	reason := req.Reason
	if reason == "" {
		reason = "logout"
	}

	count, err := s.tokens.RevokeAllForAccount(ctx, acct.ID, reason)
	if err != nil {
		return err
	}
	s.clearEscalationCookie(c)
	escalationRevokeCount.Inc()

	s.recordEscalationAudit(c, acct, "escalation_revoke", "", map[string]any{"reason": reason, "revoked": count})

	return c.JSON(200, revokeEscalationResponse{Revoked: count})
}

type recordViolationRequest struct {
	AccountID uint                     `json:"accountId"`
	Category  string                   `json:"category"`
	EventMeta governance.ViolationMeta `json:"eventMeta"`
}

type violationOutcomeResponse struct {
	Status          models.Status `json:"status"`
	Action          string        `json:"action"`
	RestrictedUntil *time.Time    `json:"restrictedUntil,omitempty"`
}

func (s *Server) HandleRecordViolation(c echo.Context) error {
	ctx := c.Request().Context()

	acct, err := s.getAccount(ctx)
	if err != nil {
		return echo.NewHTTPError(401, "authentication required")
	}
	if !canSubmitViolations(s.getAuthScope(ctx), acct.Role) {
		return echo.NewHTTPError(403, "violation intake requires a service or moderator credential")
	}

	var req recordViolationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	if req.AccountID == 0 {
		return echo.NewHTTPError(400, "accountId is required")
	}
	category := models.Category(req.Category)
	if !category.Valid() {
		return echo.NewHTTPError(400, "category must be one of: post, comment, dm")
	}

	out, err := s.engine.ProcessViolation(ctx, req.AccountID, category, req.EventMeta, governance.ActorMeta{
		ActorID:   acct.ID,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	return c.JSON(200, violationOutcomeResponse{
		Status:          out.Status,
		Action:          out.Action,
		RestrictedUntil: out.RestrictedUntil,
	})
}

type governanceView struct {
	AccountID        uint          `json:"accountId"`
	Handle           string        `json:"handle"`
	GovernanceStatus models.Status `json:"governanceStatus"`
	RestrictedUntil  *time.Time    `json:"restrictedUntil,omitempty"`
	PostStrikes      int           `json:"postStrikes"`
	CommentStrikes   int           `json:"commentStrikes"`
	DmStrikes        int           `json:"dmStrikes"`
	GlobalStrikes    int           `json:"globalStrikes"`
	BehaviorScore    float64       `json:"behaviorScore"`
	LastViolationAt  *time.Time    `json:"lastViolationAt,omitempty"`
}

func (s *Server) HandleGetGovernance(c echo.Context) error {
	ctx := c.Request().Context()

	targetID, err := accountIDParam(c)
	if err != nil {
		return err
	}
	acct, err := s.ledger.GetAccount(ctx, targetID)
	if err != nil {
		return err
	}

	return c.JSON(200, governanceView{
		AccountID:        acct.ID,
		Handle:           acct.Handle,
		GovernanceStatus: acct.GovernanceStatus,
		RestrictedUntil:  acct.RestrictedUntil,
		PostStrikes:      acct.PostStrikes,
		CommentStrikes:   acct.CommentStrikes,
		DmStrikes:        acct.DmStrikes,
		GlobalStrikes:    acct.GlobalStrikes,
		BehaviorScore:    acct.BehaviorScore,
		LastViolationAt:  acct.LastViolationAt,
	})
}

func (s *Server) HandleListEvents(c echo.Context) error {
	ctx := c.Request().Context()

	targetID, err := accountIDParam(c)
	if err != nil {
		return err
	}
	limit := 50
	if lim := c.QueryParam("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil {
			return echo.NewHTTPError(400, "invalid limit")
		}
		limit = n
	}

	rows, err := s.ledger.ListEvents(ctx, targetID, limit)
	if err != nil {
		return err
	}
	return c.JSON(200, map[string]any{"events": rows})
}

type overrideRequest struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (s *Server) HandleOverride(c echo.Context) error {
	ctx := c.Request().Context()

	targetID, err := accountIDParam(c)
	if err != nil {
		return err
	}
	actor, err := s.getAccount(ctx)
	if err != nil {
		return echo.NewHTTPError(401, "authentication required")
	}

	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "invalid request body")
	}
	otype := governance.OverrideType(req.Type)
	if !otype.Valid() {
		return echo.NewHTTPError(400, "type must be one of: unrestrict, clear_strikes, reset_behavior_score, restore")
	}
	if req.Reason == "" {
		return echo.NewHTTPError(400, "reason is required")
	}

	acct, err := s.engine.OverrideAccount(ctx, governance.OverrideRequest{
		AccountID: targetID,
		Type:      otype,
		ActorID:   actor.ID,
		Reason:    req.Reason,
	}, s.actorMeta(c, actor))
	if err != nil {
		return err
	}

	return c.JSON(200, governanceView{
		AccountID:        acct.ID,
		Handle:           acct.Handle,
		GovernanceStatus: acct.GovernanceStatus,
		RestrictedUntil:  acct.RestrictedUntil,
		PostStrikes:      acct.PostStrikes,
		CommentStrikes:   acct.CommentStrikes,
		DmStrikes:        acct.DmStrikes,
		GlobalStrikes:    acct.GlobalStrikes,
		BehaviorScore:    acct.BehaviorScore,
		LastViolationAt:  acct.LastViolationAt,
	})
}

type restoreRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) HandleRestore(c echo.Context) error {
	ctx := c.Request().Context()

	targetID, err := accountIDParam(c)
	if err != nil {
		return err
	}
	actor, err := s.getAccount(ctx)
	if err != nil {
		return echo.NewHTTPError(401, "authentication required")
	}

	var req restoreRequest
	c.Bind(&req)
	reason := req.Reason
	if reason == "" {
		reason = "admin restore"
	}

	acct, err := s.engine.RestoreAccount(ctx, targetID, reason, s.actorMeta(c, actor))
	if err != nil {
		return err
	}

	return c.JSON(200, governanceView{
		AccountID:        acct.ID,
		Handle:           acct.Handle,
		GovernanceStatus: acct.GovernanceStatus,
		RestrictedUntil:  acct.RestrictedUntil,
		PostStrikes:      acct.PostStrikes,
		CommentStrikes:   acct.CommentStrikes,
		DmStrikes:        acct.DmStrikes,
		GlobalStrikes:    acct.GlobalStrikes,
		BehaviorScore:    acct.BehaviorScore,
		LastViolationAt:  acct.LastViolationAt,
	})
}

func accountIDParam(c echo.Context) (uint, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(400, "invalid account id")
	}
	return uint(id), nil
}

// actorMeta captures actor identity plus the escalation metadata the gate
// attached, so downstream audit rows carry the second-factor method used.
func (s *Server) actorMeta(c echo.Context, actor *models.Account) governance.ActorMeta {
	meta := governance.ActorMeta{
		ActorID:   actor.ID,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	if esc, ok := c.Request().Context().Value("escalation").(*tokenstore.EscalationToken); ok {
		meta.EscalationMethod = esc.Method.String()
	}
	return meta
}

func (s *Server) recordEscalationAudit(c echo.Context, acct *models.Account, action, method string, details map[string]any) {
	s.auditor.RecordAction(c.Request().Context(), audit.Entry{
		ActorID:          acct.ID,
		Action:           action,
		TargetType:       "account",
		TargetID:         strconv.FormatUint(uint64(acct.ID), 10),
		Details:          details,
		EscalationMethod: method,
		IPAddress:        c.RealIP(),
		UserAgent:        c.Request().UserAgent(),
	})
}
