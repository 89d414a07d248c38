package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// EscalationCookieName carries the raw escalation token between requests.
const EscalationCookieName = "pryde_escalation"

// EscalationHeaderName is the non-browser transport for admin tooling.
const EscalationHeaderName = "X-Escalation-Token"

// stepUpGateMiddleware guards every privileged route. A request proceeds only
// when the session belongs to a privileged role AND presents a currently
// valid escalation token bound to that same session; a session JWT alone is
// never enough. The gate consumes prior grants but never issues or extends
// them.
//
// On an invalid or expired token the client cookie is cleared so a stale
// token cannot linger suggesting escalation is still active.
func (s *Server) stepUpGateMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		acct, err := s.getAccount(ctx)
		if err != nil {
			gateCheckCount.WithLabelValues("unauthenticated").Inc()
			return echo.NewHTTPError(401, "authentication required")
		}

		if !acct.Role.Privileged() {
			// no token is consumed or cleared on a role rejection
			gateCheckCount.WithLabelValues("forbidden").Inc()
			return echo.NewHTTPError(403, "admin role required")
		}

		token := s.escalationTokenFromRequest(c)
		if token == "" {
			gateCheckCount.WithLabelValues("escalation_required").Inc()
			return echo.NewHTTPError(403, "escalation required: verify a second factor to proceed")
		}

		rec, err := s.tokens.VerifyToken(ctx, token, acct.ID, s.getSessionID(ctx))
		if err != nil {
			// expired, revoked, wrong session, unknown: all identical here
			s.clearEscalationCookie(c)
			gateCheckCount.WithLabelValues("escalation_invalid").Inc()
			return echo.NewHTTPError(403, "escalation invalid: verify a second factor to proceed")
		}

		gateCheckCount.WithLabelValues("ok").Inc()
		ctx = context.WithValue(ctx, "escalation", rec)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (s *Server) escalationTokenFromRequest(c echo.Context) string {
	if hdr := c.Request().Header.Get(EscalationHeaderName); hdr != "" {
		return hdr
	}
	cookie, err := c.Cookie(EscalationCookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) setEscalationCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     EscalationCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearEscalationCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     EscalationCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
