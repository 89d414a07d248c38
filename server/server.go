package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pryde-social/governance/audit"
	"github.com/pryde-social/governance/governance"
	"github.com/pryde-social/governance/governance/challenge"
	"github.com/pryde-social/governance/governance/tokenstore"
	"github.com/pryde-social/governance/models"

	gojwt "github.com/golang-jwt/jwt"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/gorm"
)

type Server struct {
	db         *gorm.DB
	engine     *governance.Engine
	ledger     *governance.Ledger
	auditor    *audit.Recorder
	tokens     tokenstore.TokenStore
	challenges challenge.ChallengeStore
	verifier   SecondFactorVerifier
	echo       *echo.Echo

	jwtSigningKey []byte
	tokenTTL      time.Duration

	log *slog.Logger
}

type Config struct {
	JWTSigningKey []byte
	// TokenTTL is the escalation token lifetime; zero means the store default.
	TokenTTL   time.Duration
	Tokens     tokenstore.TokenStore
	Challenges challenge.ChallengeStore
	Verifier   SecondFactorVerifier
	Logger     *slog.Logger
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("system", "steward")
	}
	if len(config.JWTSigningKey) == 0 {
		return nil, fmt.Errorf("session JWT signing key is required")
	}

	db.AutoMigrate(&models.Account{})
	db.AutoMigrate(&models.ModerationEvent{})
	db.AutoMigrate(&models.AuditLogEntry{})

	tokens := config.Tokens
	if tokens == nil {
		tokens = tokenstore.NewMemTokenStore()
	}
	challenges := config.Challenges
	if challenges == nil {
		challenges = challenge.NewMemChallengeStore(10_000, challenge.DefaultTTL)
	}
	verifier := config.Verifier
	if verifier == nil {
		verifier = DisabledVerifier{}
	}
	tokenTTL := config.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = tokenstore.DefaultTTL
	}

	auditor := audit.NewRecorder(audit.NewDBSink(db), logger.With("system", "audit"))
	ledger := governance.NewLedger(db)
	engine := governance.NewEngine(logger.With("system", "governance"), ledger, auditor)

	return &Server{
		db:            db,
		engine:        engine,
		ledger:        ledger,
		auditor:       auditor,
		tokens:        tokens,
		challenges:    challenges,
		verifier:      verifier,
		jwtSigningKey: config.JWTSigningKey,
		tokenTTL:      tokenTTL,
		log:           logger,
	}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) RunAPI(listen string) error {
	e := s.buildEcho()
	s.log.Info("starting governance API daemon", "bind", listen)
	return e.Start(listen)
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	s.echo = e
	e.HideBanner = true
	e.Use(slogecho.New(s.log))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("steward"))

	cfg := middleware.JWTConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/health":
				return true
			case "/api/session":
				return true
			default:
				return false
			}
		},
		SigningKey: s.jwtSigningKey,
	}

	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		code := 500
		msg := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = fmt.Sprintf("%v", he.Message)
		} else if errors.Is(err, governance.ErrNoSuchAccount) {
			code = 404
			msg = governance.ErrNoSuchAccount.Error()
		}
		s.log.Warn("HTTP request error", "statusCode", code, "path", ctx.Path(), "err", err)
		if !ctx.Response().Committed {
			ctx.JSON(code, map[string]string{"error": msg})
		}
	}

	e.GET("/health", s.HandleHealthCheck)
	e.Use(middleware.JWTWithConfig(cfg), s.sessionCheckMiddleware)

	e.POST("/api/session", s.HandleCreateSession)
	e.POST("/api/escalation/challenge", s.HandleEscalationChallenge)
	e.POST("/api/escalation", s.HandleCreateEscalation)
	e.DELETE("/api/escalation", s.HandleRevokeEscalation)
	e.POST("/api/moderation/violations", s.HandleRecordViolation)

	admin := e.Group("/api/admin", s.stepUpGateMiddleware)
	admin.GET("/accounts/:id/governance", s.HandleGetGovernance)
	admin.GET("/accounts/:id/events", s.HandleListEvents)
	admin.POST("/accounts/:id/override", s.HandleOverride)
	admin.POST("/accounts/:id/restore", s.HandleRestore)

	return e
}

type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	if err := s.db.Exec("SELECT 1").Error; err != nil {
		s.log.Error("healthcheck can't connect to database", "err", err)
		return c.JSON(500, HealthStatus{Status: "error", Message: "can't connect to database"})
	}
	return c.JSON(200, HealthStatus{Status: "ok"})
}

func toTime(i interface{}) (time.Time, error) {
	ival, ok := i.(float64)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid type for timestamp: %T", i)
	}

	return time.Unix(int64(ival), 0), nil
}

// checkTokenValidity pulls the claims the governance core relies on out of a
// verified session JWT: scope, subject account ID, and the session ID that
// escalation tokens bind to.
func (s *Server) checkTokenValidity(user *gojwt.Token) (scope string, accountID uint, sessionID string, err error) {
	claims, ok := user.Claims.(gojwt.MapClaims)
	if !ok {
		return "", 0, "", fmt.Errorf("invalid token claims map")
	}

	iat, ok := claims["iat"]
	if !ok {
		return "", 0, "", fmt.Errorf("iat not set")
	}

	tiat, err := toTime(iat)
	if err != nil {
		return "", 0, "", err
	}

	if tiat.After(time.Now()) {
		return "", 0, "", fmt.Errorf("iat cannot be in the future")
	}

	exp, ok := claims["exp"]
	if !ok {
		return "", 0, "", fmt.Errorf("exp not set")
	}

	texp, err := toTime(exp)
	if err != nil {
		return "", 0, "", err
	}

	if texp.Before(time.Now()) {
		return "", 0, "", fmt.Errorf("token expired")
	}

	sub, ok := claims["sub"]
	if !ok {
		return "", 0, "", fmt.Errorf("expected account id in subject")
	}

	substr, ok := sub.(string)
	if !ok {
		return "", 0, "", fmt.Errorf("expected subject to be a string")
	}

	id, err := strconv.ParseUint(substr, 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("invalid subject account id: %w", err)
	}

	sid, ok := claims["sid"]
	if !ok {
		return "", 0, "", fmt.Errorf("expected session id to be set")
	}

	sidstr, ok := sid.(string)
	if !ok {
		return "", 0, "", fmt.Errorf("expected session id to be a string")
	}

	scopeval, ok := claims["scope"]
	if !ok {
		return "", 0, "", fmt.Errorf("expected scope to be set")
	}

	scopestr, ok := scopeval.(string)
	if !ok {
		return "", 0, "", fmt.Errorf("expected scope to be a string")
	}

	return scopestr, uint(id), sidstr, nil
}

func (s *Server) sessionCheckMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		user, ok := c.Get("user").(*gojwt.Token)
		if !ok {
			return next(c)
		}

		scope, accountID, sessionID, err := s.checkTokenValidity(user)
		if err != nil {
			return echo.NewHTTPError(401, fmt.Sprintf("invalid token: %s", err))
		}

		acct, err := s.lookupAccountByID(ctx, accountID)
		if err != nil {
			return err
		}

		ctx = context.WithValue(ctx, "authScope", scope)
		ctx = context.WithValue(ctx, "account", acct)
		ctx = context.WithValue(ctx, "sessionID", sessionID)

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (s *Server) lookupAccountByID(ctx context.Context, id uint) (*models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).First(&acct, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, governance.ErrNoSuchAccount
		}
		return nil, err
	}
	return &acct, nil
}

func (s *Server) lookupAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).Find(&acct, "handle = ?", handle).Error; err != nil {
		return nil, err
	}
	if acct.ID == 0 {
		return nil, governance.ErrNoSuchAccount
	}
	return &acct, nil
}

func (s *Server) getAccount(ctx context.Context) (*models.Account, error) {
	acct, ok := ctx.Value("account").(*models.Account)
	if !ok {
		return nil, fmt.Errorf("auth required")
	}

	return acct, nil
}

func (s *Server) getSessionID(ctx context.Context) string {
	sid, _ := ctx.Value("sessionID").(string)
	return sid
}

func (s *Server) getAuthScope(ctx context.Context) string {
	scope, _ := ctx.Value("authScope").(string)
	return scope
}

// EnsureAccount creates an account if the handle is not yet registered.
// Used for service/admin bootstrap; governance fields start zeroed and active.
func (s *Server) EnsureAccount(ctx context.Context, handle, email, password string, role models.Role) (*models.Account, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role: %q", role)
	}
	existing, err := s.lookupAccountByHandle(ctx, handle)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, governance.ErrNoSuchAccount) {
		return nil, err
	}

	hashed, err := encodePassword(password)
	if err != nil {
		return nil, err
	}
	acct := models.Account{
		Handle:           handle,
		Email:            email,
		Password:         hashed,
		Role:             role,
		GovernanceStatus: models.StatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&acct).Error; err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return &acct, nil
}
