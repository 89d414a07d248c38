package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pryde-social/governance/governance/challenge"
	"github.com/pryde-social/governance/governance/tokenstore"
	"github.com/pryde-social/governance/server"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func newServer(db *gorm.DB, logger *slog.Logger, cctx *cli.Context) (*server.Server, error) {
	var tokens tokenstore.TokenStore
	var challenges challenge.ChallengeStore
	if redisURL := cctx.String("redis-url"); redisURL != "" {
		ts, err := tokenstore.NewRedisTokenStore(redisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis tokenstore: %w", err)
		}
		tokens = ts

		cs, err := challenge.NewRedisChallengeStore(redisURL, challenge.DefaultTTL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis challenge store: %w", err)
		}
		challenges = cs
		logger.Info("using redis escalation stores", "url", redisURL)
	} else {
		tokens = tokenstore.NewMemTokenStore()
		challenges = challenge.NewMemChallengeStore(10_000, challenge.DefaultTTL)
		logger.Info("using in-process escalation stores")
	}

	return server.NewServer(db, server.Config{
		JWTSigningKey: []byte(cctx.String("jwt-secret")),
		TokenTTL:      cctx.Duration("escalation-token-ttl"),
		Tokens:        tokens,
		Challenges:    challenges,
		// passkey/TOTP verification is provided by the platform auth service;
		// without it only the password method can mint escalation tokens
		Verifier: server.DisabledVerifier{},
		Logger:   logger,
	})
}

func runMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}
