package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/pryde-social/governance/models"
	"github.com/pryde-social/governance/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "steward",
		Usage:   "governance daemon (strikes, escalation, step-up auth)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.IntFlag{
			Name:    "max-metadb-connections",
			EnvVars: []string{"MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the governance service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/steward/governance.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection for escalation tokens and passkey challenges (eg: redis://localhost:6379/0); in-process stores when empty",
			EnvVars: []string{"STEWARD_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3983",
			EnvVars: []string{"STEWARD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3984",
			EnvVars: []string{"STEWARD_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:     "jwt-secret",
			Usage:    "HMAC signing secret for session JWTs",
			Required: true,
			EnvVars:  []string{"STEWARD_JWT_SECRET"},
		},
		&cli.DurationFlag{
			Name:    "escalation-token-ttl",
			Usage:   "lifetime of step-up escalation tokens",
			Value:   15 * time.Minute,
			EnvVars: []string{"STEWARD_ESCALATION_TOKEN_TTL"},
		},
		&cli.StringFlag{
			Name:    "admin-handle",
			Usage:   "bootstrap an admin account with this handle if it does not exist",
			EnvVars: []string{"STEWARD_ADMIN_HANDLE"},
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "password for the bootstrap admin account",
			EnvVars: []string{"STEWARD_ADMIN_PASSWORD"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := cliutil.SetupSlog(slog.LevelInfo)

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			slog.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				log.Fatal("failed to create trace exporter", "error", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					slog.Error("failed to shutdown trace exporter", "error", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("steward"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
					attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-metadb-connections"))
		if err != nil {
			return err
		}

		srv, err := newServer(db, logger, cctx)
		if err != nil {
			return err
		}

		if handle := cctx.String("admin-handle"); handle != "" {
			passwd := cctx.String("admin-password")
			if passwd == "" {
				return fmt.Errorf("admin-password is required when bootstrapping admin-handle")
			}
			acct, err := srv.EnsureAccount(ctx, handle, "", passwd, models.RoleAdmin)
			if err != nil {
				return fmt.Errorf("bootstrapping admin account: %w", err)
			}
			logger.Info("admin account ready", "handle", acct.Handle, "accountID", acct.ID)
		}

		go func() {
			if err := runMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.RunAPI(cctx.String("bind")); err != nil {
			return fmt.Errorf("failed to run governance service: %w", err)
		}
		return nil
	},
}
