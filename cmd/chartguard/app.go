package main

import (
	"context"
	"fmt"
	"io"

	"github.com/2389/chartguard/internal/access"
	"github.com/2389/chartguard/internal/audit"
	"github.com/2389/chartguard/internal/auth"
	"github.com/2389/chartguard/internal/config"
	"github.com/2389/chartguard/internal/session"
	"github.com/2389/chartguard/internal/store"
)

// app wires the components over one store for a single CLI invocation.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	handler  session.Handler
	sessions *session.Manager
	engine   *auth.Engine
	access   *access.Controller
	audit    *audit.Sink
	out      io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var handler session.Handler
	switch cfg.Session.Backend {
	case "redis":
		handler = session.NewRedisHandler(session.RedisConfig{
			Addr: cfg.Session.Redis.Addr,
			DB:   cfg.Session.Redis.DB,
			TTL:  cfg.Session.Lifetime,
		}, nil)
	default:
		handler = session.NewSQLHandler(st, nil)
	}
	if err := handler.Open(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("opening session backend: %w", err)
	}

	sink := audit.NewSink(st)

	authCfg := auth.DefaultConfig()
	authCfg.MaxAttempts = cfg.Auth.MaxAttempts
	authCfg.LockoutMinutes = cfg.Auth.LockoutMinutes
	authCfg.MinPasswordLength = cfg.Auth.MinPasswordLength
	authCfg.UnknownUserDelay = cfg.Auth.UnknownUserDelay

	return &app{
		cfg:     cfg,
		store:   st,
		handler: handler,
		sessions: session.NewManager(handler,
			session.WithLifetime(cfg.Session.Lifetime),
			session.WithAuditLogger(sink),
		),
		engine: auth.NewEngine(st, sink, authCfg, auth.WithSessionRevoker(handler)),
		access: access.New(st, st, access.WithAuditLogger(sink)),
		audit:  sink,
		out:    out,
	}, nil
}

// Close releases the session backend and the database.
func (a *app) Close() error {
	herr := a.handler.Close()
	if err := a.store.Close(); err != nil {
		return err
	}
	return herr
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "init":
		return a.cmdInit()
	case "user":
		return a.cmdUser(ctx, rest)
	case "client":
		return a.cmdClient(ctx, rest)
	case "assign":
		return a.cmdAssign(ctx, rest)
	case "unassign":
		return a.cmdUnassign(ctx, rest)
	case "supervise":
		return a.cmdSupervise(ctx, rest)
	case "unsupervise":
		return a.cmdUnsupervise(ctx, rest)
	case "access":
		return a.cmdAccess(ctx, rest)
	case "login":
		return a.cmdLogin(ctx, rest)
	case "sessions":
		return a.cmdSessions(ctx, rest)
	case "audit":
		return a.cmdAudit(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
