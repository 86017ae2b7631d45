package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/cmsauth"
	"github.com/MrEthical07/cmsauth/db"
	"github.com/MrEthical07/cmsauth/internal/limiters"
	"github.com/MrEthical07/cmsauth/password"
	"github.com/MrEthical07/cmsauth/sqlstore"
)

// app holds the collaborators shared by the commands.
type app struct {
	cfg    *fileConfig
	log    logr.Logger
	db     *db.DB
	store  *sqlstore.Store
	engine *cmsauth.Engine

	redis redis.UniversalClient
	mini  *miniredis.Miniredis
}

func newHasher(c passwordConfig) (*password.Argon2, error) {
	return password.NewArgon2(password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	})
}

// newApp opens the database and builds the engine. The SQL store answers
// credentials, grants and, without Redis, login attempts.
func newApp(ctx context.Context, cfg *fileConfig, log logr.Logger) (*app, error) {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return nil, err
	}
	dbCfg, err := engineCfg.Database.DB()
	if err != nil {
		return nil, err
	}
	if dbCfg.DSN == "" {
		return nil, cmsauth.ErrDatabaseRequired
	}

	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: conn}
	a.store = sqlstore.New(conn, cfg.Session.TablePrefix, hasher, sqlstore.WithLogger(log.WithName("users")))

	// -------- REDIS --------
	switch cfg.Server.Redis {
	case "":
	case "memory":
		a.mini, err = miniredis.Run()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		a.redis = redis.NewClient(&redis.Options{Addr: a.mini.Addr()})
	default:
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Server.Redis})
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	// -------- ENGINE --------
	b := cmsauth.New().
		WithConfig(engineCfg).
		WithDatabase(conn).
		WithResources(cfg.Resources).
		WithUserProvider(a.store).
		WithLogger(log)
	if a.redis != nil {
		b.WithAttemptStore(limiters.NewLoginAttempts(a.redis, "cmsauth:", engineCfg.Lockout.Duration))
	}
	if engineCfg.Audit.Enabled {
		b.WithAuditSink(cmsauth.NewJSONWriterSink(os.Stdout))
	}
	a.engine, err = b.Build()
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.log.Error(err, "engine close")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.mini != nil {
		a.mini.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
