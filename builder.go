package cmsauth

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/cmsauth/db"
	"github.com/MrEthical07/cmsauth/internal/audit"
	"github.com/MrEthical07/cmsauth/permission"
	"github.com/MrEthical07/cmsauth/session"
)

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config   Config
	database *db.DB

	resources []string
	registry  *permission.Registry

	userProvider UserProvider
	permissions  PermissionSource
	attempts     AttemptStore
	auditSink    AuditSink

	logger logr.Logger
	clock  func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: logr.Discard(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithDatabase injects an open store. Without it Build opens one from
// Config.Database and the engine closes it on [Engine.Close].
func (b *Builder) WithDatabase(store *db.DB) *Builder {
	b.database = store
	return b
}

// WithResources registers resource names in order, ids starting at 1.
func (b *Builder) WithResources(names []string) *Builder {
	b.resources = names
	return b
}

// WithRegistry supplies a prebuilt resource registry, for ids that must match
// an existing grants table. It takes precedence over WithResources.
func (b *Builder) WithRegistry(r *permission.Registry) *Builder {
	b.registry = r
	return b
}

// WithUserProvider sets the credential verifier. If it also implements
// [PermissionSource] or [AttemptStore] it is used for those too, unless they
// are set explicitly.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithPermissionSource sets the per-resource grant lookup.
func (b *Builder) WithPermissionSource(ps PermissionSource) *Builder {
	b.permissions = ps
	return b
}

// WithAttemptStore sets the login-attempt counter store.
func (b *Builder) WithAttemptStore(as AttemptStore) *Builder {
	b.attempts = as
	return b
}

// WithAuditSink sets the audit destination. Audit also has to be enabled in
// Config.Audit.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger.
func (b *Builder) WithLogger(l logr.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authorize latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, ErrUserProviderRequired
	}
	if b.permissions == nil {
		if ps, ok := b.userProvider.(PermissionSource); ok {
			b.permissions = ps
		}
	}
	if b.attempts == nil {
		if as, ok := b.userProvider.(AttemptStore); ok {
			b.attempts = as
		}
	}
	if cfg.Lockout.Enabled() && b.attempts == nil {
		return nil, errors.New("Lockout requires an attempt store")
	}

	log := b.logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}

	// -------- RESOURCE REGISTRY --------
	registry := b.registry
	if registry == nil {
		registry = permission.NewRegistry()
		for _, name := range b.resources {
			if _, err := registry.Register(name); err != nil {
				return nil, err
			}
		}
	}
	registry.Freeze()

	// -------- DATABASE --------
	store := b.database
	ownsDB := false
	if store == nil {
		if cfg.Database.DSN == "" {
			return nil, ErrDatabaseRequired
		}
		dbCfg, err := cfg.Database.DB()
		if err != nil {
			return nil, err
		}
		store, err = db.Open(context.Background(), dbCfg)
		if err != nil {
			return nil, err
		}
		ownsDB = true
	}

	metrics := NewMetrics(cfg.Metrics)

	// -------- SESSION MANAGER --------
	sessions, err := session.NewManager(store, session.Config{
		Table:   db.TablesFor(cfg.Session.TablePrefix).Sessions,
		Salt:    cfg.Session.Salt,
		Timeout: cfg.Session.Timeout,
		Cookie:  cfg.Cookie.options(),
		Logger:  log.WithName("session"),
		Now:     now,
		OnSweep: func(n int64) {
			if n > 0 {
				metrics.Add(MetricSessionsSwept, uint64(n))
			}
		},
	})
	if err != nil {
		if ownsDB {
			_ = store.Close()
		}
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		db:           store,
		ownsDB:       ownsDB,
		sessions:     sessions,
		registry:     registry,
		userProvider: b.userProvider,
		permissions:  b.permissions,
		attempts:     b.attempts,
		metrics:      metrics,
		log:          log,
		now:          now,
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
