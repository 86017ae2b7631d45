package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/cmsauth"
	redisrate "github.com/MrEthical07/cmsauth/internal/rate"
	promexport "github.com/MrEthical07/cmsauth/metrics/export/prometheus"
	"github.com/MrEthical07/cmsauth/middleware"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sweeper, err := startSweeper(ctx, a.engine, a.cfg.Server.SweepSchedule, a.log)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	if a.cfg.Metrics.Enabled && a.cfg.Metrics.OTel {
		stopOTel, err := startOTel(a.engine, a.cfg.Metrics.OTelInterval, a.log.WithName("otel"))
		if err != nil {
			return err
		}
		defer func() {
			if err := stopOTel(context.Background()); err != nil {
				a.log.Error(err, "otel shutdown")
			}
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Listen,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", srv.Addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// startSweeper runs Engine.Sweep on a standard cron schedule. An empty
// schedule leaves collection to the sweep that runs on every session open.
func startSweeper(ctx context.Context, engine *cmsauth.Engine, schedule string, log logr.Logger) (*cron.Cron, error) {
	c := cron.New()
	if schedule == "" {
		return c, nil
	}
	_, err := c.AddFunc(schedule, func() {
		n, err := engine.Sweep(ctx)
		if err != nil {
			log.Error(err, "scheduled sweep failed")
			return
		}
		log.V(1).Info("scheduled sweep", "removed", n)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// limiter picks the Redis fixed window when Redis is configured, otherwise an
// in-process token bucket with the same average rate.
func (a *app) limiter() middleware.Limiter {
	s := a.cfg.Server
	if s.RateLimit <= 0 || s.RateWindow <= 0 {
		return nil
	}
	if a.redis != nil {
		return redisrate.New(a.redis, redisrate.Config{Limit: s.RateLimit, Window: s.RateWindow})
	}
	return middleware.NewIPLimiter(rate.Every(s.RateWindow/time.Duration(s.RateLimit)), s.RateLimit)
}

func (a *app) handler() http.Handler {
	opts := []middleware.Option{middleware.WithLogger(a.log.WithName("http"))}
	if a.cfg.Server.TrustProxy {
		opts = append(opts, middleware.WithTrustedProxyHeaders())
	}
	authn := middleware.Authenticate(a.engine, opts...)
	csrf := middleware.RequireCSRF(a.engine)

	mux := http.NewServeMux()
	mux.Handle("POST /login", middleware.RateLimit(a.limiter(), opts...)(authn(http.HandlerFunc(a.login))))
	mux.Handle("POST /logout", authn(csrf(http.HandlerFunc(a.logout))))
	mux.Handle("GET /session", authn(http.HandlerFunc(a.session)))
	for _, name := range a.cfg.Resources {
		mux.Handle("/resources/"+name, authn(csrf(middleware.Guard(name, opts...)(http.HandlerFunc(noContent)))))
	}
	if a.cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promexport.NewExporter(a.engine).Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.db.SQL().PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		noContent(w, r)
	})
	return mux
}

func (a *app) login(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthFromContext(r.Context())
	remember, _ := strconv.ParseBool(r.PostFormValue("remember"))

	res, err := auth.Authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"), remember)
	if err != nil {
		a.log.Error(err, "login failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	switch res.Status {
	case cmsauth.LoginSucceeded:
		writeJSON(w, http.StatusOK, map[string]string{"csrf_token": auth.CSRFToken()})
	case cmsauth.LoginLockedOut:
		w.Header().Set("Retry-After", strconv.FormatInt(res.RetryAfter, 10))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"retry_after": res.RetryAfter})
	default:
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}
}

func (a *app) logout(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthFromContext(r.Context())
	if err := auth.Invalidate(r.Context()); err != nil {
		a.log.Error(err, "logout failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	noContent(w, r)
}

func (a *app) session(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthFromContext(r.Context())
	data, ok, err := auth.UserData(r.Context(), "")
	if err != nil {
		a.log.Error(err, "session lookup failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if m, isMap := data.(map[string]any); isMap {
		delete(m, "csrf_token")
	}
	writeJSON(w, http.StatusOK, data)
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
