package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	api "github.com/mind-engage/schooltests/internal/api/http"
	"github.com/mind-engage/schooltests/internal/attempt"
	auth "github.com/mind-engage/schooltests/internal/auth/middleware"
	"github.com/mind-engage/schooltests/internal/config"
	"github.com/mind-engage/schooltests/internal/db"
	"github.com/mind-engage/schooltests/internal/exam"
	"github.com/mind-engage/schooltests/internal/identity"
	"github.com/mind-engage/schooltests/internal/logger"
	"github.com/mind-engage/schooltests/internal/provision"
	"github.com/mind-engage/schooltests/internal/school"
	"github.com/mind-engage/schooltests/internal/stats"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

func main() {
	config.LoadDotEnv()
	cfg := config.FromEnv()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("db open failed")
	}
	defer dbh.Close()

	// --- Identity ---
	var deny identity.Denylist = identity.NewMemoryDenylist()
	if cfg.RedisAddr != "" {
		rdb, err := identity.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable")
		}
		defer rdb.Close()
		deny = identity.NewRedisDenylist(rdb)
	}
	ids := identity.NewProvider(dbh, identity.Options{
		Secret:     cfg.AuthHMACSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
		Denylist:   deny,
	})
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		u, created, err := ids.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("admin bootstrap failed")
		}
		if created {
			log.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("admin account created")
		}
	}

	events := syncx.NewEventRepo(dbh)
	directory := school.NewSQLStore(dbh)
	authn := auth.NewAuthenticator(ids, directory)
	ids.OnChange(authn.HandleIdentityEvent)

	tests := exam.NewSQLStore(dbh)
	attempts := attempt.NewManager(tests, attempt.NewSQLStore(dbh, events), attempt.Options{Tick: cfg.CountdownTick})
	defer attempts.Close()

	vault := provision.NewVault(dbh, cfg.CredentialSealKey, cfg.CredentialRevealTTL)
	go purgeReveals(ctx, vault)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(logger.Middleware()...)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Provisioning carries its own permissive CORS layer.
	(&provision.Handler{
		Sessions: authn,
		Accounts: ids,
		Profiles: directory,
		Vault:    vault,
		Events:   events,
	}).Mount(r)

	r.Group(func(ar chi.Router) {
		ar.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: cfg.Mode == config.ModeOnline,
			MaxAge:           300,
		}))
		api.Mount(ar, api.Deps{
			Identity:     ids,
			Auth:         authn,
			Schools:      school.NewService(directory),
			Tests:        exam.NewService(tests, directory, events),
			Attempts:     attempts,
			Stats:        stats.NewSQLSource(dbh),
			Events:       events,
			EnableSignUp: cfg.EnableSignUp,
		})
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("mode", string(cfg.Mode)).Str("db", cfg.DBDriver).Msg("gateway listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func purgeReveals(ctx context.Context, v *provision.Vault) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := v.Purge(ctx); err != nil {
				log.Warn().Err(err).Msg("credential reveal purge failed")
			} else if n > 0 {
				log.Info().Int64("purged", n).Msg("expired credential reveals removed")
			}
		}
	}
}
