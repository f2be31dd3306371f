// Command provisiond serves only the account provisioning endpoints, for
// deployments that keep them off the main gateway.
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
	"github.com/rs/zerolog/log"

	auth "github.com/mind-engage/schooltests/internal/auth/middleware"
	"github.com/mind-engage/schooltests/internal/config"
	"github.com/mind-engage/schooltests/internal/db"
	"github.com/mind-engage/schooltests/internal/identity"
	"github.com/mind-engage/schooltests/internal/logger"
	"github.com/mind-engage/schooltests/internal/provision"
	"github.com/mind-engage/schooltests/internal/school"
	syncx "github.com/mind-engage/schooltests/internal/sync"
)

func main() {
	config.LoadDotEnv()
	cfg := config.FromEnv()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("db open failed")
	}
	defer dbh.Close()

	// Sign-outs made on the gateway are only visible here through redis.
	var deny identity.Denylist = identity.NewMemoryDenylist()
	if cfg.RedisAddr != "" {
		rdb, err := identity.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable")
		}
		defer rdb.Close()
		deny = identity.NewRedisDenylist(rdb)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, revoked tokens are not shared with the gateway")
	}
	ids := identity.NewProvider(dbh, identity.Options{
		Secret:     cfg.AuthHMACSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
		Denylist:   deny,
	})
	directory := school.NewSQLStore(dbh)
	authn := auth.NewAuthenticator(ids, directory)
	ids.OnChange(authn.HandleIdentityEvent)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(logger.Middleware()...)
	r.Use(middleware.Recoverer)
	(&provision.Handler{
		Sessions: authn,
		Accounts: ids,
		Profiles: directory,
		Vault:    provision.NewVault(dbh, cfg.CredentialSealKey, cfg.CredentialRevealTTL),
		Events:   syncx.NewEventRepo(dbh),
	}).Mount(r)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	srv := &http.Server{Addr: cfg.ProvisionAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.ProvisionAddr).Msg("provisioning listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
