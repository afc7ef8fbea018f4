package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/hellowallet/internal/cache"
	"github.com/dropDatabas3/hellowallet/internal/config"
	"github.com/dropDatabas3/hellowallet/internal/domain/repository"
	"github.com/dropDatabas3/hellowallet/internal/http/controllers"
	"github.com/dropDatabas3/hellowallet/internal/http/router"
	"github.com/dropDatabas3/hellowallet/internal/http/server"
	"github.com/dropDatabas3/hellowallet/internal/issuance"
	"github.com/dropDatabas3/hellowallet/internal/metrics"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	"github.com/dropDatabas3/hellowallet/internal/provider"
	"github.com/dropDatabas3/hellowallet/internal/rate"
	"github.com/dropDatabas3/hellowallet/internal/security/sharebox"
	"github.com/dropDatabas3/hellowallet/internal/session"
	"github.com/dropDatabas3/hellowallet/internal/signer"
	"github.com/dropDatabas3/hellowallet/internal/signing"
	"github.com/dropDatabas3/hellowallet/internal/store"
	"github.com/dropDatabas3/hellowallet/internal/verifier"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("HW_LOG_LEVEL"),
		ServiceName: "hellowallet",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if !sharebox.Ready() {
		if cfg.App.Env == "prod" {
			return fmt.Errorf("serve: SHAREBOX_MASTER_KEY no configurada (generar con `hellowallet keygen`)")
		}
		log.Warn("sharebox master key ausente; el provisioning va a fallar hasta configurarla")
	}

	// Paso 1: Storage
	st, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("serve: store: %w", err)
	}
	defer st.Close()

	// Paso 2: Cache + rate limiters
	cacheClient, err := cache.New(cache.Config{
		Driver: cfg.Cache.Kind,
		Addr:   cfg.Cache.Redis.Addr,
		DB:     cfg.Cache.Redis.DB,
		Prefix: cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("serve: cache: %w", err)
	}
	defer cacheClient.Close()

	beginWindow := config.DurationOr(cfg.Verify.BeginWindow, time.Hour)
	signWindow := config.DurationOr(cfg.Sign.Window, time.Minute)

	var beginLimiter, signLimiter, ipLimiter rate.Limiter
	if cfg.Cache.Kind == "redis" {
		rc := rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
		defer rc.Close()
		beginLimiter = rate.NewRedisLimiter(rc, "rl:verify:", cfg.Verify.BeginLimit, beginWindow)
		signLimiter = rate.NewRedisLimiter(rc, "rl:sign:", cfg.Sign.Limit, signWindow)
		ipLimiter = rate.NewRedisLimiter(rc, "rl:ip:", 120, time.Minute)
	} else {
		beginLimiter = rate.NewMemoryLimiter(cfg.Verify.BeginLimit, beginWindow)
		signLimiter = rate.NewMemoryLimiter(cfg.Sign.Limit, signWindow)
		ipLimiter = rate.NewMemoryLimiter(120, time.Minute)
	}

	// Paso 3: Puertos externos (identity provider + remote signer)
	challengeTTL := config.DurationOr(cfg.Verify.ChallengeTTL, 10*time.Minute)

	prov, err := buildProvider(cfg, cacheClient, challengeTTL)
	if err != nil {
		return err
	}

	var remote signer.RemoteSigner
	if cfg.Signer.BaseURL != "" {
		remote = signer.NewClient(cfg.Signer.BaseURL, cfg.Signer.APIKey,
			config.DurationOr(cfg.Signer.Timeout, 10*time.Second))
	} else {
		if cfg.App.Env == "prod" {
			return fmt.Errorf("serve: signer.base_url es requerido en prod")
		}
		log.Warn("signer.base_url vacío; usando signer stub local (solo dev)")
		remote = signer.NewStub()
	}

	// Paso 4: Services
	var seed []byte
	if cfg.Session.SigningSeed != "" {
		seed, err = base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.Session.SigningSeed))
		if err != nil {
			return fmt.Errorf("serve: session.signing_seed no es base64 válido: %w", err)
		}
	}
	sessions, err := session.NewManager(st, session.Config{
		Issuer: cfg.Session.Issuer,
		TTL:    config.DurationOr(cfg.Session.TTL, 24*time.Hour),
		Seed:   seed,
	})
	if err != nil {
		return fmt.Errorf("serve: sessions: %w", err)
	}

	verifySvc := verifier.New(verifier.Deps{
		Provider:     prov,
		Cache:        cacheClient,
		Store:        st,
		BeginLimiter: beginLimiter,
		ChallengeTTL: challengeTTL,
		AssertionTTL: config.DurationOr(cfg.Verify.AssertionTTL, 5*time.Minute),
	})
	issuanceSvc := issuance.New(issuance.Deps{Store: st, Signer: remote})
	signingSvc := signing.New(signing.Deps{
		Store:    st,
		Sessions: sessions,
		Signer:   remote,
		Limiter:  signLimiter,
	})

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("serve: metrics: %w", err)
	}

	// Paso 5: HTTP
	handler := router.New(router.Deps{
		Controllers: controllers.Controllers{
			Verify:  controllers.NewVerifyController(verifySvc),
			Account: controllers.NewAccountController(issuanceSvc, sessions),
			Sign:    controllers.NewSignController(signingSvc),
			Session: controllers.NewSessionController(sessions),
			Health:  controllers.NewHealthController(st),
		},
		IPLimiter: ipLimiter,
	})
	srv := server.New(cfg.Server.Addr, handler)

	// Paso 6: Run. El grupo junta server, janitor y señal de apagado.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.ListenAndServe)

	g.Go(func() error {
		runJanitor(gctx, st)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildProvider(cfg *config.Config, c cache.Client, challengeTTL time.Duration) (provider.Provider, error) {
	switch cfg.Provider.Kind {
	case "smtp", "":
		if cfg.Provider.SMTP.Host == "" {
			if cfg.App.Env == "prod" {
				return nil, fmt.Errorf("serve: provider.smtp.host es requerido en prod")
			}
			logger.L().Warn("provider smtp sin host; usando provider stub local (solo dev)")
			return provider.NewStub(), nil
		}
		sender := &provider.SMTPSender{
			Host:    cfg.Provider.SMTP.Host,
			Port:    cfg.Provider.SMTP.Port,
			From:    cfg.Provider.SMTP.From,
			User:    cfg.Provider.SMTP.User,
			Pass:    cfg.Provider.SMTP.Pass,
			TLSMode: cfg.Provider.SMTP.TLSMode,
		}
		return provider.NewSMTPProvider(sender, c, challengeTTL, []byte(cfg.Provider.SMTP.ProofHMAC)), nil
	case "http":
		if cfg.Provider.HTTP.BaseURL == "" {
			return nil, fmt.Errorf("serve: provider.http.base_url es requerido")
		}
		return provider.NewHTTPProvider(cfg.Provider.HTTP.BaseURL, cfg.Provider.HTTP.APIKey,
			config.DurationOr(cfg.Provider.HTTP.Timeout, 10*time.Second)), nil
	default:
		return nil, fmt.Errorf("serve: provider.kind no soportado: %q", cfg.Provider.Kind)
	}
}

// runJanitor purga assertions y sesiones vencidas en background.
func runJanitor(ctx context.Context, st repository.Store) {
	log := logger.Named("janitor")
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if n, err := st.Assertions().DeleteExpired(cleanCtx); err != nil {
				log.Warn("assertion purge failed", logger.Err(err))
			} else if n > 0 {
				log.Info("expired assertions purged", logger.Count(n))
			}
			if n, err := st.Sessions().DeleteExpired(cleanCtx); err != nil {
				log.Warn("session purge failed", logger.Err(err))
			} else if n > 0 {
				log.Info("expired sessions purged", logger.Count(n))
			}
			cancel()
		}
	}
}
