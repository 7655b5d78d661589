package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"ledger-lists/api"
	"ledger-lists/config"
	"ledger-lists/engine"
	"ledger-lists/identity"
	"ledger-lists/ledger"
	"ledger-lists/poller"
	"ledger-lists/projection"
	"ledger-lists/signer"
	"ledger-lists/storage"
	"ledger-lists/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	identitiesFile := pflag.String("identities", cfg.IdentitiesFile, "YAML file of signing identities")
	listen := pflag.String("listen", cfg.Listen, "HTTP listen address")
	pflag.Parse()

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	registry, err := identity.Load(*identitiesFile)
	if err != nil {
		log.Fatalf("identities: %v", err)
	}

	client := ledger.New(cfg.LedgerHost, cfg.LedgerNetwork, cfg.LedgerDB,
		ledger.WithHTTPClient(&http.Client{Timeout: cfg.LedgerTimeout}),
		ledger.WithLogger(logger),
	)

	deps := engine.Deps{
		DB:        client.DB(),
		Store:     projection.NewStore(),
		Submitter: client,
		Loader:    client,
		Logger:    logger,
		Poller: poller.New(client, poller.Config{
			SettleDelay:    cfg.SettleDelay,
			Deadline:       cfg.ConfirmDeadline,
			BackoffInitial: cfg.BackoffInitial,
			BackoffMax:     cfg.BackoffMax,
		}, logger),
	}

	var nonces signer.NonceSource = signer.NewMemoryNonces()
	if cfg.RedisConnectionString != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConnectionString))
		defer rc.Close()
		nonces = signer.NewRedisNonces(rc, cfg.NonceTTL)
		cache := storage.NewCache(client, rc, client.DB(), cfg.CacheTTL)
		deps.Loader = cache
		deps.Cache = cache
	}
	deps.Signer = signer.New(client.DB(), nonces, signer.WithExpiry(cfg.TxExpiry), signer.WithFuel(cfg.TxFuel))

	if cfg.StorageConnectionString != "" {
		journal, err := storage.NewTableJournal(cfg.StorageConnectionString, cfg.JournalTable)
		if err != nil {
			log.Fatalf("journal: %v", err)
		}
		if err := journal.Ensure(ctx); err != nil {
			log.Fatalf("journal table: %v", err)
		}
		deps.Journal = journal
	}

	eng := engine.New(deps)
	if err := eng.Load(ctx); err != nil {
		log.Fatalf("initial load: %v", err)
	}

	auth, err := newAuthenticator(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderUser},
	}))
	api.Register(e, eng, auth, registry, logger)

	go func() {
		if err := e.Start(*listen); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()
	logger.WithFields(log.Fields{"listen": *listen, "db": client.DB(), "identities": len(registry.Names())}).Info("ledger-lists started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}

func newAuthenticator(cfg config.Config) (api.Authenticator, error) {
	switch {
	case cfg.Auth0TestMode:
		return api.NewTestAuth([]byte(cfg.TestJWTSecret)), nil
	case cfg.HeaderIdentity:
		return api.HeaderAuth{}, nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", cfg.JWKSCacheTTL), nil
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
