package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stream-gateway/internal/auth"
	"stream-gateway/internal/gateway"
	"stream-gateway/internal/keystore"
	"stream-gateway/internal/license"
	"stream-gateway/internal/manifest"
	"stream-gateway/internal/platform/cache"
	"stream-gateway/internal/platform/config"
	"stream-gateway/internal/platform/logger"
	"stream-gateway/internal/platform/metrics"
	"stream-gateway/internal/platform/objectstore"
	"stream-gateway/internal/subtitles"
	"stream-gateway/internal/token"
	"stream-gateway/internal/urlsign"
)

const (
	shutdownTimeout       = 10 * time.Second
	cacheCleanupInterval  = time.Minute
	redisConnectTimeout   = 5 * time.Second
	manifestCacheKeySpace = "stream-gateway:manifest:"
)

func main() {
	_ = config.Load()

	settings, err := config.LoadSettings(config.GetEnv("CONFIG_FILE", ""))
	log := logger.New(config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_FORMAT", "json"))
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log = logger.New(settings.LogLevel, settings.LogFormat)
	met := metrics.New()

	loaderOpts := []cache.Option{
		cache.WithTimeout(settings.FetchTimeout),
		cache.WithObserver(met),
		cache.WithLogger(log),
	}

	memory := cache.NewMemory(cacheCleanupInterval)
	defer memory.Stop()

	var manifestStore cache.Store = memory
	if settings.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
		client, err := cache.Connect(ctx, settings.RedisURL)
		cancel()
		if err != nil {
			log.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		manifestStore = cache.NewRedis(client, manifestCacheKeySpace)
	}

	objects, err := objectstore.NewS3(settings.AWSRegion, settings.S3Endpoint)
	if err != nil {
		log.Error("object store setup failed", "error", err)
		os.Exit(1)
	}

	tokens, err := token.New([]byte(settings.TokenKey), settings.TokenIssuer, settings.TokenAudience,
		token.WithMaxLifetime(settings.TokenLifetime))
	if err != nil {
		log.Error("token service setup failed", "error", err)
		os.Exit(1)
	}

	var signer gateway.URLSigner
	if settings.SignerPrivateKeyPEM != "" {
		s, err := urlsign.New(settings.SignerPrivateKeyPEM, settings.SignerKeyPairID)
		if err != nil {
			log.Error("url signer setup failed", "error", err)
			os.Exit(1)
		}
		signer = s
	}

	keys := keystore.New(objects, settings.KeyBucket, settings.DRMKeyGroup,
		cache.NewLoader("keys", memory, loaderOpts...), settings.KeyCacheTTL)
	licenses := license.NewGateway(tokens, keys, log)

	var subs manifest.SubtitleLister
	if settings.SubtitleBucket != "" {
		subs = subtitles.NewSource(objects, settings.SubtitleBucket, settings.SubtitleBaseURL,
			cache.NewLoader("subtitles", memory, loaderOpts...),
			subtitles.WithPreferredType(settings.SubtitleFormat),
			subtitles.WithTrimSuffix(settings.SubtitleTrim),
			subtitles.WithTTL(settings.SubtitleCacheTTL))
	}

	engineCfg := manifest.DefaultConfig()
	engineCfg.PrimaryLanguage = settings.PrimaryLanguage
	engineCfg.InterpreterLanguage = settings.InterpreterLanguage
	engineCfg.DropResolution = settings.DropResolution
	engineCfg.SubtitleFormat = settings.SubtitleFormat
	engineCfg.AudioOnlyExclusive = settings.AudioOnlyExclusive

	manifests := manifest.NewService(
		manifest.NewEngine(engineCfg, subs, log),
		manifest.NewHTTPFetcher(settings.FetchTimeout),
		cache.NewLoader("manifests", manifestStore, loaderOpts...),
		settings.ManifestCacheTTL,
	)

	var viewers gateway.BearerValidator
	if settings.OIDCAuthority != "" {
		viewers = auth.NewValidator(auth.Config{
			Authority: settings.OIDCAuthority,
			JWKSURL:   settings.OIDCJWKSURL,
			Audience:  settings.OIDCAudience,
		}, nil, cache.NewLoader("jwks", memory, loaderOpts...))
	}

	h := gateway.NewHandler(gateway.Config{
		PublicBaseURL:    settings.PublicBaseURL,
		VODAllowedHosts:  settings.VODAllowedHosts,
		LiveURL:          settings.LiveURL,
		LiveAllowedHosts: settings.LiveAllowedHosts,
		LiveMode:         manifest.ParseMode(settings.LiveMode),
		URLMode:          settings.URLMode,
	}, manifests, licenses, tokens, signer, viewers, log, met)

	r := gateway.NewRouter(h, log, met)

	addr := ":" + settings.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", settings.Port,
		"live_mode", settings.LiveMode,
		"url_mode", settings.URLMode,
		"redis", settings.RedisURL != "",
		"oidc", settings.OIDCAuthority != "",
		"log_level", settings.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
