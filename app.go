package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/crypt"
	"github.com/ragdesk/ragdesk/internal/graph"
	"github.com/ragdesk/ragdesk/internal/keyfile"
	"github.com/ragdesk/ragdesk/internal/secret"
	"github.com/ragdesk/ragdesk/internal/store"
	"github.com/ragdesk/ragdesk/internal/tokens"
)

// dataDirPermissions keeps the sqlite database private to the service user.
const dataDirPermissions = 0o700

// app holds what commands that talk to the database and Graph share.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	http   *http.Client
	store  *store.Store
	codec  *crypt.Codec
	graph  *graph.Client
	tokens *tokens.Resolver
	redis  *redis.Client
}

// newApp resolves secrets, opens the store and builds the token resolver.
// Call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := resolveSecrets(ctx, cfg, logger); err != nil {
		return nil, err
	}

	key, err := encryptionKey(cfg)
	if err != nil {
		return nil, err
	}

	codec, err := crypt.New(key)
	if err != nil {
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}

	st, err := openStore(ctx, cfg, false, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		http:   newHTTPClient(cfg),
		store:  st,
		codec:  codec,
	}

	a.graph = graph.NewClient(cfg.Microsoft.GraphBaseURL, a.http, graph.StaticToken(""), logger, "ragdesk/"+version)

	var locker tokens.Locker

	if cfg.Redis.URL != "" {
		if a.redis, err = connectRedis(ctx, cfg.Redis.URL); err != nil {
			a.close()
			return nil, err
		}

		locker = tokens.NewRedisLocker(a.redis, cfg.RedisLockTTL(), logger)
		logger.Info("token refresh lock shared through redis")
	}

	a.tokens = tokens.NewResolver(tokens.Config{
		Store: st,
		Refresher: graph.NewRefresher(graph.RefresherConfig{
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			Tenant:       cfg.Microsoft.TenantID,
			HTTPClient:   a.http,
			Codec:        codec,
			Logger:       logger,
		}),
		Codec:  codec,
		Locker: locker,
		Logger: logger,
	})

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}

// resolveSecrets replaces ssm: references in secret-bearing settings. With
// no AWS region configured, references resolve from RAGDESK_* variables.
func resolveSecrets(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	fields := []*string{
		&cfg.Crypto.EncryptionKey,
		&cfg.Microsoft.ClientSecret,
		&cfg.N8N.BearerToken,
		&cfg.Session.Secret,
		&cfg.Database.DSN,
		&cfg.Redis.URL,
	}

	values := make([]string, len(fields))
	for i, f := range fields {
		values[i] = *f
	}

	if !secret.HasRefs(values...) {
		return nil
	}

	var r secret.Resolver = secret.NewEnvResolver()

	if cfg.AWS.Region != "" {
		ssmResolver, err := secret.NewSSMResolverFromEnv(ctx, cfg.AWS.Region)
		if err != nil {
			return fmt.Errorf("configuring secret resolver: %w", err)
		}

		r = ssmResolver
	}

	logger.Debug("resolving secret references", slog.Bool("ssm", cfg.AWS.Region != ""))

	if err := secret.ResolveRefs(ctx, r, fields...); err != nil {
		return fmt.Errorf("resolving secrets: %w", err)
	}

	return nil
}

// encryptionKey returns the configured key, reading key_file when the key
// is not set inline.
func encryptionKey(cfg *config.Config) (string, error) {
	if cfg.Crypto.EncryptionKey != "" {
		return cfg.Crypto.EncryptionKey, nil
	}

	if cfg.Crypto.KeyFile == "" {
		return "", errors.New("no encryption key configured (set ENCRYPTION_KEY or crypto.key_file)")
	}

	key, err := keyfile.Load(cfg.Crypto.KeyFile)
	if err != nil {
		return "", err
	}

	if key == "" {
		return "", fmt.Errorf("key file %s does not exist (create one with `ragdesk keygen --out %s`)",
			cfg.Crypto.KeyFile, cfg.Crypto.KeyFile)
	}

	return key, nil
}

// openStore opens the configured database. skipMigrations leaves the schema
// as it is.
func openStore(ctx context.Context, cfg *config.Config, skipMigrations bool, logger *slog.Logger) (*store.Store, error) {
	if cfg.Database.Driver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), dataDirPermissions); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	st, err := store.Open(ctx, store.Options{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		SkipMigrations: skipMigrations,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return st, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return client, nil
}
