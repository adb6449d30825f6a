package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dropDatabas3/authserve/internal/cache"
	"github.com/dropDatabas3/authserve/internal/config"
	httpx "github.com/dropDatabas3/authserve/internal/http"
	jwtx "github.com/dropDatabas3/authserve/internal/jwt"
	"github.com/dropDatabas3/authserve/internal/metrics"
	"github.com/dropDatabas3/authserve/internal/observability/logger"
	"github.com/dropDatabas3/authserve/internal/rate"
	"github.com/dropDatabas3/authserve/internal/rbac"
	"github.com/dropDatabas3/authserve/internal/store/pg"
	migrations "github.com/dropDatabas3/authserve/migrations/postgres"
)

var (
	flagConfig  string
	flagEnvFile string
)

func main() {
	root := &cobra.Command{
		Use:   "authserve",
		Short: "Multi-tenant authorization core: tokens, JWKS, RBAC scopes",
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "ruta a config.yaml")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "ruta a .env")

	root.AddCommand(serveCmd(), rotateCmd(), jwksCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if flagEnvFile != "" {
		_ = godotenv.Load(flagEnvFile)
	}
	return config.Load(flagConfig)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Arranca el servicio HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "authserve"})
			defer func() { _ = logger.Sync() }()
			log := logger.Named("main")

			if err := metrics.Register(nil); err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := pg.New(ctx, cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("connect storage: %w", err)
			}
			defer store.Close()

			cacheClient := cache.New(cache.Config{
				Kind:       cfg.Cache.Kind,
				Addr:       cfg.Cache.Redis.Addr,
				DB:         cfg.Cache.Redis.DB,
				Password:   cfg.Cache.Redis.Password,
				Prefix:     cfg.Cache.Redis.Prefix,
				DefaultTTL: cfg.CacheTTL(),
			})
			defer func() { _ = cacheClient.Close() }()

			keys, err := jwtx.NewKeyStore(cfg.Keys.Dir)
			if err != nil {
				return err
			}
			// bootstrap: sin clave activa no se puede emitir nada
			if _, _, err := keys.CurrentSigningKey(); err != nil {
				if !errors.Is(err, jwtx.ErrKeystoreUninitialized) {
					return err
				}
				kid, err := keys.CreateKeypair()
				if err != nil {
					return err
				}
				log.Info("signing key bootstrapped", logger.KID(kid))
			}

			authzCache := rbac.NewCache(cacheClient)
			resolver := rbac.NewResolver(store, authzCache)
			tokens := jwtx.NewTokenService(keys, resolver, cfg.AccessTTL())

			// limiter de credenciales: distribuido si el cache es redis
			var limiter rate.Limiter
			if rc, ok := cacheClient.(*cache.Redis); ok {
				limiter = rate.NewRedisLimiter(rc.RDB(), "rl", cfg.Rate.Max, cfg.RateWindow())
			} else {
				limiter = rate.NewMemoryLimiter(cfg.Rate.Max, cfg.RateWindow())
			}

			handlers := &httpx.Handlers{Store: store, Tokens: tokens, Keys: keys, Cache: authzCache}
			auth := &httpx.Authenticator{Tokens: tokens, Users: store, Cache: authzCache, Resolver: resolver}
			srv := httpx.NewServer(cfg.Server.Addr, httpx.NewRouter(handlers, auth, limiter))

			errC := make(chan error, 1)
			go func() { errC <- srv.Start() }()
			log.Info("listening", zap.String("addr", cfg.Server.Addr))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errC:
				return err
			case sig := <-stop:
				log.Info("shutting down", zap.String("signal", sig.String()))
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-keys",
		Short: "Genera una clave de firma nueva y la marca activa (las viejas quedan publicadas)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			keys, err := jwtx.NewKeyStore(cfg.Keys.Dir)
			if err != nil {
				return err
			}
			kid, err := keys.Rotate()
			if err != nil {
				return err
			}
			fmt.Printf("rotated: new active kid %s\n", kid)
			return nil
		},
	}
}

func jwksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Imprime el JWKS publicado",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			keys, err := jwtx.NewKeyStore(cfg.Keys.Dir)
			if err != nil {
				return err
			}
			set, err := keys.JWKS()
			if err != nil {
				return err
			}
			fmt.Println(string(set.JSON()))
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica el esquema SQL embebido",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := pg.New(ctx, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := fs.Glob(migrations.FS, "*.sql")
			if err != nil {
				return err
			}
			sort.Strings(entries)
			for _, name := range entries {
				sql, err := fs.ReadFile(migrations.FS, name)
				if err != nil {
					return err
				}
				if _, err := store.Pool().Exec(ctx, string(sql)); err != nil {
					return fmt.Errorf("migration %s: %w", name, err)
				}
				fmt.Printf("applied %s\n", name)
			}
			return nil
		},
	}
}
