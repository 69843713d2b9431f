package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"lovetrack-backend/internal/cache"
	"lovetrack-backend/internal/config"
	"lovetrack-backend/internal/cryptox"
	"lovetrack-backend/internal/pairing"
	"lovetrack-backend/internal/push"
	"lovetrack-backend/internal/repository"
	"lovetrack-backend/internal/repository/badgerstore"
	"lovetrack-backend/internal/repository/memory"
	"lovetrack-backend/internal/repository/postgres"
	"lovetrack-backend/internal/server"
	"lovetrack-backend/internal/services"
	"lovetrack-backend/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "lovetrack",
	Short:        "LoveTrack backend: couple pairing and encrypted shared data",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(cmd.Context(), configPath)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Database.Driver != config.DriverPostgres {
			return fmt.Errorf("migrate needs the postgres driver, config uses %q", cfg.Database.Driver)
		}

		pool, err := postgres.Connect(cmd.Context(), cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := postgres.RunMigrations(cmd.Context(), pool); err != nil {
			return err
		}
		log.Info().Msg("Migrations applied")
		return nil
	},
}

var vapidKeysCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for web push",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		public, private, err := push.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "vapid_public_key: %s\nvapid_private_key: %s\n", public, private)
		return nil
	},
}

func init() {
	addConfigFlag(serveCmd.Flags())
	addConfigFlag(migrateCmd.Flags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(vapidKeysCmd)
}

func addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Log.Level)
	return cfg, nil
}

// Run serves until ctx is cancelled
func Run(ctx context.Context, path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	// Open storage
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	couples := store.Couples
	if cfg.Cache.Enabled {
		coupleCache, err := cache.NewCoupleCache(store.Couples, cfg.Cache.MaxEntries, cfg.Cache.TTL)
		if err != nil {
			return err
		}
		defer coupleCache.Close()
		couples = coupleCache
		log.Info().Dur("ttl", cfg.Cache.TTL).Msg("Couple cache enabled")
	}

	deriver, err := newKeyDeriver(cfg.Crypto)
	if err != nil {
		return err
	}

	// Initialize services
	userService := services.NewUserService(store.Users, store.PushTokens, cfg.JWT.Secret, cfg.JWT.TokenTTL)
	coupleService := services.NewCoupleService(couples, store.Users, pairing.NewRandomGenerator(), cfg.Pairing.CodeTTL, cfg.Pairing.MaxAttempts)
	fieldService := services.NewFieldService(couples, deriver)
	eventService := services.NewEventService(store.Events, deriver)

	var objects services.ObjectStorage
	if cfg.AWS.S3Bucket != "" {
		s3, err := storage.NewS3Storage(ctx, storage.S3Config{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to create export storage: %w", err)
		}
		objects = s3
	}
	exportService := services.NewExportService(coupleService, eventService, objects, cfg.AWS.ExportURLTTL)

	wsHub := services.NewWSHub(coupleService)
	defer wsHub.Close()
	coupleService.SetNotifier(wsHub)
	fieldService.SetNotifier(wsHub)
	eventService.SetNotifier(wsHub)

	// Reminder dispatch
	var vapidPublicKey string
	if cfg.Push.WebPush.Enabled() {
		vapidPublicKey = cfg.Push.WebPush.VAPIDPublicKey
	}
	if cfg.Reminders.Enabled {
		sender, err := newDispatcher(cfg.Push)
		if err != nil {
			return err
		}
		scheduler := push.NewScheduler(eventService, coupleService, store.PushTokens, sender, cfg.Reminders.Interval, cfg.Reminders.Window)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	// Setup router
	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: server.New(server.Services{
			Users:   userService,
			Couples: coupleService,
			Fields:  fieldService,
			Events:  eventService,
			Exports: exportService,
			Hub:     wsHub,
		}, server.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			VAPIDPublicKey: vapidPublicKey,
			Logger:         log.Logger.With().Str("component", "http").Logger(),
		}).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close WebSocket connections first; Shutdown does not wait for hijacked ones
	wsHub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*repository.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connection established")
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewStore(pool), nil
	case config.DriverBadger:
		store, err := badgerstore.Open(cfg.Database.Path, log.Logger.With().Str("component", "badger").Logger())
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Database.Path).Msg("Embedded store opened")
		return store, nil
	case config.DriverMemory:
		log.Warn().Msg("Using the in-memory store; data is lost on exit")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func newKeyDeriver(cfg config.CryptoConfig) (cryptox.KeyDeriver, error) {
	if cfg.KDF != config.KDFArgon2 {
		return cryptox.SHA256Deriver{}, nil
	}
	salt, err := cfg.Argon2SaltBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to decode argon2 salt: %w", err)
	}
	log.Warn().Msg("Argon2 key derivation enabled; data is not readable by clients deriving from the couple id")
	d, err := cryptox.NewArgon2Deriver(salt, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newDispatcher(cfg config.PushConfig) (*push.Dispatcher, error) {
	var apns, web push.Sender
	if cfg.APNs.Enabled() {
		sender, err := push.NewAPNsSender(push.APNsConfig{
			KeyPath:    cfg.APNs.KeyPath,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create APNs sender: %w", err)
		}
		apns = sender
	}
	if cfg.WebPush.Enabled() {
		web = push.NewWebPushSender(push.WebPushConfig{
			VAPIDPublicKey:  cfg.WebPush.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.WebPush.VAPIDPrivateKey,
			Subscriber:      cfg.WebPush.Subscriber,
		})
	}
	if apns == nil && web == nil {
		log.Warn().Msg("Reminders enabled without push credentials; reminders will be marked sent without delivery")
	}
	return push.NewDispatcher(apns, web), nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
