package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mossy-p/videochat-signaling/config"
	"github.com/mossy-p/videochat-signaling/internal/handlers"
	"github.com/mossy-p/videochat-signaling/internal/redis"
	"github.com/mossy-p/videochat-signaling/internal/registry"
	"github.com/mossy-p/videochat-signaling/internal/signaling"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	configPath string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "signaling",
	Short: "WebRTC signaling relay for room-based video calls",
	Long: `signaling accepts websocket connections from browsers, groups them into named
rooms and relays offers, answers, ICE candidates and chat text between room
members. Media never passes through the server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (default $CONFIG_PATH)")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address, overrides HTTP_ADDRESS")
}

// Execute runs the root command until it fails or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load(".env")

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.HTTP.Address = listenAddr
	}

	log := setupLogger(cfg)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := signaling.Options{
		Logger:           log,
		RateLimit:        rate.Limit(cfg.WebSocket.RateLimit),
		RateBurst:        cfg.WebSocket.RateBurst,
		RejectDuplicates: cfg.WebSocket.DuplicateIDPolicy == config.PolicyReject,
	}

	if cfg.RedisEnabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		presence := redis.NewPresence(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		if err := presence.Reset(ctx); err != nil {
			return err
		}
		opts.Presence = presence
		log.Info("redis presence enabled", slog.String("host", cfg.Redis.Host))
	}

	router := signaling.NewRouter(registry.New(), opts)
	h := handlers.New(router, cfg, log)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting signaling server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("env", cfg.Environment),
			slog.Bool("admin_api", cfg.AdminEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down", slog.Duration("timeout", cfg.HTTP.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", slog.Any("error", err))
	}
	if err := h.CloseSessions(shutdownCtx); err != nil {
		log.Warn("some sessions did not finish before the deadline", slog.Any("error", err))
	}
	log.Info("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Environment == config.EnvDevelopment {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			fmt.Fprintf(os.Stderr, "ignoring LOG_LEVEL %q: %v\n", cfg.LogLevel, err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
