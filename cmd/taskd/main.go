package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tasktracker/internal/auth"
	"tasktracker/internal/config"
	"tasktracker/internal/db"
	internalhttp "tasktracker/internal/http"
	"tasktracker/internal/logging"
	"tasktracker/internal/model"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "taskd",
		Short:         "Task service backing the tasktracker client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg, logger)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres connection string")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg, logger)
		},
	}
	serveCmd.Flags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "Listen address")
	serveCmd.Flags().BoolVar(&cfg.RequireAuth, "require-auth", cfg.RequireAuth, "Require a bearer token on task routes")

	rootCmd.AddCommand(serveCmd, migrateCmd(&cfg), seedStudentCmd(&cfg))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("taskd failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	server := internalhttp.NewServer(cfg, store, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("taskd http listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("require_auth", cfg.RequireAuth))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the students and tasks tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openStore(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func seedStudentCmd(cfg *config.Config) *cobra.Command {
	var student model.Student
	var password string

	cmd := &cobra.Command{
		Use:   "seed-student",
		Short: "Create or replace a student account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if student.StudentID == "" || password == "" || student.FirstName == "" || student.LastName == "" {
				return errors.New("--student-id, --password, --first-name and --last-name are required")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			student.PasswordHash = hash

			store, closeFn, err := openStore(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := store.UpsertStudent(cmd.Context(), student); err != nil {
				return fmt.Errorf("seed student: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "student %s saved\n", student.StudentID)
			return nil
		},
	}

	cmd.Flags().StringVar(&student.StudentID, "student-id", "", "Student id")
	cmd.Flags().StringVar(&password, "password", "", "Plain text password, stored as a bcrypt hash")
	cmd.Flags().StringVar(&student.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&student.MiddleName, "middle-name", "", "Middle name")
	cmd.Flags().StringVar(&student.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&student.ProfilePictureURL, "profile-picture", "", "Profile picture URL")
	return cmd
}

func openStore(ctx context.Context, cfg config.Config) (*db.Store, func(), error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db connection failed: %w", err)
	}
	return db.NewStore(pool), pool.Close, nil
}
