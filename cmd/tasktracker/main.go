package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tasktracker/internal/account"
	"tasktracker/internal/clients"
	"tasktracker/internal/config"
	"tasktracker/internal/logging"
	"tasktracker/internal/session"
	"tasktracker/internal/tasks"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd, a := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	apiURL     string
	output     string
	logLevel   string
	verbose    bool
}

// app holds the wiring shared by every subcommand. It is built once the flags are parsed.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    session.Store
	tasks    *tasks.Controller
	accounts *account.Controller
	format   string
}

func newRootCmd() (*cobra.Command, *app) {
	opts := &rootOptions{}
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "tasktracker",
		Short:         "Track course tasks against the task service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default $HOME/.tasktracker/config.yaml)")
	flags.StringVar(&opts.apiURL, "api-url", "", "Task service base URL")
	flags.StringVarP(&opts.output, "output", "o", "table", "Output format: table, json or yaml")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		listCmd(a),
		showCmd(a),
		addCmd(a),
		updateCmd(a),
		doneCmd(a, true),
		doneCmd(a, false),
		deleteCmd(a),
	)
	return rootCmd, a
}

func (a *app) open(ctx context.Context, opts *rootOptions) error {
	switch opts.output {
	case "table", "json", "yaml":
		a.format = opts.output
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	path := opts.configPath
	if path == "" {
		path = config.DefaultFilePath()
	}
	if err := config.LoadFile(path, &cfg); err != nil && (opts.configPath != "" || !os.IsNotExist(err)) {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if opts.apiURL != "" {
		cfg.APIURL = opts.apiURL
	}
	a.cfg = cfg

	level := opts.logLevel
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	a.logger = logger

	store, err := session.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.store = store

	remote, err := clients.New(clients.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
		Token: func(ctx context.Context) string {
			sess, ok, err := store.Load(ctx)
			if err != nil || !ok {
				return ""
			}
			return sess.AccessToken
		},
	})
	if err != nil {
		return err
	}

	a.tasks = tasks.NewController(remote, store, logger)
	a.accounts = account.NewController(remote, store, a.tasks, logger)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing session store", zap.Error(err))
		}
		a.store = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// describe renders err for the terminal.
func describe(err error) string {
	var verr *tasks.ValidationError
	var terr *clients.TransportError
	switch {
	case errors.Is(err, tasks.ErrNoSession):
		return "not logged in"
	case errors.Is(err, account.ErrInvalidCredentials):
		return "Invalid student id or password"
	case errors.Is(err, account.ErrUnreachable), errors.Is(err, account.ErrRejected):
		return err.Error()
	case errors.As(err, &verr):
		if verr.Reason == "required" {
			return "Please fill all the fields: " + verr.Field + " is empty"
		}
		return verr.Error()
	case errors.Is(err, clients.ErrNotFound):
		return "Task not found"
	case errors.As(err, &terr):
		return "Request failed: " + terr.Error()
	default:
		return err.Error()
	}
}
