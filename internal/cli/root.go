// Package cli provides the stpctl administration commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/boot"
	"github.com/dmirchev92/stp/internal/config"
	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/db"
	"github.com/dmirchev92/stp/internal/logger"
	"github.com/dmirchev92/stp/internal/publicid"
	"github.com/dmirchev92/stp/internal/version"
)

// env is the state shared by subcommands once the root pre-run has loaded config.
type env struct {
	configPath string
	verbose    bool

	cfg     config.Config
	runtime *boot.RuntimeConfig
	log     *slog.Logger
	out     io.Writer
}

// NewRootCommand builds the stpctl command tree.
func NewRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "stpctl",
		Short: "Administration for the contact-link chat service",
		Long: `stpctl manages the contact-link chat service: schema migrations,
owner tokens for development, contact links and the token retention sweep.

Configuration is read from --config, or CONFIG_PATH when the flag is empty.`,
		Version:       version.GetInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return e.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "path to config.toml")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		newMigrateCmd(e),
		newOwnerTokenCmd(e),
		newIssueCmd(e),
		newSweepCmd(e),
		newVersionCmd(),
	)
	return root
}

// Execute runs stpctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (e *env) load(cmd *cobra.Command) error {
	path := e.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if e.verbose {
		level = "debug"
	}
	e.cfg = cfg
	e.log = logger.New(cmd.ErrOrStderr(), level, "text")
	e.out = cmd.OutOrStdout()
	rc, err := boot.ProvideRuntimeConfig(cfg)
	if err != nil {
		return err
	}
	e.runtime = rc
	return nil
}

// services bundles what the data commands need. Close releases the pool.
type services struct {
	tokens    *accesstoken.Service
	publicIDs *publicid.Service
	close     func()
}

func (e *env) openServices(ctx context.Context) (*services, error) {
	if e.runtime.StorageDriver != "postgres" {
		return nil, errors.New("stpctl needs storage.driver = \"postgres\"; the memory driver lives inside the server process")
	}
	ctx, cancel := context.WithTimeout(ctx, e.runtime.StorageTimeout)
	defer cancel()
	pool, err := db.Open(ctx, e.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	store := db.NewPgStore(pool)
	ids := publicid.NewService(e.log, store)
	convs := conversation.NewService(e.log, store).WithTimeout(e.runtime.StorageTimeout)
	tokens := accesstoken.NewService(e.log, store, ids, convs).
		WithTTL(e.runtime.TokenTTL).
		WithTimeout(e.runtime.TokenStorageTimeout)
	return &services{tokens: tokens, publicIDs: ids, close: pool.Close}, nil
}
