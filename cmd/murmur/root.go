// ABOUTME: Root Cobra command and global state for the murmur CLI.
// ABOUTME: Loads config, sets up logging, opens the session store, and restores the saved login.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389-research/murmur/internal/app"
	"github.com/2389-research/murmur/internal/config"
	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/mastodon"
	mcppkg "github.com/2389-research/murmur/internal/mcp"
	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/session"
	"github.com/2389-research/murmur/internal/storage"
)

const restoreTimeout = 15 * time.Second

var globalConfig *config.Config
var globalStore storage.KVStore
var globalSession *session.Manager
var globalWorkspace *app.Workspace

var rootCmd = &cobra.Command{
	Use:   "murmur",
	Short: "A terminal client for Mastodon-compatible servers",
	Long: `
███╗   ███╗██╗   ██╗██████╗ ███╗   ███╗██╗   ██╗██████╗
████╗ ████║██║   ██║██╔══██╗████╗ ████║██║   ██║██╔══██╗
██╔████╔██║██║   ██║██████╔╝██╔████╔██║██║   ██║██████╔╝
██║╚██╔╝██║██║   ██║██╔══██╗██║╚██╔╝██║██║   ██║██╔══██╗
██║ ╚═╝ ██║╚██████╔╝██║  ██║██║ ╚═╝ ██║╚██████╔╝██║  ██║
╚═╝     ╚═╝ ╚═════╝ ╚═╝  ╚═╝╚═╝     ╚═╝ ╚═════╝ ╚═╝  ╚═╝

Read timelines, follow threads, and post to the fediverse
from your terminal or through an AI agent.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		globalConfig = cfg
		logging.SetDefault(logging.New(os.Stderr, cfg.LogLevel, cfg.LogJSON))

		sessionPath, err := cfg.GetSessionPath()
		if err != nil {
			return fmt.Errorf("failed to resolve session path: %w", err)
		}
		store, err := storage.NewFileStore(sessionPath)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		globalStore = store
		switch cmd.Name() {
		case "mcp":
			globalSession = mcppkg.NewSessionManager(store, sessionOptions()...)
		case "setup":
			// The wizard takes a pasted code.
			globalSession = newSessionManager(mastodon.OutOfBandRedirect)
		default:
			globalSession = newSessionManager(cfg.RedirectURI())
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), restoreTimeout)
		defer cancel()
		if err := globalSession.Restore(ctx); err != nil {
			if errors.Is(err, models.ErrAuth) {
				fmt.Fprintln(os.Stderr, "Saved login was rejected by the server; run 'murmur login' again.")
			} else {
				logging.Logger().Warn("could not restore session", "error", err)
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if globalWorkspace != nil {
			globalWorkspace.Close()
			globalWorkspace = nil
		}
		return nil
	},
}

// newSessionManager builds a session manager over the global store that
// registers redirectURI with the server.
func newSessionManager(redirectURI string) *session.Manager {
	return session.NewManager(globalStore, append(sessionOptions(), session.WithRedirectURI(redirectURI))...)
}

func sessionOptions() []session.Option {
	return []session.Option{
		session.WithTimeout(globalConfig.AuthTimeout),
		session.WithClientName(session.DefaultClientName, "https://github.com/2389-research/murmur"),
		session.WithLogger(logging.Logger()),
	}
}

// requireWorkspace returns the workspace for the restored login.
func requireWorkspace() (*app.Workspace, error) {
	if globalWorkspace != nil {
		return globalWorkspace, nil
	}
	if globalSession == nil || globalSession.State() != session.Authenticated {
		return nil, fmt.Errorf("%w - run 'murmur login' first", models.ErrNotAuthenticated)
	}
	w, err := app.NewWorkspace(globalSession, globalConfig)
	if err != nil {
		return nil, err
	}
	globalWorkspace = w
	return w, nil
}
