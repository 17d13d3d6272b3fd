// ABOUTME: CLI commands for logging in and out.
// ABOUTME: Login hands off to the browser and receives the redirect locally, or takes a pasted code.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389-research/murmur/internal/callback"
	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/session"
)

var loginCmd = &cobra.Command{
	Use:   "login [server]",
	Short: "Log in to a server",
	Long: `Register murmur with a server and approve access in the browser.

By default murmur listens on the configured redirect address for the
browser to come back. With --manual the server shows a code to paste instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget stored credentials",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account",
	RunE:  runWhoami,
}

// Flags
var (
	loginManual bool
	loginSave   bool
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	loginCmd.Flags().BoolVar(&loginManual, "manual", false, "Paste the authorization code instead of receiving the redirect")
	loginCmd.Flags().BoolVar(&loginSave, "save", false, "Remember this server as the default in the config file")
}

func runLogin(cmd *cobra.Command, args []string) error {
	server := globalConfig.Server
	if len(args) == 1 {
		server = args[0]
	}
	server = mastodon.NormalizeServer(server)
	if server == "" {
		return models.Validationf("no server given and none configured; run 'murmur login <server>'")
	}
	if globalSession.State() == session.Authenticated {
		current := globalSession.Session().Server
		if current == server {
			fmt.Printf("Already logged in to %s\n", current)
			return nil
		}
		return fmt.Errorf("already logged in to %s - run 'murmur logout' first", current)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if loginManual {
		if err := loginWithCode(ctx, server); err != nil {
			return err
		}
	} else if err := loginWithRedirect(ctx, server); err != nil {
		return err
	}

	if acct := globalSession.CurrentAccount(); acct != nil {
		fmt.Printf("Logged in as %s on %s\n", acct.Handle(), server)
	}
	if loginSave {
		globalConfig.Server = server
		if err := globalConfig.Save(); err != nil {
			return fmt.Errorf("logged in, but failed to save config: %w", err)
		}
	}
	return nil
}

func loginWithRedirect(ctx context.Context, server string) error {
	receiver := callback.New(globalConfig.Redirect.Listen, globalConfig.Redirect.Path)
	if err := receiver.Start(); err != nil {
		return fmt.Errorf("%w (use --manual to paste the code instead)", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = receiver.Shutdown(shutdownCtx)
	}()

	globalSession = newSessionManager(receiver.RedirectURI())
	authURL, err := globalSession.Login(ctx, server)
	if err != nil {
		return err
	}
	fmt.Printf("Approve access in your browser. If it did not open, visit:\n\n  %s\n\nWaiting for the redirect (up to %s)...\n", authURL, globalConfig.AuthTimeout)

	return globalSession.AwaitRedirect(ctx, receiver.Results())
}

func loginWithCode(ctx context.Context, server string) error {
	globalSession = newSessionManager(mastodon.OutOfBandRedirect)
	authURL, err := globalSession.Login(ctx, server)
	if err != nil {
		return err
	}
	fmt.Printf("Approve access in your browser. If it did not open, visit:\n\n  %s\n\n", authURL)
	fmt.Print("Paste the authorization code: ")

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && strings.TrimSpace(code) == "" {
		return fmt.Errorf("failed to read code: %w", err)
	}
	return globalSession.HandleAuthCode(ctx, strings.TrimSpace(code), server)
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := globalSession.Logout(); err != nil {
		return err
	}
	globalWorkspace = nil
	fmt.Println("Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	acct := globalSession.CurrentAccount()
	if acct == nil {
		fmt.Printf("Not logged in (%s).\n", globalSession.State())
		return nil
	}
	fmt.Printf("%s (%s) on %s\n", acct.Handle(), acct.Name(), globalSession.Session().Server)
	fmt.Printf("  %d posts, %d following, %d followers\n", acct.StatusesCount, acct.FollowingCount, acct.FollowersCount)
	return nil
}
