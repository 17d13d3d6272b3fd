// ABOUTME: Cobra command for the interactive login wizard.
// ABOUTME: Launches a bubbletea TUI that validates the server, opens the browser, and takes the code.
package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389-research/murmur/internal/session"
	"github.com/2389-research/murmur/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Log in with an interactive wizard",
	Long:  "Interactive wizard that checks a server, opens the browser to approve access, and takes the authorization code.",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	if globalSession.State() == session.Authenticated {
		fmt.Printf("Already logged in to %s - run 'murmur logout' first.\n", globalSession.Session().Server)
		return nil
	}

	model := tui.NewSetupModel(globalSession, globalConfig.Server)

	p := tea.NewProgram(model)
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tui.SetupModel)
	if !final.Succeeded() {
		fmt.Println("Login cancelled.")
		return nil
	}

	if acct := globalSession.CurrentAccount(); acct != nil {
		fmt.Printf("Logged in as %s on %s\n", acct.Handle(), final.Server())
	}
	if globalConfig.Server == "" {
		globalConfig.Server = final.Server()
		if err := globalConfig.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}
	return nil
}
