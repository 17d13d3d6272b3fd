// ABOUTME: CLI command for showing a post with its ancestors and replies.
// ABOUTME: Replies are shown two levels deep.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/thread"
)

var threadCmd = &cobra.Command{
	Use:   "thread <post-id>",
	Short: "Show a conversation",
	Long:  "Show a post, the posts it replies to, and up to two levels of replies.",
	Args:  cobra.ExactArgs(1),
	RunE:  runThread,
}

func init() {
	rootCmd.AddCommand(threadCmd)
}

func runThread(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	res, err := w.Threads.Build(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	logging.Logger().Debug("thread assembled", "id", args[0], "requests", res.Requests, "nodes", thread.Count(res.Root))

	if err := thread.Render(os.Stdout, res); err != nil {
		return fmt.Errorf("failed to render thread: %w", err)
	}
	return nil
}
