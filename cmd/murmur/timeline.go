// ABOUTME: CLI commands for reading timelines and notifications.
// ABOUTME: Pages back through history and can keep watching for new posts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389-research/murmur/internal/feed"
	"github.com/2389-research/murmur/internal/models"
)

var timelineCmd = &cobra.Command{
	Use:       "timeline [home|local|public]",
	Short:     "Read a timeline",
	Long:      "List posts from the home, local, or federated timeline, newest first.",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: feed.Timelines,
	RunE:      runTimeline,
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Read notifications",
	RunE:  runNotifications,
}

// Flags
var (
	timelinePages int
	timelineWatch bool
	notifPages    int
	notifClear    bool
)

func init() {
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(notificationsCmd)

	timelineCmd.Flags().IntVar(&timelinePages, "pages", 1, "Number of pages to load")
	timelineCmd.Flags().BoolVar(&timelineWatch, "watch", false, "Keep running and print new posts as they arrive")

	notificationsCmd.Flags().IntVar(&notifPages, "pages", 1, "Number of pages to load")
	notificationsCmd.Flags().BoolVar(&notifClear, "clear", false, "Dismiss all notifications")
}

func runTimeline(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	name := feed.TimelineHome
	if len(args) == 1 {
		name = args[0]
	}
	engine, err := w.Timeline(name)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for i := 0; i < timelinePages && engine.Cursor().HasMore; i++ {
		if _, err := engine.Fetch(ctx); err != nil {
			return fmt.Errorf("failed to load %s timeline: %w", name, err)
		}
	}

	items := engine.Items()
	if len(items) == 0 {
		fmt.Println("No posts found.")
	}
	// Oldest first so the newest ends up next to the prompt.
	for i := len(items) - 1; i >= 0; i-- {
		printPost(os.Stdout, items[i])
	}

	if !timelineWatch {
		return nil
	}
	return watch(ctx, engine)
}

// watch polls engine and prints revealed posts until ctx is done.
func watch(ctx context.Context, engine *feed.Engine[models.Post]) error {
	changed := make(chan struct{}, 1)
	engine.Observe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	engine.StartPolling(ctx, globalConfig.Feed.PollInterval)
	defer engine.Stop()

	fmt.Fprintf(os.Stderr, "Watching %s every %s (Ctrl+C to stop)\n", engine.Name(), globalConfig.Feed.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if engine.PendingCount() == 0 {
				continue
			}
			n := engine.Reveal()
			fresh := engine.Items()[:n]
			for i := len(fresh) - 1; i >= 0; i-- {
				printPost(os.Stdout, fresh[i])
			}
		}
	}
}

func runNotifications(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if notifClear {
		if err := w.Client.ClearNotifications(ctx); err != nil {
			return fmt.Errorf("failed to clear notifications: %w", err)
		}
		fmt.Println("Notifications cleared.")
		return nil
	}

	for i := 0; i < notifPages && w.Notifications.Cursor().HasMore; i++ {
		if _, err := w.Notifications.Fetch(ctx); err != nil {
			return fmt.Errorf("failed to load notifications: %w", err)
		}
	}
	items := w.Notifications.Items()
	if len(items) == 0 {
		fmt.Println("No notifications.")
		return nil
	}
	for i := len(items) - 1; i >= 0; i-- {
		printNotification(os.Stdout, items[i])
	}
	return nil
}
