// ABOUTME: Plain-text rendering of posts, notifications, and accounts for the CLI.
// ABOUTME: Boosts show the booster; counters carry a * when the current user has acted.
package main

import (
	"fmt"
	"io"

	"github.com/2389-research/murmur/internal/models"
)

func printPost(w io.Writer, p models.Post) {
	target := p.Target()
	fmt.Fprintf(w, "--- %s [%s] %s", target.Account.Handle(), target.ID, target.CreatedAt.Local().Format("2006-01-02 15:04"))
	if p.Reblog != nil {
		fmt.Fprintf(w, " (boosted by %s)", p.Account.Handle())
	}
	if target.InReplyToID != "" {
		fmt.Fprintf(w, " (reply to %s)", target.InReplyToID)
	}
	fmt.Fprintf(w, "\n%s\n", target.Text())
	for _, m := range target.MediaAttachments {
		fmt.Fprintf(w, "  [%s] %s\n", m.Type, m.URL)
	}
	if poll := target.Poll; poll != nil {
		for i, opt := range poll.Options {
			fmt.Fprintf(w, "  %d) %s (%d)\n", i, opt.Title, opt.VotesCount)
		}
		if poll.Expired {
			fmt.Fprintln(w, "  poll closed")
		}
	}
	fmt.Fprintf(w, "  ↩ %d  ⟳ %d%s  ★ %d%s\n\n",
		target.RepliesCount,
		target.ReblogsCount, mark(target.Reblogged),
		target.FavouritesCount, mark(target.Favourited))
}

func printNotification(w io.Writer, n models.Notification) {
	fmt.Fprintf(w, "--- %s from %s [%s]\n", n.Type, n.Account.Handle(), n.CreatedAt.Local().Format("2006-01-02 15:04"))
	if n.Status != nil {
		fmt.Fprintf(w, "  [%s] %s\n", n.Status.ID, n.Status.Text())
	}
}

func printAccount(w io.Writer, a models.Account, rel *models.Relationship) {
	fmt.Fprintf(w, "%s  %s [%s]", a.Handle(), a.Name(), a.ID)
	if rel != nil {
		switch {
		case rel.Following:
			fmt.Fprint(w, " (following)")
		case rel.Requested:
			fmt.Fprint(w, " (requested)")
		}
		if rel.FollowedBy {
			fmt.Fprint(w, " (follows you)")
		}
	}
	fmt.Fprintln(w)
}

func mark(on bool) string {
	if on {
		return "*"
	}
	return ""
}
