// ABOUTME: Shared helpers for decoding tool arguments and building tool results.
// ABOUTME: Formats posts, notifications, and accounts as compact text lines.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/murmur/internal/models"
)

// unmarshalArgs decodes tool arguments, treating an absent payload as empty.
func unmarshalArgs(req *gomcp.CallToolRequest, dest any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params.Arguments, dest)
}

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: text}},
	}
}

// toolError creates an error result for MCP tool responses.
func toolError(format string, args ...interface{}) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func formatPost(sb *strings.Builder, p models.Post) {
	target := p.Target()
	fmt.Fprintf(sb, "[%s] %s", target.ID, target.Account.Handle())
	if p.Reblog != nil {
		fmt.Fprintf(sb, " (boosted by %s)", p.Account.Handle())
	}
	fmt.Fprintf(sb, " - %s\n", target.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(sb, "%s\n", target.Text())
	if target.Poll != nil {
		for i, opt := range target.Poll.Options {
			fmt.Fprintf(sb, "  %d) %s (%d)\n", i, opt.Title, opt.VotesCount)
		}
	}
	fmt.Fprintf(sb, "replies %d, boosts %d%s, favourites %d%s\n",
		target.RepliesCount,
		target.ReblogsCount, mark(target.Reblogged),
		target.FavouritesCount, mark(target.Favourited))
}

func formatPosts(header string, posts []models.Post) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	if len(posts) == 0 {
		sb.WriteString("No posts.\n")
	}
	for _, p := range posts {
		sb.WriteString("\n")
		formatPost(&sb, p)
	}
	return sb.String()
}

func formatNotifications(items []models.Notification) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d notifications\n", len(items))
	for _, n := range items {
		fmt.Fprintf(&sb, "\n[%s] %s from %s", n.ID, n.Type, n.Account.Handle())
		if n.Status != nil {
			fmt.Fprintf(&sb, " on [%s]: %s", n.Status.ID, n.Status.Text())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func mark(on bool) string {
	if on {
		return " *"
	}
	return ""
}
