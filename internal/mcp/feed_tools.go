// ABOUTME: MCP tool implementations for reading timelines, notifications, threads, and follow lists.
// ABOUTME: Registers timeline, notifications, thread, and follow_list tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/murmur/internal/feed"
	"github.com/2389-research/murmur/internal/thread"
)

func (s *Server) registerFeedTools() {
	s.mcp.AddTool(&gomcp.Tool{
		Name:        "timeline",
		Description: "Read a timeline. fetch loads the next older page, poll checks for new posts, reveal shows them, refresh starts over.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"feed": {"type": "string", "enum": ["home", "local", "public"], "description": "Timeline to read (default home)"},
				"action": {"type": "string", "enum": ["fetch", "refresh", "poll", "reveal"], "description": "What to do (default fetch)"},
				"limit": {"type": "number", "description": "Maximum number of posts to return (default 20)"}
			}
		}`),
	}, s.handleTimeline)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "notifications",
		Description: "Read notifications, or dismiss all of them.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {"type": "string", "enum": ["fetch", "refresh", "clear"], "description": "What to do (default fetch)"}
			}
		}`),
	}, s.handleNotifications)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "thread",
		Description: "Show a post with its ancestors and up to two levels of replies.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "ID of the post", "minLength": 1}
			},
			"required": ["post_id"]
		}`),
	}, s.handleThread)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "follow_list",
		Description: "Page through the followers of an account, or the accounts it follows. Each call loads the next page.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"account_id": {"type": "string", "description": "Account to list (default: yourself)"},
				"direction": {"type": "string", "enum": ["followers", "following"], "description": "Which list (default followers)"},
				"restart": {"type": "boolean", "description": "Start again from the first page"}
			}
		}`),
	}, s.handleFollowList)
}

func (s *Server) handleTimeline(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Feed   string `json:"feed"`
		Action string `json:"action"`
		Limit  int    `json:"limit"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.Feed == "" {
		args.Feed = feed.TimelineHome
	}
	if args.Limit <= 0 {
		args.Limit = s.cfg.Feed.PageSize
	}

	w, err := s.current()
	if err != nil {
		return toolError("%v", err), nil
	}
	engine, err := w.Timeline(args.Feed)
	if err != nil {
		return toolError("%v", err), nil
	}

	var header string
	switch args.Action {
	case "", "fetch":
		n, err := engine.Fetch(ctx)
		if err != nil {
			return toolError("failed to fetch %s: %v", args.Feed, err), nil
		}
		header = fmt.Sprintf("Loaded %d posts from %s", n, args.Feed)
		if !engine.Cursor().HasMore {
			header += " (end of timeline)"
		}
	case "refresh":
		n, err := engine.Refresh(ctx)
		if err != nil {
			return toolError("failed to refresh %s: %v", args.Feed, err), nil
		}
		header = fmt.Sprintf("Refreshed %s with %d posts", args.Feed, n)
	case "poll":
		n, err := engine.Poll(ctx)
		if err != nil {
			return toolError("failed to poll %s: %v", args.Feed, err), nil
		}
		if n == 0 && engine.PendingCount() == 0 {
			return textResult(fmt.Sprintf("No new posts on %s", args.Feed)), nil
		}
		return textResult(fmt.Sprintf("%d new posts waiting on %s; use action reveal to show them", engine.PendingCount(), args.Feed)), nil
	case "reveal":
		n := engine.Reveal()
		header = fmt.Sprintf("Revealed %d new posts on %s", n, args.Feed)
	default:
		return toolError("unknown action %q", args.Action), nil
	}

	items := engine.Items()
	if len(items) > args.Limit {
		items = items[:args.Limit]
	}
	return textResult(formatPosts(header, items)), nil
}

func (s *Server) handleNotifications(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Action string `json:"action"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	w, err := s.current()
	if err != nil {
		return toolError("%v", err), nil
	}

	switch args.Action {
	case "", "fetch":
		if _, err := w.Notifications.Fetch(ctx); err != nil {
			return toolError("failed to fetch notifications: %v", err), nil
		}
	case "refresh":
		if _, err := w.Notifications.Refresh(ctx); err != nil {
			return toolError("failed to refresh notifications: %v", err), nil
		}
	case "clear":
		if err := w.Client.ClearNotifications(ctx); err != nil {
			return toolError("failed to clear notifications: %v", err), nil
		}
		w.Notifications.Reset()
		return textResult("Notifications cleared"), nil
	default:
		return toolError("unknown action %q", args.Action), nil
	}
	return textResult(formatNotifications(w.Notifications.Items())), nil
}

func (s *Server) handleThread(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		PostID string `json:"post_id"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.PostID == "" {
		return toolError("post_id is required"), nil
	}

	w, err := s.current()
	if err != nil {
		return toolError("%v", err), nil
	}
	res, err := w.Threads.Build(ctx, args.PostID)
	if err != nil {
		return toolError("failed to load thread: %v", err), nil
	}

	var sb strings.Builder
	if err := thread.Render(&sb, res); err != nil {
		return toolError("failed to render thread: %v", err), nil
	}
	return textResult(sb.String()), nil
}

func (s *Server) handleFollowList(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		AccountID string `json:"account_id"`
		Direction string `json:"direction"`
		Restart   bool   `json:"restart"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.Direction == "" {
		args.Direction = "followers"
	}
	if args.Direction != "followers" && args.Direction != "following" {
		return toolError("direction must be followers or following"), nil
	}

	w, err := s.current()
	if err != nil {
		return toolError("%v", err), nil
	}
	if args.AccountID == "" {
		args.AccountID = s.session.Session().UserID
	}

	p := s.pager(args.Direction+":"+args.AccountID, func() *feed.AccountPager {
		if args.Direction == "following" {
			return w.Following(args.AccountID, nil)
		}
		return w.Followers(args.AccountID, nil)
	})
	if args.Restart {
		p.Reset()
	}
	before := len(p.Accounts())
	if _, err := p.FetchNext(ctx); err != nil {
		return toolError("failed to load %s: %v", args.Direction, err), nil
	}

	accts := p.Accounts()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %s so far", len(accts), args.Direction)
	if !p.HasMore() {
		sb.WriteString(" (complete)")
	}
	sb.WriteString("\n")
	for _, a := range accts[before:] {
		fmt.Fprintf(&sb, "[%s] %s %s", a.ID, a.Handle(), a.Name())
		if rel, ok := w.Relationships.Get(a.ID); ok && rel.Following {
			sb.WriteString(" (following)")
		}
		sb.WriteString("\n")
	}
	return textResult(sb.String()), nil
}
