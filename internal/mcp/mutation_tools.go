// ABOUTME: MCP tool implementations for changing server state.
// ABOUTME: Registers favourite, reblog, follow, vote, delete_post, and create_post tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/mutation"
)

func (s *Server) registerMutationTools() {
	postIDSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"post_id": {"type": "string", "description": "ID of the post", "minLength": 1}
		},
		"required": ["post_id"]
	}`)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "favourite",
		Description: "Favourite a post, or remove the favourite if it is already set.",
		InputSchema: postIDSchema,
	}, s.handleFavourite)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "reblog",
		Description: "Boost a post, or undo the boost if it is already set.",
		InputSchema: postIDSchema,
	}, s.handleReblog)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "follow",
		Description: "Follow an account, or unfollow it if already following.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"account_id": {"type": "string", "description": "ID of the account", "minLength": 1}
			},
			"required": ["account_id"]
		}`),
	}, s.handleFollow)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "vote",
		Description: "Vote in the poll attached to a post.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "ID of the post carrying the poll", "minLength": 1},
				"choices": {"type": "array", "items": {"type": "number"}, "description": "Zero-based option indexes"}
			},
			"required": ["post_id", "choices"]
		}`),
	}, s.handleVote)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "delete_post",
		Description: "Delete one of your own posts.",
		InputSchema: postIDSchema,
	}, s.handleDeletePost)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "create_post",
		Description: "Publish a new post or a reply.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "string", "description": "Text of the post"},
				"in_reply_to_id": {"type": "string", "description": "ID of the post to reply to (optional)"},
				"spoiler_text": {"type": "string", "description": "Content warning shown before the text (optional)"},
				"sensitive": {"type": "boolean", "description": "Mark attached media as sensitive"},
				"visibility": {"type": "string", "enum": ["public", "unlisted", "private", "direct"], "description": "Who can see the post (default public)"},
				"media": {"type": "array", "items": {"type": "string"}, "description": "Local file paths to attach"},
				"idempotency_key": {"type": "string", "description": "Reuse the key from a failed attempt to avoid a duplicate post"}
			}
		}`),
	}, s.handleCreatePost)
}

func (s *Server) handleFavourite(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	return s.togglePost(ctx, req, "favourite", func(m *mutation.Coordinator, id string) (models.Post, error) {
		return m.ToggleFavourite(ctx, id)
	})
}

func (s *Server) handleReblog(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	return s.togglePost(ctx, req, "boost", func(m *mutation.Coordinator, id string) (models.Post, error) {
		return m.ToggleReblog(ctx, id)
	})
}

func (s *Server) togglePost(ctx context.Context, req *gomcp.CallToolRequest, verb string, run func(*mutation.Coordinator, string) (models.Post, error)) (*gomcp.CallToolResult, error) {
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
	post, err := run(w.Mutations, args.PostID)
	if err != nil {
		return toolError("failed to %s post %s: %v", verb, args.PostID, err), nil
	}

	target := post.Target()
	state, count := target.Favourited, target.FavouritesCount
	if verb == "boost" {
		state, count = target.Reblogged, target.ReblogsCount
	}
	action := "Removed " + verb + " from"
	if state {
		action = "Applied " + verb + " to"
	}
	return textResult(fmt.Sprintf("%s post %s (%d total)", action, target.ID, count)), nil
}

func (s *Server) handleFollow(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		AccountID string `json:"account_id"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.AccountID == "" {
		return toolError("account_id is required"), nil
	}

	w, err := s.current()
	if err != nil {
		return toolError("%v", err), nil
	}
	rel, err := w.Mutations.ToggleFollow(ctx, args.AccountID)
	if err != nil {
		return toolError("failed to change follow for %s: %v", args.AccountID, err), nil
	}

	switch {
	case rel.Requested:
		return textResult(fmt.Sprintf("Follow request sent to %s", args.AccountID)), nil
	case rel.Following:
		return textResult(fmt.Sprintf("Now following %s", args.AccountID)), nil
	default:
		return textResult(fmt.Sprintf("No longer following %s", args.AccountID)), nil
	}
}

func (s *Server) handleVote(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		PostID  string `json:"post_id"`
		Choices []int  `json:"choices"`
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
	ballot, err := w.Mutations.OpenBallot(ctx, args.PostID)
	if err != nil {
		return toolError("failed to vote: %v", err), nil
	}
	for _, choice := range args.Choices {
		if err := ballot.Select(choice); err != nil {
			return toolError("failed to vote: %v", err), nil
		}
	}
	poll, err := w.Mutations.SubmitBallot(ctx, ballot)
	if err != nil {
		return toolError("failed to vote: %v", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Voted on post %s (%d votes)\n", args.PostID, poll.VotesCount)
	for i, opt := range poll.Options {
		fmt.Fprintf(&sb, "  %d) %s (%d)\n", i, opt.Title, opt.VotesCount)
	}
	return textResult(sb.String()), nil
}

func (s *Server) handleDeletePost(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
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
	if err := w.Mutations.Delete(ctx, args.PostID); err != nil {
		return toolError("failed to delete post %s: %v", args.PostID, err), nil
	}
	return textResult(fmt.Sprintf("Deleted post %s", args.PostID)), nil
}

func (s *Server) handleCreatePost(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Content        string   `json:"content"`
		InReplyToID    string   `json:"in_reply_to_id"`
		SpoilerText    string   `json:"spoiler_text"`
		Sensitive      bool     `json:"sensitive"`
		Visibility     string   `json:"visibility"`
		Media          []string `json:"media"`
		IdempotencyKey string   `json:"idempotency_key"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	w, err := s.current()
	if err != nil {
		return toolError("%v", err), nil
	}

	draft := models.Draft{
		Content:     args.Content,
		InReplyToID: args.InReplyToID,
		SpoilerText: args.SpoilerText,
		Sensitive:   args.Sensitive,
		Visibility:  models.Visibility(args.Visibility),
	}
	for _, path := range args.Media {
		media, err := w.Client.UploadMedia(ctx, path, "")
		if err != nil {
			return toolError("failed to upload %s: %v", path, err), nil
		}
		draft.MediaIDs = append(draft.MediaIDs, media.ID)
	}

	key := args.IdempotencyKey
	if key == "" {
		key = mutation.NewIdempotencyKey()
	}
	post, err := w.Mutations.CreatePost(ctx, draft, key)
	if err != nil {
		return toolError("failed to create post (idempotency_key %s): %v", key, err), nil
	}
	return textResult(fmt.Sprintf("Post created with ID: %s", post.ID)), nil
}
