// ABOUTME: MCP tool implementations for the login flow and session identity.
// ABOUTME: Registers login, auth_code, logout, and whoami tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerSessionTools() {
	s.mcp.AddTool(&gomcp.Tool{
		Name:        "login",
		Description: "Start logging in to a Mastodon-compatible server. Returns the URL the user must open to approve access.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"server": {"type": "string", "description": "Server host, e.g. mastodon.social. Defaults to the configured server."}
			}
		}`),
	}, s.handleLogin)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "auth_code",
		Description: "Finish logging in with the authorization code shown after approving access.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"code": {"type": "string", "description": "Authorization code from the server.", "minLength": 1},
				"server": {"type": "string", "description": "Server the code was issued by. Defaults to the server passed to login."}
			},
			"required": ["code"]
		}`),
	}, s.handleAuthCode)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "logout",
		Description: "Log out and forget the stored credentials.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleLogout)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "whoami",
		Description: "Show the session state and the logged-in account.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleWhoami)
}

func (s *Server) handleLogin(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Server string `json:"server"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	server := args.Server
	if server == "" {
		server = s.cfg.Server
	}
	if server == "" {
		return toolError("server is required"), nil
	}

	authURL, err := s.session.Login(ctx, server)
	if err != nil {
		return toolError("failed to start login: %v", err), nil
	}
	return textResult(fmt.Sprintf("Open this URL to approve access, then call auth_code with the code:\n%s", authURL)), nil
}

func (s *Server) handleAuthCode(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Code   string `json:"code"`
		Server string `json:"server"`
	}
	if err := unmarshalArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.Code == "" {
		return toolError("code is required"), nil
	}
	if err := s.session.HandleAuthCode(ctx, args.Code, args.Server); err != nil {
		return toolError("login failed: %v", err), nil
	}
	return s.handleWhoami(ctx, req)
}

func (s *Server) handleLogout(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	if err := s.session.Logout(); err != nil {
		return toolError("failed to log out: %v", err), nil
	}
	s.closeWorkspace()
	return textResult("Logged out"), nil
}

func (s *Server) handleWhoami(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	state := s.session.State()
	acct := s.session.CurrentAccount()
	if acct == nil {
		return textResult(fmt.Sprintf("State: %s", state)), nil
	}
	return textResult(fmt.Sprintf("State: %s\nLogged in as %s (%s) on %s",
		state, acct.Handle(), acct.Name(), s.session.Session().Server)), nil
}
