// ABOUTME: Server validation for the login wizard.
// ABOUTME: Confirms a server name answers the instance metadata endpoint before registering.
package tui

import (
	"context"
	"fmt"

	"github.com/2389-research/murmur/internal/mastodon"
)

// ValidateServer fetches instance metadata from server. The context allows
// cancellation when the user quits during validation.
func ValidateServer(ctx context.Context, server string) (*mastodon.Instance, error) {
	client, err := mastodon.NewClient(server)
	if err != nil {
		return nil, err
	}
	inst, err := client.Instance(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s does not look like a Mastodon server: %w", client.Server(), err)
	}
	return inst, nil
}
