// ABOUTME: CLI commands that change posts: create, delete, favourite, boost, and vote.
// ABOUTME: Toggles go through the mutation coordinator so failures roll back cleanly.
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/mutation"
)

var postCmd = &cobra.Command{
	Use:   "post <content>",
	Short: "Publish a post",
	Long:  "Publish a post or reply, optionally with media, a content warning, and a visibility.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPost,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <post-id>",
	Short: "Delete one of your posts",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var favCmd = &cobra.Command{
	Use:   "fav <post-id>",
	Short: "Favourite a post, or undo it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFav,
}

var boostCmd = &cobra.Command{
	Use:   "boost <post-id>",
	Short: "Boost a post, or undo it",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoost,
}

var voteCmd = &cobra.Command{
	Use:   "vote <post-id> <choice>...",
	Short: "Vote in a poll",
	Long:  "Vote in the poll attached to a post. Choices are zero-based option numbers.",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runVote,
}

// Flags
var (
	postReplyTo    string
	postCW         string
	postSensitive  bool
	postVisibility string
	postMedia      []string
	postMediaAlt   []string
	postKey        string
)

func init() {
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(favCmd)
	rootCmd.AddCommand(boostCmd)
	rootCmd.AddCommand(voteCmd)

	postCmd.Flags().StringVar(&postReplyTo, "reply-to", "", "Post ID to reply to")
	postCmd.Flags().StringVar(&postCW, "cw", "", "Content warning shown before the text")
	postCmd.Flags().BoolVar(&postSensitive, "sensitive", false, "Mark attached media as sensitive")
	postCmd.Flags().StringVar(&postVisibility, "visibility", "", "public, unlisted, private, or direct")
	postCmd.Flags().StringSliceVar(&postMedia, "media", nil, "File to attach (repeatable)")
	postCmd.Flags().StringSliceVar(&postMediaAlt, "alt", nil, "Description for the matching --media file (repeatable)")
	postCmd.Flags().StringVar(&postKey, "idempotency-key", "", "Reuse the key printed by a failed attempt to avoid a duplicate")
}

func runPost(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	draft := models.Draft{
		InReplyToID: postReplyTo,
		SpoilerText: postCW,
		Sensitive:   postSensitive,
		Visibility:  models.Visibility(postVisibility),
	}
	if len(args) == 1 {
		draft.Content = args[0]
	}

	for i, path := range postMedia {
		var alt string
		if i < len(postMediaAlt) {
			alt = postMediaAlt[i]
		}
		media, err := w.Client.UploadMedia(ctx, path, alt)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", path, err)
		}
		draft.MediaIDs = append(draft.MediaIDs, media.ID)
	}

	key := postKey
	if key == "" {
		key = mutation.NewIdempotencyKey()
	}
	post, err := w.Mutations.CreatePost(ctx, draft, key)
	if err != nil {
		return fmt.Errorf("%w (retry with --idempotency-key %s)", err, key)
	}
	fmt.Printf("Post created (ID: %s)\n", post.ID)
	if post.URL != "" {
		fmt.Println(post.URL)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	if err := w.Mutations.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted post %s\n", args[0])
	return nil
}

func runFav(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	post, err := w.Mutations.ToggleFavourite(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if post.Favourited {
		fmt.Printf("★ Favourited %s (%d)\n", post.ID, post.FavouritesCount)
	} else {
		fmt.Printf("Removed favourite from %s (%d)\n", post.ID, post.FavouritesCount)
	}
	return nil
}

func runBoost(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	post, err := w.Mutations.ToggleReblog(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if post.Reblogged {
		fmt.Printf("⟳ Boosted %s (%d)\n", post.ID, post.ReblogsCount)
	} else {
		fmt.Printf("Removed boost from %s (%d)\n", post.ID, post.ReblogsCount)
	}
	return nil
}

func runVote(cmd *cobra.Command, args []string) error {
	choices := make([]int, 0, len(args)-1)
	for _, arg := range args[1:] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return models.Validationf("choice %q is not a number", arg)
		}
		choices = append(choices, n)
	}

	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	ballot, err := w.Mutations.OpenBallot(ctx, args[0])
	if err != nil {
		return err
	}
	for _, choice := range choices {
		if err := ballot.Select(choice); err != nil {
			return err
		}
	}
	poll, err := w.Mutations.SubmitBallot(ctx, ballot)
	if err != nil {
		return err
	}
	fmt.Printf("Voted (%d votes)\n", poll.VotesCount)
	for i, opt := range poll.Options {
		fmt.Printf("  %d) %s (%d)\n", i, opt.Title, opt.VotesCount)
	}
	return nil
}
