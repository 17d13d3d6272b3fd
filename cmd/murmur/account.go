// ABOUTME: CLI commands for accounts: follow, follower lists, search, and profile edits.
// ABOUTME: Follower lists stream in as each account is revealed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/2389-research/murmur/internal/feed"
	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/models"
)

var followCmd = &cobra.Command{
	Use:   "follow <account-id>",
	Short: "Follow an account, or unfollow it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFollow,
}

var followersCmd = &cobra.Command{
	Use:   "followers [account-id]",
	Short: "List the followers of an account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAccountList(cmd, args, true)
	},
}

var followingCmd = &cobra.Command{
	Use:   "following [account-id]",
	Short: "List the accounts an account follows",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAccountList(cmd, args, false)
	},
}

var postsCmd = &cobra.Command{
	Use:   "posts [account-id]",
	Short: "List the posts of an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPosts,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for accounts",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your profile",
	Long:  "Show your profile, or update its display name, bio, avatar, or header.",
	RunE:  runProfile,
}

// Flags
var (
	listPages          int
	searchLimit        int
	profileDisplayName string
	profileNote        string
	profileAvatar      string
	profileHeader      string
)

func init() {
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(followersCmd)
	rootCmd.AddCommand(followingCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(profileCmd)

	followersCmd.Flags().IntVar(&listPages, "pages", 1, "Number of pages to load")
	followingCmd.Flags().IntVar(&listPages, "pages", 1, "Number of pages to load")
	postsCmd.Flags().IntVar(&listPages, "pages", 1, "Number of pages to load")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of accounts to show")

	profileCmd.Flags().StringVar(&profileDisplayName, "display-name", "", "New display name")
	profileCmd.Flags().StringVar(&profileNote, "note", "", "New bio")
	profileCmd.Flags().StringVar(&profileAvatar, "avatar", "", "Image file for the avatar")
	profileCmd.Flags().StringVar(&profileHeader, "header", "", "Image file for the header")
}

func runFollow(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	rel, err := w.Mutations.ToggleFollow(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	switch {
	case rel.Requested:
		fmt.Printf("Follow request sent to %s\n", args[0])
	case rel.Following:
		fmt.Printf("Now following %s\n", args[0])
	default:
		fmt.Printf("No longer following %s\n", args[0])
	}
	return nil
}

func runAccountList(cmd *cobra.Command, args []string, followers bool) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	id := globalSession.Session().UserID
	if len(args) == 1 {
		id = args[0]
	}

	show := func(a models.Account) {
		if rel, ok := w.Relationships.Get(a.ID); ok {
			printAccount(os.Stdout, a, &rel)
			return
		}
		printAccount(os.Stdout, a, nil)
	}
	var pager *feed.AccountPager
	if followers {
		pager = w.Followers(id, show)
	} else {
		pager = w.Following(id, show)
	}

	for i := 0; i < listPages && pager.HasMore(); i++ {
		if _, err := pager.FetchNext(cmd.Context()); err != nil {
			return err
		}
	}
	total := len(pager.Accounts())
	if total == 0 {
		fmt.Println("No accounts found.")
		return nil
	}
	if pager.HasMore() {
		fmt.Fprintf(os.Stderr, "%d shown; use --pages to load more\n", total)
	}
	return nil
}

func runPosts(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	id := globalSession.Session().UserID
	if len(args) == 1 {
		id = args[0]
	}

	engine := w.AccountFeed(id)
	for i := 0; i < listPages && engine.Cursor().HasMore; i++ {
		if _, err := engine.Fetch(cmd.Context()); err != nil {
			return err
		}
	}
	items := engine.Items()
	if len(items) == 0 {
		fmt.Println("No posts found.")
		return nil
	}
	for i := len(items) - 1; i >= 0; i-- {
		printPost(os.Stdout, items[i])
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	accts, err := w.Client.SearchAccounts(ctx, args[0], searchLimit)
	if err != nil {
		return err
	}
	if len(accts) == 0 {
		fmt.Println("No accounts found.")
		return nil
	}

	ids := make([]string, 0, len(accts))
	for _, a := range accts {
		ids = append(ids, a.ID)
	}
	rels, err := w.Relationships.Lookup(ctx, ids)
	if err != nil {
		logging.Logger().Warn("relationship lookup failed", "error", err)
	}
	for _, a := range accts {
		if rel, ok := rels[a.ID]; ok {
			printAccount(os.Stdout, a, &rel)
			continue
		}
		printAccount(os.Stdout, a, nil)
	}
	return nil
}

func runProfile(cmd *cobra.Command, args []string) error {
	w, err := requireWorkspace()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var upd models.ProfileUpdate
	flags := cmd.Flags()
	if flags.Changed("display-name") {
		upd.DisplayName = &profileDisplayName
	}
	if flags.Changed("note") {
		upd.Note = &profileNote
	}
	upd.AvatarPath = profileAvatar
	upd.HeaderPath = profileHeader

	var acct *models.Account
	if upd.DisplayName == nil && upd.Note == nil && upd.AvatarPath == "" && upd.HeaderPath == "" {
		acct, err = w.Client.VerifyCredentials(ctx)
	} else {
		acct, err = w.Client.UpdateCredentials(ctx, upd)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s) [%s]\n", acct.Handle(), acct.Name(), acct.ID)
	if note := models.PlainText(acct.Note); note != "" {
		fmt.Printf("%s\n", note)
	}
	fmt.Printf("%d posts, %d following, %d followers\n", acct.StatusesCount, acct.FollowingCount, acct.FollowersCount)
	if acct.URL != "" {
		fmt.Println(acct.URL)
	}
	return nil
}
