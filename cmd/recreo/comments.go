package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"recreo/community"
)

func newCommentsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Read and write comments on a post",
	}
	cmd.AddCommand(newCommentsListCommand(opts), newCommentsAddCommand(opts), newCommentsDeleteCommand(opts))
	return cmd
}

// withThread opens the comment thread of postID.
func withThread(cmd *cobra.Command, opts *rootOptions, postID string, fn func(ctx context.Context, a *app, t *community.Thread) error) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app) error {
		feed := a.feed()
		defer feed.Close()
		if err := feed.Refresh(ctx); err != nil {
			return err
		}
		t, err := feed.OpenThread(ctx, postID)
		if err != nil {
			return err
		}
		return fn(ctx, a, t)
	})
}

func newCommentsListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <post-id>",
		Short: "List the comments of a post, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(cmd, opts, args[0], func(ctx context.Context, a *app, t *community.Thread) error {
				return printComments(a, t)
			})
		},
	}
}

func newCommentsAddCommand(opts *rootOptions) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "add <post-id>",
		Short: "Comment on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(cmd, opts, args[0], func(ctx context.Context, a *app, t *community.Thread) error {
				if _, err := t.AddComment(ctx, content); err != nil {
					return err
				}
				return printComments(a, t)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "comment text")
	return cmd
}

func newCommentsDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id> <comment-id>",
		Short: "Delete one of your comments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(cmd, opts, args[0], func(ctx context.Context, a *app, t *community.Thread) error {
				if err := t.DeleteComment(ctx, args[1]); err != nil {
					return err
				}
				return printComments(a, t)
			})
		},
	}
}

func printComments(a *app, t *community.Thread) error {
	views := commentViews(t.Comments())
	return a.out.print(views, func(w io.Writer) error {
		rows := [][]string{{"ID", "AUTHOR", "CREATED", "CONTENT"}}
		for _, v := range views {
			rows = append(rows, []string{v.ID, v.Author, stamp(v.CreatedAt), v.Content})
		}
		return table(w, rows)
	})
}
