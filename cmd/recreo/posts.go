package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"recreo/community"
)

func newPostsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Browse and share community posts",
	}
	cmd.AddCommand(newPostsListCommand(opts), newPostsCreateCommand(opts), newPostsEditCommand(opts), newPostsDeleteCommand(opts))
	return cmd
}

func newPostsListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				feed := a.feed()
				defer feed.Close()
				if err := feed.Refresh(ctx); err != nil {
					return err
				}
				return printPosts(a, feed)
			})
		},
	}
}

func newPostsCreateCommand(opts *rootOptions) *cobra.Command {
	var content, image string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Share a post with an optional image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var attachment *community.Attachment
			if image != "" {
				data, err := os.ReadFile(image)
				if err != nil {
					return usageError(fmt.Errorf("read image: %w", err))
				}
				attachment = &community.Attachment{Filename: filepath.Base(image), Data: data}
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				feed := a.feed()
				defer feed.Close()
				if _, err := feed.CreatePost(ctx, content, attachment); err != nil {
					return err
				}
				return printPosts(a, feed)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "post text")
	cmd.Flags().StringVar(&image, "image", "", "image file to attach")
	return cmd
}

func newPostsEditCommand(opts *rootOptions) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "edit <post-id>",
		Short: "Change the text of one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				feed := a.feed()
				defer feed.Close()
				if err := feed.Refresh(ctx); err != nil {
					return err
				}
				if _, err := feed.EditPost(ctx, args[0], content); err != nil {
					return err
				}
				return printPosts(a, feed)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "new post text")
	return cmd
}

func newPostsDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				feed := a.feed()
				defer feed.Close()
				if err := feed.Refresh(ctx); err != nil {
					return err
				}
				if err := feed.DeletePost(ctx, args[0]); err != nil {
					return err
				}
				return printPosts(a, feed)
			})
		},
	}
}

func printPosts(a *app, feed *community.Feed) error {
	views := postViews(feed.Posts(), a.backend.storageBase)
	return a.out.print(views, func(w io.Writer) error {
		rows := [][]string{{"ID", "AUTHOR", "CREATED", "CONTENT", "IMAGE"}}
		for _, v := range views {
			img := v.ImageURL
			if img == "" {
				img = "-"
			}
			rows = append(rows, []string{v.ID, v.Author, stamp(v.CreatedAt), v.Content, img})
		}
		return table(w, rows)
	})
}
