package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"recreo/hub"
	"recreo/session"
)

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := opts.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

type signUpOptions struct {
	name       string
	email      string
	password   string
	activities []string
}

func newSignUpCommand(opts *rootOptions) *cobra.Command {
	o := &signUpOptions{}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				u, err := a.users.SignUp(ctx, session.SignUpRequest{
					Name:       o.name,
					Email:      o.email,
					Password:   o.password,
					Activities: o.activities,
				})
				if err != nil {
					return err
				}
				return printUser(a.out, u)
			})
		},
	}
	cmd.Flags().StringVar(&o.name, "name", "", "display name")
	cmd.Flags().StringVar(&o.email, "email", "", "account email")
	cmd.Flags().StringVar(&o.password, "password", "", "account password")
	cmd.Flags().StringSliceVar(&o.activities, "activity", nil,
		fmt.Sprintf("activity to enable, repeatable (%s)", strings.Join(session.AllActivities, ", ")))
	return cmd
}

func newSignInCommand(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				u, err := a.users.SignIn(ctx, email, password)
				if err != nil {
					return err
				}
				return printUser(a.out, u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newSignOutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.users.SignOut(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out.w, "signed out")
				return nil
			})
		},
	}
}

type whoAmI struct {
	User session.User `json:"user" yaml:"user"`
	Tabs []hub.Tab    `json:"tabs" yaml:"tabs"`
}

func newWhoAmICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and their tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				h := hub.New(a.users, nil, nil)
				tabs, err := h.Tabs()
				if err != nil {
					return err
				}
				u, _ := a.users.Current()
				return a.out.print(whoAmI{User: u, Tabs: tabs}, func(w io.Writer) error {
					if err := writeUser(w, u); err != nil {
						return err
					}
					rows := [][]string{{"ROUTE", "TITLE", "ICON"}}
					for _, t := range tabs {
						rows = append(rows, []string{t.Route, t.Title, t.Icon})
					}
					fmt.Fprintln(w)
					return table(w, rows)
				})
			})
		},
	}
}

type activityList struct {
	Selected []string `json:"selected" yaml:"selected"`
	Other    []string `json:"other" yaml:"other"`
}

func newActivitiesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activities",
		Short: "List selected and other activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				u, err := a.users.RequireUser()
				if err != nil {
					return err
				}
				list := activityList{Selected: u.Activities, Other: session.OtherActivities(u)}
				return a.out.print(list, func(w io.Writer) error {
					fmt.Fprintf(w, "Selected: %s\n", joinOrDash(list.Selected))
					fmt.Fprintf(w, "Other:    %s\n", joinOrDash(list.Other))
					return nil
				})
			})
		},
	}
}

func printUser(out *output, u session.User) error {
	return out.print(u, func(w io.Writer) error { return writeUser(w, u) })
}

func writeUser(w io.Writer, u session.User) error {
	return table(w, [][]string{
		{"Name:", u.DisplayName()},
		{"Email:", u.Email},
		{"Role:", string(u.Role)},
		{"Activities:", joinOrDash(u.Activities)},
	})
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
