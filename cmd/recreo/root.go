package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"recreo/config"
	"recreo/reconcile"
	"recreo/session"
)

// Exit codes.
const (
	exitFailure = 1
	exitUsage   = 2
)

var validFormats = []string{"text", "json", "yaml"}

// rootOptions holds the global flags and the collaborators commands share.
type rootOptions struct {
	EnvFile string
	Format  string
	Verbose bool

	connect connector
	stdout  io.Writer
	stderr  io.Writer
}

func defaultOptions() *rootOptions {
	return &rootOptions{connect: connectBackend, stdout: os.Stdout, stderr: os.Stderr}
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recreo",
		Short: "recreo activity hub client",
		Long: `Sign in, share posts and comments, and manage drawings from the terminal.

The backend is chosen with RECREO_BACKEND (supabase or postgres); settings are
read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return usageError(fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats))
			}
			return nil
		},
	}
	cmd.SetOut(opts.stdout)
	cmd.SetErr(opts.stderr)

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env", "", "path to an env file (default .env when present)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newSignUpCommand(opts),
		newSignInCommand(opts),
		newSignOutCommand(opts),
		newWhoAmICommand(opts),
		newActivitiesCommand(opts),
		newPostsCommand(opts),
		newCommentsCommand(opts),
		newDrawingsCommand(opts),
	)
	return cmd
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{code: exitUsage, err: err} }

// exitCode maps input problems to exitUsage and everything else to
// exitFailure.
func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var vErr *reconcile.ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, session.ErrMissingCredentials),
		errors.Is(err, session.ErrSignedOut):
		return exitUsage
	default:
		return exitFailure
	}
}
