// Command recreo drives the recreo screens from a terminal against a hosted
// Supabase project or a self-hosted PostgreSQL database.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand(defaultOptions())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "recreo:", err)
		os.Exit(exitCode(err))
	}
}
