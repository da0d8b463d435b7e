// Package migrations embeds the SQL schema of the self-hosted backend.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// FS exposes the migration files.
func FS() fs.FS { return files }

// All returns every migration concatenated in file name order.
func All() string {
	entries, err := fs.Glob(files, "*.sql")
	if err != nil {
		return ""
	}
	sort.Strings(entries)
	var b strings.Builder
	for _, name := range entries {
		data, err := fs.ReadFile(files, name)
		if err != nil {
			continue
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String()
}
