// Package migrations embeds the SQL schema and applies it in file-name order.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

func Up(db *sql.DB) (int, error) {
	return run(db, "up")
}

func Down(db *sql.DB) (int, error) {
	return run(db, "down")
}

func run(db *sql.DB, direction string) (int, error) {
	names, err := list(direction)
	if err != nil {
		return 0, err
	}

	for _, name := range names {
		content, err := fs.ReadFile(files, name)
		if err != nil {
			return 0, fmt.Errorf("read migration file %s: %w", name, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return 0, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	return len(names), nil
}

func list(direction string) ([]string, error) {
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("direction must be 'up' or 'down', got %q", direction)
	}

	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), fmt.Sprintf(".%s.sql", direction)) {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	if direction == "down" {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}

	return names, nil
}
