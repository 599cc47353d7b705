package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/grantmate/internal/config"
	"github.com/david/grantmate/internal/db"
)

// verify_db reports which embedded migrations have been applied and whether
// every expected table exists, with row counts.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	files, err := db.MigrationFiles()
	if err != nil {
		log.Fatal(err)
	}

	ok := true
	mt := table.NewWriter()
	mt.SetOutputMirror(os.Stdout)
	mt.AppendHeader(table.Row{"Migration", "Applied"})
	for _, f := range files {
		var applied bool
		err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", f).Scan(&applied)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		ok = ok && applied
		mt.AppendRow(table.Row{f, applied})
	}
	mt.Render()

	tt := table.NewWriter()
	tt.SetOutputMirror(os.Stdout)
	tt.AppendHeader(table.Row{"Table", "Exists", "Rows"})
	for _, name := range db.ExpectedTables {
		var exists bool
		if err := pool.QueryRow(ctx, "SELECT to_regclass('public.' || $1) IS NOT NULL", name).Scan(&exists); err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		rows := "-"
		if exists {
			var n int
			// name comes from the fixed table list above
			if err := pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", name)).Scan(&n); err != nil {
				log.Fatalf("Count failed for %s: %v", name, err)
			}
			rows = fmt.Sprint(n)
		}
		ok = ok && exists
		tt.AppendRow(table.Row{name, exists, rows})
	}
	tt.Render()

	if !ok {
		os.Exit(1)
	}
}
