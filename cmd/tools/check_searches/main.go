package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/grantmate/internal/config"
	"github.com/david/grantmate/internal/db"
)

func main() {
	limit := flag.Int("limit", 10, "number of runs to show")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).ListSearchRuns(ctx, nil, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Search Term", "Outcome", "Found", "Skipped", "Refinement", "Duration", "Started At", "Error"})

	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{r.SearchTerm, r.Outcome, r.GrantsFound, r.SectionsSkipped, r.IsRefinement, duration, r.StartedAt.Format("2006-01-02 15:04:05"), r.Error})
	}
	t.Render()
}
