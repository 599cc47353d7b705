package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/david/grantmate/internal/ai"
	"github.com/david/grantmate/internal/config"
	"github.com/david/grantmate/internal/grants"
	"github.com/david/grantmate/internal/logging"
)

// grantsearch runs one search against the configured model and prints the
// extracted grants. With -reply it parses a saved model reply instead.
func main() {
	term := flag.String("term", "", "search term")
	location := flag.String("location", "", "location")
	org := flag.String("org", "", "organization")
	focus := flag.String("focus", "", "focus area")
	elig := flag.String("eligibility", "", "eligibility type")
	minAmount := flag.Float64("min", 0, "minimum funding")
	maxAmount := flag.Float64("max", 0, "maximum funding")
	replyFile := flag.String("reply", "", "parse this saved model reply instead of calling the model")
	timeout := flag.Duration("timeout", 2*time.Minute, "completion timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}

	var res *grants.SearchResult
	if *replyFile != "" {
		raw, err := os.ReadFile(*replyFile)
		if err != nil {
			log.Fatal(err)
		}
		parsed := grants.NewFinder(nil, grants.WithLogger(logger)).Parse(string(raw))
		res = &parsed
	} else {
		q := grants.SearchQuery{
			SearchTerm:      *term,
			Organization:    *org,
			FocusArea:       *focus,
			Location:        *location,
			EligibilityType: *elig,
		}
		if *minAmount > 0 || *maxAmount > 0 {
			q.FundingRange = &grants.FundingRange{Min: minAmount, Max: maxAmount}
		}

		gateway, _, err := ai.NewGateway(cfg.LLM)
		if err != nil {
			log.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		fmt.Println(grants.BuildPrompt(q))
		res, err = grants.NewFinder(gateway, grants.WithLogger(logger)).Search(ctx, q)
		if err != nil {
			logger.Fatal("search failed", zap.Error(err))
		}
	}

	if res.NeedsClarification() {
		fmt.Println("The model needs more detail:")
		fmt.Println(res.Clarification.Message)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Title", "Opportunity", "Deadline", "Funding", "Category", "Link"})
	for i, g := range res.Grants {
		link := g.MoreInfoURL
		if link == "" {
			link = g.ApplicationLink
		}
		t.AppendRow(table.Row{i + 1, g.Title, g.OpportunityNumber, g.Deadline, g.TotalFunding, strings.Join(g.Category, ", "), link})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d grants", len(res.Grants)), fmt.Sprintf("%d skipped", res.Skipped)})
	t.Render()
}
